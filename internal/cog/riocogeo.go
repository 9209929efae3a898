package cog

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// RioCogeo validates and converts rasters with the rio-cogeo command-line
// tool. Remote URLs are checked in place; conversion always runs on a
// local copy.
type RioCogeo struct {
	// Bin overrides the binary name, for tests.
	Bin string
	// Profile selects the creation profile, "deflate" by default.
	Profile string
}

func NewRioCogeo() *RioCogeo {
	return &RioCogeo{Bin: "rio", Profile: "deflate"}
}

func (r *RioCogeo) Validate(ctx context.Context, url string) (ValidationResult, error) {
	out, err := exec.CommandContext(ctx, r.Bin, "cogeo", "validate", url).CombinedOutput()
	text := string(out)

	if err != nil {
		if strings.Contains(text, "not recognized as a supported file format") {
			return ValidationResult{}, fmt.Errorf("%s: %w", url, ErrUnsupportedSource)
		}
		if _, isExit := err.(*exec.ExitError); isExit {
			// the tool exits non-zero for structurally invalid files and
			// prints its findings line by line
			return ValidationResult{Errors: findingLines(text)}, nil
		}
		return ValidationResult{}, fmt.Errorf("rio cogeo validate %s: %w", url, err)
	}

	return ValidationResult{Warnings: warningLines(text)}, nil
}

func (r *RioCogeo) Convert(ctx context.Context, src, dst string) error {
	profile := r.Profile
	if profile == "" {
		profile = "deflate"
	}
	out, err := exec.CommandContext(ctx, r.Bin, "cogeo", "create", src, dst, "--cog-profile", profile).CombinedOutput()
	if err != nil {
		return fmt.Errorf("rio cogeo create %s: %w: %s", src, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func findingLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	if len(out) == 0 {
		out = []string{"file is not a valid cloud optimized GeoTIFF"}
	}
	return out
}

func warningLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, "warning") || strings.Contains(line, "Warning") {
			out = append(out, strings.TrimSpace(line))
		}
	}
	return out
}

var (
	_ Validator = (*RioCogeo)(nil)
	_ Converter = (*RioCogeo)(nil)
)
