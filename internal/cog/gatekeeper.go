// Package cog decides, per asset, whether the raster already satisfies the
// cloud-optimized layout or must be converted, and performs the conversion
// when configuration permits it.
package cog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stac-tools/stacgen/internal/objstore"
	"github.com/stac-tools/stacgen/internal/observability"
)

// ErrUnsupportedSource is returned by validators for files the checker
// cannot read natively (e.g. JPEG2000). Such files are treated as
// convertible, not as a fatal fault.
var ErrUnsupportedSource = errors.New("unsupported source format")

// ValidationResult carries structural findings from a layout check.
// Warnings never block progress; a non-empty Errors list means the file is
// not a valid cloud-optimized raster.
type ValidationResult struct {
	Warnings []string
	Errors   []string
}

// Validator checks whether the file behind url satisfies the tiled +
// overview layout.
type Validator interface {
	Validate(ctx context.Context, url string) (ValidationResult, error)
}

// Converter rewrites a local raster into cloud-optimized form.
type Converter interface {
	Convert(ctx context.Context, src, dst string) error
}

// State of one asset in the gatekeeper's state machine.
type State int

const (
	StateUnchecked State = iota
	StateValid
	StateNeedsConversion
	StatePublished
	StateConversionFailed
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateNeedsConversion:
		return "needs_conversion"
	case StatePublished:
		return "published"
	case StateConversionFailed:
		return "conversion_failed"
	}
	return "unchecked"
}

// Resolution is the gatekeeper's verdict for one asset.
type Resolution struct {
	// Href the item's visual asset should point at: the original URL, or
	// the derived key's URL after a conversion.
	Href  string
	State State
}

type Gatekeeper struct {
	Validator Validator
	Converter Converter
	// Store reaches the source bucket and carries its requester-pays
	// transport; Output reaches the output bucket without it.
	Store  objstore.Store
	Output objstore.Store
	// HTTPClient serves the second-tier download fallback.
	HTTPClient *http.Client

	AllowConversion bool
	SourceBucket    string
	OutputBucket    string
	CollectionID    string
	WorkDir         string

	Log zerolog.Logger
}

// Resolve runs the per-asset state machine. Validator warnings are logged
// and never block; structural errors route to conversion when allowed,
// otherwise the asset is cataloged under its original URL with a warning.
// Failures in the download/convert/upload chain propagate.
func (g *Gatekeeper) Resolve(ctx context.Context, key, url string) (Resolution, error) {
	res, err := g.Validator.Validate(ctx, url)

	needsConversion := false
	switch {
	case errors.Is(err, ErrUnsupportedSource):
		g.Log.Info().Str("url", url).Msg("source format not directly readable, assuming conversion needed")
		needsConversion = true
	case err != nil:
		return Resolution{}, fmt.Errorf("validate %s: %w", url, err)
	default:
		for _, w := range res.Warnings {
			g.Log.Warn().Str("url", url).Str("warning", w).Msg("cog validation warning")
		}
		needsConversion = len(res.Errors) > 0
	}

	if !needsConversion {
		observability.ObserveAsset(StateValid.String())
		return Resolution{Href: url, State: StateValid}, nil
	}

	for _, e := range res.Errors {
		g.Log.Info().Str("url", url).Str("error", e).Msg("cog validation error")
	}

	if !g.AllowConversion {
		g.Log.Warn().Str("url", url).
			Msg("invalid COG but conversion disabled; cataloging original url (enable with ALLOW_COG_CONVERSION)")
		observability.ObserveAsset(StateConversionFailed.String())
		return Resolution{Href: url, State: StateConversionFailed}, nil
	}

	href, err := g.convert(ctx, key, url)
	if err != nil {
		observability.ObserveConversion("error")
		return Resolution{}, err
	}
	observability.ObserveConversion("ok")
	observability.ObserveAsset(StatePublished.String())
	return Resolution{Href: href, State: StatePublished}, nil
}

// DerivedKey is the deterministic output key a converted asset lands at.
func (g *Gatekeeper) DerivedKey(url string) string {
	base := path.Base(url)
	stem := strings.TrimSuffix(base, path.Ext(base))
	return g.CollectionID + "/" + stem + "_COG.TIF"
}

func (g *Gatekeeper) convert(ctx context.Context, key, url string) (string, error) {
	derivedKey := g.DerivedKey(url)

	srcPath := filepath.Join(g.WorkDir, path.Base(url))
	if err := g.download(ctx, key, url, srcPath); err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}

	dstPath := filepath.Join(g.WorkDir, path.Base(derivedKey))
	g.Log.Info().Str("src", srcPath).Str("dst", dstPath).Msg("converting to COG")
	if err := g.Converter.Convert(ctx, srcPath, dstPath); err != nil {
		return "", fmt.Errorf("convert %s: %w", url, err)
	}

	if err := g.Output.Upload(ctx, g.OutputBucket, derivedKey, dstPath, "image/tiff"); err != nil {
		return "", fmt.Errorf("upload converted %s: %w", derivedKey, err)
	}
	g.Log.Info().Str("key", derivedKey).Msg("converted COG uploaded")

	return "s3://" + g.OutputBucket + "/" + derivedKey, nil
}

// download fetches the source through the object store, falling back to a
// plain HTTP fetch on any primary failure. Two tiers only; the primary is
// not retried.
func (g *Gatekeeper) download(ctx context.Context, key, url, dst string) error {
	err := g.Store.Download(ctx, g.SourceBucket, key, dst)
	if err == nil {
		return nil
	}
	g.Log.Warn().Err(err).Str("url", url).Msg("primary download failed, retrying with plain http fetch")

	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("primary download failed and %q is not fetchable over http: %w", url, err)
	}

	client := g.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http fetch %s: status %s", url, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("http fetch %s: %w", url, err)
	}
	return nil
}
