package fgdc

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// MPTool converts FGDC text records to XML with the USGS mp
// metadata parser.
type MPTool struct {
	// Bin overrides the binary name, for tests.
	Bin string
}

func NewMPTool() *MPTool {
	return &MPTool{Bin: "mp"}
}

func (m *MPTool) ToXML(ctx context.Context, txtPath, xmlPath string) error {
	out, err := exec.CommandContext(ctx, m.Bin, txtPath, "-x", xmlPath).CombinedOutput()
	if err != nil {
		return fmt.Errorf("mp %s: %w: %s", txtPath, err, strings.TrimSpace(string(out)))
	}
	return nil
}

var _ Converter = (*MPTool)(nil)
