// Package lint checks that generated catalog documents are well formed
// before and after publication.
package lint

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/stac-tools/stacgen/internal/observability"
)

// Linter validates a single serialized catalog document.
type Linter interface {
	Lint(data []byte) error
}

// Kind classifies a catalog document by shape.
type Kind string

const (
	KindItem       Kind = "item"
	KindCollection Kind = "collection"
	KindCatalog    Kind = "catalog"
)

// DetectKind classifies a decoded document. Items declare themselves as
// GeoJSON features; collections are the only documents carrying an
// extent; everything else is a plain catalog.
func DetectKind(doc map[string]any) Kind {
	if t, _ := doc["type"].(string); t == "Feature" {
		return KindItem
	}
	if _, ok := doc["extent"]; ok {
		return KindCollection
	}
	return KindCatalog
}

// SchemaLinter validates documents against JSON schemas when a schema
// directory provides them, and falls back to structural checks for any
// kind without a schema file.
type SchemaLinter struct {
	schemas map[Kind]*jsonschema.Schema
}

// NewSchemaLinter loads <kind>.json schemas from dir. An empty dir, or a
// dir missing some of the files, leaves the affected kinds on the
// structural checks.
func NewSchemaLinter(dir string) (*SchemaLinter, error) {
	l := &SchemaLinter{schemas: map[Kind]*jsonschema.Schema{}}
	if dir == "" {
		return l, nil
	}
	compiler := jsonschema.NewCompiler()
	for _, kind := range []Kind{KindItem, KindCollection, KindCatalog} {
		path := filepath.Join(dir, string(kind)+".json")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		sch, err := compiler.Compile(path)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", path, err)
		}
		l.schemas[kind] = sch
	}
	return l, nil
}

func (l *SchemaLinter) Lint(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("document is not a json object")
	}

	kind := DetectKind(doc)
	if sch, ok := l.schemas[kind]; ok {
		if err := sch.Validate(v); err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
		return nil
	}
	return structural(kind, doc)
}

func structural(kind Kind, doc map[string]any) error {
	var result *multierror.Error

	require := func(fields ...string) {
		for _, f := range fields {
			if _, ok := doc[f]; !ok {
				result = multierror.Append(result, fmt.Errorf("%s: missing %q", kind, f))
			}
		}
	}

	switch kind {
	case KindItem:
		require("id", "bbox", "geometry", "properties", "assets")
	case KindCollection:
		require("id", "extent", "links")
		if ext, ok := doc["extent"].(map[string]any); ok {
			if sp, ok := ext["spatial"].([]any); ok && len(sp) != 4 {
				result = multierror.Append(result, fmt.Errorf("collection: spatial extent has %d bounds, want 4", len(sp)))
			}
		}
	case KindCatalog:
		require("id", "description", "links")
	}
	return result.ErrorOrNil()
}

// LintTree lints every *.json document under root and reports all
// failures at once, each prefixed with its tree-relative path.
func LintTree(root string, l Linter) error {
	var result *multierror.Error

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := l.Lint(data); err != nil {
			observability.ObserveLintFailure()
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			result = multierror.Append(result, fmt.Errorf("%s: %w", rel, err))
		}
		return nil
	})
	if err != nil {
		return err
	}
	return result.ErrorOrNil()
}
