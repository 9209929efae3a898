package lint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDetectKind(t *testing.T) {
	cases := []struct {
		name string
		doc  map[string]any
		want Kind
	}{
		{"feature", map[string]any{"type": "Feature", "id": "x"}, KindItem},
		{"extent", map[string]any{"id": "x", "extent": map[string]any{}}, KindCollection},
		{"plain", map[string]any{"id": "x", "description": "d"}, KindCatalog},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectKind(tc.doc); got != tc.want {
				t.Fatalf("got=%v want %v", got, tc.want)
			}
		})
	}
}

func TestStructuralLint(t *testing.T) {
	l, err := NewSchemaLinter("")
	if err != nil {
		t.Fatalf("NewSchemaLinter: %v", err)
	}

	cases := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			"valid catalog",
			`{"id":"c","description":"d","links":[]}`,
			"",
		},
		{
			"catalog missing description",
			`{"id":"c","links":[]}`,
			`missing "description"`,
		},
		{
			"valid collection",
			`{"id":"c","extent":{"spatial":[-91,39,-89,41],"temporal":[null,null]},"links":[]}`,
			"",
		},
		{
			"collection bad spatial arity",
			`{"id":"c","extent":{"spatial":[-91,39,-89]},"links":[]}`,
			"spatial extent has 3 bounds",
		},
		{
			"item missing geometry",
			`{"type":"Feature","id":"i","bbox":[0,0,1,1],"properties":{},"assets":{}}`,
			`missing "geometry"`,
		},
		{
			"not an object",
			`[1,2,3]`,
			"not a json object",
		},
		{
			"not json",
			`{`,
			"invalid json",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := l.Lint([]byte(tc.doc))
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("got=%v want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestSchemaLint(t *testing.T) {
	dir := t.TempDir()
	schema := `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["id", "description", "links"],
		"properties": {"id": {"type": "string", "minLength": 1}}
	}`
	if err := os.WriteFile(filepath.Join(dir, "catalog.json"), []byte(schema), 0o644); err != nil {
		t.Fatal(err)
	}

	l, err := NewSchemaLinter(dir)
	if err != nil {
		t.Fatalf("NewSchemaLinter: %v", err)
	}

	if err := l.Lint([]byte(`{"id":"c","description":"d","links":[]}`)); err != nil {
		t.Fatalf("valid catalog rejected: %v", err)
	}
	if err := l.Lint([]byte(`{"id":"","links":[]}`)); err == nil {
		t.Fatalf("schema violations not reported")
	}
	// kinds without a schema file still go through the structural checks
	if err := l.Lint([]byte(`{"type":"Feature","id":"i"}`)); err == nil {
		t.Fatalf("structural fallback not applied")
	}
}

func TestLintTree(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("catalog.json", `{"id":"root","description":"d","links":[]}`)
	write("wi-2017/catalog.json", `{"id":"wi-2017","extent":{"spatial":[-91,39,-89,41]},"links":[]}`)
	write("wi-2017/broken.json", `{"type":"Feature","id":"i"}`)
	write("notes.txt", "ignored")

	l, err := NewSchemaLinter("")
	if err != nil {
		t.Fatal(err)
	}

	err = LintTree(root, l)
	if err == nil {
		t.Fatalf("expected failures for broken.json")
	}
	msg := err.Error()
	if !strings.Contains(msg, "broken.json") {
		t.Fatalf("failure not attributed to file: %v", msg)
	}
	if strings.Contains(msg, "catalog.json") {
		t.Fatalf("valid documents reported: %v", msg)
	}
}
