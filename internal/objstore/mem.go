package objstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Mem is an in-memory Store used by tests across packages. Listing returns
// keys in lexicographic order in pages of PageSize (unbounded when zero),
// mirroring the marker semantics of the real listing API.
type Mem struct {
	Objects  map[string]map[string][]byte // bucket -> key -> data
	PageSize int
	// ForceNextMarker injects a server-supplied continuation field into
	// truncated pages, for exercising the pagination contract check.
	ForceNextMarker bool

	ListCalls int
}

func NewMem() *Mem {
	return &Mem{Objects: map[string]map[string][]byte{}}
}

func (m *Mem) PutBytes(bucket, key string, data []byte) {
	if m.Objects[bucket] == nil {
		m.Objects[bucket] = map[string][]byte{}
	}
	m.Objects[bucket][key] = data
}

func (m *Mem) ListPage(ctx context.Context, bucket, prefix, marker string) (Page, error) {
	m.ListCalls++
	var keys []string
	for k := range m.Objects[bucket] {
		if strings.HasPrefix(k, prefix) && k > marker {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	page := Page{Keys: keys}
	if m.PageSize > 0 && len(keys) > m.PageSize {
		page.Keys = keys[:m.PageSize]
		page.IsTruncated = true
		if m.ForceNextMarker {
			page.NextMarker = page.Keys[len(page.Keys)-1]
		}
	}
	return page, nil
}

func (m *Mem) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	data, ok := m.Objects[bucket][key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
	}
	return data, nil
}

func (m *Mem) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	m.PutBytes(bucket, key, data)
	return nil
}

func (m *Mem) Download(ctx context.Context, bucket, key, path string) error {
	data, err := m.Get(ctx, bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (m *Mem) Upload(ctx context.Context, bucket, key, path, contentType string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m.PutBytes(bucket, key, data)
	return nil
}

var _ Store = (*Mem)(nil)
