// Package objstore abstracts the object-storage operations the pipeline
// needs: marker-paginated key listing, single-object transfer, and a typed
// not-found condition so callers can tell absence from real failures.
package objstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/stac-tools/stacgen/internal/observability"
)

// ErrNotFound reports that the requested object does not exist. Callers
// must treat every other error as a genuine failure, never as absence.
var ErrNotFound = errors.New("object not found")

// Page is one bounded page of a key listing.
type Page struct {
	Keys        []string
	IsTruncated bool
	// NextMarker is a server-supplied continuation field. The listing
	// protocol used here does not provide one (no delimiter is set), so a
	// non-empty value means the response shape is not the one we support.
	NextMarker string
}

type Store interface {
	// ListPage returns one page of keys under prefix, starting after marker.
	ListPage(ctx context.Context, bucket, prefix, marker string) (Page, error)

	// Get returns the full contents of an object, ErrNotFound if absent.
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Put writes data as the object's new contents.
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error

	// Download copies an object to a local file.
	Download(ctx context.Context, bucket, key, path string) error

	// Upload copies a local file to an object.
	Upload(ctx context.Context, bucket, key, path, contentType string) error
}

// ListKeys drains every page of a listing. Continuation uses the last key
// of the previous page as the resumption marker. A page that carries a
// server-supplied NextMarker violates the pagination contract and aborts
// the listing.
func ListKeys(ctx context.Context, s Store, bucket, prefix string) ([]string, error) {
	var keys []string
	marker := ""
	for {
		page, err := s.ListPage(ctx, bucket, prefix, marker)
		if err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
		}
		observability.ObserveListPage()
		if page.NextMarker != "" {
			return nil, fmt.Errorf("list %s/%s: unexpected NextMarker %q in response", bucket, prefix, page.NextMarker)
		}
		keys = append(keys, page.Keys...)
		if !page.IsTruncated {
			return keys, nil
		}
		if len(page.Keys) == 0 {
			return nil, fmt.Errorf("list %s/%s: truncated response with no keys", bucket, prefix)
		}
		marker = page.Keys[len(page.Keys)-1]
	}
}
