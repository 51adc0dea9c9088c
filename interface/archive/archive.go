package archive

import (
	"context"
	"path"
	"strings"
)

// Entry is an element of a listing: a sub-prefix or an object
type Entry struct {
	Key   string // Full key of the object or the prefix (prefixes end with '/')
	IsDir bool
	Size  int64
}

// Name returns the base name of the entry
func (e Entry) Name() string {
	return path.Base(strings.TrimSuffix(e.Key, "/"))
}

// Client of a remote archive organized as {product}/{year}/{day}/{hour}/{granule}
// A rate-limited request must return an error for which service.Throttled() is true.
type Client interface {
	// Name of the archive
	Name() string
	// List returns the direct children of the prefix, in listing order
	List(ctx context.Context, prefix string) ([]Entry, error)
	// Get downloads the objects into destDir (named after the base name of the key)
	Get(ctx context.Context, keys []string, destDir string) error
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimLeft(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}
