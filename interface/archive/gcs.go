package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Public mirror of the GOES archive on Google Cloud Storage
const GOES16GSBucket = "gcp-public-data-goes-16"

// GSArchive implements Client for a Google Cloud Storage bucket
type GSArchive struct {
	client *storage.Client
	bucket string
}

// NewGSArchive creates a client of a GCS bucket. If anonymous, the requests are not authenticated (public buckets)
func NewGSArchive(ctx context.Context, bucket string, anonymous bool) (*GSArchive, error) {
	var opts []option.ClientOption
	if anonymous {
		opts = append(opts, option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGSArchive.NewClient: %w", err)
	}
	return &GSArchive{client: client, bucket: bucket}, nil
}

// Name implements Client
func (a *GSArchive) Name() string {
	return "gs://" + a.bucket
}

// List implements Client
func (a *GSArchive) List(ctx context.Context, prefix string) ([]Entry, error) {
	prefix = normalizePrefix(prefix)
	var entries []Entry
	it := a.client.Bucket(a.bucket).Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("GSArchive.List[%s/%s]: %w", a.bucket, prefix, err)
		}
		if attrs.Prefix != "" {
			entries = append(entries, Entry{Key: attrs.Prefix, IsDir: true})
		} else {
			entries = append(entries, Entry{Key: attrs.Name, Size: attrs.Size})
		}
	}
	return entries, nil
}

// Get implements Client
func (a *GSArchive) Get(ctx context.Context, keys []string, destDir string) error {
	for _, key := range keys {
		if err := a.download(ctx, key, filepath.Join(destDir, path.Base(key))); err != nil {
			return fmt.Errorf("GSArchive.%w", err)
		}
	}
	return nil
}

func (a *GSArchive) download(ctx context.Context, key, localPath string) error {
	r, err := a.client.Bucket(a.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("download[%s].NewReader: %w", key, err)
	}
	defer r.Close()
	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("download: failed to create file %s: %w", localPath, err)
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		os.Remove(localPath)
		return fmt.Errorf("download[%s].Copy: %w", key, err)
	}
	return file.Close()
}
