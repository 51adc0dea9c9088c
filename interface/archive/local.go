package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// LocalArchive implements Client for a local mirror of the archive
type LocalArchive struct {
	root string
}

// NewLocalArchive creates a client of a local directory
func NewLocalArchive(root string) *LocalArchive {
	return &LocalArchive{root: root}
}

// Name implements Client
func (a *LocalArchive) Name() string {
	return "file://" + a.root
}

// List implements Client
func (a *LocalArchive) List(ctx context.Context, prefix string) ([]Entry, error) {
	prefix = normalizePrefix(prefix)
	files, err := os.ReadDir(filepath.Join(a.root, filepath.FromSlash(prefix)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("LocalArchive.List[%s]: %w", prefix, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		if f.IsDir() {
			entries = append(entries, Entry{Key: prefix + f.Name() + "/", IsDir: true})
			continue
		}
		var size int64
		if info, err := f.Info(); err == nil {
			size = info.Size()
		}
		entries = append(entries, Entry{Key: prefix + f.Name(), Size: size})
	}
	return entries, nil
}

// Get implements Client
func (a *LocalArchive) Get(ctx context.Context, keys []string, destDir string) error {
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := copyFile(filepath.Join(a.root, filepath.FromSlash(key)), filepath.Join(destDir, path.Base(key))); err != nil {
			return fmt.Errorf("LocalArchive.Get[%s]: %w", key, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
