package downloader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/airbusgeo/goes-ingester/service"
)

// StagingDir is the name of the scratch directory, under the root
const StagingDir = "tmp"

// Staging is a scratch directory {root}/tmp holding the granules of a run, organized by {day}/{hour}.
// The owner must Release it on every exit path.
type Staging struct {
	root     string
	mu       sync.Mutex
	dirs     map[[2]int]string
	released bool
}

// NewStaging creates the staging directory {root}/tmp
func NewStaging(root string) (*Staging, error) {
	dir := filepath.Join(root, StagingDir)
	if err := os.MkdirAll(dir, 0766); err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("NewStaging: make directory %s: %w", dir, err))
	}
	return &Staging{root: dir, dirs: map[[2]int]string{}}, nil
}

// Root returns the path of the staging directory
func (s *Staging) Root() string {
	return s.root
}

// Dir returns the directory {root}/tmp/{day}/{hour}, creating it if needed. Safe for concurrent use.
func (s *Staging) Dir(day, hour int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return "", fmt.Errorf("Staging.Dir: %s already released", s.root)
	}
	k := [2]int{day, hour}
	if d, ok := s.dirs[k]; ok {
		return d, nil
	}
	d := filepath.Join(s.root, strconv.Itoa(day), strconv.Itoa(hour))
	if err := os.MkdirAll(d, 0766); err != nil {
		return "", service.MakeTemporary(fmt.Errorf("Staging.Dir: make directory %s: %w", d, err))
	}
	s.dirs[k] = d
	return d, nil
}

// Files returns the sorted paths of the files staged for the day and hour
func (s *Staging) Files(day, hour int) ([]string, error) {
	s.mu.Lock()
	d, ok := s.dirs[[2]int{day, hour}]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	entries, err := os.ReadDir(d)
	if err != nil {
		return nil, fmt.Errorf("Staging.Files: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, filepath.Join(d, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Release removes the whole staging tree. Subsequent calls are no-op.
func (s *Staging) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	s.dirs = nil
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("Staging.Release: %w", err)
	}
	return nil
}
