// Package jsonfile implements db.History with a single JSON document {run time: {region: score}}
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	db "github.com/airbusgeo/goes-ingester/interface/database"
)

// DefaultFileName is the name of the history file
const DefaultFileName = "cloud.json"

// History implements db.History
type History struct {
	path string
	mu   sync.Mutex
}

var _ db.History = (*History)(nil)

// New creates a history stored in path
func New(path string) *History {
	return &History{path: path}
}

// Path returns the path of the history file
func (h *History) Path() string {
	return h.path
}

func (h *History) read() (map[string]db.CloudScores, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]db.CloudScores{}, nil
		}
		return nil, err
	}
	doc := map[string]db.CloudScores{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", h.path, err)
	}
	return doc, nil
}

// Append implements db.History
func (h *History) Append(ctx context.Context, runAt time.Time, scores db.CloudScores) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	doc, err := h.read()
	if err != nil {
		return fmt.Errorf("Append.%w", err)
	}
	if scores == nil {
		scores = db.CloudScores{}
	}
	doc[runAt.UTC().Format(time.RFC3339Nano)] = scores

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("Append.Marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0766); err != nil {
		return fmt.Errorf("Append.MkdirAll: %w", err)
	}
	tmp := h.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("Append.WriteFile: %w", err)
	}
	if err := os.Rename(tmp, h.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("Append.Rename: %w", err)
	}
	return nil
}

// Load implements db.History
func (h *History) Load(ctx context.Context) ([]db.HistoryEntry, error) {
	h.mu.Lock()
	doc, err := h.read()
	h.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("Load.%w", err)
	}
	entries := make([]db.HistoryEntry, 0, len(doc))
	for k, scores := range doc {
		t, err := time.Parse(time.RFC3339Nano, k)
		if err != nil {
			return nil, fmt.Errorf("Load: invalid run time %s: %w", k, err)
		}
		entries = append(entries, db.HistoryEntry{RunAt: t, Scores: scores})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RunAt.Before(entries[j].RunAt) })
	return entries, nil
}

// Last implements db.History
func (h *History) Last(ctx context.Context) (db.HistoryEntry, error) {
	entries, err := h.Load(ctx)
	if err != nil {
		return db.HistoryEntry{}, fmt.Errorf("Last.%w", err)
	}
	if len(entries) == 0 {
		return db.HistoryEntry{}, db.ErrNotFound{Type: "run", ID: "last"}
	}
	return entries[len(entries)-1], nil
}
