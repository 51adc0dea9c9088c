package db

import (
	"context"
	"fmt"
	"time"
)

// ErrNotFound is returned when an entry does not exist
type ErrNotFound struct {
	Type, ID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Type, e.ID)
}

// CloudScores are the clear-sky scores of the regions for one run
type CloudScores map[string]float64

// HistoryEntry is the record of one run
type HistoryEntry struct {
	RunAt  time.Time
	Scores CloudScores
}

// History records the cloud scores of the successive runs
type History interface {
	// Append records the scores of a run. Previous runs are kept.
	Append(ctx context.Context, runAt time.Time, scores CloudScores) error
	// Load returns the runs, ordered by run time
	Load(ctx context.Context) ([]HistoryEntry, error)
	// Last returns the latest run
	// Raise ErrNotFound
	Last(ctx context.Context) (HistoryEntry, error)
}
