package pg

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	db "github.com/airbusgeo/goes-ingester/interface/database"
	"github.com/airbusgeo/goes-ingester/service"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// pgInterface allows to use either a sql.DB or a sql.Tx
type pgInterface interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Backend implements db.History
type Backend struct {
	pgInterface
}

// BackendDB is a Backend holding the connection
type BackendDB struct {
	*sql.DB
	Backend
}

var _ db.History = Backend{}

/* http://www.postgresql.org/docs/9.3/static/errcodes-appendix.html */
const (
	noError           = "00000"
	connectionFailure = "08006"
	uniqueViolation   = "23505"

	notPqError = "X"
)

func pqErrorCode(err error) pq.ErrorCode {
	if err == nil {
		return noError
	}
	var pqerr *pq.Error
	if errors.As(err, &pqerr) {
		return pqerr.Code
	}
	return notPqError
}

// wrapError makes connection failures temporary
func wrapError(err error) error {
	if pqErrorCode(err) == connectionFailure {
		return service.MakeTemporary(err)
	}
	return err
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// New creates a new backend using Postgres
func New(ctx context.Context, dbConnection string) (*BackendDB, error) {
	db, err := sql.Open("postgres", dbConnection)
	if err != nil {
		return nil, fmt.Errorf("sql.open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sql.ping: %w", wrapError(err))
	}
	return &BackendDB{db, Backend{pgInterface: db}}, nil
}

// CreateSchema creates the tables if they do not exist
func (b Backend) CreateSchema(ctx context.Context) error {
	if _, err := b.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("CreateSchema: %w", wrapError(err))
	}
	return nil
}

// Append implements db.History
func (b Backend) Append(ctx context.Context, runAt time.Time, scores db.CloudScores) error {
	if len(scores) == 0 {
		return nil
	}
	query := psql.Insert("cloud_score").Columns("run_at", "region_id", "score")
	for region, score := range scores {
		query = query.Values(runAt.UTC(), region, score)
	}
	query = query.Suffix("ON CONFLICT (run_at, region_id) DO UPDATE SET score = EXCLUDED.score")
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("Append.ToSql: %w", err)
	}
	if _, err := b.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("Append.ExecContext: %w", wrapError(err))
	}
	return nil
}

func (b Backend) load(ctx context.Context, query sq.SelectBuilder) ([]db.HistoryEntry, error) {
	sqlStr, args, err := query.OrderBy("run_at", "region_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("ToSql: %w", err)
	}
	rows, err := b.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", wrapError(err))
	}
	defer rows.Close()

	var entries []db.HistoryEntry
	for rows.Next() {
		var (
			runAt  time.Time
			region string
			score  float64
		)
		if err := rows.Scan(&runAt, &region, &score); err != nil {
			return nil, fmt.Errorf("Scan: %w", err)
		}
		if n := len(entries); n == 0 || !entries[n-1].RunAt.Equal(runAt) {
			entries = append(entries, db.HistoryEntry{RunAt: runAt.UTC(), Scores: db.CloudScores{}})
		}
		entries[len(entries)-1].Scores[region] = score
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.err: %w", err)
	}
	return entries, nil
}

// Load implements db.History
func (b Backend) Load(ctx context.Context) ([]db.HistoryEntry, error) {
	entries, err := b.load(ctx, psql.Select("run_at", "region_id", "score").From("cloud_score"))
	if err != nil {
		return nil, fmt.Errorf("Load.%w", err)
	}
	return entries, nil
}

// Last implements db.History
func (b Backend) Last(ctx context.Context) (db.HistoryEntry, error) {
	entries, err := b.load(ctx, psql.Select("run_at", "region_id", "score").From("cloud_score").
		Where("run_at = (SELECT max(run_at) FROM cloud_score)"))
	if err != nil {
		return db.HistoryEntry{}, fmt.Errorf("Last.%w", err)
	}
	if len(entries) == 0 {
		return db.HistoryEntry{}, db.ErrNotFound{Type: "run", ID: "last"}
	}
	return entries[0], nil
}
