// Package store is the persistence layer: one file per table, every method
// running on either the pool or an open transaction.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a lookup by id matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a compare-and-swap update matched no
	// row because the stored state changed since it was read.
	ErrConflict = errors.New("conflict")
	// ErrDuplicate is returned when an insert or update violates a UNIQUE
	// constraint.
	ErrDuplicate = errors.New("duplicate")
)

// dbtx is the subset of *sql.DB and *sql.Tx the queries need.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// Queries holds every query method. It is bound either to the pool
// (Store.Queries) or to a transaction (inside InTx).
type Queries struct {
	q dbtx
}

// Store owns the connection pool.
type Store struct {
	*Queries
	db *sql.DB
}

// New wraps an open database.
func New(db *sql.DB) *Store {
	return &Store{Queries: &Queries{q: db}, db: db}
}

// DB returns the underlying pool.
func (s *Store) DB() *sql.DB { return s.db }

// InTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if err := fn(&Queries{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE")
}

// execOne runs an UPDATE that must touch exactly one row. A zero row count
// becomes miss.
func (q *Queries) execOne(ctx context.Context, miss error, query string, args ...any) error {
	res, err := q.q.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return miss
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Every value passed here is a plain struct, slice or map.
		panic(fmt.Sprintf("store: marshal %T: %v", v, err))
	}
	return string(b)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// maxPage keeps (page-1)*limit far from overflowing.
const maxPage = 1_000_000

// pageBounds normalises page/limit query values.
func pageBounds(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit, (page - 1) * limit
}

// PageBounds exposes the normalisation to callers building responses.
func PageBounds(page, limit int) (int, int) {
	p, l, _ := pageBounds(page, limit)
	return p, l
}
