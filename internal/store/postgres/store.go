// Package postgres implements the Local Store Adapter (C3) against a
// relational store via database/sql and the lib/pq driver.
package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/brightline-ops/bookcore/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store wraps a *sql.DB with the typed operations C3 exposes.
type Store struct {
	db *sql.DB
}

// New wraps an already-opened database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping verifies connectivity for the health check (C8).
func (s *Store) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

func toNullString(v string) sql.NullString {
	if strings.TrimSpace(v) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}
