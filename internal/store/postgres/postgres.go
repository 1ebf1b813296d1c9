// Package postgres implements the store interfaces on top of a pgx pool.
package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/liamwears/reelstream/internal/store"
)

const uniqueViolation = "23505"

// New returns the three Postgres-backed stores sharing one pool
func New(pool *pgxpool.Pool) store.Store {
	return store.Store{
		Content: &ContentStore{db: pool},
		Users:   &UserStore{db: pool},
		History: &HistoryStore{db: pool},
	}
}

// translate maps driver errors onto the store sentinels
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return store.ErrDuplicate
	}
	return err
}
