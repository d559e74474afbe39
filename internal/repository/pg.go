package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	pgUniqueViolation   = "23505"
	pgInvalidTextRepr   = "22P02"
	pgForeignKeyMissing = "23503"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return err != nil && pgCode(err) == pgUniqueViolation
}

// normalizeErr folds malformed identifiers into pgx.ErrNoRows so a garbage
// id in a URL reads as "not found" rather than a server error.
func normalizeErr(err error) error {
	switch pgCode(err) {
	case pgInvalidTextRepr, pgForeignKeyMissing:
		return pgx.ErrNoRows
	}
	return err
}

func normalizePage(limit, offset, def int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
