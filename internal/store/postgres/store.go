// Package postgres is the direct-Postgres store for self-hosted deployments:
// the same contract as the hosted service, spoken straight to the database.
package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MetaFacil/AppConecta/internal/store"
)

// Store implements the store interfaces over a shared connection pool.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// mapErr folds pgx errors into the store taxonomy.
func mapErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
