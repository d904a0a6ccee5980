package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InvalidatedOrderStore implements domain.InvalidatedOrderStore using
// PostgreSQL. The (maker, order_hash) row is write-once: inserting an already
// present pair is a no-op, the flag never clears.
type InvalidatedOrderStore struct {
	pool *pgxpool.Pool
}

// NewInvalidatedOrderStore creates an InvalidatedOrderStore backed by the
// given connection pool.
func NewInvalidatedOrderStore(pool *pgxpool.Pool) *InvalidatedOrderStore {
	return &InvalidatedOrderStore{pool: pool}
}

// IsInvalidated reports whether the maker's order hash has been consumed.
func (s *InvalidatedOrderStore) IsInvalidated(ctx context.Context, maker common.Address, orderHash common.Hash) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM invalidated_orders WHERE maker = $1 AND order_hash = $2)`,
		maker.Hex(), orderHash.Hex(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check invalidated order: %w", err)
	}
	return exists, nil
}

// Invalidate marks the maker's order hash as consumed.
func (s *InvalidatedOrderStore) Invalidate(ctx context.Context, maker common.Address, orderHash common.Hash) error {
	const query = `
		INSERT INTO invalidated_orders (maker, order_hash)
		VALUES ($1, $2)
		ON CONFLICT (maker, order_hash) DO NOTHING`
	if _, err := s.pool.Exec(ctx, query, maker.Hex(), orderHash.Hex()); err != nil {
		return fmt.Errorf("postgres: invalidate order %s: %w", orderHash.Hex(), err)
	}
	return nil
}
