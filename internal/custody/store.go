package custody

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/timelock/internal/ledger"
)

// InTx runs fn inside a PostgreSQL transaction. The context passed to fn
// carries the transaction, so ledger postings made through it commit or roll
// back together with the record changes.
func InTx(ctx context.Context, db *pgxpool.Pool, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ledger.WithTx(ctx, tx), tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// NextID allocates the next record id of ns for table inside tx. A rolled
// back transaction releases the id again.
func NextID(ctx context.Context, tx pgx.Tx, table string, ns Namespace) (uint64, error) {
	const query = `
        INSERT INTO record_counters (record_table, owner, kind, next_id)
        VALUES ($1, $2, $3, 1)
        ON CONFLICT (record_table, owner, kind)
        DO UPDATE SET next_id = record_counters.next_id + 1
        RETURNING next_id - 1`
	var id int64
	if err := tx.QueryRow(ctx, query, table, ns.Owner, string(ns.Kind)).Scan(&id); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// IsNoRows reports whether err signals a missing row.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
