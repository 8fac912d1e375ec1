package link

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/timelock/internal/asset"
	"github.com/congo-pay/timelock/internal/custody"
)

// Repository persists link transfers keyed by (sender, commitment).
type Repository interface {
	// Insert stores what build returns under key, failing with
	// custody.ErrDuplicateCommitment when key is taken.
	Insert(ctx context.Context, key Key, build func(ctx context.Context) (Transfer, error)) (Transfer, error)
	// Update applies fn to the transfer under key. keep=false destroys the record.
	Update(ctx context.Context, key Key, fn func(ctx context.Context, t *Transfer) (keep bool, err error)) (Transfer, error)
	Get(ctx context.Context, key Key) (Transfer, error)
	ListBySender(ctx context.Context, sender string) ([]Transfer, error)
}

type memoryRepository struct {
	table *custody.Table[Key, Transfer]
}

// NewMemoryRepository constructs an in-memory repository for tests and development.
func NewMemoryRepository() Repository {
	return &memoryRepository{table: custody.NewTable[Key, Transfer](Transfer.Clone)}
}

func (r *memoryRepository) Insert(ctx context.Context, key Key, build func(ctx context.Context) (Transfer, error)) (Transfer, error) {
	t, err := r.table.Put(key, func() (Transfer, error) { return build(ctx) })
	if errors.Is(err, custody.ErrRecordExists) {
		return Transfer{}, custody.ErrDuplicateCommitment
	}
	return t, err
}

func (r *memoryRepository) Update(ctx context.Context, key Key, fn func(ctx context.Context, t *Transfer) (bool, error)) (Transfer, error) {
	t, err := r.table.Update(key, func(t *Transfer) (bool, error) { return fn(ctx, t) })
	return t, notFound(err)
}

func (r *memoryRepository) Get(_ context.Context, key Key) (Transfer, error) {
	t, err := r.table.Get(key)
	return t, notFound(err)
}

func (r *memoryRepository) ListBySender(_ context.Context, sender string) ([]Transfer, error) {
	return r.table.Filter(func(t Transfer) bool { return t.Sender == sender }), nil
}

func notFound(err error) error {
	if errors.Is(err, custody.ErrNoRecord) {
		return custody.ErrLinkNotFound
	}
	return err
}

// PostgresRepository stores link transfers in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `sender, commitment, id, kind, amount, created_at, expires_at,
        claimed, claimer, escrow_kind, escrow_balance, escrow_store, escrow_capability`

// Insert runs build and stores its transfer in one transaction. A second
// insert racing on the same key loses on the primary key and rolls back its
// escrow withdrawal.
func (r *PostgresRepository) Insert(ctx context.Context, key Key, build func(ctx context.Context) (Transfer, error)) (Transfer, error) {
	var out Transfer
	err := custody.InTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM links WHERE sender = $1 AND commitment = $2)`,
			key.Sender, key.Commitment[:]).Scan(&exists)
		if err != nil {
			return err
		}
		if exists {
			return custody.ErrDuplicateCommitment
		}
		t, err := build(ctx)
		if err != nil {
			return err
		}
		snap := asset.Snap(t.Escrow)
		_, err = tx.Exec(ctx, `INSERT INTO links (`+selectColumns+`)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			t.Sender, t.Commitment[:], t.ID, string(t.Kind), int64(t.Amount), t.CreatedAt, t.ExpiresAt,
			t.Claimed, t.Claimer, string(snap.Kind), int64(snap.Balance), snap.Store, snap.Capability)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return custody.ErrDuplicateCommitment
			}
			return fmt.Errorf("insert link: %w", err)
		}
		out = t
		return nil
	})
	return out, err
}

// Update locks the row, applies fn and writes back or deletes the record.
func (r *PostgresRepository) Update(ctx context.Context, key Key, fn func(ctx context.Context, t *Transfer) (bool, error)) (Transfer, error) {
	var out Transfer
	err := custody.InTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM links
            WHERE sender = $1 AND commitment = $2 FOR UPDATE`, key.Sender, key.Commitment[:])
		t, err := scanTransfer(row)
		if err != nil {
			return err
		}
		keep, err := fn(ctx, &t)
		if err != nil {
			return err
		}
		if keep {
			_, err = tx.Exec(ctx, `UPDATE links SET claimed = $3, claimer = $4, escrow_balance = $5
                WHERE sender = $1 AND commitment = $2`,
				key.Sender, key.Commitment[:], t.Claimed, t.Claimer, int64(asset.Snap(t.Escrow).Balance))
		} else {
			_, err = tx.Exec(ctx, `DELETE FROM links WHERE sender = $1 AND commitment = $2`, key.Sender, key.Commitment[:])
		}
		if err != nil {
			return fmt.Errorf("write link: %w", err)
		}
		out = t
		return nil
	})
	return out, err
}

// Get fetches a link by key.
func (r *PostgresRepository) Get(ctx context.Context, key Key) (Transfer, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM links
        WHERE sender = $1 AND commitment = $2`, key.Sender, key.Commitment[:])
	return scanTransfer(row)
}

// ListBySender returns every link of sender, claimed tombstones included.
func (r *PostgresRepository) ListBySender(ctx context.Context, sender string) ([]Transfer, error) {
	rows, err := r.db.Query(ctx, `SELECT `+selectColumns+` FROM links
        WHERE sender = $1 ORDER BY created_at, id`, sender)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransfer(row pgx.Row) (Transfer, error) {
	var (
		t                             Transfer
		commitment                    []byte
		id                            uuid.UUID
		kind, escrowKind              string
		amount, escrowBalance         int64
		escrowStore, escrowCapability string
	)
	err := row.Scan(&t.Sender, &commitment, &id, &kind, &amount, &t.CreatedAt, &t.ExpiresAt,
		&t.Claimed, &t.Claimer, &escrowKind, &escrowBalance, &escrowStore, &escrowCapability)
	if err != nil {
		if custody.IsNoRows(err) {
			return Transfer{}, custody.ErrLinkNotFound
		}
		return Transfer{}, err
	}
	if t.Commitment, err = CommitmentFromBytes(commitment); err != nil {
		return Transfer{}, err
	}
	t.ID = id
	t.Kind = asset.Kind(kind)
	t.Amount = uint64(amount)
	t.Escrow, err = asset.Restore(asset.Snapshot{
		Kind:       asset.Kind(escrowKind),
		Balance:    uint64(escrowBalance),
		Store:      escrowStore,
		Capability: escrowCapability,
	})
	if err != nil {
		return Transfer{}, err
	}
	return t, nil
}
