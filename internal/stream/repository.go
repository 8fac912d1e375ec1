package stream

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/timelock/internal/asset"
	"github.com/congo-pay/timelock/internal/custody"
)

// Repository persists streams. Insert and Update hold the record for the whole
// callback, so each call is one atomic read-modify-write.
type Repository interface {
	// Insert allocates the next id of ns and stores the stream build returns.
	Insert(ctx context.Context, ns custody.Namespace, build func(ctx context.Context, id uint64) (Stream, error)) (Stream, error)
	// Update applies fn to the stream under key. keep=false destroys the record.
	Update(ctx context.Context, key custody.Key, fn func(ctx context.Context, s *Stream) (keep bool, err error)) (Stream, error)
	Get(ctx context.Context, key custody.Key) (Stream, error)
	ListByOwner(ctx context.Context, owner string) ([]Stream, error)
}

const recordTable = "streams"

// PostgresRepository stores streams in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `owner, kind, id, beneficiary, total_amount, withdrawn_amount,
        start_time, end_time, cliff_time, active, last_pause_time, flow_rate,
        escrow_kind, escrow_balance, escrow_store, escrow_capability, created_at`

// Insert allocates an id and stores the stream inside one transaction.
func (r *PostgresRepository) Insert(ctx context.Context, ns custody.Namespace, build func(ctx context.Context, id uint64) (Stream, error)) (Stream, error) {
	var out Stream
	err := custody.InTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		id, err := custody.NextID(ctx, tx, recordTable, ns)
		if err != nil {
			return err
		}
		s, err := build(ctx, id)
		if err != nil {
			return err
		}
		snap := asset.Snap(s.Escrow)
		_, err = tx.Exec(ctx, `INSERT INTO streams (`+selectColumns+`)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			s.Owner, string(s.Kind), int64(s.ID), s.Beneficiary, int64(s.TotalAmount), int64(s.WithdrawnAmount),
			s.StartTime, s.EndTime, s.CliffTime, s.Active, s.LastPauseTime, s.FlowRate.String(),
			string(snap.Kind), int64(snap.Balance), snap.Store, snap.Capability, s.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert stream: %w", err)
		}
		out = s
		return nil
	})
	return out, err
}

// Update locks the row, applies fn and writes back or deletes the record.
func (r *PostgresRepository) Update(ctx context.Context, key custody.Key, fn func(ctx context.Context, s *Stream) (bool, error)) (Stream, error) {
	var out Stream
	err := custody.InTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM streams
            WHERE owner = $1 AND kind = $2 AND id = $3 FOR UPDATE`, key.Owner, string(key.Kind), int64(key.ID))
		s, err := scanStream(row)
		if err != nil {
			return err
		}
		keep, err := fn(ctx, &s)
		if err != nil {
			return err
		}
		if !keep {
			if _, err := tx.Exec(ctx, `DELETE FROM streams WHERE owner = $1 AND kind = $2 AND id = $3`,
				key.Owner, string(key.Kind), int64(key.ID)); err != nil {
				return fmt.Errorf("delete stream: %w", err)
			}
			out = s
			return nil
		}
		snap := asset.Snap(s.Escrow)
		_, err = tx.Exec(ctx, `UPDATE streams SET withdrawn_amount = $4, start_time = $5, end_time = $6,
            cliff_time = $7, active = $8, last_pause_time = $9, escrow_balance = $10
            WHERE owner = $1 AND kind = $2 AND id = $3`,
			key.Owner, string(key.Kind), int64(key.ID), int64(s.WithdrawnAmount), s.StartTime, s.EndTime,
			s.CliffTime, s.Active, s.LastPauseTime, int64(snap.Balance))
		if err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		out = s
		return nil
	})
	return out, err
}

// Get fetches a stream by key.
func (r *PostgresRepository) Get(ctx context.Context, key custody.Key) (Stream, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM streams
        WHERE owner = $1 AND kind = $2 AND id = $3`, key.Owner, string(key.Kind), int64(key.ID))
	return scanStream(row)
}

// ListByOwner returns every live stream funded by owner.
func (r *PostgresRepository) ListByOwner(ctx context.Context, owner string) ([]Stream, error) {
	rows, err := r.db.Query(ctx, `SELECT `+selectColumns+` FROM streams
        WHERE owner = $1 ORDER BY created_at, kind, id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Stream
	for rows.Next() {
		s, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanStream(row pgx.Row) (Stream, error) {
	var (
		s                       Stream
		kind, rate, escrowKind  string
		id, total, withdrawn    int64
		escrowBalance           int64
		escrowStore, capability string
		createdAt               time.Time
	)
	err := row.Scan(&s.Owner, &kind, &id, &s.Beneficiary, &total, &withdrawn,
		&s.StartTime, &s.EndTime, &s.CliffTime, &s.Active, &s.LastPauseTime, &rate,
		&escrowKind, &escrowBalance, &escrowStore, &capability, &createdAt)
	if err != nil {
		if custody.IsNoRows(err) {
			return Stream{}, custody.ErrStreamNotFound
		}
		return Stream{}, err
	}
	s.Kind = asset.Kind(kind)
	s.ID = uint64(id)
	s.TotalAmount = uint64(total)
	s.WithdrawnAmount = uint64(withdrawn)
	s.CreatedAt = createdAt.UTC()
	if s.FlowRate, err = sdkmath.ParseUint(rate); err != nil {
		return Stream{}, fmt.Errorf("stream %s flow rate: %w", s.Key, err)
	}
	s.Escrow, err = asset.Restore(asset.Snapshot{
		Kind:       asset.Kind(escrowKind),
		Balance:    uint64(escrowBalance),
		Store:      escrowStore,
		Capability: capability,
	})
	if err != nil {
		return Stream{}, err
	}
	return s, nil
}
