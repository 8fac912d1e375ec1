package vesting

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/timelock/internal/asset"
	"github.com/congo-pay/timelock/internal/custody"
)

// Repository persists vesting schedules with atomic read-modify-write per key.
type Repository interface {
	Insert(ctx context.Context, ns custody.Namespace, build func(ctx context.Context, id uint64) (Schedule, error)) (Schedule, error)
	// Update applies fn to the schedule under key. keep=false destroys the record.
	Update(ctx context.Context, key custody.Key, fn func(ctx context.Context, v *Schedule) (keep bool, err error)) (Schedule, error)
	Get(ctx context.Context, key custody.Key) (Schedule, error)
	ListByOwner(ctx context.Context, owner string) ([]Schedule, error)
}

const recordTable = "vesting_schedules"

// PostgresRepository stores vesting schedules in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `owner, kind, id, beneficiary, total_amount, withdrawn_amount,
        start_time, end_time, cliff_time, period_duration, num_periods, amount_per_period,
        escrow_kind, escrow_balance, escrow_store, escrow_capability, created_at`

// Insert allocates an id and stores the schedule inside one transaction.
func (r *PostgresRepository) Insert(ctx context.Context, ns custody.Namespace, build func(ctx context.Context, id uint64) (Schedule, error)) (Schedule, error) {
	var out Schedule
	err := custody.InTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		id, err := custody.NextID(ctx, tx, recordTable, ns)
		if err != nil {
			return err
		}
		v, err := build(ctx, id)
		if err != nil {
			return err
		}
		snap := asset.Snap(v.Escrow)
		_, err = tx.Exec(ctx, `INSERT INTO vesting_schedules (`+selectColumns+`)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			v.Owner, string(v.Kind), int64(v.ID), v.Beneficiary, int64(v.TotalAmount), int64(v.WithdrawnAmount),
			v.StartTime, v.EndTime, v.CliffTime, int64(v.PeriodDuration), int64(v.NumPeriods), int64(v.AmountPerPeriod),
			string(snap.Kind), int64(snap.Balance), snap.Store, snap.Capability, v.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert vesting schedule: %w", err)
		}
		out = v
		return nil
	})
	return out, err
}

// Update locks the row, applies fn and writes back or deletes the record.
func (r *PostgresRepository) Update(ctx context.Context, key custody.Key, fn func(ctx context.Context, v *Schedule) (bool, error)) (Schedule, error) {
	var out Schedule
	err := custody.InTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM vesting_schedules
            WHERE owner = $1 AND kind = $2 AND id = $3 FOR UPDATE`, key.Owner, string(key.Kind), int64(key.ID))
		v, err := scanSchedule(row)
		if err != nil {
			return err
		}
		keep, err := fn(ctx, &v)
		if err != nil {
			return err
		}
		if keep {
			_, err = tx.Exec(ctx, `UPDATE vesting_schedules SET withdrawn_amount = $4, escrow_balance = $5
                WHERE owner = $1 AND kind = $2 AND id = $3`,
				key.Owner, string(key.Kind), int64(key.ID), int64(v.WithdrawnAmount), int64(asset.Snap(v.Escrow).Balance))
		} else {
			_, err = tx.Exec(ctx, `DELETE FROM vesting_schedules WHERE owner = $1 AND kind = $2 AND id = $3`,
				key.Owner, string(key.Kind), int64(key.ID))
		}
		if err != nil {
			return fmt.Errorf("write vesting schedule: %w", err)
		}
		out = v
		return nil
	})
	return out, err
}

// Get fetches a schedule by key.
func (r *PostgresRepository) Get(ctx context.Context, key custody.Key) (Schedule, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM vesting_schedules
        WHERE owner = $1 AND kind = $2 AND id = $3`, key.Owner, string(key.Kind), int64(key.ID))
	return scanSchedule(row)
}

// ListByOwner returns every live schedule funded by owner.
func (r *PostgresRepository) ListByOwner(ctx context.Context, owner string) ([]Schedule, error) {
	rows, err := r.db.Query(ctx, `SELECT `+selectColumns+` FROM vesting_schedules
        WHERE owner = $1 ORDER BY created_at, kind, id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		v, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanSchedule(row pgx.Row) (Schedule, error) {
	var (
		v                             Schedule
		kind, escrowKind              string
		id, total, withdrawn          int64
		period, periods, perPeriod    int64
		escrowBalance                 int64
		escrowStore, escrowCapability string
		createdAt                     time.Time
	)
	err := row.Scan(&v.Owner, &kind, &id, &v.Beneficiary, &total, &withdrawn,
		&v.StartTime, &v.EndTime, &v.CliffTime, &period, &periods, &perPeriod,
		&escrowKind, &escrowBalance, &escrowStore, &escrowCapability, &createdAt)
	if err != nil {
		if custody.IsNoRows(err) {
			return Schedule{}, custody.ErrScheduleNotFound
		}
		return Schedule{}, err
	}
	v.Kind = asset.Kind(kind)
	v.ID = uint64(id)
	v.TotalAmount = uint64(total)
	v.WithdrawnAmount = uint64(withdrawn)
	v.PeriodDuration = uint64(period)
	v.NumPeriods = uint64(periods)
	v.AmountPerPeriod = uint64(perPeriod)
	v.Active = true
	v.CreatedAt = createdAt.UTC()
	v.Escrow, err = asset.Restore(asset.Snapshot{
		Kind:       asset.Kind(escrowKind),
		Balance:    uint64(escrowBalance),
		Store:      escrowStore,
		Capability: escrowCapability,
	})
	if err != nil {
		return Schedule{}, err
	}
	return v, nil
}
