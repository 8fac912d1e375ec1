package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists ledger entries in PostgreSQL ensuring double-entry balance.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

type txKey struct{}

// WithTx returns a context carrying tx. Ledger calls made with it join tx as a
// savepoint instead of opening their own transaction.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

func (l *PostgresLedger) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return l.db
}

// EnsureAccount guarantees an account exists for the provided code.
func (l *PostgresLedger) EnsureAccount(ctx context.Context, code string) error {
	_, err := l.conn(ctx).Exec(ctx, `INSERT INTO accounts (id, code) VALUES ($1, $2)
        ON CONFLICT (code) DO NOTHING`, uuid.New(), code)
	return err
}

// Balance returns the summed balance for the specified account code.
func (l *PostgresLedger) Balance(ctx context.Context, code string) (int64, error) {
	const query = `
        SELECT a.id, COALESCE(SUM(e.amount), 0)
        FROM accounts a
        LEFT JOIN entries e ON e.account_id = a.id
        WHERE a.code = $1
        GROUP BY a.id`
	var (
		id      uuid.UUID
		balance int64
	)
	if err := l.conn(ctx).QueryRow(ctx, query, code).Scan(&id, &balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("account %s: %w", code, ErrAccountNotFound)
		}
		return 0, err
	}
	return balance, nil
}

// Post records a balanced multi-leg posting inside a single transaction.
func (l *PostgresLedger) Post(ctx context.Context, kind, clientTxID string, entries []Entry) (PostingResult, error) {
	legs, err := netEntries(entries)
	if err != nil {
		return PostingResult{}, err
	}

	tx, err := l.conn(ctx).Begin(ctx)
	if err != nil {
		return PostingResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	// Lock in a stable order so concurrent postings touching the same accounts
	// cannot deadlock.
	codes := make([]string, 0, len(legs))
	for _, leg := range legs {
		codes = append(codes, leg.AccountCode)
	}
	sort.Strings(codes)
	ids := make(map[string]uuid.UUID, len(codes))
	for _, code := range codes {
		id, err := accountIDForCode(ctx, tx, code)
		if err != nil {
			return PostingResult{}, err
		}
		ids[code] = id
	}

	const existingTxQuery = `SELECT id FROM transactions WHERE client_tx_id = $1 AND kind = $2`
	var existingTxID uuid.UUID
	if err := tx.QueryRow(ctx, existingTxQuery, clientTxID, kind).Scan(&existingTxID); err == nil {
		balances, balErr := balancesFor(ctx, tx, ids)
		if balErr != nil {
			return PostingResult{}, balErr
		}
		return PostingResult{TransactionID: existingTxID.String(), Balances: balances}, ErrDuplicateTransaction
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return PostingResult{}, err
	}

	for _, leg := range legs {
		if leg.Amount >= 0 || IsSuspense(leg.AccountCode) {
			continue
		}
		balance, err := balanceForAccount(ctx, tx, ids[leg.AccountCode])
		if err != nil {
			return PostingResult{}, err
		}
		if balance+leg.Amount < 0 {
			return PostingResult{}, ErrInsufficientFunds
		}
	}

	txID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO transactions (id, client_tx_id, kind, status) VALUES ($1, $2, $3, $4)`, txID, clientTxID, kind, "completed"); err != nil {
		return PostingResult{}, err
	}
	for _, leg := range legs {
		if _, err := tx.Exec(ctx, `INSERT INTO entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4)`, uuid.New(), txID, ids[leg.AccountCode], leg.Amount); err != nil {
			return PostingResult{}, err
		}
	}

	balances, err := balancesFor(ctx, tx, ids)
	if err != nil {
		return PostingResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return PostingResult{}, err
	}

	return PostingResult{TransactionID: txID.String(), Balances: balances}, nil
}

// Transfer records a balanced posting between two accounts.
func (l *PostgresLedger) Transfer(ctx context.Context, fromCode, toCode, kind, clientTxID string, amount int64) (TransactionResult, error) {
	if amount <= 0 {
		return TransactionResult{}, fmt.Errorf("amount must be positive")
	}
	res, err := l.Post(ctx, kind, clientTxID, transferEntries(fromCode, toCode, amount))
	if err != nil && !errors.Is(err, ErrDuplicateTransaction) {
		return TransactionResult{}, err
	}
	return TransactionResult{
		TransactionID: res.TransactionID,
		FromBalance:   res.Balances[fromCode],
		ToBalance:     res.Balances[toCode],
	}, err
}

func accountIDForCode(ctx context.Context, tx pgx.Tx, code string) (uuid.UUID, error) {
	const query = `SELECT id FROM accounts WHERE code = $1 FOR UPDATE`
	var id uuid.UUID
	if err := tx.QueryRow(ctx, query, code).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("account %s: %w", code, ErrAccountNotFound)
		}
		return uuid.Nil, err
	}
	return id, nil
}

func balanceForAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM entries WHERE account_id = $1`
	var balance int64
	if err := tx.QueryRow(ctx, query, accountID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}

func balancesFor(ctx context.Context, tx pgx.Tx, ids map[string]uuid.UUID) (map[string]int64, error) {
	out := make(map[string]int64, len(ids))
	for code, id := range ids {
		balance, err := balanceForAccount(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		out[code] = balance
	}
	return out, nil
}
