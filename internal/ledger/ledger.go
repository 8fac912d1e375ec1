package ledger

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrInsufficientFunds occurs when the source account lacks available balance
	// to cover a requested posting.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction indicates the provided client transaction identifier
	// already exists and therefore the operation should be treated as idempotent.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrUnbalanced is returned when the entries of a posting do not sum to zero.
	ErrUnbalanced = errors.New("posting does not balance")

	// ErrAccountNotFound is returned when a posting references an unknown account.
	ErrAccountNotFound = errors.New("account not found")
)

const (
	// TreasuryAccountCode is the suspense account that mints development top-ups.
	// Suspense accounts may carry a negative balance.
	TreasuryAccountCode = "suspense:treasury"

	suspensePrefix = "suspense:"
)

// Entry is one leg of a posting. Negative amounts debit the account.
type Entry struct {
	AccountCode string
	Amount      int64
}

// PostingResult captures the outcome of a ledger posting together with the
// post-commit balance of every touched account.
type PostingResult struct {
	TransactionID string
	Balances      map[string]int64
}

// TransactionResult captures the outcome of a two-account transfer.
type TransactionResult struct {
	TransactionID string
	FromBalance   int64
	ToBalance     int64
}

// Ledger defines the contract implemented by ledger backends (e.g. Postgres).
type Ledger interface {
	EnsureAccount(ctx context.Context, code string) error
	Balance(ctx context.Context, code string) (int64, error)
	// Post applies all entries atomically. Either every leg is recorded or none.
	Post(ctx context.Context, kind, clientTxID string, entries []Entry) (PostingResult, error)
	Transfer(ctx context.Context, fromCode, toCode, kind, clientTxID string, amount int64) (TransactionResult, error)
}

// IsSuspense reports whether the account may hold a negative balance.
func IsSuspense(code string) bool {
	return strings.HasPrefix(code, suspensePrefix)
}

// netEntries folds entries by account, validates them and returns the net
// movement per account in first-seen order.
func netEntries(entries []Entry) ([]Entry, error) {
	if len(entries) < 2 {
		return nil, ErrUnbalanced
	}
	var sum int64
	index := make(map[string]int, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.AccountCode == "" || e.Amount == 0 {
			return nil, ErrUnbalanced
		}
		sum += e.Amount
		if i, ok := index[e.AccountCode]; ok {
			out[i].Amount += e.Amount
			continue
		}
		index[e.AccountCode] = len(out)
		out = append(out, e)
	}
	if sum != 0 {
		return nil, ErrUnbalanced
	}
	return out, nil
}

func transferEntries(fromCode, toCode string, amount int64) []Entry {
	return []Entry{
		{AccountCode: fromCode, Amount: -amount},
		{AccountCode: toCode, Amount: amount},
	}
}
