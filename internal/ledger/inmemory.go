package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type inMemoryLedger struct {
	mu           sync.RWMutex
	balances     map[string]int64
	transactions map[string]PostingResult
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests
// and development runs without PostgreSQL.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		balances:     make(map[string]int64),
		transactions: make(map[string]PostingResult),
	}
}

func (l *inMemoryLedger) EnsureAccount(_ context.Context, code string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.balances[code]; !exists {
		l.balances[code] = 0
	}
	return nil
}

func (l *inMemoryLedger) Balance(_ context.Context, code string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance, exists := l.balances[code]
	if !exists {
		return 0, ErrAccountNotFound
	}
	return balance, nil
}

func (l *inMemoryLedger) Post(_ context.Context, kind, clientTxID string, entries []Entry) (PostingResult, error) {
	legs, err := netEntries(entries)
	if err != nil {
		return PostingResult{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := kind + ":" + clientTxID
	if res, exists := l.transactions[key]; exists {
		return res, ErrDuplicateTransaction
	}

	// every account must exist before any balance is checked
	for _, leg := range legs {
		if _, ok := l.balances[leg.AccountCode]; !ok {
			return PostingResult{}, ErrAccountNotFound
		}
	}
	next := make(map[string]int64, len(legs))
	for _, leg := range legs {
		balance := l.balances[leg.AccountCode] + leg.Amount
		if balance < 0 && !IsSuspense(leg.AccountCode) {
			return PostingResult{}, ErrInsufficientFunds
		}
		next[leg.AccountCode] = balance
	}

	for code, balance := range next {
		l.balances[code] = balance
	}

	res := PostingResult{TransactionID: uuid.NewString(), Balances: next}
	l.transactions[key] = res
	return res, nil
}

func (l *inMemoryLedger) Transfer(ctx context.Context, fromCode, toCode, kind, clientTxID string, amount int64) (TransactionResult, error) {
	if amount <= 0 {
		return TransactionResult{}, ErrInsufficientFunds
	}
	res, err := l.Post(ctx, kind, clientTxID, transferEntries(fromCode, toCode, amount))
	if err != nil && res.TransactionID == "" {
		return TransactionResult{}, err
	}
	return TransactionResult{
		TransactionID: res.TransactionID,
		FromBalance:   res.Balances[fromCode],
		ToBalance:     res.Balances[toCode],
	}, err
}
