package ledger

// SeedBalance is a test helper that seeds the balance for an account when using the in-memory ledger.
// The account is created when missing.
func SeedBalance(l Ledger, code string, amount int64) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[code] = amount
	}
}

// Total sums every non-suspense balance held by the in-memory ledger. Tests use
// it to assert that value is neither created nor destroyed.
func Total(l Ledger) int64 {
	mem, ok := l.(*inMemoryLedger)
	if !ok {
		return 0
	}
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	var total int64
	for code, balance := range mem.balances {
		if IsSuspense(code) {
			continue
		}
		total += balance
	}
	return total
}
