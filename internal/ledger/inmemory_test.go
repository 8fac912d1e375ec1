package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestInMemoryLedger_TransferMaintainsBalance(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	if err := l.EnsureAccount(ctx, "coin:alice"); err != nil {
		t.Fatalf("ensure account a: %v", err)
	}
	if err := l.EnsureAccount(ctx, "coin:bob"); err != nil {
		t.Fatalf("ensure account b: %v", err)
	}

	// seed account a with funds via manual mutation (test helper)
	SeedBalance(l, "coin:alice", 10_000)

	res, err := l.Transfer(ctx, "coin:alice", "coin:bob", "p2p", "client-1", 1_500)
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	if res.FromBalance != 8_500 {
		t.Fatalf("expected from balance 8500, got %d", res.FromBalance)
	}
	if res.ToBalance != 1_500 {
		t.Fatalf("expected to balance 1500, got %d", res.ToBalance)
	}

	if total := Total(l); total != 10_000 {
		t.Fatalf("ledger not balanced, total=%d", total)
	}
}

func TestInMemoryLedger_DuplicateTransaction(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "coin:alice")
	l.EnsureAccount(ctx, "coin:bob")
	SeedBalance(l, "coin:alice", 5_000)

	if _, err := l.Transfer(ctx, "coin:alice", "coin:bob", "p2p", "dup", 500); err != nil {
		t.Fatalf("initial transfer failed: %v", err)
	}
	if _, err := l.Transfer(ctx, "coin:alice", "coin:bob", "p2p", "dup", 500); err != ErrDuplicateTransaction {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if bal, _ := l.Balance(ctx, "coin:alice"); bal != 4_500 {
		t.Fatalf("duplicate must not move funds, balance=%d", bal)
	}
}

func TestInMemoryLedger_ConcurrentTransfers(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "coin:alice")
	l.EnsureAccount(ctx, "coin:bob")
	SeedBalance(l, "coin:alice", 100_000)

	const workers = 10
	const amount = int64(500)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			txID := fmt.Sprintf("tx-%d", i)
			if _, err := l.Transfer(ctx, "coin:alice", "coin:bob", "p2p", txID, amount); err != nil {
				t.Errorf("transfer %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if total := Total(l); total != 100_000 {
		t.Fatalf("ledger not balanced after concurrency, total=%d", total)
	}
}

func TestInMemoryLedger_PostIsAtomic(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	for _, code := range []string{"escrow:coin", "coin:alice", "coin:bob"} {
		l.EnsureAccount(ctx, code)
	}
	SeedBalance(l, "escrow:coin", 1_000)

	res, err := l.Post(ctx, "settle", "s-1", []Entry{
		{AccountCode: "escrow:coin", Amount: -600},
		{AccountCode: "coin:bob", Amount: 600},
		{AccountCode: "escrow:coin", Amount: -400},
		{AccountCode: "coin:alice", Amount: 400},
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if res.Balances["escrow:coin"] != 0 || res.Balances["coin:bob"] != 600 || res.Balances["coin:alice"] != 400 {
		t.Fatalf("unexpected balances: %+v", res.Balances)
	}

	// second leg overdraws; nothing may be applied
	_, err = l.Post(ctx, "settle", "s-2", []Entry{
		{AccountCode: "coin:bob", Amount: -100},
		{AccountCode: "coin:alice", Amount: -1_000},
		{AccountCode: "escrow:coin", Amount: 1_100},
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if bal, _ := l.Balance(ctx, "coin:bob"); bal != 600 {
		t.Fatalf("partial posting applied, bob=%d", bal)
	}
}

func TestInMemoryLedger_PostRejectsUnbalanced(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "coin:alice")
	l.EnsureAccount(ctx, "coin:bob")

	_, err := l.Post(ctx, "p2p", "u-1", []Entry{
		{AccountCode: "coin:alice", Amount: -10},
		{AccountCode: "coin:bob", Amount: 11},
	})
	if !errors.Is(err, ErrUnbalanced) {
		t.Fatalf("expected unbalanced, got %v", err)
	}

	_, err = l.Post(ctx, "p2p", "u-2", []Entry{
		{AccountCode: "coin:alice", Amount: -10},
		{AccountCode: "coin:carol", Amount: 10},
	})
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}

func TestInMemoryLedger_TreasuryMayGoNegative(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, TreasuryAccountCode)
	l.EnsureAccount(ctx, "fungible:alice")

	res, err := l.Transfer(ctx, TreasuryAccountCode, "fungible:alice", "fund", "f-1", 2_000)
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if res.FromBalance != -2_000 || res.ToBalance != 2_000 {
		t.Fatalf("unexpected balances: %+v", res)
	}

	if _, err := l.Transfer(ctx, "fungible:alice", TreasuryAccountCode, "defund", "f-2", 10_000); err != ErrInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}
