package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/congo-pay/timelock/internal/asset"
	"github.com/congo-pay/timelock/internal/custody"
	"github.com/congo-pay/timelock/internal/ledger"
	"github.com/congo-pay/timelock/internal/logging"
)

func newService(t *testing.T) (*Service, ledger.Ledger) {
	t.Helper()
	led := ledger.NewInMemory()
	svc, err := NewService(context.Background(), led, asset.NewVault(led, []byte("secret")), logging.Discard())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, led
}

func TestFundAndBalance(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	empty, err := svc.Balance(ctx, "alice", asset.KindCoin)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if empty.Amount != 0 {
		t.Fatalf("expected empty balance, got %d", empty.Amount)
	}

	res, err := svc.Fund(ctx, FundInput{Owner: "alice", Kind: asset.KindCoin, Amount: 2_500, ClientTxID: "top-1"})
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if res.Balance != 2_500 || res.TransactionID == "" {
		t.Fatalf("unexpected fund result %+v", res)
	}

	balance, err := svc.Balance(ctx, "alice", asset.KindCoin)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Amount != 2_500 || balance.AccountCode != "coin:alice" {
		t.Fatalf("unexpected balance %+v", balance)
	}
	fungible, _ := svc.Balance(ctx, "alice", asset.KindFungible)
	if fungible.Amount != 0 {
		t.Fatalf("expected kinds to be separate, got %d", fungible.Amount)
	}
}

func TestFundReplayIsRejected(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	in := FundInput{Owner: "alice", Kind: asset.KindFungible, Amount: 10, ClientTxID: "same"}
	if _, err := svc.Fund(ctx, in); err != nil {
		t.Fatalf("first fund: %v", err)
	}
	if _, err := svc.Fund(ctx, in); !errors.Is(err, ledger.ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction got %v", err)
	}
	balance, _ := svc.Balance(ctx, "alice", asset.KindFungible)
	if balance.Amount != 10 {
		t.Fatalf("expected 10 got %d", balance.Amount)
	}
}

func TestFundValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	cases := []struct {
		in   FundInput
		want error
	}{
		{FundInput{Owner: "", Kind: asset.KindCoin, Amount: 1}, custody.ErrInvalidParty},
		{FundInput{Owner: "alice", Kind: "gold", Amount: 1}, custody.ErrInvalidAssetKind},
		{FundInput{Owner: "alice", Kind: asset.KindCoin, Amount: 0}, custody.ErrInvalidAmount},
	}
	for _, tc := range cases {
		if _, err := svc.Fund(ctx, tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("fund %+v: expected %v got %v", tc.in, tc.want, err)
		}
	}
}

func TestFundReferencesAreScopedPerAccount(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	for _, owner := range []string{"alice", "bob"} {
		if _, err := svc.Fund(ctx, FundInput{Owner: owner, Kind: asset.KindCoin, Amount: 5, ClientTxID: "order-1"}); err != nil {
			t.Fatalf("fund %s: %v", owner, err)
		}
	}
	if _, err := svc.Fund(ctx, FundInput{Owner: "alice", Kind: asset.KindFungible, Amount: 5, ClientTxID: "order-1"}); err != nil {
		t.Fatalf("fund other kind: %v", err)
	}
	balance, _ := svc.Balance(ctx, "bob", asset.KindCoin)
	if balance.Amount != 5 {
		t.Fatalf("expected 5 got %d", balance.Amount)
	}
}
