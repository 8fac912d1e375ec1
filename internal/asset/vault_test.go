package asset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/congo-pay/timelock/internal/ledger"
)

func newVault(t *testing.T) (*Vault, ledger.Ledger) {
	t.Helper()
	l := ledger.NewInMemory()
	ctx := context.Background()
	for _, code := range []string{AccountCode("alice", KindCoin), AccountCode("alice", KindFungible)} {
		require.NoError(t, l.EnsureAccount(ctx, code))
		ledger.SeedBalance(l, code, 1_000)
	}
	return NewVault(l, []byte("vault-secret")), l
}

func TestVaultCoinRoundTrip(t *testing.T) {
	v, l := newVault(t)
	ctx := context.Background()

	esc, err := v.Withdraw(ctx, "alice", KindCoin, 400, "lock-1")
	require.NoError(t, err)
	require.Equal(t, KindCoin, esc.Kind())
	require.EqualValues(t, 400, esc.Value())

	bal, err := v.BalanceOf(ctx, "alice", KindCoin)
	require.NoError(t, err)
	require.EqualValues(t, 600, bal)

	part, err := esc.Withdraw(150)
	require.NoError(t, err)
	rest := esc.DrainAll()
	require.NoError(t, v.Deposit(ctx, "release-1",
		Payout{To: "bob", Funds: part},
		Payout{To: "alice", Funds: rest},
	))

	bob, _ := v.BalanceOf(ctx, "bob", KindCoin)
	alice, _ := v.BalanceOf(ctx, "alice", KindCoin)
	require.EqualValues(t, 150, bob)
	require.EqualValues(t, 850, alice)
	require.EqualValues(t, 0, esc.Value())
	require.EqualValues(t, 2_000, ledger.Total(l))
}

func TestVaultFungibleUsesCapability(t *testing.T) {
	v, _ := newVault(t)
	ctx := context.Background()

	esc, err := v.Withdraw(ctx, "alice", KindFungible, 300, "lock-2")
	require.NoError(t, err)
	store, ok := esc.(*DelegatedStore)
	require.True(t, ok)
	require.NotEmpty(t, store.Store())

	funds, err := esc.Withdraw(100)
	require.NoError(t, err)

	forged := funds
	forged.Capability = "deadbeef"
	require.ErrorIs(t, v.Deposit(ctx, "release-forged", Payout{To: "mallory", Funds: forged}), ErrBadCapability)

	require.NoError(t, v.Deposit(ctx, "release-2", Payout{To: "bob", Funds: funds}))
	bob, _ := v.BalanceOf(ctx, "bob", KindFungible)
	require.EqualValues(t, 100, bob)
}

func TestVaultWithdrawErrors(t *testing.T) {
	v, _ := newVault(t)
	ctx := context.Background()

	_, err := v.Withdraw(ctx, "alice", KindCoin, 5_000, "lock-3")
	require.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = v.Withdraw(ctx, "nobody", KindCoin, 1, "lock-4")
	require.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = v.Withdraw(ctx, "alice", KindCoin, 0, "lock-5")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = v.Withdraw(ctx, "alice", Kind("gold"), 1, "lock-6")
	require.ErrorIs(t, err, ErrInvalidKind)
}

func TestEscrowShortfallAndSnapshot(t *testing.T) {
	d := NewDirect(10)
	_, err := d.Withdraw(11)
	require.ErrorIs(t, err, ErrEscrowShortfall)

	clone := d.Clone()
	_, err = clone.Withdraw(4)
	require.NoError(t, err)
	require.EqualValues(t, 10, d.Value(), "clone must not alias the original")

	s := NewDelegatedStore("escrow:fungible:x", "cap", 7)
	restored, err := Restore(Snap(s))
	require.NoError(t, err)
	require.Equal(t, s, restored)

	_, err = Restore(Snapshot{Kind: KindFungible, Balance: 1})
	require.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Coin ")
	require.NoError(t, err)
	require.Equal(t, KindCoin, k)

	_, err = ParseKind("silver")
	require.ErrorIs(t, err, ErrInvalidKind)
}
