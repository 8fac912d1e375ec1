package stream

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/timelock/internal/accrual"
	"github.com/congo-pay/timelock/internal/asset"
	"github.com/congo-pay/timelock/internal/clock"
	"github.com/congo-pay/timelock/internal/custody"
	"github.com/congo-pay/timelock/internal/events"
	"github.com/congo-pay/timelock/internal/ledger"
	"github.com/congo-pay/timelock/internal/logging"
)

const t0 = int64(1_700_000_000)

func sdkUint(n uint64) sdkmath.Uint { return sdkmath.NewUint(n) }

type fixture struct {
	svc   *Service
	clk   *clock.Manual
	led   ledger.Ledger
	vault *asset.Vault
	rec   *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	led := ledger.NewInMemory()
	for _, kind := range []asset.Kind{asset.KindCoin, asset.KindFungible} {
		ledger.SeedBalance(led, asset.AccountCode("alice", kind), 10_000)
	}
	vault := asset.NewVault(led, []byte("test-secret"))
	clk := clock.NewManual(t0)
	rec := &events.Recorder{}
	return &fixture{
		svc:   NewService(NewMemoryRepository(), vault, clk, rec, logging.Discard()),
		clk:   clk,
		led:   led,
		vault: vault,
		rec:   rec,
	}
}

func (f *fixture) balance(t *testing.T, owner string, kind asset.Kind) uint64 {
	t.Helper()
	b, err := f.vault.BalanceOf(context.Background(), owner, kind)
	require.NoError(t, err)
	return b
}

func (f *fixture) hourStream(t *testing.T, kind asset.Kind) Stream {
	t.Helper()
	st, err := f.svc.Create(context.Background(), CreateInput{
		Owner:       "alice",
		Beneficiary: "bob",
		Kind:        kind,
		TotalAmount: 3600,
		Duration:    3600,
	})
	require.NoError(t, err)
	return st
}

func TestCreateEscrowsTotal(t *testing.T) {
	f := newFixture(t)
	st := f.hourStream(t, asset.KindCoin)

	require.EqualValues(t, 0, st.ID)
	require.Equal(t, t0, st.StartTime)
	require.Equal(t, t0+3600, st.EndTime)
	require.Equal(t, t0, st.CliffTime)
	require.True(t, st.FlowRate.Equal(sdkUint(1)))
	require.EqualValues(t, 3600, st.Escrow.Value())
	require.EqualValues(t, 6_400, f.balance(t, "alice", asset.KindCoin))
	require.Equal(t, []string{events.KindStreamCreated}, f.rec.Kinds())
}

func TestStreamIDsPerNamespace(t *testing.T) {
	f := newFixture(t)
	a := f.hourStream(t, asset.KindCoin)
	b := f.hourStream(t, asset.KindCoin)
	c := f.hourStream(t, asset.KindFungible)
	require.EqualValues(t, 0, a.ID)
	require.EqualValues(t, 1, b.ID)
	require.EqualValues(t, 0, c.ID)

	list, err := f.svc.ListByOwner(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, list, 3)
}

func TestWithdrawHalfway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.hourStream(t, asset.KindCoin)

	f.clk.Set(t0 + 1800)
	claimable, err := f.svc.Claimable(ctx, st.Key)
	require.NoError(t, err)
	require.EqualValues(t, 1800, claimable)

	after, amount, err := f.svc.Withdraw(ctx, "bob", st.Key)
	require.NoError(t, err)
	require.EqualValues(t, 1800, amount)
	require.EqualValues(t, 1800, after.WithdrawnAmount)
	require.EqualValues(t, 1800, f.balance(t, "bob", asset.KindCoin))

	claimable, err = f.svc.Claimable(ctx, st.Key)
	require.NoError(t, err)
	require.Zero(t, claimable)

	_, _, err = f.svc.Withdraw(ctx, "bob", st.Key)
	require.ErrorIs(t, err, custody.ErrNothingToWithdraw)
}

func TestWithdrawToCompletionDestroysRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.hourStream(t, asset.KindFungible)

	f.clk.Set(t0 + 1000)
	_, _, err := f.svc.Withdraw(ctx, "bob", st.Key)
	require.NoError(t, err)

	f.clk.Set(t0 + 5000)
	after, amount, err := f.svc.Withdraw(ctx, "bob", st.Key)
	require.NoError(t, err)
	require.EqualValues(t, 2600, amount)
	require.True(t, after.Exhausted())
	require.EqualValues(t, 3600, f.balance(t, "bob", asset.KindFungible))

	_, err = f.svc.Get(ctx, st.Key)
	require.ErrorIs(t, err, custody.ErrStreamNotFound)
	_, _, err = f.svc.Withdraw(ctx, "bob", st.Key)
	require.ErrorIs(t, err, custody.ErrStreamNotFound)
	require.Contains(t, f.rec.Kinds(), events.KindStreamCompleted)
}

func TestPauseResumeStretchesSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.hourStream(t, asset.KindCoin)

	f.clk.Set(t0 + 100)
	paused, err := f.svc.Pause(ctx, "alice", st.Key)
	require.NoError(t, err)
	require.False(t, paused.Active)
	require.Equal(t, t0+100, paused.LastPauseTime)

	_, err = f.svc.Pause(ctx, "alice", st.Key)
	require.ErrorIs(t, err, custody.ErrAlreadyPaused)

	for _, now := range []int64{t0 + 200, t0 + 499, t0 + 10_000} {
		f.clk.Set(now)
		claimable, err := f.svc.Claimable(ctx, st.Key)
		require.NoError(t, err)
		require.EqualValues(t, 100, claimable, "now=%d", now)
	}

	f.clk.Set(t0 + 500)
	resumed, err := f.svc.Resume(ctx, "alice", st.Key)
	require.NoError(t, err)
	require.True(t, resumed.Active)
	require.Zero(t, resumed.LastPauseTime)
	require.Equal(t, st.EndTime+400, resumed.EndTime)

	claimable, err := f.svc.Claimable(ctx, st.Key)
	require.NoError(t, err)
	require.EqualValues(t, 100, claimable)

	_, err = f.svc.Resume(ctx, "alice", st.Key)
	require.ErrorIs(t, err, custody.ErrAlreadyActive)

	f.clk.Set(resumed.EndTime)
	claimable, err = f.svc.Claimable(ctx, st.Key)
	require.NoError(t, err)
	require.EqualValues(t, 3600, claimable)
}

func TestCancelSplitsAtHalfway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := ledger.Total(f.led)
	st := f.hourStream(t, asset.KindCoin)

	f.clk.Set(t0 + 1800)
	settled, err := f.svc.Cancel(ctx, "bob", st.Key)
	require.NoError(t, err)
	require.EqualValues(t, 1800, settled.ToBeneficiary)
	require.EqualValues(t, 1800, settled.ToOwner)
	require.EqualValues(t, st.TotalAmount, settled.ToBeneficiary+settled.ToOwner)

	require.EqualValues(t, 1800, f.balance(t, "bob", asset.KindCoin))
	require.EqualValues(t, 10_000-1800, f.balance(t, "alice", asset.KindCoin))
	require.Equal(t, before, ledger.Total(f.led))

	_, err = f.svc.Cancel(ctx, "alice", st.Key)
	require.ErrorIs(t, err, custody.ErrStreamNotFound)
}

func TestCancelAbsorbsRoundingDust(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st, err := f.svc.Create(ctx, CreateInput{
		Owner: "alice", Beneficiary: "bob", Kind: asset.KindFungible,
		TotalAmount: 1000, Duration: 300,
	})
	require.NoError(t, err)
	require.True(t, st.FlowRate.Equal(sdkUint(3)))

	f.clk.Set(t0 + 100)
	_, _, err = f.svc.Withdraw(ctx, "bob", st.Key)
	require.NoError(t, err)

	f.clk.Set(t0 + 250)
	settled, err := f.svc.Cancel(ctx, "alice", st.Key)
	require.NoError(t, err)
	require.EqualValues(t, 450, settled.ToBeneficiary)
	require.EqualValues(t, 1000-300-450, settled.ToOwner)
	require.EqualValues(t, 10_000-750, f.balance(t, "alice", asset.KindFungible))
	require.EqualValues(t, 750, f.balance(t, "bob", asset.KindFungible))
}

func TestRoleChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.hourStream(t, asset.KindCoin)
	f.clk.Set(t0 + 60)

	_, _, err := f.svc.Withdraw(ctx, "alice", st.Key)
	require.ErrorIs(t, err, custody.ErrUnauthorized)
	_, err = f.svc.Pause(ctx, "bob", st.Key)
	require.ErrorIs(t, err, custody.ErrUnauthorized)
	_, err = f.svc.Resume(ctx, "bob", st.Key)
	require.ErrorIs(t, err, custody.ErrUnauthorized)
	_, err = f.svc.Cancel(ctx, "mallory", st.Key)
	require.ErrorIs(t, err, custody.ErrUnauthorized)
	_, err = f.svc.Cancel(ctx, "", st.Key)
	require.ErrorIs(t, err, custody.ErrUnauthorized)

	got, err := f.svc.Get(ctx, st.Key)
	require.NoError(t, err)
	require.Zero(t, got.WithdrawnAmount)
	require.EqualValues(t, 3600, got.Escrow.Value())
}

func TestCliffBlocksWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st, err := f.svc.Create(ctx, CreateInput{
		Owner: "alice", Beneficiary: "bob", Kind: asset.KindCoin,
		TotalAmount: 3600, Duration: 3600, CliffDuration: 600,
	})
	require.NoError(t, err)
	require.Equal(t, t0+600, st.CliffTime)

	f.clk.Set(t0 + 599)
	_, _, err = f.svc.Withdraw(ctx, "bob", st.Key)
	require.ErrorIs(t, err, custody.ErrNothingToWithdraw)

	f.clk.Set(t0 + 600)
	_, amount, err := f.svc.Withdraw(ctx, "bob", st.Key)
	require.NoError(t, err)
	require.EqualValues(t, 600, amount)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := CreateInput{Owner: "alice", Beneficiary: "bob", Kind: asset.KindCoin, TotalAmount: 100, Duration: 100}

	cases := []struct {
		name   string
		mutate func(*CreateInput)
		want   error
	}{
		{"zero amount", func(in *CreateInput) { in.TotalAmount = 0 }, custody.ErrInvalidAmount},
		{"zero duration", func(in *CreateInput) { in.Duration = 0 }, custody.ErrInvalidDuration},
		{"end before start", func(in *CreateInput) { in.StartTime = t0 + 10; in.EndTime = t0 + 5 }, custody.ErrInvalidDuration},
		{"cliff past end", func(in *CreateInput) { in.CliffDuration = 101 }, custody.ErrInvalidCliff},
		{"unknown kind", func(in *CreateInput) { in.Kind = "gold" }, custody.ErrInvalidAssetKind},
		{"missing beneficiary", func(in *CreateInput) { in.Beneficiary = " " }, custody.ErrInvalidParty},
		{"over balance", func(in *CreateInput) { in.TotalAmount = 10_001 }, custody.ErrInsufficientBalance},
	}
	for _, tc := range cases {
		in := base
		tc.mutate(&in)
		_, err := f.svc.Create(ctx, in)
		require.ErrorIs(t, err, tc.want, tc.name)
	}
	require.EqualValues(t, 10_000, f.balance(t, "alice", asset.KindCoin))
	require.Empty(t, f.rec.Kinds())

	st := f.hourStream(t, asset.KindCoin)
	require.EqualValues(t, 0, st.ID, "failed creates must not consume ids")
}

func TestCreateByRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st, err := f.svc.CreateByRate(ctx, RateInput{
		Owner: "alice", Beneficiary: "bob", Kind: asset.KindCoin,
		AmountPerInterval: 7200, Interval: accrual.Hour, Duration: 1800,
	})
	require.NoError(t, err)
	require.EqualValues(t, 3600, st.TotalAmount)
	require.True(t, st.FlowRate.Equal(sdkUint(2)))

	_, err = f.svc.CreateByRate(ctx, RateInput{
		Owner: "alice", Beneficiary: "bob", Kind: asset.KindCoin,
		AmountPerInterval: 1, Interval: accrual.Month, Duration: 60,
	})
	require.ErrorIs(t, err, custody.ErrInvalidAmount)
}

func TestConservationAcrossLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	total := ledger.Total(f.led)
	st := f.hourStream(t, asset.KindFungible)

	var last uint64
	steps := []func(){
		func() { f.clk.Set(t0 + 300) },
		func() { _, _, _ = f.svc.Withdraw(ctx, "bob", st.Key) },
		func() { _, _ = f.svc.Pause(ctx, "alice", st.Key) },
		func() { f.clk.Set(t0 + 900) },
		func() { _, _ = f.svc.Resume(ctx, "alice", st.Key) },
		func() { f.clk.Set(t0 + 1500) },
		func() { _, _, _ = f.svc.Withdraw(ctx, "bob", st.Key) },
	}
	for i, step := range steps {
		step()
		cur, err := f.svc.Get(ctx, st.Key)
		require.NoError(t, err)
		require.GreaterOrEqual(t, cur.WithdrawnAmount, last, "step %d", i)
		require.Equal(t, cur.TotalAmount, cur.WithdrawnAmount+cur.Escrow.Value(), "step %d", i)
		require.Equal(t, total, ledger.Total(f.led), "step %d", i)
		last = cur.WithdrawnAmount
	}

	settled, err := f.svc.Cancel(ctx, "alice", st.Key)
	require.NoError(t, err)
	require.EqualValues(t, st.TotalAmount, last+settled.ToBeneficiary+settled.ToOwner)
	require.Equal(t, total, ledger.Total(f.led))
}
