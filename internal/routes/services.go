package routes

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/congo-pay/timelock/internal/asset"
	"github.com/congo-pay/timelock/internal/auth"
	"github.com/congo-pay/timelock/internal/clock"
	"github.com/congo-pay/timelock/internal/custody"
	"github.com/congo-pay/timelock/internal/events"
	"github.com/congo-pay/timelock/internal/ledger"
	"github.com/congo-pay/timelock/internal/link"
	"github.com/congo-pay/timelock/internal/logging"
	"github.com/congo-pay/timelock/internal/scheduler"
	"github.com/congo-pay/timelock/internal/stream"
	"github.com/congo-pay/timelock/internal/vesting"
	"github.com/congo-pay/timelock/internal/wallet"
)

// Services holds the domain services and their HTTP handlers.
type Services struct {
	Issuer *auth.Issuer
	Auth   *auth.Handler
	Wallet *wallet.Handler

	Stream  *stream.Service
	Streams *stream.Handler

	Vest    *vesting.Service
	Vesting *vesting.Handler

	Link  *link.Service
	Links *link.Handler
}

// NewServices builds every service. Postgres backs the ledger and the records
// when d.DB is set; otherwise everything lives in memory. Link expiry notices
// are scheduled only when queue is set.
func NewServices(ctx context.Context, d Deps, queue *asynq.Client, emitter events.Emitter, clk clock.Clock) (*Services, error) {
	issuer, err := auth.NewIssuer(d.Cfg.JWTSecret, d.Cfg.AppName, d.Cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}

	var (
		ledgerBackend ledger.Ledger
		streamRepo    stream.Repository
		vestingRepo   vesting.Repository
		linkRepo      link.Repository
	)
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
		streamRepo = stream.NewPostgresRepository(d.DB)
		vestingRepo = vesting.NewPostgresRepository(d.DB)
		linkRepo = link.NewPostgresRepository(d.DB)
	} else {
		ledgerBackend = ledger.NewInMemory()
		streamRepo = stream.NewMemoryRepository()
		vestingRepo = vesting.NewMemoryRepository()
		linkRepo = link.NewMemoryRepository()
	}
	bank := asset.NewVault(ledgerBackend, []byte(d.Cfg.VaultSecret))

	walletSvc, err := wallet.NewService(ctx, ledgerBackend, bank, logging.WithComponent(d.Logger, "wallet"))
	if err != nil {
		return nil, err
	}

	var expiry link.ExpiryScheduler
	if queue != nil {
		expiry = scheduler.NewScheduler(queue)
	}
	params := custody.Params{MaxLinkExpiry: d.Cfg.MaxLinkExpiry}

	streamSvc := stream.NewService(streamRepo, bank, clk, emitter, logging.WithComponent(d.Logger, "stream"))
	vestingSvc := vesting.NewService(vestingRepo, bank, clk, emitter, logging.WithComponent(d.Logger, "vesting"))
	linkSvc := link.NewService(linkRepo, bank, clk, emitter, expiry, params, logging.WithComponent(d.Logger, "link"))

	return &Services{
		Issuer:  issuer,
		Auth:    auth.NewHandler(issuer),
		Wallet:  wallet.NewHandler(walletSvc),
		Stream:  streamSvc,
		Streams: stream.NewHandler(streamSvc),
		Vest:    vestingSvc,
		Vesting: vesting.NewHandler(vestingSvc),
		Link:    linkSvc,
		Links:   link.NewHandler(linkSvc),
	}, nil
}
