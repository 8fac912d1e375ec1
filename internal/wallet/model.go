package wallet

import (
	"time"

	"github.com/congo-pay/timelock/internal/asset"
)

// Balance is an owner's spendable balance of one asset kind.
type Balance struct {
	Owner       string
	Kind        asset.Kind
	AccountCode string
	Amount      uint64
	AsOf        time.Time
}

// FundInput describes a treasury top-up.
type FundInput struct {
	Owner      string
	Kind       asset.Kind
	Amount     uint64
	ClientTxID string
}

// FundResult is the outcome of a top-up.
type FundResult struct {
	TransactionID string
	Balance       uint64
	CompletedAt   time.Time
}
