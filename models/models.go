// Package models holds the domain types shared across the engine. Raw venue
// payloads are decoded at the api boundary; everything inward uses these
// typed records with decimal money fields.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the taker direction of a fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Position is a read-only snapshot of one open position as reported by the
// venue's positions endpoint.
type Position struct {
	Asset        string          `json:"asset"`
	ConditionID  string          `json:"condition_id"`
	Size         decimal.Decimal `json:"size"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	InitialValue decimal.Decimal `json:"initial_value"`
	CurrentValue decimal.Decimal `json:"current_value"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	CashPnl      decimal.Decimal `json:"cash_pnl"`
	Outcome      string          `json:"outcome"`
	Title        string          `json:"title"`
}

// PortfolioSnapshot is the per-leader view computed from open positions.
// DeploymentRate is clamped to [0,1].
type PortfolioSnapshot struct {
	TotalValue     decimal.Decimal `json:"total_value"`
	Deployed       decimal.Decimal `json:"deployed"`
	CashReserve    decimal.Decimal `json:"cash_reserve"`
	DeploymentRate decimal.Decimal `json:"deployment_rate"`
	PositionCount  int             `json:"position_count"`
	FetchedAt      time.Time       `json:"fetched_at"`

	// Holdings maps token id -> share count at snapshot time. Sell-side
	// reduction fractions divide a sold size by the holding recorded here;
	// successive snapshots are not compared.
	Holdings map[string]decimal.Decimal `json:"holdings,omitempty"`
}

// FillEvent is one previously-unseen leader fill, enriched with the leader's
// config. TradeID is the idempotency key: partial fills sharing a transaction
// hash are aggregated into a single event before it is assigned.
type FillEvent struct {
	LeaderWallet     string          `json:"leader_wallet"`
	LeaderName       string          `json:"leader_name"`
	AllocatedCapital decimal.Decimal `json:"allocated_capital"`
	Market           string          `json:"market"`
	TokenID          string          `json:"token_id"`
	Side             Side            `json:"side"`
	Size             decimal.Decimal `json:"size"`
	Price            decimal.Decimal `json:"price"`
	Timestamp        int64           `json:"timestamp"`
	TradeID          string          `json:"trade_id"`
	Title            string          `json:"title,omitempty"`
	Outcome          string          `json:"outcome,omitempty"`
}

// Notional returns size * price in USD.
func (f FillEvent) Notional() decimal.Decimal {
	return f.Size.Mul(f.Price)
}

// LeaderStatus is one row of the status table exposed over the control API
// and printed by the status command.
type LeaderStatus struct {
	Name        string          `json:"name"`
	Wallet      string          `json:"wallet"`
	State       string          `json:"state"`
	Allocated   decimal.Decimal `json:"allocated"`
	Exposed     decimal.Decimal `json:"exposed"`
	Utilization decimal.Decimal `json:"utilization_pct"`
	RealizedPnl decimal.Decimal `json:"realized_pnl"`
	TradeCount  int64           `json:"trade_count"`
}

// EngineStatus is the full status snapshot.
type EngineStatus struct {
	Leaders        []LeaderStatus  `json:"leaders"`
	GlobalExposure decimal.Decimal `json:"global_exposure"`
	MaxExposure    decimal.Decimal `json:"max_total_exposure"`
	PositionCount  int             `json:"position_count"`
	StartedAt      time.Time       `json:"started_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
