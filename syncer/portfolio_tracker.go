// Package syncer contains the copy-trading engine: the per-leader trade
// monitor, portfolio tracker, exposure ledger, risk manager, trade executor,
// and the orchestrator that wires them into the polling loops.
package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-copytrader/api"
	"polymarket-copytrader/models"
)

// positionDustThreshold filters venue positions below this share count out
// of portfolio snapshots.
const positionDustThreshold = 0.1

// PortfolioTracker maintains per-leader portfolio snapshots. Snapshots are
// replaced atomically; readers always see a complete one. A failed sync
// leaves the prior snapshot in place.
type PortfolioTracker struct {
	client api.DataClientInterface

	mu        sync.RWMutex
	snapshots map[string]*models.PortfolioSnapshot
}

// NewPortfolioTracker builds a tracker over the given data client.
func NewPortfolioTracker(client api.DataClientInterface) *PortfolioTracker {
	return &PortfolioTracker{
		client:    client,
		snapshots: make(map[string]*models.PortfolioSnapshot),
	}
}

// Sync fetches the wallet's open positions and swaps in a fresh snapshot.
func (t *PortfolioTracker) Sync(ctx context.Context, wallet string) (*models.PortfolioSnapshot, error) {
	positions, err := t.client.GetPositions(ctx, api.PositionsParams{
		User:          wallet,
		SizeThreshold: positionDustThreshold,
	})
	if err != nil {
		return nil, err
	}

	snap := buildSnapshot(positions)
	t.mu.Lock()
	t.snapshots[wallet] = snap
	t.mu.Unlock()
	return snap, nil
}

func buildSnapshot(positions []api.DataPosition) *models.PortfolioSnapshot {
	snap := &models.PortfolioSnapshot{
		FetchedAt: time.Now(),
		Holdings:  make(map[string]decimal.Decimal, len(positions)),
	}
	if len(positions) == 0 {
		return snap
	}

	deployed := decimal.Zero
	initial := decimal.Zero
	for _, pos := range positions {
		deployed = deployed.Add(decimal.NewFromFloat(pos.CurrentValue))
		initial = initial.Add(decimal.NewFromFloat(pos.InitialValue))
		snap.Holdings[pos.Asset] = decimal.NewFromFloat(pos.Size)
	}

	// Deployed reflects mark-to-market; fall back to the initial investment
	// only when no marks exist.
	total := deployed
	if deployed.Sign() <= 0 {
		total = initial
	}

	snap.Deployed = deployed
	snap.TotalValue = total
	snap.CashReserve = total.Sub(deployed)
	snap.PositionCount = len(positions)
	if total.Sign() > 0 {
		rate := deployed.Div(total)
		if rate.GreaterThan(decimal.NewFromInt(1)) {
			rate = decimal.NewFromInt(1)
		}
		snap.DeploymentRate = rate
	}
	return snap
}

// Get returns the current snapshot for a wallet, if any.
func (t *PortfolioTracker) Get(wallet string) (*models.PortfolioSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap, ok := t.snapshots[wallet]
	return snap, ok
}

// PositionFraction returns tradeUSD / total portfolio value, or zero when
// the portfolio is unknown or empty.
func (t *PortfolioTracker) PositionFraction(wallet string, tradeUSD decimal.Decimal) decimal.Decimal {
	snap, ok := t.Get(wallet)
	if !ok || snap.TotalValue.Sign() <= 0 {
		return decimal.Zero
	}
	return tradeUSD.Div(snap.TotalValue)
}

// EffectiveAllocation scales allocated capital by the leader's deployment
// rate, clamped to [0, allocated]. An unknown portfolio counts as fully
// deployed.
func (t *PortfolioTracker) EffectiveAllocation(wallet string, allocated decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	rate := decimal.NewFromInt(1)
	if snap, ok := t.Get(wallet); ok {
		rate = snap.DeploymentRate
	}
	effective := allocated.Mul(rate)
	if effective.Sign() < 0 {
		effective = decimal.Zero
	}
	if effective.GreaterThan(allocated) {
		effective = allocated
	}
	return effective, rate
}
