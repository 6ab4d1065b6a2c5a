package syncer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"polymarket-copytrader/api"
	"polymarket-copytrader/config"
	"polymarket-copytrader/models"
)

// minOrderUSD is the venue's $1 order minimum. Mirrors that size below it
// are floored to it when the leader's effective allocation covers it.
var minOrderUSD = decimal.NewFromInt(1)

// Decision is the risk manager's verdict on one BUY fill.
type Decision struct {
	Accept       bool
	MirrorShares decimal.Decimal
	MirrorUSD    decimal.Decimal
	// Reason carries the rejection reason, or the sizing note on accept.
	Reason string
}

func reject(reason string) Decision { return Decision{Reason: reason} }

// SellAction classifies the outcome of sizing a SELL fill.
type SellAction int

const (
	// SellSkip means nothing to do (no mirror position, or unresolvable).
	SellSkip SellAction = iota
	// SellDefer re-queues the fill for the next tick (snapshot not yet
	// caught up with the position being sold).
	SellDefer
	// SellReduce sells part of the mirror position.
	SellReduce
	// SellExit closes the mirror position entirely.
	SellExit
)

// SellDecision sizes a reduction of an existing mirror position.
type SellDecision struct {
	Action SellAction
	Shares decimal.Decimal
	Reason string
}

// LedgerView is the read-only slice of the ledger the risk manager consults.
// Reserve re-checks the exposure gates atomically at commit time; the checks
// here reject early so obviously-oversized mirrors never reach the executor.
type LedgerView interface {
	ExposureOf(leader string) decimal.Decimal
	GlobalExposure() decimal.Decimal
	PositionOf(market, tokenID string) (MirrorPosition, bool)
}

// RiskManager sizes mirror trades and applies the risk gate cascade. It is
// purely computational: every call reads its inputs and returns a verdict.
// The config may be swapped at runtime (hot reload), so reads go through a
// lock.
type RiskManager struct {
	mu            sync.RWMutex
	cfg           config.RiskConfig
	useProportion bool
}

// NewRiskManager builds a risk manager from the risk config.
func NewRiskManager(cfg config.RiskConfig, useProportion bool) *RiskManager {
	return &RiskManager{cfg: cfg, useProportion: useProportion}
}

// UpdateConfig swaps in new risk settings (hot reload).
func (r *RiskManager) UpdateConfig(cfg config.RiskConfig, useProportion bool) {
	r.mu.Lock()
	r.cfg = cfg
	r.useProportion = useProportion
	r.mu.Unlock()
}

func (r *RiskManager) settings() (config.RiskConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg, r.useProportion
}

// Decide sizes a BUY fill and runs the gate cascade. First failure wins.
func (r *RiskManager) Decide(fill models.FillEvent, snap *models.PortfolioSnapshot, meta *api.MarketMeta, ledger LedgerView) Decision {
	cfg, useProportion := r.settings()

	if fill.Price.Sign() <= 0 || fill.Size.Sign() <= 0 {
		return reject("fill has no price or size")
	}
	if snap == nil || snap.TotalValue.LessThan(cfg.PerTrader.MinPortfolioValue) || snap.TotalValue.Sign() <= 0 {
		return reject("portfolio too small or unknown")
	}

	// Conviction is a dollar concept: use notional, not share count.
	one := decimal.NewFromInt(1)
	positionPct := one
	if useProportion {
		positionPct = fill.Notional().Div(snap.TotalValue)
	}

	effective := fill.AllocatedCapital.Mul(snap.DeploymentRate)
	if effective.GreaterThan(fill.AllocatedCapital) {
		effective = fill.AllocatedCapital
	}

	mirrorUSD := effective.Mul(positionPct)
	if cfg.Global.MaxSingleBet.Sign() > 0 && mirrorUSD.GreaterThan(cfg.Global.MaxSingleBet) {
		mirrorUSD = cfg.Global.MaxSingleBet
	}
	if pctCap := cfg.PerTrader.MaxPositionPct.Mul(fill.AllocatedCapital); mirrorUSD.GreaterThan(pctCap) {
		mirrorUSD = pctCap
	}

	if mirrorUSD.Sign() <= 0 {
		return reject("mirror size is zero (deployment rate 0?)")
	}
	if mirrorUSD.LessThan(minOrderUSD) {
		if effective.LessThan(minOrderUSD) {
			return reject("allocated capital below $1 minimum order")
		}
		mirrorUSD = minOrderUSD
	}

	shares := mirrorUSD.Div(fill.Price)
	if meta != nil && shares.LessThan(decimal.NewFromFloat(meta.MinOrderSize)) {
		return reject(fmt.Sprintf("below min order size (%s < %g shares)", shares.StringFixed(2), meta.MinOrderSize))
	}

	// Gate cascade.
	if meta != nil {
		if reason := checkMarketFilters(cfg.MarketFilters, meta); reason != "" {
			return reject(reason)
		}
	}
	if added := mirrorUSD.Add(ledger.ExposureOf(fill.LeaderWallet)); added.GreaterThan(fill.AllocatedCapital) {
		return reject(fmt.Sprintf("exceeds allocated capital for trader ($%s > $%s)",
			added.StringFixed(2), fill.AllocatedCapital.StringFixed(2)))
	}
	if added := mirrorUSD.Add(ledger.GlobalExposure()); added.GreaterThan(cfg.Global.MaxTotalExposure) {
		return reject(fmt.Sprintf("exceeds global exposure limit ($%s > $%s)",
			added.StringFixed(2), cfg.Global.MaxTotalExposure.StringFixed(2)))
	}

	hundred := decimal.NewFromInt(100)
	note := fmt.Sprintf("%s%% of leader portfolio; deployment %s%%",
		positionPct.Mul(hundred).StringFixed(2),
		snap.DeploymentRate.Mul(hundred).StringFixed(1))
	return Decision{
		Accept:       true,
		MirrorShares: shares,
		MirrorUSD:    mirrorUSD,
		Reason:       note,
	}
}

func checkMarketFilters(filters config.MarketFiltersConfig, meta *api.MarketMeta) string {
	category := strings.ToLower(strings.TrimSpace(meta.Category))
	for _, blocked := range filters.BlacklistCategories {
		if category == strings.ToLower(strings.TrimSpace(blocked)) {
			return fmt.Sprintf("category %q is blacklisted", meta.Category)
		}
	}
	if len(filters.WhitelistCategories) > 0 {
		allowed := false
		for _, ok := range filters.WhitelistCategories {
			if category == strings.ToLower(strings.TrimSpace(ok)) {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Sprintf("category %q is not whitelisted", meta.Category)
		}
	}
	if filters.MinLiquidity.Sign() > 0 &&
		decimal.NewFromFloat(meta.Liquidity).LessThan(filters.MinLiquidity) {
		return fmt.Sprintf("market liquidity $%.0f below minimum $%s", meta.Liquidity,
			filters.MinLiquidity.StringFixed(0))
	}
	return ""
}

// DecideSell interprets a leader SELL as a reduce/exit of the mirror
// position. The reduction fraction is the fraction the leader sold of their
// own holding as of the last portfolio snapshot. When the snapshot has not
// caught up with the position being sold, the fill is deferred one tick
// rather than treated as a full exit; attempts counts prior deferrals.
func (r *RiskManager) DecideSell(fill models.FillEvent, snap *models.PortfolioSnapshot, ledger LedgerView, attempts int) SellDecision {
	pos, ok := ledger.PositionOf(fill.Market, fill.TokenID)
	if !ok || pos.Size.Sign() <= 0 {
		return SellDecision{Action: SellSkip, Reason: "no mirror position"}
	}

	var holding decimal.Decimal
	known := false
	if snap != nil && snap.Holdings != nil {
		holding, known = snap.Holdings[fill.TokenID]
	}

	if !known || holding.Sign() <= 0 {
		if attempts < 1 {
			return SellDecision{Action: SellDefer, Reason: "snapshot predates position; deferring one tick"}
		}
		if snap != nil && snap.FetchedAt.Unix() > fill.Timestamp {
			// A snapshot taken after the fill no longer shows the token:
			// the leader is out entirely.
			return SellDecision{Action: SellExit, Shares: pos.Size, Reason: "leader position closed"}
		}
		return SellDecision{Action: SellSkip, Reason: "leader holding unknown; skipping reduction"}
	}

	fraction := fill.Size.Div(holding)
	if fraction.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return SellDecision{Action: SellExit, Shares: pos.Size, Reason: "leader sold full position"}
	}

	shares := pos.Size.Mul(fraction)
	remaining := pos.Size.Sub(shares)
	if remaining.LessThan(decimal.NewFromFloat(mirrorDustThreshold)) {
		return SellDecision{Action: SellExit, Shares: pos.Size, Reason: "remainder below dust threshold"}
	}
	hundred := decimal.NewFromInt(100)
	return SellDecision{
		Action: SellReduce,
		Shares: shares,
		Reason: fmt.Sprintf("leader reduced %s%% of holding", fraction.Mul(hundred).StringFixed(1)),
	}
}
