package syncer

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-copytrader/models"
)

const (
	// mirrorDustThreshold is the share count below which a mirror position
	// is treated as closed and removed.
	mirrorDustThreshold = 0.01

	// processedFillsBound caps the processed trade-id set.
	processedFillsBound = 10000
)

// LedgerError marks a protocol violation (commit without reserve, double
// commit). It is a bug, and the engine halts on it.
type LedgerError struct {
	msg string
}

func (e *LedgerError) Error() string { return "ledger: " + e.msg }

func ledgerErrf(format string, args ...any) *LedgerError {
	return &LedgerError{msg: fmt.Sprintf(format, args...)}
}

// MirrorPosition is the operator's open position mirrored from leader fills,
// keyed by (market, tokenID).
type MirrorPosition struct {
	Market        string                     `json:"market"`
	TokenID       string                     `json:"token_id"`
	Size          decimal.Decimal            `json:"size"`
	AvgEntryPrice decimal.Decimal            `json:"avg_entry_price"`
	OpenedAt      time.Time                  `json:"opened_at"`
	LastUpdatedAt time.Time                  `json:"last_updated_at"`
	Contributions map[string]decimal.Decimal `json:"contributions"` // wallet -> USD exposure
}

type posKey struct {
	market  string
	tokenID string
}

// ReservationToken is the handle returned by Reserve and consumed by exactly
// one Commit or Release.
type ReservationToken struct {
	id     uint64
	leader string
	amount decimal.Decimal
}

// Amount returns the reserved USD amount.
func (t *ReservationToken) Amount() decimal.Decimal { return t.amount }

// ExposureLedger is the authoritative record of mirrored positions and
// exposure. All mutation happens under one mutex; global exposure is always
// the sum of per-leader exposures (reservations included, so concurrent
// reserves cannot jointly overshoot a limit).
type ExposureLedger struct {
	maxTotal decimal.Decimal

	mu           sync.Mutex
	positions    map[posKey]*MirrorPosition
	perLeader    map[string]decimal.Decimal
	processed    *idSet
	reservations map[uint64]*ReservationToken
	nextResID    uint64

	realized    map[string]decimal.Decimal
	tradeCounts map[string]int64
}

// NewExposureLedger builds an empty ledger bounded by maxTotalExposure.
func NewExposureLedger(maxTotalExposure decimal.Decimal) *ExposureLedger {
	return &ExposureLedger{
		maxTotal:     maxTotalExposure,
		positions:    make(map[posKey]*MirrorPosition),
		perLeader:    make(map[string]decimal.Decimal),
		processed:    newIDSet(processedFillsBound),
		reservations: make(map[uint64]*ReservationToken),
		realized:     make(map[string]decimal.Decimal),
		tradeCounts:  make(map[string]int64),
	}
}

// Reserve atomically checks both exposure limits and, if they hold, books
// the amount against them. The caller must follow with Commit or Release.
func (l *ExposureLedger) Reserve(leader string, allocated, amount decimal.Decimal) (*ReservationToken, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount.Sign() <= 0 {
		return nil, "reservation amount must be positive"
	}
	leaderExp := l.perLeader[leader]
	if leaderExp.Add(amount).GreaterThan(allocated) {
		return nil, fmt.Sprintf("exceeds allocated capital for trader ($%s + $%s > $%s)",
			leaderExp.StringFixed(2), amount.StringFixed(2), allocated.StringFixed(2))
	}
	global := l.globalLocked()
	if global.Add(amount).GreaterThan(l.maxTotal) {
		return nil, fmt.Sprintf("exceeds global exposure limit ($%s + $%s > $%s)",
			global.StringFixed(2), amount.StringFixed(2), l.maxTotal.StringFixed(2))
	}

	l.nextResID++
	token := &ReservationToken{id: l.nextResID, leader: leader, amount: amount}
	l.reservations[token.id] = token
	l.perLeader[leader] = leaderExp.Add(amount)
	return token, ""
}

// Commit finalizes a reservation: records the position change and marks the
// fill's trade id processed.
func (l *ExposureLedger) Commit(token *ReservationToken, fill models.FillEvent, shares, price decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if token == nil {
		return ledgerErrf("commit with nil token")
	}
	if _, ok := l.reservations[token.id]; !ok {
		return ledgerErrf("commit without prior reserve (token %d, trade %s)", token.id, fill.TradeID)
	}
	delete(l.reservations, token.id)

	key := posKey{market: fill.Market, tokenID: fill.TokenID}
	pos, ok := l.positions[key]
	now := time.Now()
	if !ok {
		pos = &MirrorPosition{
			Market:        fill.Market,
			TokenID:       fill.TokenID,
			OpenedAt:      now,
			Contributions: make(map[string]decimal.Decimal),
		}
		l.positions[key] = pos
	}

	// Weighted average entry across adds.
	newSize := pos.Size.Add(shares)
	if newSize.Sign() > 0 {
		existing := pos.Size.Mul(pos.AvgEntryPrice)
		added := shares.Mul(price)
		pos.AvgEntryPrice = existing.Add(added).Div(newSize)
	}
	pos.Size = newSize
	pos.LastUpdatedAt = now
	pos.Contributions[token.leader] = pos.Contributions[token.leader].Add(token.amount)

	l.processed.add(fill.TradeID)
	l.tradeCounts[token.leader]++
	return nil
}

// Release rolls back a reservation after an execution failure.
func (l *ExposureLedger) Release(token *ReservationToken) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if token == nil {
		return ledgerErrf("release with nil token")
	}
	if _, ok := l.reservations[token.id]; !ok {
		return ledgerErrf("release of unknown reservation %d", token.id)
	}
	delete(l.reservations, token.id)
	l.perLeader[token.leader] = l.perLeader[token.leader].Sub(token.amount)
	return nil
}

// ApplyReduction sells soldShares out of a mirror position at the given
// price, decrementing each contributing leader's exposure proportional to
// its share. Returns the realized proceeds and whether a position existed.
func (l *ExposureLedger) ApplyReduction(market, tokenID string, soldShares, price decimal.Decimal) (decimal.Decimal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := posKey{market: market, tokenID: tokenID}
	pos, ok := l.positions[key]
	if !ok || pos.Size.Sign() <= 0 {
		return decimal.Zero, false
	}
	if soldShares.GreaterThan(pos.Size) {
		soldShares = pos.Size
	}
	if soldShares.Sign() <= 0 {
		return decimal.Zero, false
	}

	fraction := soldShares.Div(pos.Size)
	proceeds := soldShares.Mul(price)
	costBasis := soldShares.Mul(pos.AvgEntryPrice)

	// Attribute the realized P&L by contribution share before the
	// contributions shrink.
	l.attributeRealized(pos, proceeds.Sub(costBasis))

	for wallet, contrib := range pos.Contributions {
		reduceBy := contrib.Mul(fraction)
		pos.Contributions[wallet] = contrib.Sub(reduceBy)
		l.perLeader[wallet] = l.perLeader[wallet].Sub(reduceBy)
		if l.perLeader[wallet].Sign() < 0 {
			l.perLeader[wallet] = decimal.Zero
		}
	}

	pos.Size = pos.Size.Sub(soldShares)
	pos.LastUpdatedAt = time.Now()
	if pos.Size.LessThan(decimal.NewFromFloat(mirrorDustThreshold)) {
		delete(l.positions, key)
	}
	return proceeds, true
}

func (l *ExposureLedger) attributeRealized(pos *MirrorPosition, pnl decimal.Decimal) {
	total := decimal.Zero
	for _, contrib := range pos.Contributions {
		total = total.Add(contrib)
	}
	if total.Sign() <= 0 {
		// Position fully unwound; split evenly across contributors.
		n := decimal.NewFromInt(int64(len(pos.Contributions)))
		if n.Sign() <= 0 {
			return
		}
		each := pnl.Div(n)
		for wallet := range pos.Contributions {
			l.realized[wallet] = l.realized[wallet].Add(each)
		}
		return
	}
	for wallet, contrib := range pos.Contributions {
		l.realized[wallet] = l.realized[wallet].Add(pnl.Mul(contrib.Div(total)))
	}
}

// MarkProcessed records a final verdict (accepted or rejected) for a trade
// id so replays are no-ops.
func (l *ExposureLedger) MarkProcessed(tradeID string) {
	l.mu.Lock()
	l.processed.add(tradeID)
	l.mu.Unlock()
}

// IsProcessed reports whether a trade id already has a final verdict.
func (l *ExposureLedger) IsProcessed(tradeID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processed.contains(tradeID)
}

// ExposureOf returns one leader's committed-plus-reserved exposure.
func (l *ExposureLedger) ExposureOf(leader string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perLeader[leader]
}

// GlobalExposure returns the sum of all per-leader exposures.
func (l *ExposureLedger) GlobalExposure() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.globalLocked()
}

func (l *ExposureLedger) globalLocked() decimal.Decimal {
	total := decimal.Zero
	for _, v := range l.perLeader {
		total = total.Add(v)
	}
	return total
}

// PositionOf returns a copy of the mirror position for a key, if any.
func (l *ExposureLedger) PositionOf(market, tokenID string) (MirrorPosition, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[posKey{market: market, tokenID: tokenID}]
	if !ok {
		return MirrorPosition{}, false
	}
	return copyPosition(pos), true
}

// Positions returns copies of all open mirror positions.
func (l *ExposureLedger) Positions() []MirrorPosition {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]MirrorPosition, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, copyPosition(pos))
	}
	return out
}

// RealizedPnl returns a leader's cumulative realized P&L.
func (l *ExposureLedger) RealizedPnl(leader string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.realized[leader]
}

// TradeCount returns how many fills committed for a leader.
func (l *ExposureLedger) TradeCount(leader string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tradeCounts[leader]
}

func copyPosition(pos *MirrorPosition) MirrorPosition {
	out := *pos
	out.Contributions = make(map[string]decimal.Decimal, len(pos.Contributions))
	for k, v := range pos.Contributions {
		out.Contributions[k] = v
	}
	return out
}

// LedgerState is the persisted form of the ledger. The processed-fill set is
// not serialized, and nothing rebuilds it on restore: a restored ledger starts
// with an empty set.
type LedgerState struct {
	Positions []MirrorPosition           `json:"positions"`
	PerLeader map[string]decimal.Decimal `json:"per_leader_exposure"`
	Realized  map[string]decimal.Decimal `json:"realized_pnl"`
	Counts    map[string]int64           `json:"trade_counts"`
}

// ExportState snapshots committed state. Pending reservations are excluded:
// they either commit before shutdown completes or are abandoned.
func (l *ExposureLedger) ExportState() LedgerState {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := LedgerState{
		Positions: make([]MirrorPosition, 0, len(l.positions)),
		PerLeader: make(map[string]decimal.Decimal, len(l.perLeader)),
		Realized:  make(map[string]decimal.Decimal, len(l.realized)),
		Counts:    make(map[string]int64, len(l.tradeCounts)),
	}
	pending := make(map[string]decimal.Decimal)
	for _, res := range l.reservations {
		pending[res.leader] = pending[res.leader].Add(res.amount)
	}
	for _, pos := range l.positions {
		out.Positions = append(out.Positions, copyPosition(pos))
	}
	for wallet, v := range l.perLeader {
		committed := v.Sub(pending[wallet])
		if committed.Sign() > 0 {
			out.PerLeader[wallet] = committed
		}
	}
	for wallet, v := range l.realized {
		out.Realized[wallet] = v
	}
	for wallet, v := range l.tradeCounts {
		out.Counts[wallet] = v
	}
	return out
}

// RestoreState reloads a persisted ledger snapshot.
func (l *ExposureLedger) RestoreState(state LedgerState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.positions = make(map[posKey]*MirrorPosition, len(state.Positions))
	for i := range state.Positions {
		pos := state.Positions[i]
		if pos.Contributions == nil {
			pos.Contributions = make(map[string]decimal.Decimal)
		}
		l.positions[posKey{market: pos.Market, tokenID: pos.TokenID}] = &pos
	}
	l.perLeader = make(map[string]decimal.Decimal, len(state.PerLeader))
	for wallet, v := range state.PerLeader {
		l.perLeader[wallet] = v
	}
	if state.Realized != nil {
		l.realized = state.Realized
	}
	if state.Counts != nil {
		l.tradeCounts = state.Counts
	}
}
