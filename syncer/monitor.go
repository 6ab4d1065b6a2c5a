package syncer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-copytrader/api"
	"polymarket-copytrader/config"
	"polymarket-copytrader/models"
)

const (
	// seenIDsBound caps the per-leader recent trade-id set.
	seenIDsBound = 1024

	// tradeFetchLimit is how many recent fills one poll requests.
	tradeFetchLimit = 100
)

// TradeMonitor produces, per leader, the strictly increasing sequence of
// previously-unseen fills. State is per-leader, so all leaders can be polled
// concurrently without shared locking on the hot path.
type TradeMonitor struct {
	client  api.DataClientInterface
	overlap int64 // seconds re-fetched past the cursor to absorb clock skew

	mu    sync.Mutex
	state map[string]*leaderCursor
}

type leaderCursor struct {
	lastSeenTS int64
	seen       *idSet
	baselined  bool
}

// MonitorState is the persisted form of the monitor's cursors.
type MonitorState struct {
	Leaders map[string]LeaderCursorState `json:"leaders"`
}

// LeaderCursorState is one leader's persisted cursor.
type LeaderCursorState struct {
	LastSeenTS int64    `json:"last_seen_ts"`
	RecentIDs  []string `json:"recent_ids"`
}

// NewTradeMonitor builds a monitor. The overlap window is at least twice the
// poll interval.
func NewTradeMonitor(client api.DataClientInterface, pollInterval time.Duration) *TradeMonitor {
	overlap := int64(2 * pollInterval / time.Second)
	if overlap < 10 {
		overlap = 10
	}
	return &TradeMonitor{
		client:  client,
		overlap: overlap,
		state:   make(map[string]*leaderCursor),
	}
}

// Poll fetches new fills for one leader. The first observation of a wallet
// records a baseline timestamp and returns nothing, so only trades placed
// after startup are mirrored.
func (m *TradeMonitor) Poll(ctx context.Context, trader config.TraderConfig) ([]models.FillEvent, error) {
	wallet := strings.ToLower(trader.WalletAddress)

	cur := m.cursor(wallet)
	m.mu.Lock()
	if !cur.baselined {
		cur.baselined = true
		cur.lastSeenTS = time.Now().Unix()
		m.mu.Unlock()
		return nil, nil
	}
	since := cur.lastSeenTS
	m.mu.Unlock()

	trades, err := m.client.GetTrades(ctx, api.TradeQuery{
		User:      trader.WalletAddress,
		Limit:     tradeFetchLimit,
		TakerOnly: false,
	})
	if err != nil {
		return nil, err
	}

	cutoff := since - m.overlap
	fresh := make([]api.DataTrade, 0, len(trades))
	maxTS := since
	for _, tr := range trades {
		if tr.Type != "" && tr.Type != "TRADE" {
			continue // REDEEM / SPLIT / MERGE
		}
		if tr.Timestamp <= cutoff {
			continue
		}
		fresh = append(fresh, tr)
		if tr.Timestamp > maxTS {
			maxTS = tr.Timestamp
		}
	}

	events := aggregateFills(fresh, trader)

	m.mu.Lock()
	out := events[:0]
	for _, ev := range events {
		if ev.Timestamp <= since-m.overlap {
			continue
		}
		if cur.seen.contains(ev.TradeID) {
			continue
		}
		cur.seen.add(ev.TradeID)
		out = append(out, ev)
	}
	if maxTS > cur.lastSeenTS {
		cur.lastSeenTS = maxTS
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (m *TradeMonitor) cursor(wallet string) *leaderCursor {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.state[wallet]
	if !ok {
		cur = &leaderCursor{seen: newIDSet(seenIDsBound)}
		m.state[wallet] = cur
	}
	return cur
}

// aggregateFills folds partial fills sharing an aggregation key into one
// event with a size-weighted average price. The key doubles as the trade id.
func aggregateFills(trades []api.DataTrade, trader config.TraderConfig) []models.FillEvent {
	type bucket struct {
		event    models.FillEvent
		size     decimal.Decimal
		notional decimal.Decimal
	}
	grouped := make(map[string]*bucket)
	order := make([]string, 0, len(trades))

	for _, tr := range trades {
		key := aggregationKey(tr)
		size := decimal.NewFromFloat(tr.Size)
		price := decimal.NewFromFloat(tr.Price)

		b, ok := grouped[key]
		if !ok {
			b = &bucket{event: models.FillEvent{
				LeaderWallet:     strings.ToLower(trader.WalletAddress),
				LeaderName:       trader.Name,
				AllocatedCapital: trader.AllocatedCapital,
				Market:           tr.ConditionID,
				TokenID:          tr.Asset,
				Side:             models.Side(strings.ToUpper(tr.Side)),
				Timestamp:        tr.Timestamp,
				TradeID:          key,
				Title:            tr.Title,
				Outcome:          tr.Outcome,
			}}
			grouped[key] = b
			order = append(order, key)
		}
		b.size = b.size.Add(size)
		b.notional = b.notional.Add(size.Mul(price))
		if tr.Timestamp > b.event.Timestamp {
			b.event.Timestamp = tr.Timestamp
		}
	}

	events := make([]models.FillEvent, 0, len(grouped))
	for _, key := range order {
		b := grouped[key]
		if b.size.Sign() <= 0 {
			continue
		}
		b.event.Size = b.size
		b.event.Price = b.notional.Div(b.size)
		events = append(events, b.event)
	}
	return events
}

func aggregationKey(tr api.DataTrade) string {
	txHash := strings.ToLower(strings.TrimSpace(tr.TransactionHash))
	if txHash != "" {
		return fmt.Sprintf("tx:%s:%s:%s", txHash, tr.Asset, strings.ToUpper(tr.Side))
	}
	return fmt.Sprintf("ts:%d:%s:%s:%g", tr.Timestamp, tr.Asset, strings.ToUpper(tr.Side), tr.Price)
}

// Forget drops a leader's cursor, e.g. when it is removed from config.
func (m *TradeMonitor) Forget(wallet string) {
	m.mu.Lock()
	delete(m.state, strings.ToLower(wallet))
	m.mu.Unlock()
}

// ExportState snapshots all cursors for persistence.
func (m *TradeMonitor) ExportState() MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := MonitorState{Leaders: make(map[string]LeaderCursorState, len(m.state))}
	for wallet, cur := range m.state {
		out.Leaders[wallet] = LeaderCursorState{
			LastSeenTS: cur.lastSeenTS,
			RecentIDs:  cur.seen.values(),
		}
	}
	return out
}

// RestoreState reloads cursors persisted by ExportState. Restored leaders
// are treated as already baselined.
func (m *TradeMonitor) RestoreState(state MonitorState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for wallet, cs := range state.Leaders {
		cur := &leaderCursor{
			lastSeenTS: cs.LastSeenTS,
			seen:       newIDSet(seenIDsBound),
			baselined:  true,
		}
		for _, id := range cs.RecentIDs {
			cur.seen.add(id)
		}
		m.state[strings.ToLower(wallet)] = cur
	}
}

// idSet is a bounded insertion-ordered set; the oldest entry is evicted
// when the bound is exceeded.
type idSet struct {
	bound int
	ids   map[string]struct{}
	order []string
}

func newIDSet(bound int) *idSet {
	return &idSet{bound: bound, ids: make(map[string]struct{}, bound)}
}

func (s *idSet) contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *idSet) add(id string) {
	if s.contains(id) {
		return
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	for len(s.order) > s.bound {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.ids, oldest)
	}
}

func (s *idSet) values() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
