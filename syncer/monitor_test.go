package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-copytrader/api"
	"polymarket-copytrader/config"
	"polymarket-copytrader/models"
)

func testTrader() config.TraderConfig {
	return config.TraderConfig{
		Name:             "alpha",
		WalletAddress:    "0xAAAA000000000000000000000000000000000001",
		AllocatedCapital: decimal.NewFromInt(2000),
		Enabled:          true,
	}
}

func futureTrade(tx string, offsetSec int64, side string, size, price float64) api.DataTrade {
	return api.DataTrade{
		Side:            side,
		Asset:           "tok1",
		ConditionID:     "market1",
		Size:            size,
		Price:           price,
		Timestamp:       time.Now().Unix() + offsetSec,
		TransactionHash: tx,
		Title:           "Some question",
		Outcome:         "Yes",
	}
}

func TestFirstPollBaselinesWithoutEvents(t *testing.T) {
	mock := api.NewMockDataClient()
	trader := testTrader()
	mock.SetTrades(trader.WalletAddress, []api.DataTrade{futureTrade("0x01", -100, "BUY", 10, 0.5)})

	monitor := NewTradeMonitor(mock, 5*time.Second)
	events, err := monitor.Poll(context.Background(), trader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("first poll should baseline and return nothing, got %d events", len(events))
	}
	if mock.Calls["GetTrades"] != 0 {
		t.Errorf("first poll should not hit the venue, made %d calls", mock.Calls["GetTrades"])
	}
}

func TestPollEmitsNewFillsInOrder(t *testing.T) {
	mock := api.NewMockDataClient()
	trader := testTrader()
	monitor := NewTradeMonitor(mock, 5*time.Second)

	if _, err := monitor.Poll(context.Background(), trader); err != nil {
		t.Fatalf("baseline poll: %v", err)
	}

	// Venue returns newest first; the monitor must re-order ascending.
	mock.SetTrades(trader.WalletAddress, []api.DataTrade{
		futureTrade("0x03", 30, "SELL", 5, 0.6),
		futureTrade("0x02", 20, "BUY", 10, 0.5),
		futureTrade("0x01", 10, "BUY", 20, 0.4),
	})

	events, err := monitor.Poll(context.Background(), trader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp < events[i-1].Timestamp {
			t.Errorf("events out of order: %d before %d", events[i-1].Timestamp, events[i].Timestamp)
		}
	}
	if events[0].LeaderName != "alpha" || events[0].AllocatedCapital.IsZero() {
		t.Errorf("event not enriched with leader config: %+v", events[0])
	}
	if events[0].Side != models.SideBuy {
		t.Errorf("side = %s", events[0].Side)
	}
}

func TestPollDeduplicatesReplayedTrades(t *testing.T) {
	mock := api.NewMockDataClient()
	trader := testTrader()
	monitor := NewTradeMonitor(mock, 5*time.Second)
	if _, err := monitor.Poll(context.Background(), trader); err != nil {
		t.Fatalf("baseline poll: %v", err)
	}

	trades := []api.DataTrade{futureTrade("0x01", 10, "BUY", 10, 0.5)}
	mock.SetTrades(trader.WalletAddress, trades)

	first, err := monitor.Poll(context.Background(), trader)
	if err != nil || len(first) != 1 {
		t.Fatalf("first poll: events=%d err=%v", len(first), err)
	}

	// Venue returns the same trade again inside the overlap window.
	second, err := monitor.Poll(context.Background(), trader)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("replayed trade not deduplicated: %d events", len(second))
	}
}

func TestPollAggregatesPartialFills(t *testing.T) {
	mock := api.NewMockDataClient()
	trader := testTrader()
	monitor := NewTradeMonitor(mock, 5*time.Second)
	if _, err := monitor.Poll(context.Background(), trader); err != nil {
		t.Fatalf("baseline poll: %v", err)
	}

	// Two partial fills of one swept order share a transaction hash.
	a := futureTrade("0xabc", 10, "BUY", 60, 0.50)
	b := futureTrade("0xabc", 10, "BUY", 40, 0.55)
	mock.SetTrades(trader.WalletAddress, []api.DataTrade{a, b})

	events, err := monitor.Poll(context.Background(), trader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 aggregated event, got %d", len(events))
	}
	ev := events[0]
	if !ev.Size.Equal(decimal.NewFromInt(100)) {
		t.Errorf("aggregated size = %s, want 100", ev.Size)
	}
	// Weighted avg: (60*0.50 + 40*0.55) / 100 = 0.52
	if !ev.Price.Equal(decimal.RequireFromString("0.52")) {
		t.Errorf("aggregated price = %s, want 0.52", ev.Price)
	}
}

func TestPollSkipsNonTradeActivity(t *testing.T) {
	mock := api.NewMockDataClient()
	trader := testTrader()
	monitor := NewTradeMonitor(mock, 5*time.Second)
	if _, err := monitor.Poll(context.Background(), trader); err != nil {
		t.Fatalf("baseline poll: %v", err)
	}

	redeem := futureTrade("0x01", 10, "BUY", 10, 0.5)
	redeem.Type = "REDEEM"
	mock.SetTrades(trader.WalletAddress, []api.DataTrade{redeem})

	events, err := monitor.Poll(context.Background(), trader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("REDEEM should be skipped, got %d events", len(events))
	}
}

func TestMonitorStateRoundTrip(t *testing.T) {
	mock := api.NewMockDataClient()
	trader := testTrader()
	monitor := NewTradeMonitor(mock, 5*time.Second)
	if _, err := monitor.Poll(context.Background(), trader); err != nil {
		t.Fatalf("baseline poll: %v", err)
	}
	mock.SetTrades(trader.WalletAddress, []api.DataTrade{futureTrade("0x01", 10, "BUY", 10, 0.5)})
	if _, err := monitor.Poll(context.Background(), trader); err != nil {
		t.Fatalf("poll: %v", err)
	}

	restored := NewTradeMonitor(mock, 5*time.Second)
	restored.RestoreState(monitor.ExportState())

	// The restored monitor must not re-emit the fill it already saw, and
	// must not baseline again.
	events, err := restored.Poll(context.Background(), trader)
	if err != nil {
		t.Fatalf("restored poll: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("restored monitor re-emitted %d fills", len(events))
	}
}

func TestIDSetEvictsOldest(t *testing.T) {
	s := newIDSet(3)
	for _, id := range []string{"a", "b", "c", "d"} {
		s.add(id)
	}
	if s.contains("a") {
		t.Error("oldest id should have been evicted")
	}
	for _, id := range []string{"b", "c", "d"} {
		if !s.contains(id) {
			t.Errorf("id %s missing", id)
		}
	}
}
