package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"polymarket-copytrader/api"
)

const wallet = "0xaaaa000000000000000000000000000000000001"

func TestSyncComputesSnapshot(t *testing.T) {
	tests := []struct {
		name          string
		positions     []api.DataPosition
		wantTotal     string
		wantDeployed  string
		wantRate      string
		wantPositions int
	}{
		{
			name: "marked positions",
			positions: []api.DataPosition{
				{Asset: "tok1", CurrentValue: 600, InitialValue: 500, Size: 1000},
				{Asset: "tok2", CurrentValue: 400, InitialValue: 450, Size: 800},
			},
			wantTotal:     "1000",
			wantDeployed:  "1000",
			wantRate:      "1",
			wantPositions: 2,
		},
		{
			name: "no marks falls back to initial",
			positions: []api.DataPosition{
				{Asset: "tok1", CurrentValue: 0, InitialValue: 300, Size: 500},
			},
			wantTotal:     "300",
			wantDeployed:  "0",
			wantRate:      "0",
			wantPositions: 1,
		},
		{
			name:          "empty portfolio",
			positions:     nil,
			wantTotal:     "0",
			wantDeployed:  "0",
			wantRate:      "0",
			wantPositions: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := api.NewMockDataClient()
			mock.SetPositions(wallet, tt.positions)
			tracker := NewPortfolioTracker(mock)

			snap, err := tracker.Sync(context.Background(), wallet)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !snap.TotalValue.Equal(decimal.RequireFromString(tt.wantTotal)) {
				t.Errorf("total = %s, want %s", snap.TotalValue, tt.wantTotal)
			}
			if !snap.Deployed.Equal(decimal.RequireFromString(tt.wantDeployed)) {
				t.Errorf("deployed = %s, want %s", snap.Deployed, tt.wantDeployed)
			}
			if !snap.DeploymentRate.Equal(decimal.RequireFromString(tt.wantRate)) {
				t.Errorf("rate = %s, want %s", snap.DeploymentRate, tt.wantRate)
			}
			if snap.PositionCount != tt.wantPositions {
				t.Errorf("count = %d, want %d", snap.PositionCount, tt.wantPositions)
			}
		})
	}
}

func TestSyncFailureKeepsPriorSnapshot(t *testing.T) {
	mock := api.NewMockDataClient()
	mock.SetPositions(wallet, []api.DataPosition{{Asset: "tok1", CurrentValue: 100, InitialValue: 100, Size: 200}})
	tracker := NewPortfolioTracker(mock)

	if _, err := tracker.Sync(context.Background(), wallet); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	mock.ErrorOnNext["GetPositions"] = errors.New("boom")
	if _, err := tracker.Sync(context.Background(), wallet); err == nil {
		t.Fatal("expected sync error")
	}

	snap, ok := tracker.Get(wallet)
	if !ok {
		t.Fatal("prior snapshot dropped")
	}
	if !snap.TotalValue.Equal(decimal.NewFromInt(100)) {
		t.Errorf("prior snapshot mutated: total = %s", snap.TotalValue)
	}
}

func TestEffectiveAllocation(t *testing.T) {
	mock := api.NewMockDataClient()
	tracker := NewPortfolioTracker(mock)
	allocated := decimal.NewFromInt(2000)

	// Unknown portfolio counts as fully deployed.
	eff, rate := tracker.EffectiveAllocation(wallet, allocated)
	if !eff.Equal(allocated) || !rate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("unknown portfolio: eff=%s rate=%s", eff, rate)
	}

	mock.SetPositions(wallet, nil)
	if _, err := tracker.Sync(context.Background(), wallet); err != nil {
		t.Fatalf("sync: %v", err)
	}
	eff, rate = tracker.EffectiveAllocation(wallet, allocated)
	if !eff.IsZero() || !rate.IsZero() {
		t.Errorf("empty portfolio: eff=%s rate=%s, want zero", eff, rate)
	}
}

func TestPositionFraction(t *testing.T) {
	mock := api.NewMockDataClient()
	mock.SetPositions(wallet, []api.DataPosition{{Asset: "tok1", CurrentValue: 10000, InitialValue: 9000, Size: 100}})
	tracker := NewPortfolioTracker(mock)
	if _, err := tracker.Sync(context.Background(), wallet); err != nil {
		t.Fatalf("sync: %v", err)
	}

	frac := tracker.PositionFraction(wallet, decimal.NewFromInt(50))
	if !frac.Equal(decimal.RequireFromString("0.005")) {
		t.Errorf("fraction = %s, want 0.005", frac)
	}
	if got := tracker.PositionFraction("0xunknown", decimal.NewFromInt(50)); !got.IsZero() {
		t.Errorf("unknown wallet fraction = %s, want 0", got)
	}
}
