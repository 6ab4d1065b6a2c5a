package syncer

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"polymarket-copytrader/api"
	"polymarket-copytrader/config"
	"polymarket-copytrader/storage"
)

func recorderConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Traders: []config.TraderConfig{{
			Name:             "alpha",
			WalletAddress:    walletA,
			AllocatedCapital: d("1000"),
			Enabled:          true,
		}},
		Tracking: config.TrackingConfig{PollIntervalSec: 30, OutputDir: filepath.Join(dir, "trader_trades")},
		StateDir: dir,
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return rows
}

func TestRecorderBootstrapAndIncrementalSync(t *testing.T) {
	cfg := recorderConfig(t)
	mock := api.NewMockDataClient()
	now := time.Now().Unix()
	mock.SetTrades(walletA, []api.DataTrade{
		{Side: "BUY", Asset: "tok1", ConditionID: "m1", Size: 10, Price: 0.5, Timestamp: now - 100, TransactionHash: "0x01"},
		{Side: "SELL", Asset: "tok1", ConditionID: "m1", Size: 5, Price: 0.6, Timestamp: now - 50, TransactionHash: "0x02"},
	})

	rec := NewTradeHistoryRecorder(mock, cfg)
	if err := os.MkdirAll(cfg.Tracking.OutputDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := rec.bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	logPath := filepath.Join(cfg.Tracking.OutputDir, "alpha_"+walletA+".csv")
	rows := readCSV(t, logPath)
	if len(rows) != 3 { // header + 2 trades
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	// Oldest first.
	if rows[1][2] != "0x01" || rows[2][2] != "0x02" {
		t.Errorf("trade order = %q, %q", rows[1][2], rows[2][2])
	}

	// A new trade arrives; only it is appended.
	mock.SetTrades(walletA, []api.DataTrade{
		{Side: "BUY", Asset: "tok2", ConditionID: "m2", Size: 3, Price: 0.4, Timestamp: now + 10, TransactionHash: "0x03"},
		{Side: "SELL", Asset: "tok1", ConditionID: "m1", Size: 5, Price: 0.6, Timestamp: now - 50, TransactionHash: "0x02"},
	})
	if err := rec.syncNewTrades(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	rows = readCSV(t, logPath)
	if len(rows) != 4 {
		t.Fatalf("rows after sync = %d, want 4", len(rows))
	}
	if rows[3][2] != "0x03" {
		t.Errorf("appended trade = %q, want 0x03", rows[3][2])
	}

	// The persisted cursor points at the newest trade.
	var st recorderState
	ok, err := storage.ReadState(filepath.Join(cfg.StateDir, "trade_history_state.json"), &st)
	if err != nil || !ok {
		t.Fatalf("state read: ok=%v err=%v", ok, err)
	}
	if cur := st.PerTrader[walletA]; cur.LastTimestamp != now+10 {
		t.Errorf("cursor = %d, want %d", cur.LastTimestamp, now+10)
	}
}
