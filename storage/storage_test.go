package storage

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCSVAuditStoreAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")

	store, err := NewCSVAuditStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rec := DecisionRecord{
		Timestamp:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		EventType:    "executed",
		TraderName:   "alpha",
		TraderWallet: "0xabc",
		TradeID:      "tx:0x01:tok:BUY",
		Side:         "BUY",
		MirrorShares: "20",
		MirrorUSD:    "10",
		Reason:       "0.50% of leader portfolio",
	}
	if err := store.SaveDecision(context.Background(), rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening must append, not rewrite the header.
	store, err = NewCSVAuditStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	rec.EventType = "rejected"
	if err := store.SaveDecision(context.Background(), rec); err != nil {
		t.Fatalf("save 2: %v", err)
	}
	store.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 3 { // header + 2 rows
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0][0] != "timestamp" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][1] != "executed" || rows[2][1] != "rejected" {
		t.Errorf("event types = %q, %q", rows[1][1], rows[2][1])
	}
}

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.json")

	type payload struct {
		Global string         `json:"global"`
		Counts map[string]int `json:"counts"`
	}
	in := payload{Global: "1010.50", Counts: map[string]int{"alpha": 3}}
	if err := PersistState(path, in); err != nil {
		t.Fatalf("persist: %v", err)
	}

	var out payload
	ok, err := ReadState(path, &out)
	if err != nil || !ok {
		t.Fatalf("read: ok=%v err=%v", ok, err)
	}
	if out.Global != in.Global || out.Counts["alpha"] != 3 {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

func TestReadStateMissingFile(t *testing.T) {
	var out map[string]any
	ok, err := ReadState(filepath.Join(t.TempDir(), "missing.json"), &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("missing file reported as present")
	}
}
