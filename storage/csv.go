package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var decisionHeaders = []string{
	"timestamp",
	"event_type",
	"trader_name",
	"trader_wallet",
	"trade_id",
	"market",
	"title",
	"outcome",
	"side",
	"trader_size",
	"trader_price",
	"mirror_shares",
	"mirror_usd",
	"reason",
	"order_status",
	"order_id",
	"notes",
}

// CSVAuditStore appends decision records to one CSV file. Writes are
// serialized through a single mutex so rows never interleave.
type CSVAuditStore struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *csv.Writer
}

// NewCSVAuditStore opens (or creates) the audit CSV, writing the header on
// first creation.
func NewCSVAuditStore(path string) (*CSVAuditStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit csv: mkdir: %w", err)
	}

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit csv: open %s: %w", path, err)
	}

	s := &CSVAuditStore{path: path, file: file, w: csv.NewWriter(file)}
	if isNew {
		if err := s.w.Write(decisionHeaders); err != nil {
			file.Close()
			return nil, fmt.Errorf("audit csv: write header: %w", err)
		}
		s.w.Flush()
	}
	return s, nil
}

// SaveDecision appends one row and flushes it to disk.
func (s *CSVAuditStore) SaveDecision(_ context.Context, rec DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	row := []string{
		ts.UTC().Format(time.RFC3339),
		rec.EventType,
		rec.TraderName,
		rec.TraderWallet,
		rec.TradeID,
		rec.Market,
		rec.Title,
		rec.Outcome,
		rec.Side,
		rec.TraderSize,
		rec.TraderPrice,
		rec.MirrorShares,
		rec.MirrorUSD,
		rec.Reason,
		rec.OrderStatus,
		rec.OrderID,
		rec.Notes,
	}
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("audit csv: write row: %w", err)
	}
	s.w.Flush()
	return s.w.Error()
}

// Close flushes and closes the file.
func (s *CSVAuditStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

var _ AuditStore = (*CSVAuditStore)(nil)
