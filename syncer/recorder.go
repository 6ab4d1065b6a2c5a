package syncer

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"polymarket-copytrader/api"
	"polymarket-copytrader/config"
	"polymarket-copytrader/storage"
)

var recorderHeaders = []string{
	"timestamp_iso",
	"timestamp_unix",
	"transaction_hash",
	"side",
	"size",
	"price",
	"market",
	"token_id",
	"title",
	"outcome",
}

const recorderPageSize = 200

// TradeHistoryRecorder fetches and persists every enabled trader's fills to
// per-trader CSV files, resuming from a JSON cursor across restarts. It
// places no orders.
type TradeHistoryRecorder struct {
	client    api.DataClientInterface
	traders   []config.TraderConfig
	outputDir string
	statePath string
	interval  time.Duration

	state recorderState
}

type recorderState struct {
	PerTrader map[string]traderCursor `json:"per_trader"`
}

type traderCursor struct {
	LastTimestamp int64    `json:"last_timestamp"`
	LastHashes    []string `json:"last_hashes"`
}

// NewTradeHistoryRecorder builds a recorder for the config's enabled traders.
func NewTradeHistoryRecorder(client api.DataClientInterface, cfg *config.Config) *TradeHistoryRecorder {
	interval := time.Duration(cfg.Tracking.PollIntervalSec) * time.Second
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	return &TradeHistoryRecorder{
		client:    client,
		traders:   cfg.EnabledTraders(),
		outputDir: cfg.Tracking.OutputDir,
		statePath: filepath.Join(cfg.StateDir, "trade_history_state.json"),
		interval:  interval,
		state:     recorderState{PerTrader: make(map[string]traderCursor)},
	}
}

// Run polls until ctx is cancelled.
func (r *TradeHistoryRecorder) Run(ctx context.Context) error {
	if len(r.traders) == 0 {
		log.Printf("[recorder] no enabled traders configured")
		return nil
	}
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return fmt.Errorf("recorder: mkdir output: %w", err)
	}
	if ok, err := storage.ReadState(r.statePath, &r.state); err != nil {
		log.Printf("[recorder] state unreadable, starting fresh: %v", err)
	} else if ok && r.state.PerTrader == nil {
		r.state.PerTrader = make(map[string]traderCursor)
	}

	if err := r.bootstrap(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.persist()
			return nil
		case <-ticker.C:
			if err := r.syncNewTrades(ctx); err != nil {
				log.Printf("[recorder] sync failed: %v", err)
			}
		}
	}
}

// bootstrap writes the full history for any trader without a log yet.
func (r *TradeHistoryRecorder) bootstrap(ctx context.Context) error {
	for _, trader := range r.traders {
		wallet := strings.ToLower(trader.WalletAddress)
		logPath := r.logPath(trader)
		if _, ok := r.state.PerTrader[wallet]; ok {
			if _, err := os.Stat(logPath); err == nil {
				continue
			}
		}

		trades, err := r.fetchAll(ctx, trader.WalletAddress)
		if err != nil {
			return fmt.Errorf("recorder: bootstrap %s: %w", trader.Name, err)
		}
		if err := r.writeFullLog(logPath, trades); err != nil {
			return err
		}
		cur := traderCursor{}
		if len(trades) > 0 {
			last := trades[len(trades)-1]
			cur.LastTimestamp = last.Timestamp
			for _, tr := range trades {
				if tr.Timestamp == last.Timestamp {
					cur.LastHashes = append(cur.LastHashes, tr.TransactionHash)
				}
			}
			log.Printf("[recorder] bootstrapped %s with %d trades", trader.Name, len(trades))
		} else {
			log.Printf("[recorder] no trades found for %s; wrote empty log", trader.Name)
		}
		r.state.PerTrader[wallet] = cur
		r.persist()
	}
	return nil
}

func (r *TradeHistoryRecorder) syncNewTrades(ctx context.Context) error {
	for _, trader := range r.traders {
		wallet := strings.ToLower(trader.WalletAddress)
		cur := r.state.PerTrader[wallet]

		fresh, err := r.fetchSince(ctx, trader.WalletAddress, cur)
		if err != nil {
			log.Printf("[recorder] fetch for %s failed: %v", trader.Name, err)
			continue
		}
		if len(fresh) == 0 {
			continue
		}

		if err := r.appendTrades(r.logPath(trader), fresh); err != nil {
			return err
		}
		last := fresh[len(fresh)-1]
		next := traderCursor{LastTimestamp: last.Timestamp}
		for _, tr := range fresh {
			if tr.Timestamp == last.Timestamp {
				next.LastHashes = append(next.LastHashes, tr.TransactionHash)
			}
		}
		r.state.PerTrader[wallet] = next
		log.Printf("[recorder] recorded %d trades for %s (latest ts %d)", len(fresh), trader.Name, last.Timestamp)
		r.persist()
	}
	return nil
}

func (r *TradeHistoryRecorder) fetchAll(ctx context.Context, wallet string) ([]api.DataTrade, error) {
	var all []api.DataTrade
	for offset := 0; ; offset += recorderPageSize {
		batch, err := r.client.GetTrades(ctx, api.TradeQuery{
			User:   wallet,
			Limit:  recorderPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < recorderPageSize {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp < all[j].Timestamp })
	return all, nil
}

// fetchSince pages newest-first until it passes the cursor, then filters to
// trades strictly after it (same-timestamp trades are deduped by tx hash).
func (r *TradeHistoryRecorder) fetchSince(ctx context.Context, wallet string, cur traderCursor) ([]api.DataTrade, error) {
	lastHashes := make(map[string]struct{}, len(cur.LastHashes))
	for _, h := range cur.LastHashes {
		lastHashes[h] = struct{}{}
	}

	var collected []api.DataTrade
	for offset := 0; ; offset += recorderPageSize {
		batch, err := r.client.GetTrades(ctx, api.TradeQuery{
			User:   wallet,
			Limit:  recorderPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, err
		}
		collected = append(collected, batch...)

		passedCursor := false
		for _, tr := range batch {
			if tr.Timestamp < cur.LastTimestamp {
				passedCursor = true
				break
			}
		}
		if len(batch) < recorderPageSize || passedCursor {
			break
		}
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].Timestamp < collected[j].Timestamp })
	fresh := collected[:0]
	for _, tr := range collected {
		if tr.Timestamp < cur.LastTimestamp {
			continue
		}
		if tr.Timestamp == cur.LastTimestamp {
			if _, seen := lastHashes[tr.TransactionHash]; seen {
				continue
			}
		}
		fresh = append(fresh, tr)
	}
	return fresh, nil
}

func (r *TradeHistoryRecorder) writeFullLog(path string, trades []api.DataTrade) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("recorder: mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recorder: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(recorderHeaders); err != nil {
		return err
	}
	for _, tr := range trades {
		if err := w.Write(formatRow(tr)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (r *TradeHistoryRecorder) appendTrades(path string, trades []api.DataTrade) error {
	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("recorder: open %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(recorderHeaders); err != nil {
			return err
		}
	}
	for _, tr := range trades {
		if err := w.Write(formatRow(tr)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatRow(tr api.DataTrade) []string {
	return []string{
		time.Unix(tr.Timestamp, 0).UTC().Format(time.RFC3339),
		fmt.Sprintf("%d", tr.Timestamp),
		tr.TransactionHash,
		strings.ToUpper(tr.Side),
		fmt.Sprintf("%.6f", tr.Size),
		fmt.Sprintf("%.6f", tr.Price),
		tr.ConditionID,
		tr.Asset,
		tr.Title,
		tr.Outcome,
	}
}

func (r *TradeHistoryRecorder) logPath(trader config.TraderConfig) string {
	wallet := strings.ToLower(trader.WalletAddress)
	name := trader.Name
	if name == "" {
		name = wallet
	}
	var b strings.Builder
	for _, ch := range name {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
		} else {
			b.WriteRune('_')
		}
	}
	safe := strings.Trim(b.String(), "_")
	if safe == "" {
		safe = "trader"
	}
	return filepath.Join(r.outputDir, fmt.Sprintf("%s_%s.csv", safe, wallet))
}

func (r *TradeHistoryRecorder) persist() {
	if err := storage.PersistState(r.statePath, r.state); err != nil {
		log.Printf("[recorder] persist state: %v", err)
	}
}
