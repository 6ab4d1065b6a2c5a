package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresAuditStore mirrors the decision audit into Postgres for querying
// alongside the CSV sink.
type PostgresAuditStore struct {
	pool *pgxpool.Pool
}

// NewPostgresAuditStore connects to the database and ensures the audit
// table exists.
func NewPostgresAuditStore(ctx context.Context, databaseURL string) (*PostgresAuditStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	cfg.MaxConns = 5
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	s := &PostgresAuditStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresAuditStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS mirror_decisions (
			id            BIGSERIAL PRIMARY KEY,
			recorded_at   TIMESTAMPTZ NOT NULL,
			event_type    TEXT NOT NULL,
			trader_name   TEXT NOT NULL,
			trader_wallet TEXT NOT NULL,
			trade_id      TEXT NOT NULL,
			market        TEXT,
			title         TEXT,
			outcome       TEXT,
			side          TEXT,
			trader_size   TEXT,
			trader_price  TEXT,
			mirror_shares TEXT,
			mirror_usd    TEXT,
			reason        TEXT,
			order_status  TEXT,
			order_id      TEXT,
			notes         TEXT
		);
		CREATE INDEX IF NOT EXISTS mirror_decisions_wallet_idx
			ON mirror_decisions (trader_wallet, recorded_at)
	`)
	if err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

// SaveDecision inserts one audit row.
func (s *PostgresAuditStore) SaveDecision(ctx context.Context, rec DecisionRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mirror_decisions (
			recorded_at, event_type, trader_name, trader_wallet, trade_id,
			market, title, outcome, side, trader_size, trader_price,
			mirror_shares, mirror_usd, reason, order_status, order_id, notes
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		ts, rec.EventType, rec.TraderName, rec.TraderWallet, rec.TradeID,
		rec.Market, rec.Title, rec.Outcome, rec.Side, rec.TraderSize, rec.TraderPrice,
		rec.MirrorShares, rec.MirrorUSD, rec.Reason, rec.OrderStatus, rec.OrderID, rec.Notes,
	)
	if err != nil {
		return fmt.Errorf("postgres: save decision: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresAuditStore) Close() error {
	s.pool.Close()
	return nil
}

var _ AuditStore = (*PostgresAuditStore)(nil)

// MultiAuditStore fans one decision out to several sinks; the first error
// wins but every sink is attempted.
type MultiAuditStore struct {
	stores []AuditStore
}

// NewMultiAuditStore combines sinks, ignoring nils.
func NewMultiAuditStore(stores ...AuditStore) *MultiAuditStore {
	out := &MultiAuditStore{}
	for _, st := range stores {
		if st != nil {
			out.stores = append(out.stores, st)
		}
	}
	return out
}

func (m *MultiAuditStore) SaveDecision(ctx context.Context, rec DecisionRecord) error {
	var first error
	for _, st := range m.stores {
		if err := st.SaveDecision(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiAuditStore) Close() error {
	var first error
	for _, st := range m.stores {
		if err := st.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ AuditStore = (*MultiAuditStore)(nil)
