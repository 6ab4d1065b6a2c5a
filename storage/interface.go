// Package storage persists the engine's audit trail and runtime state:
// the always-on CSV decision log, an optional Postgres audit store, and the
// JSON state files used for crash recovery.
package storage

import (
	"context"
	"time"
)

// DecisionRecord is one attempted mirror, accepted or not.
type DecisionRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	EventType    string    `json:"event_type"` // executed, rejected, failed, dry_run, skipped
	TraderName   string    `json:"trader_name"`
	TraderWallet string    `json:"trader_wallet"`
	TradeID      string    `json:"trade_id"`
	Market       string    `json:"market"`
	Title        string    `json:"title"`
	Outcome      string    `json:"outcome"`
	Side         string    `json:"side"`
	TraderSize   string    `json:"trader_size"`
	TraderPrice  string    `json:"trader_price"`
	MirrorShares string    `json:"mirror_shares"`
	MirrorUSD    string    `json:"mirror_usd"`
	Reason       string    `json:"reason"`
	OrderStatus  string    `json:"order_status"`
	OrderID      string    `json:"order_id"`
	Notes        string    `json:"notes"`
}

// AuditStore records mirror decisions.
type AuditStore interface {
	SaveDecision(ctx context.Context, rec DecisionRecord) error
	Close() error
}
