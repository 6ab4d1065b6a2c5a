package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-copytrader/api"
	"polymarket-copytrader/config"
	"polymarket-copytrader/models"
	"polymarket-copytrader/storage"
)

// LeaderState is the per-leader control state.
type LeaderState string

const (
	LeaderDisabled LeaderState = "disabled"
	LeaderEnabled  LeaderState = "enabled"
	LeaderPaused   LeaderState = "paused"
	LeaderFaulted  LeaderState = "faulted"
)

const (
	// fillQueueBound is the max buffered fill events. Above the
	// backpressure threshold the slow loop is skipped.
	fillQueueBound        = 1024
	backpressureThreshold = fillQueueBound / 2
	faultedAfterFailures  = 3
	shutdownGrace         = 30 * time.Second
	maxSellDeferrals      = 1
)

// ErrAuthFatal wraps a venue auth failure; the engine stops on it.
var ErrAuthFatal = errors.New("venue authentication failed")

type leaderRuntime struct {
	cfg          config.TraderConfig
	state        LeaderState
	syncFailures int
}

type queuedFill struct {
	fill     models.FillEvent
	attempts int // sell-deferral count
}

// CopyTrader owns the control loop: it schedules the trade monitor and
// portfolio sync, routes fills through the risk manager and executor, and
// persists state for crash recovery.
type CopyTrader struct {
	cfg     *config.Config
	cfgPath string
	cfgTime time.Time

	monitor  *TradeMonitor
	tracker  *PortfolioTracker
	risk     *RiskManager
	ledger   *ExposureLedger
	executor *TradeExecutor
	audit    storage.AuditStore
	metrics  *MetricsStore
	ws       *api.MarketWS

	pollInterval time.Duration
	syncInterval time.Duration
	stateDir     string

	mu      sync.RWMutex
	leaders map[string]*leaderRuntime // keyed by lowercase wallet

	fillQueue  chan queuedFill
	deferredMu sync.Mutex
	deferred   []queuedFill
	activityCh chan struct{}

	counts struct {
		sync.Mutex
		observed, executed, rejected, failed int64
	}

	startedAt time.Time
	stopOnce  sync.Once
	stopCh    chan struct{}
	fatalCh   chan error
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Monitor  *TradeMonitor
	Tracker  *PortfolioTracker
	Risk     *RiskManager
	Ledger   *ExposureLedger
	Executor *TradeExecutor
	Audit    storage.AuditStore
	Metrics  *MetricsStore
	MarketWS *api.MarketWS
}

// NewCopyTrader wires the engine together. cfgPath enables hot reload and
// may be empty (tests).
func NewCopyTrader(cfg *config.Config, cfgPath string, deps Deps) *CopyTrader {
	ct := &CopyTrader{
		cfg:          cfg,
		cfgPath:      cfgPath,
		pollInterval: cfg.PollInterval(),
		syncInterval: cfg.PortfolioSyncInterval(),
		stateDir:     cfg.StateDir,
		monitor:      deps.Monitor,
		tracker:      deps.Tracker,
		risk:         deps.Risk,
		ledger:       deps.Ledger,
		executor:     deps.Executor,
		audit:        deps.Audit,
		metrics:      deps.Metrics,
		ws:           deps.MarketWS,
		leaders:      make(map[string]*leaderRuntime),
		fillQueue:    make(chan queuedFill, fillQueueBound),
		activityCh:   make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		fatalCh:      make(chan error, 1),
	}
	if cfgPath != "" {
		if st, err := os.Stat(cfgPath); err == nil {
			ct.cfgTime = st.ModTime()
		}
	}
	for _, t := range cfg.Traders {
		state := LeaderDisabled
		if t.Enabled {
			state = LeaderEnabled
		}
		ct.leaders[strings.ToLower(t.WalletAddress)] = &leaderRuntime{cfg: t, state: state}
	}
	return ct
}

// Run drives the engine until ctx is cancelled, Stop is called, or a fatal
// error occurs. The returned error is nil on clean shutdown.
func (ct *CopyTrader) Run(ctx context.Context) error {
	ct.startedAt = time.Now()
	ct.restoreState()

	if ct.ws != nil {
		ct.ws.Start(ctx)
		defer ct.ws.Stop()
	}

	log.Printf("[copytrader] starting; watching %d enabled traders", len(ct.enabledLeaders()))
	for _, lr := range ct.enabledLeaders() {
		log.Printf("[copytrader] - %s (%s) allocated $%s", lr.cfg.Name, lr.cfg.WalletAddress, lr.cfg.AllocatedCapital.StringFixed(2))
	}
	if ct.executor.DryRun() {
		log.Printf("[copytrader] no venue credentials: running in dry-run mode")
	}

	// Deployment stats before the first fill is sized.
	ct.syncPortfolios(ctx)

	var consumerWG sync.WaitGroup
	consumerWG.Add(1)
	go func() {
		defer consumerWG.Done()
		ct.consumeFills(ctx)
	}()

	pollTicker := time.NewTicker(ct.pollInterval)
	defer pollTicker.Stop()
	syncTicker := time.NewTicker(ct.syncInterval)
	defer syncTicker.Stop()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ct.stopCh:
			break loop
		case runErr = <-ct.fatalCh:
			log.Printf("[copytrader] fatal: %v", runErr)
			break loop
		case <-syncTicker.C:
			if len(ct.fillQueue) > backpressureThreshold {
				log.Printf("[copytrader] fill queue backlog (%d); skipping portfolio sync", len(ct.fillQueue))
				continue
			}
			ct.syncPortfolios(ctx)
		case <-pollTicker.C:
			ct.tick(ctx)
		case <-ct.activityCh:
			// Market WS saw activity on a watched token; poll early.
			ct.tick(ctx)
		}
	}

	// Stop admitting new fills, then drain in-flight executions within the
	// grace window.
	close(ct.fillQueue)
	drained := make(chan struct{})
	go func() {
		consumerWG.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(shutdownGrace):
		log.Printf("[copytrader] shutdown grace expired with work in flight")
	}

	ct.persistState()
	log.Printf("[copytrader] stopped")
	return runErr
}

// Stop requests a graceful shutdown.
func (ct *CopyTrader) Stop() {
	ct.stopOnce.Do(func() { close(ct.stopCh) })
}

// tick runs one fast-loop cycle: reload config if changed, poll every
// non-disabled leader concurrently, and enqueue new fills.
func (ct *CopyTrader) tick(ctx context.Context) {
	start := time.Now()
	defer func() { PollLatency.Observe(time.Since(start).Seconds()) }()

	ct.maybeReloadConfig()
	ct.requeueDeferred()

	type pollResult struct {
		wallet string
		events []models.FillEvent
		err    error
	}

	leaders := ct.pollableLeaders()
	results := make(chan pollResult, len(leaders))
	var wg sync.WaitGroup
	for _, lr := range leaders {
		wg.Add(1)
		go func(cfg config.TraderConfig) {
			defer wg.Done()
			pollCtx, cancel := context.WithTimeout(ctx, ct.pollInterval)
			defer cancel()
			events, err := ct.monitor.Poll(pollCtx, cfg)
			results <- pollResult{wallet: strings.ToLower(cfg.WalletAddress), events: events, err: err}
		}(lr.cfg)
	}
	wg.Wait()
	close(results)

	for res := range results {
		if res.err != nil {
			if api.KindOf(res.err) == api.KindAuth {
				ct.escalate(fmt.Errorf("%w: %v", ErrAuthFatal, res.err))
				return
			}
			log.Printf("[copytrader] poll %s failed: %v", res.wallet, res.err)
			continue
		}
		state := ct.leaderState(res.wallet)
		if state != LeaderEnabled && state != LeaderFaulted {
			// Paused leaders are polled so the cursor advances, but their
			// fills are never sized or executed.
			continue
		}
		for _, ev := range res.events {
			ct.enqueue(ctx, queuedFill{fill: ev})
		}
	}

	ct.persistState()
	ct.publishMetrics(ctx)
}

func (ct *CopyTrader) enqueue(ctx context.Context, qf queuedFill) {
	FillsObserved.WithLabelValues(qf.fill.LeaderName).Inc()
	ct.counts.Lock()
	ct.counts.observed++
	ct.counts.Unlock()

	select {
	case ct.fillQueue <- qf:
	default:
		// Queue full: block rather than drop, and shout about it.
		log.Printf("[copytrader] fill queue full (%d); fast loop blocked", fillQueueBound)
		select {
		case ct.fillQueue <- qf:
		case <-ctx.Done():
		case <-ct.stopCh:
		}
	}
}

func (ct *CopyTrader) consumeFills(ctx context.Context) {
	for qf := range ct.fillQueue {
		ct.processFill(ctx, qf)
	}
}

// processFill routes one fill through the risk manager and executor.
func (ct *CopyTrader) processFill(ctx context.Context, qf queuedFill) {
	fill := qf.fill

	if ct.ledger.IsProcessed(fill.TradeID) {
		log.Printf("[copytrader] duplicate trade_id %s; skipping", fill.TradeID)
		return
	}

	switch fill.Side {
	case models.SideBuy:
		ct.processBuy(ctx, fill)
	case models.SideSell:
		ct.processSell(ctx, qf)
	default:
		log.Printf("[copytrader] unknown side %q on trade %s", fill.Side, fill.TradeID)
		ct.ledger.MarkProcessed(fill.TradeID)
	}
}

func (ct *CopyTrader) processBuy(ctx context.Context, fill models.FillEvent) {
	snap, _ := ct.tracker.Get(fill.LeaderWallet)

	var meta *api.MarketMeta
	if !ct.executor.DryRun() {
		m, err := ct.fetchMeta(ctx, fill.Market)
		if err != nil {
			if api.KindOf(err) == api.KindAuth {
				ct.escalate(fmt.Errorf("%w: %v", ErrAuthFatal, err))
				return
			}
			log.Printf("[copytrader] market meta for %s failed: %v", fill.Market, err)
			ct.record(ctx, fill, string(StatusFailed), decimal.Zero, decimal.Zero, "market metadata unavailable", "", "")
			ct.ledger.MarkProcessed(fill.TradeID)
			return
		}
		meta = m
	}

	decision := ct.risk.Decide(fill, snap, meta, ct.ledger)
	if !decision.Accept {
		log.Printf("[copytrader] skip %s trade %s: %s", fill.LeaderName, fill.TradeID, decision.Reason)
		ct.record(ctx, fill, string(StatusRejected), decimal.Zero, decimal.Zero, decision.Reason, "", "")
		ct.ledger.MarkProcessed(fill.TradeID)
		ct.bump(StatusRejected)
		MirrorOutcomes.WithLabelValues(fill.LeaderName, string(StatusRejected)).Inc()
		return
	}

	result := ct.executor.ExecuteBuy(ctx, fill, decision)
	ct.finishExecution(ctx, fill, result)
	if result.Status == StatusExecuted && ct.ws != nil {
		ct.ws.Watch(fill.TokenID)
	}
}

func (ct *CopyTrader) processSell(ctx context.Context, qf queuedFill) {
	fill := qf.fill
	snap, _ := ct.tracker.Get(fill.LeaderWallet)

	sell := ct.risk.DecideSell(fill, snap, ct.ledger, qf.attempts)
	switch sell.Action {
	case SellSkip:
		log.Printf("[copytrader] sell %s: %s", fill.TradeID, sell.Reason)
		ct.record(ctx, fill, string(StatusSkipped), decimal.Zero, decimal.Zero, sell.Reason, "", "")
		ct.ledger.MarkProcessed(fill.TradeID)
	case SellDefer:
		if qf.attempts >= maxSellDeferrals {
			ct.record(ctx, fill, string(StatusSkipped), decimal.Zero, decimal.Zero, "deferral limit reached", "", "")
			ct.ledger.MarkProcessed(fill.TradeID)
			return
		}
		log.Printf("[copytrader] sell %s deferred: %s", fill.TradeID, sell.Reason)
		ct.deferredMu.Lock()
		ct.deferred = append(ct.deferred, queuedFill{fill: fill, attempts: qf.attempts + 1})
		ct.deferredMu.Unlock()
	case SellReduce, SellExit:
		result := ct.executor.ExecuteSell(ctx, fill, sell)
		ct.finishExecution(ctx, fill, result)
	}
}

func (ct *CopyTrader) finishExecution(ctx context.Context, fill models.FillEvent, result ExecutionResult) {
	var lerr *LedgerError
	if errors.As(result.Err, &lerr) {
		ct.escalate(lerr)
		return
	}
	if result.Err != nil && api.KindOf(result.Err) == api.KindAuth {
		ct.escalate(fmt.Errorf("%w: %v", ErrAuthFatal, result.Err))
		return
	}

	note := result.Reason
	if result.Err != nil {
		note = result.Err.Error()
	}
	switch result.Status {
	case StatusExecuted, StatusDryRun:
		log.Printf("[copytrader] %s %s %s: %s shares ($%s) %s order=%s",
			result.Status, fill.LeaderName, fill.Side, result.Shares.StringFixed(2),
			result.USD.StringFixed(2), note, result.OrderID)
	case StatusRejected, StatusSkipped:
		log.Printf("[copytrader] %s %s trade %s: %s", result.Status, fill.LeaderName, fill.TradeID, note)
	case StatusFailed:
		log.Printf("[copytrader] order failed for %s trade %s: %s", fill.LeaderName, fill.TradeID, note)
	}

	ct.record(ctx, fill, string(result.Status), result.Shares, result.USD, note, result.OrderID, "")
	ct.ledger.MarkProcessed(fill.TradeID)
	ct.bump(result.Status)
	MirrorOutcomes.WithLabelValues(fill.LeaderName, string(result.Status)).Inc()
	ct.updateExposureGauges()
}

func (ct *CopyTrader) fetchMeta(ctx context.Context, market string) (*api.MarketMeta, error) {
	metaCtx, cancel := context.WithTimeout(ctx, requestTimeoutForMeta)
	defer cancel()
	return ct.executor.clob.GetMarketMeta(metaCtx, market)
}

const requestTimeoutForMeta = 10 * time.Second

func (ct *CopyTrader) requeueDeferred() {
	ct.deferredMu.Lock()
	pending := ct.deferred
	ct.deferred = nil
	ct.deferredMu.Unlock()
	for _, qf := range pending {
		select {
		case ct.fillQueue <- qf:
		default:
			// Queue congested; try again next tick.
			ct.deferredMu.Lock()
			ct.deferred = append(ct.deferred, qf)
			ct.deferredMu.Unlock()
			return
		}
	}
}

// syncPortfolios refreshes every non-disabled leader's snapshot.
func (ct *CopyTrader) syncPortfolios(ctx context.Context) {
	var wg sync.WaitGroup
	for wallet, lr := range ct.snapshotLeaders() {
		if lr.state == LeaderDisabled {
			continue
		}
		wg.Add(1)
		go func(wallet string, cfg config.TraderConfig) {
			defer wg.Done()
			syncCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			_, err := ct.tracker.Sync(syncCtx, cfg.WalletAddress)
			ct.noteSyncResult(wallet, cfg.Name, err)
		}(wallet, lr.cfg)
	}
	wg.Wait()
}

func (ct *CopyTrader) noteSyncResult(wallet, name string, err error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	lr, ok := ct.leaders[wallet]
	if !ok {
		return
	}
	if err == nil {
		lr.syncFailures = 0
		if lr.state == LeaderFaulted {
			lr.state = LeaderEnabled
			log.Printf("[copytrader] %s recovered from faulted state", name)
		}
		return
	}
	PortfolioSyncFailures.WithLabelValues(name).Inc()
	log.Printf("[copytrader] portfolio sync for %s failed: %v", name, err)
	lr.syncFailures++
	if lr.syncFailures >= faultedAfterFailures && lr.state == LeaderEnabled {
		lr.state = LeaderFaulted
		log.Printf("[copytrader] %s marked faulted after %d consecutive sync failures", name, lr.syncFailures)
	}
}

// Pause stops sizing a leader's fills while continuing to advance its
// cursor. Returns false when the trader is unknown.
func (ct *CopyTrader) Pause(name string) bool {
	return ct.setState(name, LeaderPaused)
}

// Resume re-enables a paused leader. Only fills observed after the pause
// window are considered, since the monitor cursor kept advancing.
func (ct *CopyTrader) Resume(name string) bool {
	return ct.setState(name, LeaderEnabled)
}

func (ct *CopyTrader) setState(name string, state LeaderState) bool {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	for _, lr := range ct.leaders {
		if lr.cfg.Name == name {
			if lr.state == LeaderDisabled {
				return false
			}
			lr.state = state
			log.Printf("[copytrader] %s -> %s", name, state)
			return true
		}
	}
	return false
}

// Status assembles the live status snapshot.
func (ct *CopyTrader) Status() models.EngineStatus {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	out := models.EngineStatus{
		GlobalExposure: ct.ledger.GlobalExposure(),
		MaxExposure:    ct.cfg.Risk.Global.MaxTotalExposure,
		PositionCount:  len(ct.ledger.Positions()),
		StartedAt:      ct.startedAt,
		UpdatedAt:      time.Now(),
	}
	for wallet, lr := range ct.leaders {
		exposed := ct.ledger.ExposureOf(wallet)
		util := decimal.Zero
		if lr.cfg.AllocatedCapital.Sign() > 0 {
			util = exposed.Div(lr.cfg.AllocatedCapital).Mul(decimal.NewFromInt(100))
		}
		out.Leaders = append(out.Leaders, models.LeaderStatus{
			Name:        lr.cfg.Name,
			Wallet:      lr.cfg.WalletAddress,
			State:       string(lr.state),
			Allocated:   lr.cfg.AllocatedCapital,
			Exposed:     exposed,
			Utilization: util,
			RealizedPnl: ct.ledger.RealizedPnl(wallet),
			TradeCount:  ct.ledger.TradeCount(wallet),
		})
	}
	sort.Slice(out.Leaders, func(i, j int) bool { return out.Leaders[i].Name < out.Leaders[j].Name })
	return out
}

// NotifyActivity wakes the fast loop early (market WS hint).
func (ct *CopyTrader) NotifyActivity() {
	select {
	case ct.activityCh <- struct{}{}:
	default:
	}
}

func (ct *CopyTrader) record(ctx context.Context, fill models.FillEvent, event string, shares, usd decimal.Decimal, reason, orderID, status string) {
	if ct.audit == nil {
		return
	}
	rec := storage.DecisionRecord{
		Timestamp:    time.Now().UTC(),
		EventType:    event,
		TraderName:   fill.LeaderName,
		TraderWallet: fill.LeaderWallet,
		TradeID:      fill.TradeID,
		Market:       fill.Market,
		Title:        fill.Title,
		Outcome:      fill.Outcome,
		Side:         string(fill.Side),
		TraderSize:   fill.Size.String(),
		TraderPrice:  fill.Price.String(),
		MirrorShares: shares.String(),
		MirrorUSD:    usd.String(),
		Reason:       reason,
		OrderStatus:  status,
		OrderID:      orderID,
	}
	if err := ct.audit.SaveDecision(ctx, rec); err != nil {
		log.Printf("[copytrader] audit write failed: %v", err)
	}
}

func (ct *CopyTrader) bump(status ExecutionStatus) {
	ct.counts.Lock()
	switch status {
	case StatusExecuted, StatusDryRun:
		ct.counts.executed++
	case StatusRejected, StatusSkipped:
		ct.counts.rejected++
	case StatusFailed:
		ct.counts.failed++
	}
	ct.counts.Unlock()
}

func (ct *CopyTrader) updateExposureGauges() {
	GlobalExposureGauge.Set(ct.ledger.GlobalExposure().InexactFloat64())
	ct.mu.RLock()
	for wallet, lr := range ct.leaders {
		LeaderExposureGauge.WithLabelValues(lr.cfg.Name).Set(ct.ledger.ExposureOf(wallet).InexactFloat64())
	}
	ct.mu.RUnlock()
}

func (ct *CopyTrader) publishMetrics(ctx context.Context) {
	if ct.metrics == nil {
		return
	}
	ct.counts.Lock()
	snapshot := EngineMetrics{
		FillsObserved:  ct.counts.observed,
		Executed:       ct.counts.executed,
		Rejected:       ct.counts.rejected,
		Failed:         ct.counts.failed,
		GlobalExposure: ct.ledger.GlobalExposure().StringFixed(2),
	}
	ct.counts.Unlock()
	if err := ct.metrics.Save(ctx, snapshot); err != nil {
		log.Printf("[copytrader] metrics publish failed: %v", err)
	}
}

func (ct *CopyTrader) escalate(err error) {
	select {
	case ct.fatalCh <- err:
	default:
	}
}

func (ct *CopyTrader) leaderState(wallet string) LeaderState {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	if lr, ok := ct.leaders[wallet]; ok {
		return lr.state
	}
	return LeaderDisabled
}

func (ct *CopyTrader) enabledLeaders() []*leaderRuntime {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	out := make([]*leaderRuntime, 0, len(ct.leaders))
	for _, lr := range ct.leaders {
		if lr.state == LeaderEnabled || lr.state == LeaderFaulted {
			out = append(out, lr)
		}
	}
	return out
}

// pollableLeaders includes paused leaders so their cursors keep advancing.
func (ct *CopyTrader) pollableLeaders() []*leaderRuntime {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	out := make([]*leaderRuntime, 0, len(ct.leaders))
	for _, lr := range ct.leaders {
		if lr.state != LeaderDisabled {
			out = append(out, lr)
		}
	}
	return out
}

func (ct *CopyTrader) snapshotLeaders() map[string]*leaderRuntime {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	out := make(map[string]*leaderRuntime, len(ct.leaders))
	for k, v := range ct.leaders {
		out[k] = v
	}
	return out
}

// maybeReloadConfig re-reads the config file when its mtime changes,
// applying trader and risk updates without a restart.
func (ct *CopyTrader) maybeReloadConfig() {
	if ct.cfgPath == "" {
		return
	}
	st, err := os.Stat(ct.cfgPath)
	if err != nil || !st.ModTime().After(ct.cfgTime) {
		return
	}

	newCfg, err := config.Load(ct.cfgPath)
	if err != nil {
		log.Printf("[copytrader] config reload failed: %v", err)
		ct.cfgTime = st.ModTime()
		return
	}
	ct.cfgTime = st.ModTime()

	ct.mu.Lock()
	ct.cfg = newCfg
	seen := make(map[string]struct{})
	for _, t := range newCfg.Traders {
		wallet := strings.ToLower(t.WalletAddress)
		seen[wallet] = struct{}{}
		lr, ok := ct.leaders[wallet]
		if !ok {
			state := LeaderDisabled
			if t.Enabled {
				state = LeaderEnabled
				log.Printf("[copytrader] now mirroring %s (%s)", t.Name, t.WalletAddress)
			}
			ct.leaders[wallet] = &leaderRuntime{cfg: t, state: state}
			continue
		}
		lr.cfg = t
		switch {
		case !t.Enabled:
			lr.state = LeaderDisabled
		case lr.state == LeaderDisabled:
			lr.state = LeaderEnabled
			log.Printf("[copytrader] now mirroring %s (%s)", t.Name, t.WalletAddress)
		}
	}
	for wallet := range ct.leaders {
		if _, ok := seen[wallet]; !ok {
			delete(ct.leaders, wallet)
			ct.monitor.Forget(wallet)
		}
	}
	ct.mu.Unlock()

	ct.risk.UpdateConfig(newCfg.Risk, newCfg.UseProportion())
	log.Printf("[copytrader] config reloaded")
}

func (ct *CopyTrader) statePath(name string) string {
	return filepath.Join(ct.stateDir, name)
}

func (ct *CopyTrader) restoreState() {
	var ledgerState LedgerState
	if ok, err := storage.ReadState(ct.statePath("ledger.json"), &ledgerState); err != nil {
		log.Printf("[copytrader] ledger state unreadable: %v", err)
	} else if ok {
		ct.ledger.RestoreState(ledgerState)
		log.Printf("[copytrader] restored ledger state (global exposure $%s)", ct.ledger.GlobalExposure().StringFixed(2))
	}

	var monState MonitorState
	if ok, err := storage.ReadState(ct.statePath("monitor.json"), &monState); err != nil {
		log.Printf("[copytrader] monitor state unreadable: %v", err)
	} else if ok {
		ct.monitor.RestoreState(monState)
		log.Printf("[copytrader] restored monitor cursors for %d leaders", len(monState.Leaders))
	}
}

func (ct *CopyTrader) persistState() {
	if err := storage.PersistState(ct.statePath("ledger.json"), ct.ledger.ExportState()); err != nil {
		log.Printf("[copytrader] persist ledger: %v", err)
	}
	if err := storage.PersistState(ct.statePath("monitor.json"), ct.monitor.ExportState()); err != nil {
		log.Printf("[copytrader] persist monitor: %v", err)
	}
	if err := storage.PersistState(ct.statePath("copytrade_state.json"), ct.Status()); err != nil {
		log.Printf("[copytrader] persist status: %v", err)
	}
}
