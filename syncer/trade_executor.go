package syncer

import (
	"context"
	"log"
	"math"
	"strconv"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"polymarket-copytrader/api"
	"polymarket-copytrader/models"
)

// ExecutionStatus classifies the outcome of one mirror attempt.
type ExecutionStatus string

const (
	StatusExecuted ExecutionStatus = "executed"
	StatusRejected ExecutionStatus = "rejected"
	StatusFailed   ExecutionStatus = "failed"
	StatusSkipped  ExecutionStatus = "skipped"
	StatusDryRun   ExecutionStatus = "dry_run"
)

// ExecutionResult is what one ExecuteBuy/ExecuteSell call produced.
type ExecutionResult struct {
	Status  ExecutionStatus
	OrderID string
	Shares  decimal.Decimal
	USD     decimal.Decimal
	Reason  string
	Err     error
}

// TradeExecutor places mirror orders and keeps the ledger consistent with
// what was actually submitted. With no order client configured it runs in
// dry-run mode: decisions update the ledger but no orders leave the process.
type TradeExecutor struct {
	clob   api.OrderClientInterface
	ledger *ExposureLedger
	retry  failsafe.Executor[*api.OrderResponse]
}

// NewTradeExecutor builds an executor. clob may be nil for dry-run.
func NewTradeExecutor(clob api.OrderClientInterface, ledger *ExposureLedger) *TradeExecutor {
	// Transient venue failures retry with exponential backoff; auth and
	// validation errors surface immediately.
	policy := retrypolicy.NewBuilder[*api.OrderResponse]().
		HandleIf(func(resp *api.OrderResponse, err error) bool {
			return err != nil && api.IsRetryable(err)
		}).
		WithBackoff(500*time.Millisecond, 30*time.Second).
		WithMaxRetries(4).
		Build()

	return &TradeExecutor{
		clob:   clob,
		ledger: ledger,
		retry:  failsafe.With(policy),
	}
}

// DryRun reports whether the executor has no venue client.
func (e *TradeExecutor) DryRun() bool { return e.clob == nil }

// ExecuteBuy reserves exposure, submits a GTC buy, and commits on success.
// A *LedgerError return means the engine must halt.
func (e *TradeExecutor) ExecuteBuy(ctx context.Context, fill models.FillEvent, decision Decision) ExecutionResult {
	token, rejectReason := e.ledger.Reserve(fill.LeaderWallet, fill.AllocatedCapital, decision.MirrorUSD)
	if token == nil {
		return ExecutionResult{Status: StatusRejected, Reason: rejectReason}
	}

	if e.clob == nil {
		if err := e.ledger.Commit(token, fill, decision.MirrorShares, fill.Price); err != nil {
			return ExecutionResult{Status: StatusFailed, Err: err}
		}
		return ExecutionResult{
			Status: StatusDryRun,
			Shares: decision.MirrorShares,
			USD:    decision.MirrorUSD,
			Reason: decision.Reason,
		}
	}

	meta, err := e.clob.GetMarketMeta(ctx, fill.Market)
	if err != nil {
		e.mustRelease(token)
		return ExecutionResult{Status: StatusFailed, Err: err}
	}

	price := roundToTick(fill.Price.InexactFloat64(), meta.TickSize, false)
	shares := roundShares(decision.MirrorShares.InexactFloat64())
	if shares <= 0 || price <= 0 {
		e.mustRelease(token)
		return ExecutionResult{Status: StatusRejected, Reason: "rounded order size is zero"}
	}

	clientID := orderClientID(fill.TradeID)
	args := api.OrderArgs{
		TokenID:  fill.TokenID,
		Side:     "BUY",
		Size:     shares,
		Price:    price,
		NegRisk:  meta.NegRisk,
		Type:     api.OrderTypeGTC,
		ClientID: clientID,
	}

	resp, err := e.submit(ctx, args, fill)
	if err != nil {
		e.mustRelease(token)
		return ExecutionResult{Status: StatusFailed, Err: err}
	}
	if !resp.Success {
		e.mustRelease(token)
		return ExecutionResult{Status: StatusFailed, Reason: resp.ErrorMsg}
	}

	sharesDec := decimal.NewFromFloat(shares)
	priceDec := decimal.NewFromFloat(price)
	if err := e.ledger.Commit(token, fill, sharesDec, priceDec); err != nil {
		return ExecutionResult{Status: StatusFailed, Err: err}
	}
	return ExecutionResult{
		Status:  StatusExecuted,
		OrderID: resp.OrderID,
		Shares:  sharesDec,
		USD:     decision.MirrorUSD,
		Reason:  decision.Reason,
	}
}

// ExecuteSell reduces or exits the mirror position with a FOK at best bid.
func (e *TradeExecutor) ExecuteSell(ctx context.Context, fill models.FillEvent, sell SellDecision) ExecutionResult {
	if sell.Shares.Sign() <= 0 {
		return ExecutionResult{Status: StatusSkipped, Reason: "nothing to sell"}
	}

	if e.clob == nil {
		price := fill.Price
		proceeds, ok := e.ledger.ApplyReduction(fill.Market, fill.TokenID, sell.Shares, price)
		if !ok {
			return ExecutionResult{Status: StatusSkipped, Reason: "no mirror position"}
		}
		return ExecutionResult{Status: StatusDryRun, Shares: sell.Shares, USD: proceeds, Reason: sell.Reason}
	}

	meta, err := e.clob.GetMarketMeta(ctx, fill.Market)
	if err != nil {
		return ExecutionResult{Status: StatusFailed, Err: err}
	}

	book, err := e.clob.GetOrderBook(ctx, fill.TokenID)
	if err != nil {
		return ExecutionResult{Status: StatusFailed, Err: err}
	}
	bestBid := book.BestBid()
	if bestBid <= 0 {
		if mid, ok, err := e.clob.GetMidpoint(ctx, fill.TokenID); err == nil && ok {
			bestBid = mid
		}
	}
	if bestBid <= 0 {
		return ExecutionResult{Status: StatusSkipped, Reason: "no bids in order book"}
	}

	price := roundToTick(bestBid, meta.TickSize, true)
	shares := roundShares(sell.Shares.InexactFloat64())
	if shares <= 0 {
		return ExecutionResult{Status: StatusSkipped, Reason: "rounded sell size is zero"}
	}

	args := api.OrderArgs{
		TokenID:  fill.TokenID,
		Side:     "SELL",
		Size:     shares,
		Price:    price,
		NegRisk:  meta.NegRisk,
		Type:     api.OrderTypeFOK,
		ClientID: orderClientID(fill.TradeID),
	}

	resp, err := e.submit(ctx, args, fill)
	if err != nil {
		return ExecutionResult{Status: StatusFailed, Err: err}
	}
	if !resp.Success {
		return ExecutionResult{Status: StatusFailed, Reason: resp.ErrorMsg}
	}

	sharesDec := decimal.NewFromFloat(shares)
	priceDec := decimal.NewFromFloat(price)
	proceeds, _ := e.ledger.ApplyReduction(fill.Market, fill.TokenID, sharesDec, priceDec)
	return ExecutionResult{
		Status:  StatusExecuted,
		OrderID: resp.OrderID,
		Shares:  sharesDec,
		USD:     proceeds,
		Reason:  sell.Reason,
	}
}

// submit runs the order through the retry pipeline. After a timeout the
// venue may or may not have accepted the order, so before re-placing we
// look for a matching resting order submitted since the first attempt.
func (e *TradeExecutor) submit(ctx context.Context, args api.OrderArgs, fill models.FillEvent) (*api.OrderResponse, error) {
	attemptStart := time.Now()
	attempts := 0

	return e.retry.WithContext(ctx).GetWithExecution(func(exec failsafe.Execution[*api.OrderResponse]) (*api.OrderResponse, error) {
		attempts++
		if attempts > 1 {
			if resp := e.findPlacedOrder(ctx, args, attemptStart); resp != nil {
				log.Printf("[executor] reconciled order for trade %s after retry (order=%s)", fill.TradeID, resp.OrderID)
				return resp, nil
			}
		}
		return e.clob.PlaceOrder(ctx, args)
	})
}

// findPlacedOrder checks the open-orders endpoint for an order matching
// (token, side, size, price) created since the attempt began.
func (e *TradeExecutor) findPlacedOrder(ctx context.Context, args api.OrderArgs, since time.Time) *api.OrderResponse {
	orders, err := e.clob.GetOpenOrders(ctx, args.TokenID)
	if err != nil {
		return nil
	}
	for _, o := range orders {
		if o.Side != args.Side {
			continue
		}
		if o.CreatedAt > 0 && o.CreatedAt < since.Unix() {
			continue
		}
		price, _ := strconv.ParseFloat(o.Price, 64)
		size, _ := strconv.ParseFloat(o.OriginalSize, 64)
		if math.Abs(price-args.Price) < 1e-9 && math.Abs(size-args.Size) < 1e-6 {
			return &api.OrderResponse{Success: true, OrderID: o.ID, Status: "live"}
		}
	}
	return nil
}

func (e *TradeExecutor) mustRelease(token *ReservationToken) {
	if err := e.ledger.Release(token); err != nil {
		// A failed release is a ledger protocol bug; crash loudly rather
		// than run with corrupt exposure accounting.
		log.Fatalf("[executor] %v", err)
	}
}

// roundToTick snaps a price onto the tick grid, down for buys and up for
// sells.
func roundToTick(price, tick float64, up bool) float64 {
	if tick <= 0 {
		tick = 0.01
	}
	ticks := price / tick
	if up {
		ticks = math.Ceil(ticks - 1e-9)
	} else {
		ticks = math.Floor(ticks + 1e-9)
	}
	rounded := ticks * tick
	// Clamp into the venue's valid (0,1) price range.
	if rounded <= 0 {
		rounded = tick
	}
	if rounded >= 1 {
		rounded = 1 - tick
	}
	return math.Round(rounded*1e6) / 1e6
}

// roundShares truncates to the venue's 2-decimal share precision.
func roundShares(shares float64) float64 {
	return math.Floor(shares*100) / 100
}

// orderClientID derives a stable client-side id for a trade's submission.
func orderClientID(tradeID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(tradeID)).String()
}
