package syncer

import (
	"context"
	"testing"

	"polymarket-copytrader/api"
)

func acceptDecision() Decision {
	return Decision{Accept: true, MirrorShares: d("20"), MirrorUSD: d("10"), Reason: "test"}
}

func transientErr() error {
	return &api.VenueError{Kind: api.KindTransient, Op: "place_order", Status: 503}
}

func TestExecuteBuyCommitsOnSuccess(t *testing.T) {
	ledger := NewExposureLedger(d("5000"))
	mock := api.NewMockClobClient()
	exec := NewTradeExecutor(mock, ledger)

	result := exec.ExecuteBuy(context.Background(), buyFill("t1"), acceptDecision())
	if result.Status != StatusExecuted {
		t.Fatalf("status = %s (%s, err=%v)", result.Status, result.Reason, result.Err)
	}
	if !ledger.ExposureOf("0xleader1").Equal(d("10")) {
		t.Errorf("exposure = %s, want 10", ledger.ExposureOf("0xleader1"))
	}
	pos, ok := ledger.PositionOf("market1", "tok1")
	if !ok || !pos.Size.Equal(d("20")) {
		t.Errorf("position = %+v ok=%v", pos, ok)
	}

	calls := mock.PlacedOrders()
	if len(calls) != 1 {
		t.Fatalf("expected 1 order, got %d", len(calls))
	}
	if calls[0].Args.Type != api.OrderTypeGTC || calls[0].Args.Side != "BUY" {
		t.Errorf("order args = %+v", calls[0].Args)
	}
}

func TestExecuteBuyRetriesTransientFailures(t *testing.T) {
	ledger := NewExposureLedger(d("5000"))
	mock := api.NewMockClobClient()
	mock.ErrorTimes["PlaceOrder"] = 2
	mock.Errors["PlaceOrder"] = transientErr()
	exec := NewTradeExecutor(mock, ledger)

	result := exec.ExecuteBuy(context.Background(), buyFill("t1"), acceptDecision())
	if result.Status != StatusExecuted {
		t.Fatalf("status = %s after retries (err=%v)", result.Status, result.Err)
	}
	if mock.Calls["PlaceOrder"] != 3 {
		t.Errorf("place order calls = %d, want 3", mock.Calls["PlaceOrder"])
	}
}

func TestExecuteBuyReleasesOnPersistentFailure(t *testing.T) {
	ledger := NewExposureLedger(d("5000"))
	mock := api.NewMockClobClient()
	mock.ErrorTimes["PlaceOrder"] = 100
	mock.Errors["PlaceOrder"] = transientErr()
	exec := NewTradeExecutor(mock, ledger)

	result := exec.ExecuteBuy(context.Background(), buyFill("t1"), acceptDecision())
	if result.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if !ledger.ExposureOf("0xleader1").IsZero() {
		t.Errorf("reservation not released: exposure = %s", ledger.ExposureOf("0xleader1"))
	}
	// 1 initial + 4 retries.
	if mock.Calls["PlaceOrder"] != 5 {
		t.Errorf("place order calls = %d, want 5", mock.Calls["PlaceOrder"])
	}
}

func TestExecuteBuyDoesNotRetryAuthOrInvalid(t *testing.T) {
	for _, kind := range []api.ErrorKind{api.KindAuth, api.KindInvalidArgument} {
		ledger := NewExposureLedger(d("5000"))
		mock := api.NewMockClobClient()
		mock.ErrorTimes["PlaceOrder"] = 100
		mock.Errors["PlaceOrder"] = &api.VenueError{Kind: kind, Op: "place_order"}
		exec := NewTradeExecutor(mock, ledger)

		result := exec.ExecuteBuy(context.Background(), buyFill("t1"), acceptDecision())
		if result.Status != StatusFailed {
			t.Fatalf("kind %s: status = %s", kind, result.Status)
		}
		if mock.Calls["PlaceOrder"] != 1 {
			t.Errorf("kind %s: place order calls = %d, want 1 (no retries)", kind, mock.Calls["PlaceOrder"])
		}
		if !ledger.ExposureOf("0xleader1").IsZero() {
			t.Errorf("kind %s: reservation not released", kind)
		}
	}
}

func TestExecuteBuyRoundsPriceDownToTick(t *testing.T) {
	ledger := NewExposureLedger(d("5000"))
	mock := api.NewMockClobClient()
	mock.Meta.TickSize = 0.01
	exec := NewTradeExecutor(mock, ledger)

	fill := buyFill("t1")
	fill.Price = d("0.527")
	decision := acceptDecision()

	result := exec.ExecuteBuy(context.Background(), fill, decision)
	if result.Status != StatusExecuted {
		t.Fatalf("status = %s", result.Status)
	}
	calls := mock.PlacedOrders()
	if calls[0].Args.Price != 0.52 {
		t.Errorf("buy price = %v, want 0.52 (rounded down)", calls[0].Args.Price)
	}
}

func TestExecuteSellUsesFOKAtBestBid(t *testing.T) {
	ledger := NewExposureLedger(d("5000"))
	token, _ := ledger.Reserve("0xleader1", d("2000"), d("10"))
	if err := ledger.Commit(token, buyFill("seed"), d("20"), d("0.5")); err != nil {
		t.Fatalf("commit: %v", err)
	}

	mock := api.NewMockClobClient()
	mock.Book = &api.OrderBook{
		AssetID: "tok1",
		Bids:    []api.OrderBookLevel{{Price: "0.55", Size: "500"}},
		Asks:    []api.OrderBookLevel{{Price: "0.57", Size: "500"}},
	}
	exec := NewTradeExecutor(mock, ledger)

	sell := SellDecision{Action: SellReduce, Shares: d("10"), Reason: "leader reduced 50%"}
	result := exec.ExecuteSell(context.Background(), sellFill("s1", "50"), sell)
	if result.Status != StatusExecuted {
		t.Fatalf("status = %s (err=%v)", result.Status, result.Err)
	}

	calls := mock.PlacedOrders()
	if len(calls) != 1 {
		t.Fatalf("expected 1 order, got %d", len(calls))
	}
	args := calls[0].Args
	if args.Type != api.OrderTypeFOK || args.Side != "SELL" || args.Price != 0.55 {
		t.Errorf("sell args = %+v", args)
	}

	pos, ok := ledger.PositionOf("market1", "tok1")
	if !ok || !pos.Size.Equal(d("10")) {
		t.Errorf("position after sell = %+v ok=%v", pos, ok)
	}
	// Exposure shrinks by half the contribution.
	if !ledger.ExposureOf("0xleader1").Equal(d("5")) {
		t.Errorf("exposure after sell = %s, want 5", ledger.ExposureOf("0xleader1"))
	}
}

func TestExecuteSellSkipsEmptyBook(t *testing.T) {
	ledger := NewExposureLedger(d("5000"))
	token, _ := ledger.Reserve("0xleader1", d("2000"), d("10"))
	if err := ledger.Commit(token, buyFill("seed"), d("20"), d("0.5")); err != nil {
		t.Fatalf("commit: %v", err)
	}
	mock := api.NewMockClobClient()
	mock.Book = &api.OrderBook{AssetID: "tok1"}
	mock.HasMid = false
	exec := NewTradeExecutor(mock, ledger)

	result := exec.ExecuteSell(context.Background(), sellFill("s1", "50"),
		SellDecision{Action: SellReduce, Shares: d("10")})
	if result.Status != StatusSkipped {
		t.Errorf("status = %s, want skipped", result.Status)
	}
	if !ledger.ExposureOf("0xleader1").Equal(d("10")) {
		t.Errorf("exposure changed on skipped sell: %s", ledger.ExposureOf("0xleader1"))
	}
}

func TestDryRunExecutesWithoutVenue(t *testing.T) {
	ledger := NewExposureLedger(d("5000"))
	exec := NewTradeExecutor(nil, ledger)

	result := exec.ExecuteBuy(context.Background(), buyFill("t1"), acceptDecision())
	if result.Status != StatusDryRun {
		t.Fatalf("status = %s, want dry_run", result.Status)
	}
	if !ledger.ExposureOf("0xleader1").Equal(d("10")) {
		t.Errorf("dry-run should still book exposure: %s", ledger.ExposureOf("0xleader1"))
	}
}

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		price, tick float64
		up          bool
		want        float64
	}{
		{0.527, 0.01, false, 0.52},
		{0.527, 0.01, true, 0.53},
		{0.52, 0.01, false, 0.52},
		{0.52, 0.01, true, 0.52},
		{0.5201, 0.001, false, 0.52},
		{0.004, 0.01, false, 0.01}, // clamped into (0,1)
		{0.999, 0.01, true, 0.99},
	}
	for _, tt := range tests {
		if got := roundToTick(tt.price, tt.tick, tt.up); got != tt.want {
			t.Errorf("roundToTick(%v, %v, up=%v) = %v, want %v", tt.price, tt.tick, tt.up, got, tt.want)
		}
	}
}

func TestRoundShares(t *testing.T) {
	if got := roundShares(20.789); got != 20.78 {
		t.Errorf("roundShares = %v, want 20.78", got)
	}
}
