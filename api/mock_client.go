package api

import (
	"context"
	"sync"
)

// DataClientInterface is the slice of the Data API the engine consumes.
// Enables dependency injection for testing.
type DataClientInterface interface {
	GetPositions(ctx context.Context, params PositionsParams) ([]DataPosition, error)
	GetTrades(ctx context.Context, query TradeQuery) ([]DataTrade, error)
}

// OrderClientInterface is the slice of the CLOB client the executor consumes.
type OrderClientInterface interface {
	GetMarketMeta(ctx context.Context, conditionID string) (*MarketMeta, error)
	GetOrderBook(ctx context.Context, tokenID string) (*OrderBook, error)
	GetMidpoint(ctx context.Context, tokenID string) (float64, bool, error)
	PlaceOrder(ctx context.Context, args OrderArgs) (*OrderResponse, error)
	GetOpenOrders(ctx context.Context, tokenID string) ([]OpenOrder, error)
}

var (
	_ DataClientInterface  = (*Client)(nil)
	_ OrderClientInterface = (*ClobClient)(nil)
	_ DataClientInterface  = (*MockDataClient)(nil)
	_ OrderClientInterface = (*MockClobClient)(nil)
)

// MockDataClient is a scripted Data API client for tests.
type MockDataClient struct {
	mu sync.Mutex

	// PositionsByUser and TradesByUser hold the canned responses.
	PositionsByUser map[string][]DataPosition
	TradesByUser    map[string][]DataTrade

	// Calls counts invocations per method name.
	Calls map[string]int

	// ErrorOnNext injects a one-shot error per method name.
	ErrorOnNext map[string]error
}

// NewMockDataClient builds an empty mock.
func NewMockDataClient() *MockDataClient {
	return &MockDataClient{
		PositionsByUser: make(map[string][]DataPosition),
		TradesByUser:    make(map[string][]DataTrade),
		Calls:           make(map[string]int),
		ErrorOnNext:     make(map[string]error),
	}
}

func (m *MockDataClient) track(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[name]++
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	return nil
}

func (m *MockDataClient) GetPositions(ctx context.Context, params PositionsParams) ([]DataPosition, error) {
	if err := m.track("GetPositions"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PositionsByUser[params.User], nil
}

func (m *MockDataClient) GetTrades(ctx context.Context, query TradeQuery) ([]DataTrade, error) {
	if err := m.track("GetTrades"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TradesByUser[query.User], nil
}

// SetTrades replaces the canned trades for a user.
func (m *MockDataClient) SetTrades(user string, trades []DataTrade) {
	m.mu.Lock()
	m.TradesByUser[user] = trades
	m.mu.Unlock()
}

// SetPositions replaces the canned positions for a user.
func (m *MockDataClient) SetPositions(user string, positions []DataPosition) {
	m.mu.Lock()
	m.PositionsByUser[user] = positions
	m.mu.Unlock()
}

// PlaceOrderCall records one PlaceOrder invocation for verification.
type PlaceOrderCall struct {
	Args OrderArgs
}

// MockClobClient is a scripted CLOB client for tests.
type MockClobClient struct {
	mu sync.Mutex

	Meta       *MarketMeta
	Book       *OrderBook
	Midpoint   float64
	HasMid     bool
	Response   *OrderResponse
	OpenOrders []OpenOrder

	Calls       map[string]int
	ErrorOnNext map[string]error

	// ErrorTimes repeats an injected error n times before succeeding.
	ErrorTimes map[string]int
	Errors     map[string]error

	PlaceOrderCalls []PlaceOrderCall
}

// NewMockClobClient builds a mock with a permissive default market.
func NewMockClobClient() *MockClobClient {
	return &MockClobClient{
		Meta: &MarketMeta{
			TickSize:     0.01,
			MinOrderSize: 5,
			Liquidity:    100000,
			Active:       true,
		},
		Response:    &OrderResponse{Success: true, OrderID: "mock-order", Status: "matched"},
		Calls:       make(map[string]int),
		ErrorOnNext: make(map[string]error),
		ErrorTimes:  make(map[string]int),
		Errors:      make(map[string]error),
	}
}

func (m *MockClobClient) track(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[name]++
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	if n := m.ErrorTimes[name]; n > 0 {
		m.ErrorTimes[name] = n - 1
		return m.Errors[name]
	}
	return nil
}

func (m *MockClobClient) GetMarketMeta(ctx context.Context, conditionID string) (*MarketMeta, error) {
	if err := m.track("GetMarketMeta"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	meta := *m.Meta
	if meta.ConditionID == "" {
		meta.ConditionID = conditionID
	}
	return &meta, nil
}

func (m *MockClobClient) GetOrderBook(ctx context.Context, tokenID string) (*OrderBook, error) {
	if err := m.track("GetOrderBook"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Book == nil {
		return &OrderBook{AssetID: tokenID}, nil
	}
	return m.Book, nil
}

func (m *MockClobClient) GetMidpoint(ctx context.Context, tokenID string) (float64, bool, error) {
	if err := m.track("GetMidpoint"); err != nil {
		return 0, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Midpoint, m.HasMid, nil
}

func (m *MockClobClient) PlaceOrder(ctx context.Context, args OrderArgs) (*OrderResponse, error) {
	if err := m.track("PlaceOrder"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlaceOrderCalls = append(m.PlaceOrderCalls, PlaceOrderCall{Args: args})
	resp := *m.Response
	return &resp, nil
}

func (m *MockClobClient) GetOpenOrders(ctx context.Context, tokenID string) ([]OpenOrder, error) {
	if err := m.track("GetOpenOrders"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.OpenOrders, nil
}

// PlacedOrders returns a copy of the recorded PlaceOrder calls.
func (m *MockClobClient) PlacedOrders() []PlaceOrderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PlaceOrderCall, len(m.PlaceOrderCalls))
	copy(out, m.PlaceOrderCalls)
	return out
}
