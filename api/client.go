package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultDataAPIURL is Polymarket's public data API.
	DefaultDataAPIURL = "https://data-api.polymarket.com"

	// defaultUserAgent mimics a browser UA to avoid Cloudflare 403s.
	defaultUserAgent = "Mozilla/5.0"

	requestTimeout = 10 * time.Second
)

// Client fetches positions and trades from the Polymarket Data API. It is
// stateless apart from a shared rate limiter.
type Client struct {
	host       string
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
}

// NewClient builds a data API client. An empty host selects the default.
func NewClient(host string) *Client {
	if strings.TrimSpace(host) == "" {
		host = DefaultDataAPIURL
	}
	return &Client{
		host:       strings.TrimRight(host, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		userAgent:  defaultUserAgent,
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
	}
}

// DataPosition is the raw positions-endpoint payload.
type DataPosition struct {
	ProxyWallet  string  `json:"proxyWallet"`
	Asset        string  `json:"asset"`
	ConditionID  string  `json:"conditionId"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avgPrice"`
	InitialValue float64 `json:"initialValue"`
	CurrentValue float64 `json:"currentValue"`
	CashPnl      float64 `json:"cashPnl"`
	CurPrice     float64 `json:"curPrice"`
	Outcome      string  `json:"outcome"`
	Title        string  `json:"title"`
	NegativeRisk bool    `json:"negativeRisk"`
}

// DataTrade is the raw trades-endpoint payload.
type DataTrade struct {
	ProxyWallet     string  `json:"proxyWallet"`
	Side            string  `json:"side"`
	Asset           string  `json:"asset"`
	ConditionID     string  `json:"conditionId"`
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	Timestamp       int64   `json:"timestamp"`
	Title           string  `json:"title"`
	Outcome         string  `json:"outcome"`
	TransactionHash string  `json:"transactionHash"`
	Type            string  `json:"type"`
}

// PositionsParams narrows a positions request.
type PositionsParams struct {
	User          string
	SizeThreshold float64
	Limit         int
}

// TradeQuery narrows a trades request.
type TradeQuery struct {
	User      string
	Limit     int
	Offset    int
	TakerOnly bool
}

// GetPositions returns open positions for a wallet, filtered server-side to
// those above the size threshold.
func (c *Client) GetPositions(ctx context.Context, params PositionsParams) ([]DataPosition, error) {
	q := url.Values{}
	q.Set("user", strings.TrimSpace(params.User))
	q.Set("sortBy", "TOKENS")
	q.Set("sortDirection", "DESC")
	if params.SizeThreshold > 0 {
		q.Set("sizeThreshold", strconv.FormatFloat(params.SizeThreshold, 'f', -1, 64))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}

	var out []DataPosition
	if err := c.getJSON(ctx, "positions", "/positions?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTrades returns recent fills for a wallet, newest first as the venue
// reports them. Callers own ordering and dedup.
func (c *Client) GetTrades(ctx context.Context, query TradeQuery) ([]DataTrade, error) {
	q := url.Values{}
	q.Set("user", strings.TrimSpace(query.User))
	q.Set("takerOnly", strconv.FormatBool(query.TakerOnly))
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Offset > 0 {
		q.Set("offset", strconv.Itoa(query.Offset))
	}

	var out []DataTrade
	if err := c.getJSON(ctx, "trades", "/trades?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return venueErr(op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path, nil)
	if err != nil {
		return &VenueError{Kind: KindFatal, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return venueErr(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusErr(op, resp.StatusCode, readBodyLimit(resp.Body, 8<<10))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &VenueError{Kind: KindTransient, Op: op, Err: err}
	}
	return nil
}

func readBodyLimit(r io.Reader, limit int64) string {
	b, _ := io.ReadAll(io.LimitReader(r, limit))
	return string(b)
}
