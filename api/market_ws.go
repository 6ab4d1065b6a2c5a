package api

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultMarketWSURL is the CLOB market-channel WebSocket endpoint.
const DefaultMarketWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

// MarketActivity is one activity event from the market channel. It carries
// no wallet attribution, so it only serves as a hint that something traded;
// the Data API poller remains the source of record.
type MarketActivity struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Timestamp string `json:"timestamp"`
}

// MarketWS streams market-channel activity for a set of tokens. Reconnects
// with backoff until the context is cancelled.
type MarketWS struct {
	url        string
	onActivity func(MarketActivity)

	mu     sync.Mutex
	assets map[string]struct{}
	conn   *websocket.Conn

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMarketWS builds a watcher. An empty URL selects the default endpoint.
func NewMarketWS(wsURL string, onActivity func(MarketActivity)) *MarketWS {
	if wsURL == "" {
		wsURL = DefaultMarketWSURL
	}
	return &MarketWS{
		url:        wsURL,
		onActivity: onActivity,
		assets:     make(map[string]struct{}),
		stopCh:     make(chan struct{}),
	}
}

// Watch adds a token to the subscription set. Takes effect on the next
// (re)connect.
func (w *MarketWS) Watch(tokenID string) {
	w.mu.Lock()
	w.assets[tokenID] = struct{}{}
	w.mu.Unlock()
}

// Start runs the read loop until ctx is done or Stop is called.
func (w *MarketWS) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		backoff := time.Second
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			default:
			}

			if err := w.runOnce(ctx); err != nil {
				log.Printf("[market-ws] connection ended: %v (retrying in %s)", err, backoff)
			}

			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()
}

// Stop terminates the watcher and waits for the read loop to exit.
func (w *MarketWS) Stop() {
	close(w.stopCh)
	w.mu.Lock()
	if w.conn != nil {
		w.conn.Close()
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *MarketWS) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, w.url, nil)
	cancel()
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	ids := make([]string, 0, len(w.assets))
	for id := range w.assets {
		ids = append(ids, id)
	}
	w.mu.Unlock()
	defer conn.Close()

	sub := map[string]any{"type": "market", "assets_ids": ids}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		// The channel delivers both single events and arrays of them.
		var events []MarketActivity
		if err := json.Unmarshal(msg, &events); err != nil {
			var single MarketActivity
			if err := json.Unmarshal(msg, &single); err != nil {
				continue
			}
			events = []MarketActivity{single}
		}
		for _, ev := range events {
			if ev.EventType == "" {
				continue
			}
			if w.onActivity != nil {
				w.onActivity(ev)
			}
		}
	}
}
