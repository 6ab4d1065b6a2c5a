package api

import (
	"strings"
	"testing"
)

const testKey = "0000000000000000000000000000000000000000000000000000000000000001"

func testClient(t *testing.T) *ClobClient {
	t.Helper()
	auth, err := NewAuth(testKey)
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	c, err := NewClobClient("", "", auth)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return c
}

func TestBuildSignedOrderAmounts(t *testing.T) {
	c := testClient(t)

	tests := []struct {
		name      string
		side      string
		size      float64
		price     float64
		wantMaker string
		wantTaker string
		wantSide  string
	}{
		{
			// Buying 20 shares at $0.50 pays 10 USDC for 20 tokens, both in
			// 1e6 base units.
			name:      "buy",
			side:      "BUY",
			size:      20,
			price:     0.5,
			wantMaker: "10000000",
			wantTaker: "20000000",
			wantSide:  "BUY",
		},
		{
			name:      "sell",
			side:      "SELL",
			size:      10,
			price:     0.55,
			wantMaker: "10000000",
			wantTaker: "5500000",
			wantSide:  "SELL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := c.buildSignedOrder(OrderArgs{
				TokenID: "123456",
				Side:    tt.side,
				Size:    tt.size,
				Price:   tt.price,
			})
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if order.MakerAmount != tt.wantMaker {
				t.Errorf("maker amount = %s, want %s", order.MakerAmount, tt.wantMaker)
			}
			if order.TakerAmount != tt.wantTaker {
				t.Errorf("taker amount = %s, want %s", order.TakerAmount, tt.wantTaker)
			}
			if order.Side != tt.wantSide {
				t.Errorf("side = %s", order.Side)
			}
			if !strings.HasPrefix(order.Signature, "0x") || len(order.Signature) != 132 {
				t.Errorf("signature malformed: %q (len %d)", order.Signature, len(order.Signature))
			}
			if order.Maker != c.auth.Address().Hex() || order.Signer != c.auth.Address().Hex() {
				t.Errorf("EOA order should have maker == signer == wallet")
			}
		})
	}
}

func TestBuildSignedOrderRejectsBadTokenID(t *testing.T) {
	c := testClient(t)
	if _, err := c.buildSignedOrder(OrderArgs{TokenID: "not-a-number", Side: "BUY", Size: 1, Price: 0.5}); err == nil {
		t.Fatal("expected error for non-numeric token id")
	}
}

func TestHmacSignDeterministic(t *testing.T) {
	secret := "c2VjcmV0LWtleS1mb3ItdGVzdHM=" // base64("secret-key-for-tests")
	a := hmacSign("1700000000POST/order{}", secret)
	b := hmacSign("1700000000POST/order{}", secret)
	if a == "" || a != b {
		t.Errorf("hmac not deterministic: %q vs %q", a, b)
	}
	if c := hmacSign("1700000001POST/order{}", secret); c == a {
		t.Error("different messages should not collide")
	}
}

func TestBestBid(t *testing.T) {
	book := &OrderBook{Bids: []OrderBookLevel{{Price: "0.55", Size: "10"}, {Price: "0.54", Size: "5"}}}
	if got := book.BestBid(); got != 0.55 {
		t.Errorf("best bid = %v", got)
	}
	empty := &OrderBook{}
	if got := empty.BestBid(); got != 0 {
		t.Errorf("empty book best bid = %v", got)
	}
}
