package config

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

const validYAML = `
your_account:
  private_key: env:TEST_PK
  total_capital: 5000
traders:
  - name: alpha
    wallet_address: "0x1111111111111111111111111111111111111111"
    allocated_capital: 2000
    enabled: true
  - name: beta
    wallet_address: "0x2222222222222222222222222222222222222222"
    allocated_capital: 1000
    enabled: false
risk_management:
  global:
    max_total_exposure: 5000
    max_single_bet: 500
    reserve_capital: 1000
  per_trader:
    min_portfolio_value: 100
    max_position_pct: 0.5
monitoring:
  poll_interval: 5
  portfolio_sync_interval: 60
`

func TestParseValidConfig(t *testing.T) {
	t.Setenv("TEST_PK", "deadbeef")

	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.YourAccount.PrivateKey != "deadbeef" {
		t.Errorf("env ref not expanded: %q", cfg.YourAccount.PrivateKey)
	}
	if len(cfg.Traders) != 2 {
		t.Fatalf("expected 2 traders, got %d", len(cfg.Traders))
	}
	if got := cfg.EnabledTraders(); len(got) != 1 || got[0].Name != "alpha" {
		t.Errorf("enabled traders = %v", got)
	}
	if !cfg.UseProportion() {
		t.Errorf("use_portfolio_proportion should default to true")
	}
	if cfg.Monitoring.PollIntervalSec != 5 {
		t.Errorf("poll interval = %d", cfg.Monitoring.PollIntervalSec)
	}
	if cfg.Control.Listen == "" {
		t.Errorf("control listen default missing")
	}
}

func TestParseMissingEnvVar(t *testing.T) {
	// TEST_PK_MISSING is deliberately unset.
	yaml := strings.ReplaceAll(validYAML, "env:TEST_PK", "env:TEST_PK_MISSING")
	if _, err := Parse([]byte(yaml)); err == nil {
		t.Fatal("expected error for missing env var")
	}
}

func TestValidationFailures(t *testing.T) {
	t.Setenv("TEST_PK", "deadbeef")

	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			name: "allocations plus reserve exceed total",
			mutate: func(y string) string {
				return strings.ReplaceAll(y, "allocated_capital: 2000", "allocated_capital: 4500")
			},
			wantErr: "exceeds total_capital",
		},
		{
			name: "invalid wallet address",
			mutate: func(y string) string {
				return strings.ReplaceAll(y, "0x1111111111111111111111111111111111111111", "not-an-address")
			},
			wantErr: "invalid wallet address",
		},
		{
			name: "zero max total exposure",
			mutate: func(y string) string {
				return strings.ReplaceAll(y, "max_total_exposure: 5000", "max_total_exposure: 0")
			},
			wantErr: "max_total_exposure",
		},
		{
			name: "max position pct above 1",
			mutate: func(y string) string {
				return strings.ReplaceAll(y, "max_position_pct: 0.5", "max_position_pct: 1.5")
			},
			wantErr: "max_position_pct",
		},
		{
			name: "duplicate trader name",
			mutate: func(y string) string {
				return strings.ReplaceAll(y, "name: beta", "name: alpha")
			},
			wantErr: "duplicate trader name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.mutate(validYAML)))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDisabledTraderNotCountedAgainstCapital(t *testing.T) {
	t.Setenv("TEST_PK", "deadbeef")

	// beta is disabled, so its 9000 allocation must not count against the
	// 5000 total.
	yaml := strings.ReplaceAll(validYAML, "allocated_capital: 1000", "allocated_capital: 9000")
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("disabled trader allocation should not count: %v", err)
	}
	b, _ := cfg.Trader("beta")
	if !b.AllocatedCapital.Equal(decimal.NewFromInt(9000)) {
		t.Errorf("beta allocation = %s", b.AllocatedCapital)
	}
}
