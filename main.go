// Command copytrader mirrors configured Polymarket leader wallets with
// proportionally sized orders under global and per-leader risk limits.
//
// Subcommands:
//
//	start        run the engine
//	status       print per-leader exposure and global totals
//	pause        suspend mirroring for one trader
//	resume       re-enable mirroring for one trader
//	stop         gracefully shut down a running engine
//	track-trades run the trade history recorder only (no orders)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"polymarket-copytrader/api"
	"polymarket-copytrader/config"
	"polymarket-copytrader/handlers"
	"polymarket-copytrader/models"
	"polymarket-copytrader/storage"
	"polymarket-copytrader/syncer"
)

const (
	exitOK          = 0
	exitConfigError = 1
	exitAuthError   = 2
	exitFatal       = 3
	exitNotRunning  = 4
	exitNoTrader    = 5
)

const defaultConfigPath = "config/settings.yaml"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if len(os.Args) < 2 {
		usage()
		os.Exit(exitConfigError)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "start":
		os.Exit(runStart(args))
	case "status":
		os.Exit(runStatus(args))
	case "pause":
		os.Exit(runToggle("pause", args))
	case "resume":
		os.Exit(runToggle("resume", args))
	case "stop":
		os.Exit(runStop(args))
	case "track-trades":
		os.Exit(runTrackTrades(args))
	default:
		usage()
		os.Exit(exitConfigError)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: copytrader <start|status|pause|resume|stop|track-trades> [flags]")
}

func loadConfig(path string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("[main] no .env file found, using environment as-is")
	}
	return config.Load(path)
}

// setupLogging mirrors log output into logging.file when configured.
func setupLogging(cfg *config.Config) (func(), error) {
	if cfg.Logging.File == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0o755); err != nil {
		return nil, fmt.Errorf("log file dir: %w", err)
	}
	f, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return func() {
		log.SetOutput(os.Stderr)
		f.Close()
	}, nil
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config file path")
	fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Printf("[main] %v", err)
		return exitConfigError
	}

	closeLog, err := setupLogging(cfg)
	if err != nil {
		log.Printf("[main] %v", err)
		return exitConfigError
	}
	defer closeLog()

	dataClient := api.NewClient(os.Getenv("POLYMARKET_DATA_API_URL"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Order placement is optional: without a private key the engine runs
	// dry, sizing and recording decisions but submitting nothing.
	var orderClient api.OrderClientInterface
	if cfg.YourAccount.PrivateKey != "" {
		auth, err := api.NewAuth(cfg.YourAccount.PrivateKey)
		if err != nil {
			log.Printf("[main] %v", err)
			return exitConfigError
		}
		clob, err := api.NewClobClient(os.Getenv("POLYMARKET_CLOB_URL"), os.Getenv("POLYMARKET_GAMMA_URL"), auth)
		if err != nil {
			log.Printf("[main] %v", err)
			return exitConfigError
		}
		if cfg.YourAccount.ProxyAddress != "" {
			clob.SetFunder(cfg.YourAccount.ProxyAddress)
			clob.SetSignatureType(cfg.YourAccount.SignatureType)
		}
		if cfg.YourAccount.APIKey != "" && cfg.YourAccount.APISecret != "" && cfg.YourAccount.APIPassphrase != "" {
			clob.SetCreds(api.APICreds{
				APIKey:        cfg.YourAccount.APIKey,
				APISecret:     cfg.YourAccount.APISecret,
				APIPassphrase: cfg.YourAccount.APIPassphrase,
			})
		} else {
			credCtx, credCancel := context.WithTimeout(ctx, 30*time.Second)
			_, err := clob.DeriveAPICreds(credCtx)
			credCancel()
			if err != nil {
				log.Printf("[main] venue credential setup failed: %v", err)
				if api.KindOf(err) == api.KindAuth {
					return exitAuthError
				}
				return exitFatal
			}
		}
		orderClient = clob
	} else {
		log.Printf("[main] your_account.private_key not set; running dry (no orders)")
	}

	// Reconcile persisted exposure against the venue before trading. A
	// large divergence means the ledger no longer reflects reality, so the
	// engine starts in observe mode instead of auto-correcting.
	if orderClient != nil {
		operator := cfg.YourAccount.ProxyAddress
		if operator == "" {
			if auth, err := api.NewAuth(cfg.YourAccount.PrivateKey); err == nil {
				operator = auth.Address().Hex()
			}
		}
		if diverged(ctx, dataClient, cfg, operator) {
			log.Printf("[main] persisted ledger diverges from venue positions; starting in observe mode (no orders)")
			orderClient = nil
		}
	}

	csvAudit, err := storage.NewCSVAuditStore(cfg.Logging.TradesFile)
	if err != nil {
		log.Printf("[main] %v", err)
		return exitConfigError
	}
	var pgAudit storage.AuditStore
	if cfg.Audit.DatabaseURL != "" {
		pg, err := storage.NewPostgresAuditStore(ctx, cfg.Audit.DatabaseURL)
		if err != nil {
			log.Printf("[main] postgres audit unavailable: %v", err)
		} else {
			pgAudit = pg
		}
	}
	audit := storage.NewMultiAuditStore(csvAudit, pgAudit)
	defer audit.Close()

	metricsStore, err := syncer.NewMetricsStore(cfg.Metrics.RedisURL)
	if err != nil {
		log.Printf("[main] redis metrics unavailable: %v", err)
	}
	defer metricsStore.Close()

	ledger := syncer.NewExposureLedger(cfg.Risk.Global.MaxTotalExposure)
	tracker := syncer.NewPortfolioTracker(dataClient)
	monitor := syncer.NewTradeMonitor(dataClient, cfg.PollInterval())
	risk := syncer.NewRiskManager(cfg.Risk, cfg.UseProportion())
	executor := syncer.NewTradeExecutor(orderClient, ledger)

	// The market WS only hints that a watched token traded; the engine
	// starts (and stops) it and reacts by polling early.
	var engine *syncer.CopyTrader
	ws := api.NewMarketWS(os.Getenv("POLYMARKET_WS_URL"), func(api.MarketActivity) {
		if engine != nil {
			engine.NotifyActivity()
		}
	})

	engine = syncer.NewCopyTrader(cfg, *cfgPath, syncer.Deps{
		Monitor:  monitor,
		Tracker:  tracker,
		Risk:     risk,
		Ledger:   ledger,
		Executor: executor,
		Audit:    audit,
		Metrics:  metricsStore,
		MarketWS: ws,
	})

	if !cfg.Control.Disabled() {
		if strings.EqualFold(cfg.Logging.Level, "DEBUG") {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
		router := gin.New()
		router.Use(gin.Recovery())
		handlers.NewHandler(engine).Register(router)
		srv := &http.Server{Addr: cfg.Control.Listen, Handler: router}
		go func() {
			log.Printf("[main] control API listening on %s", cfg.Control.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[main] control API: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			srv.Shutdown(shutdownCtx)
			shutdownCancel()
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		log.Printf("[main] shutting down...")
		engine.Stop()
	}()

	if err := engine.Run(ctx); err != nil {
		if errors.Is(err, syncer.ErrAuthFatal) {
			return exitAuthError
		}
		return exitFatal
	}
	return exitOK
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config file path")
	fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Printf("[main] %v", err)
		return exitConfigError
	}

	var status models.EngineStatus
	if fetchStatus(cfg, &status) {
		printStatus(status)
		return exitOK
	}

	// Engine not running; fall back to the persisted snapshot.
	ok, err := storage.ReadState(filepath.Join(cfg.StateDir, "copytrade_state.json"), &status)
	if err != nil || !ok {
		fmt.Println("No runtime state found. Is the copytrader running?")
		return exitOK
	}
	fmt.Printf("(engine not running; showing snapshot from %s)\n", status.UpdatedAt.Format(time.RFC3339))
	printStatus(status)
	return exitOK
}

func fetchStatus(cfg *config.Config, out *models.EngineStatus) bool {
	if cfg.Control.Disabled() {
		return false
	}
	resp, err := controlClient().Get("http://" + cfg.Control.Listen + "/status")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	return json.NewDecoder(resp.Body).Decode(out) == nil
}

func printStatus(status models.EngineStatus) {
	fmt.Printf("%-16s %-10s %12s %12s %8s %12s %8s\n",
		"TRADER", "STATE", "ALLOCATED", "EXPOSED", "UTIL%", "REALIZED", "TRADES")
	for _, l := range status.Leaders {
		fmt.Printf("%-16s %-10s %12s %12s %7s%% %12s %8d\n",
			l.Name, l.State,
			"$"+l.Allocated.StringFixed(2),
			"$"+l.Exposed.StringFixed(2),
			l.Utilization.StringFixed(1),
			"$"+l.RealizedPnl.StringFixed(2),
			l.TradeCount)
	}
	fmt.Printf("\nGlobal exposure: $%s / $%s (%d open positions)\n",
		status.GlobalExposure.StringFixed(2),
		status.MaxExposure.StringFixed(2),
		status.PositionCount)
}

func runToggle(action string, args []string) int {
	fs := flag.NewFlagSet(action, flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config file path")
	traderName := fs.String("trader-name", "", "trader to "+action)
	fs.Parse(args)

	if *traderName == "" {
		fmt.Fprintf(os.Stderr, "--trader-name is required\n")
		return exitConfigError
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Printf("[main] %v", err)
		return exitConfigError
	}
	if cfg.Control.Disabled() {
		fmt.Println("Control API is disabled in config; cannot signal the engine.")
		return exitNotRunning
	}

	endpoint := fmt.Sprintf("http://%s/%s?trader=%s", cfg.Control.Listen, action, *traderName)
	resp, err := controlClient().Post(endpoint, "application/json", nil)
	if err != nil {
		fmt.Println("Engine is not running.")
		return exitNotRunning
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		fmt.Printf("%sd %s\n", action, *traderName)
		return exitOK
	case http.StatusNotFound:
		fmt.Printf("Trader not found: %s\n", *traderName)
		return exitNoTrader
	default:
		fmt.Printf("Unexpected response: %s\n", resp.Status)
		return exitFatal
	}
}

func runStop(args []string) int {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config file path")
	fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Printf("[main] %v", err)
		return exitConfigError
	}
	if cfg.Control.Disabled() {
		fmt.Println("Control API is disabled in config; send SIGTERM to the process instead.")
		return exitNotRunning
	}
	resp, err := controlClient().Post("http://"+cfg.Control.Listen+"/stop", "application/json", nil)
	if err != nil {
		fmt.Println("Engine is not running.")
		return exitNotRunning
	}
	resp.Body.Close()
	fmt.Println("Shutdown requested.")
	return exitOK
}

func runTrackTrades(args []string) int {
	fs := flag.NewFlagSet("track-trades", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config file path")
	fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Printf("[main] %v", err)
		return exitConfigError
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	recorder := syncer.NewTradeHistoryRecorder(api.NewClient(os.Getenv("POLYMARKET_DATA_API_URL")), cfg)
	if err := recorder.Run(ctx); err != nil {
		log.Printf("[main] recorder: %v", err)
		return exitFatal
	}
	return exitOK
}

func controlClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Second}
}

// diverged compares persisted ledger exposure against the operator's live
// venue positions. True when they disagree by more than 25% and $50.
func diverged(ctx context.Context, dataClient *api.Client, cfg *config.Config, operatorWallet string) bool {
	if operatorWallet == "" {
		return false
	}
	var state syncer.LedgerState
	ok, err := storage.ReadState(filepath.Join(cfg.StateDir, "ledger.json"), &state)
	if err != nil || !ok || len(state.PerLeader) == 0 {
		return false
	}
	persisted := decimal.Zero
	for _, v := range state.PerLeader {
		persisted = persisted.Add(v)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	positions, err := dataClient.GetPositions(checkCtx, api.PositionsParams{User: operatorWallet, SizeThreshold: 0.1})
	if err != nil {
		log.Printf("[main] reconciliation check skipped (positions unavailable: %v)", err)
		return false
	}
	live := decimal.Zero
	for _, pos := range positions {
		live = decimal.NewFromFloat(pos.CurrentValue).Add(live)
	}

	diff := persisted.Sub(live).Abs()
	if diff.LessThan(decimal.NewFromInt(50)) {
		return false
	}
	base := persisted
	if live.GreaterThan(base) {
		base = live
	}
	if base.Sign() <= 0 {
		return false
	}
	return diff.Div(base).GreaterThan(decimal.NewFromFloat(0.25))
}
