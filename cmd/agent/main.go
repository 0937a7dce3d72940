package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver

	"nof0-api/internal/cli"
	"nof0-api/internal/config"
	"nof0-api/internal/metrics"
	"nof0-api/pkg/agent"
	"nof0-api/pkg/audit"
	"nof0-api/pkg/broker"
	"nof0-api/pkg/confkit"
	"nof0-api/pkg/exchange"
	"nof0-api/pkg/exchange/hyperliquid"
	"nof0-api/pkg/llm"
	"nof0-api/pkg/llmdriver"
	"nof0-api/pkg/market"
	"nof0-api/pkg/positionmanager"
	"nof0-api/pkg/riskguard"
	"nof0-api/pkg/scheduler"
	"nof0-api/pkg/searchtool"
	"nof0-api/pkg/toolbridge"
)

func fatalf(format string, args ...interface{}) {
	logx.Errorf(format, args...)
	os.Exit(1)
}

func main() {
	var (
		devMode  = flag.Bool("dev", false, "force mock broker mode, bypassing live credentials")
		once     = flag.Bool("once", false, "run a single cycle across the configured symbols and exit")
		interval = flag.Duration("interval", 5*time.Minute, "delay between scheduler cycles")
		llmPath  = flag.String("llm-config", "etc/llm.yaml", "path to llm client configuration")
	)
	flag.Parse()
	logx.MustSetup(logx.LogConf{})
	logx.DisableStat()

	risk, err := config.RiskConfigFromEnv(*devMode)
	if err != nil {
		fatalf("load risk config: %v", err)
	}
	if risk.RequiresCredentials() {
		requireEnv("HYPERLIQUID_PRIVATE_KEY")
		requireEnv("ZENMUX_API_KEY")
	}

	cli.LogConfigSummary(configSummary(risk, *llmPath))

	guard := riskguard.New(risk.MaxLeverage, risk.MaxCostPerTrade, risk.SymbolWhitelist)
	guard.SetCooldownMs(risk.CooldownMs)

	metricsReg := metrics.New()

	brk, err := buildBroker(risk)
	if err != nil {
		fatalf("build broker: %v", err)
	}
	positions := positionmanager.New(brk, broker.RealClock{})
	positions.SetMetrics(metricsReg)

	llmClient, err := buildLLMClient(*llmPath)
	if err != nil {
		fatalf("build llm client: %v", err)
	}
	defer func() { _ = llmClient.Close() }()

	marketData := toolbridge.NewHyperliquidMarketData(market.NewHyperliquidProvider())
	marketData.SetCandidateUniverse(risk.SymbolWhitelist)

	searcher := searchtool.NewClient(os.Getenv("SEARCH_API_URL"), os.Getenv("SEARCH_API_KEY"))
	bridge := toolbridge.New(guard, positions, brk, marketData, searcher)

	driver := llmdriver.New(llmClient, bridge, "")
	driver.SetMetrics(metricsReg)

	sink := buildAuditSink()

	trader := agent.New(driver, guard, sink)

	sched := scheduler.New()
	sched.SetMetrics(metricsReg)

	cycle := func(ctx context.Context, symbols []string) error {
		if err := positions.ForceSync(ctx, symbols); err != nil {
			logx.Errorf("position sync failed: %v", err)
		}
		return trader.Run(ctx, symbols)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logx.Infof("received signal %s, stopping scheduler", sig)
		cancel()
		sched.Stop()
	}()

	if *once {
		sched.RunOnce(ctx, cycle, risk.Symbols)
		return
	}

	logx.Infof("starting trading agent: mode=%s broker=%s symbols=%v interval=%s",
		risk.Mode, risk.BrokerMode, risk.Symbols, *interval)
	sched.Start(ctx, cycle, risk.Symbols, *interval)
}

func requireEnv(key string) {
	if os.Getenv(key) == "" {
		fatalf("missing required environment variable %s outside mock mode", key)
	}
}

func buildBroker(risk *config.RiskConfig) (broker.Broker, error) {
	switch risk.BrokerMode {
	case config.BrokerMock:
		sim := broker.NewSimulationBroker(10000, broker.RealClock{})
		return sim, nil
	case config.BrokerPaper:
		// Paper mode still talks to a real exchange connection (testnet) for
		// live market data and fill behavior, just never against mainnet funds.
		provider, err := hyperliquidProviderFromRegistry(os.Getenv("HYPERLIQUID_PRIVATE_KEY"), true)
		if err != nil {
			return nil, err
		}
		adapter := broker.NewHyperliquidAdapter(provider, risk.SlippageTolerance)
		return broker.NewExchangeBroker(adapter, broker.RealClock{}), nil
	default:
		privateKey := os.Getenv("HYPERLIQUID_PRIVATE_KEY")
		isTestnet := os.Getenv("HYPERLIQUID_TESTNET") == "true"
		provider, err := hyperliquidProviderFromRegistry(privateKey, isTestnet)
		if err != nil {
			return nil, err
		}
		adapter := broker.NewHyperliquidAdapter(provider, risk.SlippageTolerance)
		return broker.NewExchangeBroker(adapter, broker.RealClock{}), nil
	}
}

// hyperliquidProviderFromRegistry builds a Hyperliquid provider through the
// exchange package's provider registry rather than constructing the client
// directly, so the registry registered by hyperliquid.init() is exercised
// from the production broker-build path and not just from tests.
func hyperliquidProviderFromRegistry(privateKey string, isTestnet bool) (*hyperliquid.Provider, error) {
	built, err := exchange.GetProvider("hyperliquid", &exchange.ProviderConfig{
		PrivateKey: privateKey,
		Testnet:    isTestnet,
	})
	if err != nil {
		return nil, err
	}
	provider, ok := built.(*hyperliquid.Provider)
	if !ok {
		return nil, fmt.Errorf("exchange registry: unexpected provider type %T for hyperliquid", built)
	}
	return provider, nil
}

// configSummary builds a lightweight internal/config.Config solely to drive
// internal/cli.LogConfigSummary's startup banner; this binary sources its
// own settings from RiskConfigFromEnv rather than conf.Load/YAML, but the
// summary lines are still worth logging once at boot.
func configSummary(risk *config.RiskConfig, llmPath string) *config.Config {
	return &config.Config{
		Env:      string(risk.Mode),
		DataPath: "n/a (env-driven)",
		Postgres: config.PostgresConf{DataSource: os.Getenv("AUDIT_POSTGRES_DSN")},
		TTL:      config.CacheTTL{Short: 10, Medium: 60, Long: 300},
		LLM:      confkit.Section[llm.Config]{File: llmPath},
		Exchange: confkit.Section[exchange.Config]{File: "env:HYPERLIQUID_*"},
	}
}

func buildLLMClient(path string) (*llm.Client, error) {
	cfg, err := llm.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return llm.NewClient(cfg)
}

func buildAuditSink() *audit.CompositeSink {
	fileLog := audit.NewFileLog("logs")

	var sqlSink *audit.SQLSink
	if dsn := os.Getenv("AUDIT_POSTGRES_DSN"); dsn != "" {
		conn := sqlx.NewSqlConn("pgx", dsn)
		sqlSink = audit.NewSQLSink(conn)
	}
	return audit.NewCompositeSink(fileLog, sqlSink)
}
