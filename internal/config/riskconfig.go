package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"nof0-api/pkg/confkit"
)

// Mode is the canonical trading-mode enum (spec §3: mode ∈ {paper, live}).
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// BrokerMode optionally overrides which broker implementation backs the
// agent; it is a superset of Mode with a "mock" value for --dev runs.
type BrokerMode string

const (
	BrokerMock  BrokerMode = "mock"
	BrokerPaper BrokerMode = "paper"
	BrokerLive  BrokerMode = "live"
)

// RiskConfig is the canonical, immutable-once-loaded schema named in spec
// §3, sourced exclusively from the named environment variables in §6. This
// supersedes the teacher's nested YAML risk sections per the spec's
// resolution of the "two divergent risk-config sources" design note.
type RiskConfig struct {
	Mode                     Mode
	BrokerMode               BrokerMode
	MaxLeverage              int
	MaxCostPerTrade          float64
	SymbolWhitelist          []string
	SlippageTolerance        float64
	DefaultStopLossPercent   float64
	DefaultTakeProfitPercent float64
	CooldownMs               int
	IntervalMs               int
	JitterMs                 int
	Symbols                  []string
}

const hardMaxLeverage = 20

// RiskConfigFromEnv loads the RiskConfig from the environment, applying the
// defaults and bounds from spec §6. devMode forces BrokerMode to "mock"
// regardless of TRADING_MODE/BROKER_MODE, matching the CLI's --dev flag.
func RiskConfigFromEnv(devMode bool) (*RiskConfig, error) {
	confkit.LoadDotenvOnce()

	mode := Mode(strings.ToLower(getEnvOrDefault("TRADING_MODE", string(ModePaper))))
	if mode != ModePaper && mode != ModeLive {
		return nil, fmt.Errorf("config: TRADING_MODE must be paper|live, got %q", mode)
	}

	brokerMode := BrokerMode(strings.ToLower(getEnvOrDefault("BROKER_MODE", "")))
	if brokerMode == "" {
		if mode == ModeLive {
			brokerMode = BrokerLive
		} else {
			brokerMode = BrokerPaper
		}
	}
	if devMode {
		brokerMode = BrokerMock
	}
	switch brokerMode {
	case BrokerMock, BrokerPaper, BrokerLive:
	default:
		return nil, fmt.Errorf("config: BROKER_MODE must be mock|paper|live, got %q", brokerMode)
	}

	maxLeverage := getIntOrDefault("MAX_LEVERAGE", 10)
	if maxLeverage < 1 || maxLeverage > hardMaxLeverage {
		return nil, fmt.Errorf("config: MAX_LEVERAGE must be in [1,%d], got %d", hardMaxLeverage, maxLeverage)
	}

	maxCost := getFloatOrDefault("MAX_COST_PER_TRADE", 100)
	if maxCost <= 0 {
		return nil, fmt.Errorf("config: MAX_COST_PER_TRADE must be positive, got %v", maxCost)
	}

	whitelist := splitOrDefault(getEnvOrDefault("SYMBOL_WHITELIST", ""), []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"})

	slippage := getFloatOrDefault("SLIPPAGE_TOLERANCE", 0.01)
	stopLoss := getFloatOrDefault("DEFAULT_STOP_LOSS_PERCENT", 0.05)
	takeProfit := getFloatOrDefault("DEFAULT_TAKE_PROFIT_PERCENT", 0.10)
	cooldownMs := getIntOrDefault("COOLDOWN_MS", 300000)
	intervalMs := getIntOrDefault("INTERVAL_MS", 300000)
	jitterMs := getIntOrDefault("JITTER_MS", 15000)
	symbols := splitOrDefault(getEnvOrDefault("SYMBOLS", ""), []string{"BTC/USDT", "ETH/USDT"})

	cfg := &RiskConfig{
		Mode:                     mode,
		BrokerMode:               brokerMode,
		MaxLeverage:              maxLeverage,
		MaxCostPerTrade:          maxCost,
		SymbolWhitelist:          whitelist,
		SlippageTolerance:        slippage,
		DefaultStopLossPercent:   stopLoss,
		DefaultTakeProfitPercent: takeProfit,
		CooldownMs:               cooldownMs,
		IntervalMs:               intervalMs,
		JitterMs:                 jitterMs,
		Symbols:                  symbols,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *RiskConfig) validate() error {
	if len(c.SymbolWhitelist) == 0 {
		return fmt.Errorf("config: SYMBOL_WHITELIST must not be empty")
	}
	if c.SlippageTolerance < 0 {
		return fmt.Errorf("config: SLIPPAGE_TOLERANCE must be non-negative")
	}
	if c.CooldownMs < 0 || c.IntervalMs < 0 || c.JitterMs < 0 {
		return fmt.Errorf("config: COOLDOWN_MS/INTERVAL_MS/JITTER_MS must be non-negative")
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: SYMBOLS must not be empty")
	}
	return nil
}

// RequiresCredentials reports whether this config needs live exchange/LLM
// credentials. Mock mode never does; anything else does, per spec §6.
func (c *RiskConfig) RequiresCredentials() bool {
	return c.BrokerMode != BrokerMock
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
