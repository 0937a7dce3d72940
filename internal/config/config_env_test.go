package config

import (
	"os"
	"path/filepath"
	"testing"

	"nof0-api/pkg/confkit"
	exchangepkg "nof0-api/pkg/exchange"
	_ "nof0-api/pkg/exchange/hyperliquid"
	llmpkg "nof0-api/pkg/llm"
)

// Test_hydrateSections_withEnvAndSectionFiles verifies env expansion and
// per-section hydration without going through go-zero conf.Load.
func Test_hydrateSections_withEnvAndSectionFiles(t *testing.T) {
	dir := t.TempDir()

	// Prepare llm.yaml using env placeholders
	llmYAML := []byte(`
base_url: ${ZENMUX_BASE_URL}
api_key: ${ZENMUX_API_KEY}
default_model: ${ZENMUX_DEFAULT_MODEL}
timeout: 2s
`)
	llmPath := filepath.Join(dir, "llm.yaml")
	if err := os.WriteFile(llmPath, llmYAML, 0o600); err != nil {
		t.Fatalf("write llm.yaml: %v", err)
	}

	// Prepare exchange.yaml using env placeholders
	exchangeYAML := []byte(`
default: hyperliquid
providers:
  hyperliquid:
    type: hyperliquid
    private_key: ${HL_PRIVATE_KEY}
    api_key: ${HL_API_KEY}
    timeout: ${HL_TIMEOUT}
`)
	exchangePath := filepath.Join(dir, "exchange.yaml")
	if err := os.WriteFile(exchangePath, exchangeYAML, 0o600); err != nil {
		t.Fatalf("write exchange.yaml: %v", err)
	}

	// Set envs consumed by the files above
	t.Setenv("ZENMUX_BASE_URL", "https://zenmux.example/api")
	t.Setenv("ZENMUX_API_KEY", "test-key")
	t.Setenv("ZENMUX_DEFAULT_MODEL", "gpt-x")
	t.Setenv("HL_PRIVATE_KEY", "0xabc123placeholder")
	t.Setenv("HL_API_KEY", "hl-key")
	t.Setenv("HL_TIMEOUT", "7s")

	// Construct top-level config and hydrate sections
	cfg := &Config{
		DataPath: "./data",
		TTL:      CacheTTL{Short: 10, Medium: 60, Long: 300},
		LLM:      confkit.Section[llmpkg.Config]{File: "llm.yaml"},
		Exchange: confkit.Section[exchangepkg.Config]{File: "exchange.yaml"},
		baseDir:  dir,
	}
	if err := cfg.hydrateSections(); err != nil {
		t.Fatalf("hydrateSections: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.LLM.Value == nil {
		t.Fatalf("LLM.Value not hydrated")
	}
	if got := cfg.LLM.Value.BaseURL; got != "https://zenmux.example/api" {
		t.Fatalf("LLM.BaseURL not expanded, got %q", got)
	}
	if got := cfg.LLM.Value.APIKey; got != "test-key" {
		t.Fatalf("LLM.APIKey not expanded, got %q", got)
	}
	if got := cfg.LLM.Value.DefaultModel; got != "gpt-x" {
		t.Fatalf("LLM.DefaultModel got %q", got)
	}

	if cfg.Exchange.Value == nil {
		t.Fatalf("Exchange.Value not hydrated")
	}
	p := cfg.Exchange.Value.Providers["hyperliquid"]
	if p == nil {
		t.Fatalf("Exchange provider 'hyperliquid' missing")
	}
	if got := p.APIKey; got != "hl-key" {
		t.Fatalf("Exchange APIKey not expanded, got %q", got)
	}
	if p.Timeout.String() != "7s" {
		t.Fatalf("Exchange timeout not parsed, got timeout=%s", p.Timeout)
	}
}

func TestValidate_TTLBounds(t *testing.T) {
	cfg := &Config{}
	cfg.DataPath = "./data"
	cfg.TTL.Short = 0
	cfg.TTL.Medium = 60
	cfg.TTL.Long = 300
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected ttl.short validation error")
	}
}
