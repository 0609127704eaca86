package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.Interval != time.Minute {
		t.Fatalf("expected 60s interval, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Alerting.ThresholdPct != 5.0 {
		t.Fatalf("expected 5%% threshold, got %v", cfg.Alerting.ThresholdPct)
	}
	if strings.Join(cfg.Tokens, ",") != "bitcoin,ethereum,solana" {
		t.Fatalf("unexpected tokens %v", cfg.Tokens)
	}
	if cfg.Storage.MaxHistory != 1000 || cfg.Storage.MaxAlerts != 500 {
		t.Fatalf("unexpected storage caps %+v", cfg.Storage)
	}
	if cfg.Fetcher.Source != "coingecko" || cfg.Fetcher.CoinGecko.APIKey != "" {
		t.Fatalf("unexpected fetcher config %+v", cfg.Fetcher)
	}
	if len(cfg.Fetcher.Chainlink.Feeds) != 3 {
		t.Fatalf("expected default chainlink feeds, got %v", cfg.Fetcher.Chainlink.Feeds)
	}
}

func TestLoadLegacyEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("POLL_INTERVAL", "1500")
	t.Setenv("ALERT_THRESHOLD", "2.5")
	t.Setenv("COINGECKO_API_KEY", "demo-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.Interval != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s interval, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Alerting.ThresholdPct != 2.5 {
		t.Fatalf("expected 2.5 threshold, got %v", cfg.Alerting.ThresholdPct)
	}
	if cfg.Fetcher.CoinGecko.APIKey != "demo-key" {
		t.Fatalf("expected api key from env, got %q", cfg.Fetcher.CoinGecko.APIKey)
	}
}

func TestLoadPrefixedEnvWins(t *testing.T) {
	chdirTemp(t)
	t.Setenv("POLL_INTERVAL", "1500")
	t.Setenv("PRICEBOT_SCHEDULER_INTERVAL", "2m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.Interval != 2*time.Minute {
		t.Fatalf("expected 2m interval, got %s", cfg.Scheduler.Interval)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("ALERT_THRESHOLD", "")
	os.Unsetenv("ALERT_THRESHOLD")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("ALERT_THRESHOLD=7.5\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Alerting.ThresholdPct != 7.5 {
		t.Fatalf("expected threshold from .env, got %v", cfg.Alerting.ThresholdPct)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "pricebot.yaml")
	content := `
tokens: [bitcoin]
scheduler:
  interval: 30s
storage:
  data_dir: /var/lib/pricebot
fetcher:
  source: chainlink
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Tokens) != 1 || cfg.Tokens[0] != "bitcoin" {
		t.Fatalf("unexpected tokens %v", cfg.Tokens)
	}
	if cfg.Scheduler.Interval != 30*time.Second {
		t.Fatalf("expected 30s, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Storage.DataDir != "/var/lib/pricebot" || cfg.Fetcher.Source != "chainlink" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Tokens:    []string{"bitcoin"},
			Scheduler: SchedulerConfig{Interval: time.Minute},
			Fetcher:   FetcherConfig{Source: "coingecko"},
			Storage:   StorageConfig{DataDir: "data", MaxHistory: 10, MaxAlerts: 10},
			Alerting:  AlertingConfig{ThresholdPct: 5, WindowSize: 10},
			Export:    ExportConfig{MaxDataPoints: 100},
		}
	}

	cases := map[string]func(*Config){
		"no tokens":          func(c *Config) { c.Tokens = nil },
		"zero interval":      func(c *Config) { c.Scheduler.Interval = 0 },
		"unknown source":     func(c *Config) { c.Fetcher.Source = "binance" },
		"negative threshold": func(c *Config) { c.Alerting.ThresholdPct = -1 },
		"tiny window":        func(c *Config) { c.Alerting.WindowSize = 1 },
		"telegram no token":  func(c *Config) { c.Alerting.Telegram.Enabled = true },
	}

	base := valid()
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	for name, mutate := range cases {
		cfg := valid()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := Config{Export: ExportConfig{MaxDataPoints: 100}}
	if cfg.ResolveMaxPoints(0) != 100 || cfg.ResolveMaxPoints(20) != 20 {
		t.Fatal("unexpected max points resolution")
	}
}
