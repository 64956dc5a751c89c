package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validYAML = `
tickergate:
  name: tickergate
  version: 1.0.0
server:
  port: 9090
stream:
  default_pair: ETHUSDT
  depth_interval: 100ms
logging:
  level: debug
  format: text
  output: stdout
`

func TestLoadConfig(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("BINANCE_TRADING_PAIR", "")
	t.Setenv("PORT", "")

	cfg, err := LoadConfig(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Stream.DefaultPair != "ETHUSDT" {
		t.Errorf("default pair = %s, want ETHUSDT", cfg.Stream.DefaultPair)
	}
	// defaults fill in everything the file omits
	if cfg.Binance.WsURL == "" || cfg.Binance.RateLimit.RequestsPerSecond <= 0 {
		t.Errorf("expected binance defaults, got %+v", cfg.Binance)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("BINANCE_TRADING_PAIR", "xrpusdt")
	t.Setenv("PORT", "7070")

	cfg, err := LoadConfig(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Stream.DefaultPair != "XRPUSDT" {
		t.Errorf("default pair = %s, want XRPUSDT", cfg.Stream.DefaultPair)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want 7070", cfg.Server.Port)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("BINANCE_TRADING_PAIR", "")
	t.Setenv("PORT", "")

	tests := []struct {
		name string
		yaml string
	}{
		{"MissingName", `
tickergate:
  version: 1.0.0
`},
		{"BadPort", `
tickergate:
  name: tickergate
  version: 1.0.0
server:
  port: 99999
`},
		{"BadPair", `
tickergate:
  name: tickergate
  version: 1.0.0
stream:
  default_pair: btc-usdt
`},
		{"BadDepthInterval", `
tickergate:
  name: tickergate
  version: 1.0.0
stream:
  default_pair: BTCUSDT
  depth_interval: 5s
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.yaml)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadConfigProductionRequiresCredentials(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_API_SECRET", "")
	t.Setenv("BINANCE_TRADING_PAIR", "")
	t.Setenv("PORT", "")

	if _, err := LoadConfig(writeConfig(t, validYAML)); err == nil {
		t.Fatalf("expected error for missing credentials in production")
	}
}

func TestIsProductionLike(t *testing.T) {
	if !IsProductionLike(EnvironmentProduction) || !IsProductionLike(EnvironmentStaging) {
		t.Errorf("production and staging should be production-like")
	}
	if IsProductionLike(EnvironmentDevelopment) {
		t.Errorf("development should not be production-like")
	}
}
