package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Tickergate TickergateConfig `yaml:"tickergate"`
	Server     ServerConfig     `yaml:"server"`
	Binance    BinanceConfig    `yaml:"binance"`
	Stream     StreamConfig     `yaml:"stream"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type TickergateConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type BinanceConfig struct {
	RestURL   string          `yaml:"rest_url"`
	WsURL     string          `yaml:"ws_url"`
	APIKey    string          `yaml:"api_key"`
	APISecret string          `yaml:"api_secret"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type StreamConfig struct {
	DefaultPair      string        `yaml:"default_pair"`
	DepthInterval    string        `yaml:"depth_interval"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
}

type LoggingConfig struct {
	Level      string           `yaml:"level"`
	Format     string           `yaml:"format"`
	Output     string           `yaml:"output"`
	MaxAge     int              `yaml:"max_age"`
	Report     ReportConfig     `yaml:"report"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type ReportConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Binance: BinanceConfig{
			RestURL: "https://api.binance.com",
			WsURL:   "wss://stream.binance.com:9443/stream",
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 10,
				BurstSize:         20,
			},
		},
		Stream: StreamConfig{
			DefaultPair:      "BTCUSDT",
			DepthInterval:    "100ms",
			HandshakeTimeout: 5 * time.Second,
			PingInterval:     3 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override venue credentials and tracked pair from environment variables
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		config.Binance.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		config.Binance.APISecret = strings.TrimSpace(v)
	}
	if v := os.Getenv("BINANCE_TRADING_PAIR"); v != "" {
		config.Stream.DefaultPair = strings.ToUpper(strings.TrimSpace(v))
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid PORT value '%s': %w", v, err)
		}
		config.Server.Port = port
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Tickergate.Name == "" {
		return fmt.Errorf("tickergate.name is required")
	}

	if cfg.Tickergate.Version == "" {
		return fmt.Errorf("tickergate.version is required")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if cfg.Binance.RestURL == "" {
		return fmt.Errorf("binance.rest_url is required")
	}
	if !strings.HasPrefix(cfg.Binance.WsURL, "ws://") && !strings.HasPrefix(cfg.Binance.WsURL, "wss://") {
		return fmt.Errorf("binance.ws_url must be a websocket URL")
	}
	if cfg.Binance.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("binance.rate_limit.requests_per_second must be greater than 0")
	}
	if cfg.Binance.RateLimit.BurstSize <= 0 {
		return fmt.Errorf("binance.rate_limit.burst_size must be greater than 0")
	}

	if !isValidPair(cfg.Stream.DefaultPair) {
		return fmt.Errorf("stream.default_pair '%s' is invalid", cfg.Stream.DefaultPair)
	}
	if !isValidDepthInterval(cfg.Stream.DepthInterval) {
		return fmt.Errorf("stream.depth_interval '%s' is invalid", cfg.Stream.DepthInterval)
	}
	if cfg.Stream.HandshakeTimeout <= 0 {
		return fmt.Errorf("stream.handshake_timeout must be greater than 0")
	}
	if cfg.Stream.PingInterval <= 0 {
		return fmt.Errorf("stream.ping_interval must be greater than 0")
	}

	if cfg.Logging.Report.Enabled && cfg.Logging.Report.Interval <= 0 {
		return fmt.Errorf("logging.report.interval must be greater than 0 when the report is enabled")
	}

	if IsProductionLike(AppEnvironment()) {
		if cfg.Binance.APIKey == "" || cfg.Binance.APISecret == "" {
			return fmt.Errorf("binance.api_key and binance.api_secret are required in %s", AppEnvironment())
		}
	}

	return nil
}

var pairRegexp = regexp.MustCompile(`^[A-Z]{3,}[A-Z]{3,}$`)

func isValidPair(pair string) bool {
	return pairRegexp.MatchString(pair)
}

// Binance only serves diff depth streams at these update intervals.
var depthIntervals = map[string]struct{}{
	"100ms":  {},
	"1000ms": {},
}

func isValidDepthInterval(interval string) bool {
	_, ok := depthIntervals[interval]
	return ok
}
