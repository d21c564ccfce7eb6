// Package config loads traderbot settings from YAML or JSON files, .env
// files and environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"traderbot/internal/domain"
)

// Alpaca endpoints.
const (
	AlpacaPaperURL = "https://paper-api.alpaca.markets"
	AlpacaLiveURL  = "https://api.alpaca.markets"
	AlpacaDataURL  = "https://data.alpaca.markets/v2"
)

// Data sources for backtests.
const (
	SourceCSV     = "csv"
	SourceAlpaca  = "alpaca"
	SourceParquet = "parquet"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for traderbot.
type Config struct {
	Symbol   string         `yaml:"symbol" json:"symbol"`
	Storage  Storage        `yaml:"storage" json:"storage"`
	Server   Server         `yaml:"server" json:"server"`
	Alpaca   Alpaca         `yaml:"alpaca" json:"alpaca"`
	Logging  Logging        `yaml:"logging" json:"logging"`
	Strategy StrategyConfig `yaml:"strategy" json:"strategy"`
	Backtest BacktestConfig `yaml:"backtest" json:"backtest"`
	Trading  TradingConfig  `yaml:"trading" json:"trading"`
	Influx   InfluxConfig   `yaml:"influx" json:"influx"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir" json:"data_dir"`
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"`
	// CSVPath is a CSV file or a directory of <SYMBOL>.csv files.
	CSVPath string `yaml:"csv_path" json:"csv_path,omitempty"`
	// CSVEncoding names the text encoding of CSV input, e.g. "windows-1252".
	CSVEncoding string `yaml:"csv_encoding" json:"csv_encoding,omitempty"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	GRPCPort int    `yaml:"grpc_port" json:"grpc_port"`
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey          string `yaml:"api_key" json:"api_key,omitempty"`
	APISecret       string `yaml:"api_secret" json:"api_secret,omitempty"`
	BaseURL         string `yaml:"base_url" json:"base_url,omitempty"`
	DataURL         string `yaml:"data_url" json:"data_url"`
	Feed            string `yaml:"feed" json:"feed,omitempty"`
	UsePaper        bool   `yaml:"use_paper" json:"use_paper"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min" json:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// StrategyConfig selects the strategy and its parameters.
type StrategyConfig struct {
	Name       string `yaml:"name" json:"name"`
	FastWindow int    `yaml:"fast_window" json:"fast_window"`
	SlowWindow int    `yaml:"slow_window" json:"slow_window"`
}

// BacktestConfig controls historical simulations.
type BacktestConfig struct {
	Cash       float64 `yaml:"cash" json:"cash"`
	Commission float64 `yaml:"commission" json:"commission"`
	// DataSource is csv, alpaca or parquet.
	DataSource string `yaml:"data_source" json:"data_source"`
	// Start and End are YYYY-MM-DD dates. Empty leaves the side open.
	Start     string `yaml:"start" json:"start,omitempty"`
	End       string `yaml:"end" json:"end,omitempty"`
	Timeframe string `yaml:"timeframe" json:"timeframe"`
}

// TradingConfig defines risk and execution parameters for live trading.
type TradingConfig struct {
	MaxPositionPct  float64 `yaml:"max_position_pct" json:"max_position_pct"`
	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct" json:"max_daily_loss_pct"`
	// DryRun routes orders to the in-memory simulator broker.
	DryRun bool `yaml:"dry_run" json:"dry_run"`
	// PollInterval is in seconds.
	PollInterval    int    `yaml:"poll_interval" json:"poll_interval"`
	Lookback        int    `yaml:"lookback" json:"lookback"`
	Timeframe       string `yaml:"timeframe" json:"timeframe"`
	MarketHoursOnly bool   `yaml:"market_hours_only" json:"market_hours_only"`
}

// InfluxConfig enables exporting backtest equity curves to InfluxDB when URL
// is set.
type InfluxConfig struct {
	URL    string `yaml:"url" json:"url,omitempty"`
	Token  string `yaml:"token" json:"token,omitempty"`
	Org    string `yaml:"org" json:"org,omitempty"`
	Bucket string `yaml:"bucket" json:"bucket,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Symbol: "AAPL",
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/traderbot.db",
		},
		Server: Server{
			Host:     "127.0.0.1",
			Port:     8080,
			GRPCPort: 9090,
		},
		Alpaca: Alpaca{
			BaseURL:         AlpacaPaperURL,
			DataURL:         AlpacaDataURL,
			UsePaper:        true,
			RateLimitPerMin: 200,
		},
		Logging: Logging{Level: "info", Format: "text"},
		Strategy: StrategyConfig{
			Name:       "sma-cross",
			FastWindow: 12,
			SlowWindow: 26,
		},
		Backtest: BacktestConfig{
			Cash:       10000,
			DataSource: SourceCSV,
			Timeframe:  "1Day",
		},
		Trading: TradingConfig{
			MaxPositionPct:  1,
			MaxDailyLossPct: 0,
			PollInterval:    60,
			Lookback:        200,
			Timeframe:       "1Day",
		},
	}
}

// PollDuration returns the live polling interval.
func (c Config) PollDuration() time.Duration {
	return time.Duration(c.Trading.PollInterval) * time.Second
}

// HTTPAddr returns the HTTP listen address.
func (c Config) HTTPAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// GRPCAddr returns the gRPC listen address, or "" when gRPC is disabled by a
// non-positive port.
func (c Config) GRPCAddr() string {
	if c.Server.GRPCPort <= 0 {
		return ""
	}
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.GRPCPort))
}

// TradingURL returns the Alpaca trading endpoint, honouring UsePaper when no
// explicit URL is configured.
func (c Config) TradingURL() string {
	if c.Alpaca.BaseURL != "" {
		return c.Alpaca.BaseURL
	}
	if c.Alpaca.UsePaper {
		return AlpacaPaperURL
	}
	return AlpacaLiveURL
}

// BacktestRange parses the configured backtest dates. End is inclusive of
// its whole day.
func (c Config) BacktestRange() (start, end time.Time, err error) {
	if c.Backtest.Start != "" {
		if start, err = time.Parse(time.DateOnly, c.Backtest.Start); err != nil {
			return start, end, fmt.Errorf("%w: backtest start %q: %v", domain.ErrConfiguration, c.Backtest.Start, err)
		}
	}
	if c.Backtest.End != "" {
		if end, err = time.Parse(time.DateOnly, c.Backtest.End); err != nil {
			return start, end, fmt.Errorf("%w: backtest end %q: %v", domain.ErrConfiguration, c.Backtest.End, err)
		}
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return start, end, fmt.Errorf("%w: backtest start %s is after end %s", domain.ErrConfiguration, c.Backtest.Start, c.Backtest.End)
	}
	return start, end, nil
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML or JSON configuration file at the given path on top of
// the defaults, then applies .env and environment variable overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parsing %s: %v", domain.ErrConfiguration, path, err)
	}
	if err := loadDotEnv(); err != nil {
		return cfg, err
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadEnv returns the defaults with .env and environment overrides applied.
func LoadEnv() (Config, error) {
	cfg := Default()
	if err := loadDotEnv(); err != nil {
		return cfg, err
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadOrEnv calls Load when path is set and LoadEnv otherwise.
func LoadOrEnv(path string) (Config, error) {
	if path == "" {
		return LoadEnv()
	}
	return Load(path)
}

// Save writes the configuration to path, as JSON for a .json extension and
// YAML otherwise.
func (c Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// loadDotEnv reads .env from the working directory when present. Variables
// already set in the environment win.
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading .env: %w", err)
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
			}
		}
	}
	var errs []error
	integer := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s=%q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	float := func(dst *float64, key string) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s=%q is not a number", key, v))
				return
			}
			*dst = f
		}
	}

	str(&cfg.Symbol, "TRADERBOT_SYMBOL")
	float(&cfg.Backtest.Cash, "TRADERBOT_CASH")
	float(&cfg.Backtest.Commission, "TRADERBOT_COMMISSION")
	integer(&cfg.Strategy.FastWindow, "TRADERBOT_FAST_WINDOW")
	integer(&cfg.Strategy.SlowWindow, "TRADERBOT_SLOW_WINDOW")
	str(&cfg.Strategy.Name, "TRADERBOT_STRATEGY")
	str(&cfg.Backtest.DataSource, "TRADERBOT_DATA_SOURCE")
	str(&cfg.Storage.CSVPath, "TRADERBOT_CSV_PATH")
	integer(&cfg.Trading.PollInterval, "TRADERBOT_POLL_INTERVAL")
	if v := os.Getenv("TRADERBOT_USE_PAPER"); v != "" {
		cfg.Alpaca.UsePaper = !strings.EqualFold(strings.TrimSpace(v), "false")
	}

	str(&cfg.Storage.DataDir, "DATA_DIR")
	str(&cfg.Storage.SQLitePath, "SQLITE_PATH")
	str(&cfg.Logging.Level, "LOG_LEVEL")
	str(&cfg.Logging.Format, "LOG_FORMAT")

	str(&cfg.Alpaca.APIKey, "ALPACA_API_KEY")
	str(&cfg.Alpaca.APISecret, "ALPACA_API_SECRET", "ALPACA_SECRET_KEY")
	str(&cfg.Alpaca.BaseURL, "ALPACA_BASE_URL")
	str(&cfg.Alpaca.DataURL, "ALPACA_DATA_URL")
	// Standard Alpaca env vars (highest priority, canonical names used by SDK).
	str(&cfg.Alpaca.APIKey, "APCA_API_KEY_ID")
	str(&cfg.Alpaca.APISecret, "APCA_API_SECRET_KEY")

	str(&cfg.Influx.URL, "INFLUX_URL")
	str(&cfg.Influx.Token, "INFLUX_TOKEN")
	str(&cfg.Influx.Org, "INFLUX_ORG")
	str(&cfg.Influx.Bucket, "INFLUX_BUCKET")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

var timeframes = map[string]bool{
	"1min": true, "5min": true, "15min": true, "1hour": true, "1h": true, "1day": true, "1d": true,
}

// Validate checks ranges and enumerations. All problems are reported
// together, wrapped in domain.ErrConfiguration.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.Symbol) == "" {
		add("symbol is empty")
	}
	if c.Backtest.Cash <= 0 {
		add("backtest cash must be positive, got %v", c.Backtest.Cash)
	}
	if c.Backtest.Commission < 0 {
		add("backtest commission must not be negative, got %v", c.Backtest.Commission)
	}
	if c.Strategy.FastWindow < 1 {
		add("fast_window must be at least 1, got %d", c.Strategy.FastWindow)
	}
	if c.Strategy.SlowWindow <= c.Strategy.FastWindow {
		add("slow_window (%d) must exceed fast_window (%d)", c.Strategy.SlowWindow, c.Strategy.FastWindow)
	}
	switch c.Backtest.DataSource {
	case SourceCSV, SourceAlpaca, SourceParquet:
	default:
		add("data_source must be csv, alpaca or parquet, got %q", c.Backtest.DataSource)
	}
	if _, _, err := c.BacktestRange(); err != nil {
		errs = append(errs, err)
	}
	for _, tf := range []string{c.Backtest.Timeframe, c.Trading.Timeframe} {
		if !timeframes[strings.ToLower(tf)] {
			add("unsupported timeframe %q", tf)
		}
	}
	if c.Trading.PollInterval < 1 {
		add("poll_interval must be at least 1 second, got %d", c.Trading.PollInterval)
	}
	if c.Trading.Lookback < c.Strategy.SlowWindow {
		add("lookback (%d) must cover slow_window (%d)", c.Trading.Lookback, c.Strategy.SlowWindow)
	}
	if c.Trading.MaxPositionPct < 0 || c.Trading.MaxPositionPct > 1 {
		add("max_position_pct must be within [0, 1], got %v", c.Trading.MaxPositionPct)
	}
	if c.Trading.MaxDailyLossPct < 0 || c.Trading.MaxDailyLossPct > 1 {
		add("max_daily_loss_pct must be within [0, 1], got %v", c.Trading.MaxDailyLossPct)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 || c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		add("server ports must be within [0, 65535]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// RequireAlpacaCredentials reports an error when the Alpaca key or secret is
// missing.
func (c Config) RequireAlpacaCredentials() error {
	if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
		return fmt.Errorf("%w: Alpaca credentials are required; set ALPACA_API_KEY and ALPACA_SECRET_KEY "+
			"or provide them in the configuration file", domain.ErrConfiguration)
	}
	return nil
}
