package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"5m"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		// Heavy endpoints (scan, backtest, train) per client.
		RateLimitBurst  float64 `yaml:"rate_limit_burst" default:"5"`
		RateLimitPerSec float64 `yaml:"rate_limit_per_sec" default:"0.2"`
		// Browser origins allowed to call the API; empty disables CORS.
		CORSOrigins []string `yaml:"cors_origins" validate:"dive,required"`
	} `yaml:"server"`
	Metrics struct {
		Path string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Data struct {
		Dir           string `yaml:"dir" default:"data"`
		NameTable     string `yaml:"name_table" default:"data/tw_stocks.json"`
		DefaultPeriod string `yaml:"default_period" default:"6mo" validate:"oneof=1mo 3mo 6mo 1y 2y 5y max"`
		SyncStart     string `yaml:"sync_start" default:"2018-01-01"`
		// Hour (Asia/Taipei) after which today's bar is expected to be published.
		PublishHour int `yaml:"publish_hour" default:"14" validate:"gte=0,lte=23"`
	} `yaml:"data"`
	Sources struct {
		YahooURL      string        `yaml:"yahoo_url" default:"https://query1.finance.yahoo.com/v8/finance/chart"`
		TWSEURL       string        `yaml:"twse_url" default:"https://www.twse.com.tw"`
		ISINURL       string        `yaml:"isin_url" default:"https://isin.twse.com.tw/isin/C_public.jsp"`
		Timeout       time.Duration `yaml:"timeout" default:"15s"`
		UserAgent     string        `yaml:"user_agent" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"`
		YahooBurst    float64       `yaml:"yahoo_burst" default:"5"`
		YahooPerSec   float64       `yaml:"yahoo_per_sec" default:"2"`
		TWSEBurst     float64       `yaml:"twse_burst" default:"2"`
		TWSEPerSec    float64       `yaml:"twse_per_sec" default:"0.5"`
		FlowLookback  int           `yaml:"flow_lookback_days" default:"20" validate:"gte=1,lte=120"`
	} `yaml:"sources"`
	Features FeatureConfig `yaml:"features"`
	Model    struct {
		Path      string  `yaml:"path" default:"models/rf_baseline.json"`
		TestSize  float64 `yaml:"test_size" default:"0.2" validate:"gt=0,lt=1"`
		MinRows   int     `yaml:"min_rows" default:"50" validate:"gte=1"`
		Horizon   int     `yaml:"label_horizon" default:"1" validate:"gte=1,lte=60"`
		Threshold float64 `yaml:"label_threshold" default:"0"`
		Seed      int64   `yaml:"seed" default:"42"`
		Small     Forest  `yaml:"small"`
		Large     Forest  `yaml:"large"`
		// Train rows at or above this use the large forest.
		LargeAbove int `yaml:"large_above" default:"1000"`
	} `yaml:"model"`
	Analysis struct {
		BuyBand   float64            `yaml:"buy_band" default:"0.60" validate:"gt=0,lte=1"`
		SellBand  float64            `yaml:"sell_band" default:"0.40" validate:"gte=0,lt=1"`
		Weights   map[string]Weights `yaml:"weights"`
		Universes map[string][]string `yaml:"universes"`
	} `yaml:"analysis"`
	Scan struct {
		TopN     int           `yaml:"top_n" default:"5" validate:"gte=1,lte=200"`
		Period   string        `yaml:"period" default:"6mo"`
		CacheTTL time.Duration `yaml:"cache_ttl" default:"15m"`
		Schedule string        `yaml:"schedule"`
		Universe string        `yaml:"universe" default:"all"`
	} `yaml:"scan"`
	Backtest struct {
		Period        string  `yaml:"period" default:"1y"`
		BuyThreshold  float64 `yaml:"buy_threshold" default:"0.60"`
		SellThreshold float64 `yaml:"sell_threshold" default:"0.40"`
		MinBars       int     `yaml:"min_bars" default:"50" validate:"gte=2"`
	} `yaml:"backtest"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"twsignal"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		SignalsTopic string        `yaml:"signals_topic" default:"twsignal.signals"`
		LogsTopic    string        `yaml:"logs_topic"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"twsignal"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
}

// FeatureConfig pins indicator windows for the feature pipeline.
type FeatureConfig struct {
	MAWindows   []int `yaml:"ma_windows" default:"[5,20,60]" validate:"min=1,dive,gte=2"`
	RSI         int   `yaml:"rsi" default:"14" validate:"gte=2"`
	MACDFast    int   `yaml:"macd_fast" default:"12" validate:"gte=2"`
	MACDSlow    int   `yaml:"macd_slow" default:"26" validate:"gtfield=MACDFast"`
	MACDSignal  int   `yaml:"macd_signal" default:"9" validate:"gte=2"`
	KD          bool  `yaml:"kd"`
	KDWindow    int   `yaml:"kd_window" default:"9" validate:"gte=2"`
	KDSmooth    int   `yaml:"kd_smooth" default:"3" validate:"gte=1"`
	Volatility  int   `yaml:"volatility" default:"20" validate:"gte=2"`
	VolumeMA    int   `yaml:"volume_ma" default:"20" validate:"gte=2"`
	Lags        int   `yaml:"lags" default:"3" validate:"gte=0,lte=10"`
	Flows       bool  `yaml:"flows"`
}

// Forest holds random forest hyper-parameters.
type Forest struct {
	Trees    int `yaml:"trees" validate:"gte=1"`
	MaxDepth int `yaml:"max_depth" validate:"gte=1"`
	MinLeaf  int `yaml:"min_leaf" validate:"gte=1"`
}

// Weights is the composite blend for one horizon.
type Weights struct {
	Technical   float64 `yaml:"technical" validate:"gte=0"`
	Fundamental float64 `yaml:"fundamental" validate:"gte=0"`
	Model       float64 `yaml:"model" validate:"gte=0"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	c.applyBuiltins()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Default returns a validated config with every default applied.
func Default() *Config {
	c, err := Parse(nil)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadWithEnv loads .env (if present), the YAML file, then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("TWSIGNAL_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("TWSIGNAL_DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("TWSIGNAL_MODEL_PATH"); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv("TWSIGNAL_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("TWSIGNAL_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Analysis.SellBand >= c.Analysis.BuyBand {
		return fmt.Errorf("analysis.sell_band (%.2f) must be below buy_band (%.2f)", c.Analysis.SellBand, c.Analysis.BuyBand)
	}
	if c.Backtest.SellThreshold >= c.Backtest.BuyThreshold {
		return fmt.Errorf("backtest.sell_threshold must be below buy_threshold")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	for name, w := range c.Analysis.Weights {
		if w.Technical+w.Fundamental+w.Model == 0 {
			return fmt.Errorf("analysis.weights.%s sums to zero", name)
		}
	}
	if _, err := time.Parse("2006-01-02", c.Data.SyncStart); err != nil {
		return fmt.Errorf("data.sync_start: %w", err)
	}
	return nil
}

// applyBuiltins fills map and nested defaults that struct tags cannot express.
func (c *Config) applyBuiltins() {
	if c.Model.Small.Trees == 0 {
		c.Model.Small = Forest{Trees: 50, MaxDepth: 5, MinLeaf: 10}
	}
	if c.Model.Large.Trees == 0 {
		c.Model.Large = Forest{Trees: 100, MaxDepth: 16, MinLeaf: 2}
	}
	if c.Analysis.Weights == nil {
		c.Analysis.Weights = map[string]Weights{}
	}
	if _, ok := c.Analysis.Weights["short"]; !ok {
		c.Analysis.Weights["short"] = Weights{Technical: 0.4, Fundamental: 0.1, Model: 0.5}
	}
	if _, ok := c.Analysis.Weights["long"]; !ok {
		c.Analysis.Weights["long"] = Weights{Technical: 0.3, Fundamental: 0.5, Model: 0.2}
	}
	if c.Analysis.Universes == nil {
		c.Analysis.Universes = map[string][]string{}
	}
	builtin := map[string][]string{
		"all": {"2330.TW", "2317.TW", "2454.TW", "2308.TW", "2382.TW",
			"2881.TW", "2882.TW", "2891.TW", "2886.TW",
			"0050.TW", "0056.TW", "00878.TW"},
		"semi":    {"2330.TW", "2454.TW", "2303.TW", "2308.TW"},
		"finance": {"2881.TW", "2882.TW", "2886.TW", "2891.TW"},
		"etf":     {"0050.TW", "0056.TW", "00878.TW", "00919.TW"},
	}
	for name, tickers := range builtin {
		if _, ok := c.Analysis.Universes[name]; !ok {
			c.Analysis.Universes[name] = tickers
		}
	}
}
