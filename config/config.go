package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gtoxlili/echoStock/entity"
	"github.com/gtoxlili/echoStock/trigger"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

// StockConfig 单个标的的监控配置
type StockConfig struct {
	Symbol        string   `yaml:"symbol"`
	Watch         *bool    `yaml:"watch"`
	InitialAction string   `yaml:"initial_action"`
	Threshold     *float64 `yaml:"threshold"`
	Baseline      float64  `yaml:"baseline"`
}

type AppConfig struct {
	CheckInterval        int               `yaml:"check_interval"` // 秒
	LogLevel             string            `yaml:"log_level"`
	LogFile              string            `yaml:"log_file"`
	MaxPosition          float64           `yaml:"max_position"`
	FallbackToSimulated  *bool             `yaml:"fallback_to_simulated"`
	Cooldown             *int              `yaml:"cooldown"`               // 秒
	ProfitReportInterval int               `yaml:"profit_report_interval"` // 分钟
	ParallelSymbols      int               `yaml:"parallel_symbols"`
	AllowShort           bool              `yaml:"allow_short"`
	DataDir              string            `yaml:"data_dir"`
	MetricsAddr          string            `yaml:"metrics_addr"`
	TradingTime          TradingTimeConfig `yaml:"trading_time"`
}

// TradingTimeConfig 每日轮询时段，end 早于 start 表示跨夜。都为空时全天轮询
type TradingTimeConfig struct {
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Timezone string `yaml:"timezone"`
}

type TradingConfig struct {
	FundLimit        float64 `yaml:"fund_limit"`
	InitialCash      float64 `yaml:"initial_cash"`
	PerTradeFraction float64 `yaml:"per_trade_fraction"`
	StopLossPct      float64 `yaml:"stop_loss_pct"`
	TakeProfitPct    float64 `yaml:"take_profit_pct"`
}

type DecisionConfig struct {
	Provider      string   `yaml:"provider"`
	Model         string   `yaml:"model"`
	APIURL        string   `yaml:"api_url"`
	APIKey        string   `yaml:"api_key"`
	Timeout       int      `yaml:"timeout"` // 秒
	Temperature   *float64 `yaml:"temperature"`
	RatePerMinute int      `yaml:"rate_per_minute"`
}

type MarketConfig struct {
	Provider  string `yaml:"provider"`
	Benchmark string `yaml:"benchmark"`
	Sector    string `yaml:"sector"`
	History   int    `yaml:"history"`
}

type LongportConfig struct {
	AppKey      string `yaml:"app_key"`
	AppSecret   string `yaml:"app_secret"`
	AccessToken string `yaml:"access_token"`
}

type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
}

type BrokerConfig struct {
	Provider string `yaml:"provider"`
}

type Config struct {
	Stocks   []StockConfig  `yaml:"stocks"`
	App      AppConfig      `yaml:"app"`
	Trading  TradingConfig  `yaml:"trading"`
	Decision DecisionConfig `yaml:"decision"`
	Market   MarketConfig   `yaml:"market"`
	Longport LongportConfig `yaml:"longport"`
	Binance  BinanceConfig  `yaml:"binance"`
	Broker   BrokerConfig   `yaml:"broker"`
}

// Load 读取 YAML 配置。同目录下的 .env 会先加载进环境变量，环境变量中的密钥覆盖文件里的值
func Load(path string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse 解析、补默认值、应用环境变量并校验
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Stocks {
		s := &c.Stocks[i]
		s.Symbol = strings.ToUpper(strings.TrimSpace(s.Symbol))
		if s.Watch == nil {
			s.Watch = lo.ToPtr(true)
		}
		if s.InitialAction == "" {
			s.InitialAction = string(entity.ActionHold)
		}
		if s.Threshold == nil {
			s.Threshold = lo.ToPtr(DefaultThreshold)
		}
	}

	if c.App.CheckInterval == 0 {
		c.App.CheckInterval = int(DefaultCheckInterval / time.Second)
	}
	c.App.LogLevel = lo.CoalesceOrEmpty(c.App.LogLevel, DefaultLogLevel)
	if c.App.MaxPosition == 0 {
		c.App.MaxPosition = DefaultMaxPosition
	}
	if c.App.FallbackToSimulated == nil {
		c.App.FallbackToSimulated = lo.ToPtr(true)
	}
	if c.App.Cooldown == nil {
		c.App.Cooldown = lo.ToPtr(int(DefaultCooldown / time.Second))
	}
	if c.App.ProfitReportInterval == 0 {
		c.App.ProfitReportInterval = int(DefaultProfitReportInterval / time.Minute)
	}
	if c.App.ParallelSymbols == 0 {
		c.App.ParallelSymbols = DefaultParallelSymbols
	}
	c.App.DataDir = lo.CoalesceOrEmpty(c.App.DataDir, DefaultDataDir)

	if c.Trading.InitialCash == 0 {
		c.Trading.InitialCash = lo.Ternary(c.Trading.FundLimit > 0, c.Trading.FundLimit, DefaultInitialCash)
	}
	if c.Trading.PerTradeFraction == 0 {
		c.Trading.PerTradeFraction = DefaultPerTradeFraction
	}
	if c.Trading.StopLossPct == 0 {
		c.Trading.StopLossPct = DefaultStopLossPct
	}
	if c.Trading.TakeProfitPct == 0 {
		c.Trading.TakeProfitPct = DefaultTakeProfitPct
	}

	c.Decision.Provider = strings.ToLower(lo.CoalesceOrEmpty(strings.TrimSpace(c.Decision.Provider), DefaultDecisionProvider))
	c.Decision.Model = lo.CoalesceOrEmpty(c.Decision.Model, defaultModels[c.Decision.Provider])
	if c.Decision.Provider == DefaultDecisionProvider {
		c.Decision.APIURL = lo.CoalesceOrEmpty(c.Decision.APIURL, DefaultDecisionAPIURL)
	}
	if c.Decision.Timeout == 0 {
		c.Decision.Timeout = int(DefaultDecisionTimeout / time.Second)
	}
	if c.Decision.Temperature == nil {
		c.Decision.Temperature = lo.ToPtr(DefaultTemperature)
	}
	if c.Decision.RatePerMinute == 0 {
		c.Decision.RatePerMinute = DefaultRatePerMinute
	}

	c.Market.Provider = strings.ToLower(lo.CoalesceOrEmpty(c.Market.Provider, DefaultMarketProvider))
	if c.Market.History == 0 {
		c.Market.History = DefaultHistory
	}
	c.Broker.Provider = strings.ToLower(lo.CoalesceOrEmpty(c.Broker.Provider, DefaultBrokerProvider))
}

// applyEnv 环境变量优先于配置文件
func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&c.Longport.AppKey, "LONGPORT_APP_KEY")
	override(&c.Longport.AppSecret, "LONGPORT_APP_SECRET")
	override(&c.Longport.AccessToken, "LONGPORT_ACCESS_TOKEN")
	switch c.Decision.Provider {
	case "deepseek":
		override(&c.Decision.APIKey, "DEEPSEEK_API_KEY")
		override(&c.Decision.APIURL, "DEEPSEEK_API_URL")
	case "openai":
		override(&c.Decision.APIKey, "OPENAI_API_KEY")
		override(&c.Decision.APIURL, "OPENAI_BASE_URL")
	case "ollama":
		override(&c.Decision.APIURL, "OLLAMA_API_URL")
	}
	override(&c.Binance.APIKey, "BINANCE_API_KEY")
	override(&c.Binance.SecretKey, "BINANCE_SECRET_KEY")
}

func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if len(c.Stocks) == 0 {
		return invalid("no stocks configured")
	}
	seen := map[string]struct{}{}
	for i, s := range c.Stocks {
		if s.Symbol == "" {
			return invalid("stocks[%d]: empty symbol", i)
		}
		if _, dup := seen[s.Symbol]; dup {
			return invalid("duplicate symbol %s", s.Symbol)
		}
		seen[s.Symbol] = struct{}{}
		if *s.Threshold < 0 {
			return invalid("%s: negative threshold %.2f", s.Symbol, *s.Threshold)
		}
		if _, ok := entity.ParseAction(s.InitialAction); !ok {
			return invalid("%s: unknown initial_action %q", s.Symbol, s.InitialAction)
		}
		if s.Baseline < 0 {
			return invalid("%s: negative baseline", s.Symbol)
		}
	}

	switch {
	case c.App.CheckInterval <= 0:
		return invalid("check_interval must be positive")
	case *c.App.Cooldown < 0:
		return invalid("cooldown must not be negative")
	case c.App.ProfitReportInterval < 0:
		return invalid("profit_report_interval must not be negative")
	case c.App.ParallelSymbols < 1:
		return invalid("parallel_symbols must be at least 1")
	case c.App.MaxPosition < 0:
		return invalid("max_position must not be negative")
	case c.Trading.FundLimit < 0:
		return invalid("fund_limit must not be negative")
	case c.Trading.InitialCash <= 0:
		return invalid("initial_cash must be positive")
	case c.Trading.PerTradeFraction <= 0 || c.Trading.PerTradeFraction > 1:
		return invalid("per_trade_fraction must be in (0, 1]")
	case c.Trading.StopLossPct < 0 || c.Trading.TakeProfitPct < 0:
		return invalid("stop_loss_pct and take_profit_pct must not be negative")
	case c.Decision.Timeout <= 0:
		return invalid("decision timeout must be positive")
	case c.Decision.RatePerMinute < 0:
		return invalid("rate_per_minute must not be negative")
	case c.Market.History < 0:
		return invalid("market history must not be negative")
	}

	if _, err := c.TradingWindow(); err != nil {
		return invalid("trading_time: %v", err)
	}
	if _, ok := defaultModels[c.Decision.Provider]; !ok {
		return invalid("unknown decision provider %q", c.Decision.Provider)
	}
	if c.Decision.Model == "" {
		return invalid("decision model must be set")
	}
	if !lo.Contains([]string{"longport", "binance"}, c.Market.Provider) {
		return invalid("unknown market provider %q", c.Market.Provider)
	}
	if !lo.Contains([]string{"longport", "paper"}, c.Broker.Provider) {
		return invalid("unknown broker provider %q", c.Broker.Provider)
	}
	return nil
}

// Watches 转换成检测器使用的不可变配置
func (c *Config) Watches() []entity.WatchConfig {
	return lo.Map(c.Stocks, func(s StockConfig, _ int) entity.WatchConfig {
		action, _ := entity.ParseAction(s.InitialAction)
		return entity.WatchConfig{
			Symbol:        s.Symbol,
			Watch:         *s.Watch,
			InitialAction: action,
			Threshold:     *s.Threshold,
			Baseline:      s.Baseline,
		}
	})
}

func (c *Config) TradingWindow() (trigger.Window, error) {
	t := c.App.TradingTime
	return trigger.ParseWindow(t.Start, t.End, t.Timezone)
}

func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.App.CheckInterval) * time.Second
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(*c.App.Cooldown) * time.Second
}

func (c *Config) ProfitReportInterval() time.Duration {
	return time.Duration(c.App.ProfitReportInterval) * time.Minute
}

func (c *Config) DecisionTimeout() time.Duration {
	return time.Duration(c.Decision.Timeout) * time.Second
}

func (c *Config) TransactionsPath() string {
	return filepath.Join(c.App.DataDir, TransactionsDB)
}

func (c *Config) StatePath() string {
	return filepath.Join(c.App.DataDir, StateFileName)
}
