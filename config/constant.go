package config

import "time"

const (
	DefaultThreshold            = 3.0
	DefaultCheckInterval        = 10 * time.Second
	DefaultCooldown             = 5 * time.Minute
	DefaultProfitReportInterval = time.Hour
	DefaultLogLevel             = "info"
	DefaultDataDir              = "data"
	DefaultParallelSymbols      = 1

	DefaultMaxPosition      = 10000.0
	DefaultInitialCash      = 100000.0
	DefaultPerTradeFraction = 0.10
	DefaultStopLossPct      = 2.0
	DefaultTakeProfitPct    = 3.0

	DefaultDecisionProvider = "deepseek"
	DefaultModel            = "deepseek-chat"
	DefaultOpenAIModel      = "gpt-4o-mini"
	DefaultOllamaModel      = "qwen3:4b"
	DefaultDecisionAPIURL   = "https://api.deepseek.com/v1/chat/completions"
	DefaultDecisionTimeout  = 30 * time.Second
	DefaultTemperature      = 1.0
	DefaultRatePerMinute    = 30

	DefaultMarketProvider = "longport"
	DefaultHistory        = 60
	DefaultBrokerProvider = "longport"

	// BrokerTimeout 单次下单的超时，超时即视为传输失败
	BrokerTimeout = 10 * time.Second

	TransactionsDB = "transactions.db"
	StateFileName  = "decision_state.json"
)

// defaultModels 同时作为支持的决策服务商列表
var defaultModels = map[string]string{
	"deepseek": DefaultModel,
	"openai":   DefaultOpenAIModel,
	"ollama":   DefaultOllamaModel,
}
