package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gtoxlili/echoStock/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
stocks:
  - symbol: test.us
    threshold: 3
  - symbol: AAPL.US
    watch: false
    initial_action: buy
    threshold: 0
    baseline: 180.5
app:
  check_interval: 15
  fallback_to_simulated: false
  cooldown: 0
trading:
  fund_limit: 20000
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	watches := cfg.Watches()
	require.Len(t, watches, 2)
	assert.Equal(t, entity.WatchConfig{Symbol: "TEST.US", Watch: true, InitialAction: entity.ActionHold, Threshold: 3}, watches[0])
	assert.Equal(t, entity.WatchConfig{Symbol: "AAPL.US", Watch: false, InitialAction: entity.ActionBuy, Threshold: 0, Baseline: 180.5}, watches[1])

	assert.Equal(t, 15*time.Second, cfg.CheckInterval())
	assert.False(t, *cfg.App.FallbackToSimulated)
	assert.Zero(t, cfg.Cooldown(), "explicit zero cooldown kept")
	assert.Equal(t, time.Hour, cfg.ProfitReportInterval())
	assert.Equal(t, DefaultMaxPosition, cfg.App.MaxPosition)
	assert.Equal(t, 20000.0, cfg.Trading.InitialCash, "initial cash follows fund limit")
	assert.Equal(t, DefaultPerTradeFraction, cfg.Trading.PerTradeFraction)
	assert.Equal(t, DefaultModel, cfg.Decision.Model)
	assert.Equal(t, 30*time.Second, cfg.DecisionTimeout())
	assert.Equal(t, "longport", cfg.Market.Provider)
	assert.Equal(t, filepath.Join("data", TransactionsDB), cfg.TransactionsPath())
}

func TestParse_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-env")
	t.Setenv("LONGPORT_APP_KEY", "lp-env")

	cfg, err := Parse([]byte(sample + "\ndecision:\n  api_key: sk-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.Decision.APIKey)
	assert.Equal(t, "lp-env", cfg.Longport.AppKey)
}

func TestParse_DecisionProviders(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-deepseek")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "deepseek", cfg.Decision.Provider)
	assert.Equal(t, DefaultDecisionAPIURL, cfg.Decision.APIURL)
	assert.Equal(t, "sk-deepseek", cfg.Decision.APIKey)

	cfg, err = Parse([]byte(sample + "decision:\n  provider: Ollama\n"))
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Decision.Provider)
	assert.Equal(t, DefaultOllamaModel, cfg.Decision.Model)
	assert.Empty(t, cfg.Decision.APIURL, "left to the client default")
	assert.Empty(t, cfg.Decision.APIKey, "deepseek key not applied to ollama")
}

func TestParse_TradingTime(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	window, err := cfg.TradingWindow()
	require.NoError(t, err)
	assert.True(t, window.Contains(time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)), "all day by default")

	doc := "stocks:\n  - symbol: A.US\napp:\n  trading_time:\n    start: \"22:00\"\n    end: \"05:00\"\n    timezone: UTC\n"
	cfg, err = Parse([]byte(doc))
	require.NoError(t, err)
	window, err = cfg.TradingWindow()
	require.NoError(t, err)
	assert.True(t, window.Contains(time.Date(2025, 3, 3, 23, 0, 0, 0, time.UTC)))
	assert.False(t, window.Contains(time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)))
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"no stocks":          "app:\n  check_interval: 10\n",
		"negative threshold": "stocks:\n  - symbol: A.US\n    threshold: -1\n",
		"unknown action":     "stocks:\n  - symbol: A.US\n    initial_action: short\n",
		"duplicate symbol":   "stocks:\n  - symbol: A.US\n  - symbol: a.us\n",
		"bad interval":       "stocks:\n  - symbol: A.US\napp:\n  check_interval: -5\n",
		"bad fraction":       "stocks:\n  - symbol: A.US\ntrading:\n  per_trade_fraction: 1.5\n",
		"unknown market":     "stocks:\n  - symbol: A.US\nmarket:\n  provider: ibkr\n",
		"unknown broker":     "stocks:\n  - symbol: A.US\nbroker:\n  provider: futu\n",
		"unknown decision":   "stocks:\n  - symbol: A.US\ndecision:\n  provider: bard\n",
		"half trading time":  "stocks:\n  - symbol: A.US\napp:\n  trading_time:\n    start: \"22:00\"\n",
		"bad trading time":   "stocks:\n  - symbol: A.US\napp:\n  trading_time:\n    start: \"25:00\"\n    end: \"05:00\"\n",
		"bad yaml":           "stocks: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(sample), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BINANCE_API_KEY=bn-dotenv\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("BINANCE_API_KEY") })

	cfg, err := Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "bn-dotenv", cfg.Binance.APIKey)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestStateFile_RoundTrip(t *testing.T) {
	sf := NewStateFile(filepath.Join(t.TempDir(), "state", StateFileName))

	_, err := sf.Load()
	assert.ErrorIs(t, err, ErrStateNotExists)

	at := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	state := entity.MemoryState{
		Latest: map[string]entity.DecisionMemoryEntry{
			"TEST.US": {Symbol: "TEST.US", At: at, Action: entity.ActionBuy},
		},
		History: map[string][]entity.DecisionRecord{
			"TEST.US": {{At: at, Action: entity.ActionBuy, Reason: "breakout", Price: 103}},
		},
	}
	require.NoError(t, sf.Save(state))

	loaded, err := sf.Load()
	require.NoError(t, err)
	assert.Equal(t, entity.ActionBuy, loaded.Latest["TEST.US"].Action)
	assert.True(t, at.Equal(loaded.Latest["TEST.US"].At))
	require.Len(t, loaded.History["TEST.US"], 1)
	assert.Equal(t, "breakout", loaded.History["TEST.US"][0].Reason)
}
