// Package cfg provides configuration management for the futures trading
// agent. It supports loading configuration from a YAML file or entirely
// from environment variables, with environment variables taking precedence
// over YAML settings wherever both are present.
//
// The package validates every configuration value and applies sensible
// defaults for optional settings. It enforces the dry-run/live-trading
// safety gate described in spec.md §6/§7: live trading additionally
// requires the FORCE_LIVE_TRADING environment variable.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"futures-llm-agent/internal/common"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings contains all configuration parameters for the agent.
type Settings struct {
	// Exchange API
	ExchangeAPIKey    string
	ExchangeAPISecret string
	ExchangeBaseURL   string
	ExchangeTestnet   bool

	// LLM reasoning endpoint
	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string

	// Trading
	Symbols             []string
	DefaultLeverage     int
	MaxPositionSize     float64 // fraction of account balance per position
	StopLossPercent     float64
	TakeProfitPercent   float64
	MinConfidence       float64 // 0-100, decisions below this are not executed
	MinNotionalUsdt     float64
	LimitOrderMaxWait   time.Duration
	SymbolOverrides     map[string]SymbolConfig

	// Safety gate
	RealTradingEnabled      bool
	MaxPriceDeviationPercent float64 // percent; lowers the safety gate's 24h price-change ceiling when below it
	MinAccountBalanceUsdt    float64
	CheckBalance            bool // trading.safety.preTradeChecks.checkBalance
	CheckPriceAnomaly       bool // trading.safety.preTradeChecks.checkPriceAnomaly
	CheckLiquidity          bool // trading.safety.preTradeChecks.checkLiquidity

	// Runtime / scheduler
	AnalysisInterval    time.Duration
	MaxRuntime          time.Duration // 0 = unbounded
	SnapshotConcurrency int
	SnapshotDeadline    time.Duration

	// Mode
	DryRun bool

	// System
	MetricsPort   int
	DashboardPort int
	AuditDir      string
	RESTTimeout   time.Duration
	LogLevel      string
}

// SymbolConfig contains per-symbol overrides of trading parameters.
type SymbolConfig struct {
	DefaultLeverage   int     `yaml:"defaultLeverage"`
	MaxPositionSize   float64 `yaml:"maxPositionSize"`
	StopLossPercent   float64 `yaml:"stopLossPercent"`
	TakeProfitPercent float64 `yaml:"takeProfitPercent"`
}

// ConfigFile is the structure of the YAML configuration file (spec.md §6 Config).
type ConfigFile struct {
	APIs struct {
		Exchange struct {
			Key     string `yaml:"key"`
			Secret  string `yaml:"secret"`
			BaseURL string `yaml:"baseUrl"`
			Testnet bool   `yaml:"testnet"`
		} `yaml:"exchange"`
		LLM struct {
			APIKey  string `yaml:"apiKey"`
			BaseURL string `yaml:"baseUrl"`
			Model   string `yaml:"model"`
		} `yaml:"llm"`
	} `yaml:"apis"`

	Trading struct {
		Symbols []string `yaml:"symbols"`
		Futures struct {
			DefaultLeverage int `yaml:"defaultLeverage"`
		} `yaml:"futures"`
		PositionManagement struct {
			MaxPositionSize   float64 `yaml:"maxPositionSize"`
			StopLossPercent   float64 `yaml:"stopLossPercent"`
			TakeProfitPercent float64 `yaml:"takeProfitPercent"`
			MinConfidence     float64 `yaml:"minConfidence"`
		} `yaml:"positionManagement"`
		Safety struct {
			RealTradingEnabled       bool    `yaml:"realTradingEnabled"`
			MaxPriceDeviationPercent float64 `yaml:"maxPriceDeviationPercent"`
			MinAccountBalanceUsdt    float64 `yaml:"minAccountBalanceUsdt"`
			PreTradeChecks           struct {
				CheckBalance      *bool `yaml:"checkBalance"`
				CheckPriceAnomaly *bool `yaml:"checkPriceAnomaly"`
				CheckLiquidity    *bool `yaml:"checkLiquidity"`
			} `yaml:"preTradeChecks"`
		} `yaml:"safety"`
		OrderSettings struct {
			MinNotionalUsdt   string `yaml:"minNotionalUsdt"`
			LimitOrderMaxWait string `yaml:"limitOrderMaxWait"`
		} `yaml:"orderSettings"`
		Mode struct {
			DryRun bool `yaml:"dryRun"`
		} `yaml:"mode"`
	} `yaml:"trading"`

	SymbolOverrides map[string]SymbolConfig `yaml:"symbolOverrides"`

	Runtime struct {
		AnalysisInterval    string `yaml:"analysisInterval"`
		MaxRuntime          string `yaml:"maxRuntime"`
		SnapshotConcurrency int    `yaml:"snapshotConcurrency"`
		SnapshotDeadline    string `yaml:"snapshotDeadline"`
	} `yaml:"runtime"`

	System struct {
		MetricsPort   int    `yaml:"metricsPort"`
		DashboardPort int    `yaml:"dashboardPort"`
		AuditDir      string `yaml:"auditDir"`
		RESTTimeout   string `yaml:"restTimeout"`
	} `yaml:"system"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Load loads configuration from CONFIG_FILE if set, otherwise from
// environment variables alone. A .env file, if present, is loaded first
// (errors ignored, matching the optional-secrets convention).
func Load() (Settings, error) {
	_ = godotenv.Load()

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	analysisInterval := durationOrDefault(config.Runtime.AnalysisInterval, time.Duration(common.DefaultAnalysisIntervalSec)*time.Second)
	maxRuntime := durationOrDefault(config.Runtime.MaxRuntime, time.Duration(common.DefaultMaxRuntimeSec)*time.Second)
	snapshotDeadline := durationOrDefault(config.Runtime.SnapshotDeadline, time.Duration(common.DefaultSnapshotDeadlineSec)*time.Second)
	limitOrderMaxWait := durationOrDefault(config.Trading.OrderSettings.LimitOrderMaxWait, time.Duration(common.DefaultLimitOrderMaxWaitSec)*time.Second)
	restTimeout := durationOrDefault(config.System.RESTTimeout, time.Duration(common.DefaultRESTTimeoutSec)*time.Second)

	key := getEnvOrDefault(common.EnvExchangeAPIKey, config.APIs.Exchange.Key)
	secret := getEnvOrDefault(common.EnvExchangeAPISecret, config.APIs.Exchange.Secret)
	if key == "" || secret == "" {
		return Settings{}, fmt.Errorf(common.ErrMsgAPIKeyRequired)
	}

	llmKey := getEnvOrDefault(common.EnvLLMAPIKey, config.APIs.LLM.APIKey)
	if llmKey == "" {
		return Settings{}, fmt.Errorf(common.ErrMsgLLMKeyRequired)
	}

	snapshotConcurrency := config.Runtime.SnapshotConcurrency
	if snapshotConcurrency == 0 {
		snapshotConcurrency = common.DefaultSnapshotConcurrency
	}

	minNotional := floatOrDefault(config.Trading.OrderSettings.MinNotionalUsdt, common.DefaultMinNotionalUsdt)

	settings := Settings{
		ExchangeAPIKey:    key,
		ExchangeAPISecret: secret,
		ExchangeBaseURL:   getEnvOrDefault(common.EnvExchangeBaseURL, orDefault(config.APIs.Exchange.BaseURL, common.DefaultExchangeBaseURL)),
		ExchangeTestnet:   getBoolFromEnvOrConfig(common.EnvExchangeTestnet, config.APIs.Exchange.Testnet),

		LLMAPIKey:  llmKey,
		LLMBaseURL: getEnvOrDefault(common.EnvLLMBaseURL, orDefault(config.APIs.LLM.BaseURL, common.DefaultLLMBaseURL)),
		LLMModel:   orDefault(config.APIs.LLM.Model, common.DefaultLLMModel),

		Symbols:           getSymbolsFromEnvOrConfig(config.Trading.Symbols),
		DefaultLeverage:   getIntOrDefault(common.EnvLeverage, intOrDefault(config.Trading.Futures.DefaultLeverage, common.DefaultLeverage)),
		MaxPositionSize:   floatNonZeroOrDefault(config.Trading.PositionManagement.MaxPositionSize, common.DefaultMaxPositionSize),
		StopLossPercent:   floatNonZeroOrDefault(config.Trading.PositionManagement.StopLossPercent, common.DefaultStopLossPercent),
		TakeProfitPercent: floatNonZeroOrDefault(config.Trading.PositionManagement.TakeProfitPercent, common.DefaultTakeProfitPercent),
		MinConfidence:     getFloatOrDefault(common.EnvMinConfidence, floatNonZeroOrDefault(config.Trading.PositionManagement.MinConfidence, common.DefaultMinConfidence)),
		MinNotionalUsdt:   minNotional,
		LimitOrderMaxWait: limitOrderMaxWait,
		SymbolOverrides:   config.SymbolOverrides,

		RealTradingEnabled:       config.Trading.Safety.RealTradingEnabled,
		MaxPriceDeviationPercent: floatNonZeroOrDefault(config.Trading.Safety.MaxPriceDeviationPercent, 5.0),
		MinAccountBalanceUsdt:    config.Trading.Safety.MinAccountBalanceUsdt,
		CheckBalance:             getBoolFromEnvOrConfig(common.EnvCheckBalance, boolPtrOrDefault(config.Trading.Safety.PreTradeChecks.CheckBalance, true)),
		CheckPriceAnomaly:        getBoolFromEnvOrConfig(common.EnvCheckPriceAnomaly, boolPtrOrDefault(config.Trading.Safety.PreTradeChecks.CheckPriceAnomaly, true)),
		CheckLiquidity:           getBoolFromEnvOrConfig(common.EnvCheckLiquidity, boolPtrOrDefault(config.Trading.Safety.PreTradeChecks.CheckLiquidity, true)),

		AnalysisInterval:    analysisInterval,
		MaxRuntime:          maxRuntime,
		SnapshotConcurrency: snapshotConcurrency,
		SnapshotDeadline:    snapshotDeadline,

		DryRun: getBoolFromEnvOrConfig(common.EnvDryRun, config.Trading.Mode.DryRun),

		MetricsPort:   getIntOrDefault(common.EnvMetricsPort, intOrDefault(config.System.MetricsPort, common.DefaultMetricsPort)),
		DashboardPort: getIntOrDefault(common.EnvDashboardPort, intOrDefault(config.System.DashboardPort, common.DefaultDashboardPort)),
		AuditDir:      getEnvOrDefault(common.EnvAuditDir, orDefault(config.System.AuditDir, "audit")),
		RESTTimeout:   getDurationOrDefault(common.EnvRESTTimeout, restTimeout),
		LogLevel:      orDefault(config.Logging.Level, "info"),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	key, err := getEnvRequired(common.EnvExchangeAPIKey)
	if err != nil {
		return Settings{}, err
	}
	secret, err := getEnvRequired(common.EnvExchangeAPISecret)
	if err != nil {
		return Settings{}, err
	}
	llmKey, err := getEnvRequired(common.EnvLLMAPIKey)
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		ExchangeAPIKey:    key,
		ExchangeAPISecret: secret,
		ExchangeBaseURL:   getEnvOrDefault(common.EnvExchangeBaseURL, common.DefaultExchangeBaseURL),
		ExchangeTestnet:   getBoolOrDefault(common.EnvExchangeTestnet, true),

		LLMAPIKey:  llmKey,
		LLMBaseURL: getEnvOrDefault(common.EnvLLMBaseURL, common.DefaultLLMBaseURL),
		LLMModel:   common.DefaultLLMModel,

		Symbols:           splitOrDefault(os.Getenv(common.EnvSymbols), []string{"BTCUSDT"}),
		DefaultLeverage:   getIntOrDefault(common.EnvLeverage, common.DefaultLeverage),
		MaxPositionSize:   common.DefaultMaxPositionSize,
		StopLossPercent:   common.DefaultStopLossPercent,
		TakeProfitPercent: common.DefaultTakeProfitPercent,
		MinConfidence:     getFloatOrDefault(common.EnvMinConfidence, common.DefaultMinConfidence),
		MinNotionalUsdt:   common.DefaultMinNotionalUsdt,
		LimitOrderMaxWait: time.Duration(common.DefaultLimitOrderMaxWaitSec) * time.Second,
		SymbolOverrides:   make(map[string]SymbolConfig),

		RealTradingEnabled:       false,
		MaxPriceDeviationPercent: 5.0,
		MinAccountBalanceUsdt:    0,
		CheckBalance:             getBoolOrDefault(common.EnvCheckBalance, true),
		CheckPriceAnomaly:        getBoolOrDefault(common.EnvCheckPriceAnomaly, true),
		CheckLiquidity:           getBoolOrDefault(common.EnvCheckLiquidity, true),

		AnalysisInterval:    time.Duration(common.DefaultAnalysisIntervalSec) * time.Second,
		MaxRuntime:          time.Duration(common.DefaultMaxRuntimeSec) * time.Second,
		SnapshotConcurrency: common.DefaultSnapshotConcurrency,
		SnapshotDeadline:    time.Duration(common.DefaultSnapshotDeadlineSec) * time.Second,

		DryRun: getBoolOrDefault(common.EnvDryRun, true),

		MetricsPort:   getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		DashboardPort: getIntOrDefault(common.EnvDashboardPort, common.DefaultDashboardPort),
		AuditDir:      getEnvOrDefault(common.EnvAuditDir, "audit"),
		RESTTimeout:   getDurationOrDefault(common.EnvRESTTimeout, time.Duration(common.DefaultRESTTimeoutSec)*time.Second),
		LogLevel:      "info",
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

// GetSymbolConfig returns the effective trading parameters for a symbol,
// falling back to global settings where no override exists.
func (s *Settings) GetSymbolConfig(symbol string) SymbolConfig {
	if override, ok := s.SymbolOverrides[symbol]; ok {
		sc := SymbolConfig{
			DefaultLeverage:   s.DefaultLeverage,
			MaxPositionSize:   s.MaxPositionSize,
			StopLossPercent:   s.StopLossPercent,
			TakeProfitPercent: s.TakeProfitPercent,
		}
		if override.DefaultLeverage != 0 {
			sc.DefaultLeverage = override.DefaultLeverage
		}
		if override.MaxPositionSize != 0 {
			sc.MaxPositionSize = override.MaxPositionSize
		}
		if override.StopLossPercent != 0 {
			sc.StopLossPercent = override.StopLossPercent
		}
		if override.TakeProfitPercent != 0 {
			sc.TakeProfitPercent = override.TakeProfitPercent
		}
		return sc
	}
	return SymbolConfig{
		DefaultLeverage:   s.DefaultLeverage,
		MaxPositionSize:   s.MaxPositionSize,
		StopLossPercent:   s.StopLossPercent,
		TakeProfitPercent: s.TakeProfitPercent,
	}
}

func getEnvRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is missing", key)
	}
	return v, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
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

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return configValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	return strings.Split(v, ",")
}

func getSymbolsFromEnvOrConfig(configSymbols []string) []string {
	if env := os.Getenv(common.EnvSymbols); env != "" {
		return strings.Split(env, ",")
	}
	if len(configSymbols) > 0 {
		return configSymbols
	}
	return []string{"BTCUSDT"}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOrDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func floatNonZeroOrDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func durationOrDefault(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return def
}

func boolPtrOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func floatOrDefault(raw string, def float64) float64 {
	if raw == "" {
		return def
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return def
}

// validateSettings performs comprehensive validation of configuration values.
func validateSettings(s *Settings) error {
	if err := validateCredentials(s); err != nil {
		return err
	}
	if err := validateURLs(s); err != nil {
		return err
	}
	if err := validateTradingParameters(s); err != nil {
		return err
	}
	if err := validateLiveTradingRestrictions(s); err != nil {
		return err
	}
	if err := validateRuntimeParameters(s); err != nil {
		return err
	}
	if err := validateSystemParameters(s); err != nil {
		return err
	}
	return nil
}

func validateCredentials(s *Settings) error {
	if s.ExchangeAPIKey == "" || s.ExchangeAPISecret == "" {
		return fmt.Errorf(common.ErrMsgAPIKeyRequired)
	}
	if s.LLMAPIKey == "" {
		return fmt.Errorf(common.ErrMsgLLMKeyRequired)
	}
	return nil
}

func validateURLs(s *Settings) error {
	if s.ExchangeBaseURL == "" {
		return fmt.Errorf(common.ErrMsgBaseURLRequired)
	}
	return nil
}

func validateTradingParameters(s *Settings) error {
	if len(s.Symbols) == 0 {
		return fmt.Errorf(common.ErrMsgSymbolRequired)
	}
	if s.DefaultLeverage < common.MinLeverage || s.DefaultLeverage > common.MaxLeverage {
		return fmt.Errorf("defaultLeverage must be between %d and %d", common.MinLeverage, common.MaxLeverage)
	}
	if s.MaxPositionSize <= 0 || s.MaxPositionSize > common.MaxPositionSizeLimit {
		return fmt.Errorf("maxPositionSize must be between 0 and %g", common.MaxPositionSizeLimit)
	}
	if s.StopLossPercent <= 0 || s.StopLossPercent >= 1 {
		return fmt.Errorf("stopLossPercent must be between 0 and 1")
	}
	if s.TakeProfitPercent <= 0 {
		return fmt.Errorf("takeProfitPercent must be positive")
	}
	if s.MinConfidence < common.MinConfidenceFloor || s.MinConfidence > common.MaxConfidenceCeiling {
		return fmt.Errorf(common.ErrMsgMinConfidenceBounds)
	}
	if s.MinNotionalUsdt <= 0 {
		return fmt.Errorf("minNotionalUsdt must be positive")
	}
	for symbol, sc := range s.SymbolOverrides {
		if sc.DefaultLeverage != 0 && (sc.DefaultLeverage < common.MinLeverage || sc.DefaultLeverage > common.MaxLeverage) {
			return fmt.Errorf("symbol %s: defaultLeverage must be between %d and %d", symbol, common.MinLeverage, common.MaxLeverage)
		}
	}
	return nil
}

func validateLiveTradingRestrictions(s *Settings) error {
	if s.DryRun {
		return nil
	}
	if os.Getenv(common.EnvForceLiveTrading) != "true" || !s.RealTradingEnabled {
		return fmt.Errorf(common.ErrMsgLiveTradingGuard)
	}
	return nil
}

func validateRuntimeParameters(s *Settings) error {
	if s.AnalysisInterval < 10*time.Second {
		return fmt.Errorf("analysisInterval must be at least 10s")
	}
	if s.SnapshotConcurrency < 1 {
		return fmt.Errorf("snapshotConcurrency must be at least 1")
	}
	if s.SnapshotDeadline < 1*time.Second {
		return fmt.Errorf("snapshotDeadline must be at least 1s")
	}
	if s.LimitOrderMaxWait < 1*time.Second {
		return fmt.Errorf("limitOrderMaxWait must be at least 1s")
	}
	return nil
}

func validateSystemParameters(s *Settings) error {
	if s.MetricsPort < common.MinMetricsPort || s.MetricsPort > common.MaxMetricsPort {
		return fmt.Errorf("metricsPort must be between %d and %d", common.MinMetricsPort, common.MaxMetricsPort)
	}
	if s.DashboardPort < common.MinMetricsPort || s.DashboardPort > common.MaxMetricsPort {
		return fmt.Errorf("dashboardPort must be between %d and %d", common.MinMetricsPort, common.MaxMetricsPort)
	}
	if s.RESTTimeout < 1*time.Second || s.RESTTimeout > 1*time.Minute {
		return fmt.Errorf("restTimeout must be between 1s and 1m")
	}
	return nil
}
