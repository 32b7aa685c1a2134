package common

// Environment variable keys
const (
	EnvExchangeAPIKey    = "EXCHANGE_API_KEY"
	EnvExchangeAPISecret = "EXCHANGE_API_SECRET"
	EnvExchangeTestnet   = "EXCHANGE_TESTNET"
	EnvLLMAPIKey         = "LLM_API_KEY"
	EnvLLMBaseURL        = "LLM_BASE_URL"
	EnvForceLiveTrading  = "FORCE_LIVE_TRADING"
	EnvSymbols           = "SYMBOLS"
	EnvExchangeBaseURL   = "EXCHANGE_BASE_URL"
	EnvConfigFile        = "CONFIG_FILE"
	EnvMetricsPort       = "METRICS_PORT"
	EnvDashboardPort     = "DASHBOARD_PORT"
	EnvAuditDir          = "AUDIT_DIR"
	EnvDryRun            = "DRY_RUN"
	EnvRESTTimeout       = "REST_TIMEOUT"
	EnvLeverage          = "DEFAULT_LEVERAGE"
	EnvMinConfidence     = "MIN_CONFIDENCE"
	EnvCheckBalance      = "CHECK_BALANCE"
	EnvCheckPriceAnomaly = "CHECK_PRICE_ANOMALY"
	EnvCheckLiquidity    = "CHECK_LIQUIDITY"
)

// Configuration defaults
const (
	DefaultExchangeBaseURL = "https://fapi.example-exchange.com"
	DefaultLLMBaseURL      = "https://api.deepseek.com"
	DefaultLLMModel        = "deepseek-chat"

	DefaultLeverage             = 5
	DefaultMaxPositionSize      = 0.1
	DefaultStopLossPercent      = 0.03
	DefaultTakeProfitPercent    = 0.06
	DefaultMinConfidence        = 60.0
	DefaultMinNotionalUsdt      = 5.0
	DefaultLimitOrderMaxWaitSec = 300
	DefaultAnalysisIntervalSec  = 900
	DefaultMaxRuntimeSec        = 0 // 0 = unbounded
	DefaultSnapshotConcurrency  = 8
	DefaultSnapshotDeadlineSec  = 60
	DefaultMetricsPort          = 9090
	DefaultDashboardPort        = 8090
	DefaultRESTTimeoutSec       = 30
	DefaultOrderPollIntervalSec = 1

	DefaultLLMTemperature = 0.2
	DefaultLLMMaxTokens   = 4000
	DefaultLLMTimeoutSec  = 60

	DefaultCacheDirName = "cache"
)

// DefaultRetryBackoffSeconds is the backoff schedule for transient errors (spec.md §7).
var DefaultRetryBackoffSeconds = []int{15, 30, 60, 120}

// DefaultMaxRetryAttempts bounds the total attempts (initial call plus
// retries) made for a transient error.
const DefaultMaxRetryAttempts = 5

// Common error messages
const (
	ErrMsgAPIKeyRequired      = "exchange API key and secret are required"
	ErrMsgLLMKeyRequired      = "llm API key is required"
	ErrMsgBaseURLRequired     = "exchange baseUrl is required"
	ErrMsgSymbolRequired      = "at least one trading symbol is required"
	ErrMsgLiveTradingGuard    = "real trading requires FORCE_LIVE_TRADING=true and trading.safety.realTradingEnabled=true"
	ErrMsgMinConfidenceBounds = "minConfidence must be between 0 and 100"
)

// Validation constants
const (
	MaxPositionSizeLimit = 1.0
	MinConfidenceFloor   = 0.0
	MaxConfidenceCeiling = 100.0
	MinMetricsPort       = 1024
	MaxMetricsPort       = 65535
	MaxLeverage          = 125
	MinLeverage          = 1
)
