package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name: "valid config with required fields",
			envVars: map[string]string{
				"EXCHANGE_API_KEY":    "test_key",
				"EXCHANGE_API_SECRET": "test_secret",
				"LLM_API_KEY":         "test_llm_key",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.ExchangeAPIKey != "test_key" {
					t.Errorf("expected ExchangeAPIKey to be 'test_key', got %s", settings.ExchangeAPIKey)
				}
				if settings.ExchangeAPISecret != "test_secret" {
					t.Errorf("expected ExchangeAPISecret to be 'test_secret', got %s", settings.ExchangeAPISecret)
				}
				if len(settings.Symbols) != 1 || settings.Symbols[0] != "BTCUSDT" {
					t.Errorf("expected default symbols [BTCUSDT], got %v", settings.Symbols)
				}
				if settings.ExchangeBaseURL != DefaultTestExchangeBaseURL() {
					t.Errorf("expected default ExchangeBaseURL, got %s", settings.ExchangeBaseURL)
				}
				if !settings.DryRun {
					t.Error("expected DryRun to default true")
				}
			},
		},
		{
			name: "custom symbols and settings",
			envVars: map[string]string{
				"EXCHANGE_API_KEY":    "test_key",
				"EXCHANGE_API_SECRET": "test_secret",
				"LLM_API_KEY":         "test_llm_key",
				"SYMBOLS":             "BTCUSDT,ETHUSDT,SOLUSDT",
				"DRY_RUN":             "true",
				"METRICS_PORT":        "9091",
				"DEFAULT_LEVERAGE":    "10",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				expectedSymbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
				if len(settings.Symbols) != len(expectedSymbols) {
					t.Errorf("expected %d symbols, got %d", len(expectedSymbols), len(settings.Symbols))
				}
				if settings.MetricsPort != 9091 {
					t.Errorf("expected MetricsPort 9091, got %d", settings.MetricsPort)
				}
				if settings.DefaultLeverage != 10 {
					t.Errorf("expected DefaultLeverage 10, got %d", settings.DefaultLeverage)
				}
			},
		},
		{
			name: "missing exchange key",
			envVars: map[string]string{
				"EXCHANGE_API_SECRET": "test_secret",
				"LLM_API_KEY":         "test_llm_key",
			},
			wantErr: true,
		},
		{
			name: "missing llm key",
			envVars: map[string]string{
				"EXCHANGE_API_KEY":    "test_key",
				"EXCHANGE_API_SECRET": "test_secret",
			},
			wantErr: true,
		},
		{
			name:    "missing everything",
			envVars: map[string]string{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := loadFromEnv()

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tests := []struct {
		name        string
		yamlContent string
		envOverrides map[string]string
		wantErr     bool
		validate    func(t *testing.T, settings Settings)
	}{
		{
			name: "valid YAML config",
			yamlContent: `
apis:
  exchange:
    key: "yaml_key"
    secret: "yaml_secret"
    baseUrl: "https://fapi.example-exchange.com"
    testnet: true
  llm:
    apiKey: "yaml_llm_key"
    baseUrl: "https://api.deepseek.com"
    model: "deepseek-chat"

trading:
  symbols: ["BTCUSDT", "ETHUSDT"]
  futures:
    defaultLeverage: 5
  positionManagement:
    maxPositionSize: 0.1
    stopLossPercent: 0.03
    takeProfitPercent: 0.06
    minConfidence: 70
  safety:
    realTradingEnabled: false
  orderSettings:
    minNotionalUsdt: "5"
    limitOrderMaxWait: "5m"
  mode:
    dryRun: true

runtime:
  analysisInterval: "15m"
  snapshotConcurrency: 8
  snapshotDeadline: "60s"

system:
  metricsPort: 9090
  dashboardPort: 8090
  restTimeout: "10s"
`,
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.ExchangeAPIKey != "yaml_key" {
					t.Errorf("expected ExchangeAPIKey 'yaml_key', got %s", settings.ExchangeAPIKey)
				}
				if settings.MinConfidence != 70 {
					t.Errorf("expected MinConfidence 70, got %f", settings.MinConfidence)
				}
				if settings.AnalysisInterval != 15*time.Minute {
					t.Errorf("expected AnalysisInterval 15m, got %v", settings.AnalysisInterval)
				}
				if !settings.DryRun {
					t.Error("expected DryRun to be true")
				}
				if settings.MetricsPort != 9090 {
					t.Errorf("expected MetricsPort 9090, got %d", settings.MetricsPort)
				}
				if !settings.CheckBalance || !settings.CheckPriceAnomaly || !settings.CheckLiquidity {
					t.Error("expected pre-trade checks to default to enabled when preTradeChecks is omitted")
				}
			},
		},
		{
			name: "YAML disables individual pre-trade checks",
			yamlContent: `
apis:
  exchange:
    key: "yaml_key"
    secret: "yaml_secret"
  llm:
    apiKey: "yaml_llm_key"
trading:
  symbols: ["BTCUSDT"]
  safety:
    preTradeChecks:
      checkBalance: false
      checkPriceAnomaly: true
      checkLiquidity: false
  mode:
    dryRun: true
`,
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.CheckBalance {
					t.Error("expected checkBalance to be disabled")
				}
				if !settings.CheckPriceAnomaly {
					t.Error("expected checkPriceAnomaly to stay enabled")
				}
				if settings.CheckLiquidity {
					t.Error("expected checkLiquidity to be disabled")
				}
			},
		},
		{
			name: "YAML with env overrides",
			yamlContent: `
apis:
  exchange:
    key: "yaml_key"
    secret: "yaml_secret"
  llm:
    apiKey: "yaml_llm_key"
trading:
  symbols: ["BTCUSDT"]
  mode:
    dryRun: true
`,
			envOverrides: map[string]string{
				"EXCHANGE_API_KEY": "env_key",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.ExchangeAPIKey != "env_key" {
					t.Errorf("expected env override ExchangeAPIKey 'env_key', got %s", settings.ExchangeAPIKey)
				}
				if settings.ExchangeAPISecret != "yaml_secret" {
					t.Errorf("expected YAML ExchangeAPISecret 'yaml_secret', got %s", settings.ExchangeAPISecret)
				}
			},
		},
		{
			name: "YAML missing required keys",
			yamlContent: `
trading:
  symbols: ["BTCUSDT"]
`,
			wantErr: true,
		},
		{
			name:        "invalid YAML",
			yamlContent: `invalid: yaml: content: [`,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for key, value := range tt.envOverrides {
				t.Setenv(key, value)
			}

			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.yamlContent), 0o644); err != nil {
				t.Fatalf("failed to write test config file: %v", err)
			}

			settings, err := loadFromYAML(configPath)

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("load from env when no config file", func(t *testing.T) {
		clearTestEnv(t)
		t.Setenv("EXCHANGE_API_KEY", "env_key")
		t.Setenv("EXCHANGE_API_SECRET", "env_secret")
		t.Setenv("LLM_API_KEY", "env_llm_key")

		settings, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if settings.ExchangeAPIKey != "env_key" {
			t.Errorf("expected ExchangeAPIKey 'env_key', got %s", settings.ExchangeAPIKey)
		}
	})

	t.Run("load from YAML when config file specified", func(t *testing.T) {
		clearTestEnv(t)
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.yaml")
		yamlContent := `
apis:
  exchange:
    key: "yaml_key"
    secret: "yaml_secret"
  llm:
    apiKey: "yaml_llm_key"
trading:
  symbols: ["BTCUSDT"]
  mode:
    dryRun: true
`
		if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
			t.Fatalf("failed to write test config file: %v", err)
		}
		t.Setenv("CONFIG_FILE", configPath)

		settings, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if settings.ExchangeAPIKey != "yaml_key" {
			t.Errorf("expected ExchangeAPIKey 'yaml_key', got %s", settings.ExchangeAPIKey)
		}
	})
}

func TestGetSymbolConfig(t *testing.T) {
	settings := Settings{
		DefaultLeverage:   5,
		MaxPositionSize:   0.1,
		StopLossPercent:   0.03,
		TakeProfitPercent: 0.06,
		SymbolOverrides: map[string]SymbolConfig{
			"BTCUSDT": {
				DefaultLeverage: 10,
				MaxPositionSize: 0.2,
			},
		},
	}

	t.Run("symbol with override", func(t *testing.T) {
		config := settings.GetSymbolConfig("BTCUSDT")
		if config.DefaultLeverage != 10 {
			t.Errorf("expected DefaultLeverage 10, got %d", config.DefaultLeverage)
		}
		if config.MaxPositionSize != 0.2 {
			t.Errorf("expected MaxPositionSize 0.2, got %f", config.MaxPositionSize)
		}
		if config.StopLossPercent != 0.03 {
			t.Errorf("expected inherited StopLossPercent 0.03, got %f", config.StopLossPercent)
		}
	})

	t.Run("symbol with default config", func(t *testing.T) {
		config := settings.GetSymbolConfig("ETHUSDT")
		if config.DefaultLeverage != 5 {
			t.Errorf("expected default DefaultLeverage 5, got %d", config.DefaultLeverage)
		}
	})
}

// DefaultTestExchangeBaseURL mirrors the package default for assertions
// without importing common into the test's expectation literals.
func DefaultTestExchangeBaseURL() string {
	return "https://fapi.example-exchange.com"
}

func clearTestEnv(t *testing.T) {
	envVars := []string{
		"EXCHANGE_API_KEY", "EXCHANGE_API_SECRET", "EXCHANGE_TESTNET", "LLM_API_KEY",
		"LLM_BASE_URL", "SYMBOLS", "EXCHANGE_BASE_URL", "CONFIG_FILE", "METRICS_PORT",
		"DASHBOARD_PORT", "AUDIT_DIR", "DRY_RUN", "REST_TIMEOUT", "DEFAULT_LEVERAGE",
		"MIN_CONFIDENCE", "FORCE_LIVE_TRADING",
		"CHECK_BALANCE", "CHECK_PRICE_ANOMALY", "CHECK_LIQUIDITY",
	}
	for _, env := range envVars {
		if val := os.Getenv(env); val != "" {
			t.Setenv(env, "")
		}
	}
}
