package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full engine configuration. Defaults target spot gold (XAU/USD);
// every threshold can be overridden by file or environment.
type Config struct {
	VenueConfig     VenueConfig     `json:"venue"`
	TradingConfig   TradingConfig   `json:"trading"`
	SignalConfig    SignalConfig    `json:"signals"`
	ConsensusConfig ConsensusConfig `json:"consensus"`
	RiskConfig      RiskConfig      `json:"risk"`
	SizingConfig    SizingConfig    `json:"sizing"`
	TrailingConfig  TrailingConfig  `json:"trailing"`
	ScorerConfig    ScorerConfig    `json:"scorer"`
	ServerConfig    ServerConfig    `json:"server"`
	AuthConfig      AuthConfig      `json:"auth"`
	DatabaseConfig  DatabaseConfig  `json:"database"`
	RedisConfig     RedisConfig     `json:"redis"`
	VaultConfig     VaultConfig     `json:"vault"`
	LoggingConfig   LoggingConfig   `json:"logging"`
}

// VenueConfig holds execution-venue connectivity settings.
type VenueConfig struct {
	Symbol         string `json:"symbol"`
	BaseURL        string `json:"base_url"`
	StreamURL      string `json:"stream_url"`
	Token          string `json:"token"`
	MockMode       bool   `json:"mock_mode"` // simulated venue, no external calls
	RequestTimeout int    `json:"request_timeout_ms"`
	MaxRetries     int    `json:"max_retries"`
	RetryBackoffMs int    `json:"retry_backoff_ms"`
}

// TradingConfig holds engine pacing and position limits.
type TradingConfig struct {
	MaxPositions           int     `json:"max_positions"`
	MinSecondsBetweenTrade int     `json:"min_seconds_between_trades"`
	SpreadCeiling          float64 `json:"spread_ceiling"` // max spread in $ for a new entry, 0 disables the filter
	EvalIntervalMs         int     `json:"eval_interval_ms"`
	TickBufferSize         int     `json:"tick_buffer_size"`
	WarmupBars             int     `json:"warmup_bars"`
	ReactiveProfitEnabled  bool    `json:"reactive_profit_enabled"`
	ProfitPerPosition      float64 `json:"profit_threshold_per_position"`
	ProfitCumulative       float64 `json:"profit_threshold_cumulative"`
}

// SignalConfig holds oscillator and three-line indicator parameters.
type SignalConfig struct {
	STCPeriod         int     `json:"stc_period"`
	STCFastLength     int     `json:"stc_fast_length"`
	STCSlowLength     int     `json:"stc_slow_length"`
	STCBuyThreshold   float64 `json:"stc_threshold_buy"`
	STCSellThreshold  float64 `json:"stc_threshold_sell"`
	ExtremeThreshold  float64 `json:"extreme_stc_threshold"`
	AllowExtremeEntry bool    `json:"allow_no_crossover_on_extreme_stc"`
	TenkanPeriod      int     `json:"ichimoku_tenkan"`
	KijunPeriod       int     `json:"ichimoku_kijun"`
	SenkouBPeriod     int     `json:"ichimoku_senkou_b"`
}

// ConsensusConfig holds higher-timeframe voting parameters.
type ConsensusConfig struct {
	Timeframes         []string `json:"timeframes"`
	AlignmentThreshold int      `json:"alignment_threshold"`
	ConfidenceEnabled  bool     `json:"confidence_enabled"`
	MinConfidence      float64  `json:"min_confidence_to_trade"`
	HighConfidenceMin  float64  `json:"confidence_high_min"`
	MedConfidenceMin   float64  `json:"confidence_medium_min"`
	TPMultHigh         float64  `json:"tp_multiplier_high"`
	SLMultHigh         float64  `json:"sl_multiplier_high"`
	TPMultMed          float64  `json:"tp_multiplier_medium"`
	SLMultMed          float64  `json:"sl_multiplier_medium"`
	TPMultLow          float64  `json:"tp_multiplier_low"`
	SLMultLow          float64  `json:"sl_multiplier_low"`
}

// RiskConfig holds the circuit-breaker protections. Each protection is
// independently togglable; Enabled is the global switch.
type RiskConfig struct {
	Enabled bool `json:"circuit_breaker_enabled"`

	DailyLossEnabled bool    `json:"daily_loss_enabled"`
	MaxDailyLoss     float64 `json:"max_daily_loss"`

	DailyTradesEnabled bool `json:"daily_trades_enabled"`
	MaxDailyTrades     int  `json:"max_daily_trades"`

	ConsecutiveLossesEnabled bool `json:"consecutive_losses_enabled"`
	MaxConsecutiveLosses     int  `json:"max_consecutive_losses"`
	CooldownMinutes          int  `json:"cooldown_minutes"`

	DrawdownEnabled    bool    `json:"drawdown_enabled"`
	MaxDrawdownPercent float64 `json:"max_drawdown_percent"`

	CorrelationEnabled     bool `json:"correlation_enabled"`
	MaxCorrelatedPositions int  `json:"max_correlated_positions"`

	PortfolioEnabled        bool    `json:"portfolio_enabled"`
	MaxPortfolioRiskPercent float64 `json:"max_portfolio_risk_percent"`

	InitialEquity float64 `json:"initial_equity"`
}

// SizingConfig holds position sizing and stop placement parameters.
type SizingConfig struct {
	PositionSizes        []float64 `json:"position_sizes"` // base volume ladder, indexed by open position count
	BaseSLDistance       float64   `json:"base_sl_distance"`
	BaseTPDistance       float64   `json:"base_tp_distance"`
	SpreadCompensation   float64   `json:"spread_compensation_multiplier"`
	VolumeDynamicEnabled bool      `json:"volume_dynamic_enabled"`
	VolumeMinMultiplier  float64   `json:"volume_min_multiplier"`
	VolumeMaxMultiplier  float64   `json:"volume_max_multiplier"`
	MaxVolatilityForSize float64   `json:"max_atr_threshold"` // volatility in $ at which volume damping bottoms out
	VolumeStep           float64   `json:"volume_step"`
	VolumeMin            float64   `json:"volume_min"`
	VolumeMax            float64   `json:"volume_max"`
}

// TrailingConfig holds the two-phase trailing stop parameters in account currency.
type TrailingConfig struct {
	SecureProfit     float64 `json:"secure_profit_base"`
	ExtensionTrigger float64 `json:"extension_trigger_base"`
	TrailingDistance float64 `json:"trailing_distance_base"`
	PollIntervalMs   int     `json:"poll_interval_ms"`
}

// ScorerConfig holds the optional external confidence scorer settings.
type ScorerConfig struct {
	Enabled   bool   `json:"enabled"`
	URL       string `json:"url"`
	TimeoutMs int    `json:"timeout_ms"`
}

// ServerConfig holds the snapshot/config HTTP API settings.
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	Enabled         bool   `json:"enabled"`
	JWTSecret       string `json:"jwt_secret"`
	TokenTTLMinutes int    `json:"token_ttl_minutes"`
}

// DatabaseConfig holds PostgreSQL settings for the trade journal.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis settings for risk-state persistence.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// VaultConfig holds HashiCorp Vault settings for venue credentials.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level      string `json:"level"`
	JSONFormat bool   `json:"json_format"`
}

// Default returns the configuration with all defaults applied.
func Default() *Config {
	return &Config{
		VenueConfig: VenueConfig{
			Symbol:         "XAUUSD",
			BaseURL:        "http://127.0.0.1:8228",
			StreamURL:      "ws://127.0.0.1:8228/ticks",
			MockMode:       true,
			RequestTimeout: 3000,
			MaxRetries:     3,
			RetryBackoffMs: 250,
		},
		TradingConfig: TradingConfig{
			MaxPositions:           4,
			MinSecondsBetweenTrade: 30,
			SpreadCeiling:          1.0,
			EvalIntervalMs:         500,
			TickBufferSize:         100000,
			WarmupBars:             60,
			ReactiveProfitEnabled:  true,
			ProfitPerPosition:      5.0,
			ProfitCumulative:       15.0,
		},
		SignalConfig: SignalConfig{
			STCPeriod:         10,
			STCFastLength:     23,
			STCSlowLength:     50,
			STCBuyThreshold:   25.0,
			STCSellThreshold:  75.0,
			ExtremeThreshold:  5.0,
			AllowExtremeEntry: true,
			TenkanPeriod:      9,
			KijunPeriod:       26,
			SenkouBPeriod:     52,
		},
		ConsensusConfig: ConsensusConfig{
			Timeframes:         []string{"M15", "M30", "H1", "H4"},
			AlignmentThreshold: 1,
			ConfidenceEnabled:  true,
			MinConfidence:      0.0,
			HighConfidenceMin:  75.0,
			MedConfidenceMin:   40.0,
			TPMultHigh:         1.5,
			SLMultHigh:         0.7,
			TPMultMed:          1.0,
			SLMultMed:          1.0,
			TPMultLow:          0.6,
			SLMultLow:          1.3,
		},
		RiskConfig: RiskConfig{
			Enabled:                  true,
			DailyLossEnabled:         true,
			MaxDailyLoss:             500.0,
			DailyTradesEnabled:       true,
			MaxDailyTrades:           500,
			ConsecutiveLossesEnabled: true,
			MaxConsecutiveLosses:     9,
			CooldownMinutes:          30,
			DrawdownEnabled:          true,
			MaxDrawdownPercent:       50.0,
			CorrelationEnabled:       true,
			MaxCorrelatedPositions:   7,
			PortfolioEnabled:         true,
			MaxPortfolioRiskPercent:  65.0,
			InitialEquity:            100000.0,
		},
		SizingConfig: SizingConfig{
			PositionSizes:        []float64{0.05, 0.15, 0.25, 0.35, 0.45, 0.55, 0.65},
			BaseSLDistance:       10.0,
			BaseTPDistance:       20.0,
			SpreadCompensation:   1.5,
			VolumeDynamicEnabled: true,
			VolumeMinMultiplier:  0.5,
			VolumeMaxMultiplier:  2.0,
			MaxVolatilityForSize: 15.0,
			VolumeStep:           0.01,
			VolumeMin:            0.01,
			VolumeMax:            100.0,
		},
		TrailingConfig: TrailingConfig{
			SecureProfit:     5.0,
			ExtensionTrigger: 12.0,
			TrailingDistance: 4.0,
			PollIntervalMs:   1000,
		},
		ScorerConfig: ScorerConfig{
			Enabled:   false,
			TimeoutMs: 500,
		},
		ServerConfig: ServerConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8229,
		},
		AuthConfig: AuthConfig{
			Enabled:         false,
			TokenTTLMinutes: 60,
		},
		DatabaseConfig: DatabaseConfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     5432,
			User:     "goldhft",
			Database: "goldhft",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		VaultConfig: VaultConfig{
			Enabled:    false,
			MountPath:  "secret",
			SecretPath: "goldhft/venue",
		},
		LoggingConfig: LoggingConfig{
			Level:      "info",
			JSONFormat: false,
		},
	}
}

// Load reads configuration from an optional JSON file, then applies
// environment overrides for connectivity and secrets.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.VenueConfig.BaseURL = getEnvOrDefault("VENUE_BASE_URL", cfg.VenueConfig.BaseURL)
	cfg.VenueConfig.StreamURL = getEnvOrDefault("VENUE_STREAM_URL", cfg.VenueConfig.StreamURL)
	cfg.VenueConfig.Token = getEnvOrDefault("VENUE_TOKEN", cfg.VenueConfig.Token)
	cfg.VenueConfig.Symbol = getEnvOrDefault("VENUE_SYMBOL", cfg.VenueConfig.Symbol)
	if v := os.Getenv("VENUE_MOCK_MODE"); v != "" {
		cfg.VenueConfig.MockMode = v == "true"
	}

	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)

	cfg.RedisConfig.Addr = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Addr)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)

	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)

	cfg.AuthConfig.JWTSecret = getEnvOrDefault("API_JWT_SECRET", cfg.AuthConfig.JWTSecret)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
}

// Validate checks value ranges. It is the single gate for both startup
// configuration and runtime updates: an invalid set is rejected whole and the
// prior configuration stays in effect.
func (c *Config) Validate() error {
	if c.VenueConfig.Symbol == "" {
		return fmt.Errorf("venue: symbol must not be empty")
	}
	if c.TradingConfig.MaxPositions <= 0 {
		return fmt.Errorf("trading: max_positions must be positive, got %d", c.TradingConfig.MaxPositions)
	}
	if c.TradingConfig.EvalIntervalMs <= 0 {
		return fmt.Errorf("trading: eval_interval_ms must be positive, got %d", c.TradingConfig.EvalIntervalMs)
	}
	if c.TradingConfig.TickBufferSize <= 0 {
		return fmt.Errorf("trading: tick_buffer_size must be positive, got %d", c.TradingConfig.TickBufferSize)
	}
	if c.SignalConfig.STCBuyThreshold < 0 || c.SignalConfig.STCBuyThreshold > 100 {
		return fmt.Errorf("signals: stc_threshold_buy out of range [0,100]: %.2f", c.SignalConfig.STCBuyThreshold)
	}
	if c.SignalConfig.STCSellThreshold < 0 || c.SignalConfig.STCSellThreshold > 100 {
		return fmt.Errorf("signals: stc_threshold_sell out of range [0,100]: %.2f", c.SignalConfig.STCSellThreshold)
	}
	if c.SignalConfig.STCBuyThreshold >= c.SignalConfig.STCSellThreshold {
		return fmt.Errorf("signals: stc_threshold_buy (%.2f) must be below stc_threshold_sell (%.2f)",
			c.SignalConfig.STCBuyThreshold, c.SignalConfig.STCSellThreshold)
	}
	if c.SignalConfig.STCFastLength >= c.SignalConfig.STCSlowLength {
		return fmt.Errorf("signals: stc_fast_length (%d) must be below stc_slow_length (%d)",
			c.SignalConfig.STCFastLength, c.SignalConfig.STCSlowLength)
	}
	if c.SignalConfig.TenkanPeriod <= 0 || c.SignalConfig.KijunPeriod <= 0 || c.SignalConfig.SenkouBPeriod <= 0 {
		return fmt.Errorf("signals: ichimoku periods must be positive")
	}
	if len(c.ConsensusConfig.Timeframes) == 0 {
		return fmt.Errorf("consensus: timeframes must not be empty")
	}
	if c.ConsensusConfig.AlignmentThreshold < 1 || c.ConsensusConfig.AlignmentThreshold > len(c.ConsensusConfig.Timeframes) {
		return fmt.Errorf("consensus: alignment_threshold must be in [1,%d], got %d",
			len(c.ConsensusConfig.Timeframes), c.ConsensusConfig.AlignmentThreshold)
	}
	if c.RiskConfig.MaxDailyLoss < 0 {
		return fmt.Errorf("risk: max_daily_loss must not be negative, got %.2f", c.RiskConfig.MaxDailyLoss)
	}
	if c.RiskConfig.MaxConsecutiveLosses < 1 {
		return fmt.Errorf("risk: max_consecutive_losses must be at least 1, got %d", c.RiskConfig.MaxConsecutiveLosses)
	}
	if c.RiskConfig.MaxDrawdownPercent <= 0 || c.RiskConfig.MaxDrawdownPercent > 100 {
		return fmt.Errorf("risk: max_drawdown_percent out of range (0,100]: %.2f", c.RiskConfig.MaxDrawdownPercent)
	}
	if c.SizingConfig.BaseSLDistance <= 0 || c.SizingConfig.BaseTPDistance <= 0 {
		return fmt.Errorf("sizing: base SL/TP distances must be positive")
	}
	if c.SizingConfig.SpreadCompensation < 1.0 {
		return fmt.Errorf("sizing: spread_compensation_multiplier must be >= 1.0, got %.2f", c.SizingConfig.SpreadCompensation)
	}
	if c.SizingConfig.VolumeStep <= 0 {
		return fmt.Errorf("sizing: volume_step must be positive, got %.4f", c.SizingConfig.VolumeStep)
	}
	if len(c.SizingConfig.PositionSizes) == 0 {
		return fmt.Errorf("sizing: position_sizes must not be empty")
	}
	if c.TrailingConfig.SecureProfit >= c.TrailingConfig.ExtensionTrigger {
		return fmt.Errorf("trailing: secure_profit_base (%.2f) must be below extension_trigger_base (%.2f)",
			c.TrailingConfig.SecureProfit, c.TrailingConfig.ExtensionTrigger)
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	dup := *c
	dup.ConsensusConfig.Timeframes = append([]string(nil), c.ConsensusConfig.Timeframes...)
	dup.SizingConfig.PositionSizes = append([]float64(nil), c.SizingConfig.PositionSizes...)
	return &dup
}

// SaveToFile writes the configuration as indented JSON.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// EvalInterval returns the evaluation cadence as a duration.
func (c *Config) EvalInterval() time.Duration {
	return time.Duration(c.TradingConfig.EvalIntervalMs) * time.Millisecond
}

// Cooldown returns the post-loss-streak cooldown as a duration.
func (c *RiskConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
