package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"smc-trading-engine/internal/cache"
	"smc-trading-engine/internal/database"
	"smc-trading-engine/internal/signal"
)

// Config is the full engine configuration, bound from the environment with
// optional file defaults (config.yaml in the working directory).
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Database  database.Config
	Redis     cache.RedisConfig
	Signal    SignalConfig
	Execution ExecutionConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	AllowedOrigins  string
	ReadTimeout     int // seconds
	WriteTimeout    int // seconds
	ShutdownTimeout int // seconds
}

type LoggingConfig struct {
	Level  string
	Pretty bool
}

// SignalConfig holds the pipeline knobs. Per-symbol session allow-lists
// split into a low-liquidity and a high-liquidity list; volatile symbols
// use the former.
type SignalConfig struct {
	MinHTFCandles       int
	MinITFCandles       int
	MinLTFCandles       int
	UseICTModel         bool
	StrictClose         bool
	SwingLookback       int
	SkipITFAlignment    bool
	ForceMinimalEntry   bool
	SyntheticZoneWidth  float64
	RequireLTFBOS       bool
	MinITFBOSCount      int
	MinTrendStrength    float64
	MinVolatilityRatio  float64
	RewardRatio         float64
	SLBufferOverride    float64
	RetracementMinPct   float64
	LowAllowedSessions  []string
	HighAllowedSessions []string
	Debug               bool
}

// ExecutionConfig holds the multi-account execution knobs.
type ExecutionConfig struct {
	AccountsPath           string
	StrategyID             string
	CheckMarketHours       bool
	MaxTradesPerDay        int
	CooldownMinutes        int
	SessionWindows         []string
	MaxSpreadPips          float64
	MaxSpreadPipsPerSymbol map[string]float64
}

// PipelineConfig maps the signal section onto the pipeline's record,
// choosing the session allow-list for the symbol's liquidity class.
func (c *Config) PipelineConfig(volatileSymbol bool) signal.PipelineConfig {
	sessions := c.Signal.HighAllowedSessions
	if volatileSymbol {
		sessions = c.Signal.LowAllowedSessions
	}
	return signal.PipelineConfig{
		MinHTFCandles:      c.Signal.MinHTFCandles,
		MinITFCandles:      c.Signal.MinITFCandles,
		MinLTFCandles:      c.Signal.MinLTFCandles,
		UseICTModel:        c.Signal.UseICTModel,
		StrictClose:        c.Signal.StrictClose,
		SwingLookback:      c.Signal.SwingLookback,
		SkipITFAlignment:   c.Signal.SkipITFAlignment,
		ForceMinimalEntry:  c.Signal.ForceMinimalEntry,
		SyntheticZoneWidth: c.Signal.SyntheticZoneWidth,
		RequireLTFBOS:      c.Signal.RequireLTFBOS,
		MinITFBOSCount:     c.Signal.MinITFBOSCount,
		MinTrendStrength:   c.Signal.MinTrendStrength,
		MinVolatilityRatio: c.Signal.MinVolatilityRatio,
		RewardRatio:        c.Signal.RewardRatio,
		SLBufferOverride:   c.Signal.SLBufferOverride,
		RetracementMinPct:  c.Signal.RetracementMinPct,
		AllowedSessions:    signal.ParseSessions(sessions),
		Debug:              c.Signal.Debug,
	}
}

// Load reads config.yaml when present and binds environment overrides.
// Every value has a default; a missing file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvAliases(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			AllowedOrigins:  v.GetString("server.allowed_origins"),
			ReadTimeout:     v.GetInt("server.read_timeout"),
			WriteTimeout:    v.GetInt("server.write_timeout"),
			ShutdownTimeout: v.GetInt("server.shutdown_timeout"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Pretty: v.GetBool("logging.pretty"),
		},
		Database: database.Config{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			Database: v.GetString("database.name"),
			SSLMode:  v.GetString("database.sslmode"),
		},
		Redis: cache.RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			PoolSize: v.GetInt("redis.pool_size"),
		},
		Signal: SignalConfig{
			MinHTFCandles:       v.GetInt("signal.min_htf_candles"),
			MinITFCandles:       v.GetInt("signal.min_itf_candles"),
			MinLTFCandles:       v.GetInt("signal.min_ltf_candles"),
			UseICTModel:         v.GetBool("signal.use_ict_model"),
			StrictClose:         v.GetBool("signal.strict_close"),
			SwingLookback:       v.GetInt("signal.swing_lookback"),
			SkipITFAlignment:    v.GetBool("signal.skip_itf_alignment"),
			ForceMinimalEntry:   v.GetBool("signal.force_minimal_entry"),
			SyntheticZoneWidth:  v.GetFloat64("signal.synthetic_zone_width"),
			RequireLTFBOS:       v.GetBool("signal.require_ltf_bos"),
			MinITFBOSCount:      v.GetInt("signal.min_itf_bos_count"),
			MinTrendStrength:    v.GetFloat64("signal.min_trend_strength"),
			MinVolatilityRatio:  v.GetFloat64("signal.min_volatility_ratio"),
			RewardRatio:         v.GetFloat64("signal.reward_ratio"),
			SLBufferOverride:    v.GetFloat64("signal.sl_poi_buffer"),
			RetracementMinPct:   v.GetFloat64("signal.retracement_min_pct"),
			LowAllowedSessions:  splitList(v.GetString("signal.low_allowed_sessions")),
			HighAllowedSessions: splitList(v.GetString("signal.high_allowed_sessions")),
			Debug:               v.GetBool("signal.debug"),
		},
		Execution: ExecutionConfig{
			AccountsPath:           v.GetString("execution.accounts_path"),
			StrategyID:             v.GetString("execution.strategy_id"),
			CheckMarketHours:       v.GetBool("execution.check_market_hours"),
			MaxTradesPerDay:        v.GetInt("execution.max_trades_per_day"),
			CooldownMinutes:        v.GetInt("execution.cooldown_minutes"),
			SessionWindows:         splitList(v.GetString("execution.session_windows")),
			MaxSpreadPips:          v.GetFloat64("execution.max_spread_pips"),
			MaxSpreadPipsPerSymbol: ParseSpreadMap(v.GetString("execution.max_spread_pips_per_symbol")),
		},
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", "*")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.shutdown_timeout", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "smc_engine")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("signal.min_htf_candles", 50)
	v.SetDefault("signal.min_itf_candles", 50)
	v.SetDefault("signal.min_ltf_candles", 10)
	v.SetDefault("signal.use_ict_model", true)
	v.SetDefault("signal.strict_close", true)
	v.SetDefault("signal.swing_lookback", 0)
	v.SetDefault("signal.skip_itf_alignment", false)
	v.SetDefault("signal.force_minimal_entry", false)
	v.SetDefault("signal.synthetic_zone_width", 1.0)
	v.SetDefault("signal.require_ltf_bos", false)
	v.SetDefault("signal.min_itf_bos_count", 0)
	v.SetDefault("signal.min_trend_strength", 0)
	v.SetDefault("signal.min_volatility_ratio", 0)
	v.SetDefault("signal.reward_ratio", 3.0)
	v.SetDefault("signal.sl_poi_buffer", 0)
	v.SetDefault("signal.retracement_min_pct", 0)
	v.SetDefault("signal.low_allowed_sessions", "london,newyork")
	v.SetDefault("signal.high_allowed_sessions", "")
	v.SetDefault("signal.debug", false)

	v.SetDefault("execution.accounts_path", "configs/accounts.json")
	v.SetDefault("execution.strategy_id", "smc-v1")
	v.SetDefault("execution.check_market_hours", true)
	v.SetDefault("execution.max_trades_per_day", 0)
	v.SetDefault("execution.cooldown_minutes", 0)
	v.SetDefault("execution.session_windows", "")
	v.SetDefault("execution.max_spread_pips", 0)
	v.SetDefault("execution.max_spread_pips_per_symbol", "")
}

// bindEnvAliases keeps the flat environment variable names the deployment
// scripts already use.
func bindEnvAliases(v *viper.Viper) {
	aliases := map[string]string{
		"server.port":       "WEB_PORT",
		"server.host":       "WEB_HOST",
		"logging.level":     "LOG_LEVEL",
		"logging.pretty":    "LOG_PRETTY",
		"database.host":     "DB_HOST",
		"database.port":     "DB_PORT",
		"database.user":     "DB_USER",
		"database.password": "DB_PASSWORD",
		"database.name":     "DB_NAME",
		"database.sslmode":  "DB_SSLMODE",
		"redis.enabled":     "REDIS_ENABLED",
		"redis.address":     "REDIS_ADDRESS",
		"redis.password":    "REDIS_PASSWORD",
		"redis.db":          "REDIS_DB",
		"redis.pool_size":   "REDIS_POOL_SIZE",

		"signal.min_htf_candles":       "SMC_MIN_HTF_CANDLES",
		"signal.min_itf_candles":       "SMC_MIN_ITF_CANDLES",
		"signal.min_ltf_candles":       "SMC_MIN_LTF_CANDLES",
		"signal.use_ict_model":         "USE_ICT_MODEL",
		"signal.strict_close":          "SMC_STRICT_CLOSE",
		"signal.swing_lookback":        "SMC_SWING_LOOKBACK",
		"signal.skip_itf_alignment":    "SMC_SKIP_ITF_ALIGNMENT",
		"signal.force_minimal_entry":   "SMC_DEBUG_FORCE_MINIMAL_ENTRY",
		"signal.synthetic_zone_width":  "SMC_SYNTHETIC_ZONE_WIDTH",
		"signal.require_ltf_bos":       "SMC_REQUIRE_LTF_BOS",
		"signal.min_itf_bos_count":     "SMC_MIN_ITF_BOS_COUNT",
		"signal.min_trend_strength":    "SMC_MIN_TREND_STRENGTH",
		"signal.min_volatility_ratio":  "SMC_MIN_VOLATILITY_RATIO",
		"signal.reward_ratio":          "TP_R_MULT",
		"signal.sl_poi_buffer":         "SL_POI_BUFFER",
		"signal.retracement_min_pct":   "SMC_RETRACEMENT_MIN_PCT",
		"signal.low_allowed_sessions":  "SMC_LOW_ALLOWED_SESSIONS",
		"signal.high_allowed_sessions": "SMC_HIGH_ALLOWED_SESSIONS",
		"signal.debug":                 "SMC_DEBUG",

		"execution.accounts_path":              "ACCOUNTS_PATH",
		"execution.strategy_id":                "STRATEGY_ID",
		"execution.check_market_hours":         "CHECK_MARKET_HOURS",
		"execution.max_trades_per_day":         "MAX_TRADES_PER_DAY",
		"execution.cooldown_minutes":           "TRADE_COOLDOWN_MINUTES",
		"execution.session_windows":            "EXECUTION_SESSION_WINDOWS",
		"execution.max_spread_pips":            "PER_ACCOUNT_MAX_SPREAD_PIPS",
		"execution.max_spread_pips_per_symbol": "PER_ACCOUNT_MAX_SPREAD_PIPS_PER_SYMBOL",
	}
	for key, env := range aliases {
		// BindEnv only errors on an empty key list.
		_ = v.BindEnv(key, env)
	}
}

// ParseSpreadMap parses "XAUUSD:3,US30:10" into per-symbol spread ceilings.
// Malformed entries are skipped.
func ParseSpreadMap(s string) map[string]float64 {
	out := make(map[string]float64)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		val, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil || val <= 0 {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(kv[0]))] = val
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
