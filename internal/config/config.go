package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Auth      AuthConfig       `mapstructure:"auth"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Redis     RedisConfig      `mapstructure:"redis"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	Vault     VaultConfig      `mapstructure:"vault"`
	Sim       SimConfig        `mapstructure:"sim"`
	Operators []OperatorConfig `mapstructure:"operators"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	ReadOnly bool   `mapstructure:"read_only"`
	LogLevel string `mapstructure:"log_level"`
	AuditDir string `mapstructure:"audit_dir"`
}

type AuthConfig struct {
	RequireAPIKey bool    `mapstructure:"require_api_key"`
	APIKey        string  `mapstructure:"api_key"`
	Address       string  `mapstructure:"address"` // engine account of the single-operator mode
	DefaultQPS    float64 `mapstructure:"default_qps"`
	DefaultBurst  int     `mapstructure:"default_burst"`
}

type DatabaseConfig struct {
	DSN                string `mapstructure:"dsn"`
	AuditRetentionDays int    `mapstructure:"audit_retention_days"`
}

type RedisConfig struct {
	Addr                  string `mapstructure:"addr"`
	Password              string `mapstructure:"password"`
	DB                    int    `mapstructure:"db"`
	IdempotencyTTLSeconds int    `mapstructure:"idempotency_ttl_seconds"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// VaultConfig seeds the engine deployment. Amounts and addresses are strings
// so the config file stays toolchain-agnostic; parsing happens at wire-up.
type VaultConfig struct {
	Name      string `mapstructure:"name"`
	Symbol    string `mapstructure:"symbol"`
	BaseToken string `mapstructure:"base_token"`
	Account   string `mapstructure:"account"`

	Owner    string `mapstructure:"owner"`
	Curator  string `mapstructure:"curator"`
	Guardian string `mapstructure:"guardian"`

	MaxSlippage              string        `mapstructure:"max_slippage"` // ratio, e.g. "0.01"
	EpochDuration            time.Duration `mapstructure:"epoch_duration"`
	ShutdownWarmup           time.Duration `mapstructure:"shutdown_warmup"`
	ShutdownSlippageDuration time.Duration `mapstructure:"shutdown_slippage_duration"`
	DefaultTimelock          time.Duration `mapstructure:"default_timelock"`
	TimelockCap              time.Duration `mapstructure:"timelock_cap"`
}

// SimConfig wires the in-process bank, paper venues and static price table.
// This is the deployment mode the repo ships with; production integrations
// register their own executors and adapters at wire-up.
type SimConfig struct {
	SwapAccount    string  `mapstructure:"swap_account"`
	SwapHaircutBps int64   `mapstructure:"swap_haircut_bps"`
	FlashAccount   string  `mapstructure:"flash_account"`
	FundingPool    string  `mapstructure:"funding_pool"`
	FundingLLTV    string  `mapstructure:"funding_lltv"` // e.g. "0.8"

	Prices []PriceConfig `mapstructure:"prices"`
	Seeds  []SeedConfig  `mapstructure:"seeds"`
}

type PriceConfig struct {
	Token string `mapstructure:"token"`
	Price string `mapstructure:"price"` // base units per token, scaled by 1e18
}

type SeedConfig struct {
	Token   string `mapstructure:"token"`
	Account string `mapstructure:"account"`
	Amount  string `mapstructure:"amount"`
}

type OperatorConfig struct {
	ID      string  `mapstructure:"id"`
	Name    string  `mapstructure:"name"`
	APIKey  string  `mapstructure:"api_key"`
	Address string  `mapstructure:"address"`
	QPS     float64 `mapstructure:"qps"`
	Burst   int     `mapstructure:"burst"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. BOXD_SERVER_PORT
	viper.SetEnvPrefix("boxd")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_only", false)
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("server.audit_dir", "./logs")
	viper.SetDefault("auth.require_api_key", false)
	viper.SetDefault("auth.default_qps", 10)
	viper.SetDefault("auth.default_burst", 20)
	viper.SetDefault("redis.idempotency_ttl_seconds", 86400)
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("database.audit_retention_days", 30)

	viper.SetDefault("vault.name", "Box Vault")
	viper.SetDefault("vault.symbol", "BOX")
	viper.SetDefault("vault.max_slippage", "0.01")
	viper.SetDefault("vault.epoch_duration", 24*time.Hour)
	viper.SetDefault("vault.shutdown_warmup", 24*time.Hour)
	viper.SetDefault("vault.shutdown_slippage_duration", 7*24*time.Hour)
	viper.SetDefault("vault.default_timelock", 24*time.Hour)
	viper.SetDefault("vault.timelock_cap", 30*24*time.Hour)

	viper.SetDefault("sim.swap_account", "0x00000000000000000000000000000000000000A1")
	viper.SetDefault("sim.flash_account", "0x00000000000000000000000000000000000000A2")
	viper.SetDefault("sim.funding_pool", "0x00000000000000000000000000000000000000A3")
	viper.SetDefault("sim.funding_lltv", "0.8")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
