// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Signer    SignerConfig    `mapstructure:"signer"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Flashloan FlashloanConfig `mapstructure:"flashloan"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Health    HealthConfig    `mapstructure:"health"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// IsDevelopment reports whether the app runs in a development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "local"
}

// EthereumConfig holds Ethereum node configuration.
type EthereumConfig struct {
	WebSocketURL      string        `mapstructure:"websocket_url"` // optional; enables push head notifications
	HTTPURL           string        `mapstructure:"http_url"`
	ChainID           uint64        `mapstructure:"chain_id"`
	CallTimeout       time.Duration `mapstructure:"call_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	HeadPollInterval  time.Duration `mapstructure:"head_poll_interval"`
	MaxReconnects     int           `mapstructure:"max_reconnects"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
}

// SignerConfig selects where the signing key comes from.
type SignerConfig struct {
	Source   string `mapstructure:"source"` // env | secretsmanager
	EnvVar   string `mapstructure:"env_var"`
	SecretID string `mapstructure:"secret_id"`
	Region   string `mapstructure:"region"`
}

// ExecutionConfig holds submission policy.
type ExecutionConfig struct {
	TxType               string        `mapstructure:"tx_type"` // legacy | dynamic
	MaxGasPrice          string        `mapstructure:"max_gas_price"`
	DefaultTip           string        `mapstructure:"default_tip"`
	TipCacheTTL          time.Duration `mapstructure:"tip_cache_ttl"`
	MaxBroadcastAttempts int           `mapstructure:"max_broadcast_attempts"`
	InitialBackoff       time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff           time.Duration `mapstructure:"max_backoff"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	Guard                string        `mapstructure:"guard"` // memory | redis
	GuardTTL             time.Duration `mapstructure:"guard_ttl"`
}

// MaxGasPriceWei returns the gas price ceiling in wei. Nil means unbounded.
func (c *ExecutionConfig) MaxGasPriceWei() *big.Int {
	return parseWei(c.MaxGasPrice)
}

// DefaultTipWei returns the fallback priority fee in wei.
func (c *ExecutionConfig) DefaultTipWei() *big.Int {
	if v := parseWei(c.DefaultTip); v != nil {
		return v
	}
	return new(big.Int)
}

// FlashloanConfig overrides pool addresses per provider name.
type FlashloanConfig struct {
	Providers map[string]string `mapstructure:"providers"`
}

// PoolOverride returns the configured address for provider, if any.
func (c *FlashloanConfig) PoolOverride(provider string) (common.Address, bool) {
	for name, addr := range c.Providers {
		if strings.EqualFold(name, provider) && common.IsHexAddress(addr) {
			return common.HexToAddress(addr), true
		}
	}
	return common.Address{}, false
}

// RelayConfig holds private relay settings.
type RelayConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	URL        string        `mapstructure:"url"`
	AuthKeyEnv string        `mapstructure:"auth_key_env"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// RedisConfig holds the distributed guard backend settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PostgresConfig holds execution journal settings.
type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceExporter  string `mapstructure:"trace_exporter"` // zipkin | otlp-grpc | otlp-http | stdout
	TraceEndpoint  string `mapstructure:"trace_endpoint"`
	MetricExporter string `mapstructure:"metric_exporter"` // prometheus | otlp-grpc
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// HealthConfig holds health server settings.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("EXEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "EXEC_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "EXEC_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "EXEC_LOG_LEVEL", "LOG_LEVEL")

	// Ethereum
	v.BindEnv("ethereum.websocket_url", "EXEC_ETH_WS_URL", "ETH_WS_URL")
	v.BindEnv("ethereum.http_url", "EXEC_ETH_HTTP_URL", "ETH_HTTP_URL")
	v.BindEnv("ethereum.chain_id", "EXEC_ETH_CHAIN_ID", "ETH_CHAIN_ID")

	// Signer
	v.BindEnv("signer.source", "EXEC_SIGNER_SOURCE")
	v.BindEnv("signer.secret_id", "EXEC_SIGNER_SECRET_ID")
	v.BindEnv("signer.region", "EXEC_SIGNER_REGION", "AWS_REGION")

	// Execution
	v.BindEnv("execution.tx_type", "EXEC_TX_TYPE")
	v.BindEnv("execution.max_gas_price", "EXEC_MAX_GAS_PRICE")
	v.BindEnv("execution.guard", "EXEC_GUARD")

	// Relay
	v.BindEnv("relay.enabled", "EXEC_RELAY_ENABLED")
	v.BindEnv("relay.url", "EXEC_RELAY_URL", "FLASHBOTS_RELAY_URL")

	// Backends
	v.BindEnv("redis.addr", "EXEC_REDIS_ADDR", "REDIS_ADDR")
	v.BindEnv("redis.password", "EXEC_REDIS_PASSWORD", "REDIS_PASSWORD")
	v.BindEnv("postgres.enabled", "EXEC_POSTGRES_ENABLED")
	v.BindEnv("postgres.dsn", "EXEC_POSTGRES_DSN", "DATABASE_URL")

	// Telemetry
	v.BindEnv("telemetry.enabled", "EXEC_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "EXEC_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "EXEC_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.otlp_headers", "EXEC_OTEL_HEADERS", "OTEL_EXPORTER_OTLP_HEADERS")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "flashloan-executor")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Ethereum defaults
	v.SetDefault("ethereum.chain_id", 1)
	v.SetDefault("ethereum.call_timeout", "5s")
	v.SetDefault("ethereum.requests_per_second", 20)
	v.SetDefault("ethereum.burst", 5)
	v.SetDefault("ethereum.head_poll_interval", "2s")
	v.SetDefault("ethereum.max_reconnects", 0) // infinite
	v.SetDefault("ethereum.initial_backoff", "1s")
	v.SetDefault("ethereum.max_backoff", "30s")

	// Signer defaults
	v.SetDefault("signer.source", "env")
	v.SetDefault("signer.env_var", "EXECUTOR_PRIVATE_KEY")

	// Execution defaults
	v.SetDefault("execution.tx_type", "legacy")
	v.SetDefault("execution.max_gas_price", "500000000000") // 500 gwei
	v.SetDefault("execution.default_tip", "1500000000")     // 1.5 gwei
	v.SetDefault("execution.tip_cache_ttl", "12s")
	v.SetDefault("execution.max_broadcast_attempts", 5)
	v.SetDefault("execution.initial_backoff", "250ms")
	v.SetDefault("execution.max_backoff", "4s")
	v.SetDefault("execution.poll_interval", "1s")
	v.SetDefault("execution.guard", "memory")
	v.SetDefault("execution.guard_ttl", "10m")

	// Relay defaults
	v.SetDefault("relay.enabled", false)
	v.SetDefault("relay.url", "https://relay.flashbots.net")
	v.SetDefault("relay.auth_key_env", "FLASHBOTS_AUTH_KEY")
	v.SetDefault("relay.timeout", "5s")

	// Backend defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.max_conns", 4)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "flashloan-executor")
	v.SetDefault("telemetry.trace_exporter", "stdout")
	v.SetDefault("telemetry.metric_exporter", "prometheus")
	v.SetDefault("telemetry.prometheus_port", 9090)

	// Health defaults
	v.SetDefault("health.enabled", false)
	v.SetDefault("health.port", 8081)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Ethereum.HTTPURL == "" {
		return fmt.Errorf("ethereum.http_url is required")
	}
	if c.Ethereum.ChainID == 0 {
		return fmt.Errorf("ethereum.chain_id is required")
	}
	if c.Ethereum.CallTimeout <= 0 {
		return fmt.Errorf("ethereum.call_timeout must be positive")
	}

	switch c.Signer.Source {
	case "env":
		if c.Signer.EnvVar == "" {
			return fmt.Errorf("signer.env_var is required for env source")
		}
	case "secretsmanager":
		if c.Signer.SecretID == "" {
			return fmt.Errorf("signer.secret_id is required for secretsmanager source")
		}
	default:
		return fmt.Errorf("invalid signer.source: %q", c.Signer.Source)
	}

	switch c.Execution.TxType {
	case "legacy", "dynamic":
	default:
		return fmt.Errorf("invalid execution.tx_type: %q", c.Execution.TxType)
	}
	if c.Execution.MaxGasPrice != "" && parseWei(c.Execution.MaxGasPrice) == nil {
		return fmt.Errorf("invalid execution.max_gas_price: %q", c.Execution.MaxGasPrice)
	}
	if c.Execution.DefaultTip != "" && parseWei(c.Execution.DefaultTip) == nil {
		return fmt.Errorf("invalid execution.default_tip: %q", c.Execution.DefaultTip)
	}
	if c.Execution.MaxBroadcastAttempts < 1 {
		return fmt.Errorf("execution.max_broadcast_attempts must be at least 1")
	}
	if c.Execution.PollInterval <= 0 {
		return fmt.Errorf("execution.poll_interval must be positive")
	}

	switch c.Execution.Guard {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for redis guard")
		}
	default:
		return fmt.Errorf("invalid execution.guard: %q", c.Execution.Guard)
	}

	for name, addr := range c.Flashloan.Providers {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid flashloan.providers.%s: %s", name, addr)
		}
	}

	if c.Relay.Enabled && c.Relay.URL == "" {
		return fmt.Errorf("relay.url is required when relay is enabled")
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when postgres is enabled")
	}

	return nil
}

func parseWei(s string) *big.Int {
	if s == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil
	}
	return v
}
