package config

import (
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Auth       AuthConfig       `yaml:"auth"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Artifacts  ArtifactConfig   `yaml:"artifacts"`
	Routing    RoutingConfig    `yaml:"routing"`
	Memory     MemoryConfig     `yaml:"memory"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + strconv.Itoa(d.Port) + "/" + d.Name + "?sslmode=disable"
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
	DebugTrace bool   `yaml:"debug_trace"`
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

type RateLimitConfig struct {
	Enabled    bool `yaml:"enabled"`
	DefaultRPM int  `yaml:"default_rpm"`
}

// UpstreamConfig points at the OpenAI-compatible endpoint used for fast-path
// completions, classifier verification, and memory extraction.
type UpstreamConfig struct {
	BaseURL       string            `yaml:"base_url"`
	APIKey        string            `yaml:"api_key"`
	Timeout       time.Duration     `yaml:"timeout"`
	MaxConcurrent int               `yaml:"max_concurrent"`
	Headers       map[string]string `yaml:"headers,omitempty"`
}

type ClassifierConfig struct {
	VerifyModel   string        `yaml:"verify_model"`
	VerifyTimeout time.Duration `yaml:"verify_timeout"`
	// ExtraKeywords extends the built-in complexity vocabulary.
	ExtraKeywords []string      `yaml:"extra_keywords"`
	CacheEnabled  bool          `yaml:"cache_enabled"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

type SandboxConfig struct {
	ProvisionerURL string        `yaml:"provisioner_url"`
	APIKey         string        `yaml:"api_key"`
	// Timeout is the hard session deadline. Elapsing it force-terminates
	// the sandbox regardless of in-flight work.
	Timeout      time.Duration        `yaml:"timeout"`
	PoolSize     int                  `yaml:"pool_size"`
	AcquireWait  time.Duration        `yaml:"acquire_wait"`
	MaxRetries   int                  `yaml:"max_retries"`
	RetryBackoff time.Duration        `yaml:"retry_backoff"`
	Breaker      CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

type ArtifactConfig struct {
	Root          string        `yaml:"root"`
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// BaseURL prefixes resolvable artifact URLs, e.g. "https://gw.example.com".
	BaseURL string `yaml:"base_url"`
}

type RoutingConfig struct {
	// AlwaysAgent overrides the classifier and sends everything down the
	// agent path.
	AlwaysAgent       bool          `yaml:"always_agent"`
	PolicyEnabled     bool          `yaml:"policy_enabled"`
	PolicyPath        string        `yaml:"policy_path"`
	PolicyTimeout     time.Duration `yaml:"policy_timeout"`
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval"`
}

type MemoryConfig struct {
	Enabled bool          `yaml:"enabled"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     0, // streaming responses manage their own lifetime
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "janus",
			User:            "janus",
			MaxOpenConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
		Auth: AuthConfig{Enabled: false},
		RateLimit: RateLimitConfig{
			Enabled:    true,
			DefaultRPM: 60,
		},
		Upstream: UpstreamConfig{
			BaseURL:       "https://api.openai.com/v1",
			Timeout:       120 * time.Second,
			MaxConcurrent: 64,
		},
		Classifier: ClassifierConfig{
			VerifyModel:   "gpt-4o-mini",
			VerifyTimeout: 3 * time.Second,
			CacheEnabled:  true,
			CacheTTL:      10 * time.Minute,
		},
		Sandbox: SandboxConfig{
			ProvisionerURL: "http://localhost:9300",
			Timeout:        10 * time.Minute,
			PoolSize:       16,
			AcquireWait:    5 * time.Second,
			MaxRetries:     3,
			RetryBackoff:   250 * time.Millisecond,
			Breaker: CircuitBreakerConfig{
				FailureThreshold:      5,
				RecoveryProbeInterval: 15 * time.Second,
			},
		},
		Artifacts: ArtifactConfig{
			Root:          "/var/lib/janus/artifacts",
			TTL:           24 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Routing: RoutingConfig{
			AlwaysAgent:       false,
			PolicyEnabled:     false,
			PolicyPath:        "policies",
			PolicyTimeout:     100 * time.Millisecond,
			KeepAliveInterval: 15 * time.Second,
		},
		Memory: MemoryConfig{
			Enabled: true,
			Model:   "gpt-4o-mini",
			Timeout: 20 * time.Second,
		},
	}
}
