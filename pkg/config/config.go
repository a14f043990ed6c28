package config

import "time"

type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Station       StationConfig       `mapstructure:"station"`
	Operator      OperatorConfig      `mapstructure:"operator"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	NATS          NATSConfig          `mapstructure:"nats"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	OpenTelemetry OpenTelemetryConfig `mapstructure:"opentelemetry"`
	Prometheus    PrometheusConfig    `mapstructure:"prometheus"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// StationConfig governs the net/http+gorilla/websocket listener that
// charge points connect to (component C).
type StationConfig struct {
	Port              int           `mapstructure:"port"`
	AuthPassword      string        `mapstructure:"auth_password"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ClientTimeout     time.Duration `mapstructure:"client_timeout"`
	TimeOffset        time.Duration `mapstructure:"time_offset"`
}

// OperatorConfig governs the gofiber+gofiber/websocket app operators
// (browsers) connect to (component D), plus the login allow-list
// component G checks against.
type OperatorConfig struct {
	Port              int           `mapstructure:"port"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	AllowList         []string      `mapstructure:"allow_list"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ClientTimeout     time.Duration `mapstructure:"client_timeout"`
	LogBaseURL        string        `mapstructure:"log_base_url"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig locates the log store's SQLite file and extraction
// directory (component F).
type DatabaseConfig struct {
	Path   string `mapstructure:"path"`
	LogDir string `mapstructure:"log_dir"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// JWTConfig signs the operator's session cookie (component G).
type JWTConfig struct {
	Secret          string        `mapstructure:"secret"`
	Issuer          string        `mapstructure:"issuer"`
	SessionDuration time.Duration `mapstructure:"session_duration"`
}

type OpenTelemetryConfig struct {
	Enabled     bool              `mapstructure:"enabled"`
	Jaeger      JaegerConfig      `mapstructure:"jaeger"`
	ServiceName string            `mapstructure:"service_name"`
	Attributes  map[string]string `mapstructure:"attributes"`
}

type JaegerConfig struct {
	Endpoint     string  `mapstructure:"endpoint"`
	SamplerType  string  `mapstructure:"sampler_type"`
	SamplerParam float64 `mapstructure:"sampler_param"`
}

type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level    string          `mapstructure:"level"`
	Format   string          `mapstructure:"format"`
	Output   string          `mapstructure:"output"`
	Sampling LoggingSampling `mapstructure:"sampling"`
}

type LoggingSampling struct {
	Enabled    bool `mapstructure:"enabled"`
	Initial    int  `mapstructure:"initial"`
	Thereafter int  `mapstructure:"thereafter"`
}

// CircuitBreakerConfig is loaded from the circuit_breaker section. The log
// store's append breaker (component F) does not read it; that breaker uses
// fixed settings set in logstore.Open.
type CircuitBreakerConfig struct {
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}
