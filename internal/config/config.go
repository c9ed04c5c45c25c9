package config

import (
	"net/url"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Scrub     ScrubConfig     `yaml:"scrub"`
	Filter    FilterConfig    `yaml:"filter"`
	Routing   RoutingConfig   `yaml:"routing"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Ledger    LedgerConfig    `yaml:"ledger"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	GRPCHealthPort   int           `yaml:"grpc_health_port"`
	CORSOrigin       string        `yaml:"cors_origin"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// DatabaseConfig selects the storage backend. Driver is "postgres" or "sqlite";
// for sqlite only Path is used.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	URL             string        `yaml:"url"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslmode"`
	Path            string        `yaml:"path"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN returns URL when set, otherwise a postgres URL built from the parts.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + strconv.Itoa(d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + sslmode,
	}
	return u.String()
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string                  `yaml:"log_level"`
	LogFormat   string                  `yaml:"log_format"`
	MetricsPort int                     `yaml:"metrics_port"`
	Instance    InstanceTelemetryConfig `yaml:"instance"`
}

// InstanceTelemetryConfig controls the opt-in, instance-level usage report.
type InstanceTelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Schedule string `yaml:"schedule"`
	IDPath   string `yaml:"id_path"`
}

type ScrubConfig struct {
	Layers ScrubLayers `yaml:"layers"`
}

// ScrubLayers toggles redaction phases by category.
type ScrubLayers struct {
	Identity  bool `yaml:"identity"`
	Crypto    bool `yaml:"crypto"`
	Financial bool `yaml:"financial"`
	Medical   bool `yaml:"medical"`
}

// Enabled reports whether the named category is on. Unknown categories are on.
func (l ScrubLayers) Enabled(category string) bool {
	switch category {
	case "identity":
		return l.Identity
	case "crypto":
		return l.Crypto
	case "financial":
		return l.Financial
	case "medical":
		return l.Medical
	default:
		return true
	}
}

type FilterConfig struct {
	Secrets   SecretsFilterConfig   `yaml:"secrets"`
	Injection InjectionFilterConfig `yaml:"injection"`
	Policy    PolicyFilterConfig    `yaml:"policy"`
}

// SecretsFilterConfig configures the credential scanner. Action is "flag" or "block".
type SecretsFilterConfig struct {
	Enabled bool   `yaml:"enabled"`
	Action  string `yaml:"action"`
}

type InjectionFilterConfig struct {
	Enabled        bool    `yaml:"enabled"`
	BlockThreshold float64 `yaml:"block_threshold"`
	FlagThreshold  float64 `yaml:"flag_threshold"`
}

type PolicyFilterConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

type RoutingConfig struct {
	// DefaultModel short-circuits "auto" resolution when it names an enabled model.
	DefaultModel   string               `yaml:"default_model"`
	DefaultTimeout time.Duration        `yaml:"default_timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

// CatalogConfig selects where model rows come from: "database" or "config" (models.yaml).
type CatalogConfig struct {
	Source string `yaml:"source"`
}

// LedgerConfig bounds usage writes, which run detached from the client request.
type LedgerConfig struct {
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8000,
			GRPCHealthPort:   0,
			CORSOrigin:       "*",
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            5432,
			Name:            "quieter",
			User:            "quieter",
			SSLMode:         "disable",
			Path:            "data/quieter.db",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
			Instance: InstanceTelemetryConfig{
				Enabled:  false,
				Endpoint: "https://telemetry.quieter.ai/v1/instance",
				Schedule: "@daily",
				IDPath:   ".quieter_instance_id",
			},
		},
		Scrub: ScrubConfig{
			Layers: ScrubLayers{
				Identity:  true,
				Crypto:    true,
				Financial: true,
				Medical:   true,
			},
		},
		Filter: FilterConfig{
			Secrets: SecretsFilterConfig{Enabled: true, Action: "flag"},
			Injection: InjectionFilterConfig{
				Enabled:        false,
				BlockThreshold: 0.9,
				FlagThreshold:  0.7,
			},
			Policy: PolicyFilterConfig{
				Enabled:           false,
				BundlePath:        "/etc/quieter/policies",
				EvaluationTimeout: 100 * time.Millisecond,
			},
		},
		Routing: RoutingConfig{
			DefaultTimeout: 60 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:      5,
				RecoveryProbeInterval: 15 * time.Second,
			},
		},
		Catalog: CatalogConfig{Source: "database"},
		Ledger: LedgerConfig{
			WriteTimeout: 5 * time.Second,
		},
	}
}
