package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/mvasquez/taskpool/internal/dispatch"
	"github.com/mvasquez/taskpool/internal/worker"
)

// Config is the dispatcher process's full configuration tree, loaded
// from an optional YAML file layered under environment variables.
type Config struct {
	Server    AdminServerConfig
	Telemetry TelemetryConfig
	Dispatcher DispatcherDefaults
	Metrics   MetricsConfig
	Auth      AuthConfig
	LogLevel  string
}

// AdminServerConfig configures the admin HTTP/WebSocket server that
// exposes the Dispatcher's Stats, Options and live event stream.
type AdminServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimitRPS int
}

// TelemetryConfig configures the optional, best-effort Redis Pub/Sub
// mirror of dispatcher lifecycle events. It is never consulted to
// recover dispatcher state; disabling it changes nothing about dispatch.
type TelemetryConfig struct {
	Enabled      bool
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DispatcherDefaults seeds a dispatch.Options at process start. Runtime
// tuning afterward goes through Dispatcher.SetOption, not this struct.
type DispatcherDefaults struct {
	PoolSizeMin       int
	PoolSizeMax       int
	TaskTimeout       time.Duration
	ExecLimit         int
	ThreadFlags       uint32
	IdleWorkerTimeout time.Duration
}

// ToOptions converts the loaded defaults into a dispatch.Options, the
// form the Dispatcher actually consumes.
func (d DispatcherDefaults) ToOptions() dispatch.Options {
	return dispatch.Options{
		PoolSizeMin:       d.PoolSizeMin,
		PoolSizeMax:       d.PoolSizeMax,
		TaskTimeout:       d.TaskTimeout,
		ExecLimit:         d.ExecLimit,
		ThreadFlags:       worker.ThreadFlags(d.ThreadFlags),
		IdleWorkerTimeout: d.IdleWorkerTimeout,
	}
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	APIKeys   []string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/dispatcher")

	setDefaults()

	viper.SetEnvPrefix("DISPATCHER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	// Admin server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.readtimeout", 10*time.Second)
	viper.SetDefault("server.writetimeout", 10*time.Second)
	viper.SetDefault("server.idletimeout", 120*time.Second)
	viper.SetDefault("server.ratelimitrps", 0)

	// Telemetry (Redis mirror) defaults
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.addr", "localhost:6379")
	viper.SetDefault("telemetry.password", "")
	viper.SetDefault("telemetry.db", 0)
	viper.SetDefault("telemetry.poolsize", 20)
	viper.SetDefault("telemetry.minidleconns", 5)
	viper.SetDefault("telemetry.maxretries", 3)
	viper.SetDefault("telemetry.dialtimeout", 5*time.Second)
	viper.SetDefault("telemetry.readtimeout", 3*time.Second)
	viper.SetDefault("telemetry.writetimeout", 3*time.Second)

	// Dispatcher pool defaults, matching dispatch.DefaultOptions exactly
	viper.SetDefault("dispatcher.poolsizemin", 1)
	viper.SetDefault("dispatcher.poolsizemax", 8)
	viper.SetDefault("dispatcher.tasktimeout", 30*time.Second)
	viper.SetDefault("dispatcher.execlimit", 1024)
	viper.SetDefault("dispatcher.threadflags", 0)
	viper.SetDefault("dispatcher.idleworkertimeout", 10*time.Second)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Auth defaults
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.jwtsecret", "")
	viper.SetDefault("auth.apikeys", []string{})

	// Logging defaults
	viper.SetDefault("loglevel", "info")
}
