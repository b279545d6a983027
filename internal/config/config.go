package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"binwatch/internal/models"
)

// Config holds runtime configuration for the service and the simulator.
type Config struct {
	LogLevel string

	Server    ServerConfig
	Storage   StorageConfig
	Alert     AlertConfig
	Twilio    TwilioConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Simulator SimulatorConfig
}

// ServerConfig controls the HTTP listener and pages
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// Zone used to render timestamps on the history page
	DisplayTimezone string
	// Cron spec for the periodic stats log line
	StatsSchedule string
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// StorageConfig selects the relational backend
type StorageConfig struct {
	// sqlite3 or postgres
	Driver string
	// DSN for postgres; file path for sqlite3
	DSN      string
	MaxConns int
	MaxIdle  int
}

// AlertConfig holds the alert rule parameters
type AlertConfig struct {
	Threshold int
	Cooldown  time.Duration
}

// TwilioConfig holds SMS provider credentials. Any empty field disables sending.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
	BaseURL    string
	Timeout    time.Duration
}

// RedisConfig enables the settings cache when Addr is set
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Enabled reports whether a redis address was configured
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// KafkaConfig enables the bin event stream when brokers are set
type KafkaConfig struct {
	Brokers   []string
	Topic     string
	QueueSize int
	Workers   int
	Producer  ProducerConfig
}

// Enabled reports whether any broker was configured
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// ProducerConfig tunes the kafka writers
type ProducerConfig struct {
	PoolSize     int
	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	RequiredAcks int
	Compression  string
	MaxRetries   int
	RetryBackoff time.Duration
}

// SimulatorConfig drives the level simulator
type SimulatorConfig struct {
	APIBase       string
	PollInterval  time.Duration
	TickInterval  time.Duration
	PostTimeout   time.Duration
	ConfigTimeout time.Duration
	Intervals     []BinInterval
	// 0 seeds from the clock
	Seed int64
}

// BinInterval is the posting period of one simulated bin
type BinInterval struct {
	Bin      models.BinName
	Interval time.Duration
}

const defaultIntervals = "yellow=6s,green=7s,blue=8s"

// Default returns the built-in configuration without reading the environment.
func Default() *Config {
	cfg, err := fromViper(newViper())
	if err != nil {
		// defaults are static; failing here is a programming error
		panic(err)
	}
	return cfg
}

// Load reads an optional .env file and the process environment on top of the defaults.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := newViper()
	v.AutomaticEnv()
	return fromViper(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("PORT", 5000)
	v.SetDefault("READ_TIMEOUT", 10*time.Second)
	v.SetDefault("WRITE_TIMEOUT", 10*time.Second)
	v.SetDefault("IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("DISPLAY_TIMEZONE", "Asia/Kolkata")
	v.SetDefault("STATS_SCHEDULE", "@every 30s")

	v.SetDefault("DB_DRIVER", "sqlite3")
	v.SetDefault("DATABASE_FILE", "bins.db")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE", 5)

	v.SetDefault("ALERT_THRESHOLD", 80)
	v.SetDefault("ALERT_COOLDOWN_SECONDS", 60)

	v.SetDefault("TWILIO_ACCOUNT_SID", "")
	v.SetDefault("TWILIO_AUTH_TOKEN", "")
	v.SetDefault("TWILIO_PHONE_NUMBER", "")
	v.SetDefault("YOUR_PHONE_NUMBER", "")
	v.SetDefault("TWILIO_BASE_URL", "https://api.twilio.com")
	v.SetDefault("TWILIO_TIMEOUT", 10*time.Second)

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SETTINGS_CACHE_TTL", 30*time.Second)

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "bin-events")
	v.SetDefault("KAFKA_QUEUE_SIZE", 1000)
	v.SetDefault("KAFKA_WORKERS", 2)
	v.SetDefault("KAFKA_BATCH_SIZE", 100)
	v.SetDefault("KAFKA_BATCH_TIMEOUT", 100*time.Millisecond)
	v.SetDefault("KAFKA_WRITE_TIMEOUT", 10*time.Second)
	v.SetDefault("KAFKA_REQUIRED_ACKS", 1)
	v.SetDefault("KAFKA_COMPRESSION", "snappy")
	v.SetDefault("KAFKA_MAX_RETRIES", 3)
	v.SetDefault("KAFKA_RETRY_BACKOFF", 100*time.Millisecond)

	v.SetDefault("SIM_API_BASE", "http://127.0.0.1:5000")
	v.SetDefault("SIM_POLL_INTERVAL", 4*time.Second)
	v.SetDefault("SIM_TICK_INTERVAL", time.Second)
	v.SetDefault("SIM_POST_TIMEOUT", 6*time.Second)
	v.SetDefault("SIM_CONFIG_TIMEOUT", 3*time.Second)
	v.SetDefault("SIM_INTERVALS", defaultIntervals)
	v.SetDefault("SIM_SEED", 0)

	return v
}

func fromViper(v *viper.Viper) (*Config, error) {
	intervals, err := ParseIntervals(v.GetString("SIM_INTERVALS"))
	if err != nil {
		return nil, fmt.Errorf("SIM_INTERVALS: %w", err)
	}

	r := &reader{v: v}

	driver := v.GetString("DB_DRIVER")
	dsn := v.GetString("DATABASE_FILE")
	if driver == "postgres" {
		dsn = v.GetString("DATABASE_URL")
	}

	cfg := &Config{
		LogLevel: v.GetString("LOG_LEVEL"),
		Server: ServerConfig{
			Port:            r.int("PORT"),
			ReadTimeout:     r.duration("READ_TIMEOUT"),
			WriteTimeout:    r.duration("WRITE_TIMEOUT"),
			IdleTimeout:     r.duration("IDLE_TIMEOUT"),
			ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT"),
			DisplayTimezone: v.GetString("DISPLAY_TIMEZONE"),
			StatsSchedule:   v.GetString("STATS_SCHEDULE"),
		},
		Storage: StorageConfig{
			Driver:   driver,
			DSN:      dsn,
			MaxConns: r.int("DB_MAX_CONNS"),
			MaxIdle:  r.int("DB_MAX_IDLE"),
		},
		Alert: AlertConfig{
			Threshold: r.int("ALERT_THRESHOLD"),
			Cooldown:  time.Duration(r.int("ALERT_COOLDOWN_SECONDS")) * time.Second,
		},
		Twilio: TwilioConfig{
			AccountSID: v.GetString("TWILIO_ACCOUNT_SID"),
			AuthToken:  v.GetString("TWILIO_AUTH_TOKEN"),
			From:       v.GetString("TWILIO_PHONE_NUMBER"),
			To:         v.GetString("YOUR_PHONE_NUMBER"),
			BaseURL:    v.GetString("TWILIO_BASE_URL"),
			Timeout:    r.duration("TWILIO_TIMEOUT"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       r.int("REDIS_DB"),
			TTL:      r.duration("SETTINGS_CACHE_TTL"),
		},
		Kafka: KafkaConfig{
			Brokers:   splitList(v.GetString("KAFKA_BROKERS")),
			Topic:     v.GetString("KAFKA_TOPIC"),
			QueueSize: r.int("KAFKA_QUEUE_SIZE"),
			Workers:   r.int("KAFKA_WORKERS"),
			Producer: ProducerConfig{
				PoolSize:     r.int("KAFKA_WORKERS"),
				BatchSize:    r.int("KAFKA_BATCH_SIZE"),
				BatchTimeout: r.duration("KAFKA_BATCH_TIMEOUT"),
				WriteTimeout: r.duration("KAFKA_WRITE_TIMEOUT"),
				RequiredAcks: r.int("KAFKA_REQUIRED_ACKS"),
				Compression:  v.GetString("KAFKA_COMPRESSION"),
				MaxRetries:   r.int("KAFKA_MAX_RETRIES"),
				RetryBackoff: r.duration("KAFKA_RETRY_BACKOFF"),
			},
		},
		Simulator: SimulatorConfig{
			APIBase:       strings.TrimRight(v.GetString("SIM_API_BASE"), "/"),
			PollInterval:  r.duration("SIM_POLL_INTERVAL"),
			TickInterval:  r.duration("SIM_TICK_INTERVAL"),
			PostTimeout:   r.duration("SIM_POST_TIMEOUT"),
			ConfigTimeout: r.duration("SIM_CONFIG_TIMEOUT"),
			Intervals:     intervals,
			Seed:          r.int64("SIM_SEED"),
		},
	}

	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}

	if cfg.Alert.Cooldown < 0 {
		return nil, fmt.Errorf("ALERT_COOLDOWN_SECONDS must not be negative")
	}
	if cfg.Storage.Driver != "sqlite3" && cfg.Storage.Driver != "postgres" {
		return nil, fmt.Errorf("DB_DRIVER: unsupported driver %q", cfg.Storage.Driver)
	}

	return cfg, nil
}

// reader converts raw viper values and collects conversion errors
type reader struct {
	v    *viper.Viper
	errs []error
}

func (r *reader) int(key string) int {
	n, err := cast.ToIntE(r.v.Get(key))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: expected an integer, got %q", key, r.v.GetString(key)))
	}
	return n
}

func (r *reader) int64(key string) int64 {
	n, err := cast.ToInt64E(r.v.Get(key))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: expected an integer, got %q", key, r.v.GetString(key)))
	}
	return n
}

// duration requires a unit on string values ("4s", not "4")
func (r *reader) duration(key string) time.Duration {
	raw := r.v.Get(key)
	if str, ok := raw.(string); ok {
		d, err := time.ParseDuration(strings.TrimSpace(str))
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}

	d, err := cast.ToDurationE(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
	}
	return d
}

// ParseIntervals parses "yellow=6s,green=7s" into per-bin intervals
func ParseIntervals(raw string) ([]BinInterval, error) {
	var out []BinInterval
	seen := make(map[models.BinName]bool)

	for _, part := range splitList(raw) {
		name, dur, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("expected bin=duration, got %q", part)
		}

		bin, err := models.ParseBinName(strings.TrimSpace(name))
		if err != nil {
			return nil, fmt.Errorf("%q: %w", name, err)
		}
		if seen[bin] {
			return nil, fmt.Errorf("duplicate bin %q", bin)
		}

		d, err := time.ParseDuration(strings.TrimSpace(dur))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", bin, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("%s: interval must be positive", bin)
		}

		seen[bin] = true
		out = append(out, BinInterval{Bin: bin, Interval: d})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no bins configured")
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
