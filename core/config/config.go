// Package config loads the process configuration from YAML with FIBER_*
// environment overrides, and watches the file for changes that can be
// applied at runtime.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codewandler/clstr-fiber/core/entity"
	"github.com/codewandler/clstr-fiber/core/fiber"
	"github.com/codewandler/clstr-fiber/core/rpc"
)

const EnvPrefix = "FIBER_"

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Process   ProcessConfig   `yaml:"process"`
	Fiber     FiberConfig     `yaml:"fiber"`
	Transport TransportConfig `yaml:"transport"`
	Location  LocationConfig  `yaml:"location"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type ProcessConfig struct {
	ID            int32 `yaml:"id"`
	MaxInboxDepth int   `yaml:"max_inbox_depth"`
}

type FiberConfig struct {
	Count           int           `yaml:"count"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	BatchSize       int           `yaml:"batch_size"`
	LockWaitTimeout time.Duration `yaml:"lock_wait_timeout"`
}

type TransportConfig struct {
	// Kind is one of memory, nats, grpc.
	Kind string     `yaml:"kind"`
	NATS NATSConfig `yaml:"nats"`
	GRPC GRPCConfig `yaml:"grpc"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	// Routes lists the process ids that exist; empty accepts any.
	Routes []int32 `yaml:"routes"`
}

type GRPCConfig struct {
	Listen string           `yaml:"listen"`
	Peers  map[int32]string `yaml:"peers"`
}

type LocationConfig struct {
	// Bucket is the NATS KV bucket; without NATS locations stay in memory.
	Bucket string        `yaml:"bucket"`
	TTL    time.Duration `yaml:"ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	// Listen serves /metrics when set.
	Listen string `yaml:"listen"`
}

func Default() *Config {
	return &Config{
		Process: ProcessConfig{ID: 1},
		Fiber: FiberConfig{
			Count:          4,
			RequestTimeout: rpc.DefaultTimeout,
			SweepInterval:  rpc.DefaultSweepInterval,
			BatchSize:      fiber.DefaultBatchSize,
		},
		Transport: TransportConfig{
			Kind: "memory",
			NATS: NATSConfig{URL: "nats://127.0.0.1:4222", SubjectPrefix: "clstr.fiber"},
			GRPC: GRPCConfig{Listen: ":7400"},
		},
		Location: LocationConfig{Bucket: "clstr-fiber-locations", TTL: 5 * time.Minute},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path uses the defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without looking at the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, set func(int64)) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			n, err := strconv.ParseInt(v, 10, 32)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			set(n)
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	num("PROCESS_ID", func(n int64) { c.Process.ID = int32(n) })
	num("FIBER_COUNT", func(n int64) { c.Fiber.Count = int(n) })
	num("BATCH_SIZE", func(n int64) { c.Fiber.BatchSize = int(n) })
	dur("REQUEST_TIMEOUT", &c.Fiber.RequestTimeout)
	dur("SWEEP_INTERVAL", &c.Fiber.SweepInterval)
	str("TRANSPORT", &c.Transport.Kind)
	str("NATS_URL", &c.Transport.NATS.URL)
	str("GRPC_LISTEN", &c.Transport.GRPC.Listen)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("METRICS_LISTEN", &c.Metrics.Listen)
	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Process.ID <= 0 || c.Process.ID > entity.MaxProcessID {
		errs = append(errs, fmt.Errorf("process.id must be in 1..%d, got %d", entity.MaxProcessID, c.Process.ID))
	}
	if c.Fiber.Count <= 0 {
		errs = append(errs, fmt.Errorf("fiber.count must be positive, got %d", c.Fiber.Count))
	}
	if c.Fiber.RequestTimeout <= 0 || c.Fiber.SweepInterval <= 0 {
		errs = append(errs, errors.New("fiber.request_timeout and fiber.sweep_interval must be positive"))
	} else if c.Fiber.SweepInterval >= c.Fiber.RequestTimeout {
		errs = append(errs, fmt.Errorf("fiber.sweep_interval %s must be below fiber.request_timeout %s",
			c.Fiber.SweepInterval, c.Fiber.RequestTimeout))
	}
	if c.Fiber.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("fiber.batch_size must be positive, got %d", c.Fiber.BatchSize))
	}
	switch c.Transport.Kind {
	case "memory", "nats", "grpc":
	default:
		errs = append(errs, fmt.Errorf("transport.kind %q is not one of memory, nats, grpc", c.Transport.Kind))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// FiberOptions converts the fiber section for fiber.ProcessOptions.
func (c *Config) FiberOptions() fiber.Options {
	return fiber.Options{
		RequestTimeout:  c.Fiber.RequestTimeout,
		SweepInterval:   c.Fiber.SweepInterval,
		BatchSize:       c.Fiber.BatchSize,
		LockWaitTimeout: c.Fiber.LockWaitTimeout,
	}
}

// Logger builds the process logger writing to w. The level is read from
// level, which is set to the configured one; pass nil when it never changes.
func (c LogConfig) Logger(w io.Writer, level *slog.LevelVar) *slog.Logger {
	if level == nil {
		level = new(slog.LevelVar)
	}
	level.Set(c.SlogLevel())
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SlogLevel is the configured level, info if it does not parse.
func (c LogConfig) SlogLevel() slog.Level {
	l, err := parseLevel(c.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return l, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}
