// Package config loads and validates probe configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/idprobe/internal/probe"
	"github.com/JakeFAU/idprobe/internal/sink/file"
	"github.com/JakeFAU/idprobe/internal/sink/pubsub"
)

// EnvPrefix prefixes every environment override, e.g. IDPROBE_PROBE_CONCURRENCY.
const EnvPrefix = "IDPROBE"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Probe   ProbeConfig   `mapstructure:"probe"`
	Output  file.Config   `mapstructure:"output"`
	PubSub  pubsub.Config `mapstructure:"pubsub"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ProbeConfig governs the identifier ranges, the in-flight window and the
// per-request courtesy behavior.
type ProbeConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	InnerStart        int           `mapstructure:"inner_start"`
	InnerEnd          int           `mapstructure:"inner_end"`
	OuterEnd          int           `mapstructure:"outer_end"`
	InnerToken        string        `mapstructure:"inner_token"`
	OuterToken        string        `mapstructure:"outer_token"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	JitterMin         time.Duration `mapstructure:"jitter_min"`
	JitterMax         time.Duration `mapstructure:"jitter_max"`
	UserAgents        []string      `mapstructure:"user_agents"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
}

// MetricsConfig controls the operational HTTP endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features. Level overrides the
// default minimum level (debug in development, info otherwise).
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"concurrency":  "probe.concurrency",
	"inner-start":  "probe.inner_start",
	"inner-end":    "probe.inner_end",
	"outer-end":    "probe.outer_end",
	"output":       "output.path",
	"metrics-addr": "metrics.addr",
	"development":  "logging.development",
	"log-level":    "logging.level",
}

// Load builds a Config from defaults, an optional file, the environment and
// any flags in flags that were set explicitly.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("probe.concurrency", 5)
	v.SetDefault("probe.inner_start", 10000)
	v.SetDefault("probe.inner_end", 80000)
	v.SetDefault("probe.outer_end", 300)
	v.SetDefault("probe.inner_token", probe.DefaultInnerToken)
	v.SetDefault("probe.outer_token", probe.DefaultOuterToken)
	v.SetDefault("probe.request_timeout", 5*time.Second)
	v.SetDefault("probe.max_retries", 3)
	v.SetDefault("probe.backoff_base", 15*time.Second)
	v.SetDefault("probe.jitter_min", 100*time.Millisecond)
	v.SetDefault("probe.jitter_max", 500*time.Millisecond)
	v.SetDefault("probe.user_agents", probe.DefaultUserAgents)
	v.SetDefault("probe.requests_per_second", 0)
	v.SetDefault("probe.burst", 1)
	v.SetDefault("probe.respect_robots", false)
	v.SetDefault("output.path", file.DefaultPath)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	p := c.Probe
	switch {
	case p.Concurrency <= 0:
		return errors.New("probe.concurrency must be > 0")
	case p.InnerStart < 0:
		return errors.New("probe.inner_start must be >= 0")
	case p.InnerEnd < p.InnerStart:
		return fmt.Errorf("probe.inner_end (%d) must be >= probe.inner_start (%d)", p.InnerEnd, p.InnerStart)
	case p.OuterEnd < 1:
		return errors.New("probe.outer_end must be >= 1")
	case strings.TrimSpace(p.InnerToken) == "" || strings.TrimSpace(p.OuterToken) == "":
		return errors.New("probe.inner_token and probe.outer_token are required")
	case p.InnerToken == p.OuterToken:
		return errors.New("probe.inner_token and probe.outer_token must differ")
	case p.RequestTimeout <= 0:
		return errors.New("probe.request_timeout must be > 0")
	case p.MaxRetries < 0:
		return errors.New("probe.max_retries must be >= 0")
	case p.BackoffBase < 0:
		return errors.New("probe.backoff_base must be >= 0")
	case p.JitterMin < 0 || p.JitterMax < p.JitterMin:
		return errors.New("probe jitter range must satisfy 0 <= jitter_min <= jitter_max")
	case p.RequestsPerSecond < 0:
		return errors.New("probe.requests_per_second must be >= 0")
	case p.Burst < 0:
		return errors.New("probe.burst must be >= 0")
	case strings.TrimSpace(c.Output.Path) == "":
		return errors.New("output.path is required")
	}
	hasProject := strings.TrimSpace(c.PubSub.ProjectID) != ""
	hasTopic := strings.TrimSpace(c.PubSub.TopicName) != ""
	if hasProject != hasTopic {
		return errors.New("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}
