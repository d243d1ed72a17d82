package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from defaults, an optional config file and
// environment variables, in increasing precedence. Environment variables use
// the CRANK_ prefix with underscores for nesting (e.g. CRANK_SCHEDULER_MAX_WORKERS).
// path may be empty to skip file loading. The result is validated before
// being returned.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CRANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("scheduler.queue_capacity", 256)
	v.SetDefault("scheduler.initial_workers", 4)
	v.SetDefault("scheduler.min_workers", 1)
	v.SetDefault("scheduler.max_workers", 16)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_delay_ms", 100)
	v.SetDefault("retry.max_delay_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_factor", 0.2)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.cooldown_ms", 30000)

	v.SetDefault("dead_letter.max_replays", 3)

	v.SetDefault("dashboard.interval_ms", 1000)
	v.SetDefault("dashboard.history_size", 60)
}

func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}
