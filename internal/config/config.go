package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Env                string  `mapstructure:"ENV"`
	DatabaseURL        string  `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32   `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32   `mapstructure:"DB_MIN_CONNS"`
	MeasuresDir        string  `mapstructure:"MEASURES_DIR"`
	MigrationsDir      string  `mapstructure:"MIGRATIONS_DIR"`
	PipelineWorkers    int     `mapstructure:"PIPELINE_WORKERS"`
	MinPeerCount       int     `mapstructure:"MIN_PEER_COUNT"`
	SavingsFloorAtZero bool    `mapstructure:"SAVINGS_FLOOR_AT_ZERO"`
	RankScale          float64 `mapstructure:"RANK_SCALE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MEASURES_DIR", "./measure_definitions")
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("PIPELINE_WORKERS", 4)
	v.SetDefault("MIN_PEER_COUNT", 3)
	v.SetDefault("SAVINGS_FLOOR_AT_ZERO", false)
	v.SetDefault("RANK_SCALE", 100)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("MEASURES_DIR")
	v.BindEnv("MIGRATIONS_DIR")
	v.BindEnv("PIPELINE_WORKERS")
	v.BindEnv("MIN_PEER_COUNT")
	v.BindEnv("SAVINGS_FLOOR_AT_ZERO")
	v.BindEnv("RANK_SCALE")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run with. RANK_SCALE is
// the factor applied to rank percentiles before persisting: 100 stores
// percentiles as 0-100, 1 keeps the raw 0-1 rank. Only those two conventions
// are accepted.
func (c *Config) Validate() error {
	if c.PipelineWorkers < 1 {
		return fmt.Errorf("PIPELINE_WORKERS must be >= 1, got %d", c.PipelineWorkers)
	}
	if c.MinPeerCount < 1 {
		return fmt.Errorf("MIN_PEER_COUNT must be >= 1, got %d", c.MinPeerCount)
	}
	if c.DBMaxConns < c.DBMinConns {
		return fmt.Errorf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.DBMaxConns, c.DBMinConns)
	}
	if c.RankScale != 1 && c.RankScale != 100 {
		return fmt.Errorf("RANK_SCALE must be 1 or 100, got %v", c.RankScale)
	}
	return nil
}
