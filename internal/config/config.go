package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when STRIKELAB_CONFIG is unset.
const DefaultPath = "config/strikelab.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for strikelab.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Logging  Logging        `yaml:"logging"`
	Backtest BacktestConfig `yaml:"backtest"`
	MaxPain  MaxPainConfig  `yaml:"maxpain"`
	Options  OptionsConfig  `yaml:"options"`
}

// Storage holds paths and connection settings for data persistence.
type Storage struct {
	DataDir  string `yaml:"data_dir"`
	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"db_dsn"`
}

// Server holds network listener configuration.
type Server struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	GRPCPort    int      `yaml:"grpc_port"`
	RateLimit   int      `yaml:"rate_limit"` // requests per minute, 0 disables
	CORSOrigins []string `yaml:"cors_origins"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BacktestConfig holds defaults for strategy runs and grid sweeps.
type BacktestConfig struct {
	Market        string    `yaml:"market"`
	StrategiesDir string    `yaml:"strategies_dir"`
	Workers       int       `yaml:"workers"`
	Direction     string    `yaml:"direction"`
	Sweep         string    `yaml:"sweep"`
	RankBy        string    `yaml:"rank_by"`
	Targets       []float64 `yaml:"targets"`
	StopLosses    []float64 `yaml:"stop_losses"`
}

// MaxPainConfig holds defaults for max-pain sweeps.
type MaxPainConfig struct {
	Market      string  `yaml:"market"`
	TopN        int     `yaml:"top_n"`
	Gap         float64 `yaml:"gap"`
	StartStrike float64 `yaml:"start_strike"`
	EndStrike   float64 `yaml:"end_strike"`
}

// OptionsConfig holds defaults for open-interest analytics.
type OptionsConfig struct {
	PCRCap   float64 `yaml:"pcr_cap"`
	SpotStep float64 `yaml:"spot_step"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the config file location from STRIKELAB_CONFIG or DefaultPath.
func Path() string {
	if p := os.Getenv("STRIKELAB_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies defaults and then environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Default returns the configuration used for fields a file leaves unset.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:  "data",
			DBDriver: "sqlite",
			DBDSN:    "data/strikelab.db",
		},
		Server:  Server{Host: "0.0.0.0", Port: 8080, GRPCPort: 9090, CORSOrigins: []string{"*"}},
		Logging: Logging{Level: "info", Format: "json"},
		Backtest: BacktestConfig{
			Market:        "eq",
			StrategiesDir: "config/strategies",
			Direction:     "long",
			Sweep:         "paired",
			RankBy:        "total_pl",
			Targets:       []float64{0.01, 0.02, 0.03, 0.04, 0.05},
			StopLosses:    []float64{0.01, 0.02, 0.03, 0.04, 0.05},
		},
		MaxPain: MaxPainConfig{Market: "fo", TopN: 5},
		Options: OptionsConfig{PCRCap: 1.7, SpotStep: 100},
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Storage.DBDriver = v
	}

	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.Storage.DBDSN = v
	}

	// DATABASE_URL is the conventional Postgres connection string.
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DBDriver = "postgres"
		cfg.Storage.DBDSN = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("STRATEGIES_DIR"); v != "" {
		cfg.Backtest.StrategiesDir = v
	}

	if v := os.Getenv("STRIKELAB_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backtest.Workers = n
		}
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.DBDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage.db_driver %q: want sqlite or postgres", c.Storage.DBDriver))
	}
	if c.Backtest.Workers < 0 {
		errs = append(errs, fmt.Errorf("backtest.workers %d: must not be negative", c.Backtest.Workers))
	}
	switch c.Backtest.Direction {
	case "long", "short":
	default:
		errs = append(errs, fmt.Errorf("backtest.direction %q: want long or short", c.Backtest.Direction))
	}
	switch c.Backtest.Sweep {
	case "paired":
		nt, ns := len(c.Backtest.Targets), len(c.Backtest.StopLosses)
		if nt != ns && nt != 1 && ns != 1 {
			errs = append(errs, fmt.Errorf("backtest: paired sweep needs equal-length ranges, got %d targets and %d stop losses", nt, ns))
		}
	case "cross":
	default:
		errs = append(errs, fmt.Errorf("backtest.sweep %q: want paired or cross", c.Backtest.Sweep))
	}
	for _, v := range c.Backtest.Targets {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("backtest.targets: %v must be positive", v))
		}
	}
	for _, v := range c.Backtest.StopLosses {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("backtest.stop_losses: %v must be positive", v))
		}
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit %d: must not be negative", c.Server.RateLimit))
	}
	if c.MaxPain.TopN <= 0 {
		errs = append(errs, fmt.Errorf("maxpain.top_n %d: must be positive", c.MaxPain.TopN))
	}
	if c.MaxPain.Gap < 0 {
		errs = append(errs, fmt.Errorf("maxpain.gap %v: must not be negative", c.MaxPain.Gap))
	}

	return errors.Join(errs...)
}
