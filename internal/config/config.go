package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for a thumbprint deployment.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Snapshots   SnapshotConfig    `yaml:"snapshots"`
}

type ServerConfig struct {
	MetricsPort int    `yaml:"metrics_port" default:"9090"`
	LogLevel    string `yaml:"log_level" default:"info"`
}

// DatabaseConfig selects and configures the snapshot store backend.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres" or "sqlite"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	Path     string `yaml:"path"` // sqlite file path
}

// CalibrationConfig controls a full calibration run. It is read once at run
// start and never mutated, so a run is reproducible from its config.
type CalibrationConfig struct {
	Mode        string            `yaml:"mode" default:"fuzzy"` // "hard" or "fuzzy"
	Seed        int64             `yaml:"seed" default:"1"`
	Workers     int               `yaml:"workers"` // 0 = GOMAXPROCS
	Fuzziness   float64           `yaml:"fuzziness" default:"2.0"`
	MaxIter     int               `yaml:"max_iter" default:"150"`
	Tolerance   float64           `yaml:"tolerance" default:"1e-5"`
	KSelect     KSelectConfig     `yaml:"k_select"`
	Subdivision SubdivisionConfig `yaml:"subdivision"`
	Winsorize   bool              `yaml:"winsorize" default:"true"`
}

// KSelectConfig tunes balance-aware cluster-count selection. The
// silhouette/balance weights are empirical, not derived; keep them tunable.
type KSelectConfig struct {
	KMin             int     `yaml:"k_min" default:"2"`
	KMax             int     `yaml:"k_max" default:"6"`
	AdaptiveRange    bool    `yaml:"adaptive_range"`
	SilhouetteWeight float64 `yaml:"silhouette_weight" default:"0.4"`
	BalanceWeight    float64 `yaml:"balance_weight" default:"0.6"`
}

// SubdivisionConfig controls recursive segment subdivision.
type SubdivisionConfig struct {
	Enabled           bool    `yaml:"enabled" default:"true"`
	MaxDepth          int     `yaml:"max_depth" default:"3"`
	VarianceThreshold float64 `yaml:"variance_threshold" default:"1.5"`
	ShareCeiling      float64 `yaml:"share_ceiling" default:"0.60"`
	MinSize           int     `yaml:"min_size" default:"100"`
	MinChildSize      int     `yaml:"min_child_size" default:"30"`
	DiameterMode      string  `yaml:"diameter_mode" default:"centroid"` // "centroid" or "pairwise"
	KMin              int     `yaml:"k_min" default:"2"`
	KMax              int     `yaml:"k_max" default:"4"`
}

// SnapshotConfig holds per-granularity retention windows in days.
type SnapshotConfig struct {
	Retention map[string]int `yaml:"retention"`
	PruneRate int            `yaml:"prune_rate" default:"100"` // deletes per second
}

// Default returns the working-point configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			MetricsPort: 9090,
			LogLevel:    "info",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "thumbprint.db",
		},
		Calibration: CalibrationConfig{
			Mode:      "fuzzy",
			Seed:      1,
			Fuzziness: 2.0,
			MaxIter:   150,
			Tolerance: 1e-5,
			Winsorize: true,
			KSelect: KSelectConfig{
				KMin:             2,
				KMax:             6,
				SilhouetteWeight: 0.4,
				BalanceWeight:    0.6,
			},
			Subdivision: SubdivisionConfig{
				Enabled:           true,
				MaxDepth:          3,
				VarianceThreshold: 1.5,
				ShareCeiling:      0.60,
				MinSize:           100,
				MinChildSize:      30,
				DiameterMode:      "centroid",
				KMin:              2,
				KMax:              4,
			},
		},
		Snapshots: SnapshotConfig{
			Retention: map[string]int{
				"daily":     7,
				"weekly":    60,
				"monthly":   365,
				"quarterly": 730,
				"yearly":    1825,
			},
			PruneRate: 100,
		},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path) // #nosec G304 - operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations a run could not honor.
func (c *Config) Validate() error {
	if c.Calibration.Mode != "hard" && c.Calibration.Mode != "fuzzy" {
		return fmt.Errorf("invalid clustering mode: %s", c.Calibration.Mode)
	}
	if c.Calibration.Fuzziness <= 1.0 {
		return fmt.Errorf("fuzziness must be > 1.0, got %v", c.Calibration.Fuzziness)
	}
	ks := c.Calibration.KSelect
	if ks.KMin < 1 || ks.KMax < ks.KMin {
		return fmt.Errorf("invalid k range [%d, %d]", ks.KMin, ks.KMax)
	}
	if ks.SilhouetteWeight < 0 || ks.BalanceWeight < 0 {
		return fmt.Errorf("k-selection weights must be non-negative")
	}
	sub := c.Calibration.Subdivision
	if sub.DiameterMode != "centroid" && sub.DiameterMode != "pairwise" {
		return fmt.Errorf("invalid diameter mode: %s", sub.DiameterMode)
	}
	if sub.ShareCeiling <= 0 || sub.ShareCeiling > 1 {
		return fmt.Errorf("share ceiling must be in (0, 1], got %v", sub.ShareCeiling)
	}
	return nil
}

// RetentionWindow returns the retention window for a granularity, or zero
// when none is configured (meaning: keep forever).
func (c *SnapshotConfig) RetentionWindow(granularity string) time.Duration {
	days, ok := c.Retention[granularity]
	if !ok {
		return 0
	}
	return time.Duration(days) * 24 * time.Hour
}
