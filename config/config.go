package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"tangle-node/db"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Store    StoreConfig    `mapstructure:"store"`
	Cluster  ClusterConfig  `mapstructure:"cluster"`
	Selector SelectorConfig `mapstructure:"selector"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	AppLogFile string `mapstructure:"app_log_file"`
	Level      string `mapstructure:"level"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

type ClusterConfig struct {
	// seconds slept between two trust chain consensus cycles
	DelayAfterTCC int     `mapstructure:"delay_after_tcc"`
	TCCThreshold  float64 `mapstructure:"tcc_threshold"`
}

func (c ClusterConfig) Delay() time.Duration {
	return time.Duration(c.DelayAfterTCC) * time.Second
}

type SelectorConfig struct {
	MinSourcePercentage    float64 `mapstructure:"min_source_percentage"`
	MaxNeighbourhoodRadius int     `mapstructure:"max_neighbourhood_radius"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.app_log_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("store.backend", db.BackendLevelDB)
	v.SetDefault("store.path", "data/transactions")
	v.SetDefault("cluster.delay_after_tcc", 5)
	v.SetDefault("cluster.tcc_threshold", 300)
	v.SetDefault("selector.min_source_percentage", 0.1)
	v.SetDefault("selector.max_neighbourhood_radius", 100)
	v.SetDefault("metrics.namespace", "tcc")
}

// Load reads the config file at path (optional when empty) on top of the defaults.
// Every key can be overridden from the environment, e.g. TCC_CLUSTER_DELAY_AFTER_TCC.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("tcc")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config file error: %w", err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Cluster.DelayAfterTCC < 0 {
		return fmt.Errorf("cluster.delay_after_tcc must not be negative, got %d", c.Cluster.DelayAfterTCC)
	}
	if c.Cluster.TCCThreshold <= 0 {
		return fmt.Errorf("cluster.tcc_threshold must be positive, got %v", c.Cluster.TCCThreshold)
	}
	if c.Selector.MinSourcePercentage < 0 || c.Selector.MinSourcePercentage > 1 {
		return fmt.Errorf("selector.min_source_percentage must be in [0,1], got %v", c.Selector.MinSourcePercentage)
	}
	if c.Selector.MaxNeighbourhoodRadius < 0 {
		return fmt.Errorf("selector.max_neighbourhood_radius must not be negative, got %d", c.Selector.MaxNeighbourhoodRadius)
	}
	return nil
}
