package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds application-wide configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	ID       IDConfig       `mapstructure:"id"`
	// Resources lists the tables exposed over the API.
	Resources []ResourceConfig `mapstructure:"resources"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
}

type ServerConfig struct {
	ListenAddr string `mapstructure:"listenAddr"`
	BaseURL    string `mapstructure:"baseURL"`
}

type DatabaseConfig struct {
	// Driver is one of the registered dialect names: postgres, mysql, sqlite.
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// IDConfig controls row-id obfuscation. Obfuscation is off unless Key is set.
type IDConfig struct {
	// Key is a 32-hex-digit AES key.
	Key       string `mapstructure:"key"`
	MinLength int    `mapstructure:"minLength"`
	StaticIDs bool   `mapstructure:"staticIds"`
	Separator string `mapstructure:"separator"`
}

type ResourceConfig struct {
	Table string `mapstructure:"table"`
	// ExcludePrefix hides columns whose name starts with the prefix.
	ExcludePrefix string `mapstructure:"excludePrefix"`
	// Fields, when set, limits the exposed columns to the named ones.
	Fields []string `mapstructure:"fields"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
		ID: IDConfig{
			MinLength: 32,
			Separator: "_",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
		},
	}
}

// Load reads config from file or environment
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("restable")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("RESTABLE")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		fmt.Println("Using config file:", v.ConfigFileUsed())
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &cfg, nil
}
