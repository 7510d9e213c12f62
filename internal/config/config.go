// Package config provides configuration management for esiweave using
// Viper for flexible loading from files, environment variables, and
// command-line flags.
//
// Configuration comes from .esiweave.yml, ESIWEAVE_* environment
// variable overrides, and flag bindings, in the usual Viper precedence.
// It covers the listening server, the directive processing options, the
// default upstream origin, and the optional route table file.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	ESI      ESIConfig      `yaml:"esi"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Routes   RoutesConfig   `yaml:"routes"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type ESIConfig struct {
	Namespace      string `yaml:"namespace"`
	MaxDepth       int    `yaml:"max_depth"`
	FallbackNotice string `yaml:"fallback_notice"`
}

type UpstreamConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type RoutesConfig struct {
	File string `yaml:"file"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load assembles the configuration from viper's current state and
// validates it. Defaults are applied for anything unset.
func Load() (*Config, error) {
	setDefaults()

	config := &Config{
		Server: ServerConfig{
			Host:            viper.GetString("server.host"),
			Port:            viper.GetInt("server.port"),
			ReadTimeout:     viper.GetDuration("server.read_timeout"),
			ShutdownTimeout: viper.GetDuration("server.shutdown_timeout"),
		},
		ESI: ESIConfig{
			Namespace:      viper.GetString("esi.namespace"),
			MaxDepth:       viper.GetInt("esi.max_depth"),
			FallbackNotice: viper.GetString("esi.fallback_notice"),
		},
		Upstream: UpstreamConfig{
			URL:     viper.GetString("upstream.url"),
			Timeout: viper.GetDuration("upstream.timeout"),
		},
		Routes: RoutesConfig{
			File: viper.GetString("routes.file"),
		},
		Log: LogConfig{
			Level:  viper.GetString("log.level"),
			Format: viper.GetString("log.format"),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("esi.namespace", "esi")
	viper.SetDefault("esi.max_depth", 10)
	viper.SetDefault("upstream.timeout", 5*time.Second)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}
