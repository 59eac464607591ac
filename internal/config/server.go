// Package config loads YAML configuration for the server, the way
// taskTracker/internal/config does.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Server   HTTPConfig     `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Auth     AuthConfig     `yaml:"auth"`
}

type HTTPConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	RateLimitPerMin int           `yaml:"rate_limit_per_minute"`
}

type DatabaseConfig struct {
	URL            string        `yaml:"url"`
	MaxConnections int32         `yaml:"max_connections"`
	MinConnections int32         `yaml:"min_connections"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
}

type LoggingConfig struct {
	Development bool   `yaml:"development"`
	File        string `yaml:"file"`
}

type AuthConfig struct {
	BcryptCost int `yaml:"bcrypt_cost"`
}

func LoadServerConfig(path string) (*ServerConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	cfg := defaultServerConfig()
	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func defaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Server: HTTPConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			RequestTimeout:  30 * time.Second,
			RateLimitPerMin: 100,
		},
		Database: DatabaseConfig{
			MaxConnections: 10,
			MinConnections: 2,
			IdleTimeout:    5 * time.Minute,
		},
		Auth: AuthConfig{
			BcryptCost: 10,
		},
	}
}

func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}
