// Package config also loads the client's runtime configuration, via
// viper the way the rest of the Go ecosystem's CLI tools do, distinct
// from the server's plain yaml.v3 decode since the client additionally
// layers environment variables over the config file (spec §1 lists
// "configuration loading" as an external collaborator of the core, not
// part of it). No command-line flags are bound into the loaded values;
// the CLI passes only the config file path.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type ClientConfig struct {
	ServerURL      string        `mapstructure:"server_url"`
	Token          string        `mapstructure:"token"`
	StatePath      string        `mapstructure:"state_path"`
	HostAppPath    string        `mapstructure:"host_app_path"`
	SyncInterval   time.Duration `mapstructure:"sync_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Development    bool          `mapstructure:"development"`
	LogFile        string        `mapstructure:"log_file"`
}

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerURL:      "http://localhost:8080",
		StatePath:      "state/snapshot.json",
		HostAppPath:    "state/hostapp.db",
		SyncInterval:   30 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// LoadClientConfig reads configuration from (in ascending precedence)
// built-in defaults, an optional config file, and TODOSYNC_-prefixed
// environment variables. configPath may be empty, in which case only
// defaults and environment variables apply.
func LoadClientConfig(configPath string) (*ClientConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("TODOSYNC")
	v.AutomaticEnv()

	defaults := defaultClientConfig()
	v.SetDefault("server_url", defaults.ServerURL)
	v.SetDefault("token", defaults.Token)
	v.SetDefault("state_path", defaults.StatePath)
	v.SetDefault("host_app_path", defaults.HostAppPath)
	v.SetDefault("sync_interval", defaults.SyncInterval)
	v.SetDefault("request_timeout", defaults.RequestTimeout)
	v.SetDefault("development", defaults.Development)
	v.SetDefault("log_file", defaults.LogFile)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read client config %s: %w", configPath, err)
		}
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal client config: %w", err)
	}
	return &cfg, nil
}
