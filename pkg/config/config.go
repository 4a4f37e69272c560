// Package config loads engine and registry settings from the environment.
// Settings are handed to operations explicitly through the descriptor; no
// package reads process-global state at connect time.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"skiff/docker/pkg/model"
)

// EngineConfig selects the daemon endpoint operations connect to.
type EngineConfig struct {
	Host       string
	APIVersion string
	CertPath   string
}

// RegistryConfig carries default push credentials.
type RegistryConfig struct {
	Username string
	Password string
}

// Config is the process configuration for engine operations.
type Config struct {
	Engine   EngineConfig
	Registry RegistryConfig
	// DebugPort is the default port for descriptors that enable
	// debugging without picking one.
	DebugPort int
}

// Load reads configuration from the environment and an optional .env file
// in the working directory. Environment variables win over file values,
// file values win over defaults. Validation fails fast and names every
// problem at once.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Engine: EngineConfig{
			Host:       v.GetString("docker.host"),
			APIVersion: v.GetString("docker.api_version"),
			CertPath:   v.GetString("docker.cert_path"),
		},
		Registry: RegistryConfig{
			Username: v.GetString("registry.username"),
			Password: v.GetString("registry.password"),
		},
		DebugPort: v.GetInt("debug.port"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("docker.host", "unix:///var/run/docker.sock")
	v.SetDefault("docker.api_version", "")
	v.SetDefault("docker.cert_path", "")
	v.SetDefault("registry.username", "")
	v.SetDefault("registry.password", "")
	v.SetDefault("debug.port", model.DefaultDebugPort)
}

func validateConfig(cfg *Config) error {
	var missing []string

	if cfg.Engine.Host == "" {
		missing = append(missing, "DOCKER_HOST")
	}
	if cfg.Engine.CertPath != "" {
		for _, name := range []string{"ca.pem", "cert.pem", "key.pem"} {
			path := filepath.Join(cfg.Engine.CertPath, name)
			if _, err := os.Stat(path); err != nil {
				missing = append(missing, path)
			}
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ApplyTo fills the descriptor's connection, credential and debug fields
// that the caller left empty. Values already set on the descriptor win.
func (c *Config) ApplyTo(d *model.BuildDescriptor) {
	if d.Host == "" {
		d.Host = c.Engine.Host
	}
	if d.CertPath == "" {
		d.CertPath = c.Engine.CertPath
	}
	if d.Credentials == nil && c.Registry.Username != "" {
		d.Credentials = &model.RegistryCredentials{
			Username: c.Registry.Username,
			Password: c.Registry.Password,
		}
	}
	if d.Debug.Enabled && d.Debug.Port == 0 {
		d.Debug.Port = c.DebugPort
	}
}
