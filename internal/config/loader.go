package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and
// environment variables. If configFile is empty, standard locations are
// searched. The search requires an explicit YAML extension so the
// binary itself (same base name, no extension) is never matched.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file in any standard location. ReadInConfig will
		// return ConfigFileNotFoundError, which callers treat as
		// env-vars-only mode.
		viper.SetConfigName("warden-gate")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: WARDEN_GATE_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("WARDEN_GATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for warden-gate.yaml or
// warden-gate.yml.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".warden-gate"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "warden-gate"))
		}
	} else {
		paths = append(paths, "/etc/warden-gate")
	}
	return findConfigFileInPaths(paths)
}

func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "warden-gate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys so they can be overridden
// through environment variables. Array-valued keys (jwt.keys) are file
// only.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.shutdown_timeout")
	_ = viper.BindEnv("server.tenant_header")
	_ = viper.BindEnv("server.pid_file")

	_ = viper.BindEnv("database.path")
	_ = viper.BindEnv("database.busy_timeout")
	_ = viper.BindEnv("database.audit_retention_days")

	_ = viper.BindEnv("auth.hash_scheme")
	_ = viper.BindEnv("auth.static_api_key")
	_ = viper.BindEnv("auth.jwt.issuer")
	_ = viper.BindEnv("auth.jwt.audience")

	_ = viper.BindEnv("hmac.required")
	_ = viper.BindEnv("hmac.window")

	_ = viper.BindEnv("rate_limit.capacity")
	_ = viper.BindEnv("rate_limit.refill_rate")

	_ = viper.BindEnv("providers.primary")
	_ = viper.BindEnv("providers.retries")
	_ = viper.BindEnv("providers.timeout")
	_ = viper.BindEnv("providers.openrouter.base_url")
	_ = viper.BindEnv("providers.openrouter.api_key")
	_ = viper.BindEnv("providers.openrouter.model")
	_ = viper.BindEnv("providers.openrouter.referer")
	_ = viper.BindEnv("providers.openrouter.title")
	_ = viper.BindEnv("providers.local_inference.endpoint")
	_ = viper.BindEnv("providers.local_inference.api_key")
}

// LoadConfig reads the configuration file, applies environment
// overrides and defaults, validates, and returns the Config.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing file is fine: pure environment configuration.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or
// an empty string in env-vars-only mode.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
