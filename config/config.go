package config

import (
	"github.com/jinzhu/configor"
)

// DefaultUserAgent is sent with document requests unless a provider or the
// caller overrides it.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/97.0.4692.99 Safari/537.36"

// Config - Application configuration
type Config struct {
	Inspect struct {
		Timeout    int    `yaml:"timeout" default:"15" env:"INSPECTOR_TIMEOUT"` // Timeout in seconds
		UserAgent  string `yaml:"user_agent" env:"INSPECTOR_USER_AGENT"`
		FileAccess bool   `yaml:"file_access" env:"INSPECTOR_FILE_ACCESS"` // Allow file: URLs
		NoFavicon  bool   `yaml:"no_favicon" env:"INSPECTOR_NO_FAVICON"`
		Providers  string `yaml:"providers" env:"INSPECTOR_PROVIDERS"` // Path to a JSON providers list
	} `yaml:"inspect"`
}

// LoadConfig - Load configuration file
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	err := configor.New(&configor.Config{
		Debug:      false,
		Verbose:    false,
		Silent:     true,
		AutoReload: false,
	}).Load(cfg, path)
	if cfg.Inspect.UserAgent == "" {
		cfg.Inspect.UserAgent = DefaultUserAgent
	}
	return cfg, err
}
