package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tavinathanson/imgtsero/internal/kir"
	"github.com/tavinathanson/imgtsero/internal/logging"
	"github.com/tavinathanson/imgtsero/internal/wmda"
)

// Environment variables that override config.yaml. Each is read from the
// process environment first, then from ~/.imgtsero/.env.
const (
	EnvDataDir     = "IMGTSERO_DATA_DIR"
	EnvRelease     = "IMGTSERO_RELEASE"
	EnvWMDABaseURL = "IMGTSERO_WMDA_BASE_URL"
	EnvIPDAPIURL   = "IMGTSERO_IPD_API_URL"
	EnvLogLevel    = "IMGTSERO_LOG_LEVEL"
	EnvLogFormat   = "IMGTSERO_LOG_FORMAT"
)

// Config is the in-memory representation of ~/.imgtsero/config.yaml.
type Config struct {
	DataDir      string `yaml:"data_dir"`
	Release      string `yaml:"release,omitempty"`
	WMDABaseURL  string `yaml:"wmda_base_url,omitempty"`
	IPDAPIURL    string `yaml:"ipd_api_url,omitempty"`
	AutoDownload bool   `yaml:"auto_download"`
	EnableKIR    bool   `yaml:"enable_kir"`
	Timeout      string `yaml:"timeout,omitempty"`
	LogLevel     string `yaml:"log_level,omitempty"`
	LogFormat    string `yaml:"log_format,omitempty"`
}

// ImgtseroDir returns the absolute path to ~/.imgtsero/.
func ImgtseroDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".imgtsero"), nil
}

// ConfigPath returns the absolute path to ~/.imgtsero/config.yaml.
func ConfigPath() (string, error) {
	dir, err := ImgtseroDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// DefaultConfig returns the Config written by imgtsero init.
func DefaultConfig() (*Config, error) {
	dir, err := ImgtseroDir()
	if err != nil {
		return nil, err
	}
	return &Config{
		DataDir:      filepath.Join(dir, "data"),
		WMDABaseURL:  wmda.DefaultBaseURL,
		IPDAPIURL:    kir.DefaultIPDURL,
		AutoDownload: true,
		EnableKIR:    true,
		Timeout:      "60s",
		LogLevel:     "warn",
		LogFormat:    "text",
	}, nil
}

// Exists reports whether config.yaml has been written.
func Exists() (bool, error) {
	path, err := ConfigPath()
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("cannot stat config %s: %w", path, err)
	}
	return true, nil
}

// Load reads ~/.imgtsero/config.yaml. A missing file yields DefaultConfig.
// Fields left empty in the file take their default values.
func Load() (*Config, error) {
	cfg, err := DefaultConfig()
	if err != nil {
		return nil, err
	}
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}

	var fromFile Config
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	// Booleans are taken as written; a file without them means false.
	cfg.AutoDownload = fromFile.AutoDownload
	cfg.EnableKIR = fromFile.EnableKIR
	cfg.merge(&fromFile)

	cfg.DataDir, err = ExpandPath(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// merge copies the non-empty string fields of o into c.
func (c *Config) merge(o *Config) {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.DataDir, o.DataDir)
	set(&c.Release, o.Release)
	set(&c.WMDABaseURL, o.WMDABaseURL)
	set(&c.IPDAPIURL, o.IPDAPIURL)
	set(&c.Timeout, o.Timeout)
	set(&c.LogLevel, o.LogLevel)
	set(&c.LogFormat, o.LogFormat)
}

// ApplyEnv overrides fields from IMGTSERO_* variables found in the process
// environment or ~/.imgtsero/.env.
func (c *Config) ApplyEnv() error {
	var o Config
	for key, dst := range map[string]*string{
		EnvDataDir:     &o.DataDir,
		EnvRelease:     &o.Release,
		EnvWMDABaseURL: &o.WMDABaseURL,
		EnvIPDAPIURL:   &o.IPDAPIURL,
		EnvLogLevel:    &o.LogLevel,
		EnvLogFormat:   &o.LogFormat,
	} {
		v, err := GetConfigValue(key)
		if err != nil {
			return err
		}
		*dst = v
	}
	c.merge(&o)
	var err error
	c.DataDir, err = ExpandPath(c.DataDir)
	return err
}

// TimeoutDuration parses Timeout. Empty means no timeout.
func (c *Config) TimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(c.Timeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(c.Timeout))
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid timeout %q: must not be negative", c.Timeout)
	}
	return d, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir is empty")
	}
	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		return err
	}
	return nil
}

// Save marshals cfg and writes it to ~/.imgtsero/config.yaml.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", filepath.Dir(path), err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write config %s: %w", path, err)
	}
	return nil
}
