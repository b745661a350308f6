package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"inferclient/internal/client"
	"inferclient/internal/common/fsutil"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "INFERCTL_"

// DefaultURL is the server address used when none is configured.
const DefaultURL = "localhost:8000"

// Config holds the driver settings. Zero values mean "unspecified": file
// values are overlaid by the environment, then by flags.
type Config struct {
	URL                 string            `json:"url" yaml:"url" toml:"url" env:"URL"`
	Verbose             bool              `json:"verbose" yaml:"verbose" toml:"verbose" env:"VERBOSE"`
	SSL                 bool              `json:"ssl" yaml:"ssl" toml:"ssl" env:"SSL"`
	KeyFile             string            `json:"key_file" yaml:"key_file" toml:"key_file" env:"KEY_FILE"`
	CertFile            string            `json:"cert_file" yaml:"cert_file" toml:"cert_file" env:"CERT_FILE"`
	CACerts             string            `json:"ca_certs" yaml:"ca_certs" toml:"ca_certs" env:"CA_CERTS"`
	Insecure            bool              `json:"insecure" yaml:"insecure" toml:"insecure" env:"INSECURE"`
	Headers             map[string]string `json:"headers" yaml:"headers" toml:"headers" env:"HEADERS"`
	RequestCompression  string            `json:"request_compression_algorithm" yaml:"request_compression_algorithm" toml:"request_compression_algorithm" env:"REQUEST_COMPRESSION_ALGORITHM"`
	ResponseCompression string            `json:"response_compression_algorithm" yaml:"response_compression_algorithm" toml:"response_compression_algorithm" env:"RESPONSE_COMPRESSION_ALGORITHM"`
	TimeoutSeconds      int               `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds" env:"TIMEOUT_SECONDS"`
	// Timeout, when positive, overrides TimeoutSeconds with full precision.
	// It comes from the --timeout flag or INFERCTL_TIMEOUT only.
	Timeout          time.Duration `json:"-" yaml:"-" toml:"-" env:"TIMEOUT"`
	WaitReadySeconds int           `json:"wait_ready_seconds" yaml:"wait_ready_seconds" toml:"wait_ready_seconds" env:"WAIT_READY_SECONDS"`
	LogLevel         string        `json:"log_level" yaml:"log_level" toml:"log_level" env:"LOG_LEVEL"`
	LogFile          string        `json:"log_file" yaml:"log_file" toml:"log_file" env:"LOG_FILE"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	path, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyEnv overlays INFERCTL_* variables found by l onto cfg. Variables
// win over file values. A nil l reads the process environment.
func ApplyEnv(ctx context.Context, cfg *Config, l envconfig.Lookuper) error {
	if l == nil {
		l = envconfig.OsLookuper()
	}
	return envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:           cfg,
		Lookuper:         envconfig.PrefixLookuper(EnvPrefix, l),
		DefaultOverwrite: true,
	})
}

// WithDefaults fills unspecified fields.
func (c Config) WithDefaults() Config {
	if strings.TrimSpace(c.URL) == "" {
		c.URL = DefaultURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = int(client.DefaultTimeout / time.Second)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}

// EffectiveTimeout is Timeout when set, else TimeoutSeconds.
func (c Config) EffectiveTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ClientConfig converts the driver settings into a client.Config,
// expanding '~' in certificate paths.
func (c Config) ClientConfig() (client.Config, error) {
	out := client.Config{
		URL:      c.URL,
		SSL:      c.SSL,
		Insecure: c.Insecure,
		Verbose:  c.Verbose,
		Timeout:  c.EffectiveTimeout(),
	}
	var err error
	if out.CertFile, err = fsutil.ExpandHome(c.CertFile); err != nil {
		return out, err
	}
	if out.KeyFile, err = fsutil.ExpandHome(c.KeyFile); err != nil {
		return out, err
	}
	if out.CACerts, err = fsutil.ExpandHome(c.CACerts); err != nil {
		return out, err
	}
	return out, nil
}
