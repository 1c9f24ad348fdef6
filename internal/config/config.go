package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mabhi256/dngc/internal/diag"
	"github.com/mabhi256/dngc/utils"
)

const (
	DefaultBufferSize    = 256 * utils.MB
	DefaultTriggerWindow = time.Second
	DefaultStopGrace     = 2 * time.Second

	maxBufferSize = 4 * utils.GB
)

type Config struct {
	// Target configuration
	PID         int    `mapstructure:"pid"`
	EndpointDir string `mapstructure:"endpoint-dir"` // where diagnostics sockets live

	// Output
	Verbose bool `mapstructure:"verbose"` // per-heap generation tables
	Human   bool `mapstructure:"human"`   // sizes as 1.5M instead of bytes
	NoColor bool `mapstructure:"no-color"`
	TUI     bool `mapstructure:"tui"`

	// Session
	BufferSize           utils.MemorySize `mapstructure:"buffer-size"`
	TriggerWindow        time.Duration    `mapstructure:"trigger-window"`
	StopGrace            time.Duration    `mapstructure:"stop-grace"`
	ClientSequenceNumber int64            `mapstructure:"csn"`
	Rundown              bool             `mapstructure:"rundown"`

	// Debug configuration
	Debug        bool   `mapstructure:"debug"`
	DebugLogFile string `mapstructure:"debug-log-file"`
}

var defaults = map[string]any{
	"pid":            0,
	"endpoint-dir":   "",
	"verbose":        false,
	"human":          false,
	"no-color":       false,
	"tui":            false,
	"buffer-size":    DefaultBufferSize.String(),
	"trigger-window": DefaultTriggerWindow,
	"stop-grace":     DefaultStopGrace,
	"csn":            0,
	"rundown":        false,
	"debug":          false,
	"debug-log-file": "",
}

// DefaultPath is $HOME/.config/dngc/config.yml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "dngc", "config.yml")
}

// Load merges defaults, the config file, DNGC_* environment variables and the
// flags that were set on the command line, in increasing priority. A missing
// config file is not an error.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DNGC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	for key, value := range defaults {
		v.SetDefault(key, value)
		if flags == nil {
			continue
		}
		if f := flags.Lookup(key); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding flag %s: %w", key, err)
			}
		}
	}

	if configPath == "" {
		configPath = DefaultPath()
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var configFileNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", configPath, err)
			}
		}
	}

	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.PID <= 0 {
		return fmt.Errorf("invalid process id %d", c.PID)
	}
	if c.BufferSize < utils.MB || c.BufferSize > maxBufferSize {
		return fmt.Errorf("buffer size %s out of range 1M-%s", c.BufferSize, maxBufferSize)
	}
	if c.TriggerWindow <= 0 {
		return fmt.Errorf("trigger window must be positive, got %s", c.TriggerWindow)
	}
	if c.StopGrace <= 0 {
		return fmt.Errorf("stop grace must be positive, got %s", c.StopGrace)
	}
	return nil
}

// BufferMB is the session buffer size in whole megabytes, at least 1
func (c *Config) BufferMB() uint32 {
	return uint32(max(1, int64(c.BufferSize.MB())))
}

func (c *Config) DiagOptions(log *zap.Logger) diag.Options {
	return diag.Options{
		Dir:       c.EndpointDir,
		BufferMB:  c.BufferMB(),
		Rundown:   c.Rundown,
		StopGrace: c.StopGrace,
		Logger:    log,
	}
}

func (c *Config) String() string {
	if c.PID != 0 {
		return fmt.Sprintf("PID %d", c.PID)
	}
	return "No target specified"
}
