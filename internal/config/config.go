// Package config discovers and validates recall's settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	configName = "tasks"
	configType = "toml"
	envPrefix  = "RECALL"
)

// Defaults
const (
	DefaultTaskPath     = "~/.tasks"
	DefaultCutoff       = 24 * time.Hour
	DefaultWeighting    = "priority"
	DefaultPickerHeight = 20
)

var ErrInvalid = errors.New("invalid configuration")

// Config holds every setting the CLI needs.
type Config struct {
	TaskPath     string        `mapstructure:"task_path" validate:"required"`
	Verbose      bool          `mapstructure:"verbose"`
	Cutoff       time.Duration `mapstructure:"cutoff" validate:"gte=0"`
	Weighting    string        `mapstructure:"weighting" validate:"required,oneof=priority plain"`
	PickerHeight int           `mapstructure:"picker_height" validate:"min=1,max=200"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// Options controls where Load looks. Zero values mean the real filesystem,
// the user's home directory and the default search path.
type Options struct {
	File string
	Fs   afero.Fs
	Home string
	// SkipDotenv disables loading ./.env into the process environment.
	SkipDotenv bool
}

var validate = validator.New()

// Load reads tasks.toml from --config, ~/.config/tasks/ or ~/.config/, in
// that order, then applies RECALL_* environment overrides. A missing file is
// not an error unless it was named explicitly.
func Load(opts Options) (*Config, error) {
	if !opts.SkipDotenv {
		// a missing .env is fine
		_ = godotenv.Load()
	}
	if opts.Home == "" {
		opts.Home, _ = os.UserHomeDir()
	}

	v := viper.New()
	if opts.Fs != nil {
		v.SetFs(opts.Fs)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("task_path", DefaultTaskPath)
	v.SetDefault("verbose", false)
	v.SetDefault("cutoff", DefaultCutoff.String())
	v.SetDefault("weighting", DefaultWeighting)
	v.SetDefault("picker_height", DefaultPickerHeight)

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		v.SetConfigType(configType)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		if opts.Home != "" {
			v.AddConfigPath(filepath.Join(opts.Home, ".config", "tasks"))
			v.AddConfigPath(filepath.Join(opts.Home, ".config"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook,
		mapstructure.StringToTimeDurationHookFunc(),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.TaskPath = expandHome(strings.TrimSpace(cfg.TaskPath), opts.Home)
	cfg.Weighting = strings.ToLower(strings.TrimSpace(cfg.Weighting))

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &cfg, nil
}

// secondsToDurationHook lets cutoff be given as a plain number of seconds.
func secondsToDurationHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch n := data.(type) {
	case int:
		return time.Duration(n) * time.Second, nil
	case int64:
		return time.Duration(n) * time.Second, nil
	case uint64:
		return time.Duration(n) * time.Second, nil
	case float64:
		return time.Duration(n * float64(time.Second)), nil
	case string:
		if secs, err := parseSeconds(n); err == nil {
			return secs, nil
		}
	}
	return data, nil
}

func parseSeconds(s string) (time.Duration, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

// TOML renders the effective configuration in the format Load reads.
func (c *Config) TOML() ([]byte, error) {
	doc := struct {
		TaskPath     string `toml:"task_path"`
		Verbose      bool   `toml:"verbose"`
		Cutoff       string `toml:"cutoff"`
		Weighting    string `toml:"weighting"`
		PickerHeight int    `toml:"picker_height"`
	}{c.TaskPath, c.Verbose, c.Cutoff.String(), c.Weighting, c.PickerHeight}
	return toml.Marshal(doc)
}

func expandHome(path, home string) string {
	if home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
