// Package config loads calnotify settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gookit/validate"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/roach88/calnotify/internal/notify"
	"github.com/roach88/calnotify/internal/quiet"
)

// EnvPrefix prefixes every environment override, e.g.
// CALNOTIFY_LOGGER_LEVEL=debug.
const EnvPrefix = "CALNOTIFY"

type StorageConfig struct {
	Dir               string `mapstructure:"dir" validate:"required"`
	CRSQLiteExtension string `mapstructure:"crsqliteExtension"`
	// StateFile defaults to state.yaml inside Dir.
	StateFile string `mapstructure:"stateFile"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level" validate:"required|in:trace,debug,info,warn,error,fatal,panic,disabled"`
	Pretty bool   `mapstructure:"pretty"`
}

type QuietHoursConfig struct {
	// From and To are HH:MM wall clock times. Equal values disable quiet
	// hours.
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
	Timezone string `mapstructure:"timezone"`
}

type NotificationsConfig struct {
	MaxVisible            int              `mapstructure:"maxVisible" validate:"required|min:1"`
	Mode                  string           `mapstructure:"mode" validate:"in:default,individual,collapsed,all_collapsed"`
	QuietHoursMutePrimary bool             `mapstructure:"quietHoursMutePrimary"`
	Vibrate               bool             `mapstructure:"vibrate"`
	QuietHours            QuietHoursConfig `mapstructure:"quietHours"`
	// RemindInterval is the period of reminder passes in the daemon; 0
	// disables reminders.
	RemindInterval time.Duration `mapstructure:"remindInterval"`
}

type ArchiveConfig struct {
	MaxAge        time.Duration `mapstructure:"maxAge" validate:"required"`
	PurgeSchedule string        `mapstructure:"purgeSchedule" validate:"required"`
}

type CalendarConfig struct {
	// Fixture defaults to calendar.yaml inside the storage dir.
	Fixture string  `mapstructure:"fixture"`
	Handled []int64 `mapstructure:"handled"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Listen is the address the daemon serves /metrics on; empty disables
	// the endpoint.
	Listen string `mapstructure:"listen"`
}

type Config struct {
	Path          string              `mapstructure:"-"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Logger        LoggerConfig        `mapstructure:"logger"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	Calendar      CalendarConfig      `mapstructure:"calendar"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// DefaultDir is the storage directory used when none is configured.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".calnotify"
	}
	return filepath.Join(home, ".calnotify")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.dir", DefaultDir())
	v.SetDefault("storage.crsqliteExtension", "")
	v.SetDefault("storage.stateFile", "")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.pretty", false)
	v.SetDefault("notifications.maxVisible", notify.DefaultMaxVisible)
	v.SetDefault("notifications.mode", "default")
	v.SetDefault("notifications.quietHoursMutePrimary", false)
	v.SetDefault("notifications.vibrate", true)
	v.SetDefault("notifications.quietHours.from", "")
	v.SetDefault("notifications.quietHours.to", "")
	v.SetDefault("notifications.quietHours.timezone", "Local")
	v.SetDefault("notifications.remindInterval", "0s")
	v.SetDefault("archive.maxAge", "720h")
	v.SetDefault("archive.purgeSchedule", "@daily")
	v.SetDefault("calendar.fixture", "")
	v.SetDefault("calendar.handled", []int64{})
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "")
}

// Load reads the file at path, applies environment overrides and validates
// the result. An empty path loads defaults and the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	conf.Path = path
	conf.resolvePaths()

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *Config) resolvePaths() {
	if c.Storage.StateFile == "" {
		c.Storage.StateFile = filepath.Join(c.Storage.Dir, "state.yaml")
	}
	if c.Calendar.Fixture == "" {
		c.Calendar.Fixture = filepath.Join(c.Storage.Dir, "calendar.yaml")
	}
}

// Validate checks struct rules and the values that need parsing.
func (c *Config) Validate() error {
	v := validate.Struct(c)
	if !v.Validate() {
		return fmt.Errorf("invalid config: %w", v.Errors)
	}
	var errs []error
	if _, err := notify.ParseMode(c.Notifications.Mode); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.QuietHours(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cron.ParseStandard(c.Archive.PurgeSchedule); err != nil {
		errs = append(errs, fmt.Errorf("archive.purgeSchedule: %w", err))
	}
	if c.Notifications.RemindInterval < 0 {
		errs = append(errs, errors.New("notifications.remindInterval must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// QuietHours builds the configured quiet-hours window.
func (c *Config) QuietHours() (quiet.Hours, error) {
	q := c.Notifications.QuietHours
	if q.From == "" && q.To == "" {
		return quiet.None{}, nil
	}
	loc := time.Local
	if q.Timezone != "" && q.Timezone != "Local" {
		l, err := time.LoadLocation(q.Timezone)
		if err != nil {
			return nil, fmt.Errorf("notifications.quietHours.timezone: %w", err)
		}
		loc = l
	}
	d, err := quiet.ParseDaily(q.From, q.To, loc)
	if err != nil {
		return nil, fmt.Errorf("notifications.quietHours: %w", err)
	}
	return d, nil
}

// Policy is the notification policy described by the config.
func (c *Config) Policy() notify.Policy {
	mode, _ := notify.ParseMode(c.Notifications.Mode)
	return notify.Policy{
		MaxVisible:  c.Notifications.MaxVisible,
		Mode:        mode,
		MutePrimary: c.Notifications.QuietHoursMutePrimary,
		Vibrate:     c.Notifications.Vibrate,
	}
}

// ArchiveMaxAge is Archive.MaxAge in milliseconds.
func (c *Config) ArchiveMaxAge() int64 {
	return c.Archive.MaxAge.Milliseconds()
}
