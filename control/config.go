// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Configuration loading for the bus, the reactor and logging. Values come from
// defaults, an optional config file, CHANBUS_* environment variables and bound
// command-line flags, in increasing order of precedence.

package control

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/momentics/chanbus/reactor"
)

// EnvPrefix is the prefix for environment overrides, e.g. CHANBUS_REACTOR_BACKEND.
const EnvPrefix = "CHANBUS"

// Config is the resolved configuration.
type Config struct {
	LogLevel  string        `mapstructure:"logLevel"`
	LogFormat string        `mapstructure:"logFormat"`
	Reactor   ReactorConfig `mapstructure:"reactor"`
	Bus       BusConfig     `mapstructure:"bus"`
	Channel   ChannelConfig `mapstructure:"channel"`
}

// ReactorConfig selects and sizes the readiness backend.
type ReactorConfig struct {
	Backend   string `mapstructure:"backend"`
	MaxEvents int    `mapstructure:"maxEvents"`
}

// BusConfig controls the dispatcher loop.
type BusConfig struct {
	ExitWhenEmpty bool `mapstructure:"exitWhenEmpty"`
	DispatcherCPU int  `mapstructure:"dispatcherCPU"`
	LockOSThread  bool `mapstructure:"lockOSThread"`
}

// ChannelConfig holds per-channel defaults.
type ChannelConfig struct {
	SendRetries int `mapstructure:"sendRetries"`
}

// NewViper returns a viper instance carrying the defaults and env binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("logLevel", "info")
	v.SetDefault("logFormat", "text")
	v.SetDefault("reactor.backend", string(reactor.BackendAuto))
	v.SetDefault("reactor.maxEvents", 128)
	v.SetDefault("bus.exitWhenEmpty", true)
	v.SetDefault("bus.dispatcherCPU", -1)
	v.SetDefault("bus.lockOSThread", false)
	v.SetDefault("channel.sendRetries", 64)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags registers the standard flags on fs and binds them to v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "text", "log format (text, json, zerolog)")
	fs.String("backend", string(reactor.BackendAuto), "reactor backend (auto, epoll, portable)")
	fs.Int("dispatcher-cpu", -1, "pin the dispatcher thread to this CPU (-1 disables)")

	bindings := map[string]string{
		"logLevel":          "log-level",
		"logFormat":         "log-format",
		"reactor.backend":   "backend",
		"bus.dispatcherCPU": "dispatcher-cpu",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the config file at path (if non-empty) into a fresh viper
// instance and decodes it.
func Load(path string) (Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return Decode(v)
}

// Decode unmarshals and validates the configuration held by v.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if _, err := reactor.ParseBackend(c.Reactor.Backend); err != nil {
		errs = append(errs, err)
	}
	if c.Reactor.MaxEvents <= 0 {
		errs = append(errs, fmt.Errorf("reactor.maxEvents must be positive, got %d", c.Reactor.MaxEvents))
	}
	if c.Bus.DispatcherCPU < -1 {
		errs = append(errs, fmt.Errorf("bus.dispatcherCPU must be -1 or a CPU index, got %d", c.Bus.DispatcherCPU))
	}
	if c.Channel.SendRetries < 0 {
		errs = append(errs, fmt.Errorf("channel.sendRetries must not be negative, got %d", c.Channel.SendRetries))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json", "zerolog":
	default:
		errs = append(errs, fmt.Errorf("unknown logFormat %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
