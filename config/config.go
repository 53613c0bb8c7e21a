// Package config provides standardized runtime configuration.
// Settings come from a TOML file with per-environment sections, overridden
// by prefixed environment variables.
package config

import (
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	koanffs "github.com/knadh/koanf/providers/fs"

	"github.com/zircuit-labs/zkr-go-sched/xerrors/errclass"
	"github.com/zircuit-labs/zkr-go-sched/xerrors/stacktrace"
)

const (
	defaultEnv          = "default"
	defaultEnvPrefix    = "CFG_"
	defaultEnvSeparator = "_"
	defaultSeparator    = "."
	defaultSettingsPath = "data/settings.toml"

	envVarName = "ENV"
)

type options struct {
	defaultEnv   string
	envPrefix    string
	envSeparator string
	separator    string
	filepath     string
}

// Option is an option func for NewConfiguration.
type Option func(options *options)

// WithDefaultEnv sets the name of the default environment section.
func WithDefaultEnv(env string) Option {
	return func(options *options) {
		options.defaultEnv = env
	}
}

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(options *options) {
		options.envPrefix = prefix
	}
}

// WithFilePath sets the path of the TOML settings file within the fs.
func WithFilePath(path string) Option {
	return func(options *options) {
		options.filepath = path
	}
}

// Configuration wraps koanf to hide its complexity.
type Configuration struct {
	k   *koanf.Koanf
	env string
}

// NewConfigurationFromMap creates configuration directly from a flat map.
// Intended for tests.
func NewConfigurationFromMap(cfg map[string]any) (*Configuration, error) {
	k := koanf.New(defaultSeparator)
	if err := k.Load(confmap.Provider(cfg, defaultSeparator), nil); err != nil {
		return nil, errclass.WrapAs(stacktrace.Wrap(err), errclass.Persistent)
	}
	return &Configuration{k: k, env: defaultEnv}, nil
}

// NewConfiguration parses config from the given file system and environment
// variables. A nil fs means environment variables only.
func NewConfiguration(f fs.FS, opts ...Option) (*Configuration, error) {
	options := options{
		defaultEnv:   defaultEnv,
		envPrefix:    defaultEnvPrefix,
		envSeparator: defaultEnvSeparator,
		separator:    defaultSeparator,
		filepath:     defaultSettingsPath,
	}
	for _, opt := range opts {
		opt(&options)
	}

	environment := os.Getenv(options.envPrefix + envVarName)

	merged := koanf.New(defaultSeparator)

	if f != nil {
		// The full TOML file holds the default env section plus overrides.
		top := koanf.New(defaultSeparator)
		if err := top.Load(koanffs.Provider(f, options.filepath), toml.Parser()); err != nil {
			return nil, errclass.WrapAs(stacktrace.Wrap(err), errclass.Persistent)
		}

		if err := mergeEnvSection(top, merged, options.defaultEnv, options.separator); err != nil {
			return nil, err
		}

		if environment != "" {
			if err := mergeEnvSection(top, merged, environment, options.separator); err != nil {
				return nil, err
			}
		}
	}

	if environment == "" {
		environment = options.defaultEnv
	}

	// Environment variables override everything.
	if err := merged.Load(
		env.Provider(options.envPrefix, options.separator, envToConfig(options)),
		nil,
	); err != nil {
		return nil, errclass.WrapAs(stacktrace.Wrap(err), errclass.Persistent)
	}

	return &Configuration{k: merged, env: environment}, nil
}

func mergeEnvSection(top, merged *koanf.Koanf, section, separator string) error {
	if !top.Exists(section) {
		return errclass.WrapAs(stacktrace.Wrap(
			fmt.Errorf("environment settings for '%s' not found", section),
		), errclass.Persistent)
	}
	settings, ok := top.Get(section).(map[string]any)
	if !ok {
		return errclass.WrapAs(stacktrace.Wrap(
			fmt.Errorf("failed to parse settings for '%s'", section),
		), errclass.Persistent)
	}
	if err := merged.Load(confmap.Provider(settings, separator), nil); err != nil {
		return errclass.WrapAs(stacktrace.Wrap(err), errclass.Persistent)
	}
	return nil
}

// Unmarshal sets values in struct `a` from the config rooted at `path`.
func (c Configuration) Unmarshal(path string, a any) error {
	return c.k.Unmarshal(path, a)
}

// Environment returns the name of the active environment.
func (c Configuration) Environment() string {
	return c.env
}

// envToConfig transforms env var names to config keys,
// eg `CFG_SCHEDULER_ENABLED` becomes `scheduler.enabled`.
func envToConfig(options options) func(s string) string {
	return func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, options.envPrefix)),
			options.envSeparator,
			options.separator,
		)
	}
}
