// Package config merges the YAML settings file with secrets from the
// environment and exposes the result read-only.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"poof_palace_engine/logging"
)

var digitsRe = regexp.MustCompile(`^[0-9]+$`)

// Config is the merged, read-only configuration.
type Config struct {
	values map[string]any
	logger logging.Logger
}

// Option customizes Load.
type Option func(*loader)

type loader struct {
	logger    logging.Logger
	lookupEnv func(string) (string, bool)
}

// WithLogger sets the logger used while loading and for secret access notes.
func WithLogger(logger logging.Logger) Option {
	return func(l *loader) {
		l.logger = logger
	}
}

// WithLookupEnv replaces os.LookupEnv as the process environment source.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(l *loader) {
		l.lookupEnv = fn
	}
}

// Load reads the settings file at settingsPath and the secret file at envPath,
// overlays allow-listed environment variables and validates the result.
// The process environment is never modified.
func Load(settingsPath, envPath string, opts ...Option) (*Config, error) {
	l := &loader{lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logrus.StandardLogger()
	}

	secrets := map[string]string{}
	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			secrets, err = godotenv.Read(envPath)
			if err != nil {
				return nil, fmt.Errorf("%w: parse secret file %s: %v", ErrConfig, envPath, err)
			}
			l.logger.WithField("path", envPath).Info("loaded secret file")
		} else {
			l.logger.WithField("path", envPath).Warn("secret file not found; using process environment only")
		}
	}

	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read settings file %s: %v", ErrConfig, settingsPath, err)
	}
	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: parse settings file %s: %v", ErrConfig, settingsPath, err)
	}
	if values == nil {
		values = map[string]any{}
	}
	l.logger.WithField("path", settingsPath).Info("loaded settings file")

	for _, key := range EnvOverrides {
		raw, ok := l.lookupEnv(key)
		if !ok {
			raw, ok = secrets[key]
		}
		if !ok {
			continue
		}
		values[key] = Coerce(raw)
		l.logger.WithField("key", key).Debug("setting overridden from environment")
	}

	cfg := &Config{values: values, logger: l.logger}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromMap builds a Config from already merged values without validation.
func FromMap(values map[string]any) *Config {
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Config{values: copied, logger: logrus.StandardLogger()}
}

// Coerce converts an environment string: "true"/"false" in any case become
// bools, purely numeric strings become ints, everything else is unchanged.
func Coerce(raw string) any {
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	if digitsRe.MatchString(raw) {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return raw
}

func (c *Config) validate() error {
	keys := make([]*validation.KeyRules, 0, len(RequiredSettings))
	for _, key := range RequiredSettings {
		keys = append(keys, validation.Key(key, validation.Required))
	}
	if err := validation.Validate(c.values, validation.Map(keys...).AllowExtraKeys()); err != nil {
		return fmt.Errorf("%w: settings: %v", ErrConfig, err)
	}

	var missing []string
	for _, key := range RequiredSecrets {
		if v := c.values[key]; blankSecret(key, v) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required secrets: %s", ErrConfig, strings.Join(missing, ", "))
	}
	return nil
}

// Get returns the raw merged value.
func (c *Config) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok && v != nil
}

// String returns the value formatted as a string, or def when unset.
func (c *Config) String(key, def string) string {
	v, ok := c.Get(key)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns an integer setting, or def when unset or not a number.
func (c *Config) Int(key string, def int) int {
	v, ok := c.Get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return parsed
		}
	}
	return def
}

// Bool returns a boolean setting, or def when unset or not a boolean.
func (c *Config) Bool(key string, def bool) bool {
	v, ok := c.Get(key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
	}
	return def
}

// Duration parses values like "8h". Bare integers are seconds.
func (c *Config) Duration(key string, def time.Duration) time.Duration {
	v, ok := c.Get(key)
	if !ok {
		return def
	}
	switch d := v.(type) {
	case int:
		return time.Duration(d) * time.Second
	case string:
		if parsed, err := time.ParseDuration(strings.TrimSpace(d)); err == nil {
			return parsed
		}
	}
	return def
}

// blankSecret reports whether v cannot serve as a credential. Coerce turns
// "false" and "0" into a bool and an int, and neither is a usable token.
func blankSecret(key string, v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case int:
		return t == 0
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	switch strings.ToLower(s) {
	case "", "0", "false", "null", "none":
		return true
	}
	return s == Placeholder(key)
}

// Secret returns a secret value. Absent, empty, false or zero values and the
// example placeholder yield ErrMissingSecret.
func (c *Config) Secret(key string) (string, error) {
	raw, _ := c.Get(key)
	if blankSecret(key, raw) {
		return "", fmt.Errorf("%w: %s", ErrMissingSecret, key)
	}
	v := c.String(key, "")
	if c.IsDebug() {
		c.logger.WithField("key", key).Debug("accessed secret")
	}
	return v, nil
}

// IsMissingSecret reports whether err came from Secret.
func IsMissingSecret(err error) bool {
	return errors.Is(err, ErrMissingSecret)
}

// Summary returns every setting with sensitive values replaced by MaskedValue.
// It is for display only.
func (c *Config) Summary() map[string]any {
	safe := make(map[string]any, len(c.values))
	for k, v := range c.values {
		if isSensitive(k) {
			safe[k] = MaskedValue
			continue
		}
		safe[k] = v
	}
	return safe
}

// Keys returns the sorted setting names.
func (c *Config) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsProduction reports ENVIRONMENT=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.String("ENVIRONMENT", "development"), "production")
}

// IsDebug reports DEBUG_MODE.
func (c *Config) IsDebug() bool {
	return c.Bool("DEBUG_MODE", false)
}

// MaxAttempts is the total number of attempts for each outbound call.
func (c *Config) MaxAttempts() int {
	n := c.Int("MAX_RETRY_ATTEMPTS", 3)
	if n < 1 {
		return 1
	}
	return n
}
