// Package config loads docpipe settings from defaults, a TOML file and
// DOCPIPE_* environment variables, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"

	"github.com/alnah/go-docpipe/internal/completion"
	"github.com/alnah/go-docpipe/internal/lang"
	"github.com/alnah/go-docpipe/internal/segment"
	"github.com/alnah/go-docpipe/internal/transcript"
	"github.com/alnah/go-docpipe/internal/usage"
)

// Sentinel errors.
var (
	ErrUnknownKey   = errors.New("unknown config key")
	ErrInvalidValue = errors.New("invalid config value")
	ErrNotDirectory = errors.New("path is not a directory")
	ErrNotWritable  = errors.New("directory is not writable")
)

// Config keys, as written in the config file.
const (
	KeyOutputDir    = "output-dir"
	KeyProvider     = "provider"
	KeyModel        = "model"
	KeyBaseURL      = "base-url"
	KeyTargetLang   = "target-lang"
	KeyMaxChunkSize = "max-chunk-size"
	KeyWindow       = "window"
	KeyConcurrency  = "concurrency"
	KeyRetries      = "retries"
	KeyInputPrice   = "input-price"
	KeyOutputPrice  = "output-price"
	KeyCurrency     = "currency"
	KeyLogLevel     = "log-level"
)

// EnvPrefix prefixes every environment override, e.g. DOCPIPE_OUTPUT_DIR.
const EnvPrefix = "DOCPIPE_"

type kind int

const (
	kindString kind = iota
	kindInt
	kindFloat
	kindDuration
)

// keys lists the valid keys in display order with their value kind.
var keys = []struct {
	name string
	kind kind
}{
	{KeyOutputDir, kindString},
	{KeyProvider, kindString},
	{KeyModel, kindString},
	{KeyBaseURL, kindString},
	{KeyTargetLang, kindString},
	{KeyMaxChunkSize, kindInt},
	{KeyWindow, kindDuration},
	{KeyConcurrency, kindInt},
	{KeyRetries, kindInt},
	{KeyInputPrice, kindFloat},
	{KeyOutputPrice, kindFloat},
	{KeyCurrency, kindString},
	{KeyLogLevel, kindString},
}

// Config holds the resolved settings.
type Config struct {
	OutputDir    string   `toml:"output-dir" env:"OUTPUT_DIR"`
	Provider     string   `toml:"provider" env:"PROVIDER"`
	Model        string   `toml:"model" env:"MODEL"`
	BaseURL      string   `toml:"base-url" env:"BASE_URL"`
	TargetLang   string   `toml:"target-lang" env:"TARGET_LANG"`
	MaxChunkSize int      `toml:"max-chunk-size" env:"MAX_CHUNK_SIZE"`
	Window       Duration `toml:"window" env:"WINDOW"`
	Concurrency  int      `toml:"concurrency" env:"CONCURRENCY"`
	Retries      int      `toml:"retries" env:"RETRIES"`
	InputPrice   float64  `toml:"input-price" env:"INPUT_PRICE"`
	OutputPrice  float64  `toml:"output-price" env:"OUTPUT_PRICE"`
	Currency     string   `toml:"currency" env:"CURRENCY"`
	LogLevel     string   `toml:"log-level" env:"LOG_LEVEL"`
}

// Duration is a time.Duration written as a Go duration string ("90m").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in settings.
func Default() Config {
	p := usage.DefaultPricing()
	return Config{
		Provider:     completion.DefaultProvider,
		TargetLang:   lang.Default.String(),
		MaxChunkSize: segment.DefaultMaxChunkSize,
		Window:       Duration{transcript.DefaultWindow},
		Concurrency:  1,
		InputPrice:   p.InputPer1K,
		OutputPrice:  p.OutputPer1K,
		Currency:     p.Currency,
		LogLevel:     "info",
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.MaxChunkSize < 0:
		return fmt.Errorf("%s must be >= 0, got %d: %w", KeyMaxChunkSize, c.MaxChunkSize, ErrInvalidValue)
	case c.Concurrency < 1:
		return fmt.Errorf("%s must be >= 1, got %d: %w", KeyConcurrency, c.Concurrency, ErrInvalidValue)
	case c.Retries < 0:
		return fmt.Errorf("%s must be >= 0, got %d: %w", KeyRetries, c.Retries, ErrInvalidValue)
	case c.Window.Duration <= 0:
		return fmt.Errorf("%s must be positive, got %s: %w", KeyWindow, c.Window, ErrInvalidValue)
	case c.InputPrice < 0 || c.OutputPrice < 0:
		return fmt.Errorf("prices must be >= 0: %w", ErrInvalidValue)
	}
	if _, err := lang.Parse(c.TargetLang); err != nil {
		return fmt.Errorf("%s: %w: %w", KeyTargetLang, ErrInvalidValue, err)
	}
	return nil
}

// Pricing returns the configured prices.
func (c Config) Pricing() usage.Pricing {
	return usage.Pricing{
		InputPer1K:  c.InputPrice,
		OutputPer1K: c.OutputPrice,
		Currency:    c.Currency,
	}
}

// Language returns the parsed target language, or lang.Default if unset
// or invalid. Call Validate first to surface invalid codes.
func (c Config) Language() lang.Language {
	l, err := lang.Parse(c.TargetLang)
	if err != nil {
		return lang.Default
	}
	return l.OrDefault()
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// dir returns the configuration directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/docpipe.
func dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docpipe"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "docpipe"), nil
}

// Path returns the full path to the config file.
func Path() (string, error) {
	d, err := dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config.toml"), nil
}

// Load reads the config file and the process environment.
// A missing config file is not an error.
func Load() (Config, error) {
	p, err := Path()
	if err != nil {
		return Config{}, err
	}
	return LoadFrom(p, nil)
}

// LoadFrom applies the file at path, then environ, over the defaults.
// A nil environ reads the process environment.
func LoadFrom(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) // #nosec G304 -- config path is constructed from home dir
	switch {
	case err == nil:
		dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("environment: %w: %w", ErrInvalidValue, err)
	}

	return cfg, nil
}

// ---------------------------------------------------------------------------
// File editing (config set/get/list)
// ---------------------------------------------------------------------------

// Keys returns the valid config keys in display order.
func Keys() []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.name
	}
	return out
}

func lookupKey(key string) (kind, error) {
	for _, k := range keys {
		if k.name == key {
			return k.kind, nil
		}
	}
	return 0, fmt.Errorf("%q (valid keys: %s): %w", key, strings.Join(Keys(), ", "), ErrUnknownKey)
}

// parseValue converts value to the TOML type stored for kind.
func parseValue(key string, k kind, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch k {
	case kindInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s wants an integer, got %q: %w", key, value, ErrInvalidValue)
		}
		return n, nil
	case kindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%s wants a number, got %q: %w", key, value, ErrInvalidValue)
		}
		return f, nil
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%s wants a positive duration like 60m, got %q: %w", key, value, ErrInvalidValue)
		}
		return d.String(), nil
	}
	if key == KeyTargetLang {
		l, err := lang.Parse(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %w", key, ErrInvalidValue, err)
		}
		return l.String(), nil
	}
	return value, nil
}

func readFile(p string) (map[string]any, error) {
	data, err := os.ReadFile(p) // #nosec G304 -- config path is constructed from home dir
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	m := map[string]any{}
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("config file %s: %w", p, err)
	}
	return m, nil
}

// Set validates and stores a single key in the config file.
// Creates the config directory and file if they don't exist.
func Set(key, value string) error {
	k, err := lookupKey(key)
	if err != nil {
		return err
	}
	v, err := parseValue(key, k, value)
	if err != nil {
		return err
	}

	p, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil { // #nosec G301 -- user config dir
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	m, err := readFile(p)
	if err != nil {
		return err
	}
	m[key] = v

	data, err := toml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	// #nosec G306 -- config file with standard permissions
	if err := os.WriteFile(p, data, 0644); err != nil {
		return fmt.Errorf("cannot write config file: %w", err)
	}
	return nil
}

// Get returns the value stored in the config file for key.
// Returns "" if the key is valid but unset.
func Get(key string) (string, error) {
	if _, err := lookupKey(key); err != nil {
		return "", err
	}
	all, err := List()
	if err != nil {
		return "", err
	}
	return all[key], nil
}

// List returns all values stored in the config file.
func List() (map[string]string, error) {
	p, err := Path()
	if err != nil {
		return nil, err
	}
	m, err := readFile(p)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprint(v)
	}
	return out, nil
}

// SortedKeys returns the keys of m in display order; unknown keys come last,
// alphabetically.
func SortedKeys(m map[string]string) []string {
	var known, unknown []string
	for _, k := range Keys() {
		if _, ok := m[k]; ok {
			known = append(known, k)
		}
	}
	for k := range m {
		if _, err := lookupKey(k); err != nil {
			unknown = append(unknown, k)
		}
	}
	slices.Sort(unknown)
	return append(known, unknown...)
}

// ---------------------------------------------------------------------------
// Output paths
// ---------------------------------------------------------------------------

// ResolveOutputPath resolves the final output path using the following precedence:
//  1. If output is absolute, use it as-is
//  2. If output is relative and outputDir is set, join them
//  3. If output is empty, use defaultName in outputDir (or cwd if no outputDir)
func ResolveOutputPath(output, outputDir, defaultName string) string {
	if output != "" && filepath.IsAbs(output) {
		return filepath.Clean(output)
	}
	if output != "" {
		if outputDir != "" {
			return filepath.Clean(filepath.Join(outputDir, output))
		}
		return filepath.Clean(output)
	}
	if outputDir != "" {
		return filepath.Clean(filepath.Join(outputDir, defaultName))
	}
	return filepath.Clean(defaultName)
}

// EnsureOutputDir checks that d is a writable directory, creating it if needed.
func EnsureOutputDir(d string) error {
	if d == "" {
		return fmt.Errorf("output-dir cannot be empty: %w", ErrInvalidValue)
	}
	d = ExpandPath(d)

	info, err := os.Stat(d)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := os.MkdirAll(d, 0750); err != nil { // #nosec G301 -- user output dir
				return fmt.Errorf("cannot create directory: %w", err)
			}
			return nil
		}
		return fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", d, ErrNotDirectory)
	}

	// Probe writability with a temp file.
	f, err := os.CreateTemp(d, ".docpipe-write-test-*")
	if err != nil {
		return fmt.Errorf("%s: %w", d, ErrNotWritable)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, p[2:])
	}
	return p
}
