package cli

import (
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/alnah/go-docpipe/internal/completion"
	"github.com/alnah/go-docpipe/internal/config"
)

// Env holds injectable dependencies for CLI commands.
// This is the central injection point for testing CLI commands in isolation.
//
// Env must not be nil when passed to command functions. Use DefaultEnv()
// or NewEnv() to create a valid instance.
type Env struct {
	// I/O and environment
	Stderr io.Writer
	Stdout io.Writer
	Getenv func(string) string

	// Logger is replaced by main once the log level is known.
	Logger *zap.Logger

	// Factories for domain objects
	ConfigLoader  ConfigLoader
	ClientFactory ClientFactory
}

// ConfigLoader loads the resolved configuration.
type ConfigLoader interface {
	Load() (config.Config, error)
}

// ClientFactory creates completion clients.
type ClientFactory interface {
	NewClient(provider, apiKey string, opts ...completion.Option) (completion.Client, error)
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stderr = w
	}
}

// WithStdout sets the stdout writer.
func WithStdout(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stdout = w
	}
}

// WithGetenv sets the environment variable getter.
func WithGetenv(fn func(string) string) EnvOption {
	return func(e *Env) {
		e.Getenv = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) EnvOption {
	return func(e *Env) {
		e.Logger = l
	}
}

// WithConfigLoader sets the config loader.
func WithConfigLoader(l ConfigLoader) EnvOption {
	return func(e *Env) {
		e.ConfigLoader = l
	}
}

// WithClientFactory sets the completion client factory.
func WithClientFactory(f ClientFactory) EnvOption {
	return func(e *Env) {
		e.ClientFactory = f
	}
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	return &Env{
		Stderr:        os.Stderr,
		Stdout:        os.Stdout,
		Getenv:        os.Getenv,
		Logger:        zap.NewNop(),
		ConfigLoader:  &defaultConfigLoader{},
		ClientFactory: &defaultClientFactory{},
	}
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// ---------------------------------------------------------------------------
// Default implementations - delegate to real packages
// ---------------------------------------------------------------------------

// defaultConfigLoader implements ConfigLoader using the config package.
type defaultConfigLoader struct{}

func (defaultConfigLoader) Load() (config.Config, error) {
	return config.Load()
}

// defaultClientFactory implements ClientFactory using the completion package.
type defaultClientFactory struct{}

func (defaultClientFactory) NewClient(provider, apiKey string, opts ...completion.Option) (completion.Client, error) {
	return completion.New(provider, apiKey, opts...)
}

// Compile-time interface verification.
var (
	_ ConfigLoader  = (*defaultConfigLoader)(nil)
	_ ClientFactory = (*defaultClientFactory)(nil)
)
