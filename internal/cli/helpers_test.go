package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alnah/go-docpipe/internal/completion"
	"github.com/alnah/go-docpipe/internal/config"
)

// ---------------------------------------------------------------------------
// syncBuffer - thread-safe bytes.Buffer for concurrent test output
// ---------------------------------------------------------------------------

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Compile-time check that syncBuffer implements io.Writer.
var _ io.Writer = (*syncBuffer)(nil)

// ---------------------------------------------------------------------------
// testEnv - creates a fully mocked Env for testing
// ---------------------------------------------------------------------------

type testMocks struct {
	configLoader  *mockConfigLoader
	clientFactory *mockClientFactory
	client        *mockClient
	stderr        *syncBuffer
	stdout        *syncBuffer
}

// testEnv creates a test Env with all dependencies mocked.
// Returns the Env and the mocks for assertions.
func testEnv(cfg config.Config) (*Env, *testMocks) {
	client := &mockClient{}
	mocks := &testMocks{
		configLoader: &mockConfigLoader{
			LoadFunc: func() (config.Config, error) { return cfg, nil },
		},
		clientFactory: &mockClientFactory{mockClient: client},
		client:        client,
		stderr:        &syncBuffer{},
		stdout:        &syncBuffer{},
	}

	env := NewEnv(
		WithStderr(mocks.stderr),
		WithStdout(mocks.stdout),
		WithGetenv(defaultTestEnv),
		WithConfigLoader(mocks.configLoader),
		WithClientFactory(mocks.clientFactory),
	)
	return env, mocks
}

// testConfig returns the defaults with a model set, so the default
// provider (which has no default model) is usable.
func testConfig() config.Config {
	cfg := config.Default()
	cfg.Model = "test-model"
	return cfg
}

// testConfigIn returns testConfig writing outputs to dir.
func testConfigIn(dir string) config.Config {
	cfg := testConfig()
	cfg.OutputDir = dir
	return cfg
}

// staticEnv returns a getenv function that returns values from the given map.
func staticEnv(env map[string]string) func(string) string {
	return func(key string) string {
		return env[key]
	}
}

// defaultTestEnv returns an API key for every provider.
func defaultTestEnv(key string) string {
	for _, name := range completion.Providers() {
		p, _ := completion.LookupProvider(name)
		if key == p.KeyEnv {
			return "test-" + name + "-key"
		}
	}
	return ""
}

// writeTestFile creates dir/name with content and returns its path.
func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	return path
}

// readTestFile returns the content of path, failing the test if absent.
func readTestFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}
