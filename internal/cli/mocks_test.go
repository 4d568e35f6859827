package cli

import (
	"context"
	"sync"

	"github.com/alnah/go-docpipe/internal/completion"
	"github.com/alnah/go-docpipe/internal/config"
	"github.com/alnah/go-docpipe/internal/usage"
)

// ---------------------------------------------------------------------------
// Mock ConfigLoader
// ---------------------------------------------------------------------------

type mockConfigLoader struct {
	LoadFunc func() (config.Config, error)

	mu        sync.Mutex
	loadCalls int
}

func (m *mockConfigLoader) Load() (config.Config, error) {
	m.mu.Lock()
	m.loadCalls++
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc()
	}
	return testConfig(), nil
}

func (m *mockConfigLoader) LoadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCalls
}

// ---------------------------------------------------------------------------
// Mock ClientFactory + Client
// ---------------------------------------------------------------------------

type clientCall struct {
	Provider string
	APIKey   string
}

type mockClientFactory struct {
	NewClientErr error

	mu         sync.Mutex
	calls      []clientCall
	mockClient *mockClient
}

func (m *mockClientFactory) NewClient(provider, apiKey string, _ ...completion.Option) (completion.Client, error) {
	m.mu.Lock()
	m.calls = append(m.calls, clientCall{Provider: provider, APIKey: apiKey})
	m.mu.Unlock()

	if m.NewClientErr != nil {
		return nil, m.NewClientErr
	}
	if m.mockClient != nil {
		return m.mockClient, nil
	}
	return &mockClient{}, nil
}

func (m *mockClientFactory) Calls() []clientCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]clientCall(nil), m.calls...)
}

type mockClient struct {
	CompleteFunc func(ctx context.Context, req completion.Request) (completion.Response, error)

	mu    sync.Mutex
	calls []completion.Request
}

func (m *mockClient) Complete(ctx context.Context, req completion.Request) (completion.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return completion.Response{Text: "translated", Usage: testUsage()}, nil
}

func (m *mockClient) Calls() []completion.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]completion.Request(nil), m.calls...)
}

func testUsage() usage.Stats {
	return usage.DefaultPricing().Cost(100, 50)
}

// Compile-time interface verification.
var (
	_ ConfigLoader      = (*mockConfigLoader)(nil)
	_ ClientFactory     = (*mockClientFactory)(nil)
	_ completion.Client = (*mockClient)(nil)
)
