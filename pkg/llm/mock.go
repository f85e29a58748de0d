package llm

import (
	"context"
	"sync"
)

// MockChatModel is a configurable ChatModel for tests. Set CompleteFunc to
// control replies; Requests records every call.
type MockChatModel struct {
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResult, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	// Endpoint is returned by GetEndpoint. Defaults to "http://mock-endpoint".
	Endpoint string

	mu       sync.Mutex
	Requests []CompletionRequest
}

// NewMockChatModel creates a mock that answers with the given replies in order.
// Once the list is exhausted the last reply repeats.
func NewMockChatModel(replies ...string) *MockChatModel {
	m := &MockChatModel{Model: "mock-model", Endpoint: "http://mock-endpoint"}
	if len(replies) > 0 {
		m.CompleteFunc = func(_ context.Context, _ CompletionRequest) (*CompletionResult, error) {
			i := m.Calls() - 1
			if i >= len(replies) {
				i = len(replies) - 1
			}
			return &CompletionResult{Content: replies[i], Model: m.Model}, nil
		}
	}
	return m
}

// Complete implements ChatModel.
func (m *MockChatModel) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResult{Model: m.GetModel()}, nil
}

// Calls returns the number of Complete invocations.
func (m *MockChatModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// LastRequest returns the most recent request, or the zero value.
func (m *MockChatModel) LastRequest() CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return CompletionRequest{}
	}
	return m.Requests[len(m.Requests)-1]
}

// GetModel implements ChatModel.
func (m *MockChatModel) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// GetEndpoint implements ChatModel.
func (m *MockChatModel) GetEndpoint() string {
	if m.Endpoint == "" {
		return "http://mock-endpoint"
	}
	return m.Endpoint
}
