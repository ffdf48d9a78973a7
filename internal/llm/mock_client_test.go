package llm

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient 基于testify/mock的大模型客户端
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Generate(ctx context.Context, prompt string, options ...RequestOption) (*Response, error) {
	args := m.Called(ctx, prompt)
	if r := args.Get(0); r != nil {
		return r.(*Response), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) Chat(ctx context.Context, messages []Message, options ...RequestOption) (*Response, error) {
	args := m.Called(ctx, messages)
	if r := args.Get(0); r != nil {
		return r.(*Response), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) Name() string {
	return "mock-model"
}
