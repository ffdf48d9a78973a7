package embedding

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient 基于testify/mock的嵌入客户端
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if v := args.Get(0); v != nil {
		return v.([]float32), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if v := args.Get(0); v != nil {
		return v.([][]float32), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) Name() string {
	return m.Called().String(0)
}
