package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockEngine is a mock of the workflow engine client.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) SendQuery(ctx context.Context, query, user string) (io.ReadCloser, error) {
	args := m.Called(ctx, query, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(io.ReadCloser), args.Error(1)
}
