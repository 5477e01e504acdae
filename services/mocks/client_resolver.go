package mocks

import (
	"github.com/naisu-labs/naisu/clients/evm"
	"github.com/stretchr/testify/mock"
)

// MockClientResolver for testing
type MockClientResolver struct {
	mock.Mock
}

func (m *MockClientResolver) GetClient(chainID uint64) (evm.ChainClient, error) {
	args := m.Called(chainID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(evm.ChainClient), args.Error(1)
}

func (m *MockClientResolver) ChainIDs() []uint64 {
	args := m.Called()
	return args.Get(0).([]uint64)
}
