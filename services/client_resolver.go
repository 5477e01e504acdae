package services

import (
	"sort"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/naisu-labs/naisu/clients/evm"
	"github.com/pkg/errors"
)

// ClientResolver provides access to chain-specific clients
type ClientResolver interface {
	// GetClient returns the client for the specified chain ID
	GetClient(chainID uint64) (evm.ChainClient, error)
	ChainIDs() []uint64
}

// SimpleClientResolver keeps a map of chain IDs to clients
type SimpleClientResolver struct {
	clients map[uint64]evm.ChainClient
}

func NewSimpleClientResolver(clients map[uint64]evm.ChainClient) *SimpleClientResolver {
	return &SimpleClientResolver{
		clients: clients,
	}
}

// NewClientResolverFromEthClients wraps dialed ethclient.Client instances
func NewClientResolverFromEthClients(clients map[uint64]*ethclient.Client) *SimpleClientResolver {
	out := make(map[uint64]evm.ChainClient, len(clients))
	for chainID, client := range clients {
		out[chainID] = client
	}

	return NewSimpleClientResolver(out)
}

func (r *SimpleClientResolver) GetClient(chainID uint64) (evm.ChainClient, error) {
	client, ok := r.clients[chainID]
	if !ok {
		return nil, errors.Errorf("no client found for chain ID %d", chainID)
	}
	return client, nil
}

// ChainIDs returns the resolvable chains in ascending order
func (r *SimpleClientResolver) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}
