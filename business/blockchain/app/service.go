package app

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fd1az/flashloan-executor/business/blockchain/domain"
)

// NodeService is the NodeClient exposed to other modules. Reads always go to
// the node; broadcasts go through the private relay when one is configured.
type NodeService struct {
	node  NodeClient
	relay Broadcaster
}

var _ NodeClient = (*NodeService)(nil)

// NewNodeService creates a NodeService. relay may be nil.
func NewNodeService(node NodeClient, relay Broadcaster) *NodeService {
	return &NodeService{
		node:  node,
		relay: relay,
	}
}

// PendingNonce returns the pending nonce of account.
func (s *NodeService) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	return s.node.PendingNonce(ctx, account)
}

// Broadcast submits tx through the relay if present, otherwise the node.
func (s *NodeService) Broadcast(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	if s.relay != nil {
		return s.relay.Broadcast(ctx, tx)
	}
	return s.node.Broadcast(ctx, tx)
}

// Receipt returns the receipt for hash, or nil when not mined.
func (s *NodeService) Receipt(ctx context.Context, hash common.Hash) (*domain.Receipt, error) {
	return s.node.Receipt(ctx, hash)
}

// UsesRelay reports whether broadcasts are routed through a private relay.
func (s *NodeService) UsesRelay() bool {
	return s.relay != nil
}
