// Package app contains application services and port definitions for the blockchain context.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fd1az/flashloan-executor/business/blockchain/domain"
)

// NodeClient is the execution node capability used by the submission engine.
// Implementations never retry; every call is bounded by ctx. Failures carry
// apperror codes NETWORK_ERROR or RPC_ERROR.
type NodeClient interface {
	// PendingNonce returns the next nonce for account including pending transactions.
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)

	// Broadcast submits a signed transaction and returns its hash.
	Broadcast(ctx context.Context, tx *types.Transaction) (common.Hash, error)

	// Receipt returns the receipt for hash, or (nil, nil) while it is not mined.
	Receipt(ctx context.Context, hash common.Hash) (*domain.Receipt, error)
}

// Broadcaster submits signed transactions through an alternative channel.
type Broadcaster interface {
	Broadcast(ctx context.Context, tx *types.Transaction) (common.Hash, error)
}

// GasOracle supplies the EIP-1559 priority fee.
type GasOracle interface {
	SuggestTip(ctx context.Context) (*big.Int, error)
}

// HeadWatcher fans out new chain heads to subscribers.
type HeadWatcher interface {
	// Subscribe registers a listener. The returned func unsubscribes and closes the channel.
	Subscribe() (<-chan domain.Head, func())

	// State returns the current feed state.
	State() domain.ConnectionState
}

// Pinger checks node reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
