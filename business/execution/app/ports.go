// Package app contains the submission engine and port definitions for the execution context.
package app

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	blockchainDomain "github.com/fd1az/flashloan-executor/business/blockchain/domain"
	"github.com/fd1az/flashloan-executor/business/execution/domain"
)

// NodeClient is the node capability the engine drives. It never retries.
type NodeClient interface {
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
	Broadcast(ctx context.Context, tx *types.Transaction) (common.Hash, error)
	// Receipt returns (nil, nil) while the transaction is not mined.
	Receipt(ctx context.Context, hash common.Hash) (*blockchainDomain.Receipt, error)
}

// HeadSource wakes receipt polling on new blocks.
type HeadSource interface {
	Subscribe() (<-chan blockchainDomain.Head, func())
}

// TipSource suggests a priority fee for dynamic fee transactions.
type TipSource interface {
	SuggestTip(ctx context.Context) (*big.Int, error)
}

// Signer signs built transactions for a single account.
type Signer interface {
	Sign(ctx context.Context, tx *domain.UnsignedTransaction) (*domain.SignedTransaction, error)
	Address() common.Address
}

// KeySource hands out the signing key for the duration of one signature.
// Callers must zero the key when done.
type KeySource interface {
	Acquire(ctx context.Context) (*ecdsa.PrivateKey, error)
}

// Guard enforces at most one in-flight attempt per opportunity id.
type Guard interface {
	// Acquire claims id at least until deadline. It fails with
	// DUPLICATE_EXECUTION when id is held. The returned release func is
	// idempotent and safe for concurrent use.
	Acquire(ctx context.Context, id string, deadline time.Time) (release func(), err error)
}

// Journal persists terminal attempts.
type Journal interface {
	Record(ctx context.Context, attempt domain.Attempt) error
}

// ProviderAdapter knows one flashloan provider's entry point.
type ProviderAdapter interface {
	Name() string
	// Target is the contract the transaction is sent to.
	Target() common.Address
	// ValidateCalldata checks selector and argument encoding.
	ValidateCalldata(data []byte) error
}

// ProviderRegistry resolves provider names to adapters.
type ProviderRegistry interface {
	Lookup(name string) (ProviderAdapter, bool)
}
