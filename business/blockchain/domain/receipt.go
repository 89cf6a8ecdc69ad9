package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Receipt is the on-chain execution record of a mined transaction.
type Receipt struct {
	TxHash            common.Hash
	Status            uint64 // 1 success, 0 reverted
	GasUsed           uint64
	BlockNumber       uint64
	EffectiveGasPrice *big.Int
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return r.Status == 1
}

// Reasons attached to RPC_ERROR and NETWORK_ERROR by the node client.
const (
	ReasonNonceTooLow  = "nonce_too_low"
	ReasonAlreadyKnown = "already_known"
	ReasonUnderpriced  = "underpriced"
	ReasonCircuitOpen  = "circuit_open"
	ReasonTimeout      = "timeout"
	ReasonMalformed    = "malformed_response"
)
