package domain

import (
	"errors"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// ExecutionResult is the single value returned per plan. It is either
// {Success, TxHash} or {!Success, Error}; the constructors below are the only
// way to build one from code.
type ExecutionResult struct {
	Success bool   `json:"success"`
	TxHash  string `json:"tx_hash,omitempty"`
	Error   string `json:"error,omitempty"`
	GasUsed string `json:"gas_used,omitempty"`
	State   State  `json:"state,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Confirmed builds the result of a mined, successful transaction.
func Confirmed(txHash common.Hash, gasUsed uint64) ExecutionResult {
	return ExecutionResult{
		Success: true,
		TxHash:  txHash.Hex(),
		GasUsed: strconv.FormatUint(gasUsed, 10),
		State:   StateConfirmed,
	}
}

// Failure builds a failed result in the given terminal state.
func Failure(state State, kind ErrorKind, detail string) ExecutionResult {
	return ExecutionResult{
		Success: false,
		Error:   string(kind),
		State:   state,
		Detail:  detail,
	}
}

// WithTxHash returns a copy carrying hash. A zero hash is ignored.
func (r ExecutionResult) WithTxHash(hash common.Hash) ExecutionResult {
	if hash != (common.Hash{}) {
		r.TxHash = hash.Hex()
	}
	return r
}

// WithGasUsed returns a copy carrying the gas used by the receipt.
func (r ExecutionResult) WithGasUsed(gasUsed uint64) ExecutionResult {
	r.GasUsed = strconv.FormatUint(gasUsed, 10)
	return r
}

var (
	errSuccessWithError   = errors.New("successful result carries an error")
	errSuccessWithoutHash = errors.New("successful result has no tx hash")
	errFailureWithoutKind = errors.New("failed result has no error kind")
)

// Validate checks the success/error invariant on decoded results.
func (r ExecutionResult) Validate() error {
	if r.Success {
		if r.Error != "" {
			return errSuccessWithError
		}
		if r.TxHash == "" {
			return errSuccessWithoutHash
		}
		return nil
	}
	if r.Error == "" {
		return errFailureWithoutKind
	}
	return nil
}
