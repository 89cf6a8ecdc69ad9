package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// State is a node of the submission state machine.
type State string

const (
	StateBuilt     State = "Built"
	StateSigned    State = "Signed"
	StateSubmitted State = "Submitted"
	StateConfirmed State = "Confirmed"
	StateReverted  State = "Reverted"
	StateTimedOut  State = "TimedOut"
	StateFailed    State = "Failed"
)

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	switch s {
	case StateConfirmed, StateReverted, StateTimedOut, StateFailed:
		return true
	default:
		return false
	}
}

func (s State) String() string {
	return string(s)
}

// ParseState resolves a terminal state name, ignoring case.
func ParseState(name string) (State, error) {
	for _, s := range []State{StateConfirmed, StateReverted, StateTimedOut, StateFailed} {
		if strings.EqualFold(name, string(s)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown terminal state %q", name)
}

// ErrorKind is the stable failure name reported in ExecutionResult.Error.
type ErrorKind string

const (
	KindInvalidPlan         ErrorKind = "InvalidPlan"
	KindUnsupportedProvider ErrorKind = "UnsupportedProvider"
	KindSigningError        ErrorKind = "SigningError"
	KindNetworkError        ErrorKind = "NetworkError"
	KindRPCError            ErrorKind = "RpcError"
	KindDuplicateExecution  ErrorKind = "DuplicateExecution"
	KindTimedOut            ErrorKind = "TimedOut"
	KindReverted            ErrorKind = "Reverted"
	KindCancelled           ErrorKind = "Cancelled"
	KindInternal            ErrorKind = "InternalError"
)

// Outcome is the terminal state of one attempt before it is reported.
// TxHash is zero when nothing was broadcast. GasUsed and EffectiveGasPrice
// are set only when a receipt was observed.
type Outcome struct {
	State             State
	TxHash            common.Hash
	GasUsed           *uint64
	EffectiveGasPrice *big.Int
	Err               error
}

// Broadcasted reports whether the outcome carries a transaction hash.
func (o Outcome) Broadcasted() bool {
	return o.TxHash != (common.Hash{})
}
