package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
)

// NonceSubstitution records that the live chain nonce replaced the planned one.
type NonceSubstitution struct {
	Planned uint64
	Live    uint64
}

// UnsignedTransaction is the builder output.
type UnsignedTransaction struct {
	OpportunityID string
	Provider      string
	To            common.Address
	Nonce         uint64
	Data          types.TxData
	Substitution  *NonceSubstitution
}

// SignedTransaction is ready for broadcast.
type SignedTransaction struct {
	Tx   *types.Transaction
	Hash common.Hash
	From common.Address
}

// Attempt is the journal record of one execution.
type Attempt struct {
	ID            uuid.UUID
	OpportunityID string
	Provider      string
	Account       common.Address
	PlannedNonce  uint64
	LiveNonce     *uint64
	TxHash        common.Hash // signed hash, set once signed even if never broadcast
	Broadcasts    int
	State         State
	ErrorKind     ErrorKind
	Detail        string
	GasUsed       *uint64
	StartedAt     time.Time
	FinishedAt    time.Time
}

// NewAttempt starts an attempt record for plan.
func NewAttempt(plan ExecutionPlan, now time.Time) *Attempt {
	return &Attempt{
		ID:            uuid.New(),
		OpportunityID: plan.OpportunityID,
		Provider:      plan.FlashloanProvider,
		PlannedNonce:  plan.Nonce,
		StartedAt:     now,
	}
}
