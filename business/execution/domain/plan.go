// Package domain contains the core domain types for the execution context.
package domain

import (
	"encoding/json"
	"time"
)

// ExecutionPlan is a fully-formed flashloan transaction request produced upstream.
// OpportunityID is unique per attempt and keys both idempotency and log correlation.
type ExecutionPlan struct {
	OpportunityID     string
	FlashloanProvider string
	Calldata          string // 0x-prefixed hex
	GasLimit          string // decimal uint64
	GasPrice          string // decimal wei, max fee per gas for dynamic transactions
	Nonce             uint64 // planned nonce, reconciled against the chain
	Deadline          time.Time
}

// planJSON is the wire form. The deadline travels as unix seconds.
type planJSON struct {
	OpportunityID     string `json:"opportunity_id"`
	FlashloanProvider string `json:"flashloan_provider"`
	Calldata          string `json:"calldata"`
	GasLimit          string `json:"gas_limit"`
	GasPrice          string `json:"gas_price"`
	Nonce             uint64 `json:"nonce"`
	Deadline          int64  `json:"deadline"`
}

// MarshalJSON encodes the plan in its wire form.
func (p ExecutionPlan) MarshalJSON() ([]byte, error) {
	return json.Marshal(planJSON{
		OpportunityID:     p.OpportunityID,
		FlashloanProvider: p.FlashloanProvider,
		Calldata:          p.Calldata,
		GasLimit:          p.GasLimit,
		GasPrice:          p.GasPrice,
		Nonce:             p.Nonce,
		Deadline:          p.Deadline.Unix(),
	})
}

// UnmarshalJSON decodes the wire form.
func (p *ExecutionPlan) UnmarshalJSON(data []byte) error {
	var w planJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*p = ExecutionPlan{
		OpportunityID:     w.OpportunityID,
		FlashloanProvider: w.FlashloanProvider,
		Calldata:          w.Calldata,
		GasLimit:          w.GasLimit,
		GasPrice:          w.GasPrice,
		Nonce:             w.Nonce,
		Deadline:          time.Unix(w.Deadline, 0),
	}
	return nil
}

// Expired reports whether the deadline has been reached at now.
func (p ExecutionPlan) Expired(now time.Time) bool {
	return !now.Before(p.Deadline)
}

// Remaining returns the time left until the deadline, never negative.
func (p ExecutionPlan) Remaining(now time.Time) time.Duration {
	if d := p.Deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}
