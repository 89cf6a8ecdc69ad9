package app

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/flashloan-executor/business/execution/domain"
	"github.com/fd1az/flashloan-executor/internal/apperror"
)

func TestReport(t *testing.T) {
	hash := common.HexToHash("0xfeed")
	gas := uint64(123456)

	tests := []struct {
		name        string
		outcome     domain.Outcome
		wantSuccess bool
		wantError   string
		wantHash    bool
		wantGas     string
		wantState   domain.State
	}{
		{
			name:        "confirmed",
			outcome:     domain.Outcome{State: domain.StateConfirmed, TxHash: hash, GasUsed: &gas},
			wantSuccess: true,
			wantHash:    true,
			wantGas:     "123456",
			wantState:   domain.StateConfirmed,
		},
		{
			name: "reverted",
			outcome: domain.Outcome{State: domain.StateReverted, TxHash: hash, GasUsed: &gas,
				Err: apperror.New(apperror.CodeTxReverted)},
			wantError: "Reverted",
			wantHash:  true,
			wantGas:   "123456",
			wantState: domain.StateReverted,
		},
		{
			name:      "timed_out_after_broadcast",
			outcome:   domain.Outcome{State: domain.StateTimedOut, TxHash: hash, Err: apperror.New(apperror.CodeDeadlineExceeded)},
			wantError: "TimedOut",
			wantHash:  true,
			wantState: domain.StateTimedOut,
		},
		{
			name:      "cancelled_after_broadcast",
			outcome:   domain.Outcome{State: domain.StateTimedOut, TxHash: hash, Err: apperror.New(apperror.CodeExecutionCancelled, apperror.WithCause(context.Canceled))},
			wantError: "Cancelled",
			wantHash:  true,
			wantState: domain.StateTimedOut,
		},
		{
			name:      "invalid_plan",
			outcome:   domain.Outcome{State: domain.StateFailed, Err: apperror.New(apperror.CodeInvalidPlan)},
			wantError: "InvalidPlan",
			wantState: domain.StateFailed,
		},
		{
			name:      "unsupported_provider",
			outcome:   domain.Outcome{State: domain.StateFailed, Err: apperror.New(apperror.CodeUnsupportedProvider)},
			wantError: "UnsupportedProvider",
			wantState: domain.StateFailed,
		},
		{
			name:      "signing",
			outcome:   domain.Outcome{State: domain.StateFailed, Err: apperror.New(apperror.CodeSigningError)},
			wantError: "SigningError",
			wantState: domain.StateFailed,
		},
		{
			name:      "network",
			outcome:   domain.Outcome{State: domain.StateFailed, Err: apperror.New(apperror.CodeNetworkError)},
			wantError: "NetworkError",
			wantState: domain.StateFailed,
		},
		{
			name:      "rpc",
			outcome:   domain.Outcome{State: domain.StateFailed, Err: apperror.New(apperror.CodeRPCError)},
			wantError: "RpcError",
			wantState: domain.StateFailed,
		},
		{
			name:      "duplicate",
			outcome:   domain.Outcome{State: domain.StateFailed, Err: apperror.New(apperror.CodeDuplicateExecution)},
			wantError: "DuplicateExecution",
			wantState: domain.StateFailed,
		},
		{
			name:      "cancelled_before_broadcast",
			outcome:   domain.Outcome{State: domain.StateFailed, Err: apperror.New(apperror.CodeExecutionCancelled)},
			wantError: "Cancelled",
			wantState: domain.StateFailed,
		},
		{
			name:      "plain_error",
			outcome:   domain.Outcome{State: domain.StateFailed, Err: errors.New("boom")},
			wantError: "InternalError",
			wantState: domain.StateFailed,
		},
		{
			name:      "non_terminal_state_reported_failed",
			outcome:   domain.Outcome{State: domain.StateSigned, Err: apperror.New(apperror.CodeRPCError)},
			wantError: "RpcError",
			wantState: domain.StateFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Report(tt.outcome)

			if err := r.Validate(); err != nil {
				t.Fatalf("result violates invariant: %v (%+v)", err, r)
			}
			if r.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v", r.Success, tt.wantSuccess)
			}
			if r.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", r.Error, tt.wantError)
			}
			if (r.TxHash != "") != tt.wantHash {
				t.Errorf("TxHash = %q, wantHash %v", r.TxHash, tt.wantHash)
			}
			if r.GasUsed != tt.wantGas {
				t.Errorf("GasUsed = %q, want %q", r.GasUsed, tt.wantGas)
			}
			if r.State != tt.wantState {
				t.Errorf("State = %s, want %s", r.State, tt.wantState)
			}
		})
	}
}
