package app

import (
	"github.com/fd1az/flashloan-executor/business/execution/domain"
	"github.com/fd1az/flashloan-executor/internal/apperror"
)

var kindByCode = map[apperror.Code]domain.ErrorKind{
	apperror.CodeInvalidPlan:         domain.KindInvalidPlan,
	apperror.CodeUnsupportedProvider: domain.KindUnsupportedProvider,
	apperror.CodeSigningError:        domain.KindSigningError,
	apperror.CodeNetworkError:        domain.KindNetworkError,
	apperror.CodeRPCError:            domain.KindRPCError,
	apperror.CodeDuplicateExecution:  domain.KindDuplicateExecution,
	apperror.CodeDeadlineExceeded:    domain.KindTimedOut,
	apperror.CodeTxReverted:          domain.KindReverted,
	apperror.CodeExecutionCancelled:  domain.KindCancelled,
	apperror.CodeGuardError:          domain.KindNetworkError,
}

// ErrorKindOf maps an outcome to its reported error kind.
func ErrorKindOf(o domain.Outcome) domain.ErrorKind {
	switch o.State {
	case domain.StateReverted:
		return domain.KindReverted
	case domain.StateTimedOut:
		if apperror.HasCode(o.Err, apperror.CodeExecutionCancelled) {
			return domain.KindCancelled
		}
		return domain.KindTimedOut
	}

	if kind, ok := kindByCode[apperror.GetCode(o.Err)]; ok {
		return kind
	}
	return domain.KindInternal
}

// Report turns a terminal outcome into the result handed back to the caller.
func Report(o domain.Outcome) domain.ExecutionResult {
	if o.State == domain.StateConfirmed {
		var gasUsed uint64
		if o.GasUsed != nil {
			gasUsed = *o.GasUsed
		}
		return domain.Confirmed(o.TxHash, gasUsed)
	}

	state := o.State
	if !state.IsTerminal() {
		state = domain.StateFailed
	}

	var detail string
	if o.Err != nil {
		detail = o.Err.Error()
	}

	r := domain.Failure(state, ErrorKindOf(o), detail).WithTxHash(o.TxHash)
	if o.GasUsed != nil {
		r = r.WithGasUsed(*o.GasUsed)
	}
	return r
}
