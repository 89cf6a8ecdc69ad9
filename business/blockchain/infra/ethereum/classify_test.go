package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sony/gobreaker/v2"

	"github.com/fd1az/flashloan-executor/business/blockchain/domain"
	"github.com/fd1az/flashloan-executor/internal/apperror"
)

type jsonRPCError struct {
	code int
	msg  string
}

func (e jsonRPCError) Error() string  { return e.msg }
func (e jsonRPCError) ErrorCode() int { return e.code }

var _ rpc.Error = jsonRPCError{}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   apperror.Code
		wantReason string
	}{
		{
			name:     "dial refused",
			err:      &net.OpError{Op: "dial", Err: errors.New("connection refused")},
			wantCode: apperror.CodeNetworkError,
		},
		{
			name:       "context deadline",
			err:        fmt.Errorf("post: %w", context.DeadlineExceeded),
			wantCode:   apperror.CodeNetworkError,
			wantReason: domain.ReasonTimeout,
		},
		{
			name:       "breaker open",
			err:        gobreaker.ErrOpenState,
			wantCode:   apperror.CodeNetworkError,
			wantReason: domain.ReasonCircuitOpen,
		},
		{
			name:     "http 502",
			err:      rpc.HTTPError{StatusCode: 502, Status: "502 Bad Gateway"},
			wantCode: apperror.CodeNetworkError,
		},
		{
			name:     "http 401",
			err:      rpc.HTTPError{StatusCode: 401, Status: "401 Unauthorized"},
			wantCode: apperror.CodeRPCError,
		},
		{
			name:       "nonce too low",
			err:        jsonRPCError{code: -32000, msg: "nonce too low: next nonce 5, tx nonce 4"},
			wantCode:   apperror.CodeRPCError,
			wantReason: domain.ReasonNonceTooLow,
		},
		{
			name:       "already known",
			err:        jsonRPCError{code: -32000, msg: "already known"},
			wantCode:   apperror.CodeRPCError,
			wantReason: domain.ReasonAlreadyKnown,
		},
		{
			name:       "malformed",
			err:        &json.SyntaxError{Offset: 3},
			wantCode:   apperror.CodeRPCError,
			wantReason: domain.ReasonMalformed,
		},
		{
			name:     "execution reverted",
			err:      jsonRPCError{code: 3, msg: "execution reverted"},
			wantCode: apperror.CodeRPCError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err, "test")
			if code := apperror.GetCode(got); code != tt.wantCode {
				t.Errorf("code = %s, want %s", code, tt.wantCode)
			}
			if reason := apperror.GetReason(got); reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", reason, tt.wantReason)
			}
			if !strings.Contains(got.Error(), tt.err.Error()) {
				t.Errorf("expected cause in message, got %q", got.Error())
			}
		})
	}

	if classifyError(nil, "x") != nil {
		t.Error("expected nil for nil error")
	}
}

func TestCountsAgainstBreaker(t *testing.T) {
	if countsAgainstBreaker(jsonRPCError{code: -32000, msg: "nonce too low"}) {
		t.Error("json-rpc errors must not trip the breaker")
	}
	if !countsAgainstBreaker(&net.OpError{Op: "dial", Err: errors.New("refused")}) {
		t.Error("dial errors must trip the breaker")
	}
	if countsAgainstBreaker(context.Canceled) {
		t.Error("caller cancellation must not trip the breaker")
	}
}
