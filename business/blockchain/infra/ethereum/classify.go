package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/fd1az/flashloan-executor/business/blockchain/domain"
	"github.com/fd1az/flashloan-executor/internal/apperror"
	"github.com/fd1az/flashloan-executor/internal/circuitbreaker"
)

// Node rejection messages as returned by geth-compatible txpools.
var rejectionReasons = []struct {
	fragment string
	reason   string
}{
	{"nonce too low", domain.ReasonNonceTooLow},
	{"already known", domain.ReasonAlreadyKnown},
	{"known transaction", domain.ReasonAlreadyKnown},
	{"underpriced", domain.ReasonUnderpriced},
}

// classifyError maps a transport or JSON-RPC failure onto NETWORK_ERROR or RPC_ERROR.
func classifyError(err error, op string) error {
	if err == nil {
		return nil
	}

	if circuitbreaker.IsRejection(err) {
		return apperror.New(apperror.CodeNetworkError,
			apperror.WithCause(err),
			apperror.WithReason(domain.ReasonCircuitOpen),
			apperror.WithContext(op))
	}

	if isNetworkError(err) {
		opts := []apperror.Option{apperror.WithCause(err), apperror.WithContext(op)}
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			opts = append(opts, apperror.WithReason(domain.ReasonTimeout))
		}
		return apperror.New(apperror.CodeNetworkError, opts...)
	}

	opts := []apperror.Option{apperror.WithCause(err), apperror.WithContext(op)}
	if reason := rejectionReason(err); reason != "" {
		opts = append(opts, apperror.WithReason(reason))
	} else if isMalformed(err) {
		opts = append(opts, apperror.WithReason(domain.ReasonMalformed))
	}
	return apperror.New(apperror.CodeRPCError, opts...)
}

// isNetworkError reports whether err means the node could not be reached or
// did not answer in time, as opposed to answering with an error.
func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= http.StatusInternalServerError ||
			httpErr.StatusCode == http.StatusTooManyRequests
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isMalformed(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

func rejectionReason(err error) string {
	msg := strings.ToLower(err.Error())
	for _, r := range rejectionReasons {
		if strings.Contains(msg, r.fragment) {
			return r.reason
		}
	}
	return ""
}

// countsAgainstBreaker trips the breaker only for connectivity failures;
// a node that answers with a JSON-RPC error is healthy.
func countsAgainstBreaker(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && isNetworkError(err)
}
