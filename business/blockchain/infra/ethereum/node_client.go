// Package ethereum provides Ethereum blockchain infrastructure adapters.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flashloan-executor/business/blockchain/app"
	"github.com/fd1az/flashloan-executor/business/blockchain/domain"
	"github.com/fd1az/flashloan-executor/internal/apperror"
	"github.com/fd1az/flashloan-executor/internal/circuitbreaker"
	"github.com/fd1az/flashloan-executor/internal/logger"
	"github.com/fd1az/flashloan-executor/internal/ratelimit"
)

const (
	tracerName = "github.com/fd1az/flashloan-executor/business/blockchain/infra/ethereum"
	meterName  = "github.com/fd1az/flashloan-executor/business/blockchain/infra/ethereum"
)

// Backend is the subset of *ethclient.Client used by the adapters in this package.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// NodeClientConfig holds node client settings.
type NodeClientConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// nodeClientMetrics holds OTEL metric instruments.
type nodeClientMetrics struct {
	calls   metric.Int64Counter
	latency metric.Float64Histogram
}

// NodeClient implements app.NodeClient over JSON-RPC.
type NodeClient struct {
	backend Backend
	logger  logger.LoggerInterface
	limiter *ratelimit.Limiter
	cb      *circuitbreaker.CircuitBreaker[any]

	tracer  trace.Tracer
	metrics *nodeClientMetrics
}

var (
	_ app.NodeClient = (*NodeClient)(nil)
	_ app.Pinger     = (*NodeClient)(nil)
)

// NewNodeClient creates a node client over backend.
func NewNodeClient(backend Backend, cfg NodeClientConfig, log logger.LoggerInterface) (*NodeClient, error) {
	n := &NodeClient{
		backend: backend,
		logger:  log,
		limiter: ratelimit.New(cfg.RequestsPerSecond, cfg.Burst),
		tracer:  otel.Tracer(tracerName),
	}

	if err := n.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	n.initCircuitBreaker()

	return n, nil
}

func (n *NodeClient) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	n.metrics = &nodeClientMetrics{}

	n.metrics.calls, err = meter.Int64Counter(
		"eth_rpc_calls_total",
		metric.WithDescription("Total JSON-RPC calls by method and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	n.metrics.latency, err = meter.Float64Histogram(
		"eth_rpc_latency_ms",
		metric.WithDescription("JSON-RPC call latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	return nil
}

func (n *NodeClient) initCircuitBreaker() {
	cfg := circuitbreaker.DefaultConfig("eth-node")
	cfg.IsSuccessful = func(err error) bool { return !countsAgainstBreaker(err) }
	cfg.OnStateChange = func(name string, from, to gobreaker.State) {
		n.logger.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	n.cb = circuitbreaker.New[any](cfg)
}

// call runs fn through the rate limiter and circuit breaker, recording span and metrics.
func call[T any](ctx context.Context, n *NodeClient, method string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	start := time.Now()

	if err := n.limiter.Wait(ctx); err != nil {
		// The limiter rejects waits that would overrun the deadline.
		n.record(ctx, method, "throttled", start)
		return zero, apperror.New(apperror.CodeNetworkError,
			apperror.WithCause(err),
			apperror.WithReason(domain.ReasonTimeout),
			apperror.WithContext(method+": rate limited"))
	}

	res, err := n.cb.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		n.record(ctx, method, "error", start)
		return zero, classifyError(err, method)
	}

	n.record(ctx, method, "ok", start)
	if res == nil {
		return zero, nil
	}
	return res.(T), nil
}

func (n *NodeClient) record(ctx context.Context, method, outcome string, start time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", outcome),
	)
	n.metrics.calls.Add(ctx, 1, attrs)
	n.metrics.latency.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
}

// PendingNonce returns the pending nonce for account.
func (n *NodeClient) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	ctx, span := n.tracer.Start(ctx, "eth.pending_nonce",
		trace.WithAttributes(attribute.String("account", account.Hex())),
	)
	defer span.End()

	nonce, err := call(ctx, n, "eth_getTransactionCount", func(ctx context.Context) (uint64, error) {
		return n.backend.PendingNonceAt(ctx, account)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "nonce fetch failed")
		return 0, err
	}

	span.SetAttributes(attribute.Int64("nonce", int64(nonce)))
	span.SetStatus(codes.Ok, "fetched")
	return nonce, nil
}

// Broadcast submits tx. A node that already holds tx reports success.
func (n *NodeClient) Broadcast(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	hash := tx.Hash()
	ctx, span := n.tracer.Start(ctx, "eth.broadcast",
		trace.WithAttributes(
			attribute.String("tx_hash", hash.Hex()),
			attribute.Int64("nonce", int64(tx.Nonce())),
		),
	)
	defer span.End()

	_, err := call(ctx, n, "eth_sendRawTransaction", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, n.backend.SendTransaction(ctx, tx)
	})
	if err != nil {
		if apperror.GetReason(err) == domain.ReasonAlreadyKnown {
			span.AddEvent("already_known")
			n.logger.Debug(ctx, "transaction already known to node", "tx_hash", hash.Hex())
			span.SetStatus(codes.Ok, "already known")
			return hash, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "broadcast failed")
		return common.Hash{}, err
	}

	span.SetStatus(codes.Ok, "broadcast")
	return hash, nil
}

// Receipt returns the receipt for hash, or nil if the transaction is not mined yet.
func (n *NodeClient) Receipt(ctx context.Context, hash common.Hash) (*domain.Receipt, error) {
	ctx, span := n.tracer.Start(ctx, "eth.receipt",
		trace.WithAttributes(attribute.String("tx_hash", hash.Hex())),
	)
	defer span.End()

	r, err := call(ctx, n, "eth_getTransactionReceipt", func(ctx context.Context) (*types.Receipt, error) {
		r, err := n.backend.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return r, err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "receipt fetch failed")
		return nil, err
	}

	if r == nil {
		span.AddEvent("not_mined")
		return nil, nil
	}

	receipt := &domain.Receipt{
		TxHash:            r.TxHash,
		Status:            r.Status,
		GasUsed:           r.GasUsed,
		EffectiveGasPrice: r.EffectiveGasPrice,
	}
	if r.BlockNumber != nil {
		receipt.BlockNumber = r.BlockNumber.Uint64()
	}

	span.SetAttributes(
		attribute.Int64("status", int64(r.Status)),
		attribute.Int64("gas_used", int64(r.GasUsed)),
	)
	span.SetStatus(codes.Ok, "mined")
	return receipt, nil
}

// Ping checks the node answers eth_blockNumber.
func (n *NodeClient) Ping(ctx context.Context) error {
	_, err := call(ctx, n, "eth_blockNumber", func(ctx context.Context) (uint64, error) {
		return n.backend.BlockNumber(ctx)
	})
	return err
}
