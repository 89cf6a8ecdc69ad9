package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	blockchainDomain "github.com/fd1az/flashloan-executor/business/blockchain/domain"
	"github.com/fd1az/flashloan-executor/business/execution/domain"
	"github.com/fd1az/flashloan-executor/internal/apperror"
	"github.com/fd1az/flashloan-executor/internal/logger"
)

const journalTimeout = 2 * time.Second

// EngineConfig holds submission policy.
type EngineConfig struct {
	CallTimeout  time.Duration
	PollInterval time.Duration
	Retry        RetryPolicy
}

// DefaultEngineConfig returns the engine defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		CallTimeout:  10 * time.Second,
		PollInterval: time.Second,
		Retry:        DefaultRetryPolicy(),
	}
}

type engineMetrics struct {
	results    metric.Int64Counter
	broadcasts metric.Int64Counter
	duration   metric.Float64Histogram
	inflight   metric.Int64UpDownCounter
}

// Engine drives one plan through Built, Signed and Submitted to a terminal state.
type Engine struct {
	cfg     EngineConfig
	node    NodeClient
	builder *Builder
	signer  Signer
	guard   Guard
	journal Journal
	heads   HeadSource
	logger  logger.LoggerInterface

	tracer  trace.Tracer
	metrics *engineMetrics
}

// EngineOption configures optional collaborators.
type EngineOption func(*Engine)

// WithJournal records every terminal attempt in j.
func WithJournal(j Journal) EngineOption {
	return func(e *Engine) {
		e.journal = j
	}
}

// WithHeadSource wakes receipt polling on every new head from h.
func WithHeadSource(h HeadSource) EngineOption {
	return func(e *Engine) {
		e.heads = h
	}
}

// NewEngine creates the submission engine.
func NewEngine(
	cfg EngineConfig,
	node NodeClient,
	builder *Builder,
	signer Signer,
	guard Guard,
	log logger.LoggerInterface,
	opts ...EngineOption,
) (*Engine, error) {
	defaults := DefaultEngineConfig()
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaults.CallTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}
	if cfg.Retry.InitialBackoff <= 0 {
		cfg.Retry.InitialBackoff = defaults.Retry.InitialBackoff
	}
	if cfg.Retry.MaxBackoff <= 0 {
		cfg.Retry.MaxBackoff = defaults.Retry.MaxBackoff
	}
	if cfg.Retry.MaxBackoff < cfg.Retry.InitialBackoff {
		cfg.Retry.MaxBackoff = cfg.Retry.InitialBackoff
	}

	e := &Engine{
		cfg:     cfg,
		node:    node,
		builder: builder,
		signer:  signer,
		guard:   guard,
		logger:  log,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return e, nil
}

func (e *Engine) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	e.metrics = &engineMetrics{}

	e.metrics.results, err = meter.Int64Counter(
		"execution_results_total",
		metric.WithDescription("Terminal execution results by state and error kind"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		return err
	}

	e.metrics.broadcasts, err = meter.Int64Counter(
		"execution_broadcast_attempts_total",
		metric.WithDescription("Broadcast attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	e.metrics.duration, err = meter.Float64Histogram(
		"execution_duration_ms",
		metric.WithDescription("Time from plan receipt to terminal state"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	e.metrics.inflight, err = meter.Int64UpDownCounter(
		"execution_inflight",
		metric.WithDescription("Plans currently executing"),
		metric.WithUnit("{plan}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Execute runs plan to completion and returns exactly one result. It never
// blocks past the plan deadline.
func (e *Engine) Execute(ctx context.Context, plan domain.ExecutionPlan) domain.ExecutionResult {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "execution.execute",
		trace.WithAttributes(
			attribute.String("opportunity_id", plan.OpportunityID),
			attribute.String("provider", plan.FlashloanProvider),
			attribute.Int64("deadline", plan.Deadline.Unix()),
			attribute.Int64("time_left_ms", plan.Remaining(start).Milliseconds()),
		),
	)
	defer span.End()

	e.metrics.inflight.Add(ctx, 1)
	defer e.metrics.inflight.Add(ctx, -1)

	attempt := domain.NewAttempt(plan, start)
	attempt.Account = e.signer.Address()

	outcome := e.run(ctx, plan, attempt)
	result := Report(outcome)

	attempt.State = result.State
	attempt.ErrorKind = domain.ErrorKind(result.Error)
	attempt.Detail = result.Detail
	attempt.GasUsed = outcome.GasUsed
	attempt.FinishedAt = time.Now()
	e.record(ctx, attempt)

	attrs := metric.WithAttributes(
		attribute.String("state", result.State.String()),
		attribute.String("error", result.Error),
	)
	e.metrics.results.Add(ctx, 1, attrs)
	e.metrics.duration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)

	span.SetAttributes(
		attribute.String("state", result.State.String()),
		attribute.String("tx_hash", result.TxHash),
	)

	args := []any{
		"opportunity_id", plan.OpportunityID,
		"attempt_id", attempt.ID.String(),
		"state", result.State,
		"tx_hash", result.TxHash,
		"broadcast", outcome.Broadcasted(),
		"duration", time.Since(start),
	}
	if outcome.GasUsed != nil && outcome.EffectiveGasPrice != nil {
		args = append(args, "fee_gwei",
			blockchainDomain.Gwei(blockchainDomain.Fee(*outcome.GasUsed, outcome.EffectiveGasPrice)))
	}
	if result.Success {
		span.SetStatus(codes.Ok, "confirmed")
		e.logger.Info(ctx, "execution confirmed", append(args, "gas_used", result.GasUsed)...)
	} else {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, result.Error)
		e.logger.Warn(ctx, "execution failed", append(append(args, "kind", result.Error), errArgs(outcome.Err)...)...)
	}

	return result
}

func (e *Engine) run(ctx context.Context, plan domain.ExecutionPlan, a *domain.Attempt) domain.Outcome {
	release, err := e.guard.Acquire(ctx, plan.OpportunityID, plan.Deadline)
	if err != nil {
		return failed(err)
	}
	defer release()

	if plan.Expired(time.Now()) {
		return domain.Outcome{
			State: domain.StateTimedOut,
			Err: apperror.New(apperror.CodeDeadlineExceeded,
				apperror.WithContext("deadline reached before submission")),
		}
	}
	if err := ctx.Err(); err != nil {
		return failed(cancelled(err))
	}

	if err := e.builder.Validate(plan); err != nil {
		return failed(err)
	}

	dctx, cancel := context.WithDeadline(ctx, plan.Deadline)
	defer cancel()

	live, err := e.liveNonce(dctx, e.signer.Address())
	if err != nil {
		return e.interrupted(ctx, dctx, err)
	}
	a.LiveNonce = &live

	utx, err := e.builder.Build(dctx, plan, live)
	if err != nil {
		return e.interrupted(ctx, dctx, err)
	}
	e.transition(dctx, plan, domain.StateBuilt)

	signed, err := e.signer.Sign(dctx, utx)
	if err != nil {
		return e.interrupted(ctx, dctx, apperror.Wrap(err, apperror.CodeSigningError, "sign"))
	}
	a.TxHash = signed.Hash
	e.transition(dctx, plan, domain.StateSigned, "tx_hash", signed.Hash.Hex(), "nonce", signed.Tx.Nonce())

	hash, maybeSent, err := e.broadcast(dctx, signed, a)
	if err != nil {
		if maybeSent {
			return unknownOutcome(ctx, signed.Hash,
				apperror.Wrap(err, apperror.CodeNetworkError, "broadcast may have reached the network"))
		}
		return e.interrupted(ctx, dctx, err)
	}
	e.transition(dctx, plan, domain.StateSubmitted, "tx_hash", hash.Hex())

	receipt, err := e.monitor(dctx, hash)
	if err != nil {
		return unknownOutcome(ctx, hash, apperror.New(apperror.CodeDeadlineExceeded,
			apperror.WithCause(err),
			apperror.WithContext("no receipt before deadline")))
	}

	gasUsed := receipt.GasUsed
	if receipt.Succeeded() {
		return domain.Outcome{
			State:             domain.StateConfirmed,
			TxHash:            hash,
			GasUsed:           &gasUsed,
			EffectiveGasPrice: receipt.EffectiveGasPrice,
		}
	}
	return domain.Outcome{
		State:             domain.StateReverted,
		TxHash:            hash,
		GasUsed:           &gasUsed,
		EffectiveGasPrice: receipt.EffectiveGasPrice,
		Err: apperror.New(apperror.CodeTxReverted,
			apperror.WithContext(fmt.Sprintf("block %d", receipt.BlockNumber))),
	}
}

// interrupted finalises a pre-broadcast failure. Caller cancellation and the
// plan deadline take precedence over the error that surfaced them.
func (e *Engine) interrupted(ctx, dctx context.Context, err error) domain.Outcome {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return failed(cancelled(ctxErr))
	}
	if errors.Is(dctx.Err(), context.DeadlineExceeded) {
		return domain.Outcome{
			State: domain.StateTimedOut,
			Err: apperror.New(apperror.CodeDeadlineExceeded,
				apperror.WithCause(err),
				apperror.WithContext("deadline reached before broadcast succeeded")),
		}
	}
	return failed(err)
}

func (e *Engine) transition(ctx context.Context, plan domain.ExecutionPlan, to domain.State, args ...any) {
	trace.SpanFromContext(ctx).AddEvent(to.String())
	e.logger.Debug(ctx, "execution state", append([]any{"opportunity_id", plan.OpportunityID, "state", to}, args...)...)
}

// callContext bounds one node call by the call timeout and, through ctx, the deadline.
func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.CallTimeout)
}

// liveNonce fetches the pending nonce, retrying connectivity failures.
func (e *Engine) liveNonce(ctx context.Context, account common.Address) (uint64, error) {
	return backoff.RetryNotifyWithData(func() (uint64, error) {
		if err := ctx.Err(); err != nil {
			return 0, backoff.Permanent(err)
		}

		cctx, cancel := e.callContext(ctx)
		defer cancel()

		nonce, err := e.node.PendingNonce(cctx, account)
		if err != nil && !apperror.HasCode(err, apperror.CodeNetworkError) {
			return 0, backoff.Permanent(err)
		}
		return nonce, err
	}, e.cfg.Retry.backOff(ctx), func(err error, next time.Duration) {
		e.logger.Warn(ctx, "pending nonce fetch failed, retrying",
			append([]any{"account", account.Hex(), "retry_in", next}, errArgs(err)...)...)
	})
}

// broadcast submits signed until the node accepts it, the attempts run out or
// ctx ends. A "nonce too low" rejection after an attempt that may have reached
// the network is taken as our own transaction having landed. On failure
// maybeSent reports whether any attempt may have reached the network.
func (e *Engine) broadcast(ctx context.Context, signed *domain.SignedTransaction, a *domain.Attempt) (hash common.Hash, maybeSent bool, err error) {
	hash, err = backoff.RetryNotifyWithData(func() (common.Hash, error) {
		if err := ctx.Err(); err != nil {
			return common.Hash{}, backoff.Permanent(err)
		}

		a.Broadcasts++
		cctx, cancel := e.callContext(ctx)
		defer cancel()

		hash, err := e.node.Broadcast(cctx, signed.Tx)
		switch {
		case err == nil:
			e.countBroadcast(ctx, "accepted")
			if hash == (common.Hash{}) {
				hash = signed.Hash
			}
			return hash, nil

		case nonceTooLow(err) && maybeSent:
			e.countBroadcast(ctx, "nonce_consumed")
			e.logger.Warn(ctx, "nonce consumed after an ambiguous broadcast, monitoring signed hash",
				"tx_hash", signed.Hash.Hex(),
				"nonce", signed.Tx.Nonce(),
				"attempt", a.Broadcasts)
			return signed.Hash, nil

		case nonceTooLow(err), underpriced(err):
			e.countBroadcast(ctx, "rejected")
			return common.Hash{}, backoff.Permanent(err)

		case retryable(err):
			if ambiguous(err) {
				maybeSent = true
			}
			e.countBroadcast(ctx, "retry")
			return common.Hash{}, err

		default:
			e.countBroadcast(ctx, "rejected")
			return common.Hash{}, backoff.Permanent(err)
		}
	}, e.cfg.Retry.backOff(ctx), func(err error, next time.Duration) {
		e.logger.Warn(ctx, "broadcast failed, retrying",
			append([]any{"tx_hash", signed.Hash.Hex(), "attempt", a.Broadcasts, "retry_in", next}, errArgs(err)...)...)
	})
	return hash, maybeSent, err
}

func (e *Engine) countBroadcast(ctx context.Context, outcome string) {
	e.metrics.broadcasts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// monitor polls for the receipt of hash on every tick and every new head
// until it is mined or ctx ends. Poll errors are logged and polling continues.
func (e *Engine) monitor(ctx context.Context, hash common.Hash) (*blockchainDomain.Receipt, error) {
	var heads <-chan blockchainDomain.Head
	if e.heads != nil {
		ch, unsubscribe := e.heads.Subscribe()
		defer unsubscribe()
		heads = ch
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		cctx, cancel := e.callContext(ctx)
		receipt, err := e.node.Receipt(cctx, hash)
		cancel()

		switch {
		case err != nil:
			if ctx.Err() == nil {
				e.logger.Warn(ctx, "receipt poll failed", append([]any{"tx_hash", hash.Hex()}, errArgs(err)...)...)
			}
		case receipt != nil:
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		case _, ok := <-heads:
			if !ok {
				heads = nil
			}
		}
	}
}

// record writes the attempt to the journal. Failures never change the result.
func (e *Engine) record(ctx context.Context, a *domain.Attempt) {
	if e.journal == nil {
		return
	}

	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()

	if err := e.journal.Record(jctx, *a); err != nil {
		e.logger.Error(ctx, "journal write failed",
			append([]any{"attempt_id", a.ID.String(), "opportunity_id", a.OpportunityID}, errArgs(err)...)...)
	}
}

// unknownOutcome finalises an attempt whose transaction may be on chain.
// Such an attempt is never Failed: resubmitting the same nonce blindly is unsafe.
func unknownOutcome(ctx context.Context, hash common.Hash, err error) domain.Outcome {
	out := domain.Outcome{State: domain.StateTimedOut, TxHash: hash, Err: err}
	if ctx.Err() != nil {
		out.Err = cancelled(ctx.Err())
	}
	return out
}

func failed(err error) domain.Outcome {
	return domain.Outcome{State: domain.StateFailed, Err: err}
}

func cancelled(cause error) error {
	return apperror.New(apperror.CodeExecutionCancelled, apperror.WithCause(cause))
}

func errArgs(err error) []any {
	if err == nil {
		return nil
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.LogArgs()
	}
	return []any{"error", err.Error()}
}
