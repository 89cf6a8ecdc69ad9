package app

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	blockchainDomain "github.com/fd1az/flashloan-executor/business/blockchain/domain"
	"github.com/fd1az/flashloan-executor/business/execution/domain"
	"github.com/fd1az/flashloan-executor/internal/apperror"
	"github.com/fd1az/flashloan-executor/internal/logger"
)

const (
	tracerName = "github.com/fd1az/flashloan-executor/business/execution/app"
	meterName  = "github.com/fd1az/flashloan-executor/business/execution/app"
)

// Transaction types.
const (
	TxTypeLegacy  = "legacy"
	TxTypeDynamic = "dynamic"
)

// BuilderConfig holds the fee policy.
type BuilderConfig struct {
	ChainID     *big.Int
	TxType      string
	MaxGasPrice *big.Int // nil means unbounded
	DefaultTip  *big.Int
}

// Builder validates plans and turns them into unsigned transactions.
type Builder struct {
	cfg       BuilderConfig
	providers ProviderRegistry
	tips      TipSource
	logger    logger.LoggerInterface

	tracer        trace.Tracer
	substitutions metric.Int64Counter
}

// NewBuilder creates a Builder. tips may be nil, in which case dynamic
// transactions use the default tip.
func NewBuilder(cfg BuilderConfig, providers ProviderRegistry, tips TipSource, log logger.LoggerInterface) (*Builder, error) {
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id is required")
	}
	if cfg.TxType == "" {
		cfg.TxType = TxTypeDynamic
	}
	if cfg.TxType != TxTypeLegacy && cfg.TxType != TxTypeDynamic {
		return nil, fmt.Errorf("unknown tx type %q", cfg.TxType)
	}
	if cfg.DefaultTip == nil {
		cfg.DefaultTip = new(big.Int)
	}

	substitutions, err := otel.Meter(meterName).Int64Counter(
		"execution_nonce_substitutions_total",
		metric.WithDescription("Plans whose nonce was replaced by the live chain nonce"),
		metric.WithUnit("{plan}"),
	)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return &Builder{
		cfg:           cfg,
		providers:     providers,
		tips:          tips,
		logger:        log,
		tracer:        otel.Tracer(tracerName),
		substitutions: substitutions,
	}, nil
}

// parsedPlan holds the decoded numeric and byte fields of a plan.
type parsedPlan struct {
	gasLimit uint64
	gasPrice *big.Int
	calldata []byte
	adapter  ProviderAdapter
}

// Validate checks plan without any I/O.
func (b *Builder) Validate(plan domain.ExecutionPlan) error {
	_, err := b.parse(plan)
	return err
}

func (b *Builder) parse(plan domain.ExecutionPlan) (*parsedPlan, error) {
	if plan.OpportunityID == "" {
		return nil, apperror.New(apperror.CodeInvalidPlan, apperror.WithContext("opportunity_id is empty"))
	}

	gasLimit, err := parseGasLimit(plan.GasLimit)
	if err != nil {
		return nil, err
	}

	gasPrice, err := parseGasPrice(plan.GasPrice)
	if err != nil {
		return nil, err
	}
	if b.cfg.MaxGasPrice != nil && gasPrice.Cmp(b.cfg.MaxGasPrice) > 0 {
		return nil, apperror.New(apperror.CodeInvalidPlan,
			apperror.WithContext(fmt.Sprintf("gas_price %s gwei exceeds ceiling %s gwei",
				blockchainDomain.Gwei(gasPrice), blockchainDomain.Gwei(b.cfg.MaxGasPrice))))
	}

	calldata, err := hexutil.Decode(plan.Calldata)
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidPlan,
			apperror.WithCause(err),
			apperror.WithContext("calldata is not 0x-prefixed hex"))
	}

	adapter, ok := b.providers.Lookup(plan.FlashloanProvider)
	if !ok {
		return nil, apperror.New(apperror.CodeUnsupportedProvider,
			apperror.WithContext(fmt.Sprintf("flashloan_provider %q", plan.FlashloanProvider)))
	}
	if err := adapter.ValidateCalldata(calldata); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInvalidPlan, "calldata does not match "+adapter.Name())
	}

	return &parsedPlan{
		gasLimit: gasLimit,
		gasPrice: gasPrice,
		calldata: calldata,
		adapter:  adapter,
	}, nil
}

// Build produces the unsigned transaction for plan using liveNonce.
func (b *Builder) Build(ctx context.Context, plan domain.ExecutionPlan, liveNonce uint64) (*domain.UnsignedTransaction, error) {
	ctx, span := b.tracer.Start(ctx, "execution.build",
		trace.WithAttributes(
			attribute.String("opportunity_id", plan.OpportunityID),
			attribute.String("provider", plan.FlashloanProvider),
			attribute.String("tx_type", b.cfg.TxType),
		),
	)
	defer span.End()

	p, err := b.parse(plan)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	utx := &domain.UnsignedTransaction{
		OpportunityID: plan.OpportunityID,
		Provider:      p.adapter.Name(),
		To:            p.adapter.Target(),
		Nonce:         liveNonce,
	}

	if liveNonce != plan.Nonce {
		utx.Substitution = &domain.NonceSubstitution{Planned: plan.Nonce, Live: liveNonce}
		span.AddEvent("nonce_substituted", trace.WithAttributes(
			attribute.Int64("planned", int64(plan.Nonce)),
			attribute.Int64("live", int64(liveNonce)),
		))
		b.substitutions.Add(ctx, 1)
		b.logger.Warn(ctx, "planned nonce differs from chain, using live nonce",
			"opportunity_id", plan.OpportunityID,
			"planned_nonce", plan.Nonce,
			"live_nonce", liveNonce)
	}

	to := utx.To
	switch b.cfg.TxType {
	case TxTypeLegacy:
		utx.Data = &types.LegacyTx{
			Nonce:    liveNonce,
			GasPrice: p.gasPrice,
			Gas:      p.gasLimit,
			To:       &to,
			Value:    new(big.Int),
			Data:     p.calldata,
		}
	default:
		tip := b.tip(ctx, p.gasPrice)
		span.SetAttributes(attribute.String("tip_gwei", blockchainDomain.Gwei(tip)))
		utx.Data = &types.DynamicFeeTx{
			ChainID:   new(big.Int).Set(b.cfg.ChainID),
			Nonce:     liveNonce,
			GasTipCap: tip,
			GasFeeCap: p.gasPrice,
			Gas:       p.gasLimit,
			To:        &to,
			Value:     new(big.Int),
			Data:      p.calldata,
		}
	}

	return utx, nil
}

// tip asks the oracle for a priority fee, falling back to the default, and
// clamps it to feeCap.
func (b *Builder) tip(ctx context.Context, feeCap *big.Int) *big.Int {
	tip := new(big.Int).Set(b.cfg.DefaultTip)
	if b.tips != nil {
		suggested, err := b.tips.SuggestTip(ctx)
		if err != nil {
			b.logger.Debug(ctx, "tip oracle unavailable, using default tip",
				"error", err.Error(),
				"default_tip_gwei", blockchainDomain.Gwei(tip))
		} else if suggested != nil {
			tip.Set(suggested)
		}
	}

	if tip.Cmp(feeCap) > 0 {
		tip.Set(feeCap)
	}
	return tip
}

func parseGasLimit(s string) (uint64, error) {
	if !isDecimal(s) {
		return 0, apperror.New(apperror.CodeInvalidPlan,
			apperror.WithContext(fmt.Sprintf("gas_limit %q is not a decimal integer", s)))
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, apperror.New(apperror.CodeInvalidPlan,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("gas_limit %q out of range", s)))
	}
	if v == 0 {
		return 0, apperror.New(apperror.CodeInvalidPlan, apperror.WithContext("gas_limit is zero"))
	}
	return v, nil
}

func parseGasPrice(s string) (*big.Int, error) {
	if !isDecimal(s) {
		return nil, apperror.New(apperror.CodeInvalidPlan,
			apperror.WithContext(fmt.Sprintf("gas_price %q is not a decimal integer", s)))
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.BitLen() > 256 {
		return nil, apperror.New(apperror.CodeInvalidPlan,
			apperror.WithContext(fmt.Sprintf("gas_price %q out of range", s)))
	}
	return v, nil
}

// isDecimal reports whether s is a non-empty run of ASCII digits.
func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
