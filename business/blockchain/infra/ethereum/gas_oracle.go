package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flashloan-executor/business/blockchain/app"
	"github.com/fd1az/flashloan-executor/business/blockchain/domain"
	"github.com/fd1az/flashloan-executor/internal/apperror"
	"github.com/fd1az/flashloan-executor/internal/cache"
	"github.com/fd1az/flashloan-executor/internal/circuitbreaker"
	"github.com/fd1az/flashloan-executor/internal/logger"
)

const tipCacheKey = "tip"

// GasOracleConfig holds configuration for the gas oracle.
type GasOracleConfig struct {
	CacheTTL time.Duration // how long a suggested tip is reused
	MaxTip   *big.Int      // ceiling applied to node suggestions; nil disables
}

// DefaultGasOracleConfig returns sensible defaults.
func DefaultGasOracleConfig() GasOracleConfig {
	return GasOracleConfig{
		CacheTTL: 12 * time.Second, // ~1 block
	}
}

// gasOracleMetrics holds OTEL metric instruments.
type gasOracleMetrics struct {
	tipFetches  metric.Int64Counter
	tipGwei     metric.Float64Gauge
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
}

// GasOracle implements app.GasOracle using eth_maxPriorityFeePerGas.
type GasOracle struct {
	config  GasOracleConfig
	logger  logger.LoggerInterface
	backend Backend

	tipCache *cache.Cache[string, *big.Int]
	cb       *circuitbreaker.CircuitBreaker[*big.Int]

	tracer  trace.Tracer
	metrics *gasOracleMetrics
}

var _ app.GasOracle = (*GasOracle)(nil)

// NewGasOracle creates a new gas oracle instance.
func NewGasOracle(backend Backend, cfg GasOracleConfig, log logger.LoggerInterface) (*GasOracle, error) {
	g := &GasOracle{
		config:   cfg,
		logger:   log,
		backend:  backend,
		tipCache: cache.New[string, *big.Int](5 * time.Minute),
		tracer:   otel.Tracer(tracerName),
	}

	if err := g.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	cbCfg := circuitbreaker.DefaultConfig("gas-oracle")
	cbCfg.IsSuccessful = func(err error) bool { return !countsAgainstBreaker(err) }
	g.cb = circuitbreaker.New[*big.Int](cbCfg)

	return g, nil
}

func (g *GasOracle) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	g.metrics = &gasOracleMetrics{}

	g.metrics.tipFetches, err = meter.Int64Counter(
		"gas_tip_fetches_total",
		metric.WithDescription("Total priority fee fetch attempts"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return err
	}

	g.metrics.tipGwei, err = meter.Float64Gauge(
		"gas_tip_gwei",
		metric.WithDescription("Last suggested priority fee in gwei"),
		metric.WithUnit("gwei"),
	)
	if err != nil {
		return err
	}

	g.metrics.cacheHits, err = meter.Int64Counter(
		"gas_cache_hits_total",
		metric.WithDescription("Priority fee cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return err
	}

	g.metrics.cacheMisses, err = meter.Int64Counter(
		"gas_cache_misses_total",
		metric.WithDescription("Priority fee cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// SuggestTip returns the node's suggested priority fee, cached for CacheTTL.
func (g *GasOracle) SuggestTip(ctx context.Context) (*big.Int, error) {
	ctx, span := g.tracer.Start(ctx, "gas.suggest_tip")
	defer span.End()

	if tip, found := g.tipCache.Get(ctx, tipCacheKey); found {
		g.metrics.cacheHits.Add(ctx, 1)
		span.AddEvent("cache_hit")
		return new(big.Int).Set(tip), nil
	}

	g.metrics.cacheMisses.Add(ctx, 1)
	g.metrics.tipFetches.Add(ctx, 1)

	tip, err := g.cb.Execute(func() (*big.Int, error) {
		return g.backend.SuggestGasTipCap(ctx)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, apperror.New(apperror.CodeGasEstimationFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to get gas tip cap"))
	}

	if g.config.MaxTip != nil && tip.Cmp(g.config.MaxTip) > 0 {
		span.AddEvent("tip_exceeded_max",
			trace.WithAttributes(attribute.String("wei", tip.String())))
		g.logger.Warn(ctx, "suggested tip exceeds max", "tip_gwei", domain.Gwei(tip))
		tip = new(big.Int).Set(g.config.MaxTip)
	}

	g.tipCache.Set(ctx, tipCacheKey, tip, g.config.CacheTTL)
	g.metrics.tipGwei.Record(ctx, domain.GweiFloat(tip))

	span.SetAttributes(attribute.String("tip_gwei", domain.Gwei(tip)))
	span.SetStatus(codes.Ok, "fetched")

	return new(big.Int).Set(tip), nil
}

// Close releases the cache sweeper.
func (g *GasOracle) Close() error {
	g.tipCache.Close()
	return nil
}
