// Package execution implements the execution bounded context: plan
// validation, transaction building, signing, broadcast and confirmation
// tracking of flashloan arbitrage plans.
package execution

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	blockchainDI "github.com/fd1az/flashloan-executor/business/blockchain/di"
	"github.com/fd1az/flashloan-executor/business/execution/app"
	executionDI "github.com/fd1az/flashloan-executor/business/execution/di"
	"github.com/fd1az/flashloan-executor/business/execution/infra/flashloan"
	"github.com/fd1az/flashloan-executor/business/execution/infra/postgres"
	redisinfra "github.com/fd1az/flashloan-executor/business/execution/infra/redis"
	"github.com/fd1az/flashloan-executor/business/execution/infra/signer"
	"github.com/fd1az/flashloan-executor/internal/config"
	"github.com/fd1az/flashloan-executor/internal/di"
	"github.com/fd1az/flashloan-executor/internal/logger"
	"github.com/fd1az/flashloan-executor/internal/monolith"
)

const (
	GuardMemory = "memory"
	GuardRedis  = "redis"

	SignerSourceEnv            = "env"
	SignerSourceSecretsManager = "secretsmanager"

	startupTimeout = 15 * time.Second
)

// Module implements the execution bounded context.
type Module struct{}

// RegisterServices registers all execution services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, executionDI.Registry, func(sr di.ServiceRegistry) *flashloan.Registry {
		cfg := sr.Get("config").(*config.Config)

		registry, err := flashloan.NewDefaultRegistry(cfg.Flashloan.PoolOverride)
		if err != nil {
			panic("failed to create provider registry: " + err.Error())
		}
		return registry
	})

	di.RegisterToken(c, executionDI.Builder, func(sr di.ServiceRegistry) *app.Builder {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		builder, err := app.NewBuilder(app.BuilderConfig{
			ChainID:     new(big.Int).SetUint64(cfg.Ethereum.ChainID),
			TxType:      cfg.Execution.TxType,
			MaxGasPrice: cfg.Execution.MaxGasPriceWei(),
			DefaultTip:  cfg.Execution.DefaultTipWei(),
		}, executionDI.GetRegistry(sr), blockchainDI.GetGasOracle(sr), log)
		if err != nil {
			panic("failed to create transaction builder: " + err.Error())
		}
		return builder
	})

	di.RegisterToken(c, executionDI.Signer, func(sr di.ServiceRegistry) *signer.Signer {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
		defer cancel()

		keys, err := keySource(ctx, cfg.Signer)
		if err != nil {
			panic("failed to create key source: " + err.Error())
		}
		s, err := signer.New(ctx, keys, new(big.Int).SetUint64(cfg.Ethereum.ChainID), log)
		if err != nil {
			panic("failed to create signer: " + err.Error())
		}
		return s
	})

	// Redis resolves to nil unless the distributed guard is selected.
	di.RegisterToken(c, executionDI.Redis, func(sr di.ServiceRegistry) redis.UniversalClient {
		cfg := sr.Get("config").(*config.Config)
		if cfg.Execution.Guard != GuardRedis {
			return nil
		}
		return redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	})

	di.RegisterToken(c, executionDI.Guard, func(sr di.ServiceRegistry) app.Guard {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		if rdb := executionDI.GetRedis(sr); rdb != nil {
			return redisinfra.NewGuard(rdb, cfg.Execution.GuardTTL, log)
		}
		return app.NewMemoryGuard()
	})

	// Postgres and Journal resolve to nil when the journal is disabled.
	di.RegisterToken(c, executionDI.Postgres, func(sr di.ServiceRegistry) *postgres.Client {
		cfg := sr.Get("config").(*config.Config)
		if !cfg.Postgres.Enabled {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
		defer cancel()

		client, err := postgres.New(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
		if err != nil {
			panic("failed to connect to postgres: " + err.Error())
		}
		return client
	})

	di.RegisterToken(c, executionDI.Journal, func(sr di.ServiceRegistry) *postgres.Journal {
		client := executionDI.GetPostgres(sr)
		if client == nil {
			return nil
		}
		return postgres.NewJournal(client.Pool())
	})

	di.RegisterToken(c, executionDI.Engine, func(sr di.ServiceRegistry) *app.Engine {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		opts := []app.EngineOption{app.WithHeadSource(blockchainDI.GetHeadWatcher(sr))}
		if j := executionDI.GetJournal(sr); j != nil {
			opts = append(opts, app.WithJournal(j))
		}

		engine, err := app.NewEngine(
			engineConfig(cfg),
			blockchainDI.GetNodeService(sr),
			executionDI.GetBuilder(sr),
			executionDI.GetSigner(sr),
			executionDI.GetGuard(sr),
			log,
			opts...,
		)
		if err != nil {
			panic("failed to create execution engine: " + err.Error())
		}
		return engine
	})

	return nil
}

// Startup applies journal migrations, resolves the engine and registers cleanup.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()
	services := mono.Services()

	if pg := executionDI.GetPostgres(services); pg != nil {
		if err := pg.RunMigrations(ctx); err != nil {
			return fmt.Errorf("journal migrations: %w", err)
		}
		mono.OnClose(pg.Close)
	}
	if rdb := executionDI.GetRedis(services); rdb != nil {
		mono.OnClose(rdb.Close)
	}

	executionDI.GetEngine(services)

	log.Info(ctx, "execution module started",
		"signer", executionDI.GetSigner(services).Address().Hex(),
		"tx_type", cfg.Execution.TxType,
		"providers", executionDI.GetRegistry(services).Names(),
		"guard", guardName(cfg),
		"journal", cfg.Postgres.Enabled)
	return nil
}

func keySource(ctx context.Context, cfg config.SignerConfig) (app.KeySource, error) {
	switch cfg.Source {
	case SignerSourceSecretsManager:
		return signer.NewSecretsManagerKeySource(ctx, cfg.Region, cfg.SecretID)
	case SignerSourceEnv, "":
		return signer.NewEnvKeySource(cfg.EnvVar), nil
	default:
		return nil, fmt.Errorf("unknown signer source %q", cfg.Source)
	}
}

func engineConfig(cfg *config.Config) app.EngineConfig {
	ec := app.DefaultEngineConfig()
	if cfg.Ethereum.CallTimeout > 0 {
		ec.CallTimeout = cfg.Ethereum.CallTimeout
	}
	if cfg.Execution.PollInterval > 0 {
		ec.PollInterval = cfg.Execution.PollInterval
	}
	if cfg.Execution.MaxBroadcastAttempts > 0 {
		ec.Retry.MaxAttempts = cfg.Execution.MaxBroadcastAttempts
	}
	if cfg.Execution.InitialBackoff > 0 {
		ec.Retry.InitialBackoff = cfg.Execution.InitialBackoff
	}
	if cfg.Execution.MaxBackoff > 0 {
		ec.Retry.MaxBackoff = cfg.Execution.MaxBackoff
	}
	return ec
}

func guardName(cfg *config.Config) string {
	if cfg.Execution.Guard == GuardRedis {
		return GuardRedis
	}
	return GuardMemory
}
