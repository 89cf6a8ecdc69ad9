// Package blockchain implements the blockchain bounded context: node access,
// fee suggestions, head tracking and private relay submission.
package blockchain

import (
	"context"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/flashloan-executor/business/blockchain/app"
	blockchainDI "github.com/fd1az/flashloan-executor/business/blockchain/di"
	"github.com/fd1az/flashloan-executor/business/blockchain/infra/ethereum"
	"github.com/fd1az/flashloan-executor/business/blockchain/infra/relay"
	"github.com/fd1az/flashloan-executor/internal/config"
	"github.com/fd1az/flashloan-executor/internal/di"
	"github.com/fd1az/flashloan-executor/internal/httpclient"
	"github.com/fd1az/flashloan-executor/internal/logger"
	"github.com/fd1az/flashloan-executor/internal/monolith"
)

// Module implements the blockchain bounded context.
type Module struct{}

// RegisterServices registers all blockchain services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, blockchainDI.NodeClient, func(sr di.ServiceRegistry) *ethereum.NodeClient {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		client := sr.Get("ethClient").(*ethclient.Client)

		node, err := ethereum.NewNodeClient(client, ethereum.NodeClientConfig{
			RequestsPerSecond: cfg.Ethereum.RequestsPerSecond,
			Burst:             cfg.Ethereum.Burst,
		}, log)
		if err != nil {
			panic("failed to create node client: " + err.Error())
		}
		return node
	})

	// Relay resolves to nil when disabled or when no auth key is available.
	di.RegisterToken(c, blockchainDI.Relay, func(sr di.ServiceRegistry) app.Broadcaster {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		if !cfg.Relay.Enabled {
			return nil
		}

		authKey, err := crypto.HexToECDSA(trimHex(os.Getenv(cfg.Relay.AuthKeyEnv)))
		if err != nil {
			log.Warn(context.Background(), "relay enabled without a valid auth key, using public broadcast",
				"env", cfg.Relay.AuthKeyEnv)
			return nil
		}

		hc, err := httpclient.NewInstrumentedClient(
			httpclient.WithProviderName("relay"),
			httpclient.WithRequestTimeout(cfg.Relay.Timeout),
		)
		if err != nil {
			panic("failed to create relay http client: " + err.Error())
		}
		return relay.NewClient(hc, cfg.Relay.URL, authKey, log)
	})

	di.RegisterToken(c, blockchainDI.NodeService, func(sr di.ServiceRegistry) *app.NodeService {
		node := blockchainDI.GetNodeClient(sr)
		if r := di.GetToken(sr, blockchainDI.Relay); r != nil {
			return app.NewNodeService(node, r)
		}
		return app.NewNodeService(node, nil)
	})

	di.RegisterToken(c, blockchainDI.GasOracle, func(sr di.ServiceRegistry) app.GasOracle {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		client := sr.Get("ethClient").(*ethclient.Client)

		oracleCfg := ethereum.DefaultGasOracleConfig()
		oracleCfg.CacheTTL = cfg.Execution.TipCacheTTL
		oracleCfg.MaxTip = cfg.Execution.MaxGasPriceWei()

		oracle, err := ethereum.NewGasOracle(client, oracleCfg, log)
		if err != nil {
			panic("failed to create gas oracle: " + err.Error())
		}
		return oracle
	})

	di.RegisterToken(c, blockchainDI.HeadWatcher, func(sr di.ServiceRegistry) *ethereum.HeadWatcher {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		client := sr.Get("ethClient").(*ethclient.Client)

		watcherCfg := ethereum.DefaultHeadWatcherConfig(cfg.Ethereum.WebSocketURL)
		if cfg.Ethereum.HeadPollInterval > 0 {
			watcherCfg.PollInterval = cfg.Ethereum.HeadPollInterval
		}
		if cfg.Ethereum.MaxBackoff > 0 {
			watcherCfg.ReconnectDelay = cfg.Ethereum.MaxBackoff
		}

		watcher, err := ethereum.NewHeadWatcher(client, watcherCfg, log)
		if err != nil {
			panic("failed to create head watcher: " + err.Error())
		}
		return watcher
	})

	return nil
}

// Startup starts the head watcher and registers cleanup.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	watcher := blockchainDI.GetHeadWatcher(mono.Services())
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go watcher.Run(watchCtx)
	mono.OnClose(func() error {
		cancel()
		return nil
	})

	if oracle, ok := blockchainDI.GetGasOracle(mono.Services()).(interface{ Close() error }); ok {
		mono.OnClose(oracle.Close)
	}

	svc := blockchainDI.GetNodeService(mono.Services())
	log.Info(ctx, "blockchain module started",
		"chain_id", mono.Config().Ethereum.ChainID,
		"private_relay", svc.UsesRelay(),
		"ws", mono.Config().Ethereum.WebSocketURL != "")
	return nil
}

func trimHex(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
