// Package di contains dependency injection tokens for the blockchain context.
package di

import (
	"github.com/fd1az/flashloan-executor/business/blockchain/app"
	"github.com/fd1az/flashloan-executor/business/blockchain/infra/ethereum"
	"github.com/fd1az/flashloan-executor/internal/di"
)

// Public service tokens - exposed to other modules
var (
	NodeService = di.NewToken[*app.NodeService]("blockchain.NodeService")
	GasOracle   = di.NewToken[app.GasOracle]("blockchain.GasOracle")
	HeadWatcher = di.NewToken[*ethereum.HeadWatcher]("blockchain.HeadWatcher")
)

// Private dependency tokens - internal to blockchain module
var (
	NodeClient = di.NewToken[*ethereum.NodeClient]("blockchain:nodeClient")
	Relay      = di.NewToken[app.Broadcaster]("blockchain:relay")
)

func GetNodeService(c di.ServiceRegistry) *app.NodeService {
	return di.GetToken(c, NodeService)
}

func GetGasOracle(c di.ServiceRegistry) app.GasOracle {
	return di.GetToken(c, GasOracle)
}

func GetHeadWatcher(c di.ServiceRegistry) *ethereum.HeadWatcher {
	return di.GetToken(c, HeadWatcher)
}

func GetNodeClient(c di.ServiceRegistry) *ethereum.NodeClient {
	return di.GetToken(c, NodeClient)
}
