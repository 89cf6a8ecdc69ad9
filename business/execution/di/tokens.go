// Package di contains dependency injection tokens for the execution context.
package di

import (
	"github.com/redis/go-redis/v9"

	"github.com/fd1az/flashloan-executor/business/execution/app"
	"github.com/fd1az/flashloan-executor/business/execution/infra/flashloan"
	"github.com/fd1az/flashloan-executor/business/execution/infra/postgres"
	"github.com/fd1az/flashloan-executor/business/execution/infra/signer"
	"github.com/fd1az/flashloan-executor/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Engine   = di.NewToken[*app.Engine]("execution.Engine")
	Registry = di.NewToken[*flashloan.Registry]("execution.Registry")
	Guard    = di.NewToken[app.Guard]("execution.Guard")
)

// Private dependency tokens - internal to execution module
var (
	Builder  = di.NewToken[*app.Builder]("execution:builder")
	Signer   = di.NewToken[*signer.Signer]("execution:signer")
	Redis    = di.NewToken[redis.UniversalClient]("execution:redis")
	Postgres = di.NewToken[*postgres.Client]("execution:postgres")
	Journal  = di.NewToken[*postgres.Journal]("execution:journal")
)

func GetEngine(c di.ServiceRegistry) *app.Engine {
	return di.GetToken(c, Engine)
}

func GetRegistry(c di.ServiceRegistry) *flashloan.Registry {
	return di.GetToken(c, Registry)
}

func GetGuard(c di.ServiceRegistry) app.Guard {
	return di.GetToken(c, Guard)
}

func GetBuilder(c di.ServiceRegistry) *app.Builder {
	return di.GetToken(c, Builder)
}

func GetSigner(c di.ServiceRegistry) *signer.Signer {
	return di.GetToken(c, Signer)
}

// GetRedis returns nil unless the redis guard is configured.
func GetRedis(c di.ServiceRegistry) redis.UniversalClient {
	return di.GetToken(c, Redis)
}

// GetPostgres returns nil unless the journal is enabled.
func GetPostgres(c di.ServiceRegistry) *postgres.Client {
	return di.GetToken(c, Postgres)
}

func GetJournal(c di.ServiceRegistry) *postgres.Journal {
	return di.GetToken(c, Journal)
}
