// Package signer signs execution transactions with key material that is only
// held for the duration of one signature.
package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flashloan-executor/business/execution/app"
	"github.com/fd1az/flashloan-executor/business/execution/domain"
	"github.com/fd1az/flashloan-executor/internal/apperror"
	"github.com/fd1az/flashloan-executor/internal/logger"
)

const tracerName = "github.com/fd1az/flashloan-executor/business/execution/infra/signer"

// Signer implements app.Signer for a single account.
type Signer struct {
	keys    app.KeySource
	signer  types.Signer
	address common.Address
	logger  logger.LoggerInterface
	tracer  trace.Tracer
}

var _ app.Signer = (*Signer)(nil)

// New acquires the key once to derive the account address.
func New(ctx context.Context, keys app.KeySource, chainID *big.Int, log logger.LoggerInterface) (*Signer, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, apperror.New(apperror.CodeSigningError, apperror.WithContext("chain id is required"))
	}

	key, err := keys.Acquire(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeSigningError, "acquire key")
	}
	address := crypto.PubkeyToAddress(key.PublicKey)
	zeroKey(key)

	return &Signer{
		keys:    keys,
		signer:  types.LatestSignerForChainID(chainID),
		address: address,
		logger:  log,
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// Address returns the signing account.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign signs utx. The key is acquired for this call only and zeroed before return.
func (s *Signer) Sign(ctx context.Context, utx *domain.UnsignedTransaction) (*domain.SignedTransaction, error) {
	ctx, span := s.tracer.Start(ctx, "signer.sign",
		trace.WithAttributes(
			attribute.String("account", s.address.Hex()),
			attribute.Int64("nonce", int64(utx.Nonce)),
		),
	)
	defer span.End()

	if utx.Data == nil {
		err := apperror.New(apperror.CodeSigningError, apperror.WithContext("transaction has no payload"))
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty transaction")
		return nil, err
	}

	key, err := s.keys.Acquire(ctx)
	if err != nil {
		err = apperror.Wrap(err, apperror.CodeSigningError, "acquire key")
		span.RecordError(err)
		span.SetStatus(codes.Error, "key unavailable")
		return nil, err
	}
	defer zeroKey(key)

	if from := crypto.PubkeyToAddress(key.PublicKey); from != s.address {
		err := apperror.New(apperror.CodeSigningError,
			apperror.WithContext(fmt.Sprintf("key source returned key for %s, expected %s", from.Hex(), s.address.Hex())))
		span.RecordError(err)
		span.SetStatus(codes.Error, "key mismatch")
		return nil, err
	}

	tx, err := types.SignNewTx(key, s.signer, utx.Data)
	if err != nil {
		err = apperror.New(apperror.CodeSigningError, apperror.WithCause(err), apperror.WithContext("sign transaction"))
		span.RecordError(err)
		span.SetStatus(codes.Error, "sign failed")
		return nil, err
	}

	span.SetAttributes(attribute.String("tx_hash", tx.Hash().Hex()))
	span.SetStatus(codes.Ok, "signed")
	s.logger.Debug(ctx, "transaction signed",
		"opportunity_id", utx.OpportunityID,
		"tx_hash", tx.Hash().Hex(),
		"nonce", tx.Nonce())

	return &domain.SignedTransaction{
		Tx:   tx,
		Hash: tx.Hash(),
		From: s.address,
	}, nil
}

// zeroKey overwrites the private scalar in place.
func zeroKey(k *ecdsa.PrivateKey) {
	if k == nil || k.D == nil {
		return
	}
	b := k.D.Bits()
	for i := range b {
		b[i] = 0
	}
	k.D.SetUint64(0)
}
