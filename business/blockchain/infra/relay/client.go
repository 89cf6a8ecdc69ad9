// Package relay submits transactions privately through a Flashbots-compatible relay.
package relay

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fd1az/flashloan-executor/business/blockchain/app"
	"github.com/fd1az/flashloan-executor/business/blockchain/domain"
	"github.com/fd1az/flashloan-executor/internal/apperror"
	"github.com/fd1az/flashloan-executor/internal/httpclient"
	"github.com/fd1az/flashloan-executor/internal/logger"
)

const (
	flashbotsHeader     = "X-Flashbots-Signature"
	methodSendPrivateTx = "eth_sendPrivateTransaction"
	jsonRPCVersion      = "2.0"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("relay error %d: %s", e.Code, e.Message) }

type privateTxParams struct {
	Tx             string `json:"tx"`
	MaxBlockNumber string `json:"maxBlockNumber,omitempty"`
}

// Client broadcasts through a relay, authenticating each request with authKey.
type Client struct {
	http    httpclient.Client
	url     string
	authKey *ecdsa.PrivateKey
	logger  logger.LoggerInterface
	nextID  atomic.Uint64
}

var _ app.Broadcaster = (*Client)(nil)

// NewClient creates a relay client. authKey only signs request payloads; it
// does not need funds.
func NewClient(hc httpclient.Client, url string, authKey *ecdsa.PrivateKey, log logger.LoggerInterface) *Client {
	return &Client{
		http:    hc,
		url:     url,
		authKey: authKey,
		logger:  log,
	}
}

// Broadcast submits tx with eth_sendPrivateTransaction.
func (c *Client) Broadcast(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return common.Hash{}, apperror.New(apperror.CodeRPCError,
			apperror.WithCause(err),
			apperror.WithContext("encode transaction for relay"))
	}

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      c.nextID.Add(1),
		Method:  methodSendPrivateTx,
		Params:  []any{privateTxParams{Tx: hexutil.Encode(raw)}},
	})
	if err != nil {
		return common.Hash{}, apperror.New(apperror.CodeRPCError, apperror.WithCause(err))
	}

	signature, err := c.sign(payload)
	if err != nil {
		return common.Hash{}, apperror.New(apperror.CodeSigningError,
			apperror.WithCause(err),
			apperror.WithContext("sign relay payload"))
	}

	var out rpcResponse
	_, err = c.http.NewRequest(
		httpclient.WithLabel("method", methodSendPrivateTx),
		httpclient.WithResponseErrorHandler(statusError),
	).
		SetHeader("Content-Type", "application/json").
		SetHeader(flashbotsHeader, signature).
		SetBody(payload).
		SetResult(&out).
		Post(ctx, c.url)
	if err != nil {
		if apperror.IsAppError(err) {
			return common.Hash{}, err
		}
		return common.Hash{}, apperror.New(apperror.CodeNetworkError,
			apperror.WithCause(err),
			apperror.WithContext(methodSendPrivateTx))
	}

	if out.Error != nil {
		if reasonFor(out.Error.Message) == domain.ReasonAlreadyKnown {
			return tx.Hash(), nil
		}
		opts := []apperror.Option{apperror.WithCause(out.Error), apperror.WithContext(methodSendPrivateTx)}
		if reason := reasonFor(out.Error.Message); reason != "" {
			opts = append(opts, apperror.WithReason(reason))
		}
		return common.Hash{}, apperror.New(apperror.CodeRPCError, opts...)
	}

	var hash common.Hash
	if err := json.Unmarshal(out.Result, &hash); err != nil {
		return common.Hash{}, apperror.New(apperror.CodeRPCError,
			apperror.WithCause(err),
			apperror.WithReason(domain.ReasonMalformed),
			apperror.WithContext(methodSendPrivateTx))
	}

	c.logger.Debug(ctx, "transaction sent to relay", "tx_hash", hash.Hex(), "nonce", tx.Nonce())
	return hash, nil
}

// sign produces the "<address>:<signature>" relay auth header value.
func (c *Client) sign(payload []byte) (string, error) {
	digest := accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(payload))))
	sig, err := crypto.Sign(digest, c.authKey)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(c.authKey.PublicKey).Hex() + ":" + hexutil.Encode(sig), nil
}

func statusError(status int, body []byte) error {
	switch {
	case status >= http.StatusInternalServerError, status == http.StatusTooManyRequests:
		return apperror.New(apperror.CodeNetworkError,
			apperror.WithContext(fmt.Sprintf("relay status %d", status)))
	case status >= http.StatusBadRequest:
		return apperror.New(apperror.CodeRPCError,
			apperror.WithContext(fmt.Sprintf("relay status %d: %s", status, body)))
	}
	return nil
}

func reasonFor(msg string) string {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "nonce too low"):
		return domain.ReasonNonceTooLow
	case strings.Contains(msg, "already known"):
		return domain.ReasonAlreadyKnown
	}
	return ""
}
