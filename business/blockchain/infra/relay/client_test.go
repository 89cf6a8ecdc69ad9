package relay

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fd1az/flashloan-executor/business/blockchain/domain"
	"github.com/fd1az/flashloan-executor/internal/apperror"
	"github.com/fd1az/flashloan-executor/internal/httpclient"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

func signedTx(t *testing.T) *types.Transaction {
	t.Helper()
	key, _ := crypto.GenerateKey()
	tx := types.NewTx(&types.LegacyTx{Nonce: 4, Gas: 300000, GasPrice: big.NewInt(50_000_000_000)})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(1)), key)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func newRelay(t *testing.T, handler http.HandlerFunc) (*Client, common.Address) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	hc, err := httpclient.NewInstrumentedClient(httpclient.WithProviderName("relay"))
	if err != nil {
		t.Fatal(err)
	}

	key, _ := crypto.GenerateKey()
	return NewClient(hc, srv.URL, key, &mockLogger{}), crypto.PubkeyToAddress(key.PublicKey)
}

func TestClient_Broadcast(t *testing.T) {
	tx := signedTx(t)
	var gotHeader string
	var gotBody []byte

	c, auth := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get(flashbotsHeader)
		gotBody, _ = io.ReadAll(r.Body)

		var req rpcRequest
		json.Unmarshal(gotBody, &req)
		if req.Method != methodSendPrivateTx {
			t.Errorf("method = %s", req.Method)
		}
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": tx.Hash().Hex()})
	})

	hash, err := c.Broadcast(context.Background(), tx)
	if err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}
	if hash != tx.Hash() {
		t.Errorf("hash = %s, want %s", hash, tx.Hash())
	}

	addr, sigHex, ok := strings.Cut(gotHeader, ":")
	if !ok {
		t.Fatalf("malformed signature header %q", gotHeader)
	}
	if common.HexToAddress(addr) != auth {
		t.Errorf("header address = %s, want %s", addr, auth.Hex())
	}

	sig := hexutil.MustDecode(sigHex)
	digest := accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(gotBody))))
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		t.Fatal(err)
	}
	if crypto.PubkeyToAddress(*pub) != auth {
		t.Error("signature does not recover to auth key")
	}
}

func TestClient_BroadcastErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    bool
		wantCode   apperror.Code
		wantReason string
	}{
		{
			name:     "relay down",
			status:   http.StatusBadGateway,
			body:     "bad gateway",
			wantErr:  true,
			wantCode: apperror.CodeNetworkError,
		},
		{
			name:     "unauthorized",
			status:   http.StatusForbidden,
			body:     "forbidden",
			wantErr:  true,
			wantCode: apperror.CodeRPCError,
		},
		{
			name:       "nonce too low",
			status:     http.StatusOK,
			body:       `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"nonce too low"}}`,
			wantErr:    true,
			wantCode:   apperror.CodeRPCError,
			wantReason: domain.ReasonNonceTooLow,
		},
		{
			name:   "already known",
			status: http.StatusOK,
			body:   `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"already known"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := signedTx(t)
			c, _ := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			hash, err := c.Broadcast(context.Background(), tx)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				if hash != tx.Hash() {
					t.Errorf("hash = %s", hash)
				}
				return
			}
			if apperror.GetCode(err) != tt.wantCode {
				t.Errorf("code = %s, want %s", apperror.GetCode(err), tt.wantCode)
			}
			if apperror.GetReason(err) != tt.wantReason {
				t.Errorf("reason = %q, want %q", apperror.GetReason(err), tt.wantReason)
			}
		})
	}
}
