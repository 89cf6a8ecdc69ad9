package ethereum

import (
	"context"
	"errors"
	"math/big"
	"net"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fd1az/flashloan-executor/business/blockchain/domain"
	"github.com/fd1az/flashloan-executor/internal/apperror"
)

func newTestNodeClient(t *testing.T, b *fakeBackend) *NodeClient {
	t.Helper()
	n, err := NewNodeClient(b, NodeClientConfig{}, &mockLogger{})
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestNodeClient_Broadcast(t *testing.T) {
	tx := types.NewTx(&types.LegacyTx{Nonce: 3, Gas: 21000, GasPrice: big.NewInt(1)})

	tests := []struct {
		name       string
		sendErr    error
		wantErr    bool
		wantCode   apperror.Code
		wantReason string
	}{
		{name: "accepted"},
		{name: "already known is success", sendErr: jsonRPCError{-32000, "already known"}},
		{
			name:       "nonce too low",
			sendErr:    jsonRPCError{-32000, "nonce too low"},
			wantErr:    true,
			wantCode:   apperror.CodeRPCError,
			wantReason: domain.ReasonNonceTooLow,
		},
		{
			name:     "unreachable",
			sendErr:  &net.OpError{Op: "dial", Err: errors.New("connection refused")},
			wantErr:  true,
			wantCode: apperror.CodeNetworkError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNodeClient(t, &fakeBackend{sendErr: tt.sendErr})

			hash, err := n.Broadcast(context.Background(), tx)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				if hash != tx.Hash() {
					t.Errorf("hash = %s, want %s", hash, tx.Hash())
				}
				return
			}
			if apperror.GetCode(err) != tt.wantCode {
				t.Errorf("code = %s, want %s", apperror.GetCode(err), tt.wantCode)
			}
			if apperror.GetReason(err) != tt.wantReason {
				t.Errorf("reason = %s, want %s", apperror.GetReason(err), tt.wantReason)
			}
		})
	}
}

func TestNodeClient_Receipt(t *testing.T) {
	b := &fakeBackend{}
	n := newTestNodeClient(t, b)

	r, err := n.Receipt(context.Background(), tx1Hash())
	if err != nil || r != nil {
		t.Fatalf("expected (nil, nil) while not mined, got (%v, %v)", r, err)
	}

	b.receipt = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		GasUsed:     210000,
		BlockNumber: big.NewInt(42),
		TxHash:      tx1Hash(),
	}

	r, err = n.Receipt(context.Background(), tx1Hash())
	if err != nil {
		t.Fatal(err)
	}
	if !r.Succeeded() || r.GasUsed != 210000 || r.BlockNumber != 42 {
		t.Errorf("unexpected receipt %+v", r)
	}
}

func TestNodeClient_BreakerOpensOnNetworkErrors(t *testing.T) {
	b := &fakeBackend{nonceErr: &net.OpError{Op: "dial", Err: errors.New("refused")}}
	n := newTestNodeClient(t, b)

	for i := 0; i < 10; i++ {
		_, _ = n.PendingNonce(context.Background(), [20]byte{})
	}

	_, err := n.PendingNonce(context.Background(), [20]byte{})
	if apperror.GetReason(err) != domain.ReasonCircuitOpen {
		t.Errorf("expected open breaker, got %v", err)
	}
	if apperror.GetCode(err) != apperror.CodeNetworkError {
		t.Errorf("code = %s", apperror.GetCode(err))
	}
}

func TestNodeClient_RPCErrorsKeepBreakerClosed(t *testing.T) {
	b := &fakeBackend{nonceErr: jsonRPCError{-32602, "invalid argument"}}
	n := newTestNodeClient(t, b)

	for i := 0; i < 10; i++ {
		_, err := n.PendingNonce(context.Background(), [20]byte{})
		if apperror.GetReason(err) == domain.ReasonCircuitOpen {
			t.Fatalf("breaker opened on call %d", i)
		}
	}
}

func tx1Hash() [32]byte {
	return types.NewTx(&types.LegacyTx{Nonce: 1}).Hash()
}
