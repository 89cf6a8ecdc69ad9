package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fd1az/flashloan-executor/business/execution/domain"
	"github.com/fd1az/flashloan-executor/internal/apperror"
)

const (
	testKeyHex  = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
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

// recordingKeySource hands out fresh keys and remembers them.
type recordingKeySource struct {
	issued []*ecdsa.PrivateKey
	err    error
}

func (r *recordingKeySource) Acquire(ctx context.Context) (*ecdsa.PrivateKey, error) {
	if r.err != nil {
		return nil, r.err
	}
	k, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		return nil, err
	}
	r.issued = append(r.issued, k)
	return k, nil
}

func TestSigner_SignLegacyAndDynamic(t *testing.T) {
	chainID := big.NewInt(1)
	keys := &recordingKeySource{}

	s, err := New(context.Background(), keys, chainID, &mockLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Address() != common.HexToAddress(testAddress) {
		t.Fatalf("Address() = %s, want %s", s.Address().Hex(), testAddress)
	}

	to := common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2")
	tests := []struct {
		name string
		data types.TxData
	}{
		{"legacy", &types.LegacyTx{Nonce: 3, GasPrice: big.NewInt(1e9), Gas: 21000, To: &to, Value: new(big.Int)}},
		{"dynamic", &types.DynamicFeeTx{ChainID: chainID, Nonce: 3, GasTipCap: big.NewInt(1e9), GasFeeCap: big.NewInt(2e9), Gas: 21000, To: &to, Value: new(big.Int)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signed, err := s.Sign(context.Background(), &domain.UnsignedTransaction{Nonce: 3, To: to, Data: tt.data})
			if err != nil {
				t.Fatalf("Sign: %v", err)
			}

			from, err := types.Sender(types.LatestSignerForChainID(chainID), signed.Tx)
			if err != nil {
				t.Fatalf("Sender: %v", err)
			}
			if from != s.Address() || signed.From != s.Address() {
				t.Errorf("sender = %s, want %s", from.Hex(), s.Address().Hex())
			}
			if signed.Hash != signed.Tx.Hash() {
				t.Errorf("hash mismatch")
			}
		})
	}

	for i, k := range keys.issued {
		if k.D.Sign() != 0 {
			t.Errorf("key %d was not zeroed", i)
		}
	}
}

func TestSigner_Failures(t *testing.T) {
	chainID := big.NewInt(1)
	keys := &recordingKeySource{}
	s, err := New(context.Background(), keys, chainID, &mockLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	to := common.HexToAddress("0x01")

	t.Run("key_unavailable", func(t *testing.T) {
		keys.err = errors.New("vault sealed")
		defer func() { keys.err = nil }()

		_, err := s.Sign(context.Background(), &domain.UnsignedTransaction{Data: &types.LegacyTx{To: &to, GasPrice: big.NewInt(1)}})
		if !apperror.HasCode(err, apperror.CodeSigningError) {
			t.Errorf("expected SIGNING_ERROR, got %v", err)
		}
	})

	t.Run("chain_mismatch", func(t *testing.T) {
		_, err := s.Sign(context.Background(), &domain.UnsignedTransaction{
			Data: &types.DynamicFeeTx{ChainID: big.NewInt(5), GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(1), To: &to},
		})
		if !apperror.HasCode(err, apperror.CodeSigningError) {
			t.Errorf("expected SIGNING_ERROR, got %v", err)
		}
	})

	t.Run("empty_payload", func(t *testing.T) {
		_, err := s.Sign(context.Background(), &domain.UnsignedTransaction{})
		if !apperror.HasCode(err, apperror.CodeSigningError) {
			t.Errorf("expected SIGNING_ERROR, got %v", err)
		}
	})
}

func TestEnvKeySource(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		set     bool
		wantErr bool
	}{
		{"plain_hex", testKeyHex, true, false},
		{"prefixed_hex", "0x" + testKeyHex, true, false},
		{"unset", "", false, true},
		{"garbage", "not-a-key", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const name = "TEST_EXECUTOR_KEY"
			if tt.set {
				t.Setenv(name, tt.value)
			}

			key, err := NewEnvKeySource(name).Acquire(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Acquire() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !apperror.HasCode(err, apperror.CodeSigningError) {
					t.Errorf("expected SIGNING_ERROR, got %v", err)
				}
				return
			}
			if crypto.PubkeyToAddress(key.PublicKey) != common.HexToAddress(testAddress) {
				t.Errorf("unexpected address")
			}
		})
	}
}

type fakeSecrets struct {
	value *string
	err   error
}

func (f *fakeSecrets) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.value}, nil
}

func TestSecretsManagerKeySource(t *testing.T) {
	tests := []struct {
		name    string
		secrets *fakeSecrets
		wantErr bool
	}{
		{"plain", &fakeSecrets{value: aws.String(testKeyHex)}, false},
		{"single_key_json", &fakeSecrets{value: aws.String(`{"private_key":"0x` + testKeyHex + `"}`)}, false},
		{"multi_key_json", &fakeSecrets{value: aws.String(`{"a":"1","b":"2"}`)}, true},
		{"empty", &fakeSecrets{value: aws.String("")}, true},
		{"api_error", &fakeSecrets{err: errors.New("AccessDenied")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewSecretsManagerKeySourceWithClient(tt.secrets, "executor/key")
			key, err := src.Acquire(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Acquire() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && crypto.PubkeyToAddress(key.PublicKey) != common.HexToAddress(testAddress) {
				t.Errorf("unexpected address")
			}
			if err != nil && !apperror.HasCode(err, apperror.CodeSigningError) {
				t.Errorf("expected SIGNING_ERROR, got %v", err)
			}
		})
	}
}
