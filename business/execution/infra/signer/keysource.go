package signer

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fd1az/flashloan-executor/business/execution/app"
	"github.com/fd1az/flashloan-executor/internal/apperror"
)

// EnvKeySource reads a hex private key from an environment variable on every Acquire.
type EnvKeySource struct {
	name string
}

var _ app.KeySource = (*EnvKeySource)(nil)

// NewEnvKeySource reads the key from the variable called name.
func NewEnvKeySource(name string) *EnvKeySource {
	return &EnvKeySource{name: name}
}

// Acquire parses the key. The caller owns and must zero it.
func (s *EnvKeySource) Acquire(_ context.Context) (*ecdsa.PrivateKey, error) {
	raw, ok := os.LookupEnv(s.name)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, apperror.New(apperror.CodeSigningError, apperror.WithContext("key variable "+s.name+" is not set"))
	}
	return parseHexKey(raw)
}

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerKeySource fetches the key from AWS Secrets Manager on every Acquire.
// The secret may be the bare hex key or a JSON object with a single key.
type SecretsManagerKeySource struct {
	client   SecretsAPI
	secretID string
}

var _ app.KeySource = (*SecretsManagerKeySource)(nil)

// NewSecretsManagerKeySource loads the default AWS configuration chain.
func NewSecretsManagerKeySource(ctx context.Context, region, secretID string) (*SecretsManagerKeySource, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("load aws config"))
	}

	return NewSecretsManagerKeySourceWithClient(secretsmanager.NewFromConfig(cfg), secretID), nil
}

// NewSecretsManagerKeySourceWithClient uses an existing client.
func NewSecretsManagerKeySourceWithClient(client SecretsAPI, secretID string) *SecretsManagerKeySource {
	return &SecretsManagerKeySource{client: client, secretID: secretID}
}

// Acquire fetches and parses the key. The caller owns and must zero it.
func (s *SecretsManagerKeySource) Acquire(ctx context.Context) (*ecdsa.PrivateKey, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretID),
	})
	if err != nil {
		return nil, apperror.New(apperror.CodeSigningError,
			apperror.WithCause(err),
			apperror.WithContext("fetch secret "+s.secretID))
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return nil, apperror.New(apperror.CodeSigningError, apperror.WithContext("secret "+s.secretID+" is empty"))
	}

	secret := *out.SecretString
	var fields map[string]string
	if json.Unmarshal([]byte(secret), &fields) == nil {
		if len(fields) != 1 {
			return nil, apperror.New(apperror.CodeSigningError,
				apperror.WithContext("secret "+s.secretID+" must hold exactly one key"))
		}
		for _, v := range fields {
			secret = v
		}
	}
	return parseHexKey(secret)
}

// parseHexKey never includes the input in its error.
func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")

	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, apperror.New(apperror.CodeSigningError, apperror.WithContext("key is not a valid secp256k1 hex key"))
	}
	return key, nil
}
