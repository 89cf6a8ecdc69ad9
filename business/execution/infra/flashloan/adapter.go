// Package flashloan provides per-provider flashloan entry point adapters.
package flashloan

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/flashloan-executor/business/execution/app"
	"github.com/fd1az/flashloan-executor/internal/apperror"
)

// argsCheck validates decoded arguments of method.
type argsCheck func(method string, args []any) error

// Adapter validates calldata against one provider's flashloan ABI.
type Adapter struct {
	name    string
	target  common.Address
	abi     abi.ABI
	methods map[string]argsCheck
}

var _ app.ProviderAdapter = (*Adapter)(nil)

func newAdapter(name string, target common.Address, abiJSON string, methods map[string]argsCheck) (*Adapter, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse %s abi: %w", name, err)
	}
	for m := range methods {
		if _, ok := parsed.Methods[m]; !ok {
			return nil, fmt.Errorf("%s abi has no method %s", name, m)
		}
	}
	return &Adapter{
		name:    name,
		target:  target,
		abi:     parsed,
		methods: methods,
	}, nil
}

// Name returns the canonical provider name.
func (a *Adapter) Name() string {
	return a.name
}

// Target returns the contract that receives the transaction.
func (a *Adapter) Target() common.Address {
	return a.target
}

// ValidateCalldata decodes data as one of the provider's flashloan methods.
func (a *Adapter) ValidateCalldata(data []byte) error {
	if len(data) < 4 {
		return invalid(a.name, "calldata shorter than a selector")
	}

	method, err := a.abi.MethodById(data[:4])
	if err != nil {
		return invalid(a.name, fmt.Sprintf("unknown selector %x", data[:4]))
	}
	check, ok := a.methods[method.Name]
	if !ok {
		return invalid(a.name, method.Name+" is not a flashloan entry point")
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return apperror.New(apperror.CodeInvalidPlan,
			apperror.WithCause(err),
			apperror.WithContext(a.name+": "+method.Name+" arguments do not decode"))
	}

	// Unpack tolerates trailing bytes; a canonical encoding must round-trip.
	packed, err := method.Inputs.Pack(args...)
	if err != nil || !bytes.Equal(packed, data[4:]) {
		return invalid(a.name, method.Name+" arguments are not canonically encoded")
	}

	if check != nil {
		return check(method.Name, args)
	}
	return nil
}

func invalid(provider, msg string) error {
	return apperror.New(apperror.CodeInvalidPlan, apperror.WithContext(provider+": "+msg))
}
