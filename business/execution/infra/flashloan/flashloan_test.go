package flashloan

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/flashloan-executor/internal/apperror"
)

var (
	receiver = common.HexToAddress("0x1111111111111111111111111111111111111111")
	weth     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc     = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

func mustPack(t *testing.T, abiJSON, method string, args ...any) []byte {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	return data
}

func TestAave_ValidateCalldata(t *testing.T) {
	a, err := NewAave(AaveV3PoolAddress)
	if err != nil {
		t.Fatalf("NewAave: %v", err)
	}

	valid := mustPack(t, AaveV3PoolABI, "flashLoan",
		receiver,
		[]common.Address{weth},
		[]*big.Int{big.NewInt(1e18)},
		[]*big.Int{big.NewInt(0)},
		receiver,
		[]byte{0xde, 0xad},
		uint16(0),
	)

	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{
			name: "flash_loan",
			data: valid,
		},
		{
			name: "flash_loan_simple",
			data: mustPack(t, AaveV3PoolABI, "flashLoanSimple", receiver, weth, big.NewInt(5), []byte{}, uint16(0)),
		},
		{
			name:    "too_short",
			data:    []byte{0x01, 0x02},
			wantErr: true,
		},
		{
			name:    "unknown_selector",
			data:    append([]byte{0xaa, 0xbb, 0xcc, 0xdd}, valid[4:]...),
			wantErr: true,
		},
		{
			name:    "truncated_args",
			data:    valid[:len(valid)-40],
			wantErr: true,
		},
		{
			name:    "trailing_garbage",
			data:    append(append([]byte{}, valid...), 0x01),
			wantErr: true,
		},
		{
			name: "length_mismatch",
			data: mustPack(t, AaveV3PoolABI, "flashLoan",
				receiver,
				[]common.Address{weth, usdc},
				[]*big.Int{big.NewInt(1)},
				[]*big.Int{big.NewInt(0), big.NewInt(0)},
				receiver, []byte{}, uint16(0)),
			wantErr: true,
		},
		{
			name:    "zero_amount",
			data:    mustPack(t, AaveV3PoolABI, "flashLoanSimple", receiver, weth, big.NewInt(0), []byte{}, uint16(0)),
			wantErr: true,
		},
		{
			name: "balancer_selector_rejected",
			data: mustPack(t, BalancerVaultABI, "flashLoan",
				receiver, []common.Address{weth}, []*big.Int{big.NewInt(1)}, []byte{}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.ValidateCalldata(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateCalldata() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !apperror.HasCode(err, apperror.CodeInvalidPlan) {
				t.Errorf("expected INVALID_PLAN, got %v", err)
			}
		})
	}
}

func TestBalancer_ValidateCalldata(t *testing.T) {
	b, err := NewBalancer(BalancerVaultAddress)
	if err != nil {
		t.Fatalf("NewBalancer: %v", err)
	}

	// usdc < weth by address value
	sorted := []common.Address{usdc, weth}
	unsorted := []common.Address{weth, usdc}
	amounts := []*big.Int{big.NewInt(100), big.NewInt(200)}

	if err := b.ValidateCalldata(mustPack(t, BalancerVaultABI, "flashLoan", receiver, sorted, amounts, []byte{})); err != nil {
		t.Errorf("sorted tokens rejected: %v", err)
	}
	if err := b.ValidateCalldata(mustPack(t, BalancerVaultABI, "flashLoan", receiver, unsorted, amounts, []byte{})); err == nil {
		t.Error("unsorted tokens accepted")
	}
	if err := b.ValidateCalldata(mustPack(t, BalancerVaultABI, "flashLoan", common.Address{}, sorted, amounts, []byte{})); err == nil {
		t.Error("zero recipient accepted")
	}
}

func TestRegistry_Lookup(t *testing.T) {
	uniPool := common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")
	aavePool := common.HexToAddress("0x2222222222222222222222222222222222222222")

	r, err := NewDefaultRegistry(func(name string) (common.Address, bool) {
		switch name {
		case "uniswap_v3":
			return uniPool, true
		case ProviderAave:
			return aavePool, true
		}
		return common.Address{}, false
	})
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}

	tests := []struct {
		name       string
		lookup     string
		wantOK     bool
		wantName   string
		wantTarget common.Address
	}{
		{"aave_exact", "Aave", true, ProviderAave, aavePool},
		{"aave_lower", "aave", true, ProviderAave, aavePool},
		{"aave_alias", "AAVE_V3", true, ProviderAave, aavePool},
		{"balancer", "balancer", true, ProviderBalancer, BalancerVaultAddress},
		{"uniswap_override_ignored", "uniswap-v3", false, "", common.Address{}},
		{"unknown", "dydx", false, "", common.Address{}},
		{"empty", "", false, "", common.Address{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := r.Lookup(tt.lookup)
			if ok != tt.wantOK {
				t.Fatalf("Lookup(%q) ok = %v, want %v", tt.lookup, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if a.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", a.Name(), tt.wantName)
			}
			if a.Target() != tt.wantTarget {
				t.Errorf("Target() = %s, want %s", a.Target(), tt.wantTarget)
			}
		})
	}

	names := r.Names()
	if len(names) != 2 {
		t.Errorf("Names() = %v, want 2 providers", names)
	}
}

func TestDefaultRegistry_NoCallerCallbackProviders(t *testing.T) {
	pool := common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")
	r, err := NewDefaultRegistry(func(string) (common.Address, bool) { return pool, true })
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}

	for _, name := range []string{"UniswapV3", "uniswap_v3", "uniswap"} {
		if _, ok := r.Lookup(name); ok {
			t.Errorf("%s registered: its flash callback targets the signing account", name)
		}
	}
}
