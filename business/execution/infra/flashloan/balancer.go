package flashloan

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BalancerVaultAddress is the Balancer V2 Vault, identical on all chains.
var BalancerVaultAddress = common.HexToAddress("0xBA12222222228d8Ba445958a75a0704d566BF2C8")

// BalancerVaultABI holds the Vault flashloan entry point.
const BalancerVaultABI = `[
	{
		"inputs": [
			{"internalType": "contract IFlashLoanRecipient", "name": "recipient", "type": "address"},
			{"internalType": "contract IERC20[]", "name": "tokens", "type": "address[]"},
			{"internalType": "uint256[]", "name": "amounts", "type": "uint256[]"},
			{"internalType": "bytes", "name": "userData", "type": "bytes"}
		],
		"name": "flashLoan",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// NewBalancer creates the Balancer adapter targeting vault.
func NewBalancer(vault common.Address) (*Adapter, error) {
	return newAdapter(ProviderBalancer, vault, BalancerVaultABI, map[string]argsCheck{
		"flashLoan": checkBalancerFlashLoan,
	})
}

func checkBalancerFlashLoan(method string, args []any) error {
	recipient, _ := args[0].(common.Address)
	tokens, _ := args[1].([]common.Address)
	amounts, _ := args[2].([]*big.Int)

	if recipient == (common.Address{}) {
		return invalid(ProviderBalancer, method+": zero recipient")
	}
	if len(tokens) == 0 || len(tokens) != len(amounts) {
		return invalid(ProviderBalancer, method+": tokens and amounts must be non-empty and equal in length")
	}
	// The Vault requires strictly ascending token addresses.
	for i := 1; i < len(tokens); i++ {
		if tokens[i-1].Cmp(tokens[i]) >= 0 {
			return invalid(ProviderBalancer, method+": tokens not sorted")
		}
	}
	return positive(ProviderBalancer, method, amounts...)
}
