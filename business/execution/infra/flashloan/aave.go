package flashloan

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AaveV3PoolAddress is the Aave V3 Pool on Ethereum mainnet.
var AaveV3PoolAddress = common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2")

// AaveV3PoolABI holds the Pool flashloan entry points.
const AaveV3PoolABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "receiverAddress", "type": "address"},
			{"internalType": "address[]", "name": "assets", "type": "address[]"},
			{"internalType": "uint256[]", "name": "amounts", "type": "uint256[]"},
			{"internalType": "uint256[]", "name": "interestRateModes", "type": "uint256[]"},
			{"internalType": "address", "name": "onBehalfOf", "type": "address"},
			{"internalType": "bytes", "name": "params", "type": "bytes"},
			{"internalType": "uint16", "name": "referralCode", "type": "uint16"}
		],
		"name": "flashLoan",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "receiverAddress", "type": "address"},
			{"internalType": "address", "name": "asset", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "bytes", "name": "params", "type": "bytes"},
			{"internalType": "uint16", "name": "referralCode", "type": "uint16"}
		],
		"name": "flashLoanSimple",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// NewAave creates the Aave V3 adapter targeting pool.
func NewAave(pool common.Address) (*Adapter, error) {
	return newAdapter(ProviderAave, pool, AaveV3PoolABI, map[string]argsCheck{
		"flashLoan":       checkAaveFlashLoan,
		"flashLoanSimple": checkAaveFlashLoanSimple,
	})
}

func checkAaveFlashLoan(method string, args []any) error {
	receiver, _ := args[0].(common.Address)
	assets, _ := args[1].([]common.Address)
	amounts, _ := args[2].([]*big.Int)
	modes, _ := args[3].([]*big.Int)

	if receiver == (common.Address{}) {
		return invalid(ProviderAave, method+": zero receiver")
	}
	if len(assets) == 0 {
		return invalid(ProviderAave, method+": no assets")
	}
	if len(assets) != len(amounts) || len(assets) != len(modes) {
		return invalid(ProviderAave, method+": assets, amounts and modes differ in length")
	}
	return positive(ProviderAave, method, amounts...)
}

func checkAaveFlashLoanSimple(method string, args []any) error {
	receiver, _ := args[0].(common.Address)
	asset, _ := args[1].(common.Address)
	amount, _ := args[2].(*big.Int)

	if receiver == (common.Address{}) || asset == (common.Address{}) {
		return invalid(ProviderAave, method+": zero address argument")
	}
	return positive(ProviderAave, method, amount)
}

func positive(provider, method string, amounts ...*big.Int) error {
	for _, a := range amounts {
		if a == nil || a.Sign() <= 0 {
			return invalid(provider, method+": non-positive amount")
		}
	}
	return nil
}
