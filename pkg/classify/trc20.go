package classify

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// trc20ABI covers the token movement methods recognized by the classifier
const trc20ABI = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"transferFrom","stateMutability":"nonpayable",
	 "inputs":[{"name":"_from","type":"address"},{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

var parsedTRC20 = mustParseABI(trc20ABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid built-in ABI: %v", err))
	}
	return parsed
}

// tokenTransfer is a decoded TRC20 transfer call
type tokenTransfer struct {
	From   string // empty for transfer(), where the caller is the sender
	To     string
	Amount *big.Int
}

// decodeTRC20Transfer decodes hex call data of transfer/transferFrom.
// Returns false for any other method or malformed data.
func decodeTRC20Transfer(data string) (*tokenTransfer, bool) {
	raw := strings.TrimPrefix(data, "0x")
	if len(raw) < 8 || !isHex(raw) || len(raw)%2 != 0 {
		return nil, false
	}
	input := common.FromHex(raw)

	method, err := parsedTRC20.MethodById(input[:4])
	if err != nil {
		return nil, false
	}

	values, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, false
	}

	switch method.Name {
	case "transfer":
		if len(values) != 2 {
			return nil, false
		}
		to, ok1 := values[0].(common.Address)
		amount, ok2 := values[1].(*big.Int)
		if !ok1 || !ok2 {
			return nil, false
		}
		return &tokenTransfer{To: addressFromEVM(to), Amount: amount}, true
	case "transferFrom":
		if len(values) != 3 {
			return nil, false
		}
		from, ok1 := values[0].(common.Address)
		to, ok2 := values[1].(common.Address)
		amount, ok3 := values[2].(*big.Int)
		if !ok1 || !ok2 || !ok3 {
			return nil, false
		}
		return &tokenTransfer{From: addressFromEVM(from), To: addressFromEVM(to), Amount: amount}, true
	}
	return nil, false
}
