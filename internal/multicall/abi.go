package multicall

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultAddress is the canonical Multicall2 deployment.
var DefaultAddress = common.HexToAddress("0x5BA1e12693Dc8F9c48aAD8770482f4739bEeD696")

const multicall2ABI = `[
  {
    "name": "tryAggregate",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "requireSuccess", "type": "bool"},
      {"name": "calls", "type": "tuple[]", "components": [
        {"name": "target", "type": "address"},
        {"name": "callData", "type": "bytes"}
      ]}
    ],
    "outputs": [
      {"name": "returnData", "type": "tuple[]", "components": [
        {"name": "success", "type": "bool"},
        {"name": "returnData", "type": "bytes"}
      ]}
    ]
  }
]`

// ABI is the parsed Multicall2 interface.
var ABI = mustParse(multicall2ABI)

// Request is one entry of tryAggregate's input.
type Request struct {
	Target   common.Address `abi:"target"`
	CallData []byte         `abi:"callData"`
}

// Response is one entry of tryAggregate's output.
type Response struct {
	Success    bool   `abi:"success"`
	ReturnData []byte `abi:"returnData"`
}

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("parse multicall abi: " + err.Error())
	}
	return parsed
}
