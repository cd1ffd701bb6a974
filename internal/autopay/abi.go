package autopay

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const feedDetailsComponents = `[
  {"name": "reward", "type": "uint256"},
  {"name": "balance", "type": "uint256"},
  {"name": "startTime", "type": "uint256"},
  {"name": "interval", "type": "uint256"},
  {"name": "window", "type": "uint256"},
  {"name": "priceThreshold", "type": "uint256"},
  {"name": "rewardIncreasePerSecond", "type": "uint256"},
  {"name": "feedsWithFundingIndex", "type": "uint256"}
]`

// autopayABI covers the read-only surface of the autopay contract, including
// the oracle getters it inherits.
var autopayABI = `[
  {"name": "getFundedFeedDetails", "type": "function", "stateMutability": "view",
   "inputs": [],
   "outputs": [{"name": "", "type": "tuple[]", "components": [
     {"name": "details", "type": "tuple", "components": ` + feedDetailsComponents + `},
     {"name": "queryData", "type": "bytes"}
   ]}]},
  {"name": "getFundedSingleTipsInfo", "type": "function", "stateMutability": "view",
   "inputs": [],
   "outputs": [{"name": "", "type": "tuple[]", "components": [
     {"name": "queryData", "type": "bytes"},
     {"name": "tip", "type": "uint256"}
   ]}]},
  {"name": "getCurrentTip", "type": "function", "stateMutability": "view",
   "inputs": [{"name": "_queryId", "type": "bytes32"}],
   "outputs": [{"name": "", "type": "uint256"}]},
  {"name": "getDataBefore", "type": "function", "stateMutability": "view",
   "inputs": [{"name": "_queryId", "type": "bytes32"}, {"name": "_timestamp", "type": "uint256"}],
   "outputs": [{"name": "_value", "type": "bytes"}, {"name": "_timestampRetrieved", "type": "uint256"}]},
  {"name": "getIndexForDataBefore", "type": "function", "stateMutability": "view",
   "inputs": [{"name": "_queryId", "type": "bytes32"}, {"name": "_timestamp", "type": "uint256"}],
   "outputs": [{"name": "_found", "type": "bool"}, {"name": "_index", "type": "uint256"}]},
  {"name": "getTimestampbyQueryIdandIndex", "type": "function", "stateMutability": "view",
   "inputs": [{"name": "_queryId", "type": "bytes32"}, {"name": "_index", "type": "uint256"}],
   "outputs": [{"name": "", "type": "uint256"}]},
  {"name": "getRewardClaimStatusList", "type": "function", "stateMutability": "view",
   "inputs": [{"name": "_feedId", "type": "bytes32"}, {"name": "_queryId", "type": "bytes32"}, {"name": "_timestamps", "type": "uint256[]"}],
   "outputs": [{"name": "", "type": "bool[]"}]},
  {"name": "getCurrentFeeds", "type": "function", "stateMutability": "view",
   "inputs": [{"name": "_queryId", "type": "bytes32"}],
   "outputs": [{"name": "", "type": "bytes32[]"}]},
  {"name": "getDataFeed", "type": "function", "stateMutability": "view",
   "inputs": [{"name": "_feedId", "type": "bytes32"}],
   "outputs": [{"name": "", "type": "tuple", "components": ` + feedDetailsComponents + `}]}
]`

// ABI is the parsed autopay interface.
var ABI = mustParse(autopayABI)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("parse autopay abi: " + err.Error())
	}
	return parsed
}
