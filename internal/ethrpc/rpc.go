package ethrpc

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Client defines the read-only Ethereum JSON-RPC surface the agent needs.
type Client interface {
	// Call executes eth_call against the latest block and returns the raw return data.
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)

	// BlockNumber returns the latest block number.
	BlockNumber(ctx context.Context) (uint64, error)

	// LatestBlockTime returns the timestamp of the latest block in unix seconds.
	LatestBlockTime(ctx context.Context) (uint64, error)
}

// Head is a new chain head announced over a subscription.
type Head struct {
	Number    uint64
	Hash      common.Hash
	Timestamp uint64
}
