package stub

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"autopay-tips/internal/ethrpc"
)

// Handler answers eth_call for one contract address.
type Handler func(data []byte) ([]byte, error)

// Client implements ethrpc.Client for testing.
type Client struct {
	mu        sync.Mutex
	handlers  map[common.Address]Handler
	block     uint64
	blockTime uint64

	// Err, when set, fails every request as a transport failure would.
	Err error
	// Calls counts eth_call requests per address.
	Calls map[common.Address]int
}

// Compile-time interface check.
var _ ethrpc.Client = (*Client)(nil)

// NewClient creates a new stub client.
func NewClient() *Client {
	return &Client{
		handlers: make(map[common.Address]Handler),
		Calls:    make(map[common.Address]int),
	}
}

// Handle registers the handler for a contract address.
func (c *Client) Handle(addr common.Address, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[addr] = h
}

// SetHead sets the latest block number and timestamp.
func (c *Client) SetHead(number, timestamp uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block = number
	c.blockTime = timestamp
}

// Call dispatches to the handler registered for to.
func (c *Client) Call(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	c.mu.Lock()
	if c.Err != nil {
		err := c.Err
		c.mu.Unlock()
		return nil, err
	}
	h, ok := c.handlers[to]
	c.Calls[to]++
	c.mu.Unlock()

	if !ok {
		// Calling an address without code returns empty data
		return nil, nil
	}
	out, err := h(data)
	if err != nil {
		return nil, &ethrpc.RPCError{Code: 3, Message: fmt.Sprintf("execution reverted: %v", err)}
	}
	return out, nil
}

// BlockNumber returns the configured block number.
func (c *Client) BlockNumber(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return 0, c.Err
	}
	return c.block, nil
}

// LatestBlockTime returns the configured block timestamp.
func (c *Client) LatestBlockTime(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return 0, c.Err
	}
	return c.blockTime, nil
}

// CallCount returns how many eth_call requests went to addr.
func (c *Client) CallCount(addr common.Address) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls[addr]
}
