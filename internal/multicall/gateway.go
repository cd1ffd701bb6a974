// Package multicall batches read-only contract calls into a single eth_call
// through Multicall2's tryAggregate.
package multicall

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"autopay-tips/internal/ethrpc"
	"autopay-tips/internal/observability"
)

// DefaultMaxBatchSize bounds the number of calls in one eth_call.
const DefaultMaxBatchSize = 1000

var (
	// ErrTransport marks a batch-level failure. No partial result accompanies it.
	ErrTransport = errors.New("multicall transport failure")

	// ErrDuplicateKey is returned when two calls of a batch declare the same key.
	ErrDuplicateKey = errors.New("duplicate result key in batch")
)

// Key names one decoded value of a batch.
// Field separates the several values read for the same ID.
type Key struct {
	Field string
	ID    [32]byte
	Index uint64
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%x/%d", k.Field, k.ID[:4], k.Index)
}

// Decoder turns raw return data into values, one per Call key.
type Decoder func(returnData []byte) ([]interface{}, error)

// Call describes one contract read in a batch.
type Call struct {
	Target common.Address
	Method string // for logs and metrics
	Data   []byte // ABI encoded calldata
	Keys   []Key
	Decode Decoder
}

// Outcome is the result of one call, at the same index as the call.
type Outcome struct {
	OK     bool          // executed without revert and decoded
	Values []interface{} // aligned with Call.Keys when OK
}

// Result holds the outcomes of a batch.
type Result struct {
	Outcomes []Outcome
	values   map[Key]interface{}
}

// Get returns the value stored under key. Reverted or undecodable calls
// leave their keys absent.
func (r *Result) Get(key Key) (interface{}, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Len returns the number of keys present.
func (r *Result) Len() int {
	return len(r.values)
}

// Gateway issues batched reads through a Multicall2 contract.
type Gateway struct {
	client       ethrpc.Client
	address      common.Address
	maxBatchSize int
	logger       *zap.Logger
}

// Options for creating Gateway.
type Options struct {
	Client       ethrpc.Client
	Address      common.Address // Multicall2 contract, DefaultAddress when zero
	MaxBatchSize int
	Logger       *zap.Logger
}

// NewGateway creates a new batched read gateway.
func NewGateway(opts Options) *Gateway {
	g := &Gateway{
		client:       opts.Client,
		address:      opts.Address,
		maxBatchSize: opts.MaxBatchSize,
		logger:       opts.Logger,
	}
	if g.address == (common.Address{}) {
		g.address = DefaultAddress
	}
	if g.maxBatchSize <= 0 {
		g.maxBatchSize = DefaultMaxBatchSize
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	return g
}

// Execute runs calls and returns their outcomes in call order.
//
// With requireSuccess false a reverted call only drops its own keys.
// With requireSuccess true any revert fails the batch. A call whose return
// data cannot be decoded is logged and dropped.
func (g *Gateway) Execute(ctx context.Context, calls []Call, requireSuccess bool) (*Result, error) {
	result := &Result{
		Outcomes: make([]Outcome, len(calls)),
		values:   make(map[Key]interface{}),
	}
	if len(calls) == 0 {
		return result, nil
	}

	seen := make(map[Key]struct{})
	for _, c := range calls {
		for _, k := range c.Keys {
			if _, dup := seen[k]; dup {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, k)
			}
			seen[k] = struct{}{}
		}
	}

	for start := 0; start < len(calls); start += g.maxBatchSize {
		end := start + g.maxBatchSize
		if end > len(calls) {
			end = len(calls)
		}

		responses, err := g.aggregate(ctx, calls[start:end], requireSuccess)
		if err != nil {
			observability.RecordBatch(end-start, err)
			return nil, err
		}
		observability.RecordBatch(end-start, nil)

		for i, resp := range responses {
			idx := start + i
			call := calls[idx]
			if !resp.Success {
				g.logger.Debug("call reverted", zap.String("method", call.Method), zap.Int("index", idx))
				continue
			}

			values, err := decodeOutcome(call, resp.ReturnData)
			if err != nil {
				observability.RecordDecodeFailure(call.Method)
				g.logger.Warn("decode call result",
					zap.String("method", call.Method),
					zap.Int("index", idx),
					zap.Error(err))
				continue
			}

			result.Outcomes[idx] = Outcome{OK: true, Values: values}
			for j, k := range call.Keys {
				result.values[k] = values[j]
			}
		}
	}

	g.logger.Debug("batch executed",
		zap.Int("calls", len(calls)),
		zap.Int("values", len(result.values)),
		zap.Bool("require_success", requireSuccess))

	return result, nil
}

// aggregate sends one tryAggregate eth_call.
func (g *Gateway) aggregate(ctx context.Context, calls []Call, requireSuccess bool) ([]Response, error) {
	reqs := make([]Request, len(calls))
	for i, c := range calls {
		reqs[i] = Request{Target: c.Target, CallData: c.Data}
	}

	data, err := ABI.Pack("tryAggregate", requireSuccess, reqs)
	if err != nil {
		return nil, fmt.Errorf("pack tryAggregate: %w", err)
	}

	raw, err := g.client.Call(ctx, g.address, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	var responses []Response
	if err := ABI.UnpackIntoInterface(&responses, "tryAggregate", raw); err != nil {
		return nil, fmt.Errorf("%w: unpack tryAggregate: %w", ErrTransport, err)
	}
	if len(responses) != len(calls) {
		return nil, fmt.Errorf("%w: expected %d results, got %d", ErrTransport, len(calls), len(responses))
	}

	return responses, nil
}

// decodeOutcome applies the call's decoder and checks the value count.
func decodeOutcome(call Call, returnData []byte) ([]interface{}, error) {
	if call.Decode == nil {
		return nil, fmt.Errorf("no decoder for %s", call.Method)
	}
	values, err := call.Decode(returnData)
	if err != nil {
		return nil, err
	}
	if len(values) != len(call.Keys) {
		return nil, fmt.Errorf("%s: decoded %d values for %d keys", call.Method, len(values), len(call.Keys))
	}
	return values, nil
}
