package watch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"autopay-tips/internal/ethrpc"
)

// Clock supplies the evaluation time of a cycle in unix seconds.
type Clock interface {
	Now(ctx context.Context) (uint64, error)
}

// BlockClock reads the timestamp of the latest block.
type BlockClock struct {
	client            ethrpc.Client
	wallClockFallback bool
	wallClock         func() time.Time
	logger            *zap.Logger
}

// NewBlockClock creates a BlockClock. With wallClockFallback the local time
// is used when the block timestamp cannot be read.
func NewBlockClock(client ethrpc.Client, wallClockFallback bool, logger *zap.Logger) *BlockClock {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlockClock{
		client:            client,
		wallClockFallback: wallClockFallback,
		wallClock:         time.Now,
		logger:            logger,
	}
}

func (c *BlockClock) Now(ctx context.Context) (uint64, error) {
	ts, err := c.client.LatestBlockTime(ctx)
	if err == nil && ts > 0 {
		return ts, nil
	}
	if err == nil {
		err = fmt.Errorf("latest block has no timestamp")
	}
	if !c.wallClockFallback {
		return 0, fmt.Errorf("read block time: %w", err)
	}

	now := uint64(c.wallClock().Unix())
	c.logger.Warn("block time unavailable, using wall clock", zap.Error(err), zap.Uint64("now", now))
	return now, nil
}

// FixedClock always returns the same time.
type FixedClock uint64

func (c FixedClock) Now(context.Context) (uint64, error) {
	return uint64(c), nil
}
