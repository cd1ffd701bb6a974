// Package pricesource provides the current price of a query for threshold
// checks.
package pricesource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"autopay-tips/internal/domain"
	"autopay-tips/internal/observability"
	"autopay-tips/internal/registry"
)

// ErrNoPrice is returned when no price is available for a query.
var ErrNoPrice = errors.New("no price available")

// Source fetches the current price of a query.
type Source interface {
	FetchPrice(ctx context.Context, query domain.Query) (decimal.Decimal, error)
}

// Static serves fixed prices keyed by query id. It is used for tests and
// for pegged assets.
type Static struct {
	mu     sync.RWMutex
	prices map[domain.QueryID]decimal.Decimal
	value  *decimal.Decimal
}

// NewStatic creates a Static source with no prices.
func NewStatic() *Static {
	return &Static{prices: make(map[domain.QueryID]decimal.Decimal)}
}

// NewFixed creates a Static source returning value for every query.
func NewFixed(value decimal.Decimal) *Static {
	s := NewStatic()
	s.value = &value
	return s
}

// Set sets the price of a query.
func (s *Static) Set(id domain.QueryID, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[id] = price
}

// FetchPrice returns the configured price.
func (s *Static) FetchPrice(_ context.Context, query domain.Query) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.prices[query.ID]; ok {
		return p, nil
	}
	if s.value != nil {
		return *s.value, nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s", ErrNoPrice, query.ID.Hex())
}

// Router resolves a query to the source named by its registry entry.
type Router struct {
	registry *registry.Registry
	sources  map[string]Source
	fallback string
	logger   *zap.Logger
}

// RouterOptions for creating Router.
type RouterOptions struct {
	Registry *registry.Registry
	Sources  map[string]Source
	// Fallback names the source used for supported queries outside the catalog.
	Fallback string
	Logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(opts RouterOptions) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sources := opts.Sources
	if sources == nil {
		sources = map[string]Source{}
	}
	return &Router{
		registry: opts.Registry,
		sources:  sources,
		fallback: opts.Fallback,
		logger:   logger,
	}
}

// FetchPrice fetches the price from the query's source.
func (r *Router) FetchPrice(ctx context.Context, query domain.Query) (decimal.Decimal, error) {
	name := r.fallback
	if r.registry != nil {
		if entry, ok := r.registry.Lookup(query.ID); ok {
			name = entry.Source
		}
	}
	if name == "" {
		return decimal.Zero, fmt.Errorf("%w: no source for %s", ErrNoPrice, query.ID.Hex())
	}

	src, ok := r.sources[name]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown source %q", ErrNoPrice, name)
	}

	price, err := src.FetchPrice(ctx, query)
	if err != nil {
		observability.RecordPriceError(name)
		r.logger.Warn("price fetch failed",
			zap.String("source", name),
			zap.String("query_id", query.ID.Hex()),
			zap.Error(err))
		return decimal.Zero, err
	}
	return price, nil
}
