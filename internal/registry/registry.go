// Package registry holds the immutable catalog of queries the agent can
// produce values for.
package registry

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"autopay-tips/internal/domain"
	"autopay-tips/internal/idhash"
)

// DefaultDecimals is the fixed-point precision of reported numeric values.
const DefaultDecimals = 18

// EntrySpec describes one catalog entry before its query data is built.
type EntrySpec struct {
	Tag       string
	Type      string
	Asset     string
	Currency  string
	QueryData string // hex, required for types other than SpotPrice
	Decimals  int32
	Source    string // price source name, empty when the entry has no price
}

// Entry is a resolved catalog entry.
type Entry struct {
	Tag      string
	Query    domain.Query
	Decimals int32
	Source   string
}

// Registry maps query ids to catalog entries and decides which query types
// are supported. It is read-only after New and safe for concurrent use.
type Registry struct {
	entries []Entry
	byID    map[domain.QueryID]int
	byTag   map[string]int
	types   map[string]struct{}
}

// New builds a registry from entry specs. extraTypes lists query types that
// are supported without a catalog entry.
func New(specs []EntrySpec, extraTypes []string) (*Registry, error) {
	r := &Registry{
		byID:  make(map[domain.QueryID]int, len(specs)),
		byTag: make(map[string]int, len(specs)),
		types: make(map[string]struct{}),
	}

	for _, spec := range specs {
		entry, err := resolve(spec)
		if err != nil {
			return nil, fmt.Errorf("registry entry %q: %w", spec.Tag, err)
		}
		if _, dup := r.byTag[entry.Tag]; dup {
			return nil, fmt.Errorf("registry entry %q: duplicate tag", entry.Tag)
		}
		if _, dup := r.byID[entry.Query.ID]; dup {
			return nil, fmt.Errorf("registry entry %q: duplicate query id %s", entry.Tag, entry.Query.ID.Hex())
		}

		r.byID[entry.Query.ID] = len(r.entries)
		r.byTag[entry.Tag] = len(r.entries)
		r.types[entry.Query.Type] = struct{}{}
		r.entries = append(r.entries, entry)
	}

	for _, t := range extraTypes {
		if t = strings.TrimSpace(t); t != "" {
			r.types[t] = struct{}{}
		}
	}

	return r, nil
}

func resolve(spec EntrySpec) (Entry, error) {
	if spec.Tag == "" {
		return Entry{}, fmt.Errorf("missing tag")
	}
	qtype := spec.Type
	if qtype == "" {
		qtype = SpotPriceType
	}

	var data []byte
	var err error
	switch {
	case spec.QueryData != "":
		data, err = hex.DecodeString(strings.TrimPrefix(spec.QueryData, "0x"))
		if err != nil {
			return Entry{}, fmt.Errorf("query data: %w", err)
		}
		decoded, err := DecodeQueryType(data)
		if err != nil {
			return Entry{}, err
		}
		if spec.Type != "" && decoded != spec.Type {
			return Entry{}, fmt.Errorf("query data has type %s, configured %s", decoded, spec.Type)
		}
		qtype = decoded
	case qtype == SpotPriceType:
		if spec.Asset == "" || spec.Currency == "" {
			return Entry{}, fmt.Errorf("spot price needs asset and currency")
		}
		data, err = EncodeSpotPrice(spec.Asset, spec.Currency)
		if err != nil {
			return Entry{}, err
		}
	default:
		return Entry{}, fmt.Errorf("type %s needs explicit query data", qtype)
	}

	decimals := spec.Decimals
	if decimals == 0 {
		decimals = DefaultDecimals
	}
	if decimals < 0 || decimals > 77 {
		return Entry{}, fmt.Errorf("decimals %d out of range", decimals)
	}

	return Entry{
		Tag: spec.Tag,
		Query: domain.Query{
			ID:   idhash.ComputeQueryID(data),
			Data: data,
			Type: qtype,
		},
		Decimals: decimals,
		Source:   spec.Source,
	}, nil
}

// Catalog returns the catalog entries in configuration order.
func (r *Registry) Catalog() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Lookup returns the entry for a query id.
func (r *Registry) Lookup(id domain.QueryID) (Entry, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// ByTag returns the entry with the given tag.
func (r *Registry) ByTag(tag string) (Entry, bool) {
	i, ok := r.byTag[tag]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// SupportedTypes returns the supported query types, sorted.
func (r *Registry) SupportedTypes() []string {
	out := make([]string, 0, len(r.types))
	for t := range r.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Describe builds a Query from raw query data. It fails when the query type
// cannot be decoded or is not supported.
func (r *Registry) Describe(queryData []byte) (domain.Query, error) {
	id := idhash.ComputeQueryID(queryData)
	if entry, ok := r.Lookup(id); ok {
		return entry.Query, nil
	}

	qtype, err := DecodeQueryType(queryData)
	if err != nil {
		return domain.Query{}, err
	}
	if _, ok := r.types[qtype]; !ok {
		return domain.Query{}, fmt.Errorf("%w: unsupported type %s", ErrQueryData, qtype)
	}

	return domain.Query{ID: id, Data: queryData, Type: qtype}, nil
}

// Supports reports whether the agent can produce a value for queryData.
func (r *Registry) Supports(queryData []byte) bool {
	_, err := r.Describe(queryData)
	return err == nil
}

// DecodeValue interprets a stored oracle value of a catalog query as a
// fixed-point number.
func (r *Registry) DecodeValue(id domain.QueryID, value []byte) (decimal.Decimal, error) {
	decimals := int32(DefaultDecimals)
	if entry, ok := r.Lookup(id); ok {
		decimals = entry.Decimals
	}
	return DecodeFixed(value, decimals)
}

// DecodeFixed reads a 32-byte big-endian unsigned integer scaled by 10^decimals.
func DecodeFixed(value []byte, decimals int32) (decimal.Decimal, error) {
	if len(value) != 32 {
		return decimal.Zero, fmt.Errorf("%w: value is %d bytes, want 32", ErrQueryData, len(value))
	}
	n := new(big.Int).SetBytes(value)
	return decimal.NewFromBigInt(n, -decimals), nil
}
