package domain

import (
	"bytes"
	"encoding/hex"
)

// QueryID is the keccak256 hash of a query's query data.
type QueryID [32]byte

// Hex returns the 0x-prefixed hex form.
func (id QueryID) Hex() string {
	return "0x" + hex.EncodeToString(id[:])
}

func (id QueryID) String() string {
	return id.Hex()
}

// Less orders query ids by their raw bytes.
func (id QueryID) Less(other QueryID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

// FeedID identifies one recurring reward feed of a query.
type FeedID [32]byte

// Hex returns the 0x-prefixed hex form.
func (id FeedID) Hex() string {
	return "0x" + hex.EncodeToString(id[:])
}

func (id FeedID) String() string {
	return id.Hex()
}

// Query is an oracle query the agent may report.
// Immutable once created.
type Query struct {
	ID   QueryID // keccak256(Data)
	Data []byte  // ABI encoded (string queryType, bytes params)
	Type string  // decoded query type, e.g. SpotPrice
}
