package storage

import "errors"

// Sentinel errors shared by the memory, PostgreSQL and ClickHouse stores.
var (
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicateKey rejects a second record for the same cycle.
	// Stored records are never updated.
	ErrDuplicateKey = errors.New("storage: record already exists for this cycle")

	ErrInvalidInput = errors.New("storage: invalid record")
)
