package idhash

import (
	"github.com/ethereum/go-ethereum/crypto"

	"autopay-tips/internal/domain"
)

// ComputeQueryID computes a query id as keccak256(queryData).
func ComputeQueryID(queryData []byte) domain.QueryID {
	return domain.QueryID(crypto.Keccak256Hash(queryData))
}
