// Package ens resolves Ethereum Name Service names to addresses via the
// on-chain registry/resolver pair. Resolution is advisory: every failure mode
// collapses to "no address", never to a fatal error.
package ens

import (
	"strings"

	"golang.org/x/crypto/sha3"
)

// Namehash computes the EIP-137 node identifier for a dot-separated name:
// starting from the zero node, labels are hashed in reverse order with
// node = keccak256(node || keccak256(label)). Names are lower-cased first, so
// hashing is case-insensitive.
func Namehash(name string) [32]byte {
	var node [32]byte
	if name == "" {
		return node
	}

	labels := strings.Split(strings.ToLower(name), ".")
	for i := len(labels) - 1; i >= 0; i-- {
		labelHash := keccak256([]byte(labels[i]))
		node = keccak256(node[:], labelHash[:])
	}
	return node
}

func keccak256(chunks ...[]byte) (out [32]byte) {
	h := sha3.NewLegacyKeccak256()
	for _, chunk := range chunks {
		h.Write(chunk)
	}
	copy(out[:], h.Sum(nil))
	return out
}
