// Package idgen generates URL-safe identifiers with type prefixes.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

const idBytes = 16

// New returns a new identifier of the form "<prefix>_<32 hex chars>".
func New(prefix string) string {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return prefix + "_" + hex.EncodeToString(b)
}

// Transaction returns an identifier for a transaction record.
func Transaction() string { return New("txn") }

// Event returns an identifier for a realtime event.
func Event() string { return New("evt") }
