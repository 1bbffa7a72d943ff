// Package vault defines the Vault contract (container-format handle) and
// the format-detection factory that dispatches to the concrete Raw, VHD,
// E01, and AFF4 decoders.
package vault

import "github.com/forensiccore/diskvault/internal/stream"

// Vault owns a backing resource and produces a logical byte Stream over
// its decoded contents. Any Stream produced by a Vault is valid only
// until the Vault is closed.
type Vault interface {
	// Identify returns a short format tag, e.g. "Raw", "VHD Fixed", "VHD Dynamic", "E01", "AFF4".
	Identify() string
	// Length returns the logical length of the decoded byte stream.
	Length() uint64
	// Stream returns a fresh Stream over the vault's logical bytes.
	Stream() (stream.Stream, error)
	// Close releases the backing resource and invalidates every Stream
	// this Vault produced.
	Close() error
}

// Config controls how a Vault is opened.
type Config struct {
	// UseMmap requests a memory-mapped backing view where the platform
	// and file admit it; the vault falls back to buffered reads otherwise.
	// Only the Raw and VHD vaults use it; E01 and AFF4 ignore it.
	UseMmap bool
}
