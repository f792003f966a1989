// Package digest wraps the two cryptographic fingerprints used by the
// pipeline: SHA-1 for chunk identity and SHA-256 for multichunk identity.
// Both are treated as black boxes beyond their determinism and fixed output
// size, per spec: collisions are assumed cryptographically negligible.
package digest

import (
	"crypto/sha1"  //nolint:gosec // content identity, not a security boundary
	"crypto/sha256"
	"hash"
)

// ChunkSize is the fixed output size of a chunk digest (SHA-1).
const ChunkSize = sha1.Size

// ContainerSize is the fixed output size of a multichunk digest (SHA-256).
const ContainerSize = sha256.Size

// ChunkHasher incrementally computes a chunk's content identity.
type ChunkHasher struct {
	h hash.Hash
}

// NewChunkHasher starts a fresh SHA-1 accumulator.
func NewChunkHasher() *ChunkHasher {
	return &ChunkHasher{h: sha1.New()} //nolint:gosec
}

// Start resets the accumulator to its initial state.
func (c *ChunkHasher) Start() { c.h.Reset() }

// Update folds bytes into the running digest.
func (c *ChunkHasher) Update(p []byte) { c.h.Write(p) }

// Finalize returns the 20-byte SHA-1 digest accumulated so far.
func (c *ChunkHasher) Finalize() [ChunkSize]byte {
	var out [ChunkSize]byte
	copy(out[:], c.h.Sum(nil))
	return out
}

// Chunk computes the one-shot SHA-1 digest of data.
func Chunk(data []byte) [ChunkSize]byte {
	return sha1.Sum(data) //nolint:gosec
}

// ContainerHasher incrementally computes a multichunk's content identity.
type ContainerHasher struct {
	h hash.Hash
}

// NewContainerHasher starts a fresh SHA-256 accumulator.
func NewContainerHasher() *ContainerHasher {
	return &ContainerHasher{h: sha256.New()}
}

// Start resets the accumulator to its initial state.
func (c *ContainerHasher) Start() { c.h.Reset() }

// Update folds bytes into the running digest.
func (c *ContainerHasher) Update(p []byte) { c.h.Write(p) }

// Finalize returns the 32-byte SHA-256 digest accumulated so far.
func (c *ContainerHasher) Finalize() [ContainerSize]byte {
	var out [ContainerSize]byte
	copy(out[:], c.h.Sum(nil))
	return out
}

// Container computes the one-shot SHA-256 digest of data.
func Container(data []byte) [ContainerSize]byte {
	return sha256.Sum256(data)
}
