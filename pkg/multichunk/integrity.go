package multichunk

import (
	"bytes"
	"fmt"

	"github.com/cbergoon/merkletree"

	"github.com/X-Ryl669/frostcore/internal/digest"
)

// IntegrityTree is an optional Merkle tree over a multichunk's packed chunk
// SHA-1 digests, layered on top of the multichunk container rather than
// woven into it (spec §4.4's entropy() is similarly "not required; callers
// may ignore it" — this follows the same shape): nothing in Multichunk's
// wire format or core operations depends on this existing.
type IntegrityTree struct {
	tree *merkletree.MerkleTree
}

// leafContent adapts a chunk's SHA-1 digest to merkletree.Content.
type leafContent struct {
	sha1 [digest.ChunkSize]byte
}

func (c leafContent) CalculateHash() ([]byte, error) {
	return c.sha1[:], nil
}

func (c leafContent) Equals(other merkletree.Content) (bool, error) {
	o, ok := other.(leafContent)
	if !ok {
		return false, fmt.Errorf("multichunk: integrity tree content type mismatch")
	}
	return c.sha1 == o.sha1, nil
}

// BuildIntegrityTree builds a Merkle tree over every chunk currently packed
// in m, leaf order matching packed order.
func BuildIntegrityTree(m *Multichunk) (*IntegrityTree, error) {
	if m.Count() == 0 {
		return nil, fmt.Errorf("multichunk: cannot build an integrity tree over an empty multichunk")
	}

	leaves := make([]merkletree.Content, 0, m.Count())
	for i := 0; i < m.Count(); i++ {
		c, err := m.Chunk(i)
		if err != nil {
			return nil, fmt.Errorf("multichunk: reading chunk %d for integrity tree: %w", i, err)
		}
		leaves = append(leaves, leafContent{sha1: c.Checksum})
	}

	tree, err := merkletree.NewTree(leaves)
	if err != nil {
		return nil, fmt.Errorf("multichunk: building integrity tree: %w", err)
	}
	return &IntegrityTree{tree: tree}, nil
}

// Root returns the tree's Merkle root, the value a caller persists
// alongside a multichunk's SHA-256 identity as a second, structural
// integrity check.
func (t *IntegrityTree) Root() []byte {
	if t == nil || t.tree == nil {
		return nil
	}
	return t.tree.MerkleRoot()
}

// Verify re-derives the tree's internal hashes and confirms they are
// consistent, detecting corruption of the tree structure itself.
func (t *IntegrityTree) Verify() (bool, error) {
	ok, err := t.tree.VerifyTree()
	if err != nil {
		return false, fmt.Errorf("multichunk: verifying integrity tree: %w", err)
	}
	return ok, nil
}

// VerifyChunk reports whether the chunk with the given SHA-1 digest is
// present in the tree and consistent with its recorded path to the root.
func (t *IntegrityTree) VerifyChunk(sha1 [digest.ChunkSize]byte) (bool, error) {
	ok, err := t.tree.VerifyContent(leafContent{sha1: sha1})
	if err != nil {
		return false, fmt.Errorf("multichunk: verifying chunk against integrity tree: %w", err)
	}
	return ok, nil
}

// VerifyRoot reports whether m's current contents hash to expectedRoot,
// rebuilding the tree from scratch. Used when loading a multichunk whose
// expected root was recorded elsewhere (e.g. the catalog).
func VerifyRoot(m *Multichunk, expectedRoot []byte) (bool, error) {
	t, err := BuildIntegrityTree(m)
	if err != nil {
		return false, err
	}
	if ok, err := t.Verify(); err != nil || !ok {
		return false, err
	}
	return bytes.Equal(t.Root(), expectedRoot), nil
}
