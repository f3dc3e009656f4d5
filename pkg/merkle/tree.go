// Package merkle builds the inclusion-proof tree committed to by a compiled
// bundle. Leaves are artifact digests in canonical order; interior nodes hash
// the sorted pair of their children, so a proof is just the sibling list and
// verification needs no left/right bookkeeping. When a level has an odd node
// count the last hash is duplicated.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// nodePrefix domain-separates interior node hashing from leaf digests.
const nodePrefix = "gj:bundle:node:v1\x00"

// Proof is the sibling-hash path from a leaf to the root.
type Proof []string

// Tree is the result of building a Merkle tree: the root and one proof per
// leaf, indexed like the input leaves.
type Tree struct {
	Root   string
	Proofs []Proof
}

// Build constructs the tree over the given leaf digests (hex SHA-256).
func Build(leaves []string) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("merkle: no leaves")
	}
	for i, l := range leaves {
		if _, err := hex.DecodeString(l); err != nil {
			return nil, fmt.Errorf("merkle: leaf %d is not hex: %w", i, err)
		}
	}

	proofs := make([]Proof, len(leaves))
	// index of each original leaf within the current level
	positions := make([]int, len(leaves))
	for i := range positions {
		positions[i] = i
	}

	level := append([]string(nil), leaves...)
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		for leaf, pos := range positions {
			sibling := pos ^ 1
			proofs[leaf] = append(proofs[leaf], level[sibling])
			positions[leaf] = pos / 2
		}
		next := make([]string, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = pairHash(level[i], level[i+1])
		}
		level = next
	}

	return &Tree{Root: level[0], Proofs: proofs}, nil
}

// VerifyProof replays a proof path and reports whether it lands on root.
func VerifyProof(leafHash string, proof Proof, root string) bool {
	current := leafHash
	for _, sibling := range proof {
		current = pairHash(current, sibling)
	}
	return current == root
}

// pairHash hashes the byte-wise sorted pair of two hex digests.
func pairHash(a, b string) string {
	ab, _ := hex.DecodeString(a)
	bb, _ := hex.DecodeString(b)
	if bytes.Compare(ab, bb) > 0 {
		ab, bb = bb, ab
	}
	h := sha256.New()
	h.Write([]byte(nodePrefix))
	h.Write(ab)
	h.Write(bb)
	return hex.EncodeToString(h.Sum(nil))
}
