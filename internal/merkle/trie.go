// Package merkle computes the deterministic, collision-resistant root
// hash of a version's change set (spec §4.3.4). Grounded on
// backend.rs's version_chgset_trie_root, which feeds a version's
// (key, value) pairs into a trie_root hash function; ported here onto
// github.com/xsleonard/go-merkle (seen wired into the retrieval pack's
// erigon manifest) instead of hand-rolling a Merkle tree.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"

	merkletree "github.com/xsleonard/go-merkle"
)

// ChangeSetRoot returns the Merkle root over entries, each a (key, value)
// pair mutated by a single version. The result is deterministic: entries
// are sorted by key before hashing, independent of iteration order.
func ChangeSetRoot(entries [][2][]byte) ([]byte, error) {
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i][0], entries[j][0]) < 0
	})

	if len(entries) == 0 {
		empty := sha256.Sum256(nil)
		return empty[:], nil
	}

	blocks := make([][]byte, len(entries))
	for i, e := range entries {
		leaf := make([]byte, 0, len(e[0])+len(e[1])+8)
		leaf = append(leaf, e[0]...)
		leaf = append(leaf, 0) // key/value separator, keys and values are both variable-length
		leaf = append(leaf, e[1]...)
		blocks[i] = leaf
	}

	tree := merkletree.NewTree()
	if err := tree.Generate(blocks, sha256.New()); err != nil {
		return nil, fmt.Errorf("compute change set trie root: %w", err)
	}
	root := tree.Root()
	if root == nil {
		return nil, fmt.Errorf("compute change set trie root: empty tree")
	}
	return root.Hash, nil
}
