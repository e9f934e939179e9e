package compression

import (
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/compressed-tree-registry/interfaces"
)

var emptyNodes [MaxDepth + 1]interfaces.Hash

func init() {
	for level := 1; level <= MaxDepth; level++ {
		emptyNodes[level] = hashPair(emptyNodes[level-1], emptyNodes[level-1])
	}
}

func hashPair(left, right interfaces.Hash) interfaces.Hash {
	return interfaces.Hash(crypto.Keccak256Hash(left[:], right[:]))
}

// EmptyNode returns the root of an empty subtree of the given height. Empty leaves are all zero.
func EmptyNode(level uint32) interfaces.Hash {
	return emptyNodes[level]
}

// EmptyRoot returns the root of an empty tree of the given depth.
func EmptyRoot(depth uint32) interfaces.Hash {
	return EmptyNode(depth)
}
