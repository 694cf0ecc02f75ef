package merkle

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// Tree builds the full layer structure for a leaf set so that roots and
// proofs can be produced off the hot path (owners preparing guardian roots,
// tooling, tests). The engine itself never materializes a tree; it only
// verifies proofs.
type Tree struct {
	layers [][]common.Hash // layers[0] = leaves, last layer = root
}

// NewTree constructs a tree over the given leaves. Odd nodes are promoted to
// the next layer unhashed.
func NewTree(leaves []common.Hash) *Tree {
	if len(leaves) == 0 {
		return &Tree{layers: [][]common.Hash{{{}}}}
	}
	layers := [][]common.Hash{append([]common.Hash(nil), leaves...)}
	for current := layers[0]; len(current) > 1; current = layers[len(layers)-1] {
		next := make([]common.Hash, 0, (len(current)+1)/2)
		for i := 0; i+1 < len(current); i += 2 {
			next = append(next, hashPair(current[i], current[i+1]))
		}
		if len(current)%2 == 1 {
			next = append(next, current[len(current)-1])
		}
		layers = append(layers, next)
	}
	return &Tree{layers: layers}
}

// Root returns the tree's commitment root.
func (t *Tree) Root() common.Hash {
	top := t.layers[len(t.layers)-1]
	return top[0]
}

// Prove returns the membership proof for leaf index i.
func (t *Tree) Prove(i int) ([]common.Hash, error) {
	if i < 0 || i >= len(t.layers[0]) {
		return nil, errors.New("merkle: leaf index out of range")
	}
	var proof []common.Hash
	for _, layer := range t.layers[:len(t.layers)-1] {
		sibling := i ^ 1
		if sibling < len(layer) {
			proof = append(proof, layer[sibling])
		}
		i /= 2
	}
	return proof, nil
}
