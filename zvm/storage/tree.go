package storage

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ethereum-optimism/zvm/zvm/bytecode"
)

var (
	ErrIndexOutOfBounds = errors.New("storage index out of bounds")
	ErrInvalidLeaf      = errors.New("invalid storage leaf")
)

// Leaf is the content of one storage field.
type Leaf struct {
	Values []*big.Int
	// Path holds the sibling hashes from the leaf up to the root.
	// Nil when the tree does not hash.
	Path []fr.Element
}

// MerkleTree is the contract storage seen by the VM. Both implementations
// share the tree shape, so circuits built against either are identical.
type MerkleTree interface {
	Depth() int
	Load(index uint64) (*Leaf, error)
	// Store replaces a leaf and returns its previous content.
	Store(index uint64, values []*big.Int) (*Leaf, error)
	RootHash() common.Hash
	Values() [][]*big.Int
}

// Depth is ceil(log2(fields)), zero for a single field.
func Depth(fields int) int {
	if fields <= 1 {
		return 0
	}
	return bits.Len(uint(fields - 1))
}

// HashLeaf hashes the values of a leaf as field elements.
func HashLeaf(values []*big.Int) fr.Element {
	elems := make([]fr.Element, len(values))
	for i, v := range values {
		elems[i].SetBigInt(v)
	}
	return Hash(elems...)
}

func checkLeaf(layout []bytecode.ScalarType, values []*big.Int) error {
	if len(values) != len(layout) {
		return fmt.Errorf("%w: %d values for %d slots", ErrInvalidLeaf, len(values), len(layout))
	}
	for i, v := range values {
		if v == nil {
			return fmt.Errorf("%w: slot %d has no value", ErrInvalidLeaf, i)
		}
		if err := layout[i].Check(v); err != nil {
			return fmt.Errorf("%w: slot %d: %v", ErrInvalidLeaf, i, err)
		}
	}
	return nil
}

func zeroValues(n int) []*big.Int {
	out := make([]*big.Int, n)
	for i := range out {
		out[i] = new(big.Int)
	}
	return out
}

func copyValues(values []*big.Int) []*big.Int {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		out[i] = new(big.Int).Set(v)
	}
	return out
}
