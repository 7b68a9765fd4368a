package storage

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethereum-optimism/zvm/zvm/bytecode"
)

// Setup is a storage without values, used to build circuits for key generation.
// Every leaf reads as zeros and nothing is hashed.
type Setup struct {
	layout [][]bytecode.ScalarType
	depth  int
}

var _ MerkleTree = (*Setup)(nil)

func NewSetup(layout [][]bytecode.ScalarType) *Setup {
	return &Setup{layout: layout, depth: Depth(len(layout))}
}

func (s *Setup) Depth() int {
	return s.depth
}

func (s *Setup) Load(index uint64) (*Leaf, error) {
	if index >= uint64(len(s.layout)) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfBounds, index, len(s.layout))
	}
	return &Leaf{Values: zeroValues(len(s.layout[index]))}, nil
}

func (s *Setup) Store(index uint64, values []*big.Int) (*Leaf, error) {
	old, err := s.Load(index)
	if err != nil {
		return nil, err
	}
	if len(values) != len(s.layout[index]) {
		return nil, fmt.Errorf("%w: %d values for %d slots", ErrInvalidLeaf, len(values), len(s.layout[index]))
	}
	return old, nil
}

func (s *Setup) RootHash() common.Hash {
	return common.Hash{}
}

func (s *Setup) Values() [][]*big.Int {
	out := make([][]*big.Int, len(s.layout))
	for i, l := range s.layout {
		out[i] = zeroValues(len(l))
	}
	return out
}
