package storage

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ethereum-optimism/zvm/zvm/bytecode"
)

// Database is the storage of a contract with its real values.
//
// Nodes are kept in one array: the root at index 1, the children of node i
// at 2i and 2i+1, and leaf i at 2^depth + i. Leaves past the last field hash to zero.
type Database struct {
	layout [][]bytecode.ScalarType
	depth  int
	leaves [][]*big.Int
	nodes  []fr.Element
}

var _ MerkleTree = (*Database)(nil)

func NewDatabase(layout [][]bytecode.ScalarType, values [][]*big.Int) (*Database, error) {
	if len(values) != len(layout) {
		return nil, fmt.Errorf("%w: %d leaves for %d fields", ErrInvalidLeaf, len(values), len(layout))
	}
	db := &Database{
		layout: layout,
		depth:  Depth(len(layout)),
		leaves: make([][]*big.Int, len(layout)),
	}
	for i, v := range values {
		if err := checkLeaf(layout[i], v); err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		db.leaves[i] = copyValues(v)
	}
	db.nodes = make([]fr.Element, 2<<db.depth)
	db.rebuild()
	return db, nil
}

func (db *Database) Depth() int {
	return db.depth
}

// rebuild rehashes every leaf and node.
func (db *Database) rebuild() {
	width := 1 << db.depth
	for i := 0; i < width; i++ {
		if i < len(db.leaves) {
			db.nodes[width+i] = HashLeaf(db.leaves[i])
		} else {
			db.nodes[width+i] = fr.Element{}
		}
	}
	for i := width - 1; i >= 1; i-- {
		db.nodes[i] = HashPair(db.nodes[2*i], db.nodes[2*i+1])
	}
}

func (db *Database) path(index uint64) []fr.Element {
	out := make([]fr.Element, db.depth)
	node := uint64(1)<<db.depth + index
	for level := range out {
		out[level] = db.nodes[node^1]
		node >>= 1
	}
	return out
}

func (db *Database) Load(index uint64) (*Leaf, error) {
	if index >= uint64(len(db.leaves)) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfBounds, index, len(db.leaves))
	}
	return &Leaf{
		Values: copyValues(db.leaves[index]),
		Path:   db.path(index),
	}, nil
}

func (db *Database) Store(index uint64, values []*big.Int) (*Leaf, error) {
	old, err := db.Load(index)
	if err != nil {
		return nil, err
	}
	if err := checkLeaf(db.layout[index], values); err != nil {
		return nil, err
	}
	db.leaves[index] = copyValues(values)
	db.rebuild()
	return old, nil
}

func (db *Database) RootHash() common.Hash {
	return common.Hash(db.nodes[1].Bytes())
}

func (db *Database) Values() [][]*big.Int {
	out := make([][]*big.Int, len(db.leaves))
	for i, leaf := range db.leaves {
		out[i] = copyValues(leaf)
	}
	return out
}
