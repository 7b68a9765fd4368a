package vm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ethereum-optimism/zvm/zvm/bytecode"
	"github.com/ethereum-optimism/zvm/zvm/gadgets"
	"github.com/ethereum-optimism/zvm/zvm/r1cs"
	"github.com/ethereum-optimism/zvm/zvm/storage"
)

// Transfer is a token movement requested by a contract. It is not part of
// the circuit.
type Transfer struct {
	Recipient common.Address `json:"recipient"`
	Token     common.Address `json:"token"`
	Amount    *uint256.Int   `json:"amount"`
}

// Contract is the instance a method operates on: its storage and the root
// the circuit currently commits to.
type Contract struct {
	tree   storage.MerkleTree
	layout [][]bytecode.ScalarType
	root   gadgets.Scalar
}

func rootValue(h common.Hash) *big.Int {
	return new(big.Int).SetBytes(h[:])
}

// NewContract binds the storage root to a public input.
func NewContract(cs *r1cs.System, tree storage.MerkleTree, layout [][]bytecode.ScalarType) (*Contract, error) {
	root, err := gadgets.Allocate(cs, rootValue(tree.RootHash()), bytecode.Field)
	if err != nil {
		return nil, err
	}
	if root, err = gadgets.Expose(cs, root); err != nil {
		return nil, err
	}
	return &Contract{tree: tree, layout: layout, root: root}, nil
}

func (c *Contract) Root() gadgets.Scalar {
	return c.root
}

func (c *Contract) fieldLayout(index uint64, size int) ([]bytecode.ScalarType, error) {
	if index >= uint64(len(c.layout)) {
		return nil, fmt.Errorf("%w: field %d of %d", storage.ErrIndexOutOfBounds, index, len(c.layout))
	}
	layout := c.layout[index]
	if size != len(layout) {
		return nil, fmt.Errorf("%w: field %d has %d slots, instruction uses %d", ErrArityMismatch, index, len(layout), size)
	}
	return layout, nil
}

// authenticate allocates a leaf with its path and enforces that it hashes to
// the current root.
func (c *Contract) authenticate(cs *r1cs.System, index uint64, layout []bytecode.ScalarType) ([]gadgets.Scalar, []gadgets.Scalar, error) {
	leaf, err := c.tree.Load(index)
	if err != nil {
		return nil, nil, err
	}
	values := make([]gadgets.Scalar, len(layout))
	for i, t := range layout {
		if values[i], err = gadgets.Allocate(cs, leaf.Values[i], t); err != nil {
			return nil, nil, err
		}
	}
	path := make([]gadgets.Scalar, c.tree.Depth())
	for i := range path {
		var v *big.Int
		if i < len(leaf.Path) {
			v = leaf.Path[i].BigInt(new(big.Int))
		}
		if path[i], err = gadgets.Allocate(cs, v, bytecode.Field); err != nil {
			return nil, nil, err
		}
	}
	root, err := gadgets.MerkleRoot(cs, values, index, path)
	if err != nil {
		return nil, nil, err
	}
	gadgets.AssertEqual(cs, root, c.root, fmt.Sprintf("storage leaf %d", index))
	return values, path, nil
}

func (c *Contract) Load(cs *r1cs.System, index uint64, size int) ([]gadgets.Scalar, error) {
	layout, err := c.fieldLayout(index, size)
	if err != nil {
		return nil, err
	}
	values, _, err := c.authenticate(cs, index, layout)
	return values, err
}

// Store writes values to a field when cond holds and keeps the old leaf
// otherwise. The root is recomputed in the circuit from the same path.
func (c *Contract) Store(cs *r1cs.System, cond gadgets.Scalar, index uint64, values []gadgets.Scalar) error {
	layout, err := c.fieldLayout(index, len(values))
	if err != nil {
		return err
	}
	old, path, err := c.authenticate(cs, index, layout)
	if err != nil {
		return err
	}
	leaf := make([]gadgets.Scalar, len(values))
	raw := make([]*big.Int, len(values))
	for i := range values {
		if leaf[i], err = gadgets.Select(cs, cond, values[i], old[i]); err != nil {
			return err
		}
		raw[i] = leaf[i].BigInt()
	}
	if _, err := c.tree.Store(index, raw); err != nil {
		return err
	}
	root, err := gadgets.MerkleRoot(cs, leaf, index, path)
	if err != nil {
		return err
	}
	c.root = root
	if cs.HasWitness() {
		if got := common.Hash(root.Element().Bytes()); got != c.tree.RootHash() {
			return fmt.Errorf("%w: circuit %s, storage %s", ErrRootMismatch, got, c.tree.RootHash())
		}
	}
	return nil
}

func (c *Contract) Values() [][]*big.Int {
	return c.tree.Values()
}

func (c *Contract) RootHash() common.Hash {
	return c.tree.RootHash()
}

// AddressType is the scalar type of transfer recipients and tokens.
var AddressType = bytecode.Unsigned(160)

func requireAddress(s gadgets.Scalar, what string) error {
	if s.Type() != AddressType {
		return fmt.Errorf("%w: transfer %s must be %s, got %s", gadgets.ErrTypeMismatch, what, AddressType, s.Type())
	}
	return nil
}

func newTransfer(recipient, token, amount gadgets.Scalar) (Transfer, error) {
	v := amount.BigInt()
	if v.Sign() < 0 {
		return Transfer{}, fmt.Errorf("%w: negative transfer amount %s", gadgets.ErrValueOverflow, v)
	}
	value, overflow := uint256.FromBig(v)
	if overflow {
		return Transfer{}, fmt.Errorf("%w: transfer amount %s", gadgets.ErrValueOverflow, v)
	}
	return Transfer{
		Recipient: common.BigToAddress(recipient.BigInt()),
		Token:     common.BigToAddress(token.BigInt()),
		Amount:    value,
	}, nil
}
