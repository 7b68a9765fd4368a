package vm

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethereum-optimism/zvm/zvm/bytecode"
	"github.com/ethereum-optimism/zvm/zvm/gadgets"
	"github.com/ethereum-optimism/zvm/zvm/r1cs"
	"github.com/ethereum-optimism/zvm/zvm/storage"
)

// Witness holds the private inputs of an invocation.
type Witness struct {
	Arguments json.RawMessage `json:"arguments"`
	// Storage is the current value of every contract field, in layout order.
	// Missing storage reads as zeros.
	Storage []json.RawMessage `json:"storage,omitempty"`
}

type StorageValue struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

type Output struct {
	Result    json.RawMessage `json:"result"`
	Storage   []StorageValue  `json:"storage,omitempty"`
	RootHash  *common.Hash    `json:"root_hash,omitempty"`
	Transfers []Transfer      `json:"transfers,omitempty"`
	Stats     r1cs.Stats      `json:"stats"`
	Digest    common.Hash     `json:"digest"`

	System *r1cs.System `json:"-"`
}

// Circuit is the witness-less constraint system of an entry.
type Circuit struct {
	Program string      `json:"program"`
	Entry   string      `json:"entry"`
	Stats   r1cs.Stats  `json:"stats"`
	Digest  common.Hash `json:"digest"`

	System *r1cs.System `json:"-"`
}

func prepare(program *bytecode.Program, name string) (*bytecode.Entry, error) {
	if err := program.Validate(); err != nil {
		return nil, categorize(err)
	}
	entry, err := program.Entry(name)
	if err != nil {
		return nil, categorize(err)
	}
	return entry, nil
}

// invoke is shared by both modes. args is nil without witness.
func invoke(program *bytecode.Program, entry *bytecode.Entry, cs *r1cs.System, tree storage.MerkleTree, args []*big.Int, cfg *Config) (*VM, error) {
	machine := New(program, cs, cfg)
	var cells []Cell
	if program.IsContract() {
		c, err := NewContract(cs, tree, program.StorageLayout())
		if err != nil {
			return nil, categorize(err)
		}
		machine.Attach(c)
		cells = append(cells, ContractCell(c))
	}
	for i, t := range entry.Input.Flatten() {
		var value *big.Int
		if args != nil {
			value = args[i]
		}
		s, err := gadgets.Allocate(cs, value, t)
		if err != nil {
			return nil, categorize(fmt.Errorf("argument %d: %w", i, err))
		}
		cells = append(cells, ValueCell(s))
	}
	if err := machine.Start(entry, cells); err != nil {
		return nil, categorize(err)
	}
	if err := machine.Run(); err != nil {
		return nil, err
	}
	return machine, nil
}

func openDatabase(program *bytecode.Program, raw []json.RawMessage) (*storage.Database, error) {
	layout := program.StorageLayout()
	if len(raw) != 0 && len(raw) != len(program.Storage) {
		return nil, fmt.Errorf("%w: %d storage values for %d fields", storage.ErrInvalidLeaf, len(raw), len(program.Storage))
	}
	leaves := make([][]*big.Int, len(layout))
	for i, f := range program.Storage {
		if len(raw) == 0 {
			leaves[i] = make([]*big.Int, len(layout[i]))
			for j := range leaves[i] {
				leaves[i][j] = new(big.Int)
			}
			continue
		}
		v, err := f.Type.DecodeValue(raw[i])
		if err != nil {
			return nil, fmt.Errorf("storage field %q: %w", f.Name, err)
		}
		leaves[i] = v
	}
	return storage.NewDatabase(layout, leaves)
}

// Run executes an entry with a witness and checks the resulting assignment.
func Run(program *bytecode.Program, name string, w *Witness, cfg *Config) (*Output, error) {
	entry, err := prepare(program, name)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = &Witness{}
	}
	args, err := entry.Input.DecodeValue(w.Arguments)
	if err != nil {
		return nil, categorize(fmt.Errorf("arguments: %w", err))
	}
	var db *storage.Database
	var tree storage.MerkleTree
	if program.IsContract() {
		if db, err = openDatabase(program, w.Storage); err != nil {
			return nil, categorize(err)
		}
		tree = db
	}

	cs := r1cs.NewSystem(true)
	machine, err := invoke(program, entry, cs, tree, args, cfg)
	if err != nil {
		return nil, err
	}
	if err := cs.IsSatisfied(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsatisfied, err)
	}

	result := make([]*big.Int, len(machine.Outputs()))
	for i, s := range machine.Outputs() {
		result[i] = s.BigInt()
	}
	encoded, err := entry.Output.EncodeValue(result)
	if err != nil {
		return nil, categorize(err)
	}
	out := &Output{
		Result:    encoded,
		Transfers: machine.Transfers(),
		Stats:     cs.Stats(),
		Digest:    cs.Digest(),
		System:    cs,
	}
	if db != nil {
		for i, leaf := range db.Values() {
			f := program.Storage[i]
			v, err := f.Type.EncodeValue(leaf)
			if err != nil {
				return nil, categorize(err)
			}
			out.Storage = append(out.Storage, StorageValue{Name: f.Name, Value: v})
		}
		root := db.RootHash()
		out.RootHash = &root
	}
	return out, nil
}

// Setup builds the circuit of an entry without any witness. Its shape is the
// one Run produces for every input.
func Setup(program *bytecode.Program, name string, cfg *Config) (*Circuit, error) {
	entry, err := prepare(program, name)
	if err != nil {
		return nil, err
	}
	var tree storage.MerkleTree
	if program.IsContract() {
		tree = storage.NewSetup(program.StorageLayout())
	}
	cs := r1cs.NewSystem(false)
	if _, err := invoke(program, entry, cs, tree, nil, cfg); err != nil {
		return nil, err
	}
	return &Circuit{
		Program: program.Name,
		Entry:   entry.Name,
		Stats:   cs.Stats(),
		Digest:  cs.Digest(),
		System:  cs,
	}, nil
}
