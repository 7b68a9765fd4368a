package bytecode

import (
	"errors"
	"fmt"
)

var ErrInvalidProgram = errors.New("invalid program")

// Function is an entry of the static call table.
type Function struct {
	Name       string `json:"name"`
	Address    int    `json:"address"`
	InputSize  int    `json:"input_size"`
	OutputSize int    `json:"output_size"`
}

// Entry is an invocable function: `main` of a circuit or a contract method.
type Entry struct {
	Name    string `json:"name"`
	Address int    `json:"address"`
	Input   Type   `json:"input"`
	Output  Type   `json:"output"`
	Mutable bool   `json:"mutable,omitempty"`
}

type Program struct {
	Name         string        `json:"name"`
	Instructions []Instruction `json:"instructions"`
	Functions    []Function    `json:"functions"`
	Entries      []Entry       `json:"entries"`
	// GlobalSize is the number of data stack slots reserved for globals.
	// Frames start above them.
	GlobalSize int `json:"global_size,omitempty"`
	// Storage is the field layout of a contract. Empty for circuits.
	Storage []Member `json:"storage,omitempty"`
}

func (p *Program) IsContract() bool {
	return len(p.Storage) > 0
}

func (p *Program) FunctionAt(address int) (*Function, bool) {
	for i := range p.Functions {
		if p.Functions[i].Address == address {
			return &p.Functions[i], true
		}
	}
	return nil, false
}

// Entry looks up an entry by name. An empty name selects the only entry of the program.
func (p *Program) Entry(name string) (*Entry, error) {
	if name == "" {
		if len(p.Entries) != 1 {
			return nil, fmt.Errorf("%w: program has %d entries, one must be selected", ErrInvalidProgram, len(p.Entries))
		}
		return &p.Entries[0], nil
	}
	for i := range p.Entries {
		if p.Entries[i].Name == name {
			return &p.Entries[i], nil
		}
	}
	return nil, fmt.Errorf("%w: unknown entry %q", ErrInvalidProgram, name)
}

// StorageLayout returns the flattened scalar types of every storage field.
func (p *Program) StorageLayout() [][]ScalarType {
	out := make([][]ScalarType, len(p.Storage))
	for i, f := range p.Storage {
		out[i] = f.Type.Flatten()
	}
	return out
}

func (p *Program) Validate() error {
	if len(p.Instructions) == 0 {
		return fmt.Errorf("%w: no instructions", ErrInvalidProgram)
	}
	if p.GlobalSize < 0 {
		return fmt.Errorf("%w: negative global size", ErrInvalidProgram)
	}
	seen := make(map[int]bool, len(p.Functions))
	for _, f := range p.Functions {
		if f.Address < 0 || f.Address >= len(p.Instructions) {
			return fmt.Errorf("%w: function %q at invalid address %d", ErrInvalidProgram, f.Name, f.Address)
		}
		if f.InputSize < 0 || f.OutputSize < 0 {
			return fmt.Errorf("%w: function %q has negative arity", ErrInvalidProgram, f.Name)
		}
		if seen[f.Address] {
			return fmt.Errorf("%w: duplicate function address %d", ErrInvalidProgram, f.Address)
		}
		seen[f.Address] = true
	}
	if len(p.Entries) == 0 {
		return fmt.Errorf("%w: no entries", ErrInvalidProgram)
	}
	for _, e := range p.Entries {
		f, ok := p.FunctionAt(e.Address)
		if !ok {
			return fmt.Errorf("%w: entry %q does not point at a function", ErrInvalidProgram, e.Name)
		}
		inputs := e.Input.Size()
		if p.IsContract() {
			inputs++
		}
		if f.InputSize != inputs || f.OutputSize != e.Output.Size() {
			return fmt.Errorf("%w: entry %q arity (%d, %d) does not match function %q (%d, %d)",
				ErrInvalidProgram, e.Name, inputs, e.Output.Size(), f.Name, f.InputSize, f.OutputSize)
		}
	}
	for i, insn := range p.Instructions {
		if insn.Op >= numOpcodes {
			return fmt.Errorf("%w: instruction %d: unknown opcode", ErrInvalidProgram, i)
		}
		if insn.Op == OpCall {
			if _, ok := p.FunctionAt(insn.Address); !ok {
				return fmt.Errorf("%w: instruction %d: call to unknown function at %d", ErrInvalidProgram, i, insn.Address)
			}
		}
	}
	for _, f := range p.Storage {
		if f.Type.Size() == 0 {
			return fmt.Errorf("%w: storage field %q is empty", ErrInvalidProgram, f.Name)
		}
	}
	return nil
}
