package r1cs

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrMissingAssignment = errors.New("missing assignment")
	ErrNoWitness         = errors.New("constraint system has no witness")
)

// Constraint enforces A·B = C.
type Constraint struct {
	A, B, C LinearCombination
	Name    string
}

// UnsatisfiedError reports the first constraint whose witness evaluation failed.
type UnsatisfiedError struct {
	Index int
	Name  string
}

func (e *UnsatisfiedError) Error() string {
	return fmt.Sprintf("constraint %d (%s) is not satisfied", e.Index, e.Name)
}

type Stats struct {
	Constraints int `json:"constraints"`
	Variables   int `json:"variables"`
	Public      int `json:"public"`
}

// System is a rank-1 constraint system over the BN254 scalar field.
//
// A System either carries a witness, in which case every allocation must come
// with a value and every constraint is evaluated as it is added, or it is a
// setup system, in which case values are ignored. Both kinds produce exactly
// the same constraints for the same program.
type System struct {
	witness     bool
	numVars     int
	values      []fr.Element
	public      []Variable
	constraints []Constraint
	unsatisfied *UnsatisfiedError
}

func NewSystem(witness bool) *System {
	s := &System{witness: witness, numVars: 1}
	if witness {
		s.values = make([]fr.Element, 1, 1024)
		s.values[0].SetOne()
	}
	return s
}

func (s *System) HasWitness() bool {
	return s.witness
}

func (s *System) alloc(value *fr.Element) (Variable, error) {
	v := Variable(s.numVars)
	if s.witness {
		if value == nil {
			return 0, fmt.Errorf("variable %d: %w", v, ErrMissingAssignment)
		}
		s.values = append(s.values, *value)
	}
	s.numVars++
	return v, nil
}

// Alloc introduces a private variable. The value is ignored by setup systems.
func (s *System) Alloc(value *fr.Element) (Variable, error) {
	return s.alloc(value)
}

// AllocPublic introduces a variable that is part of the public input vector.
func (s *System) AllocPublic(value *fr.Element) (Variable, error) {
	v, err := s.alloc(value)
	if err != nil {
		return 0, err
	}
	s.public = append(s.public, v)
	return v, nil
}

// Enforce adds the constraint a·b = c.
func (s *System) Enforce(a, b, c LinearCombination, name string) {
	s.constraints = append(s.constraints, Constraint{A: a, B: b, C: c, Name: name})
	if !s.witness || s.unsatisfied != nil {
		return
	}
	if !s.check(a, b, c) {
		s.unsatisfied = &UnsatisfiedError{Index: len(s.constraints) - 1, Name: name}
	}
}

func (s *System) check(a, b, c LinearCombination) bool {
	va, vb, vc := s.eval(a), s.eval(b), s.eval(c)
	var ab fr.Element
	ab.Mul(&va, &vb)
	return ab.Equal(&vc)
}

func (s *System) eval(lc LinearCombination) fr.Element {
	var out, t fr.Element
	for _, term := range lc {
		t.Mul(&term.Coeff, &s.values[term.Var])
		out.Add(&out, &t)
	}
	return out
}

// Value evaluates lc against the witness.
func (s *System) Value(lc LinearCombination) (fr.Element, error) {
	if !s.witness {
		return fr.Element{}, ErrNoWitness
	}
	for _, t := range lc {
		if int(t.Var) >= len(s.values) {
			return fr.Element{}, fmt.Errorf("variable %d: %w", t.Var, ErrMissingAssignment)
		}
	}
	return s.eval(lc), nil
}

// Unsatisfied returns the first constraint that failed while it was added, if any.
func (s *System) Unsatisfied() error {
	if s.unsatisfied == nil {
		return nil
	}
	return s.unsatisfied
}

// IsSatisfied re-evaluates every constraint against the witness.
func (s *System) IsSatisfied() error {
	if !s.witness {
		return ErrNoWitness
	}
	for i, c := range s.constraints {
		if !s.check(c.A, c.B, c.C) {
			return &UnsatisfiedError{Index: i, Name: c.Name}
		}
	}
	return nil
}

func (s *System) Stats() Stats {
	return Stats{
		Constraints: len(s.constraints),
		Variables:   s.numVars,
		Public:      len(s.public),
	}
}

func (s *System) Constraints() []Constraint {
	return s.constraints
}

func (s *System) Public() []Variable {
	return s.public
}

// Assignment returns a copy of the full witness vector, the constant one first.
func (s *System) Assignment() ([]fr.Element, error) {
	if !s.witness {
		return nil, ErrNoWitness
	}
	out := make([]fr.Element, len(s.values))
	copy(out, s.values)
	return out, nil
}

// PublicAssignment returns the witness values of the public variables in allocation order.
func (s *System) PublicAssignment() ([]fr.Element, error) {
	if !s.witness {
		return nil, ErrNoWitness
	}
	out := make([]fr.Element, len(s.public))
	for i, v := range s.public {
		out[i] = s.values[v]
	}
	return out, nil
}

// Digest commits to the shape of the system: its variables, public inputs and
// every constraint. Values and constraint names are not part of the digest.
func (s *System) Digest() common.Hash {
	h := crypto.NewKeccakState()
	var buf [8]byte
	writeUint := func(x uint64) {
		binary.BigEndian.PutUint64(buf[:], x)
		h.Write(buf[:])
	}
	writeLC := func(lc LinearCombination) {
		writeUint(uint64(len(lc)))
		for _, t := range lc {
			writeUint(uint64(t.Var))
			coeff := t.Coeff.Bytes()
			h.Write(coeff[:])
		}
	}
	writeUint(uint64(s.numVars))
	writeUint(uint64(len(s.public)))
	for _, v := range s.public {
		writeUint(uint64(v))
	}
	writeUint(uint64(len(s.constraints)))
	for _, c := range s.constraints {
		writeLC(c.A)
		writeLC(c.B)
		writeLC(c.C)
	}
	var out common.Hash
	h.Read(out[:])
	return out
}
