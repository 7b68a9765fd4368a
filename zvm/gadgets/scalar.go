package gadgets

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/ethereum-optimism/zvm/zvm/bytecode"
	"github.com/ethereum-optimism/zvm/zvm/r1cs"
)

var (
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrValueOverflow    = errors.New("value overflow")
	ErrDivisionByZero   = errors.New("division by zero")
	ErrIndexOutOfBounds = errors.New("index out of bounds")
	ErrAssertionFailed  = errors.New("assertion failed")
)

// Scalar is a typed linear combination of constraint system variables.
// Its value is known for constants and, in witness mode, for every scalar.
//
// The range of the underlying field element is always bounded by the type:
// every gadget returning a Scalar has constrained its result accordingly.
type Scalar struct {
	typ   bytecode.ScalarType
	lc    r1cs.LinearCombination
	value *fr.Element
}

var pow2 = func() [bytecode.FieldBits + 1]fr.Element {
	var out [bytecode.FieldBits + 1]fr.Element
	out[0].SetOne()
	for i := 1; i < len(out); i++ {
		out[i].Double(&out[i-1])
	}
	return out
}()

func toElement(v *big.Int) *fr.Element {
	var e fr.Element
	e.SetBigInt(v)
	return &e
}

func constantElement(e *fr.Element, t bytecode.ScalarType) Scalar {
	v := *e
	return Scalar{typ: t, lc: r1cs.Constant(&v), value: &v}
}

// Constant returns a scalar without any variable. The value must fit the type.
func Constant(v *big.Int, t bytecode.ScalarType) (Scalar, error) {
	if err := t.Check(v); err != nil {
		return Scalar{}, fmt.Errorf("%w: %v", ErrValueOverflow, err)
	}
	return constantElement(toElement(v), t), nil
}

func ConstantBool(b bool) Scalar {
	var e fr.Element
	if b {
		e.SetOne()
	}
	return constantElement(&e, bytecode.Bool)
}

func zero(t bytecode.ScalarType) Scalar {
	return constantElement(new(fr.Element), t)
}

func constantUint(x uint64, t bytecode.ScalarType) Scalar {
	var e fr.Element
	e.SetUint64(x)
	return constantElement(&e, t)
}

func alloc(cs *r1cs.System, value *fr.Element, t bytecode.ScalarType) (Scalar, error) {
	v, err := cs.Alloc(value)
	if err != nil {
		return Scalar{}, err
	}
	if !cs.HasWitness() {
		value = nil
	} else {
		value = copyElement(value)
	}
	return Scalar{typ: t, lc: v.LC(), value: value}, nil
}

func copyElement(e *fr.Element) *fr.Element {
	if e == nil {
		return nil
	}
	out := *e
	return &out
}

// Allocate introduces a witness scalar and constrains it to the range of t.
// The value is ignored when the system carries no witness.
func Allocate(cs *r1cs.System, value *big.Int, t bytecode.ScalarType) (Scalar, error) {
	var e *fr.Element
	if cs.HasWitness() {
		if value == nil {
			return Scalar{}, fmt.Errorf("allocate %s: %w", t, r1cs.ErrMissingAssignment)
		}
		if err := t.Check(value); err != nil {
			return Scalar{}, fmt.Errorf("%w: %v", ErrValueOverflow, err)
		}
		e = toElement(value)
	}
	s, err := alloc(cs, e, t)
	if err != nil {
		return Scalar{}, err
	}
	if err := rangeCheck(cs, s); err != nil {
		return Scalar{}, err
	}
	return s, nil
}

// Expose binds s to a new public input of the system.
func Expose(cs *r1cs.System, s Scalar) (Scalar, error) {
	v, err := cs.AllocPublic(s.value)
	if err != nil {
		return Scalar{}, err
	}
	pub := Scalar{typ: s.typ, lc: v.LC(), value: copyElement(s.value)}
	if !cs.HasWitness() {
		pub.value = nil
	}
	cs.Enforce(pub.lc, r1cs.One.LC(), s.lc, "expose")
	return pub, nil
}

// AssertEqual enforces a = b regardless of the current condition.
func AssertEqual(cs *r1cs.System, a, b Scalar, name string) {
	cs.Enforce(a.lc.Sub(b.lc), r1cs.One.LC(), nil, name)
}

func (s Scalar) Type() bytecode.ScalarType { return s.typ }

func (s Scalar) LC() r1cs.LinearCombination { return s.lc }

func (s Scalar) IsConstant() bool {
	_, ok := s.lc.ConstantValue()
	return ok
}

func (s Scalar) HasValue() bool { return s.value != nil }

// Element returns the raw field element, nil if unknown.
func (s Scalar) Element() *fr.Element { return copyElement(s.value) }

// BigInt returns the value interpreted by the type: negative for signed
// integers with the high bit set. Nil if the value is unknown.
func (s Scalar) BigInt() *big.Int {
	if s.value == nil {
		return nil
	}
	return typedBig(s.value, s.typ)
}

func typedBig(e *fr.Element, t bytecode.ScalarType) *big.Int {
	v := e.BigInt(new(big.Int))
	if t.IsInteger() && t.Signed {
		half := new(big.Int).Rsh(fr.Modulus(), 1)
		if v.Cmp(half) > 0 {
			v.Sub(v, fr.Modulus())
		}
	}
	return v
}

// ConstantUint64 returns the value of a constant scalar that fits an uint64.
func (s Scalar) ConstantUint64() (uint64, bool) {
	if !s.IsConstant() {
		return 0, false
	}
	v := s.BigInt()
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, false
	}
	return v.Uint64(), true
}

// IsTrue reports whether the value of a boolean is known and set.
func (s Scalar) IsTrue() bool {
	return s.value != nil && s.value.IsOne()
}

func (s Scalar) String() string {
	if s.value == nil {
		return fmt.Sprintf("%s(?)", s.typ)
	}
	return fmt.Sprintf("%s(%s)", s.typ, s.BigInt())
}

// withType retags s without any constraint. Callers guarantee the range.
func (s Scalar) withType(t bytecode.ScalarType) Scalar {
	s.typ = t
	return s
}

func valueAdd(a, b *fr.Element) *fr.Element {
	if a == nil || b == nil {
		return nil
	}
	var out fr.Element
	out.Add(a, b)
	return &out
}

func valueSub(a, b *fr.Element) *fr.Element {
	if a == nil || b == nil {
		return nil
	}
	var out fr.Element
	out.Sub(a, b)
	return &out
}

func valueMul(a, b *fr.Element) *fr.Element {
	if a == nil || b == nil {
		return nil
	}
	var out fr.Element
	out.Mul(a, b)
	return &out
}

func valueNeg(a *fr.Element) *fr.Element {
	if a == nil {
		return nil
	}
	var out fr.Element
	out.Neg(a)
	return &out
}

func linear(lc r1cs.LinearCombination, value *fr.Element, t bytecode.ScalarType) Scalar {
	return Scalar{typ: t, lc: lc, value: value}
}

func scale(s Scalar, c *fr.Element) Scalar {
	return Scalar{typ: s.typ, lc: s.lc.Scale(c), value: valueMul(s.value, c)}
}

func addConstant(s Scalar, c *fr.Element) Scalar {
	return Scalar{typ: s.typ, lc: s.lc.AddConstant(c), value: valueAdd(s.value, c)}
}

// product multiplies two scalars, folding constant operands.
func product(cs *r1cs.System, a, b Scalar, t bytecode.ScalarType, name string) (Scalar, error) {
	if c, ok := a.lc.ConstantValue(); ok {
		return scale(b, &c).withType(t), nil
	}
	if c, ok := b.lc.ConstantValue(); ok {
		return scale(a, &c).withType(t), nil
	}
	r, err := alloc(cs, valueMul(a.value, b.value), t)
	if err != nil {
		return Scalar{}, err
	}
	cs.Enforce(a.lc, b.lc, r.lc, name)
	return r, nil
}

func sameType(a, b Scalar) (bytecode.ScalarType, error) {
	if a.typ != b.typ {
		return bytecode.ScalarType{}, fmt.Errorf("%w: %s and %s", ErrTypeMismatch, a.typ, b.typ)
	}
	return a.typ, nil
}

func requireBool(s Scalar) error {
	if !s.typ.IsBool() {
		return fmt.Errorf("%w: expected bool, got %s", ErrTypeMismatch, s.typ)
	}
	return nil
}
