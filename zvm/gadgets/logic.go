package gadgets

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/ethereum-optimism/zvm/zvm/bytecode"
	"github.com/ethereum-optimism/zvm/zvm/r1cs"
)

func boolValue(s Scalar) (bool, bool) {
	c, ok := s.lc.ConstantValue()
	if !ok {
		return false, false
	}
	return !c.IsZero(), true
}

// Not is linear: 1 - a.
func Not(a Scalar) Scalar {
	var one fr.Element
	one.SetOne()
	lc := a.lc.Neg().AddConstant(&one)
	var value *fr.Element
	if a.value != nil {
		value = new(fr.Element)
		value.Sub(&one, a.value)
	}
	return linear(lc, value, bytecode.Bool)
}

func And(cs *r1cs.System, a, b Scalar) (Scalar, error) {
	if err := requireBools(a, b); err != nil {
		return Scalar{}, err
	}
	if v, ok := boolValue(a); ok {
		if !v {
			return ConstantBool(false), nil
		}
		return b, nil
	}
	if v, ok := boolValue(b); ok {
		if !v {
			return ConstantBool(false), nil
		}
		return a, nil
	}
	return product(cs, a, b, bytecode.Bool, "and")
}

// Or is a + b - a·b.
func Or(cs *r1cs.System, a, b Scalar) (Scalar, error) {
	if err := requireBools(a, b); err != nil {
		return Scalar{}, err
	}
	if v, ok := boolValue(a); ok {
		if v {
			return ConstantBool(true), nil
		}
		return b, nil
	}
	if v, ok := boolValue(b); ok {
		if v {
			return ConstantBool(true), nil
		}
		return a, nil
	}
	sum := a.lc.Add(b.lc)
	r, err := alloc(cs, valueSub(valueAdd(a.value, b.value), valueMul(a.value, b.value)), bytecode.Bool)
	if err != nil {
		return Scalar{}, err
	}
	cs.Enforce(a.lc, b.lc, sum.Sub(r.lc), "or")
	return r, nil
}

// Xor is a + b - 2·a·b.
func Xor(cs *r1cs.System, a, b Scalar) (Scalar, error) {
	if err := requireBools(a, b); err != nil {
		return Scalar{}, err
	}
	if v, ok := boolValue(a); ok {
		if v {
			return Not(b), nil
		}
		return b, nil
	}
	if v, ok := boolValue(b); ok {
		if v {
			return Not(a), nil
		}
		return a, nil
	}
	sum := a.lc.Add(b.lc)
	ab2 := valueMul(valueMul(a.value, b.value), &pow2[1])
	r, err := alloc(cs, valueSub(valueAdd(a.value, b.value), ab2), bytecode.Bool)
	if err != nil {
		return Scalar{}, err
	}
	cs.Enforce(a.lc.Scale(&pow2[1]), b.lc, sum.Sub(r.lc), "xor")
	return r, nil
}

func requireBools(a, b Scalar) error {
	if err := requireBool(a); err != nil {
		return err
	}
	return requireBool(b)
}

// Select returns a if cond holds, b otherwise: r - b = cond·(a - b).
func Select(cs *r1cs.System, cond, a, b Scalar) (Scalar, error) {
	t, err := sameType(a, b)
	if err != nil {
		return Scalar{}, err
	}
	return conditionalSelect(cs, cond, a, b, t)
}

func conditionalSelect(cs *r1cs.System, cond, a, b Scalar, t bytecode.ScalarType) (Scalar, error) {
	if err := requireBool(cond); err != nil {
		return Scalar{}, err
	}
	if v, ok := boolValue(cond); ok {
		if v {
			return a.withType(t), nil
		}
		return b.withType(t), nil
	}
	if a.lc.Equal(b.lc) {
		return a.withType(t), nil
	}
	var value *fr.Element
	if cond.value != nil && a.value != nil && b.value != nil {
		if cond.value.IsZero() {
			value = copyElement(b.value)
		} else {
			value = copyElement(a.value)
		}
	}
	r, err := alloc(cs, value, t)
	if err != nil {
		return Scalar{}, err
	}
	cs.Enforce(cond.lc, a.lc.Sub(b.lc), r.lc.Sub(b.lc), "select")
	return r, nil
}

// Eq is the is-zero gadget on a - b: (a-b)·inv = 1 - r and (a-b)·r = 0.
func Eq(cs *r1cs.System, a, b Scalar) (Scalar, error) {
	if _, err := sameType(a, b); err != nil {
		return Scalar{}, err
	}
	diff := linear(a.lc.Sub(b.lc), valueSub(a.value, b.value), bytecode.Field)
	if c, ok := diff.lc.ConstantValue(); ok {
		return ConstantBool(c.IsZero()), nil
	}
	var inv, eq *fr.Element
	if diff.value != nil {
		inv, eq = new(fr.Element), new(fr.Element)
		if diff.value.IsZero() {
			eq.SetOne()
		} else {
			inv.Inverse(diff.value)
		}
	}
	invVar, err := alloc(cs, inv, bytecode.Field)
	if err != nil {
		return Scalar{}, err
	}
	r, err := alloc(cs, eq, bytecode.Bool)
	if err != nil {
		return Scalar{}, err
	}
	cs.Enforce(diff.lc, invVar.lc, Not(r).lc, "eq inverse")
	cs.Enforce(diff.lc, r.lc, nil, "eq")
	return r, nil
}

func Ne(cs *r1cs.System, a, b Scalar) (Scalar, error) {
	eq, err := Eq(cs, a, b)
	if err != nil {
		return Scalar{}, err
	}
	return Not(eq), nil
}

type bitOp func(cs *r1cs.System, a, b Scalar) (Scalar, error)

func bitwise(cs *r1cs.System, a, b Scalar, op bitOp) (Scalar, error) {
	t, err := sameType(a, b)
	if err != nil {
		return Scalar{}, err
	}
	if t.IsBool() {
		return op(cs, a, b)
	}
	if !t.IsInteger() {
		return Scalar{}, fmt.Errorf("%w: bitwise operation on %s", ErrTypeMismatch, t)
	}
	bitsA, err := ToBits(cs, a)
	if err != nil {
		return Scalar{}, err
	}
	bitsB, err := ToBits(cs, b)
	if err != nil {
		return Scalar{}, err
	}
	out := make([]Scalar, len(bitsA))
	for i := range out {
		if out[i], err = op(cs, bitsA[i], bitsB[i]); err != nil {
			return Scalar{}, err
		}
	}
	return FromBits(out, t)
}

func BitAnd(cs *r1cs.System, a, b Scalar) (Scalar, error) { return bitwise(cs, a, b, And) }
func BitOr(cs *r1cs.System, a, b Scalar) (Scalar, error)  { return bitwise(cs, a, b, Or) }
func BitXor(cs *r1cs.System, a, b Scalar) (Scalar, error) { return bitwise(cs, a, b, Xor) }

// BitNot is linear: 2^N - 1 - a for unsigned and -a - 1 for signed integers.
func BitNot(a Scalar) (Scalar, error) {
	switch {
	case a.typ.IsBool():
		return Not(a), nil
	case !a.typ.IsInteger():
		return Scalar{}, fmt.Errorf("%w: bitwise not on %s", ErrTypeMismatch, a.typ)
	}
	var c fr.Element
	if a.typ.Signed {
		c.SetOne()
		c.Neg(&c)
	} else {
		c.Sub(&pow2[a.typ.Bits], &pow2[0])
	}
	neg := Scalar{typ: a.typ, lc: a.lc.Neg(), value: valueNeg(a.value)}
	return addConstant(neg, &c), nil
}

func shiftAmount(cs *r1cs.System, a, shift Scalar) ([]Scalar, error) {
	if !a.typ.IsInteger() {
		return nil, fmt.Errorf("%w: shift of %s", ErrTypeMismatch, a.typ)
	}
	if !shift.typ.IsInteger() || shift.typ.Signed {
		return nil, fmt.Errorf("%w: shift amount must be unsigned, got %s", ErrTypeMismatch, shift.typ)
	}
	return ToBits(cs, shift)
}

// shift runs a barrel shifter over the bits of a. Bits shifted in are fill.
func shift(cs *r1cs.System, a, amount Scalar, left bool) (Scalar, error) {
	amountBits, err := shiftAmount(cs, a, amount)
	if err != nil {
		return Scalar{}, err
	}
	bits, err := ToBits(cs, a)
	if err != nil {
		return Scalar{}, err
	}
	n := len(bits)
	fill := ConstantBool(false)
	if !left && a.typ.Signed {
		fill = bits[n-1]
	}
	for k, sel := range amountBits {
		shifted := make([]Scalar, n)
		if k >= 8 || 1<<k >= n {
			for j := range shifted {
				shifted[j] = fill
			}
		} else {
			d := 1 << k
			for j := range shifted {
				src := j + d
				if left {
					src = j - d
				}
				if src >= 0 && src < n {
					shifted[j] = bits[src]
				} else {
					shifted[j] = fill
				}
			}
		}
		for j := range bits {
			if bits[j], err = conditionalSelect(cs, sel, shifted[j], bits[j], bytecode.Bool); err != nil {
				return Scalar{}, err
			}
		}
	}
	return FromBits(bits, a.typ)
}

func BitShiftLeft(cs *r1cs.System, a, amount Scalar) (Scalar, error) {
	return shift(cs, a, amount, true)
}

// BitShiftRight is arithmetic for signed integers.
func BitShiftRight(cs *r1cs.System, a, amount Scalar) (Scalar, error) {
	return shift(cs, a, amount, false)
}
