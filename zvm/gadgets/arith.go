package gadgets

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/ethereum-optimism/zvm/zvm/bytecode"
	"github.com/ethereum-optimism/zvm/zvm/r1cs"
)

func arithmeticType(a, b Scalar) (bytecode.ScalarType, error) {
	t, err := sameType(a, b)
	if err != nil {
		return t, err
	}
	if t.IsBool() {
		return t, fmt.Errorf("%w: arithmetic on bool", ErrTypeMismatch)
	}
	return t, nil
}

// normalize masks an integer result with the condition and constrains it to
// its type. Inactive branches produce zero, which is in range of every type.
func normalize(cs *r1cs.System, cond, raw Scalar) (Scalar, error) {
	if raw.typ.IsField() {
		return raw, nil
	}
	masked, err := conditionalSelect(cs, cond, raw, zero(raw.typ), raw.typ)
	if err != nil {
		return Scalar{}, err
	}
	if err := rangeCheck(cs, masked); err != nil {
		return Scalar{}, err
	}
	return masked, nil
}

func Add(cs *r1cs.System, cond, a, b Scalar) (Scalar, error) {
	t, err := arithmeticType(a, b)
	if err != nil {
		return Scalar{}, err
	}
	return normalize(cs, cond, linear(a.lc.Add(b.lc), valueAdd(a.value, b.value), t))
}

func Sub(cs *r1cs.System, cond, a, b Scalar) (Scalar, error) {
	t, err := arithmeticType(a, b)
	if err != nil {
		return Scalar{}, err
	}
	return normalize(cs, cond, linear(a.lc.Sub(b.lc), valueSub(a.value, b.value), t))
}

func Mul(cs *r1cs.System, cond, a, b Scalar) (Scalar, error) {
	t, err := arithmeticType(a, b)
	if err != nil {
		return Scalar{}, err
	}
	raw, err := product(cs, a, b, t, "mul")
	if err != nil {
		return Scalar{}, err
	}
	return normalize(cs, cond, raw)
}

func Neg(cs *r1cs.System, cond, a Scalar) (Scalar, error) {
	switch {
	case a.typ.IsBool(), a.typ.IsInteger() && !a.typ.Signed:
		return Scalar{}, fmt.Errorf("%w: negation of %s", ErrTypeMismatch, a.typ)
	}
	return normalize(cs, cond, linear(a.lc.Neg(), valueNeg(a.value), a.typ))
}

func Div(cs *r1cs.System, cond, a, b Scalar) (Scalar, error) {
	t, err := arithmeticType(a, b)
	if err != nil {
		return Scalar{}, err
	}
	if t.IsField() {
		return fieldDiv(cs, cond, a, b)
	}
	q, _, err := divRem(cs, cond, a, b)
	return q, err
}

func Rem(cs *r1cs.System, cond, a, b Scalar) (Scalar, error) {
	t, err := arithmeticType(a, b)
	if err != nil {
		return Scalar{}, err
	}
	if t.IsField() {
		return Scalar{}, fmt.Errorf("%w: remainder of field elements", ErrTypeMismatch)
	}
	_, r, err := divRem(cs, cond, a, b)
	return r, err
}

// fieldDiv multiplies by the inverse: r·d = a with d·inv = 1.
// The divisor is replaced by one in inactive branches.
func fieldDiv(cs *r1cs.System, cond, a, b Scalar) (Scalar, error) {
	d, err := conditionalSelect(cs, cond, b, constantUint(1, b.typ), b.typ)
	if err != nil {
		return Scalar{}, err
	}
	if d.value != nil && d.value.IsZero() {
		return Scalar{}, ErrDivisionByZero
	}
	if c, ok := d.lc.ConstantValue(); ok {
		var inv fr.Element
		inv.Inverse(&c)
		return scale(a, &inv), nil
	}
	var inv, quotient *fr.Element
	if d.value != nil {
		inv = new(fr.Element).Inverse(d.value)
		quotient = valueMul(a.value, inv)
	}
	invVar, err := alloc(cs, inv, bytecode.Field)
	if err != nil {
		return Scalar{}, err
	}
	cs.Enforce(d.lc, invVar.lc, r1cs.One.LC(), "div inverse")
	r, err := alloc(cs, quotient, bytecode.Field)
	if err != nil {
		return Scalar{}, err
	}
	cs.Enforce(r.lc, d.lc, a.lc, "div")
	return r, nil
}

// divRem is Euclidean division: n = q·d + r with 0 <= r < |d|.
// In inactive branches n is replaced by zero and d by one.
func divRem(cs *r1cs.System, cond, a, b Scalar) (q, r Scalar, err error) {
	t := a.typ
	n, err := conditionalSelect(cs, cond, a, zero(t), t)
	if err != nil {
		return q, r, err
	}
	d, err := conditionalSelect(cs, cond, b, constantUint(1, t), t)
	if err != nil {
		return q, r, err
	}
	var qv, rv *fr.Element
	if n.value != nil && d.value != nil {
		nb, db := n.BigInt(), d.BigInt()
		if db.Sign() == 0 {
			return q, r, ErrDivisionByZero
		}
		qb, rb := new(big.Int).DivMod(nb, db, new(big.Int))
		if err := t.Check(qb); err != nil {
			return q, r, fmt.Errorf("%w: %v", ErrValueOverflow, err)
		}
		qv, rv = toElement(qb), toElement(rb)
	}
	if n.IsConstant() && d.IsConstant() {
		return constantElement(qv, t), constantElement(rv, t), nil
	}

	if q, err = alloc(cs, qv, t); err != nil {
		return q, r, err
	}
	if err = rangeCheck(cs, q); err != nil {
		return q, r, err
	}
	if r, err = alloc(cs, rv, t); err != nil {
		return q, r, err
	}
	cs.Enforce(q.lc, d.lc, n.lc.Sub(r.lc), "div")

	abs := d
	if t.Signed {
		bits, err := ToBits(cs, d)
		if err != nil {
			return q, r, err
		}
		negated := linear(d.lc.Neg(), valueNeg(d.value), t)
		if abs, err = conditionalSelect(cs, bits[t.Bits-1], negated, d, t); err != nil {
			return q, r, err
		}
	}
	// 0 <= r and 0 <= |d| - r - 1, both as unsigned t.Bits integers.
	if _, err = decompose(cs, r, t.Bits); err != nil {
		return q, r, err
	}
	var one fr.Element
	one.SetOne()
	one.Neg(&one)
	gap := addConstant(linear(abs.lc.Sub(r.lc), valueSub(abs.value, r.value), t), &one)
	if _, err = decompose(cs, gap, t.Bits); err != nil {
		return q, r, err
	}
	return q, r, nil
}

// Cast converts s to type t. Widening casts are free; any other cast masks the
// value with the condition and constrains it to the range of t.
func Cast(cs *r1cs.System, cond, s Scalar, t bytecode.ScalarType) (Scalar, error) {
	if s.typ == t || t.IsField() || t.Contains(s.typ) {
		return s.withType(t), nil
	}
	masked, err := conditionalSelect(cs, cond, s, zero(s.typ), t)
	if err != nil {
		return Scalar{}, err
	}
	if err := rangeCheck(cs, masked); err != nil {
		return Scalar{}, err
	}
	return masked, nil
}

// Assert enforces value ∨ ¬cond = 1.
func Assert(cs *r1cs.System, cond, value Scalar) error {
	if err := requireBool(value); err != nil {
		return err
	}
	ok, err := Or(cs, value, Not(cond))
	if err != nil {
		return err
	}
	if v, known := boolValue(ok); known {
		if !v {
			return ErrAssertionFailed
		}
		return nil
	}
	cs.Enforce(ok.lc, r1cs.One.LC(), r1cs.One.LC(), "assert")
	if ok.value != nil && !ok.value.IsOne() {
		return ErrAssertionFailed
	}
	return nil
}
