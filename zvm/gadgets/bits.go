package gadgets

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/ethereum-optimism/zvm/zvm/bytecode"
	"github.com/ethereum-optimism/zvm/zvm/r1cs"
)

func allocBit(cs *r1cs.System, value *fr.Element) (Scalar, error) {
	b, err := alloc(cs, value, bytecode.Bool)
	if err != nil {
		return Scalar{}, err
	}
	enforceBoolean(cs, b)
	return b, nil
}

// enforceBoolean adds b·(1-b) = 0.
func enforceBoolean(cs *r1cs.System, b Scalar) {
	cs.Enforce(b.lc, Not(b).lc, nil, "boolean")
}

// decompose allocates n little-endian bits of s and enforces their recomposition.
// The witness value of s must lie in [0, 2^n).
func decompose(cs *r1cs.System, s Scalar, n int) ([]Scalar, error) {
	var x *big.Int
	if s.value != nil {
		x = s.value.BigInt(new(big.Int))
		if x.BitLen() > n {
			return nil, fmt.Errorf("%w: %s does not fit %d bits", ErrValueOverflow, x, n)
		}
	}
	bits := make([]Scalar, n)
	var sum r1cs.LinearCombination
	for i := 0; i < n; i++ {
		var bv *fr.Element
		if x != nil {
			bv = new(fr.Element).SetUint64(uint64(x.Bit(i)))
		}
		b, err := allocBit(cs, bv)
		if err != nil {
			return nil, err
		}
		bits[i] = b
		sum = sum.Add(b.lc.Scale(&pow2[i]))
	}
	cs.Enforce(sum, r1cs.One.LC(), s.lc, "decompose")
	return bits, nil
}

// rangeCheck constrains s to the range of its type.
func rangeCheck(cs *r1cs.System, s Scalar) error {
	if s.IsConstant() {
		if err := s.typ.Check(s.BigInt()); err != nil {
			return fmt.Errorf("%w: %v", ErrValueOverflow, err)
		}
		return nil
	}
	if s.value != nil {
		if err := s.typ.Check(s.BigInt()); err != nil {
			return fmt.Errorf("%w: %v", ErrValueOverflow, err)
		}
	}
	switch {
	case s.typ.IsField():
		return nil
	case s.typ.IsBool():
		enforceBoolean(cs, s)
		return nil
	default:
		_, err := integerBits(cs, s)
		return err
	}
}

// integerBits decomposes an integer into its two's complement bits.
func integerBits(cs *r1cs.System, s Scalar) ([]Scalar, error) {
	n := s.typ.Bits
	if !s.typ.Signed {
		return decompose(cs, s, n)
	}
	offset := addConstant(s, &pow2[n-1])
	bits, err := decompose(cs, offset, n)
	if err != nil {
		return nil, err
	}
	bits[n-1] = Not(bits[n-1])
	return bits, nil
}

func constantBits(s Scalar) []Scalar {
	v := s.BigInt()
	n := s.typ.Bits
	if v.Sign() < 0 {
		v = new(big.Int).Add(v, new(big.Int).Lsh(big.NewInt(1), uint(n)))
	}
	bits := make([]Scalar, n)
	for i := range bits {
		bits[i] = ConstantBool(v.Bit(i) == 1)
	}
	return bits
}

// ToBits returns the little-endian bits of s: two's complement for signed
// integers, the canonical 254-bit representation for field elements.
func ToBits(cs *r1cs.System, s Scalar) ([]Scalar, error) {
	if s.IsConstant() {
		return constantBits(s), nil
	}
	switch {
	case s.typ.IsBool():
		return []Scalar{s}, nil
	case s.typ.IsField():
		bits, err := decompose(cs, s, bytecode.FieldBits)
		if err != nil {
			return nil, err
		}
		lt, err := lessThanConstant(cs, bits, fr.Modulus())
		if err != nil {
			return nil, err
		}
		cs.Enforce(lt.lc, r1cs.One.LC(), r1cs.One.LC(), "canonical bits")
		return bits, nil
	default:
		return integerBits(cs, s)
	}
}

// FromBits recomposes little-endian bits into a scalar of type t.
// No constraint is needed: the range follows from the bits being boolean.
func FromBits(bits []Scalar, t bytecode.ScalarType) (Scalar, error) {
	if len(bits) != t.Bits {
		return Scalar{}, fmt.Errorf("%w: %d bits for %s", ErrTypeMismatch, len(bits), t)
	}
	var lc r1cs.LinearCombination
	value := new(fr.Element)
	for i, b := range bits {
		if err := requireBool(b); err != nil {
			return Scalar{}, err
		}
		w := pow2[i]
		if t.IsInteger() && t.Signed && i == len(bits)-1 {
			w.Neg(&w)
		}
		lc = lc.Add(b.lc.Scale(&w))
		if value != nil && b.value != nil {
			var term fr.Element
			term.Mul(b.value, &w)
			value.Add(value, &term)
		} else {
			value = nil
		}
	}
	return linear(lc, value, t), nil
}

// lessThanConstant compares little-endian bits against a constant, most
// significant bit first.
func lessThanConstant(cs *r1cs.System, bits []Scalar, c *big.Int) (Scalar, error) {
	other := make([]Scalar, len(bits))
	for i := range other {
		other[i] = ConstantBool(c.Bit(i) == 1)
	}
	return lexLess(cs, bits, other)
}

// lexLess returns a < b for two little-endian bit strings of equal length.
func lexLess(cs *r1cs.System, a, b []Scalar) (Scalar, error) {
	lt := ConstantBool(false)
	eq := ConstantBool(true)
	for i := len(a) - 1; i >= 0; i-- {
		smaller, err := And(cs, Not(a[i]), b[i])
		if err != nil {
			return Scalar{}, err
		}
		here, err := And(cs, eq, smaller)
		if err != nil {
			return Scalar{}, err
		}
		if lt, err = Or(cs, lt, here); err != nil {
			return Scalar{}, err
		}
		if i == 0 {
			break
		}
		diff, err := Xor(cs, a[i], b[i])
		if err != nil {
			return Scalar{}, err
		}
		if eq, err = And(cs, eq, Not(diff)); err != nil {
			return Scalar{}, err
		}
	}
	return lt, nil
}
