package gadgets

import (
	"github.com/ethereum-optimism/zvm/zvm/bytecode"
	"github.com/ethereum-optimism/zvm/zvm/r1cs"
)

// Lt decides a < b. Integers decompose a - b + 2^N into N+1 bits, the top bit is
// clear exactly when a < b. Field elements are compared on their canonical bits.
func Lt(cs *r1cs.System, a, b Scalar) (Scalar, error) {
	t, err := sameType(a, b)
	if err != nil {
		return Scalar{}, err
	}
	if a.IsConstant() && b.IsConstant() {
		return ConstantBool(a.BigInt().Cmp(b.BigInt()) < 0), nil
	}
	if t.IsField() {
		bitsA, err := ToBits(cs, a)
		if err != nil {
			return Scalar{}, err
		}
		bitsB, err := ToBits(cs, b)
		if err != nil {
			return Scalar{}, err
		}
		return lexLess(cs, bitsA, bitsB)
	}
	n := t.Bits
	diff := addConstant(linear(a.lc.Sub(b.lc), valueSub(a.value, b.value), bytecode.Field), &pow2[n])
	bits, err := decompose(cs, diff, n+1)
	if err != nil {
		return Scalar{}, err
	}
	return Not(bits[n]), nil
}

func Gt(cs *r1cs.System, a, b Scalar) (Scalar, error) {
	return Lt(cs, b, a)
}

func Le(cs *r1cs.System, a, b Scalar) (Scalar, error) {
	gt, err := Lt(cs, b, a)
	if err != nil {
		return Scalar{}, err
	}
	return Not(gt), nil
}

func Ge(cs *r1cs.System, a, b Scalar) (Scalar, error) {
	lt, err := Lt(cs, a, b)
	if err != nil {
		return Scalar{}, err
	}
	return Not(lt), nil
}
