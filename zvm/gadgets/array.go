package gadgets

import (
	"fmt"

	"github.com/ethereum-optimism/zvm/zvm/r1cs"
)

// indexFlags returns eq(index, i) for every element i. Under an active
// condition exactly one flag must be set.
func indexFlags(cs *r1cs.System, cond, index Scalar, n int) ([]Scalar, error) {
	if index.typ.IsBool() {
		return nil, fmt.Errorf("%w: bool index", ErrTypeMismatch)
	}
	if index.value != nil && cond.IsTrue() {
		v := index.BigInt()
		if v.Sign() < 0 || !v.IsUint64() || v.Uint64() >= uint64(n) {
			return nil, fmt.Errorf("%w: index %s, length %d", ErrIndexOutOfBounds, v, n)
		}
	}
	flags := make([]Scalar, n)
	var sum r1cs.LinearCombination
	for i := range flags {
		if limit := index.typ.Max(); limit.IsUint64() && limit.Uint64() < uint64(i) {
			flags[i] = ConstantBool(false)
			continue
		}
		flag, err := Eq(cs, index, constantUint(uint64(i), index.typ))
		if err != nil {
			return nil, err
		}
		flags[i] = flag
		sum = sum.Add(flag.lc)
	}
	// cond·(Σ flags - 1) = 0
	cs.Enforce(cond.lc, sum.Sub(r1cs.One.LC()), nil, "index bound")
	return flags, nil
}

func constantIndex(index Scalar, n int) (int, bool, error) {
	if !index.IsConstant() {
		return 0, false, nil
	}
	v := index.BigInt()
	if v.Sign() < 0 || !v.IsUint64() || v.Uint64() >= uint64(n) {
		return 0, true, fmt.Errorf("%w: index %s, length %d", ErrIndexOutOfBounds, v, n)
	}
	return int(v.Uint64()), true, nil
}

// ArrayGet reads element index of width consecutive slots out of array.
func ArrayGet(cs *r1cs.System, cond Scalar, array []Scalar, index Scalar, width int) ([]Scalar, error) {
	if width <= 0 || len(array)%width != 0 {
		return nil, fmt.Errorf("%w: %d slots of width %d", ErrTypeMismatch, len(array), width)
	}
	n := len(array) / width
	if i, ok, err := constantIndex(index, n); ok || err != nil {
		if err != nil {
			return nil, err
		}
		out := make([]Scalar, width)
		copy(out, array[i*width:(i+1)*width])
		return out, nil
	}
	flags, err := indexFlags(cs, cond, index, n)
	if err != nil {
		return nil, err
	}
	out := make([]Scalar, width)
	copy(out, array[:width])
	for i := 1; i < n; i++ {
		for j := range out {
			if out[j], err = Select(cs, flags[i], array[i*width+j], out[j]); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// ArraySet returns a copy of array with element index replaced by values.
func ArraySet(cs *r1cs.System, cond Scalar, array []Scalar, index Scalar, values []Scalar) ([]Scalar, error) {
	width := len(values)
	if width == 0 || len(array)%width != 0 {
		return nil, fmt.Errorf("%w: %d slots of width %d", ErrTypeMismatch, len(array), width)
	}
	n := len(array) / width
	out := make([]Scalar, len(array))
	copy(out, array)
	if i, ok, err := constantIndex(index, n); ok || err != nil {
		if err != nil {
			return nil, err
		}
		for j, v := range values {
			if v.typ != out[i*width+j].typ {
				return nil, fmt.Errorf("%w: %s and %s", ErrTypeMismatch, v.typ, out[i*width+j].typ)
			}
			out[i*width+j] = v
		}
		return out, nil
	}
	flags, err := indexFlags(cs, cond, index, n)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		for j, v := range values {
			if out[i*width+j], err = Select(cs, flags[i], v, out[i*width+j]); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Reverse is free: it only reorders slots.
func Reverse(values []Scalar) []Scalar {
	out := make([]Scalar, len(values))
	for i, v := range values {
		out[len(values)-1-i] = v
	}
	return out
}
