package gadgets

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"github.com/ethereum-optimism/zvm/zvm/bytecode"
	"github.com/ethereum-optimism/zvm/zvm/r1cs"
)

var mimcConstants = func() []fr.Element {
	constants := mimc.GetConstants()
	out := make([]fr.Element, len(constants))
	for i := range constants {
		out[i].SetBigInt(&constants[i])
	}
	return out
}()

// encrypt is the in-circuit MiMC permutation (x^5), three constraints per round.
func encrypt(cs *r1cs.System, m, k Scalar) (Scalar, error) {
	for i := range mimcConstants {
		t := addConstant(linear(m.lc.Add(k.lc), valueAdd(m.value, k.value), bytecode.Field), &mimcConstants[i])
		t2, err := product(cs, t, t, bytecode.Field, "mimc square")
		if err != nil {
			return Scalar{}, err
		}
		t4, err := product(cs, t2, t2, bytecode.Field, "mimc square")
		if err != nil {
			return Scalar{}, err
		}
		if m, err = product(cs, t4, t, bytecode.Field, "mimc round"); err != nil {
			return Scalar{}, err
		}
	}
	return linear(m.lc.Add(k.lc), valueAdd(m.value, k.value), bytecode.Field), nil
}

// Hash is the MiMC sponge matching storage.Hash. Inputs of any type are
// absorbed as field elements.
func Hash(cs *r1cs.System, inputs ...Scalar) (Scalar, error) {
	h := zero(bytecode.Field)
	for _, x := range inputs {
		x = x.withType(bytecode.Field)
		e, err := encrypt(cs, x, h)
		if err != nil {
			return Scalar{}, err
		}
		h = linear(e.lc.Add(h.lc).Add(x.lc), valueAdd(valueAdd(e.value, h.value), x.value), bytecode.Field)
	}
	return h, nil
}

// MerkleRoot recomputes a storage root from the leaf values at index and the
// sibling hashes ordered from the leaf up.
func MerkleRoot(cs *r1cs.System, leaf []Scalar, index uint64, path []Scalar) (Scalar, error) {
	h, err := Hash(cs, leaf...)
	if err != nil {
		return Scalar{}, err
	}
	for level, sibling := range path {
		if (index>>uint(level))&1 == 0 {
			h, err = Hash(cs, h, sibling)
		} else {
			h, err = Hash(cs, sibling, h)
		}
		if err != nil {
			return Scalar{}, err
		}
	}
	return h, nil
}
