package storage

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// Hash compresses the elements with gnark-crypto's MiMC (Miyaguchi-Preneel
// over the bn254 constants). The hash of no elements is zero.
func Hash(elems ...fr.Element) fr.Element {
	h := mimc.NewMiMC()
	for i := range elems {
		b := elems[i].Bytes()
		// canonical encodings are always reduced
		_, _ = h.Write(b[:])
	}
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out
}

func HashPair(left, right fr.Element) fr.Element {
	return Hash(left, right)
}
