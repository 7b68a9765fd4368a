package r1cs

import (
	"sort"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Variable indexes an assignment slot of a System. Index 0 is the constant one.
type Variable int

const One Variable = 0

type Term struct {
	Coeff fr.Element
	Var   Variable
}

// LinearCombination is a sum of weighted variables.
// The zero value (nil) represents the constant zero.
// Combinations built with the helpers in this file are kept compact:
// sorted by variable, one term per variable and no zero coefficients.
type LinearCombination []Term

func (v Variable) LC() LinearCombination {
	var one fr.Element
	one.SetOne()
	return LinearCombination{{Coeff: one, Var: v}}
}

// Constant returns the combination c·one.
func Constant(c *fr.Element) LinearCombination {
	if c.IsZero() {
		return nil
	}
	return LinearCombination{{Coeff: *c, Var: One}}
}

func ConstantUint64(c uint64) LinearCombination {
	var e fr.Element
	e.SetUint64(c)
	return Constant(&e)
}

func (lc LinearCombination) Add(other LinearCombination) LinearCombination {
	out := make(LinearCombination, 0, len(lc)+len(other))
	i, j := 0, 0
	for i < len(lc) && j < len(other) {
		a, b := lc[i], other[j]
		switch {
		case a.Var < b.Var:
			out = append(out, a)
			i++
		case a.Var > b.Var:
			out = append(out, b)
			j++
		default:
			var sum fr.Element
			sum.Add(&a.Coeff, &b.Coeff)
			if !sum.IsZero() {
				out = append(out, Term{Coeff: sum, Var: a.Var})
			}
			i++
			j++
		}
	}
	out = append(out, lc[i:]...)
	out = append(out, other[j:]...)
	return out
}

func (lc LinearCombination) Sub(other LinearCombination) LinearCombination {
	return lc.Add(other.Neg())
}

func (lc LinearCombination) Neg() LinearCombination {
	out := make(LinearCombination, len(lc))
	for i, t := range lc {
		out[i].Var = t.Var
		out[i].Coeff.Neg(&t.Coeff)
	}
	return out
}

// Scale multiplies every coefficient by c.
func (lc LinearCombination) Scale(c *fr.Element) LinearCombination {
	if c.IsZero() {
		return nil
	}
	out := make(LinearCombination, len(lc))
	for i, t := range lc {
		out[i].Var = t.Var
		out[i].Coeff.Mul(&t.Coeff, c)
	}
	return out
}

func (lc LinearCombination) AddConstant(c *fr.Element) LinearCombination {
	return lc.Add(Constant(c))
}

// ConstantValue reports the value of lc if it only references the constant one.
func (lc LinearCombination) ConstantValue() (fr.Element, bool) {
	var out fr.Element
	for _, t := range lc {
		if t.Var != One {
			return fr.Element{}, false
		}
		out.Add(&out, &t.Coeff)
	}
	return out, true
}

// Equal compares two combinations term by term.
func (lc LinearCombination) Equal(other LinearCombination) bool {
	if len(lc) != len(other) {
		return false
	}
	for i := range lc {
		if lc[i].Var != other[i].Var || !lc[i].Coeff.Equal(&other[i].Coeff) {
			return false
		}
	}
	return true
}

// Compact sorts the terms and merges duplicate variables.
// Only needed for combinations assembled by hand.
func (lc LinearCombination) Compact() LinearCombination {
	out := make(LinearCombination, len(lc))
	copy(out, lc)
	sort.Slice(out, func(i, j int) bool { return out[i].Var < out[j].Var })
	n := 0
	for _, t := range out {
		if n > 0 && out[n-1].Var == t.Var {
			out[n-1].Coeff.Add(&out[n-1].Coeff, &t.Coeff)
			continue
		}
		out[n] = t
		n++
	}
	out = out[:n]
	n = 0
	for _, t := range out {
		if !t.Coeff.IsZero() {
			out[n] = t
			n++
		}
	}
	return out[:n]
}
