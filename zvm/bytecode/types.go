package bytecode

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common/math"
)

const (
	FieldBits      = 254
	MaxIntegerBits = 248
)

var (
	ErrValueOverflow = errors.New("value out of range")
	ErrInvalidType   = errors.New("invalid type")
	ErrInvalidValue  = errors.New("invalid value")
)

type ScalarKind uint8

const (
	KindBoolean ScalarKind = iota
	KindInteger
	KindField
)

// ScalarType is the type tag of a single circuit value.
type ScalarType struct {
	Kind   ScalarKind
	Signed bool
	Bits   int
}

var (
	Bool  = ScalarType{Kind: KindBoolean, Bits: 1}
	Field = ScalarType{Kind: KindField, Bits: FieldBits}
)

func Unsigned(bits int) ScalarType {
	return ScalarType{Kind: KindInteger, Bits: bits}
}

func Signed(bits int) ScalarType {
	return ScalarType{Kind: KindInteger, Signed: true, Bits: bits}
}

func ParseScalarType(s string) (ScalarType, error) {
	switch s {
	case "bool":
		return Bool, nil
	case "field":
		return Field, nil
	}
	if len(s) < 2 || (s[0] != 'u' && s[0] != 'i') {
		return ScalarType{}, fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
	bits, err := strconv.Atoi(s[1:])
	if err != nil || bits < 8 || bits > MaxIntegerBits || bits%8 != 0 {
		return ScalarType{}, fmt.Errorf("%w: bad integer bit length %q", ErrInvalidType, s)
	}
	if s[0] == 'i' {
		return Signed(bits), nil
	}
	return Unsigned(bits), nil
}

func (t ScalarType) String() string {
	switch t.Kind {
	case KindBoolean:
		return "bool"
	case KindField:
		return "field"
	}
	if t.Signed {
		return fmt.Sprintf("i%d", t.Bits)
	}
	return fmt.Sprintf("u%d", t.Bits)
}

func (t ScalarType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ScalarType) UnmarshalText(text []byte) error {
	v, err := ParseScalarType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (t ScalarType) IsBool() bool    { return t.Kind == KindBoolean }
func (t ScalarType) IsInteger() bool { return t.Kind == KindInteger }
func (t ScalarType) IsField() bool   { return t.Kind == KindField }

// Min is the smallest value of the type.
func (t ScalarType) Min() *big.Int {
	if t.Kind == KindInteger && t.Signed {
		return new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), uint(t.Bits-1)))
	}
	return new(big.Int)
}

// Max is the largest value of the type.
func (t ScalarType) Max() *big.Int {
	switch t.Kind {
	case KindBoolean:
		return big.NewInt(1)
	case KindField:
		return new(big.Int).Sub(fr.Modulus(), big.NewInt(1))
	}
	bits := t.Bits
	if t.Signed {
		bits--
	}
	one := big.NewInt(1)
	return new(big.Int).Sub(new(big.Int).Lsh(one, uint(bits)), one)
}

func (t ScalarType) Fits(v *big.Int) bool {
	return v.Cmp(t.Min()) >= 0 && v.Cmp(t.Max()) <= 0
}

// Check returns ErrValueOverflow if v is outside of the range of the type.
func (t ScalarType) Check(v *big.Int) error {
	if !t.Fits(v) {
		return fmt.Errorf("%w: %s does not fit %s", ErrValueOverflow, v, t)
	}
	return nil
}

// Contains reports whether every value of o is a value of t.
func (t ScalarType) Contains(o ScalarType) bool {
	return t.Min().Cmp(o.Min()) <= 0 && t.Max().Cmp(o.Max()) >= 0
}

// ParseValue reads a decimal or 0x-prefixed hex literal, optionally negative.
func ParseValue(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	v, ok := math.ParseBig256(s)
	if !ok || s == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidValue, s)
	}
	if neg {
		v.Neg(v)
	}
	return v, nil
}
