package bytecode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
)

type TypeKind uint8

const (
	TypeUnit TypeKind = iota
	TypeScalar
	TypeArray
	TypeTuple
	TypeStructure
)

// Type describes the shape of a value as it is laid out on the stack:
// a tree whose leaves are scalars.
type Type struct {
	Kind   TypeKind
	Scalar ScalarType
	Elem   *Type
	Len    int
	Elems  []Type
	Fields []Member
}

type Member struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

var Unit = Type{Kind: TypeUnit}

func ScalarOf(t ScalarType) Type {
	return Type{Kind: TypeScalar, Scalar: t}
}

func ArrayOf(elem Type, n int) Type {
	return Type{Kind: TypeArray, Elem: &elem, Len: n}
}

func TupleOf(elems ...Type) Type {
	return Type{Kind: TypeTuple, Elems: elems}
}

func StructOf(fields ...Member) Type {
	return Type{Kind: TypeStructure, Fields: fields}
}

// Flatten lists the scalar types of every slot in stack order.
func (t Type) Flatten() []ScalarType {
	var out []ScalarType
	t.flatten(&out)
	return out
}

func (t Type) flatten(out *[]ScalarType) {
	switch t.Kind {
	case TypeScalar:
		*out = append(*out, t.Scalar)
	case TypeArray:
		for i := 0; i < t.Len; i++ {
			t.Elem.flatten(out)
		}
	case TypeTuple:
		for _, e := range t.Elems {
			e.flatten(out)
		}
	case TypeStructure:
		for _, f := range t.Fields {
			f.Type.flatten(out)
		}
	}
}

// Size is the number of stack slots taken by a value of the type.
func (t Type) Size() int {
	switch t.Kind {
	case TypeScalar:
		return 1
	case TypeArray:
		return t.Len * t.Elem.Size()
	case TypeTuple:
		n := 0
		for _, e := range t.Elems {
			n += e.Size()
		}
		return n
	case TypeStructure:
		n := 0
		for _, f := range t.Fields {
			n += f.Type.Size()
		}
		return n
	}
	return 0
}

func (t Type) String() string {
	switch t.Kind {
	case TypeScalar:
		return t.Scalar.String()
	case TypeArray:
		return fmt.Sprintf("[%s; %d]", t.Elem, t.Len)
	case TypeTuple:
		var buf bytes.Buffer
		buf.WriteByte('(')
		for i, e := range t.Elems {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(e.String())
		}
		buf.WriteByte(')')
		return buf.String()
	case TypeStructure:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, f := range t.Fields {
			if i > 0 {
				buf.WriteString(", ")
			}
			fmt.Fprintf(&buf, "%s: %s", f.Name, f.Type)
		}
		buf.WriteByte('}')
		return buf.String()
	}
	return "()"
}

// typeJSON is the wire form of non-scalar types. Scalars and unit are plain strings.
type typeJSON struct {
	Array     *Type    `json:"array,omitempty"`
	Len       int      `json:"len,omitempty"`
	Tuple     []Type   `json:"tuple,omitempty"`
	Structure []Member `json:"structure,omitempty"`
}

func (t Type) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case TypeUnit:
		return json.Marshal("unit")
	case TypeScalar:
		return json.Marshal(t.Scalar.String())
	case TypeArray:
		return json.Marshal(typeJSON{Array: t.Elem, Len: t.Len})
	case TypeTuple:
		if len(t.Elems) == 0 {
			return json.Marshal("unit")
		}
		return json.Marshal(typeJSON{Tuple: t.Elems})
	case TypeStructure:
		return json.Marshal(typeJSON{Structure: t.Fields})
	}
	return nil, fmt.Errorf("%w: unknown type kind %d", ErrInvalidType, t.Kind)
}

func (t *Type) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		if name == "unit" || name == "()" {
			*t = Unit
			return nil
		}
		st, err := ParseScalarType(name)
		if err != nil {
			return err
		}
		*t = ScalarOf(st)
		return nil
	}
	var obj typeJSON
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidType, err)
	}
	switch {
	case obj.Array != nil:
		if obj.Len < 0 {
			return fmt.Errorf("%w: negative array length", ErrInvalidType)
		}
		*t = ArrayOf(*obj.Array, obj.Len)
	case obj.Tuple != nil:
		*t = TupleOf(obj.Tuple...)
	case obj.Structure != nil:
		*t = StructOf(obj.Structure...)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidType, data)
	}
	return nil
}

// DecodeValue reads a JSON value of type t into its flat slot values.
// Booleans are JSON bools, integers and field elements are numbers or
// decimal/hex strings, arrays and tuples are JSON arrays and structures are objects.
func (t Type) DecodeValue(data json.RawMessage) ([]*big.Int, error) {
	out := make([]*big.Int, 0, t.Size())
	if err := t.decode(data, "value", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t Type) decode(data json.RawMessage, path string, out *[]*big.Int) error {
	switch t.Kind {
	case TypeUnit:
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 || string(trimmed) == "null" || string(trimmed) == "[]" {
			return nil
		}
		return fmt.Errorf("%w: %s: expected unit", ErrInvalidValue, path)
	case TypeScalar:
		v, err := decodeScalar(t.Scalar, data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		*out = append(*out, v)
		return nil
	case TypeArray, TypeTuple:
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("%w: %s: expected array", ErrInvalidValue, path)
		}
		elems := t.Elems
		if t.Kind == TypeArray {
			elems = make([]Type, t.Len)
			for i := range elems {
				elems[i] = *t.Elem
			}
		}
		if len(items) != len(elems) {
			return fmt.Errorf("%w: %s: expected %d elements, got %d", ErrInvalidValue, path, len(elems), len(items))
		}
		for i, e := range elems {
			if err := e.decode(items[i], fmt.Sprintf("%s[%d]", path, i), out); err != nil {
				return err
			}
		}
		return nil
	case TypeStructure:
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return fmt.Errorf("%w: %s: expected object", ErrInvalidValue, path)
		}
		if len(fields) != len(t.Fields) {
			return fmt.Errorf("%w: %s: expected %d fields, got %d", ErrInvalidValue, path, len(t.Fields), len(fields))
		}
		for _, f := range t.Fields {
			raw, ok := fields[f.Name]
			if !ok {
				return fmt.Errorf("%w: %s: missing field %q", ErrInvalidValue, path, f.Name)
			}
			if err := f.Type.decode(raw, path+"."+f.Name, out); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: unknown type kind %d", ErrInvalidType, t.Kind)
}

func decodeScalar(t ScalarType, data json.RawMessage) (*big.Int, error) {
	if t.IsBool() {
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("%w: expected bool, got %s", ErrInvalidValue, data)
		}
		if b {
			return big.NewInt(1), nil
		}
		return new(big.Int), nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		var num json.Number
		if err := json.Unmarshal(data, &num); err != nil {
			return nil, fmt.Errorf("%w: expected %s, got %s", ErrInvalidValue, t, data)
		}
		text = num.String()
	}
	v, err := ParseValue(text)
	if err != nil {
		return nil, err
	}
	if err := t.Check(v); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodeValue renders flat slot values as a JSON value of type t.
func (t Type) EncodeValue(values []*big.Int) (json.RawMessage, error) {
	if len(values) != t.Size() {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidValue, t.Size(), len(values))
	}
	v, _ := t.encode(values)
	return json.Marshal(v)
}

func (t Type) encode(values []*big.Int) (any, []*big.Int) {
	switch t.Kind {
	case TypeScalar:
		if t.Scalar.IsBool() {
			return values[0].Sign() != 0, values[1:]
		}
		return values[0].String(), values[1:]
	case TypeArray, TypeTuple:
		elems := t.Elems
		if t.Kind == TypeArray {
			elems = make([]Type, t.Len)
			for i := range elems {
				elems[i] = *t.Elem
			}
		}
		items := make([]any, len(elems))
		for i, e := range elems {
			items[i], values = e.encode(values)
		}
		return items, values
	case TypeStructure:
		obj := make(map[string]any, len(t.Fields))
		for _, f := range t.Fields {
			obj[f.Name], values = f.Type.encode(values)
		}
		return obj, values
	}
	return nil, values
}
