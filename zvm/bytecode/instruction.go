package bytecode

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

type Opcode uint8

const (
	OpNoop Opcode = iota

	// stack
	OpPush
	OpPop

	// frame memory
	OpLoad
	OpLoadSequence
	OpStore
	OpStoreSequence
	OpLoadByIndex
	OpLoadSequenceByIndex
	OpStoreByIndex
	OpStoreSequenceByIndex

	// global memory
	OpLoadGlobal
	OpLoadSequenceGlobal
	OpStoreGlobal
	OpStoreSequenceGlobal

	// arithmetic
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpNeg

	// logical
	OpNot
	OpAnd
	OpOr
	OpXor

	// comparison
	OpLt
	OpLe
	OpEq
	OpNe
	OpGe
	OpGt

	// bitwise
	OpBitAnd
	OpBitOr
	OpBitXor
	OpBitNot
	OpBitShiftLeft
	OpBitShiftRight

	OpCast

	// flow
	OpIf
	OpElse
	OpEndIf
	OpLoopBegin
	OpLoopEnd
	OpCall
	OpReturn
	OpExit

	OpAssert
	OpDbg
	OpCallBuiltin

	// debug markers
	OpFileMarker
	OpFunctionMarker
	OpLineMarker
	OpColumnMarker

	// contracts
	OpStorageLoad
	OpStorageStore
	OpTransfer

	numOpcodes
)

var opcodeNames = [numOpcodes]string{
	OpNoop:                 "noop",
	OpPush:                 "push",
	OpPop:                  "pop",
	OpLoad:                 "load",
	OpLoadSequence:         "load_seq",
	OpStore:                "store",
	OpStoreSequence:        "store_seq",
	OpLoadByIndex:          "load_by_index",
	OpLoadSequenceByIndex:  "load_seq_by_index",
	OpStoreByIndex:         "store_by_index",
	OpStoreSequenceByIndex: "store_seq_by_index",
	OpLoadGlobal:           "load_global",
	OpLoadSequenceGlobal:   "load_seq_global",
	OpStoreGlobal:          "store_global",
	OpStoreSequenceGlobal:  "store_seq_global",
	OpAdd:                  "add",
	OpSub:                  "sub",
	OpMul:                  "mul",
	OpDiv:                  "div",
	OpRem:                  "rem",
	OpNeg:                  "neg",
	OpNot:                  "not",
	OpAnd:                  "and",
	OpOr:                   "or",
	OpXor:                  "xor",
	OpLt:                   "lt",
	OpLe:                   "le",
	OpEq:                   "eq",
	OpNe:                   "ne",
	OpGe:                   "ge",
	OpGt:                   "gt",
	OpBitAnd:               "bit_and",
	OpBitOr:                "bit_or",
	OpBitXor:               "bit_xor",
	OpBitNot:               "bit_not",
	OpBitShiftLeft:         "bit_shl",
	OpBitShiftRight:        "bit_shr",
	OpCast:                 "cast",
	OpIf:                   "if",
	OpElse:                 "else",
	OpEndIf:                "end_if",
	OpLoopBegin:            "loop_begin",
	OpLoopEnd:              "loop_end",
	OpCall:                 "call",
	OpReturn:               "return",
	OpExit:                 "exit",
	OpAssert:               "assert",
	OpDbg:                  "dbg",
	OpCallBuiltin:          "call_builtin",
	OpFileMarker:           "file_marker",
	OpFunctionMarker:       "function_marker",
	OpLineMarker:           "line_marker",
	OpColumnMarker:         "column_marker",
	OpStorageLoad:          "storage_load",
	OpStorageStore:         "storage_store",
	OpTransfer:             "transfer",
}

var opcodesByName = func() map[string]Opcode {
	out := make(map[string]Opcode, numOpcodes)
	for op, name := range opcodeNames {
		out[name] = Opcode(op)
	}
	return out
}()

func (op Opcode) String() string {
	if op >= numOpcodes {
		return fmt.Sprintf("opcode(%d)", uint8(op))
	}
	return opcodeNames[op]
}

func (op Opcode) MarshalText() ([]byte, error) {
	if op >= numOpcodes {
		return nil, fmt.Errorf("unknown opcode %d", uint8(op))
	}
	return []byte(op.String()), nil
}

func (op *Opcode) UnmarshalText(text []byte) error {
	v, ok := opcodesByName[string(text)]
	if !ok {
		return fmt.Errorf("unknown opcode %q", text)
	}
	*op = v
	return nil
}

type Builtin uint8

const (
	BuiltinToBits Builtin = iota
	BuiltinUnsignedFromBits
	BuiltinSignedFromBits
	BuiltinFieldFromBits
	BuiltinArrayReverse
	BuiltinHash

	numBuiltins
)

var builtinNames = [numBuiltins]string{
	BuiltinToBits:           "to_bits",
	BuiltinUnsignedFromBits: "unsigned_from_bits",
	BuiltinSignedFromBits:   "signed_from_bits",
	BuiltinFieldFromBits:    "field_from_bits",
	BuiltinArrayReverse:     "array_reverse",
	BuiltinHash:             "hash",
}

func (b Builtin) String() string {
	if b >= numBuiltins {
		return fmt.Sprintf("builtin(%d)", uint8(b))
	}
	return builtinNames[b]
}

func (b Builtin) MarshalText() ([]byte, error) {
	if b >= numBuiltins {
		return nil, fmt.Errorf("unknown builtin %d", uint8(b))
	}
	return []byte(b.String()), nil
}

func (b *Builtin) UnmarshalText(text []byte) error {
	for i, name := range builtinNames {
		if name == string(text) {
			*b = Builtin(i)
			return nil
		}
	}
	return fmt.Errorf("unknown builtin %q", text)
}

// Instruction is one bytecode operation. Only the operands used by Op are set.
type Instruction struct {
	Op Opcode

	Value *big.Int   // push
	Type  ScalarType // push, cast

	Address  int // memory, call
	Len      int // sequence memory access
	ArrayLen int // indexed memory access
	ValueLen int // indexed sequence memory access
	Count    int // pop

	Iterations int // loop_begin
	InputSize  int // call, call_builtin
	OutputSize int // return, exit, call_builtin

	Message  string // assert
	Format   string // dbg
	ArgCount int    // dbg

	Builtin Builtin

	Name   string // file and function markers
	Marker int    // line and column markers

	Size int // storage_load, storage_store
}

type instructionJSON struct {
	Op         Opcode          `json:"op"`
	Value      json.RawMessage `json:"value,omitempty"`
	Type       *ScalarType     `json:"type,omitempty"`
	Address    int             `json:"address,omitempty"`
	Len        int             `json:"len,omitempty"`
	ArrayLen   int             `json:"array_len,omitempty"`
	ValueLen   int             `json:"value_len,omitempty"`
	Count      int             `json:"count,omitempty"`
	Iterations int             `json:"iterations,omitempty"`
	InputSize  int             `json:"input_size,omitempty"`
	OutputSize int             `json:"output_size,omitempty"`
	Message    string          `json:"message,omitempty"`
	Format     string          `json:"format,omitempty"`
	ArgCount   int             `json:"arg_count,omitempty"`
	Builtin    *Builtin        `json:"builtin,omitempty"`
	Name       string          `json:"name,omitempty"`
	Marker     int             `json:"marker,omitempty"`
	Size       int             `json:"size,omitempty"`
}

func (insn Instruction) MarshalJSON() ([]byte, error) {
	out := instructionJSON{
		Op:         insn.Op,
		Address:    insn.Address,
		Len:        insn.Len,
		ArrayLen:   insn.ArrayLen,
		ValueLen:   insn.ValueLen,
		Count:      insn.Count,
		Iterations: insn.Iterations,
		InputSize:  insn.InputSize,
		OutputSize: insn.OutputSize,
		Message:    insn.Message,
		Format:     insn.Format,
		ArgCount:   insn.ArgCount,
		Name:       insn.Name,
		Marker:     insn.Marker,
		Size:       insn.Size,
	}
	switch insn.Op {
	case OpPush:
		if insn.Value == nil {
			return nil, fmt.Errorf("push without value")
		}
		out.Value = json.RawMessage(strconv.Quote(insn.Value.String()))
		out.Type = &insn.Type
	case OpCast:
		out.Type = &insn.Type
	case OpCallBuiltin:
		out.Builtin = &insn.Builtin
	}
	return json.Marshal(out)
}

func (insn *Instruction) UnmarshalJSON(data []byte) error {
	var in instructionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*insn = Instruction{
		Op:         in.Op,
		Address:    in.Address,
		Len:        in.Len,
		ArrayLen:   in.ArrayLen,
		ValueLen:   in.ValueLen,
		Count:      in.Count,
		Iterations: in.Iterations,
		InputSize:  in.InputSize,
		OutputSize: in.OutputSize,
		Message:    in.Message,
		Format:     in.Format,
		ArgCount:   in.ArgCount,
		Name:       in.Name,
		Marker:     in.Marker,
		Size:       in.Size,
	}
	switch in.Op {
	case OpPush:
		if in.Type == nil {
			return fmt.Errorf("%w: push without type", ErrInvalidType)
		}
		v, err := literal(in.Value)
		if err != nil {
			return fmt.Errorf("push: %w", err)
		}
		if err := in.Type.Check(v); err != nil {
			return fmt.Errorf("push: %w", err)
		}
		insn.Value, insn.Type = v, *in.Type
	case OpCast:
		if in.Type == nil {
			return fmt.Errorf("%w: cast without type", ErrInvalidType)
		}
		insn.Type = *in.Type
	case OpCallBuiltin:
		if in.Builtin == nil {
			return fmt.Errorf("call_builtin without builtin")
		}
		insn.Builtin = *in.Builtin
	}
	return nil
}

// literal reads a push value written as a string, a number or a bool.
func literal(data json.RawMessage) (*big.Int, error) {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			return big.NewInt(1), nil
		}
		return new(big.Int), nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		var num json.Number
		if err := json.Unmarshal(data, &num); err != nil {
			return nil, fmt.Errorf("%w: push value %s", ErrInvalidValue, data)
		}
		text = num.String()
	}
	return ParseValue(text)
}

// String renders the instruction as assembly text.
func (insn Instruction) String() string {
	op := insn.Op.String()
	switch insn.Op {
	case OpPush:
		return fmt.Sprintf("%s %s as %s", op, insn.Value, insn.Type)
	case OpPop:
		return fmt.Sprintf("%s %d", op, insn.Count)
	case OpLoad, OpStore, OpLoadGlobal, OpStoreGlobal:
		return fmt.Sprintf("%s %d", op, insn.Address)
	case OpLoadSequence, OpStoreSequence, OpLoadSequenceGlobal, OpStoreSequenceGlobal:
		return fmt.Sprintf("%s %d %d", op, insn.Address, insn.Len)
	case OpLoadByIndex, OpStoreByIndex:
		return fmt.Sprintf("%s %d %d", op, insn.Address, insn.ArrayLen)
	case OpLoadSequenceByIndex, OpStoreSequenceByIndex:
		return fmt.Sprintf("%s %d %d %d", op, insn.Address, insn.ArrayLen, insn.ValueLen)
	case OpCast:
		return fmt.Sprintf("%s %s", op, insn.Type)
	case OpLoopBegin:
		return fmt.Sprintf("%s %d", op, insn.Iterations)
	case OpCall:
		return fmt.Sprintf("%s %d %d", op, insn.Address, insn.InputSize)
	case OpReturn, OpExit:
		return fmt.Sprintf("%s %d", op, insn.OutputSize)
	case OpAssert:
		if insn.Message != "" {
			return fmt.Sprintf("%s %s", op, strconv.Quote(insn.Message))
		}
	case OpDbg:
		return fmt.Sprintf("%s %s %d", op, strconv.Quote(insn.Format), insn.ArgCount)
	case OpCallBuiltin:
		return fmt.Sprintf("%s %s %d %d", op, insn.Builtin, insn.InputSize, insn.OutputSize)
	case OpFileMarker, OpFunctionMarker:
		return fmt.Sprintf("%s %s", op, strconv.Quote(insn.Name))
	case OpLineMarker, OpColumnMarker:
		return fmt.Sprintf("%s %d", op, insn.Marker)
	case OpStorageLoad, OpStorageStore:
		return fmt.Sprintf("%s %d", op, insn.Size)
	}
	return op
}

// Disassemble renders a program listing, one instruction per line.
func Disassemble(insns []Instruction) string {
	var sb strings.Builder
	for i, insn := range insns {
		fmt.Fprintf(&sb, "%04d %s\n", i, insn)
	}
	return sb.String()
}
