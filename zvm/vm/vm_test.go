package vm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/zvm/zvm/bytecode"
	"github.com/ethereum-optimism/zvm/zvm/storage"
)

var (
	u8   = bytecode.Unsigned(8)
	u16  = bytecode.Unsigned(16)
	u64  = bytecode.Unsigned(64)
	u160 = bytecode.Unsigned(160)
	i8   = bytecode.Signed(8)
)

func op(o bytecode.Opcode) bytecode.Instruction {
	return bytecode.Instruction{Op: o}
}

func push(v int64, t bytecode.ScalarType) bytecode.Instruction {
	return bytecode.Instruction{Op: bytecode.OpPush, Value: big.NewInt(v), Type: t}
}

func load(addr int) bytecode.Instruction {
	return bytecode.Instruction{Op: bytecode.OpLoad, Address: addr}
}

func store(addr int) bytecode.Instruction {
	return bytecode.Instruction{Op: bytecode.OpStore, Address: addr}
}

func cast(t bytecode.ScalarType) bytecode.Instruction {
	return bytecode.Instruction{Op: bytecode.OpCast, Type: t}
}

func ret(n int) bytecode.Instruction {
	return bytecode.Instruction{Op: bytecode.OpReturn, OutputSize: n}
}

func assert(msg string) bytecode.Instruction {
	return bytecode.Instruction{Op: bytecode.OpAssert, Message: msg}
}

func builtin(b bytecode.Builtin, in, out int) bytecode.Instruction {
	return bytecode.Instruction{Op: bytecode.OpCallBuiltin, Builtin: b, InputSize: in, OutputSize: out}
}

func scalar(t bytecode.ScalarType) bytecode.Type {
	return bytecode.ScalarOf(t)
}

func fields(fs ...bytecode.Member) bytecode.Type {
	return bytecode.StructOf(fs...)
}

func circuit(input, output bytecode.Type, insns ...bytecode.Instruction) *bytecode.Program {
	return &bytecode.Program{
		Name:         "test",
		Instructions: insns,
		Functions:    []bytecode.Function{{Name: "main", Address: 0, InputSize: input.Size(), OutputSize: output.Size()}},
		Entries:      []bytecode.Entry{{Name: "main", Address: 0, Input: input, Output: output}},
	}
}

func witness(args string) *Witness {
	return &Witness{Arguments: json.RawMessage(args)}
}

func requireResult(t *testing.T, p *bytecode.Program, args string, expected string) *Output {
	out, err := Run(p, "", witness(args), nil)
	require.NoError(t, err)
	require.JSONEq(t, expected, string(out.Result))
	return out
}

func requireParity(t *testing.T, p *bytecode.Program, entry string, out *Output) {
	circ, err := Setup(p, entry, nil)
	require.NoError(t, err)
	require.Equal(t, out.Stats, circ.Stats)
	require.Equal(t, out.Digest, circ.Digest)
}

func TestEndToEnd(t *testing.T) {
	checked := func(value bytecode.Instruction) *bytecode.Program {
		return circuit(bytecode.Unit, scalar(u8),
			value,
			cast(u8),
			store(0),
			load(0),
			push(0, u8),
			op(bytecode.OpNe),
			assert("value is zero"),
			load(0),
			ret(1),
		)
	}

	t.Run("in range", func(t *testing.T) {
		out := requireResult(t, checked(push(5, u16)), "null", `"5"`)
		require.NoError(t, out.System.IsSatisfied())
	})
	t.Run("negative", func(t *testing.T) {
		_, err := Run(checked(push(-1, i8)), "", witness("null"), nil)
		require.ErrorIs(t, err, ErrType)
	})
	t.Run("too large", func(t *testing.T) {
		_, err := Run(checked(push(300, u16)), "", witness("null"), nil)
		require.ErrorIs(t, err, ErrType)
	})
	t.Run("zero", func(t *testing.T) {
		_, err := Run(checked(push(0, u16)), "", witness("null"), nil)
		require.ErrorIs(t, err, ErrAssertion)
		var assertion *AssertionError
		require.ErrorAs(t, err, &assertion)
		require.Equal(t, "value is zero", assertion.Message)
	})
}

func TestEndToEndWitness(t *testing.T) {
	p := circuit(fields(bytecode.Member{Name: "x", Type: scalar(bytecode.Field)}), scalar(u8),
		load(0),
		cast(u8),
		store(1),
		load(1),
		push(0, u8),
		op(bytecode.OpNe),
		assert("value is zero"),
		load(1),
		ret(1),
	)
	out := requireResult(t, p, `{"x": "5"}`, `"5"`)
	require.NoError(t, out.System.IsSatisfied())
	requireParity(t, p, "", out)

	for _, x := range []string{"300", "256", "21888242871839275222246405745257275088548364400416034343698204186575808495616"} {
		_, err := Run(p, "", witness(`{"x": "`+x+`"}`), nil)
		require.ErrorIs(t, err, ErrType, x)
	}

	_, err := Run(p, "", witness(`{"x": "0"}`), nil)
	require.ErrorIs(t, err, ErrAssertion)
}

func TestConditionalNeutrality(t *testing.T) {
	input := fields(
		bytecode.Member{Name: "c", Type: scalar(bytecode.Bool)},
		bytecode.Member{Name: "x", Type: scalar(u8)},
	)
	thenOnly := circuit(input, scalar(u8),
		load(0),
		op(bytecode.OpIf),
		load(1),
		push(0, u8),
		op(bytecode.OpEq),
		assert("x is not zero"),
		op(bytecode.OpEndIf),
		load(1),
		ret(1),
	)
	out := requireResult(t, thenOnly, `{"c": false, "x": "3"}`, `"3"`)
	require.NoError(t, out.System.IsSatisfied())
	requireParity(t, thenOnly, "", out)

	_, err := Run(thenOnly, "", witness(`{"c": true, "x": "3"}`), nil)
	var assertion *AssertionError
	require.ErrorAs(t, err, &assertion)
	require.Equal(t, "x is not zero", assertion.Message)

	elseArm := circuit(input, scalar(u8),
		load(0),
		op(bytecode.OpIf),
		op(bytecode.OpElse),
		load(1),
		push(0, u8),
		op(bytecode.OpEq),
		assert("x is not zero"),
		op(bytecode.OpEndIf),
		load(1),
		ret(1),
	)
	requireResult(t, elseArm, `{"c": true, "x": "3"}`, `"3"`)
	_, err = Run(elseArm, "", witness(`{"c": false, "x": "3"}`), nil)
	require.ErrorIs(t, err, ErrAssertion)
}

func TestInactiveArithmetic(t *testing.T) {
	// x / y with y = 0 is only evaluated when c holds
	p := circuit(fields(
		bytecode.Member{Name: "c", Type: scalar(bytecode.Bool)},
		bytecode.Member{Name: "x", Type: scalar(u8)},
		bytecode.Member{Name: "y", Type: scalar(u8)},
	), scalar(u8),
		push(0, u8),
		store(3),
		load(0),
		op(bytecode.OpIf),
		load(1),
		load(2),
		op(bytecode.OpDiv),
		store(3),
		op(bytecode.OpEndIf),
		load(3),
		ret(1),
	)
	requireResult(t, p, `{"c": true, "x": "200", "y": "7"}`, `"28"`)
	requireResult(t, p, `{"c": false, "x": "200", "y": "0"}`, `"0"`)
	_, err := Run(p, "", witness(`{"c": true, "x": "200", "y": "0"}`), nil)
	require.ErrorIs(t, err, ErrType)
}

func TestBranchMerge(t *testing.T) {
	input := fields(bytecode.Member{Name: "c", Type: scalar(bytecode.Bool)})

	t.Run("stack", func(t *testing.T) {
		p := circuit(input, scalar(u8),
			load(0),
			op(bytecode.OpIf),
			push(1, u8),
			op(bytecode.OpElse),
			push(2, u8),
			op(bytecode.OpEndIf),
			ret(1),
		)
		out := requireResult(t, p, `{"c": true}`, `"1"`)
		requireParity(t, p, "", out)
		requireResult(t, p, `{"c": false}`, `"2"`)
	})

	t.Run("memory then", func(t *testing.T) {
		p := circuit(input, scalar(u8),
			push(10, u8),
			store(1),
			load(0),
			op(bytecode.OpIf),
			push(20, u8),
			store(1),
			op(bytecode.OpEndIf),
			load(1),
			ret(1),
		)
		requireResult(t, p, `{"c": true}`, `"20"`)
		requireResult(t, p, `{"c": false}`, `"10"`)
	})

	t.Run("memory both arms", func(t *testing.T) {
		p := circuit(input, scalar(u8),
			push(10, u8),
			store(1),
			load(0),
			op(bytecode.OpIf),
			push(20, u8),
			store(1),
			op(bytecode.OpElse),
			load(1),
			push(5, u8),
			op(bytecode.OpAdd),
			store(1),
			op(bytecode.OpEndIf),
			load(1),
			ret(1),
		)
		requireResult(t, p, `{"c": true}`, `"20"`)
		// the else arm reads the value from before the branch
		requireResult(t, p, `{"c": false}`, `"15"`)
	})

	t.Run("nested", func(t *testing.T) {
		p := circuit(fields(
			bytecode.Member{Name: "a", Type: scalar(bytecode.Bool)},
			bytecode.Member{Name: "b", Type: scalar(bytecode.Bool)},
		), scalar(u8),
			push(0, u8),
			store(2),
			load(0),
			op(bytecode.OpIf),
			load(1),
			op(bytecode.OpIf),
			push(3, u8),
			store(2),
			op(bytecode.OpElse),
			push(4, u8),
			store(2),
			op(bytecode.OpEndIf),
			op(bytecode.OpEndIf),
			load(2),
			ret(1),
		)
		requireResult(t, p, `{"a": true, "b": true}`, `"3"`)
		requireResult(t, p, `{"a": true, "b": false}`, `"4"`)
		requireResult(t, p, `{"a": false, "b": true}`, `"0"`)
		requireResult(t, p, `{"a": false, "b": false}`, `"0"`)
	})
}

func TestLoops(t *testing.T) {
	sum := func(n int) *bytecode.Program {
		return circuit(bytecode.Unit, scalar(u8),
			push(0, u8),
			store(0),
			bytecode.Instruction{Op: bytecode.OpLoopBegin, Iterations: n},
			load(0),
			push(2, u8),
			op(bytecode.OpAdd),
			store(0),
			op(bytecode.OpLoopEnd),
			load(0),
			ret(1),
		)
	}
	requireResult(t, sum(3), "null", `"6"`)
	requireResult(t, sum(1), "null", `"2"`)
	requireResult(t, sum(0), "null", `"0"`)

	_, err := Run(sum(200), "", witness("null"), nil)
	require.ErrorIs(t, err, ErrType)
}

func TestCall(t *testing.T) {
	p := circuit(scalar(u8), scalar(u8),
		load(0),
		bytecode.Instruction{Op: bytecode.OpCall, Address: 5, InputSize: 1},
		push(1, u8),
		op(bytecode.OpAdd),
		ret(1),
		load(0),
		load(0),
		op(bytecode.OpAdd),
		ret(1),
	)
	p.Functions = append(p.Functions, bytecode.Function{Name: "double", Address: 5, InputSize: 1, OutputSize: 1})
	out := requireResult(t, p, `"20"`, `"41"`)
	requireParity(t, p, "", out)

	p.Instructions[1].InputSize = 2
	_, err := Run(p, "", witness(`"20"`), nil)
	require.ErrorIs(t, err, ErrArityMismatch)
	require.ErrorIs(t, err, ErrMalformedBytecode)
}

func TestCallDepth(t *testing.T) {
	p := circuit(bytecode.Unit, bytecode.Unit,
		bytecode.Instruction{Op: bytecode.OpCall, Address: 0},
		ret(0),
	)
	cfg := DefaultConfig()
	cfg.MaxCallDepth = 4
	_, err := Run(p, "", witness("null"), cfg)
	require.ErrorIs(t, err, ErrCallDepth)
}

func TestGlobals(t *testing.T) {
	p := circuit(bytecode.Unit, scalar(u8),
		push(7, u8),
		bytecode.Instruction{Op: bytecode.OpStoreGlobal, Address: 0},
		bytecode.Instruction{Op: bytecode.OpLoadGlobal, Address: 0},
		ret(1),
	)
	p.GlobalSize = 1
	requireResult(t, p, "null", `"7"`)

	p.Instructions[2].Address = 1
	_, err := Run(p, "", witness("null"), nil)
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestArrayAccess(t *testing.T) {
	input := fields(
		bytecode.Member{Name: "a", Type: bytecode.ArrayOf(scalar(u8), 3)},
		bytecode.Member{Name: "i", Type: scalar(u8)},
	)
	get := circuit(input, scalar(u8),
		load(3),
		bytecode.Instruction{Op: bytecode.OpLoadByIndex, Address: 0, ArrayLen: 3},
		ret(1),
	)
	out := requireResult(t, get, `{"a": [4, 5, 6], "i": "2"}`, `"6"`)
	requireParity(t, get, "", out)
	requireResult(t, get, `{"a": [4, 5, 6], "i": "0"}`, `"4"`)
	_, err := Run(get, "", witness(`{"a": [4, 5, 6], "i": "3"}`), nil)
	require.ErrorIs(t, err, ErrType)

	set := circuit(input, bytecode.ArrayOf(scalar(u8), 3),
		push(9, u8),
		load(3),
		bytecode.Instruction{Op: bytecode.OpStoreByIndex, Address: 0, ArrayLen: 3},
		bytecode.Instruction{Op: bytecode.OpLoadSequence, Address: 0, Len: 3},
		ret(3),
	)
	requireResult(t, set, `{"a": [4, 5, 6], "i": "1"}`, `["4", "9", "6"]`)

	pairs := fields(
		bytecode.Member{Name: "a", Type: bytecode.ArrayOf(bytecode.TupleOf(scalar(u8), scalar(u8)), 2)},
		bytecode.Member{Name: "i", Type: scalar(u8)},
	)
	getPair := circuit(pairs, bytecode.TupleOf(scalar(u8), scalar(u8)),
		load(4),
		bytecode.Instruction{Op: bytecode.OpLoadSequenceByIndex, Address: 0, ArrayLen: 2, ValueLen: 2},
		ret(2),
	)
	requireResult(t, getPair, `{"a": [[1, 2], [3, 4]], "i": "1"}`, `["3", "4"]`)
}

func TestBuiltins(t *testing.T) {
	bits := circuit(scalar(u8), bytecode.ArrayOf(scalar(bytecode.Bool), 8),
		load(0),
		builtin(bytecode.BuiltinToBits, 1, 8),
		ret(8),
	)
	requireResult(t, bits, `"5"`, `[false, false, false, false, false, true, false, true]`)

	roundTrip := circuit(scalar(u8), scalar(u8),
		load(0),
		builtin(bytecode.BuiltinToBits, 1, 8),
		builtin(bytecode.BuiltinArrayReverse, 8, 8),
		builtin(bytecode.BuiltinArrayReverse, 8, 8),
		builtin(bytecode.BuiltinUnsignedFromBits, 8, 1),
		ret(1),
	)
	requireResult(t, roundTrip, `"173"`, `"173"`)

	signed := circuit(scalar(i8), scalar(i8),
		load(0),
		builtin(bytecode.BuiltinToBits, 1, 8),
		builtin(bytecode.BuiltinSignedFromBits, 8, 1),
		ret(1),
	)
	requireResult(t, signed, `"-3"`, `"-3"`)

	hash := circuit(bytecode.Unit, scalar(bytecode.Field),
		push(1, bytecode.Field),
		push(2, bytecode.Field),
		builtin(bytecode.BuiltinHash, 2, 1),
		ret(1),
	)
	var one, two fr.Element
	one.SetUint64(1)
	two.SetUint64(2)
	h := storage.Hash(one, two)
	requireResult(t, hash, "null", `"`+h.BigInt(new(big.Int)).String()+`"`)

	wrong := circuit(scalar(u8), bytecode.ArrayOf(scalar(bytecode.Bool), 7),
		load(0),
		builtin(bytecode.BuiltinToBits, 1, 7),
		ret(7),
	)
	_, err := Run(wrong, "", witness(`"5"`), nil)
	require.ErrorIs(t, err, ErrArityMismatch)
}

func TestMalformed(t *testing.T) {
	tests := []struct {
		name  string
		insns []bytecode.Instruction
		err   error
	}{
		{"underflow", []bytecode.Instruction{op(bytecode.OpAdd), ret(0)}, ErrStackUnderflow},
		{"uninitialized", []bytecode.Instruction{load(3), op(bytecode.OpPop), ret(0)}, ErrUninitializedMemory},
		{"return in block", []bytecode.Instruction{push(1, bytecode.Bool), op(bytecode.OpIf), ret(0)}, ErrUnbalancedBlocks},
		{"else without if", []bytecode.Instruction{op(bytecode.OpElse), ret(0)}, ErrUnbalancedBlocks},
		{"then arm leaves values", []bytecode.Instruction{
			push(1, bytecode.Bool), op(bytecode.OpIf), push(1, u8), op(bytecode.OpEndIf), op(bytecode.OpPop), ret(0),
		}, ErrBranchMismatch},
		{"arms differ", []bytecode.Instruction{
			push(1, bytecode.Bool), op(bytecode.OpIf), push(1, u8), op(bytecode.OpElse), op(bytecode.OpEndIf), ret(0),
		}, ErrBranchMismatch},
		{"loop without end", []bytecode.Instruction{{Op: bytecode.OpLoopBegin}, ret(0)}, ErrUnbalancedBlocks},
		{"return arity", []bytecode.Instruction{push(1, u8), ret(1)}, ErrArityMismatch},
		{"storage in circuit", []bytecode.Instruction{push(0, u8), push(0, u8), {Op: bytecode.OpStorageLoad, Size: 1}, ret(0)}, ErrNotContract},
		{"if on integer", []bytecode.Instruction{push(1, u8), op(bytecode.OpIf), op(bytecode.OpEndIf), ret(0)}, ErrType},
		{"type mismatch", []bytecode.Instruction{push(1, u8), push(1, u16), op(bytecode.OpAdd), op(bytecode.OpPop), ret(0)}, ErrType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := circuit(bytecode.Unit, bytecode.Unit, tt.insns...)
			_, err := Run(p, "", witness("null"), nil)
			require.ErrorIs(t, err, tt.err)
			var rt *RuntimeError
			require.ErrorAs(t, err, &rt)
		})
	}

	_, err := Run(&bytecode.Program{}, "", nil, nil)
	require.ErrorIs(t, err, ErrMalformedBytecode)
}

func TestErrorLocation(t *testing.T) {
	p := circuit(bytecode.Unit, bytecode.Unit,
		bytecode.Instruction{Op: bytecode.OpFileMarker, Name: "main.zn"},
		bytecode.Instruction{Op: bytecode.OpFunctionMarker, Name: "main"},
		bytecode.Instruction{Op: bytecode.OpLineMarker, Marker: 4},
		bytecode.Instruction{Op: bytecode.OpColumnMarker, Marker: 9},
		push(0, bytecode.Bool),
		assert("always"),
		ret(0),
	)
	_, err := Run(p, "", witness("null"), nil)
	var assertion *AssertionError
	require.ErrorAs(t, err, &assertion)
	require.Equal(t, Location{File: "main.zn", Function: "main", Line: 4, Column: 9}, assertion.Location)
	require.Contains(t, err.Error(), "main.zn:4:9 in main")

	var rt *RuntimeError
	require.ErrorAs(t, err, &rt)
	require.Equal(t, 5, rt.Address)
}

func TestDbg(t *testing.T) {
	p := circuit(fields(
		bytecode.Member{Name: "c", Type: scalar(bytecode.Bool)},
		bytecode.Member{Name: "x", Type: scalar(u8)},
	), bytecode.Unit,
		load(0),
		op(bytecode.OpIf),
		load(1),
		bytecode.Instruction{Op: bytecode.OpDbg, Format: "x is {}", ArgCount: 1},
		op(bytecode.OpEndIf),
		ret(0),
	)
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Logger = log.NewLogger(log.LogfmtHandlerWithLevel(&buf, slog.LevelInfo))

	_, err := Run(p, "", witness(`{"c": true, "x": "42"}`), cfg)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "x is 42")

	buf.Reset()
	_, err = Run(p, "", witness(`{"c": false, "x": "42"}`), cfg)
	require.NoError(t, err)
	require.NotContains(t, buf.String(), "x is 42")
}

func vault() *bytecode.Program {
	deposit := []bytecode.Instruction{
		load(0),
		push(0, bytecode.Field),
		load(0),
		push(0, bytecode.Field),
		{Op: bytecode.OpStorageLoad, Size: 1},
		load(1),
		op(bytecode.OpAdd),
		{Op: bytecode.OpStorageStore, Size: 1},
		ret(0),
	}
	balance := []bytecode.Instruction{
		load(0),
		push(0, bytecode.Field),
		{Op: bytecode.OpStorageLoad, Size: 1},
		ret(1),
	}
	withdraw := []bytecode.Instruction{
		load(1),
		op(bytecode.OpIf),
		load(0),
		load(2),
		push(0xaa, u160),
		load(3),
		op(bytecode.OpTransfer),
		op(bytecode.OpEndIf),
		ret(0),
	}
	insns := append(append(deposit, balance...), withdraw...)
	return &bytecode.Program{
		Name:         "vault",
		Instructions: insns,
		Functions: []bytecode.Function{
			{Name: "deposit", Address: 0, InputSize: 2, OutputSize: 0},
			{Name: "balance", Address: 9, InputSize: 1, OutputSize: 1},
			{Name: "withdraw", Address: 13, InputSize: 4, OutputSize: 0},
		},
		Entries: []bytecode.Entry{
			{Name: "deposit", Address: 0, Input: fields(bytecode.Member{Name: "amount", Type: scalar(u64)}), Output: bytecode.Unit, Mutable: true},
			{Name: "balance", Address: 9, Input: bytecode.Unit, Output: scalar(u64)},
			{Name: "withdraw", Address: 13, Input: fields(
				bytecode.Member{Name: "send", Type: scalar(bytecode.Bool)},
				bytecode.Member{Name: "to", Type: scalar(u160)},
				bytecode.Member{Name: "amount", Type: scalar(u64)},
			), Output: bytecode.Unit},
		},
		Storage: []bytecode.Member{
			{Name: "balance", Type: scalar(u64)},
			{Name: "owner", Type: scalar(bytecode.Field)},
			{Name: "limits", Type: bytecode.ArrayOf(scalar(u8), 2)},
		},
	}
}

func vaultStorage(balance string) []json.RawMessage {
	return []json.RawMessage{json.RawMessage(`"` + balance + `"`), json.RawMessage(`"7"`), json.RawMessage(`[1, 2]`)}
}

func TestContractStore(t *testing.T) {
	p := vault()
	out, err := Run(p, "deposit", &Witness{Arguments: json.RawMessage(`{"amount": "5"}`), Storage: vaultStorage("100")}, nil)
	require.NoError(t, err)
	require.JSONEq(t, "null", string(out.Result))
	require.Len(t, out.Storage, 3)
	require.Equal(t, "balance", out.Storage[0].Name)
	require.JSONEq(t, `"105"`, string(out.Storage[0].Value))
	require.JSONEq(t, `"7"`, string(out.Storage[1].Value))
	require.JSONEq(t, `["1", "2"]`, string(out.Storage[2].Value))

	expected, err := storage.NewDatabase(p.StorageLayout(), [][]*big.Int{
		{big.NewInt(105)}, {big.NewInt(7)}, {big.NewInt(1), big.NewInt(2)},
	})
	require.NoError(t, err)
	require.NotNil(t, out.RootHash)
	require.Equal(t, expected.RootHash(), *out.RootHash)

	// the initial and the final root are public
	public, err := out.System.PublicAssignment()
	require.NoError(t, err)
	require.Len(t, public, 2)
	require.Equal(t, *out.RootHash, common.Hash(public[1].Bytes()))

	requireParity(t, p, "deposit", out)

	_, err = Run(p, "deposit", &Witness{Arguments: json.RawMessage(`{"amount": "5"}`)}, nil)
	require.NoError(t, err)

	_, err = Run(p, "deposit", &Witness{Arguments: json.RawMessage(`{"amount": "5"}`), Storage: vaultStorage("18446744073709551615")}, nil)
	require.ErrorIs(t, err, ErrType)
}

func TestContractConditionalStore(t *testing.T) {
	set := func(v int64) []bytecode.Instruction {
		return []bytecode.Instruction{
			load(0),
			push(0, bytecode.Field),
			push(v, u64),
			{Op: bytecode.OpStorageStore, Size: 1},
		}
	}
	insns := []bytecode.Instruction{load(1), op(bytecode.OpIf)}
	insns = append(insns, set(1)...)
	insns = append(insns, op(bytecode.OpElse))
	insns = append(insns, set(2)...)
	insns = append(insns, op(bytecode.OpEndIf), ret(0))

	p := vault()
	p.Instructions = insns
	p.Functions = []bytecode.Function{{Name: "set", Address: 0, InputSize: 2, OutputSize: 0}}
	p.Entries = []bytecode.Entry{{Name: "set", Address: 0, Input: fields(bytecode.Member{Name: "c", Type: scalar(bytecode.Bool)}), Output: bytecode.Unit, Mutable: true}}

	for _, tt := range []struct {
		c       bool
		balance int64
	}{{true, 1}, {false, 2}} {
		args := `{"c": false}`
		if tt.c {
			args = `{"c": true}`
		}
		out, err := Run(p, "set", &Witness{Arguments: json.RawMessage(args), Storage: vaultStorage("100")}, nil)
		require.NoError(t, err)
		require.JSONEq(t, fmt.Sprintf(`"%d"`, tt.balance), string(out.Storage[0].Value))

		expected, err := storage.NewDatabase(p.StorageLayout(), [][]*big.Int{
			{big.NewInt(tt.balance)}, {big.NewInt(7)}, {big.NewInt(1), big.NewInt(2)},
		})
		require.NoError(t, err)
		require.Equal(t, expected.RootHash(), *out.RootHash)
		requireParity(t, p, "set", out)
	}
}

func TestContractLoad(t *testing.T) {
	p := vault()
	out, err := Run(p, "balance", &Witness{Arguments: json.RawMessage("null"), Storage: vaultStorage("100")}, nil)
	require.NoError(t, err)
	require.JSONEq(t, `"100"`, string(out.Result))
	requireParity(t, p, "balance", out)

	// reading does not change the root
	db, err := storage.NewDatabase(p.StorageLayout(), [][]*big.Int{
		{big.NewInt(100)}, {big.NewInt(7)}, {big.NewInt(1), big.NewInt(2)},
	})
	require.NoError(t, err)
	require.Equal(t, db.RootHash(), *out.RootHash)
}

func TestContractImmutable(t *testing.T) {
	p := vault()
	p.Entries[0].Mutable = false
	_, err := Run(p, "deposit", &Witness{Arguments: json.RawMessage(`{"amount": "5"}`), Storage: vaultStorage("100")}, nil)
	require.ErrorIs(t, err, ErrMalformedBytecode)
}

func TestContractStorageErrors(t *testing.T) {
	p := vault()
	p.Instructions[1] = push(5, bytecode.Field)
	p.Instructions[3] = push(5, bytecode.Field)
	_, err := Run(p, "deposit", &Witness{Arguments: json.RawMessage(`{"amount": "5"}`), Storage: vaultStorage("100")}, nil)
	require.ErrorIs(t, err, ErrStorage)
	require.NotErrorIs(t, err, ErrAssertion)

	p = vault()
	p.Instructions[3] = load(1)
	_, err = Run(p, "deposit", &Witness{Arguments: json.RawMessage(`{"amount": "5"}`), Storage: vaultStorage("100")}, nil)
	require.ErrorIs(t, err, ErrNonConstantIndex)

	_, err = Run(vault(), "deposit", &Witness{Arguments: json.RawMessage(`{"amount": "5"}`), Storage: vaultStorage("100")[:1]}, nil)
	require.ErrorIs(t, err, ErrStorage)
}

func TestTransfer(t *testing.T) {
	p := vault()
	args := `{"send": true, "to": "48879", "amount": "5"}`
	out, err := Run(p, "withdraw", &Witness{Arguments: json.RawMessage(args), Storage: vaultStorage("100")}, nil)
	require.NoError(t, err)
	require.Equal(t, []Transfer{{
		Recipient: common.BigToAddress(big.NewInt(0xbeef)),
		Token:     common.BigToAddress(big.NewInt(0xaa)),
		Amount:    uint256.NewInt(5),
	}}, out.Transfers)
	requireParity(t, p, "withdraw", out)

	out, err = Run(p, "withdraw", &Witness{Arguments: json.RawMessage(`{"send": false, "to": "48879", "amount": "5"}`), Storage: vaultStorage("100")}, nil)
	require.NoError(t, err)
	require.Empty(t, out.Transfers)

	// a token that is not an address is rejected in both modes
	p.Instructions[17] = push(0xaa, u64)
	_, err = Run(p, "withdraw", &Witness{Arguments: json.RawMessage(args), Storage: vaultStorage("100")}, nil)
	require.ErrorIs(t, err, ErrType)
	_, err = Setup(p, "withdraw", nil)
	require.ErrorIs(t, err, ErrType)
}

func TestSetupIgnoresValues(t *testing.T) {
	p := vault()
	circ, err := Setup(p, "deposit", nil)
	require.NoError(t, err)
	require.Equal(t, "deposit", circ.Entry)
	require.Greater(t, circ.Stats.Constraints, 0)
	_, err = circ.System.Assignment()
	require.Error(t, err)

	a, err := Run(p, "deposit", &Witness{Arguments: json.RawMessage(`{"amount": "1"}`), Storage: vaultStorage("1")}, nil)
	require.NoError(t, err)
	b, err := Run(p, "deposit", &Witness{Arguments: json.RawMessage(`{"amount": "999"}`), Storage: vaultStorage("123456")}, nil)
	require.NoError(t, err)
	require.Equal(t, a.Digest, b.Digest)
	require.Equal(t, circ.Digest, a.Digest)
}

func TestEntrySelection(t *testing.T) {
	_, err := Setup(vault(), "", nil)
	require.ErrorIs(t, err, ErrMalformedBytecode)
	_, err = Setup(vault(), "missing", nil)
	require.ErrorIs(t, err, ErrMalformedBytecode)
	require.True(t, errors.Is(err, bytecode.ErrInvalidProgram))
}
