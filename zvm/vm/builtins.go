package vm

import (
	"fmt"

	"github.com/ethereum-optimism/zvm/zvm/bytecode"
	"github.com/ethereum-optimism/zvm/zvm/gadgets"
)

// Bits on the stack are big-endian: the most significant bit is pushed first.
func (v *VM) execBuiltin(insn bytecode.Instruction) error {
	args, err := v.popValues(insn.InputSize)
	if err != nil {
		return err
	}
	var out []gadgets.Scalar
	switch insn.Builtin {
	case bytecode.BuiltinToBits:
		if len(args) != 1 {
			return fmt.Errorf("%w: to_bits takes one value, got %d", ErrArityMismatch, len(args))
		}
		bits, err := gadgets.ToBits(v.cs, args[0])
		if err != nil {
			return err
		}
		out = gadgets.Reverse(bits)
	case bytecode.BuiltinUnsignedFromBits, bytecode.BuiltinSignedFromBits, bytecode.BuiltinFieldFromBits:
		t, err := fromBitsType(insn.Builtin, len(args))
		if err != nil {
			return err
		}
		s, err := gadgets.FromBits(gadgets.Reverse(args), t)
		if err != nil {
			return err
		}
		out = []gadgets.Scalar{s}
	case bytecode.BuiltinArrayReverse:
		out = gadgets.Reverse(args)
	case bytecode.BuiltinHash:
		h, err := gadgets.Hash(v.cs, args...)
		if err != nil {
			return err
		}
		out = []gadgets.Scalar{h}
	default:
		return fmt.Errorf("%w: unknown builtin %s", ErrMalformedBytecode, insn.Builtin)
	}
	if len(out) != insn.OutputSize {
		return fmt.Errorf("%w: %s produces %d values, instruction expects %d", ErrArityMismatch, insn.Builtin, len(out), insn.OutputSize)
	}
	return v.pushValues(out)
}

func fromBitsType(b bytecode.Builtin, n int) (bytecode.ScalarType, error) {
	switch b {
	case bytecode.BuiltinFieldFromBits:
		return bytecode.Field, nil
	case bytecode.BuiltinSignedFromBits:
		if n%8 == 0 && n > 0 && n <= bytecode.MaxIntegerBits {
			return bytecode.Signed(n), nil
		}
	default:
		if n%8 == 0 && n > 0 && n <= bytecode.MaxIntegerBits {
			return bytecode.Unsigned(n), nil
		}
	}
	return bytecode.ScalarType{}, fmt.Errorf("%w: %s of %d bits", gadgets.ErrTypeMismatch, b, n)
}
