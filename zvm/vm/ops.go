package vm

import (
	"fmt"

	"github.com/ethereum-optimism/zvm/zvm/bytecode"
	"github.com/ethereum-optimism/zvm/zvm/gadgets"
)

func isGlobal(op bytecode.Opcode) bool {
	switch op {
	case bytecode.OpLoadGlobal, bytecode.OpLoadSequenceGlobal, bytecode.OpStoreGlobal, bytecode.OpStoreSequenceGlobal:
		return true
	}
	return false
}

func sequenceLen(insn bytecode.Instruction) int {
	switch insn.Op {
	case bytecode.OpLoadSequence, bytecode.OpStoreSequence, bytecode.OpLoadSequenceGlobal, bytecode.OpStoreSequenceGlobal:
		return insn.Len
	}
	return 1
}

// resolve maps the operand address of a memory instruction spanning n slots
// to an absolute data stack address.
func (v *VM) resolve(insn bytecode.Instruction, n int) (int, error) {
	if insn.Address < 0 || n < 0 {
		return 0, fmt.Errorf("%w: %d+%d", ErrInvalidAddress, insn.Address, n)
	}
	if isGlobal(insn.Op) {
		if insn.Address+n > v.program.GlobalSize {
			return 0, fmt.Errorf("%w: global %d+%d of %d", ErrInvalidAddress, insn.Address, n, v.program.GlobalSize)
		}
		return insn.Address, nil
	}
	return v.frame().base + insn.Address, nil
}

func (v *VM) readCells(addr, n int) ([]Cell, error) {
	out := make([]Cell, n)
	for i := range out {
		c, err := v.data.Get(addr + i)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func (v *VM) writeCells(addr int, cells []Cell) error {
	for i, c := range cells {
		if err := v.data.Set(addr+i, c); err != nil {
			return err
		}
	}
	return nil
}

func (v *VM) execLoad(insn bytecode.Instruction) error {
	n := sequenceLen(insn)
	addr, err := v.resolve(insn, n)
	if err != nil {
		return err
	}
	cells, err := v.readCells(addr, n)
	if err != nil {
		return err
	}
	return v.pushCells(cells)
}

func (v *VM) execStore(insn bytecode.Instruction) error {
	n := sequenceLen(insn)
	addr, err := v.resolve(insn, n)
	if err != nil {
		return err
	}
	cells, err := v.popCells(n)
	if err != nil {
		return err
	}
	return v.writeCells(addr, cells)
}

// indexed returns the element width and the slot count of an indexed access.
func indexed(insn bytecode.Instruction) (int, int, error) {
	width := 1
	if insn.Op == bytecode.OpLoadSequenceByIndex || insn.Op == bytecode.OpStoreSequenceByIndex {
		width = insn.ValueLen
	}
	if width <= 0 || insn.ArrayLen <= 0 {
		return 0, 0, fmt.Errorf("%w: array of %d elements of %d slots", ErrMalformedBytecode, insn.ArrayLen, width)
	}
	return width, insn.ArrayLen * width, nil
}

func (v *VM) execLoadByIndex(insn bytecode.Instruction) error {
	width, slots, err := indexed(insn)
	if err != nil {
		return err
	}
	addr, err := v.resolve(insn, slots)
	if err != nil {
		return err
	}
	index, err := v.popValue()
	if err != nil {
		return err
	}
	cells, err := v.readCells(addr, slots)
	if err != nil {
		return err
	}
	array, err := values(cells)
	if err != nil {
		return err
	}
	elem, err := gadgets.ArrayGet(v.cs, v.condition(), array, index, width)
	if err != nil {
		return err
	}
	return v.pushValues(elem)
}

func (v *VM) execStoreByIndex(insn bytecode.Instruction) error {
	width, slots, err := indexed(insn)
	if err != nil {
		return err
	}
	addr, err := v.resolve(insn, slots)
	if err != nil {
		return err
	}
	index, err := v.popValue()
	if err != nil {
		return err
	}
	elem, err := v.popValues(width)
	if err != nil {
		return err
	}
	cells, err := v.readCells(addr, slots)
	if err != nil {
		return err
	}
	array, err := values(cells)
	if err != nil {
		return err
	}
	if array, err = gadgets.ArraySet(v.cs, v.condition(), array, index, elem); err != nil {
		return err
	}
	for i, s := range array {
		if err := v.data.Set(addr+i, ValueCell(s)); err != nil {
			return err
		}
	}
	return nil
}

func (v *VM) execBinary(op bytecode.Opcode) error {
	b, err := v.popValue()
	if err != nil {
		return err
	}
	a, err := v.popValue()
	if err != nil {
		return err
	}
	cs, cond := v.cs, v.condition()
	var r gadgets.Scalar
	switch op {
	case bytecode.OpAdd:
		r, err = gadgets.Add(cs, cond, a, b)
	case bytecode.OpSub:
		r, err = gadgets.Sub(cs, cond, a, b)
	case bytecode.OpMul:
		r, err = gadgets.Mul(cs, cond, a, b)
	case bytecode.OpDiv:
		r, err = gadgets.Div(cs, cond, a, b)
	case bytecode.OpRem:
		r, err = gadgets.Rem(cs, cond, a, b)
	case bytecode.OpAnd:
		r, err = gadgets.And(cs, a, b)
	case bytecode.OpOr:
		r, err = gadgets.Or(cs, a, b)
	case bytecode.OpXor:
		r, err = gadgets.Xor(cs, a, b)
	case bytecode.OpLt:
		r, err = gadgets.Lt(cs, a, b)
	case bytecode.OpLe:
		r, err = gadgets.Le(cs, a, b)
	case bytecode.OpEq:
		r, err = gadgets.Eq(cs, a, b)
	case bytecode.OpNe:
		r, err = gadgets.Ne(cs, a, b)
	case bytecode.OpGe:
		r, err = gadgets.Ge(cs, a, b)
	case bytecode.OpGt:
		r, err = gadgets.Gt(cs, a, b)
	case bytecode.OpBitAnd:
		r, err = gadgets.BitAnd(cs, a, b)
	case bytecode.OpBitOr:
		r, err = gadgets.BitOr(cs, a, b)
	case bytecode.OpBitXor:
		r, err = gadgets.BitXor(cs, a, b)
	case bytecode.OpBitShiftLeft:
		r, err = gadgets.BitShiftLeft(cs, a, b)
	case bytecode.OpBitShiftRight:
		r, err = gadgets.BitShiftRight(cs, a, b)
	default:
		return fmt.Errorf("%w: %s is not a binary operation", ErrMalformedBytecode, op)
	}
	if err != nil {
		return err
	}
	return v.stack.Push(ValueCell(r))
}

func (v *VM) execUnary(op bytecode.Opcode) error {
	a, err := v.popValue()
	if err != nil {
		return err
	}
	var r gadgets.Scalar
	switch op {
	case bytecode.OpNeg:
		r, err = gadgets.Neg(v.cs, v.condition(), a)
	case bytecode.OpNot:
		if err = requireBool(a); err == nil {
			r = gadgets.Not(a)
		}
	case bytecode.OpBitNot:
		r, err = gadgets.BitNot(a)
	default:
		return fmt.Errorf("%w: %s is not a unary operation", ErrMalformedBytecode, op)
	}
	if err != nil {
		return err
	}
	return v.stack.Push(ValueCell(r))
}

func requireBool(s gadgets.Scalar) error {
	if !s.Type().IsBool() {
		return fmt.Errorf("%w: expected bool, got %s", gadgets.ErrTypeMismatch, s.Type())
	}
	return nil
}
