package vm

import (
	"fmt"

	"github.com/ethereum-optimism/zvm/zvm/bytecode"
	"github.com/ethereum-optimism/zvm/zvm/gadgets"
)

// block is an open conditional. cond is the popped branch boolean, which
// selects the arm results when the block closes.
type block struct {
	cond   gadgets.Scalar
	inElse bool
}

type loop struct {
	start     int
	remaining int
}

// Frame is one call activation.
type Frame struct {
	function       *bytecode.Function
	base           int
	returnAddress  int
	conditionDepth int
	blocks         []block
	loops          []loop
}

func (v *VM) frame() *Frame {
	return v.frames[len(v.frames)-1]
}

// condition is the conjunction of every enclosing branch condition.
func (v *VM) condition() gadgets.Scalar {
	return v.conditions[len(v.conditions)-1]
}

func (v *VM) popCondition() {
	v.conditions = v.conditions[:len(v.conditions)-1]
}

func (v *VM) execIf() error {
	c, err := v.popBool()
	if err != nil {
		return err
	}
	next, err := gadgets.And(v.cs, v.condition(), c)
	if err != nil {
		return err
	}
	v.conditions = append(v.conditions, next)
	f := v.frame()
	f.blocks = append(f.blocks, block{cond: c})
	v.stack.fork()
	v.data.fork()
	return nil
}

func (v *VM) execElse() error {
	f := v.frame()
	if len(f.blocks) == 0 || f.blocks[len(f.blocks)-1].inElse {
		return fmt.Errorf("%w: else without if", ErrUnbalancedBlocks)
	}
	b := &f.blocks[len(f.blocks)-1]
	b.inElse = true
	v.popCondition()
	next, err := gadgets.And(v.cs, v.condition(), gadgets.Not(b.cond))
	if err != nil {
		return err
	}
	v.conditions = append(v.conditions, next)
	if err := v.data.switchBranch(); err != nil {
		return err
	}
	v.stack.fork()
	return nil
}

func (v *VM) execEndIf() error {
	f := v.frame()
	if len(f.blocks) == 0 {
		return fmt.Errorf("%w: end_if without if", ErrUnbalancedBlocks)
	}
	b := f.blocks[len(f.blocks)-1]
	f.blocks = f.blocks[:len(f.blocks)-1]
	v.popCondition()
	if b.inElse {
		if err := v.stack.merge(v.cs, b.cond); err != nil {
			return err
		}
	} else if err := v.stack.revert(); err != nil {
		return err
	}
	return v.data.merge(v.cs, b.cond)
}

func (v *VM) execLoopBegin(insn bytecode.Instruction) error {
	if insn.Iterations < 0 {
		return fmt.Errorf("%w: negative loop count", ErrMalformedBytecode)
	}
	if insn.Iterations == 0 {
		end, err := v.matchingLoopEnd(v.pc)
		if err != nil {
			return err
		}
		v.pc = end + 1
		return nil
	}
	f := v.frame()
	f.loops = append(f.loops, loop{start: v.pc, remaining: insn.Iterations})
	return nil
}

// matchingLoopEnd finds the loop_end closing the body starting at from.
func (v *VM) matchingLoopEnd(from int) (int, error) {
	depth := 0
	for pc := from; pc < len(v.program.Instructions); pc++ {
		switch v.program.Instructions[pc].Op {
		case bytecode.OpLoopBegin:
			depth++
		case bytecode.OpLoopEnd:
			if depth == 0 {
				return pc, nil
			}
			depth--
		}
	}
	return 0, fmt.Errorf("%w: loop without end", ErrUnbalancedBlocks)
}

func (v *VM) execLoopEnd() error {
	f := v.frame()
	if len(f.loops) == 0 {
		return fmt.Errorf("%w: loop_end without loop_begin", ErrUnbalancedBlocks)
	}
	l := &f.loops[len(f.loops)-1]
	l.remaining--
	if l.remaining > 0 {
		v.pc = l.start
		return nil
	}
	f.loops = f.loops[:len(f.loops)-1]
	return nil
}

// enter pushes a frame for fn and moves the arguments to its slots.
func (v *VM) enter(fn *bytecode.Function, args []Cell, returnAddress int) error {
	if len(v.frames) >= v.cfg.MaxCallDepth {
		return fmt.Errorf("%w: %d frames", ErrCallDepth, len(v.frames))
	}
	base := v.data.Len()
	if base < v.program.GlobalSize {
		base = v.program.GlobalSize
	}
	for i, c := range args {
		if err := v.data.Set(base+i, c); err != nil {
			return err
		}
	}
	v.frames = append(v.frames, &Frame{
		function:       fn,
		base:           base,
		returnAddress:  returnAddress,
		conditionDepth: len(v.conditions),
	})
	v.pc = fn.Address
	return nil
}

func (v *VM) execCall(insn bytecode.Instruction) error {
	fn, ok := v.program.FunctionAt(insn.Address)
	if !ok {
		return fmt.Errorf("%w: call to %d", ErrInvalidAddress, insn.Address)
	}
	if insn.InputSize != fn.InputSize {
		return fmt.Errorf("%w: %s takes %d slots, call passes %d", ErrArityMismatch, fn.Name, fn.InputSize, insn.InputSize)
	}
	args, err := v.popCells(insn.InputSize)
	if err != nil {
		return err
	}
	return v.enter(fn, args, v.pc)
}

func (v *VM) execReturn(insn bytecode.Instruction) error {
	f := v.frame()
	if insn.OutputSize != f.function.OutputSize {
		return fmt.Errorf("%w: %s returns %d slots, return passes %d", ErrArityMismatch, f.function.Name, f.function.OutputSize, insn.OutputSize)
	}
	if len(f.blocks) != 0 || len(f.loops) != 0 || len(v.conditions) != f.conditionDepth {
		return fmt.Errorf("%w: return from %s inside a block", ErrUnbalancedBlocks, f.function.Name)
	}
	results, err := v.popCells(insn.OutputSize)
	if err != nil {
		return err
	}
	v.data.truncate(f.base)
	v.frames = v.frames[:len(v.frames)-1]
	if len(v.frames) == 0 {
		return v.finish(results)
	}
	v.pc = f.returnAddress
	return v.pushCells(results)
}

func (v *VM) execExit(insn bytecode.Instruction) error {
	results, err := v.popCells(insn.OutputSize)
	if err != nil {
		return err
	}
	return v.finish(results)
}
