package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/zvm/zvm/bytecode"
	"github.com/ethereum-optimism/zvm/zvm/gadgets"
	"github.com/ethereum-optimism/zvm/zvm/r1cs"
)

// VM replays a program once against a constraint system.
type VM struct {
	program *bytecode.Program
	cfg     *Config
	log     log.Logger
	cs      *r1cs.System

	stack      *EvaluationStack
	data       *DataStack
	frames     []*Frame
	conditions []gadgets.Scalar

	pc       int
	steps    uint64
	location Location

	contract  *Contract
	transfers []Transfer
	mutable   bool

	done       bool
	outputSize int
	outputs    []gadgets.Scalar
}

func New(program *bytecode.Program, cs *r1cs.System, cfg *Config) *VM {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &VM{
		program:    program,
		cfg:        cfg,
		log:        cfg.logger(),
		cs:         cs,
		stack:      NewEvaluationStack(cfg.MaxStackSize),
		data:       NewDataStack(),
		conditions: []gadgets.Scalar{gadgets.ConstantBool(true)},
	}
}

// Start enters the entry function with the given argument cells.
func (v *VM) Start(entry *bytecode.Entry, args []Cell) error {
	fn, ok := v.program.FunctionAt(entry.Address)
	if !ok {
		return fmt.Errorf("%w: entry %q", ErrInvalidAddress, entry.Name)
	}
	if len(args) != fn.InputSize {
		return fmt.Errorf("%w: %s takes %d slots, got %d", ErrArityMismatch, fn.Name, fn.InputSize, len(args))
	}
	v.mutable = entry.Mutable
	v.outputSize = fn.OutputSize
	return v.enter(fn, args, -1)
}

// Run steps until the entry function returns or a program exit.
func (v *VM) Run() error {
	for !v.done {
		if err := v.Step(); err != nil {
			return err
		}
	}
	v.log.Debug("Execution finished", "steps", v.steps, "constraints", len(v.cs.Constraints()))
	return nil
}

// Attach makes c the contract whose final root is exposed.
func (v *VM) Attach(c *Contract) {
	v.contract = c
}

func (v *VM) Done() bool {
	return v.done
}

func (v *VM) Outputs() []gadgets.Scalar {
	return v.outputs
}

func (v *VM) Transfers() []Transfer {
	return v.transfers
}

func (v *VM) Steps() uint64 {
	return v.steps
}

// Step executes the instruction at the program counter.
func (v *VM) Step() (outErr error) {
	if v.done {
		return nil
	}
	pc := v.pc
	if pc < 0 || pc >= len(v.program.Instructions) {
		return &RuntimeError{Address: pc, Location: v.location, Err: fmt.Errorf("%w: program counter %d", ErrInvalidAddress, pc)}
	}
	insn := v.program.Instructions[pc]
	defer func() {
		if r := recover(); r != nil {
			outErr = fmt.Errorf("%w: panic: %v", ErrConstraintSystem, r)
		}
		if outErr != nil {
			outErr = &RuntimeError{Address: pc, Instruction: insn, Location: v.location, Err: categorize(outErr)}
		}
	}()
	v.pc++
	if err := v.execute(insn); err != nil {
		return err
	}
	if err := v.cs.Unsatisfied(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsatisfied, err)
	}
	v.steps++
	return nil
}

func (v *VM) execute(insn bytecode.Instruction) error {
	switch insn.Op {
	case bytecode.OpNoop:
		return nil
	case bytecode.OpPush:
		s, err := gadgets.Constant(insn.Value, insn.Type)
		if err != nil {
			return err
		}
		return v.stack.Push(ValueCell(s))
	case bytecode.OpPop:
		n := insn.Count
		if n == 0 {
			n = 1
		}
		_, err := v.popCells(n)
		return err

	case bytecode.OpLoad, bytecode.OpLoadSequence, bytecode.OpLoadGlobal, bytecode.OpLoadSequenceGlobal:
		return v.execLoad(insn)
	case bytecode.OpStore, bytecode.OpStoreSequence, bytecode.OpStoreGlobal, bytecode.OpStoreSequenceGlobal:
		return v.execStore(insn)
	case bytecode.OpLoadByIndex, bytecode.OpLoadSequenceByIndex:
		return v.execLoadByIndex(insn)
	case bytecode.OpStoreByIndex, bytecode.OpStoreSequenceByIndex:
		return v.execStoreByIndex(insn)

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpRem,
		bytecode.OpAnd, bytecode.OpOr, bytecode.OpXor,
		bytecode.OpLt, bytecode.OpLe, bytecode.OpEq, bytecode.OpNe, bytecode.OpGe, bytecode.OpGt,
		bytecode.OpBitAnd, bytecode.OpBitOr, bytecode.OpBitXor, bytecode.OpBitShiftLeft, bytecode.OpBitShiftRight:
		return v.execBinary(insn.Op)
	case bytecode.OpNeg, bytecode.OpNot, bytecode.OpBitNot:
		return v.execUnary(insn.Op)
	case bytecode.OpCast:
		a, err := v.popValue()
		if err != nil {
			return err
		}
		r, err := gadgets.Cast(v.cs, v.condition(), a, insn.Type)
		if err != nil {
			return err
		}
		return v.stack.Push(ValueCell(r))

	case bytecode.OpIf:
		return v.execIf()
	case bytecode.OpElse:
		return v.execElse()
	case bytecode.OpEndIf:
		return v.execEndIf()
	case bytecode.OpLoopBegin:
		return v.execLoopBegin(insn)
	case bytecode.OpLoopEnd:
		return v.execLoopEnd()
	case bytecode.OpCall:
		return v.execCall(insn)
	case bytecode.OpReturn:
		return v.execReturn(insn)
	case bytecode.OpExit:
		return v.execExit(insn)

	case bytecode.OpAssert:
		return v.execAssert(insn)
	case bytecode.OpDbg:
		return v.execDbg(insn)
	case bytecode.OpCallBuiltin:
		return v.execBuiltin(insn)

	case bytecode.OpFileMarker:
		v.location = Location{File: insn.Name}
		return nil
	case bytecode.OpFunctionMarker:
		v.location.Function = insn.Name
		return nil
	case bytecode.OpLineMarker:
		v.location.Line = insn.Marker
		return nil
	case bytecode.OpColumnMarker:
		v.location.Column = insn.Marker
		return nil

	case bytecode.OpStorageLoad, bytecode.OpStorageStore, bytecode.OpTransfer:
		if v.contract == nil {
			return fmt.Errorf("%w: %s", ErrNotContract, insn.Op)
		}
		return v.execContract(insn)
	}
	return fmt.Errorf("%w: unknown opcode %s", ErrMalformedBytecode, insn.Op)
}

func (v *VM) execContract(insn bytecode.Instruction) error {
	switch insn.Op {
	case bytecode.OpStorageLoad:
		return v.execStorageLoad(insn)
	case bytecode.OpStorageStore:
		return v.execStorageStore(insn)
	case bytecode.OpTransfer:
		return v.execTransfer()
	}
	return fmt.Errorf("%w: unknown opcode %s", ErrMalformedBytecode, insn.Op)
}

func (v *VM) popCells(n int) ([]Cell, error) {
	out := make([]Cell, n)
	for i := n - 1; i >= 0; i-- {
		c, err := v.stack.Pop()
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func (v *VM) pushCells(cells []Cell) error {
	for _, c := range cells {
		if err := v.stack.Push(c); err != nil {
			return err
		}
	}
	return nil
}

func (v *VM) popValue() (gadgets.Scalar, error) {
	c, err := v.stack.Pop()
	if err != nil {
		return gadgets.Scalar{}, err
	}
	return c.Value()
}

func (v *VM) popValues(n int) ([]gadgets.Scalar, error) {
	cells, err := v.popCells(n)
	if err != nil {
		return nil, err
	}
	return values(cells)
}

func (v *VM) pushValues(scalars []gadgets.Scalar) error {
	for _, s := range scalars {
		if err := v.stack.Push(ValueCell(s)); err != nil {
			return err
		}
	}
	return nil
}

func (v *VM) popBool() (gadgets.Scalar, error) {
	s, err := v.popValue()
	if err != nil {
		return gadgets.Scalar{}, err
	}
	return s, requireBool(s)
}

func (v *VM) popContract() (*Contract, error) {
	c, err := v.stack.Pop()
	if err != nil {
		return nil, err
	}
	return c.Contract()
}

func values(cells []Cell) ([]gadgets.Scalar, error) {
	out := make([]gadgets.Scalar, len(cells))
	for i, c := range cells {
		s, err := c.Value()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// finish exposes the results of the entry function as public inputs.
func (v *VM) finish(results []Cell) error {
	if len(results) != v.outputSize {
		return fmt.Errorf("%w: entry returns %d slots, got %d", ErrArityMismatch, v.outputSize, len(results))
	}
	scalars, err := values(results)
	if err != nil {
		return err
	}
	v.outputs = make([]gadgets.Scalar, len(scalars))
	for i, s := range scalars {
		if v.outputs[i], err = gadgets.Expose(v.cs, s); err != nil {
			return err
		}
	}
	if v.contract != nil {
		if _, err := gadgets.Expose(v.cs, v.contract.Root()); err != nil {
			return err
		}
	}
	v.done = true
	return nil
}

func (v *VM) execAssert(insn bytecode.Instruction) error {
	value, err := v.popBool()
	if err != nil {
		return err
	}
	if err := gadgets.Assert(v.cs, v.condition(), value); err != nil {
		if errors.Is(err, gadgets.ErrAssertionFailed) {
			return &AssertionError{Message: insn.Message, Location: v.location}
		}
		return err
	}
	return nil
}

func (v *VM) execDbg(insn bytecode.Instruction) error {
	args, err := v.popValues(insn.ArgCount)
	if err != nil {
		return err
	}
	if !v.cs.HasWitness() || !v.condition().IsTrue() {
		return nil
	}
	msg := insn.Format
	for _, a := range args {
		msg = strings.Replace(msg, "{}", formatValue(a), 1)
	}
	v.log.Info(msg, "location", v.location.String())
	return nil
}

func formatValue(s gadgets.Scalar) string {
	v := s.BigInt()
	if v == nil {
		return "?"
	}
	if s.Type().IsBool() {
		return fmt.Sprint(v.Sign() != 0)
	}
	return v.String()
}

func (v *VM) execStorageLoad(insn bytecode.Instruction) error {
	index, err := v.popStorageIndex()
	if err != nil {
		return err
	}
	c, err := v.popContract()
	if err != nil {
		return err
	}
	loaded, err := c.Load(v.cs, index, insn.Size)
	if err != nil {
		return err
	}
	return v.pushValues(loaded)
}

func (v *VM) execStorageStore(insn bytecode.Instruction) error {
	if !v.mutable {
		return fmt.Errorf("%w: storage write from an immutable method", ErrMalformedBytecode)
	}
	stored, err := v.popValues(insn.Size)
	if err != nil {
		return err
	}
	index, err := v.popStorageIndex()
	if err != nil {
		return err
	}
	c, err := v.popContract()
	if err != nil {
		return err
	}
	return c.Store(v.cs, v.condition(), index, stored)
}

func (v *VM) popStorageIndex() (uint64, error) {
	s, err := v.popValue()
	if err != nil {
		return 0, err
	}
	index, ok := s.ConstantUint64()
	if !ok {
		return 0, ErrNonConstantIndex
	}
	return index, nil
}

func (v *VM) execTransfer() error {
	amount, err := v.popValue()
	if err != nil {
		return err
	}
	token, err := v.popValue()
	if err != nil {
		return err
	}
	recipient, err := v.popValue()
	if err != nil {
		return err
	}
	if _, err := v.popContract(); err != nil {
		return err
	}
	if err := requireAddress(recipient, "recipient"); err != nil {
		return err
	}
	if err := requireAddress(token, "token"); err != nil {
		return err
	}
	if !v.cs.HasWitness() || !v.condition().IsTrue() {
		return nil
	}
	t, err := newTransfer(recipient, token, amount)
	if err != nil {
		return err
	}
	v.transfers = append(v.transfers, t)
	return nil
}
