package vm

import (
	"fmt"

	"github.com/ethereum-optimism/zvm/zvm/gadgets"
	"github.com/ethereum-optimism/zvm/zvm/r1cs"
)

// Cell is a stack slot: a scalar or a contract instance.
type Cell struct {
	value    gadgets.Scalar
	contract *Contract
}

func ValueCell(s gadgets.Scalar) Cell {
	return Cell{value: s}
}

func ContractCell(c *Contract) Cell {
	return Cell{contract: c}
}

func (c Cell) IsContract() bool {
	return c.contract != nil
}

func (c Cell) Value() (gadgets.Scalar, error) {
	if c.contract != nil {
		return gadgets.Scalar{}, ErrUnexpectedContract
	}
	return c.value, nil
}

func (c Cell) Contract() (*Contract, error) {
	if c.contract == nil {
		return nil, ErrExpectedContract
	}
	return c.contract, nil
}

func (c Cell) String() string {
	if c.contract != nil {
		return "contract"
	}
	return c.value.String()
}

// selectCell merges two branch results.
func selectCell(cs *r1cs.System, cond gadgets.Scalar, a, b Cell) (Cell, error) {
	if a.IsContract() || b.IsContract() {
		if a.contract != b.contract {
			return Cell{}, fmt.Errorf("%w: branches hold different contracts", ErrBranchMismatch)
		}
		return a, nil
	}
	s, err := gadgets.Select(cs, cond, a.value, b.value)
	if err != nil {
		return Cell{}, err
	}
	return ValueCell(s), nil
}

// EvaluationStack is the operand stack. It is split in segments, one per open
// branch arm, so that each arm starts from the same stack shape.
type EvaluationStack struct {
	segments [][]Cell
	size     int
	limit    int
}

func NewEvaluationStack(limit int) *EvaluationStack {
	return &EvaluationStack{segments: make([][]Cell, 1), limit: limit}
}

func (s *EvaluationStack) Push(c Cell) error {
	if s.limit > 0 && s.size >= s.limit {
		return ErrStackOverflow
	}
	top := len(s.segments) - 1
	s.segments[top] = append(s.segments[top], c)
	s.size++
	return nil
}

func (s *EvaluationStack) Pop() (Cell, error) {
	top := len(s.segments) - 1
	seg := s.segments[top]
	if len(seg) == 0 {
		return Cell{}, ErrStackUnderflow
	}
	c := seg[len(seg)-1]
	s.segments[top] = seg[:len(seg)-1]
	s.size--
	return c, nil
}

// Len is the number of cells of the current segment.
func (s *EvaluationStack) Len() int {
	return len(s.segments[len(s.segments)-1])
}

func (s *EvaluationStack) fork() {
	s.segments = append(s.segments, nil)
}

func (s *EvaluationStack) popSegment() []Cell {
	top := len(s.segments) - 1
	seg := s.segments[top]
	s.segments = s.segments[:top]
	s.size -= len(seg)
	return seg
}

// merge replaces the two arm segments of a branch with their selection.
func (s *EvaluationStack) merge(cs *r1cs.System, cond gadgets.Scalar) error {
	if len(s.segments) < 3 {
		return fmt.Errorf("%w: no branch to merge", ErrUnbalancedBlocks)
	}
	els := s.popSegment()
	then := s.popSegment()
	if len(then) != len(els) {
		return fmt.Errorf("%w: then arm left %d cells, else arm %d", ErrBranchMismatch, len(then), len(els))
	}
	for i := range then {
		c, err := selectCell(cs, cond, then[i], els[i])
		if err != nil {
			return err
		}
		if err := s.Push(c); err != nil {
			return err
		}
	}
	return nil
}

// revert drops the segment of a branch without else arm. It must be empty.
func (s *EvaluationStack) revert() error {
	if len(s.segments) < 2 {
		return fmt.Errorf("%w: no branch to revert", ErrUnbalancedBlocks)
	}
	if seg := s.popSegment(); len(seg) != 0 {
		return fmt.Errorf("%w: then arm without else left %d cells", ErrBranchMismatch, len(seg))
	}
	return nil
}
