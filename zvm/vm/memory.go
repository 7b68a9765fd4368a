package vm

import (
	"fmt"
	"sort"

	"github.com/ethereum-optimism/zvm/zvm/gadgets"
	"github.com/ethereum-optimism/zvm/zvm/r1cs"
)

type cellDiff struct {
	old *Cell // nil if the cell was not written before the branch
	new Cell
}

type branchDelta map[int]*cellDiff

func (d branchDelta) addresses() []int {
	out := make([]int, 0, len(d))
	for addr := range d {
		out = append(out, addr)
	}
	sort.Ints(out)
	return out
}

type dataBranch struct {
	then   branchDelta
	els    branchDelta
	inElse bool
}

func (b *dataBranch) active() branchDelta {
	if b.inElse {
		return b.els
	}
	return b.then
}

// DataStack is the addressable memory of globals and frames. Writes inside a
// branch are recorded so the arms can be merged when the branch ends.
type DataStack struct {
	memory   []*Cell
	branches []*dataBranch
}

func NewDataStack() *DataStack {
	return &DataStack{}
}

func (d *DataStack) Len() int {
	return len(d.memory)
}

func (d *DataStack) Get(addr int) (Cell, error) {
	if addr < 0 || addr >= len(d.memory) || d.memory[addr] == nil {
		return Cell{}, fmt.Errorf("%w: address %d", ErrUninitializedMemory, addr)
	}
	return *d.memory[addr], nil
}

func (d *DataStack) current(addr int) *Cell {
	if addr >= len(d.memory) || d.memory[addr] == nil {
		return nil
	}
	c := *d.memory[addr]
	return &c
}

func (d *DataStack) put(addr int, c *Cell) {
	for addr >= len(d.memory) {
		d.memory = append(d.memory, nil)
	}
	d.memory[addr] = c
}

func (d *DataStack) Set(addr int, c Cell) error {
	if addr < 0 {
		return fmt.Errorf("%w: address %d", ErrInvalidAddress, addr)
	}
	if n := len(d.branches); n > 0 {
		delta := d.branches[n-1].active()
		diff, ok := delta[addr]
		if !ok {
			diff = &cellDiff{old: d.current(addr)}
			delta[addr] = diff
		}
		diff.new = c
	}
	d.put(addr, &c)
	return nil
}

func (d *DataStack) fork() {
	d.branches = append(d.branches, &dataBranch{then: branchDelta{}})
}

// switchBranch undoes the writes of the then arm before the else arm runs.
func (d *DataStack) switchBranch() error {
	n := len(d.branches)
	if n == 0 || d.branches[n-1].inElse {
		return fmt.Errorf("%w: else without branch", ErrUnbalancedBlocks)
	}
	b := d.branches[n-1]
	for addr, diff := range b.then {
		d.put(addr, diff.old)
	}
	b.inElse = true
	b.els = branchDelta{}
	return nil
}

// merge closes the innermost branch: every cell written by either arm becomes
// select(cond, then, else), recorded as a write of the enclosing branch.
func (d *DataStack) merge(cs *r1cs.System, cond gadgets.Scalar) error {
	n := len(d.branches)
	if n == 0 {
		return fmt.Errorf("%w: end_if without branch", ErrUnbalancedBlocks)
	}
	b := d.branches[n-1]
	d.branches = d.branches[:n-1]

	// restore the state before the branch, then write the merged cells
	written := make(map[int]*Cell)
	for addr, diff := range b.active() {
		d.put(addr, diff.old)
	}
	union := branchDelta{}
	for addr, diff := range b.then {
		union[addr] = diff
	}
	for addr, diff := range b.els {
		union[addr] = diff
	}
	for _, addr := range union.addresses() {
		old := union[addr].old
		then, els := old, old
		if diff, ok := b.then[addr]; ok {
			then = &diff.new
		}
		if diff, ok := b.els[addr]; ok {
			els = &diff.new
		}
		switch {
		case then == nil:
			written[addr] = els
		case els == nil:
			written[addr] = then
		default:
			merged, err := selectCell(cs, cond, *then, *els)
			if err != nil {
				return fmt.Errorf("address %d: %w", addr, err)
			}
			written[addr] = &merged
		}
	}
	for _, addr := range union.addresses() {
		if err := d.Set(addr, *written[addr]); err != nil {
			return err
		}
	}
	return nil
}

// truncate drops every cell from base up, used when a frame returns.
func (d *DataStack) truncate(base int) {
	if base < len(d.memory) {
		d.memory = d.memory[:base]
	}
	for _, b := range d.branches {
		for _, delta := range []branchDelta{b.then, b.els} {
			for addr := range delta {
				if addr >= base {
					delete(delta, addr)
				}
			}
		}
	}
}
