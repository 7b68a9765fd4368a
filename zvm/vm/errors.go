package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum-optimism/zvm/zvm/bytecode"
	"github.com/ethereum-optimism/zvm/zvm/gadgets"
	"github.com/ethereum-optimism/zvm/zvm/storage"
)

// Error categories. Every error returned by an invocation matches exactly one of them.
var (
	ErrMalformedBytecode = errors.New("malformed bytecode")
	ErrType              = errors.New("type error")
	ErrAssertion         = errors.New("assertion failed")
	ErrStorage           = errors.New("storage error")
	ErrConstraintSystem  = errors.New("constraint system error")
)

var (
	ErrStackUnderflow       = fmt.Errorf("%w: stack underflow", ErrMalformedBytecode)
	ErrStackOverflow        = fmt.Errorf("%w: stack overflow", ErrMalformedBytecode)
	ErrCallDepth            = fmt.Errorf("%w: call depth exceeded", ErrMalformedBytecode)
	ErrUnexpectedContract   = fmt.Errorf("%w: expected a value, got a contract", ErrMalformedBytecode)
	ErrExpectedContract     = fmt.Errorf("%w: expected a contract, got a value", ErrMalformedBytecode)
	ErrArityMismatch        = fmt.Errorf("%w: arity mismatch", ErrMalformedBytecode)
	ErrUnbalancedBlocks     = fmt.Errorf("%w: unbalanced blocks", ErrMalformedBytecode)
	ErrBranchMismatch       = fmt.Errorf("%w: branch stacks do not match", ErrMalformedBytecode)
	ErrUninitializedMemory  = fmt.Errorf("%w: read of uninitialized memory", ErrMalformedBytecode)
	ErrInvalidAddress       = fmt.Errorf("%w: invalid address", ErrMalformedBytecode)
	ErrNotContract          = fmt.Errorf("%w: program is not a contract", ErrMalformedBytecode)
	ErrNonConstantIndex     = fmt.Errorf("%w: storage index is not a constant", ErrMalformedBytecode)
	ErrRootMismatch         = fmt.Errorf("%w: storage root diverged from the circuit", ErrConstraintSystem)
	ErrUnsatisfied          = fmt.Errorf("%w: constraints not satisfied", ErrConstraintSystem)
)

var categories = []error{ErrMalformedBytecode, ErrType, ErrAssertion, ErrStorage, ErrConstraintSystem}

// categorize tags an error coming out of a lower layer with its category.
func categorize(err error) error {
	for _, c := range categories {
		if errors.Is(err, c) {
			return err
		}
	}
	switch {
	case errors.Is(err, gadgets.ErrTypeMismatch),
		errors.Is(err, gadgets.ErrValueOverflow),
		errors.Is(err, gadgets.ErrDivisionByZero),
		errors.Is(err, gadgets.ErrIndexOutOfBounds),
		errors.Is(err, bytecode.ErrValueOverflow),
		errors.Is(err, bytecode.ErrInvalidValue),
		errors.Is(err, bytecode.ErrInvalidType):
		return fmt.Errorf("%w: %w", ErrType, err)
	case errors.Is(err, storage.ErrIndexOutOfBounds),
		errors.Is(err, storage.ErrInvalidLeaf):
		return fmt.Errorf("%w: %w", ErrStorage, err)
	case errors.Is(err, bytecode.ErrInvalidProgram):
		return fmt.Errorf("%w: %w", ErrMalformedBytecode, err)
	}
	// r1cs failures and anything unexpected
	return fmt.Errorf("%w: %w", ErrConstraintSystem, err)
}

// Location is the last source position announced by debug markers.
type Location struct {
	File     string `json:"file,omitempty"`
	Function string `json:"function,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
}

func (l Location) IsZero() bool {
	return l == Location{}
}

func (l Location) String() string {
	var sb strings.Builder
	sb.WriteString(l.File)
	if l.Line > 0 {
		fmt.Fprintf(&sb, ":%d", l.Line)
		if l.Column > 0 {
			fmt.Fprintf(&sb, ":%d", l.Column)
		}
	}
	if l.Function != "" {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "in %s", l.Function)
	}
	return sb.String()
}

// AssertionError is a failed assert of the program itself.
type AssertionError struct {
	Message  string
	Location Location
}

func (e *AssertionError) Error() string {
	msg := "assertion failed"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if !e.Location.IsZero() {
		msg += " at " + e.Location.String()
	}
	return msg
}

func (e *AssertionError) Is(target error) bool {
	return target == ErrAssertion
}

// RuntimeError wraps a failure with the instruction that caused it.
type RuntimeError struct {
	Address     int
	Instruction bytecode.Instruction
	Location    Location
	Err         error
}

func (e *RuntimeError) Error() string {
	if e.Location.IsZero() {
		return fmt.Sprintf("instruction %d (%s): %v", e.Address, e.Instruction, e.Err)
	}
	return fmt.Sprintf("instruction %d (%s) at %s: %v", e.Address, e.Instruction, e.Location, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
