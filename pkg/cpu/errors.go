package cpu

import "fmt"

// DecodeError reports an unrecognized opcode.
type DecodeError struct {
	Op Opcode
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid opcode %#02x", uint8(e.Op))
}

// AddressError reports a memory access or branch target at or beyond the
// modeled space. Limit is the length of the space the address missed:
// the memory size for loads and stores, the program length for branches.
type AddressError struct {
	Addr  uint16
	Limit int
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("address %#04x outside modeled space (limit %#04x)", e.Addr, e.Limit)
}

// StackOverflowError reports a CALL at the configured maximum depth.
type StackOverflowError struct {
	Depth int
}

func (e *StackOverflowError) Error() string {
	return fmt.Sprintf("call stack overflow at depth %d", e.Depth)
}

// StackUnderflowError reports a RET with no matching CALL.
type StackUnderflowError struct{}

func (e *StackUnderflowError) Error() string {
	return "return with empty call stack"
}

// Fault is the fatal-error wrapper surfaced by Step and Run: the typed
// cause plus the PC and register/flag snapshot at the failure point.
// The machine halts and does not recover; errors.As reaches the cause.
type Fault struct {
	Snapshot
	Err error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault at pc=%#04x: %v", f.PC, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}
