// Package cpu implements the STaRbox instruction-set virtual machine: an
// 8-bit register file, Zero/Negative/Carry flags, a flat byte-addressable
// memory with a memory-mapped display surface, a bounded call stack and a
// deterministic single-step dispatcher. The package contains no rendering,
// parsing or I/O concerns; front ends observe the machine through the
// read accessors and the framebuffer decode helpers.
package cpu

import "sync/atomic"

// Opcode selects the operation of a decoded instruction.
type Opcode uint8

const (
	OpHALT     Opcode = 0x00
	OpMOVI     Opcode = 0x01
	OpMOV      Opcode = 0x02
	OpLOAD     Opcode = 0x03
	OpSTORE    Opcode = 0x04
	OpSTOREIND Opcode = 0x05
	OpADD      Opcode = 0x06
	OpSUB      Opcode = 0x07
	OpINC      Opcode = 0x08
	OpDEC      Opcode = 0x09
	OpCMPI     Opcode = 0x0A
	OpJMP      Opcode = 0x0B
	OpJZ       Opcode = 0x0C
	OpJNZ      Opcode = 0x0D
	OpJNN      Opcode = 0x0E
	OpJC       Opcode = 0x0F
	OpJNC      Opcode = 0x10
	OpCALL     Opcode = 0x11
	OpRET      Opcode = 0x12
)

var opcodeNames = map[Opcode]string{
	OpHALT:     "HALT",
	OpMOVI:     "MOVI",
	OpMOV:      "MOV",
	OpLOAD:     "LOAD",
	OpSTORE:    "STORE",
	OpSTOREIND: "STOREIND",
	OpADD:      "ADD",
	OpSUB:      "SUB",
	OpINC:      "INC",
	OpDEC:      "DEC",
	OpCMPI:     "CMPI",
	OpJMP:      "JMP",
	OpJZ:       "JZ",
	OpJNZ:      "JNZ",
	OpJNN:      "JNN",
	OpJC:       "JC",
	OpJNC:      "JNC",
	OpCALL:     "CALL",
	OpRET:      "RET",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "???"
}

// Register identifies one of the general-purpose 8-bit registers.
type Register uint8

const (
	R0 Register = 0
	R1 Register = 1
	R2 Register = 2
	// R3 and R4 double as the indirect address pair: STOREIND stores to
	// the memory address R3<<8 | R4.
	R3 Register = 3
	R4 Register = 4

	NumRegisters = 5

	// AddrHigh and AddrLow name the registers forming the indirect
	// address pair.
	AddrHigh = R3
	AddrLow  = R4
)

// Instruction is one decoded operation. Which operand fields are
// meaningful depends on Op; symbolic labels are already resolved to
// absolute instruction addresses by the loader (see pkg/program).
type Instruction struct {
	Op   Opcode
	Dst  Register // destination / compared / stored register
	Src  Register // source register for MOV, ADD, SUB
	Imm  uint8    // immediate for MOVI, CMPI
	Addr uint16   // absolute address for LOAD, STORE, jumps and CALL
}

const (
	// MemorySize is the default length of the modeled memory.
	MemorySize = 0x10000

	// DefaultMaxCallDepth bounds the call stack unless overridden.
	DefaultMaxCallDepth = 64
)

// Config holds construction-time parameters. Zero values select the
// defaults.
type Config struct {
	// MemorySize is the modeled memory length in bytes. Accesses at or
	// beyond it fault; there is no wraparound.
	MemorySize int
	// MaxCallDepth is the maximum number of nested CALLs.
	MaxCallDepth int
}

// CPU is one STaRbox machine instance. All mutable state of an execution
// lives in this struct; two instances share nothing.
type CPU struct {
	Regs [NumRegisters]uint8

	// PC addresses the next instruction in Program. One PC unit is one
	// decoded instruction; sequential fall-through is PC+1.
	PC uint16

	Z bool // last arithmetic result was zero
	N bool // bit 7 of the last arithmetic result
	C bool // unsigned carry out (ADD/INC) or borrow (SUB/DEC/CMPI)

	Memory []byte

	Program []Instruction

	Halted bool

	callStack []uint16
	maxDepth  int

	image []byte // initial memory contents, replayed by Reset

	fault *Fault // sticky after a fatal error

	stop atomic.Bool
}

// New creates a machine with the default configuration, ready to execute
// program from PC 0 over zeroed memory.
func New(program []Instruction) *CPU {
	return NewWithConfig(program, Config{})
}

// NewWithConfig creates a machine with explicit memory and call-stack
// bounds.
func NewWithConfig(program []Instruction, cfg Config) *CPU {
	memSize := cfg.MemorySize
	if memSize <= 0 {
		memSize = MemorySize
	}
	maxDepth := cfg.MaxCallDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxCallDepth
	}
	return &CPU{
		Memory:    make([]byte, memSize),
		Program:   program,
		callStack: make([]uint16, 0, maxDepth),
		maxDepth:  maxDepth,
	}
}

// LoadImage copies img into memory starting at address 0 and records it
// as the baseline that Reset restores.
func (c *CPU) LoadImage(img []byte) error {
	if len(img) > len(c.Memory) {
		return &AddressError{Addr: 0xFFFF, Limit: len(c.Memory)}
	}
	c.image = make([]byte, len(img))
	copy(c.image, img)
	clear(c.Memory)
	copy(c.Memory, c.image)
	return nil
}

// Reset restores registers, flags, PC, the call stack and memory to
// their post-construction state, replaying any loaded image. Replaying
// the same program for the same step count after Reset yields identical
// state.
func (c *CPU) Reset() {
	c.Regs = [NumRegisters]uint8{}
	c.PC = 0
	c.Z, c.N, c.C = false, false, false
	c.Halted = false
	c.callStack = c.callStack[:0]
	c.fault = nil
	c.stop.Store(false)
	clear(c.Memory)
	copy(c.Memory, c.image)
}

// reg returns a pointer to the named register. Out-of-range identifiers
// fall back to R0; the Register constants are the only intended values.
func (c *CPU) reg(r Register) *uint8 {
	if r < NumRegisters {
		return &c.Regs[r]
	}
	return &c.Regs[0] // Fallback
}

// ReadRegister returns the current value of r.
func (c *CPU) ReadRegister(r Register) uint8 {
	return *c.reg(r)
}

// Flags returns the Zero, Negative and Carry flags.
func (c *CPU) Flags() (z, n, carry bool) {
	return c.Z, c.N, c.C
}

// CallDepth reports the current number of pending returns.
func (c *CPU) CallDepth() int {
	return len(c.callStack)
}

// ReadMemory reads one byte. Addresses at or beyond the modeled memory
// are an error, never wraparound.
func (c *CPU) ReadMemory(addr uint16) (uint8, error) {
	if int(addr) >= len(c.Memory) {
		return 0, &AddressError{Addr: addr, Limit: len(c.Memory)}
	}
	return c.Memory[addr], nil
}

// WriteMemory writes one byte, with the same range contract as
// ReadMemory. Instruction stores and harness pokes share this path.
func (c *CPU) WriteMemory(addr uint16, val uint8) error {
	if int(addr) >= len(c.Memory) {
		return &AddressError{Addr: addr, Limit: len(c.Memory)}
	}
	c.Memory[addr] = val
	return nil
}

func (c *CPU) setZN(result uint8) {
	c.Z = result == 0
	c.N = (result & 0x80) != 0
}

// add computes (a+b) mod 256 and sets all three flags. Carry is the
// unsigned carry out of bit 7.
func (c *CPU) add(a, b uint8) uint8 {
	sum := uint16(a) + uint16(b)
	result := uint8(sum)
	c.C = sum > 0xFF
	c.setZN(result)
	return result
}

// sub computes (a-b) mod 256 and sets all three flags. Carry signals
// that a borrow occurred, so after CMPI a,imm the Carry flag reads as
// "a < imm" unsigned and JC takes the less-than branch.
func (c *CPU) sub(a, b uint8) uint8 {
	result := a - b
	c.C = a < b
	c.setZN(result)
	return result
}

// indirectAddr forms the effective address of STOREIND from the R3:R4
// register pair.
func (c *CPU) indirectAddr() uint16 {
	return uint16(c.Regs[AddrHigh])<<8 | uint16(c.Regs[AddrLow])
}

// branchTarget validates a jump or call destination against the program
// length.
func (c *CPU) branchTarget(addr uint16) (uint16, error) {
	if int(addr) >= len(c.Program) {
		return 0, &AddressError{Addr: addr, Limit: len(c.Program)}
	}
	return addr, nil
}

// MemWrite records one observable store performed by a step.
type MemWrite struct {
	Addr  uint16
	Value uint8
}

// StepResult describes the effect of a single executed instruction.
type StepResult struct {
	// PC is the program counter after the step.
	PC uint16
	// Op is the instruction that was executed.
	Op Opcode
	// Write is non-nil when the step stored a byte to memory.
	Write *MemWrite
}

// Step executes exactly one instruction. A fatal condition halts the
// machine and returns a *Fault carrying the PC and a register/flag
// snapshot at the failure point; the same fault is returned from all
// future calls. Stepping a cleanly halted machine is a no-op.
func (c *CPU) Step() (StepResult, error) {
	if c.fault != nil {
		return StepResult{PC: c.PC}, c.fault
	}
	if c.Halted {
		return StepResult{PC: c.PC}, nil
	}

	at := c.PC
	if int(at) >= len(c.Program) {
		return StepResult{PC: at}, c.fail(at, &AddressError{Addr: at, Limit: len(c.Program)})
	}
	in := c.Program[at]
	c.PC++

	res := StepResult{Op: in.Op}

	switch in.Op {
	case OpHALT:
		c.Halted = true

	case OpMOVI:
		*c.reg(in.Dst) = in.Imm

	case OpMOV:
		*c.reg(in.Dst) = *c.reg(in.Src)

	case OpLOAD:
		val, err := c.ReadMemory(in.Addr)
		if err != nil {
			return res, c.fail(at, err)
		}
		*c.reg(in.Dst) = val

	case OpSTORE:
		val := *c.reg(in.Dst)
		if err := c.WriteMemory(in.Addr, val); err != nil {
			return res, c.fail(at, err)
		}
		res.Write = &MemWrite{Addr: in.Addr, Value: val}

	case OpSTOREIND:
		addr := c.indirectAddr()
		val := *c.reg(in.Dst)
		if err := c.WriteMemory(addr, val); err != nil {
			return res, c.fail(at, err)
		}
		res.Write = &MemWrite{Addr: addr, Value: val}

	case OpADD:
		*c.reg(in.Dst) = c.add(*c.reg(in.Dst), *c.reg(in.Src))

	case OpSUB:
		*c.reg(in.Dst) = c.sub(*c.reg(in.Dst), *c.reg(in.Src))

	case OpINC:
		*c.reg(in.Dst) = c.add(*c.reg(in.Dst), 1)

	case OpDEC:
		*c.reg(in.Dst) = c.sub(*c.reg(in.Dst), 1)

	case OpCMPI:
		c.sub(*c.reg(in.Dst), in.Imm)

	case OpJMP:
		target, err := c.branchTarget(in.Addr)
		if err != nil {
			return res, c.fail(at, err)
		}
		c.PC = target

	case OpJZ:
		if err := c.branch(at, in.Addr, c.Z); err != nil {
			return res, err
		}

	case OpJNZ:
		if err := c.branch(at, in.Addr, !c.Z); err != nil {
			return res, err
		}

	case OpJNN:
		if err := c.branch(at, in.Addr, !c.N); err != nil {
			return res, err
		}

	case OpJC:
		if err := c.branch(at, in.Addr, c.C); err != nil {
			return res, err
		}

	case OpJNC:
		if err := c.branch(at, in.Addr, !c.C); err != nil {
			return res, err
		}

	case OpCALL:
		if len(c.callStack) >= c.maxDepth {
			return res, c.fail(at, &StackOverflowError{Depth: c.maxDepth})
		}
		target, err := c.branchTarget(in.Addr)
		if err != nil {
			return res, c.fail(at, err)
		}
		c.callStack = append(c.callStack, c.PC)
		c.PC = target

	case OpRET:
		if len(c.callStack) == 0 {
			return res, c.fail(at, &StackUnderflowError{})
		}
		c.PC = c.callStack[len(c.callStack)-1]
		c.callStack = c.callStack[:len(c.callStack)-1]

	default:
		return res, c.fail(at, &DecodeError{Op: in.Op})
	}

	res.PC = c.PC
	return res, nil
}

// branch validates the target even when the condition does not hold, so
// a bad program faults deterministically rather than depending on flag
// state.
func (c *CPU) branch(at, addr uint16, take bool) error {
	target, err := c.branchTarget(addr)
	if err != nil {
		return c.fail(at, err)
	}
	if take {
		c.PC = target
	}
	return nil
}

// Status reports how a Run ended.
type Status uint8

const (
	// StatusHalted means an explicit HALT was executed.
	StatusHalted Status = iota
	// StatusBudgetExhausted means maxSteps instructions ran without a
	// halt. This is the expected outcome for looping programs under
	// test and is not an error.
	StatusBudgetExhausted
	// StatusStopped means the external stop flag was observed between
	// steps.
	StatusStopped
	// StatusFaulted means a fatal error halted execution; Run also
	// returns the fault.
	StatusFaulted
)

func (s Status) String() string {
	switch s {
	case StatusHalted:
		return "halted"
	case StatusBudgetExhausted:
		return "budget exhausted"
	case StatusStopped:
		return "stopped"
	case StatusFaulted:
		return "faulted"
	}
	return "unknown"
}

// RunResult summarizes a Run call.
type RunResult struct {
	// Steps is the number of instructions executed.
	Steps int
	// Status reports the termination cause.
	Status Status
}

// Run executes up to maxSteps instructions. It returns early on HALT, on
// a fatal fault (returned as the error) or when RequestStop was called.
// Exhausting the budget is a normal result, not an error.
func (c *CPU) Run(maxSteps int) (RunResult, error) {
	steps := 0
	for steps < maxSteps {
		if c.stop.Swap(false) {
			return RunResult{Steps: steps, Status: StatusStopped}, nil
		}
		if c.Halted {
			return RunResult{Steps: steps, Status: StatusHalted}, nil
		}
		if _, err := c.Step(); err != nil {
			return RunResult{Steps: steps, Status: StatusFaulted}, err
		}
		steps++
	}
	if c.Halted {
		return RunResult{Steps: steps, Status: StatusHalted}, nil
	}
	return RunResult{Steps: steps, Status: StatusBudgetExhausted}, nil
}

// RequestStop asks a Run in progress to return after the current step.
// It is the only method safe to call from another goroutine.
func (c *CPU) RequestStop() {
	c.stop.Store(true)
}

// fail halts the machine with a fault snapshotted at the PC of the
// offending instruction.
func (c *CPU) fail(at uint16, err error) *Fault {
	c.Halted = true
	f := &Fault{Snapshot: c.snapshotAt(at), Err: err}
	c.fault = f
	return f
}

// Snapshot captures registers and flags for post-mortem diagnosis.
type Snapshot struct {
	PC    uint16
	Regs  [NumRegisters]uint8
	Z     bool
	N     bool
	C     bool
	Depth int
}

// Snapshot returns the current register/flag state.
func (c *CPU) Snapshot() Snapshot {
	return c.snapshotAt(c.PC)
}

func (c *CPU) snapshotAt(pc uint16) Snapshot {
	return Snapshot{
		PC:    pc,
		Regs:  c.Regs,
		Z:     c.Z,
		N:     c.N,
		C:     c.C,
		Depth: len(c.callStack),
	}
}
