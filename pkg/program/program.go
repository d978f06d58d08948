// Package program constructs decoded STaRbox instruction sequences with
// symbolic labels. A Builder records instructions and label definitions,
// then Build resolves every label reference to an absolute instruction
// address and hands the finished slice to the virtual machine. The
// builder consumes Go calls, not source text; there is no mnemonic
// parser.
package program

import (
	"fmt"

	"starbox/pkg/cpu"
)

// DuplicateLabelError reports a label defined twice.
type DuplicateLabelError struct {
	Label string
}

func (e *DuplicateLabelError) Error() string {
	return fmt.Sprintf("duplicate label %q", e.Label)
}

// UnknownLabelError reports a reference to a label never defined.
type UnknownLabelError struct {
	Label string
	// Index is the instruction address of the referencing instruction.
	Index int
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("unknown label %q referenced by instruction %d", e.Label, e.Index)
}

type ref struct {
	index int
	label string
}

// Builder accumulates instructions and labels. Methods chain; errors are
// collected and reported by Build so construction code stays linear.
type Builder struct {
	instrs []cpu.Instruction
	labels map[string]uint16
	refs   []ref
	errs   []error
}

func New() *Builder {
	return &Builder{labels: make(map[string]uint16)}
}

// Label defines name at the address of the next emitted instruction.
// Forward and backward references both resolve at Build time.
func (b *Builder) Label(name string) *Builder {
	if _, exists := b.labels[name]; exists {
		b.errs = append(b.errs, &DuplicateLabelError{Label: name})
		return b
	}
	if len(b.instrs) > 0xFFFF {
		b.errs = append(b.errs, fmt.Errorf("label %q points past addressable program space", name))
		return b
	}
	b.labels[name] = uint16(len(b.instrs))
	return b
}

func (b *Builder) emit(in cpu.Instruction) *Builder {
	b.instrs = append(b.instrs, in)
	return b
}

// emitRef records an instruction whose Addr field is a pending label.
func (b *Builder) emitRef(in cpu.Instruction, label string) *Builder {
	b.refs = append(b.refs, ref{index: len(b.instrs), label: label})
	return b.emit(in)
}

func (b *Builder) HALT() *Builder {
	return b.emit(cpu.Instruction{Op: cpu.OpHALT})
}

func (b *Builder) MOVI(r cpu.Register, v uint8) *Builder {
	return b.emit(cpu.Instruction{Op: cpu.OpMOVI, Dst: r, Imm: v})
}

func (b *Builder) MOV(dst, src cpu.Register) *Builder {
	return b.emit(cpu.Instruction{Op: cpu.OpMOV, Dst: dst, Src: src})
}

func (b *Builder) LOAD(r cpu.Register, addr uint16) *Builder {
	return b.emit(cpu.Instruction{Op: cpu.OpLOAD, Dst: r, Addr: addr})
}

func (b *Builder) STORE(addr uint16, r cpu.Register) *Builder {
	return b.emit(cpu.Instruction{Op: cpu.OpSTORE, Dst: r, Addr: addr})
}

func (b *Builder) STOREIND(r cpu.Register) *Builder {
	return b.emit(cpu.Instruction{Op: cpu.OpSTOREIND, Dst: r})
}

func (b *Builder) ADD(dst, src cpu.Register) *Builder {
	return b.emit(cpu.Instruction{Op: cpu.OpADD, Dst: dst, Src: src})
}

func (b *Builder) SUB(dst, src cpu.Register) *Builder {
	return b.emit(cpu.Instruction{Op: cpu.OpSUB, Dst: dst, Src: src})
}

func (b *Builder) INC(r cpu.Register) *Builder {
	return b.emit(cpu.Instruction{Op: cpu.OpINC, Dst: r})
}

func (b *Builder) DEC(r cpu.Register) *Builder {
	return b.emit(cpu.Instruction{Op: cpu.OpDEC, Dst: r})
}

func (b *Builder) CMPI(r cpu.Register, v uint8) *Builder {
	return b.emit(cpu.Instruction{Op: cpu.OpCMPI, Dst: r, Imm: v})
}

func (b *Builder) JMP(label string) *Builder {
	return b.emitRef(cpu.Instruction{Op: cpu.OpJMP}, label)
}

func (b *Builder) JZ(label string) *Builder {
	return b.emitRef(cpu.Instruction{Op: cpu.OpJZ}, label)
}

func (b *Builder) JNZ(label string) *Builder {
	return b.emitRef(cpu.Instruction{Op: cpu.OpJNZ}, label)
}

func (b *Builder) JNN(label string) *Builder {
	return b.emitRef(cpu.Instruction{Op: cpu.OpJNN}, label)
}

func (b *Builder) JC(label string) *Builder {
	return b.emitRef(cpu.Instruction{Op: cpu.OpJC}, label)
}

func (b *Builder) JNC(label string) *Builder {
	return b.emitRef(cpu.Instruction{Op: cpu.OpJNC}, label)
}

func (b *Builder) CALL(label string) *Builder {
	return b.emitRef(cpu.Instruction{Op: cpu.OpCALL}, label)
}

func (b *Builder) RET() *Builder {
	return b.emit(cpu.Instruction{Op: cpu.OpRET})
}

// Addr returns the resolved address of a defined label, for harnesses
// that want to poke the PC or assert on branch targets.
func (b *Builder) Addr(label string) (uint16, bool) {
	addr, ok := b.labels[label]
	return addr, ok
}

// Build resolves all label references and returns the finished program.
// The first construction error wins; the builder stays usable for
// inspection afterwards.
func (b *Builder) Build() ([]cpu.Instruction, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	out := make([]cpu.Instruction, len(b.instrs))
	copy(out, b.instrs)
	for _, r := range b.refs {
		addr, ok := b.labels[r.label]
		if !ok {
			return nil, &UnknownLabelError{Label: r.label, Index: r.index}
		}
		out[r.index].Addr = addr
	}
	return out, nil
}
