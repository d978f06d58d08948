// Package demo contains the bouncing-pixel program, the canonical
// STaRbox workload: a single pixel erased and redrawn each frame,
// reflecting off the edges of the display surface. The program exercises
// multiplication by repeated addition, 8-bit carry propagation into the
// indirect address pair and the CALL/RET discipline.
package demo

import (
	"starbox/pkg/cpu"
	"starbox/pkg/program"
)

// Named variables in low memory.
const (
	VarX  uint16 = 0x0000
	VarY  uint16 = 0x0001
	VarDX uint16 = 0x0002
	VarDY uint16 = 0x0003
)

const (
	ColorErase = cpu.ColorBlack
	ColorDraw  = cpu.ColorWhite
)

// Build assembles the demo. The returned builder is exposed so tests can
// resolve subroutine addresses.
func Build() *program.Builder {
	b := program.New()

	b.Label("MAIN_LOOP").
		MOVI(cpu.R0, ColorErase).
		CALL("DRAW_PIXEL").
		CALL("UPDATE_X").
		CALL("UPDATE_Y").
		MOVI(cpu.R0, ColorDraw).
		CALL("DRAW_PIXEL").
		JMP("MAIN_LOOP")

	// Writes the color in R0 at the current (X, Y) position.
	b.Label("DRAW_PIXEL").
		CALL("COMPUTE_ADDR").
		STOREIND(cpu.R0).
		RET()

	// Forms R3:R4 = DisplayBase + Y*100 + X. The multiplication is Y
	// repeated additions of the row stride; each addition propagates its
	// carry from the low byte into the high byte.
	b.Label("COMPUTE_ADDR").
		MOVI(cpu.AddrHigh, uint8(cpu.DisplayBase>>8)).
		MOVI(cpu.AddrLow, uint8(cpu.DisplayBase&0xFF)).
		LOAD(cpu.R1, VarY)
	b.Label("ROW_LOOP").
		CMPI(cpu.R1, 0).
		JZ("ROWS_DONE").
		MOVI(cpu.R2, cpu.DisplayWidth).
		ADD(cpu.AddrLow, cpu.R2).
		JNC("ROW_NO_CARRY").
		MOVI(cpu.R2, 1).
		ADD(cpu.AddrHigh, cpu.R2)
	b.Label("ROW_NO_CARRY").
		DEC(cpu.R1).
		JMP("ROW_LOOP")
	b.Label("ROWS_DONE").
		LOAD(cpu.R2, VarX).
		ADD(cpu.AddrLow, cpu.R2).
		JNC("COL_NO_CARRY").
		MOVI(cpu.R2, 1).
		ADD(cpu.AddrHigh, cpu.R2)
	b.Label("COL_NO_CARRY").
		RET()

	// Position update with reflect-at-boundary: candidate = X + DX; a
	// candidate outside [0, width) clamps to the touched edge and
	// negates the velocity.
	b.Label("UPDATE_X").
		LOAD(cpu.R1, VarX).
		LOAD(cpu.R2, VarDX).
		ADD(cpu.R1, cpu.R2).
		JNN("X_NOT_NEG").
		MOVI(cpu.R1, 0).
		JMP("X_BOUNCE")
	b.Label("X_NOT_NEG").
		CMPI(cpu.R1, cpu.DisplayWidth).
		JC("X_STORE"). // carry set: candidate < width, still in bounds
		MOVI(cpu.R1, cpu.DisplayWidth-1)
	b.Label("X_BOUNCE").
		MOVI(cpu.R0, 0).
		LOAD(cpu.R2, VarDX).
		SUB(cpu.R0, cpu.R2).
		STORE(VarDX, cpu.R0)
	b.Label("X_STORE").
		STORE(VarX, cpu.R1).
		RET()

	b.Label("UPDATE_Y").
		LOAD(cpu.R1, VarY).
		LOAD(cpu.R2, VarDY).
		ADD(cpu.R1, cpu.R2).
		JNN("Y_NOT_NEG").
		MOVI(cpu.R1, 0).
		JMP("Y_BOUNCE")
	b.Label("Y_NOT_NEG").
		CMPI(cpu.R1, cpu.DisplayHeight).
		JC("Y_STORE").
		MOVI(cpu.R1, cpu.DisplayHeight-1)
	b.Label("Y_BOUNCE").
		MOVI(cpu.R0, 0).
		LOAD(cpu.R2, VarDY).
		SUB(cpu.R0, cpu.R2).
		STORE(VarDY, cpu.R0)
	b.Label("Y_STORE").
		STORE(VarY, cpu.R1).
		RET()

	return b
}

// Program returns the assembled demo instructions.
func Program() ([]cpu.Instruction, error) {
	return Build().Build()
}

// Image returns an initial memory image seeding the position and
// velocity variables. Velocities are two's-complement, so 0xFF is -1.
func Image(x, y, dx, dy uint8) []byte {
	return []byte{x, y, dx, dy}
}

// NewMachine builds a machine loaded with the demo program and an image
// seeding the given position and velocity.
func NewMachine(x, y, dx, dy uint8) (*cpu.CPU, error) {
	prog, err := Program()
	if err != nil {
		return nil, err
	}
	vm := cpu.New(prog)
	if err := vm.LoadImage(Image(x, y, dx, dy)); err != nil {
		return nil, err
	}
	return vm, nil
}
