package cpu

import (
	"os"
	"path/filepath"
	"testing"
)

func pixelAt(pixels []byte, x, y int) (r, g, b, a byte) {
	i := (y*DisplayWidth + x) * 4
	return pixels[i], pixels[i+1], pixels[i+2], pixels[i+3]
}

func TestFramebufferRGBA(t *testing.T) {
	vm := New(nil)

	// White pixel at (50, 50), blue at (0, 0).
	if err := vm.WriteMemory(DisplayBase+50*DisplayWidth+50, ColorWhite); err != nil {
		t.Fatalf("WriteMemory: %v", err)
	}
	if err := vm.WriteMemory(DisplayBase, 1); err != nil {
		t.Fatalf("WriteMemory: %v", err)
	}

	pixels := vm.FramebufferRGBA()
	if len(pixels) != DisplayWidth*DisplayHeight*4 {
		t.Fatalf("pixel buffer length %d", len(pixels))
	}

	r, g, b, a := pixelAt(pixels, 50, 50)
	if r != 0xFF || g != 0xFF || b != 0xFF || a != 0xFF {
		t.Errorf("white pixel decoded as (%d, %d, %d, %d)", r, g, b, a)
	}

	r, g, b, _ = pixelAt(pixels, 0, 0)
	if r != 0 || g != 0 || b == 0 {
		t.Errorf("blue pixel decoded as (%d, %d, %d)", r, g, b)
	}

	r, g, b, a = pixelAt(pixels, 1, 0)
	if r != 0 || g != 0 || b != 0 || a != 0xFF {
		t.Errorf("untouched pixel decoded as (%d, %d, %d, %d)", r, g, b, a)
	}
}

// Only the low nibble of a display cell is a color index.
func TestFramebufferMasksHighNibble(t *testing.T) {
	vm := New(nil)
	if err := vm.WriteMemory(DisplayBase, 0xF0|ColorWhite); err != nil {
		t.Fatalf("WriteMemory: %v", err)
	}
	pixels := vm.FramebufferRGBA()
	r, g, b, _ := pixelAt(pixels, 0, 0)
	if r != 0xFF || g != 0xFF || b != 0xFF {
		t.Errorf("expected white from masked cell, got (%d, %d, %d)", r, g, b)
	}
}

// The final 16 cells of the surface lie past a 64KB memory; they must
// decode as black rather than fault or alias low memory.
func TestFramebufferCellsPastMemoryAreBlack(t *testing.T) {
	vm := New(nil)
	// Paint low memory; a buggy wraparound would leak it into the
	// bottom-right corner.
	vm.Memory[0x000F] = ColorWhite

	pixels := vm.FramebufferRGBA()
	r, g, b, a := pixelAt(pixels, DisplayWidth-1, DisplayHeight-1)
	if r != 0 || g != 0 || b != 0 || a != 0xFF {
		t.Errorf("out-of-memory cell decoded as (%d, %d, %d, %d)", r, g, b, a)
	}
}

func TestFramebufferImageScaled(t *testing.T) {
	vm := New(nil)
	if err := vm.WriteMemory(DisplayBase, ColorWhite); err != nil {
		t.Fatalf("WriteMemory: %v", err)
	}

	img := vm.FramebufferImageScaled(4)
	bounds := img.Bounds()
	if bounds.Dx() != DisplayWidth*4 || bounds.Dy() != DisplayHeight*4 {
		t.Fatalf("scaled bounds %v", bounds)
	}
	// Nearest-neighbor: the whole 4×4 block of the first cell is white.
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			if r>>8 != 0xFF {
				t.Fatalf("scaled pixel (%d, %d) not white", x, y)
			}
		}
	}
}

func TestSaveScreenshot(t *testing.T) {
	vm := New(nil)
	path := filepath.Join(t.TempDir(), "frame.png")
	if err := vm.SaveScreenshot(path, 2); err != nil {
		t.Fatalf("SaveScreenshot: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() == 0 {
		t.Error("empty screenshot file")
	}
}
