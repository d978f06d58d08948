package cpu

import (
	"image"
	"image/png"
	"os"

	"golang.org/x/image/draw"
)

const (
	// DisplayBase is the first memory address of the display surface.
	DisplayBase = 0xD900
	// DisplayWidth and DisplayHeight give the surface dimensions; one
	// byte per cell, row-major, each cell a 4-bit color index.
	DisplayWidth  = 100
	DisplayHeight = 100

	ColorBlack = 0x0
	ColorWhite = 0xF
)

// starboxPalette contains the RGB565 equivalents of the CGA-style
// 16-color palette: index 0 is black, index 15 is white.
var starboxPalette = [16]uint16{
	0x0000, // 0  Black         {0x00, 0x00, 0x00}
	0x0015, // 1  Blue          {0x00, 0x00, 0xAA}
	0x0540, // 2  Green         {0x00, 0xAA, 0x00}
	0x0555, // 3  Cyan          {0x00, 0xAA, 0xAA}
	0xA800, // 4  Red           {0xAA, 0x00, 0x00}
	0xA815, // 5  Magenta       {0xAA, 0x00, 0xAA}
	0xAAA0, // 6  Brown         {0xAA, 0x55, 0x00}
	0xAD55, // 7  Light Gray    {0xAA, 0xAA, 0xAA}
	0x52AA, // 8  Dark Gray     {0x55, 0x55, 0x55}
	0x52BF, // 9  Light Blue    {0x55, 0x55, 0xFF}
	0x57EA, // 10 Light Green   {0x55, 0xFF, 0x55}
	0x57FF, // 11 Light Cyan    {0x55, 0xFF, 0xFF}
	0xFAAA, // 12 Light Red     {0xFF, 0x55, 0x55}
	0xFABF, // 13 Light Magenta {0xFF, 0x55, 0xFF}
	0xFFEA, // 14 Yellow        {0xFF, 0xFF, 0x55}
	0xFFFF, // 15 White         {0xFF, 0xFF, 0xFF}
}

// rgb565ToRGBA converts an RGB565 color to four RGBA bytes using accurate
// bit-expansion.
func rgb565ToRGBA(val uint16) (r, g, b, a byte) {
	r5 := byte((val >> 11) & 0x1F)
	g6 := byte((val >> 5) & 0x3F)
	b5 := byte(val & 0x1F)
	r = (r5 << 3) | (r5 >> 2)
	g = (g6 << 2) | (g6 >> 4)
	b = (b5 << 3) | (b5 >> 2)
	a = 0xFF
	return
}

// displayCell reads the color index of the display cell at linear offset
// off. Cells past the modeled memory read as black; the final 16 cells of
// a 100×100 surface over a 64KB memory fall there.
func (c *CPU) displayCell(off int) uint8 {
	addr := DisplayBase + off
	if addr >= len(c.Memory) {
		return ColorBlack
	}
	return c.Memory[addr] & 0x0F
}

// FramebufferRGBA decodes the display surface into an RGBA8888 byte
// slice of length DisplayWidth*DisplayHeight*4.
func (c *CPU) FramebufferRGBA() []byte {
	pixels := make([]byte, DisplayWidth*DisplayHeight*4)
	for i := 0; i < DisplayWidth*DisplayHeight; i++ {
		r, g, b, a := rgb565ToRGBA(starboxPalette[c.displayCell(i)])
		pixels[i*4+0] = r
		pixels[i*4+1] = g
		pixels[i*4+2] = b
		pixels[i*4+3] = a
	}
	return pixels
}

// FramebufferImage returns the display surface as an *image.RGBA.
func (c *CPU) FramebufferImage() *image.RGBA {
	return &image.RGBA{
		Pix:    c.FramebufferRGBA(),
		Stride: DisplayWidth * 4,
		Rect:   image.Rect(0, 0, DisplayWidth, DisplayHeight),
	}
}

// FramebufferImageScaled returns the display surface upscaled by the
// integer factor scale, nearest-neighbor so pixels stay crisp.
func (c *CPU) FramebufferImageScaled(scale int) *image.RGBA {
	if scale <= 1 {
		return c.FramebufferImage()
	}
	src := c.FramebufferImage()
	dst := image.NewRGBA(image.Rect(0, 0, DisplayWidth*scale, DisplayHeight*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// SaveScreenshot encodes the display surface as a PNG, upscaled by
// scale, and writes it to filename.
func (c *CPU) SaveScreenshot(filename string, scale int) error {
	img := c.FramebufferImageScaled(scale)
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
