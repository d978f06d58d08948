// Command desktop renders the STaRbox display surface in a window. It is
// an external consumer of the machine: each frame it runs a bounded
// number of instructions, then polls the framebuffer region and blits it
// scaled. The machine itself knows nothing about the window.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"

	"starbox/pkg/cpu"
	"starbox/pkg/demo"
)

var (
	version = "0.1.0"
	commit  = ""
	date    = ""
)

const (
	// stepsPerFrame bounds the instructions executed per display frame;
	// roughly a few main-loop iterations at 60 fps.
	stepsPerFrame = 5000

	displayScale = 4
)

type options struct {
	x, y   uint
	dx, dy int
	debug  bool
}

type Game struct {
	vm     *cpu.CPU
	logger *log.Logger
	img    *ebiten.Image // reused display-sized canvas
}

func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyS) {
		name := fmt.Sprintf("starbox_%d.png", time.Now().Unix())
		if err := g.vm.SaveScreenshot(name, displayScale); err != nil {
			g.logger.Error("Screenshot failed", log.Err(err))
		} else {
			g.logger.Info("Screenshot saved", log.String("file", name))
		}
	}

	res, err := g.vm.Run(stepsPerFrame)
	if err != nil {
		var fault *cpu.Fault
		if errors.As(err, &fault) {
			g.logger.Error("Machine fault",
				log.Err(err),
				log.String("pc", fmt.Sprintf("%#04x", fault.PC)))
		}
		return err
	}
	if res.Status == cpu.StatusHalted {
		g.logger.Info("Program halted", log.Int("steps", res.Steps))
		return ebiten.Termination
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	if g.img == nil {
		g.img = ebiten.NewImage(cpu.DisplayWidth, cpu.DisplayHeight)
	}
	g.img.WritePixels(g.vm.FramebufferRGBA())

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(displayScale, displayScale)
	screen.DrawImage(g.img, op)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return cpu.DisplayWidth * displayScale, cpu.DisplayHeight * displayScale
}

func createLogger(debug bool) *log.Logger {
	cfg := log.DefaultConfig()
	if debug {
		cfg.Level = log.DebugLevel
	}
	return log.NewWithConfig(cfg)
}

func readArguments() options {
	opts := options{}
	flag.UintVar(&opts.x, "x", 50, "initial pixel X position")
	flag.UintVar(&opts.y, "y", 50, "initial pixel Y position")
	flag.IntVar(&opts.dx, "dx", 1, "initial X velocity (-1 or 1)")
	flag.IntVar(&opts.dy, "dy", 1, "initial Y velocity (-1 or 1)")
	flag.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flag.Parse()
	return opts
}

func main() {
	opts := readArguments()
	logger := createLogger(opts.debug)

	logger.Info("starbox desktop",
		log.String("version", buildinfo.Version(version, commit, date)))

	if opts.x >= cpu.DisplayWidth || opts.y >= cpu.DisplayHeight {
		logger.Fatal("Initial position outside the display surface")
	}

	vm, err := demo.NewMachine(uint8(opts.x), uint8(opts.y), uint8(opts.dx), uint8(opts.dy))
	if err != nil {
		logger.Fatal("Building demo program failed", log.Err(err))
	}

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(cpu.DisplayWidth*displayScale, cpu.DisplayHeight*displayScale)
	ebiten.SetWindowTitle("STaRbox")

	game := &Game{vm: vm, logger: logger}
	if err := ebiten.RunGame(game); err != nil {
		logger.Error("Renderer exited", log.Err(err))
		os.Exit(1)
	}
}
