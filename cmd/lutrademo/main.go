// Command lutrademo applies a .cube color lattice to a PNG image.
package main

import (
	"context"
	"flag"
	"image/png"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/lutra-img/lutra"
	_ "github.com/lutra-img/lutra/gpu"
)

func main() {
	var (
		input    = flag.String("input", "", "input PNG file")
		lutPath  = flag.String("lut", "", ".cube lattice file")
		strength = flag.Int("strength", 100, "effect strength 0-100")
		rotate   = flag.Int("rotate", 0, "clockwise rotation: 0, 90, 180 or 270")
		flipH    = flag.Bool("fliph", false, "flip horizontally")
		flipV    = flag.Bool("flipv", false, "flip vertically")
		output   = flag.String("output", "graded.png", "output file")
		verbose  = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if *input == "" || *lutPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if *verbose {
		lutra.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	src, err := loadPNG(*input)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", *input, err)
	}

	var final *lutra.Pixmap
	eng := lutra.NewColorEngine(
		lutra.WithDisplay(func(pm *lutra.Pixmap, _ lutra.RequestSignature, isFinal bool) {
			if isFinal {
				final = pm
			}
		}),
	)
	log.Printf("Compute backend: %s", eng.QueryDeviceInfo())

	if _, err := eng.LoadLut(*lutPath); err != nil {
		log.Fatalf("Failed to load LUT: %v", err)
	}

	eng.RegisterImage("input", src)
	handle, err := eng.SubmitTransform(&lutra.TransformRequest{
		ImageID:  "input",
		LutPath:  *lutPath,
		Strength: *strength,
		Geometry: lutra.Geometry{
			Rotation: lutra.Rotation(*rotate),
			FlipH:    *flipH,
			FlipV:    *flipV,
		},
	})
	if err != nil {
		log.Fatalf("Submit failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-handle.Done()
		cancel()
	}()
	eng.Run(ctx, time.Millisecond)

	if err := handle.Err(); err != nil {
		log.Fatalf("Transform failed: %v", err)
	}
	if final == nil {
		log.Fatal("No final buffer produced")
	}

	if err := final.SavePNG(*output); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	log.Printf("Saved %s (%dx%d, strength %d)", *output, final.Width(), final.Height(), *strength)
}

func loadPNG(path string) (*lutra.Pixmap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	img, err := png.Decode(f)
	if err != nil {
		return nil, err
	}
	return lutra.FromImage(img), nil
}
