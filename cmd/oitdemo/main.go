// Command oitdemo renders a field of translucent boxes with
// order-independent transparency and writes the last frame as a PNG.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"log/slog"
	"math"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/oit"
	_ "github.com/gogpu/oit/gpu" // enable the GPU backend
)

// paramFlags collects repeated -set name=value flags.
type paramFlags []string

func (p *paramFlags) String() string     { return strings.Join(*p, ",") }
func (p *paramFlags) Set(v string) error { *p = append(*p, v); return nil }

func main() {
	var (
		width   = flag.Int("width", 800, "image width")
		height  = flag.Int("height", 600, "image height")
		output  = flag.String("output", "oit.png", "output file")
		frames  = flag.Int("frames", 30, "frames to render; the camera orbits")
		grid    = flag.Int("grid", 4, "boxes per side of the grid")
		alpha   = flag.Float64("alpha", 0.4, "box opacity")
		hud     = flag.Bool("hud", true, "draw statistics onto the image")
		verbose = flag.Bool("v", false, "debug logging")
		params  paramFlags
	)
	flag.Var(&params, "set", "runtime parameter name=value (repeatable): "+strings.Join(oit.ParamNames(), ", "))
	flag.Parse()

	if *verbose {
		oit.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg := oit.DefaultConfig()
	cfg.Background = oit.RGB(0.08, 0.08, 0.12)
	for _, kv := range params {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			log.Fatalf("-set %q: want name=value", kv)
		}
		var err error
		if cfg, err = cfg.WithParam(name, value); err != nil {
			log.Fatalf("-set %q: %v", kv, err)
		}
	}

	metrics := oit.NewMetricsRegistry()
	p, err := oit.NewPipeline(cfg, oit.WithProfilingSink(metrics))
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}
	defer func() { _ = p.Close() }()

	if err := p.OnSizeChange(*width, *height); err != nil {
		log.Fatalf("Failed to size pipeline: %v", err)
	}

	scene := buildScene(*grid, *alpha)
	target := oit.NewPixmap(*width, *height)
	aspect := float64(*width) / float64(*height)

	var last oit.FrameStats
	for i := range max(*frames, 1) {
		angle := 2 * math.Pi * float64(i) / float64(max(*frames, 1))
		cam := oit.NewPerspectiveCamera(oit.V3(8*math.Sin(angle), 4, 8*math.Cos(angle)), oit.V3(0, 0, 0), aspect)
		last, err = p.Render(scene, cam, target)
		if err != nil {
			log.Fatalf("Frame %d: %v", i+1, err)
		}
		if last.Overflow != nil {
			log.Printf("Frame %d: %v (raise -set nodes=N)", last.Frame, last.Overflow)
		}
	}

	pr := message.NewPrinter(language.English)
	lines := report(pr, p, last)
	for _, l := range lines {
		fmt.Println(l)
	}

	img := target.ToImage()
	if *hud {
		drawHUD(img, lines)
	}
	if err := savePNG(*output, img); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	log.Printf("Saved %s (%dx%d, backend %s)", *output, *width, *height, p.BackendName())
}

// buildScene places an opaque floor under a grid of translucent boxes with
// one hue per box.
func buildScene(n int, alpha float64) oit.SceneList {
	floor := oit.Translate4(oit.V3(0, -1.5, 0)).Multiply(oit.Scale4(oit.V3(12, 0.2, 12)))
	ground := oit.NewBox(floor, oit.RGB(0.3, 0.3, 0.35))
	ground.Opaque = true
	scene := oit.SceneList{ground}

	spacing := 1.6
	offset := spacing * float64(n-1) / 2
	for z := range n {
		for x := range n {
			hue := 360 * float64(z*n+x) / float64(n*n)
			c := oit.HSL(hue, 0.8, 0.55)
			c.A = alpha
			m := oit.Translate4(oit.V3(float64(x)*spacing-offset, 0, float64(z)*spacing-offset)).
				Multiply(oit.RotateY(float64(x+z) * 0.3))
			scene = append(scene, oit.NewBox(m, c))
		}
	}
	return scene
}

func report(pr *message.Printer, p *oit.Pipeline, st oit.FrameStats) []string {
	params := p.Params()
	lines := []string{
		pr.Sprintf("backend %s  strategy %s  frame %d", p.BackendName(), params[oit.ParamStrategy], st.Frame),
		pr.Sprintf("prims %d opaque, %d transparent", st.OpaquePrims, st.TransparentPrims),
		pr.Sprintf("fragments %d  used %d / %d  dropped %d  merged %d",
			st.Store.Fragments, st.Store.Used, st.Store.Capacity, st.Store.Dropped, st.Store.Merged),
	}

	timings := p.Timings()
	names := make([]string, 0, len(timings))
	for name := range timings {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		t := timings[name]
		lines = append(lines, pr.Sprintf("%-10s median %8.3f ms  max %8.3f ms  n=%d",
			name, ms(t.Median), ms(t.Max), t.Count))
	}
	return lines
}

func ms(d time.Duration) float64 {
	return d.Seconds() * 1000
}

func drawHUD(img *image.RGBA, lines []string) {
	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil() + 2
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{R: 230, G: 230, B: 230, A: 255}),
		Face: face,
	}
	for i, l := range lines {
		d.Dot = fixed.P(8, 16+i*lineHeight)
		d.DrawString(l)
	}
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
