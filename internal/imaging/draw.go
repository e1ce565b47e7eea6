// Package imaging draws bounding boxes onto copies of image files.
package imaging

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ashutoshrp06/toolloop/pkg/models"
	"github.com/google/uuid"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
)

// Drawer renders a box onto a copy of an image and returns the new file's
// path. The source file is never modified.
type Drawer interface {
	DrawBox(ctx context.Context, src string, box models.Box, label string, opts ...Option) (string, error)
}

// Style controls how a box is rendered.
type Style struct {
	Color     color.RGBA
	LineWidth int
}

// Option overrides the drawer's default style for one call.
type Option func(*Style)

// WithColor sets the stroke color.
func WithColor(c color.RGBA) Option {
	return func(s *Style) { s.Color = c }
}

// WithLineWidth sets the stroke width in pixels.
func WithLineWidth(w int) Option {
	return func(s *Style) {
		if w > 0 {
			s.LineWidth = w
		}
	}
}

// Config configures a FileDrawer.
type Config struct {
	// OutputDir receives annotated files. Empty means next to the source.
	OutputDir string
	Color     string
	LineWidth int
}

// FileDrawer writes annotated copies to disk.
type FileDrawer struct {
	outputDir string
	style     Style
}

func NewFileDrawer(cfg Config) (*FileDrawer, error) {
	if cfg.Color == "" {
		cfg.Color = "red"
	}
	c, err := ParseColor(cfg.Color)
	if err != nil {
		return nil, err
	}
	if cfg.LineWidth <= 0 {
		cfg.LineWidth = 3
	}
	return &FileDrawer{
		outputDir: cfg.OutputDir,
		style:     Style{Color: c, LineWidth: cfg.LineWidth},
	}, nil
}

// DrawBox implements Drawer. box is normalized to [0,1].
func (d *FileDrawer) DrawBox(ctx context.Context, src string, box models.Box, label string, opts ...Option) (string, error) {
	style := d.style
	for _, opt := range opts {
		opt(&style)
	}

	img, format, err := decode(src)
	if err != nil {
		return "", err
	}

	bounds := img.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, img, bounds.Min, draw.Src)

	rect := pixelRect(bounds, box)
	if rect.Empty() {
		return "", fmt.Errorf("box %v is empty at image size %dx%d", box.Slice(), bounds.Dx(), bounds.Dy())
	}
	strokeRect(canvas, rect, style)
	if label != "" {
		drawLabel(canvas, rect, label, style.Color)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.write(canvas, src, format)
}

func decode(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// pixelRect maps a normalized box onto bounds, clamped to the image.
func pixelRect(bounds image.Rectangle, box models.Box) image.Rectangle {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	r := image.Rect(
		bounds.Min.X+int(math.Round(box.XMin*w)),
		bounds.Min.Y+int(math.Round(box.YMin*h)),
		bounds.Min.X+int(math.Round(box.XMax*w)),
		bounds.Min.Y+int(math.Round(box.YMax*h)),
	)
	return r.Intersect(bounds)
}

func strokeRect(dst *image.RGBA, r image.Rectangle, style Style) {
	lw := style.LineWidth
	fill := &image.Uniform{C: style.Color}
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+lw),
		image.Rect(r.Min.X, r.Max.Y-lw, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+lw, r.Max.Y),
		image.Rect(r.Max.X-lw, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), fill, image.Point{}, draw.Src)
	}
}

// drawLabel renders label on a filled tag above the box, or inside its top
// edge when there is no room above.
func drawLabel(dst *image.RGBA, r image.Rectangle, label string, bg color.RGBA) {
	face := basicfont.Face7x13
	const pad = 2
	textW := font.MeasureString(face, label).Ceil()
	tagH := face.Metrics().Height.Ceil() + 2*pad

	top := r.Min.Y - tagH
	if top < dst.Bounds().Min.Y {
		top = r.Min.Y
	}
	tag := image.Rect(r.Min.X, top, r.Min.X+textW+2*pad, top+tagH).Intersect(dst.Bounds())
	draw.Draw(dst, tag, &image.Uniform{C: bg}, image.Point{}, draw.Src)

	drawer := font.Drawer{
		Dst:  dst,
		Src:  &image.Uniform{C: contrast(bg)},
		Face: face,
		Dot:  fixed.P(tag.Min.X+pad, tag.Min.Y+pad+face.Metrics().Ascent.Ceil()),
	}
	drawer.DrawString(label)
}

func contrast(c color.RGBA) color.Color {
	luminance := 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
	if luminance > 140 {
		return color.Black
	}
	return color.White
}

// write encodes img next to src (or into the output dir) under a new name.
// Formats without an encoder in reach are written as PNG.
func (d *FileDrawer) write(img image.Image, src, format string) (string, error) {
	dir := d.outputDir
	if dir == "" {
		dir = filepath.Dir(src)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(src))
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	if format != "jpeg" && format != "png" {
		ext = ".png"
	}
	out := filepath.Join(dir, fmt.Sprintf("%s_annotated_%s%s", base, uuid.NewString()[:8], ext))

	f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("create output: %w", err)
	}

	if format == "jpeg" {
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	} else {
		err = png.Encode(f, img)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out)
		return "", fmt.Errorf("encode output: %w", err)
	}
	return out, nil
}

var namedColors = map[string]color.RGBA{
	"red":     {R: 255, A: 255},
	"green":   {G: 200, A: 255},
	"blue":    {B: 255, A: 255},
	"yellow":  {R: 255, G: 255, A: 255},
	"orange":  {R: 255, G: 165, A: 255},
	"purple":  {R: 128, B: 128, A: 255},
	"magenta": {R: 255, B: 255, A: 255},
	"cyan":    {G: 255, B: 255, A: 255},
	"pink":    {R: 255, G: 105, B: 180, A: 255},
	"white":   {R: 255, G: 255, B: 255, A: 255},
	"black":   {A: 255},
}

// ParseColor accepts a color name or a #rgb / #rrggbb hex value.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}

	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 || !strings.HasPrefix(s, "#") {
		return color.RGBA{}, fmt.Errorf("unknown color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
