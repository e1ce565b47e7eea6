// Package boxes implements the bounding-box tools exposed to the model.
package boxes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ashutoshrp06/toolloop/internal/imaging"
	"github.com/ashutoshrp06/toolloop/internal/tools"
	"github.com/ashutoshrp06/toolloop/internal/vision"
	"github.com/ashutoshrp06/toolloop/pkg/models"
	"github.com/samber/lo"
)

// ErrNotLocated is returned when the vision model finds nothing matching.
var ErrNotLocated = errors.New("object not located")

// Result is the JSON output of both tools.
type Result struct {
	OutputPath  string    `json:"output_path"`
	Label       string    `json:"label,omitempty"`
	Box         []float64 `json:"box"`
	Coordinates string    `json:"coordinates"`
	Confidence  float64   `json:"confidence,omitempty"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
}

func (r Result) output() (tools.Output, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return tools.Output{}, fmt.Errorf("marshal result: %w", err)
	}
	return tools.Output{Text: string(data), Image: r.OutputPath}, nil
}

// Detect is the detect_bounding_box tool: locate an object, then draw it.
type Detect struct {
	locator     vision.Locator
	drawer      imaging.Drawer
	coordinates string
}

// NewDetect creates the detect_bounding_box tool. coordinates selects the
// convention used in the tool's output.
func NewDetect(locator vision.Locator, drawer imaging.Drawer, coordinates string) *Detect {
	if coordinates != vision.Pixel {
		coordinates = vision.Normalized
	}
	return &Detect{locator: locator, drawer: drawer, coordinates: coordinates}
}

func (t *Detect) Name() string { return "detect_bounding_box" }

func (t *Detect) Description() string {
	return "Locates the object described by label in a local image and draws a bounding box around it on a copy of the image. " +
		"Returns the annotated image path, the box as [x_min, y_min, x_max, y_max] and the detection confidence."
}

func (t *Detect) Parameters() []tools.Parameter {
	return []tools.Parameter{
		{Name: "image_path", Type: tools.TypeString, Required: true, Description: "Local file path to the image (e.g. ./assets/dog.jpg)"},
		{Name: "label", Type: tools.TypeString, Required: true, Description: "Short description of the object to find (e.g. 'dog', 'red button')"},
	}
}

func (t *Detect) Execute(ctx context.Context, args map[string]any) (tools.Output, error) {
	path := tools.String(args, "image_path")
	label := tools.String(args, "label")
	if err := checkImage(path); err != nil {
		return tools.Output{}, err
	}

	loc, err := t.locator.Locate(ctx, path, label)
	if err != nil {
		return tools.Output{}, fmt.Errorf("locate %q: %w", label, err)
	}
	if !loc.Found {
		return tools.Output{}, ErrNotLocated
	}

	out, err := t.drawer.DrawBox(ctx, path, loc.Box, label)
	if err != nil {
		return tools.Output{}, fmt.Errorf("draw box: %w", err)
	}

	box := loc.Box
	if t.coordinates == vision.Pixel {
		box = loc.PixelBox()
	}
	return Result{
		OutputPath:  out,
		Label:       label,
		Box:         box.Slice(),
		Coordinates: t.coordinates,
		Confidence:  loc.Confidence,
		Width:       loc.Width,
		Height:      loc.Height,
	}.output()
}

// Draw is the draw_bounding_box tool: draw an explicit box.
type Draw struct {
	drawer      imaging.Drawer
	coordinates string
}

func NewDraw(drawer imaging.Drawer, coordinates string) *Draw {
	if coordinates != vision.Pixel {
		coordinates = vision.Normalized
	}
	return &Draw{drawer: drawer, coordinates: coordinates}
}

func (t *Draw) Name() string { return "draw_bounding_box" }

func (t *Draw) Description() string {
	return "Draws a given bounding box on a copy of a local image and returns the annotated image path. " +
		"Use it to redraw or adjust a box without detecting again."
}

func (t *Draw) Parameters() []tools.Parameter {
	boxDesc := "Box as [x_min, y_min, x_max, y_max] normalized to 0..1"
	if t.coordinates == vision.Pixel {
		boxDesc = "Box as [x_min, y_min, x_max, y_max] in pixels"
	}
	return []tools.Parameter{
		{Name: "image_path", Type: tools.TypeString, Required: true, Description: "Local file path to the image"},
		{Name: "box", Type: tools.TypeArray, Items: tools.TypeNumber, Length: 4, Required: true, Description: boxDesc},
		{Name: "label", Type: tools.TypeString, Description: "Text drawn above the box"},
		{Name: "color", Type: tools.TypeString, Description: "Color name or #rrggbb hex value"},
		{Name: "line_width", Type: tools.TypeInteger, Description: "Stroke width in pixels"},
	}
}

func (t *Draw) Execute(ctx context.Context, args map[string]any) (tools.Output, error) {
	path := tools.String(args, "image_path")
	if err := checkImage(path); err != nil {
		return tools.Output{}, err
	}

	coords, err := tools.Floats(args, "box")
	if err != nil {
		return tools.Output{}, err
	}
	width, height, err := vision.ImageSize(path)
	if err != nil {
		return tools.Output{}, err
	}

	box := models.Box{XMin: coords[0], YMin: coords[1], XMax: coords[2], YMax: coords[3]}
	if t.coordinates == vision.Pixel {
		w, h := float64(width), float64(height)
		box = models.Box{XMin: box.XMin / w, YMin: box.YMin / h, XMax: box.XMax / w, YMax: box.YMax / h}
	}
	if lo.SomeBy(box.Slice(), func(c float64) bool { return c < 0 || c > 1 }) || box.Empty() {
		return tools.Output{}, &tools.ArgumentError{Invalid: []string{"box"}}
	}

	var opts []imaging.Option
	if c := tools.String(args, "color"); c != "" {
		rgba, err := imaging.ParseColor(c)
		if err != nil {
			return tools.Output{}, &tools.ArgumentError{Invalid: []string{"color"}}
		}
		opts = append(opts, imaging.WithColor(rgba))
	}
	if w := tools.Int(args, "line_width", 0); w > 0 {
		opts = append(opts, imaging.WithLineWidth(w))
	}

	label := tools.String(args, "label")
	out, err := t.drawer.DrawBox(ctx, path, box, label, opts...)
	if err != nil {
		return tools.Output{}, fmt.Errorf("draw box: %w", err)
	}

	return Result{
		OutputPath:  out,
		Label:       label,
		Box:         coords,
		Coordinates: t.coordinates,
		Width:       width,
		Height:      height,
	}.output()
}

func checkImage(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("image %q: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("image %q is a directory", path)
	}
	return nil
}
