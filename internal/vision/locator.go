// Package vision locates described objects in images with a vision model.
package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/ashutoshrp06/toolloop/internal/llm"
	"github.com/ashutoshrp06/toolloop/pkg/models"
	"github.com/invopop/jsonschema"
	"github.com/samber/lo"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
)

// Coordinate conventions a model can answer in.
const (
	Normalized = "normalized"
	Pixel      = "pixel"
)

// Location is the answer to a Locate call. Box is always normalized to
// [0,1] regardless of the convention the model answered in.
type Location struct {
	Found      bool
	Box        models.Box
	Confidence float64
	Width      int
	Height     int
	// Candidates is the number of valid boxes the model returned.
	Candidates int
}

// PixelBox returns Box scaled to the image dimensions.
func (l Location) PixelBox() models.Box {
	w, h := float64(l.Width), float64(l.Height)
	return models.Box{XMin: l.Box.XMin * w, YMin: l.Box.YMin * h, XMax: l.Box.XMax * w, YMax: l.Box.YMax * h}
}

// Locator finds the region of an image matching a description.
type Locator interface {
	Locate(ctx context.Context, imagePath, description string) (Location, error)
}

// Generator is the model call a ModelLocator needs. *llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// Detection is one box in the model's answer.
type Detection struct {
	Confidence float64   `json:"confidence" jsonschema:"required,minimum=0,maximum=1,description=Detection confidence between 0 and 1"`
	XYXY       []float64 `json:"xyxy" jsonschema:"required,minItems=4,maxItems=4,description=Top-left and bottom-right corners as [x1 y1 x2 y2]"`
}

// DetectionResponse is the JSON document the model is asked to return.
type DetectionResponse struct {
	Boxes []Detection `json:"boxes" jsonschema:"required,description=Every detected instance. Empty when nothing matches."`
}

// ModelLocator asks a vision-capable model for bounding boxes and keeps the
// most confident valid one.
type ModelLocator struct {
	gen           Generator
	coordinates   string
	minConfidence float64
	logger        *zap.Logger
}

// LocatorConfig configures a ModelLocator.
type LocatorConfig struct {
	Coordinates   string
	MinConfidence float64
	Logger        *zap.Logger
}

func NewModelLocator(gen Generator, cfg LocatorConfig) *ModelLocator {
	if cfg.Coordinates != Pixel {
		cfg.Coordinates = Normalized
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &ModelLocator{
		gen:           gen,
		coordinates:   cfg.Coordinates,
		minConfidence: cfg.MinConfidence,
		logger:        cfg.Logger,
	}
}

// Locate implements Locator. A model answer with no acceptable box, or with
// no detection document at all, yields Found == false and a nil error. Only
// image and provider failures are returned as errors.
func (l *ModelLocator) Locate(ctx context.Context, imagePath, description string) (Location, error) {
	width, height, err := ImageSize(imagePath)
	if err != nil {
		return Location{}, err
	}

	completion, err := l.gen.Generate(ctx, llm.Request{
		System: DetectionPrompt(l.coordinates),
		Messages: []models.Message{{
			Role:    models.RoleUser,
			Content: fmt.Sprintf("Label to detect: %s\nImage size: %dx%d pixels.", description, width, height),
			Image:   imagePath,
		}},
		Temperature: 0,
	})
	if err != nil {
		return Location{}, fmt.Errorf("vision model: %w", err)
	}

	resp, err := ParseDetections(completion)
	if err != nil {
		l.logger.Warn("Vision reply has no detections",
			zap.String("image", imagePath),
			zap.String("label", description),
			zap.String("reply", completion),
			zap.Error(err))
		return Location{Width: width, Height: height}, nil
	}

	loc := Location{Width: width, Height: height}
	var valid []Detection
	for i, det := range resp.Boxes {
		box, err := l.toBox(det, width, height)
		if err != nil {
			l.logger.Warn("Dropping invalid box",
				zap.Int("index", i),
				zap.Float64s("xyxy", det.XYXY),
				zap.Error(err))
			continue
		}
		if det.Confidence < l.minConfidence {
			continue
		}
		valid = append(valid, Detection{Confidence: det.Confidence, XYXY: box.Slice()})
	}

	loc.Candidates = len(valid)
	if len(valid) == 0 {
		l.logger.Info("Object not located",
			zap.String("image", imagePath),
			zap.String("label", description),
			zap.Int("raw_boxes", len(resp.Boxes)))
		return loc, nil
	}

	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Confidence > valid[j].Confidence })
	best := valid[0]
	loc.Found = true
	loc.Confidence = best.Confidence
	loc.Box = models.Box{XMin: best.XYXY[0], YMin: best.XYXY[1], XMax: best.XYXY[2], YMax: best.XYXY[3]}
	return loc, nil
}

// toBox validates a detection and normalizes it.
func (l *ModelLocator) toBox(det Detection, width, height int) (models.Box, error) {
	if len(det.XYXY) != 4 {
		return models.Box{}, fmt.Errorf("expected 4 coordinates, got %d", len(det.XYXY))
	}
	if det.Confidence < 0 || det.Confidence > 1 {
		return models.Box{}, fmt.Errorf("confidence %v outside [0,1]", det.Confidence)
	}

	xyxy := det.XYXY
	if l.coordinates == Pixel {
		w, h := float64(width), float64(height)
		xyxy = []float64{xyxy[0] / w, xyxy[1] / h, xyxy[2] / w, xyxy[3] / h}
	}
	if lo.SomeBy(xyxy, func(c float64) bool { return c < 0 || c > 1 }) {
		return models.Box{}, errors.New("coordinates outside the image")
	}

	box := models.Box{XMin: xyxy[0], YMin: xyxy[1], XMax: xyxy[2], YMax: xyxy[3]}
	if box.Empty() {
		return models.Box{}, errors.New("box has no area")
	}
	return box, nil
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ParseDetections extracts the detection document from a completion, which
// may be bare JSON, fenced JSON or JSON surrounded by prose.
func ParseDetections(completion string) (*DetectionResponse, error) {
	raw := strings.TrimSpace(completion)
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	} else if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		raw = raw[start : end+1]
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("parse detection response: %w", err)
	}
	if _, ok := doc["boxes"]; !ok {
		return nil, errors.New("detection response has no boxes field")
	}

	var resp DetectionResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("parse detection response: %w", err)
	}
	return &resp, nil
}

// ImageSize reads the dimensions of an image file without decoding it fully.
func ImageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// ─── prompt ───────────────────────────────────────────────────────────────────

const detectionPromptTemplate = `You are a computer vision assistant that detects bounding boxes around specific objects in images.

Analyze the image and detect every instance of the requested label. Respond with valid JSON only, no markdown and no extra prose, matching this schema:

%s

Rules:
- xyxy is [x1, y1, x2, y2] where (x1, y1) is the top-left corner and (x2, y2) the bottom-right corner.
- %s
- The box must fully contain the object, including edges and protrusions.
- If nothing matches, return {"boxes": []}.`

// DetectionPrompt returns the system prompt for the given convention.
func DetectionPrompt(coordinates string) string {
	rule := "Coordinates are normalized between 0.0 and 1.0, where 0.0 is the left/top edge and 1.0 the right/bottom edge."
	if coordinates == Pixel {
		rule = "Coordinates are in pixels of the original image, using the image size given in the request."
	}
	return fmt.Sprintf(detectionPromptTemplate, detectionSchema(), rule)
}

func detectionSchema() string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&DetectionResponse{})
	schema.Version = ""
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return `{"boxes": [{"confidence": 0.9, "xyxy": [0.1, 0.2, 0.3, 0.4]}]}`
	}
	return string(data)
}
