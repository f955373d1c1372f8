package redact

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/andresmejia3/keyredact/internal/types"
	"github.com/corona10/goimagehash"
	"golang.org/x/image/draw"
)

// FillColor is painted over every matched word.
var FillColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Engine recognizes words in a single frame.
type Engine interface {
	Recognize(ctx context.Context, frame image.Image) ([]types.Token, error)
}

// Redactor paints over every occurrence of the configured keyword in a frame.
type Redactor struct {
	cfg    Config
	engine Engine
	logger *slog.Logger

	// Similar-frame reuse. Off unless EnableReuse is called.
	reuse     bool
	maxDist   int
	lastHash  *goimagehash.ImageHash
	lastBoxes []types.BoundingBox
	lastPix   []uint8
	lastRect  image.Rectangle
	skipped   int
}

// New builds a Redactor. A nil logger falls back to slog.Default().
func New(cfg Config, engine Engine, logger *slog.Logger) *Redactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redactor{cfg: cfg, engine: engine, logger: logger}
}

// EnableReuse skips OCR for frames whose perceptual hash is within maxDistance
// of the last recognized frame, painting that frame's boxes instead. With
// maxDistance 0 only byte-identical frames are reused. A larger distance can
// reuse stale boxes when text moves slightly between frames.
func (r *Redactor) EnableReuse(maxDistance int) {
	r.reuse = true
	r.maxDist = maxDistance
}

// Skipped returns how many frames were redacted without running OCR.
func (r *Redactor) Skipped() int { return r.skipped }

// Redact returns a copy of frame with every qualifying word box filled with
// FillColor, along with the boxes that were painted. frame is never modified.
func (r *Redactor) Redact(ctx context.Context, frame *image.RGBA) (*image.RGBA, []types.BoundingBox, error) {
	boxes, err := r.findKeywordBoxes(ctx, frame)
	if err != nil {
		return nil, nil, err
	}

	out := cloneRGBA(frame)
	fill := &image.Uniform{C: FillColor}
	for _, box := range boxes {
		r.logger.Debug("redacting box", "x", box.X, "y", box.Y, "width", box.Width, "height", box.Height)
		// Draw clips to the frame bounds.
		draw.Draw(out, box.Rect(), fill, image.Point{}, draw.Src)
	}
	return out, boxes, nil
}

// Boxes returns the boxes that would be painted on frame, without drawing.
func (r *Redactor) Boxes(ctx context.Context, frame image.Image) ([]types.BoundingBox, error) {
	return r.findKeywordBoxes(ctx, frame)
}

func (r *Redactor) findKeywordBoxes(ctx context.Context, frame image.Image) ([]types.BoundingBox, error) {
	var hash *goimagehash.ImageHash
	if r.reuse {
		h, err := goimagehash.PerceptionHash(frame)
		if err != nil {
			r.logger.Debug("perceptual hash failed, running OCR", "error", err)
		} else {
			hash = h
			if dist, ok := r.canReuse(frame, hash); ok {
				r.skipped++
				r.logger.Debug("reusing boxes from similar frame", "distance", dist, "boxes", len(r.lastBoxes))
				return append([]types.BoundingBox(nil), r.lastBoxes...), nil
			}
		}
	}

	tokens, err := r.engine.Recognize(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("ocr failed: %w", err)
	}

	var boxes []types.BoundingBox
	for _, tok := range tokens {
		if ParseConfidence(tok.Conf) < r.cfg.MinConfidence {
			continue
		}
		if r.cfg.Matches(strings.TrimSpace(tok.Text)) {
			boxes = append(boxes, tok.Box)
		}
	}

	if hash != nil {
		r.remember(frame, hash, boxes)
	}
	return boxes, nil
}

// canReuse reports whether frame may take the last recognized frame's boxes.
// At distance 0 the pixels must be byte-identical as well: pHash looks at a
// 64x64 downscale, so moved or edited text can keep the same hash.
func (r *Redactor) canReuse(frame image.Image, hash *goimagehash.ImageHash) (int, bool) {
	if r.lastHash == nil {
		return 0, false
	}
	dist, err := r.lastHash.Distance(hash)
	if err != nil || dist > r.maxDist {
		return dist, false
	}
	if r.maxDist == 0 {
		rgba, ok := frame.(*image.RGBA)
		if !ok || r.lastPix == nil || rgba.Rect != r.lastRect || !bytes.Equal(rgba.Pix, r.lastPix) {
			return dist, false
		}
	}
	return dist, true
}

func (r *Redactor) remember(frame image.Image, hash *goimagehash.ImageHash, boxes []types.BoundingBox) {
	r.lastHash = hash
	r.lastBoxes = boxes
	r.lastPix = nil
	if rgba, ok := frame.(*image.RGBA); ok && r.maxDist == 0 {
		r.lastPix = append(r.lastPix, rgba.Pix...)
		r.lastRect = rgba.Rect
	}
}

// ParseConfidence converts an engine-reported confidence into an integer,
// truncating toward zero. Anything unparsable yields -1 so it never passes a
// non-negative threshold.
func ParseConfidence(raw string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return -1
	}
	f = math.Trunc(f)
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(f)
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := &image.RGBA{
		Pix:    make([]uint8, len(src.Pix)),
		Stride: src.Stride,
		Rect:   src.Rect,
	}
	copy(dst.Pix, src.Pix)
	return dst
}
