package types

import "image"

// BoundingBox is a word region in frame-pixel coordinates, as reported by the OCR engine.
type BoundingBox struct {
	X      int
	Y      int
	Width  int
	Height int
}

// BottomRight returns the exclusive bottom-right corner (X+Width, Y+Height).
func (b BoundingBox) BottomRight() image.Point {
	return image.Pt(b.X+b.Width, b.Y+b.Height)
}

// Rect converts the box into an image.Rectangle for drawing.
// Negative sizes are canonicalized, matching how a corner-to-corner fill behaves.
func (b BoundingBox) Rect() image.Rectangle {
	br := b.BottomRight()
	return image.Rect(b.X, b.Y, br.X, br.Y)
}

// Token is a single recognized word. Conf is kept verbatim from the engine
// (e.g. "91.5", "-1") and parsed by the redactor.
type Token struct {
	Text string
	Box  BoundingBox
	Conf string
}

// VideoInfo is the subset of ffprobe metadata the pipeline needs
type VideoInfo struct {
	Width     int
	Height    int
	FrameRate string // rational as reported, e.g. "30000/1001"
	FPS       float64
	Frames    int // 0 if unknown
	Duration  float64
	HasAudio  bool
	Rotation  int // display rotation in degrees; Width/Height are already the rotated size
}
