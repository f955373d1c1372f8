package redact

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/andresmejia3/keyredact/internal/types"
)

// fakeEngine returns a canned set of tokens for every frame.
type fakeEngine struct {
	tokens []types.Token
	err    error
	calls  int
}

func (f *fakeEngine) Recognize(ctx context.Context, frame image.Image) ([]types.Token, error) {
	f.calls++
	return f.tokens, f.err
}

func newFrame(w, h int, fill uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = fill
		img.Pix[i+1] = fill
		img.Pix[i+2] = fill
		img.Pix[i+3] = 255
	}
	return img
}

func token(text string, x, y, w, h int, conf string) types.Token {
	return types.Token{Text: text, Box: types.BoundingBox{X: x, Y: y, Width: w, Height: h}, Conf: conf}
}

// assertRegion checks every pixel of the rect has the given colour.
func assertRegion(t *testing.T, img *image.RGBA, r image.Rectangle, want color.RGBA) {
	t.Helper()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if got := img.RGBAAt(x, y); got != want {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

// assertOutsideUnchanged checks every pixel outside the rects is identical in both frames.
func assertOutsideUnchanged(t *testing.T, in, out *image.RGBA, rects ...image.Rectangle) {
	t.Helper()
	b := in.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
	next:
		for x := b.Min.X; x < b.Max.X; x++ {
			for _, r := range rects {
				if image.Pt(x, y).In(r) {
					continue next
				}
			}
			if in.RGBAAt(x, y) != out.RGBAAt(x, y) {
				t.Fatalf("pixel (%d,%d) changed: %v -> %v", x, y, in.RGBAAt(x, y), out.RGBAAt(x, y))
			}
		}
	}
}

func TestRedactorScenarios(t *testing.T) {
	black := color.RGBA{A: 255}
	box := image.Rect(10, 10, 20, 20)

	tests := []struct {
		name     string
		tok      types.Token
		minConf  int
		redacted bool
	}{
		{"Keyword above threshold", token("secret", 10, 10, 10, 10, "90"), 0, true},
		{"Below threshold", token("secret", 10, 10, 10, 10, "10"), 50, false},
		{"Trailing punctuation", token("secret.", 10, 10, 10, 10, "99"), 0, true},
		{"Confidence exactly at threshold", token("secret", 10, 10, 10, 10, "50"), 50, true},
		{"Confidence just below threshold", token("secret", 10, 10, 10, 10, "49.9"), 50, false},
		{"Unparsable confidence", token("secret", 10, 10, 10, 10, "n/a"), 0, false},
		{"Tesseract non-word row", token("secret", 10, 10, 10, 10, "-1"), 0, false},
		{"Not the keyword", token("public", 10, 10, 10, 10, "99"), 0, false},
		{"Surrounding whitespace", token("  secret \n", 10, 10, 10, 10, "95"), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := newFrame(50, 50, 0)
			engine := &fakeEngine{tokens: []types.Token{tt.tok}}
			r := New(Config{Keyword: "secret", MinConfidence: tt.minConf}, engine, nil)

			out, boxes, err := r.Redact(context.Background(), frame)
			if err != nil {
				t.Fatalf("Redact failed: %v", err)
			}

			if tt.redacted {
				if len(boxes) != 1 {
					t.Fatalf("Expected 1 box, got %d", len(boxes))
				}
				assertRegion(t, out, box, FillColor)
			} else {
				if len(boxes) != 0 {
					t.Fatalf("Expected no boxes, got %v", boxes)
				}
				assertRegion(t, out, box, black)
			}
			assertOutsideUnchanged(t, frame, out, box)
		})
	}
}

func TestRedactorLeavesInputUntouched(t *testing.T) {
	frame := newFrame(20, 20, 17)
	engine := &fakeEngine{tokens: []types.Token{token("secret", 5, 5, 6, 4, "95")}}
	r := New(Config{Keyword: "secret"}, engine, nil)

	out, _, err := r.Redact(context.Background(), frame)
	if err != nil {
		t.Fatal(err)
	}

	grey := color.RGBA{R: 17, G: 17, B: 17, A: 255}
	assertRegion(t, frame, frame.Bounds(), grey)
	assertRegion(t, out, image.Rect(5, 5, 11, 9), FillColor)
	assertOutsideUnchanged(t, frame, out, image.Rect(5, 5, 11, 9))
}

func TestRedactorMultipleAndOverlappingBoxes(t *testing.T) {
	frame := newFrame(40, 40, 3)
	engine := &fakeEngine{tokens: []types.Token{
		token("secret", 2, 2, 10, 5, "80"),
		token("Secret,", 8, 4, 10, 5, "70"),
		token("secret", 2, 2, 10, 5, "80"), // duplicate box paints the same pixels
		token("other", 20, 20, 5, 5, "99"),
		token("secret", 30, 30, 5, 5, "5"),
	}}
	r := New(Config{Keyword: "secret", MinConfidence: 10}, engine, nil)

	out, boxes, err := r.Redact(context.Background(), frame)
	if err != nil {
		t.Fatal(err)
	}
	if len(boxes) != 3 {
		t.Fatalf("Expected 3 boxes, got %d", len(boxes))
	}

	a, b := image.Rect(2, 2, 12, 7), image.Rect(8, 4, 18, 9)
	assertRegion(t, out, a, FillColor)
	assertRegion(t, out, b, FillColor)
	assertOutsideUnchanged(t, frame, out, a, b)
}

func TestRedactorClipsAtFrameEdges(t *testing.T) {
	frame := newFrame(30, 30, 0)
	engine := &fakeEngine{tokens: []types.Token{token("secret", 25, 25, 20, 20, "90")}}
	r := New(Config{Keyword: "secret"}, engine, nil)

	out, _, err := r.Redact(context.Background(), frame)
	if err != nil {
		t.Fatalf("Redact failed on out-of-bounds box: %v", err)
	}
	assertRegion(t, out, image.Rect(25, 25, 30, 30), FillColor)
	assertOutsideUnchanged(t, frame, out, image.Rect(25, 25, 30, 30))
}

func TestRedactorEngineError(t *testing.T) {
	engine := &fakeEngine{err: errors.New("tesseract exploded")}
	r := New(Config{Keyword: "secret"}, engine, nil)

	if _, _, err := r.Redact(context.Background(), newFrame(10, 10, 0)); err == nil {
		t.Fatal("Expected error from failing engine, got nil")
	}
}

func TestRedactorReusesSimilarFrames(t *testing.T) {
	engine := &fakeEngine{tokens: []types.Token{token("secret", 10, 10, 10, 10, "90")}}
	r := New(Config{Keyword: "secret"}, engine, nil)
	r.EnableReuse(0)

	for i := 0; i < 3; i++ {
		frame := newFrame(50, 50, 40)
		out, boxes, err := r.Redact(context.Background(), frame)
		if err != nil {
			t.Fatal(err)
		}
		if len(boxes) != 1 {
			t.Fatalf("frame %d: expected 1 box, got %d", i, len(boxes))
		}
		assertRegion(t, out, image.Rect(10, 10, 20, 20), FillColor)
	}

	if engine.calls != 1 {
		t.Errorf("Expected OCR to run once for identical frames, ran %d times", engine.calls)
	}
	if r.Skipped() != 2 {
		t.Errorf("Expected 2 skipped frames, got %d", r.Skipped())
	}
}

func TestRedactorReuseAtZeroDistanceNeedsIdenticalPixels(t *testing.T) {
	engine := &fakeEngine{tokens: []types.Token{token("secret", 10, 10, 10, 10, "90")}}
	r := New(Config{Keyword: "secret"}, engine, nil)
	r.EnableReuse(0)

	first := newFrame(200, 200, 40)
	// A few changed pixels keep the 64x64 perceptual hash but must still be re-read.
	second := newFrame(200, 200, 40)
	for y := 100; y < 102; y++ {
		for x := 100; x < 104; x++ {
			second.SetRGBA(x, y, color.RGBA{R: 0, G: 0, B: 0, A: 255})
		}
	}

	for i, frame := range []*image.RGBA{first, second} {
		if _, _, err := r.Redact(context.Background(), frame); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	if engine.calls != 2 || r.Skipped() != 0 {
		t.Errorf("calls=%d skipped=%d, want 2 and 0", engine.calls, r.Skipped())
	}

	// An exact repeat of the last frame is reused.
	if _, _, err := r.Redact(context.Background(), cloneRGBA(second)); err != nil {
		t.Fatal(err)
	}
	if engine.calls != 2 || r.Skipped() != 1 {
		t.Errorf("calls=%d skipped=%d, want 2 and 1", engine.calls, r.Skipped())
	}
}

func TestRedactorWithoutReuseRunsEveryFrame(t *testing.T) {
	engine := &fakeEngine{}
	r := New(Config{Keyword: "secret"}, engine, nil)

	for i := 0; i < 3; i++ {
		if _, _, err := r.Redact(context.Background(), newFrame(8, 8, 0)); err != nil {
			t.Fatal(err)
		}
	}
	if engine.calls != 3 || r.Skipped() != 0 {
		t.Errorf("calls=%d skipped=%d, want 3 and 0", engine.calls, r.Skipped())
	}
}

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"90", 90},
		{"96.58", 96},
		{" 42 ", 42},
		{"-1", -1},
		{"", -1},
		{"abc", -1},
		{"NaN", -1},
		{"inf", -1},
	}

	for _, tt := range tests {
		if got := ParseConfidence(tt.raw); got != tt.want {
			t.Errorf("ParseConfidence(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
