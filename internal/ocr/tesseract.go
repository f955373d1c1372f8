// Package ocr adapts Tesseract into word tokens with pixel boxes and confidences.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strconv"

	"github.com/andresmejia3/keyredact/internal/types"
	"github.com/otiai10/gosseract/v2"
	"golang.org/x/image/bmp"
)

// TesseractEngine recognizes words through libtesseract (gosseract).
// One client is reused for every frame; it is not safe for concurrent use.
type TesseractEngine struct {
	client *gosseract.Client
}

// NewTesseractEngine creates a client configured for the given languages.
func NewTesseractEngine(languages ...string) (*TesseractEngine, error) {
	client := gosseract.NewClient()
	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			client.Close()
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	return &TesseractEngine{client: client}, nil
}

func (e *TesseractEngine) Name() string { return "gosseract" }

// Recognize returns one token per word Tesseract finds in frame.
func (e *TesseractEngine) Recognize(ctx context.Context, frame image.Image) ([]types.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// BMP avoids the compression cost of PNG on every frame.
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, frame); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}

	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("get bounding boxes: %w", err)
	}

	tokens := make([]types.Token, 0, len(boxes))
	for _, b := range boxes {
		tokens = append(tokens, types.Token{
			Text: b.Word,
			Box: types.BoundingBox{
				X:      b.Box.Min.X,
				Y:      b.Box.Min.Y,
				Width:  b.Box.Dx(),
				Height: b.Box.Dy(),
			},
			Conf: strconv.FormatFloat(b.Confidence, 'f', -1, 64),
		})
	}
	return tokens, nil
}

// Close releases the underlying Tesseract handle.
func (e *TesseractEngine) Close() error {
	return e.client.Close()
}
