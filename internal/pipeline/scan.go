package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/andresmejia3/keyredact/internal/types"
)

// BoxFinder locates keyword boxes without drawing them.
type BoxFinder interface {
	Boxes(ctx context.Context, frame image.Image) ([]types.BoundingBox, error)
}

// Occurrence is a run of consecutive frames in which the keyword is visible.
// EndFrame is inclusive.
type Occurrence struct {
	StartFrame int
	EndFrame   int
	MaxBoxes   int
}

// Seconds converts the occurrence into a [start, end) time range.
func (o Occurrence) Seconds(fps float64) (start, end float64) {
	if fps <= 0 {
		return 0, 0
	}
	return float64(o.StartFrame) / fps, float64(o.EndFrame+1) / fps
}

// Scan decodes inputPath and reports where the keyword appears. No output is written.
func (d *Driver) Scan(ctx context.Context, inputPath string, finder BoxFinder) ([]Occurrence, types.VideoInfo, error) {
	if _, err := os.Stat(inputPath); err != nil {
		return nil, types.VideoInfo{}, fmt.Errorf("input video: %w", err)
	}
	info, err := d.Codec.Probe(ctx, inputPath)
	if err != nil {
		return nil, info, fmt.Errorf("probe %s: %w", inputPath, err)
	}

	decoder, err := d.Codec.OpenDecoder(ctx, inputPath, info)
	if err != nil {
		return nil, info, err
	}
	defer func() {
		if decoder != nil {
			decoder.Close()
		}
	}()

	bar := d.newBar("Scanning", info.Frames)
	var occurrences []Occurrence
	var current *Occurrence
	for idx := 0; ; idx++ {
		frame, err := decoder.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, info, fmt.Errorf("decode frame %d: %w", idx, err)
		}

		boxes, err := finder.Boxes(ctx, frame)
		if err != nil {
			return nil, info, fmt.Errorf("scan frame %d: %w", idx, err)
		}

		if len(boxes) > 0 {
			if current == nil {
				occurrences = append(occurrences, Occurrence{StartFrame: idx})
				current = &occurrences[len(occurrences)-1]
			}
			current.EndFrame = idx
			current.MaxBoxes = max(current.MaxBoxes, len(boxes))
		} else {
			current = nil
		}
		if bar != nil {
			bar.Add(1)
		}
	}

	err = decoder.Close()
	decoder = nil
	if err != nil {
		return nil, info, err
	}
	if bar != nil {
		bar.Finish()
	}
	return occurrences, info, nil
}
