// Package pipeline runs the redactor over every frame of a video and writes
// the result with the original audio re-attached.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"

	"github.com/andresmejia3/keyredact/internal/types"
	"github.com/andresmejia3/keyredact/internal/video"
	"github.com/schollz/progressbar/v3"
)

// FrameReader yields decoded frames until io.EOF.
type FrameReader interface {
	ReadFrame() (*image.RGBA, error)
	Close() error
}

// FrameWriter consumes frames. Close finalizes the output; Abort discards it.
type FrameWriter interface {
	WriteFrame(*image.RGBA) error
	Close() error
	Abort()
}

// Codec is the video library the driver delegates decoding and encoding to.
type Codec interface {
	Probe(ctx context.Context, path string) (types.VideoInfo, error)
	ExtractAudio(ctx context.Context, input, dst string) error
	OpenDecoder(ctx context.Context, path string, info types.VideoInfo) (FrameReader, error)
	OpenEncoder(ctx context.Context, path string, info types.VideoInfo, audioPath string) (FrameWriter, error)
}

// FrameRedactor is applied to each frame in order.
type FrameRedactor interface {
	Redact(ctx context.Context, frame *image.RGBA) (*image.RGBA, []types.BoundingBox, error)
}

// Summary describes a finished run.
type Summary struct {
	Frames         int
	RedactedFrames int
	Boxes          int
	// Skipped counts frames whose OCR pass was replaced by similar-frame reuse.
	Skipped int
	Info    types.VideoInfo
}

// skipCounter is implemented by redactors that can skip OCR on repeated frames.
type skipCounter interface {
	Skipped() int
}

// Driver wires a codec and a redactor together.
type Driver struct {
	Codec    Codec
	Redactor FrameRedactor
	Logger   *slog.Logger
	// Progress receives the progress bar; nil disables it.
	Progress io.Writer
}

// New returns a driver backed by the ffmpeg binaries.
func New(redactor FrameRedactor, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{Codec: FFmpeg{}, Redactor: redactor, Logger: logger, Progress: os.Stderr}
}

// Run redacts inputPath into outputPath. The temporary audio file is removed on
// every exit path. On failure the output file may be missing or unusable.
func (d *Driver) Run(ctx context.Context, inputPath, outputPath string) (Summary, error) {
	var summary Summary
	if _, err := os.Stat(inputPath); err != nil {
		return summary, fmt.Errorf("input video: %w", err)
	}

	info, err := d.Codec.Probe(ctx, inputPath)
	if err != nil {
		return summary, fmt.Errorf("probe %s: %w", inputPath, err)
	}
	summary.Info = info
	d.Logger.Info("processing video",
		"frame_rate", info.FrameRate, "fps", info.FPS, "duration", info.Duration,
		"size", fmt.Sprintf("%dx%d", info.Width, info.Height), "audio", info.HasAudio, "rotation", info.Rotation)

	audioPath := ""
	if info.HasAudio {
		audioPath = video.TempAudioPath(outputPath)
		defer func() {
			if rmErr := video.RemoveTemp(audioPath); rmErr != nil {
				d.Logger.Warn("failed to remove temp audio", "path", audioPath, "error", rmErr)
			}
		}()
		if err := d.Codec.ExtractAudio(ctx, inputPath, audioPath); err != nil {
			return summary, fmt.Errorf("extract audio: %w", err)
		}
	}

	decoder, err := d.Codec.OpenDecoder(ctx, inputPath, info)
	if err != nil {
		return summary, err
	}
	decoderDone := false
	defer func() {
		if !decoderDone {
			decoder.Close()
		}
	}()

	encoder, err := d.Codec.OpenEncoder(ctx, outputPath, info, audioPath)
	if err != nil {
		return summary, err
	}
	encoderDone := false
	defer func() {
		if !encoderDone {
			encoder.Abort()
		}
	}()

	bar := d.newBar("Redacting", info.Frames)
	for {
		frame, err := decoder.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, fmt.Errorf("decode frame %d: %w", summary.Frames, err)
		}

		out, boxes, err := d.Redactor.Redact(ctx, frame)
		if err != nil {
			return summary, fmt.Errorf("redact frame %d: %w", summary.Frames, err)
		}
		if len(boxes) > 0 {
			summary.RedactedFrames++
			summary.Boxes += len(boxes)
			d.Logger.Debug("frame redacted", "frame", summary.Frames, "boxes", len(boxes))
		}

		if err := encoder.WriteFrame(out); err != nil {
			return summary, fmt.Errorf("encode frame %d: %w", summary.Frames, err)
		}
		summary.Frames++
		if bar != nil {
			bar.Add(1)
		}
	}

	decoderDone = true
	if err := decoder.Close(); err != nil {
		return summary, err
	}
	encoderDone = true
	if err := encoder.Close(); err != nil {
		return summary, err
	}
	if bar != nil {
		bar.Finish()
	}
	if sc, ok := d.Redactor.(skipCounter); ok {
		summary.Skipped = sc.Skipped()
	}

	d.Logger.Info("redaction complete", "output", outputPath, "frames", summary.Frames,
		"redacted_frames", summary.RedactedFrames, "boxes", summary.Boxes, "ocr_skipped", summary.Skipped)
	return summary, nil
}

func (d *Driver) newBar(description string, total int) *progressbar.ProgressBar {
	if d.Progress == nil {
		return nil
	}
	barTotal := int64(total)
	if barTotal <= 0 {
		barTotal = -1 // Trigger spinner mode
	}
	return progressbar.NewOptions64(barTotal,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(d.Progress),
		progressbar.OptionShowCount(),
	)
}

// FFmpeg adapts the video package to Codec.
type FFmpeg struct{}

func (FFmpeg) Probe(ctx context.Context, path string) (types.VideoInfo, error) {
	return video.Probe(ctx, path)
}

func (FFmpeg) ExtractAudio(ctx context.Context, input, dst string) error {
	return video.ExtractAudio(ctx, input, dst)
}

func (FFmpeg) OpenDecoder(ctx context.Context, path string, info types.VideoInfo) (FrameReader, error) {
	dec, err := video.NewDecoder(ctx, path, info)
	if err != nil {
		return nil, err
	}
	return dec, nil
}

func (FFmpeg) OpenEncoder(ctx context.Context, path string, info types.VideoInfo, audioPath string) (FrameWriter, error) {
	enc, err := video.NewEncoder(ctx, path, info, audioPath)
	if err != nil {
		return nil, err
	}
	return enc, nil
}
