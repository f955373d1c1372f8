package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/keyredact/internal/types"
	"github.com/andresmejia3/keyredact/internal/utils"
)

const (
	VideoCodec = "libx264"
	AudioCodec = "aac"
)

// TempAudioPath places the intermediate audio track next to the output,
// replacing its extension: out/clip.mp4 -> out/clip.temp-audio.m4a
func TempAudioPath(outputPath string) string {
	ext := filepath.Ext(outputPath)
	return strings.TrimSuffix(outputPath, ext) + ".temp-audio.m4a"
}

// ExtractAudio re-encodes the first audio stream of input into dst as AAC.
func ExtractAudio(ctx context.Context, input, dst string) error {
	cmd := utils.NewSafeCommand(ctx, "ffmpeg", "-hide_banner", "-loglevel", "error", "-y",
		"-i", input, "-vn", "-map", "0:a:0", "-c:a", AudioCodec, dst)
	if err := cmd.Run(); err != nil {
		return cmd.Wrap("audio extraction", err)
	}
	return nil
}

// Decoder streams raw RGBA frames out of an ffmpeg child process.
type Decoder struct {
	Cmd    *utils.SafeCommand
	out    io.ReadCloser
	width  int
	height int
}

// NewDecoder starts ffmpeg decoding the first video stream of path to rawvideo RGBA.
func NewDecoder(ctx context.Context, path string, info types.VideoInfo) (*Decoder, error) {
	cmd := utils.NewSafeCommand(ctx, "ffmpeg", "-hide_banner", "-loglevel", "error",
		"-i", path, "-map", "0:v:0", "-f", "rawvideo", "-pix_fmt", "rgba", "-")
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start decoder: %w", err)
	}
	return &Decoder{Cmd: cmd, out: out, width: info.Width, height: info.Height}, nil
}

// ReadFrame returns the next frame, or io.EOF once the stream is exhausted.
// Each call allocates a fresh frame.
func (d *Decoder) ReadFrame() (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	if _, err := io.ReadFull(d.out, img.Pix); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("truncated frame: %w", err)
		}
		return nil, err
	}
	return img, nil
}

// Close releases the pipe and reaps the process.
func (d *Decoder) Close() error {
	d.out.Close()
	if err := d.Cmd.Wait(); err != nil {
		return d.Cmd.Wrap("decoder", err)
	}
	return nil
}

// Encoder feeds raw RGBA frames into an ffmpeg child that writes the output container.
type Encoder struct {
	Cmd    *utils.SafeCommand
	in     io.WriteCloser
	width  int
	height int
	closed bool
}

// EncoderArgs builds the ffmpeg command line. audioPath may be empty for silent video.
func EncoderArgs(outputPath string, info types.VideoInfo, audioPath string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"-framerate", info.FrameRate,
		"-i", "-",
	}
	if audioPath != "" {
		args = append(args, "-i", audioPath)
	}
	args = append(args, "-map", "0:v:0")
	if audioPath != "" {
		// Already AAC; copying keeps the track untouched.
		args = append(args, "-map", "1:a:0", "-c:a", "copy")
	}
	// yuv420p needs even dimensions; pad by one pixel rather than fail.
	if info.Width%2 != 0 || info.Height%2 != 0 {
		args = append(args, "-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2")
	}
	args = append(args, "-c:v", VideoCodec, "-pix_fmt", "yuv420p",
		"-r", info.FrameRate, outputPath)
	return args
}

// NewEncoder starts ffmpeg reading frames from stdin.
func NewEncoder(ctx context.Context, outputPath string, info types.VideoInfo, audioPath string) (*Encoder, error) {
	cmd := utils.NewSafeCommand(ctx, "ffmpeg", EncoderArgs(outputPath, info, audioPath)...)
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start encoder: %w", err)
	}
	return &Encoder{Cmd: cmd, in: in, width: info.Width, height: info.Height}, nil
}

// WriteFrame sends one frame to the encoder. The frame must match the video size.
func (e *Encoder) WriteFrame(img *image.RGBA) error {
	b := img.Bounds()
	if b.Dx() != e.width || b.Dy() != e.height {
		return fmt.Errorf("frame is %dx%d, encoder expects %dx%d", b.Dx(), b.Dy(), e.width, e.height)
	}
	rowBytes := e.width * 4
	if img.Stride == rowBytes {
		_, err := e.in.Write(img.Pix[:rowBytes*e.height])
		return e.writeErr(err)
	}
	for y := 0; y < e.height; y++ {
		off := y * img.Stride
		if _, err := e.in.Write(img.Pix[off : off+rowBytes]); err != nil {
			return e.writeErr(err)
		}
	}
	return nil
}

func (e *Encoder) writeErr(err error) error {
	if err == nil {
		return nil
	}
	return e.Cmd.Wrap("encoder write", err)
}

// Close flushes stdin and waits for ffmpeg to finish the container.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.in.Close()
	if err := e.Cmd.Wait(); err != nil {
		return e.Cmd.Wrap("encoder", err)
	}
	return nil
}

// Abort kills the encoder without finalizing the output.
func (e *Encoder) Abort() {
	if e.closed {
		return
	}
	e.closed = true
	e.in.Close()
	if e.Cmd.Process != nil {
		e.Cmd.Process.Kill()
	}
	e.Cmd.Wait()
}

// Available reports whether both ffmpeg and ffprobe are installed.
func Available() error {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if err := utils.RequireBinary(bin); err != nil {
			return err
		}
	}
	return nil
}

// RemoveTemp deletes a temporary artifact, ignoring a missing file.
func RemoveTemp(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
