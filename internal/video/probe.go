// Package video drives the ffmpeg and ffprobe binaries: probing, raw frame
// decoding, encoding and audio extraction.
package video

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/andresmejia3/keyredact/internal/types"
	"github.com/andresmejia3/keyredact/internal/utils"
)

// ffprobeOutput is the structured JSON we ask ffprobe for
type ffprobeOutput struct {
	Streams []struct {
		CodecType     string `json:"codec_type"`
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		RFrameRate    string `json:"r_frame_rate"`
		AvgFrameRate  string `json:"avg_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
		Tags          struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideDataList []sideData `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// sideData is one entry of a stream's side_data_list (display matrix).
type sideData struct {
	Rotation float64 `json:"rotation"`
}

// Probe reads dimensions, frame rate, frame count and audio presence of path.
func Probe(ctx context.Context, path string) (types.VideoInfo, error) {
	if err := utils.RequireBinary("ffprobe"); err != nil {
		return types.VideoInfo{}, err
	}

	cmd := utils.NewSafeCommand(ctx, "ffprobe", "-v", "error",
		"-show_entries", "stream=codec_type,width,height,r_frame_rate,avg_frame_rate,nb_frames"+
			":stream_tags=rotate:stream_side_data=rotation:format=duration",
		"-of", "json", path)
	out, err := cmd.Output()
	if err != nil {
		return types.VideoInfo{}, cmd.Wrap("ffprobe", err)
	}

	info, err := parseProbe(out)
	if err != nil {
		return types.VideoInfo{}, err
	}

	// Slow path: container metadata has no frame count (common for MKV/WebM).
	if info.Frames == 0 {
		info.Frames = countPackets(ctx, path)
	}
	return info, nil
}

func parseProbe(out []byte) (types.VideoInfo, error) {
	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return types.VideoInfo{}, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}

	var info types.VideoInfo
	foundVideo := false
	for _, s := range res.Streams {
		switch s.CodecType {
		case "video":
			if foundVideo {
				continue
			}
			foundVideo = true
			info.Width, info.Height = s.Width, s.Height

			// ffmpeg auto-rotates decoded frames, so quarter turns swap the frame shape.
			info.Rotation = streamRotation(s.Tags.Rotate, s.SideDataList)
			if info.Rotation == 90 || info.Rotation == 270 {
				info.Width, info.Height = info.Height, info.Width
			}

			rate := s.RFrameRate
			fps, err := parseRate(rate)
			if err != nil {
				rate = s.AvgFrameRate
				fps, err = parseRate(rate)
			}
			if err != nil {
				return types.VideoInfo{}, fmt.Errorf("unknown frame rate %q: %w", s.RFrameRate, err)
			}
			info.FrameRate, info.FPS = rate, fps

			if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
				info.Frames = n
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if !foundVideo {
		return types.VideoInfo{}, fmt.Errorf("no video stream found")
	}
	if info.Width <= 0 || info.Height <= 0 {
		return types.VideoInfo{}, fmt.Errorf("invalid video dimensions %dx%d", info.Width, info.Height)
	}

	if d, err := strconv.ParseFloat(res.Format.Duration, 64); err == nil {
		info.Duration = d
	}
	return info, nil
}

// streamRotation returns the display rotation in degrees, normalized to [0, 360).
// Display matrix side data wins over the legacy rotate tag.
func streamRotation(tag string, list []sideData) int {
	deg := 0.0
	found := false
	for _, sd := range list {
		if sd.Rotation != 0 {
			deg, found = sd.Rotation, true
			break
		}
	}
	if !found {
		if v, err := strconv.ParseFloat(strings.TrimSpace(tag), 64); err == nil {
			deg = v
		}
	}
	r := int(math.Round(deg)) % 360
	if r < 0 {
		r += 360
	}
	return r
}

// parseRate converts ffprobe's "num/den" (or plain decimal) into frames per second.
func parseRate(rate string) (float64, error) {
	num, den, found := strings.Cut(strings.TrimSpace(rate), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, err
	}
	d := 1.0
	if found {
		if d, err = strconv.ParseFloat(den, 64); err != nil {
			return 0, err
		}
	}
	if d == 0 || n <= 0 || math.IsInf(n/d, 0) || math.IsNaN(n/d) {
		return 0, fmt.Errorf("invalid rate %q", rate)
	}
	return n / d, nil
}

// countPackets counts video packets, which is accurate but reads the whole file.
// It returns 0 on failure so callers can fall back to a spinner.
func countPackets(ctx context.Context, path string) int {
	cmd := utils.NewSafeCommand(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0", "-count_packets",
		"-show_entries", "stream=nb_read_packets", "-of", "json", path)
	out, err := cmd.Output()
	if err != nil {
		return 0
	}

	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil || len(res.Streams) == 0 {
		return 0
	}
	count, err := strconv.Atoi(res.Streams[0].NbReadPackets)
	if err != nil {
		return 0
	}
	return count
}
