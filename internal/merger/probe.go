package merger

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

// MediaInfo describes a media file as reported by ffprobe
type MediaInfo struct {
	Duration   time.Duration `json:"duration"`
	Width      int           `json:"width,omitempty"`
	Height     int           `json:"height,omitempty"`
	FPS        float64       `json:"fps,omitempty"`
	VideoCodec string        `json:"video_codec,omitempty"`
	AudioCodec string        `json:"audio_codec,omitempty"`
	Bitrate    int64         `json:"bitrate,omitempty"`
}

// HasVideo reports whether a video stream was found
func (m *MediaInfo) HasVideo() bool { return m.VideoCodec != "" }

// HasAudio reports whether an audio stream was found
func (m *MediaInfo) HasAudio() bool { return m.AudioCodec != "" }

// Prober inspects media files
type Prober interface {
	Probe(ctx context.Context, path string) (*MediaInfo, error)
}

// FFprobe runs the ffprobe binary
type FFprobe struct {
	// Path to ffprobe; empty uses $PATH
	Path string
}

// Probe returns stream and container information for path
func (f FFprobe) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	bin := f.Path
	if bin == "" {
		bin = "ffprobe"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-show_entries", "stream=codec_type,width,height,r_frame_rate,codec_name:format=duration,bit_rate",
		"-of", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to get media info: %w", err)
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (*MediaInfo, error) {
	var probeResult struct {
		Streams []struct {
			CodecType  string `json:"codec_type"`
			Width      int    `json:"width"`
			Height     int    `json:"height"`
			RFrameRate string `json:"r_frame_rate"`
			CodecName  string `json:"codec_name"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
			BitRate  string `json:"bit_rate"`
		} `json:"format"`
	}

	if err := json.Unmarshal(output, &probeResult); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(probeResult.Streams) == 0 {
		return nil, fmt.Errorf("no media streams found")
	}

	info := &MediaInfo{}
	for _, stream := range probeResult.Streams {
		switch stream.CodecType {
		case "video":
			if info.VideoCodec != "" {
				continue
			}
			info.VideoCodec = stream.CodecName
			info.Width = stream.Width
			info.Height = stream.Height
			// Parse frame rate (format: "num/den")
			var num, den int
			if _, err := fmt.Sscanf(stream.RFrameRate, "%d/%d", &num, &den); err == nil && den > 0 {
				info.FPS = float64(num) / float64(den)
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = stream.CodecName
			}
		}
	}

	var seconds float64
	if _, err := fmt.Sscanf(probeResult.Format.Duration, "%f", &seconds); err == nil {
		info.Duration = time.Duration(seconds * float64(time.Second))
	}
	_, _ = fmt.Sscanf(probeResult.Format.BitRate, "%d", &info.Bitrate)

	return info, nil
}
