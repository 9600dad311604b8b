package models

import (
	"fmt"
	"time"
)

// Fixed audio format of the system-audio sink: headerless s16le PCM
const (
	AudioSampleRate    = 44100
	AudioChannelCount  = 2
	AudioBitsPerSample = 16
	// AudioSampleFormat is the ffmpeg raw demuxer name for the sink format
	AudioSampleFormat = "s16le"
)

// Fixed video encoder configuration
const (
	VideoWidth     = 1080
	VideoHeight    = 1920
	VideoFrameRate = 30
	VideoCodec     = "h264"
	VideoBitrate   = 8 * 1024 * 1024
	// VideoPixelFormat is the raw frame layout carried on the encoder surface
	VideoPixelFormat = "yuv420p"
)

// AudioTrack describes the raw audio elementary stream
type AudioTrack struct {
	SampleRate    int    `json:"sample_rate"`
	ChannelCount  int    `json:"channel_count"`
	BitsPerSample int    `json:"bits_per_sample"`
	Format        string `json:"format"`
}

// DefaultAudioTrack returns the only audio format the pipeline records
func DefaultAudioTrack() AudioTrack {
	return AudioTrack{
		SampleRate:    AudioSampleRate,
		ChannelCount:  AudioChannelCount,
		BitsPerSample: AudioBitsPerSample,
		Format:        AudioSampleFormat,
	}
}

// FrameSize returns the number of bytes in one sample frame (all channels)
func (t AudioTrack) FrameSize() int {
	return t.ChannelCount * t.BitsPerSample / 8
}

// ByteRate returns the number of bytes produced per second
func (t AudioTrack) ByteRate() int {
	return t.SampleRate * t.FrameSize()
}

// Duration returns the playback length of n bytes of PCM in this format
func (t AudioTrack) Duration(n int64) time.Duration {
	rate := int64(t.ByteRate())
	if rate == 0 {
		return 0
	}
	return time.Duration(n * int64(time.Second) / rate)
}

// VideoTrack describes the encoded screen stream
type VideoTrack struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	FrameRate   int    `json:"frame_rate"`
	Codec       string `json:"codec"`
	Bitrate     int    `json:"bitrate"`
	PixelFormat string `json:"pixel_format"`
}

// DefaultVideoTrack returns the reference encoder configuration
func DefaultVideoTrack() VideoTrack {
	return VideoTrack{
		Width:       VideoWidth,
		Height:      VideoHeight,
		FrameRate:   VideoFrameRate,
		Codec:       VideoCodec,
		Bitrate:     VideoBitrate,
		PixelFormat: VideoPixelFormat,
	}
}

// FrameSize returns the size in bytes of one raw frame on the encoder surface
func (t VideoTrack) FrameSize() int {
	// yuv420p: full luma plane plus two quarter chroma planes
	return t.Width * t.Height * 3 / 2
}

// Resolution returns the size in ffmpeg's WxH notation
func (t VideoTrack) Resolution() string {
	return fmt.Sprintf("%dx%d", t.Width, t.Height)
}
