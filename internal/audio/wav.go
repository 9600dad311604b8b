package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/kartoza/kartoza-screenmux/internal/models"
)

// wavAudioFormatPCM is the WAVE_FORMAT_PCM tag
const wavAudioFormatPCM = 1

// ExportWAV wraps a headerless PCM sink left behind by a failed merge in a
// WAV container so it can be played or imported. It returns the number of
// sample frames written. A trailing partial frame is dropped.
func ExportWAV(pcmPath, wavPath string, format models.AudioTrack) (int64, error) {
	if format.Format != models.AudioSampleFormat || format.BitsPerSample != 16 {
		return 0, fmt.Errorf("unsupported sample format %q", format.Format)
	}

	in, err := os.Open(pcmPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open PCM file: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(wavPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create WAV file: %w", err)
	}

	enc := wav.NewEncoder(out, format.SampleRate, format.BitsPerSample, format.ChannelCount, wavAudioFormatPCM)

	frames, err := copyPCM(enc, bufio.NewReader(in), format)
	if cerr := enc.Close(); err == nil {
		err = cerr
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(wavPath)
		return 0, err
	}
	return frames, nil
}

func copyPCM(enc *wav.Encoder, r io.Reader, format models.AudioTrack) (int64, error) {
	frameSize := format.FrameSize()
	raw := make([]byte, frameSize*1024)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: format.ChannelCount, SampleRate: format.SampleRate},
		SourceBitDepth: format.BitsPerSample,
	}

	var frames int64
	for {
		n, err := io.ReadFull(r, raw)
		n -= n % frameSize
		if n > 0 {
			samples := n / 2
			if cap(buf.Data) < samples {
				buf.Data = make([]int, samples)
			}
			buf.Data = buf.Data[:samples]
			for i := range samples {
				buf.Data[i] = int(int16(binary.LittleEndian.Uint16(raw[i*2:])))
			}
			if werr := enc.Write(buf); werr != nil {
				return frames, fmt.Errorf("failed to write WAV samples: %w", werr)
			}
			frames += int64(n / frameSize)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("failed to read PCM file: %w", err)
		}
	}
}
