package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/gopxl/beep/v2"
)

// DecodeFile asks ffmpeg for the whole of path (a file or URL) as
// interleaved stereo int16 at SampleRate. ffmpeg's own complaint is kept
// in the returned error.
func DecodeFile(ctx context.Context, path string) ([]int16, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "ffmpeg", decoderArgs(path)...)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("ffmpeg decode %s: %w: %s", path, err, msg)
		}
		return nil, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}
	return BytesToSamples(out), nil
}

func decoderArgs(path string) []string {
	return []string{
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-loglevel", "error",
		"pipe:1",
	}
}

// BytesToSamples reads little-endian int16 samples. A trailing odd byte is
// ignored.
func BytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(s))
	}
	return buf
}

// PCM is an in-memory interleaved stereo int16 buffer exposed as a
// beep.StreamSeekCloser at SampleRate.
type PCM struct {
	samples []int16
	pos     int // in stereo frames
}

// NewPCM wraps interleaved stereo samples.
func NewPCM(samples []int16) *PCM {
	return &PCM{samples: samples}
}

func (p *PCM) Stream(out [][2]float64) (int, bool) {
	n := 0
	for n < len(out) && p.pos < p.Len() {
		i := p.pos * Channels
		out[n][0] = float64(p.samples[i]) / 32768
		out[n][1] = float64(p.samples[i+1]) / 32768
		n++
		p.pos++
	}
	return n, n > 0
}

func (p *PCM) Err() error { return nil }

func (p *PCM) Len() int { return len(p.samples) / Channels }

func (p *PCM) Position() int { return p.pos }

func (p *PCM) Seek(pos int) error {
	if pos < 0 || pos > p.Len() {
		return fmt.Errorf("pcm: seek %d out of range [0, %d]", pos, p.Len())
	}
	p.pos = pos
	return nil
}

func (p *PCM) Close() error { return nil }

var _ beep.StreamSeekCloser = (*PCM)(nil)
