package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/satindergrewal/sonora/internal/audio"
)

// DefaultBitrate is the MP3 bitrate used when none is configured.
const DefaultBitrate = "192k"

// HTTPHandler serves the equalised deck output as a chunked MP3 stream.
// Each connection runs its own ffmpeg encoder.
type HTTPHandler struct {
	broadcaster *Broadcaster[[]int16]
	bitrate     string
	logger      zerolog.Logger
}

// NewHTTPHandler creates an HTTP stream handler.
func NewHTTPHandler(b *Broadcaster[[]int16], bitrate string, logger zerolog.Logger) *HTTPHandler {
	if bitrate == "" {
		bitrate = DefaultBitrate
	}
	return &HTTPHandler{
		broadcaster: b,
		bitrate:     bitrate,
		logger:      logger.With().Str("component", "http-stream").Logger(),
	}
}

// flushWriter pushes every chunk to the client as soon as it is written.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	fw.f.Flush()
	return n, err
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", encoderArgs(h.bitrate)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		h.logger.Error().Err(err).Msg("stdin pipe")
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.logger.Error().Err(err).Msg("stdout pipe")
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	if err := cmd.Start(); err != nil {
		h.logger.Error().Err(err).Msg("ffmpeg start")
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}
	defer cmd.Wait()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("ICY-Name", "sonora")

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)
	h.logger.Info().Int("listeners", h.broadcaster.ListenerCount()).Msg("listener connected")
	defer h.logger.Info().Msg("listener disconnected")

	go h.feed(ctx, stdin, listener)

	if _, err := io.Copy(flushWriter{w: w, f: flusher}, stdout); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug().Err(err).Msg("stream ended")
	}
}

// feed writes PCM frames into the encoder until the client or the
// broadcaster goes away.
func (h *HTTPHandler) feed(ctx context.Context, stdin io.WriteCloser, l *Listener[[]int16]) {
	defer stdin.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.Done():
			return
		case frame := <-l.C:
			if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
				return
			}
		}
	}
}

// encoderArgs builds the ffmpeg arguments for PCM stdin -> MP3 stdout.
func encoderArgs(bitrate string) []string {
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", bitrate,
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	}
}
