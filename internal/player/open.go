package player

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/satindergrewal/sonora/internal/audio"
	"github.com/satindergrewal/sonora/internal/media"
)

// decoded is a ready-to-play source in its native format.
type decoded struct {
	streamer beep.StreamSeekCloser
	format   beep.Format
}

// memFile is a seekable in-memory body; beep decoders need Seek to report length.
type memFile struct{ *bytes.Reader }

func (memFile) Close() error { return nil }

func isRemote(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

func extension(url string) string {
	u := url
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.ToLower(path.Ext(u))
}

// openSource returns the raw bytes behind a local path or http(s) URL.
func openSource(ctx context.Context, client *http.Client, url string) (io.ReadSeekCloser, error) {
	if !isRemote(url) {
		f, err := os.Open(url)
		if err != nil {
			return nil, media.Fail(media.ErrNetworkOrDecode, url, err)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, media.Fail(media.ErrNetworkOrDecode, url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, classify(ctx, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, media.Fail(media.ErrNetworkOrDecode, url, fmt.Errorf("status %d", resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(ctx, url, err)
	}
	return memFile{bytes.NewReader(body)}, nil
}

// decodeAnalysable decodes in-process so a processor can sit in the chain.
// Formats without an in-process decoder are unsupported in this mode.
func decodeAnalysable(ctx context.Context, client *http.Client, url string) (*decoded, error) {
	ext := extension(url)
	switch ext {
	case ".mp3", ".wav", ".flac", ".ogg", ".oga":
	default:
		return nil, media.Fail(media.ErrUnsupportedSource, url, fmt.Errorf("no in-process decoder for %q", ext))
	}

	rc, err := openSource(ctx, client, url)
	if err != nil {
		return nil, err
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch ext {
	case ".mp3":
		s, format, err = mp3.Decode(rc)
	case ".wav":
		s, format, err = wav.Decode(rc)
	case ".flac":
		s, format, err = flac.Decode(rc)
	default:
		s, format, err = vorbis.Decode(rc)
	}
	if err != nil {
		rc.Close()
		return nil, media.Fail(media.ErrNetworkOrDecode, url, err)
	}
	return &decoded{streamer: s, format: format}, nil
}

// decodeOpaque hands the whole source to ffmpeg. Anything ffmpeg reads
// plays, but the result is resampled outside the processor chain.
func decodeOpaque(ctx context.Context, url string) (*decoded, error) {
	samples, err := audio.DecodeFile(ctx, url)
	if err != nil {
		return nil, classify(ctx, url, err)
	}
	if len(samples) == 0 {
		return nil, media.Fail(media.ErrNetworkOrDecode, url, errors.New("no audio"))
	}
	return &decoded{streamer: audio.NewPCM(samples), format: audio.Format}, nil
}

func classify(ctx context.Context, url string, err error) error {
	if ctx.Err() != nil {
		return media.Fail(media.ErrAborted, url, ctx.Err())
	}
	return media.Fail(media.ErrNetworkOrDecode, url, err)
}
