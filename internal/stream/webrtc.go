package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/sonora/internal/audio"
)

// OpusBitrate is the encoder bitrate for WebRTC peers.
const OpusBitrate = 128000

// WebRTCHandler negotiates WebRTC peers and feeds each one the deck
// output as Opus.
type WebRTCHandler struct {
	broadcaster *Broadcaster[[]int16]
	logger      zerolog.Logger

	mu    sync.Mutex
	peers map[string]*peer
}

type peer struct {
	id     string
	pc     *webrtc.PeerConnection
	track  *webrtc.TrackLocalStaticSample
	hangup chan struct{}
	once   sync.Once
}

// negotiationError carries the HTTP status for a failed offer.
type negotiationError struct {
	status int
	step   string
	err    error
}

func (e *negotiationError) Error() string { return fmt.Sprintf("%s: %v", e.step, e.err) }

func (e *negotiationError) Unwrap() error { return e.err }

// NewWebRTCHandler creates a WebRTC stream handler.
func NewWebRTCHandler(b *Broadcaster[[]int16], logger zerolog.Logger) *WebRTCHandler {
	return &WebRTCHandler{
		broadcaster: b,
		logger:      logger.With().Str("component", "webrtc").Logger(),
		peers:       make(map[string]*peer),
	}
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	p, err := h.negotiate(offer)
	if err != nil {
		var ne *negotiationError
		status := http.StatusInternalServerError
		if errors.As(err, &ne) {
			status = ne.status
		}
		h.logger.Warn().Err(err).Msg("negotiation failed")
		http.Error(w, err.Error(), status)
		return
	}

	select {
	case <-webrtc.GatheringCompletePromise(p.pc):
	case <-r.Context().Done():
		p.pc.Close()
		return
	}

	h.mu.Lock()
	h.peers[p.id] = p
	count := len(h.peers)
	h.mu.Unlock()
	h.logger.Info().Str("peer", p.id).Int("peers", count).Msg("peer connected")

	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			h.hangup(p)
		}
	})
	go h.streamToPeer(p)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p.pc.LocalDescription())
}

// negotiate answers offer with a send-only Opus track.
func (h *WebRTCHandler) negotiate(offer webrtc.SessionDescription) (*peer, error) {
	fail := func(status int, step string, err error) error {
		return &negotiationError{status: status, step: step, err: err}
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fail(http.StatusInternalServerError, "create peer connection", err)
	}
	p := &peer{id: uuid.NewString(), pc: pc, hangup: make(chan struct{})}

	p.track, err = webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"sonora",
	)
	if err != nil {
		pc.Close()
		return nil, fail(http.StatusInternalServerError, "create audio track", err)
	}
	if _, err := pc.AddTrack(p.track); err != nil {
		pc.Close()
		return nil, fail(http.StatusInternalServerError, "add track", err)
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return nil, fail(http.StatusBadRequest, "set remote description", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, fail(http.StatusInternalServerError, "create answer", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, fail(http.StatusInternalServerError, "set local description", err)
	}
	return p, nil
}

func (h *WebRTCHandler) streamToPeer(p *peer) {
	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		h.logger.Error().Err(err).Msg("opus encoder")
		h.hangup(p)
		return
	}
	enc.SetBitrate(OpusBitrate)

	buf := make([]byte, 4000)
	for {
		select {
		case <-p.hangup:
			return
		case <-listener.Done():
			return
		case frame := <-listener.C:
			n, err := enc.Encode(frame, buf)
			if err != nil {
				h.logger.Warn().Err(err).Msg("opus encode")
				continue
			}
			sample := media.Sample{Data: buf[:n], Duration: audio.FrameDuration}
			if err := p.track.WriteSample(sample); err != nil {
				h.hangup(p)
				return
			}
		}
	}
}

// hangup closes p once and forgets it.
func (h *WebRTCHandler) hangup(p *peer) {
	p.once.Do(func() {
		close(p.hangup)
		h.mu.Lock()
		delete(h.peers, p.id)
		count := len(h.peers)
		h.mu.Unlock()
		p.pc.Close()
		h.logger.Info().Str("peer", p.id).Int("peers", count).Msg("peer disconnected")
	})
}

// Close hangs up every peer.
func (h *WebRTCHandler) Close() {
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		h.hangup(p)
	}
}
