package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/satindergrewal/sonora/internal/gesture"
	"github.com/satindergrewal/sonora/internal/library"
	"github.com/satindergrewal/sonora/internal/media"
	"github.com/satindergrewal/sonora/internal/profile"
	"github.com/satindergrewal/sonora/internal/queue"
	"github.com/satindergrewal/sonora/internal/session"
	"github.com/satindergrewal/sonora/internal/sleep"
)

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// playbackError maps session and media failures to responses.
func (s *Server) playbackError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSuperseded), errors.Is(err, media.ErrAborted):
		c.JSON(http.StatusConflict, gin.H{"error": "superseded by a newer request"})
	case errors.Is(err, session.ErrEmptyQueue):
		c.JSON(http.StatusConflict, gin.H{"error": "queue is empty"})
	case errors.Is(err, media.ErrUnsupportedSource):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "kind": session.ErrKindUnsupportedSource})
	case errors.Is(err, media.ErrNetworkOrDecode):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "kind": session.ErrKindNetworkOrDecode})
	default:
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("playback request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) respondStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status(s.player.Snapshot()))
}

func (s *Server) getStatus(c *gin.Context) {
	s.respondStatus(c)
}

func (s *Server) getQueue(c *gin.Context) {
	data := s.profile.Data()
	q := s.player.Queue()
	out := make([]TrackDTO, 0, q.Len())
	for _, t := range q.Tracks() {
		out = append(out, newTrackDTO(t, data.IsFavorite(t.ID)))
	}
	c.JSON(http.StatusOK, gin.H{"tracks": out})
}

type loadRequest struct {
	ID string `json:"id" binding:"required"`
}

func (s *Server) load(c *gin.Context) {
	var req loadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	track, ok := s.player.Queue().Lookup(req.ID)
	if !ok {
		track, ok = s.library.Lookup(req.ID)
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "track not found"})
		return
	}
	if err := s.player.Load(c.Request.Context(), track); err != nil {
		s.playbackError(c, err)
		return
	}
	s.respondStatus(c)
}

func (s *Server) toggle(c *gin.Context) {
	if err := s.player.TogglePlay(c.Request.Context()); err != nil {
		s.playbackError(c, err)
		return
	}
	s.respondStatus(c)
}

func (s *Server) pause(c *gin.Context) {
	s.player.Pause()
	s.respondStatus(c)
}

func (s *Server) next(c *gin.Context) {
	if err := s.player.Next(c.Request.Context()); err != nil {
		s.playbackError(c, err)
		return
	}
	s.respondStatus(c)
}

func (s *Server) prev(c *gin.Context) {
	if err := s.player.Prev(c.Request.Context()); err != nil {
		s.playbackError(c, err)
		return
	}
	s.respondStatus(c)
}

type seekRequest struct {
	Time *float64 `json:"time" binding:"required"`
}

func (s *Server) seek(c *gin.Context) {
	var req seekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.player.Seek(*req.Time)
	s.respondStatus(c)
}

type volumeRequest struct {
	Volume *float64 `json:"volume" binding:"required"`
}

func (s *Server) volume(c *gin.Context) {
	var req volumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.player.SetVolume(*req.Volume)
	s.respondStatus(c)
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (s *Server) zoom(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.player.SetZoomed(*req.Enabled)
	s.respondStatus(c)
}

func (s *Server) shuffle(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.player.SetShuffle(*req.Enabled)
	s.respondStatus(c)
}

type repeatRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (s *Server) repeat(c *gin.Context) {
	var req repeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	mode, err := queue.ParseRepeatMode(req.Mode)
	if err != nil {
		badRequest(c, err)
		return
	}
	s.player.SetRepeat(mode)
	s.respondStatus(c)
}

func (s *Server) getEqualizer(c *gin.Context) {
	c.JSON(http.StatusOK, newEqualizerDTO(s.player.Equalizer()))
}

type presetRequest struct {
	Preset string `json:"preset" binding:"required"`
}

func (s *Server) eqPreset(c *gin.Context) {
	var req presetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	eq, err := s.player.ApplyPreset(req.Preset)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, newEqualizerDTO(eq))
}

type bandRequest struct {
	Frequency float64  `json:"frequency" binding:"required"`
	Gain      *float64 `json:"gain" binding:"required"`
}

func (s *Server) eqBand(c *gin.Context) {
	var req bandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	eq, err := s.player.SetBandGain(req.Frequency, *req.Gain)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, newEqualizerDTO(eq))
}

func sleepDTO(t sleep.Timer) SleepDTO {
	return SleepDTO{
		Active:           t.Active,
		Deadline:         t.Deadline,
		RemainingSeconds: t.Remaining.Seconds(),
		FadeSeconds:      t.FadeDuration.Seconds(),
	}
}

func (s *Server) getSleep(c *gin.Context) {
	c.JSON(http.StatusOK, sleepDTO(s.sleep.Timer()))
}

type sleepRequest struct {
	Minutes float64 `json:"minutes" binding:"required"`
}

func (s *Server) setSleep(c *gin.Context) {
	var req sleepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.sleep.Set(req.Minutes); err != nil {
		badRequest(c, err)
		return
	}
	timer := sleepDTO(s.sleep.Timer())
	s.hub.Broadcast(Message{Type: MsgSleep, Data: timer})
	c.JSON(http.StatusOK, timer)
}

func (s *Server) cancelSleep(c *gin.Context) {
	s.sleep.Cancel()
	timer := sleepDTO(s.sleep.Timer())
	s.hub.Broadcast(Message{Type: MsgSleep, Data: timer})
	c.JSON(http.StatusOK, timer)
}

func (s *Server) getFilter(c *gin.Context) {
	s.mu.RLock()
	f := s.filter
	s.mu.RUnlock()
	c.JSON(http.StatusOK, f)
}

func (s *Server) setFilter(c *gin.Context) {
	var f library.Filter
	if err := c.ShouldBindJSON(&f); err != nil {
		badRequest(c, err)
		return
	}
	if err := f.Validate(); err != nil {
		badRequest(c, err)
		return
	}
	if f.Collection == "" {
		f.Collection = library.CollectionAll
	}
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
	s.RefreshQueue()
	s.getQueue(c)
}

func (s *Server) addFavorite(c *gin.Context) {
	s.setFavorite(c, true)
}

func (s *Server) removeFavorite(c *gin.Context) {
	s.setFavorite(c, false)
}

func (s *Server) setFavorite(c *gin.Context, on bool) {
	id := c.Param("id")
	if _, ok := s.library.Lookup(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "track not found"})
		return
	}
	s.profile.SetFavorite(id, on)
	c.JSON(http.StatusOK, gin.H{"id": id, "favorite": on})
}

func (s *Server) getPlaylists(c *gin.Context) {
	playlists := s.profile.Data().Playlists
	if playlists == nil {
		playlists = []profile.Playlist{}
	}
	c.JSON(http.StatusOK, gin.H{"playlists": playlists})
}

type playlistRequest struct {
	ID       string   `json:"id"`
	Name     string   `json:"name" binding:"required"`
	TrackIDs []string `json:"track_ids"`
}

func (s *Server) savePlaylist(c *gin.Context) {
	var req playlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	for _, id := range req.TrackIDs {
		if _, ok := s.library.Lookup(id); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown track " + id})
			return
		}
	}
	id := s.profile.SavePlaylist(profile.Playlist{ID: req.ID, Name: req.Name, TrackIDs: req.TrackIDs})
	p, _ := s.profile.Data().Playlist(id)
	c.JSON(http.StatusOK, p)
}

func (s *Server) deletePlaylist(c *gin.Context) {
	if err := s.profile.DeletePlaylist(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getGestures(c *gin.Context) {
	c.JSON(http.StatusOK, s.gestureConfig().Map())
}

func (s *Server) setGestures(c *gin.Context) {
	var req map[string]string
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.mu.Lock()
	cfg, err := gesture.ParseConfig(s.gestures, req)
	if err != nil {
		s.mu.Unlock()
		badRequest(c, err)
		return
	}
	s.gestures = cfg
	s.mu.Unlock()

	s.profile.SetGestures(cfg.Map())
	c.JSON(http.StatusOK, cfg.Map())
}

func (s *Server) profileStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.profile.Status())
}
