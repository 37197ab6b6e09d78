// Package api exposes the playback session over HTTP: a JSON control
// surface, a websocket for live status, spectrum and touch gestures, and
// the audio stream endpoints.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/satindergrewal/sonora/internal/audio"
	"github.com/satindergrewal/sonora/internal/gesture"
	"github.com/satindergrewal/sonora/internal/library"
	"github.com/satindergrewal/sonora/internal/media"
	"github.com/satindergrewal/sonora/internal/profile"
	"github.com/satindergrewal/sonora/internal/queue"
	"github.com/satindergrewal/sonora/internal/session"
	"github.com/satindergrewal/sonora/internal/sleep"
	"github.com/satindergrewal/sonora/internal/stream"
)

// Player is the session surface the API drives.
type Player interface {
	Load(ctx context.Context, t media.Track) error
	TogglePlay(ctx context.Context) error
	Pause()
	Next(ctx context.Context) error
	Prev(ctx context.Context) error
	Seek(t float64)
	SetVolume(v float64)
	Volume() float64
	CurrentTime() float64
	Duration() float64
	Zoomed() bool
	SetZoomed(z bool)
	SetQueue(q media.Queue)
	Queue() media.Queue
	SetShuffle(on bool)
	SetRepeat(m queue.RepeatMode)
	ApplyPreset(name string) (audio.EqSettings, error)
	SetBandGain(freq, db float64) (audio.EqSettings, error)
	Equalizer() audio.EqSettings
	Snapshot() session.Snapshot
	Subscribe() *stream.Listener[session.Snapshot]
	Unsubscribe(l *stream.Listener[session.Snapshot])
}

// Options configure the HTTP surface.
type Options struct {
	Origins []string     // CORS origins; empty allows all
	Audio   http.Handler // GET /stream
	WebRTC  http.Handler // POST /offer
}

// Server wires the session, library, profile and sleep timer to HTTP.
type Server struct {
	player  Player
	library *library.Library
	profile *profile.Syncer
	sleep   *sleep.Scheduler
	hub     *Hub
	logger  zerolog.Logger
	opts    Options

	mu       sync.RWMutex
	filter   library.Filter
	gestures gesture.Config
}

// New creates the server, seeds the gesture table from the profile and
// builds the initial queue.
func New(p Player, lib *library.Library, prof *profile.Syncer, sl *sleep.Scheduler, hub *Hub, logger zerolog.Logger, opts Options) *Server {
	s := &Server{
		player:   p,
		library:  lib,
		profile:  prof,
		sleep:    sl,
		hub:      hub,
		logger:   logger.With().Str("component", "api").Logger(),
		opts:     opts,
		filter:   library.Filter{Collection: library.CollectionAll},
		gestures: gesture.DefaultConfig(),
	}

	if g := prof.Data().Gestures; len(g) > 0 {
		cfg, err := gesture.ParseConfig(gesture.DefaultConfig(), g)
		if err != nil {
			s.logger.Warn().Err(err).Msg("ignoring stored gesture table")
		} else {
			s.gestures = cfg
		}
	}

	lib.OnReload(s.RefreshQueue)
	prof.OnChange(func(profile.UserData) { s.RefreshQueue() })
	s.RefreshQueue()
	return s
}

// SpectrumSink returns a session spectrum callback that pushes bars to
// websocket clients.
func SpectrumSink(h *Hub) func([]float64) {
	return func(bars []float64) {
		h.Broadcast(Message{Type: MsgSpectrum, Data: bars})
	}
}

// SleepNotice returns a sleep timer callback that tells clients playback
// was stopped.
func SleepNotice(h *Hub) func() {
	return func() {
		h.Broadcast(Message{Type: MsgSleep, Data: SleepDTO{}})
	}
}

// RefreshQueue rebuilds the queue from the library and the active filter.
func (s *Server) RefreshQueue() {
	s.mu.RLock()
	f := s.filter
	s.mu.RUnlock()
	q := s.library.Queue(f, s.profile.Data())
	s.player.SetQueue(q)
	s.logger.Debug().Int("tracks", q.Len()).Str("collection", string(f.Collection)).Msg("queue rebuilt")
}

func (s *Server) gestureConfig() gesture.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gestures
}

// Run forwards session snapshots to websocket clients until ctx is done.
func (s *Server) Run(ctx context.Context) {
	l := s.player.Subscribe()
	defer s.player.Unsubscribe(l)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.Done():
			return
		case snap := <-l.C:
			s.hub.Broadcast(Message{Type: MsgStatus, Data: s.status(snap)})
		}
	}
}

func (s *Server) status(snap session.Snapshot) StatusDTO {
	data := s.profile.Data()
	return newStatusDTO(snap, data.IsFavorite)
}

// Router builds the gin engine with every route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.logger))
	r.Use(s.cors())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/queue", s.getQueue)

		api.POST("/load", s.load)
		api.POST("/toggle", s.toggle)
		api.POST("/pause", s.pause)
		api.POST("/next", s.next)
		api.POST("/prev", s.prev)
		api.POST("/seek", s.seek)
		api.POST("/volume", s.volume)
		api.POST("/zoom", s.zoom)
		api.POST("/shuffle", s.shuffle)
		api.POST("/repeat", s.repeat)

		api.GET("/eq", s.getEqualizer)
		api.POST("/eq/preset", s.eqPreset)
		api.POST("/eq/band", s.eqBand)

		api.GET("/sleep", s.getSleep)
		api.POST("/sleep", s.setSleep)
		api.DELETE("/sleep", s.cancelSleep)

		api.GET("/filter", s.getFilter)
		api.POST("/filter", s.setFilter)

		api.POST("/favorites/:id", s.addFavorite)
		api.DELETE("/favorites/:id", s.removeFavorite)

		api.GET("/playlists", s.getPlaylists)
		api.POST("/playlists", s.savePlaylist)
		api.DELETE("/playlists/:id", s.deletePlaylist)

		api.GET("/gestures", s.getGestures)
		api.POST("/gestures", s.setGestures)

		api.GET("/profile/status", s.profileStatus)
	}

	r.GET("/ws", s.websocket)
	if s.opts.Audio != nil {
		r.GET("/stream", gin.WrapH(s.opts.Audio))
	}
	if s.opts.WebRTC != nil {
		r.POST("/offer", gin.WrapH(s.opts.WebRTC))
	}
	return r
}

func (s *Server) cors() gin.HandlerFunc {
	config := cors.DefaultConfig()
	if len(s.opts.Origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = s.opts.Origins
	}
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	return cors.New(config)
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/stream" || c.Request.URL.Path == "/ws" {
			return
		}
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	client := newClient(s.hub, conn, s.player, s.gestureConfig, s.logger)
	if !s.hub.registerClient(client) {
		conn.Close()
		return
	}
	s.hub.sendTo(client, Message{Type: MsgStatus, Data: s.status(s.player.Snapshot())})

	go client.writePump()
	client.readPump()
}
