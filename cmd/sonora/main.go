package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/satindergrewal/sonora/internal/api"
	"github.com/satindergrewal/sonora/internal/audio"
	"github.com/satindergrewal/sonora/internal/config"
	"github.com/satindergrewal/sonora/internal/library"
	"github.com/satindergrewal/sonora/internal/player"
	"github.com/satindergrewal/sonora/internal/profile"
	"github.com/satindergrewal/sonora/internal/session"
	"github.com/satindergrewal/sonora/internal/sleep"
	"github.com/satindergrewal/sonora/internal/stream"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	level, _ := cfg.LogLevel()
	logger = logger.Level(level)
	if level > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info().Msg("sonora starting up")

	// Library
	lib := library.New(cfg.Library.Path, logger)
	if err := lib.Load(); err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Library.Path).Msg("load library")
	}
	logger.Info().Int("tracks", len(lib.Tracks())).Msg("library loaded")
	if cfg.Library.Watch {
		go func() {
			if err := lib.Watch(ctx); err != nil {
				logger.Warn().Err(err).Msg("library watch stopped")
			}
		}()
	}

	// Profile (optional; playback works without it)
	store, closeStore := openProfileStore(ctx, cfg.Profile, logger)
	defer closeStore()
	prof := profile.NewSyncer(store, cfg.Profile.Debounce, logger)
	if err := prof.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("profile unavailable, starting empty")
	}

	// Media resources and output fan-out
	deck := player.NewDeck(logger)
	go deck.Run(ctx)
	frames := stream.NewBroadcaster[[]int16](stream.FrameBuffer)
	go frames.Run(ctx, deck.Frames())
	surface := player.NewSurface(logger)

	hub := api.NewHub(logger)
	go hub.Run(ctx)

	sess := session.New(logger, deck, surface, audio.NewRegistry(logger), session.Options{
		Analysis:     cfg.Playback.Analysis,
		Volume:       cfg.Playback.Volume,
		SpectrumTick: cfg.Playback.SpectrumTick,
		OnSpectrum:   api.SpectrumSink(hub),
	})
	defer sess.Close()

	timer := sleep.NewScheduler(sess, logger, sleep.Config{
		FadeDuration: cfg.Playback.SleepFade,
		OnFire:       api.SleepNotice(hub),
	})
	defer timer.Cancel()

	webrtcHandler := stream.NewWebRTCHandler(frames, logger)
	defer webrtcHandler.Close()

	srv := api.New(sess, lib, prof, timer, hub, logger, api.Options{
		Audio:  stream.NewHTTPHandler(frames, cfg.Stream.Bitrate, logger),
		WebRTC: webrtcHandler,
	})
	go srv.Run(ctx)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{Addr: addr, Handler: srv.Router()}

	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
		}
	}()

	logger.Info().Str("addr", addr).Msg("sonora live")
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("http server")
	}

	flushCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	prof.Flush(flushCtx)
}

func openProfileStore(ctx context.Context, cfg config.ProfileConfig, logger zerolog.Logger) (profile.Store, func()) {
	switch cfg.Driver {
	case "sqlite":
		s, err := profile.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.SQLitePath).Msg("sqlite profile unavailable")
			return profile.NopStore{}, func() {}
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("profile store: sqlite")
		return s, func() { s.Close() }

	case "remote":
		s := profile.NewRemoteStore(cfg.RemoteURL, cfg.RemoteKey, logger)
		readyCtx, readyCancel := context.WithTimeout(ctx, 30*time.Second)
		defer readyCancel()
		if s.WaitForReady(readyCtx, 2*time.Second) {
			logger.Info().Str("url", cfg.RemoteURL).Msg("profile store: remote")
		} else {
			logger.Warn().Str("url", cfg.RemoteURL).Msg("profile service not ready, changes will retry on next edit")
		}
		return s, func() {}
	}

	logger.Info().Msg("profile store: none")
	return profile.NopStore{}, func() {}
}
