// Package server assembles the application: database, engines, event bus
// and the HTTP surface.
package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/benasterisk/stemtube/internal/api"
	"github.com/benasterisk/stemtube/internal/api/handlers"
	"github.com/benasterisk/stemtube/internal/api/ws"
	"github.com/benasterisk/stemtube/internal/config"
	"github.com/benasterisk/stemtube/internal/core/download"
	"github.com/benasterisk/stemtube/internal/core/download/ytdlp"
	"github.com/benasterisk/stemtube/internal/core/event"
	"github.com/benasterisk/stemtube/internal/core/ffmpeg"
	"github.com/benasterisk/stemtube/internal/core/session"
	"github.com/benasterisk/stemtube/internal/core/stems"
	"github.com/benasterisk/stemtube/internal/core/stems/demucs"
	"github.com/benasterisk/stemtube/internal/database"
	"github.com/benasterisk/stemtube/internal/youtube"
)

func Run(ctx context.Context, cfg *config.Config) error {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}
	log.Debug().Str("level", cfg.Logging.Level).Msg("log level configured")

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	users := database.NewUserStore(db)
	settings, err := database.NewSettingsStore(db)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	processed := database.NewProcessedStore(db)
	videoCache := database.NewVideoCacheStore(db, 0)

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		jwtSecret, err = ensureSecret(ctx, settings, "jwt_secret")
		if err != nil {
			return fmt.Errorf("jwt secret: %w", err)
		}
	}

	adminPassword, err := ensureAdmin(ctx, users, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword)
	if err != nil {
		return fmt.Errorf("admin setup: %w", err)
	}

	bus := event.NewBus()

	downloader := ytdlp.New(cfg.Tools.YtDlpBinary, cfg.Tools.FFmpegBinary)
	if err := downloader.Check(); err != nil {
		log.Warn().Err(err).Msg("yt-dlp unavailable, downloads will fail")
	}
	transcoder := ffmpeg.New(cfg.Tools.FFmpegBinary)
	separator := demucs.New(cfg.Tools.DemucsBinary)
	if err := separator.Check(); err != nil {
		log.Warn().Err(err).Msg("demucs unavailable, extractions will fail")
	}

	serverCtx, stopEngines := context.WithCancel(context.Background())
	defer stopEngines()

	registry := session.NewRegistry(serverCtx, session.Factory{
		NewDownloads:   downloadFactory(serverCtx, cfg, bus, settings, processed, downloader, transcoder),
		NewExtractions: extractionFactory(serverCtx, cfg, bus, settings, processed),
	})
	defer registry.Close()

	hub := ws.NewHub(bus, jwtSecret)
	ytClient := youtube.NewClient(videoCache)

	jwtExpiry, err := time.ParseDuration(cfg.Auth.JWTExpiry)
	if err != nil {
		jwtExpiry = 24 * time.Hour
	}

	handlers.InitErrors()
	e := echo.New()
	e.HideBanner = true

	api.SetupRouter(e, api.RouterConfig{
		JWTSecret: jwtSecret,
		JWTExpiry: jwtExpiry,
		Users:     users,
		Settings:  settings,
		Processed: processed,
		Sessions:  registry,
		YouTube:   ytClient,
		Hub:       hub,
		Tools: map[string]handlers.ToolChecker{
			"yt-dlp": downloader,
			"ffmpeg": transcoder,
			"demucs": separator,
		},
		SettingDefaults: handlers.SettingsDTO{
			VideoQuality:         cfg.Downloads.VideoQuality,
			AudioQuality:         cfg.Downloads.AudioQuality,
			MaxConcurrent:        cfg.Downloads.MaxConcurrent,
			UseGPU:               cfg.Extraction.UseGPU,
			MaxConcurrentExtract: cfg.Extraction.MaxConcurrent,
			DefaultModel:         cfg.Extraction.DefaultModel,
		},
	})

	printBanner(cfg, adminPassword)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	return nil
}

// downloadFactory builds a per-session download engine whose callbacks
// publish bus events tagged with the session id and record finished files
// in the processed-media cache.
func downloadFactory(ctx context.Context, cfg *config.Config, bus event.Bus, settings *database.SettingsStore, processed *database.ProcessedStore, downloader download.Downloader, transcoder *ffmpeg.FFmpeg) func(sessionID string) *download.Manager {
	return func(sessionID string) *download.Manager {
		var m *download.Manager
		m = download.NewManager(download.Config{
			Downloader: downloader,
			Transcoder: transcoder,
			RootDir:    cfg.Downloads.Dir,
			MaxConcurrent: func() int {
				return settings.GetInt("max_concurrent", cfg.Downloads.MaxConcurrent)
			},
			Callbacks: download.Callbacks{
				OnProgress: func(id string, percent float64, speed, eta string) {
					bus.Publish(ctx, event.Event{
						Type: event.EventDownloadProgress,
						Payload: event.DownloadEvent{
							SessionID:  sessionID,
							DownloadID: id,
							Progress:   percent,
							Speed:      speed,
							ETA:        eta,
						},
					})
				},
				OnComplete: func(id, title, filePath string) {
					bus.Publish(ctx, event.Event{
						Type: event.EventDownloadComplete,
						Payload: event.DownloadEvent{
							SessionID:  sessionID,
							DownloadID: id,
							Progress:   100,
							Title:      title,
							FilePath:   filePath,
						},
					})
					if it, ok := m.Get(id); ok {
						if err := processed.RecordDownload(ctx, database.ProcessedDownload{
							VideoID:  it.VideoID,
							Kind:     string(it.Kind),
							Quality:  it.Quality,
							Title:    it.Title,
							FilePath: filePath,
						}); err != nil {
							log.Warn().Err(err).Str("download_id", id).Msg("processed cache write failed")
						}
					}
				},
				OnError: func(id, message string) {
					bus.Publish(ctx, event.Event{
						Type: event.EventDownloadError,
						Payload: event.DownloadEvent{
							SessionID:  sessionID,
							DownloadID: id,
							Error:      message,
						},
					})
				},
			},
		})
		return m
	}
}

// extractionFactory builds a per-session extraction engine. Each engine
// gets its own separator instance; the binary is shared, state is not.
func extractionFactory(ctx context.Context, cfg *config.Config, bus event.Bus, settings *database.SettingsStore, processed *database.ProcessedStore) func(sessionID string) *stems.Manager {
	return func(sessionID string) *stems.Manager {
		var m *stems.Manager
		m = stems.NewManager(stems.Config{
			Separator:  demucs.New(cfg.Tools.DemucsBinary),
			DefaultDir: cfg.Downloads.Dir,
			UseGPU: func() bool {
				return settings.GetBool("use_gpu", cfg.Extraction.UseGPU)
			},
			MaxConcurrent: func() int {
				return settings.GetInt("max_concurrent_extractions", cfg.Extraction.MaxConcurrent)
			},
			Callbacks: stems.Callbacks{
				OnProgress: func(id string, percent float64, message string) {
					bus.Publish(ctx, event.Event{
						Type: event.EventExtractionProgress,
						Payload: event.ExtractionEvent{
							SessionID:    sessionID,
							ExtractionID: id,
							Progress:     percent,
							Message:      message,
						},
					})
				},
				OnComplete: func(id string) {
					bus.Publish(ctx, event.Event{
						Type: event.EventExtractionComplete,
						Payload: event.ExtractionEvent{
							SessionID:    sessionID,
							ExtractionID: id,
							Progress:     100,
						},
					})
					if it, ok := m.Get(id); ok {
						if hash, err := hashFile(it.AudioPath); err == nil {
							if err := processed.RecordExtraction(ctx, database.ProcessedExtraction{
								AudioHash: hash,
								Model:     it.Model,
								OutputDir: it.OutputDir,
							}); err != nil {
								log.Warn().Err(err).Str("extraction_id", id).Msg("processed cache write failed")
							}
						}
					}
				},
				OnError: func(id, message string) {
					bus.Publish(ctx, event.Event{
						Type: event.EventExtractionError,
						Payload: event.ExtractionEvent{
							SessionID:    sessionID,
							ExtractionID: id,
							Error:        message,
						},
					})
				},
			},
		})
		return m
	}
}

// ensureSecret returns the named secret from settings, creating and
// persisting a random one on first boot.
func ensureSecret(ctx context.Context, settings *database.SettingsStore, key string) (string, error) {
	if v := settings.Get(key, ""); v != "" {
		return v, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	secret := hex.EncodeToString(buf)
	if err := settings.Set(ctx, key, secret); err != nil {
		return "", err
	}
	return secret, nil
}

// ensureAdmin guarantees the administrator account exists. The generated
// password is returned only when the account was created this boot so the
// banner can show it exactly once.
func ensureAdmin(ctx context.Context, users *database.UserStore, username, password string) (string, error) {
	if _, err := users.GetByUsername(ctx, username); err == nil {
		return "", nil
	} else if !errors.Is(err, database.ErrUserNotFound) {
		return "", err
	}

	generated := password == ""
	if generated {
		var err error
		password, err = database.GeneratePassword(12)
		if err != nil {
			return "", err
		}
	}
	if _, err := users.Create(ctx, username, password, true); err != nil {
		return "", err
	}
	if generated {
		return password, nil
	}
	return "", nil
}

func printBanner(cfg *config.Config, adminPassword string) {
	fmt.Println("==================================================")
	fmt.Println("StemTube")
	fmt.Printf("Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	if adminPassword != "" {
		fmt.Printf("Admin account: %s\n", cfg.Auth.AdminUsername)
		fmt.Printf("Admin password: %s\n", adminPassword)
		fmt.Println("Change this password after logging in.")
	}
	fmt.Println("==================================================")
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
