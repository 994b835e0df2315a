package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/strefethen/harmony-go/internal/api"
	"github.com/strefethen/harmony-go/internal/audit"
	"github.com/strefethen/harmony-go/internal/auth"
	"github.com/strefethen/harmony-go/internal/commands"
	"github.com/strefethen/harmony-go/internal/config"
	"github.com/strefethen/harmony-go/internal/db"
	"github.com/strefethen/harmony-go/internal/fetcher"
	"github.com/strefethen/harmony-go/internal/filerefs"
	"github.com/strefethen/harmony-go/internal/metrics"
	"github.com/strefethen/harmony-go/internal/openapi"
	"github.com/strefethen/harmony-go/internal/playback"
	"github.com/strefethen/harmony-go/internal/player"
	"github.com/strefethen/harmony-go/internal/queue"
	"github.com/strefethen/harmony-go/internal/sweeper"
	"github.com/strefethen/harmony-go/internal/youtube"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestLoggerMiddleware logs all incoming HTTP requests
func requestLoggerMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     wrapped.status,
				"duration":   time.Since(start).Round(time.Millisecond).String(),
				"request_id": api.GetRequestID(r),
			}).Debug("request")
		})
	}
}

// Options controls server wiring.
type Options struct {
	Logger *logrus.Logger
	// Downloader replaces yt-dlp (tests).
	Downloader fetcher.Downloader
	// ConsoleIn and ConsoleOut default to stdin and stdout when the console is enabled.
	ConsoleIn  io.Reader
	ConsoleOut io.Writer
}

// NewHandler builds the HTTP handler, starts the playback controller and the
// background jobs, and returns a shutdown function.
func NewHandler(cfg config.Config, options Options) (http.Handler, func(context.Context) error, error) {
	logger := options.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	logger.WithField("path", cfg.SQLiteDBPath).Info("using database")
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	auditService := audit.NewService(dbPair, audit.ServiceOptions{
		RetentionDays: cfg.AuditRetentionDays,
		PruneSchedule: cfg.AuditPruneSchedule,
		Logger:        logger,
	})
	appMetrics := metrics.New()

	refs := filerefs.NewManager(logger)
	downloader := options.Downloader
	if downloader == nil {
		downloader = fetcher.NewYtDlpDownloader(cfg.YtDlpPath, logger)
	}
	mediaFetcher := fetcher.New(downloader, refs, fetcher.Config{
		TempDir: cfg.TempDir,
		Prefix:  cfg.TempPrefix,
		Timeout: cfg.FetchTimeout(),
		Logger:  logger,
	})

	resolver := youtube.NewResolver(
		youtube.NewClient(youtube.ClientConfig{APIKey: cfg.YouTubeAPIKey, BaseURL: cfg.YouTubeAPIURL}),
		youtube.ResolverConfig{
			Format:      cfg.AudioFormat,
			MaxDuration: time.Duration(cfg.MaxDurationSec) * time.Second,
			Logger:      logger,
		},
	)

	channel := player.NewConnectionManager(player.Options{
		WriteTimeout: cfg.DeliverTimeout(),
		Logger:       logger,
	})

	songQueue := queue.New()
	controller := playback.NewController(songQueue, resolver, mediaFetcher, channel, playback.Options{
		ResolveTimeout: cfg.ResolveTimeout(),
		DeliverTimeout: cfg.DeliverTimeout(),
		Audit:          auditService,
		Metrics:        appMetrics,
		Logger:         logger,
	})
	channel.OnEnded(controller.Ended)
	appMetrics.RegisterGauges(refs.Len, songQueue.Len)

	// No player is connected yet; the channel keeps the volume for the first one.
	_ = channel.SetVolume(context.Background(), cfg.DefaultVolume)

	commandRouter := commands.NewRouter(controller, commands.Options{
		Audit:   auditService,
		Metrics: appMetrics,
		Logger:  logger,
	})

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(api.RequestIDMiddleware)
	router.Use(requestLoggerMiddleware(logger))
	router.Use(api.RecovererMiddleware(logger))
	if cfg.AuthEnabled {
		signer := auth.NewSigner(cfg.JWTSecret, time.Duration(cfg.JWTAccessTokenExpirySec)*time.Second)
		router.Use(auth.Middleware(signer))
	}

	registerHealthRoutes(router, auditService, channel, controller, refs)
	openapi.RegisterRoutes(router)
	player.RegisterRoutes(router, channel)
	commands.RegisterRoutes(router, commandRouter, controller, logger)
	audit.RegisterRoutes(router, auditService)
	router.Method(http.MethodGet, "/metrics", appMetrics.Handler())

	runCtx, cancelRun := context.WithCancel(context.Background())
	controllerDone := make(chan struct{})
	go func() {
		defer close(controllerDone)
		if err := controller.Run(runCtx); err != nil {
			logger.WithError(err).Error("playback controller stopped")
		}
	}()

	orphanSweeper := sweeper.New(refs, sweeper.Options{
		Dir:      mediaFetcher.TempDir(),
		Prefix:   mediaFetcher.Prefix(),
		MinAge:   cfg.SweepMinAge(),
		Schedule: cfg.SweepSchedule,
		Audit:    auditService,
		Logger:   logger,
	})
	if err := orphanSweeper.Start(); err != nil {
		cancelRun()
		<-controllerDone
		_ = dbPair.Close()
		return nil, nil, err
	}
	if err := auditService.StartPruneJob(); err != nil {
		orphanSweeper.Stop()
		cancelRun()
		<-controllerDone
		_ = dbPair.Close()
		return nil, nil, err
	}

	consoleDone := make(chan struct{})
	if cfg.ConsoleEnabled {
		in, out := options.ConsoleIn, options.ConsoleOut
		if in == nil {
			in = os.Stdin
		}
		if out == nil {
			out = os.Stdout
		}
		console := commands.NewConsole(commandRouter, in, out, logger)
		go func() {
			defer close(consoleDone)
			if err := console.Run(runCtx); err != nil {
				logger.WithError(err).Warn("console stopped")
			}
		}()
	} else {
		close(consoleDone)
	}

	auditService.Record(audit.EventSystemStartup, audit.LevelInfo, "Harmony started", audit.EventCorrelation{},
		map[string]any{"addr": cfg.Addr(), "temp_dir": mediaFetcher.TempDir()})

	shutdown := func(ctx context.Context) error {
		if ctx == nil {
			ctx = context.Background()
		}
		var errs []error

		if err := controller.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		cancelRun()
		<-controllerDone
		<-consoleDone

		orphanSweeper.Stop()
		if err := refs.ReleaseAll(); err != nil {
			errs = append(errs, err)
		}
		channel.Close()

		auditService.Record(audit.EventSystemShutdown, audit.LevelInfo, "Harmony stopped", audit.EventCorrelation{}, nil)
		auditService.StopPruneJob()
		if err := dbPair.Close(); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}

	return router, shutdown, nil
}

func registerHealthRoutes(router chi.Router, auditService *audit.Service, channel *player.ConnectionManager,
	controller *playback.Controller, refs *filerefs.Manager) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		status := "healthy"
		database := "ok"
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := auditService.Ping(ctx); err != nil || !auditService.IsHealthy() {
			status = "degraded"
			database = "unavailable"
		}
		response := map[string]any{
			"status":    status,
			"service":   "harmony",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"components": map[string]any{
				"database":        database,
				"player":          channel.GetStatus().Player,
				"playback":        controller.State(),
				"live_references": refs.Len(),
			},
		}
		return api.WriteJSON(w, http.StatusOK, response)
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{
			"status": "ready",
			"player": channel.GetStatus().Player,
		})
	}))
}
