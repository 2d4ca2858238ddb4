package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/familycare/checkin-dispatch/internal/app"
	"github.com/familycare/checkin-dispatch/internal/config"
	"github.com/familycare/checkin-dispatch/internal/handler"
	"github.com/familycare/checkin-dispatch/internal/jobs"
	"github.com/familycare/checkin-dispatch/internal/middleware"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start")
	}
	defer a.Close()

	callbackSignatureMiddleware := middleware.NewCallbackSignatureMiddleware(cfg.CallbackSigningSecret)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(a.Redis.Client, config.DefaultCallbackRateLimitPerMin)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	callSessionHandler := handler.NewCallSessionHandler(a.Sessions)
	heartbeatHandler := handler.NewHeartbeatHandler(a.Heartbeats)
	eventsHandler := handler.NewEventsHandler(a.Broker)
	healthHandler := handler.NewHealthHandler(a.DB)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", healthHandler.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(securityHeadersMiddleware.Handler)

		// SSE streams are long-lived and skip the request timeout
		r.Get("/households/{householdID}/events", eventsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Use(bodyLimitMiddleware.Handler)

			r.Mount("/heartbeats", heartbeatHandler.Routes())

			r.Route("/call-sessions", func(r chi.Router) {
				r.Use(rateLimitMiddleware.Handler)
				r.Use(callbackSignatureMiddleware.Handler)
				r.Mount("/", callSessionHandler.Routes())
			})
		})
	})

	scheduler := jobs.NewScheduler()
	if err := scheduler.Add(a.Dispatch.Name(), cfg.DispatchSchedule, config.DispatchJobTimeout, func(ctx context.Context) {
		a.Dispatch.Run(ctx)
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule dispatch job")
	}
	if err := scheduler.Add(a.Reaper.Name(), cfg.ReaperSchedule, config.ReaperJobTimeout, func(ctx context.Context) {
		a.Reaper.Run(ctx)
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule reaper job")
	}
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	scheduler.Stop(shutdownCtx)

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
