package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/asura-ai/asura/internal/api/handlers"
	appMiddleware "github.com/asura-ai/asura/internal/api/middlewares"
	"github.com/asura-ai/asura/internal/config"
	"github.com/asura-ai/asura/internal/core"
	"github.com/asura-ai/asura/internal/core/pipeline"
	"github.com/asura-ai/asura/internal/events"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *logrus.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, dbClient core.DbClient, processor *pipeline.Processor, hub *events.Hub, log *logrus.Logger) *Server {
	authHandler := handlers.NewAuthHandler(dbClient, cfg.JWTSecret)
	fileHandler := handlers.NewFileHandler(dbClient, processor, hub, cfg.MaxUploadMB, log)
	eventsHandler := handlers.NewEventsHandler(hub, cfg.SSEHeartbeat, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))
			// The SSE stream and uploads hold connections far longer than a
			// request timeout allows, so the timeout wraps only here.
			protected.Group(func(timed chi.Router) {
				timed.Use(middleware.Timeout(60 * time.Second))
				timed.Get("/files", fileHandler.List)
				timed.Get("/files/{id}", fileHandler.Get)
				timed.Delete("/files/{id}", fileHandler.Delete)
				timed.Post("/files/{id}/retry", fileHandler.Retry)
			})
			protected.Post("/files/upload", fileHandler.Upload)
			protected.Get("/files/events", eventsHandler.Stream)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, log: log}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.WithField("addr", s.httpServer.Addr).Info("HTTP server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
