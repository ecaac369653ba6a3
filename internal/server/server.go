package server

import (
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mosaicchat/mosaic/internal/auth"
	"github.com/mosaicchat/mosaic/internal/chat"
	"github.com/mosaicchat/mosaic/internal/database"
	"github.com/mosaicchat/mosaic/internal/genai"
	"github.com/mosaicchat/mosaic/internal/handlers"
	mw "github.com/mosaicchat/mosaic/internal/middleware"
	"github.com/mosaicchat/mosaic/internal/scheduler"
	"github.com/mosaicchat/mosaic/internal/secrets"
	ws "github.com/mosaicchat/mosaic/internal/websocket"
)

type Server struct {
	Router    *chi.Mux
	DB        *database.DB
	Auth      *auth.Service
	Secrets   *secrets.Manager
	Scheduler *scheduler.Scheduler
	WSHub     *ws.Hub
	Store     *chat.Store
	Sessions  *chat.Manager
}

type Config struct {
	DB         *database.DB
	Auth       *auth.Service
	Secrets    *secrets.Manager
	Scheduler  *scheduler.Scheduler
	Store      *chat.Store
	GenClient  *genai.Client
	FrontendFS fs.FS
	Port       int
}

func New(cfg Config) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		DB:        cfg.DB,
		Auth:      cfg.Auth,
		Secrets:   cfg.Secrets,
		Scheduler: cfg.Scheduler,
		WSHub:     ws.NewHub(cfg.Auth, cfg.Port),
		Store:     cfg.Store,
	}

	// Agent replies settle asynchronously; sessions push status changes and
	// the store feed pushes inserted rows through the hub to subscribers.
	s.Sessions = chat.NewManager(cfg.Store, cfg.GenClient, func(conversationID, status, detail string) {
		s.WSHub.TurnStatus(conversationID, status, detail)
	})
	cfg.Store.SubscribeAllInserts(s.WSHub.MessageInserted)

	// Topic subscriptions are scoped to conversations the user owns.
	s.WSHub.Authorize = func(userID, topic string) bool {
		convID, ok := strings.CutPrefix(topic, "conversation:")
		if !ok {
			return false
		}
		var owner string
		if err := s.DB.QueryRow("SELECT user_id FROM conversations WHERE id = ?", convID).Scan(&owner); err != nil {
			return false
		}
		return owner == userID
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.GenClient)
	s.setupFrontend(cfg.FrontendFS)

	return s
}

func (s *Server) setupMiddleware() {
	s.Router.Use(chiMiddleware.RealIP)
	s.Router.Use(mw.RequestID)
	s.Router.Use(mw.SecurityHeaders)
	s.Router.Use(mw.Logger)
	s.Router.Use(mw.CORS)
	s.Router.Use(chiMiddleware.Recoverer)
}

func (s *Server) setupRoutes(genClient *genai.Client) {
	authHandler := handlers.NewAuthHandler(s.DB, s.Auth)
	agentHandler := handlers.NewAgentHandler(s.DB, s.Sessions)
	blockHandler := handlers.NewBlockHandler(s.DB)
	chatHandler := handlers.NewChatHandler(s.DB, s.Store, s.Sessions, s.WSHub)
	secretsHandler := handlers.NewSecretsHandler(s.DB, s.Secrets)
	logsHandler := handlers.NewLogsHandler(s.DB)
	settingsHandler := handlers.NewSettingsHandler(s.DB, s.Secrets, genClient)

	s.Router.Route("/api/v1", func(r chi.Router) {
		// Public routes (no auth required)
		r.Route("/auth", func(r chi.Router) {
			r.With(mw.RateLimit(5, time.Minute)).Post("/register", authHandler.Register)
			r.With(mw.RateLimit(10, time.Minute)).Post("/login", authHandler.Login)
		})

		// WebSocket (auth handled internally)
		r.Get("/ws", s.WSHub.HandleWS)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(mw.Auth(s.Auth))
			r.Use(mw.CSRFProtection)

			// Auth
			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/auth/me", authHandler.Me)

			// Agents
			r.Route("/agents", func(r chi.Router) {
				r.Get("/", agentHandler.List)
				r.Post("/", agentHandler.Create)
				r.Get("/{id}", agentHandler.Get)
				r.Put("/{id}", agentHandler.Update)
				r.Delete("/{id}", agentHandler.Delete)
				r.Get("/{id}/settings", agentHandler.Settings)
				r.Get("/{id}/blocks", blockHandler.List)
				r.Post("/{id}/blocks", blockHandler.Create)
				r.Post("/{id}/chat", chatHandler.Open)
			})

			// Blocks
			r.Route("/blocks", func(r chi.Router) {
				r.Put("/{id}", blockHandler.Update)
				r.Delete("/{id}", blockHandler.Delete)
			})

			// Conversations
			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", chatHandler.List)
				r.Delete("/{id}", chatHandler.Delete)
				r.Get("/{id}/messages", chatHandler.Messages)
				r.Post("/{id}/messages", chatHandler.Send)
			})

			// Secrets
			r.Route("/secrets", func(r chi.Router) {
				r.Get("/", secretsHandler.List)
				r.Post("/", secretsHandler.Create)
				r.Post("/{id}/rotate", secretsHandler.Rotate)
				r.Delete("/{id}", secretsHandler.Delete)
			})

			// Logs
			r.Get("/logs", logsHandler.List)

			// Settings
			r.Get("/settings", settingsHandler.Get)
			r.Put("/settings", settingsHandler.Update)
			r.Get("/settings/api-key", settingsHandler.GetAPIKey)
			r.Put("/settings/api-key", settingsHandler.UpdateAPIKey)
			r.Delete("/settings/api-key", settingsHandler.DeleteAPIKey)
		})
	})
}

func (s *Server) setupFrontend(frontendFS fs.FS) {
	fileServer := http.FileServer(http.FS(frontendFS))

	s.Router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		// If the request is for an API route, return 404
		if strings.HasPrefix(r.URL.Path, "/api/") {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}

		// Try to serve the file directly
		path := r.URL.Path
		if path == "/" {
			path = "/index.html"
		}

		f, err := frontendFS.Open(strings.TrimPrefix(path, "/"))
		if err == nil {
			f.Close()
			fileServer.ServeHTTP(w, r)
			return
		}

		// SPA fallback: serve index.html for all other routes
		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}
