package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mosaicchat/mosaic/internal/auth"
	"github.com/mosaicchat/mosaic/internal/chat"
	"github.com/mosaicchat/mosaic/internal/config"
	"github.com/mosaicchat/mosaic/internal/database"
	"github.com/mosaicchat/mosaic/internal/genai"
	"github.com/mosaicchat/mosaic/internal/logger"
	"github.com/mosaicchat/mosaic/internal/platform"
	"github.com/mosaicchat/mosaic/internal/scheduler"
	"github.com/mosaicchat/mosaic/internal/secrets"
	"github.com/mosaicchat/mosaic/internal/server"
	ws "github.com/mosaicchat/mosaic/internal/websocket"
	"github.com/mosaicchat/mosaic/web"
)

var version = "dev"

func main() {
	if len(os.Args) == 2 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Println("mosaic " + version)
		os.Exit(0)
	}

	logger.Banner()

	cfg := config.Load()

	db, err := database.New(cfg.DataDir)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Resolve JWT secret: env var > database > generate and persist
	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		var stored string
		err := db.QueryRow("SELECT value FROM settings WHERE key = 'jwt_secret'").Scan(&stored)
		if err == nil && stored != "" {
			jwtSecret = stored
		} else {
			jwtSecret, err = secrets.GenerateKey()
			if err != nil {
				logger.Fatal("Failed to generate JWT secret: %v", err)
			}
			// Persist to database so tokens survive restarts
			if _, err := db.Exec("INSERT INTO settings (id, key, value) VALUES (?, 'jwt_secret', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
				"jwt-secret-key", jwtSecret); err != nil {
				logger.Error("Failed to persist JWT secret: %v", err)
			}
			logger.Success("Generated and persisted JWT secret")
		}
	}

	authService := auth.NewService(jwtSecret)

	// Resolve encryption key the same way, separate from the JWT secret
	encKey := cfg.EncryptionKey
	if encKey == "" {
		var stored string
		err := db.QueryRow("SELECT value FROM settings WHERE key = 'encryption_key'").Scan(&stored)
		if err == nil && stored != "" {
			encKey = stored
		} else {
			encKey, err = secrets.GenerateKey()
			if err != nil {
				logger.Fatal("Failed to generate encryption key: %v", err)
			}
			if _, err := db.Exec("INSERT INTO settings (id, key, value) VALUES (?, 'encryption_key', ?)",
				"encryption-key", encKey); err != nil {
				logger.Fatal("Failed to persist encryption key: %v", err)
			}
			logger.Success("Generated encryption key")
		}
	}
	secretsMgr := secrets.NewManager(encKey)

	sched := scheduler.New(db)
	sched.Start()
	defer sched.Stop()

	frontendFS, err := fs.Sub(web.FrontendFS, "frontend/dist")
	if err != nil {
		logger.Fatal("Failed to load frontend assets: %v", err)
	}

	// Resolve generation API key: GOOGLE_AI_API_KEY > encrypted DB value
	var dbAPIKey string
	var encryptedKey string
	err = db.QueryRow("SELECT value FROM settings WHERE key = 'google_ai_api_key'").Scan(&encryptedKey)
	if err == nil && encryptedKey != "" {
		decrypted, decErr := secretsMgr.Decrypt(encryptedKey)
		if decErr == nil {
			dbAPIKey = decrypted
		}
	}
	apiKey, keySource := genai.ResolveAPIKey(cfg.APIKey, dbAPIKey)
	genClient := genai.NewClient(apiKey)
	if keySource == "none" {
		logger.Warn("No generation API key configured. Set GOOGLE_AI_API_KEY or add one in Settings; replies will fail until then.")
	} else {
		logger.Success("Generation API key loaded from %s", keySource)
	}

	store := chat.NewStore(db)

	srv := server.New(server.Config{
		DB:         db,
		Auth:       authService,
		Secrets:    secretsMgr,
		Scheduler:  sched,
		Store:      store,
		GenClient:  genClient,
		FrontendFS: frontendFS,
		Port:       cfg.Port,
	})

	db.OnAudit = func(action, category string) {
		payload, err := json.Marshal(map[string]string{"action": action, "category": category})
		if err != nil {
			return
		}
		srv.WSHub.Broadcast(ws.Message{Type: "audit_log_created", Payload: payload})
	}

	go srv.WSHub.Run()

	hasUsers, err := db.HasUsers()
	if err != nil {
		logger.Fatal("Failed to check users: %v", err)
	}
	if !hasUsers {
		logger.Warn("No users yet. Visit the app to create the first account.")
	}

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	if cfg.BindAddress != "127.0.0.1" && cfg.BindAddress != "localhost" {
		logger.Warn("Binding to %s — accessible from the network. Use MOSAIC_BIND=127.0.0.1 for localhost-only.", cfg.BindAddress)
	}
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // intentionally zero for WebSocket support
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		url := fmt.Sprintf("http://localhost:%d", cfg.Port)
		logger.Listen(addr, url, cfg.Port)
		if os.Getenv("MOSAIC_NO_OPEN") != "1" {
			platform.OpenBrowser(url)
		}
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	<-done
	logger.Shutdown("Shutting down server...")

	// Let in-flight turns persist their replies before the process exits
	srv.Sessions.Shutdown()
	srv.WSHub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Fatal("Server shutdown failed: %v", err)
	}

	logger.Bye()
}
