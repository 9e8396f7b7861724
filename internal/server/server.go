// Package server provides HTTP server initialization and lifecycle
// management for the Visage API and kiosk UI.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/scrypster/visage/internal/config"
	"github.com/scrypster/visage/internal/engine"
	"github.com/scrypster/visage/web/handlers"
)

// Start initializes and starts the HTTP server.
// Returns the actual address being listened on (useful for testing with
// port 0) and the EventHub carrying the live engine event feed. The server
// shuts down gracefully when ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, eng *engine.IdentityEngine) (string, *handlers.EventHub) {
	mux := http.NewServeMux()

	hub := handlers.NewEventHub(cfg.Server.Port)
	if cfg.Features.EnableEvents {
		go hub.Run()
		eng.SetEventHandler(hub.Publish)
	}

	rateLimiter := handlers.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	apiHandlers := handlers.NewAPIHandlers(eng, cfg)

	// API routes (require auth in production mode).
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/auth/enroll", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			apiHandlers.Enroll(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/auth/verify", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			apiHandlers.Verify(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/auth/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			apiHandlers.AuthStatus(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			apiHandlers.Logout(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/telemetry", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			apiHandlers.LogTelemetry(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/identities/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			apiHandlers.GetIdentity(w, r)
		case http.MethodDelete:
			apiHandlers.DeleteIdentity(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/identities/{id}/preferences", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			apiHandlers.UpdatePreferences(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/identities/{id}/analytics", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			apiHandlers.GetAnalytics(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Health endpoint — no auth required, used by monitoring.
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","version":"1.0.0"}`))
	})

	// Wrap API routes with auth middleware.
	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg))

	// WebSocket event feed (no auth required - origin validation handles security).
	if cfg.Features.EnableEvents {
		mux.Handle("/ws", hub)
	}

	// Kiosk UI static assets.
	if cfg.Features.EnableWebUI {
		basePath := findBasePath()
		fs := http.FileServer(http.Dir(basePath + "/web/static"))
		mux.Handle("/static/", http.StripPrefix("/static/", fs))

		indexPath := basePath + "/web/templates/index.html"
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}
			http.ServeFile(w, r, indexPath)
		})
	}

	// Wrap entire server with rate limiting, then security headers.
	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	handler = handlers.SecurityHeaders(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", addr, err)
	}

	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		hub.Stop()
	}()

	return actualAddr, hub
}

// findBasePath returns the base path for the project.
// When running from cmd/visage-web, we need to go up two directories.
// When running tests, we may already be in the project root.
func findBasePath() string {
	if _, err := os.Stat("web/templates/index.html"); err == nil {
		return "."
	}
	if _, err := os.Stat("../web/templates/index.html"); err == nil {
		return ".."
	}
	if _, err := os.Stat("../../web/templates/index.html"); err == nil {
		return "../.."
	}
	return "."
}
