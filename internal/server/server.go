// Package server provides HTTP server initialization and lifecycle management
// for the stacksense API.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/scrypster/stacksense/internal/config"
	"github.com/scrypster/stacksense/web/handlers"
)

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// OriginPatterns lists the browser origins allowed to open /ws.
func OriginPatterns(cfg *config.Config) []string {
	port := strconv.Itoa(cfg.Server.Port)
	patterns := []string{"localhost:" + port, "127.0.0.1:" + port}
	if h := cfg.Server.Host; h != "" && h != "localhost" && h != "127.0.0.1" && h != "0.0.0.0" {
		patterns = append(patterns, net.JoinHostPort(h, port))
	}
	return patterns
}

// Routes builds the full handler tree: public health and websocket
// endpoints, the authenticated API, rate limiting and security headers.
// metrics is mounted at /metrics when non-nil.
func Routes(cfg *config.Config, api *handlers.APIHandlers, hub *handlers.WebSocketHub, metrics http.Handler) http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/state", api.GetState)
	apiMux.HandleFunc("POST /api/state/preview", api.PreviewState)
	apiMux.HandleFunc("GET /api/logs", api.ListLogs)
	apiMux.HandleFunc("POST /api/logs", api.CreateLog)
	apiMux.HandleFunc("DELETE /api/logs/{id}", api.DeleteLog)
	apiMux.HandleFunc("GET /api/rules", api.GetRules)

	mux := http.NewServeMux()

	// Health endpoint: no auth required, used by monitoring.
	mux.HandleFunc("GET /api/health", api.Health)

	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg))

	// WebSocket endpoint; origin validation guards browsers, and in
	// production the same bearer token as the API is required.
	mux.Handle("/ws", handlers.RequireAuth(hub, cfg))

	if metrics != nil {
		mux.Handle("GET /metrics", handlers.RequireAuth(metrics, cfg))
	}

	rateLimiter := handlers.NewRateLimiter(float64(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	return securityHeadersMiddleware(handler)
}

// Start listens on the configured address and serves the API until ctx is
// cancelled. It returns the actual address being listened on (useful for
// testing with port 0).
func Start(ctx context.Context, cfg *config.Config, svc handlers.StateService, hub *handlers.WebSocketHub, breaker handlers.BreakerState, metrics http.Handler) (string, error) {
	api := handlers.NewAPIHandlers(svc, cfg, breaker, hub)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      Routes(cfg, api, hub, metrics),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("server: failed to listen on %s: %w", addr, err)
	}

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("server: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown error: %v", err)
		}
		hub.Stop()
	}()

	return listener.Addr().String(), nil
}
