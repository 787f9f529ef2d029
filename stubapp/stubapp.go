// Package stubapp is the in-repo stand-in for the bridge web application
// the specs drive. It reproduces the externally visible contract of the
// real gateway — the /bridge page, wallet-nonce authentication, quoting,
// swap initiation, and the WebSocket event channel — with deterministic
// behaviour, so the browser specs run hermetically on a random local port.
//
// It implements none of the production bridging, pricing, or wallet logic;
// only as much surface as the frontend and the specs observe.
package stubapp

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

//go:embed page.html
var pageHTML []byte

// Config configures the fixture server.
type Config struct {
	// Addr to bind. Default 127.0.0.1:0 — a random free port.
	Addr string

	// StatusInterval is the delay between transaction status steps.
	// Default 700ms, fast enough for specs, slow enough to observe.
	StatusInterval time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:0"
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = 700 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server hosts the fixture bridge application.
type Server struct {
	cfg    Config
	auth   *authStore
	hub    *Hub
	engine *swapEngine
	httpd  *http.Server
	ln     net.Listener
}

// New assembles the fixture. Call Start to begin serving.
func New(cfg Config) *Server {
	cfg.defaults()

	s := &Server{cfg: cfg, auth: newAuthStore()}
	s.hub = newHub(s.auth, cfg.Logger)
	s.engine = newSwapEngine(s.hub, cfg.StatusInterval)
	s.httpd = &http.Server{Handler: s.routes()}
	return s
}

// Start binds the listener and serves in the background. It returns the
// bound address (host:port).
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return "", fmt.Errorf("stubapp: listen %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln

	go func() {
		if err := s.httpd.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.cfg.Logger.Error("stubapp: serve", "error", err)
		}
	}()

	s.cfg.Logger.Info("stubapp: serving", "addr", ln.Addr().String())
	return ln.Addr().String(), nil
}

// BaseURL returns the http root of the running fixture.
func (s *Server) BaseURL() string {
	if s.ln == nil {
		return ""
	}
	return "http://" + s.ln.Addr().String()
}

// Shutdown stops the swap engine, drops WebSocket clients, and closes the
// HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.engine.Close()
	s.hub.Shutdown()
	if err := s.httpd.Shutdown(ctx); err != nil {
		return fmt.Errorf("stubapp: shutdown: %w", err)
	}
	return nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/bridge", s.handlePage)
	r.Get("/ws", s.hub.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/auth/nonce", s.handleNonce)
		r.Post("/auth/verify", s.handleVerify)
		r.Post("/auth/logout", s.handleLogout)

		r.Post("/bridge/quote", s.handleQuote)
		r.Post("/bridge/swap", s.handleSwap)
		r.Get("/bridge/status/{transactionID}", s.handleStatus)

		// Test control surface, not part of the real gateway: lets specs
		// sever live WebSocket connections to provoke reconnects.
		r.Post("/test/ws-drop", s.handleWSDrop)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(pageHTML)
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"nonce": s.auth.IssueNonce()})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	token, err := s.auth.Verify(req)
	if err != nil {
		s.cfg.Logger.Info("stubapp: wallet verification rejected",
			"account", req.AccountID, "error", err)
		writeError(w, http.StatusUnauthorized, "wallet verification failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":   token,
		"user_id": req.AccountID,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		s.auth.Revoke(token)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	quote, err := Quote(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.auth.Validate(bearerToken(r))
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	tx, err := s.engine.Initiate(userID, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.auth.Validate(bearerToken(r)); !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	tx, err := s.engine.Status(chi.URLParam(r, "transactionID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleWSDrop(w http.ResponseWriter, r *http.Request) {
	dropped := s.hub.DropAll("test-initiated disconnect")
	writeJSON(w, http.StatusOK, map[string]int{"dropped": dropped})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
