package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/shitan-ai/shitan/internal/observability"
	"github.com/shitan-ai/shitan/pkg/chat"
	"github.com/shitan-ai/shitan/pkg/session"
)

// DefaultCookieName identifies the browser session.
const DefaultCookieName = "shitan_session"

// Config holds gateway configuration.
type Config struct {
	Addr string

	// Sessions is the typed session repository; required.
	Sessions *session.Repository

	// Chat answers user messages. A nil client runs the gateway in degraded
	// mode: conversation management works, /chat returns the fixed
	// service-unavailable reply.
	Chat *chat.Client

	CookieName   string
	SessionTTL   time.Duration
	TemplateDir  string
	StaticDir    string
	TickInterval time.Duration
	Logger       zerolog.Logger
}

// Server is the HTTP surface exposed to the browser.
type Server struct {
	addr       string
	sessions   *session.Repository
	chat       *chat.Client
	cookieName string
	sessionTTL time.Duration
	staticDir  string

	templates   *TemplateRenderer
	validator   *requestValidator
	broadcaster *Broadcaster
	upgrader    websocket.Upgrader

	server       *http.Server
	logger       zerolog.Logger
	startTime    time.Time
	tickInterval time.Duration
	tickCancel   context.CancelFunc
	tickWG       sync.WaitGroup

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// NewServer creates a gateway server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session repository is required")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = session.DefaultTTL
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}

	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}

	var templates *TemplateRenderer
	if cfg.TemplateDir != "" {
		templates, err = NewTemplateRenderer(cfg.TemplateDir)
		if err != nil {
			return nil, err
		}
	}

	observability.EnsureRegistered()

	s := &Server{
		addr:         cfg.Addr,
		sessions:     cfg.Sessions,
		chat:         cfg.Chat,
		cookieName:   cfg.CookieName,
		sessionTTL:   cfg.SessionTTL,
		staticDir:    cfg.StaticDir,
		templates:    templates,
		validator:    validator,
		broadcaster:  NewBroadcaster(cfg.Logger),
		logger:       cfg.Logger,
		tickInterval: cfg.TickInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Same-origin page; the socket carries no sensitive data.
				return true
			},
		},
	}
	return s, nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/conversations", s.handleConversations)
	mux.HandleFunc("/conversations/new", s.handleNewConversation)
	mux.HandleFunc("/conversations/switch", s.handleSwitchConversation)
	mux.HandleFunc("/conversations/delete", s.handleDeleteConversation)
	mux.HandleFunc("/conversations/star", s.handleStarConversation)
	mux.HandleFunc("/clear", s.handleClearHistory)
	mux.HandleFunc("/clear_all", s.handleClearSession)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if s.staticDir != "" {
		mux.Handle("/static/", http.StripPrefix("/static/",
			http.FileServer(http.Dir(s.staticDir))))
	}

	return s.recoverMiddleware(s.trackingMiddleware(mux))
}

// Start begins serving. It does not block.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}
	s.startTime = time.Now()

	s.logger.Info().Str("addr", s.addr).Msg("Starting gateway server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	s.startTickEmitter()
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")
	s.stopTickEmitter()
	s.broadcaster.Broadcast("server.shutdown", map[string]interface{}{
		"message": "Server is shutting down",
	})

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	s.broadcaster.CloseAll()
	if s.templates != nil {
		s.templates.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

func (s *Server) startTickEmitter() {
	tickCtx, cancel := context.WithCancel(context.Background())
	s.tickCancel = cancel
	s.tickWG.Add(1)

	go func() {
		defer s.tickWG.Done()

		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				s.broadcaster.Broadcast("tick", map[string]interface{}{
					"status": s.serviceStatus(),
					"uptime": time.Since(s.startTime).Round(time.Second).String(),
				})
			}
		}
	}()
}

func (s *Server) stopTickEmitter() {
	if s.tickCancel != nil {
		s.tickCancel()
		s.tickCancel = nil
	}
	s.tickWG.Wait()
}

func (s *Server) serviceStatus() string {
	if s.chat != nil {
		return "active"
	}
	return "inactive"
}

// trackingMiddleware rejects new requests during shutdown and counts in-flight
// ones so Stop can drain them.
func (s *Server) trackingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		shuttingDown := s.isShuttingDown
		s.shutdownMu.RUnlock()
		if shuttingDown {
			http.Error(w, "service is shutting down", http.StatusServiceUnavailable)
			return
		}

		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()
		next.ServeHTTP(w, r)
	})
}

// recoverMiddleware is the outermost request boundary: nothing escapes it.
// The caller gets only the error category, never internals.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, _ := gonanoid.New()
		logger := s.logger.With().Str("request_id", reqID).Str("path", r.URL.Path).Logger()

		defer func() {
			if rec := recover(); rec != nil {
				logger.Error().Interface("panic", rec).Msg("Request handler panicked")
				writeJSON(w, map[string]interface{}{
					"success": false,
					"reply":   fmt.Sprintf("内部错误：%T", rec),
				})
			}
		}()

		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	s.broadcaster.Add(conn)
	s.logger.Info().Str("ip", r.RemoteAddr).Msg("Websocket client connected")

	go func() {
		defer func() {
			conn.Close()
			s.broadcaster.Remove(conn)
			s.logger.Info().Str("ip", r.RemoteAddr).Msg("Websocket client disconnected")
		}()
		for {
			// The status stream is one-way; reads only detect closure.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
