// Package relay constructs and runs the HTTP service carrying both the
// WebSocket endpoint and the control API.
package relay

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Server owns the HTTP surface: the /ws upgrade endpoint guarded by the
// admission gate, and the backend control API.
type Server struct {
	cfg      Config
	hub      *Hub
	gate     *Gate
	log      *zap.Logger
	http     *http.Server
	upgrader websocket.Upgrader
}

// NewServer wires the gin engine, origin policy, and HTTP server. Defaults
// follow production-sensible timeouts.
func NewServer(cfg Config, hub *Hub, gate *Gate, log *zap.Logger) *Server {
	s := &Server{
		cfg:  cfg,
		hub:  hub,
		gate: gate,
		log:  log,
	}

	origins := newOriginPolicy(cfg.AllowedOrigins, log)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.check,
	}

	s.http = &http.Server{
		Addr:         cfg.Port,
		Handler:      s.buildRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := &controlAPI{hub: s.hub, log: s.log}
	router.GET("/health", api.health)

	authorized := router.Group("/", requireSecret(s.cfg.APIKey, s.log))
	authorized.POST("/emit", api.emit)
	authorized.POST("/broadcast", api.broadcast)
	authorized.GET("/rooms", api.rooms)

	router.GET("/ws", s.handleSocket)
	return router
}

// Handler exposes the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// handleSocket admits and upgrades one connection attempt. Rejection happens
// before the upgrade, as a plain 401, so a refused connection never becomes
// routable.
func (s *Server) handleSocket(c *gin.Context) {
	req := AdmissionRequest{
		Token:      bearerToken(c.Request),
		TypeHint:   c.Query("user_type"),
		TripID:     c.Query("trip_id"),
		RemoteAddr: c.Request.RemoteAddr,
	}

	ident, err := s.gate.Admit(c.Request.Context(), req)
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, ErrAuthRequired) {
			msg = "authentication required"
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn, s.hub, c.Request.RemoteAddr, ident, req.TripID, s.cfg, s.log)
	s.hub.Register(client)
}

// bearerToken extracts the credential from the token query parameter or an
// Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "bearer "
	if len(authz) > len(prefix) && strings.EqualFold(authz[:len(prefix)], prefix) {
		return strings.TrimSpace(authz[len(prefix):])
	}
	return ""
}

// Start begins listening for connections and blocks until the server exits.
// A graceful close is not reported as an error.
func (s *Server) Start() error {
	s.log.Info("server listening", zap.String("port", s.cfg.Port))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server")
	}
	return nil
}

// Shutdown gracefully stops the HTTP server, waiting for in-flight requests
// until the timeout is reached.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.log.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		s.log.Warn("http server shutdown error", zap.Error(err))
		return err
	}
	return nil
}
