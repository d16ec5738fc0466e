// Package api exposes the control surface: health, outbound sends through
// the live session, and challenge-content management.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"wagate/pkg/challenge"
	"wagate/pkg/config"
	"wagate/pkg/session"
	"wagate/pkg/wire"
)

const shutdownTimeout = 5 * time.Second

// Session is the slice of the session manager the API drives.
type Session interface {
	State() session.State
	Connected() bool
	SendText(ctx context.Context, to string, text string) error
	SendMedia(ctx context.Context, to string, media wire.OutboundMedia) error
	SendReaction(ctx context.Context, to string, target wire.MessageKey, emoji string) error
	SendReply(ctx context.Context, to string, text string, quotedID string) error
	SendPresence(ctx context.Context, to string, presence wire.Presence) error
}

// Server is the control HTTP API.
type Server struct {
	cfg        config.APIConfig
	session    Session
	challenges *challenge.Store
	log        *slog.Logger
	engine     *gin.Engine
}

// NewServer wires routes and middleware. challenges may be nil when the
// database is disabled; its routes then answer 503.
func NewServer(cfg config.APIConfig, sess Session, challenges *challenge.Store, log *slog.Logger) (*Server, error) {
	if sess == nil {
		return nil, fmt.Errorf("session is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}

	server := &Server{
		cfg:        cfg,
		session:    sess,
		challenges: challenges,
		log:        log.With("component", "api"),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	_ = engine.SetTrustedProxies(nil)

	allowOrigins := cfg.AllowOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"OPTIONS", "GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(rateLimit(cfg.RateLimitPerMinute))

	engine.GET("/health", server.handleHealth)

	if cfg.Token == "" {
		server.log.Warn("api token is empty, control routes are unauthenticated")
	}
	authorized := engine.Group("/", bearerAuth(cfg.Token))
	authorized.POST("/messages/text", server.handleSendText)
	authorized.POST("/messages/media", server.handleSendMedia)
	authorized.POST("/messages/reaction", server.handleSendReaction)
	authorized.POST("/conversations/reply", server.handleSendReply)
	authorized.POST("/presence/typing", server.handleSendPresence)
	authorized.POST("/challenges", server.handleCreateChallenge)
	authorized.GET("/challenges", server.handleListChallenges)

	server.engine = engine

	return server, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the context is cancelled, then drains in-flight
// requests within the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	httpServer := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.log.Info("Control API listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}
