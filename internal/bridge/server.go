// Package bridge is the daemon's local surface: the browser extension
// link, the popup live feed, and the command API used by the CLI.
package bridge

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// Commands is what the bridge asks of the daemon. Every call is
// serialized with tracking on the daemon goroutine.
type Commands interface {
	Attach(obs domain.FeedObserver)
	Detach(id string)
	ToggleImages(ctx context.Context) (domain.MediaState, error)
	ToggleVideos(ctx context.Context) (domain.MediaState, error)
	MediaState(ctx context.Context) (domain.MediaState, error)
	Usage(ctx context.Context) (domain.SiteUsage, error)
	Policy(ctx context.Context) (domain.Policy, error)
	Status(ctx context.Context) (domain.DaemonStatus, error)
}

// Options configures a Server.
type Options struct {
	Addr    string
	Metrics http.Handler // served at /metrics when set
	Release bool         // gin release mode
}

// Server is the gin HTTP server hosting the bridge.
type Server struct {
	addr      string
	router    *gin.Engine
	extension *Extension
	commands  Commands
	logger    *zap.Logger
	upgrader  websocket.Upgrader

	listener net.Listener
	http     *http.Server
}

// NewServer wires routes. Call Listen then Serve.
func NewServer(opts Options, ext *Extension, commands Commands, logger *zap.Logger) *Server {
	if opts.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:      opts.Addr,
		router:    router,
		extension: ext,
		commands:  commands,
		logger:    logger,
		upgrader: websocket.Upgrader{
			// Extensions connect from chrome-extension:// origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	router.GET("/healthz", s.health)
	router.GET("/extension", s.handleExtension)
	router.GET("/popup", s.handlePopup)

	api := router.Group("/api")
	api.GET("/status", s.status)
	api.GET("/usage", s.usage)
	api.GET("/policy", s.policy)
	api.GET("/media", s.media)
	api.POST("/toggle/images", s.toggleImages)
	api.POST("/toggle/videos", s.toggleVideos)

	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	return s
}

// Handler exposes the router (for tests).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen binds the address. Failure here is a startup failure.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Serve handles requests until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.http = &http.Server{
		Handler:     s.router,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("bridge listening", zap.String("addr", s.Addr()))
		errCh <- s.http.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("bridge shutdown", zap.Error(err))
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleExtension(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("extension upgrade failed", zap.Error(err))
		return
	}
	s.extension.Serve(c.Request.Context(), conn)
}

func (s *Server) handlePopup(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("popup upgrade failed", zap.Error(err))
		return
	}
	s.servePopup(c.Request.Context(), conn)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"extension": s.extension.Attached(),
	})
}

func (s *Server) status(c *gin.Context) {
	st, err := s.commands.Status(c.Request.Context())
	respond(c, st, err)
}

func (s *Server) usage(c *gin.Context) {
	u, err := s.commands.Usage(c.Request.Context())
	respond(c, domain.UsageFeed{SiteUsage: u}, err)
}

func (s *Server) policy(c *gin.Context) {
	p, err := s.commands.Policy(c.Request.Context())
	respond(c, p, err)
}

func (s *Server) media(c *gin.Context) {
	m, err := s.commands.MediaState(c.Request.Context())
	respond(c, m, err)
}

func (s *Server) toggleImages(c *gin.Context) {
	m, err := s.commands.ToggleImages(c.Request.Context())
	respond(c, m, err)
}

func (s *Server) toggleVideos(c *gin.Context) {
	m, err := s.commands.ToggleVideos(c.Request.Context())
	respond(c, m, err)
}

func respond(c *gin.Context, body any, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrUnavailable) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": StatusError, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, body)
}
