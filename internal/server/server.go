package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/flock"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/amanullahtanweer/chapter-transcriber/internal/pipeline"
)

type Config struct {
	Host        string
	Port        int
	WorkDir     string
	MaxUploadMB int
	Provider    string
}

type Server struct {
	config   Config
	service  *pipeline.Service
	logger   hclog.Logger
	engine   *gin.Engine
	upgrader websocket.Upgrader

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	lock     *flock.Flock
	ctx      context.Context
	cancel   context.CancelFunc
	shutdown chan struct{}
	stopOnce sync.Once
}

// New builds the server and its routes. Nothing listens until Start.
func New(config Config, service *pipeline.Service, logger hclog.Logger) (*Server, error) {
	if service == nil {
		return nil, errors.New("server requires a pipeline service")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 512
	}
	if config.WorkDir != "" {
		if err := os.MkdirAll(config.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create work directory: %w", err)
		}
	}

	gin.SetMode(gin.ReleaseMode)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   config,
		service:  service,
		logger:   logger.Named("server"),
		ctx:      ctx,
		cancel:   cancel,
		shutdown: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	if config.WorkDir != "" {
		s.lock = flock.New(filepath.Join(config.WorkDir, ".server.lock"))
	}
	s.engine = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))
	r.MaxMultipartMemory = 32 << 20

	api := r.Group("/api/v1")
	api.POST("/process_audio", s.handleSubmit)
	api.GET("/sse", s.handleSSE)
	api.GET("/ws", s.handleWebSocket)
	api.GET("/status", s.handleStatus)
	api.GET("/health", s.handleHealth)
	return r
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// lockWorkDir makes sure no other server shares the work directory.
func (s *Server) lockWorkDir() error {
	if s.lock == nil {
		return nil
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock work directory: %w", err)
	}
	if !ok {
		return fmt.Errorf("work directory %s is in use by another server", s.config.WorkDir)
	}
	return nil
}

// Start listens and serves until Stop is called.
func (s *Server) Start() error {
	if err := s.lockWorkDir(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.unlock()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.http = srv
	s.mu.Unlock()

	s.logger.Info("transcription server listening", "addr", listener.Addr().String())
	s.logger.Info("recognition provider", "provider", s.config.Provider)

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		select {
		case <-s.shutdown:
			return nil
		default:
			return fmt.Errorf("serve: %w", err)
		}
	}
	return nil
}

// Addr returns the listening address once Start is serving.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop ends open streams, cancels the running job and shuts the listener down.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.shutdown)
		s.cancel()
		if err := s.service.Close(); err != nil {
			s.logger.Warn("failed to close pipeline", "error", err)
		}

		s.mu.Lock()
		srv := s.http
		s.mu.Unlock()
		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				s.logger.Warn("forced shutdown", "error", err)
				_ = srv.Close()
			}
		}
		s.unlock()
		s.logger.Info("server stopped")
	})
}

func (s *Server) unlock() {
	if s.lock == nil {
		return
	}
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("failed to release work directory lock", "error", err)
	}
}

// requestLogger logs each request through hclog once it completes.
func requestLogger(logger hclog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		args := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start).Round(time.Microsecond),
			"client", c.ClientIP(),
		}
		switch {
		case status >= 500:
			logger.Error("request", args...)
		case status >= 400:
			logger.Warn("request", args...)
		default:
			logger.Info("request", args...)
		}
	}
}
