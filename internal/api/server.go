package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"amsdb/internal/config"
	"amsdb/internal/logging"
)

// Server represents the API server
type Server struct {
	httpServer *http.Server
	dbManager  *DatabaseManager
	handler    *APIHandler
	log        *zap.Logger
}

// NewServer creates a new API server on top of dbManager.
func NewServer(cfg config.Server, dbManager *DatabaseManager, log *zap.Logger) *Server {
	log = logging.WithComponent(log, "http")
	gin.SetMode(cfg.Mode)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log))

	handler := NewAPIHandler(dbManager, log)
	handler.Register(engine)

	return &Server{
		httpServer: &http.Server{
			Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:      engine,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		dbManager: dbManager,
		handler:   handler,
		log:       log,
	}
}

// requestLogger logs one line per request.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			fields = append(fields, zap.String("error", errs.String()))
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("request", fields...)
		} else {
			log.Debug("request", fields...)
		}
	}
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start starts the HTTP server. It blocks until the server stops and returns
// nil after a graceful Stop.
func (s *Server) Start() error {
	s.log.Info("amsdb API server starting", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server, then closes all databases.
func (s *Server) Stop(ctx context.Context) error {
	shutdownErr := s.httpServer.Shutdown(ctx)
	if err := s.dbManager.CloseAll(); err != nil {
		s.log.Error("error closing databases", zap.Error(err))
		if shutdownErr == nil {
			shutdownErr = err
		}
	}
	return shutdownErr
}

// GetDatabaseManager returns the database manager
func (s *Server) GetDatabaseManager() *DatabaseManager {
	return s.dbManager
}
