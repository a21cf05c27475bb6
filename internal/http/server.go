package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Server wraps a gin engine in a net/http.Server so the caller can
// drive a graceful shutdown alongside the rest of the process.
type Server struct {
	Engine *gin.Engine
	http   *http.Server
}

func NewServer(engine *gin.Engine, addr string) *Server {
	return &Server{
		Engine: engine,
		http:   &http.Server{Addr: addr, Handler: engine},
	}
}

func (s *Server) Run() error {
	if s == nil || s.http == nil {
		return fmt.Errorf("server not initialized")
	}
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) ShutdownTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(ctx)
}
