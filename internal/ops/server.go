package ops

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/permabid/permabid/internal/mm"
	"github.com/permabid/permabid/internal/telemetry"
)

// Server exposes health, metrics, and a read-only position view on the
// operational port.
type Server struct {
	addr   string
	board  *mm.PositionBoard
	logger *zap.Logger
	srv    *http.Server
}

func NewServer(addr string, board *mm.PositionBoard, logger *zap.Logger) *Server {
	return &Server{addr: addr, board: board, logger: logger}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/positions", func(c *gin.Context) {
		snap := telemetry.BuildSnapshot(s.board.Snapshot(), time.Now())
		c.JSON(http.StatusOK, snap)
	})

	s.srv = &http.Server{Addr: s.addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()
	s.logger.Info("ops server listening", zap.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
