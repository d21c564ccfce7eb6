package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"traderbot/internal/config"
	"traderbot/internal/metrics"
)

// Server is the main API server that hosts HTTP and gRPC endpoints.
type Server struct {
	engine   *gin.Engine
	http     *http.Server
	grpc     *grpc.Server
	hub      *Hub
	httpAddr string
	grpcAddr string
	log      *slog.Logger
}

// NewServer creates a Server configured from cfg. hub may be nil, in which
// case /ws is not routed. An empty gRPC address disables the gRPC listener.
func NewServer(cfg config.Config, svc *Service, hub *Hub) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(loggerMiddleware())

	s := &Server{
		engine:   engine,
		grpc:     grpc.NewServer(),
		hub:      hub,
		httpAddr: cfg.HTTPAddr(),
		grpcAddr: cfg.GRPCAddr(),
		log:      slog.Default().With("component", "server"),
	}
	s.http = &http.Server{
		Addr:              s.httpAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.routes(NewHandler(svc))
	RegisterBacktestServer(s.grpc, NewBacktestGRPC(svc))
	return s
}

func (s *Server) routes(h *Handler) {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	if s.hub != nil {
		s.engine.GET("/ws", gin.WrapF(s.hub.ServeWS))
	}

	v1 := s.engine.Group("/api/v1")
	{
		v1.POST("/backtests", h.RunBacktest)
		v1.GET("/backtests", h.ListRuns)
		v1.GET("/backtests/:id", h.GetRun)
		v1.GET("/strategies", h.ListStrategies)
		v1.GET("/signals", h.ListSignals)
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// GRPCServer returns the gRPC server with the backtest service registered.
func (s *Server) GRPCServer() *grpc.Server { return s.grpc }

// ListenAndServe starts the HTTP and gRPC listeners and blocks until the
// context is cancelled or a fatal error occurs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var grpcLis net.Listener
	if s.grpcAddr != "" {
		lis, err := net.Listen("tcp", s.grpcAddr)
		if err != nil {
			return err
		}
		grpcLis = lis
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("http listening", "addr", s.httpAddr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if grpcLis != nil {
		g.Go(func() error {
			s.log.Info("grpc listening", "addr", s.grpcAddr)
			return s.grpc.Serve(grpcLis)
		})
	}
	if s.hub != nil {
		g.Go(func() error { return s.hub.Run(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown performs a graceful shutdown of the HTTP and gRPC servers.
func (s *Server) Shutdown(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()
	err := s.http.Shutdown(ctx)
	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpc.Stop()
	}
	return err
}

func loggerMiddleware() gin.HandlerFunc {
	log := slog.Default().With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info("request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
