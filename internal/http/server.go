package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// apiPrefix REST 接口前缀
const apiPrefix = "/api/v1"

// Server HTTP 服务（REST + WebSocket + /metrics + /health）
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	logger     *zap.Logger
}

func NewServer(addr string, logger *zap.Logger) *Server {
	router := mux.NewRouter()
	return &Server{
		router: router,
		logger: logger,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler 供测试直接调用
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) RegisterHandlers(
	vitals *VitalHandler,
	alarms *AlarmHandler,
	live *LiveHandler,
	health *HealthHandler,
	gatherer prometheus.Gatherer,
) {
	// 路由直接挂在根 router 上（不用 Subrouter），method 不匹配时返回 405
	s.router.Use(Recovery(s.logger))
	s.router.Use(RequestLogger(s.logger))
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, Fail("not found"))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, Fail("method not allowed"))
	})

	vitals.RegisterRoutes(s.router)
	alarms.RegisterRoutes(s.router)
	live.RegisterRoutes(s.router)
	health.RegisterRoutes(s.router)
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.logger.Info("All handlers registered")
}

func (s *Server) Start() error {
	s.logger.Info("Starting wisefido-vitals HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping wisefido-vitals HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
