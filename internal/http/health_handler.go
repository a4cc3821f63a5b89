package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Pinger 依赖健康检查（*sql.DB 实现 PingContext）
type Pinger interface {
	PingContext(ctx context.Context) error
}

// LiveStats 实时推送连接统计（*websocket.Hub 实现）
type LiveStats interface {
	ClientCount() int
	PatientCount() int
}

type LiveStatus struct {
	Clients  int `json:"clients"`
	Patients int `json:"patients"`
}

type HealthResponse struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Services  map[string]bool `json:"services"`
	Live      *LiveStatus     `json:"live,omitempty"`
}

// HealthHandler /health
type HealthHandler struct {
	checks map[string]Pinger
	live   LiveStats
	logger *zap.Logger
}

// NewHealthHandler checks 为 nil 时只返回存活状态，live 可为 nil
func NewHealthHandler(checks map[string]Pinger, live LiveStats, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, live: live, logger: logger}
}

func (h *HealthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]bool, len(h.checks)),
	}
	for name, p := range h.checks {
		err := p.PingContext(ctx)
		resp.Services[name] = err == nil
		if err != nil {
			resp.Status = "degraded"
			h.logger.Warn("Health check failed", zap.String("service", name), zap.Error(err))
		}
	}

	if h.live != nil {
		resp.Live = &LiveStatus{Clients: h.live.ClientCount(), Patients: h.live.PatientCount()}
	}

	status := http.StatusOK
	if resp.Status == "degraded" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
