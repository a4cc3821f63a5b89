package httpapi

import (
	"context"
	"net/http"

	"wisefido-vitals/internal/models"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// AlarmService 报警生命周期和查询（*service.AlarmService 实现）
type AlarmService interface {
	Acknowledge(ctx context.Context, alarmID, actor string) (*models.Alarm, error)
	Resolve(ctx context.Context, alarmID, actor string) (*models.Alarm, error)
	ListAlarms(ctx context.Context, patientID, status string) ([]*models.Alarm, error)
	CountActiveAlarms(ctx context.Context, patientID string) (int, error)
}

// AlarmHandler 报警接口
type AlarmHandler struct {
	alarms AlarmService
	logger *zap.Logger
}

func NewAlarmHandler(alarms AlarmService, logger *zap.Logger) *AlarmHandler {
	return &AlarmHandler{alarms: alarms, logger: logger}
}

func (h *AlarmHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc(apiPrefix+"/patients/{id}/alarms", h.List).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/patients/{id}/alarms/count", h.Count).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/alarms/{id}/acknowledge", h.Acknowledge).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/alarms/{id}/resolve", h.Resolve).Methods(http.MethodPost)
}

// GET /api/v1/patients/{id}/alarms?status=active
func (h *AlarmHandler) List(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	alarms, err := h.alarms.ListAlarms(r.Context(), patientID, r.URL.Query().Get("status"))
	if err != nil {
		h.logger.Warn("Failed to list alarms", zap.String("patient_id", patientID), zap.Error(err))
		writeError(w, err)
		return
	}
	if alarms == nil {
		alarms = []*models.Alarm{}
	}
	writeJSON(w, http.StatusOK, Ok(alarms))
}

// GET /api/v1/patients/{id}/alarms/count
func (h *AlarmHandler) Count(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	count, err := h.alarms.CountActiveAlarms(r.Context(), patientID)
	if err != nil {
		h.logger.Warn("Failed to count alarms", zap.String("patient_id", patientID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]int{"active": count}))
}

// POST /api/v1/alarms/{id}/acknowledge
func (h *AlarmHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.alarms.Acknowledge)
}

// POST /api/v1/alarms/{id}/resolve
func (h *AlarmHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.alarms.Resolve)
}

func (h *AlarmHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, alarmID, actor string) (*models.Alarm, error),
) {
	alarmID := mux.Vars(r)["id"]
	alarm, err := fn(r.Context(), alarmID, callerID(r))
	if err != nil {
		h.logger.Warn("Failed to change alarm status", zap.String("alarm_id", alarmID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(alarm))
}
