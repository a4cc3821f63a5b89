package httpapi

import (
	"context"
	"net/http"

	"wisefido-vitals/internal/models"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// VitalService 读数录入（*service.VitalIngestService 实现）
type VitalService interface {
	Ingest(ctx context.Context, input models.VitalReadingInput, recordedBy string) (*models.VitalReading, error)
	CorrectVital(ctx context.Context, readingID string, input models.VitalReadingInput, updatedBy string) (*models.VitalReading, error)
}

// VitalHandler 读数接口
type VitalHandler struct {
	vitals VitalService
	logger *zap.Logger
}

func NewVitalHandler(vitals VitalService, logger *zap.Logger) *VitalHandler {
	return &VitalHandler{vitals: vitals, logger: logger}
}

func (h *VitalHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc(apiPrefix+"/vitals", h.Create).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/vitals/{id}", h.Correct).Methods(http.MethodPut)
}

// POST /api/v1/vitals
// header: X-User-ID（记录人）
func (h *VitalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input models.VitalReadingInput
	if err := readBodyJSON(r, maxBodyBytes, &input); err != nil {
		badRequest(w, "invalid body: %v", err)
		return
	}

	reading, err := h.vitals.Ingest(r.Context(), input, callerID(r))
	if err != nil {
		h.logger.Warn("Failed to ingest vital reading",
			zap.String("patient_id", input.PatientID),
			zap.Error(err),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, Ok(reading))
}

// PUT /api/v1/vitals/{id}
func (h *VitalHandler) Correct(w http.ResponseWriter, r *http.Request) {
	readingID := mux.Vars(r)["id"]

	var input models.VitalReadingInput
	if err := readBodyJSON(r, maxBodyBytes, &input); err != nil {
		badRequest(w, "invalid body: %v", err)
		return
	}

	reading, err := h.vitals.CorrectVital(r.Context(), readingID, input, callerID(r))
	if err != nil {
		h.logger.Warn("Failed to correct vital reading",
			zap.String("reading_id", readingID),
			zap.Error(err),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Ok(reading))
}
