package httpapi

import (
	"net/http"

	"wisefido-vitals/internal/websocket"

	"github.com/gorilla/mux"
)

// LiveHandler 患者实时推送（WebSocket）
type LiveHandler struct {
	hub *websocket.Hub
}

func NewLiveHandler(hub *websocket.Hub) *LiveHandler {
	return &LiveHandler{hub: hub}
}

func (h *LiveHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws/patients/{id}", h.Serve).Methods(http.MethodGet)
}

// GET /ws/patients/{id}
func (h *LiveHandler) Serve(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r, mux.Vars(r)["id"])
}
