package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *TransportHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	body, status := h.serviceHandler.ListEntities(r.Context(), queryString(r, "type"))
	SetResponse(w, body, status)
}

func (h *TransportHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	body, status := h.serviceHandler.GetEntity(r.Context(), chi.URLParam(r, "entityId"))
	SetResponse(w, body, status)
}

func (h *TransportHandler) ListEntityDevices(w http.ResponseWriter, r *http.Request) {
	body, status := h.serviceHandler.ListEntityDevices(r.Context(), chi.URLParam(r, "entityId"))
	SetResponse(w, body, status)
}
