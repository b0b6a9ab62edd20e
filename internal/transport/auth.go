package transport

import (
	"net/http"

	api "github.com/hubexhq/hubex/internal/api/v1"
)

func (h *TransportHandler) Register(w http.ResponseWriter, r *http.Request) {
	var request api.RegisterRequest
	if !decodeBody(w, r, &request) {
		return
	}
	body, status := h.serviceHandler.Register(r.Context(), request)
	SetResponse(w, body, status)
}

func (h *TransportHandler) Login(w http.ResponseWriter, r *http.Request) {
	var request api.LoginRequest
	if !decodeBody(w, r, &request) {
		return
	}
	body, status := h.serviceHandler.Login(r.Context(), request)
	SetResponse(w, body, status)
}

func (h *TransportHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	body, status := h.serviceHandler.GetCurrentUser(r.Context())
	SetResponse(w, body, status)
}
