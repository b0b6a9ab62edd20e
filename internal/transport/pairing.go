package transport

import (
	"net/http"

	api "github.com/hubexhq/hubex/internal/api/v1"
)

func (h *TransportHandler) PairingStart(w http.ResponseWriter, r *http.Request) {
	var request api.PairingStartRequest
	if !decodeBody(w, r, &request) {
		return
	}
	body, status := h.serviceHandler.PairingStart(r.Context(), request)
	SetResponse(w, body, status)
}

func (h *TransportHandler) PairingConfirm(w http.ResponseWriter, r *http.Request) {
	var request api.PairingConfirmRequest
	if !decodeBody(w, r, &request) {
		return
	}
	body, status := h.serviceHandler.PairingConfirm(r.Context(), request)
	SetResponse(w, body, status)
}
