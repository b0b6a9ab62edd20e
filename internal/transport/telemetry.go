package transport

import (
	"net/http"

	api "github.com/hubexhq/hubex/internal/api/v1"
)

func (h *TransportHandler) IngestTelemetry(w http.ResponseWriter, r *http.Request) {
	var request api.TelemetryRequest
	if !decodeBody(w, r, &request) {
		return
	}
	body, status := h.serviceHandler.IngestTelemetry(r.Context(), request)
	SetResponse(w, body, status)
}
