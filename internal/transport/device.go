package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	api "github.com/hubexhq/hubex/internal/api/v1"
)

func (h *TransportHandler) DeviceHello(w http.ResponseWriter, r *http.Request) {
	var request api.DeviceHelloRequest
	if !decodeBody(w, r, &request) {
		return
	}
	body, status := h.serviceHandler.DeviceHello(r.Context(), request)
	SetResponse(w, body, status)
}

func (h *TransportHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	body, status := h.serviceHandler.ListDevices(r.Context())
	SetResponse(w, body, status)
}

func (h *TransportHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := pathID(w, r, "deviceId")
	if !ok {
		return
	}
	body, status := h.serviceHandler.GetDevice(r.Context(), deviceID)
	SetResponse(w, body, status)
}

func (h *TransportHandler) LookupDevice(w http.ResponseWriter, r *http.Request) {
	body, status := h.serviceHandler.LookupDevice(r.Context(), chi.URLParam(r, "deviceUid"))
	SetResponse(w, body, status)
}

func (h *TransportHandler) DeviceWhoami(w http.ResponseWriter, r *http.Request) {
	body, status := h.serviceHandler.DeviceWhoami(r.Context())
	SetResponse(w, body, status)
}

func (h *TransportHandler) RecentDeviceTelemetry(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := pathID(w, r, "deviceId")
	if !ok {
		return
	}
	body, status := h.serviceHandler.RecentDeviceTelemetry(r.Context(), deviceID, queryInt(r, "limit", 50))
	SetResponse(w, body, status)
}
