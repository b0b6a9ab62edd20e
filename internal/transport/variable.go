package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	api "github.com/hubexhq/hubex/internal/api/v1"
)

func (h *TransportHandler) CreateVariableDefinition(w http.ResponseWriter, r *http.Request) {
	var request api.VariableDefinitionRequest
	if !decodeBody(w, r, &request) {
		return
	}
	body, status := h.serviceHandler.CreateVariableDefinition(r.Context(), request)
	SetResponse(w, body, status)
}

func (h *TransportHandler) ListVariableDefinitions(w http.ResponseWriter, r *http.Request) {
	body, status := h.serviceHandler.ListVariableDefinitions(r.Context(), queryString(r, "scope"))
	SetResponse(w, body, status)
}

func (h *TransportHandler) GetVariableValue(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	scope := r.URL.Query().Get("scope")
	if key == "" || scope == "" {
		SetResponse(w, api.NewError("INVALID_QUERY", "key and scope are required"), http.StatusBadRequest)
		return
	}
	body, status := h.serviceHandler.GetVariableValue(r.Context(), key, scope,
		queryString(r, "device_uid", "deviceUid"), queryBool(r, "include_secrets", "includeSecrets"))
	SetResponse(w, body, status)
}

func (h *TransportHandler) SetVariableValue(w http.ResponseWriter, r *http.Request) {
	var request api.VariableWriteRequest
	if !decodeBody(w, r, &request) {
		return
	}
	body, status := h.serviceHandler.SetVariableValue(r.Context(), request)
	SetResponse(w, body, status)
}

func (h *TransportHandler) EffectiveVariables(w http.ResponseWriter, r *http.Request) {
	body, status := h.serviceHandler.EffectiveVariables(r.Context(),
		queryString(r, "device_uid", "deviceUid"), queryBool(r, "include_secrets", "includeSecrets"))
	SetResponse(w, body, status)
}

// GetSnapshot serves two forms: with ?id= it returns a previously persisted
// snapshot, without it it resolves a fresh one for the given device, like
// the effective endpoint.
func (h *TransportHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	if snapshotID := r.URL.Query().Get("id"); snapshotID != "" {
		body, status := h.serviceHandler.GetSnapshot(r.Context(), snapshotID)
		SetResponse(w, body, status)
		return
	}
	body, status := h.serviceHandler.EffectiveVariables(r.Context(),
		queryString(r, "device_uid", "deviceUid"), queryBool(r, "include_secrets", "includeSecrets"))
	SetResponse(w, body, status)
}

func (h *TransportHandler) VariableApplied(w http.ResponseWriter, r *http.Request) {
	var request api.VariableAppliedRequest
	if !decodeBody(w, r, &request) {
		return
	}
	body, status := h.serviceHandler.VariableApplied(r.Context(), request)
	SetResponse(w, body, status)
}

func (h *TransportHandler) ListVariableAudit(w http.ResponseWriter, r *http.Request) {
	body, status := h.serviceHandler.ListVariableAudit(r.Context(),
		queryString(r, "key"), queryInt(r, "limit", 100))
	SetResponse(w, body, status)
}

func (h *TransportHandler) ListEffects(w http.ResponseWriter, r *http.Request) {
	body, status := h.serviceHandler.ListEffects(r.Context(),
		queryString(r, "status"), queryInt(r, "limit", 50))
	SetResponse(w, body, status)
}

func (h *TransportHandler) GetEffect(w http.ResponseWriter, r *http.Request) {
	body, status := h.serviceHandler.GetEffect(r.Context(), chi.URLParam(r, "effectId"))
	SetResponse(w, body, status)
}

func (h *TransportHandler) RunEffectsOnce(w http.ResponseWriter, r *http.Request) {
	request := api.EffectsRunOnceRequest{}
	if r.ContentLength > 0 && !decodeBody(w, r, &request) {
		return
	}
	body, status := h.serviceHandler.RunEffectsHTTP(r.Context(), request)
	SetResponse(w, body, status)
}
