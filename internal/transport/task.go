package transport

import (
	"net/http"
	"strings"

	api "github.com/hubexhq/hubex/internal/api/v1"
)

func (h *TransportHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := pathID(w, r, "deviceId")
	if !ok {
		return
	}
	var request api.TaskCreateRequest
	if !decodeBody(w, r, &request) {
		return
	}
	body, status := h.serviceHandler.CreateTask(r.Context(), deviceID, request)
	SetResponse(w, body, status)
}

func (h *TransportHandler) ListDeviceTasks(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := pathID(w, r, "deviceId")
	if !ok {
		return
	}
	var statuses []string
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses = strings.Split(raw, ",")
	}
	body, status := h.serviceHandler.ListDeviceTasks(r.Context(), deviceID, statuses, queryInt(r, "limit", 50))
	SetResponse(w, body, status)
}

func (h *TransportHandler) CurrentTask(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := pathID(w, r, "deviceId")
	if !ok {
		return
	}
	body, status := h.serviceHandler.CurrentTask(r.Context(), deviceID)
	SetResponse(w, body, status)
}

func (h *TransportHandler) TaskHistory(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := pathID(w, r, "deviceId")
	if !ok {
		return
	}
	body, status := h.serviceHandler.TaskHistory(r.Context(), deviceID, queryInt(r, "limit", 50))
	SetResponse(w, body, status)
}

// PollTasks takes its parameters as query parameters; a JSON body is an
// accepted alternative for agents that prefer one. Query values win.
func (h *TransportHandler) PollTasks(w http.ResponseWriter, r *http.Request) {
	request := api.TaskPollRequest{Limit: 1, LeaseSeconds: 60}
	if r.ContentLength > 0 && !decodeBody(w, r, &request) {
		return
	}
	request.Limit = queryInt(r, "limit", request.Limit)
	request.LeaseSeconds = queryInt(r, "lease_seconds", request.LeaseSeconds)
	if key := queryString(r, "context_key"); key != nil {
		request.ContextKey = *key
	}
	body, status := h.serviceHandler.PollTasks(r.Context(), request.Limit, request.ContextKey, request.LeaseSeconds)
	SetResponse(w, body, status)
}

func (h *TransportHandler) RenewTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "taskId")
	if !ok {
		return
	}
	request := api.TaskRenewRequest{LeaseSeconds: 60}
	if r.ContentLength > 0 && !decodeBody(w, r, &request) {
		return
	}
	request.LeaseSeconds = queryInt(r, "lease_seconds", request.LeaseSeconds)
	if token := queryString(r, "lease_token"); token != nil {
		request.LeaseToken = token
	}
	body, status := h.serviceHandler.RenewTask(r.Context(), taskID, request.LeaseSeconds, request.LeaseToken)
	SetResponse(w, body, status)
}

func (h *TransportHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "taskId")
	if !ok {
		return
	}
	var request api.TaskCompleteRequest
	if !decodeBody(w, r, &request) {
		return
	}
	body, status := h.serviceHandler.CompleteTask(r.Context(), taskID, request)
	SetResponse(w, body, status)
}

func (h *TransportHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := pathID(w, r, "deviceId")
	if !ok {
		return
	}
	taskID, ok := pathID(w, r, "taskId")
	if !ok {
		return
	}
	request := api.TaskCancelRequest{}
	if r.ContentLength > 0 && !decodeBody(w, r, &request) {
		return
	}
	body, status := h.serviceHandler.CancelTask(r.Context(), deviceID, taskID, request)
	SetResponse(w, body, status)
}

func (h *TransportHandler) HeartbeatContext(w http.ResponseWriter, r *http.Request) {
	var request api.ContextHeartbeatRequest
	if !decodeBody(w, r, &request) {
		return
	}
	body, status := h.serviceHandler.HeartbeatContext(r.Context(), request)
	SetResponse(w, body, status)
}
