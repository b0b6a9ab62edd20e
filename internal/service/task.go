package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	api "github.com/hubexhq/hubex/internal/api/v1"
	"github.com/hubexhq/hubex/internal/auth"
	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store/model"
)

func (h *ServiceHandler) CreateTask(ctx context.Context, deviceID int64, request api.TaskCreateRequest) (any, int) {
	device, status := h.ownedDevice(ctx, deviceID)
	if status != 0 {
		return device, status
	}
	d := device.(*model.Device)

	if strings.TrimSpace(request.Type) == "" {
		return validationError("TASK_INVALID_TYPE", "task type is required")
	}
	payload := request.Payload
	if payload == nil {
		payload = json.RawMessage("{}")
	}

	task := &model.Task{
		ClientID:           d.ID,
		ExecutionContextID: request.ExecutionContextID,
		Type:               request.Type,
		Payload:            model.JSON(payload),
		Priority:           request.Priority,
		IdempotencyKey:     request.IdempotencyKey,
	}
	created, fresh, err := h.store.Task().Create(ctx, task)
	if err != nil {
		return h.errorResponse(err)
	}

	view := taskView(created)
	if fresh {
		return &view, http.StatusCreated
	}
	return &view, http.StatusOK
}

func (h *ServiceHandler) ListDeviceTasks(ctx context.Context, deviceID int64, statuses []string, limit int) (any, int) {
	device, status := h.ownedDevice(ctx, deviceID)
	if status != 0 {
		return device, status
	}
	d := device.(*model.Device)

	tasks, err := h.store.Task().ListByClient(ctx, d.ID, statuses, limit)
	if err != nil {
		return h.errorResponse(err)
	}
	views := make([]api.TaskView, len(tasks))
	for i := range tasks {
		views[i] = taskView(&tasks[i])
	}
	return views, http.StatusOK
}

func (h *ServiceHandler) CurrentTask(ctx context.Context, deviceID int64) (any, int) {
	device, status := h.ownedDevice(ctx, deviceID)
	if status != 0 {
		return device, status
	}
	d := device.(*model.Device)

	task, err := h.store.Task().Current(ctx, d.ID)
	if err != nil {
		return h.errorResponse(err)
	}
	if task == nil {
		return map[string]any{"task": nil}, http.StatusOK
	}
	view := taskView(task)
	return map[string]any{"task": view}, http.StatusOK
}

func (h *ServiceHandler) TaskHistory(ctx context.Context, deviceID int64, limit int) (any, int) {
	terminal := []string{model.TaskStatusDone, model.TaskStatusFailed, model.TaskStatusCanceled}
	return h.ListDeviceTasks(ctx, deviceID, terminal, limit)
}

// PollTasks claims work for the calling device. Expired leases are reclaimed
// by the same query, so a crashed worker's tasks flow back automatically.
func (h *ServiceHandler) PollTasks(ctx context.Context, limit int, contextKey string, leaseSeconds int) (any, int) {
	device, ok := auth.DeviceFromCtx(ctx)
	if !ok {
		return api.NewError("CAP_AUTH_REQUIRED", "missing device token"), http.StatusUnauthorized
	}

	var contextID *int64
	if contextKey != "" {
		id, err := h.store.Task().ContextID(ctx, device.ID, contextKey)
		if err != nil {
			if err == hberrors.ErrResourceNotFound {
				// Unknown context: nothing can be pinned to it yet.
				return []api.TaskPollItem{}, http.StatusOK
			}
			return h.errorResponse(err)
		}
		contextID = id
	}

	tasks, err := h.store.Task().Poll(ctx, device.ID, contextID, limit, leaseSeconds)
	if err != nil {
		return h.errorResponse(err)
	}
	if err := h.store.Device().UpdateLastSeen(ctx, device.ID); err != nil {
		h.log.WithError(err).Warn("failed to refresh device last_seen after poll")
	}

	items := make([]api.TaskPollItem, len(tasks))
	for i, t := range tasks {
		items[i] = api.TaskPollItem{
			ID:                 t.ID,
			Type:               t.Type,
			Payload:            json.RawMessage(t.Payload),
			CreatedAt:          t.CreatedAt,
			LeaseExpiresAt:     *t.LeaseExpiresAt,
			ExecutionContextID: t.ExecutionContextID,
			LeaseToken:         *t.LeaseToken,
		}
	}
	return items, http.StatusOK
}

func (h *ServiceHandler) RenewTask(ctx context.Context, taskID int64, leaseSeconds int, leaseToken *string) (any, int) {
	device, ok := auth.DeviceFromCtx(ctx)
	if !ok {
		return api.NewError("CAP_AUTH_REQUIRED", "missing device token"), http.StatusUnauthorized
	}

	task, err := h.store.Task().Renew(ctx, taskID, device.ID, leaseSeconds, leaseToken)
	if err != nil {
		return h.errorResponse(err)
	}
	return &api.TaskRenewResponse{ID: task.ID, LeaseExpiresAt: *task.LeaseExpiresAt}, http.StatusOK
}

func (h *ServiceHandler) CompleteTask(ctx context.Context, taskID int64, request api.TaskCompleteRequest) (any, int) {
	device, ok := auth.DeviceFromCtx(ctx)
	if !ok {
		return api.NewError("CAP_AUTH_REQUIRED", "missing device token"), http.StatusUnauthorized
	}
	if !api.IsTerminalTaskStatus(request.Status) {
		return validationError("TASK_INVALID_STATUS", "status must be done, failed or canceled")
	}

	task, err := h.store.Task().Complete(ctx, taskID, device.ID, request.Status, request.Result, request.Error, request.LeaseToken)
	if err != nil {
		return h.errorResponse(err)
	}
	return &api.TaskCompleteResponse{ID: task.ID, Status: task.Status, CompletedAt: *task.CompletedAt}, http.StatusOK
}

func (h *ServiceHandler) CancelTask(ctx context.Context, deviceID, taskID int64, request api.TaskCancelRequest) (any, int) {
	device, status := h.ownedDevice(ctx, deviceID)
	if status != 0 {
		return device, status
	}
	d := device.(*model.Device)

	task, err := h.store.Task().Get(ctx, taskID)
	if err != nil {
		return h.errorResponse(err)
	}
	if task.ClientID != d.ID {
		return h.errorResponse(hberrors.ErrTaskNotFound)
	}

	canceled, err := h.store.Task().Cancel(ctx, taskID, request.Force)
	if err != nil {
		return h.errorResponse(err)
	}
	view := taskView(canceled)
	return &view, http.StatusOK
}

func (h *ServiceHandler) HeartbeatContext(ctx context.Context, request api.ContextHeartbeatRequest) (any, int) {
	device, ok := auth.DeviceFromCtx(ctx)
	if !ok {
		return api.NewError("CAP_AUTH_REQUIRED", "missing device token"), http.StatusUnauthorized
	}
	key := strings.TrimSpace(request.ContextKey)
	if key == "" || len(key) > 128 {
		return validationError("TASK_INVALID_CONTEXT_KEY", "context_key must be 1-128 characters")
	}

	ec, err := h.store.Task().HeartbeatContext(ctx, device.ID, key, request.Capabilities, request.Meta)
	if err != nil {
		return h.errorResponse(err)
	}
	return &api.ContextHeartbeatResponse{ID: ec.ID, ContextKey: ec.ContextKey, LastSeenAt: *ec.LastSeenAt}, http.StatusOK
}

func taskView(task *model.Task) api.TaskView {
	return api.TaskView{
		ID:                 task.ID,
		ClientID:           task.ClientID,
		ExecutionContextID: task.ExecutionContextID,
		Type:               task.Type,
		Payload:            json.RawMessage(task.Payload),
		Status:             task.Status,
		Priority:           task.Priority,
		IdempotencyKey:     task.IdempotencyKey,
		ClaimedAt:          task.ClaimedAt,
		LeaseExpiresAt:     task.LeaseExpiresAt,
		CreatedAt:          task.CreatedAt,
		CompletedAt:        task.CompletedAt,
		Result:             json.RawMessage(task.Result),
		Error:              task.Error,
	}
}
