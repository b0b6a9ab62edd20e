package service

import (
	"context"
	"net/http"

	api "github.com/hubexhq/hubex/internal/api/v1"
	"github.com/hubexhq/hubex/internal/auth"
	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store/model"
)

// VariableApplied records device-side apply results for a snapshot. Replays
// are absorbed by the uniqueness over (snapshot, device, key, version); the
// response counts only entries recorded for the first time.
func (h *ServiceHandler) VariableApplied(ctx context.Context, request api.VariableAppliedRequest) (any, int) {
	claims, isUser := auth.UserFromCtx(ctx)
	actorDevice, isDevice := auth.DeviceFromCtx(ctx)
	if !isUser && !isDevice {
		return api.NewError("CAP_AUTH_REQUIRED", "missing credentials"), http.StatusUnauthorized
	}
	if request.SnapshotID == "" {
		return validationError("SNAPSHOT_ID_REQUIRED", "snapshot_id is required")
	}
	if len(request.Applied) == 0 && len(request.Failed) == 0 {
		return &api.VariableAppliedResponse{}, http.StatusOK
	}

	snapshot, err := h.store.Snapshot().Get(ctx, request.SnapshotID)
	if err != nil {
		return h.errorResponse(err)
	}
	if snapshot.DeviceID == nil {
		return h.errorResponse(hberrors.ErrVarAppliedMismatch)
	}

	// Resolve the acking device and check the snapshot belongs to it.
	var deviceID int64
	switch {
	case isDevice:
		deviceID = actorDevice.ID
	default:
		if request.DeviceUID == nil {
			return h.errorResponse(hberrors.ErrVarDeviceUIDRequired)
		}
		d, err := h.store.Device().GetByUID(ctx, *request.DeviceUID)
		if err != nil {
			return h.errorResponse(hberrors.ErrDeviceNotFound)
		}
		if d.OwnerUserID == nil || *d.OwnerUserID != claims.UserID {
			return h.errorResponse(hberrors.ErrDeviceNotOwned)
		}
		deviceID = d.ID
	}
	if *snapshot.DeviceID != deviceID {
		return h.errorResponse(hberrors.ErrVarAppliedMismatch)
	}

	items, err := h.store.Snapshot().Items(ctx, snapshot.ID)
	if err != nil {
		return h.errorResponse(err)
	}
	byKey := make(map[string]*model.VariableSnapshotItem, len(items))
	for i := range items {
		byKey[items[i].VariableKey] = &items[i]
	}

	acks := make([]model.VariableAppliedAck, 0, len(request.Applied)+len(request.Failed))
	appendAcks := func(entries []api.AppliedItem, status string) (any, int) {
		for _, entry := range entries {
			item, ok := byKey[entry.Key]
			if !ok {
				return h.errorResponse(hberrors.ErrVarAppliedMismatch)
			}
			if entry.Version != nil {
				if item.Version == nil || *item.Version != *entry.Version {
					return h.errorResponse(hberrors.ErrVarAppliedMismatch)
				}
			}
			acks = append(acks, model.VariableAppliedAck{
				SnapshotID:  snapshot.ID,
				DeviceID:    deviceID,
				VariableKey: entry.Key,
				Version:     entry.Version,
				Status:      status,
				Reason:      entry.Reason,
			})
		}
		return nil, 0
	}
	if body, status := appendAcks(request.Applied, model.AckStatusApplied); status != 0 {
		return body, status
	}
	if body, status := appendAcks(request.Failed, model.AckStatusFailed); status != 0 {
		return body, status
	}

	applied, failed, err := h.store.Snapshot().InsertAcks(ctx, snapshot, acks)
	if err != nil {
		return h.errorResponse(err)
	}
	if isDevice {
		if err := h.store.Device().UpdateLastSeen(ctx, deviceID); err != nil {
			h.log.WithError(err).Warn("failed to refresh device last_seen after ack")
		}
	}
	return &api.VariableAppliedResponse{Applied: applied, Failed: failed}, http.StatusOK
}
