package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	api "github.com/hubexhq/hubex/internal/api/v1"
	"github.com/hubexhq/hubex/internal/auth"
	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store/model"
)

const (
	healthOKWindow    = 30 * time.Second
	healthStaleWindow = 120 * time.Second
)

func (h *ServiceHandler) DeviceHello(ctx context.Context, request api.DeviceHelloRequest) (any, int) {
	uid := strings.TrimSpace(request.DeviceUID)
	if len(uid) < 4 || len(uid) > 128 {
		return validationError("DEVICE_INVALID_UID", "device_uid must be 4-128 characters")
	}

	device, err := h.store.Device().Hello(ctx, uid, request.FirmwareVersion, request.Capabilities)
	if err != nil {
		return h.errorResponse(err)
	}
	return &api.DeviceHelloResponse{DeviceID: device.ID, Claimed: device.OwnerUserID != nil}, http.StatusOK
}

func (h *ServiceHandler) ListDevices(ctx context.Context) (any, int) {
	claims, ok := auth.UserFromCtx(ctx)
	if !ok {
		return api.NewError("CAP_AUTH_REQUIRED", "missing bearer token"), http.StatusUnauthorized
	}

	devices, err := h.store.Device().List(ctx, &claims.UserID)
	if err != nil {
		return h.errorResponse(err)
	}

	uids := make([]string, len(devices))
	ids := make([]int64, len(devices))
	for i, d := range devices {
		uids[i] = d.DeviceUID
		ids[i] = d.ID
	}
	pairingActive, err := h.store.Pairing().ActiveSessionUIDs(ctx, uids)
	if err != nil {
		return h.errorResponse(err)
	}
	busy, err := h.store.Task().BusyClientIDs(ctx, ids)
	if err != nil {
		return h.errorResponse(err)
	}

	now := time.Now().UTC()
	window := h.activeWindow()
	items := make([]api.DeviceView, len(devices))
	for i := range devices {
		items[i] = deviceView(&devices[i], pairingActive[devices[i].DeviceUID], busy[devices[i].ID], window, now)
	}
	return &api.DeviceListResponse{Items: items}, http.StatusOK
}

func (h *ServiceHandler) GetDevice(ctx context.Context, deviceID int64) (any, int) {
	device, status := h.ownedDevice(ctx, deviceID)
	if status != 0 {
		return device, status
	}
	d := device.(*model.Device)
	return h.deviceDetail(ctx, d)
}

func (h *ServiceHandler) LookupDevice(ctx context.Context, deviceUID string) (any, int) {
	if _, ok := auth.UserFromCtx(ctx); !ok {
		return api.NewError("CAP_AUTH_REQUIRED", "missing bearer token"), http.StatusUnauthorized
	}
	device, err := h.store.Device().GetByUID(ctx, deviceUID)
	if err != nil {
		return h.errorResponse(hberrors.ErrDeviceNotFound)
	}
	return h.deviceDetail(ctx, device)
}

func (h *ServiceHandler) DeviceWhoami(ctx context.Context) (any, int) {
	device, ok := auth.DeviceFromCtx(ctx)
	if !ok {
		return api.NewError("CAP_AUTH_REQUIRED", "missing device token"), http.StatusUnauthorized
	}
	return &api.DeviceWhoamiResponse{ID: device.ID, DeviceUID: device.DeviceUID, OwnerUserID: device.OwnerUserID}, http.StatusOK
}

func (h *ServiceHandler) RecentDeviceTelemetry(ctx context.Context, deviceID int64, limit int) (any, int) {
	device, status := h.ownedDevice(ctx, deviceID)
	if status != 0 {
		return device, status
	}
	d := device.(*model.Device)

	if limit < 1 {
		limit = 50
	} else if limit > 200 {
		limit = 200
	}
	events, err := h.store.Telemetry().Recent(ctx, d.ID, limit)
	if err != nil {
		return h.errorResponse(err)
	}

	views := make([]api.TelemetryEventView, len(events))
	for i, e := range events {
		views[i] = telemetryView(&e)
	}
	return views, http.StatusOK
}

// ownedDevice resolves a device by id and checks the calling user owns it.
// A non-zero status means the first return value is an error body.
func (h *ServiceHandler) ownedDevice(ctx context.Context, deviceID int64) (any, int) {
	claims, ok := auth.UserFromCtx(ctx)
	if !ok {
		return api.NewError("CAP_AUTH_REQUIRED", "missing bearer token"), http.StatusUnauthorized
	}
	device, err := h.store.Device().GetByID(ctx, deviceID)
	if err != nil {
		body, status := h.errorResponse(hberrors.ErrDeviceNotFound)
		return body, status
	}
	if device.OwnerUserID == nil || *device.OwnerUserID != claims.UserID {
		body, status := h.errorResponse(hberrors.ErrDeviceNotOwned)
		return body, status
	}
	return device, 0
}

func (h *ServiceHandler) deviceDetail(ctx context.Context, device *model.Device) (any, int) {
	pairingActive, err := h.store.Pairing().ActiveSessionUIDs(ctx, []string{device.DeviceUID})
	if err != nil {
		return h.errorResponse(err)
	}
	busy, err := h.store.Task().BusyClientIDs(ctx, []int64{device.ID})
	if err != nil {
		return h.errorResponse(err)
	}
	view := deviceView(device, pairingActive[device.DeviceUID], busy[device.ID], h.activeWindow(), time.Now().UTC())
	return &view, http.StatusOK
}

// activeWindow is the configured freshness window for the "active" flag.
func (h *ServiceHandler) activeWindow() time.Duration {
	if h.cfg == nil || h.cfg.Devices == nil {
		return 0
	}
	return time.Duration(h.cfg.Devices.ActiveWindowSeconds) * time.Second
}

func deviceView(device *model.Device, pairingActive, busy bool, activeWindow time.Duration, now time.Time) api.DeviceView {
	return api.DeviceView{
		ID:              device.ID,
		DeviceUID:       device.DeviceUID,
		Name:            device.Name,
		FirmwareVersion: device.FirmwareVersion,
		Capabilities:    device.Capabilities,
		LastSeenAt:      device.LastSeenAt,
		OwnerUserID:     device.OwnerUserID,
		Claimed:         device.OwnerUserID != nil,
		State:           deriveState(device, pairingActive, busy),
		Active:          deriveActive(device, activeWindow, now),
		Health:          deriveHealth(device, now),
		CreatedAt:       device.CreatedAt,
	}
}

// deriveActive reports whether the device was seen within the configured
// window. A zero or negative window disables the flag.
func deriveActive(device *model.Device, window time.Duration, now time.Time) bool {
	if device.LastSeenAt == nil || window <= 0 {
		return false
	}
	return now.Sub(*device.LastSeenAt) <= window
}

func deriveState(device *model.Device, pairingActive, busy bool) string {
	switch {
	case device.LastSeenAt == nil:
		return api.DeviceStateUnprovisioned
	case busy:
		return api.DeviceStateBusy
	case device.OwnerUserID != nil:
		return api.DeviceStateClaimed
	case pairingActive:
		return api.DeviceStatePairingActive
	default:
		return api.DeviceStateProvisionedUnclaimed
	}
}

func deriveHealth(device *model.Device, now time.Time) string {
	if device.LastSeenAt == nil {
		return api.DeviceHealthDead
	}
	age := now.Sub(*device.LastSeenAt)
	switch {
	case age <= healthOKWindow:
		return api.DeviceHealthOK
	case age <= healthStaleWindow:
		return api.DeviceHealthStale
	default:
		return api.DeviceHealthDead
	}
}

func telemetryView(event *model.DeviceTelemetry) api.TelemetryEventView {
	return api.TelemetryEventView{
		ID:         event.ID,
		ReceivedAt: event.ReceivedAt,
		EventType:  event.EventType,
		Payload:    json.RawMessage(event.Payload),
	}
}
