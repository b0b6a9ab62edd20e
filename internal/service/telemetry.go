package service

import (
	"context"
	"encoding/json"
	"math"
	"net/http"

	"github.com/ccoveille/go-safecast"

	api "github.com/hubexhq/hubex/internal/api/v1"
	"github.com/hubexhq/hubex/internal/auth"
	"github.com/hubexhq/hubex/internal/store/model"
)

const (
	maxTelemetryPayloadBytes = 16 * 1024
	maxTelemetryKeyLength    = 64
)

// IngestTelemetry validates, rate-limits, persists and fans out one device
// event. Broadcast failures never affect the caller.
func (h *ServiceHandler) IngestTelemetry(ctx context.Context, request api.TelemetryRequest) (any, int) {
	device, ok := auth.DeviceFromCtx(ctx)
	if !ok {
		return api.NewError("CAP_AUTH_REQUIRED", "missing device token"), http.StatusUnauthorized
	}
	if request.EventType != nil && len(*request.EventType) > 64 {
		return validationError("TELEMETRY_INVALID_EVENT_TYPE", "event_type exceeds 64 characters")
	}
	if body, status := validateTelemetryPayload(request.Payload); status != 0 {
		return body, status
	}

	if allowed, retryAfter := h.limiter.Allow(device.ID); !allowed {
		seconds, err := safecast.ToInt(math.Ceil(retryAfter.Seconds()))
		if err != nil || seconds < 1 {
			seconds = 1
		}
		return api.NewErrorWithMeta("TELEMETRY_RATE_LIMITED", "telemetry rate limit exceeded",
			map[string]any{"retry_after_seconds": seconds}), http.StatusTooManyRequests
	}

	event, err := h.store.Telemetry().Insert(ctx, &model.DeviceTelemetry{
		DeviceID:  device.ID,
		EventType: request.EventType,
		Payload:   model.JSON(request.Payload),
	})
	if err != nil {
		return h.errorResponse(err)
	}
	if err := h.store.Device().UpdateLastSeen(ctx, device.ID); err != nil {
		h.log.WithError(err).Warn("failed to refresh device last_seen after telemetry")
	}

	h.hub.Broadcast(device.ID, telemetryView(event))

	return &api.TelemetryResponse{TelemetryID: event.ID, ReceivedAt: event.ReceivedAt}, http.StatusOK
}

// RecentTelemetryBacklog returns the latest events oldest-first, sized for
// the websocket greeting frame.
func (h *ServiceHandler) RecentTelemetryBacklog(ctx context.Context, deviceID int64, limit int) ([]api.TelemetryEventView, error) {
	events, err := h.store.Telemetry().Recent(ctx, deviceID, limit)
	if err != nil {
		return nil, err
	}
	views := make([]api.TelemetryEventView, len(events))
	for i, e := range events {
		views[len(events)-1-i] = telemetryView(&e)
	}
	return views, nil
}

// validateTelemetryPayload enforces the wire contract: a JSON object, keys
// of at most 64 characters at every nesting level, at most 16 KiB
// serialized. A non-zero status means the first return value is an error
// body.
func validateTelemetryPayload(payload json.RawMessage) (any, int) {
	if len(payload) > maxTelemetryPayloadBytes {
		return api.NewError("TELEMETRY_PAYLOAD_TOO_LARGE", "payload exceeds 16 KiB"), http.StatusRequestEntityTooLarge
	}
	var decoded map[string]any
	if len(payload) == 0 || json.Unmarshal(payload, &decoded) != nil {
		return api.NewError("TELEMETRY_INVALID_PAYLOAD", "payload must be a JSON object"), http.StatusUnprocessableEntity
	}
	if !validateKeys(decoded) {
		return api.NewError("TELEMETRY_INVALID_PAYLOAD", "payload keys must be at most 64 characters"), http.StatusUnprocessableEntity
	}
	return nil, 0
}

func validateKeys(value any) bool {
	switch v := value.(type) {
	case map[string]any:
		for key, nested := range v {
			if len(key) > maxTelemetryKeyLength {
				return false
			}
			if !validateKeys(nested) {
				return false
			}
		}
	case []any:
		for _, item := range v {
			if !validateKeys(item) {
				return false
			}
		}
	}
	return true
}
