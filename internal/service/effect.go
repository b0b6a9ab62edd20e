package service

import (
	"context"
	"encoding/json"
	"net/http"

	api "github.com/hubexhq/hubex/internal/api/v1"
	"github.com/hubexhq/hubex/internal/auth"
	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store/model"
)

func (h *ServiceHandler) ListEffects(ctx context.Context, status *string, limit int) (any, int) {
	if _, ok := auth.UserFromCtx(ctx); !ok {
		return api.NewError("CAP_AUTH_REQUIRED", "missing bearer token"), http.StatusUnauthorized
	}
	effects, err := h.store.Effect().List(ctx, status, limit)
	if err != nil {
		return h.errorResponse(err)
	}
	views := make([]api.VariableEffectView, len(effects))
	for i := range effects {
		views[i] = effectView(&effects[i])
	}
	return views, http.StatusOK
}

func (h *ServiceHandler) GetEffect(ctx context.Context, effectID string) (any, int) {
	if _, ok := auth.UserFromCtx(ctx); !ok {
		return api.NewError("CAP_AUTH_REQUIRED", "missing bearer token"), http.StatusUnauthorized
	}
	effect, err := h.store.Effect().Get(ctx, effectID)
	if err != nil {
		return h.errorResponse(err)
	}
	view := effectView(effect)
	return &view, http.StatusOK
}

// RunEffectsHTTP is the dev-tools drain endpoint; deployments run the same
// loop from the worker binary instead.
func (h *ServiceHandler) RunEffectsHTTP(ctx context.Context, request api.EffectsRunOnceRequest) (any, int) {
	if !h.cfg.Service.DevTools {
		return api.NewError("DEV_TOOLS_DISABLED", "effect draining requires dev tools"), http.StatusForbidden
	}
	if _, ok := auth.UserFromCtx(ctx); !ok {
		return api.NewError("CAP_AUTH_REQUIRED", "missing bearer token"), http.StatusUnauthorized
	}

	lockedBy := "api"
	if request.LockedBy != nil && *request.LockedBy != "" {
		lockedBy = *request.LockedBy
	}
	result, err := h.RunEffectsOnce(ctx, request.Limit, lockedBy)
	if err != nil {
		return h.errorResponse(err)
	}
	return result, http.StatusOK
}

// RunEffectsOnce leases one batch of due effects and executes them. Failures
// are recorded with backoff; an effect whose attempt budget is spent goes
// dead and stops being leased.
func (h *ServiceHandler) RunEffectsOnce(ctx context.Context, limit int, lockedBy string) (*api.EffectsRunOnceResponse, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	effects, err := h.store.Effect().LeasePending(ctx, limit, lockedBy)
	if err != nil {
		return nil, err
	}

	result := &api.EffectsRunOnceResponse{Processed: len(effects)}
	for i := range effects {
		effect := &effects[i]
		if execErr := h.executeEffect(ctx, effect); execErr != nil {
			result.Failed++
			errJSON, _ := json.Marshal(map[string]string{"message": execErr.Error()})
			if err := h.store.Effect().MarkFailed(ctx, effect.ID, effect.Attempts, errJSON); err != nil {
				h.log.WithError(err).WithField("effect", effect.ID).Error("failed to record effect failure")
			}
			continue
		}
		result.Done++
		if err := h.store.Effect().MarkDone(ctx, effect.ID); err != nil {
			h.log.WithError(err).WithField("effect", effect.ID).Error("failed to record effect completion")
		}
	}
	return result, nil
}

func (h *ServiceHandler) executeEffect(ctx context.Context, effect *model.VariableEffect) error {
	if effect.DeviceID == nil {
		return hberrors.ErrEffectInvalidPayload
	}

	switch effect.Kind {
	case api.EffectKindTelemetryReschedule:
		var payload struct {
			IntervalMS *int `json:"interval_ms"`
		}
		if err := json.Unmarshal(effect.Payload, &payload); err != nil || payload.IntervalMS == nil {
			return hberrors.ErrEffectInvalidPayload
		}
		return h.store.Device().SetTelemetryInterval(ctx, *effect.DeviceID, *payload.IntervalMS)

	case api.EffectKindDeviceLabelSync:
		var payload struct {
			Label *string `json:"label"`
		}
		if err := json.Unmarshal(effect.Payload, &payload); err != nil || payload.Label == nil {
			return hberrors.ErrEffectInvalidPayload
		}
		return h.store.Device().SetName(ctx, *effect.DeviceID, *payload.Label)

	default:
		return hberrors.ErrEffectUnknownKind
	}
}

func effectView(effect *model.VariableEffect) api.VariableEffectView {
	return api.VariableEffectView{
		ID:             effect.ID,
		Status:         effect.Status,
		Kind:           effect.Kind,
		Scope:          effect.Scope,
		DeviceID:       effect.DeviceID,
		DeviceUID:      effect.DeviceUID,
		TriggerAuditID: effect.TriggerAuditID,
		Payload:        json.RawMessage(effect.Payload),
		Error:          json.RawMessage(effect.Error),
		Attempts:       effect.Attempts,
		NextAttemptAt:  effect.NextAttemptAt,
		LockedUntil:    effect.LockedUntil,
		LockedBy:       effect.LockedBy,
		CorrelationID:  effect.CorrelationID,
		CreatedAt:      effect.CreatedAt,
		UpdatedAt:      effect.UpdatedAt,
	}
}
