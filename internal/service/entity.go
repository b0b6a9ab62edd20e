package service

import (
	"context"
	"encoding/json"
	"net/http"

	api "github.com/hubexhq/hubex/internal/api/v1"
	"github.com/hubexhq/hubex/internal/auth"
	"github.com/hubexhq/hubex/internal/store/model"
)

// Entities are registered out of band; the API surface is read-only.

func (h *ServiceHandler) ListEntities(ctx context.Context, entityType *string) (any, int) {
	if _, ok := auth.UserFromCtx(ctx); !ok {
		return api.NewError("CAP_AUTH_REQUIRED", "missing bearer token"), http.StatusUnauthorized
	}
	entities, err := h.store.Entity().List(ctx, entityType)
	if err != nil {
		return h.errorResponse(err)
	}
	views := make([]api.EntityView, len(entities))
	for i := range entities {
		views[i] = entityView(&entities[i])
	}
	return views, http.StatusOK
}

func (h *ServiceHandler) GetEntity(ctx context.Context, entityID string) (any, int) {
	if _, ok := auth.UserFromCtx(ctx); !ok {
		return api.NewError("CAP_AUTH_REQUIRED", "missing bearer token"), http.StatusUnauthorized
	}
	entity, err := h.store.Entity().Get(ctx, entityID)
	if err != nil {
		return h.errorResponse(err)
	}
	view := entityView(entity)
	return &view, http.StatusOK
}

// ListEntityDevices returns the bindings for an entity; an unknown entity
// yields an empty list rather than a 404.
func (h *ServiceHandler) ListEntityDevices(ctx context.Context, entityID string) (any, int) {
	if _, ok := auth.UserFromCtx(ctx); !ok {
		return api.NewError("CAP_AUTH_REQUIRED", "missing bearer token"), http.StatusUnauthorized
	}
	bindings, err := h.store.Entity().Bindings(ctx, entityID)
	if err != nil {
		return h.errorResponse(err)
	}
	views := make([]api.EntityDeviceBindingView, len(bindings))
	for i, b := range bindings {
		views[i] = api.EntityDeviceBindingView{DeviceID: b.DeviceID, Enabled: b.Enabled, Priority: b.Priority}
	}
	return views, http.StatusOK
}

func entityView(entity *model.Entity) api.EntityView {
	return api.EntityView{
		EntityID:         entity.EntityID,
		Type:             entity.Type,
		Name:             entity.Name,
		Tags:             json.RawMessage(entity.Tags),
		HealthLastSeenAt: entity.HealthLastSeenAt,
		HealthStatus:     entity.HealthStatus,
	}
}
