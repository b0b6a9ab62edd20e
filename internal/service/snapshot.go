package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	api "github.com/hubexhq/hubex/internal/api/v1"
	"github.com/hubexhq/hubex/internal/auth"
	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store/model"
	"github.com/hubexhq/hubex/internal/util"
)

// EffectiveVariables resolves the layered view for the caller, persists it as
// an immutable snapshot and returns it. Identical requests within the cache
// TTL are served from memory without minting a new snapshot row.
func (h *ServiceHandler) EffectiveVariables(ctx context.Context, deviceUID *string, includeSecrets bool) (any, int) {
	claims, isUser := auth.UserFromCtx(ctx)
	actorDevice, isDevice := auth.DeviceFromCtx(ctx)
	if !isUser && !isDevice {
		return api.NewError("CAP_AUTH_REQUIRED", "missing credentials"), http.StatusUnauthorized
	}

	var userID *int64
	var device *model.Device
	switch {
	case isDevice:
		if deviceUID != nil && *deviceUID != actorDevice.DeviceUID {
			return h.errorResponse(hberrors.ErrDeviceNotOwned)
		}
		device = actorDevice
		userID = actorDevice.OwnerUserID
	default:
		userID = &claims.UserID
		if deviceUID != nil {
			d, err := h.store.Device().GetByUID(ctx, *deviceUID)
			if err != nil {
				return h.errorResponse(hberrors.ErrDeviceNotFound)
			}
			if d.OwnerUserID == nil || *d.OwnerUserID != claims.UserID {
				return h.errorResponse(hberrors.ErrDeviceNotOwned)
			}
			device = d
		}
	}

	key := snapshotCacheKey(userID, device, includeSecrets)
	if item := h.snapshotCache.Get(key); item != nil {
		return item.Value(), http.StatusOK
	}

	response, err := h.resolveSnapshot(ctx, userID, device, includeSecrets)
	if err != nil {
		return h.errorResponse(err)
	}
	h.snapshotCache.Set(key, response, 0)

	return response, http.StatusOK
}

func (h *ServiceHandler) GetSnapshot(ctx context.Context, snapshotID string) (any, int) {
	claims, isUser := auth.UserFromCtx(ctx)
	actorDevice, isDevice := auth.DeviceFromCtx(ctx)
	if !isUser && !isDevice {
		return api.NewError("CAP_AUTH_REQUIRED", "missing credentials"), http.StatusUnauthorized
	}

	snapshot, err := h.store.Snapshot().Get(ctx, snapshotID)
	if err != nil {
		return h.errorResponse(err)
	}
	if isDevice && (snapshot.DeviceID == nil || *snapshot.DeviceID != actorDevice.ID) {
		return h.errorResponse(hberrors.ErrSnapshotNotFound)
	}
	if isUser && !isDevice && snapshot.UserID != nil && *snapshot.UserID != claims.UserID {
		return h.errorResponse(hberrors.ErrSnapshotNotFound)
	}

	items, err := h.store.Snapshot().Items(ctx, snapshot.ID)
	if err != nil {
		return h.errorResponse(err)
	}

	deviceUID := ""
	if snapshot.DeviceID != nil {
		if d, err := h.store.Device().GetByID(ctx, *snapshot.DeviceID); err == nil {
			deviceUID = d.DeviceUID
		}
	}

	response := &api.SnapshotResponse{
		SnapshotID:       snapshot.ID,
		DeviceUID:        deviceUID,
		ResolvedAt:       snapshot.ResolvedAt,
		EffectiveVersion: snapshot.EffectiveVersion,
		EffectiveRev:     snapshot.EffectiveRev,
		Items:            make([]api.EffectiveVariableItem, len(items)),
	}
	for i, item := range items {
		response.Items[i] = snapshotItemView(&item)
	}
	return response, http.StatusOK
}

// resolveSnapshot runs the precedence merge (default < global < user <
// device), persists the result and allocates the device's next
// effective_rev when a device layer is in play.
func (h *ServiceHandler) resolveSnapshot(ctx context.Context, userID *int64, device *model.Device, includeSecrets bool) (*api.EffectiveVariablesResponse, error) {
	defs, err := h.store.Variable().ListDefinitions(ctx, nil)
	if err != nil {
		return nil, err
	}

	var deviceID *int64
	deviceUID := ""
	if device != nil {
		deviceID = &device.ID
		deviceUID = device.DeviceUID
	}
	values, err := h.store.Variable().ListValues(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}

	best := make(map[string]*model.VariableValue, len(values))
	for i := range values {
		v := &values[i]
		current, ok := best[v.VariableKey]
		if !ok || api.Precedence(v.Scope) > api.Precedence(current.Scope) {
			best[v.VariableKey] = v
		}
	}

	resolvedAt := time.Now().UTC()
	effectiveAt := time.Time{}
	items := make([]api.EffectiveVariableItem, 0, len(defs))
	rows := make([]model.VariableSnapshotItem, 0, len(defs))

	for i := range defs {
		def := &defs[i]
		item := api.EffectiveVariableItem{
			Key:          def.Key,
			Scope:        def.Scope,
			Source:       api.SourceDefault,
			IsSecret:     def.IsSecret,
			ResolvedType: def.ValueType,
			Constraints:  definitionConstraints(def),
		}
		raw := json.RawMessage(def.DefaultValue)

		if value, ok := best[def.Key]; ok {
			raw = json.RawMessage(value.ValueJSON)
			item.Source = value.Scope
			item.Version = &value.Version
			updatedAt := value.UpdatedAt
			item.UpdatedAt = &updatedAt
			if updatedAt.After(effectiveAt) {
				effectiveAt = updatedAt
			}
		}
		item.Precedence = api.Precedence(item.Source)

		if def.IsSecret && !includeSecrets && len(raw) > 0 && string(raw) != "null" {
			raw = json.RawMessage(maskedValue)
			item.Masked = true
		}
		item.Value = raw

		items = append(items, item)
		rows = append(rows, model.VariableSnapshotItem{
			VariableKey:  item.Key,
			Scope:        item.Scope,
			DeviceID:     deviceID,
			Source:       item.Source,
			ValueJSON:    model.JSON(item.Value),
			Masked:       item.Masked,
			IsSecret:     item.IsSecret,
			Version:      item.Version,
			UpdatedAt:    item.UpdatedAt,
			Precedence:   item.Precedence,
			ResolvedType: &def.ValueType,
		})
	}

	effectiveVersion := resolvedAt.Format(time.RFC3339Nano)
	if !effectiveAt.IsZero() {
		effectiveVersion = effectiveAt.UTC().Format(time.RFC3339Nano)
	}

	snapshotID, err := util.NewSnapshotID()
	if err != nil {
		return nil, err
	}
	snapshot := &model.VariableSnapshot{
		ID:               snapshotID,
		DeviceID:         deviceID,
		UserID:           userID,
		ResolvedAt:       resolvedAt,
		EffectiveVersion: effectiveVersion,
	}
	if _, err := h.store.Snapshot().Create(ctx, snapshot, rows); err != nil {
		return nil, err
	}

	return &api.EffectiveVariablesResponse{
		DeviceUID:        deviceUID,
		SnapshotID:       snapshot.ID,
		ResolvedAt:       resolvedAt,
		EffectiveVersion: effectiveVersion,
		EffectiveRev:     snapshot.EffectiveRev,
		Items:            items,
	}, nil
}

func snapshotCacheKey(userID *int64, device *model.Device, includeSecrets bool) string {
	uid := int64(0)
	if userID != nil {
		uid = *userID
	}
	duid := ""
	if device != nil {
		duid = device.DeviceUID
	}
	return fmt.Sprintf("u:%d|d:%s|s:%t", uid, duid, includeSecrets)
}

func definitionConstraints(def *model.VariableDefinition) *api.VariableConstraints {
	if def.Unit == nil && def.MinValue == nil && def.MaxValue == nil && len(def.EnumValues) == 0 && def.Regex == nil {
		return nil
	}
	c := &api.VariableConstraints{
		Unit:     def.Unit,
		MinValue: def.MinValue,
		MaxValue: def.MaxValue,
		Regex:    def.Regex,
	}
	if len(def.EnumValues) > 0 {
		_ = json.Unmarshal(def.EnumValues, &c.EnumValues)
	}
	return c
}

func snapshotItemView(item *model.VariableSnapshotItem) api.EffectiveVariableItem {
	view := api.EffectiveVariableItem{
		Key:        item.VariableKey,
		Value:      json.RawMessage(item.ValueJSON),
		Scope:      item.Scope,
		Source:     item.Source,
		Masked:     item.Masked,
		IsSecret:   item.IsSecret,
		Version:    item.Version,
		UpdatedAt:  item.UpdatedAt,
		Precedence: item.Precedence,
	}
	if item.ResolvedType != nil {
		view.ResolvedType = *item.ResolvedType
	}
	if len(item.Constraints) > 0 {
		var c api.VariableConstraints
		if json.Unmarshal(item.Constraints, &c) == nil {
			view.Constraints = &c
		}
	}
	return view
}
