package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	api "github.com/hubexhq/hubex/internal/api/v1"
	"github.com/hubexhq/hubex/internal/auth"
	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store"
	"github.com/hubexhq/hubex/internal/store/model"
	"github.com/hubexhq/hubex/internal/vars"
	"github.com/samber/lo"
)

const maskedValue = `"***"`

func (h *ServiceHandler) CreateVariableDefinition(ctx context.Context, request api.VariableDefinitionRequest) (any, int) {
	if !h.cfg.Service.DevTools {
		return api.NewError("DEV_TOOLS_DISABLED", "definition mutation requires dev tools"), http.StatusForbidden
	}
	if _, ok := auth.UserFromCtx(ctx); !ok {
		return api.NewError("CAP_AUTH_REQUIRED", "missing bearer token"), http.StatusUnauthorized
	}

	key := strings.TrimSpace(request.Key)
	if key == "" || len(key) > 128 {
		return validationError("VAR_INVALID_KEY", "key must be 1-128 characters")
	}
	if !lo.Contains([]string{model.ScopeGlobal, model.ScopeUser, model.ScopeDevice}, request.Scope) {
		return validationError("VAR_INVALID_SCOPE", "scope must be global, user or device")
	}
	if !lo.Contains([]string{vars.ValueTypeString, vars.ValueTypeInt, vars.ValueTypeFloat, vars.ValueTypeBool, vars.ValueTypeJSON}, request.ValueType) {
		return validationError("VAR_INVALID_TYPE", "unsupported value type")
	}

	def := &model.VariableDefinition{
		Key:                 key,
		Scope:               request.Scope,
		ValueType:           request.ValueType,
		Description:         request.Description,
		Unit:                request.Unit,
		MinValue:            request.MinValue,
		MaxValue:            request.MaxValue,
		Regex:               request.Regex,
		IsSecret:            request.IsSecret,
		IsReadonly:          request.IsReadonly,
		UserWritable:        request.UserWritable == nil || *request.UserWritable,
		DeviceWritable:      request.DeviceWritable,
		AllowDeviceOverride: request.AllowDeviceOverride == nil || *request.AllowDeviceOverride,
	}
	if len(request.EnumValues) > 0 {
		enum, err := json.Marshal(request.EnumValues)
		if err != nil {
			return h.errorResponse(err)
		}
		def.EnumValues = model.JSON(enum)
	}
	if request.DefaultValue != nil {
		coerced, err := vars.Coerce(request.DefaultValue, request.ValueType)
		if err != nil {
			return h.errorResponse(err)
		}
		if err := vars.CheckConstraints(def, coerced); err != nil {
			return h.errorResponse(err)
		}
		def.DefaultValue = model.JSON(coerced)
	}

	created, err := h.store.Variable().CreateDefinition(ctx, def)
	if err != nil {
		return h.errorResponse(err)
	}
	h.invalidateSnapshots()

	view := definitionView(created)
	return &view, http.StatusCreated
}

func (h *ServiceHandler) ListVariableDefinitions(ctx context.Context, scope *string) (any, int) {
	defs, err := h.store.Variable().ListDefinitions(ctx, scope)
	if err != nil {
		return h.errorResponse(err)
	}
	views := make([]api.VariableDefinitionView, len(defs))
	for i := range defs {
		views[i] = definitionView(&defs[i])
	}
	return views, http.StatusOK
}

func (h *ServiceHandler) GetVariableValue(ctx context.Context, key, scope string, deviceUID *string, includeSecrets bool) (any, int) {
	def, err := h.store.Variable().GetDefinition(ctx, key)
	if err != nil {
		return h.errorResponse(err)
	}
	if def.Scope != scope {
		return h.errorResponse(hberrors.ErrVarScopeMismatch)
	}

	target, body, status := h.resolveWriteTarget(ctx, def, scope, deviceUID, false, true)
	if status != 0 {
		return body, status
	}

	value, err := h.store.Variable().GetValue(ctx, key, scope, target.deviceID, target.userID)
	if err != nil && err != hberrors.ErrResourceNotFound {
		return h.errorResponse(err)
	}

	view := api.VariableValueView{Key: key, Scope: scope, DeviceUID: deviceUID, IsSecret: def.IsSecret}
	if value != nil {
		view.Value = maskedJSONValue(def, json.RawMessage(value.ValueJSON), includeSecrets)
		view.Version = &value.Version
		view.UpdatedAt = &value.UpdatedAt
	} else {
		view.Value = maskedJSONValue(def, json.RawMessage(def.DefaultValue), includeSecrets)
	}
	return &view, http.StatusOK
}

// SetVariableValue is the single write path for both user and device actors.
// It runs coercion, constraint checks, policy flags, optimistic versioning
// and effect derivation, then drops the whole snapshot cache.
func (h *ServiceHandler) SetVariableValue(ctx context.Context, request api.VariableWriteRequest) (any, int) {
	def, err := h.store.Variable().GetDefinition(ctx, request.Key)
	if err != nil {
		return h.errorResponse(err)
	}
	if def.Scope != request.Scope {
		return h.errorResponse(hberrors.ErrVarScopeMismatch)
	}
	if def.IsReadonly {
		return h.errorResponse(hberrors.ErrVarReadonly)
	}

	claims, isUser := auth.UserFromCtx(ctx)
	device, isDevice := auth.DeviceFromCtx(ctx)
	if !isUser && !isDevice {
		return api.NewError("CAP_AUTH_REQUIRED", "missing credentials"), http.StatusUnauthorized
	}
	if isUser && !def.UserWritable {
		return h.errorResponse(hberrors.ErrVarNotAllowed)
	}
	if isDevice && !isUser && !def.DeviceWritable {
		return h.errorResponse(hberrors.ErrVarNotAllowed)
	}

	target, body, status := h.resolveWriteTarget(ctx, def, request.Scope, request.DeviceUID, request.Force, false)
	if status != 0 {
		return body, status
	}

	coerced, err := vars.Coerce(request.Value, def.ValueType)
	if err != nil {
		return h.errorResponse(err)
	}
	if err := vars.CheckConstraints(def, coerced); err != nil {
		return h.errorResponse(err)
	}

	write := store.ValueWrite{
		VariableKey:     def.Key,
		Scope:           request.Scope,
		DeviceID:        target.deviceID,
		UserID:          target.userID,
		NewValue:        model.JSON(coerced),
		ExpectedVersion: request.ExpectedVersion,
		MaskAudit:       def.IsSecret,
	}
	if isUser {
		write.ActorType = "user"
		write.ActorUserID = &claims.UserID
	} else {
		write.ActorType = "device"
		write.ActorDeviceID = &device.ID
	}

	var derive store.DeriveEffectsFunc
	if target.device != nil {
		targetDevice := target.device
		derive = func(auditID int64, value *model.VariableValue) ([]model.VariableEffect, error) {
			return vars.DeriveEffects(def, targetDevice, auditID, json.RawMessage(value.ValueJSON))
		}
	}

	value, err := h.store.Variable().UpsertValue(ctx, write, derive)
	if err != nil {
		if err == hberrors.ErrVarVersionConflict {
			var current any
			if value != nil && value.Version > 0 {
				current = value.Version
			}
			return h.errorResponseWithMeta(err, map[string]any{"current_version": current})
		}
		return h.errorResponse(err)
	}
	h.invalidateSnapshots()

	view := api.VariableValueView{
		Key:       def.Key,
		Scope:     request.Scope,
		DeviceUID: request.DeviceUID,
		Value:     maskedJSONValue(def, json.RawMessage(value.ValueJSON), false),
		Version:   &value.Version,
		UpdatedAt: &value.UpdatedAt,
		IsSecret:  def.IsSecret,
	}
	return &view, http.StatusOK
}

func (h *ServiceHandler) ListVariableAudit(ctx context.Context, key *string, limit int) (any, int) {
	audits, err := h.store.Variable().ListAudits(ctx, key, limit)
	if err != nil {
		return h.errorResponse(err)
	}

	views := make([]api.VariableAuditView, len(audits))
	for i, a := range audits {
		views[i] = api.VariableAuditView{
			ID:            a.ID,
			VariableKey:   a.VariableKey,
			Scope:         a.Scope,
			OldValue:      json.RawMessage(a.OldValueJSON),
			NewValue:      json.RawMessage(a.NewValueJSON),
			OldVersion:    a.OldVersion,
			NewVersion:    a.NewVersion,
			ActorType:     a.ActorType,
			ActorUserID:   a.ActorUserID,
			ActorDeviceID: a.ActorDeviceID,
			RequestID:     a.RequestID,
			Note:          a.Note,
			CreatedAt:     a.CreatedAt,
		}
		if a.DeviceID != nil {
			if device, err := h.store.Device().GetByID(ctx, *a.DeviceID); err == nil {
				views[i].DeviceUID = &device.DeviceUID
			}
		}
	}
	return views, http.StatusOK
}

type writeTarget struct {
	deviceID *int64
	userID   *int64
	device   *model.Device
}

// resolveWriteTarget maps (scope, device_uid, principal) onto the storage
// layer key and enforces the scope's policy guards. readOnlyAccess skips the
// busy/pairing guards for pure reads.
func (h *ServiceHandler) resolveWriteTarget(ctx context.Context, def *model.VariableDefinition, scope string, deviceUID *string, force bool, readOnlyAccess bool) (writeTarget, any, int) {
	claims, isUser := auth.UserFromCtx(ctx)
	actorDevice, isDevice := auth.DeviceFromCtx(ctx)

	var target writeTarget
	switch scope {
	case model.ScopeGlobal:
		if deviceUID != nil {
			body, status := h.errorResponse(hberrors.ErrVarScopeMismatch)
			return target, body, status
		}
		if !readOnlyAccess && !isUser {
			body, status := h.errorResponse(hberrors.ErrVarNotAllowed)
			return target, body, status
		}
		return target, nil, 0

	case model.ScopeUser:
		if deviceUID != nil {
			body, status := h.errorResponse(hberrors.ErrVarScopeMismatch)
			return target, body, status
		}
		if !isUser {
			body, status := h.errorResponse(hberrors.ErrVarNotAllowed)
			return target, body, status
		}
		target.userID = &claims.UserID
		return target, nil, 0

	case model.ScopeDevice:
		uid := ""
		if deviceUID != nil {
			uid = *deviceUID
		} else if isDevice {
			uid = actorDevice.DeviceUID
		}
		if uid == "" {
			body, status := h.errorResponse(hberrors.ErrVarDeviceUIDRequired)
			return target, body, status
		}

		device, err := h.store.Device().GetByUID(ctx, uid)
		if err != nil {
			body, status := h.errorResponse(hberrors.ErrDeviceNotFound)
			return target, body, status
		}
		if device.LastSeenAt == nil {
			body, status := h.errorResponse(hberrors.ErrDeviceNotProvisioned)
			return target, body, status
		}

		if !readOnlyAccess {
			if !def.AllowDeviceOverride {
				body, status := h.errorResponse(hberrors.ErrVarNotAllowed)
				return target, body, status
			}
			if device.OwnerUserID == nil {
				return target, api.NewError("DEVICE_NOT_CLAIMED", "device must be claimed"), http.StatusConflict
			}
			if isUser && *device.OwnerUserID != claims.UserID {
				body, status := h.errorResponse(hberrors.ErrDeviceNotOwned)
				return target, body, status
			}
			if isDevice && !isUser && actorDevice.ID != device.ID {
				body, status := h.errorResponse(hberrors.ErrDeviceNotOwned)
				return target, body, status
			}
			if !force {
				if active, err := h.store.Pairing().ActiveSessionUIDs(ctx, []string{uid}); err == nil && active[uid] {
					body, status := h.errorResponse(hberrors.ErrPairingActive)
					return target, body, status
				}
				if busy, err := h.store.Task().HasLiveLease(ctx, device.ID); err == nil && busy {
					body, status := h.errorResponse(hberrors.ErrDeviceBusy)
					return target, body, status
				}
			}
		}

		target.deviceID = &device.ID
		target.device = device
		return target, nil, 0
	}

	body, status := validationError("VAR_INVALID_SCOPE", "scope must be global, user or device")
	return target, body, status
}

func (h *ServiceHandler) invalidateSnapshots() {
	h.snapshotCache.DeleteAll()
}

func maskedJSONValue(def *model.VariableDefinition, value json.RawMessage, includeSecrets bool) json.RawMessage {
	if def.IsSecret && !includeSecrets && len(value) > 0 && string(value) != "null" {
		return json.RawMessage(maskedValue)
	}
	return value
}

func definitionView(def *model.VariableDefinition) api.VariableDefinitionView {
	view := api.VariableDefinitionView{
		Key:                 def.Key,
		Scope:               def.Scope,
		ValueType:           def.ValueType,
		DefaultValue:        json.RawMessage(def.DefaultValue),
		Description:         def.Description,
		Unit:                def.Unit,
		MinValue:            def.MinValue,
		MaxValue:            def.MaxValue,
		Regex:               def.Regex,
		IsSecret:            def.IsSecret,
		IsReadonly:          def.IsReadonly,
		UserWritable:        def.UserWritable,
		DeviceWritable:      def.DeviceWritable,
		AllowDeviceOverride: def.AllowDeviceOverride,
		CreatedAt:           def.CreatedAt,
		UpdatedAt:           def.UpdatedAt,
	}
	if def.IsSecret && len(view.DefaultValue) > 0 && string(view.DefaultValue) != "null" {
		view.DefaultValue = json.RawMessage(maskedValue)
	}
	if len(def.EnumValues) > 0 {
		_ = json.Unmarshal(def.EnumValues, &view.EnumValues)
	}
	return view
}
