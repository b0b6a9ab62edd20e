package vars

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hubexhq/hubex/internal/store/model"
)

// Built-in effect kinds derived from variable writes.
const (
	EffectKindTelemetryReschedule = "telemetry.reschedule"
	EffectKindDeviceLabelSync     = "device.label.sync"
)

// Variable keys with attached side effects.
const (
	KeyTelemetryIntervalMS = "device.telemetry_interval_ms"
	KeyDeviceLabel         = "device.label"
)

// DeriveEffects maps a committed device-scope write onto pending effect
// jobs. A telemetry-interval write reschedules the device's emit cadence; a
// label write syncs the device's display name. Other keys derive nothing.
func DeriveEffects(def *model.VariableDefinition, device *model.Device, auditID int64, newValue json.RawMessage) ([]model.VariableEffect, error) {
	if def.Scope != model.ScopeDevice || device == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	correlation := fmt.Sprintf("audit:%d", auditID)
	newPresent := len(newValue) > 0 && !isNull(newValue)

	var effects []model.VariableEffect

	if def.Key == KeyTelemetryIntervalMS && newPresent {
		var interval int64
		if err := json.Unmarshal(newValue, &interval); err != nil {
			return nil, err
		}
		payload, err := json.Marshal(map[string]int64{"interval_ms": interval})
		if err != nil {
			return nil, err
		}
		effects = append(effects, newEffect(EffectKindTelemetryReschedule, device, auditID, payload, correlation, now))
	}

	if def.Key == KeyDeviceLabel {
		label := ""
		if newPresent {
			if err := json.Unmarshal(newValue, &label); err != nil {
				return nil, err
			}
		}
		payload, err := json.Marshal(map[string]string{"label": label})
		if err != nil {
			return nil, err
		}
		effects = append(effects, newEffect(EffectKindDeviceLabelSync, device, auditID, payload, correlation, now))
	}

	return effects, nil
}

func newEffect(kind string, device *model.Device, auditID int64, payload []byte, correlation string, now time.Time) model.VariableEffect {
	deviceID := device.ID
	deviceUID := device.DeviceUID
	return model.VariableEffect{
		ID:             uuid.NewString(),
		Status:         model.EffectStatusPending,
		Kind:           kind,
		Scope:          model.ScopeDevice,
		DeviceID:       &deviceID,
		DeviceUID:      &deviceUID,
		TriggerAuditID: &auditID,
		Payload:        model.JSON(payload),
		Attempts:       0,
		NextAttemptAt:  &now,
		CorrelationID:  &correlation,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
