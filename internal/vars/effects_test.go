package vars

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hubexhq/hubex/internal/store/model"
)

func testDevice() *model.Device {
	return &model.Device{ID: 7, DeviceUID: "dev-effects"}
}

func TestDeriveEffectsTelemetryInterval(t *testing.T) {
	def := &model.VariableDefinition{Key: KeyTelemetryIntervalMS, Scope: model.ScopeDevice, ValueType: ValueTypeInt}

	effects, err := DeriveEffects(def, testDevice(), 42, json.RawMessage(`5000`))
	require.NoError(t, err)
	require.Len(t, effects, 1)

	effect := effects[0]
	require.Equal(t, EffectKindTelemetryReschedule, effect.Kind)
	require.Equal(t, model.EffectStatusPending, effect.Status)
	require.Equal(t, int64(7), *effect.DeviceID)
	require.Equal(t, int64(42), *effect.TriggerAuditID)
	require.JSONEq(t, `{"interval_ms":5000}`, string(effect.Payload))
	require.Equal(t, "audit:42", *effect.CorrelationID)
	require.NotNil(t, effect.NextAttemptAt)
}

func TestDeriveEffectsTelemetryIntervalClearedDerivesNothing(t *testing.T) {
	def := &model.VariableDefinition{Key: KeyTelemetryIntervalMS, Scope: model.ScopeDevice, ValueType: ValueTypeInt}

	effects, err := DeriveEffects(def, testDevice(), 1, json.RawMessage(`null`))
	require.NoError(t, err)
	require.Empty(t, effects)
}

func TestDeriveEffectsLabelSync(t *testing.T) {
	def := &model.VariableDefinition{Key: KeyDeviceLabel, Scope: model.ScopeDevice, ValueType: ValueTypeString}

	effects, err := DeriveEffects(def, testDevice(), 9, json.RawMessage(`"garage cam"`))
	require.NoError(t, err)
	require.Len(t, effects, 1)
	require.Equal(t, EffectKindDeviceLabelSync, effects[0].Kind)
	require.JSONEq(t, `{"label":"garage cam"}`, string(effects[0].Payload))

	// Clearing the label still syncs, with an empty string.
	effects, err = DeriveEffects(def, testDevice(), 10, json.RawMessage(`null`))
	require.NoError(t, err)
	require.Len(t, effects, 1)
	require.JSONEq(t, `{"label":""}`, string(effects[0].Payload))
}

func TestDeriveEffectsIgnoresOtherScopesAndKeys(t *testing.T) {
	global := &model.VariableDefinition{Key: KeyDeviceLabel, Scope: model.ScopeGlobal, ValueType: ValueTypeString}
	effects, err := DeriveEffects(global, testDevice(), 1, json.RawMessage(`"x"`))
	require.NoError(t, err)
	require.Empty(t, effects)

	plain := &model.VariableDefinition{Key: "fan.speed", Scope: model.ScopeDevice, ValueType: ValueTypeInt}
	effects, err = DeriveEffects(plain, testDevice(), 1, json.RawMessage(`50`))
	require.NoError(t, err)
	require.Empty(t, effects)

	effects, err = DeriveEffects(plain, nil, 1, json.RawMessage(`50`))
	require.NoError(t, err)
	require.Empty(t, effects)
}
