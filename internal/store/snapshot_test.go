package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store/model"
	"github.com/hubexhq/hubex/internal/util"
)

func createSnapshot(t *testing.T, st Store, deviceID, userID *int64, items []model.VariableSnapshotItem) *model.VariableSnapshot {
	t.Helper()
	id, err := util.NewSnapshotID()
	require.NoError(t, err)
	snapshot, err := st.Snapshot().Create(context.Background(), &model.VariableSnapshot{
		ID:               id,
		DeviceID:         deviceID,
		UserID:           userID,
		ResolvedAt:       time.Now().UTC(),
		EffectiveVersion: time.Now().UTC().Format(time.RFC3339Nano),
	}, items)
	require.NoError(t, err)
	return snapshot
}

func intPtr(v int) *int { return &v }

func TestSnapshotEffectiveRevMonotonicPerDevice(t *testing.T) {
	st := newTestStore(t)
	device := createHelloDevice(t, st, "dev-snap-1")
	other := createHelloDevice(t, st, "dev-snap-2")

	first := createSnapshot(t, st, &device.ID, nil, nil)
	require.NotNil(t, first.EffectiveRev)
	require.Equal(t, int64(1), *first.EffectiveRev)

	second := createSnapshot(t, st, &device.ID, nil, nil)
	require.Equal(t, int64(2), *second.EffectiveRev)

	// Revs count per device, not globally.
	otherFirst := createSnapshot(t, st, &other.ID, nil, nil)
	require.Equal(t, int64(1), *otherFirst.EffectiveRev)

	// A device-less snapshot allocates no rev.
	userOnly := createSnapshot(t, st, nil, nil, nil)
	require.Nil(t, userOnly.EffectiveRev)
}

func TestSnapshotGetAndItems(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	device := createHelloDevice(t, st, "dev-snap-3")

	items := []model.VariableSnapshotItem{
		{VariableKey: "b.key", Scope: model.ScopeGlobal, Source: "global", ValueJSON: model.JSON(`2`), Version: intPtr(1)},
		{VariableKey: "a.key", Scope: model.ScopeGlobal, Source: "default", ValueJSON: model.JSON(`1`)},
	}
	snapshot := createSnapshot(t, st, &device.ID, nil, items)

	got, err := st.Snapshot().Get(ctx, snapshot.ID)
	require.NoError(t, err)
	require.Equal(t, snapshot.ID, got.ID)

	stored, err := st.Snapshot().Items(ctx, snapshot.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, "a.key", stored[0].VariableKey)

	_, err = st.Snapshot().Get(ctx, "0000000000000000000000000000000000000000")
	require.ErrorIs(t, err, hberrors.ErrSnapshotNotFound)
}

func TestInsertAcksIdempotentAndWatermarks(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	device := createHelloDevice(t, st, "dev-snap-4")

	items := []model.VariableSnapshotItem{
		{VariableKey: "fan.speed", Scope: model.ScopeDevice, Source: "device", ValueJSON: model.JSON(`70`), Version: intPtr(3)},
		{VariableKey: "wifi.psk", Scope: model.ScopeGlobal, Source: "global", ValueJSON: model.JSON(`"***"`), IsSecret: true, Masked: true},
	}
	snapshot := createSnapshot(t, st, &device.ID, nil, items)

	acks := []model.VariableAppliedAck{{
		SnapshotID:  snapshot.ID,
		DeviceID:    device.ID,
		VariableKey: "fan.speed",
		Version:     intPtr(3),
		Status:      model.AckStatusApplied,
	}}
	applied, failed, err := st.Snapshot().InsertAcks(ctx, snapshot, acks)
	require.NoError(t, err)
	require.Equal(t, 1, applied)
	require.Equal(t, 0, failed)

	// Replaying the same ack records nothing new.
	applied, failed, err = st.Snapshot().InsertAcks(ctx, snapshot, acks)
	require.NoError(t, err)
	require.Equal(t, 0, applied)
	require.Equal(t, 0, failed)

	// Secret items do not block the watermark; the single non-secret item is
	// acked, so both watermarks land on this snapshot's rev.
	setting, err := st.Device().GetRuntimeSetting(ctx, device.ID)
	require.NoError(t, err)
	require.NotNil(t, setting.LastAckedRev)
	require.Equal(t, *snapshot.EffectiveRev, *setting.LastAckedRev)
	require.NotNil(t, setting.LastAppliedRev)
	require.Equal(t, *snapshot.EffectiveRev, *setting.LastAppliedRev)
}

func TestInsertAcksFailureHoldsAppliedWatermark(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	device := createHelloDevice(t, st, "dev-snap-5")

	items := []model.VariableSnapshotItem{
		{VariableKey: "fan.speed", Scope: model.ScopeDevice, Source: "device", ValueJSON: model.JSON(`70`), Version: intPtr(1)},
	}
	snapshot := createSnapshot(t, st, &device.ID, nil, items)

	reason := "hardware refused"
	_, failed, err := st.Snapshot().InsertAcks(ctx, snapshot, []model.VariableAppliedAck{{
		SnapshotID:  snapshot.ID,
		DeviceID:    device.ID,
		VariableKey: "fan.speed",
		Version:     intPtr(1),
		Status:      model.AckStatusFailed,
		Reason:      &reason,
	}})
	require.NoError(t, err)
	require.Equal(t, 1, failed)

	// Every item is acked, so acked advances; a failure among them keeps
	// applied where it was.
	setting, err := st.Device().GetRuntimeSetting(ctx, device.ID)
	require.NoError(t, err)
	require.NotNil(t, setting.LastAckedRev)
	require.Equal(t, *snapshot.EffectiveRev, *setting.LastAckedRev)
	require.Nil(t, setting.LastAppliedRev)
}
