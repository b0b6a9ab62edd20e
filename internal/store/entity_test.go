package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store/model"
)

func registerEntity(t *testing.T, st Store, entityID, entityType string) *model.Entity {
	t.Helper()
	entity, err := st.Entity().Upsert(context.Background(), &model.Entity{
		EntityID: entityID,
		Type:     entityType,
	})
	require.NoError(t, err)
	return entity
}

func TestEntityListFiltersByType(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	registerEntity(t, st, "sensor.kitchen_temp", "sensor")
	registerEntity(t, st, "switch.garage_door", "switch")
	registerEntity(t, st, "sensor.hall_motion", "sensor")

	all, err := st.Entity().List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Ordered by entity id.
	require.Equal(t, "sensor.hall_motion", all[0].EntityID)

	sensorType := "sensor"
	sensors, err := st.Entity().List(ctx, &sensorType)
	require.NoError(t, err)
	require.Len(t, sensors, 2)
	for _, e := range sensors {
		require.Equal(t, "sensor", e.Type)
	}
}

func TestEntityUpsertRefreshesHealth(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	registerEntity(t, st, "sensor.kitchen_temp", "sensor")

	status := "healthy"
	_, err := st.Entity().Upsert(ctx, &model.Entity{
		EntityID:     "sensor.kitchen_temp",
		Type:         "sensor",
		HealthStatus: &status,
	})
	require.NoError(t, err)

	entity, err := st.Entity().Get(ctx, "sensor.kitchen_temp")
	require.NoError(t, err)
	require.NotNil(t, entity.HealthStatus)
	require.Equal(t, "healthy", *entity.HealthStatus)

	all, err := st.Entity().List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestEntityGetNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Entity().Get(context.Background(), "sensor.ghost")
	require.ErrorIs(t, err, hberrors.ErrEntityNotFound)
}

func TestEntityBindingsOrderedByPriority(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	registerEntity(t, st, "switch.garage_door", "switch")
	deviceA := createHelloDevice(t, st, "dev-bind-a")
	deviceB := createHelloDevice(t, st, "dev-bind-b")

	require.NoError(t, st.Entity().BindDevice(ctx, &model.EntityDeviceBinding{
		EntityID: "switch.garage_door", DeviceID: deviceA.ID, Enabled: true, Priority: 1,
	}))
	require.NoError(t, st.Entity().BindDevice(ctx, &model.EntityDeviceBinding{
		EntityID: "switch.garage_door", DeviceID: deviceB.ID, Enabled: true, Priority: 5,
	}))

	// Rebinding the same device updates in place instead of duplicating.
	require.NoError(t, st.Entity().BindDevice(ctx, &model.EntityDeviceBinding{
		EntityID: "switch.garage_door", DeviceID: deviceA.ID, Enabled: false, Priority: 1,
	}))

	bindings, err := st.Entity().Bindings(ctx, "switch.garage_door")
	require.NoError(t, err)
	require.Len(t, bindings, 2)
	require.Equal(t, deviceB.ID, bindings[0].DeviceID)
	require.False(t, bindings[1].Enabled)

	none, err := st.Entity().Bindings(ctx, "switch.unknown")
	require.NoError(t, err)
	require.Empty(t, none)
}
