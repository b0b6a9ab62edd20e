package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store/model"
)

func enqueueEffect(t *testing.T, st Store, kind string) *model.VariableEffect {
	t.Helper()
	now := time.Now().UTC()
	effect, err := st.Effect().Enqueue(context.Background(), &model.VariableEffect{
		ID:            uuid.NewString(),
		Status:        model.EffectStatusPending,
		Kind:          kind,
		Scope:         model.ScopeDevice,
		Payload:       model.JSON(`{}`),
		NextAttemptAt: &now,
	})
	require.NoError(t, err)
	return effect
}

func TestEffectLeaseMarksInFlightAndCountsAttempt(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	effect := enqueueEffect(t, st, "telemetry.reschedule")

	claimed, err := st.Effect().LeasePending(ctx, 10, "worker-1")
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, effect.ID, claimed[0].ID)
	require.Equal(t, model.EffectStatusInFlight, claimed[0].Status)
	require.Equal(t, 1, claimed[0].Attempts)
	require.NotNil(t, claimed[0].LockedUntil)

	// Locked rows are invisible to a second worker.
	claimed, err = st.Effect().LeasePending(ctx, 10, "worker-2")
	require.NoError(t, err)
	require.Empty(t, claimed)
}

func TestEffectFailureBackoffThenDead(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	effect := enqueueEffect(t, st, "device.label.sync")

	for attempt := 1; attempt <= 4; attempt++ {
		claimed, err := st.Effect().LeasePending(ctx, 1, "worker-1")
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		require.Equal(t, attempt, claimed[0].Attempts)

		require.NoError(t, st.Effect().MarkFailed(ctx, effect.ID, claimed[0].Attempts, []byte(`{"message":"boom"}`)))

		got, err := st.Effect().Get(ctx, effect.ID)
		require.NoError(t, err)
		require.Equal(t, model.EffectStatusFailed, got.Status)
		require.NotNil(t, got.NextAttemptAt)

		// Clear the backoff so the next lease pass sees the row.
		ds := st.(*DataStore)
		require.NoError(t, ds.db.Model(&model.VariableEffect{}).Where("id = ?", effect.ID).
			Update("next_attempt_at", time.Now().UTC().Add(-time.Second)).Error)
	}

	claimed, err := st.Effect().LeasePending(ctx, 1, "worker-1")
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, 5, claimed[0].Attempts)
	require.NoError(t, st.Effect().MarkFailed(ctx, effect.ID, claimed[0].Attempts, nil))

	got, err := st.Effect().Get(ctx, effect.ID)
	require.NoError(t, err)
	require.Equal(t, model.EffectStatusDead, got.Status)

	// Dead effects are never leased again.
	claimed, err = st.Effect().LeasePending(ctx, 1, "worker-1")
	require.NoError(t, err)
	require.Empty(t, claimed)
}

func TestEffectMarkDoneClearsLock(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	effect := enqueueEffect(t, st, "telemetry.reschedule")

	_, err := st.Effect().LeasePending(ctx, 1, "worker-1")
	require.NoError(t, err)
	require.NoError(t, st.Effect().MarkDone(ctx, effect.ID))

	got, err := st.Effect().Get(ctx, effect.ID)
	require.NoError(t, err)
	require.Equal(t, model.EffectStatusDone, got.Status)
	require.Nil(t, got.LockedUntil)
	require.Nil(t, got.LockedBy)
}

func TestEffectBackoffCurve(t *testing.T) {
	require.Equal(t, 2*time.Second, EffectBackoff(1))
	require.Equal(t, 16*time.Second, EffectBackoff(4))
	require.Equal(t, 64*time.Second, EffectBackoff(6))
	// The exponent saturates at six.
	require.Equal(t, 64*time.Second, EffectBackoff(50))
}

func TestEffectGetNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Effect().Get(context.Background(), "missing")
	require.ErrorIs(t, err, hberrors.ErrEffectNotFound)
}
