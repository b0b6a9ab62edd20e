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

func startPairing(t *testing.T, st Store, uid string, userID int64, expiresAt time.Time) string {
	t.Helper()
	code, err := util.NewPairingCode()
	require.NoError(t, err)
	_, err = st.Pairing().CreateSession(context.Background(), &model.PairingSession{
		DeviceUID:   uid,
		PairingCode: code,
		UserID:      userID,
		ExpiresAt:   expiresAt,
	})
	require.NoError(t, err)
	return code
}

func TestPairingConfirmClaimsDevice(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, st, "owner@example.com")
	createHelloDevice(t, st, "dev-pair-1")

	code := startPairing(t, st, "dev-pair-1", user.ID, time.Now().UTC().Add(10*time.Minute))

	device, session, err := st.Pairing().Confirm(ctx, "dev-pair-1", code, util.HashToken("plain"))
	require.NoError(t, err)
	require.NotNil(t, device.OwnerUserID)
	require.Equal(t, user.ID, *device.OwnerUserID)
	require.True(t, device.IsClaimed)
	require.True(t, session.IsUsed)

	hasToken, err := st.Device().HasActiveToken(ctx, device.ID)
	require.NoError(t, err)
	require.True(t, hasToken)

	resolved, err := st.Device().GetByActiveTokenHash(ctx, util.HashToken("plain"))
	require.NoError(t, err)
	require.Equal(t, device.ID, resolved.ID)
}

func TestPairingConfirmReplayFails(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, st, "owner@example.com")
	createHelloDevice(t, st, "dev-pair-2")

	code := startPairing(t, st, "dev-pair-2", user.ID, time.Now().UTC().Add(10*time.Minute))

	_, _, err := st.Pairing().Confirm(ctx, "dev-pair-2", code, util.HashToken("first"))
	require.NoError(t, err)

	// The same code cannot mint a second token.
	_, _, err = st.Pairing().Confirm(ctx, "dev-pair-2", code, util.HashToken("second"))
	require.ErrorIs(t, err, hberrors.ErrPairingCodeUsed)

	_, err = st.Device().GetByActiveTokenHash(ctx, util.HashToken("second"))
	require.Error(t, err)
}

func TestPairingConfirmExpiredCode(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, st, "owner@example.com")
	createHelloDevice(t, st, "dev-pair-3")

	code := startPairing(t, st, "dev-pair-3", user.ID, time.Now().UTC().Add(-time.Minute))

	_, _, err := st.Pairing().Confirm(ctx, "dev-pair-3", code, util.HashToken("late"))
	require.ErrorIs(t, err, hberrors.ErrPairingCodeExpired)
}

func TestPairingConfirmWrongCode(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, st, "owner@example.com")
	createHelloDevice(t, st, "dev-pair-4")
	startPairing(t, st, "dev-pair-4", user.ID, time.Now().UTC().Add(10*time.Minute))

	_, _, err := st.Pairing().Confirm(ctx, "dev-pair-4", "XXXXXXXX", util.HashToken("x"))
	require.ErrorIs(t, err, hberrors.ErrPairingCodeNotFound)
}

func TestPairingConfirmUnprovisionedDevice(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, st, "owner@example.com")

	// No hello for this uid; the session targets a ghost.
	code := startPairing(t, st, "dev-ghost", user.ID, time.Now().UTC().Add(10*time.Minute))

	_, _, err := st.Pairing().Confirm(ctx, "dev-ghost", code, util.HashToken("x"))
	require.ErrorIs(t, err, hberrors.ErrDeviceNotFound)
}

func TestPairingConfirmAlreadyClaimed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, st, "owner@example.com")
	rival := createTestUser(t, st, "rival@example.com")
	claimTestDevice(t, st, "dev-pair-5", owner.ID)

	code := startPairing(t, st, "dev-pair-5", rival.ID, time.Now().UTC().Add(10*time.Minute))

	_, _, err := st.Pairing().Confirm(ctx, "dev-pair-5", code, util.HashToken("rival"))
	require.ErrorIs(t, err, hberrors.ErrDeviceAlreadyClaimed)
}

func TestActiveSessionIgnoresUsedAndExpired(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, st, "owner@example.com")
	createHelloDevice(t, st, "dev-pair-6")

	startPairing(t, st, "dev-pair-6", user.ID, time.Now().UTC().Add(-time.Minute))
	_, err := st.Pairing().ActiveSession(ctx, "dev-pair-6")
	require.ErrorIs(t, err, hberrors.ErrResourceNotFound)

	code := startPairing(t, st, "dev-pair-6", user.ID, time.Now().UTC().Add(10*time.Minute))
	session, err := st.Pairing().ActiveSession(ctx, "dev-pair-6")
	require.NoError(t, err)
	require.Equal(t, code, session.PairingCode)

	active, err := st.Pairing().ActiveSessionUIDs(ctx, []string{"dev-pair-6", "dev-other"})
	require.NoError(t, err)
	require.True(t, active["dev-pair-6"])
	require.False(t, active["dev-other"])
}
