package store

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hubexhq/hubex/internal/store/model"
	"github.com/hubexhq/hubex/internal/util"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	st := NewStore(db, log)
	require.NoError(t, st.InitialMigration())
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func createTestUser(t *testing.T, st Store, email string) *model.User {
	t.Helper()
	user, err := st.User().Create(context.Background(), &model.User{
		Email:        email,
		PasswordHash: "x",
	})
	require.NoError(t, err)
	return user
}

func createHelloDevice(t *testing.T, st Store, uid string) *model.Device {
	t.Helper()
	device, err := st.Device().Hello(context.Background(), uid, nil, nil)
	require.NoError(t, err)
	return device
}

// claimTestDevice runs the whole pairing flow so the device ends up owned
// with an active token.
func claimTestDevice(t *testing.T, st Store, uid string, userID int64) *model.Device {
	t.Helper()
	ctx := context.Background()

	device := createHelloDevice(t, st, uid)
	code, err := util.NewPairingCode()
	require.NoError(t, err)
	_, err = st.Pairing().CreateSession(ctx, &model.PairingSession{
		DeviceUID:   uid,
		PairingCode: code,
		UserID:      userID,
		ExpiresAt:   time.Now().UTC().Add(10 * time.Minute),
	})
	require.NoError(t, err)

	claimed, _, err := st.Pairing().Confirm(ctx, uid, code, util.HashToken("token-"+uid))
	require.NoError(t, err)
	require.Equal(t, device.ID, claimed.ID)
	return claimed
}

func TestUserTokenRevocation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	revoked, err := st.User().IsTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)

	fresh, err := st.User().RevokeToken(ctx, "jti-1", nil)
	require.NoError(t, err)
	require.True(t, fresh)

	// Revoking the same jti again is a no-op, not an error.
	fresh, err = st.User().RevokeToken(ctx, "jti-1", nil)
	require.NoError(t, err)
	require.False(t, fresh)

	revoked, err = st.User().IsTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestDeviceHelloUpsert(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, err := st.Device().Hello(ctx, "dev-abcd", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, first.LastSeenAt)
	require.Nil(t, first.FirmwareVersion)

	fw := "1.2.3"
	second, err := st.Device().Hello(ctx, "dev-abcd", &fw, map[string]any{"relay": true})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.FirmwareVersion)
	require.Equal(t, "1.2.3", *second.FirmwareVersion)
}

func TestDeviceRuntimeSettingCreatedOnFirstAccess(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	device := createHelloDevice(t, st, "dev-rs-1")

	setting, err := st.Device().GetRuntimeSetting(ctx, device.ID)
	require.NoError(t, err)
	require.Nil(t, setting.TelemetryIntervalMS)

	require.NoError(t, st.Device().SetTelemetryInterval(ctx, device.ID, 5000))
	setting, err = st.Device().GetRuntimeSetting(ctx, device.ID)
	require.NoError(t, err)
	require.NotNil(t, setting.TelemetryIntervalMS)
	require.Equal(t, 5000, *setting.TelemetryIntervalMS)
}
