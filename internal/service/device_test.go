package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	api "github.com/hubexhq/hubex/internal/api/v1"
	"github.com/hubexhq/hubex/internal/config"
	"github.com/hubexhq/hubex/internal/store/model"
)

func TestDeriveState(t *testing.T) {
	now := time.Now().UTC()
	owner := int64(1)

	cases := []struct {
		name          string
		device        model.Device
		pairingActive bool
		busy          bool
		want          string
	}{
		{"never seen", model.Device{}, false, false, api.DeviceStateUnprovisioned},
		{"never seen wins over claimed", model.Device{OwnerUserID: &owner}, false, false, api.DeviceStateUnprovisioned},
		{"busy wins over claimed", model.Device{LastSeenAt: &now, OwnerUserID: &owner}, false, true, api.DeviceStateBusy},
		{"claimed", model.Device{LastSeenAt: &now, OwnerUserID: &owner}, false, false, api.DeviceStateClaimed},
		{"claimed wins over pairing", model.Device{LastSeenAt: &now, OwnerUserID: &owner}, true, false, api.DeviceStateClaimed},
		{"pairing active", model.Device{LastSeenAt: &now}, true, false, api.DeviceStatePairingActive},
		{"provisioned unclaimed", model.Device{LastSeenAt: &now}, false, false, api.DeviceStateProvisionedUnclaimed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, deriveState(&tc.device, tc.pairingActive, tc.busy))
		})
	}
}

func TestDeriveActiveUsesConfiguredWindow(t *testing.T) {
	now := time.Now().UTC()
	seen := now.Add(-200 * time.Second)
	device := &model.Device{LastSeenAt: &seen}

	require.True(t, deriveActive(device, 300*time.Second, now))
	require.False(t, deriveActive(device, 100*time.Second, now))

	// A zero window disables the flag, and never-seen devices are never
	// active.
	require.False(t, deriveActive(device, 0, now))
	require.False(t, deriveActive(&model.Device{}, 300*time.Second, now))
}

func TestActiveWindowComesFromConfig(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Devices.ActiveWindowSeconds = 120

	h := &ServiceHandler{cfg: cfg}
	require.Equal(t, 2*time.Minute, h.activeWindow())

	require.Zero(t, (&ServiceHandler{}).activeWindow())
}

func TestDeriveHealth(t *testing.T) {
	now := time.Now().UTC()
	seenAt := func(age time.Duration) *time.Time {
		ts := now.Add(-age)
		return &ts
	}

	require.Equal(t, api.DeviceHealthDead, deriveHealth(&model.Device{}, now))
	require.Equal(t, api.DeviceHealthOK, deriveHealth(&model.Device{LastSeenAt: seenAt(10 * time.Second)}, now))
	require.Equal(t, api.DeviceHealthOK, deriveHealth(&model.Device{LastSeenAt: seenAt(30 * time.Second)}, now))
	require.Equal(t, api.DeviceHealthStale, deriveHealth(&model.Device{LastSeenAt: seenAt(31 * time.Second)}, now))
	require.Equal(t, api.DeviceHealthStale, deriveHealth(&model.Device{LastSeenAt: seenAt(120 * time.Second)}, now))
	require.Equal(t, api.DeviceHealthDead, deriveHealth(&model.Device{LastSeenAt: seenAt(121 * time.Second)}, now))
}
