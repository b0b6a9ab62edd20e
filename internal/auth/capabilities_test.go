package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEveryMappedCapIsRegistered(t *testing.T) {
	for route, caps := range CapabilityMap {
		for _, cap := range caps {
			_, ok := CapabilityRegistry[cap]
			require.True(t, ok, "route %s %s references unregistered capability %q", route.Method, route.Pattern, cap)
		}
	}
}

func TestPublicRoutesAreMapped(t *testing.T) {
	for route := range PublicWhitelist {
		_, mapped := RequiredCaps(route.Method, route.Pattern)
		require.True(t, mapped, "public route %s %s has no capability mapping", route.Method, route.Pattern)
	}
}

func TestDeviceCapsAreRegistered(t *testing.T) {
	for cap := range DeviceCaps {
		_, ok := CapabilityRegistry[cap]
		require.True(t, ok, "device capability %q is not registered", cap)
	}
}

func TestUserCapsExcludeAdmin(t *testing.T) {
	caps := UserCaps()
	require.NotEmpty(t, caps)
	require.NotContains(t, caps, "cap.admin")
	require.Contains(t, caps, "vars.write")
	require.Len(t, caps, len(CapabilityRegistry)-1)
}

func TestAuthRoutesAreNotPublic(t *testing.T) {
	require.False(t, IsPublicRoute("POST", "/api/v1/auth/register"))
	require.False(t, IsPublicRoute("POST", "/api/v1/auth/login"))
	require.True(t, IsPublicRoute("POST", "/api/v1/devices/hello"))
	require.True(t, IsPublicRoute("POST", "/api/v1/pairing/confirm"))
}

func TestUnknownCaps(t *testing.T) {
	unknown := UnknownCaps([]string{"vars.read", "made.up", "devices.read"})
	require.Equal(t, []string{"made.up"}, unknown)
}

func TestHasRequiredCaps(t *testing.T) {
	held := map[string]struct{}{"vars.read": {}, "tasks.read": {}}
	require.True(t, HasRequiredCaps([]string{"vars.read"}, held))
	require.True(t, HasRequiredCaps(nil, held))
	require.False(t, HasRequiredCaps([]string{"vars.write"}, held))
}
