package auth

import "github.com/samber/lo"

// CapabilityRegistry is the closed set of dotted permission names. Routes
// and token claims may only reference names listed here. Append-only.
var CapabilityRegistry = map[string]struct{}{
	"cap.admin":          {},
	"audit.read":         {},
	"vars.read":          {},
	"vars.write":         {},
	"vars.ack":           {},
	"devices.read":       {},
	"devices.write":      {},
	"devices.hello":      {},
	"pairing.start":      {},
	"pairing.confirm":    {},
	"telemetry.emit":     {},
	"telemetry.read":     {},
	"tasks.read":         {},
	"tasks.write":        {},
	"users.read":         {},
	"core.auth.login":    {},
	"core.auth.register": {},
	"effects.read":       {},
	"entities.read":      {},
}

// RouteKey identifies one route by HTTP method and chi path pattern.
type RouteKey struct {
	Method  string
	Pattern string
}

// CapabilityMap declares the required capability set per route.
var CapabilityMap = map[RouteKey][]string{
	{"POST", "/api/v1/auth/register"}: {"core.auth.register"},
	{"POST", "/api/v1/auth/login"}:    {"core.auth.login"},
	{"GET", "/api/v1/users/me"}:       {"users.read"},

	{"POST", "/api/v1/devices/hello"}:                      {"devices.hello"},
	{"GET", "/api/v1/devices/whoami"}:                      {"devices.read"},
	{"GET", "/api/v1/devices/lookup/{deviceUid}"}:          {"devices.read"},
	{"GET", "/api/v1/devices"}:                             {"devices.read"},
	{"GET", "/api/v1/devices/{deviceId}"}:                  {"devices.read"},
	{"GET", "/api/v1/devices/{deviceId}/telemetry/recent"}: {"telemetry.read"},
	{"GET", "/api/v1/devices/{deviceId}/telemetry/ws"}:     {"telemetry.read"},

	{"POST", "/api/v1/devices/{deviceId}/tasks"}:                 {"tasks.write"},
	{"GET", "/api/v1/devices/{deviceId}/tasks"}:                  {"tasks.read"},
	{"GET", "/api/v1/devices/{deviceId}/current-task"}:           {"tasks.read"},
	{"GET", "/api/v1/devices/{deviceId}/task-history"}:           {"tasks.read"},
	{"POST", "/api/v1/devices/{deviceId}/tasks/{taskId}/cancel"}: {"tasks.write"},

	{"POST", "/api/v1/pairing/start"}:           {"pairing.start"},
	{"POST", "/api/v1/pairing/confirm"}:         {"pairing.confirm"},
	{"POST", "/api/v1/devices/pairing/start"}:   {"pairing.start"},
	{"POST", "/api/v1/devices/pairing/confirm"}: {"pairing.confirm"},

	{"POST", "/api/v1/telemetry"}: {"telemetry.emit"},

	{"GET", "/api/v1/entities"}:                    {"entities.read"},
	{"GET", "/api/v1/entities/{entityId}"}:         {"entities.read"},
	{"GET", "/api/v1/entities/{entityId}/devices"}: {"entities.read"},

	{"POST", "/api/v1/tasks/context/heartbeat"}:    {"tasks.write"},
	{"POST", "/api/v1/tasks/poll"}:                 {"tasks.read"},
	{"POST", "/api/v1/tasks/{taskId}/complete"}:    {"tasks.write"},
	{"POST", "/api/v1/tasks/{taskId}/renew"}:       {"tasks.write"},

	{"GET", "/api/v1/variables/definitions"}:        {"vars.read"},
	{"POST", "/api/v1/variables/definitions"}:       {"vars.write"},
	{"GET", "/api/v1/variables/value"}:              {"vars.read"},
	{"PUT", "/api/v1/variables/value"}:              {"vars.write"},
	{"POST", "/api/v1/variables/set"}:               {"vars.write"},
	{"GET", "/api/v1/variables/effective"}:          {"vars.read"},
	{"GET", "/api/v1/variables/snapshot"}:           {"vars.read"},
	{"POST", "/api/v1/variables/applied"}:           {"vars.ack"},
	{"GET", "/api/v1/variables/audit"}:              {"vars.read"},
	{"GET", "/api/v1/variables/effects"}:            {"vars.read"},
	{"GET", "/api/v1/variables/effects/{effectId}"}: {"vars.read"},
	{"POST", "/api/v1/variables/effects/run-once"}:  {"vars.write"},
}

// PublicWhitelist names the auth-free routes. Minimal and static.
var PublicWhitelist = map[RouteKey]struct{}{
	{"POST", "/api/v1/devices/hello"}:           {},
	{"POST", "/api/v1/pairing/confirm"}:         {},
	{"POST", "/api/v1/devices/pairing/confirm"}: {},
}

// DeviceCaps are the capabilities a device principal implicitly holds.
var DeviceCaps = map[string]struct{}{
	"vars.read":      {},
	"vars.ack":       {},
	"telemetry.emit": {},
	"tasks.read":     {},
	"tasks.write":    {},
	"devices.hello":  {},
}

// UserCaps is the standard grant issued at register/login: the whole
// registry minus admin-gated names.
func UserCaps() []string {
	caps := lo.Keys(CapabilityRegistry)
	return lo.Filter(caps, func(cap string, _ int) bool {
		return cap != "cap.admin"
	})
}

func RequiredCaps(method, pattern string) ([]string, bool) {
	caps, ok := CapabilityMap[RouteKey{Method: method, Pattern: pattern}]
	return caps, ok
}

func IsPublicRoute(method, pattern string) bool {
	_, ok := PublicWhitelist[RouteKey{Method: method, Pattern: pattern}]
	return ok
}

// UnknownCaps returns the subset of caps absent from the registry.
func UnknownCaps(caps []string) []string {
	return lo.Filter(caps, func(cap string, _ int) bool {
		_, known := CapabilityRegistry[cap]
		return !known
	})
}

// HasRequiredCaps reports whether held covers every required capability.
func HasRequiredCaps(required []string, held map[string]struct{}) bool {
	for _, cap := range required {
		if _, ok := held[cap]; !ok {
			return false
		}
	}
	return true
}
