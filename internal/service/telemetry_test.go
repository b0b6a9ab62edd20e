package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateTelemetryPayloadAcceptsObjects(t *testing.T) {
	body, status := validateTelemetryPayload(json.RawMessage(`{"temp":21.5,"nested":{"relay":true},"list":[{"k":1}]}`))
	require.Nil(t, body)
	require.Zero(t, status)
}

func TestValidateTelemetryPayloadRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{`[]`, `"text"`, `42`, `null`, ``, `{broken`} {
		body, status := validateTelemetryPayload(json.RawMessage(raw))
		require.Equal(t, http.StatusUnprocessableEntity, status, "payload %q", raw)
		require.NotNil(t, body)
	}
}

func TestValidateTelemetryPayloadSizeLimit(t *testing.T) {
	big := fmt.Sprintf(`{"blob":%q}`, strings.Repeat("x", maxTelemetryPayloadBytes))
	_, status := validateTelemetryPayload(json.RawMessage(big))
	require.Equal(t, http.StatusRequestEntityTooLarge, status)

	// Exactly at the limit is still accepted.
	pad := maxTelemetryPayloadBytes - len(`{"blob":""}`)
	exact := fmt.Sprintf(`{"blob":%q}`, strings.Repeat("x", pad))
	require.Len(t, exact, maxTelemetryPayloadBytes)
	_, status = validateTelemetryPayload(json.RawMessage(exact))
	require.Zero(t, status)
}

func TestValidateTelemetryPayloadKeyLength(t *testing.T) {
	longKey := strings.Repeat("k", maxTelemetryKeyLength+1)

	_, status := validateTelemetryPayload(json.RawMessage(fmt.Sprintf(`{%q:1}`, longKey)))
	require.Equal(t, http.StatusUnprocessableEntity, status)

	// Nesting does not escape the limit.
	_, status = validateTelemetryPayload(json.RawMessage(fmt.Sprintf(`{"outer":[{%q:1}]}`, longKey)))
	require.Equal(t, http.StatusUnprocessableEntity, status)

	okKey := strings.Repeat("k", maxTelemetryKeyLength)
	_, status = validateTelemetryPayload(json.RawMessage(fmt.Sprintf(`{%q:1}`, okKey)))
	require.Zero(t, status)
}
