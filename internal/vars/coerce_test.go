package vars

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hubexhq/hubex/internal/hberrors"
)

func TestCoerceString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `"hello"`, `"hello"`},
		{"from int", `42`, `"42"`},
		{"from float", `1.5`, `"1.5"`},
		{"from bool", `true`, `"true"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(json.RawMessage(tt.in), ValueTypeString)
			require.NoError(t, err)
			require.Equal(t, tt.want, string(got))
		})
	}

	_, err := Coerce(json.RawMessage(`["nope"]`), ValueTypeString)
	require.ErrorIs(t, err, hberrors.ErrVarInvalidType)
}

func TestCoerceInt(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `42`, `42`},
		{"integral float", `42.0`, `42`},
		{"numeric string", `"42"`, `42`},
		{"padded string", `" 7 "`, `7`},
		{"negative", `-3`, `-3`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(json.RawMessage(tt.in), ValueTypeInt)
			require.NoError(t, err)
			require.Equal(t, tt.want, string(got))
		})
	}

	for _, bad := range []string{`42.5`, `true`, `"abc"`, `{}`} {
		_, err := Coerce(json.RawMessage(bad), ValueTypeInt)
		require.ErrorIs(t, err, hberrors.ErrVarInvalidType, "input %s", bad)
	}
}

func TestCoerceFloat(t *testing.T) {
	got, err := Coerce(json.RawMessage(`1.25`), ValueTypeFloat)
	require.NoError(t, err)
	require.Equal(t, `1.25`, string(got))

	got, err = Coerce(json.RawMessage(`3`), ValueTypeFloat)
	require.NoError(t, err)
	require.Equal(t, `3`, string(got))

	got, err = Coerce(json.RawMessage(`"2.5"`), ValueTypeFloat)
	require.NoError(t, err)
	require.Equal(t, `2.5`, string(got))

	_, err = Coerce(json.RawMessage(`false`), ValueTypeFloat)
	require.ErrorIs(t, err, hberrors.ErrVarInvalidType)
}

func TestCoerceBoolIsStrict(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`true`, `true`},
		{`false`, `false`},
		{`1`, `true`},
		{`0`, `false`},
		{`"yes"`, `true`},
		{`"No"`, `false`},
		{`"TRUE"`, `true`},
		{`"n"`, `false`},
	}
	for _, tt := range tests {
		got, err := Coerce(json.RawMessage(tt.in), ValueTypeBool)
		require.NoError(t, err, "input %s", tt.in)
		require.Equal(t, tt.want, string(got))
	}

	// Arbitrary numbers never become booleans.
	for _, bad := range []string{`2`, `0.5`, `"maybe"`, `[]`} {
		_, err := Coerce(json.RawMessage(bad), ValueTypeBool)
		require.ErrorIs(t, err, hberrors.ErrVarInvalidType, "input %s", bad)
	}
}

func TestCoerceJSONPassthrough(t *testing.T) {
	doc := `{"nested":{"a":[1,2,3]}}`
	got, err := Coerce(json.RawMessage(doc), ValueTypeJSON)
	require.NoError(t, err)
	require.Equal(t, doc, string(got))
}

func TestCoerceNullPassesUntyped(t *testing.T) {
	for _, valueType := range []string{ValueTypeString, ValueTypeInt, ValueTypeFloat, ValueTypeBool, ValueTypeJSON} {
		got, err := Coerce(json.RawMessage(`null`), valueType)
		require.NoError(t, err)
		require.Equal(t, `null`, string(got))
	}
}

func TestCoerceUnknownType(t *testing.T) {
	_, err := Coerce(json.RawMessage(`1`), "blob")
	require.ErrorIs(t, err, hberrors.ErrVarInvalidType)
}
