// Package vars holds the value-typing rules of the variable subsystem:
// coercion into a definition's declared type, constraint checking, and the
// derivation of side-effect jobs from committed writes.
package vars

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hubexhq/hubex/internal/hberrors"
)

const (
	ValueTypeString = "string"
	ValueTypeInt    = "int"
	ValueTypeFloat  = "float"
	ValueTypeBool   = "bool"
	ValueTypeJSON   = "json"
)

// Coerce validates raw JSON against a declared value type and returns the
// canonical encoding. Booleans are strict (never numbers in disguise),
// numerics coerce from strings and cross-numeric only when lossless, and
// json passes through any well-formed document. A JSON null passes through
// untyped.
func Coerce(raw json.RawMessage, valueType string) (json.RawMessage, error) {
	if len(raw) == 0 || isNull(raw) {
		return json.RawMessage("null"), nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, hberrors.ErrVarInvalidType
	}

	switch valueType {
	case ValueTypeString:
		return coerceString(value)
	case ValueTypeInt:
		return coerceInt(value)
	case ValueTypeFloat:
		return coerceFloat(value)
	case ValueTypeBool:
		return coerceBool(value)
	case ValueTypeJSON:
		return raw, nil
	default:
		return nil, hberrors.ErrVarInvalidType
	}
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func coerceString(value any) (json.RawMessage, error) {
	switch v := value.(type) {
	case string:
		return marshal(v)
	case json.Number:
		return marshal(v.String())
	case bool:
		return marshal(strconv.FormatBool(v))
	default:
		return nil, hberrors.ErrVarInvalidType
	}
}

func coerceInt(value any) (json.RawMessage, error) {
	switch v := value.(type) {
	case bool:
		return nil, hberrors.ErrVarInvalidType
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return marshal(i)
		}
		f, err := v.Float64()
		if err != nil || f != float64(int64(f)) {
			return nil, hberrors.ErrVarInvalidType
		}
		return marshal(int64(f))
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, hberrors.ErrVarInvalidType
		}
		return marshal(i)
	default:
		return nil, hberrors.ErrVarInvalidType
	}
}

func coerceFloat(value any) (json.RawMessage, error) {
	switch v := value.(type) {
	case bool:
		return nil, hberrors.ErrVarInvalidType
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, hberrors.ErrVarInvalidType
		}
		return marshal(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, hberrors.ErrVarInvalidType
		}
		return marshal(f)
	default:
		return nil, hberrors.ErrVarInvalidType
	}
}

func coerceBool(value any) (json.RawMessage, error) {
	switch v := value.(type) {
	case bool:
		return marshal(v)
	case json.Number:
		if v.String() == "0" {
			return marshal(false)
		}
		if v.String() == "1" {
			return marshal(true)
		}
		return nil, hberrors.ErrVarInvalidType
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "y":
			return marshal(true)
		case "false", "0", "no", "n":
			return marshal(false)
		}
		return nil, hberrors.ErrVarInvalidType
	default:
		return nil, hberrors.ErrVarInvalidType
	}
}

func marshal(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding coerced value: %w", err)
	}
	return data, nil
}
