package vars

import (
	"encoding/json"
	"regexp"

	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store/model"
	"github.com/samber/lo"
)

// CheckConstraints validates a coerced value against the definition's
// declared bounds: min/max for numerics, enum membership and full-regex
// match for strings. Null values are exempt.
func CheckConstraints(def *model.VariableDefinition, coerced json.RawMessage) error {
	if len(coerced) == 0 || isNull(coerced) {
		return nil
	}

	switch def.ValueType {
	case ValueTypeInt, ValueTypeFloat:
		var n float64
		if err := json.Unmarshal(coerced, &n); err != nil {
			return hberrors.ErrVarInvalidType
		}
		if def.MinValue != nil && n < *def.MinValue {
			return hberrors.ErrVarConstraintViolated
		}
		if def.MaxValue != nil && n > *def.MaxValue {
			return hberrors.ErrVarConstraintViolated
		}
	case ValueTypeString:
		var s string
		if err := json.Unmarshal(coerced, &s); err != nil {
			return hberrors.ErrVarInvalidType
		}
		if len(def.EnumValues) > 0 {
			var allowed []string
			if err := json.Unmarshal(def.EnumValues, &allowed); err != nil {
				return hberrors.ErrVarConstraintViolated
			}
			if len(allowed) > 0 && !lo.Contains(allowed, s) {
				return hberrors.ErrVarConstraintViolated
			}
		}
		if def.Regex != nil && *def.Regex != "" {
			// Anchor so the pattern must cover the whole value.
			re, err := regexp.Compile("^(?:" + *def.Regex + ")$")
			if err != nil {
				return hberrors.ErrVarConstraintViolated
			}
			if !re.MatchString(s) {
				return hberrors.ErrVarConstraintViolated
			}
		}
	}
	return nil
}
