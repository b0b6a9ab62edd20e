package hberrors

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrResourceNotFound = errors.New("object not found")
	ErrDuplicateKey     = errors.New("an object with this key already exists")

	// devices
	ErrDeviceNotFound       = errors.New("device not found")
	ErrDeviceNotProvisioned = errors.New("device has never said hello")
	ErrDeviceAlreadyClaimed = errors.New("device already claimed")
	ErrDeviceNotOwned       = errors.New("device not owned by caller")
	ErrDeviceBusy           = errors.New("device has an in-flight task")
	ErrDeviceTokenActive    = errors.New("device already has an active token")

	// pairing
	ErrPairingActive       = errors.New("an active pairing session exists for this device")
	ErrPairingCodeNotFound = errors.New("pairing code not found")
	ErrPairingCodeUsed     = errors.New("pairing code already used")
	ErrPairingCodeExpired  = errors.New("pairing code expired")

	// tasks
	ErrTaskNotFound           = errors.New("task not found")
	ErrTaskTerminal           = errors.New("task already completed")
	ErrTaskNotInFlight        = errors.New("task not in flight")
	ErrTaskLeaseExpired       = errors.New("task lease expired")
	ErrTaskLeaseTokenRequired = errors.New("task lease token required")
	ErrTaskLeaseTokenMismatch = errors.New("task lease token mismatch")
	ErrTaskCancelNeedsForce   = errors.New("canceling an in-flight task requires force")

	// variables
	ErrVarDefNotFound        = errors.New("variable definition not found")
	ErrVarDefExists          = errors.New("variable definition already exists")
	ErrVarVersionConflict    = errors.New("variable version conflict")
	ErrVarScopeMismatch      = errors.New("variable scope mismatch")
	ErrVarReadonly           = errors.New("variable is read-only")
	ErrVarInvalidType        = errors.New("invalid value for variable type")
	ErrVarConstraintViolated = errors.New("value violates variable constraints")
	ErrVarNotAllowed         = errors.New("write not allowed for this actor")
	ErrVarDeviceUIDRequired  = errors.New("device_uid required for device scope")
	ErrVarAppliedMismatch    = errors.New("applied entry does not match a snapshot item")

	// snapshots and effects
	ErrSnapshotNotFound     = errors.New("snapshot not found")
	ErrEffectNotFound       = errors.New("effect not found")
	ErrEffectUnknownKind    = errors.New("unknown effect kind")
	ErrEffectInvalidPayload = errors.New("invalid effect payload")

	// entities
	ErrEntityNotFound = errors.New("entity not found")
)

// ErrorFromGormError maps gorm errors onto the package sentinels so callers
// never need to import gorm.
func ErrorFromGormError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrResourceNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateKey
	default:
		return err
	}
}
