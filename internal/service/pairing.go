package service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ccoveille/go-safecast"

	api "github.com/hubexhq/hubex/internal/api/v1"
	"github.com/hubexhq/hubex/internal/auth"
	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store/model"
	"github.com/hubexhq/hubex/internal/util"
)

const pairingTTL = 10 * time.Minute

// PairingStart issues a short-lived pairing code to the calling user for an
// unclaimed, provisioned, idle device.
func (h *ServiceHandler) PairingStart(ctx context.Context, request api.PairingStartRequest) (any, int) {
	claims, ok := auth.UserFromCtx(ctx)
	if !ok {
		return api.NewError("CAP_AUTH_REQUIRED", "missing bearer token"), http.StatusUnauthorized
	}

	uid := strings.TrimSpace(request.DeviceUID)
	if len(uid) < 4 || len(uid) > 128 {
		return validationError("DEVICE_INVALID_UID", "device_uid must be 4-128 characters")
	}

	device, err := h.store.Device().GetByUID(ctx, uid)
	if err != nil {
		return api.NewError("DEVICE_UNKNOWN_UID", "no device with this uid has said hello"), http.StatusNotFound
	}
	if device.LastSeenAt == nil {
		return h.errorResponse(hberrors.ErrDeviceNotProvisioned)
	}
	if device.OwnerUserID != nil {
		return h.errorResponse(hberrors.ErrDeviceAlreadyClaimed)
	}

	if active, err := h.store.Pairing().ActiveSession(ctx, uid); err == nil {
		remaining, convErr := safecast.ToInt(time.Until(active.ExpiresAt).Seconds())
		if convErr != nil || remaining < 0 {
			remaining = 0
		}
		return h.errorResponseWithMeta(hberrors.ErrPairingActive, map[string]any{"expires_in_seconds": remaining})
	} else if err != hberrors.ErrResourceNotFound {
		return h.errorResponse(err)
	}

	if busy, err := h.store.Task().HasLiveLease(ctx, device.ID); err != nil {
		return h.errorResponse(err)
	} else if busy {
		return h.errorResponse(hberrors.ErrDeviceBusy)
	}

	code, err := util.NewPairingCode()
	if err != nil {
		return h.errorResponse(err)
	}
	expiresAt := time.Now().UTC().Add(pairingTTL)
	_, err = h.store.Pairing().CreateSession(ctx, &model.PairingSession{
		DeviceUID:   uid,
		PairingCode: code,
		UserID:      claims.UserID,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return h.errorResponse(err)
	}

	return &api.PairingStartResponse{
		DeviceUID:   uid,
		PairingCode: code,
		ExpiresAt:   expiresAt,
		TTLSeconds:  int(pairingTTL.Seconds()),
	}, http.StatusOK
}

// PairingConfirm is the unauthenticated device-side claim. The plaintext
// token in the response is the only time it ever leaves the server.
func (h *ServiceHandler) PairingConfirm(ctx context.Context, request api.PairingConfirmRequest) (any, int) {
	uid := strings.TrimSpace(request.DeviceUID)
	code := strings.TrimSpace(request.PairingCode)
	if uid == "" || code == "" {
		return validationError("PAIRING_INVALID_REQUEST", "device_uid and pairing_code are required")
	}

	plaintext, err := util.NewDeviceToken()
	if err != nil {
		return h.errorResponse(err)
	}

	device, session, err := h.store.Pairing().Confirm(ctx, uid, code, util.HashToken(plaintext))
	if err != nil {
		return h.errorResponse(err)
	}

	return &api.PairingConfirmResponse{
		DeviceID:    device.ID,
		OwnerUserID: session.UserID,
		DeviceUID:   device.DeviceUID,
		DeviceToken: plaintext,
		ClaimedAt:   time.Now().UTC(),
	}, http.StatusOK
}
