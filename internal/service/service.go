// Package service implements the business operations behind the HTTP
// surface. Handlers return a response body and an HTTP status; the transport
// layer only decodes requests and encodes whatever comes back.
package service

import (
	"errors"
	"net/http"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/sirupsen/logrus"

	api "github.com/hubexhq/hubex/internal/api/v1"
	"github.com/hubexhq/hubex/internal/auth"
	"github.com/hubexhq/hubex/internal/config"
	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/rate"
	"github.com/hubexhq/hubex/internal/realtime"
	"github.com/hubexhq/hubex/internal/store"
)

const snapshotCacheTTL = 2 * time.Second

type ServiceHandler struct {
	store   store.Store
	log     logrus.FieldLogger
	cfg     *config.Config
	jwt     *auth.JWTManager
	hub     *realtime.Hub
	limiter *rate.Limiter

	// snapshotCache suppresses snapshot-row churn under read bursts. Any
	// definition or value write invalidates it wholesale.
	snapshotCache *ttlcache.Cache[string, *api.EffectiveVariablesResponse]
}

func NewServiceHandler(st store.Store, cfg *config.Config, jwtMgr *auth.JWTManager, hub *realtime.Hub, limiter *rate.Limiter, log logrus.FieldLogger) *ServiceHandler {
	cache := ttlcache.New[string, *api.EffectiveVariablesResponse](
		ttlcache.WithTTL[string, *api.EffectiveVariablesResponse](snapshotCacheTTL),
		ttlcache.WithDisableTouchOnHit[string, *api.EffectiveVariablesResponse](),
	)
	go cache.Start()

	return &ServiceHandler{
		store:         st,
		log:           log,
		cfg:           cfg,
		jwt:           jwtMgr,
		hub:           hub,
		limiter:       limiter,
		snapshotCache: cache,
	}
}

func (h *ServiceHandler) Store() store.Store    { return h.store }
func (h *ServiceHandler) Hub() *realtime.Hub    { return h.hub }
func (h *ServiceHandler) JWT() *auth.JWTManager { return h.jwt }

type errTableEntry struct {
	status int
	code   string
}

var errTable = map[error]errTableEntry{
	hberrors.ErrResourceNotFound: {http.StatusNotFound, "NOT_FOUND"},
	hberrors.ErrDuplicateKey:     {http.StatusConflict, "DUPLICATE"},

	hberrors.ErrDeviceNotFound:       {http.StatusNotFound, "DEVICE_NOT_FOUND"},
	hberrors.ErrDeviceNotProvisioned: {http.StatusNotFound, "DEVICE_NOT_PROVISIONED"},
	hberrors.ErrDeviceAlreadyClaimed: {http.StatusConflict, "DEVICE_ALREADY_CLAIMED"},
	hberrors.ErrDeviceTokenActive:    {http.StatusConflict, "DEVICE_ALREADY_CLAIMED"},
	hberrors.ErrDeviceNotOwned:       {http.StatusForbidden, "DEVICE_NOT_OWNED"},
	hberrors.ErrDeviceBusy:           {http.StatusConflict, "DEVICE_BUSY"},

	hberrors.ErrPairingActive:       {http.StatusConflict, "PAIRING_ALREADY_ACTIVE"},
	hberrors.ErrPairingCodeNotFound: {http.StatusNotFound, "PAIRING_CODE_NOT_FOUND"},
	hberrors.ErrPairingCodeUsed:     {http.StatusConflict, "PAIRING_CODE_USED"},
	hberrors.ErrPairingCodeExpired:  {http.StatusGone, "PAIRING_CODE_EXPIRED"},

	hberrors.ErrTaskNotFound:           {http.StatusNotFound, "TASK_NOT_FOUND"},
	hberrors.ErrTaskTerminal:           {http.StatusConflict, "TASK_ALREADY_COMPLETED"},
	hberrors.ErrTaskNotInFlight:        {http.StatusConflict, "TASK_NOT_IN_FLIGHT"},
	hberrors.ErrTaskLeaseExpired:       {http.StatusConflict, "TASK_LEASE_EXPIRED"},
	hberrors.ErrTaskLeaseTokenRequired: {http.StatusUnprocessableEntity, "TASK_LEASE_TOKEN_REQUIRED"},
	hberrors.ErrTaskLeaseTokenMismatch: {http.StatusConflict, "TASK_LEASE_TOKEN_MISMATCH"},
	hberrors.ErrTaskCancelNeedsForce:   {http.StatusConflict, "TASK_CANCEL_REQUIRES_FORCE"},

	hberrors.ErrVarDefNotFound:        {http.StatusNotFound, "VAR_DEF_NOT_FOUND"},
	hberrors.ErrVarDefExists:          {http.StatusConflict, "VAR_DEF_EXISTS"},
	hberrors.ErrVarVersionConflict:    {http.StatusConflict, "VAR_VERSION_CONFLICT"},
	hberrors.ErrVarScopeMismatch:      {http.StatusConflict, "VAR_SCOPE_MISMATCH"},
	hberrors.ErrVarReadonly:           {http.StatusConflict, "VAR_READONLY"},
	hberrors.ErrVarInvalidType:        {http.StatusUnprocessableEntity, "VAR_INVALID_TYPE"},
	hberrors.ErrVarConstraintViolated: {http.StatusUnprocessableEntity, "VAR_CONSTRAINT_VIOLATION"},
	hberrors.ErrVarNotAllowed:         {http.StatusForbidden, "VAR_NOT_ALLOWED"},
	hberrors.ErrVarDeviceUIDRequired:  {http.StatusUnprocessableEntity, "VAR_DEVICE_UID_REQUIRED"},
	hberrors.ErrVarAppliedMismatch:    {http.StatusConflict, "VAR_APPLIED_MISMATCH"},

	hberrors.ErrSnapshotNotFound:     {http.StatusNotFound, "SNAPSHOT_NOT_FOUND"},
	hberrors.ErrEntityNotFound:       {http.StatusNotFound, "ENTITY_NOT_FOUND"},
	hberrors.ErrEffectNotFound:       {http.StatusNotFound, "EFFECT_NOT_FOUND"},
	hberrors.ErrEffectUnknownKind:    {http.StatusUnprocessableEntity, "EFFECT_UNKNOWN_KIND"},
	hberrors.ErrEffectInvalidPayload: {http.StatusUnprocessableEntity, "EFFECT_INVALID_PAYLOAD"},
}

// errorResponse maps a sentinel onto the wire envelope. Unknown errors are
// logged and reported as a plain 500.
func (h *ServiceHandler) errorResponse(err error) (*api.Error, int) {
	return h.errorResponseWithMeta(err, nil)
}

func (h *ServiceHandler) errorResponseWithMeta(err error, meta map[string]any) (*api.Error, int) {
	for sentinel, entry := range errTable {
		if errors.Is(err, sentinel) {
			if meta != nil {
				return api.NewErrorWithMeta(entry.code, sentinel.Error(), meta), entry.status
			}
			return api.NewError(entry.code, sentinel.Error()), entry.status
		}
	}
	h.log.WithError(err).Error("unhandled service error")
	return api.NewError("INTERNAL_ERROR", "internal server error"), http.StatusInternalServerError
}

func validationError(code, message string) (*api.Error, int) {
	return api.NewError(code, message), http.StatusUnprocessableEntity
}
