package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	api "github.com/hubexhq/hubex/internal/api/v1"
	"github.com/hubexhq/hubex/internal/store"
	"github.com/hubexhq/hubex/internal/store/model"
	"github.com/hubexhq/hubex/internal/util"
	"github.com/sirupsen/logrus"
)

type ctxKey int

const (
	ctxKeyUser ctxKey = iota
	ctxKeyDevice
)

// UserFromCtx returns the authenticated user claims, if any.
func UserFromCtx(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ctxKeyUser).(*Claims)
	return claims, ok
}

// DeviceFromCtx returns the authenticated device principal, if any.
func DeviceFromCtx(ctx context.Context) (*model.Device, bool) {
	device, ok := ctx.Value(ctxKeyDevice).(*model.Device)
	return device, ok
}

// WithUser and WithDevice attach principals directly. Used by tests and the
// WebSocket attach path.
func WithUser(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ctxKeyUser, claims)
}

func WithDevice(ctx context.Context, device *model.Device) context.Context {
	return context.WithValue(ctx, ctxKeyDevice, device)
}

// Guard authenticates the request principal and checks the route's required
// capability set. With enforcement off it logs violations and lets requests
// through; revoked tokens are rejected either way.
type Guard struct {
	store   store.Store
	jwt     *JWTManager
	enforce bool
	log     logrus.FieldLogger

	// router resolves the matched chi pattern; middleware runs before
	// routing, so the pattern is not in the request context yet.
	router chi.Routes
}

func NewGuard(st store.Store, jwtMgr *JWTManager, enforce bool, log logrus.FieldLogger) *Guard {
	return &Guard{store: st, jwt: jwtMgr, enforce: enforce, log: log}
}

// SetRouter wires the assembled router in after construction; the guard is
// itself part of the router's middleware chain.
func (g *Guard) SetRouter(router chi.Routes) {
	g.router = router
}

func (g *Guard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method
		pattern := g.routePattern(r)

		required, mapped := RequiredCaps(method, pattern)
		if !mapped {
			if g.enforce {
				writeGuardError(w, g.log, http.StatusForbidden, "CAP_MAPPING_MISSING", "capability mapping missing")
				return
			}
			g.log.Warnf("CAP_MAPPING_MISSING %s %s", method, pattern)
			next.ServeHTTP(w, r)
			return
		}

		if IsPublicRoute(method, pattern) {
			next.ServeHTTP(w, r)
			return
		}

		if deviceToken := extractDeviceToken(r); deviceToken != "" && HasRequiredCaps(required, DeviceCaps) {
			device, err := g.store.Device().GetByActiveTokenHash(r.Context(), util.HashToken(deviceToken))
			if err != nil || device.OwnerUserID == nil {
				writeGuardError(w, g.log, http.StatusUnauthorized, "CAP_AUTH_INVALID", "invalid device token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithDevice(r.Context(), device)))
			return
		}

		bearer := extractBearer(r)
		if bearer == "" {
			if g.enforce {
				writeGuardError(w, g.log, http.StatusUnauthorized, "CAP_AUTH_REQUIRED", "missing bearer token")
				return
			}
			g.log.Warnf("CAP_AUTH_MISSING %s %s", method, pattern)
			next.ServeHTTP(w, r)
			return
		}

		claims, err := g.jwt.ParseAccessToken(bearer)
		if err != nil {
			if g.enforce {
				writeGuardError(w, g.log, http.StatusUnauthorized, "CAP_AUTH_INVALID", err.Error())
				return
			}
			g.log.Warnf("CAP_AUTH_INVALID %s %s", method, pattern)
			next.ServeHTTP(w, r)
			return
		}

		if claims.JTI != "" {
			revoked, err := g.store.User().IsTokenRevoked(r.Context(), claims.JTI)
			if err != nil {
				writeGuardError(w, g.log, http.StatusInternalServerError, "INTERNAL_ERROR", "revocation check failed")
				return
			}
			if revoked {
				writeGuardError(w, g.log, http.StatusUnauthorized, "CAP_TOKEN_REVOKED", "token revoked")
				return
			}
		}

		ctx := WithUser(r.Context(), claims)

		if unknown := UnknownCaps(claims.Caps); len(unknown) > 0 {
			if g.enforce {
				writeGuardError(w, g.log, http.StatusForbidden, "CAP_UNKNOWN", "unknown capability")
				return
			}
			g.log.Warnf("CAP_UNKNOWN %s %s caps=%v", method, pattern, unknown)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		held := make(map[string]struct{}, len(claims.Caps))
		for _, cap := range claims.Caps {
			held[cap] = struct{}{}
		}
		if !HasRequiredCaps(required, held) {
			if g.enforce {
				writeGuardError(w, g.log, http.StatusForbidden, "CAP_FORBIDDEN", "insufficient capability")
				return
			}
			g.log.Warnf("CAP_FORBIDDEN %s %s required=%v", method, pattern, required)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Guard) routePattern(r *http.Request) string {
	rctx := chi.NewRouteContext()
	if g.router != nil && g.router.Match(rctx, r.Method, r.URL.Path) {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}

func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if scheme, token, found := strings.Cut(header, " "); found && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	// Browser WebSocket clients cannot set headers; accept the token as a
	// query parameter there.
	return r.URL.Query().Get("token")
}

func extractDeviceToken(r *http.Request) string {
	if token := r.Header.Get("X-Device-Token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if scheme, token, found := strings.Cut(header, " "); found && strings.EqualFold(scheme, "Device") {
		return strings.TrimSpace(token)
	}
	return ""
}

func writeGuardError(w http.ResponseWriter, log logrus.FieldLogger, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(api.NewError(code, message)); err != nil {
		log.WithError(err).Warn("failed to write guard response")
	}
}
