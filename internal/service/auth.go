package service

import (
	"context"
	"net/http"
	"strings"

	api "github.com/hubexhq/hubex/internal/api/v1"
	"github.com/hubexhq/hubex/internal/auth"
	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store/model"
)

func (h *ServiceHandler) Register(ctx context.Context, request api.RegisterRequest) (any, int) {
	email := strings.TrimSpace(strings.ToLower(request.Email))
	if email == "" || !strings.Contains(email, "@") {
		return validationError("AUTH_INVALID_EMAIL", "invalid email address")
	}
	if len(request.Password) < 8 {
		return validationError("AUTH_WEAK_PASSWORD", "password must be at least 8 characters")
	}

	hash, err := auth.HashPassword(request.Password)
	if err != nil {
		return h.errorResponse(err)
	}

	user, err := h.store.User().Create(ctx, &model.User{Email: email, PasswordHash: hash})
	if err != nil {
		if err == hberrors.ErrDuplicateKey {
			return api.NewError("AUTH_EMAIL_TAKEN", "email already registered"), http.StatusConflict
		}
		return h.errorResponse(err)
	}

	return h.issueToken(user.ID)
}

func (h *ServiceHandler) Login(ctx context.Context, request api.LoginRequest) (any, int) {
	email := strings.TrimSpace(strings.ToLower(request.Email))
	user, err := h.store.User().GetByEmail(ctx, email)
	if err != nil || !auth.VerifyPassword(request.Password, user.PasswordHash) {
		return api.NewError("AUTH_INVALID_CREDENTIALS", "invalid email or password"), http.StatusUnauthorized
	}
	return h.issueToken(user.ID)
}

func (h *ServiceHandler) GetCurrentUser(ctx context.Context) (any, int) {
	claims, ok := auth.UserFromCtx(ctx)
	if !ok {
		return api.NewError("CAP_AUTH_REQUIRED", "missing bearer token"), http.StatusUnauthorized
	}
	user, err := h.store.User().GetByID(ctx, claims.UserID)
	if err != nil {
		return api.NewError("CAP_AUTH_INVALID", "user not found"), http.StatusUnauthorized
	}
	return &api.UserMeResponse{ID: user.ID, Email: user.Email}, http.StatusOK
}

func (h *ServiceHandler) issueToken(userID int64) (any, int) {
	token, err := h.jwt.IssueAccessToken(userID, auth.UserCaps())
	if err != nil {
		return h.errorResponse(err)
	}
	return &api.TokenResponse{AccessToken: token, TokenType: "bearer"}, http.StatusOK
}
