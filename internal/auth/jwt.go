package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Token validation failures the guard distinguishes.
var (
	ErrTokenExpired = errors.New("expired token")
	ErrTokenInvalid = errors.New("invalid token")
)

// Claims is the decoded content of an access token.
type Claims struct {
	UserID int64
	JTI    string
	Caps   []string
}

// JWTManager signs and validates HS256 access tokens with a fixed issuer.
type JWTManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewJWTManager(secret string, issuer string, ttl time.Duration) *JWTManager {
	return &JWTManager{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// IssueAccessToken mints a token for the user carrying a fresh jti and the
// given capability grant.
func (m *JWTManager) IssueAccessToken(userID int64, caps []string) (string, error) {
	now := time.Now().UTC()
	builder := jwt.NewBuilder().
		Subject(strconv.FormatInt(userID, 10)).
		Issuer(m.issuer).
		IssuedAt(now).
		Expiration(now.Add(m.ttl)).
		JwtID(uuid.NewString())
	if len(caps) > 0 {
		builder = builder.Claim("caps", caps)
	}
	token, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("building token: %w", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, m.secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return string(signed), nil
}

// ParseAccessToken validates signature, issuer and expiry and returns the
// claims. Expiry maps to ErrTokenExpired; everything else to ErrTokenInvalid.
func (m *JWTManager) ParseAccessToken(raw string) (*Claims, error) {
	token, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, m.secret),
		jwt.WithIssuer(m.issuer),
		jwt.WithValidate(true),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	userID, err := strconv.ParseInt(token.Subject(), 10, 64)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	claims := &Claims{UserID: userID, JTI: token.JwtID()}
	if raw, ok := token.Get("caps"); ok {
		if list, ok := raw.([]any); ok {
			for _, item := range list {
				if cap, ok := item.(string); ok {
					claims.Caps = append(claims.Caps, cap)
				}
			}
		}
	}
	return claims, nil
}
