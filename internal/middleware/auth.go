package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"fleetops/internal/auth"
	"fleetops/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"

	userIDKey = "userID"
)

// Authorizer answers whether a user holds a permission.
type Authorizer interface {
	Authorize(ctx context.Context, userID uuid.UUID, permission string) (bool, error)
}

// Authenticator validates access tokens and enforces permissions on routes.
type Authenticator struct {
	tokens     *auth.TokenManager
	authz      Authorizer
	secure     bool
	refreshTTL time.Duration
}

// NewAuthenticator builds the auth middleware. secure switches the token
// cookies to SameSite=None + Secure for cross-origin deployments.
func NewAuthenticator(tokens *auth.TokenManager, authz Authorizer, secure bool, refreshTTL time.Duration) *Authenticator {
	return &Authenticator{
		tokens:     tokens,
		authz:      authz,
		secure:     secure,
		refreshTTL: refreshTTL,
	}
}

// tokenFromRequest reads the access token from the cookie first, then the Authorization header.
func tokenFromRequest(c *gin.Context) (string, string) {
	if token, err := c.Cookie(AccessTokenCookie); err == nil && token != "" {
		return token, ""
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", "Authorization is missing"
	}
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", "Invalid authorization format. Expected 'Bearer <token>'"
	}
	return parts[1], ""
}

func (a *Authenticator) authenticate(c *gin.Context) bool {
	tokenString, problem := tokenFromRequest(c)
	if problem != "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, problem))
		return false
	}

	userID, err := a.tokens.Parse(tokenString)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid or expired token"))
		return false
	}

	c.Set(userIDKey, userID)
	return true
}

// RequireAuth only checks that the caller carries a valid access token.
func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.authenticate(c) {
			return
		}
		c.Next()
	}
}

// RequirePermission validates the token and checks every listed permission
// against the caller's effective permission set.
func (a *Authenticator) RequirePermission(requiredPerms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.authenticate(c) {
			return
		}
		userID, _ := UserID(c)

		for _, required := range requiredPerms {
			ok, err := a.authz.Authorize(c.Request.Context(), userID, required)
			if err != nil {
				log.Error().Err(err).Str("user_id", userID.String()).Str("permission", required).Msg("permission check failed")
				c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to verify permissions"))
				return
			}
			if !ok {
				c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: missing permission '"+required+"'"))
				return
			}
		}

		c.Next()
	}
}

func (a *Authenticator) sameSite() (http.SameSite, bool) {
	if a.secure {
		return http.SameSiteNoneMode, true
	}
	return http.SameSiteLaxMode, false
}

// SetTokenCookies sets access_token and refresh_token as HttpOnly cookies
func (a *Authenticator) SetTokenCookies(c *gin.Context, accessToken, refreshToken string) {
	sameSite, secure := a.sameSite()
	c.SetSameSite(sameSite)
	c.SetCookie(AccessTokenCookie, accessToken, int(a.tokens.AccessTTL().Seconds()), "/", "", secure, true)
	c.SetCookie(RefreshTokenCookie, refreshToken, int(a.refreshTTL.Seconds()), "/", "", secure, true)
}

// ClearTokenCookies removes access_token and refresh_token cookies
func (a *Authenticator) ClearTokenCookies(c *gin.Context) {
	sameSite, secure := a.sameSite()
	c.SetSameSite(sameSite)
	c.SetCookie(AccessTokenCookie, "", -1, "/", "", secure, true)
	c.SetCookie(RefreshTokenCookie, "", -1, "/", "", secure, true)
}

// UserID returns the authenticated user set by RequireAuth or RequirePermission.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// ActorID is UserID in the pointer form the services record in audit entries.
func ActorID(c *gin.Context) *uuid.UUID {
	id, ok := UserID(c)
	if !ok {
		return nil
	}
	return &id
}
