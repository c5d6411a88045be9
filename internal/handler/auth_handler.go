package handler

import (
	"net/http"

	"fleetops/internal/middleware"
	"fleetops/internal/service"
	"fleetops/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService service.AuthService
	auth        *middleware.Authenticator
}

func NewAuthHandler(authService service.AuthService, auth *middleware.Authenticator) *AuthHandler {
	return &AuthHandler{authService: authService, auth: auth}
}

// RegisterRoutes binds the login, token and registration endpoints
func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/auth")
	{
		group.POST("/login", h.Login)
		group.POST("/refresh", h.RefreshToken)
		group.POST("/logout", h.Logout)
		group.GET("/me", h.auth.RequireAuth(), h.GetMe)

		group.POST("/register/send-otp", h.SendOTP)
		group.POST("/register/verify-otp", h.VerifyOTP)
	}
}

// Login handles POST /api/auth/login to authenticate and return tokens
// @Summary      Login user
// @Description  Authenticates a user by email and password, returning an access and refresh token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginRequest   true  "Login Credentials"
// @Success      200      {object}  response.Response{data=service.AuthResponse}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
		return
	}

	res, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	// Set tokens as HttpOnly cookies
	h.auth.SetTokenCookies(c, res.AccessToken, res.RefreshToken)

	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// refreshTokenFrom reads the refresh token from the cookie, falling back to the JSON body
func refreshTokenFrom(c *gin.Context) string {
	if token, err := c.Cookie(middleware.RefreshTokenCookie); err == nil && token != "" {
		return token
	}
	var req service.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return ""
	}
	return req.RefreshToken
}

// RefreshToken handles POST /api/auth/refresh to rotate the token pair
// @Summary      Refresh token
// @Description  Issues a new access token and refresh token; the presented refresh token is revoked
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RefreshRequest   false  "Refresh Token (when no cookie is sent)"
// @Success      200      {object}  response.Response{data=service.AuthResponse}
// @Failure      401      {object}  response.Response
// @Router       /api/auth/refresh [post]
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	res, err := h.authService.Refresh(c.Request.Context(), refreshTokenFrom(c))
	if err != nil {
		h.auth.ClearTokenCookies(c)
		respondError(c, err)
		return
	}

	h.auth.SetTokenCookies(c, res.AccessToken, res.RefreshToken)

	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// Logout revokes the refresh token and clears the auth cookies
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context(), refreshTokenFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	h.auth.ClearTokenCookies(c)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Logged out"}))
}

// GetMe handles GET /api/auth/me
// @Summary      Get current user
// @Description  Returns the authenticated user with the effective permission set
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200      {object}  response.Response{data=service.MeResponse}
// @Failure      401      {object}  response.Response
// @Router       /api/auth/me [get]
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := requireActor(c)
	if !ok {
		return
	}

	me, err := h.authService.Me(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, me))
}

// SendOTP godoc
// @Summary      Start self registration
// @Description  Emails a six digit one-time code bound to the phone and email
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.SendOTPRequest  true  "Phone and email"
// @Success      200      {object}  response.Response{data=service.SendOTPResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/auth/register/send-otp [post]
func (h *AuthHandler) SendOTP(c *gin.Context) {
	var req service.SendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.authService.SendOTP(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// VerifyOTP godoc
// @Summary      Finish self registration
// @Description  Consumes the one-time code, creates a Viewer account and signs it in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.VerifyOTPRequest  true  "Code and account details"
// @Success      201      {object}  response.Response{data=service.AuthResponse}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Router       /api/auth/register/verify-otp [post]
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req service.VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.authService.VerifyOTP(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.auth.SetTokenCookies(c, res.AccessToken, res.RefreshToken)
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}
