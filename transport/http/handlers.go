package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/service"
)

// AuthHandlers contains HTTP handlers for auth endpoints.
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers.
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{authService: authService}
}

// Challenge handles the challenge request.
func (h *AuthHandlers) Challenge(c *gin.Context) {
	var req struct {
		PublicKey string `json:"publicKey" binding:"required"`
		Action    string `json:"action" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	result, err := h.authService.CreateChallenge(c.Request.Context(), service.ChallengeRequest{
		PublicKey: req.PublicKey,
		Action:    core.Action(req.Action),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}

	if !result.OK {
		body := gin.H{"error": result.Message, "code": result.Code}
		if result.Hint != "" {
			body["hint"] = result.Hint
		}
		c.JSON(core.StatusFor(result.Code), body)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"challenge":   result.Challenge,
		"challengeId": result.ChallengeID,
	})
}

// Register handles account creation from a signed challenge.
func (h *AuthHandlers) Register(c *gin.Context) {
	var req struct {
		PublicKey string         `json:"publicKey" binding:"required"`
		Challenge core.Challenge `json:"challenge" binding:"required"`
		Signature string         `json:"signature" binding:"required"`
		Metadata  *core.Metadata `json:"metadata"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	result, err := h.authService.Register(c.Request.Context(), service.RegisterRequest{
		PublicKey: req.PublicKey,
		Challenge: req.Challenge,
		Signature: req.Signature,
		Metadata:  req.Metadata,
	})
	if err != nil {
		writeAuthError(c, err)
		return
	}

	writeAuthResult(c, result)
}

// Login handles the login (verify) request.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req struct {
		ChallengeID string         `json:"challengeId" binding:"required"`
		Challenge   core.Challenge `json:"challenge" binding:"required"`
		Signature   string         `json:"signature" binding:"required"`
		PublicKey   string         `json:"publicKey" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	result, err := h.authService.Verify(c.Request.Context(), service.VerifyRequest{
		ChallengeID: req.ChallengeID,
		Challenge:   req.Challenge,
		Signature:   req.Signature,
		PublicKey:   req.PublicKey,
	})
	if err != nil {
		writeAuthError(c, err)
		return
	}

	writeAuthResult(c, result)
}

// Refresh handles token refresh.
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	tokens, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrTokenExpired):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token expired"})
		case errors.Is(err, core.ErrSessionInvalid):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Session is no longer valid"})
		case errors.Is(err, core.ErrInvalidToken):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid refresh token"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to refresh tokens"})
		}
		return
	}

	c.JSON(http.StatusOK, tokens)
}

// Logout handles session logout.
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		if errors.Is(err, core.ErrInvalidToken) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid refresh token"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns the authenticated user.
func (h *AuthHandlers) Me(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
		return
	}

	user, err := h.authService.GetUser(c.Request.Context(), userID.(string))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Authorize reports that the presented access token is valid.
func (h *AuthHandlers) Authorize(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorized": true,
		"userId":     userID,
	})
}

func writeAuthResult(c *gin.Context, result *service.AuthResult) {
	c.JSON(http.StatusOK, gin.H{
		"user":    result.User,
		"keyInfo": result.KeyInfo,
		"session": result.Session,
		"tokens":  result.Tokens,
	})
}

func writeAuthError(c *gin.Context, err error) {
	var authErr *core.Error
	if errors.As(err, &authErr) {
		body := gin.H{"error": authErr.Message, "code": authErr.Code}
		if authErr.Hint != "" {
			body["hint"] = authErr.Hint
		}
		c.JSON(authErr.Status, body)
		return
	}

	// Adapter failures are not reinterpreted.
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
}
