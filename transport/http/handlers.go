package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/baliola/walletgate/core"
	"github.com/baliola/walletgate/service"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
	}
}

type identityView struct {
	ID       string    `json:"id"`
	FullName string    `json:"full_name"`
	Email    string    `json:"email"`
	Role     core.Role `json:"role"`
}

// Challenge handles the challenge request. Responses are identical whether
// or not the address is known, so the endpoint leaks no account existence.
func (h *AuthHandlers) Challenge(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Wallet address is required"})
		return
	}

	grant, err := h.authService.CreateChallenge(c.Request.Context(), req.Address)
	if err != nil {
		if errors.Is(err, core.ErrInvalidAddress) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"nonce":      grant.Nonce,
		"message":    grant.Message,
		"expires_at": grant.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Verify handles challenge redemption and issues the session token.
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req struct {
		Address   string `json:"address" binding:"required"`
		Nonce     string `json:"nonce" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: address, nonce, or signature"})
		return
	}

	result, err := h.authService.VerifyLogin(c.Request.Context(), req.Address, req.Nonce, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidAddress):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
		case errors.Is(err, core.ErrInvalidChallenge):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired challenge"})
		case errors.Is(err, core.ErrSignatureMismatch):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Signature verification failed"})
		case errors.Is(err, core.ErrWalletNotLinked):
			c.JSON(http.StatusForbidden, gin.H{"error": "Wallet not linked to an account"})
		case errors.Is(err, core.ErrIdentityInactive):
			c.JSON(http.StatusForbidden, gin.H{"error": "Account inactive"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": result.Token,
		"identity": identityView{
			ID:       result.Identity.ID,
			FullName: result.Identity.FullName,
			Email:    result.Identity.Email,
			Role:     result.Identity.Role,
		},
	})
}

// Me returns information about the authenticated session.
func (h *AuthHandlers) Me(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"identity_id": session.IdentityID,
		"role":        session.Role,
		"address":     session.Address,
	})
}

// Authorize confirms the session is valid; the middleware already did the work.
func (h *AuthHandlers) Authorize(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorized": true,
		"address":    session.Address,
	})
}

// AdminStatus is an admin-only probe exercising the role gate.
func (h *AuthHandlers) AdminStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
