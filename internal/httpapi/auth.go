package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sachinfortude/RAMP-UP/internal/auth"
)

type tokenRequest struct {
	ClientID     string `json:"clientId" binding:"required"`
	ClientSecret string `json:"clientSecret" binding:"required"`
}

func (h *handler) issueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "clientId and clientSecret are required"})
		return
	}
	pair, err := h.Issuer.Login(h.Operator, req.ClientID, req.ClientSecret)
	if err != nil {
		h.tokenError(c, err)
		return
	}
	writeTokens(c, pair)
}

func (h *handler) refreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}
	pair, err := h.Issuer.Refresh(req.RefreshToken)
	if err != nil {
		h.tokenError(c, err)
		return
	}
	writeTokens(c, pair)
}

func (h *handler) tokenError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrBadCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid client credentials"})
		return
	case errors.Is(err, auth.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	h.writeError(c, err)
}

func writeTokens(c *gin.Context, pair auth.TokenPair) {
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.AccessExp.Unix(),
	})
}
