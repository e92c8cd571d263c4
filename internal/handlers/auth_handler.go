package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ricauth/internal/models"
	"ricauth/internal/services"
)

type AuthHandler struct {
	authService services.AuthService
	log         *logrus.Entry
}

func NewAuthHandler(authService services.AuthService, log *logrus.Entry) *AuthHandler {
	return &AuthHandler{authService: authService, log: log}
}

// @Summary      Obtain a token pair
// @Description  Checks the credentials and returns an access/refresh JWT pair. The username may also be an email address. Each successful call increments the user's login counter.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        login  body      models.LoginRequest  true  "Credentials"
// @Success      200    {object}  models.TokenPair
// @Failure      400    {object}  map[string]string
// @Failure      401    {object}  map[string]string
// @Router       /api/token/ [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	pair, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, h.log, "[auth][login]", err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

// @Summary      Refresh a token pair
// @Description  Takes a refresh token and returns a new access/refresh pair. The old refresh token stops working.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        refresh  body      models.RefreshRequest  true  "Refresh token"
// @Success      200      {object}  models.TokenPair
// @Failure      401      {object}  map[string]string
// @Router       /api/token/refresh/ [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	pair, err := h.authService.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		respondError(c, h.log, "[auth][refresh]", err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

// @Summary      Change own password
// @Tags         Auth
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body  body      models.ChangePasswordRequest  true  "Old and new password"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Router       /api/users/0/password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	// only the caller's own password, addressed as user 0
	if id, ok := pathID(c, "id"); !ok {
		return
	} else if id != 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found."})
		return
	}
	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	caller := callerFromCtx(c)
	if err := h.authService.ChangePassword(c.Request.Context(), caller.UserID, req.OldPassword, req.NewPassword); err != nil {
		respondError(c, h.log, "[auth][password]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully."})
}
