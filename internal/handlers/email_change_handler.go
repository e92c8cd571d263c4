package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ricauth/internal/models"
	"ricauth/internal/services"
)

type EmailChangeHandler struct {
	service services.EmailChangeService
	log     *logrus.Entry
}

func NewEmailChangeHandler(service services.EmailChangeService, log *logrus.Entry) *EmailChangeHandler {
	return &EmailChangeHandler{service: service, log: log}
}

// @Summary      Request an email change
// @Description  Stores a pending request and queues the verification mail. The task_id can be polled on /api/task_progress/.
// @Tags         Email change
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body  body      models.EmailChangeRequest  true  "New address"
// @Success      201   {object}  models.EmailChangeCreated
// @Failure      400   {object}  map[string]string
// @Router       /api/email_reset/ [post]
// @Router       /api/email_change/ [post]
func (h *EmailChangeHandler) Request(c *gin.Context) {
	var req models.EmailChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	created, err := h.service.RequestChange(c.Request.Context(), callerFromCtx(c).UserID, req.Email)
	if err != nil {
		respondError(c, h.log, "[email_change][request]", err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// @Summary      Verify an email change
// @Description  A wrong code counts as a failed attempt. Reaching the attempt limit locks the request out.
// @Tags         Email change
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body  body      models.EmailChangeVerification  true  "Code and token"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/email_reset/verification/ [patch]
// @Router       /api/email_change/verify/ [post]
func (h *EmailChangeHandler) Verify(c *gin.Context) {
	var req models.EmailChangeVerification
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	err := h.service.VerifyChange(c.Request.Context(), callerFromCtx(c).UserID, req.Email, req.AuthCode, req.UUID)
	if err != nil {
		respondError(c, h.log, "[email_change][verify]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Email changed successfully."})
}
