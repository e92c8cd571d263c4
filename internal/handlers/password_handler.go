package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ricauth/internal/models"
	"ricauth/internal/pagination"
	"ricauth/internal/services"
)

// PasswordHandler serves reminder questions, the caller's reminders and
// anonymous reset requests.
type PasswordHandler struct {
	reminders services.PasswordReminderService
	resets    services.PasswordResetService
	log       *logrus.Entry
}

func NewPasswordHandler(reminders services.PasswordReminderService, resets services.PasswordResetService, log *logrus.Entry) *PasswordHandler {
	return &PasswordHandler{reminders: reminders, resets: resets, log: log}
}

// @Summary      Password reminder questions
// @Description  Questions of the caller's organization, or the global ones when it defines none.
// @Tags         Passwords
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  models.PasswordReminderQuestion
// @Router       /api/password_reminder_question/ [get]
func (h *PasswordHandler) Questions(c *gin.Context) {
	qs, err := h.reminders.Questions(c.Request.Context(), callerFromCtx(c))
	if err != nil {
		respondError(c, h.log, "[password-reminder][questions]", err)
		return
	}
	if qs == nil {
		qs = []*models.PasswordReminderQuestion{}
	}
	c.JSON(http.StatusOK, qs)
}

// @Summary      List own password reminders
// @Tags         Passwords
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/password_reminder/ [get]
func (h *PasswordHandler) ListReminders(c *gin.Context) {
	p, err := pagination.FromRequest(c.Request)
	if err != nil {
		respondError(c, h.log, "[password-reminder][list]", err)
		return
	}
	items, count, err := h.reminders.List(c.Request.Context(), callerFromCtx(c), p.Limit(), p.Offset())
	if err != nil {
		respondError(c, h.log, "[password-reminder][list]", err)
		return
	}
	writePage(c, h.log, "[password-reminder][list]", p, count, items)
}

// @Summary      Get an own password reminder
// @Tags         Passwords
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Reminder id"
// @Success      200  {object}  models.PasswordReminder
// @Router       /api/password_reminder/{id} [get]
func (h *PasswordHandler) GetReminder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rem, err := h.reminders.Get(c.Request.Context(), callerFromCtx(c), id)
	if err != nil {
		respondError(c, h.log, "[password-reminder][get]", err)
		return
	}
	c.JSON(http.StatusOK, rem)
}

// @Summary      Create a password reminder
// @Tags         Passwords
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body  body      models.PasswordReminderRequest  true  "Question and answer"
// @Success      201   {object}  models.PasswordReminder
// @Failure      400   {object}  map[string]string
// @Router       /api/password_reminder/ [post]
func (h *PasswordHandler) CreateReminder(c *gin.Context) {
	var req models.PasswordReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	rem, err := h.reminders.Create(c.Request.Context(), callerFromCtx(c), req)
	if err != nil {
		respondError(c, h.log, "[password-reminder][create]", err)
		return
	}
	c.JSON(http.StatusCreated, rem)
}

// @Summary      Update a password reminder
// @Tags         Passwords
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      int                           true  "Reminder id"
// @Param        body  body      models.PasswordReminderPatch  true  "Changes"
// @Success      200   {object}  models.PasswordReminder
// @Router       /api/password_reminder/{id} [patch]
func (h *PasswordHandler) UpdateReminder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.PasswordReminderPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	rem, err := h.reminders.Update(c.Request.Context(), callerFromCtx(c), id, req)
	if err != nil {
		respondError(c, h.log, "[password-reminder][update]", err)
		return
	}
	c.JSON(http.StatusOK, rem)
}

// @Summary      Delete a password reminder
// @Tags         Passwords
// @Security     BearerAuth
// @Param        id  path  int  true  "Reminder id"
// @Success      204
// @Router       /api/password_reminder/{id} [delete]
func (h *PasswordHandler) DeleteReminder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.reminders.Delete(c.Request.Context(), callerFromCtx(c), id); err != nil {
		respondError(c, h.log, "[password-reminder][delete]", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary      Request a password reset
// @Description  Anonymous. Staff answer the request later.
// @Tags         Passwords
// @Accept       json
// @Produce      json
// @Param        body  body      models.CreatePasswordResetRequest  true  "Request"
// @Success      201   {object}  models.PasswordResetRequest
// @Router       /api/password_reset_request/ [post]
func (h *PasswordHandler) RequestReset(c *gin.Context) {
	var req models.CreatePasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	pr, err := h.resets.RequestReset(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, "[password-reset][create]", err)
		return
	}
	c.JSON(http.StatusCreated, pr)
}

// @Summary      List password reset requests
// @Tags         Passwords
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/password_reset_request/ [get]
func (h *PasswordHandler) ListResets(c *gin.Context) {
	p, err := pagination.FromRequest(c.Request)
	if err != nil {
		respondError(c, h.log, "[password-reset][list]", err)
		return
	}
	items, count, err := h.resets.List(c.Request.Context(), p.Limit(), p.Offset())
	if err != nil {
		respondError(c, h.log, "[password-reset][list]", err)
		return
	}
	writePage(c, h.log, "[password-reset][list]", p, count, items)
}

// @Summary      Answer a password reset request
// @Tags         Passwords
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      int                                 true  "Request id"
// @Param        body  body      models.CreatePasswordResetResponse  true  "Answer"
// @Success      201   {object}  models.PasswordResetRequest
// @Router       /api/password_reset_request/{id}/response [post]
func (h *PasswordHandler) RespondReset(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.CreatePasswordResetResponse
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	pr, err := h.resets.Respond(c.Request.Context(), callerFromCtx(c), id, req.PasswordReset)
	if err != nil {
		respondError(c, h.log, "[password-reset][respond]", err)
		return
	}
	c.JSON(http.StatusCreated, pr)
}
