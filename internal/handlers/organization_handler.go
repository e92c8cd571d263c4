package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ricauth/internal/models"
	"ricauth/internal/pagination"
	"ricauth/internal/services"
)

type OrganizationHandler struct {
	service services.OrganizationService
	log     *logrus.Entry
}

func NewOrganizationHandler(service services.OrganizationService, log *logrus.Entry) *OrganizationHandler {
	return &OrganizationHandler{service: service, log: log}
}

// @Summary      List organizations
// @Tags         Organizations
// @Produce      json
// @Param        slug       query  string  false  "Exact slug"
// @Param        page       query  int     false  "Page number"
// @Param        page_size  query  int     false  "Page size"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/organization/ [get]
func (h *OrganizationHandler) List(c *gin.Context) {
	p, err := pagination.FromRequest(c.Request)
	if err != nil {
		respondError(c, h.log, "[organization][list]", err)
		return
	}
	filter := models.OrganizationFilter{Slug: optionalString(c, "slug")}
	orgs, count, err := h.service.List(c.Request.Context(), filter, p.Limit(), p.Offset())
	if err != nil {
		respondError(c, h.log, "[organization][list]", err)
		return
	}
	writePage(c, h.log, "[organization][list]", p, count, orgs)
}

// @Summary      Get an organization
// @Tags         Organizations
// @Produce      json
// @Param        id   path      int  true  "Organization id"
// @Success      200  {object}  models.Organization
// @Failure      404  {object}  map[string]string
// @Router       /api/organization/{id} [get]
func (h *OrganizationHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	org, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, "[organization][get]", err)
		return
	}
	c.JSON(http.StatusOK, org)
}

// @Summary      Create an organization
// @Description  The slug is derived from the name. A taken slug gets today's date ordinal appended.
// @Tags         Organizations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body  body      models.CreateOrganizationRequest  true  "Organization"
// @Success      201   {object}  models.Organization
// @Failure      403   {object}  map[string]string
// @Router       /api/organization/ [post]
func (h *OrganizationHandler) Create(c *gin.Context) {
	var req models.CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	org, err := h.service.Create(c.Request.Context(), callerFromCtx(c), req.Name)
	if err != nil {
		respondError(c, h.log, "[organization][create]", err)
		return
	}
	c.JSON(http.StatusCreated, org)
}

// @Summary      Delete an organization
// @Description  Fails with 409 while groups, roles or users reference it.
// @Tags         Organizations
// @Security     BearerAuth
// @Param        id  path  int  true  "Organization id"
// @Success      204
// @Failure      409  {object}  map[string]string
// @Router       /api/organization/{id} [delete]
func (h *OrganizationHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.log, "[organization][delete]", err)
		return
	}
	c.Status(http.StatusNoContent)
}
