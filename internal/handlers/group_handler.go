package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ricauth/internal/models"
	"ricauth/internal/pagination"
	"ricauth/internal/search"
	"ricauth/internal/services"
)

var groupSearch = search.Filter{
	Fields: map[string]search.Predicate{
		"name": search.ILike("g.name"),
		"code": search.ILike("g.code"),
	},
	Default: []string{"name", "code"},
}

var groupOrdering = search.Ordering{
	Allowed: map[string]string{"name": "g.name", "id": "g.id", "code": "g.code"},
	Default: "g.id",
}

type GroupHandler struct {
	service services.GroupService
	log     *logrus.Entry
}

func NewGroupHandler(service services.GroupService, log *logrus.Entry) *GroupHandler {
	return &GroupHandler{service: service, log: log}
}

func groupFilter(c *gin.Context) (models.GroupFilter, error) {
	var (
		f   models.GroupFilter
		err error
	)
	if f.OrganizationID, err = optionalInt(c, "organization"); err != nil {
		return f, err
	}
	if f.Hierarchy, err = optionalInt(c, "hierarchy"); err != nil {
		return f, err
	}
	if f.IDs, err = intList(c, "ids"); err != nil {
		return f, err
	}
	return f, nil
}

// @Summary      List groups
// @Description  Each group carries its direct sub-groups. Ordering fields are `name`, `id` and `code`; searching covers name and code.
// @Tags         Groups
// @Security     BearerAuth
// @Produce      json
// @Param        organization  query  int     false  "Organization id"
// @Param        hierarchy     query  int     false  "Depth, 1 for top level"
// @Param        ids           query  string  false  "Comma separated ids"
// @Param        search        query  string  false  "Search terms"
// @Param        ordering      query  string  false  "name, id, code"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/group/ [get]
func (h *GroupHandler) List(c *gin.Context) {
	p, err := pagination.FromRequest(c.Request)
	if err != nil {
		respondError(c, h.log, "[group][list]", err)
		return
	}
	filter, err := groupFilter(c)
	if err != nil {
		respondError(c, h.log, "[group][list]", err)
		return
	}
	q, err := parseSearch(c, groupSearch)
	if err != nil {
		respondError(c, h.log, "[group][list]", err)
		return
	}
	groups, count, err := h.service.List(c.Request.Context(), filter, q, groupOrdering.SQL(c.Query(search.OrderingParam)), p.Limit(), p.Offset())
	if err != nil {
		respondError(c, h.log, "[group][list]", err)
		return
	}
	writePage(c, h.log, "[group][list]", p, count, groups)
}

// @Summary      Get a group
// @Tags         Groups
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Group id"
// @Success      200  {object}  models.Group
// @Failure      404  {object}  map[string]string
// @Router       /api/group/{id} [get]
func (h *GroupHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	g, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, "[group][get]", err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// @Summary      Create a group
// @Description  The hierarchy is derived from the parent.
// @Tags         Groups
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body  body      models.CreateGroupRequest  true  "Group"
// @Success      201   {object}  models.Group
// @Failure      400   {object}  map[string]string
// @Router       /api/group/ [post]
func (h *GroupHandler) Create(c *gin.Context) {
	var req models.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	g, err := h.service.Create(c.Request.Context(), callerFromCtx(c), req)
	if err != nil {
		respondError(c, h.log, "[group][create]", err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

// @Summary      Update a group
// @Description  Moving a group recomputes the hierarchy of its whole subtree.
// @Tags         Groups
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      int                        true  "Group id"
// @Param        body  body      models.UpdateGroupRequest  true  "Changes"
// @Success      200   {object}  models.Group
// @Failure      400   {object}  map[string]string
// @Router       /api/group/{id} [patch]
func (h *GroupHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	g, err := h.service.Update(c.Request.Context(), callerFromCtx(c), id, req)
	if err != nil {
		respondError(c, h.log, "[group][update]", err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// @Summary      Delete a group
// @Tags         Groups
// @Security     BearerAuth
// @Param        id  path  int  true  "Group id"
// @Success      204
// @Failure      409  {object}  map[string]string
// @Router       /api/group/{id} [delete]
func (h *GroupHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.log, "[group][delete]", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary      List group members
// @Tags         Groups
// @Security     BearerAuth
// @Produce      json
// @Param        id   path   int  true  "Group id"
// @Success      200  {array}  models.Membership
// @Router       /api/group/{id}/members [get]
func (h *GroupHandler) Members(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	members, err := h.service.Members(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, "[group][members]", err)
		return
	}
	if members == nil {
		members = []*models.Membership{}
	}
	c.JSON(http.StatusOK, members)
}

// @Summary      Add a member
// @Description  The role must belong to the group's organization.
// @Tags         Groups
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      int                             true  "Group id"
// @Param        body  body      models.CreateMembershipRequest  true  "Member"
// @Success      201   {object}  models.Membership
// @Failure      409   {object}  map[string]string
// @Router       /api/group/{id}/members [post]
func (h *GroupHandler) AddMember(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.CreateMembershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	m, err := h.service.AddMember(c.Request.Context(), callerFromCtx(c), id, req)
	if err != nil {
		respondError(c, h.log, "[group][member]", err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// @Summary      Remove a member
// @Tags         Groups
// @Security     BearerAuth
// @Param        id             path  int  true  "Group id"
// @Param        membership_id  path  int  true  "Membership id"
// @Success      204
// @Router       /api/group/{id}/members/{membership_id} [delete]
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	mid, ok := pathID(c, "membership_id")
	if !ok {
		return
	}
	if err := h.service.RemoveMember(c.Request.Context(), id, mid); err != nil {
		respondError(c, h.log, "[group][member]", err)
		return
	}
	c.Status(http.StatusNoContent)
}
