package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ricauth/internal/models"
	"ricauth/internal/pagination"
	"ricauth/internal/search"
	"ricauth/internal/services"
)

var userSearch = search.Filter{
	Fields: map[string]search.Predicate{
		"katakana_name": search.ILike("u.katakana_name"),
		"hiragana_name": search.ILike("u.hiragana_name"),
		"id":            search.ILikeText("u.id"),
		"group_name": search.Exists(`SELECT 1 FROM user_group_roles m JOIN groups g ON g.id = m.group_id
			WHERE m.user_id = u.id AND m.is_deleted = FALSE AND g.is_deleted = FALSE AND g.name ILIKE %s`),
		"group_code": search.Exists(`SELECT 1 FROM user_group_roles m JOIN groups g ON g.id = m.group_id
			WHERE m.user_id = u.id AND m.is_deleted = FALSE AND g.is_deleted = FALSE AND g.code ILIKE %s`),
	},
	Default: []string{"katakana_name", "hiragana_name", "id"},
	Patterns: map[string][]string{
		"user_info":           {"katakana_name", "hiragana_name", "id"},
		"user_and_group_info": {"katakana_name", "hiragana_name", "id", "group_name", "group_code"},
	},
}

var userOrdering = search.Ordering{
	Allowed: map[string]string{"username": "u.username", "id": "u.id"},
	Default: "u.id",
}

type UserHandler struct {
	service  services.UserService
	mediaURL string
	log      *logrus.Entry
}

// userPatch is the PATCH body. Multipart forms are accepted as well as JSON.
type userPatch struct {
	Bio    *string `json:"bio" form:"bio"`
	Avatar *string `json:"avatar" form:"avatar"`
}

func NewUserHandler(service services.UserService, mediaURL string, log *logrus.Entry) *UserHandler {
	return &UserHandler{service: service, mediaURL: mediaURL, log: log}
}

func (h *UserHandler) userFilter(c *gin.Context) (models.UserFilter, error) {
	var (
		f   models.UserFilter
		err error
	)
	if f.OrganizationID, err = optionalInt(c, "organization"); err != nil {
		return f, err
	}
	if f.GroupIDs, err = intList(c, "group_ids"); err != nil {
		return f, err
	}
	f.KatakanaName = optionalString(c, "katakana_name")
	f.HiraganaName = optionalString(c, "hiragana_name")
	if v := strings.ToLower(c.Query("exclude_current_user")); v == "true" || v == "1" {
		id := callerFromCtx(c).UserID
		f.ExcludeUserID = &id
	}
	return f, nil
}

// @Summary      List users
// @Description  Ordering fields are `username` and `id`. Searching covers katakana_name, hiragana_name and id; `search_pattern=user_and_group_info` also searches group names and codes.
// @Tags         Users
// @Security     BearerAuth
// @Produce      json
// @Param        page                  query  int     false  "Page number"
// @Param        page_size             query  int     false  "Page size (max 500)"
// @Param        search                query  string  false  "Search terms"
// @Param        search_pattern        query  string  false  "user_info | user_and_group_info"
// @Param        ordering              query  string  false  "username, id, -username, -id"
// @Param        organization          query  int     false  "Organization id"
// @Param        group_ids             query  string  false  "Comma separated group ids"
// @Param        exclude_current_user  query  bool    false  "Leave the caller out"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/CustomUser/ [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	p, err := pagination.FromRequest(c.Request)
	if err != nil {
		respondError(c, h.log, "[user][list]", err)
		return
	}
	filter, err := h.userFilter(c)
	if err != nil {
		respondError(c, h.log, "[user][list]", err)
		return
	}
	q, err := parseSearch(c, userSearch)
	if err != nil {
		respondError(c, h.log, "[user][list]", err)
		return
	}

	users, count, err := h.service.ListUsers(c.Request.Context(), callerFromCtx(c), filter, q, userOrdering.SQL(c.Query(search.OrderingParam)), p.Limit(), p.Offset())
	if err != nil {
		respondError(c, h.log, "[user][list]", err)
		return
	}
	out := make([]models.UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, h.render(u))
	}
	writePage(c, h.log, "[user][list]", p, count, out)
}

// @Summary      Get a user
// @Description  Pass id 0 for the current user.
// @Tags         Users
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "User id"
// @Success      200  {object}  models.UserResponse
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/CustomUser/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	user, err := h.service.GetUser(c.Request.Context(), callerFromCtx(c), id)
	if err != nil {
		respondError(c, h.log, "[user][get]", err)
		return
	}
	c.JSON(http.StatusOK, h.render(user))
}

// @Summary      Update a user
// @Description  Only bio and avatar can change. Pass id 0 for the current user.
// @Tags         Users
// @Security     BearerAuth
// @Accept       json
// @Accept       mpfd
// @Produce      json
// @Param        id    path      int        true  "User id"
// @Param        body  body      userPatch  true  "Fields to change"
// @Success      200   {object}  models.UserResponse
// @Failure      403   {object}  map[string]string
// @Router       /api/CustomUser/{id} [patch]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body userPatch
	if err := c.ShouldBind(&body); err != nil {
		bindError(c, err)
		return
	}
	user, err := h.service.UpdateUser(c.Request.Context(), callerFromCtx(c), id, models.UserUpdate{Bio: body.Bio, Avatar: body.Avatar})
	if err != nil {
		respondError(c, h.log, "[user][update]", err)
		return
	}
	c.JSON(http.StatusOK, h.render(user))
}

// @Summary      Random avatars from the caller's groups
// @Description  Up to 6 distinct users sharing a group with the caller. Not paginated.
// @Tags         Users
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  models.AvatarResponse
// @Router       /api/random_user_avatar/ [get]
func (h *UserHandler) RandomAvatars(c *gin.Context) {
	avatars, err := h.service.RandomAvatars(c.Request.Context(), callerFromCtx(c))
	if err != nil {
		respondError(c, h.log, "[user][avatars]", err)
		return
	}
	for i := range avatars {
		avatars[i].Avatar = h.absolute(avatars[i].Avatar)
	}
	c.JSON(http.StatusOK, avatars)
}

func (h *UserHandler) render(u *models.User) models.UserResponse {
	u.Avatar = h.absolute(u.Avatar)
	return u.Response()
}

// absolute prefixes stored relative avatar paths with the media URL.
func (h *UserHandler) absolute(path *string) *string {
	if path == nil || *path == "" {
		return path
	}
	if strings.HasPrefix(*path, "http://") || strings.HasPrefix(*path, "https://") {
		return path
	}
	abs := strings.TrimRight(h.mediaURL, "/") + "/" + strings.TrimLeft(*path, "/")
	return &abs
}
