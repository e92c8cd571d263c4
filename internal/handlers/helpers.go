package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ricauth/internal/middleware"
	"ricauth/internal/pagination"
	"ricauth/internal/repositories"
	"ricauth/internal/search"
	"ricauth/internal/services"
)

// more tolerant of claim types (int / int64 / float64 / string)
func getIntFromCtx(c *gin.Context, key string) (int, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n, true
		}
	}
	return 0, false
}

// callerFromCtx reads the principal set by AuthMiddleware.
func callerFromCtx(c *gin.Context) services.Caller {
	var caller services.Caller
	if id, ok := getIntFromCtx(c, middleware.CtxUserID); ok {
		caller.UserID = id
	}
	if id, ok := getIntFromCtx(c, middleware.CtxOrganizationID); ok {
		caller.OrganizationID = id
	}
	caller.IsStaff = c.GetBool(middleware.CtxIsStaff)
	return caller
}

func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id < 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found."})
		return 0, false
	}
	return id, true
}

// optionalInt parses an exact-match query filter. A missing value yields nil.
func optionalInt(c *gin.Context, key string) (*int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &services.ValidationError{Msg: key + ": Enter a number."}
	}
	return &n, nil
}

// optionalString returns nil for a missing or blank filter.
func optionalString(c *gin.Context, key string) *string {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	return &raw
}

// intList parses a comma separated "in" filter such as ?group_ids=1,2,3.
func intList(c *gin.Context, key string) ([]int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, &services.ValidationError{Msg: key + ": Enter a number."}
		}
		out = append(out, n)
	}
	return out, nil
}

// parseSearch resolves ?search and ?search_pattern against f.
func parseSearch(c *gin.Context, f search.Filter) (*search.Query, error) {
	return f.Parse(c.Query(search.Param), c.Query(search.PatternParam))
}

// writePage renders one page of results in the paginated envelope.
func writePage[T any](c *gin.Context, log *logrus.Entry, op string, p pagination.Params, count int, results []T) {
	page, err := pagination.New(c.Request, p, count, results)
	if err != nil {
		respondError(c, log, op, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// respondError maps service and repository errors onto HTTP statuses.
// Unexpected errors are logged and hidden behind a generic message.
func respondError(c *gin.Context, log *logrus.Entry, op string, err error) {
	var (
		ve  *services.ValidationError
		upe *search.UnsupportedPatternError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Msg})
	case errors.As(err, &upe):
		c.JSON(http.StatusBadRequest, gin.H{"error": upe.Error()})
	case errors.Is(err, pagination.ErrInvalidPage):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found."})
	case errors.Is(err, repositories.ErrProtected):
		c.JSON(http.StatusConflict, gin.H{"error": "This record is referenced by other records and cannot be deleted."})
	case errors.Is(err, repositories.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "This record already exists."})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrInvalidRefresh):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case isClientError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.WithError(err).WithField("request_id", c.GetString(middleware.CtxRequestID)).Error(op + " failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error."})
	}
}

var clientErrors = []error{
	services.ErrEmailTaken,
	services.ErrInvalidCode,
	services.ErrAttemptLimit,
	services.ErrPasswordReused,
	services.ErrWrongPassword,
	services.ErrGroupCycle,
	services.ErrParentOrganization,
	services.ErrRoleOrganization,
	services.ErrQuestionNotVisible,
	services.ErrInvalidTaskID,
}

func isClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// bindError answers a request whose body failed to bind.
func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
