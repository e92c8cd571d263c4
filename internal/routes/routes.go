package routes

import (
	"github.com/gin-gonic/gin"

	"ricauth/internal/handlers"
	"ricauth/internal/middleware"
)

// Handlers groups everything the route table serves.
type Handlers struct {
	Auth         *handlers.AuthHandler
	User         *handlers.UserHandler
	Organization *handlers.OrganizationHandler
	Group        *handlers.GroupHandler
	Password     *handlers.PasswordHandler
	EmailChange  *handlers.EmailChangeHandler
	Task         *handlers.TaskHandler
	Health       *handlers.HealthHandler
}

// SetupRoutes registers the API. limit guards the credential and email
// change endpoints and may be nil.
func SetupRoutes(r *gin.Engine, h Handlers, jwtKey []byte, limit gin.HandlerFunc) *gin.Engine {
	throttled := []gin.HandlerFunc{}
	if limit != nil {
		throttled = append(throttled, limit)
	}
	auth := middleware.AuthMiddleware(jwtKey)

	r.GET("/healthz", h.Health.Health)

	api := r.Group("/api")

	// ---- public
	api.POST("/token/", append(throttled, h.Auth.Login)...)
	api.POST("/token/refresh/", append(throttled, h.Auth.Refresh)...)
	api.POST("/password_reset_request/", append(throttled, h.Password.RequestReset)...)
	api.GET("/organization/", h.Organization.List)
	api.GET("/organization/:id", h.Organization.Get)

	// ---- protected
	protected := api.Group("", auth)

	for _, prefix := range []string{"/CustomUser", "/users"} {
		users := protected.Group(prefix)
		{
			users.GET("/", h.User.ListUsers)
			users.GET("/:id", h.User.GetUser)
			users.PATCH("/:id", h.User.UpdateUser)
		}
	}
	protected.POST("/users/:id/password", append(throttled, h.Auth.ChangePassword)...)
	protected.GET("/random_user_avatar/", h.User.RandomAvatars)

	// ORGANIZATIONS (staff writes)
	orgs := protected.Group("/organization", middleware.RequireStaff())
	{
		orgs.POST("/", h.Organization.Create)
		orgs.DELETE("/:id", h.Organization.Delete)
	}

	// GROUPS
	groups := protected.Group("/group", middleware.ReadOnlyUnlessStaff())
	{
		groups.GET("/", h.Group.List)
		groups.GET("/:id", h.Group.Get)
		groups.POST("/", h.Group.Create)
		groups.PATCH("/:id", h.Group.Update)
		groups.DELETE("/:id", h.Group.Delete)
		groups.GET("/:id/members", h.Group.Members)
		groups.POST("/:id/members", h.Group.AddMember)
		groups.DELETE("/:id/members/:membership_id", h.Group.RemoveMember)
	}

	// PASSWORD REMINDERS
	protected.GET("/password_reminder_question/", h.Password.Questions)
	reminders := protected.Group("/password_reminder")
	{
		reminders.GET("/", h.Password.ListReminders)
		reminders.POST("/", h.Password.CreateReminder)
		reminders.GET("/:id", h.Password.GetReminder)
		reminders.PATCH("/:id", h.Password.UpdateReminder)
		reminders.DELETE("/:id", h.Password.DeleteReminder)
	}

	// PASSWORD RESET (staff side)
	resets := protected.Group("/password_reset_request", middleware.RequireStaff())
	{
		resets.GET("/", h.Password.ListResets)
		resets.POST("/:id/response", h.Password.RespondReset)
	}

	// EMAIL CHANGE (email_reset is the original path, email_change the alias)
	for _, prefix := range []string{"/email_reset", "/email_change"} {
		emailChange := protected.Group(prefix, throttled...)
		{
			emailChange.POST("/", h.EmailChange.Request)
			emailChange.PATCH("/verification/", h.EmailChange.Verify)
			emailChange.POST("/verify/", h.EmailChange.Verify)
		}
	}

	protected.GET("/task_progress/:task_id", h.Task.Progress)

	return r
}
