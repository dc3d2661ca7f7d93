package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"prairielearn/backend/internal/auth"
	"prairielearn/backend/internal/fromdisk"
	"prairielearn/backend/internal/hub"
	"prairielearn/backend/internal/question"
)

// ErrorResponse represents a generic error response.
type ErrorResponse struct {
	Error string `json:"error" example:"An error message"`
}

// Handler carries the dependencies shared by every HTTP handler.
type Handler struct {
	DB          *gorm.DB
	Log         *zap.Logger
	Questions   *question.Service
	Syncer      *fromdisk.Syncer
	Hub         *hub.Hub
	JWTSecret   string
	URLPrefix   string
	CoursesRoot string
}

// RegisterRoutes mounts the API below r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", h.RegisterUser)
		authRoutes.POST("/login", h.LoginUser)
	}

	public := r.Group("")
	public.Use(auth.OptionalAuthMiddleware(h.JWTSecret))
	{
		public.GET("/courses/:course_id/tags", h.GetCourseTags)
		public.GET("/courses/:course_id/questions", h.GetCourseQuestions)
	}

	authed := r.Group("")
	authed.Use(auth.AuthMiddleware(h.JWTSecret))
	{
		authed.GET("/users/me", h.GetMe)
	}

	instructor := r.Group("")
	instructor.Use(auth.AuthMiddleware(h.JWTSecret), auth.InstructorMiddleware(h.DB))
	{
		instructor.POST("/sync", h.SyncCourse)
		instructor.GET("/courses/:course_id/sync/events", h.SyncEvents)

		preview := instructor.Group("/questions/:question_id/preview")
		preview.Use(h.loadQuestion)
		{
			preview.GET("", h.GetQuestionPreview)
			preview.POST("", h.PostQuestionPreview)
			preview.GET("/variant/:variant_id/submission/:submission_id", h.GetSubmissionPanel)
		}
	}
}

// parseID reads a numeric path parameter.
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func userIDPtr(c *gin.Context) *uint {
	if id, ok := auth.UserID(c); ok {
		return &id
	}
	return nil
}
