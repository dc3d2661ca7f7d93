package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"prairielearn/backend/internal/models"
)

// InstructorMiddleware creates a gin middleware to check for the instructor role.
// It must be used AFTER the standard AuthMiddleware.
func InstructorMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := UserID(c)
		if !exists {
			// This should not happen if AuthMiddleware is used before it
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}

		var user models.User
		if err := db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Authenticated user not found"})
			return
		}

		if user.Role != models.RoleInstructor {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Instructor access required"})
			return
		}

		c.Next()
	}
}
