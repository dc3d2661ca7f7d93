package handler

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"prairielearn/backend/internal/coursedb"
	"prairielearn/backend/internal/fromdisk"
	"prairielearn/backend/internal/hub"
)

// SyncInput names a course directory relative to the courses root.
type SyncInput struct {
	Path string `json:"path" binding:"required" example:"tam212"`
}

// SyncResponse reports the outcome of a sync run.
type SyncResponse struct {
	RunID          string          `json:"run_id"`
	CourseID       uint            `json:"course_id"`
	CourseName     string          `json:"course_name"`
	TagIDs         map[string]uint `json:"tag_ids"`
	QuestionIDs    map[string]uint `json:"question_ids"`
	QuestionErrors []string        `json:"question_errors"`
	DurationMS     int64           `json:"duration_ms"`
}

func newSyncResponse(r *fromdisk.Result) SyncResponse {
	errs := r.QuestionErrors
	if errs == nil {
		errs = []string{}
	}
	return SyncResponse{
		RunID:          r.RunID,
		CourseID:       r.CourseID,
		CourseName:     r.CourseName,
		TagIDs:         r.TagIDs,
		QuestionIDs:    r.QuestionIDs,
		QuestionErrors: errs,
		DurationMS:     r.Duration.Milliseconds(),
	}
}

// resolveCoursePath joins rel onto root and rejects paths that escape it.
func resolveCoursePath(root, rel string) (string, bool) {
	if rel == "" || filepath.IsAbs(rel) {
		return "", false
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}
	target := filepath.Join(rootAbs, rel)
	inside, err := filepath.Rel(rootAbs, target)
	if err != nil || inside == "." || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}

// SyncCourse godoc
// @Summary      Sync a course from disk
// @Description  Loads a course directory below the courses root and reconciles its tags, questions and question tags with the database. Question-level failures are reported in question_errors without failing the request.
// @Tags         sync
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body SyncInput true "Course directory"
// @Success      200  {object}  SyncResponse
// @Failure      400  {object}  ErrorResponse "Invalid path"
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse "Instructor access required"
// @Failure      422  {object}  ErrorResponse "Course could not be loaded or is inconsistent"
// @Failure      500  {object}  ErrorResponse
// @Router       /sync [post]
func (h *Handler) SyncCourse(c *gin.Context) {
	var input SyncInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dir, ok := resolveCoursePath(h.CoursesRoot, input.Path)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Path must name a directory inside the courses root"})
		return
	}

	course, err := coursedb.Load(dir)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Syncer.SyncCourse(c.Request.Context(), course)
	if result != nil {
		if err != nil {
			h.Log.Warn("Course synced with question errors", zap.String("course", course.Name), zap.Error(err))
		}
		c.JSON(http.StatusOK, newSyncResponse(result))
		return
	}

	var dup *fromdisk.DuplicateNameError
	var unknown *fromdisk.UnknownReferenceError
	switch {
	case errors.As(err, &dup), errors.As(err, &unknown):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.Log.Error("Course sync failed", zap.String("course", course.Name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sync course"})
	}
}

// SyncEvents godoc
// @Summary      Stream sync events
// @Description  Streams the progress events of sync runs for a course as server-sent events.
// @Tags         sync
// @Produce      text/event-stream
// @Security     BearerAuth
// @Param        course_id  path  int  true  "Course ID"
// @Success      200  {object}  hub.Event
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse "Instructor access required"
// @Router       /courses/{course_id}/sync/events [get]
func (h *Handler) SyncEvents(c *gin.Context) {
	courseID, ok := parseID(c, "course_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid course ID"})
		return
	}

	client := make(hub.Client, 16)
	h.Hub.Subscribe(courseID, client)
	defer h.Hub.Unsubscribe(courseID, client)

	h.Log.Debug("Sync event stream opened", zap.Uint("course_id", courseID))
	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-client:
			if !ok {
				return false
			}
			c.SSEvent("sync", string(msg))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
