package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"prairielearn/backend/internal/models"
)

// TagResponse is a course tag as listed by the API.
type TagResponse struct {
	ID          uint   `json:"id" example:"3"`
	Name        string `json:"name" example:"easy"`
	Number      int    `json:"number" example:"1"`
	Color       string `json:"color" example:"green1"`
	Description string `json:"description,omitempty"`
}

// QuestionResponse is a question with its tags in the order the question lists them.
type QuestionResponse struct {
	ID    uint          `json:"id" example:"12"`
	QID   string        `json:"qid" example:"addNumbers"`
	Title string        `json:"title" example:"Add two numbers"`
	Topic string        `json:"topic,omitempty" example:"Algebra"`
	Tags  []TagResponse `json:"tags"`
}

// PaginatedTagResponse documents PaginatedResponse[TagResponse] for swagger.
type PaginatedTagResponse struct {
	Data []TagResponse  `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

// PaginatedQuestionResponse documents PaginatedResponse[QuestionResponse] for swagger.
type PaginatedQuestionResponse struct {
	Data []QuestionResponse `json:"data"`
	Meta PaginationMeta     `json:"meta"`
}

func newTagResponse(tag models.Tag) TagResponse {
	return TagResponse{
		ID:          tag.ID,
		Name:        tag.Name,
		Number:      tag.Number,
		Color:       tag.Color,
		Description: tag.Description,
	}
}

func newQuestionResponse(q models.Question) QuestionResponse {
	tags := make([]TagResponse, 0, len(q.Tags))
	for _, qt := range q.Tags {
		tags = append(tags, newTagResponse(qt.Tag))
	}
	return QuestionResponse{ID: q.ID, QID: q.QID, Title: q.Title, Topic: q.Topic, Tags: tags}
}

// GetCourseTags godoc
// @Summary      List course tags
// @Description  Lists the tags of a course in the order of the course's tag list.
// @Tags         courses
// @Produce      json
// @Param        course_id  path      int  true   "Course ID"
// @Param        page       query     int  false  "Page number" default(1)
// @Param        limit      query     int  false  "Items per page" default(20)
// @Success      200        {object}  PaginatedTagResponse
// @Failure      400        {object}  ErrorResponse
// @Failure      500        {object}  ErrorResponse
// @Router       /courses/{course_id}/tags [get]
func (h *Handler) GetCourseTags(c *gin.Context) {
	courseID, ok := parseID(c, "course_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid course ID"})
		return
	}
	page, limit := pageParams(c)

	query := h.DB.WithContext(c.Request.Context()).
		Where("course_id = ?", courseID).
		Order("number")
	tags, err := Paginate[models.Tag](query, page, limit)
	if err != nil {
		h.Log.Error("Failed to list tags", zap.Uint("course_id", courseID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve tags"})
		return
	}

	data := make([]TagResponse, len(tags.Data))
	for i, tag := range tags.Data {
		data[i] = newTagResponse(tag)
	}
	c.JSON(http.StatusOK, NewPaginatedResponse(data, tags.Meta.TotalItems, page, limit))
}

// GetCourseQuestions godoc
// @Summary      List course questions
// @Description  Lists the questions of a course, optionally only those carrying any of the given tags.
// @Tags         courses
// @Produce      json
// @Param        course_id  path      int     true   "Course ID"
// @Param        tag_ids    query     string  false  "Comma-separated tag IDs"
// @Param        page       query     int     false  "Page number" default(1)
// @Param        limit      query     int     false  "Items per page" default(20)
// @Success      200        {object}  PaginatedQuestionResponse
// @Failure      400        {object}  ErrorResponse
// @Failure      500        {object}  ErrorResponse
// @Router       /courses/{course_id}/questions [get]
func (h *Handler) GetCourseQuestions(c *gin.Context) {
	courseID, ok := parseID(c, "course_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid course ID"})
		return
	}
	page, limit := pageParams(c)

	db := h.DB.WithContext(c.Request.Context())
	query := db.Where("questions.course_id = ?", courseID)

	if raw := c.Query("tag_ids"); raw != "" {
		var tagIDs []uint
		for _, s := range strings.Split(raw, ",") {
			id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tag ID format"})
				return
			}
			tagIDs = append(tagIDs, uint(id))
		}
		tagged := db.Model(&models.QuestionTag{}).Select("question_id").Where("tag_id IN ?", tagIDs)
		query = query.Where("questions.id IN (?)", tagged)
	}

	withTags := func(db *gorm.DB) *gorm.DB {
		return db.
			Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("number") }).
			Preload("Tags.Tag").
			Order("questions.qid")
	}

	questions, err := Paginate[models.Question](query, page, limit, withTags)
	if err != nil {
		h.Log.Error("Failed to list questions", zap.Uint("course_id", courseID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve questions"})
		return
	}

	data := make([]QuestionResponse, len(questions.Data))
	for i, q := range questions.Data {
		data[i] = newQuestionResponse(q)
	}
	c.JSON(http.StatusOK, NewPaginatedResponse(data, questions.Meta.TotalItems, page, limit))
}
