package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"prairielearn/backend/internal/models"
	"prairielearn/backend/internal/question"
)

const (
	questionKey = "question"

	actionReportIssue = "report_issue"
	previewPageType   = "instructorQuestionPreview"
)

// PreviewActionInput is the body of a preview page POST. Form posts carry the
// answer as plain fields; JSON posts carry it under submitted_answer.
type PreviewActionInput struct {
	Action          string         `json:"__action" example:"grade"`
	VariantID       uint           `json:"__variant_id" example:"41"`
	Description     string         `json:"description,omitempty"`
	SubmittedAnswer map[string]any `json:"submitted_answer,omitempty"`
}

// VariantResponse is a variant as shown on the preview page.
type VariantResponse struct {
	ID        uint      `json:"id" example:"41"`
	Seed      string    `json:"seed" example:"1234"`
	CreatedAt time.Time `json:"created_at"`
}

// SubmissionResponse is a stored submission of a variant.
type SubmissionResponse struct {
	ID                 uint       `json:"id"`
	SubmittedAnswer    any        `json:"submitted_answer"`
	Gradable           bool       `json:"gradable"`
	Score              *float64   `json:"score,omitempty"`
	GradingRequestedAt *time.Time `json:"grading_requested_at,omitempty"`
	GradedAt           *time.Time `json:"graded_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// PreviewResponse is the instructor preview of one question variant.
type PreviewResponse struct {
	Question     QuestionResponse     `json:"question"`
	Variant      VariantResponse      `json:"variant"`
	Submissions  []SubmissionResponse `json:"submissions"`
	QuestionHTML string               `json:"question_html"`
}

func newPreviewResponse(r *question.RenderedVariant) PreviewResponse {
	subs := make([]SubmissionResponse, 0, len(r.Submissions))
	for _, s := range r.Submissions {
		var answer any = map[string]any{}
		if len(s.SubmittedAnswer) > 0 {
			answer = s.SubmittedAnswer
		}
		subs = append(subs, SubmissionResponse{
			ID:                 s.ID,
			SubmittedAnswer:    answer,
			Gradable:           s.Gradable,
			Score:              s.Score,
			GradingRequestedAt: s.GradingRequestedAt,
			GradedAt:           s.GradedAt,
			CreatedAt:          s.CreatedAt,
		})
	}
	return PreviewResponse{
		Question:     newQuestionResponse(*r.Question),
		Variant:      VariantResponse{ID: r.Variant.ID, Seed: r.Variant.Seed, CreatedAt: r.Variant.CreatedAt},
		Submissions:  subs,
		QuestionHTML: r.QuestionHTML,
	}
}

// loadQuestion resolves :question_id and stores the question in the context.
func (h *Handler) loadQuestion(c *gin.Context) {
	id, ok := parseID(c, "question_id")
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid question ID"})
		return
	}
	q, err := h.Questions.Question(c.Request.Context(), id)
	if err != nil {
		h.abortWithQuestionError(c, err)
		return
	}
	c.Set(questionKey, q)
	c.Next()
}

func currentQuestion(c *gin.Context) *models.Question {
	return c.MustGet(questionKey).(*models.Question)
}

func (h *Handler) abortWithQuestionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, question.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, question.ErrVariantMismatch), errors.Is(err, question.ErrUnknownAction):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.Log.Error("Question preview failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func (h *Handler) previewURL(questionID, variantID uint) string {
	return fmt.Sprintf("%s/questions/%d/preview?variant_id=%d", h.URLPrefix, questionID, variantID)
}

// GetQuestionPreview godoc
// @Summary      Preview a question
// @Description  Renders a variant of the question. Without variant_id a new variant is created, seeded by variant_seed when given.
// @Tags         preview
// @Produce      json
// @Security     BearerAuth
// @Param        question_id   path      int     true   "Question ID"
// @Param        variant_id    query     int     false  "Existing variant to show"
// @Param        variant_seed  query     string  false  "Seed for a new variant"
// @Success      200  {object}  PreviewResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse "Instructor access required"
// @Failure      404  {object}  ErrorResponse
// @Router       /questions/{question_id}/preview [get]
func (h *Handler) GetQuestionPreview(c *gin.Context) {
	q := currentQuestion(c)
	ctx := c.Request.Context()

	var variantID *uint
	if raw := c.Query("variant_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid variant ID"})
			return
		}
		v := uint(id)
		variantID = &v
	}

	userID := userIDPtr(c)
	variant, err := h.Questions.GetOrCreateVariant(ctx, q, variantID, c.Query("variant_seed"), userID)
	if err != nil {
		h.abortWithQuestionError(c, err)
		return
	}

	rendered, err := h.Questions.RenderVariant(ctx, q, variant)
	if err != nil {
		h.abortWithQuestionError(c, err)
		return
	}

	qid, vid := q.ID, variant.ID
	if err := h.Questions.LogPageView(ctx, models.PageView{
		PageType:   previewPageType,
		Path:       c.Request.URL.Path,
		QuestionID: &qid,
		VariantID:  &vid,
		UserID:     userID,
	}); err != nil {
		h.Log.Warn("Failed to log page view", zap.Error(err))
	}

	c.JSON(http.StatusOK, newPreviewResponse(rendered))
}

// bindPreviewAction reads a JSON or form-encoded preview POST.
func bindPreviewAction(c *gin.Context) (PreviewActionInput, error) {
	var input PreviewActionInput
	if c.ContentType() == binding.MIMEJSON {
		err := c.ShouldBindJSON(&input)
		return input, err
	}

	if err := c.Request.ParseForm(); err != nil {
		return input, err
	}
	input.Action = c.PostForm("__action")
	input.Description = c.PostForm("description")
	if raw := c.PostForm("__variant_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return input, fmt.Errorf("invalid __variant_id %q", raw)
		}
		input.VariantID = uint(id)
	}
	input.SubmittedAnswer = map[string]any{}
	for key, values := range c.Request.PostForm {
		if strings.HasPrefix(key, "__") || key == "description" || len(values) == 0 {
			continue
		}
		input.SubmittedAnswer[key] = values[0]
	}
	return input, nil
}

// PostQuestionPreview godoc
// @Summary      Act on a question preview
// @Description  Grades or saves an answer, or reports an issue, for a variant of the question, then redirects back to the preview of that variant.
// @Tags         preview
// @Accept       json
// @Accept       x-www-form-urlencoded
// @Produce      json
// @Security     BearerAuth
// @Param        question_id  path  int                 true  "Question ID"
// @Param        input        body  PreviewActionInput  true  "Action"
// @Success      302  "Redirect to the variant preview"
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse "Instructor access required"
// @Failure      404  {object}  ErrorResponse
// @Router       /questions/{question_id}/preview [post]
func (h *Handler) PostQuestionPreview(c *gin.Context) {
	q := currentQuestion(c)
	ctx := c.Request.Context()

	input, err := bindPreviewAction(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := userIDPtr(c)

	switch input.Action {
	case question.ActionGrade, question.ActionSave:
		if input.VariantID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "__variant_id is required"})
			return
		}
		_, err := h.Questions.ProcessSubmission(ctx, question.SubmissionInput{
			Action:      input.Action,
			QuestionID:  q.ID,
			VariantID:   input.VariantID,
			Answer:      input.SubmittedAnswer,
			AuthnUserID: userID,
		})
		if err != nil {
			h.abortWithQuestionError(c, err)
			return
		}
		c.Redirect(http.StatusFound, h.previewURL(q.ID, input.VariantID))

	case actionReportIssue:
		description := strings.TrimSpace(input.Description)
		if description == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "A description of the issue must be provided"})
			return
		}
		if input.VariantID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "__variant_id is required"})
			return
		}
		_, err := h.Questions.InsertIssue(ctx, question.IssueInput{
			QuestionID:        q.ID,
			VariantID:         input.VariantID,
			StudentMessage:    description,
			InstructorMessage: "instructor-reported issue",
			ManuallyReported:  true,
			CourseCaused:      true,
			AuthnUserID:       userID,
		})
		if err != nil {
			h.abortWithQuestionError(c, err)
			return
		}
		c.Redirect(http.StatusFound, h.previewURL(q.ID, input.VariantID))

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown __action: " + input.Action})
	}
}

// GetSubmissionPanel godoc
// @Summary      Render a submission panel
// @Description  Renders the panels for one submission of a variant of the question.
// @Tags         preview
// @Produce      json
// @Security     BearerAuth
// @Param        question_id    path  int  true  "Question ID"
// @Param        variant_id     path  int  true  "Variant ID"
// @Param        submission_id  path  int  true  "Submission ID"
// @Success      200  {object}  question.SubmissionPanels
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse "Instructor access required"
// @Failure      404  {object}  ErrorResponse
// @Router       /questions/{question_id}/preview/variant/{variant_id}/submission/{submission_id} [get]
func (h *Handler) GetSubmissionPanel(c *gin.Context) {
	q := currentQuestion(c)

	variantID, ok := parseID(c, "variant_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid variant ID"})
		return
	}
	submissionID, ok := parseID(c, "submission_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid submission ID"})
		return
	}

	panels, err := h.Questions.RenderPanelsForSubmission(c.Request.Context(), q.ID, variantID, submissionID)
	if err != nil {
		h.abortWithQuestionError(c, err)
		return
	}
	c.JSON(http.StatusOK, panels)
}
