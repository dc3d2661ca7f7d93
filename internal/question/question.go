// Package question stores and renders question variants and their
// submissions for the instructor preview pages.
package question

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"prairielearn/backend/internal/models"
)

var (
	// ErrNotFound is returned when a question, variant or submission does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVariantMismatch is returned when a client names a variant of another question.
	ErrVariantMismatch = errors.New("client-provided variant does not belong to the question")
	// ErrUnknownAction is returned for submission actions other than grade and save.
	ErrUnknownAction = errors.New("unknown submission action")
)

// Submission actions.
const (
	ActionGrade = "grade"
	ActionSave  = "save"
)

// Service persists variants, submissions, issues and page views.
type Service struct {
	db       *gorm.DB
	renderer Renderer
	grader   Grader
	log      *zap.Logger
}

// NewService returns a Service. A nil renderer or grader selects
// PlainRenderer or ManualGrader.
func NewService(db *gorm.DB, renderer Renderer, grader Grader, log *zap.Logger) *Service {
	if renderer == nil {
		renderer = PlainRenderer{}
	}
	if grader == nil {
		grader = ManualGrader{}
	}
	return &Service{db: db, renderer: renderer, grader: grader, log: log}
}

// Question loads a question with its course and its tags in rank order.
func (s *Service) Question(ctx context.Context, id uint) (*models.Question, error) {
	var q models.Question
	err := s.db.WithContext(ctx).
		Preload("Course").
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("number") }).
		Preload("Tags.Tag").
		First(&q, id).Error
	if err != nil {
		return nil, notFound(err, "question %d", id)
	}
	return &q, nil
}

// ValidateVariantAgainstQuestion loads the variant and checks that it was
// generated for the question.
func (s *Service) ValidateVariantAgainstQuestion(ctx context.Context, variantID, questionID uint) (*models.Variant, error) {
	var v models.Variant
	if err := s.db.WithContext(ctx).First(&v, variantID).Error; err != nil {
		return nil, notFound(err, "variant %d", variantID)
	}
	if v.QuestionID != questionID {
		return nil, ErrVariantMismatch
	}
	return &v, nil
}

// GetOrCreateVariant returns the requested variant of q, or creates a new one
// when variantID is nil. An empty seed picks a random one.
func (s *Service) GetOrCreateVariant(ctx context.Context, q *models.Question, variantID *uint, seed string, userID *uint) (*models.Variant, error) {
	if variantID != nil {
		return s.ValidateVariantAgainstQuestion(ctx, *variantID, q.ID)
	}

	if seed == "" {
		seed = strconv.FormatInt(rand.Int64N(1_000_000_000), 10)
	}
	params, err := json.Marshal(map[string]any{"seed": seed, "qid": q.QID})
	if err != nil {
		return nil, err
	}

	v := models.Variant{
		QuestionID:  q.ID,
		Seed:        seed,
		Params:      datatypes.JSON(params),
		AuthnUserID: userID,
	}
	if err := s.db.WithContext(ctx).Omit("Question").Create(&v).Error; err != nil {
		return nil, fmt.Errorf("creating variant: %w", err)
	}
	s.log.Debug("Variant created", zap.Uint("question_id", q.ID), zap.Uint("variant_id", v.ID), zap.String("seed", seed))
	return &v, nil
}

// SubmissionInput is an answer posted from the preview page.
type SubmissionInput struct {
	Action      string
	QuestionID  uint
	VariantID   uint
	Answer      map[string]any
	AuthnUserID *uint
}

// ProcessSubmission stores the answer against its variant. For ActionGrade
// the submission is handed to the grader and its result saved.
func (s *Service) ProcessSubmission(ctx context.Context, in SubmissionInput) (*models.Submission, error) {
	if in.Action != ActionGrade && in.Action != ActionSave {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, in.Action)
	}

	q, err := s.Question(ctx, in.QuestionID)
	if err != nil {
		return nil, err
	}
	v, err := s.ValidateVariantAgainstQuestion(ctx, in.VariantID, in.QuestionID)
	if err != nil {
		return nil, err
	}

	answer, err := json.Marshal(in.Answer)
	if err != nil {
		return nil, fmt.Errorf("encoding submitted answer: %w", err)
	}

	sub := models.Submission{
		VariantID:       v.ID,
		SubmittedAnswer: datatypes.JSON(answer),
		Gradable:        true,
		AuthnUserID:     in.AuthnUserID,
	}
	if in.Action == ActionGrade {
		now := time.Now()
		sub.GradingRequestedAt = &now
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Variant").Create(&sub).Error; err != nil {
			return fmt.Errorf("inserting submission: %w", err)
		}
		if in.Action != ActionGrade {
			return nil
		}
		if err := s.grader.Grade(ctx, q, v, &sub); err != nil {
			return fmt.Errorf("grading submission %d: %w", sub.ID, err)
		}
		return tx.Omit("Variant").Save(&sub).Error
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// IssueInput is a problem report filed from the preview page.
type IssueInput struct {
	QuestionID        uint
	VariantID         uint
	StudentMessage    string
	InstructorMessage string
	ManuallyReported  bool
	CourseCaused      bool
	AuthnUserID       *uint
}

// InsertIssue records an issue against a variant of the question, together
// with a snapshot of the question, variant and course it was filed on.
func (s *Service) InsertIssue(ctx context.Context, in IssueInput) (*models.Issue, error) {
	q, err := s.Question(ctx, in.QuestionID)
	if err != nil {
		return nil, err
	}
	v, err := s.ValidateVariantAgainstQuestion(ctx, in.VariantID, in.QuestionID)
	if err != nil {
		return nil, err
	}

	courseData, err := json.Marshal(map[string]any{
		"question": map[string]any{"id": q.ID, "qid": q.QID, "title": q.Title},
		"variant":  map[string]any{"id": v.ID, "seed": v.Seed},
		"course":   map[string]any{"id": q.Course.ID, "short_name": q.Course.ShortName},
	})
	if err != nil {
		return nil, err
	}

	issue := models.Issue{
		VariantID:         v.ID,
		StudentMessage:    in.StudentMessage,
		InstructorMessage: in.InstructorMessage,
		ManuallyReported:  in.ManuallyReported,
		CourseCaused:      in.CourseCaused,
		CourseData:        datatypes.JSON(courseData),
		SystemData:        datatypes.JSON("{}"),
		AuthnUserID:       in.AuthnUserID,
		Open:              true,
	}
	if err := s.db.WithContext(ctx).Create(&issue).Error; err != nil {
		return nil, fmt.Errorf("inserting issue: %w", err)
	}
	s.log.Info("Issue reported", zap.Uint("issue_id", issue.ID), zap.Uint("variant_id", v.ID), zap.String("qid", q.QID))
	return &issue, nil
}

// LogPageView records a page view.
func (s *Service) LogPageView(ctx context.Context, view models.PageView) error {
	if err := s.db.WithContext(ctx).Create(&view).Error; err != nil {
		return fmt.Errorf("logging page view: %w", err)
	}
	return nil
}

// RenderVariant renders a variant together with its submissions, newest first.
func (s *Service) RenderVariant(ctx context.Context, q *models.Question, v *models.Variant) (*RenderedVariant, error) {
	var subs []models.Submission
	if err := s.db.WithContext(ctx).Where("variant_id = ?", v.ID).Order("id DESC").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("loading submissions: %w", err)
	}
	return s.renderer.RenderVariant(ctx, q, v, subs)
}

// RenderPanelsForSubmission renders one submission of a variant of q.
func (s *Service) RenderPanelsForSubmission(ctx context.Context, questionID, variantID, submissionID uint) (*SubmissionPanels, error) {
	q, err := s.Question(ctx, questionID)
	if err != nil {
		return nil, err
	}
	v, err := s.ValidateVariantAgainstQuestion(ctx, variantID, questionID)
	if err != nil {
		return nil, err
	}

	var sub models.Submission
	if err := s.db.WithContext(ctx).Where("variant_id = ?", v.ID).First(&sub, submissionID).Error; err != nil {
		return nil, notFound(err, "submission %d", submissionID)
	}
	return s.renderer.RenderSubmission(ctx, q, v, &sub)
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
	}
	return err
}
