package question

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"prairielearn/backend/internal/database/databasetest"
	"prairielearn/backend/internal/models"
)

type fixture struct {
	db       *gorm.DB
	svc      *Service
	question *models.Question
	other    *models.Question
}

func newFixture(t *testing.T, grader Grader) *fixture {
	t.Helper()
	db := databasetest.Open(t)

	course := models.Course{ShortName: "TAM 212", Path: "/courses/tam212"}
	require.NoError(t, db.Create(&course).Error)
	tag := models.Tag{CourseID: course.ID, Name: "easy", Number: 1, Color: "green1"}
	require.NoError(t, db.Omit("Course").Create(&tag).Error)

	q := models.Question{CourseID: course.ID, QID: "addNumbers", Title: "Add <two> numbers"}
	other := models.Question{CourseID: course.ID, QID: "pulley", Title: "Pulley"}
	require.NoError(t, db.Omit("Course", "Tags").Create(&q).Error)
	require.NoError(t, db.Omit("Course", "Tags").Create(&other).Error)
	require.NoError(t, db.Omit("Tag").Create(&models.QuestionTag{QuestionID: q.ID, TagID: tag.ID, Number: 1}).Error)

	svc := NewService(db, nil, grader, zap.NewNop())
	loaded, err := svc.Question(context.Background(), q.ID)
	require.NoError(t, err)

	return &fixture{db: db, svc: svc, question: loaded, other: &other}
}

type fixedGrader struct {
	score float64
	err   error
}

func (g fixedGrader) Grade(_ context.Context, _ *models.Question, _ *models.Variant, sub *models.Submission) error {
	if g.err != nil {
		return g.err
	}
	sub.Score = &g.score
	return nil
}

func TestQuestion(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, "TAM 212", f.question.Course.ShortName)
	require.Len(t, f.question.Tags, 1)
	assert.Equal(t, "easy", f.question.Tags[0].Tag.Name)

	_, err := f.svc.Question(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetOrCreateVariant(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	seeded, err := f.svc.GetOrCreateVariant(ctx, f.question, nil, "1234", nil)
	require.NoError(t, err)
	assert.Equal(t, "1234", seeded.Seed)
	assert.Equal(t, f.question.ID, seeded.QuestionID)

	var params map[string]any
	require.NoError(t, json.Unmarshal(seeded.Params, &params))
	assert.Equal(t, "1234", params["seed"])

	random, err := f.svc.GetOrCreateVariant(ctx, f.question, nil, "", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, random.Seed)
	assert.NotEqual(t, seeded.ID, random.ID)

	existing, err := f.svc.GetOrCreateVariant(ctx, f.question, &seeded.ID, "ignored", nil)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, existing.ID)
	assert.Equal(t, "1234", existing.Seed)

	_, err = f.svc.GetOrCreateVariant(ctx, f.other, &seeded.ID, "", nil)
	assert.ErrorIs(t, err, ErrVariantMismatch)

	missing := uint(424242)
	_, err = f.svc.GetOrCreateVariant(ctx, f.question, &missing, "", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProcessSubmission(t *testing.T) {
	ctx := context.Background()

	t.Run("save does not grade", func(t *testing.T) {
		f := newFixture(t, fixedGrader{score: 1})
		v, err := f.svc.GetOrCreateVariant(ctx, f.question, nil, "1", nil)
		require.NoError(t, err)

		sub, err := f.svc.ProcessSubmission(ctx, SubmissionInput{
			Action:     ActionSave,
			QuestionID: f.question.ID,
			VariantID:  v.ID,
			Answer:     map[string]any{"c": 3},
		})
		require.NoError(t, err)
		assert.Nil(t, sub.Score)
		assert.Nil(t, sub.GradingRequestedAt)
		assert.JSONEq(t, `{"c": 3}`, string(sub.SubmittedAnswer))
	})

	t.Run("grade stores the score", func(t *testing.T) {
		f := newFixture(t, fixedGrader{score: 0.5})
		v, err := f.svc.GetOrCreateVariant(ctx, f.question, nil, "1", nil)
		require.NoError(t, err)

		sub, err := f.svc.ProcessSubmission(ctx, SubmissionInput{
			Action:     ActionGrade,
			QuestionID: f.question.ID,
			VariantID:  v.ID,
			Answer:     map[string]any{"c": 3},
		})
		require.NoError(t, err)
		require.NotNil(t, sub.GradingRequestedAt)

		var stored models.Submission
		require.NoError(t, f.db.First(&stored, sub.ID).Error)
		require.NotNil(t, stored.Score)
		assert.Equal(t, 0.5, *stored.Score)
	})

	t.Run("grader failure rolls back", func(t *testing.T) {
		f := newFixture(t, fixedGrader{err: errors.New("grader offline")})
		v, err := f.svc.GetOrCreateVariant(ctx, f.question, nil, "1", nil)
		require.NoError(t, err)

		_, err = f.svc.ProcessSubmission(ctx, SubmissionInput{Action: ActionGrade, QuestionID: f.question.ID, VariantID: v.ID})
		assert.ErrorContains(t, err, "grader offline")

		var count int64
		require.NoError(t, f.db.Model(&models.Submission{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("rejects foreign variant and unknown action", func(t *testing.T) {
		f := newFixture(t, nil)
		v, err := f.svc.GetOrCreateVariant(ctx, f.other, nil, "1", nil)
		require.NoError(t, err)

		_, err = f.svc.ProcessSubmission(ctx, SubmissionInput{Action: ActionSave, QuestionID: f.question.ID, VariantID: v.ID})
		assert.ErrorIs(t, err, ErrVariantMismatch)

		_, err = f.svc.ProcessSubmission(ctx, SubmissionInput{Action: "explode", QuestionID: f.question.ID, VariantID: v.ID})
		assert.ErrorIs(t, err, ErrUnknownAction)
	})
}

func TestInsertIssue(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	v, err := f.svc.GetOrCreateVariant(ctx, f.question, nil, "77", nil)
	require.NoError(t, err)

	userID := uint(5)
	issue, err := f.svc.InsertIssue(ctx, IssueInput{
		QuestionID:        f.question.ID,
		VariantID:         v.ID,
		StudentMessage:    "answer key is wrong",
		InstructorMessage: "instructor-reported issue",
		ManuallyReported:  true,
		CourseCaused:      true,
		AuthnUserID:       &userID,
	})
	require.NoError(t, err)

	var stored models.Issue
	require.NoError(t, f.db.First(&stored, issue.ID).Error)
	assert.Equal(t, "answer key is wrong", stored.StudentMessage)
	assert.True(t, stored.ManuallyReported)
	assert.True(t, stored.CourseCaused)
	assert.True(t, stored.Open)
	assert.Equal(t, &userID, stored.AuthnUserID)

	var data map[string]map[string]any
	require.NoError(t, json.Unmarshal(stored.CourseData, &data))
	assert.Equal(t, "addNumbers", data["question"]["qid"])
	assert.Equal(t, "77", data["variant"]["seed"])
	assert.Equal(t, "TAM 212", data["course"]["short_name"])
}

func TestRender(t *testing.T) {
	f := newFixture(t, fixedGrader{score: 1})
	ctx := context.Background()
	v, err := f.svc.GetOrCreateVariant(ctx, f.question, nil, "99", nil)
	require.NoError(t, err)

	sub, err := f.svc.ProcessSubmission(ctx, SubmissionInput{Action: ActionGrade, QuestionID: f.question.ID, VariantID: v.ID, Answer: map[string]any{"x": 1}})
	require.NoError(t, err)

	rendered, err := f.svc.RenderVariant(ctx, f.question, v)
	require.NoError(t, err)
	assert.Contains(t, rendered.QuestionHTML, "Add &lt;two&gt; numbers")
	assert.Contains(t, rendered.QuestionHTML, `class="badge color-green1"`)
	assert.Contains(t, rendered.QuestionHTML, "Variant seed: 99")
	require.Len(t, rendered.Submissions, 1)

	panels, err := f.svc.RenderPanelsForSubmission(ctx, f.question.ID, v.ID, sub.ID)
	require.NoError(t, err)
	assert.Contains(t, panels.SubmissionPanel, "Score: 1")

	_, err = f.svc.RenderPanelsForSubmission(ctx, f.question.ID, v.ID, sub.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.RenderPanelsForSubmission(ctx, f.other.ID, v.ID, sub.ID)
	assert.ErrorIs(t, err, ErrVariantMismatch)
}

func TestLogPageView(t *testing.T) {
	f := newFixture(t, nil)
	qid := f.question.ID

	require.NoError(t, f.svc.LogPageView(context.Background(), models.PageView{
		PageType:   "instructorQuestionPreview",
		Path:       "/api/v1/questions/1/preview",
		QuestionID: &qid,
	}))

	var views []models.PageView
	require.NoError(t, f.db.Find(&views).Error)
	require.Len(t, views, 1)
	assert.Equal(t, "instructorQuestionPreview", views[0].PageType)
}
