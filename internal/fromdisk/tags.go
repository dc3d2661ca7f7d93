package fromdisk

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"prairielearn/backend/internal/coursedb"
	"prairielearn/backend/internal/models"
	"prairielearn/backend/internal/telemetry"
)

var tagsTable = rankedTable{
	name:        "tags",
	scopeColumn: "course_id",
	keyColumns:  []string{"course_id", "name"},
	updates:     []string{"number", "color", "description", "updated_at"},
}

var questionTagsTable = rankedTable{
	name:        "question_tags",
	scopeColumn: "question_id",
	keyColumns:  []string{"question_id", "tag_id"},
	updates:     []string{"number"},
}

// QuestionRef is a synced question and the tag names from its info file.
type QuestionRef struct {
	ID   uint
	QID  string
	Tags []string
}

// SyncTags makes the course's tags match the catalog: tag i gets number i+1,
// existing tags keep their id and tags no longer listed are deleted. It
// returns the id of every tag by name.
func SyncTags(ctx context.Context, db *gorm.DB, courseID uint, tags []coursedb.Tag) (map[string]uint, error) {
	owner := fmt.Sprintf("course %d", courseID)

	rows := make([]models.Tag, len(tags))
	positions := make(map[string]int, len(tags))
	for i, tag := range tags {
		if tag.Name == "" {
			return nil, fmt.Errorf("%s: tag at position %d has no name", owner, i+1)
		}
		if first, ok := positions[tag.Name]; ok {
			return nil, &DuplicateNameError{Owner: owner, Name: tag.Name, First: first, Second: i + 1}
		}
		positions[tag.Name] = i + 1
		rows[i] = models.Tag{
			CourseID:    courseID,
			Name:        tag.Name,
			Number:      i + 1,
			Color:       tag.Color,
			Description: tag.Description,
		}
	}

	return telemetry.Instrumented(ctx, "sync.tags", func(ctx context.Context, span trace.Span) (map[string]uint, error) {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := lockScope(tx, fmt.Sprintf("tags:%d", courseID)); err != nil {
				return &StoreError{Owner: owner, Table: tagsTable.name, Op: "lock", Err: err}
			}
			_, err := reconcile(ctx, tx, tagsTable, owner, courseID, rows,
				func(t *models.Tag) string { return t.Name },
				func(t *models.Tag) uint { return t.ID })
			return err
		})
		if err != nil {
			return nil, err
		}

		ids := make(map[string]uint, len(rows))
		for _, row := range rows {
			ids[row.Name] = row.ID
		}
		return ids, nil
	}, telemetry.CourseID(courseID))
}

// SyncQuestionTags reconciles every question's tag list against tagIDs, the
// result of SyncTags for the same course. Each question is reconciled in its
// own transaction; a failing question is rolled back and reported while the
// remaining questions are still synced. All failures are returned together.
func SyncQuestionTags(ctx context.Context, db *gorm.DB, questions []QuestionRef, tagIDs map[string]uint) error {
	var result *multierror.Error
	for _, q := range questions {
		if err := ctx.Err(); err != nil {
			result = multierror.Append(result, err)
			break
		}
		if err := syncQuestionTags(ctx, db, q, tagIDs); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func syncQuestionTags(ctx context.Context, db *gorm.DB, q QuestionRef, tagIDs map[string]uint) error {
	owner := "question " + q.QID

	rows := make([]models.QuestionTag, len(q.Tags))
	positions := make(map[string]int, len(q.Tags))
	for i, name := range q.Tags {
		if first, ok := positions[name]; ok {
			return &DuplicateNameError{Owner: owner, Name: name, First: first, Second: i + 1}
		}
		positions[name] = i + 1

		tagID, ok := tagIDs[name]
		if !ok {
			return &UnknownReferenceError{Owner: owner, Name: name, Rank: i + 1}
		}
		rows[i] = models.QuestionTag{QuestionID: q.ID, TagID: tagID, Number: i + 1}
	}

	names := make(map[uint]string, len(rows))
	for _, row := range rows {
		names[row.TagID] = q.Tags[row.Number-1]
	}

	_, err := telemetry.Instrumented(ctx, "sync.question_tags", func(ctx context.Context, span trace.Span) (struct{}, error) {
		return struct{}{}, db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := lockScope(tx, fmt.Sprintf("question_tags:%d", q.ID)); err != nil {
				return &StoreError{Owner: owner, Table: questionTagsTable.name, Op: "lock", Err: err}
			}
			_, err := reconcile(ctx, tx, questionTagsTable, owner, q.ID, rows,
				func(qt *models.QuestionTag) string { return names[qt.TagID] },
				func(qt *models.QuestionTag) uint { return qt.ID })
			return err
		})
	}, telemetry.QuestionQID(q.QID))
	return err
}
