package fromdisk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"prairielearn/backend/internal/coursedb"
	"prairielearn/backend/internal/hub"
	"prairielearn/backend/internal/models"
	"prairielearn/backend/internal/telemetry"
)

// Result summarizes one course sync.
type Result struct {
	RunID          string          `json:"run_id"`
	CourseID       uint            `json:"course_id"`
	CourseName     string          `json:"course_name"`
	TagIDs         map[string]uint `json:"tag_ids"`
	QuestionIDs    map[string]uint `json:"question_ids"`
	QuestionErrors []string        `json:"question_errors,omitempty"`
	Duration       time.Duration   `json:"duration"`
}

// Syncer writes courses loaded from disk into the database.
type Syncer struct {
	db    *gorm.DB
	log   *zap.Logger
	hub   *hub.Hub
	locks *scopeLocks
}

// NewSyncer returns a Syncer. The hub may be nil.
func NewSyncer(db *gorm.DB, log *zap.Logger, h *hub.Hub) *Syncer {
	return &Syncer{db: db, log: log, hub: h, locks: newScopeLocks()}
}

// SyncCourse syncs the course row, its tag catalog, its questions and every
// question's tags, in that order. Only one sync per course runs at a time.
//
// Failures confined to single questions do not abort the sync: the returned
// Result is complete for every other question and the error lists the
// failing ones. Any other error aborts the sync and the Result is nil.
func (s *Syncer) SyncCourse(ctx context.Context, course *coursedb.Course) (*Result, error) {
	release, err := s.locks.acquire(ctx, course.Name)
	if err != nil {
		return nil, fmt.Errorf("waiting for sync of course %s: %w", course.Name, err)
	}
	defer release()

	runID := uuid.NewString()
	log := s.log.With(zap.String("course", course.Name), zap.String("run_id", runID))
	start := time.Now()

	var questionErr error
	result, err := telemetry.Instrumented(ctx, "sync.course", func(ctx context.Context, span trace.Span) (*Result, error) {
		courseID, err := s.upsertCourse(ctx, course)
		if err != nil {
			return nil, err
		}
		span.SetAttributes(telemetry.CourseID(courseID))
		s.publish(courseID, hub.Event{Type: hub.EventSyncStarted, RunID: runID, Payload: course.Name})

		tagIDs, err := SyncTags(ctx, s.db, courseID, course.Tags)
		if err != nil {
			s.publish(courseID, hub.Event{Type: hub.EventSyncFailed, RunID: runID, Payload: err.Error()})
			return nil, fmt.Errorf("syncing tags: %w", err)
		}
		log.Debug("Tags synced", zap.Int("tags", len(tagIDs)))
		s.publish(courseID, hub.Event{Type: hub.EventTagsSynced, RunID: runID, Payload: tagIDs})

		questionIDs, err := syncQuestions(ctx, s.db, courseID, course.Questions)
		if err != nil {
			s.publish(courseID, hub.Event{Type: hub.EventSyncFailed, RunID: runID, Payload: err.Error()})
			return nil, fmt.Errorf("syncing questions: %w", err)
		}

		refs := make([]QuestionRef, len(course.Questions))
		for i, q := range course.Questions {
			refs[i] = QuestionRef{ID: questionIDs[q.QID], QID: q.QID, Tags: q.Tags}
		}

		res := &Result{
			RunID:       runID,
			CourseID:    courseID,
			CourseName:  course.Name,
			TagIDs:      tagIDs,
			QuestionIDs: questionIDs,
		}

		questionErr = SyncQuestionTags(ctx, s.db, refs, tagIDs)
		var merr *multierror.Error
		if errors.As(questionErr, &merr) {
			for _, qerr := range merr.Errors {
				log.Warn("Question tags not synced", zap.Error(qerr))
				res.QuestionErrors = append(res.QuestionErrors, qerr.Error())
				s.publish(courseID, hub.Event{Type: hub.EventQuestionError, RunID: runID, Payload: qerr.Error()})
			}
		}

		now := time.Now()
		if err := s.db.WithContext(ctx).Model(&models.Course{}).Where("id = ?", courseID).Update("synced_at", &now).Error; err != nil {
			return nil, fmt.Errorf("marking course synced: %w", err)
		}

		res.Duration = time.Since(start)
		s.publish(courseID, hub.Event{Type: hub.EventSyncFinished, RunID: runID, Payload: res})
		return res, nil
	}, telemetry.CoursePath(course.Path), telemetry.SyncRunID(runID))

	telemetry.Histogram("sync.course.duration").Record(ctx, time.Since(start).Seconds())
	if err != nil {
		log.Error("Course sync failed", zap.Error(err))
		return nil, fmt.Errorf("course %s: %w", course.Name, err)
	}

	log.Info("Course synced",
		zap.Uint("course_id", result.CourseID),
		zap.Int("tags", len(result.TagIDs)),
		zap.Int("questions", len(result.QuestionIDs)),
		zap.Int("question_errors", len(result.QuestionErrors)),
		zap.Duration("duration", result.Duration))

	if questionErr != nil {
		return result, fmt.Errorf("course %s: %w", course.Name, questionErr)
	}
	return result, nil
}

func (s *Syncer) publish(courseID uint, event hub.Event) {
	s.hub.Broadcast(courseID, event)
}

func (s *Syncer) upsertCourse(ctx context.Context, course *coursedb.Course) (uint, error) {
	row := models.Course{
		ShortName: course.Name,
		Title:     course.Title,
		UUID:      course.UUID,
		Path:      course.Path,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "short_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "uuid", "path", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return 0, &StoreError{Owner: "course " + course.Name, Table: "courses", Op: "upsert", Name: course.Name, Rank: 1, Err: err}
	}
	return row.ID, nil
}

// syncQuestions upserts the course's questions by qid, restoring any that had
// been soft-deleted, and soft-deletes questions missing from disk.
func syncQuestions(ctx context.Context, db *gorm.DB, courseID uint, questions []coursedb.Question) (map[string]uint, error) {
	owner := fmt.Sprintf("course %d", courseID)
	ids := make(map[string]uint, len(questions))

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScope(tx, fmt.Sprintf("questions:%d", courseID)); err != nil {
			return &StoreError{Owner: owner, Table: "questions", Op: "lock", Err: err}
		}

		upsert := clause.OnConflict{
			Columns:   []clause.Column{{Name: "course_id"}, {Name: "qid"}},
			DoUpdates: clause.AssignmentColumns([]string{"uuid", "title", "topic", "type", "updated_at", "deleted_at"}),
		}

		qids := make([]string, 0, len(questions))
		for i, q := range questions {
			row := models.Question{
				CourseID: courseID,
				QID:      q.QID,
				UUID:     q.UUID,
				Title:    q.Title,
				Topic:    q.Topic,
				Type:     q.Type,
			}
			if err := tx.Omit(clause.Associations).Clauses(upsert).Create(&row).Error; err != nil {
				return &StoreError{Owner: owner, Table: "questions", Op: "upsert", Name: q.QID, Rank: i + 1, Err: err}
			}
			ids[q.QID] = row.ID
			qids = append(qids, q.QID)
		}

		// Soft delete keeps the question_tags rows; they are reconciled again
		// if the question returns, and readers skip them via deleted_at.
		del := tx.Where("course_id = ?", courseID)
		if len(qids) > 0 {
			del = del.Where("qid NOT IN ?", qids)
		}
		if err := del.Delete(&models.Question{}).Error; err != nil {
			return &StoreError{Owner: owner, Table: "questions", Op: "delete", Rank: len(qids), Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
