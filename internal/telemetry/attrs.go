package telemetry

import "go.opentelemetry.io/otel/attribute"

// These helpers name the span and metric attributes used across the backend
// so that every caller spells them the same way.

// CourseID identifies the course a span or measurement belongs to.
func CourseID(id uint) attribute.KeyValue {
	return attribute.Int64("pl.course.id", int64(id))
}

// CoursePath is the on-disk directory of a course.
func CoursePath(path string) attribute.KeyValue {
	return attribute.String("pl.course.path", path)
}

// QuestionQID is a question's directory name within its course.
func QuestionQID(qid string) attribute.KeyValue {
	return attribute.String("pl.question.qid", qid)
}

// SyncRunID ties together everything done by one sync run.
func SyncRunID(id string) attribute.KeyValue {
	return attribute.String("pl.sync.run_id", id)
}

// Table is the database table a reconciliation writes to.
func Table(name string) attribute.KeyValue {
	return attribute.String("pl.db.table", name)
}
