package models

import (
	"time"

	"gorm.io/gorm"
)

// Course is a course synced from a directory on disk.
type Course struct {
	ID        uint   `gorm:"primaryKey"`
	ShortName string `gorm:"size:255;unique;not null"`
	Title     string `gorm:"size:512"`
	UUID      string `gorm:"size:64"`
	Path      string `gorm:"size:1024;not null"`
	SyncedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	Tags []Tag `gorm:"foreignKey:CourseID"`
}

// Question is a question definition inside a course. Questions removed from
// disk are soft-deleted so that their variants and submissions survive.
type Question struct {
	ID        uint   `gorm:"primaryKey"`
	CourseID  uint   `gorm:"not null;uniqueIndex:idx_questions_course_qid,priority:1"`
	QID       string `gorm:"column:qid;size:512;not null;uniqueIndex:idx_questions_course_qid,priority:2"`
	UUID      string `gorm:"size:64"`
	Title     string
	Topic     string `gorm:"size:255"`
	Type      string `gorm:"size:50"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`

	Course Course        `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE;"`
	Tags   []QuestionTag `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE;"`
}
