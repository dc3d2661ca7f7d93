package models

import "time"

// Tag is a named, ranked label in a course's tag catalog. Number is the
// 1-based position of the tag in infoCourse.json.
type Tag struct {
	ID          uint   `gorm:"primaryKey"`
	CourseID    uint   `gorm:"not null;uniqueIndex:idx_tags_course_name,priority:1"`
	Name        string `gorm:"size:255;not null;uniqueIndex:idx_tags_course_name,priority:2"`
	Number      int    `gorm:"not null"`
	Color       string `gorm:"size:100"`
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Course Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE;"`
}

// QuestionTag attaches a tag to a question. Number is the 1-based position of
// the tag in the question's info.json tag list.
type QuestionTag struct {
	ID         uint `gorm:"primaryKey"`
	QuestionID uint `gorm:"not null;uniqueIndex:idx_question_tags_question_tag,priority:1"`
	TagID      uint `gorm:"not null;uniqueIndex:idx_question_tags_question_tag,priority:2;index"`
	Number     int  `gorm:"not null"`

	Tag Tag `gorm:"foreignKey:TagID;constraint:OnDelete:CASCADE;"`
}
