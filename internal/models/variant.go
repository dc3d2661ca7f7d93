package models

import (
	"time"

	"gorm.io/datatypes"
)

// Variant is one randomized instance of a question, identified by its seed.
type Variant struct {
	ID          uint   `gorm:"primaryKey"`
	QuestionID  uint   `gorm:"not null;index"`
	Seed        string `gorm:"size:64;not null"`
	Params      datatypes.JSON
	AuthnUserID *uint
	CreatedAt   time.Time

	Question Question `gorm:"foreignKey:QuestionID"`
}

// Submission is an answer submitted against a variant. Score stays nil until
// the grader has produced a result.
type Submission struct {
	ID                 uint `gorm:"primaryKey"`
	VariantID          uint `gorm:"not null;index"`
	SubmittedAnswer    datatypes.JSON
	Gradable           bool `gorm:"not null"`
	Score              *float64
	Feedback           datatypes.JSON
	GradingRequestedAt *time.Time
	GradedAt           *time.Time
	AuthnUserID        *uint
	CreatedAt          time.Time

	Variant Variant `gorm:"foreignKey:VariantID"`
}

// Issue is a problem report attached to a variant.
type Issue struct {
	ID                uint `gorm:"primaryKey"`
	VariantID         uint `gorm:"not null;index"`
	StudentMessage    string
	InstructorMessage string
	ManuallyReported  bool
	CourseCaused      bool
	CourseData        datatypes.JSON
	SystemData        datatypes.JSON
	AuthnUserID       *uint
	Open              bool `gorm:"not null"`
	CreatedAt         time.Time
}

// PageView records that a user looked at a page.
type PageView struct {
	ID         uint   `gorm:"primaryKey"`
	PageType   string `gorm:"size:100;not null;index"`
	Path       string `gorm:"size:1024"`
	QuestionID *uint
	VariantID  *uint
	UserID     *uint
	CreatedAt  time.Time
}
