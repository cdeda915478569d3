package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SourceBank = "BANK"
	SourceAI   = "AI"
)

// QuizAttempt is written once per submission and never updated.
// CorrectCount + IncorrectCount == TotalQuestions.
type QuizAttempt struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	UserID          uint       `json:"userId" gorm:"not null;index:idx_attempt_user_subject"`
	Level           string     `json:"level" gorm:"not null"`
	Subject         string     `json:"subject" gorm:"not null;index:idx_attempt_user_subject"`
	Topic           string     `json:"topic"`
	Source          string     `json:"source" gorm:"not null;default:'BANK'"`
	ScorePercentage int        `json:"scorePercentage" gorm:"not null"`
	TotalQuestions  int        `json:"totalQuestions" gorm:"not null"`
	CorrectCount    int        `json:"correctCount" gorm:"not null"`
	IncorrectCount  int        `json:"incorrectCount" gorm:"not null"`
	AIQuizSessionID *uuid.UUID `json:"aiQuizSessionId,omitempty" gorm:"type:uuid"`
	CreatedAt       time.Time  `json:"createdAt" gorm:"index"`

	// Relationships
	Answers []AttemptAnswer `json:"answers,omitempty" gorm:"foreignKey:AttemptID;constraint:OnDelete:CASCADE"`
}

// AttemptAnswer is one graded answer inside an attempt. AI-sourced answers
// carry an AISnapshot; their QuestionID is nil unless the session was drawn
// from the bank.
type AttemptAnswer struct {
	ID                  uint           `json:"-" gorm:"primaryKey"`
	AttemptID           uint           `json:"-" gorm:"not null;index"`
	Position            int            `json:"position" gorm:"not null"`
	QuestionID          *uint          `json:"questionId" gorm:"index"`
	SelectedOptionIndex int            `json:"selectedOptionIndex" gorm:"not null"`
	IsCorrect           bool           `json:"isCorrect" gorm:"not null"`
	Source              string         `json:"source" gorm:"not null"`
	AISnapshot          datatypes.JSON `json:"aiSnapshot,omitempty"`
}
