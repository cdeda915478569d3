package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AIQuizSession holds generated questions together with their answers. The
// answers never leave the server; IsSubmitted flips exactly once.
type AIQuizSession struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	UserID         uint           `json:"userId" gorm:"not null;index"`
	Level          string         `json:"level" gorm:"not null"`
	Subject        string         `json:"subject" gorm:"not null"`
	RequestedCount int            `json:"requestedCount" gorm:"not null"`
	Questions      datatypes.JSON `json:"-" gorm:"not null"`
	Fallback       bool           `json:"fallback" gorm:"not null;default:false"`
	IsSubmitted    bool           `json:"isSubmitted" gorm:"not null;default:false"`
	SubmittedAt    *time.Time     `json:"submittedAt"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// AIQuestion is a generated (or bank-snapshotted) question kept inside a session.
type AIQuestion struct {
	QID                string   `json:"qid"`
	QuestionText       string   `json:"questionText"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex"`
	Topic              string   `json:"topic"`
	Difficulty         string   `json:"difficulty"`
	Explanation        string   `json:"explanation"`
	BankQuestionID     *uint    `json:"bankQuestionId,omitempty"`
}

func (s *AIQuizSession) DecodeQuestions() ([]AIQuestion, error) {
	var qs []AIQuestion
	if len(s.Questions) == 0 {
		return qs, nil
	}
	if err := json.Unmarshal(s.Questions, &qs); err != nil {
		return nil, err
	}
	return qs, nil
}

func (s *AIQuizSession) SetQuestions(qs []AIQuestion) error {
	data, err := json.Marshal(qs)
	if err != nil {
		return err
	}
	s.Questions = datatypes.JSON(data)
	return nil
}
