package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	LevelClass11 = "Class 11"
	LevelClass12 = "Class 12"

	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

type Question struct {
	ID                 uint           `json:"id" gorm:"primaryKey"`
	Level              string         `json:"level" gorm:"not null;index:idx_question_bank"`
	Subject            string         `json:"subject" gorm:"not null;index:idx_question_bank"`
	Topic              string         `json:"topic"`
	Text               string         `json:"questionText" gorm:"not null"`
	Options            pq.StringArray `json:"options" gorm:"type:text[];not null"`
	CorrectOptionIndex int            `json:"-" gorm:"not null"`
	Difficulty         string         `json:"difficulty" gorm:"not null;default:'medium'"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	DeletedAt          gorm.DeletedAt `json:"-" gorm:"index"`
}

// IsValidLevel reports whether level is one of the supported class levels.
func IsValidLevel(level string) bool {
	return level == LevelClass11 || level == LevelClass12
}

// NormalizeDifficulty lower-cases d and maps unknown values to medium.
func NormalizeDifficulty(d string) string {
	switch d = strings.ToLower(strings.TrimSpace(d)); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d
	}
	return DifficultyMedium
}
