package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	Name         string         `json:"name" gorm:"not null"`
	Email        string         `json:"email" gorm:"uniqueIndex;not null"`
	Password     string         `json:"-" gorm:"not null"`
	StudentID    string         `json:"studentId" gorm:"uniqueIndex"`
	Level        *string        `json:"level"` // class level: "Class 11" | "Class 12"
	ProfileImage *string        `json:"profileImage"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`

	// Gamification
	Points         int        `json:"points" gorm:"not null;default:0"`
	Streak         int        `json:"streak" gorm:"not null;default:0"`
	LastActiveDate *time.Time `json:"lastActiveDate"`
	StreakSave     StreakSave `json:"streakSave" gorm:"embedded;embeddedPrefix:streak_save_"`

	// Onboarding
	OnboardingCompleted bool                `json:"onboardingCompleted" gorm:"not null;default:false"`
	AcademicProfile     AcademicProfile     `json:"academicProfile" gorm:"embedded;embeddedPrefix:academic_"`
	LearningPreferences LearningPreferences `json:"learningPreferences" gorm:"embedded;embeddedPrefix:pref_"`

	// Signals consumed by the prediction service
	Grade11Percentage     float64       `json:"grade11Percentage" gorm:"not null;default:70"`
	AttendanceRate        float64       `json:"attendanceRate" gorm:"not null;default:80"`
	StudyHoursPerDay      float64       `json:"studyHoursPerDay" gorm:"not null;default:4"`
	PreferredLearningTime string        `json:"preferredLearningTime" gorm:"not null;default:'Morning'"`
	LearningStyle         string        `json:"learningStyle" gorm:"not null;default:'Visual'"`
	MotivationLevel       string        `json:"motivationLevel" gorm:"not null;default:'Medium'"`
	ExamAnxietyLevel      string        `json:"examAnxietyLevel" gorm:"not null;default:'Medium'"`
	AIPredictions         AIPredictions `json:"aiPredictions" gorm:"embedded;embeddedPrefix:ai_"`

	// Relationships
	Achievements []Achievement `json:"achievements,omitempty" gorm:"foreignKey:UserID"`
}

type StreakSave struct {
	LastUsedAt *time.Time `json:"lastUsedAt"`
	TotalUsed  int        `json:"totalUsed" gorm:"not null;default:0"`
}

type AcademicProfile struct {
	Grade         *string `json:"grade"`   // "11" | "12"
	Faculty       *string `json:"faculty"` // Science | Management | Humanities
	ScienceStream *string `json:"scienceStream"`
	Board         string  `json:"board" gorm:"default:'NEB'"`
	SchoolName    string  `json:"schoolName"`
}

type LearningPreferences struct {
	StudyPreference *string `json:"studyPreference"`
	StudyTime       *string `json:"studyTime"`
	Challenge       *string `json:"challenge"`
}

type AIPredictions struct {
	PredictedGrade12 *float64   `json:"predictedGrade12"`
	RiskLevel        *string    `json:"riskLevel"`
	LastUpdated      *time.Time `json:"lastUpdated"`
}

const pointsPerGameLevel = 500

// ApplySignalDefaults sets the starting prediction signals of a new account.
func (u *User) ApplySignalDefaults() {
	u.Grade11Percentage = 70
	u.AttendanceRate = 80
	u.StudyHoursPerDay = 4
	u.PreferredLearningTime = "Morning"
	u.LearningStyle = "Visual"
	u.MotivationLevel = "Medium"
	u.ExamAnxietyLevel = "Medium"
	u.AcademicProfile.Board = "NEB"
}

// GameLevel is derived from points and never stored.
func (u *User) GameLevel() int {
	return u.Points/pointsPerGameLevel + 1
}

// ProgressToNextLevel is the percentage (0-100) through the current game level.
func (u *User) ProgressToNextLevel() int {
	return (u.Points % pointsPerGameLevel) / 5
}

// PointsToNextLevel is how many points remain until the next game level.
func (u *User) PointsToNextLevel() int {
	return u.GameLevel()*pointsPerGameLevel - u.Points
}

// HasAchievement reports whether key is already unlocked.
func (u *User) HasAchievement(key string) bool {
	for _, a := range u.Achievements {
		if a.Key == key {
			return true
		}
	}
	return false
}

// StringValue dereferences an optional string column.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr returns nil for blank strings so optional columns stay NULL.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
