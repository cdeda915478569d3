package models

import "time"

const (
	AchievementFirstQuiz      = "FIRST_QUIZ"
	AchievementStreak3        = "STREAK_3"
	AchievementStreak7        = "STREAK_7"
	AchievementComeback       = "COMEBACK"
	AchievementSubjectMastery = "SUBJECT_MASTERY"
)

// Achievement is an unlocked key. (user_id, key) is unique so a key can only
// be unlocked once per user.
type Achievement struct {
	ID         uint      `json:"-" gorm:"primaryKey"`
	UserID     uint      `json:"-" gorm:"not null;uniqueIndex:idx_user_achievement"`
	Key        string    `json:"key" gorm:"not null;size:64;uniqueIndex:idx_user_achievement"`
	UnlockedAt time.Time `json:"unlockedAt" gorm:"not null"`
}

func (Achievement) TableName() string {
	return "user_achievements"
}

type AchievementInfo struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// AchievementCatalog lists every unlockable key in display order.
var AchievementCatalog = []AchievementInfo{
	{AchievementFirstQuiz, "First Steps", "Complete your first quiz"},
	{AchievementStreak3, "On a Roll", "Keep a 3-day streak"},
	{AchievementStreak7, "Unstoppable", "Keep a 7-day streak"},
	{AchievementComeback, "Comeback", "Beat your previous score in a subject by 20 points"},
	{AchievementSubjectMastery, "Subject Master", "Average 80% over at least 3 quizzes in one subject"},
}
