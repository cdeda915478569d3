package services

import (
	"time"

	"learnloop/models"
)

const (
	streakSaveGapDays       = 2
	streakSaveQuestionCount = 5
	comebackDelta           = 20
	masteryMinAttempts      = 3
	masteryAverage          = 80
	masteryWindow           = 50
)

// PointsForScore maps a score percentage to the points it earns.
func PointsForScore(scorePercentage int) int {
	switch {
	case scorePercentage >= 80:
		return 20
	case scorePercentage >= 60:
		return 10
	default:
		return 5
	}
}

// DaysBetween counts calendar days from `from` to `to`, both taken as dates
// in to's location.
func DaysBetween(from, to time.Time) int {
	loc := to.Location()
	from = from.In(loc)
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// NextStreak returns the streak after an attempt of totalQuestions questions
// made at now, and whether the one-day streak save was spent.
func NextStreak(current int, lastActive *time.Time, now time.Time, totalQuestions int) (int, bool) {
	if lastActive == nil {
		return 1, false
	}

	daysSince := DaysBetween(*lastActive, now)
	switch {
	case daysSince <= 0:
		// Already active today. A lastActive in the future is clock skew and
		// counts as today too.
		return max(current, 1), false
	case daysSince == 1:
		return current + 1, false
	case daysSince == streakSaveGapDays && current > 0 && totalQuestions == streakSaveQuestionCount:
		return current + 1, true
	default:
		return 1, false
	}
}

// AttemptHistory is what the achievement rules need to know about the
// attempts recorded so far, the one being evaluated included.
type AttemptHistory struct {
	TotalAttempts int64
	// SubjectScores holds the most recent scores in the attempt's subject,
	// newest first, starting with the attempt being evaluated.
	SubjectScores []int
}

type GamificationResult struct {
	PointsEarned   int                  `json:"pointsEarned"`
	NewTotalPoints int                  `json:"newTotalPoints"`
	NewStreak      int                  `json:"newStreak"`
	StreakSaved    bool                 `json:"streakSaved"`
	Unlocked       []models.Achievement `json:"unlockedAchievements"`
}

// ApplyAttempt updates user's points, streak and achievements in memory for
// an attempt scored at scorePercentage over totalQuestions questions. Keys the
// user already holds are never unlocked again.
func ApplyAttempt(user *models.User, scorePercentage, totalQuestions int, history AttemptHistory, now time.Time) GamificationResult {
	result := GamificationResult{
		PointsEarned: PointsForScore(scorePercentage),
		Unlocked:     []models.Achievement{},
	}

	user.Points += result.PointsEarned

	streak, saved := NextStreak(user.Streak, user.LastActiveDate, now, totalQuestions)
	user.Streak = streak
	if saved {
		usedAt := now
		user.StreakSave.LastUsedAt = &usedAt
		user.StreakSave.TotalUsed++
	}
	lastActive := now
	user.LastActiveDate = &lastActive

	for _, key := range unlockedKeys(user.Streak, scorePercentage, history) {
		if user.HasAchievement(key) {
			continue
		}
		a := models.Achievement{UserID: user.ID, Key: key, UnlockedAt: now}
		user.Achievements = append(user.Achievements, a)
		result.Unlocked = append(result.Unlocked, a)
	}

	result.NewTotalPoints = user.Points
	result.NewStreak = user.Streak
	result.StreakSaved = saved
	return result
}

func unlockedKeys(streak, scorePercentage int, history AttemptHistory) []string {
	var keys []string

	if history.TotalAttempts == 1 {
		keys = append(keys, models.AchievementFirstQuiz)
	}
	if streak >= 3 {
		keys = append(keys, models.AchievementStreak3)
	}
	if streak >= 7 {
		keys = append(keys, models.AchievementStreak7)
	}

	scores := history.SubjectScores
	if len(scores) > masteryWindow {
		scores = scores[:masteryWindow]
	}
	if len(scores) >= 2 && scorePercentage-scores[1] >= comebackDelta {
		keys = append(keys, models.AchievementComeback)
	}
	if len(scores) >= masteryMinAttempts {
		sum := 0
		for _, s := range scores {
			sum += s
		}
		if float64(sum)/float64(len(scores)) >= masteryAverage {
			keys = append(keys, models.AchievementSubjectMastery)
		}
	}

	return keys
}
