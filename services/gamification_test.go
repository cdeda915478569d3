package services

import (
	"testing"
	"time"

	"learnloop/models"
)

var testNow = time.Date(2024, time.March, 14, 9, 30, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := testNow.AddDate(0, 0, -n)
	return &t
}

func TestPointsForScore(t *testing.T) {
	tests := []struct{ score, want int }{
		{100, 20}, {80, 20}, {79, 10}, {60, 10}, {59, 5}, {0, 5},
	}
	for _, tt := range tests {
		if got := PointsForScore(tt.score); got != tt.want {
			t.Errorf("PointsForScore(%d) = %d, want %d", tt.score, got, tt.want)
		}
	}
}

func TestNextStreak(t *testing.T) {
	lateLastNight := time.Date(2024, time.March, 13, 23, 59, 0, 0, time.UTC)

	tests := []struct {
		name       string
		current    int
		lastActive *time.Time
		questions  int
		want       int
		wantSaved  bool
	}{
		{"first activity", 0, nil, 10, 1, false},
		{"same day keeps streak", 4, daysAgo(0), 10, 4, false},
		{"same day after reset has minimum one", 0, daysAgo(0), 10, 1, false},
		{"yesterday increments", 4, daysAgo(1), 10, 5, false},
		{"yesterday by calendar not by hours", 2, &lateLastNight, 10, 3, false},
		{"two days with five questions saves", 4, daysAgo(2), 5, 5, true},
		{"two days with ten questions resets", 4, daysAgo(2), 10, 1, false},
		{"two days with zero streak resets", 0, daysAgo(2), 5, 1, false},
		{"five days resets", 9, daysAgo(5), 5, 1, false},
		{"future date counts as today", 3, daysAgo(-1), 10, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, saved := NextStreak(tt.current, tt.lastActive, testNow, tt.questions)
			if got != tt.want || saved != tt.wantSaved {
				t.Errorf("NextStreak() = (%d, %v), want (%d, %v)", got, saved, tt.want, tt.wantSaved)
			}
		})
	}
}

func TestApplyAttemptFirstQuiz(t *testing.T) {
	user := &models.User{ID: 7}

	result := ApplyAttempt(user, 90, 10, AttemptHistory{TotalAttempts: 1, SubjectScores: []int{90}}, testNow)

	if result.PointsEarned != 20 || result.NewTotalPoints != 20 {
		t.Errorf("points = (%d, %d), want (20, 20)", result.PointsEarned, result.NewTotalPoints)
	}
	if result.NewStreak != 1 {
		t.Errorf("NewStreak = %d, want 1", result.NewStreak)
	}
	if len(result.Unlocked) != 1 || result.Unlocked[0].Key != models.AchievementFirstQuiz {
		t.Fatalf("Unlocked = %+v, want only FIRST_QUIZ", result.Unlocked)
	}
	if result.Unlocked[0].UserID != 7 {
		t.Errorf("achievement UserID = %d, want 7", result.Unlocked[0].UserID)
	}
	if user.LastActiveDate == nil || !user.LastActiveDate.Equal(testNow) {
		t.Errorf("LastActiveDate = %v, want %v", user.LastActiveDate, testNow)
	}
}

func TestApplyAttemptStreakSaveRecorded(t *testing.T) {
	user := &models.User{Streak: 2, LastActiveDate: daysAgo(2)}

	result := ApplyAttempt(user, 40, 5, AttemptHistory{TotalAttempts: 5, SubjectScores: []int{40}}, testNow)

	if !result.StreakSaved || result.NewStreak != 3 {
		t.Fatalf("result = %+v, want saved streak of 3", result)
	}
	if user.StreakSave.TotalUsed != 1 || user.StreakSave.LastUsedAt == nil {
		t.Errorf("StreakSave = %+v, want one recorded use", user.StreakSave)
	}
	if !user.HasAchievement(models.AchievementStreak3) {
		t.Error("STREAK_3 should unlock at streak 3")
	}
}

func TestApplyAttemptDoesNotRepeatAchievements(t *testing.T) {
	user := &models.User{
		Achievements: []models.Achievement{{Key: models.AchievementFirstQuiz}},
	}

	result := ApplyAttempt(user, 100, 10, AttemptHistory{TotalAttempts: 1, SubjectScores: []int{100}}, testNow)

	if len(result.Unlocked) != 0 {
		t.Errorf("Unlocked = %+v, want none", result.Unlocked)
	}
	if len(user.Achievements) != 1 {
		t.Errorf("user has %d achievements, want 1", len(user.Achievements))
	}
}

func TestSubjectMastery(t *testing.T) {
	tests := []struct {
		name   string
		scores []int
		want   bool
	}{
		{"two perfect attempts are not enough", []int{100, 100}, false},
		{"three attempts averaging eighty", []int{80, 70, 90}, true},
		{"three attempts below eighty", []int{80, 79, 80}, false},
		{"only the latest fifty count", append([]int{100, 100, 100}, make([]int, 60)...), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &models.User{LastActiveDate: daysAgo(0), Streak: 1}
			ApplyAttempt(user, tt.scores[0], 10, AttemptHistory{TotalAttempts: 10, SubjectScores: tt.scores}, testNow)
			if got := user.HasAchievement(models.AchievementSubjectMastery); got != tt.want {
				t.Errorf("SUBJECT_MASTERY unlocked = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComeback(t *testing.T) {
	tests := []struct {
		name   string
		scores []int
		want   bool
	}{
		{"improves by twenty", []int{70, 50}, true},
		{"improves by nineteen", []int{69, 50}, false},
		{"no previous attempt", []int{100}, false},
		{"compares only with the previous attempt", []int{60, 50, 10}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &models.User{}
			ApplyAttempt(user, tt.scores[0], 10, AttemptHistory{TotalAttempts: 3, SubjectScores: tt.scores}, testNow)
			if got := user.HasAchievement(models.AchievementComeback); got != tt.want {
				t.Errorf("COMEBACK unlocked = %v, want %v", got, tt.want)
			}
		})
	}
}
