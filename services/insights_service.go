package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"learnloop/mlclient"
	"learnloop/models"
	"learnloop/store"
)

const (
	insightAttemptWindow = 12
	minInsightAttempts   = 1
)

// MLService is the prediction service as the services layer uses it.
// *mlclient.Client implements it.
type MLService interface {
	Health(ctx context.Context) (map[string]interface{}, error)
	PredictPerformance(ctx context.Context, in mlclient.Input) (*mlclient.Prediction, error)
	CheckRisk(ctx context.Context, in mlclient.Input) (*mlclient.Risk, error)
	PersonalizedPlan(ctx context.Context, in mlclient.Input) (*mlclient.Plan, error)
	DailyRecommendations(ctx context.Context, in mlclient.Input) (*mlclient.DailyRecommendations, error)
	GamificationStatus(ctx context.Context, studentID string) (*mlclient.GamificationStatus, error)
}

type InsightsService struct {
	store       store.Store
	ml          MLService
	leaderboard Leaderboard
}

func NewInsightsService(st store.Store, ml MLService, leaderboard Leaderboard) *InsightsService {
	return &InsightsService{store: st, ml: ml, leaderboard: leaderboard}
}

// studentSnapshot is what every insight is computed from.
type studentSnapshot struct {
	user     *models.User
	attempts []models.QuizAttempt
	input    mlclient.Input
}

// hasEnoughHistory decides whether the ML service is asked at all. Below
// the threshold every insight answers with its canned starter response.
func hasEnoughHistory(snap *studentSnapshot) bool {
	return len(snap.attempts) >= minInsightAttempts
}

func attemptSignals(attempts []models.QuizAttempt) []mlclient.AttemptSignal {
	signals := make([]mlclient.AttemptSignal, len(attempts))
	for i, a := range attempts {
		signals[i] = mlclient.AttemptSignal{Subject: a.Subject, ScorePercentage: a.ScorePercentage, CreatedAt: a.CreatedAt}
	}
	return signals
}

func mlInputFor(user *models.User, attempts []models.QuizAttempt) mlclient.Input {
	return mlclient.BuildInput(mlclient.Profile{
		StudentID:             user.StudentID,
		Attempts:              attemptSignals(attempts),
		Streak:                user.Streak,
		Points:                user.Points,
		Grade:                 user.AcademicProfile.Grade,
		Faculty:               user.AcademicProfile.Faculty,
		PreferredLearningTime: models.StringValue(user.LearningPreferences.StudyTime),
		ExamAnxietyLevel:      user.ExamAnxietyLevel,
	})
}

func (s *InsightsService) snapshot(ctx context.Context, userID uint) (*studentSnapshot, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("User not found")
	}
	if err != nil {
		log.Printf("Failed to load user %d: %v", userID, err)
		return nil, ServerError(err)
	}

	attempts, err := s.store.Attempts().Recent(ctx, userID, store.AttemptQuery{Limit: insightAttemptWindow})
	if err != nil {
		log.Printf("Failed to load recent attempts for user %d: %v", userID, err)
		return nil, ServerError(err)
	}
	return &studentSnapshot{user: user, attempts: attempts, input: mlInputFor(user, attempts)}, nil
}

func (s *InsightsService) mlError(op string, userID uint, err error) error {
	log.Printf("Failed to fetch %s for user %d: %v", op, userID, err)
	return ServerError(fmt.Errorf("%s: %w", op, err))
}

// Health reports the ML service status. An unreachable service is reported
// as unhealthy rather than as an error.
func (s *InsightsService) Health(ctx context.Context) map[string]interface{} {
	if s.ml == nil {
		return map[string]interface{}{"status": "unhealthy", "message": "AI service is not configured."}
	}
	data, err := s.ml.Health(ctx)
	if err != nil {
		log.Printf("AI service health check failed: %v", err)
		return map[string]interface{}{
			"status":  "unhealthy",
			"error":   err.Error(),
			"message": "AI service is not responding.",
		}
	}
	return data
}

func (s *InsightsService) PredictPerformance(ctx context.Context, userID uint) (*mlclient.Prediction, error) {
	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !hasEnoughHistory(snap) || s.ml == nil {
		return &mlclient.Prediction{
			Message:  "Not enough quiz data yet. Complete a few quizzes to unlock prediction.",
			Fallback: true,
		}, nil
	}
	pred, err := s.ml.PredictPerformance(ctx, snap.input)
	if err != nil {
		return nil, s.mlError("prediction", userID, err)
	}
	return pred, nil
}

func (s *InsightsService) CheckRisk(ctx context.Context, userID uint) (*mlclient.Risk, error) {
	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !hasEnoughHistory(snap) || s.ml == nil {
		return &mlclient.Risk{
			RiskLevel: "Unknown",
			Message:   "Not enough quiz data yet. Take a few quizzes to calculate risk.",
			Tips:      []string{"Start with 1 short quiz today", "Focus on basics first"},
			Fallback:  true,
		}, nil
	}
	risk, err := s.ml.CheckRisk(ctx, snap.input)
	if err != nil {
		return nil, s.mlError("risk check", userID, err)
	}
	return risk, nil
}

func (s *InsightsService) PersonalizedPlan(ctx context.Context, userID uint) (*mlclient.Plan, error) {
	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !hasEnoughHistory(snap) || s.ml == nil {
		return &mlclient.Plan{
			BestStudyTime: mlclient.NormalizeTimeSlot(models.StringValue(snap.user.LearningPreferences.StudyTime), "Evening"),
			Focus:         "Build fundamentals",
			WeeklyTarget:  "Complete 10-15 practice questions",
			WeakSubjects:  []string{},
			Schedule: []mlclient.ScheduleBlock{
				{Label: "Strong subjects", Hours: 0.5},
				{Label: "Revision", Hours: 0.25},
				{Label: "Breaks", Note: "10 min every hour"},
			},
			AnxietyManagement: []string{},
			Message:           "Do a few quizzes to generate a fully personalized plan.",
			Fallback:          true,
		}, nil
	}
	plan, err := s.ml.PersonalizedPlan(ctx, snap.input)
	if err != nil {
		return nil, s.mlError("study plan", userID, err)
	}
	return plan, nil
}

func (s *InsightsService) DailyRecommendations(ctx context.Context, userID uint) (*mlclient.DailyRecommendations, error) {
	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !hasEnoughHistory(snap) || s.ml == nil {
		return &mlclient.DailyRecommendations{
			Recommendations: []string{
				"Take 1 quick quiz (5-10 mins)",
				"Review 1 weak area after the quiz",
				"Do 10 minutes of revision",
			},
			Gamification: "Active",
			Message:      "Complete a few quizzes to unlock personalized recommendations.",
			Fallback:     true,
		}, nil
	}
	recs, err := s.ml.DailyRecommendations(ctx, snap.input)
	if err != nil {
		return nil, s.mlError("daily recommendations", userID, err)
	}
	return recs, nil
}

// GamificationStatus asks the ML service for studentID's status. When the
// service does not know the student or cannot be reached, the status is
// computed from the caller's own points and streak.
func (s *InsightsService) GamificationStatus(ctx context.Context, userID uint, studentID string) (*mlclient.GamificationStatus, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("User not found")
	}
	if err != nil {
		return nil, ServerError(err)
	}

	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		studentID = user.StudentID
	}

	if s.ml != nil {
		status, err := s.ml.GamificationStatus(ctx, studentID)
		if err == nil {
			return status, nil
		}
		if code := mlclient.StatusOf(err); code != http.StatusNotFound && code != 0 {
			return nil, s.mlError("gamification status", userID, err)
		}
	}
	return s.gamificationFallback(ctx, user, studentID), nil
}

func (s *InsightsService) gamificationFallback(ctx context.Context, user *models.User, studentID string) *mlclient.GamificationStatus {
	level := user.GameLevel()
	badges := len(user.Achievements)

	var rank *int64
	if s.leaderboard != nil {
		if r, err := s.leaderboard.Rank(ctx, user.ID); err == nil && r > 0 {
			rank = &r
		}
	}

	return &mlclient.GamificationStatus{
		StudentID:           studentID,
		Level:               level,
		TotalPoints:         user.Points,
		BadgesEarned:        badges,
		StreakDays:          user.Streak,
		LeaderboardRank:     rank,
		NextLevelIn:         user.PointsToNextLevel(),
		ProgressToNextLevel: float64(user.ProgressToNextLevel()),
		Achievements: []string{
			fmt.Sprintf("Level %d Champion", level),
			fmt.Sprintf("%d-Day Streak", user.Streak),
			fmt.Sprintf("%d Badges Collected", badges),
		},
		Fallback: true,
	}
}
