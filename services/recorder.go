package services

import (
	"context"
	"errors"
	"log"
	"time"

	"learnloop/models"
	"learnloop/store"
)

// Notifier pushes live events to a user's open connections.
type Notifier interface {
	NotifyUser(userID uint, eventType string, payload interface{})
}

// Live event types sent after a recorded attempt.
const (
	EventQuizResult          = "quiz_result"
	EventAchievementUnlocked = "achievement_unlocked"
	EventStreakSaved         = "streak_saved"
)

// AttemptRecorder writes a scored attempt and the resulting user update in a
// single transaction. It is shared by bank and AI submissions.
type AttemptRecorder struct {
	store       store.Store
	leaderboard Leaderboard
	notifier    Notifier
	now         func() time.Time
}

// NewAttemptRecorder builds a recorder. leaderboard and notifier may be nil.
func NewAttemptRecorder(st store.Store, leaderboard Leaderboard, notifier Notifier) *AttemptRecorder {
	return &AttemptRecorder{
		store:       st,
		leaderboard: leaderboard,
		notifier:    notifier,
		now:         time.Now,
	}
}

type RecordedAttempt struct {
	Attempt *models.QuizAttempt
	GamificationResult
}

// Record persists attempt and applies gamification to its owner. When claim is
// not nil it runs first inside the same transaction; an error from it aborts
// everything.
func (r *AttemptRecorder) Record(ctx context.Context, attempt *models.QuizAttempt, claim func(tx store.Store) error) (*RecordedAttempt, error) {
	now := r.now()
	attempt.CreatedAt = now

	var (
		user   *models.User
		result GamificationResult
	)
	err := r.store.Transaction(ctx, func(tx store.Store) error {
		if claim != nil {
			if err := claim(tx); err != nil {
				return err
			}
		}

		u, err := tx.Users().GetByIDForUpdate(ctx, attempt.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("User not found")
		}
		if err != nil {
			return err
		}

		if err := tx.Attempts().Create(ctx, attempt); err != nil {
			return err
		}

		total, err := tx.Attempts().CountByUser(ctx, u.ID)
		if err != nil {
			return err
		}
		recent, err := tx.Attempts().Recent(ctx, u.ID, store.AttemptQuery{
			Subject: attempt.Subject,
			Limit:   masteryWindow,
		})
		if err != nil {
			return err
		}
		scores := make([]int, len(recent))
		for i, a := range recent {
			scores[i] = a.ScorePercentage
		}

		result = ApplyAttempt(u, attempt.ScorePercentage, attempt.TotalQuestions, AttemptHistory{
			TotalAttempts: total,
			SubjectScores: scores,
		}, now)

		if err := tx.Users().Save(ctx, u); err != nil {
			return err
		}
		if err := tx.Users().AddAchievements(ctx, u.ID, result.Unlocked); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		var appErr *AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		log.Printf("Failed to record quiz attempt for user %d: %v", attempt.UserID, err)
		return nil, ServerError(err)
	}

	r.publish(ctx, user, attempt, result)

	return &RecordedAttempt{Attempt: attempt, GamificationResult: result}, nil
}

func (r *AttemptRecorder) publish(ctx context.Context, user *models.User, attempt *models.QuizAttempt, result GamificationResult) {
	if r.leaderboard != nil {
		if err := r.leaderboard.UpdatePoints(ctx, user); err != nil {
			log.Printf("Failed to update leaderboard for user %d: %v", user.ID, err)
		}
	}

	if r.notifier == nil {
		return
	}
	r.notifier.NotifyUser(user.ID, EventQuizResult, map[string]interface{}{
		"attemptId":       attempt.ID,
		"subject":         attempt.Subject,
		"source":          attempt.Source,
		"scorePercentage": attempt.ScorePercentage,
		"pointsEarned":    result.PointsEarned,
		"newTotalPoints":  result.NewTotalPoints,
		"newStreak":       result.NewStreak,
		"gameLevel":       user.GameLevel(),
	})
	if result.StreakSaved {
		r.notifier.NotifyUser(user.ID, EventStreakSaved, map[string]interface{}{
			"streak":    result.NewStreak,
			"totalUsed": user.StreakSave.TotalUsed,
		})
	}
	for _, a := range result.Unlocked {
		r.notifier.NotifyUser(user.ID, EventAchievementUnlocked, a)
	}
}
