// Package store persists users, the question bank, quiz attempts and AI quiz
// sessions. Postgres is the production backend; Memory backs tests and local
// runs without a database.
package store

import (
	"context"
	"errors"
	"time"

	"learnloop/models"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

type Store interface {
	Users() UserRepository
	Questions() QuestionRepository
	Attempts() AttemptRepository
	Sessions() SessionRepository

	// Transaction runs fn against a transactional view of the store. Any
	// error returned by fn rolls back every write made through that view.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	// GetByIDForUpdate locks the user row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// Save writes the user's own columns. Achievements are written with AddAchievements.
	Save(ctx context.Context, user *models.User) error
	// AddAchievements inserts keys that are not unlocked yet and ignores the rest.
	AddAchievements(ctx context.Context, userID uint, achievements []models.Achievement) error
	// TopByPoints returns users ordered by points, highest first. limit <= 0 means all.
	TopByPoints(ctx context.Context, limit int) ([]models.User, error)
}

type QuestionRepository interface {
	Create(ctx context.Context, question *models.Question) error
	CreateBatch(ctx context.Context, questions []models.Question) error
	Count(ctx context.Context, subject, level string) (int64, error)
	// Sample returns up to n random questions for subject+level, skipping exclude.
	Sample(ctx context.Context, subject, level string, exclude []uint, n int) ([]models.Question, error)
	GetByIDs(ctx context.Context, ids []uint) ([]models.Question, error)
}

type AttemptQuery struct {
	Subject string
	Level   string
	Limit   int // <= 0 means no limit
}

type AttemptRepository interface {
	// Create persists the attempt together with its answers.
	Create(ctx context.Context, attempt *models.QuizAttempt) error
	CountByUser(ctx context.Context, userID uint) (int64, error)
	// Recent returns attempts newest first, without answers.
	Recent(ctx context.Context, userID uint, q AttemptQuery) ([]models.QuizAttempt, error)
	// RecentQuestionIDs collects bank question ids from the user's last
	// `attempts` attempts for subject+level, newest first, at most max ids.
	RecentQuestionIDs(ctx context.Context, userID uint, subject, level string, attempts, max int) ([]uint, error)
	DeleteByUser(ctx context.Context, userID uint) (int64, error)
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.AIQuizSession) error
	GetForUser(ctx context.Context, id uuid.UUID, userID uint) (*models.AIQuizSession, error)
	// MarkSubmitted flips is_submitted from false to true. It reports false
	// when the session was already submitted.
	MarkSubmitted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}
