package services

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"learnloop/models"
	"learnloop/store"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	progressRecentCount = 5
)

type QuizService struct {
	store       store.Store
	recorder    *AttemptRecorder
	leaderboard Leaderboard
	cache       Cache
}

func NewQuizService(st store.Store, recorder *AttemptRecorder, leaderboard Leaderboard, cache Cache) *QuizService {
	return &QuizService{
		store:       st,
		recorder:    recorder,
		leaderboard: leaderboard,
		cache:       cache,
	}
}

type SubmitQuizRequest struct {
	Level   string       `json:"level" binding:"required,classlevel"`
	Subject string       `json:"subject" binding:"required"`
	Topic   string       `json:"topic"`
	Answers []BankAnswer `json:"answers" binding:"required,min=1,dive"`
}

type BankAnswer struct {
	QuestionID          uint `json:"questionId" binding:"required"`
	SelectedOptionIndex *int `json:"selectedOptionIndex" binding:"required"`
}

type SubmitResult struct {
	Message         string `json:"message"`
	AttemptID       uint   `json:"attemptId"`
	ScorePercentage int    `json:"scorePercentage"`
	CorrectCount    int    `json:"correctCount"`
	IncorrectCount  int    `json:"incorrectCount"`
	TotalQuestions  int    `json:"totalQuestions"`
	GamificationResult
}

func newSubmitResult(recorded *RecordedAttempt) *SubmitResult {
	a := recorded.Attempt
	return &SubmitResult{
		Message:            "Quiz submitted",
		AttemptID:          a.ID,
		ScorePercentage:    a.ScorePercentage,
		CorrectCount:       a.CorrectCount,
		IncorrectCount:     a.IncorrectCount,
		TotalQuestions:     a.TotalQuestions,
		GamificationResult: recorded.GamificationResult,
	}
}

// Submit scores a bank quiz, records the attempt and updates the user's
// points, streak and achievements.
func (s *QuizService) Submit(ctx context.Context, userID uint, req *SubmitQuizRequest) (*SubmitResult, error) {
	level := strings.TrimSpace(req.Level)
	subject := strings.TrimSpace(req.Subject)
	if level == "" || subject == "" {
		return nil, ValidationError("level and subject are required")
	}
	if !models.IsValidLevel(level) {
		return nil, ValidationError("level must be Class 11 or Class 12")
	}
	if len(req.Answers) == 0 {
		return nil, ValidationError("answers are required")
	}

	answers := make([]Answer[uint], len(req.Answers))
	ids := make([]uint, 0, len(req.Answers))
	for i, a := range req.Answers {
		if a.SelectedOptionIndex == nil {
			return nil, ValidationError("selectedOptionIndex is required for every answer")
		}
		answers[i] = Answer[uint]{QuestionID: a.QuestionID, SelectedOptionIndex: *a.SelectedOptionIndex}
		ids = append(ids, a.QuestionID)
	}

	questions, err := s.store.Questions().GetByIDs(ctx, ids)
	if err != nil {
		log.Printf("Failed to load questions for submission: %v", err)
		return nil, ServerError(err)
	}
	correct := make(map[uint]int, len(questions))
	for _, q := range questions {
		correct[q.ID] = q.CorrectOptionIndex
	}

	score := ScoreAnswers(answers, correct)

	attempt := &models.QuizAttempt{
		UserID:          userID,
		Level:           level,
		Subject:         subject,
		Topic:           strings.TrimSpace(req.Topic),
		Source:          models.SourceBank,
		ScorePercentage: score.ScorePercentage,
		TotalQuestions:  score.TotalQuestions,
		CorrectCount:    score.CorrectCount,
		IncorrectCount:  score.IncorrectCount,
	}
	for _, a := range score.Answers {
		questionID := a.QuestionID
		attempt.Answers = append(attempt.Answers, models.AttemptAnswer{
			Position:            a.Position,
			QuestionID:          &questionID,
			SelectedOptionIndex: a.SelectedOptionIndex,
			IsCorrect:           a.IsCorrect,
			Source:              models.SourceBank,
		})
	}

	recorded, err := s.recorder.Record(ctx, attempt, nil)
	if err != nil {
		return nil, err
	}
	return newSubmitResult(recorded), nil
}

type SubjectStat struct {
	Subject  string `json:"subject"`
	Attempts int    `json:"attempts"`
	AvgScore int    `json:"avgScore"`
}

type Progress struct {
	TotalQuizzes   int                  `json:"totalQuizzes"`
	AvgScore       int                  `json:"avgScore"`
	SubjectStats   []SubjectStat        `json:"subjects"`
	RecentAttempts []models.QuizAttempt `json:"recentAttempts"`
}

func (s *QuizService) Progress(ctx context.Context, userID uint) (*Progress, error) {
	attempts, err := s.store.Attempts().Recent(ctx, userID, store.AttemptQuery{})
	if err != nil {
		log.Printf("Failed to load attempts for progress: %v", err)
		return nil, ServerError(err)
	}

	progress := &Progress{
		TotalQuizzes:   len(attempts),
		SubjectStats:   []SubjectStat{},
		RecentAttempts: []models.QuizAttempt{},
	}
	if len(attempts) == 0 {
		return progress, nil
	}

	type acc struct{ sum, n int }
	bySubject := make(map[string]*acc)
	sum := 0
	for _, a := range attempts {
		sum += a.ScorePercentage
		if bySubject[a.Subject] == nil {
			bySubject[a.Subject] = &acc{}
		}
		bySubject[a.Subject].sum += a.ScorePercentage
		bySubject[a.Subject].n++
	}
	progress.RecentAttempts = attempts[:min(len(attempts), progressRecentCount)]
	progress.AvgScore = Percentage(sum, 100*len(attempts))

	for subject, a := range bySubject {
		progress.SubjectStats = append(progress.SubjectStats, SubjectStat{
			Subject:  subject,
			Attempts: a.n,
			AvgScore: Percentage(a.sum, 100*a.n),
		})
	}
	sort.Slice(progress.SubjectStats, func(i, j int) bool {
		return progress.SubjectStats[i].Subject < progress.SubjectStats[j].Subject
	})
	return progress, nil
}

// History lists the user's attempts newest first. limit defaults to 20 and
// is capped at 100.
func (s *QuizService) History(ctx context.Context, userID uint, limit int) ([]models.QuizAttempt, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	attempts, err := s.store.Attempts().Recent(ctx, userID, store.AttemptQuery{Limit: limit})
	if err != nil {
		log.Printf("Failed to load quiz history: %v", err)
		return nil, ServerError(err)
	}
	if attempts == nil {
		attempts = []models.QuizAttempt{}
	}
	return attempts, nil
}

type ResetResult struct {
	Message         string `json:"message"`
	DeletedAttempts int64  `json:"deletedAttempts"`
	Points          int    `json:"points"`
	Streak          int    `json:"streak"`
}

// Reset deletes the user's attempts and zeroes points, streak and last
// activity. Achievements are kept. Cached dashboard recommendations are
// dropped with the attempts they were built from.
func (s *QuizService) Reset(ctx context.Context, userID uint) (*ResetResult, error) {
	var deleted int64
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		user, err := tx.Users().GetByIDForUpdate(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("User not found")
		}
		if err != nil {
			return err
		}

		deleted, err = tx.Attempts().DeleteByUser(ctx, userID)
		if err != nil {
			return err
		}

		user.Points = 0
		user.Streak = 0
		user.LastActiveDate = nil
		return tx.Users().Save(ctx, user)
	})
	if err != nil {
		var appErr *AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		log.Printf("Failed to reset progress for user %d: %v", userID, err)
		return nil, ServerError(err)
	}

	if s.leaderboard != nil {
		if err := s.leaderboard.Remove(ctx, userID); err != nil {
			log.Printf("Failed to remove user %d from leaderboard: %v", userID, err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, recommendationCacheKey(userID)); err != nil {
			log.Printf("Failed to clear cached recommendations for user %d: %v", userID, err)
		}
	}

	return &ResetResult{Message: "Progress reset", DeletedAttempts: deleted}, nil
}

type AchievementStatus struct {
	models.AchievementInfo
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlockedAt"`
}

type AchievementsView struct {
	Points              int                 `json:"points"`
	Streak              int                 `json:"streak"`
	GameLevel           int                 `json:"gameLevel"`
	ProgressToNextLevel int                 `json:"progressToNextLevel"`
	StreakSave          models.StreakSave   `json:"streakSave"`
	Achievements        []AchievementStatus `json:"achievements"`
}

// Achievements lists the whole catalog with the user's unlock state.
func (s *QuizService) Achievements(ctx context.Context, userID uint) (*AchievementsView, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("User not found")
	}
	if err != nil {
		log.Printf("Failed to load achievements for user %d: %v", userID, err)
		return nil, ServerError(err)
	}

	unlocked := make(map[string]time.Time, len(user.Achievements))
	for _, a := range user.Achievements {
		unlocked[a.Key] = a.UnlockedAt
	}

	view := &AchievementsView{
		Points:              user.Points,
		Streak:              user.Streak,
		GameLevel:           user.GameLevel(),
		ProgressToNextLevel: user.ProgressToNextLevel(),
		StreakSave:          user.StreakSave,
	}
	for _, info := range models.AchievementCatalog {
		status := AchievementStatus{AchievementInfo: info}
		if at, ok := unlocked[info.Key]; ok {
			status.Unlocked = true
			status.UnlockedAt = &at
		}
		view.Achievements = append(view.Achievements, status)
	}
	return view, nil
}
