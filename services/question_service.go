package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"learnloop/models"
	"learnloop/store"
)

const (
	defaultQuizLimit    = 10
	recentAttemptWindow = 10
	recentQuestionCap   = 200
)

type QuestionService struct {
	store store.Store
}

func NewQuestionService(st store.Store) *QuestionService {
	return &QuestionService{store: st}
}

type AddQuestionRequest struct {
	Level              string   `json:"level" binding:"required,classlevel"`
	Subject            string   `json:"subject" binding:"required"`
	Topic              string   `json:"topic"`
	QuestionText       string   `json:"questionText" binding:"required"`
	Options            []string `json:"options" binding:"required,min=2,dive,required"`
	CorrectOptionIndex *int     `json:"correctOptionIndex" binding:"required,min=0"`
	Difficulty         string   `json:"difficulty"`
}

type QuestionMeta struct {
	Subject        string `json:"subject"`
	Level          string `json:"level"`
	Requested      int    `json:"requested"`
	Returned       int    `json:"returned"`
	AvailableTotal int64  `json:"availableTotal"`
	Note           string `json:"note"`
}

type QuestionSet struct {
	Questions []models.Question `json:"questions"`
	Meta      QuestionMeta      `json:"meta"`
}

// NormalizeLimit maps a requested quiz size onto 5, 10 or 15.
func NormalizeLimit(limit int) int {
	switch limit {
	case 5, 10, 15:
		return limit
	}
	return defaultQuizLimit
}

func (s *QuestionService) AddQuestion(ctx context.Context, req *AddQuestionRequest) (*models.Question, error) {
	question, err := NewBankQuestion(req)
	if err != nil {
		return nil, err
	}
	if err := s.store.Questions().Create(ctx, question); err != nil {
		log.Printf("Failed to add question: %v", err)
		return nil, ServerError(err)
	}
	return question, nil
}

// NewBankQuestion validates req and builds the question it describes.
func NewBankQuestion(req *AddQuestionRequest) (*models.Question, error) {
	level := strings.TrimSpace(req.Level)
	subject := strings.TrimSpace(req.Subject)
	text := strings.TrimSpace(req.QuestionText)

	if !models.IsValidLevel(level) {
		return nil, ValidationError("level must be Class 11 or Class 12")
	}
	if subject == "" || text == "" {
		return nil, ValidationError("subject and questionText are required")
	}

	options := make([]string, 0, len(req.Options))
	for _, o := range req.Options {
		o = strings.TrimSpace(o)
		if o == "" {
			return nil, ValidationError("options must not be blank")
		}
		options = append(options, o)
	}
	if len(options) < 2 {
		return nil, ValidationError("at least two options are required")
	}
	if req.CorrectOptionIndex == nil || *req.CorrectOptionIndex < 0 || *req.CorrectOptionIndex >= len(options) {
		return nil, ValidationError("correctOptionIndex is out of range")
	}

	return &models.Question{
		Level:              level,
		Subject:            subject,
		Topic:              strings.TrimSpace(req.Topic),
		Text:               text,
		Options:            options,
		CorrectOptionIndex: *req.CorrectOptionIndex,
		Difficulty:         models.NormalizeDifficulty(req.Difficulty),
	}, nil
}

// Select picks up to limit random questions for subject and level, avoiding
// those the user saw in their last few attempts when the bank allows it.
// Fewer than limit are returned only when the bank itself is smaller; the
// meta note says so.
func (s *QuestionService) Select(ctx context.Context, userID uint, subject, level string, limit int) (*QuestionSet, error) {
	subject = strings.TrimSpace(subject)
	level = strings.TrimSpace(level)
	if subject == "" || level == "" {
		return nil, ValidationError("subject and level are required")
	}
	if !models.IsValidLevel(level) {
		return nil, ValidationError("level must be Class 11 or Class 12")
	}
	limit = NormalizeLimit(limit)

	set := &QuestionSet{
		Questions: []models.Question{},
		Meta:      QuestionMeta{Subject: subject, Level: level, Requested: limit},
	}

	total, err := s.store.Questions().Count(ctx, subject, level)
	if err != nil {
		log.Printf("Failed to count questions: %v", err)
		return nil, ServerError(err)
	}
	set.Meta.AvailableTotal = total
	if total == 0 {
		set.Meta.Note = "No questions found for this subject and level. Seed the question bank first."
		return set, nil
	}

	recent, err := s.store.Attempts().RecentQuestionIDs(ctx, userID, subject, level, recentAttemptWindow, recentQuestionCap)
	if err != nil {
		log.Printf("Failed to load recent questions: %v", err)
		return nil, ServerError(err)
	}

	picked, err := s.sample(ctx, subject, level, recent, limit)
	if err != nil {
		log.Printf("Failed to sample questions: %v", err)
		return nil, ServerError(err)
	}

	set.Questions = picked
	set.Meta.Returned = len(picked)
	switch {
	case total < int64(limit):
		set.Meta.Note = fmt.Sprintf("Only %d questions exist for this subject and level.", total)
	case len(recent) > 0:
		set.Meta.Note = "Returned randomized questions (avoiding recently seen when possible)."
	default:
		set.Meta.Note = "OK"
	}
	return set, nil
}

func (s *QuestionService) sample(ctx context.Context, subject, level string, recent []uint, limit int) ([]models.Question, error) {
	repo := s.store.Questions()

	picked, err := repo.Sample(ctx, subject, level, recent, limit)
	if err != nil {
		return nil, err
	}
	if len(picked) >= limit {
		return picked[:limit], nil
	}

	seen := make(map[uint]bool, limit)
	for _, q := range picked {
		seen[q.ID] = true
	}

	// Not enough unseen questions: oversample the whole bank and drop repeats.
	remaining := limit - len(picked)
	filler, err := repo.Sample(ctx, subject, level, nil, min(remaining*3, limit*3))
	if err != nil {
		return nil, err
	}
	for _, q := range filler {
		if len(picked) == limit {
			break
		}
		if seen[q.ID] {
			continue
		}
		seen[q.ID] = true
		picked = append(picked, q)
	}
	if len(picked) == limit {
		return picked, nil
	}

	exclude := make([]uint, 0, len(seen))
	for id := range seen {
		exclude = append(exclude, id)
	}
	rest, err := repo.Sample(ctx, subject, level, exclude, limit-len(picked))
	if err != nil {
		return nil, err
	}
	return append(picked, rest...), nil
}
