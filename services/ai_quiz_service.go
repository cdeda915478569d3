package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"learnloop/llm"
	"learnloop/models"
	"learnloop/store"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AIQuizService struct {
	store     store.Store
	generator llm.Generator
	questions *QuestionService
	recorder  *AttemptRecorder
	now       func() time.Time
}

// NewAIQuizService builds the service. A nil generator makes every quiz come
// from the question bank.
func NewAIQuizService(st store.Store, generator llm.Generator, questions *QuestionService, recorder *AttemptRecorder) *AIQuizService {
	return &AIQuizService{
		store:     st,
		generator: generator,
		questions: questions,
		recorder:  recorder,
		now:       time.Now,
	}
}

type GenerateAIQuizRequest struct {
	Subject string `json:"subject" binding:"required"`
	Level   string `json:"level" binding:"required,classlevel"`
	Limit   int    `json:"limit"`
}

type AIQuestionView struct {
	QID          string   `json:"qid"`
	QuestionText string   `json:"questionText"`
	Options      []string `json:"options"`
	Topic        string   `json:"topic"`
	Difficulty   string   `json:"difficulty"`
}

type AIQuiz struct {
	QuizID    uuid.UUID        `json:"quizId"`
	Subject   string           `json:"subject"`
	Level     string           `json:"level"`
	Fallback  bool             `json:"fallback"`
	Questions []AIQuestionView `json:"questions"`
}

type generatedQuiz struct {
	Questions []generatedQuestion `json:"questions"`
}

type generatedQuestion struct {
	QuestionText       string   `json:"questionText"`
	Options            []string `json:"options"`
	CorrectOptionIndex *int     `json:"correctOptionIndex"`
	Topic              string   `json:"topic"`
	Difficulty         string   `json:"difficulty"`
	Explanation        string   `json:"explanation"`
}

const aiQuizSystemPrompt = `You write multiple-choice exam questions for students of Nepal's NEB Class 11 and Class 12 curriculum.
Return ONLY JSON. No markdown, no commentary.`

func aiQuizUserPrompt(subject, level string, limit int) string {
	return fmt.Sprintf(`Create %d multiple-choice questions.
Subject: %s
Level: %s

Rules:
- Exactly 4 options per question, one correct.
- correctOptionIndex is 0-based.
- Mix easy, medium and hard questions.
- Keep explanations to one or two sentences.

Respond with this JSON shape:
{"questions":[{"questionText":"...","options":["...","...","...","..."],"correctOptionIndex":0,"topic":"...","difficulty":"easy|medium|hard","explanation":"..."}]}`,
		limit, subject, level)
}

// Generate creates an AI quiz session. When the model is unavailable (quota,
// key or permission) or returns nothing usable, questions are drawn from the
// bank instead and the quiz is marked as a fallback.
func (s *AIQuizService) Generate(ctx context.Context, userID uint, req *GenerateAIQuizRequest) (*AIQuiz, error) {
	subject := strings.TrimSpace(req.Subject)
	level := strings.TrimSpace(req.Level)
	if subject == "" || level == "" {
		return nil, ValidationError("subject and level are required")
	}
	if !models.IsValidLevel(level) {
		return nil, ValidationError("level must be Class 11 or Class 12")
	}
	limit := NormalizeLimit(req.Limit)

	var questions []models.AIQuestion
	if s.generator != nil {
		var out generatedQuiz
		err := s.generator.GenerateJSON(ctx, aiQuizSystemPrompt, aiQuizUserPrompt(subject, level, limit), &out)
		switch {
		case err == nil:
			questions = sanitizeGeneratedQuestions(out.Questions, limit)
		case llm.IsUnavailable(err):
			log.Printf("AI quiz model unavailable, using question bank: %v", err)
		default:
			log.Printf("Failed to generate AI quiz: %v", err)
			return nil, ServerError(err)
		}
	}

	fallback := len(questions) == 0
	if fallback {
		var err error
		questions, err = s.bankQuestions(ctx, userID, subject, level, limit)
		if err != nil {
			return nil, err
		}
	}

	session := &models.AIQuizSession{
		ID:             uuid.New(),
		UserID:         userID,
		Level:          level,
		Subject:        subject,
		RequestedCount: limit,
		Fallback:       fallback,
	}
	if err := session.SetQuestions(questions); err != nil {
		return nil, ServerError(err)
	}
	if err := s.store.Sessions().Create(ctx, session); err != nil {
		log.Printf("Failed to save AI quiz session: %v", err)
		return nil, ServerError(err)
	}

	quiz := &AIQuiz{
		QuizID:    session.ID,
		Subject:   subject,
		Level:     level,
		Fallback:  fallback,
		Questions: make([]AIQuestionView, len(questions)),
	}
	for i, q := range questions {
		quiz.Questions[i] = AIQuestionView{
			QID:          q.QID,
			QuestionText: q.QuestionText,
			Options:      q.Options,
			Topic:        q.Topic,
			Difficulty:   q.Difficulty,
		}
	}
	return quiz, nil
}

func (s *AIQuizService) bankQuestions(ctx context.Context, userID uint, subject, level string, limit int) ([]models.AIQuestion, error) {
	set, err := s.questions.Select(ctx, userID, subject, level, limit)
	if err != nil {
		return nil, err
	}
	if len(set.Questions) == 0 {
		return nil, NotFound("No questions available for this subject and level")
	}

	questions := make([]models.AIQuestion, len(set.Questions))
	for i, q := range set.Questions {
		bankID := q.ID
		questions[i] = models.AIQuestion{
			QID:                fmt.Sprintf("Q%d", i+1),
			QuestionText:       q.Text,
			Options:            append([]string(nil), q.Options...),
			CorrectOptionIndex: q.CorrectOptionIndex,
			Topic:              q.Topic,
			Difficulty:         q.Difficulty,
			BankQuestionID:     &bankID,
		}
	}
	return questions, nil
}

// sanitizeGeneratedQuestions drops malformed questions, keeps at most limit
// and numbers the rest Q1..Qn.
func sanitizeGeneratedQuestions(raw []generatedQuestion, limit int) []models.AIQuestion {
	var out []models.AIQuestion
	for _, g := range raw {
		if len(out) == limit {
			break
		}
		text := strings.TrimSpace(g.QuestionText)
		if text == "" || g.CorrectOptionIndex == nil {
			continue
		}

		options := make([]string, 0, len(g.Options))
		for _, o := range g.Options {
			if o = strings.TrimSpace(o); o != "" {
				options = append(options, o)
			}
		}
		if len(options) < 2 || len(options) != len(g.Options) {
			continue
		}
		idx := *g.CorrectOptionIndex
		if idx < 0 || idx >= len(options) {
			continue
		}

		out = append(out, models.AIQuestion{
			QID:                fmt.Sprintf("Q%d", len(out)+1),
			QuestionText:       text,
			Options:            options,
			CorrectOptionIndex: idx,
			Topic:              strings.TrimSpace(g.Topic),
			Difficulty:         models.NormalizeDifficulty(g.Difficulty),
			Explanation:        strings.TrimSpace(g.Explanation),
		})
	}
	return out
}

type SubmitAIQuizRequest struct {
	QuizID  string     `json:"quizId" binding:"required,uuid"`
	Answers []AIAnswer `json:"answers" binding:"required,min=1,dive"`
}

type AIAnswer struct {
	QID                 string `json:"qid" binding:"required"`
	SelectedOptionIndex *int   `json:"selectedOptionIndex" binding:"required"`
}

type ReviewItem struct {
	QID                 string   `json:"qid"`
	QuestionText        string   `json:"questionText"`
	Options             []string `json:"options"`
	SelectedOptionIndex *int     `json:"selectedOptionIndex"`
	CorrectOptionIndex  int      `json:"correctOptionIndex"`
	IsCorrect           bool     `json:"isCorrect"`
	Explanation         string   `json:"explanation"`
}

type AISubmitResult struct {
	QuizID uuid.UUID `json:"quizId"`
	SubmitResult
	Review []ReviewItem `json:"review"`
}

// Submit scores an AI quiz session. A session is accepted once; the claim is
// made inside the recording transaction so concurrent submits cannot both win.
func (s *AIQuizService) Submit(ctx context.Context, userID uint, req *SubmitAIQuizRequest) (*AISubmitResult, error) {
	quizID, err := uuid.Parse(strings.TrimSpace(req.QuizID))
	if err != nil {
		return nil, ValidationError("quizId is invalid")
	}
	if len(req.Answers) == 0 {
		return nil, ValidationError("answers are required")
	}

	session, err := s.store.Sessions().GetForUser(ctx, quizID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("Quiz not found")
	}
	if err != nil {
		log.Printf("Failed to load AI quiz session: %v", err)
		return nil, ServerError(err)
	}
	if session.IsSubmitted {
		return nil, AlreadySubmitted("Quiz already submitted")
	}

	questions, err := session.DecodeQuestions()
	if err != nil {
		log.Printf("Failed to decode AI quiz session %s: %v", session.ID, err)
		return nil, ServerError(err)
	}
	byQID := make(map[string]models.AIQuestion, len(questions))
	correct := make(map[string]int, len(questions))
	for _, q := range questions {
		byQID[q.QID] = q
		correct[q.QID] = q.CorrectOptionIndex
	}

	answers := make([]Answer[string], len(req.Answers))
	selected := make(map[string]int, len(req.Answers))
	for i, a := range req.Answers {
		if a.SelectedOptionIndex == nil {
			return nil, ValidationError("selectedOptionIndex is required for every answer")
		}
		qid := strings.TrimSpace(a.QID)
		answers[i] = Answer[string]{QuestionID: qid, SelectedOptionIndex: *a.SelectedOptionIndex}
		selected[qid] = *a.SelectedOptionIndex
	}

	score := ScoreAnswers(answers, correct)

	attempt := &models.QuizAttempt{
		UserID:          userID,
		Level:           session.Level,
		Subject:         session.Subject,
		Source:          models.SourceAI,
		ScorePercentage: score.ScorePercentage,
		TotalQuestions:  score.TotalQuestions,
		CorrectCount:    score.CorrectCount,
		IncorrectCount:  score.IncorrectCount,
		AIQuizSessionID: &session.ID,
	}
	for _, a := range score.Answers {
		q := byQID[a.QuestionID]
		snapshot, err := json.Marshal(q)
		if err != nil {
			return nil, ServerError(err)
		}
		attempt.Answers = append(attempt.Answers, models.AttemptAnswer{
			Position:            a.Position,
			QuestionID:          q.BankQuestionID,
			SelectedOptionIndex: a.SelectedOptionIndex,
			IsCorrect:           a.IsCorrect,
			Source:              models.SourceAI,
			AISnapshot:          datatypes.JSON(snapshot),
		})
	}

	claim := func(tx store.Store) error {
		ok, err := tx.Sessions().MarkSubmitted(ctx, session.ID, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return AlreadySubmitted("Quiz already submitted")
		}
		return nil
	}

	recorded, err := s.recorder.Record(ctx, attempt, claim)
	if err != nil {
		return nil, err
	}

	result := &AISubmitResult{
		QuizID:       session.ID,
		SubmitResult: *newSubmitResult(recorded),
		Review:       make([]ReviewItem, len(questions)),
	}
	for i, q := range questions {
		item := ReviewItem{
			QID:                q.QID,
			QuestionText:       q.QuestionText,
			Options:            q.Options,
			CorrectOptionIndex: q.CorrectOptionIndex,
			Explanation:        q.Explanation,
		}
		if sel, ok := selected[q.QID]; ok {
			item.SelectedOptionIndex = &sel
			item.IsCorrect = sel == q.CorrectOptionIndex
		}
		result.Review[i] = item
	}
	return result, nil
}
