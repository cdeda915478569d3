package store

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"learnloop/models"

	"github.com/google/uuid"
)

// Memory is an in-process Store. Transactions are serialized and roll back by
// restoring a snapshot, so writes made outside a transaction while one is
// running can be lost on rollback.
type Memory struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data memData
}

type memData struct {
	users        map[uint]models.User
	achievements map[uint][]models.Achievement
	questions    map[uint]models.Question
	attempts     map[uint]models.QuizAttempt
	sessions     map[uuid.UUID]models.AIQuizSession

	nextUserID     uint
	nextQuestionID uint
	nextAttemptID  uint
	nextAnswerID   uint
}

func NewMemory() *Memory {
	return &Memory{data: memData{
		users:        make(map[uint]models.User),
		achievements: make(map[uint][]models.Achievement),
		questions:    make(map[uint]models.Question),
		attempts:     make(map[uint]models.QuizAttempt),
		sessions:     make(map[uuid.UUID]models.AIQuizSession),
	}}
}

func (m *Memory) Users() UserRepository { return memUsers{m} }
func (m *Memory) Questions() QuestionRepository { return memQuestions{m} }
func (m *Memory) Attempts() AttemptRepository { return memAttempts{m} }
func (m *Memory) Sessions() SessionRepository { return memSessions{m} }

func (m *Memory) Transaction(ctx context.Context, fn func(tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	snapshot := m.data.clone()
	m.mu.RUnlock()

	if err := fn(memTx{m}); err != nil {
		m.mu.Lock()
		m.data = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// memTx is the view handed to a transaction body; nested transactions join it.
type memTx struct {
	*Memory
}

func (t memTx) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (d memData) clone() memData {
	c := memData{
		users:          make(map[uint]models.User, len(d.users)),
		achievements:   make(map[uint][]models.Achievement, len(d.achievements)),
		questions:      make(map[uint]models.Question, len(d.questions)),
		attempts:       make(map[uint]models.QuizAttempt, len(d.attempts)),
		sessions:       make(map[uuid.UUID]models.AIQuizSession, len(d.sessions)),
		nextUserID:     d.nextUserID,
		nextQuestionID: d.nextQuestionID,
		nextAttemptID:  d.nextAttemptID,
		nextAnswerID:   d.nextAnswerID,
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.achievements {
		c.achievements[k] = append([]models.Achievement(nil), v...)
	}
	for k, v := range d.questions {
		c.questions[k] = copyQuestion(v)
	}
	for k, v := range d.attempts {
		c.attempts[k] = copyAttempt(v)
	}
	for k, v := range d.sessions {
		c.sessions[k] = copySession(v)
	}
	return c
}

func copyQuestion(q models.Question) models.Question {
	q.Options = append([]string(nil), q.Options...)
	return q
}

func copyAttempt(a models.QuizAttempt) models.QuizAttempt {
	if a.Answers != nil {
		answers := make([]models.AttemptAnswer, len(a.Answers))
		for i, ans := range a.Answers {
			ans.AISnapshot = append([]byte(nil), ans.AISnapshot...)
			answers[i] = ans
		}
		a.Answers = answers
	}
	return a
}

func copySession(s models.AIQuizSession) models.AIQuizSession {
	s.Questions = append([]byte(nil), s.Questions...)
	return s
}

// ---------------------------------------------------------------------------
// users

type memUsers struct{ m *Memory }

func (r memUsers) Create(ctx context.Context, user *models.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	for _, u := range r.m.data.users {
		if strings.EqualFold(u.Email, user.Email) || (user.StudentID != "" && u.StudentID == user.StudentID) {
			return ErrDuplicate
		}
	}
	r.m.data.nextUserID++
	user.ID = r.m.data.nextUserID
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now

	stored := *user
	stored.Achievements = nil
	r.m.data.users[user.ID] = stored
	return nil
}

func (r memUsers) GetByID(ctx context.Context, id uint) (*models.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	u, ok := r.m.data.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.Achievements = append([]models.Achievement(nil), r.m.data.achievements[id]...)
	return &u, nil
}

func (r memUsers) GetByIDForUpdate(ctx context.Context, id uint) (*models.User, error) {
	return r.GetByID(ctx, id)
}

func (r memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	for _, u := range r.m.data.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (r memUsers) Save(ctx context.Context, user *models.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, ok := r.m.data.users[user.ID]; !ok {
		return ErrNotFound
	}
	for id, u := range r.m.data.users {
		if id != user.ID && strings.EqualFold(u.Email, user.Email) {
			return ErrDuplicate
		}
	}
	user.UpdatedAt = time.Now()
	stored := *user
	stored.Achievements = nil
	r.m.data.users[user.ID] = stored
	return nil
}

func (r memUsers) AddAchievements(ctx context.Context, userID uint, achievements []models.Achievement) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	existing := r.m.data.achievements[userID]
	for _, a := range achievements {
		dup := false
		for _, e := range existing {
			if e.Key == a.Key {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		existing = append(existing, models.Achievement{
			ID:         uint(len(existing) + 1),
			UserID:     userID,
			Key:        a.Key,
			UnlockedAt: a.UnlockedAt,
		})
	}
	r.m.data.achievements[userID] = existing
	return nil
}

func (r memUsers) TopByPoints(ctx context.Context, limit int) ([]models.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	users := make([]models.User, 0, len(r.m.data.users))
	for _, u := range r.m.data.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Points != users[j].Points {
			return users[i].Points > users[j].Points
		}
		return users[i].ID < users[j].ID
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// ---------------------------------------------------------------------------
// questions

type memQuestions struct{ m *Memory }

func (r memQuestions) Create(ctx context.Context, question *models.Question) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	r.m.data.nextQuestionID++
	question.ID = r.m.data.nextQuestionID
	now := time.Now()
	question.CreatedAt, question.UpdatedAt = now, now
	r.m.data.questions[question.ID] = copyQuestion(*question)
	return nil
}

func (r memQuestions) CreateBatch(ctx context.Context, questions []models.Question) error {
	for i := range questions {
		if err := r.Create(ctx, &questions[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r memQuestions) matching(subject, level string) []models.Question {
	var out []models.Question
	for _, q := range r.m.data.questions {
		if q.Subject == subject && q.Level == level {
			out = append(out, copyQuestion(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memQuestions) Count(ctx context.Context, subject, level string) (int64, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return int64(len(r.matching(subject, level))), nil
}

func (r memQuestions) Sample(ctx context.Context, subject, level string, exclude []uint, n int) ([]models.Question, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	skip := make(map[uint]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	var pool []models.Question
	for _, q := range r.matching(subject, level) {
		if _, ok := skip[q.ID]; !ok {
			pool = append(pool, q)
		}
	}
	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if n < len(pool) {
		pool = pool[:max(n, 0)]
	}
	return pool, nil
}

func (r memQuestions) GetByIDs(ctx context.Context, ids []uint) ([]models.Question, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var out []models.Question
	for _, id := range ids {
		if q, ok := r.m.data.questions[id]; ok {
			out = append(out, copyQuestion(q))
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// attempts

type memAttempts struct{ m *Memory }

func (r memAttempts) Create(ctx context.Context, attempt *models.QuizAttempt) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	r.m.data.nextAttemptID++
	attempt.ID = r.m.data.nextAttemptID
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now()
	}
	for i := range attempt.Answers {
		r.m.data.nextAnswerID++
		attempt.Answers[i].ID = r.m.data.nextAnswerID
		attempt.Answers[i].AttemptID = attempt.ID
	}
	r.m.data.attempts[attempt.ID] = copyAttempt(*attempt)
	return nil
}

func (r memAttempts) CountByUser(ctx context.Context, userID uint) (int64, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var n int64
	for _, a := range r.m.data.attempts {
		if a.UserID == userID {
			n++
		}
	}
	return n, nil
}

// newestFirst returns the user's attempts matching subject/level, newest first.
func (r memAttempts) newestFirst(userID uint, subject, level string) []models.QuizAttempt {
	var out []models.QuizAttempt
	for _, a := range r.m.data.attempts {
		if a.UserID != userID {
			continue
		}
		if subject != "" && a.Subject != subject {
			continue
		}
		if level != "" && a.Level != level {
			continue
		}
		out = append(out, copyAttempt(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r memAttempts) Recent(ctx context.Context, userID uint, q AttemptQuery) ([]models.QuizAttempt, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	out := r.newestFirst(userID, q.Subject, q.Level)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	for i := range out {
		out[i].Answers = nil
	}
	return out, nil
}

func (r memAttempts) RecentQuestionIDs(ctx context.Context, userID uint, subject, level string, attempts, max int) ([]uint, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var ids []uint
	recent := r.newestFirst(userID, subject, level)
	if len(recent) > attempts {
		recent = recent[:attempts]
	}
	for _, a := range recent {
		for _, ans := range a.Answers {
			if ans.QuestionID == nil {
				continue
			}
			ids = append(ids, *ans.QuestionID)
			if len(ids) >= max {
				return ids, nil
			}
		}
	}
	return ids, nil
}

func (r memAttempts) DeleteByUser(ctx context.Context, userID uint) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	var n int64
	for id, a := range r.m.data.attempts {
		if a.UserID == userID {
			delete(r.m.data.attempts, id)
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// AI quiz sessions

type memSessions struct{ m *Memory }

func (r memSessions) Create(ctx context.Context, session *models.AIQuizSession) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	now := time.Now()
	session.CreatedAt, session.UpdatedAt = now, now
	r.m.data.sessions[session.ID] = copySession(*session)
	return nil
}

func (r memSessions) GetForUser(ctx context.Context, id uuid.UUID, userID uint) (*models.AIQuizSession, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	s, ok := r.m.data.sessions[id]
	if !ok || s.UserID != userID {
		return nil, ErrNotFound
	}
	s = copySession(s)
	return &s, nil
}

func (r memSessions) MarkSubmitted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	s, ok := r.m.data.sessions[id]
	if !ok || s.IsSubmitted {
		return false, nil
	}
	s.IsSubmitted = true
	s.SubmittedAt = &at
	s.UpdatedAt = at
	r.m.data.sessions[id] = s
	return true, nil
}
