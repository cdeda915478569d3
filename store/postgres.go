package store

import (
	"context"
	"errors"
	"time"

	"learnloop/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates or updates every table the store uses.
func (s *Postgres) Migrate() error {
	return s.db.AutoMigrate(
		&models.User{},
		&models.Achievement{},
		&models.Question{},
		&models.QuizAttempt{},
		&models.AttemptAnswer{},
		&models.AIQuizSession{},
	)
}

func (s *Postgres) Users() UserRepository { return &pgUsers{db: s.db} }
func (s *Postgres) Questions() QuestionRepository { return &pgQuestions{db: s.db} }
func (s *Postgres) Attempts() AttemptRepository { return &pgAttempts{db: s.db} }
func (s *Postgres) Sessions() SessionRepository { return &pgSessions{db: s.db} }

func (s *Postgres) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Postgres{db: tx})
	})
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

// ---------------------------------------------------------------------------
// users

type pgUsers struct {
	db *gorm.DB
}

func (r *pgUsers) Create(ctx context.Context, user *models.User) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Create(user).Error)
}

func (r *pgUsers) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Preload("Achievements", func(db *gorm.DB) *gorm.DB {
			return db.Order("unlocked_at")
		}).
		First(&user, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *pgUsers) GetByIDForUpdate(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, id).Error
	if err != nil {
		return nil, translate(err)
	}
	if err := r.db.WithContext(ctx).Where("user_id = ?", id).Order("unlocked_at").
		Find(&user.Achievements).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *pgUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *pgUsers) Save(ctx context.Context, user *models.User) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Save(user).Error)
}

func (r *pgUsers) AddAchievements(ctx context.Context, userID uint, achievements []models.Achievement) error {
	if len(achievements) == 0 {
		return nil
	}
	rows := make([]models.Achievement, len(achievements))
	for i, a := range achievements {
		rows[i] = models.Achievement{UserID: userID, Key: a.Key, UnlockedAt: a.UnlockedAt}
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "key"}},
			DoNothing: true,
		}).
		Create(&rows).Error
}

func (r *pgUsers) TopByPoints(ctx context.Context, limit int) ([]models.User, error) {
	var users []models.User
	q := r.db.WithContext(ctx).Order("points DESC").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&users).Error
	return users, err
}

// ---------------------------------------------------------------------------
// questions

type pgQuestions struct {
	db *gorm.DB
}

func (r *pgQuestions) Create(ctx context.Context, question *models.Question) error {
	return r.db.WithContext(ctx).Create(question).Error
}

func (r *pgQuestions) CreateBatch(ctx context.Context, questions []models.Question) error {
	if len(questions) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(&questions, 100).Error
}

func (r *pgQuestions) Count(ctx context.Context, subject, level string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Question{}).
		Where("subject = ? AND level = ?", subject, level).
		Count(&n).Error
	return n, err
}

func (r *pgQuestions) Sample(ctx context.Context, subject, level string, exclude []uint, n int) ([]models.Question, error) {
	var questions []models.Question
	if n <= 0 {
		return questions, nil
	}
	q := r.db.WithContext(ctx).Where("subject = ? AND level = ?", subject, level)
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}
	err := q.Order("RANDOM()").Limit(n).Find(&questions).Error
	return questions, err
}

func (r *pgQuestions) GetByIDs(ctx context.Context, ids []uint) ([]models.Question, error) {
	var questions []models.Question
	if len(ids) == 0 {
		return questions, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error
	return questions, err
}

// ---------------------------------------------------------------------------
// attempts

type pgAttempts struct {
	db *gorm.DB
}

func (r *pgAttempts) Create(ctx context.Context, attempt *models.QuizAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *pgAttempts) CountByUser(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.QuizAttempt{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}

func (r *pgAttempts) Recent(ctx context.Context, userID uint, q AttemptQuery) ([]models.QuizAttempt, error) {
	var attempts []models.QuizAttempt
	db := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if q.Subject != "" {
		db = db.Where("subject = ?", q.Subject)
	}
	if q.Level != "" {
		db = db.Where("level = ?", q.Level)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	err := db.Order("created_at DESC").Order("id DESC").Find(&attempts).Error
	return attempts, err
}

func (r *pgAttempts) RecentQuestionIDs(ctx context.Context, userID uint, subject, level string, attempts, max int) ([]uint, error) {
	var ids []uint
	recent := r.db.Model(&models.QuizAttempt{}).
		Select("id").
		Where("user_id = ? AND subject = ? AND level = ?", userID, subject, level).
		Order("created_at DESC").Order("id DESC").
		Limit(attempts)

	err := r.db.WithContext(ctx).Model(&models.AttemptAnswer{}).
		Where("attempt_id IN (?)", recent).
		Where("question_id IS NOT NULL").
		Order("attempt_id DESC").Order("position").
		Limit(max).
		Pluck("question_id", &ids).Error
	return ids, err
}

func (r *pgAttempts) DeleteByUser(ctx context.Context, userID uint) (int64, error) {
	owned := r.db.Model(&models.QuizAttempt{}).Select("id").Where("user_id = ?", userID)
	if err := r.db.WithContext(ctx).Where("attempt_id IN (?)", owned).
		Delete(&models.AttemptAnswer{}).Error; err != nil {
		return 0, err
	}
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.QuizAttempt{})
	return res.RowsAffected, res.Error
}

// ---------------------------------------------------------------------------
// AI quiz sessions

type pgSessions struct {
	db *gorm.DB
}

func (r *pgSessions) Create(ctx context.Context, session *models.AIQuizSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *pgSessions) GetForUser(ctx context.Context, id uuid.UUID, userID uint) (*models.AIQuizSession, error) {
	var session models.AIQuizSession
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&session).Error
	if err != nil {
		return nil, translate(err)
	}
	return &session, nil
}

func (r *pgSessions) MarkSubmitted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.AIQuizSession{}).
		Where("id = ? AND is_submitted = ?", id, false).
		Updates(map[string]interface{}{"is_submitted": true, "submitted_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
