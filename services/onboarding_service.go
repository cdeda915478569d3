package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"learnloop/mlclient"
	"learnloop/models"
	"learnloop/store"
)

var (
	validGrades          = []string{"11", "12"}
	validFaculties       = []string{"Science", "Management", "Humanities"}
	validBoards          = []string{"NEB", "Other"}
	validScienceStreams  = []string{"Biology", "Computer Science"}
	validStudyPreference = []string{"Visual", "Reading/Writing", "Practice"}
	validStudyTimes      = []string{"Morning", "Afternoon", "Evening", "Night"}
	validChallenges      = []string{"Time management", "Understanding concepts", "Exam anxiety", "Staying motivated"}
)

const challengeExamAnxiety = "Exam anxiety"

type OnboardingService struct {
	store store.Store
	ml    MLService
	now   func() time.Time
}

// NewOnboardingService builds the service. ml may be nil, in which case no
// prediction is stored on completion.
func NewOnboardingService(st store.Store, ml MLService) *OnboardingService {
	return &OnboardingService{store: st, ml: ml, now: time.Now}
}

type AcademicProfileRequest struct {
	Grade         string `json:"grade"`
	Faculty       string `json:"faculty"`
	Board         string `json:"board"`
	SchoolName    string `json:"schoolName"`
	ScienceStream string `json:"scienceStream"`
}

type LearningPreferencesRequest struct {
	StudyPreference string `json:"studyPreference"`
	StudyTime       string `json:"studyTime"`
	Challenge       string `json:"challenge"`
}

type AcademicProfileResult struct {
	Message         string                 `json:"message"`
	AcademicProfile models.AcademicProfile `json:"academicProfile"`
	Level           string                 `json:"level"`
}

type LearningPreferencesResult struct {
	Message             string                     `json:"message"`
	LearningPreferences models.LearningPreferences `json:"learningPreferences"`
}

type OnboardingResult struct {
	Message             string               `json:"message"`
	OnboardingCompleted bool                 `json:"onboardingCompleted"`
	AIPredictions       models.AIPredictions `json:"aiPredictions"`
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

func (s *OnboardingService) UpdateAcademicProfile(ctx context.Context, userID uint, req *AcademicProfileRequest) (*AcademicProfileResult, error) {
	grade := strings.TrimSpace(req.Grade)
	faculty := strings.TrimSpace(req.Faculty)
	board := strings.TrimSpace(req.Board)
	stream := strings.TrimSpace(req.ScienceStream)

	if grade == "" || faculty == "" || board == "" {
		return nil, ValidationError("grade, faculty, and board are required")
	}
	if !oneOf(grade, validGrades) {
		return nil, ValidationError("grade must be 11 or 12")
	}
	if !oneOf(faculty, validFaculties) {
		return nil, ValidationError("faculty must be Science, Management or Humanities")
	}
	if !oneOf(board, validBoards) {
		return nil, ValidationError("board must be NEB or Other")
	}
	if faculty == "Science" && !oneOf(stream, validScienceStreams) {
		return nil, ValidationError("For Science faculty, scienceStream must be Biology or Computer Science")
	}
	if faculty != "Science" {
		stream = ""
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.AcademicProfile = models.AcademicProfile{
		Grade:         &grade,
		Faculty:       &faculty,
		Board:         board,
		SchoolName:    strings.TrimSpace(req.SchoolName),
		ScienceStream: models.StringPtr(stream),
	}
	level := models.LevelClass12
	if grade == "11" {
		level = models.LevelClass11
	}
	user.Level = &level

	if err := s.store.Users().Save(ctx, user); err != nil {
		log.Printf("Failed to save academic profile for user %d: %v", userID, err)
		return nil, ServerError(err)
	}
	return &AcademicProfileResult{
		Message:         "Academic profile updated",
		AcademicProfile: user.AcademicProfile,
		Level:           level,
	}, nil
}

func (s *OnboardingService) UpdateLearningPreferences(ctx context.Context, userID uint, req *LearningPreferencesRequest) (*LearningPreferencesResult, error) {
	pref := strings.TrimSpace(req.StudyPreference)
	studyTime := strings.TrimSpace(req.StudyTime)
	challenge := strings.TrimSpace(req.Challenge)

	if pref == "" || studyTime == "" || challenge == "" {
		return nil, ValidationError("studyPreference, studyTime, challenge are required")
	}
	if !oneOf(pref, validStudyPreference) {
		return nil, ValidationError("studyPreference must be Visual, Reading/Writing or Practice")
	}
	if !oneOf(studyTime, validStudyTimes) {
		return nil, ValidationError("studyTime must be Morning, Afternoon, Evening or Night")
	}
	if !oneOf(challenge, validChallenges) {
		return nil, ValidationError("challenge is not recognised")
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.LearningPreferences = models.LearningPreferences{
		StudyPreference: &pref,
		StudyTime:       &studyTime,
		Challenge:       &challenge,
	}
	user.PreferredLearningTime = studyTime
	user.LearningStyle = pref
	if pref == "Practice" {
		user.LearningStyle = "Kinesthetic"
	}
	if challenge == challengeExamAnxiety {
		user.ExamAnxietyLevel = "High"
	}

	if err := s.store.Users().Save(ctx, user); err != nil {
		log.Printf("Failed to save learning preferences for user %d: %v", userID, err)
		return nil, ServerError(err)
	}
	return &LearningPreferencesResult{
		Message:             "Learning preferences updated",
		LearningPreferences: user.LearningPreferences,
	}, nil
}

// Complete marks onboarding as finished once both steps are filled in. A
// first prediction is requested from the ML service; if that fails the
// user is still onboarded.
func (s *OnboardingService) Complete(ctx context.Context, userID uint) (*OnboardingResult, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.AcademicProfile.Grade == nil || user.LearningPreferences.StudyPreference == nil {
		return nil, ValidationError("Complete academic profile and learning preferences before finishing onboarding")
	}
	if models.StringValue(user.AcademicProfile.Faculty) == "Science" && user.AcademicProfile.ScienceStream == nil {
		return nil, ValidationError("Please choose Biology or Computer Science before finishing onboarding")
	}

	user.OnboardingCompleted = true
	s.predict(ctx, user)

	if err := s.store.Users().Save(ctx, user); err != nil {
		log.Printf("Failed to complete onboarding for user %d: %v", userID, err)
		return nil, ServerError(err)
	}
	return &OnboardingResult{
		Message:             "Onboarding completed",
		OnboardingCompleted: true,
		AIPredictions:       user.AIPredictions,
	}, nil
}

func (s *OnboardingService) predict(ctx context.Context, user *models.User) {
	if s.ml == nil {
		return
	}
	in := mlclient.BuildInput(mlclient.Profile{
		StudentID:             user.StudentID,
		Grade:                 user.AcademicProfile.Grade,
		Faculty:               user.AcademicProfile.Faculty,
		PreferredLearningTime: user.PreferredLearningTime,
		MotivationLevel:       user.MotivationLevel,
		ExamAnxietyLevel:      user.ExamAnxietyLevel,
		Grade11Percentage:     &user.Grade11Percentage,
		AttendanceRate:        &user.AttendanceRate,
		StudyHoursPerDay:      &user.StudyHoursPerDay,
	})

	prediction, err := s.ml.PredictPerformance(ctx, in)
	if err != nil {
		log.Printf("Failed to fetch onboarding prediction for user %d: %v", user.ID, err)
		return
	}

	riskLevel := "Medium"
	if risk, err := s.ml.CheckRisk(ctx, in); err == nil && risk.RiskLevel != "Unknown" {
		riskLevel = risk.RiskLevel
	}
	now := s.now()
	user.AIPredictions = models.AIPredictions{
		PredictedGrade12: prediction.PredictedScore,
		RiskLevel:        &riskLevel,
		LastUpdated:      &now,
	}
}

func (s *OnboardingService) loadUser(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("User not found")
	}
	if err != nil {
		log.Printf("Failed to load user %d: %v", userID, err)
		return nil, ServerError(err)
	}
	return user, nil
}
