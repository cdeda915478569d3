package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"learnloop/models"
)

func newOnboarding(env *testEnv, ml MLService) *OnboardingService {
	svc := NewOnboardingService(env.store, ml)
	svc.now = func() time.Time { return env.clock }
	return svc
}

func TestAcademicProfileValidation(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t)
	svc := newOnboarding(env, nil)

	tests := []struct {
		name string
		req  AcademicProfileRequest
		want string
	}{
		{"missing", AcademicProfileRequest{Grade: "11"}, "grade, faculty, and board are required"},
		{"bad grade", AcademicProfileRequest{Grade: "10", Faculty: "Science", Board: "NEB"}, "grade must be 11 or 12"},
		{"science without stream", AcademicProfileRequest{Grade: "11", Faculty: "Science", Board: "NEB"}, "For Science faculty, scienceStream must be Biology or Computer Science"},
		{"bad stream", AcademicProfileRequest{Grade: "11", Faculty: "Science", Board: "NEB", ScienceStream: "Geology"}, "For Science faculty, scienceStream must be Biology or Computer Science"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateAcademicProfile(context.Background(), user.ID, &tt.req)
			if KindOf(err) != KindValidation || MessageOf(err) != tt.want {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestAcademicProfileSetsLevel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	svc := newOnboarding(env, nil)

	res, err := svc.UpdateAcademicProfile(ctx, user.ID, &AcademicProfileRequest{
		Grade: "12", Faculty: "Management", Board: "NEB", ScienceStream: "Biology",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Level != models.LevelClass12 || res.AcademicProfile.ScienceStream != nil {
		t.Errorf("result = %+v", res)
	}

	stored, _ := env.store.Users().GetByID(ctx, user.ID)
	if models.StringValue(stored.Level) != models.LevelClass12 {
		t.Errorf("stored level = %v", stored.Level)
	}
}

func TestLearningPreferencesMapping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	svc := newOnboarding(env, nil)

	_, err := svc.UpdateLearningPreferences(ctx, user.ID, &LearningPreferencesRequest{
		StudyPreference: "Practice", StudyTime: "Night", Challenge: "Exam anxiety",
	})
	if err != nil {
		t.Fatal(err)
	}
	stored, _ := env.store.Users().GetByID(ctx, user.ID)
	if stored.LearningStyle != "Kinesthetic" || stored.PreferredLearningTime != "Night" || stored.ExamAnxietyLevel != "High" {
		t.Errorf("user = style %q, time %q, anxiety %q", stored.LearningStyle, stored.PreferredLearningTime, stored.ExamAnxietyLevel)
	}

	_, err = svc.UpdateLearningPreferences(ctx, user.ID, &LearningPreferencesRequest{
		StudyPreference: "Osmosis", StudyTime: "Night", Challenge: "Exam anxiety",
	})
	if KindOf(err) != KindValidation {
		t.Errorf("unknown preference err = %v", err)
	}
}

func completeSteps(t *testing.T, svc *OnboardingService, userID uint) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.UpdateAcademicProfile(ctx, userID, &AcademicProfileRequest{Grade: "11", Faculty: "Science", Board: "NEB", ScienceStream: "Biology"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.UpdateLearningPreferences(ctx, userID, &LearningPreferencesRequest{StudyPreference: "Visual", StudyTime: "Morning", Challenge: "Staying motivated"}); err != nil {
		t.Fatal(err)
	}
}

func TestCompleteOnboarding(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	ml := &fakeML{}
	svc := newOnboarding(env, ml)

	if _, err := svc.Complete(ctx, user.ID); KindOf(err) != KindValidation {
		t.Fatalf("premature Complete() err = %v, want validation", err)
	}

	user.Grade11Percentage = 64
	if err := env.store.Users().Save(ctx, user); err != nil {
		t.Fatal(err)
	}
	completeSteps(t, svc, user.ID)
	res, err := svc.Complete(ctx, user.ID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !res.OnboardingCompleted {
		t.Error("OnboardingCompleted = false")
	}
	if res.AIPredictions.PredictedGrade12 == nil || *res.AIPredictions.PredictedGrade12 != 81.5 {
		t.Errorf("AIPredictions = %+v", res.AIPredictions)
	}
	if models.StringValue(res.AIPredictions.RiskLevel) != "Low" || !res.AIPredictions.LastUpdated.Equal(env.clock) {
		t.Errorf("AIPredictions = %+v", res.AIPredictions)
	}
	if got := ml.inputs[0].Grade11Percentage; got != 64 {
		t.Errorf("prediction input grade11 = %v, want the stored 64", got)
	}

	stored, _ := env.store.Users().GetByID(ctx, user.ID)
	if !stored.OnboardingCompleted {
		t.Error("onboarding not persisted")
	}
}

func TestCompleteOnboardingIgnoresPredictionFailure(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t)
	svc := newOnboarding(env, &fakeML{err: errors.New("connection refused")})
	completeSteps(t, svc, user.ID)

	res, err := svc.Complete(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !res.OnboardingCompleted || res.AIPredictions.PredictedGrade12 != nil {
		t.Errorf("result = %+v", res)
	}
}
