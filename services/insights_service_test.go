package services

import (
	"context"
	"testing"
	"time"

	"learnloop/mlclient"
	"learnloop/models"
)

// fakeML records the inputs it was asked about and answers with canned
// values, or err when set.
type fakeML struct {
	err       error
	statusErr error
	inputs    []mlclient.Input
	daily     []string
}

func (f *fakeML) Health(ctx context.Context) (map[string]interface{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	return map[string]interface{}{"status": "healthy"}, nil
}

func (f *fakeML) PredictPerformance(ctx context.Context, in mlclient.Input) (*mlclient.Prediction, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	score := 81.5
	return &mlclient.Prediction{PredictedScore: &score, Confidence: 90, Message: "ok", Source: "ml"}, nil
}

func (f *fakeML) CheckRisk(ctx context.Context, in mlclient.Input) (*mlclient.Risk, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &mlclient.Risk{RiskLevel: "Low", Tips: []string{}}, nil
}

func (f *fakeML) PersonalizedPlan(ctx context.Context, in mlclient.Input) (*mlclient.Plan, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &mlclient.Plan{BestStudyTime: "Evening", Focus: "Chemistry"}, nil
}

func (f *fakeML) DailyRecommendations(ctx context.Context, in mlclient.Input) (*mlclient.DailyRecommendations, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &mlclient.DailyRecommendations{Recommendations: f.daily}, nil
}

func (f *fakeML) GamificationStatus(ctx context.Context, studentID string) (*mlclient.GamificationStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &mlclient.GamificationStatus{StudentID: studentID, Level: 9}, nil
}

// addAttempt stores a finished attempt without going through scoring.
func (e *testEnv) addAttempt(t *testing.T, userID uint, subject, topic string, score int, at time.Time) {
	t.Helper()
	err := e.store.Attempts().Create(context.Background(), &models.QuizAttempt{
		UserID:          userID,
		Level:           models.LevelClass11,
		Subject:         subject,
		Topic:           topic,
		Source:          models.SourceBank,
		ScorePercentage: score,
		TotalQuestions:  10,
		CorrectCount:    score / 10,
		IncorrectCount:  10 - score/10,
		CreatedAt:       at,
	})
	if err != nil {
		t.Fatalf("add attempt: %v", err)
	}
}

func TestInsightsWithoutHistoryUseStarterResponses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	ml := &fakeML{}
	svc := NewInsightsService(env.store, ml, nil)

	pred, err := svc.PredictPerformance(ctx, user.ID)
	if err != nil || !pred.Fallback || pred.PredictedScore != nil {
		t.Errorf("PredictPerformance() = %+v, %v", pred, err)
	}
	risk, err := svc.CheckRisk(ctx, user.ID)
	if err != nil || !risk.Fallback || risk.RiskLevel != "Unknown" || len(risk.Tips) != 2 {
		t.Errorf("CheckRisk() = %+v, %v", risk, err)
	}
	plan, err := svc.PersonalizedPlan(ctx, user.ID)
	if err != nil || !plan.Fallback || plan.BestStudyTime != "Evening" || len(plan.Schedule) != 3 {
		t.Errorf("PersonalizedPlan() = %+v, %v", plan, err)
	}
	recs, err := svc.DailyRecommendations(ctx, user.ID)
	if err != nil || !recs.Fallback || len(recs.Recommendations) != 3 {
		t.Errorf("DailyRecommendations() = %+v, %v", recs, err)
	}
	if len(ml.inputs) != 0 {
		t.Errorf("ML service called %d times for a user without history", len(ml.inputs))
	}
}

func TestInsightsUseRecentAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	for i := 0; i < 15; i++ {
		env.addAttempt(t, user.ID, "Physics", "", 50, testNow.Add(time.Duration(i)*time.Hour))
	}
	env.addAttempt(t, user.ID, "Chemistry", "", 90, testNow.Add(24*time.Hour))
	ml := &fakeML{}
	svc := NewInsightsService(env.store, ml, nil)

	pred, err := svc.PredictPerformance(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if pred.Fallback || *pred.PredictedScore != 81.5 {
		t.Errorf("prediction = %+v", pred)
	}

	in := ml.inputs[0]
	if len(in.RecentQuizScores) != 12 || in.RecentQuizScores[0] != 90 {
		t.Errorf("RecentQuizScores = %v, want 12 newest first", in.RecentQuizScores)
	}
	if in.WeakSubjects[0] != "Physics" {
		t.Errorf("WeakSubjects = %v", in.WeakSubjects)
	}
}

func TestInsightsServiceErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	env.addAttempt(t, user.ID, "Physics", "", 50, testNow)
	svc := NewInsightsService(env.store, &fakeML{err: &mlclient.Error{StatusCode: 400, Message: "bad input"}}, nil)

	if _, err := svc.CheckRisk(ctx, user.ID); KindOf(err) != KindServer {
		t.Errorf("err = %v, want ServerError", err)
	}
	if _, err := svc.PredictPerformance(ctx, 999); KindOf(err) != KindNotFound {
		t.Errorf("unknown user err = %v, want NotFound", err)
	}

	health := svc.Health(ctx)
	if health["status"] != "unhealthy" {
		t.Errorf("Health() = %v", health)
	}
}

func TestGamificationStatusFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	user.Points = 730
	user.Streak = 4
	user.StudentID = "S1234"
	if err := env.store.Users().Save(ctx, user); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		ml       MLService
		fallback bool
		wantErr  bool
	}{
		{"known student", &fakeML{}, false, false},
		{"unknown student", &fakeML{statusErr: &mlclient.Error{StatusCode: 404, Message: "Student not found"}}, true, false},
		{"unreachable", &fakeML{statusErr: &mlclient.Error{Message: "unreachable"}}, true, false},
		{"no service", nil, true, false},
		{"service failure", &fakeML{statusErr: &mlclient.Error{StatusCode: 400, Message: "boom"}}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewInsightsService(env.store, tt.ml, nil)
			status, err := svc.GamificationStatus(ctx, user.ID, "")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if status.Fallback != tt.fallback || status.StudentID != "S1234" {
				t.Errorf("status = %+v", status)
			}
			if tt.fallback && (status.Level != 2 || status.NextLevelIn != 270 || status.ProgressToNextLevel != 46 || status.StreakDays != 4) {
				t.Errorf("fallback status = %+v", status)
			}
		})
	}
}
