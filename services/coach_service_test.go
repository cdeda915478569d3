package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"learnloop/llm"
	"learnloop/models"
)

func newCoach(env *testEnv, gen llm.Generator) *CoachService {
	svc := NewCoachService(env.store, gen)
	svc.now = func() time.Time { return env.clock }
	return svc
}

func TestResolveMode(t *testing.T) {
	tests := []struct {
		mode, message, want string
	}{
		{"", "Teach me integration", ModeTutor},
		{"auto", "explain Newton's laws", ModeTutor},
		{"auto", "make me a 7-day plan", ModePlan},
		{"auto", "I keep struggling with chemistry", ModeWeakness},
		{"auto", "I feel lazy today", ModeStreak},
		{"auto", "what should I do now?", ModeRecommend},
		{"coach", "teach me algebra", ModeCoach},
	}
	for _, tt := range tests {
		if got := ResolveMode(tt.mode, tt.message); got != tt.want {
			t.Errorf("ResolveMode(%q, %q) = %q, want %q", tt.mode, tt.message, got, tt.want)
		}
	}
}

func TestPickLimit(t *testing.T) {
	tests := []struct {
		score  int
		atRisk bool
		want   int
	}{
		{40, false, 15},
		{55, false, 15},
		{56, false, 10},
		{70, false, 10},
		{71, false, 5},
		{40, true, 5},
	}
	for _, tt := range tests {
		if got := pickLimit(tt.score, tt.atRisk); got != tt.want {
			t.Errorf("pickLimit(%d, %v) = %d, want %d", tt.score, tt.atRisk, got, tt.want)
		}
	}
}

func TestBuildMotivationStreakAtRisk(t *testing.T) {
	user := &models.User{Streak: 4, LastActiveDate: daysAgo(2)}
	m := buildMotivation(user, testNow)
	if !m.atRisk || m.StreakReminder == nil || !strings.Contains(*m.StreakReminder, "at risk") {
		t.Errorf("motivation = %+v", m)
	}

	user.LastActiveDate = daysAgo(1)
	m = buildMotivation(user, testNow)
	if m.atRisk || m.StreakReminder == nil {
		t.Errorf("yesterday: motivation = %+v", m)
	}

	user.Streak = 0
	user.LastActiveDate = daysAgo(2)
	if m := buildMotivation(user, testNow); m.atRisk {
		t.Error("a zero streak cannot be at risk")
	}
}

func TestSevenDayPlanUsesWeakestSubject(t *testing.T) {
	plan := SevenDayPlan(models.LevelClass12, "Science", "Biology", "Chemistry")
	if len(plan) != 7 {
		t.Fatalf("plan has %d days", len(plan))
	}
	if plan[0].Quiz.Subject != "Chemistry" || plan[2].Quiz.Limit != 15 || plan[3].Quiz.Subject != "Chemistry" {
		t.Errorf("plan = %+v", plan[:4])
	}

	plan = SevenDayPlan(models.LevelClass11, "Management", "", "Physics")
	if plan[0].Quiz.Subject != "Accounting" || plan[3].Quiz.Subject != "Economics" {
		t.Errorf("subject outside the pool should be ignored: %+v", plan[:4])
	}
}

func TestSanitizePlan(t *testing.T) {
	fallback := SevenDayPlan(models.LevelClass11, "Humanities", "", "")
	var gen []generatedPlanDay
	gen = append(gen, generatedPlanDay{Day: 2, Title: "  ", Tasks: []string{" read ", "", "write", "a", "b", "c", "d", "e"}})
	gen[0].Quiz.Subject = "English"
	gen[0].Quiz.Limit = 12
	gen = append(gen, generatedPlanDay{Day: 9, Title: "ignored"})

	plan := sanitizePlan(gen, fallback)
	if len(plan) != 7 {
		t.Fatalf("plan has %d days", len(plan))
	}
	day2 := plan[1]
	if day2.Title != fallback[1].Title || len(day2.Tasks) != 6 || day2.Tasks[0] != "read" {
		t.Errorf("day 2 = %+v", day2)
	}
	if day2.Quiz.Subject != "English" || day2.Quiz.Limit != fallback[1].Quiz.Limit {
		t.Errorf("day 2 quiz = %+v", day2.Quiz)
	}
	if plan[0].Title != fallback[0].Title {
		t.Error("missing days should keep the fallback")
	}
}

func TestCoachCannedRepliesWithoutModel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	env.addAttempt(t, user.ID, "Chemistry", "", 45, testNow)
	env.addAttempt(t, user.ID, "Physics", "", 85, testNow)
	svc := newCoach(env, nil)

	tests := []struct {
		message  string
		mode     string
		contains string
		planLen  int
	}{
		{"make a study plan", ModePlan, "7-day plan", 7},
		{"how do I improve?", ModeWeakness, "Chemistry", 0},
		{"remind me about my streak", ModeStreak, "Start small", 0},
		{"teach me redox", ModeTutor, "Tutor mode", 0},
		{"hello", ModeRecommend, "Chemistry", 7},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			reply, err := svc.Coach(ctx, user.ID, &CoachRequest{Message: tt.message})
			if err != nil {
				t.Fatalf("Coach() error = %v", err)
			}
			if reply.Mode != tt.mode || !strings.Contains(reply.Reply, tt.contains) || len(reply.SevenDayPlan) != tt.planLen {
				t.Errorf("reply = mode %q, %d plan days, %q", reply.Mode, len(reply.SevenDayPlan), reply.Reply)
			}
		})
	}
}

func TestCoachRecommendsQuiz(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	env.addAttempt(t, user.ID, "Chemistry", "", 45, testNow)
	svc := newCoach(env, &fakeGenerator{payload: `{"reply":"Do a chemistry quiz."}`})

	reply, err := svc.Coach(ctx, user.ID, &CoachRequest{Message: "what next?"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Reply != "Do a chemistry quiz." {
		t.Errorf("Reply = %q", reply.Reply)
	}
	q := reply.RecommendedQuiz
	if q == nil || q.Subject != "Chemistry" || q.Limit != 15 || q.Level != models.LevelClass11 {
		t.Errorf("RecommendedQuiz = %+v", q)
	}
	if reply.Progress.WeakestSubject == nil || reply.Progress.TotalQuizzes != 1 {
		t.Errorf("Progress = %+v", reply.Progress)
	}

	reply, _ = svc.Coach(ctx, user.ID, &CoachRequest{Message: "quiz me on physics"})
	if reply.RecommendedQuiz.Subject != "Physics" || reply.RecommendedQuiz.Limit != 10 {
		t.Errorf("hinted RecommendedQuiz = %+v", reply.RecommendedQuiz)
	}
}

func TestCoachPlanFromModel(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t)
	payload := `{"reply":"Here is your week.","sevenDayPlan":[{"day":1,"title":"Kickoff","tasks":["Read chapter 1"],"quiz":{"subject":"Physics","level":"Class 11","limit":5}}]}`
	svc := newCoach(env, &fakeGenerator{payload: payload})

	reply, err := svc.Coach(context.Background(), user.ID, &CoachRequest{Mode: "plan"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Reply != "Here is your week." || len(reply.SevenDayPlan) != 7 {
		t.Fatalf("reply = %+v", reply)
	}
	if reply.SevenDayPlan[0].Title != "Kickoff" || reply.SevenDayPlan[0].Quiz.Limit != 5 {
		t.Errorf("day 1 = %+v", reply.SevenDayPlan[0])
	}
}

func TestCoachModelFailureNeverErrors(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t)
	svc := newCoach(env, &fakeGenerator{err: errors.New("boom")})

	for _, mode := range []string{ModeTutor, ModePlan, ModeCoach, ModeRecommend} {
		reply, err := svc.Coach(context.Background(), user.ID, &CoachRequest{Mode: mode, Message: "help"})
		if err != nil || reply.Reply == "" {
			t.Errorf("mode %s: reply %+v, err %v", mode, reply, err)
		}
	}

	if _, err := svc.Coach(context.Background(), user.ID, &CoachRequest{Mode: "dance"}); KindOf(err) != KindValidation {
		t.Errorf("unknown mode err = %v", err)
	}
}
