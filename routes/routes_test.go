package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"learnloop/handlers"
	"learnloop/routes"
	"learnloop/services"
	"learnloop/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type app struct {
	router *gin.Engine
	store  *store.Memory
	token  string
}

func newApp(t *testing.T) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if err := handlers.RegisterValidators(); err != nil {
		t.Fatal(err)
	}

	st := store.NewMemory()
	hub := services.NewHub()
	go hub.Run()

	authService := services.NewAuthService(st, "test-secret", time.Hour)
	questionService := services.NewQuestionService(st)
	recorder := services.NewAttemptRecorder(st, nil, hub)
	quizService := services.NewQuizService(st, recorder, nil, nil)
	aiQuizService := services.NewAIQuizService(st, nil, questionService, recorder)
	dashboardService := services.NewDashboardService(st, nil, nil)

	router := gin.New()
	routes.SetupRoutes(router, routes.Handlers{
		Auth:        handlers.NewAuthHandler(authService),
		Quiz:        handlers.NewQuizHandler(quizService, questionService),
		AIQuiz:      handlers.NewAIQuizHandler(aiQuizService),
		Onboarding:  handlers.NewOnboardingHandler(services.NewOnboardingService(st, nil)),
		Dashboard:   handlers.NewDashboardHandler(dashboardService),
		Insights:    handlers.NewInsightsHandler(services.NewInsightsService(st, nil, nil)),
		Coach:       handlers.NewCoachHandler(services.NewCoachService(st, nil)),
		Leaderboard: handlers.NewLeaderboardHandler(services.NewLeaderboardService(st, nil)),
		WS:          handlers.NewWSHandler(hub, ""),
	}, authService)

	for i := 0; i < 6; i++ {
		_, err := questionService.AddQuestion(context.Background(), &services.AddQuestionRequest{
			Level:              "Class 11",
			Subject:            "Physics",
			Topic:              "Motion",
			QuestionText:       fmt.Sprintf("Question %d?", i),
			Options:            []string{"right", "wrong", "wrong", "wrong"},
			CorrectOptionIndex: new(int),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	a := &app{router: router, store: st}
	var reg struct {
		Token string `json:"token"`
	}
	a.decode(t, a.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Mina", "email": "Mina@Example.com", "password": "secret1", "confirmPassword": "secret1",
	}, http.StatusCreated), &reg)
	a.token = reg.Token
	return a
}

func (a *app) do(t *testing.T, method, path string, body interface{}, wantStatus int) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	if w.Code != wantStatus {
		t.Fatalf("%s %s: status = %d, want %d: %s", method, path, w.Code, wantStatus, w.Body.String())
	}
	return w
}

func (a *app) decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

type questionsResponse struct {
	Questions []struct {
		ID uint `json:"id"`
	} `json:"questions"`
	Meta struct {
		Returned int `json:"returned"`
	} `json:"meta"`
}

func (a *app) fetchQuestions(t *testing.T, limit int) questionsResponse {
	t.Helper()
	q := url.Values{"subject": {"Physics"}, "level": {"Class 11"}, "limit": {fmt.Sprint(limit)}}
	var res questionsResponse
	a.decode(t, a.do(t, http.MethodGet, "/api/quiz/questions?"+q.Encode(), nil, http.StatusOK), &res)
	return res
}

func (a *app) submitAllCorrect(t *testing.T, qs questionsResponse) map[string]interface{} {
	t.Helper()
	answers := []map[string]interface{}{}
	for _, q := range qs.Questions {
		answers = append(answers, map[string]interface{}{"questionId": q.ID, "selectedOptionIndex": 0})
	}
	var res map[string]interface{}
	a.decode(t, a.do(t, http.MethodPost, "/api/quiz/submit", map[string]interface{}{
		"level": "Class 11", "subject": "Physics", "answers": answers,
	}, http.StatusOK), &res)
	return res
}

func TestQuizFlow(t *testing.T) {
	a := newApp(t)

	qs := a.fetchQuestions(t, 5)
	if len(qs.Questions) != 5 || qs.Meta.Returned != 5 {
		t.Fatalf("questions = %+v", qs)
	}
	if strings.Contains(a.do(t, http.MethodGet, "/api/quiz/questions?subject=Physics&level=Class+11&limit=5", nil, http.StatusOK).Body.String(), "correctOptionIndex") {
		t.Error("correct answers leaked to the client")
	}

	res := a.submitAllCorrect(t, qs)
	if res["scorePercentage"] != float64(100) || res["pointsEarned"] != float64(20) || res["newStreak"] != float64(1) {
		t.Errorf("submit = %v", res)
	}

	var progress struct {
		TotalQuizzes int `json:"totalQuizzes"`
		AvgScore     int `json:"avgScore"`
	}
	a.decode(t, a.do(t, http.MethodGet, "/api/quiz/progress", nil, http.StatusOK), &progress)
	if progress.TotalQuizzes != 1 || progress.AvgScore != 100 {
		t.Errorf("progress = %+v", progress)
	}

	var achievements struct {
		Achievements []struct {
			Key      string `json:"key"`
			Unlocked bool   `json:"unlocked"`
		} `json:"achievements"`
	}
	a.decode(t, a.do(t, http.MethodGet, "/api/achievements", nil, http.StatusOK), &achievements)
	if len(achievements.Achievements) == 0 || !achievements.Achievements[0].Unlocked {
		t.Errorf("achievements = %+v", achievements)
	}

	var lb struct {
		Leaderboard []services.LeaderboardEntry `json:"leaderboard"`
	}
	a.decode(t, a.do(t, http.MethodGet, "/api/leaderboard", nil, http.StatusOK), &lb)
	if len(lb.Leaderboard) != 1 || lb.Leaderboard[0].Points != 20 || lb.Leaderboard[0].Rank != 1 {
		t.Errorf("leaderboard = %+v", lb)
	}

	var reset services.ResetResult
	a.decode(t, a.do(t, http.MethodPost, "/api/quiz/reset", nil, http.StatusOK), &reset)
	if reset.DeletedAttempts != 1 {
		t.Errorf("reset = %+v", reset)
	}
}

func TestErrorResponses(t *testing.T) {
	a := newApp(t)

	var body struct {
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	}
	a.decode(t, a.do(t, http.MethodPost, "/api/quiz/submit", map[string]interface{}{
		"level": "Class 10", "subject": "Physics",
	}, http.StatusBadRequest), &body)
	if body.Message != "Validation failed" || body.Fields["level"] != "classlevel" || body.Fields["answers"] != "required" {
		t.Errorf("validation body = %+v", body)
	}

	a.decode(t, a.do(t, http.MethodPost, "/api/quiz/ai/submit", map[string]interface{}{
		"quizId":  "6f1c2a44-6c3e-4d7e-9d57-0f6b1f3c9a10",
		"answers": []map[string]interface{}{{"qid": "Q1", "selectedOptionIndex": 0}},
	}, http.StatusNotFound), &body)
	if body.Message == "" {
		t.Error("not found without a message")
	}

	a.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "mina@example.com", "password": "nope"}, http.StatusUnauthorized)
	a.do(t, http.MethodGet, "/api/nowhere", nil, http.StatusNotFound)

	a.token = ""
	a.decode(t, a.do(t, http.MethodGet, "/api/quiz/progress", nil, http.StatusUnauthorized), &body)
	if body.Message != "Not authorized, no token" {
		t.Errorf("message = %q", body.Message)
	}
}

func TestAIQuizFromBankWithoutModel(t *testing.T) {
	a := newApp(t)

	var quiz struct {
		QuizID    string `json:"quizId"`
		Fallback  bool   `json:"fallback"`
		Questions []struct {
			QID string `json:"qid"`
		} `json:"questions"`
	}
	a.decode(t, a.do(t, http.MethodPost, "/api/quiz/ai/generate", map[string]interface{}{
		"subject": "Physics", "level": "Class 11", "limit": 5,
	}, http.StatusCreated), &quiz)
	if !quiz.Fallback || len(quiz.Questions) != 5 {
		t.Fatalf("quiz = %+v", quiz)
	}

	answers := []map[string]interface{}{}
	for _, q := range quiz.Questions {
		answers = append(answers, map[string]interface{}{"qid": q.QID, "selectedOptionIndex": 0})
	}
	submit := map[string]interface{}{"quizId": quiz.QuizID, "answers": answers}
	var res map[string]interface{}
	a.decode(t, a.do(t, http.MethodPost, "/api/quiz/ai/submit", submit, http.StatusOK), &res)
	if res["scorePercentage"] != float64(100) {
		t.Errorf("submit = %v", res)
	}
	a.do(t, http.MethodPost, "/api/quiz/ai/submit", submit, http.StatusBadRequest)
}

func TestOnboardingDashboardAndCoach(t *testing.T) {
	a := newApp(t)

	var summary map[string]interface{}
	a.decode(t, a.do(t, http.MethodGet, "/api/dashboard/summary", nil, http.StatusOK), &summary)
	if summary["needsOnboarding"] != true {
		t.Errorf("summary = %v", summary)
	}

	a.do(t, http.MethodPut, "/api/onboarding/academic", map[string]string{"grade": "11", "faculty": "Management", "board": "NEB"}, http.StatusOK)
	a.do(t, http.MethodPut, "/api/onboarding/preferences", map[string]string{"studyPreference": "Practice", "studyTime": "Evening", "challenge": "Time management"}, http.StatusOK)
	a.do(t, http.MethodPost, "/api/onboarding/complete", nil, http.StatusOK)

	a.decode(t, a.do(t, http.MethodGet, "/api/dashboard/summary", nil, http.StatusOK), &summary)
	if summary["needsOnboarding"] != false {
		t.Errorf("summary after onboarding = %v", summary)
	}

	var coach struct {
		Success bool `json:"success"`
		Data    struct {
			Mode  string `json:"mode"`
			Reply string `json:"reply"`
		} `json:"data"`
	}
	a.decode(t, a.do(t, http.MethodPost, "/api/ai/coach", map[string]string{"message": "make me a study plan"}, http.StatusOK), &coach)
	if !coach.Success || coach.Data.Mode != services.ModePlan || coach.Data.Reply == "" {
		t.Errorf("coach = %+v", coach)
	}

	var pred map[string]interface{}
	a.decode(t, a.do(t, http.MethodPost, "/api/ml/predict-performance", nil, http.StatusOK), &pred)
	if pred["_fallback"] != true {
		t.Errorf("prediction = %v", pred)
	}
}

func TestWebsocketReceivesQuizResult(t *testing.T) {
	a := newApp(t)
	srv := httptest.NewServer(a.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + url.QueryEscape(a.token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The hub registers asynchronously; a ping round trip proves we are in.
	if err := conn.WriteJSON(services.Message{Type: "ping"}); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg services.Message
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "pong" {
		t.Fatalf("ping: %+v, %v", msg, err)
	}

	a.submitAllCorrect(t, a.fetchQuestions(t, 5))

	seen := map[string]bool{}
	for len(seen) < 2 {
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v (seen %v)", err, seen)
		}
		seen[msg.Type] = true
	}
	if !seen[services.EventQuizResult] || !seen[services.EventAchievementUnlocked] {
		t.Errorf("events = %v", seen)
	}

	if _, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil); err == nil {
		t.Error("unauthenticated websocket accepted")
	}
}
