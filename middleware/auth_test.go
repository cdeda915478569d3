package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"learnloop/middleware"
	"learnloop/models"
	"learnloop/services"
	"learnloop/store"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func setup(t *testing.T) (*gin.Engine, *services.AuthService, *models.User) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := store.NewMemory()
	auth := services.NewAuthService(st, "test-secret", time.Hour)

	user := &models.User{Name: "Ravi", Email: "ravi@example.com", Password: "x"}
	if err := st.Users().Create(context.Background(), user); err != nil {
		t.Fatal(err)
	}

	r := gin.New()
	r.GET("/me", middleware.AuthMiddleware(auth), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.GetUint(middleware.UserIDKey)})
	})
	r.GET("/ws", middleware.QueryTokenAuth(auth), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r, auth, user
}

func message(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return body.Message
}

func TestAuthMiddleware(t *testing.T) {
	r, auth, user := setup(t)
	valid, _ := auth.GenerateToken(user.ID)
	ghost, _ := auth.GenerateToken(user.ID + 100)
	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, services.Claims{
		UserID:           user.ID,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	}).SignedString([]byte("test-secret"))

	tests := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{"no header", "", http.StatusUnauthorized, "Not authorized, no token"},
		{"not bearer", "Basic abc", http.StatusUnauthorized, "Not authorized, no token"},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized, "Invalid token"},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, "Token expired"},
		{"unknown user", "Bearer " + ghost, http.StatusUnauthorized, "User not found"},
		{"valid", "Bearer " + valid, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
			if tt.message != "" && message(t, w) != tt.message {
				t.Errorf("message = %q, want %q", message(t, w), tt.message)
			}
		})
	}
}

func TestQueryTokenAuth(t *testing.T) {
	r, auth, user := setup(t)
	token, _ := auth.GenerateToken(user.ID)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	if w.Code != http.StatusOK {
		t.Errorf("query token: status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token="+token, nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("header-only route accepted a query token: status = %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.CORS("http://localhost:5173"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/x", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("allow origin = %q", got)
	}
}
