package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"learnloop/models"
	"learnloop/store"
)

const (
	weakAreaCount          = 5
	recommendationCacheTTL = time.Hour
	warmUpSubject          = "Math"
	generalTopic           = "General"
)

type DashboardService struct {
	store store.Store
	ml    MLService
	cache Cache
}

// NewDashboardService builds the service. ml and cache may be nil.
func NewDashboardService(st store.Store, ml MLService, cache Cache) *DashboardService {
	return &DashboardService{store: st, ml: ml, cache: cache}
}

type WeakArea struct {
	Subject  string `json:"subject"`
	Topic    string `json:"topic"`
	Score    int    `json:"score"`
	Attempts int    `json:"attempts"`
}

type RecommendationAction struct {
	Type    string `json:"type"`
	Subject string `json:"subject"`
	Topic   string `json:"topic"`
}

type Recommendation struct {
	Title     string                `json:"title"`
	Minutes   int                   `json:"minutes,omitempty"`
	Questions int                   `json:"questions,omitempty"`
	Subject   string                `json:"subject,omitempty"`
	Topic     string                `json:"topic,omitempty"`
	Action    *RecommendationAction `json:"action,omitempty"`
}

type DashboardUser struct {
	Name                string  `json:"name"`
	Level               *string `json:"level,omitempty"`
	Points              int     `json:"points"`
	Streak              int     `json:"streak"`
	GameLevel           int     `json:"gameLevel"`
	ProgressToNextLevel int     `json:"progressToNextLevel"`
	OnboardingCompleted bool    `json:"onboardingCompleted"`
}

type DashboardSummary struct {
	NeedsOnboarding      bool             `json:"needsOnboarding"`
	User                 DashboardUser    `json:"user"`
	TodayRecommendations []Recommendation `json:"todayRecommendations,omitempty"`
	WeakAreas            []WeakArea       `json:"weakAreas,omitempty"`
}

func recommendationCacheKey(userID uint) string {
	return fmt.Sprintf("dashboard:recs:%d", userID)
}

func (s *DashboardService) Summary(ctx context.Context, userID uint) (*DashboardSummary, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("User not found")
	}
	if err != nil {
		log.Printf("Failed to load user %d: %v", userID, err)
		return nil, ServerError(err)
	}

	if !user.OnboardingCompleted {
		return &DashboardSummary{
			NeedsOnboarding: true,
			User:            DashboardUser{Name: user.Name},
		}, nil
	}

	attempts, err := s.store.Attempts().Recent(ctx, userID, store.AttemptQuery{})
	if err != nil {
		log.Printf("Failed to load attempts for user %d: %v", userID, err)
		return nil, ServerError(err)
	}
	weak := WeakAreas(attempts, weakAreaCount)

	return &DashboardSummary{
		User: DashboardUser{
			Name:                user.Name,
			Level:               user.Level,
			Points:              user.Points,
			Streak:              user.Streak,
			GameLevel:           user.GameLevel(),
			ProgressToNextLevel: user.ProgressToNextLevel(),
			OnboardingCompleted: true,
		},
		TodayRecommendations: s.recommendations(ctx, user, attempts, weak),
		WeakAreas:            weak,
	}, nil
}

// WeakAreas averages scores per subject and topic and returns the n lowest,
// breaking ties by the larger number of attempts.
func WeakAreas(attempts []models.QuizAttempt, n int) []WeakArea {
	type key struct{ subject, topic string }
	type agg struct {
		sum, count int
	}
	groups := map[key]*agg{}
	for _, a := range attempts {
		topic := strings.TrimSpace(a.Topic)
		if topic == "" {
			topic = generalTopic
		}
		k := key{a.Subject, topic}
		g, ok := groups[k]
		if !ok {
			g = &agg{}
			groups[k] = g
		}
		g.sum += a.ScorePercentage
		g.count++
	}

	type scored struct {
		WeakArea
		avg float64
	}
	all := make([]scored, 0, len(groups))
	for k, g := range groups {
		avg := float64(g.sum) / float64(g.count)
		all = append(all, scored{
			WeakArea: WeakArea{Subject: k.subject, Topic: k.topic, Score: int(math.Round(avg)), Attempts: g.count},
			avg:      avg,
		})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].avg != all[j].avg {
			return all[i].avg < all[j].avg
		}
		if all[i].Attempts != all[j].Attempts {
			return all[i].Attempts > all[j].Attempts
		}
		return all[i].Subject+all[i].Topic < all[j].Subject+all[j].Topic
	})

	out := []WeakArea{}
	for i := 0; i < len(all) && i < n; i++ {
		out = append(out, all[i].WeakArea)
	}
	return out
}

func (s *DashboardService) recommendations(ctx context.Context, user *models.User, attempts []models.QuizAttempt, weak []WeakArea) []Recommendation {
	key := recommendationCacheKey(user.ID)
	if s.cache != nil {
		var cached []Recommendation
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			log.Printf("Failed to read cached recommendations for user %d: %v", user.ID, err)
		}
		if found && len(cached) > 0 {
			return cached
		}
	}

	recs := s.mlRecommendations(ctx, user, attempts)
	if len(recs) == 0 {
		return fallbackRecommendations(weak)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, recs, recommendationCacheTTL); err != nil {
			log.Printf("Failed to cache recommendations for user %d: %v", user.ID, err)
		}
	}
	return recs
}

func (s *DashboardService) mlRecommendations(ctx context.Context, user *models.User, attempts []models.QuizAttempt) []Recommendation {
	if s.ml == nil || len(attempts) == 0 {
		return nil
	}
	recent := attempts
	if len(recent) > insightAttemptWindow {
		recent = recent[:insightAttemptWindow]
	}

	daily, err := s.ml.DailyRecommendations(ctx, mlInputFor(user, recent))
	if err != nil {
		log.Printf("Failed to fetch daily recommendations for user %d: %v", user.ID, err)
		return nil
	}
	recs := make([]Recommendation, 0, len(daily.Recommendations))
	for _, text := range daily.Recommendations {
		recs = append(recs, Recommendation{Title: text})
	}
	return recs
}

func fallbackRecommendations(weak []WeakArea) []Recommendation {
	if len(weak) > 0 {
		w := weak[0]
		return []Recommendation{{
			Title:     fmt.Sprintf("Practice %s: %s", w.Subject, w.Topic),
			Minutes:   15,
			Questions: 10,
			Subject:   w.Subject,
			Topic:     w.Topic,
			Action:    &RecommendationAction{Type: "start_quiz", Subject: w.Subject, Topic: w.Topic},
		}}
	}
	return []Recommendation{{
		Title:     "Take a quick warm-up quiz",
		Minutes:   10,
		Questions: 5,
		Subject:   warmUpSubject,
		Topic:     generalTopic,
		Action:    &RecommendationAction{Type: "start_quiz", Subject: warmUpSubject, Topic: generalTopic},
	}}
}
