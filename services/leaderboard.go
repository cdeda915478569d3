package services

import (
	"context"
	"log"
	"strconv"
	"time"

	"learnloop/models"
	"learnloop/store"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

const (
	leaderboardPointsKey = "leaderboard:points"
	leaderboardNamesKey  = "leaderboard:names"
	defaultLeaderboardN  = 10
	maxLeaderboardN      = 100
)

type LeaderboardEntry struct {
	UserID uint   `json:"userId"`
	Name   string `json:"name"`
	Points int64  `json:"points"`
	Rank   int64  `json:"rank"`
}

// Leaderboard ranks users by points.
type Leaderboard interface {
	UpdatePoints(ctx context.Context, user *models.User) error
	Remove(ctx context.Context, userID uint) error
	Rebuild(ctx context.Context, users []models.User) error
	Top(ctx context.Context, limit int64) ([]LeaderboardEntry, error)
	// Rank is 1-based; 0 means the user is not ranked.
	Rank(ctx context.Context, userID uint) (int64, error)
}

// RedisLeaderboard keeps points in a sorted set and display names in a hash.
type RedisLeaderboard struct {
	client *redis.Client
}

func NewRedisLeaderboard(client *redis.Client) *RedisLeaderboard {
	return &RedisLeaderboard{client: client}
}

func member(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}

func (l *RedisLeaderboard) UpdatePoints(ctx context.Context, user *models.User) error {
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, leaderboardPointsKey, redis.Z{
			Score:  float64(user.Points),
			Member: member(user.ID),
		})
		pipe.HSet(ctx, leaderboardNamesKey, member(user.ID), user.Name)
		return nil
	})
	return err
}

func (l *RedisLeaderboard) Remove(ctx context.Context, userID uint) error {
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, leaderboardPointsKey, member(userID))
		pipe.HDel(ctx, leaderboardNamesKey, member(userID))
		return nil
	})
	return err
}

func (l *RedisLeaderboard) Rebuild(ctx context.Context, users []models.User) error {
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, leaderboardPointsKey, leaderboardNamesKey)
		for _, u := range users {
			if u.Points <= 0 {
				continue
			}
			pipe.ZAdd(ctx, leaderboardPointsKey, redis.Z{Score: float64(u.Points), Member: member(u.ID)})
			pipe.HSet(ctx, leaderboardNamesKey, member(u.ID), u.Name)
		}
		return nil
	})
	return err
}

func (l *RedisLeaderboard) Top(ctx context.Context, limit int64) ([]LeaderboardEntry, error) {
	results, err := l.client.ZRevRangeWithScores(ctx, leaderboardPointsKey, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(results))
	members := make([]string, 0, len(results))
	for i, result := range results {
		m, _ := result.Member.(string)
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		members = append(members, m)
		entries = append(entries, LeaderboardEntry{
			UserID: uint(id),
			Points: int64(result.Score),
			Rank:   int64(i) + 1,
		})
	}
	if len(members) == 0 {
		return entries, nil
	}

	names, err := l.client.HMGet(ctx, leaderboardNamesKey, members...).Result()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if name, ok := names[i].(string); ok {
			entries[i].Name = name
		}
	}
	return entries, nil
}

func (l *RedisLeaderboard) Rank(ctx context.Context, userID uint) (int64, error) {
	rank, err := l.client.ZRevRank(ctx, leaderboardPointsKey, member(userID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rank + 1, nil
}

// LeaderboardService serves rankings from the Leaderboard and falls back to
// the user table when none is configured or it fails.
type LeaderboardService struct {
	store store.Store
	board Leaderboard
}

func NewLeaderboardService(st store.Store, board Leaderboard) *LeaderboardService {
	return &LeaderboardService{store: st, board: board}
}

func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardN
	}
	limit = min(limit, maxLeaderboardN)

	if s.board != nil {
		entries, err := s.board.Top(ctx, int64(limit))
		if err == nil {
			return entries, nil
		}
		log.Printf("Failed to read leaderboard, using database: %v", err)
	}

	users, err := s.store.Users().TopByPoints(ctx, limit)
	if err != nil {
		log.Printf("Failed to load top users: %v", err)
		return nil, ServerError(err)
	}
	entries := make([]LeaderboardEntry, len(users))
	for i, u := range users {
		entries[i] = LeaderboardEntry{
			UserID: u.ID,
			Name:   u.Name,
			Points: int64(u.Points),
			Rank:   int64(i) + 1,
		}
	}
	return entries, nil
}

// Rebuild reloads the leaderboard from the user table.
func (s *LeaderboardService) Rebuild(ctx context.Context) error {
	if s.board == nil {
		return nil
	}
	users, err := s.store.Users().TopByPoints(ctx, 0)
	if err != nil {
		return err
	}
	return s.board.Rebuild(ctx, users)
}

// StartRebuildSchedule runs Rebuild on spec until the returned cron is stopped.
func (s *LeaderboardService) StartRebuildSchedule(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.Rebuild(ctx); err != nil {
			log.Printf("Failed to rebuild leaderboard: %v", err)
			return
		}
		log.Printf("Leaderboard rebuilt")
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
