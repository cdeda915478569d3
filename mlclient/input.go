package mlclient

import (
	"math"
	"sort"
	"strings"
	"time"
)

const (
	maxRecentScores = 12
	maxTopics       = 8
	maxWeakSubjects = 3
)

// Input is the feature payload every scoring endpoint accepts.
type Input struct {
	StudentID             string   `json:"student_id"`
	Grade11Percentage     float64  `json:"grade_11_percentage"`
	AttendanceRate        float64  `json:"attendance_rate"`
	StudyHoursPerDay      float64  `json:"study_hours_per_day"`
	MotivationLevel       string   `json:"motivation_level"`
	ExamAnxietyLevel      string   `json:"exam_anxiety_level"`
	WeakSubjects          []string `json:"weak_subjects"`
	RecentQuizScores      []int    `json:"recent_quiz_scores"`
	TopicsCoveredThisWeek []string `json:"topics_covered_this_week"`
	PreferredLearningTime string   `json:"preferred_learning_time"`
	Grade                 *string  `json:"grade"`
	Faculty               *string  `json:"faculty"`
	Streak                int      `json:"streak"`
	Points                int      `json:"points"`
}

// AttemptSignal is the part of a quiz attempt the service looks at.
type AttemptSignal struct {
	Subject         string
	ScorePercentage int
	CreatedAt       time.Time
}

// Profile carries what is known about a student. Nil pointers and blank
// strings are derived from the attempts and gamification counters.
type Profile struct {
	StudentID             string
	Attempts              []AttemptSignal // newest first
	Streak                int
	Points                int
	Grade                 *string
	Faculty               *string
	PreferredLearningTime string
	MotivationLevel       string
	ExamAnxietyLevel      string
	Grade11Percentage     *float64
	AttendanceRate        *float64
	StudyHoursPerDay      *float64
}

// BuildInput maps a profile to the service's feature names, filling gaps
// with values inferred from recent activity.
func BuildInput(p Profile) Input {
	scores := RecentScores(p.Attempts)

	grade11 := 72.0
	if p.Grade != nil && *p.Grade == "12" {
		grade11 = 68
	}
	switch {
	case p.Grade11Percentage != nil:
		grade11 = clamp(*p.Grade11Percentage, 0, 100)
	case len(scores) > 0:
		grade11 = math.Round(average(scores))
	}

	attendance := 80.0
	switch {
	case p.AttendanceRate != nil:
		attendance = clamp(*p.AttendanceRate, 0, 100)
	case p.Streak >= 7:
		attendance = 90
	case p.Streak >= 3:
		attendance = 85
	}

	hours := 2.5
	switch {
	case p.StudyHoursPerDay != nil:
		hours = clamp(*p.StudyHoursPerDay, 0, 16)
	case p.Streak >= 7:
		hours = 3.5
	case p.Streak >= 3:
		hours = 3
	}

	motivation := "Medium"
	if p.Streak >= 5 {
		motivation = "High"
	}
	anxiety := "Medium"
	if grade11 < 55 {
		anxiety = "High"
	}

	return Input{
		StudentID:             p.StudentID,
		Grade11Percentage:     grade11,
		AttendanceRate:        attendance,
		StudyHoursPerDay:      hours,
		MotivationLevel:       NormalizeLevel(p.MotivationLevel, motivation),
		ExamAnxietyLevel:      NormalizeLevel(p.ExamAnxietyLevel, anxiety),
		WeakSubjects:          WeakestSubjects(p.Attempts, maxWeakSubjects),
		RecentQuizScores:      scores,
		TopicsCoveredThisWeek: topics(p.Attempts),
		PreferredLearningTime: NormalizeTimeSlot(p.PreferredLearningTime, "Morning"),
		Grade:                 p.Grade,
		Faculty:               p.Faculty,
		Streak:                p.Streak,
		Points:                p.Points,
	}
}

// RecentScores returns up to the 12 newest scores.
func RecentScores(attempts []AttemptSignal) []int {
	scores := make([]int, 0, maxRecentScores)
	for _, a := range attempts {
		if len(scores) == maxRecentScores {
			break
		}
		scores = append(scores, a.ScorePercentage)
	}
	return scores
}

// WeakestSubjects returns up to n subjects ordered by ascending average score.
func WeakestSubjects(attempts []AttemptSignal, n int) []string {
	type agg struct {
		subject string
		sum     int
		count   int
	}
	bySubject := map[string]*agg{}
	var order []*agg
	for _, a := range attempts {
		subject := strings.TrimSpace(a.Subject)
		if subject == "" {
			continue
		}
		cur, ok := bySubject[subject]
		if !ok {
			cur = &agg{subject: subject}
			bySubject[subject] = cur
			order = append(order, cur)
		}
		cur.sum += a.ScorePercentage
		cur.count++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return float64(order[i].sum)/float64(order[i].count) < float64(order[j].sum)/float64(order[j].count)
	})

	weak := []string{}
	for _, a := range order {
		if len(weak) == n {
			break
		}
		weak = append(weak, a.subject)
	}
	return weak
}

func topics(attempts []AttemptSignal) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, a := range attempts {
		subject := strings.TrimSpace(a.Subject)
		if subject == "" || seen[subject] {
			continue
		}
		seen[subject] = true
		out = append(out, subject)
		if len(out) == maxTopics {
			break
		}
	}
	return out
}

// NormalizeTimeSlot maps free-form input to Morning, Afternoon, Evening or Night.
func NormalizeTimeSlot(v, fallback string) string {
	s := strings.ToLower(strings.TrimSpace(v))
	switch {
	case s == "":
		return fallback
	case strings.Contains(s, "morn"):
		return "Morning"
	case strings.Contains(s, "after"):
		return "Afternoon"
	case strings.Contains(s, "even"):
		return "Evening"
	case strings.Contains(s, "night"):
		return "Night"
	}
	return fallback
}

// NormalizeLevel maps free-form input to Low, Medium or High.
func NormalizeLevel(v, fallback string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return fallback
	case "low":
		return "Low"
	case "high":
		return "High"
	}
	return "Medium"
}

func average(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}

func clamp(x, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, x))
}
