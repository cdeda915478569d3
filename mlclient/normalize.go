package mlclient

import (
	"encoding/json"
	"strings"
)

const sourceService = "ml"

type Prediction struct {
	PredictedScore    *float64 `json:"predicted_score"`
	Confidence        float64  `json:"confidence"`
	ImprovementNeeded *float64 `json:"improvement_needed,omitempty"`
	Message           string   `json:"message"`
	Source            string   `json:"_source,omitempty"`
	Fallback          bool     `json:"_fallback,omitempty"`
}

type rawPrediction struct {
	PredictedScore    *float64 `json:"predicted_score"`
	PredictedGrade12  *float64 `json:"predicted_grade_12"`
	Confidence        float64  `json:"confidence"`
	ImprovementNeeded *float64 `json:"improvement_needed"`
	Message           string   `json:"message"`
}

func (r rawPrediction) normalize() *Prediction {
	p := &Prediction{
		PredictedScore:    r.PredictedScore,
		Confidence:        r.Confidence,
		ImprovementNeeded: r.ImprovementNeeded,
		Message:           r.Message,
		Source:            sourceService,
	}
	if p.PredictedScore == nil {
		p.PredictedScore = r.PredictedGrade12
	}
	if p.Message == "" {
		p.Message = "Prediction generated"
	}
	return p
}

type Risk struct {
	RiskLevel      string   `json:"risk_level"`
	RiskPercentage *float64 `json:"risk_percentage,omitempty"`
	AtRisk         *bool    `json:"at_risk,omitempty"`
	Tips           []string `json:"tips"`
	Message        string   `json:"message"`
	Source         string   `json:"_source,omitempty"`
	Fallback       bool     `json:"_fallback,omitempty"`
}

type rawRisk struct {
	RiskLevel       string   `json:"risk_level"`
	RiskPercentage  *float64 `json:"risk_percentage"`
	AtRisk          *bool    `json:"at_risk"`
	Tips            []string `json:"tips"`
	Recommendations []string `json:"recommendations"`
	Message         string   `json:"message"`
}

func (r rawRisk) normalize() *Risk {
	risk := &Risk{
		RiskLevel:      r.RiskLevel,
		RiskPercentage: r.RiskPercentage,
		AtRisk:         r.AtRisk,
		Tips:           r.Tips,
		Message:        r.Message,
		Source:         sourceService,
	}
	if risk.RiskLevel == "" {
		risk.RiskLevel = "Unknown"
	}
	if risk.Tips == nil {
		risk.Tips = r.Recommendations
	}
	if risk.Tips == nil {
		risk.Tips = []string{}
	}
	return risk
}

// ScheduleBlock is one row of a study plan's day.
type ScheduleBlock struct {
	Label    string   `json:"label"`
	Subjects []string `json:"subjects,omitempty"`
	Time     string   `json:"time,omitempty"`
	Hours    float64  `json:"hours,omitempty"`
	Note     string   `json:"note,omitempty"`
}

type Plan struct {
	BestStudyTime       string          `json:"best_study_time"`
	Focus               string          `json:"focus"`
	WeeklyTarget        string          `json:"weekly_target"`
	WeakSubjects        []string        `json:"weak_subjects,omitempty"`
	Schedule            []ScheduleBlock `json:"schedule"`
	AnxietyManagement   []string        `json:"anxiety_management"`
	MotivationalMessage string          `json:"motivational_message,omitempty"`
	Message             string          `json:"message,omitempty"`
	Source              string          `json:"_source,omitempty"`
	Fallback            bool            `json:"_fallback,omitempty"`
}

type rawPlan struct {
	BestStudyTime string     `json:"best_study_time"`
	Focus         string     `json:"focus"`
	FocusArea     string     `json:"focus_area"`
	WeeklyTarget  flexString `json:"weekly_target"`
	DailySchedule struct {
		WeakSubjects struct {
			Subjects       []string   `json:"subjects"`
			TimePerSubject flexString `json:"time_per_subject"`
		} `json:"weak_subjects"`
		StrongSubjects struct {
			Time flexString `json:"time"`
		} `json:"strong_subjects"`
		Revision flexString `json:"revision"`
		Breaks   flexString `json:"breaks"`
	} `json:"daily_schedule"`
	AnxietyManagement   []string `json:"anxiety_management"`
	MotivationalMessage string   `json:"motivational_message"`
}

func (r rawPlan) normalize() *Plan {
	ds := r.DailySchedule
	schedule := []ScheduleBlock{}
	if len(ds.WeakSubjects.Subjects) > 0 {
		schedule = append(schedule, ScheduleBlock{
			Label:    "Weak subjects",
			Subjects: ds.WeakSubjects.Subjects,
			Time:     string(ds.WeakSubjects.TimePerSubject),
		})
	}
	if ds.StrongSubjects.Time != "" {
		schedule = append(schedule, ScheduleBlock{Label: "Strong subjects", Time: string(ds.StrongSubjects.Time)})
	}
	if ds.Revision != "" {
		schedule = append(schedule, ScheduleBlock{Label: "Revision", Time: string(ds.Revision)})
	}
	if ds.Breaks != "" {
		schedule = append(schedule, ScheduleBlock{Label: "Breaks", Note: string(ds.Breaks)})
	}

	focus := r.Focus
	if focus == "" {
		focus = r.FocusArea
	}
	anxiety := r.AnxietyManagement
	if anxiety == nil {
		anxiety = []string{}
	}
	return &Plan{
		BestStudyTime:       r.BestStudyTime,
		Focus:               focus,
		WeeklyTarget:        string(r.WeeklyTarget),
		Schedule:            schedule,
		AnxietyManagement:   anxiety,
		MotivationalMessage: r.MotivationalMessage,
		Source:              sourceService,
	}
}

type DailyRecommendations struct {
	Recommendations    []string        `json:"recommendations"`
	PerformanceSummary json.RawMessage `json:"performance_summary,omitempty"`
	Quote              string          `json:"quote,omitempty"`
	Date               string          `json:"date,omitempty"`
	Gamification       string          `json:"gamification,omitempty"`
	Message            string          `json:"message,omitempty"`
	Source             string          `json:"_source,omitempty"`
	Fallback           bool            `json:"_fallback,omitempty"`
}

type rawDailyRecommendations struct {
	TodayRecommendations []json.RawMessage `json:"today_recommendations"`
	Recommendations      []json.RawMessage `json:"recommendations"`
	PerformanceSummary   json.RawMessage   `json:"performance_summary"`
	MotivationalQuote    string            `json:"motivational_quote"`
	Date                 string            `json:"date"`
}

func (r rawDailyRecommendations) normalize() *DailyRecommendations {
	items := r.TodayRecommendations
	if items == nil {
		items = r.Recommendations
	}

	recs := []string{}
	for _, item := range items {
		if text := recommendationText(item); text != "" {
			recs = append(recs, text)
		}
	}
	return &DailyRecommendations{
		Recommendations:    recs,
		PerformanceSummary: r.PerformanceSummary,
		Quote:              r.MotivationalQuote,
		Date:               r.Date,
		Source:             sourceService,
	}
}

// recommendationText flattens a recommendation that is either a plain string
// or an {action, description} object.
func recommendationText(item json.RawMessage) string {
	var s string
	if json.Unmarshal(item, &s) == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Action      string `json:"action"`
		Description string `json:"description"`
	}
	if json.Unmarshal(item, &obj) != nil {
		return ""
	}
	action := strings.TrimSpace(obj.Action)
	desc := strings.TrimSpace(obj.Description)
	switch {
	case action == "":
		return desc
	case desc == "":
		return action
	}
	return action + ": " + desc
}

type GamificationStatus struct {
	StudentID           string   `json:"student_id"`
	Level               int      `json:"level"`
	TotalPoints         int      `json:"total_points"`
	BadgesEarned        int      `json:"badges_earned"`
	StreakDays          int      `json:"streak_days"`
	LeaderboardRank     *int64   `json:"leaderboard_rank"`
	NextLevelIn         int      `json:"next_level_in"`
	ProgressToNextLevel float64  `json:"progress_to_next_level"`
	Achievements        []string `json:"achievements"`
	Fallback            bool     `json:"_fallback,omitempty"`
}

// flexString decodes a JSON string or number into text.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return nil
	}
	*f = flexString(n.String())
	return nil
}
