package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"learnloop/llm"
	"learnloop/models"
	"learnloop/store"
)

const (
	ModeAuto      = "auto"
	ModeTutor     = "tutor"
	ModePlan      = "plan"
	ModeWeakness  = "weakness"
	ModeStreak    = "streak"
	ModeRecommend = "recommend"
	ModeCoach     = "coach"

	planDays        = 7
	maxPlanDayTasks = 6
	neutralWeakness = 70
)

var coachModes = []string{ModeAuto, ModeTutor, ModePlan, ModeWeakness, ModeStreak, ModeRecommend, ModeCoach}

var (
	planKeywords     = []string{"7-day", "7 day", "seven", "plan", "schedule", "routine"}
	weaknessKeywords = []string{"weak", "fix mode", "improve", "struggling", "focus"}
	streakKeywords   = []string{"streak", "motivate", "remind", "lazy", "procrast", "i don't feel", "tired"}

	// Checked in order, so "math" must come after "mathematics".
	subjectHints = []struct{ keyword, subject string }{
		{"physics", "Physics"},
		{"chemistry", "Chemistry"},
		{"mathematics", "Mathematics"},
		{"math", "Mathematics"},
		{"biology", "Biology"},
		{"computer science", "Computer Science"},
		{"accounting", "Accounting"},
		{"economics", "Economics"},
		{"business studies", "Business Studies"},
		{"english", "English"},
	}
)

type CoachService struct {
	store     store.Store
	generator llm.Generator
	now       func() time.Time
}

// NewCoachService builds the coach. With a nil generator every reply is the
// canned reply for its mode.
func NewCoachService(st store.Store, generator llm.Generator) *CoachService {
	return &CoachService{store: st, generator: generator, now: time.Now}
}

// Health reports whether a language model is configured.
func (s *CoachService) Health() map[string]interface{} {
	return map[string]interface{}{
		"status":     "ok",
		"configured": s.generator != nil,
		"modes":      coachModes,
	}
}

type CoachRequest struct {
	Message string `json:"message"`
	Mode    string `json:"mode"`
}

type Motivation struct {
	Prompt         string     `json:"prompt"`
	StreakReminder *string    `json:"streakReminder"`
	Streak         int        `json:"streak"`
	LastActiveDate *time.Time `json:"lastActiveDate"`
	atRisk         bool
}

type SubjectAverage struct {
	Subject  string `json:"subject"`
	AvgScore int    `json:"avgScore"`
}

type CoachProgress struct {
	TotalQuizzes   int              `json:"totalQuizzes"`
	AvgScore       int              `json:"avgScore"`
	WeakestSubject *string          `json:"weakestSubject"`
	WeakestScore   int              `json:"weakestScore"`
	Subjects       []SubjectAverage `json:"subjects"`
}

type QuizSuggestion struct {
	Subject string `json:"subject"`
	Level   string `json:"level"`
	Limit   int    `json:"limit"`
	Reason  string `json:"reason,omitempty"`
}

type PlanDay struct {
	Day   int            `json:"day"`
	Title string         `json:"title"`
	Tasks []string       `json:"tasks"`
	Quiz  QuizSuggestion `json:"quiz"`
}

type WeaknessFix struct {
	WeakestSubject string `json:"weakestSubject"`
	Plan           struct {
		PriorityTopics []string       `json:"priorityTopics"`
		DailyQuiz      QuizSuggestion `json:"dailyQuiz"`
		Rule           string         `json:"rule"`
	} `json:"plan"`
}

type CoachReply struct {
	Reply           string          `json:"reply"`
	Mode            string          `json:"mode"`
	Motivation      Motivation      `json:"motivation"`
	Progress        CoachProgress   `json:"progress"`
	WeaknessFix     *WeaknessFix    `json:"weaknessFix"`
	RecommendedQuiz *QuizSuggestion `json:"recommendedQuiz"`
	SevenDayPlan    []PlanDay       `json:"sevenDayPlan"`
}

// coachContext is everything a reply is built from.
type coachContext struct {
	user          *models.User
	level         string
	faculty       string
	scienceStream string
	progress      CoachProgress
	motivation    Motivation
	message       string
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func isTutorRequest(text string) bool {
	return strings.HasPrefix(text, "teach ") || strings.HasPrefix(text, "explain ") ||
		strings.Contains(text, "teach me") || strings.Contains(text, "help me learn")
}

// ResolveMode picks the coach mode for message when mode is auto.
func ResolveMode(mode, message string) string {
	if mode != "" && mode != ModeAuto {
		return mode
	}
	text := strings.ToLower(strings.TrimSpace(message))
	switch {
	case isTutorRequest(text):
		return ModeTutor
	case containsAny(text, planKeywords):
		return ModePlan
	case containsAny(text, weaknessKeywords):
		return ModeWeakness
	case containsAny(text, streakKeywords):
		return ModeStreak
	}
	return ModeRecommend
}

func tutorTopic(message string) string {
	lower := strings.ToLower(message)
	for _, marker := range []string{"teach me", "explain"} {
		if i := strings.Index(lower, marker); i >= 0 {
			topic := strings.TrimLeft(strings.TrimSpace(message[i+len(marker):]), ":- ")
			if topic != "" {
				return topic
			}
		}
	}
	return "the topic"
}

func subjectHint(message string) string {
	text := strings.ToLower(message)
	for _, h := range subjectHints {
		if strings.Contains(text, h.keyword) {
			return h.subject
		}
	}
	return ""
}

// pickLimit sizes a recommended quiz: weaker subjects get longer quizzes, and
// an at-risk streak always gets the 5 questions that save it.
func pickLimit(weaknessScore int, streakAtRisk bool) int {
	switch {
	case streakAtRisk:
		return streakSaveQuestionCount
	case weaknessScore <= 55:
		return 15
	case weaknessScore <= 70:
		return 10
	}
	return 5
}

func subjectPool(faculty, stream string) []string {
	switch faculty {
	case "Science":
		switch stream {
		case "Biology":
			return []string{"Physics", "Chemistry", "Biology", "Mathematics"}
		case "Computer Science":
			return []string{"Physics", "Chemistry", "Computer Science", "Mathematics"}
		}
		return []string{"Physics", "Chemistry", "Mathematics"}
	case "Management":
		return []string{"Accounting", "Economics", "Business Studies", "Mathematics"}
	}
	return []string{"English", "Mathematics"}
}

func levelFor(user *models.User) string {
	if grade := models.StringValue(user.AcademicProfile.Grade); grade != "" {
		if strings.Contains(grade, "12") {
			return models.LevelClass12
		}
		return models.LevelClass11
	}
	if level := models.StringValue(user.Level); models.IsValidLevel(level) {
		return level
	}
	return models.LevelClass11
}

func coachProgress(attempts []models.QuizAttempt) CoachProgress {
	p := CoachProgress{TotalQuizzes: len(attempts), Subjects: []SubjectAverage{}}
	if len(attempts) == 0 {
		return p
	}

	type agg struct{ sum, count int }
	bySubject := map[string]*agg{}
	total := 0
	for _, a := range attempts {
		total += a.ScorePercentage
		subject := a.Subject
		if subject == "" {
			subject = "Unknown"
		}
		g, ok := bySubject[subject]
		if !ok {
			g = &agg{}
			bySubject[subject] = g
		}
		g.sum += a.ScorePercentage
		g.count++
	}
	p.AvgScore = Percentage(total, len(attempts)*100)

	for subject, g := range bySubject {
		p.Subjects = append(p.Subjects, SubjectAverage{Subject: subject, AvgScore: Percentage(g.sum, g.count*100)})
	}
	sort.Slice(p.Subjects, func(i, j int) bool { return p.Subjects[i].Subject < p.Subjects[j].Subject })

	weakest := p.Subjects[0]
	for _, s := range p.Subjects[1:] {
		if s.AvgScore < weakest.AvgScore {
			weakest = s
		}
	}
	p.WeakestSubject = &weakest.Subject
	p.WeakestScore = weakest.AvgScore
	return p
}

func summarizeSubjects(subjects []SubjectAverage) string {
	if len(subjects) == 0 {
		return "No quiz data yet."
	}
	sorted := append([]SubjectAverage(nil), subjects...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].AvgScore < sorted[j].AvgScore })
	weak, strong := sorted[0], sorted[len(sorted)-1]
	return fmt.Sprintf("Weakest: %s (%d%%). Strongest: %s (%d%%).", weak.Subject, weak.AvgScore, strong.Subject, strong.AvgScore)
}

func buildMotivation(user *models.User, now time.Time) Motivation {
	m := Motivation{Streak: user.Streak, LastActiveDate: user.LastActiveDate}
	daysSince := -1
	if user.LastActiveDate != nil {
		daysSince = DaysBetween(*user.LastActiveDate, now)
	}
	m.atRisk = daysSince == streakSaveGapDays && user.Streak > 0

	s := user.Streak
	switch {
	case s >= 7:
		m.Prompt = fmt.Sprintf("You've built a %d-day streak. Don't break it now, do one quick quiz and lock today in.", s)
	case s >= 3:
		m.Prompt = fmt.Sprintf("Streak: %d days. You're building momentum, do a short quiz today to keep it alive.", s)
	case s > 0:
		m.Prompt = fmt.Sprintf("Streak: %d day(s). Let's make it %d, one quiz now, then stop.", s, s+1)
	default:
		m.Prompt = "Start small: do a 5-question quiz today. Consistency beats motivation."
	}

	switch {
	case m.atRisk:
		m.StreakReminder = models.StringPtr("Your streak is at risk. Do a 5-question quiz now to save it.")
	case daysSince == 1 && s > 0:
		m.StreakReminder = models.StringPtr("You were active yesterday, keep it going with a short quiz.")
	}
	return m
}

func recommendQuiz(cc *coachContext) *QuizSuggestion {
	weakest := models.StringValue(cc.progress.WeakestSubject)
	subject := subjectHint(cc.message)
	if subject == "" {
		subject = weakest
	}
	if subject == "" {
		subject = subjectPool(cc.faculty, cc.scienceStream)[0]
	}

	weakness := neutralWeakness
	if subject == weakest {
		weakness = cc.progress.WeakestScore
	}
	limit := pickLimit(weakness, cc.motivation.atRisk)

	var reason string
	switch {
	case cc.motivation.atRisk:
		reason = "Your streak is at risk, a quick 5-question quiz saves it."
	case subject == weakest:
		reason = fmt.Sprintf("You're weakest in %s. Do %d questions there now to improve faster.", subject, limit)
	default:
		reason = fmt.Sprintf("This matches what you're asking. Do %d questions to reinforce it.", limit)
	}
	return &QuizSuggestion{Subject: subject, Level: cc.level, Limit: limit, Reason: reason}
}

func planDay(day int, title, subject, level string, limit int, concept, practice, revision string) PlanDay {
	return PlanDay{
		Day:   day,
		Title: title,
		Tasks: []string{"Concept: " + concept, "Practice: " + practice, "Revision: " + revision},
		Quiz:  QuizSuggestion{Subject: subject, Level: level, Limit: limit},
	}
}

// SevenDayPlan is the built-in week plan. The weakest subject gets most days
// when it belongs to the student's subjects.
func SevenDayPlan(level, faculty, stream, weakestSubject string) []PlanDay {
	pool := subjectPool(faculty, stream)
	weak := pool[0]
	for _, s := range pool {
		if s == weakestSubject {
			weak = s
		}
	}
	second, third := weak, weak
	if len(pool) > 1 {
		second = pool[1]
	}
	if len(pool) > 2 {
		third = pool[2]
	}

	return []PlanDay{
		planDay(1, "Start + diagnose", weak, level, 10, weak+" fundamentals", "10 mixed questions", "30-min recap notes"),
		planDay(2, "Strengthen basics", weak, level, 10, weak+" key formulas / core ideas", "worked examples", "mistake list update"),
		planDay(3, "Practice under time", weak, level, 15, weak+" common exam patterns", "timed practice set", "flash review"),
		planDay(4, "Second subject rotation", second, level, 10, second+" core chapter", "concept + 8 Q", "quick notes"),
		planDay(5, "Mixed practice day", weak, level, 15, "weak + strong mix", "mixed set", "review mistakes"),
		planDay(6, "Mock-style day", third, level, 10, "speed + accuracy", "timed quiz + review", "summary sheet"),
		planDay(7, "Weekly review + reset", weak, level, 10, "full recap", "retest weakest topics", "plan next week"),
	}
}

type generatedPlanDay struct {
	Day   int      `json:"day"`
	Title string   `json:"title"`
	Tasks []string `json:"tasks"`
	Quiz  struct {
		Subject string `json:"subject"`
		Level   string `json:"level"`
		Limit   int    `json:"limit"`
	} `json:"quiz"`
}

// sanitizePlan merges a generated plan into fallback day by day. Days that
// are missing or out of range keep the fallback entry.
func sanitizePlan(generated []generatedPlanDay, fallback []PlanDay) []PlanDay {
	out := append([]PlanDay(nil), fallback...)
	for _, g := range generated {
		if g.Day < 1 || g.Day > planDays {
			continue
		}
		base := fallback[g.Day-1]
		day := PlanDay{Day: g.Day, Title: strings.TrimSpace(g.Title), Quiz: base.Quiz}
		if day.Title == "" {
			day.Title = base.Title
		}
		for _, t := range g.Tasks {
			if t = strings.TrimSpace(t); t != "" && len(day.Tasks) < maxPlanDayTasks {
				day.Tasks = append(day.Tasks, t)
			}
		}
		if len(day.Tasks) == 0 {
			day.Tasks = base.Tasks
		}
		if s := strings.TrimSpace(g.Quiz.Subject); s != "" {
			day.Quiz.Subject = s
		}
		if l := strings.TrimSpace(g.Quiz.Level); l != "" {
			day.Quiz.Level = l
		}
		if g.Quiz.Limit == 5 || g.Quiz.Limit == 10 || g.Quiz.Limit == 15 {
			day.Quiz.Limit = g.Quiz.Limit
		}
		out[g.Day-1] = day
	}
	return out
}

func buildWeaknessFix(cc *coachContext) *WeaknessFix {
	weakest := models.StringValue(cc.progress.WeakestSubject)
	limit := pickLimit(cc.progress.WeakestScore, cc.motivation.atRisk)

	fix := &WeaknessFix{WeakestSubject: weakest}
	if weakest == "" {
		fix.WeakestSubject = "Not enough data yet"
		fix.Plan.PriorityTopics = []string{"Start with basics", "Then move to exam patterns", "Finish with timed practice"}
		fix.Plan.DailyQuiz.Subject = "Choose any subject"
	} else {
		fix.Plan.PriorityTopics = []string{
			weakest + ": Fundamentals first",
			weakest + ": Past-paper patterns",
			weakest + ": Timed practice + review",
		}
		fix.Plan.DailyQuiz.Subject = weakest
	}
	fix.Plan.DailyQuiz.Level = cc.level
	fix.Plan.DailyQuiz.Limit = limit
	switch {
	case cc.motivation.atRisk:
		fix.Plan.DailyQuiz.Reason = "Streak is at risk, do a quick 5-question quiz to save it."
	case cc.progress.WeakestScore <= 55:
		fix.Plan.DailyQuiz.Reason = "You're quite weak here, 15 questions builds endurance and accuracy."
	case cc.progress.WeakestScore <= 70:
		fix.Plan.DailyQuiz.Reason = "10 questions daily is perfect for steady improvement."
	default:
		fix.Plan.DailyQuiz.Reason = "Short 5-question quizzes keep consistency high."
	}
	fix.Plan.Rule = "Do the quiz first, then study (you'll notice mistakes faster)."
	return fix
}

const (
	coachSystemPrompt = `You are LearnLoop AI Coach for Nepal +2 students.
Return ONLY valid JSON (no markdown) matching the schema we request.
Be clear, helpful, not robotic.`

	tutorSystemPrompt = `You are a patient tutor.
Return ONLY valid JSON (no markdown) matching the schema we request.
Teach step-by-step: explanation -> worked examples -> practice questions -> ask student to reply.`

	planSystemPrompt = `You create a 7-day study plan for Nepal +2 students.
Return ONLY valid JSON (no markdown) matching the schema we request.
Plan must be realistic, short, actionable. Use the student's weakest subject more.`
)

func (cc *coachContext) facultyLabel() string {
	if cc.scienceStream != "" {
		return fmt.Sprintf("%s (%s)", cc.faculty, cc.scienceStream)
	}
	return cc.faculty
}

func (cc *coachContext) userPrompt() string {
	name := cc.user.Name
	if name == "" {
		name = "Student"
	}
	atRisk := "no"
	if cc.motivation.atRisk {
		atRisk = "yes"
	}
	reminder := models.StringValue(cc.motivation.StreakReminder)
	if reminder == "" {
		reminder = "none"
	}
	return fmt.Sprintf(`Student:
- Name: %s
- Level: %s
- Faculty: %s

Quiz progress summary:
- %s

Streak:
- streakDays: %d
- atRisk: %s
- reminder: %s

User message:
%q`, name, cc.level, cc.facultyLabel(), summarizeSubjects(cc.progress.Subjects), cc.motivation.Streak, atRisk, reminder, cc.message)
}

type generatedReply struct {
	Reply        string             `json:"reply"`
	SevenDayPlan []generatedPlanDay `json:"sevenDayPlan"`
}

func (s *CoachService) generate(ctx context.Context, system, user string) (*generatedReply, error) {
	if s.generator == nil {
		return nil, llm.ErrUnavailable
	}
	var out generatedReply
	if err := s.generator.GenerateJSON(ctx, system, user, &out); err != nil {
		return nil, err
	}
	out.Reply = strings.TrimSpace(out.Reply)
	return &out, nil
}

func (s *CoachService) load(ctx context.Context, userID uint, message string) (*coachContext, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("User not found")
	}
	if err != nil {
		log.Printf("Failed to load user %d: %v", userID, err)
		return nil, ServerError(err)
	}
	attempts, err := s.store.Attempts().Recent(ctx, userID, store.AttemptQuery{})
	if err != nil {
		log.Printf("Failed to load attempts for user %d: %v", userID, err)
		return nil, ServerError(err)
	}

	faculty := models.StringValue(user.AcademicProfile.Faculty)
	if faculty == "" {
		faculty = "Science"
	}
	return &coachContext{
		user:          user,
		level:         levelFor(user),
		faculty:       faculty,
		scienceStream: models.StringValue(user.AcademicProfile.ScienceStream),
		progress:      coachProgress(attempts),
		motivation:    buildMotivation(user, s.now()),
		message:       message,
	}, nil
}

// Coach answers a student's message. Model failures never fail the request;
// each mode falls back to a canned reply built from the student's data.
func (s *CoachService) Coach(ctx context.Context, userID uint, req *CoachRequest) (*CoachReply, error) {
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode != "" && !oneOf(mode, coachModes) {
		return nil, ValidationError("mode must be one of " + strings.Join(coachModes, ", "))
	}
	message := strings.TrimSpace(req.Message)
	mode = ResolveMode(mode, message)

	cc, err := s.load(ctx, userID, message)
	if err != nil {
		return nil, err
	}

	fallbackPlan := SevenDayPlan(cc.level, cc.faculty, cc.scienceStream, models.StringValue(cc.progress.WeakestSubject))
	reply := &CoachReply{
		Mode:            mode,
		Motivation:      cc.motivation,
		Progress:        cc.progress,
		RecommendedQuiz: recommendQuiz(cc),
		SevenDayPlan:    []PlanDay{},
	}

	switch mode {
	case ModeTutor:
		reply.RecommendedQuiz = nil
		prompt := fmt.Sprintf(`%s

JSON schema:
{"reply": "string (teaching content: explanation + 2-3 worked examples + 5 practice questions + ask student to reply)"}

Now teach: %s`, cc.userPrompt(), tutorTopic(message))
		out, err := s.generate(ctx, tutorSystemPrompt, prompt)
		if err != nil || out.Reply == "" {
			s.logFallback(mode, userID, err)
			reply.Reply = "Tutor mode is unavailable right now. Try again in a moment, or start a short quiz on the topic."
			break
		}
		reply.Reply = out.Reply

	case ModePlan:
		reply.SevenDayPlan = fallbackPlan
		prompt := fmt.Sprintf(`%s

JSON schema:
{
  "reply": "string (short intro + how to follow the plan)",
  "sevenDayPlan": [{"day": 1, "title": "string", "tasks": ["string","string","string"], "quiz": {"subject": "string", "level": %q, "limit": 5}}]
}

Rules:
- Must return exactly 7 days.
- quiz.limit is 5, 10 or 15.
- tasks must be real and specific.
- Use weakest subject more in days 1-3.

Now generate the plan.`, cc.userPrompt(), cc.level)
		out, err := s.generate(ctx, planSystemPrompt, prompt)
		if err != nil {
			s.logFallback(mode, userID, err)
			reply.Reply = fmt.Sprintf("Here's your 7-day plan for %s (%s). I used your quiz history: %s Start with Day 1 today.",
				cc.level, cc.facultyLabel(), summarizeSubjects(cc.progress.Subjects))
			break
		}
		reply.SevenDayPlan = sanitizePlan(out.SevenDayPlan, fallbackPlan)
		reply.Reply = out.Reply
		if reply.Reply == "" {
			reply.Reply = fmt.Sprintf("Here's your 7-day plan for %s (%s). I used your quiz history: %s",
				cc.level, cc.facultyLabel(), summarizeSubjects(cc.progress.Subjects))
		}

	case ModeWeakness:
		reply.WeaknessFix = buildWeaknessFix(cc)
		weakest := models.StringValue(cc.progress.WeakestSubject)
		if weakest == "" {
			weakest = "your weakest subject"
		}
		reply.Reply = fmt.Sprintf("Weakness Fix Mode ON. Based on your progress, focus on %s first. Do the quiz first, then study.", weakest)

	case ModeStreak:
		reply.Reply = cc.motivation.Prompt

	default:
		reply.SevenDayPlan = fallbackPlan
		prompt := fmt.Sprintf(`%s

JSON schema:
{"reply": "string (helpful answer). Must be direct and actually answer the user."}

If user asks to learn a topic, include a short mini-lesson inside reply.
If user asks for a plan, tell them the plan is shown alongside and what to do first today.
Now respond.`, cc.userPrompt())
		out, err := s.generate(ctx, coachSystemPrompt, prompt)
		if err != nil || out.Reply == "" {
			s.logFallback(mode, userID, err)
			reply.Reply = fmt.Sprintf("%s Today: %s", cc.motivation.Prompt, reply.RecommendedQuiz.Reason)
			break
		}
		reply.Reply = out.Reply
	}
	return reply, nil
}

func (s *CoachService) logFallback(mode string, userID uint, err error) {
	if err == nil {
		err = errors.New("empty reply")
	}
	if !errors.Is(err, llm.ErrUnavailable) {
		log.Printf("Failed to generate %s reply for user %d: %v", mode, userID, err)
	}
}
