package mlclient_test

import (
	"reflect"
	"testing"

	"learnloop/mlclient"
)

func attempts(pairs ...interface{}) []mlclient.AttemptSignal {
	var out []mlclient.AttemptSignal
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, mlclient.AttemptSignal{Subject: pairs[i].(string), ScorePercentage: pairs[i+1].(int)})
	}
	return out
}

func TestBuildInputWithoutHistory(t *testing.T) {
	grade := "12"
	in := mlclient.BuildInput(mlclient.Profile{StudentID: "S0001", Grade: &grade})

	if in.Grade11Percentage != 68 || in.AttendanceRate != 80 || in.StudyHoursPerDay != 2.5 {
		t.Errorf("defaults = %+v", in)
	}
	if in.MotivationLevel != "Medium" || in.ExamAnxietyLevel != "Medium" || in.PreferredLearningTime != "Morning" {
		t.Errorf("levels = %+v", in)
	}
	if in.WeakSubjects == nil || in.RecentQuizScores == nil || in.TopicsCoveredThisWeek == nil {
		t.Errorf("lists must encode as [] not null: %+v", in)
	}
}

func TestBuildInputFromActivity(t *testing.T) {
	in := mlclient.BuildInput(mlclient.Profile{
		Attempts:              attempts("Physics", 40, "Chemistry", 60, "Physics", 50, "Biology", 90),
		Streak:                7,
		PreferredLearningTime: "late night",
		ExamAnxietyLevel:      "high",
	})

	if in.Grade11Percentage != 60 {
		t.Errorf("Grade11Percentage = %v, want rounded average 60", in.Grade11Percentage)
	}
	if in.AttendanceRate != 90 || in.StudyHoursPerDay != 3.5 || in.MotivationLevel != "High" {
		t.Errorf("streak-derived signals = %+v", in)
	}
	if in.PreferredLearningTime != "Night" || in.ExamAnxietyLevel != "High" {
		t.Errorf("normalized = %q, %q", in.PreferredLearningTime, in.ExamAnxietyLevel)
	}
	if want := []string{"Physics", "Chemistry", "Biology"}; !reflect.DeepEqual(in.WeakSubjects, want) {
		t.Errorf("WeakSubjects = %v, want %v", in.WeakSubjects, want)
	}
	if want := []string{"Physics", "Chemistry", "Biology"}; !reflect.DeepEqual(in.TopicsCoveredThisWeek, want) {
		t.Errorf("TopicsCoveredThisWeek = %v", in.TopicsCoveredThisWeek)
	}
}

func TestBuildInputLowScoresRaiseAnxiety(t *testing.T) {
	in := mlclient.BuildInput(mlclient.Profile{Attempts: attempts("Physics", 30, "Physics", 40)})
	if in.ExamAnxietyLevel != "High" {
		t.Errorf("ExamAnxietyLevel = %q, want High", in.ExamAnxietyLevel)
	}
}

func TestRecentScoresCapsAtTwelve(t *testing.T) {
	var many []mlclient.AttemptSignal
	for i := 0; i < 20; i++ {
		many = append(many, mlclient.AttemptSignal{Subject: "Physics", ScorePercentage: i})
	}
	scores := mlclient.RecentScores(many)
	if len(scores) != 12 || scores[0] != 0 || scores[11] != 11 {
		t.Errorf("RecentScores() = %v", scores)
	}
}

func TestNormalizers(t *testing.T) {
	slots := map[string]string{"": "Evening", "Morning": "Morning", "afternoon": "Afternoon", "EVENINGS": "Evening", "midday": "Evening"}
	for in, want := range slots {
		if got := mlclient.NormalizeTimeSlot(in, "Evening"); got != want {
			t.Errorf("NormalizeTimeSlot(%q) = %q, want %q", in, got, want)
		}
	}
	levels := map[string]string{"": "Low", "LOW": "Low", "high": "High", "whatever": "Medium"}
	for in, want := range levels {
		if got := mlclient.NormalizeLevel(in, "Low"); got != want {
			t.Errorf("NormalizeLevel(%q) = %q, want %q", in, got, want)
		}
	}
}
