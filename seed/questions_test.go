package seed_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"learnloop/seed"
	"learnloop/store"
)

func writeFile(t *testing.T, dir, rel, body string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSubjectFromFileName(t *testing.T) {
	tests := map[string]string{
		"physics.json":          "Physics",
		"computer_science.json": "Computer Science",
		"business_studies.json": "Business Studies",
	}
	for in, want := range tests {
		if got := seed.SubjectFromFileName(in); got != want {
			t.Errorf("SubjectFromFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQuestionsSeedsOnce(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "class11/computer_science.json", `[
		{"questionText": "What is a byte?", "options": ["8 bits", "4 bits"], "correctOptionIndex": 0, "difficulty": "EASY"},
		{"questionText": "What is RAM?", "options": ["Memory", "Disk"], "correctOptionIndex": 0, "topic": "Hardware"}
	]`)
	writeFile(t, dir, "class12/physics.json", `[
		{"questionText": "Unit of force?", "options": ["Newton", "Joule", "Watt"], "correctOptionIndex": 0, "difficulty": "brutal"}
	]`)

	st := store.NewMemory()
	ctx := context.Background()

	n, err := seed.Questions(ctx, st, dir)
	if err != nil {
		t.Fatalf("Questions() error = %v", err)
	}
	if n != 3 {
		t.Errorf("inserted %d, want 3", n)
	}
	if c, _ := st.Questions().Count(ctx, "Computer Science", "Class 11"); c != 2 {
		t.Errorf("Computer Science count = %d", c)
	}
	qs, _ := st.Questions().Sample(ctx, "Physics", "Class 12", nil, 5)
	if len(qs) != 1 || qs[0].Difficulty != "medium" {
		t.Errorf("physics = %+v", qs)
	}

	n, err = seed.Questions(ctx, st, dir)
	if err != nil || n != 0 {
		t.Errorf("second run inserted %d, err %v", n, err)
	}
}

func TestLoadRejectsBadQuestion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "class11/physics.json", `[{"questionText": "Broken", "options": ["a", "b"], "correctOptionIndex": 5}]`)

	_, err := seed.Load(dir)
	if err == nil || !strings.Contains(err.Error(), "index 0") {
		t.Errorf("err = %v, want one naming the bad entry", err)
	}
}
