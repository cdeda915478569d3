// Package seed loads the question bank from JSON files laid out as
// <dir>/class11/<subject>.json and <dir>/class12/<subject>.json.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"learnloop/models"
	"learnloop/services"
	"learnloop/store"
)

var levelFolders = []struct{ folder, level string }{
	{"class11", models.LevelClass11},
	{"class12", models.LevelClass12},
}

type questionSeed struct {
	Topic              string   `json:"topic"`
	QuestionText       string   `json:"questionText"`
	Options            []string `json:"options"`
	CorrectOptionIndex *int     `json:"correctOptionIndex"`
	Difficulty         string   `json:"difficulty"`
}

// SubjectFromFileName turns "computer_science.json" into "Computer Science".
func SubjectFromFileName(name string) string {
	words := strings.Split(strings.TrimSuffix(name, filepath.Ext(name)), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Load reads and validates every question under dir. Any malformed entry
// fails the whole load with its file and index.
func Load(dir string) ([]models.Question, error) {
	var all []models.Question
	for _, lf := range levelFolders {
		folder := filepath.Join(dir, lf.folder)
		files, err := filepath.Glob(filepath.Join(folder, "*.json"))
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			log.Printf("No question files found in %s", folder)
			continue
		}
		sort.Strings(files)

		for _, path := range files {
			questions, err := loadFile(path, lf.level, SubjectFromFileName(filepath.Base(path)))
			if err != nil {
				return nil, err
			}
			all = append(all, questions...)
		}
	}
	return all, nil
}

func loadFile(path, level, subject string) ([]models.Question, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seeds []questionSeed
	if err := json.Unmarshal(raw, &seeds); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	out := make([]models.Question, 0, len(seeds))
	for i, s := range seeds {
		q, err := services.NewBankQuestion(&services.AddQuestionRequest{
			Level:              level,
			Subject:            subject,
			Topic:              s.Topic,
			QuestionText:       s.QuestionText,
			Options:            s.Options,
			CorrectOptionIndex: s.CorrectOptionIndex,
			Difficulty:         s.Difficulty,
		})
		if err != nil {
			return nil, fmt.Errorf("%s (index %d): %s", path, i, services.MessageOf(err))
		}
		out = append(out, *q)
	}
	return out, nil
}

// Questions inserts the bank found under dir. A subject+level that already
// has questions is skipped, so re-running is harmless. It returns how many
// questions were inserted.
func Questions(ctx context.Context, st store.Store, dir string) (int, error) {
	questions, err := Load(dir)
	if err != nil {
		return 0, err
	}

	type bank struct{ subject, level string }
	groups := make(map[bank][]models.Question)
	var order []bank
	for _, q := range questions {
		k := bank{q.Subject, q.Level}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], q)
	}

	inserted := 0
	for _, k := range order {
		n, err := st.Questions().Count(ctx, k.subject, k.level)
		if err != nil {
			return inserted, err
		}
		if n > 0 {
			log.Printf("Skipping %s | %s: %d questions already present", k.level, k.subject, n)
			continue
		}
		if err := st.Questions().CreateBatch(ctx, groups[k]); err != nil {
			return inserted, fmt.Errorf("insert %s %s: %w", k.level, k.subject, err)
		}
		inserted += len(groups[k])
		log.Printf("Seeded %s | %s: %d questions", k.level, k.subject, len(groups[k]))
	}
	return inserted, nil
}
