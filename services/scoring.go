package services

// Answer is one submitted answer, keyed by whatever identifies the question in
// its source: a bank id for BANK quizzes, a qid for AI sessions.
type Answer[K comparable] struct {
	QuestionID          K
	SelectedOptionIndex int
}

// ScoredAnswer is a submitted answer that matched a canonical question.
type ScoredAnswer[K comparable] struct {
	Position            int
	QuestionID          K
	SelectedOptionIndex int
	IsCorrect           bool
}

type Score[K comparable] struct {
	Answers         []ScoredAnswer[K]
	TotalQuestions  int
	CorrectCount    int
	IncorrectCount  int
	ScorePercentage int
}

// ScoreAnswers grades answers against correct, which maps a question key to
// its correct option index. Answers for unknown keys are dropped from the
// graded list but still count toward TotalQuestions.
func ScoreAnswers[K comparable](answers []Answer[K], correct map[K]int) Score[K] {
	score := Score[K]{TotalQuestions: len(answers)}

	for i, a := range answers {
		want, ok := correct[a.QuestionID]
		if !ok {
			continue
		}
		isCorrect := a.SelectedOptionIndex == want
		if isCorrect {
			score.CorrectCount++
		}
		score.Answers = append(score.Answers, ScoredAnswer[K]{
			Position:            i,
			QuestionID:          a.QuestionID,
			SelectedOptionIndex: a.SelectedOptionIndex,
			IsCorrect:           isCorrect,
		})
	}

	score.IncorrectCount = score.TotalQuestions - score.CorrectCount
	score.ScorePercentage = Percentage(score.CorrectCount, score.TotalQuestions)
	return score
}

// Percentage returns round(100*part/total) with halves rounded up, or 0 when
// total is 0.
func Percentage(part, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*part + total) / (2 * total)
}
