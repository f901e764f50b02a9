package services

import (
	"math"
	"math/rand/v2"

	"github.com/avtotestprime/avtotest-service/internal/models"
)

func defaultShuffle(n int, swap func(i, j int)) {
	rand.Shuffle(n, swap)
}

// clampQuestionCount limits a requested test length to the bank size first
// and then raises it to at least one question.
func clampQuestionCount(requested, available int) int {
	return max(min(requested, available), 1)
}

// sampleQuestions shuffles a copy of ids and keeps the first n, which picks
// every n-subset with equal probability.
func sampleQuestions(ids []uint, n int, shuffle func(n int, swap func(i, j int))) []uint {
	pool := append([]uint(nil), ids...)
	shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if n > len(pool) {
		n = len(pool)
	}
	return pool[:n]
}

type sessionScore struct {
	Correct int
	Wrong   int
	Answers []*models.TestAnswer
}

// scoreAnswers grades every sampled question. Unanswered questions are wrong
// with an empty selection. A question deleted after the test started still
// counts as wrong but leaves no answer row, so correct+wrong stays equal to
// the number sampled.
func scoreAnswers(sessionID uint, questionIDs []uint, questions []*models.Question, answers map[uint]string) sessionScore {
	byID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	score := sessionScore{Answers: make([]*models.TestAnswer, 0, len(questionIDs))}
	for _, id := range questionIDs {
		q, ok := byID[id]
		if !ok {
			score.Wrong++
			continue
		}

		selected := normalizeAnswer(answers[id])
		isCorrect := selected != "" && selected == q.CorrectAnswer
		if isCorrect {
			score.Correct++
		} else {
			score.Wrong++
		}

		score.Answers = append(score.Answers, &models.TestAnswer{
			SessionID:      sessionID,
			QuestionID:     id,
			SelectedAnswer: selected,
			IsCorrect:      isCorrect,
		})
	}
	return score
}

// averageScore is the rounded mean of per-session percentages, half to even
func averageScore(percents []int) int {
	if len(percents) == 0 {
		return 0
	}
	sum := 0
	for _, p := range percents {
		sum += p
	}
	return int(math.RoundToEven(float64(sum) / float64(len(percents))))
}
