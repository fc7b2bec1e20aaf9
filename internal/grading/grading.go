// Package grading scores the objective section of an attempt.
package grading

import "github.com/stemsi/schoolcbt/internal/model"

// Result is the objective outcome of one attempt.
type Result struct {
	Score int `json:"score"`
	Total int `json:"total"`
}

// Grade counts objective questions (Total) and those whose answer equals the stored
// correct option exactly (Score). Theory and comprehension items are left for manual
// marking and never count here.
func Grade(questions []model.Question, answers map[string]string) Result {
	var r Result
	for _, q := range questions {
		if q.Type != model.QuestionTypeObjective {
			continue
		}
		r.Total++
		if ans, ok := answers[q.ID]; ok && ans == q.Correct {
			r.Score++
		}
	}
	return r
}
