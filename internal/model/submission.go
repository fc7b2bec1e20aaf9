package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamSubmission is one student's completed attempt at one exam.
// ExamTitle is a snapshot taken at submit time; later exam edits do not touch it.
type ExamSubmission struct {
	ID          uuid.UUID         `json:"id"`
	StudentID   string            `json:"student_id"`
	StudentName string            `json:"student_name"`
	ExamID      uuid.UUID         `json:"exam_id"`
	ExamTitle   string            `json:"exam_title"`
	Answers     map[string]string `json:"answers"`
	Score       int               `json:"score"`
	Total       int               `json:"total"`
	TheoryScore int               `json:"theory_score"`
	Timestamp   time.Time         `json:"timestamp"`
}

// TotalScore is the reported mark: objective score plus the teacher's theory score.
func (s *ExamSubmission) TotalScore() int {
	return s.Score + s.TheoryScore
}

// SubmissionView is the read model handed to dashboards.
type SubmissionView struct {
	ExamSubmission
	TotalScore int `json:"total_score"`
}

// View computes the read-time fields.
func (s *ExamSubmission) View() SubmissionView {
	return SubmissionView{ExamSubmission: *s, TotalScore: s.TotalScore()}
}

// ExamReport aggregates the submissions of a single exam.
type ExamReport struct {
	ExamID         uuid.UUID `json:"exam_id"`
	Submissions    int       `json:"submissions"`
	ObjectiveTotal int       `json:"objective_total"`
	AverageScore   float64   `json:"average_score"`
	AverageTotal   float64   `json:"average_total"`
	Highest        int       `json:"highest"`
	Lowest         int       `json:"lowest"`
}

// StartExamRequest is the payload a student sends to begin an attempt.
type StartExamRequest struct {
	Code string `json:"code" binding:"required,min=3,max=20"`
}

// SetAnswerRequest records one answer in the active attempt.
type SetAnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required,max=64"`
	Answer     string `json:"answer" binding:"max=20000"`
}

// SetTheoryScoreRequest is the teacher's manual theory mark.
type SetTheoryScoreRequest struct {
	Score *int `json:"score" binding:"required"`
}
