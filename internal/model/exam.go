package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the approval states of an exam.
type ExamStatus string

const (
	ExamStatusPending  ExamStatus = "pending"
	ExamStatusApproved ExamStatus = "approved"
	ExamStatusReview   ExamStatus = "review"
)

// Valid reports whether s is a known status.
func (s ExamStatus) Valid() bool {
	switch s {
	case ExamStatusPending, ExamStatusApproved, ExamStatusReview:
		return true
	}
	return false
}

// ExamAction is an event driving the approval state machine.
type ExamAction string

const (
	ExamActionSave    ExamAction = "save"
	ExamActionApprove ExamAction = "approve"
	ExamActionReturn  ExamAction = "return"
)

// examTransitions lists, per action, the statuses it may start from and where it lands.
// Saving is allowed from every state: any edit invalidates a prior approval.
var examTransitions = map[ExamAction]struct {
	from []ExamStatus
	to   ExamStatus
}{
	ExamActionSave:    {from: []ExamStatus{ExamStatusPending, ExamStatusApproved, ExamStatusReview}, to: ExamStatusPending},
	ExamActionApprove: {from: []ExamStatus{ExamStatusPending, ExamStatusReview}, to: ExamStatusApproved},
	ExamActionReturn:  {from: []ExamStatus{ExamStatusPending, ExamStatusApproved}, to: ExamStatusReview},
}

// Next returns the status reached by applying action to s, or false when the
// transition is not allowed.
func (s ExamStatus) Next(action ExamAction) (ExamStatus, bool) {
	t, ok := examTransitions[action]
	if !ok {
		return s, false
	}
	for _, from := range t.from {
		if from == s {
			return t.to, true
		}
	}
	return s, false
}

// Exam is an authored assessment. Questions are embedded and only addressable
// through their parent exam.
type Exam struct {
	ID              uuid.UUID               `json:"id"`
	Title           string                  `json:"title"`
	Subject         string                  `json:"subject"`
	ClassLevel      string                  `json:"class_level"`
	Term            string                  `json:"term"`
	Session         string                  `json:"session"`
	Instructions    string                  `json:"instructions"`
	DurationMinutes int                     `json:"duration_minutes"`
	Questions       []Question              `json:"questions"`
	Config          map[QuestionType]string `json:"config"`
	Code            string                  `json:"code"`
	CreatorID       string                  `json:"creator_id"`
	CreatorName     string                  `json:"creator_name"`
	SchoolID        string                  `json:"school_id"`
	Status          ExamStatus              `json:"status"`
	AdminFeedback   string                  `json:"admin_feedback,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// DurationSeconds is the countdown length of an attempt.
func (e *Exam) DurationSeconds() int {
	return e.DurationMinutes * 60
}

// Attemptable reports whether a student of schoolID may start this exam.
func (e *Exam) Attemptable(schoolID string) bool {
	return e.Status == ExamStatusApproved && e.SchoolID == schoolID
}

// QuestionIndex maps question ids to their position.
func (e *Exam) QuestionIndex() map[string]int {
	idx := make(map[string]int, len(e.Questions))
	for i, q := range e.Questions {
		idx[q.ID] = i
	}
	return idx
}

// ObjectiveCount is the number of auto-gradable questions.
func (e *Exam) ObjectiveCount() int {
	n := 0
	for _, q := range e.Questions {
		if q.Type == QuestionTypeObjective {
			n++
		}
	}
	return n
}

// ExamSummary is the list view of an exam, without the question bodies.
type ExamSummary struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Subject         string     `json:"subject"`
	ClassLevel      string     `json:"class_level"`
	Term            string     `json:"term"`
	Session         string     `json:"session"`
	DurationMinutes int        `json:"duration_minutes"`
	QuestionCount   int        `json:"question_count"`
	Code            string     `json:"code,omitempty"`
	CreatorID       string     `json:"creator_id"`
	CreatorName     string     `json:"creator_name"`
	SchoolID        string     `json:"school_id"`
	Status          ExamStatus `json:"status"`
	AdminFeedback   string     `json:"admin_feedback,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Summary builds the list view of e.
func (e *Exam) Summary() ExamSummary {
	return ExamSummary{
		ID:              e.ID,
		Title:           e.Title,
		Subject:         e.Subject,
		ClassLevel:      e.ClassLevel,
		Term:            e.Term,
		Session:         e.Session,
		DurationMinutes: e.DurationMinutes,
		QuestionCount:   len(e.Questions),
		Code:            e.Code,
		CreatorID:       e.CreatorID,
		CreatorName:     e.CreatorName,
		SchoolID:        e.SchoolID,
		Status:          e.Status,
		AdminFeedback:   e.AdminFeedback,
		UpdatedAt:       e.UpdatedAt,
	}
}

// ExamPaper is what a student sees once an attempt starts (no correct answers).
type ExamPaper struct {
	ExamID          uuid.UUID               `json:"exam_id"`
	Title           string                  `json:"title"`
	Subject         string                  `json:"subject"`
	Instructions    string                  `json:"instructions"`
	DurationMinutes int                     `json:"duration_minutes"`
	Config          map[QuestionType]string `json:"config"`
	Questions       []QuestionForStudent    `json:"questions"`
}

// Paper strips the answer key from e.
func (e *Exam) Paper() ExamPaper {
	qs := make([]QuestionForStudent, len(e.Questions))
	for i, q := range e.Questions {
		qs[i] = q.ForStudent()
	}
	return ExamPaper{
		ExamID:          e.ID,
		Title:           e.Title,
		Subject:         e.Subject,
		Instructions:    e.Instructions,
		DurationMinutes: e.DurationMinutes,
		Config:          e.Config,
		Questions:       qs,
	}
}

// ExamInput is the payload for creating or editing an exam.
type ExamInput struct {
	Title           string                  `json:"title" binding:"required,min=3,max=255"`
	Subject         string                  `json:"subject" binding:"required,max=100"`
	ClassLevel      string                  `json:"class_level" binding:"required,max=50"`
	Term            string                  `json:"term" binding:"omitempty,max=50"`
	Session         string                  `json:"session" binding:"omitempty,max=50"`
	Instructions    string                  `json:"instructions" binding:"omitempty,max=5000"`
	DurationMinutes int                     `json:"duration_minutes" binding:"required,min=1,max=480"`
	Questions       []QuestionInput         `json:"questions" binding:"omitempty,dive"`
	Config          map[QuestionType]string `json:"config" binding:"omitempty,dive,keys,question_type,endkeys,max=2000"`
}

// ReturnExamRequest is the payload an admin sends when returning an exam for review.
type ReturnExamRequest struct {
	Feedback string `json:"feedback" binding:"max=2000"`
}

// ListExamsQuery filters admin exam listings.
type ListExamsQuery struct {
	Status ExamStatus `form:"status" binding:"omitempty,exam_status"`
}
