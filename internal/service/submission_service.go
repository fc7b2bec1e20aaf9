package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/schoolcbt/internal/model"
	"github.com/stemsi/schoolcbt/internal/repository"
	"github.com/stemsi/schoolcbt/internal/session"
)

// DefaultListLimit caps submission listings when the caller does not ask for a size.
const DefaultListLimit = 200

// SubmissionService serves submission history, reports and theory grading.
type SubmissionService struct {
	submissions SubmissionStore
	exams       ExamStore
	notifier    session.Notifier
	maxRows     int
	log         zerolog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(
	submissions SubmissionStore,
	exams ExamStore,
	notifier session.Notifier,
	maxRows int,
	log zerolog.Logger,
) *SubmissionService {
	if maxRows < DefaultListLimit {
		maxRows = DefaultListLimit
	}
	return &SubmissionService{
		submissions: submissions,
		exams:       exams,
		notifier:    notifier,
		maxRows:     maxRows,
		log:         log.With().Str("component", "submission_service").Logger(),
	}
}

func (s *SubmissionService) clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > s.maxRows {
		return s.maxRows
	}
	return limit
}

// ListForStudent returns a student's submissions, most recent first.
func (s *SubmissionService) ListForStudent(ctx context.Context, studentID string, limit int) ([]model.SubmissionView, error) {
	subs, err := s.submissions.ListByStudent(ctx, studentID, s.clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list student submissions: %w", err)
	}
	return views(subs), nil
}

// ListForExam returns the submissions of one exam, most recent first, to staff of
// the exam's school.
func (s *SubmissionService) ListForExam(ctx context.Context, actor Actor, examID uuid.UUID, limit int) ([]model.SubmissionView, error) {
	if _, err := s.staffExam(ctx, actor, examID); err != nil {
		return nil, err
	}
	subs, err := s.submissions.ListByExam(ctx, examID, s.clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list exam submissions: %w", err)
	}
	return views(subs), nil
}

// ListForSchool returns recent submissions across a school's exams.
func (s *SubmissionService) ListForSchool(ctx context.Context, schoolID string, limit int) ([]model.SubmissionView, error) {
	subs, err := s.submissions.ListBySchool(ctx, schoolID, s.clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list school submissions: %w", err)
	}
	return views(subs), nil
}

// SetTheoryScore overwrites the manual theory mark of a submission. Any integer is
// accepted; the objective score, total and answers are never touched.
func (s *SubmissionService) SetTheoryScore(ctx context.Context, actor Actor, submissionID uuid.UUID, score int) (*model.SubmissionView, error) {
	sub, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	if _, err := s.staffExam(ctx, actor, sub.ExamID); err != nil {
		return nil, err
	}

	if err := s.submissions.UpdateTheoryScore(ctx, submissionID, score); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubmissionNotFound
		}
		s.notify(ctx, actor.UniqueID, "Could not save the theory score", model.NotificationError)
		return nil, fmt.Errorf("update theory score: %w", err)
	}

	s.log.Info().
		Str("submission_id", submissionID.String()).
		Int("theory_score", score).
		Str("by", actor.UniqueID).
		Msg("Theory score set")
	s.notify(ctx, actor.UniqueID, "Theory score saved", model.NotificationSuccess)

	sub.TheoryScore = score
	v := sub.View()
	return &v, nil
}

// Report aggregates the submissions of one exam.
func (s *SubmissionService) Report(ctx context.Context, actor Actor, examID uuid.UUID) (*model.ExamReport, error) {
	exam, err := s.staffExam(ctx, actor, examID)
	if err != nil {
		return nil, err
	}
	subs, err := s.submissions.ListByExam(ctx, examID, s.maxRows)
	if err != nil {
		return nil, fmt.Errorf("list exam submissions: %w", err)
	}
	return buildReport(exam, subs), nil
}

func buildReport(exam *model.Exam, subs []model.ExamSubmission) *model.ExamReport {
	r := &model.ExamReport{
		ExamID:         exam.ID,
		Submissions:    len(subs),
		ObjectiveTotal: exam.ObjectiveCount(),
	}
	if len(subs) == 0 {
		return r
	}

	var sumScore, sumTotal int
	r.Highest = math.MinInt
	r.Lowest = math.MaxInt
	for i := range subs {
		total := subs[i].TotalScore()
		sumScore += subs[i].Score
		sumTotal += total
		r.Highest = max(r.Highest, total)
		r.Lowest = min(r.Lowest, total)
	}
	n := float64(len(subs))
	r.AverageScore = round2(float64(sumScore) / n)
	r.AverageTotal = round2(float64(sumTotal) / n)
	return r
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// staffExam loads an exam and checks the actor is staff of its school.
func (s *SubmissionService) staffExam(ctx context.Context, actor Actor, examID uuid.UUID) (*model.Exam, error) {
	if actor.Role == model.RoleStudent {
		return nil, ErrForbidden
	}
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if !actor.canAccessSchool(exam.SchoolID) {
		return nil, ErrWrongSchool
	}
	return exam, nil
}

func (s *SubmissionService) notify(ctx context.Context, userID, msg string, level model.NotificationLevel) {
	if s.notifier != nil && userID != "" {
		s.notifier.Notify(ctx, userID, msg, level)
	}
}

// views orders submissions newest first and computes the read-time totals. The
// store's own ordering is not relied on.
func views(subs []model.ExamSubmission) []model.SubmissionView {
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].Timestamp.After(subs[j].Timestamp)
	})
	out := make([]model.SubmissionView, len(subs))
	for i := range subs {
		out[i] = subs[i].View()
	}
	return out
}
