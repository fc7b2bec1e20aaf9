package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/schoolcbt/internal/codegen"
	"github.com/stemsi/schoolcbt/internal/model"
	"github.com/stemsi/schoolcbt/internal/repository"
	"github.com/stemsi/schoolcbt/internal/session"
)

// ExamService handles exam authoring and the approval workflow.
type ExamService struct {
	exams       ExamStore
	submissions SubmissionStore
	events      ExamEvents
	notifier    session.Notifier
	codeLength  int
	log         zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	exams ExamStore,
	submissions SubmissionStore,
	events ExamEvents,
	notifier session.Notifier,
	codeLength int,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		exams:       exams,
		submissions: submissions,
		events:      events,
		notifier:    notifier,
		codeLength:  codeLength,
		log:         log.With().Str("component", "exam_service").Logger(),
	}
}

// Create stores a new exam as pending with a freshly generated entry code.
func (s *ExamService) Create(ctx context.Context, actor Actor, in *model.ExamInput) (*model.Exam, error) {
	if actor.SchoolID == "" {
		return nil, ErrForbidden
	}
	questions, err := buildQuestions(in.Questions)
	if err != nil {
		return nil, err
	}

	exam := &model.Exam{
		CreatorID:   actor.UniqueID,
		CreatorName: actor.Name,
		SchoolID:    actor.SchoolID,
	}
	applyInput(exam, in, questions)
	exam.Status = model.ExamStatusPending

	// The existence check narrows collisions; the unique index settles races.
	for attempt := 0; ; attempt++ {
		exam.Code, err = codegen.Unique(ctx, "", s.codeLength, s.exams.CodeExists)
		if err != nil {
			return nil, fmt.Errorf("generate exam code: %w", err)
		}
		err = s.exams.Create(ctx, exam)
		if !errors.Is(err, repository.ErrConflict) || attempt+1 >= codegen.MaxAttempts {
			break
		}
	}
	if err != nil {
		s.notify(ctx, actor.UniqueID, "Could not save the exam", model.NotificationError)
		return nil, fmt.Errorf("create exam: %w", err)
	}

	s.log.Info().Str("exam_id", exam.ID.String()).Str("code", exam.Code).Msg("Exam created")
	s.events.ExamChanged(ctx, exam)
	s.notify(ctx, actor.UniqueID, "Exam saved and sent for approval", model.NotificationSuccess)
	return exam, nil
}

// Update replaces the authored content of an exam. Every save sends the exam back
// to pending; the code and any admin feedback are kept.
func (s *ExamService) Update(ctx context.Context, actor Actor, id uuid.UUID, in *model.ExamInput) (*model.Exam, error) {
	exam, err := s.getExam(ctx, id)
	if err != nil {
		return nil, err
	}
	if exam.CreatorID != actor.UniqueID {
		return nil, ErrNotExamAuthor
	}
	questions, err := buildQuestions(in.Questions)
	if err != nil {
		return nil, err
	}

	applyInput(exam, in, questions)
	exam.Status, _ = exam.Status.Next(model.ExamActionSave)

	if err := s.exams.Update(ctx, exam); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		s.notify(ctx, actor.UniqueID, "Could not save the exam", model.NotificationError)
		return nil, fmt.Errorf("update exam: %w", err)
	}

	s.log.Info().Str("exam_id", exam.ID.String()).Msg("Exam updated, approval reset")
	s.events.ExamChanged(ctx, exam)
	s.notify(ctx, actor.UniqueID, "Exam saved and sent for approval", model.NotificationSuccess)
	return exam, nil
}

// Approve makes an exam attemptable.
func (s *ExamService) Approve(ctx context.Context, actor Actor, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.transition(ctx, actor, id, model.ExamActionApprove, nil)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, actor.UniqueID, "Exam approved", model.NotificationSuccess)
	s.notify(ctx, exam.CreatorID, fmt.Sprintf("Your exam %q was approved", exam.Title), model.NotificationSuccess)
	return exam, nil
}

// ReturnForReview sends an exam back to its author with mandatory feedback.
func (s *ExamService) ReturnForReview(ctx context.Context, actor Actor, id uuid.UUID, feedback string) (*model.Exam, error) {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return nil, ErrFeedbackRequired
	}
	exam, err := s.transition(ctx, actor, id, model.ExamActionReturn, &feedback)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, actor.UniqueID, "Exam returned for review", model.NotificationSuccess)
	s.notify(ctx, exam.CreatorID, fmt.Sprintf("Your exam %q was returned for review", exam.Title), model.NotificationInfo)
	return exam, nil
}

func (s *ExamService) transition(ctx context.Context, actor Actor, id uuid.UUID, action model.ExamAction, feedback *string) (*model.Exam, error) {
	exam, err := s.getExam(ctx, id)
	if err != nil {
		s.notify(ctx, actor.UniqueID, "Exam no longer exists", model.NotificationError)
		return nil, err
	}
	if !actor.canAccessSchool(exam.SchoolID) {
		return nil, ErrWrongSchool
	}
	next, ok := exam.Status.Next(action)
	if !ok {
		return nil, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, exam.Status)
	}

	if err := s.exams.UpdateStatus(ctx, id, next, feedback); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.notify(ctx, actor.UniqueID, "Exam no longer exists", model.NotificationError)
			return nil, ErrExamNotFound
		}
		s.notify(ctx, actor.UniqueID, "Could not update the exam status", model.NotificationError)
		return nil, fmt.Errorf("update exam status: %w", err)
	}

	s.log.Info().
		Str("exam_id", id.String()).
		Str("from", string(exam.Status)).
		Str("to", string(next)).
		Str("by", actor.UniqueID).
		Msg("Exam status changed")

	exam.Status = next
	if feedback != nil {
		exam.AdminFeedback = *feedback
	}
	s.events.ExamChanged(ctx, exam)
	return exam, nil
}

// Delete removes an exam that nobody has submitted yet. Only the author may delete.
func (s *ExamService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	exam, err := s.getExam(ctx, id)
	if err != nil {
		return err
	}
	if exam.CreatorID != actor.UniqueID {
		return ErrNotExamAuthor
	}
	n, err := s.submissions.CountByExam(ctx, id)
	if err != nil {
		return fmt.Errorf("count submissions: %w", err)
	}
	if n > 0 {
		return ErrExamHasSubmissions
	}
	if err := s.exams.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return ErrExamNotFound
		case errors.Is(err, repository.ErrConflict):
			return ErrExamHasSubmissions
		}
		return fmt.Errorf("delete exam: %w", err)
	}
	s.log.Info().Str("exam_id", id.String()).Msg("Exam deleted")
	s.events.ExamChanged(ctx, exam)
	return nil
}

// Get returns the full exam, answer key included, to staff of its school.
func (s *ExamService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*model.Exam, error) {
	if actor.Role == model.RoleStudent {
		return nil, ErrForbidden
	}
	exam, err := s.getExam(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.canAccessSchool(exam.SchoolID) {
		// Other schools' exams are reported as missing.
		return nil, ErrExamNotFound
	}
	return exam, nil
}

// List returns the exams visible to actor. Teachers see their own, admins their
// school's, super admins every school's and students only approved exams of their
// school without the entry code.
func (s *ExamService) List(ctx context.Context, actor Actor, status model.ExamStatus) ([]model.ExamSummary, error) {
	var (
		exams []model.Exam
		err   error
	)
	switch actor.Role {
	case model.RoleTeacher:
		exams, err = s.exams.ListByCreator(ctx, actor.UniqueID)
	case model.RoleAdmin:
		exams, err = s.exams.ListBySchool(ctx, actor.SchoolID, status)
	case model.RoleSuperAdmin:
		exams, err = s.exams.ListAll(ctx, status)
	case model.RoleStudent:
		exams, err = s.exams.ListBySchool(ctx, actor.SchoolID, model.ExamStatusApproved)
	default:
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}

	out := make([]model.ExamSummary, 0, len(exams))
	for i := range exams {
		if actor.Role == model.RoleTeacher && status != "" && exams[i].Status != status {
			continue
		}
		sum := exams[i].Summary()
		if actor.Role == model.RoleStudent {
			sum.Code = ""
			sum.AdminFeedback = ""
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *ExamService) getExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

func (s *ExamService) notify(ctx context.Context, userID, msg string, level model.NotificationLevel) {
	if s.notifier != nil && userID != "" {
		s.notifier.Notify(ctx, userID, msg, level)
	}
}

func applyInput(e *model.Exam, in *model.ExamInput, questions []model.Question) {
	e.Title = strings.TrimSpace(in.Title)
	e.Subject = strings.TrimSpace(in.Subject)
	e.ClassLevel = strings.TrimSpace(in.ClassLevel)
	e.Term = strings.TrimSpace(in.Term)
	e.Session = strings.TrimSpace(in.Session)
	e.Instructions = in.Instructions
	e.DurationMinutes = in.DurationMinutes
	e.Questions = questions
	e.Config = in.Config
	if e.Config == nil {
		e.Config = map[model.QuestionType]string{}
	}
}

// buildQuestions validates the ordered question list and fills defaults: missing
// ids are generated and a zero max score becomes 1.
func buildQuestions(in []model.QuestionInput) ([]model.Question, error) {
	fields := map[string]string{}
	seen := make(map[string]bool, len(in))
	out := make([]model.Question, 0, len(in))

	for i, qi := range in {
		key := fmt.Sprintf("questions[%d]", i)
		q := model.Question{
			ID:       strings.TrimSpace(qi.ID),
			Type:     qi.Type,
			Text:     qi.Text,
			Image:    qi.Image,
			MaxScore: qi.MaxScore,
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if seen[q.ID] {
			fields[key+".id"] = "duplicate question id " + q.ID
		}
		seen[q.ID] = true
		if q.MaxScore == 0 {
			q.MaxScore = 1
		}

		if q.Type == model.QuestionTypeObjective {
			q.Options = qi.Options
			q.Correct = qi.Correct
			if len(q.Options) < 2 {
				fields[key+".options"] = "objective questions need at least two options"
			}
			if q.Correct != "" && !contains(q.Options, q.Correct) {
				fields[key+".correct"] = "correct must match one of the options exactly"
			}
		}
		out = append(out, q)
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return out, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
