package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stemsi/schoolcbt/internal/model"
	"github.com/stemsi/schoolcbt/internal/repository"
	"github.com/stemsi/schoolcbt/internal/session"
)

// ErrOtherExamInProgress is returned when a student with a running attempt tries
// to start a different exam.
var ErrOtherExamInProgress = fmt.Errorf("%w: another exam is in progress", session.ErrInvalidState)

// ExamSessionService resolves exam codes into running attempts and keeps one
// engine per student while the attempt is open.
type ExamSessionService struct {
	exams       ExamStore
	submissions SubmissionStore
	notifier    session.Notifier
	clock       session.Clock
	log         zerolog.Logger

	mu     sync.Mutex
	active map[string]*session.Engine // by student unique id
}

// NewExamSessionService creates a new ExamSessionService. A nil clock uses the
// process clock.
func NewExamSessionService(
	exams ExamStore,
	submissions SubmissionStore,
	notifier session.Notifier,
	clock session.Clock,
	log zerolog.Logger,
) *ExamSessionService {
	if clock == nil {
		clock = session.RealClock()
	}
	return &ExamSessionService{
		exams:       exams,
		submissions: submissions,
		notifier:    notifier,
		clock:       clock,
		log:         log.With().Str("component", "exam_session_service").Logger(),
		active:      make(map[string]*session.Engine),
	}
}

// NormalizeCode trims and uppercases a typed exam code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Start opens an attempt at the approved exam of the student's school matching
// code. A student re-entering the code of the exam already running gets the same
// engine back, timer untouched.
func (s *ExamSessionService) Start(ctx context.Context, actor Actor, code string) (*session.Engine, error) {
	if actor.Role != model.RoleStudent {
		return nil, ErrForbidden
	}
	code = NormalizeCode(code)

	if eng := s.lookup(actor.UniqueID); eng != nil {
		if eng.Exam().Code == code {
			return eng, nil
		}
		return nil, ErrOtherExamInProgress
	}

	exam, err := s.resolve(ctx, actor, code)
	if err != nil {
		return nil, err
	}

	eng := session.New(session.Config{
		Exam: exam,
		Student: session.Student{
			UserID:   actor.UniqueID,
			UniqueID: actor.UniqueID,
			Name:     actor.Name,
			SchoolID: actor.SchoolID,
		},
		Writer:   &submissionWriter{store: s.submissions},
		Notifier: s.notifier,
		Clock:    s.clock,
		Log:      s.log,
		OnFinish: s.evict,
	})

	s.mu.Lock()
	if existing, ok := s.active[actor.UniqueID]; ok {
		s.mu.Unlock()
		if existing.Exam().ID == exam.ID {
			return existing, nil
		}
		return nil, ErrOtherExamInProgress
	}
	s.active[actor.UniqueID] = eng
	s.mu.Unlock()

	if err := eng.Start(); err != nil {
		s.evict(eng)
		return nil, err
	}
	s.notify(ctx, actor.UniqueID, fmt.Sprintf("%s started, good luck", exam.Title), model.NotificationInfo)
	return eng, nil
}

// resolve runs the entry checks: school-scoped code lookup, approval gate and
// the one-attempt guard.
func (s *ExamSessionService) resolve(ctx context.Context, actor Actor, code string) (*model.Exam, error) {
	if code == "" || actor.SchoolID == "" {
		return nil, ErrExamNotFound
	}
	exam, err := s.exams.FindByCode(ctx, code, actor.SchoolID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.notify(ctx, actor.UniqueID, "No exam matches this code", model.NotificationError)
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("find exam by code: %w", err)
	}
	if exam.SchoolID != actor.SchoolID {
		s.notify(ctx, actor.UniqueID, "No exam matches this code", model.NotificationError)
		return nil, ErrExamNotFound
	}
	if exam.Status != model.ExamStatusApproved {
		s.notify(ctx, actor.UniqueID, "This exam has not been approved yet", model.NotificationError)
		return nil, ErrExamNotApproved
	}

	_, err = s.submissions.Find(ctx, actor.UniqueID, exam.ID)
	switch {
	case err == nil:
		s.notify(ctx, actor.UniqueID, "You have already taken this exam", model.NotificationInfo)
		return nil, ErrAlreadyAttempted
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("check previous submission: %w", err)
	}
	return exam, nil
}

// Current returns the student's open attempt.
func (s *ExamSessionService) Current(actor Actor) (*session.Engine, error) {
	if eng := s.lookup(actor.UniqueID); eng != nil {
		return eng, nil
	}
	return nil, ErrNoActiveSession
}

// SetAnswer records one answer in the student's open attempt.
func (s *ExamSessionService) SetAnswer(actor Actor, questionID, value string) error {
	eng, err := s.Current(actor)
	if err != nil {
		return err
	}
	return eng.SetAnswer(questionID, value)
}

// Submit finalizes the student's open attempt.
func (s *ExamSessionService) Submit(ctx context.Context, actor Actor) (*model.ExamSubmission, error) {
	eng, err := s.Current(actor)
	if err != nil {
		return nil, err
	}
	return eng.Submit(ctx)
}

// ActiveCount is the number of open attempts.
func (s *ExamSessionService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Shutdown stops every countdown. Open attempts are not recoverable afterwards.
func (s *ExamSessionService) Shutdown() {
	s.mu.Lock()
	engines := make([]*session.Engine, 0, len(s.active))
	for _, eng := range s.active {
		engines = append(engines, eng)
	}
	s.active = make(map[string]*session.Engine)
	s.mu.Unlock()

	for _, eng := range engines {
		eng.Close()
	}
	if len(engines) > 0 {
		s.log.Warn().Int("count", len(engines)).Msg("Abandoned open exam sessions on shutdown")
	}
}

func (s *ExamSessionService) lookup(studentID string) *session.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[studentID]
}

func (s *ExamSessionService) evict(eng *session.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := eng.Student().UniqueID
	if s.active[key] == eng {
		delete(s.active, key)
	}
}

func (s *ExamSessionService) notify(ctx context.Context, userID, msg string, level model.NotificationLevel) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, msg, level)
	}
}

// submissionWriter adapts SubmissionStore to the engine. A conflict caused by an
// earlier attempt of the same write (acknowledgement lost) counts as success.
type submissionWriter struct {
	store SubmissionStore
}

func (w *submissionWriter) CreateSubmission(ctx context.Context, rec *model.ExamSubmission) error {
	err := w.store.Create(ctx, rec)
	if !errors.Is(err, repository.ErrConflict) {
		return err
	}
	existing, ferr := w.store.Find(ctx, rec.StudentID, rec.ExamID)
	if ferr != nil {
		return fmt.Errorf("resolve duplicate submission: %w", ferr)
	}
	if existing.ID != rec.ID {
		return session.ErrDuplicateSubmission
	}
	*rec = *existing
	return nil
}
