// Package session runs a single timed exam attempt: it collects answers while the
// clock runs, then grades and persists the attempt exactly once, either on the
// student's request or when the countdown reaches zero.
package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/schoolcbt/internal/grading"
	"github.com/stemsi/schoolcbt/internal/model"
)

// State is the lifecycle position of an attempt.
type State string

const (
	StateIdle       State = "idle"
	StateActive     State = "active"
	StateSubmitting State = "submitting"
	StateSubmitted  State = "submitted"
)

// autoSubmitTimeout bounds the write issued when the countdown expires.
const autoSubmitTimeout = 15 * time.Second

// SubmissionWriter persists a finished attempt. It sets rec.Timestamp from the
// store and returns ErrDuplicateSubmission when another record for the same
// student and exam already exists.
type SubmissionWriter interface {
	CreateSubmission(ctx context.Context, rec *model.ExamSubmission) error
}

// Notifier delivers transient user-facing messages.
type Notifier interface {
	Notify(ctx context.Context, userID, message string, level model.NotificationLevel)
}

// Student identifies who is sitting the exam.
type Student struct {
	UserID   string
	UniqueID string
	Name     string
	SchoolID string
}

// EventType tags the messages streamed to connected clients.
type EventType string

const (
	EventTick      EventType = "tick"
	EventSubmitted EventType = "submitted"
	EventError     EventType = "error"
)

// Event is a state change pushed to subscribers.
type Event struct {
	Type      EventType       `json:"type"`
	Remaining int             `json:"remaining"`
	Result    *grading.Result `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// View is a consistent copy of the engine state.
type View struct {
	State     State             `json:"state"`
	ExamID    uuid.UUID         `json:"exam_id"`
	Remaining int               `json:"remaining"`
	Answers   map[string]string `json:"answers"`
	Result    *grading.Result   `json:"result,omitempty"`
	Submitted *time.Time        `json:"submitted_at,omitempty"`
}

// Config wires an Engine.
type Config struct {
	Exam     *model.Exam
	Student  Student
	Writer   SubmissionWriter
	Notifier Notifier
	Clock    Clock
	Log      zerolog.Logger
	// OnFinish runs once, after the attempt reaches StateSubmitted.
	OnFinish func(*Engine)
}

// Engine owns one student's attempt at one exam.
type Engine struct {
	exam     *model.Exam
	student  Student
	writer   SubmissionWriter
	notifier Notifier
	clock    Clock
	log      zerolog.Logger
	onFinish func(*Engine)
	qidx     map[string]int

	mu         sync.Mutex
	state      State
	answers    map[string]string
	deadline   time.Time
	remaining  int
	ticker     Ticker
	stop       chan struct{}
	inFlight   bool
	pending    *model.ExamSubmission
	submission *model.ExamSubmission
	subs       map[chan Event]struct{}
}

// New builds an idle engine for cfg.Exam.
func New(cfg Config) *Engine {
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}
	return &Engine{
		exam:     cfg.Exam,
		student:  cfg.Student,
		writer:   cfg.Writer,
		notifier: cfg.Notifier,
		clock:    clock,
		log: cfg.Log.With().
			Str("exam_id", cfg.Exam.ID.String()).
			Str("student_id", cfg.Student.UniqueID).
			Logger(),
		onFinish: cfg.OnFinish,
		qidx:     cfg.Exam.QuestionIndex(),
		state:    StateIdle,
		answers:  map[string]string{},
		subs:     map[chan Event]struct{}{},
	}
}

// Exam returns the exam being attempted.
func (e *Engine) Exam() *model.Exam { return e.exam }

// Student returns the candidate.
func (e *Engine) Student() Student { return e.student }

// Start moves an idle engine to active and starts the countdown.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		return ErrInvalidState
	}
	secs := e.exam.DurationSeconds()
	e.state = StateActive
	e.answers = map[string]string{}
	e.remaining = secs
	e.deadline = e.clock.Now().Add(time.Duration(secs) * time.Second)
	e.ticker = e.clock.NewTicker(time.Second)
	e.stop = make(chan struct{})
	go e.run(e.ticker, e.stop)

	e.log.Info().Int("duration_seconds", secs).Msg("Exam session started")
	return nil
}

func (e *Engine) run(t Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			if e.tick() {
				e.autoSubmit()
				return
			}
		}
	}
}

// tick recomputes the remaining time and reports whether the deadline passed.
func (e *Engine) tick() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		return false
	}
	e.remaining = e.remainingLocked()
	e.broadcastLocked(Event{Type: EventTick, Remaining: e.remaining})
	return e.remaining == 0
}

func (e *Engine) remainingLocked() int {
	left := e.deadline.Sub(e.clock.Now()).Seconds()
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left))
}

func (e *Engine) autoSubmit() {
	ctx, cancel := context.WithTimeout(context.Background(), autoSubmitTimeout)
	defer cancel()

	e.log.Info().Msg("Time up, submitting automatically")
	if _, err := e.Submit(ctx); err != nil && !errors.Is(err, ErrInvalidState) {
		e.log.Error().Err(err).Msg("Automatic submission failed")
	}
}

// SetAnswer records value for questionID, replacing any earlier answer.
func (e *Engine) SetAnswer(questionID, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		return ErrInvalidState
	}
	if _, ok := e.qidx[questionID]; !ok {
		return ErrUnknownQuestion
	}
	e.answers[questionID] = value
	return nil
}

// Submit finalizes the attempt. Answers are frozen and graded on the first call;
// after a PersistenceError the same frozen record is written again on retry.
func (e *Engine) Submit(ctx context.Context) (*model.ExamSubmission, error) {
	e.mu.Lock()
	switch e.state {
	case StateActive:
		e.state = StateSubmitting
		e.stopTimerLocked()
		e.remaining = e.remainingLocked()
		e.pending = e.buildRecordLocked()
	case StateSubmitting:
		if e.inFlight {
			e.mu.Unlock()
			return nil, ErrSubmitInProgress
		}
	default:
		e.mu.Unlock()
		return nil, ErrInvalidState
	}
	e.inFlight = true
	rec := *e.pending
	e.mu.Unlock()

	err := e.writer.CreateSubmission(ctx, &rec)

	e.mu.Lock()
	e.inFlight = false
	switch {
	case err == nil:
		e.state = StateSubmitted
		e.submission = &rec
		e.closeSubsLocked(Event{Type: EventSubmitted, Result: &grading.Result{Score: rec.Score, Total: rec.Total}})
		e.mu.Unlock()

		e.log.Info().Int("score", rec.Score).Int("total", rec.Total).Msg("Exam submitted")
		e.notify(ctx, "Exam submitted successfully", model.NotificationSuccess)
		e.finish()
		return &rec, nil

	case errors.Is(err, ErrDuplicateSubmission):
		e.state = StateSubmitted
		e.closeSubsLocked(Event{Type: EventError, Error: "exam already submitted"})
		e.mu.Unlock()

		e.log.Warn().Msg("Submission already recorded elsewhere")
		e.notify(ctx, "This exam was already submitted", model.NotificationInfo)
		e.finish()
		return nil, err

	default:
		e.broadcastLocked(Event{Type: EventError, Error: "could not save submission, retry"})
		e.mu.Unlock()

		e.log.Error().Err(err).Msg("Failed to persist submission")
		e.notify(ctx, "Could not save your submission, please retry", model.NotificationError)
		return nil, &PersistenceError{Err: err}
	}
}

func (e *Engine) buildRecordLocked() *model.ExamSubmission {
	answers := make(map[string]string, len(e.answers))
	for k, v := range e.answers {
		answers[k] = v
	}
	res := grading.Grade(e.exam.Questions, answers)
	return &model.ExamSubmission{
		ID:          uuid.New(),
		StudentID:   e.student.UniqueID,
		StudentName: e.student.Name,
		ExamID:      e.exam.ID,
		ExamTitle:   e.exam.Title,
		Answers:     answers,
		Score:       res.Score,
		Total:       res.Total,
	}
}

func (e *Engine) stopTimerLocked() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}

func (e *Engine) notify(ctx context.Context, msg string, level model.NotificationLevel) {
	if e.notifier == nil || e.student.UserID == "" {
		return
	}
	e.notifier.Notify(ctx, e.student.UserID, msg, level)
}

func (e *Engine) finish() {
	if e.onFinish != nil {
		e.onFinish(e)
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot returns a copy of the engine state. Remaining is live while active.
func (e *Engine) Snapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := View{State: e.state, ExamID: e.exam.ID, Remaining: e.remaining}
	if e.state == StateActive {
		v.Remaining = e.remainingLocked()
	}
	src := e.answers
	if e.pending != nil {
		src = e.pending.Answers
	}
	v.Answers = make(map[string]string, len(src))
	for k, val := range src {
		v.Answers[k] = val
	}
	if e.submission != nil {
		v.Result = &grading.Result{Score: e.submission.Score, Total: e.submission.Total}
		ts := e.submission.Timestamp
		v.Submitted = &ts
	}
	return v
}

// Submission returns the persisted record, or nil before a successful submit.
func (e *Engine) Submission() *model.ExamSubmission {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submission
}

// Subscribe registers for events. The channel is closed once the attempt is
// submitted or cancel is called. Slow readers miss ticks rather than block the clock.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)

	e.mu.Lock()
	if e.state == StateSubmitted {
		close(ch)
		e.mu.Unlock()
		return ch, func() {}
	}
	e.subs[ch] = struct{}{}
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if _, ok := e.subs[ch]; ok {
				delete(e.subs, ch)
				close(ch)
			}
		})
	}
}

func (e *Engine) broadcastLocked(ev Event) {
	for ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// closeSubsLocked delivers the final event and closes every subscriber. A full
// buffer only holds ticks, so one is discarded to make room.
func (e *Engine) closeSubsLocked(last Event) {
	for ch := range e.subs {
		select {
		case ch <- last:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- last:
			default:
			}
		}
		delete(e.subs, ch)
		close(ch)
	}
}

// Close stops the countdown without submitting. Used on shutdown.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTimerLocked()
	for ch := range e.subs {
		delete(e.subs, ch)
		close(ch)
	}
}
