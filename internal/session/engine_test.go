package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/schoolcbt/internal/model"
)

type fakeTicker struct {
	ch   chan time.Time
	done chan struct{}
	once sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.once.Do(func() { close(t.done) }) }

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time), done: make(chan struct{})}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves time forward and delivers one tick to every live ticker.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := append([]*fakeTicker(nil), c.tickers...)
	c.mu.Unlock()

	for _, t := range tickers {
		select {
		case t.ch <- now:
		case <-t.done:
		}
	}
}

type fakeWriter struct {
	mu      sync.Mutex
	records []model.ExamSubmission
	calls   int
	fail    int
	err     error
	gate    chan struct{}
}

func (w *fakeWriter) CreateSubmission(_ context.Context, rec *model.ExamSubmission) error {
	if w.gate != nil {
		<-w.gate
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return w.err
	}
	if w.fail > 0 {
		w.fail--
		return errors.New("connection refused")
	}
	rec.Timestamp = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w.records = append(w.records, *rec)
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.records)
}

type recordedNote struct {
	userID string
	level  model.NotificationLevel
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []recordedNote
}

func (n *fakeNotifier) Notify(_ context.Context, userID, _ string, level model.NotificationLevel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, recordedNote{userID: userID, level: level})
}

func (n *fakeNotifier) levels() []model.NotificationLevel {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.NotificationLevel, len(n.notes))
	for i, note := range n.notes {
		out[i] = note.level
	}
	return out
}

func testExam() *model.Exam {
	return &model.Exam{
		ID:              uuid.New(),
		Title:           "Basic Science",
		DurationMinutes: 1,
		Status:          model.ExamStatusApproved,
		SchoolID:        "school-a",
		Questions: []model.Question{
			{ID: "q1", Type: model.QuestionTypeObjective, Options: []string{"A", "B", "C"}, Correct: "A"},
			{ID: "q2", Type: model.QuestionTypeObjective, Options: []string{"A", "B", "C"}, Correct: "B"},
			{ID: "q3", Type: model.QuestionTypeObjective, Options: []string{"A", "B", "C"}, Correct: "C"},
			{ID: "t1", Type: model.QuestionTypeTheory, Text: "Explain osmosis", MaxScore: 10},
		},
	}
}

type harness struct {
	engine   *Engine
	clock    *fakeClock
	writer   *fakeWriter
	notifier *fakeNotifier
	finished chan struct{}
}

func newHarness(t *testing.T, w *fakeWriter) *harness {
	t.Helper()
	h := &harness{
		clock:    newFakeClock(),
		writer:   w,
		notifier: &fakeNotifier{},
		finished: make(chan struct{}, 4),
	}
	h.engine = New(Config{
		Exam:     testExam(),
		Student:  Student{UserID: "user-1", UniqueID: "STU-0001", Name: "Ada", SchoolID: "school-a"},
		Writer:   w,
		Notifier: h.notifier,
		Clock:    h.clock,
		Log:      zerolog.Nop(),
		OnFinish: func(*Engine) { h.finished <- struct{}{} },
	})
	t.Cleanup(h.engine.Close)
	return h
}

func TestStartTwiceFails(t *testing.T) {
	h := newHarness(t, &fakeWriter{})
	require.NoError(t, h.engine.Start())
	assert.ErrorIs(t, h.engine.Start(), ErrInvalidState)
	assert.Equal(t, StateActive, h.engine.State())
	assert.Equal(t, 60, h.engine.Snapshot().Remaining)
}

func TestSetAnswerRequiresActive(t *testing.T) {
	h := newHarness(t, &fakeWriter{})
	assert.ErrorIs(t, h.engine.SetAnswer("q1", "A"), ErrInvalidState)

	require.NoError(t, h.engine.Start())
	require.NoError(t, h.engine.SetAnswer("q1", "B"))
	require.NoError(t, h.engine.SetAnswer("q1", "A"))
	assert.ErrorIs(t, h.engine.SetAnswer("nope", "A"), ErrUnknownQuestion)
	assert.Equal(t, map[string]string{"q1": "A"}, h.engine.Snapshot().Answers)
}

func TestSubmitGradesAndPersists(t *testing.T) {
	h := newHarness(t, &fakeWriter{})
	require.NoError(t, h.engine.Start())
	require.NoError(t, h.engine.SetAnswer("q1", "A"))
	require.NoError(t, h.engine.SetAnswer("q2", "X"))
	require.NoError(t, h.engine.SetAnswer("q3", "C"))
	require.NoError(t, h.engine.SetAnswer("t1", "Water moves across a membrane"))

	rec, err := h.engine.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Score)
	assert.Equal(t, 3, rec.Total)
	assert.Equal(t, 0, rec.TheoryScore)
	assert.Equal(t, "STU-0001", rec.StudentID)
	assert.Equal(t, "Basic Science", rec.ExamTitle)
	assert.Len(t, rec.Answers, 4)
	assert.False(t, rec.Timestamp.IsZero())

	assert.Equal(t, StateSubmitted, h.engine.State())
	assert.Equal(t, 1, h.writer.count())
	assert.ErrorIs(t, h.engine.SetAnswer("q1", "B"), ErrInvalidState)
	assert.Equal(t, []model.NotificationLevel{model.NotificationSuccess}, h.notifier.levels())

	_, err = h.engine.Submit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 1, h.writer.count())
	assert.Len(t, h.finished, 1)
}

func TestSubmitBeforeStartFails(t *testing.T) {
	h := newHarness(t, &fakeWriter{})
	_, err := h.engine.Submit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 0, h.writer.count())
}

func TestTimeoutAutoSubmitsOnce(t *testing.T) {
	h := newHarness(t, &fakeWriter{})
	require.NoError(t, h.engine.Start())

	for i := 0; i < 59; i++ {
		h.clock.Advance(time.Second)
	}
	assert.Equal(t, StateActive, h.engine.State())
	assert.Equal(t, 1, h.engine.Snapshot().Remaining)

	h.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return h.engine.State() == StateSubmitted
	}, time.Second, 5*time.Millisecond)

	// Later ticks reach no live ticker.
	h.clock.Advance(time.Second)
	h.clock.Advance(time.Second)

	require.Equal(t, 1, h.writer.count())
	rec := h.engine.Submission()
	assert.Equal(t, 0, rec.Score)
	assert.Equal(t, 3, rec.Total)
	assert.Empty(t, rec.Answers)
}

func TestTimeoutKeepsAnswers(t *testing.T) {
	h := newHarness(t, &fakeWriter{})
	require.NoError(t, h.engine.Start())
	require.NoError(t, h.engine.SetAnswer("q2", "B"))

	h.clock.Advance(2 * time.Minute)
	require.Eventually(t, func() bool {
		return h.engine.State() == StateSubmitted
	}, time.Second, 5*time.Millisecond)

	rec := h.engine.Submission()
	assert.Equal(t, 1, rec.Score)
	assert.Equal(t, 3, rec.Total)
}

func TestConcurrentSubmitsCreateOneRecord(t *testing.T) {
	w := &fakeWriter{gate: make(chan struct{})}
	h := newHarness(t, w)
	require.NoError(t, h.engine.Start())

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.Submit(context.Background())
			errs <- err
		}()
	}

	// One submit is parked on the gate; the other has already been turned away.
	require.Eventually(t, func() bool { return len(errs) == 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, <-errs, ErrSubmitInProgress)
	close(w.gate)
	wg.Wait()

	assert.NoError(t, <-errs)
	assert.Equal(t, 1, w.count())
}

func TestTimeoutDuringManualSubmit(t *testing.T) {
	w := &fakeWriter{gate: make(chan struct{})}
	h := newHarness(t, w)
	require.NoError(t, h.engine.Start())

	done := make(chan error, 1)
	go func() {
		_, err := h.engine.Submit(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool {
		return h.engine.State() == StateSubmitting
	}, time.Second, 5*time.Millisecond)

	// The ticker was stopped by the manual submit, so the deadline passing is a no-op.
	h.clock.Advance(2 * time.Minute)
	close(w.gate)

	require.NoError(t, <-done)
	assert.Equal(t, 1, w.count())
}

func TestPersistenceFailureIsRetryable(t *testing.T) {
	w := &fakeWriter{fail: 1}
	h := newHarness(t, w)
	require.NoError(t, h.engine.Start())
	require.NoError(t, h.engine.SetAnswer("q1", "A"))

	_, err := h.engine.Submit(context.Background())
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StateSubmitting, h.engine.State())
	assert.Equal(t, 0, w.count())
	assert.Len(t, h.finished, 0)

	// Answers are frozen once submission starts.
	assert.ErrorIs(t, h.engine.SetAnswer("q2", "B"), ErrInvalidState)
	assert.Equal(t, map[string]string{"q1": "A"}, h.engine.Snapshot().Answers)

	rec, err := h.engine.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Score)
	assert.Equal(t, map[string]string{"q1": "A"}, rec.Answers)
	assert.Equal(t, StateSubmitted, h.engine.State())
	assert.Equal(t, 1, w.count())
	assert.Equal(t, 2, w.calls)
	assert.Equal(t,
		[]model.NotificationLevel{model.NotificationError, model.NotificationSuccess},
		h.notifier.levels())
}

func TestRetryReusesSubmissionID(t *testing.T) {
	w := &fakeWriter{fail: 1}
	h := newHarness(t, w)
	require.NoError(t, h.engine.Start())

	_, err := h.engine.Submit(context.Background())
	require.Error(t, err)
	first := h.engine.pending.ID

	rec, err := h.engine.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, rec.ID)
}

func TestDuplicateSubmissionIsTerminal(t *testing.T) {
	w := &fakeWriter{err: ErrDuplicateSubmission}
	h := newHarness(t, w)
	require.NoError(t, h.engine.Start())

	_, err := h.engine.Submit(context.Background())
	assert.ErrorIs(t, err, ErrDuplicateSubmission)
	assert.Equal(t, StateSubmitted, h.engine.State())
	assert.Nil(t, h.engine.Submission())
	assert.Len(t, h.finished, 1)
}

func TestSubscribeReceivesTicksAndFinalEvent(t *testing.T) {
	h := newHarness(t, &fakeWriter{})
	events, cancel := h.engine.Subscribe()
	defer cancel()
	require.NoError(t, h.engine.Start())

	h.clock.Advance(1500 * time.Millisecond)
	ev := <-events
	assert.Equal(t, EventTick, ev.Type)
	assert.Equal(t, 59, ev.Remaining)

	_, err := h.engine.Submit(context.Background())
	require.NoError(t, err)

	var last Event
	for ev := range events {
		last = ev
	}
	assert.Equal(t, EventSubmitted, last.Type)
	require.NotNil(t, last.Result)
	assert.Equal(t, 3, last.Result.Total)

	late, _ := h.engine.Subscribe()
	_, open := <-late
	assert.False(t, open)
}
