package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/schoolcbt/internal/model"
	"github.com/stemsi/schoolcbt/internal/repository"
)

var testLog = zerolog.Nop()

type memExamStore struct {
	mu    sync.Mutex
	exams map[uuid.UUID]model.Exam
	err   error
}

func newMemExamStore() *memExamStore {
	return &memExamStore{exams: map[uuid.UUID]model.Exam{}}
}

func (m *memExamStore) put(e model.Exam) *model.Exam {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	m.exams[e.ID] = e
	return &e
}

func (m *memExamStore) Create(_ context.Context, e *model.Exam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, other := range m.exams {
		if other.Code == e.Code {
			return repository.ErrConflict
		}
	}
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	m.exams[e.ID] = *e
	return nil
}

func (m *memExamStore) Update(_ context.Context, e *model.Exam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.exams[e.ID]; !ok {
		return repository.ErrNotFound
	}
	e.UpdatedAt = time.Now()
	m.exams[e.ID] = *e
	return nil
}

func (m *memExamStore) UpdateStatus(_ context.Context, id uuid.UUID, status model.ExamStatus, feedback *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	e, ok := m.exams[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.Status = status
	if feedback != nil {
		e.AdminFeedback = *feedback
	}
	m.exams[id] = e
	return nil
}

func (m *memExamStore) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (m *memExamStore) FindByCode(_ context.Context, code, schoolID string) (*model.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.exams {
		if e.Code == code && e.SchoolID == schoolID {
			return &e, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memExamStore) CodeExists(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.exams {
		if e.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *memExamStore) filter(keep func(model.Exam) bool) []model.Exam {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Exam{}
	for _, e := range m.exams {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (m *memExamStore) ListBySchool(_ context.Context, schoolID string, status model.ExamStatus) ([]model.Exam, error) {
	return m.filter(func(e model.Exam) bool {
		return e.SchoolID == schoolID && (status == "" || e.Status == status)
	}), nil
}

func (m *memExamStore) ListAll(_ context.Context, status model.ExamStatus) ([]model.Exam, error) {
	return m.filter(func(e model.Exam) bool { return status == "" || e.Status == status }), nil
}

func (m *memExamStore) ListByCreator(_ context.Context, creatorID string) ([]model.Exam, error) {
	return m.filter(func(e model.Exam) bool { return e.CreatorID == creatorID }), nil
}

func (m *memExamStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.exams, id)
	return nil
}

type memSubmissionStore struct {
	mu      sync.Mutex
	subs    []model.ExamSubmission
	failing int
	creates int
	clock   time.Time
}

func newMemSubmissionStore() *memSubmissionStore {
	return &memSubmissionStore{clock: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (m *memSubmissionStore) add(s model.ExamSubmission) model.ExamSubmission {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.subs = append(m.subs, s)
	return s
}

func (m *memSubmissionStore) Create(_ context.Context, s *model.ExamSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.failing > 0 {
		m.failing--
		return context.DeadlineExceeded
	}
	for _, other := range m.subs {
		if other.StudentID == s.StudentID && other.ExamID == s.ExamID {
			return repository.ErrConflict
		}
	}
	m.clock = m.clock.Add(time.Minute)
	s.Timestamp = m.clock
	m.subs = append(m.subs, *s)
	return nil
}

func (m *memSubmissionStore) GetByID(_ context.Context, id uuid.UUID) (*model.ExamSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memSubmissionStore) Find(_ context.Context, studentID string, examID uuid.UUID) (*model.ExamSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.StudentID == studentID && s.ExamID == examID {
			return &s, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memSubmissionStore) list(keep func(model.ExamSubmission) bool, limit int) []model.ExamSubmission {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.ExamSubmission{}
	for _, s := range m.subs {
		if keep(s) && len(out) < limit {
			out = append(out, s)
		}
	}
	return out
}

func (m *memSubmissionStore) ListByStudent(_ context.Context, studentID string, limit int) ([]model.ExamSubmission, error) {
	return m.list(func(s model.ExamSubmission) bool { return s.StudentID == studentID }, limit), nil
}

func (m *memSubmissionStore) ListByExam(_ context.Context, examID uuid.UUID, limit int) ([]model.ExamSubmission, error) {
	return m.list(func(s model.ExamSubmission) bool { return s.ExamID == examID }, limit), nil
}

func (m *memSubmissionStore) ListBySchool(_ context.Context, _ string, limit int) ([]model.ExamSubmission, error) {
	return m.list(func(model.ExamSubmission) bool { return true }, limit), nil
}

func (m *memSubmissionStore) CountByExam(_ context.Context, examID uuid.UUID) (int, error) {
	return len(m.list(func(s model.ExamSubmission) bool { return s.ExamID == examID }, 1<<30)), nil
}

func (m *memSubmissionStore) UpdateTheoryScore(_ context.Context, id uuid.UUID, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.subs {
		if m.subs[i].ID == id {
			m.subs[i].TheoryScore = score
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memSubmissionStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

type note struct {
	UserID  string
	Message string
	Level   model.NotificationLevel
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (r *recordingNotifier) Notify(_ context.Context, userID, message string, level model.NotificationLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note{UserID: userID, Message: message, Level: level})
}

func (r *recordingNotifier) last() note {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notes) == 0 {
		return note{}
	}
	return r.notes[len(r.notes)-1]
}

type recordingEvents struct {
	mu      sync.Mutex
	changes []model.ExamStatus
}

func (r *recordingEvents) ExamChanged(_ context.Context, e *model.Exam) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, e.Status)
}

var (
	teacherA = Actor{UserID: uuid.NewString(), UniqueID: "TCH-AAAA0001", Name: "Mrs Obi", Role: model.RoleTeacher, SchoolID: "school-a"}
	teacherB = Actor{UserID: uuid.NewString(), UniqueID: "TCH-AAAA0002", Name: "Mr Ade", Role: model.RoleTeacher, SchoolID: "school-a"}
	adminA   = Actor{UserID: uuid.NewString(), UniqueID: "ADM-AAAA0001", Name: "Admin A", Role: model.RoleAdmin, SchoolID: "school-a"}
	adminB   = Actor{UserID: uuid.NewString(), UniqueID: "ADM-BBBB0001", Name: "Admin B", Role: model.RoleAdmin, SchoolID: "school-b"}
	studentA = Actor{UserID: uuid.NewString(), UniqueID: "STU-AAAA0001", Name: "Ada", Role: model.RoleStudent, SchoolID: "school-a"}
	studentB = Actor{UserID: uuid.NewString(), UniqueID: "STU-BBBB0001", Name: "Bola", Role: model.RoleStudent, SchoolID: "school-b"}
)

func sampleInput() *model.ExamInput {
	return &model.ExamInput{
		Title:           "Basic Science",
		Subject:         "Science",
		ClassLevel:      "JSS2",
		Term:            "First",
		Session:         "2025/2026",
		DurationMinutes: 30,
		Questions: []model.QuestionInput{
			{ID: "q1", Type: model.QuestionTypeObjective, Text: "Water boils at", Options: []string{"90", "100", "110"}, Correct: "100"},
			{ID: "q2", Type: model.QuestionTypeObjective, Text: "H2O is", Options: []string{"Water", "Salt"}, Correct: "Water"},
			{ID: "t1", Type: model.QuestionTypeTheory, Text: "Explain evaporation", MaxScore: 10},
		},
		Config: map[model.QuestionType]string{model.QuestionTypeObjective: "Choose one option"},
	}
}

func approvedExam(code, schoolID string) model.Exam {
	return model.Exam{
		ID:              uuid.New(),
		Title:           "Mathematics",
		DurationMinutes: 1,
		Code:            code,
		SchoolID:        schoolID,
		CreatorID:       teacherA.UniqueID,
		Status:          model.ExamStatusApproved,
		Questions: []model.Question{
			{ID: "q1", Type: model.QuestionTypeObjective, Options: []string{"A", "B", "C"}, Correct: "A"},
			{ID: "q2", Type: model.QuestionTypeObjective, Options: []string{"A", "B", "C"}, Correct: "B"},
			{ID: "q3", Type: model.QuestionTypeObjective, Options: []string{"A", "B", "C"}, Correct: "C"},
			{ID: "t1", Type: model.QuestionTypeTheory, MaxScore: 5},
		},
	}
}

type memUserStore struct {
	mu    sync.Mutex
	users []model.User
}

func (m *memUserStore) find(keep func(model.User) bool) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if keep(u) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUserStore) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	return m.find(func(u model.User) bool { return u.ID == id })
}

func (m *memUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return m.find(func(u model.User) bool { return u.Email != "" && strings.EqualFold(u.Email, email) })
}

func (m *memUserStore) GetByUniqueID(_ context.Context, uniqueID string) (*model.User, error) {
	return m.find(func(u model.User) bool { return strings.EqualFold(u.UniqueID, uniqueID) })
}

func (m *memUserStore) UniqueIDExists(ctx context.Context, uniqueID string) (bool, error) {
	_, err := m.GetByUniqueID(ctx, uniqueID)
	return err == nil, nil
}

func (m *memUserStore) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.users = append(m.users, *u)
	return nil
}

func (m *memUserStore) CountByRole(_ context.Context, schoolID string) (map[model.Role]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[model.Role]int{}
	for _, u := range m.users {
		if schoolID == "" || u.SchoolID == schoolID {
			out[u.Role]++
		}
	}
	return out, nil
}

type staticStats struct {
	counts  map[model.ExamStatus]int
	schools []repository.SchoolExamCount
}

func (s staticStats) StatusCounts(context.Context, string) (map[model.ExamStatus]int, error) {
	return s.counts, nil
}

func (s staticStats) CountsBySchool(context.Context) ([]repository.SchoolExamCount, error) {
	return s.schools, nil
}
