package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/schoolcbt/internal/model"
	"github.com/stemsi/schoolcbt/internal/repository"
)

// Store boundaries. The pgx repositories satisfy them; tests use in-memory fakes.
// Lookups return repository.ErrNotFound and duplicate writes repository.ErrConflict.

type ExamStore interface {
	Create(ctx context.Context, e *model.Exam) error
	Update(ctx context.Context, e *model.Exam) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus, feedback *string) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	FindByCode(ctx context.Context, code, schoolID string) (*model.Exam, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	ListBySchool(ctx context.Context, schoolID string, status model.ExamStatus) ([]model.Exam, error)
	ListAll(ctx context.Context, status model.ExamStatus) ([]model.Exam, error)
	ListByCreator(ctx context.Context, creatorID string) ([]model.Exam, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type ExamStatsStore interface {
	StatusCounts(ctx context.Context, schoolID string) (map[model.ExamStatus]int, error)
	CountsBySchool(ctx context.Context) ([]repository.SchoolExamCount, error)
}

type SubmissionStore interface {
	Create(ctx context.Context, s *model.ExamSubmission) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSubmission, error)
	Find(ctx context.Context, studentID string, examID uuid.UUID) (*model.ExamSubmission, error)
	ListByStudent(ctx context.Context, studentID string, limit int) ([]model.ExamSubmission, error)
	ListByExam(ctx context.Context, examID uuid.UUID, limit int) ([]model.ExamSubmission, error)
	ListBySchool(ctx context.Context, schoolID string, limit int) ([]model.ExamSubmission, error)
	CountByExam(ctx context.Context, examID uuid.UUID) (int, error)
	UpdateTheoryScore(ctx context.Context, id uuid.UUID, score int) error
}

type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUniqueID(ctx context.Context, uniqueID string) (*model.User, error)
	UniqueIDExists(ctx context.Context, uniqueID string) (bool, error)
	Create(ctx context.Context, u *model.User) error
	CountByRole(ctx context.Context, schoolID string) (map[model.Role]int, error)
}

type NotificationStore interface {
	ListActive(ctx context.Context, userID string, now time.Time) ([]model.Notification, error)
}

// ExamEvents receives every committed change to an exam.
type ExamEvents interface {
	ExamChanged(ctx context.Context, e *model.Exam)
}

// Actor is the authenticated caller, taken from the token claims.
type Actor struct {
	UserID   string
	UniqueID string
	Name     string
	Role     model.Role
	SchoolID string
}

// canAccessSchool reports whether the actor may act on records of schoolID.
func (a Actor) canAccessSchool(schoolID string) bool {
	return a.Role == model.RoleSuperAdmin || (a.SchoolID != "" && a.SchoolID == schoolID)
}
