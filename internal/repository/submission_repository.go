package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/schoolcbt/internal/model"
)

// SubmissionRepository handles exam submission data access.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

const submissionColumns = `id, student_id, student_name, exam_id, exam_title, answers,
	score, total, theory_score, created_at`

func scanSubmission(row pgx.Row) (*model.ExamSubmission, error) {
	s := &model.ExamSubmission{}
	err := row.Scan(&s.ID, &s.StudentID, &s.StudentName, &s.ExamID, &s.ExamTitle,
		&s.Answers, &s.Score, &s.Total, &s.TheoryScore, &s.Timestamp)
	if err != nil {
		return nil, mapErr(err)
	}
	if s.Answers == nil {
		s.Answers = map[string]string{}
	}
	return s, nil
}

func collectSubmissions(rows pgx.Rows) ([]model.ExamSubmission, error) {
	defer rows.Close()
	subs := []model.ExamSubmission{}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

// Create inserts a submission with a caller-chosen id and fills Timestamp from the
// database clock. A second row for the same (student, exam) yields ErrConflict.
func (r *SubmissionRepository) Create(ctx context.Context, s *model.ExamSubmission) error {
	answers := s.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO exam_submissions (id, student_id, student_name, exam_id, exam_title,
		        answers, score, total, theory_score)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		s.ID, s.StudentID, s.StudentName, s.ExamID, s.ExamTitle,
		raw, s.Score, s.Total, s.TheoryScore,
	).Scan(&s.Timestamp)
	return mapErr(err)
}

// GetByID retrieves a submission by its UUID.
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSubmission, error) {
	return scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM exam_submissions WHERE id = $1`, id))
}

// Find returns the submission of one student for one exam.
func (r *SubmissionRepository) Find(ctx context.Context, studentID string, examID uuid.UUID) (*model.ExamSubmission, error) {
	return scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM exam_submissions
		 WHERE student_id = $1 AND exam_id = $2`, studentID, examID))
}

// ListByStudent returns up to limit of a student's submissions, newest first.
func (r *SubmissionRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]model.ExamSubmission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM exam_submissions
		 WHERE student_id = $1 ORDER BY created_at DESC LIMIT $2`, studentID, limit)
	if err != nil {
		return nil, err
	}
	return collectSubmissions(rows)
}

// ListByExam returns up to limit submissions for an exam, newest first.
func (r *SubmissionRepository) ListByExam(ctx context.Context, examID uuid.UUID, limit int) ([]model.ExamSubmission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM exam_submissions
		 WHERE exam_id = $1 ORDER BY created_at DESC LIMIT $2`, examID, limit)
	if err != nil {
		return nil, err
	}
	return collectSubmissions(rows)
}

// ListBySchool returns the most recent submissions to any exam of a school.
func (r *SubmissionRepository) ListBySchool(ctx context.Context, schoolID string, limit int) ([]model.ExamSubmission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.student_id, s.student_name, s.exam_id, s.exam_title, s.answers,
		        s.score, s.total, s.theory_score, s.created_at
		 FROM exam_submissions s
		 JOIN exams e ON e.id = s.exam_id
		 WHERE e.school_id = $1
		 ORDER BY s.created_at DESC LIMIT $2`, schoolID, limit)
	if err != nil {
		return nil, err
	}
	return collectSubmissions(rows)
}

// CountByExam returns how many students submitted an exam.
func (r *SubmissionRepository) CountByExam(ctx context.Context, examID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_submissions WHERE exam_id = $1`, examID,
	).Scan(&n)
	return n, err
}

// UpdateTheoryScore overwrites the manual theory mark. Nothing else on the row changes.
func (r *SubmissionRepository) UpdateTheoryScore(ctx context.Context, id uuid.UUID, score int) error {
	return mustAffect(r.pool.Exec(ctx,
		`UPDATE exam_submissions SET theory_score = $1 WHERE id = $2`, score, id))
}
