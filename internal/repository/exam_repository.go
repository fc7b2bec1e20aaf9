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

// ExamRepository stores exams as documents: questions and section config live in
// JSONB columns next to the metadata.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, title, subject, class_level, term, session, instructions,
	duration_minutes, questions, config, code, creator_id, creator_name, school_id,
	status, admin_feedback, created_at, updated_at`

func scanExam(row pgx.Row) (*model.Exam, error) {
	e := &model.Exam{}
	err := row.Scan(&e.ID, &e.Title, &e.Subject, &e.ClassLevel, &e.Term, &e.Session,
		&e.Instructions, &e.DurationMinutes, &e.Questions, &e.Config, &e.Code,
		&e.CreatorID, &e.CreatorName, &e.SchoolID, &e.Status, &e.AdminFeedback,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if e.Questions == nil {
		e.Questions = []model.Question{}
	}
	return e, nil
}

func collectExams(rows pgx.Rows) ([]model.Exam, error) {
	defer rows.Close()
	exams := []model.Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

func marshalDocument(e *model.Exam) (questions, cfg []byte, err error) {
	qs := e.Questions
	if qs == nil {
		qs = []model.Question{}
	}
	if questions, err = json.Marshal(qs); err != nil {
		return nil, nil, fmt.Errorf("marshal questions: %w", err)
	}
	c := e.Config
	if c == nil {
		c = map[model.QuestionType]string{}
	}
	if cfg, err = json.Marshal(c); err != nil {
		return nil, nil, fmt.Errorf("marshal config: %w", err)
	}
	return questions, cfg, nil
}

// Create inserts a new exam. A duplicate code yields ErrConflict.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	questions, cfg, err := marshalDocument(e)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, subject, class_level, term, session, instructions,
		        duration_minutes, questions, config, code, creator_id, creator_name,
		        school_id, status, admin_feedback)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.Subject, e.ClassLevel, e.Term, e.Session, e.Instructions,
		e.DurationMinutes, questions, cfg, e.Code, e.CreatorID, e.CreatorName,
		e.SchoolID, e.Status, e.AdminFeedback,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	return mapErr(err)
}

// Update overwrites the authored content and status of an exam. Code, ownership
// and admin feedback are left untouched.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	questions, cfg, err := marshalDocument(e)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx,
		`UPDATE exams
		 SET title = $1, subject = $2, class_level = $3, term = $4, session = $5,
		     instructions = $6, duration_minutes = $7, questions = $8, config = $9,
		     status = $10, updated_at = NOW()
		 WHERE id = $11
		 RETURNING updated_at`,
		e.Title, e.Subject, e.ClassLevel, e.Term, e.Session, e.Instructions,
		e.DurationMinutes, questions, cfg, e.Status, e.ID,
	).Scan(&e.UpdatedAt)
	return mapErr(err)
}

// UpdateStatus sets the approval status. A nil feedback keeps the stored text.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus, feedback *string) error {
	return mustAffect(r.pool.Exec(ctx,
		`UPDATE exams
		 SET status = $1, admin_feedback = COALESCE($2, admin_feedback), updated_at = NOW()
		 WHERE id = $3`,
		status, feedback, id))
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id))
}

// FindByCode looks up an exam by its entry code inside one school. Codes are
// stored uppercase.
func (r *ExamRepository) FindByCode(ctx context.Context, code, schoolID string) (*model.Exam, error) {
	return scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE code = UPPER($1) AND school_id = $2`,
		code, schoolID))
}

// CodeExists reports whether any exam already uses code.
func (r *ExamRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exams WHERE code = $1)`, code,
	).Scan(&exists)
	return exists, err
}

// ListBySchool returns a school's exams, optionally filtered by status.
func (r *ExamRepository) ListBySchool(ctx context.Context, schoolID string, status model.ExamStatus) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE school_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY updated_at DESC`,
		schoolID, string(status))
	if err != nil {
		return nil, err
	}
	return collectExams(rows)
}

// ListAll returns every school's exams, optionally filtered by status.
func (r *ExamRepository) ListAll(ctx context.Context, status model.ExamStatus) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE ($1 = '' OR status = $1)
		 ORDER BY updated_at DESC`,
		string(status))
	if err != nil {
		return nil, err
	}
	return collectExams(rows)
}

// ListByCreator returns the exams authored by one teacher.
func (r *ExamRepository) ListByCreator(ctx context.Context, creatorID string) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams WHERE creator_id = $1 ORDER BY updated_at DESC`,
		creatorID)
	if err != nil {
		return nil, err
	}
	return collectExams(rows)
}

// Delete removes an exam. Exams with submissions are protected by a foreign key,
// reported as ErrConflict.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrConflict
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// StatusCounts returns the number of exams per status. An empty schoolID counts
// every school.
func (r *ExamRepository) StatusCounts(ctx context.Context, schoolID string) (map[model.ExamStatus]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM exams
		 WHERE ($1 = '' OR school_id = $1)
		 GROUP BY status`, schoolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[model.ExamStatus]int{
		model.ExamStatusPending:  0,
		model.ExamStatusApproved: 0,
		model.ExamStatusReview:   0,
	}
	for rows.Next() {
		var status model.ExamStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// SchoolExamCount is one row of the cross-school overview.
type SchoolExamCount struct {
	SchoolID string `json:"school_id"`
	Exams    int    `json:"exams"`
	Approved int    `json:"approved"`
}

// CountsBySchool summarises exams per school.
func (r *ExamRepository) CountsBySchool(ctx context.Context) ([]SchoolExamCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT school_id, COUNT(*), COUNT(*) FILTER (WHERE status = 'approved')
		 FROM exams GROUP BY school_id ORDER BY school_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []SchoolExamCount{}
	for rows.Next() {
		var c SchoolExamCount
		if err := rows.Scan(&c.SchoolID, &c.Exams, &c.Approved); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
