package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/schoolcbt/internal/model"
)

type submissionFixture struct {
	svc      *SubmissionService
	exams    *memExamStore
	subs     *memSubmissionStore
	notifier *recordingNotifier
	exam     *model.Exam
}

func newSubmissionFixture() *submissionFixture {
	f := &submissionFixture{
		exams:    newMemExamStore(),
		subs:     newMemSubmissionStore(),
		notifier: &recordingNotifier{},
	}
	f.svc = NewSubmissionService(f.subs, f.exams, f.notifier, 0, testLog)
	f.exam = f.exams.put(approvedExam("MATH01", "school-a"))
	return f
}

func at(minute int) time.Time {
	return time.Date(2026, 3, 2, 9, minute, 0, 0, time.UTC)
}

func TestSetTheoryScoreOverlaysOnly(t *testing.T) {
	f := newSubmissionFixture()
	sub := f.subs.add(model.ExamSubmission{
		StudentID: studentA.UniqueID,
		ExamID:    f.exam.ID,
		Answers:   map[string]string{"q1": "A", "q2": "C"},
		Score:     1,
		Total:     3,
	})

	view, err := f.svc.SetTheoryScore(context.Background(), teacherA, sub.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, view.TheoryScore)
	assert.Equal(t, 5, view.TotalScore)
	assert.Equal(t, 1, view.Score)
	assert.Equal(t, 3, view.Total)

	// Overwrite, not accumulate. Scores above the theory max are accepted.
	view, err = f.svc.SetTheoryScore(context.Background(), teacherA, sub.ID, 12)
	require.NoError(t, err)
	assert.Equal(t, 13, view.TotalScore)

	stored, err := f.subs.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, stored.TheoryScore)
	assert.Equal(t, 1, stored.Score)
	assert.Equal(t, map[string]string{"q1": "A", "q2": "C"}, stored.Answers)
	assert.Equal(t, model.NotificationSuccess, f.notifier.last().Level)
}

func TestSetTheoryScoreAccess(t *testing.T) {
	f := newSubmissionFixture()
	sub := f.subs.add(model.ExamSubmission{StudentID: studentA.UniqueID, ExamID: f.exam.ID})
	ctx := context.Background()

	_, err := f.svc.SetTheoryScore(ctx, studentA, sub.ID, 3)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.SetTheoryScore(ctx, adminB, sub.ID, 3)
	assert.ErrorIs(t, err, ErrWrongSchool)

	_, err = f.svc.SetTheoryScore(ctx, teacherA, uuid.New(), 3)
	assert.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestListForStudentNewestFirst(t *testing.T) {
	f := newSubmissionFixture()
	f.subs.add(model.ExamSubmission{StudentID: studentA.UniqueID, ExamID: uuid.New(), Timestamp: at(5), Score: 1})
	f.subs.add(model.ExamSubmission{StudentID: studentA.UniqueID, ExamID: uuid.New(), Timestamp: at(30), Score: 2, TheoryScore: 3})
	f.subs.add(model.ExamSubmission{StudentID: studentA.UniqueID, ExamID: uuid.New(), Timestamp: at(15), Score: 3})
	f.subs.add(model.ExamSubmission{StudentID: studentB.UniqueID, ExamID: uuid.New(), Timestamp: at(40)})

	views, err := f.svc.ListForStudent(context.Background(), studentA.UniqueID, 0)
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, at(30), views[0].Timestamp)
	assert.Equal(t, at(15), views[1].Timestamp)
	assert.Equal(t, at(5), views[2].Timestamp)
	assert.Equal(t, 5, views[0].TotalScore)
}

func TestListForExamStaffOnly(t *testing.T) {
	f := newSubmissionFixture()
	f.subs.add(model.ExamSubmission{StudentID: studentA.UniqueID, ExamID: f.exam.ID})

	_, err := f.svc.ListForExam(context.Background(), studentA, f.exam.ID, 10)
	assert.ErrorIs(t, err, ErrForbidden)

	views, err := f.svc.ListForExam(context.Background(), adminA, f.exam.ID, 10)
	require.NoError(t, err)
	assert.Len(t, views, 1)

	_, err = f.svc.ListForExam(context.Background(), adminA, uuid.New(), 10)
	assert.ErrorIs(t, err, ErrExamNotFound)
}

func TestReport(t *testing.T) {
	f := newSubmissionFixture()

	empty, err := f.svc.Report(context.Background(), adminA, f.exam.ID)
	require.NoError(t, err)
	assert.Zero(t, empty.Submissions)
	assert.Equal(t, 3, empty.ObjectiveTotal)

	f.subs.add(model.ExamSubmission{StudentID: "STU-1", ExamID: f.exam.ID, Score: 3, Total: 3, TheoryScore: 4})
	f.subs.add(model.ExamSubmission{StudentID: "STU-2", ExamID: f.exam.ID, Score: 1, Total: 3})
	f.subs.add(model.ExamSubmission{StudentID: "STU-3", ExamID: f.exam.ID, Score: 0, Total: 3, TheoryScore: 2})

	r, err := f.svc.Report(context.Background(), teacherA, f.exam.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Submissions)
	assert.Equal(t, 1.33, r.AverageScore)
	assert.Equal(t, 3.33, r.AverageTotal)
	assert.Equal(t, 7, r.Highest)
	assert.Equal(t, 1, r.Lowest)
}

func TestClampLimit(t *testing.T) {
	svc := NewSubmissionService(nil, nil, nil, 500, testLog)
	assert.Equal(t, DefaultListLimit, svc.clampLimit(0))
	assert.Equal(t, 50, svc.clampLimit(50))
	assert.Equal(t, 500, svc.clampLimit(10_000))
}
