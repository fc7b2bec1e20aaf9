package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/schoolcbt/internal/model"
	"github.com/stemsi/schoolcbt/internal/repository"
)

func newTestDashboards(exams *memExamStore, subs *memSubmissionStore, stats staticStats, users *memUserStore) *DashboardService {
	examSvc := NewExamService(exams, subs, &recordingEvents{}, nil, 6, testLog)
	subSvc := NewSubmissionService(subs, exams, nil, 0, testLog)
	return NewDashboardService(examSvc, subSvc, stats, users)
}

func TestDashboardDispatch(t *testing.T) {
	svc := newTestDashboards(newMemExamStore(), newMemSubmissionStore(), staticStats{}, &memUserStore{})

	for _, role := range []model.Role{model.RoleStudent, model.RoleTeacher, model.RoleAdmin, model.RoleSuperAdmin} {
		d, err := svc.For(Actor{Role: role})
		require.NoError(t, err)
		assert.Equal(t, role, d.Role())
	}

	_, err := svc.For(Actor{Role: "guest"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestStudentDashboardHidesTakenExams(t *testing.T) {
	exams := newMemExamStore()
	subs := newMemSubmissionStore()
	taken := exams.put(approvedExam("MATH01", "school-a"))
	open := exams.put(approvedExam("ENG001", "school-a"))
	subs.add(model.ExamSubmission{StudentID: studentA.UniqueID, ExamID: taken.ID, Score: 2, TheoryScore: 1})

	svc := newTestDashboards(exams, subs, staticStats{}, &memUserStore{})
	d, err := svc.For(studentA)
	require.NoError(t, err)
	out, err := d.Build(context.Background())
	require.NoError(t, err)

	view := out.(*StudentDashboard)
	require.Len(t, view.AvailableExams, 1)
	assert.Equal(t, open.ID, view.AvailableExams[0].ID)
	require.Len(t, view.Submissions, 1)
	assert.Equal(t, 3, view.Submissions[0].TotalScore)
}

func TestTeacherDashboardGroupsByStatus(t *testing.T) {
	exams := newMemExamStore()
	exams.put(approvedExam("MATH01", "school-a"))
	returned := approvedExam("MATH02", "school-a")
	returned.Status = model.ExamStatusReview
	returned.AdminFeedback = "fix q3"
	exams.put(returned)

	svc := newTestDashboards(exams, newMemSubmissionStore(), staticStats{}, &memUserStore{})
	d, err := svc.For(teacherA)
	require.NoError(t, err)
	out, err := d.Build(context.Background())
	require.NoError(t, err)

	view := out.(*TeacherDashboard)
	assert.Equal(t, 1, view.StatusCounts[model.ExamStatusApproved])
	assert.Equal(t, 1, view.StatusCounts[model.ExamStatusReview])
	assert.Equal(t, 0, view.StatusCounts[model.ExamStatusPending])
	require.Len(t, view.ReturnedExams, 1)
	assert.Equal(t, "fix q3", view.ReturnedExams[0].AdminFeedback)
}

func TestAdminDashboards(t *testing.T) {
	exams := newMemExamStore()
	pending := approvedExam("PEN001", "school-a")
	pending.Status = model.ExamStatusPending
	exams.put(pending)
	users := &memUserStore{users: []model.User{
		{UniqueID: "STU-1", Role: model.RoleStudent, SchoolID: "school-a"},
		{UniqueID: "STU-2", Role: model.RoleStudent, SchoolID: "school-b"},
		{UniqueID: "TCH-1", Role: model.RoleTeacher, SchoolID: "school-a"},
	}}
	stats := staticStats{
		counts:  map[model.ExamStatus]int{model.ExamStatusPending: 1},
		schools: []repository.SchoolExamCount{{SchoolID: "school-a", Exams: 1}},
	}
	svc := newTestDashboards(exams, newMemSubmissionStore(), stats, users)
	ctx := context.Background()

	d, err := svc.For(adminA)
	require.NoError(t, err)
	out, err := d.Build(ctx)
	require.NoError(t, err)
	admin := out.(*AdminDashboard)
	assert.Len(t, admin.AwaitingApproval, 1)
	assert.Equal(t, 1, admin.UserCounts[model.RoleStudent])
	assert.Equal(t, 1, admin.StatusCounts[model.ExamStatusPending])

	d, err = svc.For(Actor{Role: model.RoleSuperAdmin})
	require.NoError(t, err)
	out, err = d.Build(ctx)
	require.NoError(t, err)
	super := out.(*SuperAdminDashboard)
	assert.Equal(t, 2, super.UserCounts[model.RoleStudent])
	assert.Len(t, super.Schools, 1)
}
