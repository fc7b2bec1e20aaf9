package service

import (
	"context"
	"fmt"

	"github.com/stemsi/schoolcbt/internal/model"
	"github.com/stemsi/schoolcbt/internal/repository"
)

const dashboardRecentLimit = 10

// Dashboard is the role-specific landing view. One implementation exists per role;
// DashboardService.For picks it once from the caller's identity.
type Dashboard interface {
	Role() model.Role
	Build(ctx context.Context) (any, error)
}

// StudentDashboard lists the exams a student can sit and their history.
type StudentDashboard struct {
	AvailableExams []model.ExamSummary    `json:"available_exams"`
	Submissions    []model.SubmissionView `json:"submissions"`
}

// TeacherDashboard groups a teacher's exams by approval status.
type TeacherDashboard struct {
	StatusCounts  map[model.ExamStatus]int `json:"status_counts"`
	ReturnedExams []model.ExamSummary      `json:"returned_exams"`
	Exams         []model.ExamSummary      `json:"exams"`
}

// AdminDashboard shows a school's approval queue and recent activity.
type AdminDashboard struct {
	StatusCounts      map[model.ExamStatus]int `json:"status_counts"`
	UserCounts        map[model.Role]int       `json:"user_counts"`
	AwaitingApproval  []model.ExamSummary      `json:"awaiting_approval"`
	RecentSubmissions []model.SubmissionView   `json:"recent_submissions"`
}

// SuperAdminDashboard summarises every school.
type SuperAdminDashboard struct {
	StatusCounts map[model.ExamStatus]int     `json:"status_counts"`
	UserCounts   map[model.Role]int           `json:"user_counts"`
	Schools      []repository.SchoolExamCount `json:"schools"`
}

// DashboardService builds role dashboards from the exam and submission services.
type DashboardService struct {
	exams       *ExamService
	submissions *SubmissionService
	stats       ExamStatsStore
	users       UserStore
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(exams *ExamService, submissions *SubmissionService, stats ExamStatsStore, users UserStore) *DashboardService {
	return &DashboardService{exams: exams, submissions: submissions, stats: stats, users: users}
}

// For resolves the dashboard of actor's role.
func (s *DashboardService) For(actor Actor) (Dashboard, error) {
	switch actor.Role {
	case model.RoleStudent:
		return &studentDashboard{svc: s, actor: actor}, nil
	case model.RoleTeacher:
		return &teacherDashboard{svc: s, actor: actor}, nil
	case model.RoleAdmin:
		return &adminDashboard{svc: s, actor: actor}, nil
	case model.RoleSuperAdmin:
		return &superAdminDashboard{svc: s, actor: actor}, nil
	}
	return nil, ErrForbidden
}

type studentDashboard struct {
	svc   *DashboardService
	actor Actor
}

func (d *studentDashboard) Role() model.Role { return model.RoleStudent }

func (d *studentDashboard) Build(ctx context.Context) (any, error) {
	exams, err := d.svc.exams.List(ctx, d.actor, model.ExamStatusApproved)
	if err != nil {
		return nil, err
	}
	subs, err := d.svc.submissions.ListForStudent(ctx, d.actor.UniqueID, DefaultListLimit)
	if err != nil {
		return nil, err
	}

	// Exams already taken are shown in the history, not as available.
	taken := make(map[string]bool, len(subs))
	for _, s := range subs {
		taken[s.ExamID.String()] = true
	}
	available := make([]model.ExamSummary, 0, len(exams))
	for _, e := range exams {
		if !taken[e.ID.String()] {
			available = append(available, e)
		}
	}
	return &StudentDashboard{AvailableExams: available, Submissions: subs}, nil
}

type teacherDashboard struct {
	svc   *DashboardService
	actor Actor
}

func (d *teacherDashboard) Role() model.Role { return model.RoleTeacher }

func (d *teacherDashboard) Build(ctx context.Context) (any, error) {
	exams, err := d.svc.exams.List(ctx, d.actor, "")
	if err != nil {
		return nil, err
	}
	out := &TeacherDashboard{
		StatusCounts: map[model.ExamStatus]int{
			model.ExamStatusPending:  0,
			model.ExamStatusApproved: 0,
			model.ExamStatusReview:   0,
		},
		ReturnedExams: []model.ExamSummary{},
		Exams:         exams,
	}
	for _, e := range exams {
		out.StatusCounts[e.Status]++
		if e.Status == model.ExamStatusReview {
			out.ReturnedExams = append(out.ReturnedExams, e)
		}
	}
	return out, nil
}

type adminDashboard struct {
	svc   *DashboardService
	actor Actor
}

func (d *adminDashboard) Role() model.Role { return model.RoleAdmin }

func (d *adminDashboard) Build(ctx context.Context) (any, error) {
	counts, err := d.svc.stats.StatusCounts(ctx, d.actor.SchoolID)
	if err != nil {
		return nil, fmt.Errorf("exam status counts: %w", err)
	}
	users, err := d.svc.users.CountByRole(ctx, d.actor.SchoolID)
	if err != nil {
		return nil, fmt.Errorf("user counts: %w", err)
	}
	pending, err := d.svc.exams.List(ctx, d.actor, model.ExamStatusPending)
	if err != nil {
		return nil, err
	}
	recent, err := d.svc.submissions.ListForSchool(ctx, d.actor.SchoolID, dashboardRecentLimit)
	if err != nil {
		return nil, err
	}
	return &AdminDashboard{
		StatusCounts:      counts,
		UserCounts:        users,
		AwaitingApproval:  pending,
		RecentSubmissions: recent,
	}, nil
}

type superAdminDashboard struct {
	svc   *DashboardService
	actor Actor
}

func (d *superAdminDashboard) Role() model.Role { return model.RoleSuperAdmin }

func (d *superAdminDashboard) Build(ctx context.Context) (any, error) {
	counts, err := d.svc.stats.StatusCounts(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("exam status counts: %w", err)
	}
	users, err := d.svc.users.CountByRole(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("user counts: %w", err)
	}
	schools, err := d.svc.stats.CountsBySchool(ctx)
	if err != nil {
		return nil, fmt.Errorf("school counts: %w", err)
	}
	return &SuperAdminDashboard{StatusCounts: counts, UserCounts: users, Schools: schools}, nil
}
