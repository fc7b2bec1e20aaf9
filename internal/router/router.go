package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stemsi/schoolcbt/internal/config"
	"github.com/stemsi/schoolcbt/internal/handler"
	"github.com/stemsi/schoolcbt/internal/middleware"
	"github.com/stemsi/schoolcbt/internal/model"
	"github.com/stemsi/schoolcbt/internal/response"
	"github.com/stemsi/schoolcbt/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	Exam          *handler.ExamHandler
	StudentPortal *handler.StudentPortalHandler
	Submission    *handler.SubmissionHandler
	Dashboard     *handler.DashboardHandler
	Monitor       *handler.MonitorHandler
	Notification  *handler.NotificationHandler
	WS            *handler.WSHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// The returned stop func releases the rate limiters and must be called on shutdown.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) (*gin.Engine, func()) {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())

	router.GET("/health", handlers.System.Health)

	requireAuth := middleware.RequireAuth(authService)

	// 30 requests per minute per IP.
	authLimiter := middleware.NewRateLimiter(30, time.Minute, middleware.ByClientIP)
	// 240 requests per minute per student; answers arrive at typing pace.
	studentLimiter := middleware.NewRateLimiter(240, time.Minute, middleware.ByUser)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.Login)
		auth.POST("/student/login", handlers.Auth.StudentLogin)

		auth.POST("/student/logout", requireAuth, middleware.RequireStudent(), handlers.Auth.StudentLogout)
		auth.GET("/me", requireAuth, handlers.Auth.Me)
	}

	// ─── 2. Shared Authenticated Routes ────────────────────────────────
	shared := router.Group("/api/v1")
	shared.Use(requireAuth, middleware.CheckSingleDeviceSession(authService))
	{
		shared.GET("/dashboard", handlers.Dashboard.GetDashboard)
		shared.GET("/notifications", handlers.Notification.ListNotifications)
		shared.GET("/notifications/stream", handlers.Notification.StreamNotifications)
	}

	// ─── 3. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		requireAuth,
		middleware.RequireStudent(),
		middleware.CheckSingleDeviceSession(authService),
		studentLimiter.Middleware(),
	)
	{
		studentAPI.GET("/exams", handlers.StudentPortal.ListExams)
		studentAPI.POST("/exams/start", handlers.StudentPortal.StartExam)
		studentAPI.GET("/session", handlers.StudentPortal.GetSession)
		studentAPI.PUT("/session/answers", handlers.StudentPortal.SetAnswer)
		studentAPI.POST("/session/submit", handlers.StudentPortal.Submit)
		studentAPI.GET("/submissions", handlers.StudentPortal.ListSubmissions)
	}

	// ─── 4. WebSocket Group (token via query) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		requireAuth,
		middleware.RequireStudent(),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		ws.GET("/student/session/stream", handlers.WS.SessionStream)
	}

	// ─── 5. Teacher Group (JWT + RBAC) ─────────────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(requireAuth, middleware.RequireRole(model.RoleTeacher))
	{
		teacherAPI.GET("/exams",
			middleware.RequirePermission(model.PermissionExamsRead),
			handlers.Exam.ListExams,
		)
		teacherAPI.POST("/exams",
			middleware.RequirePermission(model.PermissionExamsWriteOwn),
			handlers.Exam.CreateExam,
		)
		teacherAPI.GET("/exams/:id",
			middleware.RequirePermission(model.PermissionExamsRead),
			handlers.Exam.GetExam,
		)
		teacherAPI.PUT("/exams/:id",
			middleware.RequirePermission(model.PermissionExamsWriteOwn),
			handlers.Exam.UpdateExam,
		)
		teacherAPI.DELETE("/exams/:id",
			middleware.RequirePermission(model.PermissionExamsWriteOwn),
			handlers.Exam.DeleteExam,
		)
		teacherAPI.GET("/exams/:id/submissions",
			middleware.RequirePermission(model.PermissionSubmissionsRead),
			handlers.Submission.ListExamSubmissions,
		)
		teacherAPI.GET("/exams/:id/report",
			middleware.RequirePermission(model.PermissionSubmissionsRead),
			handlers.Submission.ExamReport,
		)
		teacherAPI.PUT("/submissions/:id/theory-score",
			middleware.RequirePermission(model.PermissionSubmissionsGrade),
			handlers.Submission.SetTheoryScore,
		)
	}

	// ─── 6. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(requireAuth, middleware.RequireRole(model.RoleAdmin, model.RoleSuperAdmin))
	{
		adminAPI.GET("/exams",
			middleware.RequirePermission(model.PermissionExamsRead),
			handlers.Exam.ListExams,
		)
		// Registered before /exams/:id so the static segment wins.
		adminAPI.GET("/exams/feed",
			middleware.RequirePermission(model.PermissionExamsRead),
			handlers.Monitor.ExamFeedSSE,
		)
		adminAPI.GET("/exams/:id",
			middleware.RequirePermission(model.PermissionExamsRead),
			handlers.Exam.GetExam,
		)
		adminAPI.POST("/exams/:id/approve",
			middleware.RequirePermission(model.PermissionExamsApprove),
			handlers.Exam.ApproveExam,
		)
		adminAPI.POST("/exams/:id/return",
			middleware.RequirePermission(model.PermissionExamsApprove),
			handlers.Exam.ReturnExam,
		)
		adminAPI.GET("/exams/:id/submissions",
			middleware.RequirePermission(model.PermissionSubmissionsRead),
			handlers.Submission.ListExamSubmissions,
		)
		adminAPI.GET("/exams/:id/report",
			middleware.RequirePermission(model.PermissionSubmissionsRead),
			handlers.Submission.ExamReport,
		)
		adminAPI.PUT("/submissions/:id/theory-score",
			middleware.RequirePermission(model.PermissionSubmissionsGrade),
			handlers.Submission.SetTheoryScore,
		)
		adminAPI.POST("/students/:unique_id/reset-session",
			middleware.RequirePermission(model.PermissionStudentsResetSession),
			handlers.Auth.ResetStudentSession,
		)
	}

	// ─── 7. System (Super Admin) ───────────────────────────────────────
	systemAPI := router.Group("/api/v1/system")
	systemAPI.Use(requireAuth, middleware.RequireRole(model.RoleSuperAdmin))
	{
		systemAPI.GET("/stats", handlers.System.Stats)
	}

	return router, func() {
		authLimiter.Stop()
		studentLimiter.Stop()
	}
}
