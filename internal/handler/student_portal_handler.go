package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/schoolcbt/internal/middleware"
	"github.com/stemsi/schoolcbt/internal/model"
	"github.com/stemsi/schoolcbt/internal/response"
	"github.com/stemsi/schoolcbt/internal/service"
	"github.com/stemsi/schoolcbt/internal/session"
	"github.com/stemsi/schoolcbt/internal/validator"
)

// StudentPortalHandler handles student-facing endpoints (exam list, attempts, history).
type StudentPortalHandler struct {
	sessionService    *service.ExamSessionService
	examService       *service.ExamService
	submissionService *service.SubmissionService
	log               zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	sessionService *service.ExamSessionService,
	examService *service.ExamService,
	submissionService *service.SubmissionService,
	log zerolog.Logger,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		sessionService:    sessionService,
		examService:       examService,
		submissionService: submissionService,
		log:               log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// attemptBody is the paper plus the attempt state.
func attemptBody(eng *session.Engine) gin.H {
	return gin.H{
		"paper":   eng.Exam().Paper(),
		"session": eng.Snapshot(),
	}
}

// ListExams godoc
// GET /api/v1/student/exams
// Returns the approved exams of the student's school, without entry codes.
func (h *StudentPortalHandler) ListExams(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	exams, err := h.examService.List(c.Request.Context(), claims.Actor(), model.ExamStatusApproved)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.SuccessList(c, http.StatusOK, gin.H{"exams": exams}, len(exams))
}

// StartExam godoc
// POST /api/v1/student/exams/start
// Resolves the typed code and opens (or rejoins) the attempt.
func (h *StudentPortalHandler) StartExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.StartExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	eng, err := h.sessionService.Start(c.Request.Context(), claims.Actor(), req.Code)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, attemptBody(eng))
}

// GetSession godoc
// GET /api/v1/student/session
// Returns the open attempt with live remaining seconds.
func (h *StudentPortalHandler) GetSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	eng, err := h.sessionService.Current(claims.Actor())
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, attemptBody(eng))
}

// SetAnswer godoc
// PUT /api/v1/student/session/answers
// Records one answer, replacing any earlier answer to the same question.
func (h *StudentPortalHandler) SetAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SetAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.sessionService.SetAnswer(claims.Actor(), req.QuestionID, req.Answer); err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_id": req.QuestionID, "status": "saved"})
}

// Submit godoc
// POST /api/v1/student/session/submit
// Grades and persists the attempt. After a PERSISTENCE_ERROR the same call may be retried.
func (h *StudentPortalHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sub, err := h.sessionService.Submit(c.Request.Context(), claims.Actor())
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submission": sub.View()})
}

// ListSubmissions godoc
// GET /api/v1/student/submissions?limit=
// Returns the student's own history, most recent first.
func (h *StudentPortalHandler) ListSubmissions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	subs, err := h.submissionService.ListForStudent(c.Request.Context(), claims.UniqueID, limit)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.SuccessList(c, http.StatusOK, gin.H{"submissions": subs}, len(subs))
}
