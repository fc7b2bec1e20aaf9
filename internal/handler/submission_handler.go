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
	"github.com/stemsi/schoolcbt/internal/validator"
)

// SubmissionHandler serves results to staff: per-exam lists, reports and theory marks.
type SubmissionHandler struct {
	submissionService *service.SubmissionService
	log               zerolog.Logger
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(submissionService *service.SubmissionService, log zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		submissionService: submissionService,
		log:               log.With().Str("component", "submission_handler").Logger(),
	}
}

// ListExamSubmissions godoc
// GET /api/v1/teacher/exams/:id/submissions?limit=
func (h *SubmissionHandler) ListExamSubmissions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := parseID(c, "id")
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	subs, err := h.submissionService.ListForExam(c.Request.Context(), claims.Actor(), examID, limit)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.SuccessList(c, http.StatusOK, gin.H{"submissions": subs}, len(subs))
}

// ExamReport godoc
// GET /api/v1/teacher/exams/:id/report
// Returns count, averages, highest and lowest total for an exam.
func (h *SubmissionHandler) ExamReport(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := parseID(c, "id")
	if !ok {
		return
	}

	report, err := h.submissionService.Report(c.Request.Context(), claims.Actor(), examID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"report": report})
}

// SetTheoryScore godoc
// PUT /api/v1/teacher/submissions/:id/theory-score
// Overwrites the manual theory mark. The objective score is never touched.
func (h *SubmissionHandler) SetTheoryScore(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req model.SetTheoryScoreRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.submissionService.SetTheoryScore(c.Request.Context(), claims.Actor(), id, *req.Score)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submission": view})
}
