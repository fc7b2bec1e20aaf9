package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/schoolcbt/internal/middleware"
	"github.com/stemsi/schoolcbt/internal/model"
	"github.com/stemsi/schoolcbt/internal/response"
	"github.com/stemsi/schoolcbt/internal/service"
	"github.com/stemsi/schoolcbt/internal/validator"
)

// ExamHandler handles exam authoring and approval endpoints.
type ExamHandler struct {
	examService *service.ExamService
	log         zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		examService: examService,
		log:         log.With().Str("component", "exam_handler").Logger(),
	}
}

// ListExams godoc
// GET /api/v1/teacher/exams, GET /api/v1/admin/exams?status=
// Teachers see their own exams, admins their school's, super admins every school's.
func (h *ExamHandler) ListExams(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var q model.ListExamsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exams, err := h.examService.List(c.Request.Context(), claims.Actor(), q.Status)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.SuccessList(c, http.StatusOK, gin.H{"exams": exams}, len(exams))
}

// CreateExam godoc
// POST /api/v1/teacher/exams
// Creates an exam pending approval with a generated entry code.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.ExamInput
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Create(c.Request.Context(), claims.Actor(), &req)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// GetExam godoc
// GET /api/v1/teacher/exams/:id, GET /api/v1/admin/exams/:id
// Returns the full exam including the answer key.
func (h *ExamHandler) GetExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	exam, err := h.examService.Get(c.Request.Context(), claims.Actor(), id)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// UpdateExam godoc
// PUT /api/v1/teacher/exams/:id
// Replaces the exam content. The exam goes back to pending approval.
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req model.ExamInput
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Update(c.Request.Context(), claims.Actor(), id, &req)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// DeleteExam godoc
// DELETE /api/v1/teacher/exams/:id
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.examService.Delete(c.Request.Context(), claims.Actor(), id); err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"id": id})
}

// ApproveExam godoc
// POST /api/v1/admin/exams/:id/approve
func (h *ExamHandler) ApproveExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	exam, err := h.examService.Approve(c.Request.Context(), claims.Actor(), id)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// ReturnExam godoc
// POST /api/v1/admin/exams/:id/return
// Sends the exam back to its author. Feedback is mandatory.
func (h *ExamHandler) ReturnExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req model.ReturnExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.ReturnForReview(c.Request.Context(), claims.Actor(), id, req.Feedback)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}
