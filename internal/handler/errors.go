package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/schoolcbt/internal/response"
	"github.com/stemsi/schoolcbt/internal/service"
	"github.com/stemsi/schoolcbt/internal/session"
)

// errorMapping pairs a domain error with its API code and HTTP status.
type errorMapping struct {
	err    error
	status int
	code   response.ErrCode
}

// Order matters: more specific errors come before the ones they wrap.
var errorMappings = []errorMapping{
	{service.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound},
	{service.ErrSubmissionNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrUserNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrNoActiveSession, http.StatusNotFound, response.ErrNoActiveSession},
	{service.ErrExamNotApproved, http.StatusConflict, response.ErrExamNotApproved},
	{service.ErrAlreadyAttempted, http.StatusConflict, response.ErrAlreadyAttempted},
	{session.ErrDuplicateSubmission, http.StatusConflict, response.ErrAlreadyAttempted},
	{service.ErrExamHasSubmissions, http.StatusConflict, response.ErrDependencyExists},
	{service.ErrInvalidTransition, http.StatusConflict, response.ErrInvalidTransition},
	{service.ErrNotExamAuthor, http.StatusForbidden, response.ErrNotExamAuthor},
	{service.ErrWrongSchool, http.StatusForbidden, response.ErrWrongSchool},
	{service.ErrForbidden, http.StatusForbidden, response.ErrForbidden},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, response.ErrInvalidCredentials},
	{service.ErrSessionInvalidated, http.StatusUnauthorized, response.ErrSessionInvalidated},
	{service.ErrSessionAlreadyActive, http.StatusConflict, response.ErrSessionActive},
	{session.ErrUnknownQuestion, http.StatusBadRequest, response.ErrUnknownQuestion},
	{session.ErrInvalidState, http.StatusConflict, response.ErrInvalidSessionState},
}

// classify maps err onto an API error code and HTTP status.
func classify(err error) (int, response.ErrCode) {
	var perr *session.PersistenceError
	if errors.As(err, &perr) {
		return http.StatusServiceUnavailable, response.ErrPersistence
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// failFromError writes the error envelope for err. Unmapped errors are logged and
// reported as internal.
func failFromError(c *gin.Context, log zerolog.Logger, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrValidation, verr.Fields)
		return
	}
	if errors.Is(err, service.ErrFeedbackRequired) {
		response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrFeedbackRequired,
			map[string]string{"feedback": err.Error()})
		return
	}

	status, code := classify(err)
	if code == response.ErrInternal || code == response.ErrPersistence {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	response.Fail(c, status, code)
}

// parseID reads a UUID path parameter, writing the error response when invalid.
func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
