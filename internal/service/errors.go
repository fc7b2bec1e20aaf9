package service

import (
	"errors"
	"sort"
	"strings"
)

// Domain errors.
var (
	ErrExamNotFound       = errors.New("exam not found")
	ErrExamNotApproved    = errors.New("exam is not approved")
	ErrAlreadyAttempted   = errors.New("exam already attempted")
	ErrNotExamAuthor      = errors.New("not the author of this exam")
	ErrWrongSchool        = errors.New("resource belongs to another school")
	ErrInvalidTransition  = errors.New("exam status transition not allowed")
	ErrFeedbackRequired   = errors.New("feedback is required to return an exam for review")
	ErrExamHasSubmissions = errors.New("exam already has submissions")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrNoActiveSession    = errors.New("no exam in progress")
	ErrForbidden          = errors.New("action not allowed for this role")
	ErrUserNotFound       = errors.New("user not found")
)

// ValidationError carries field-level problems with an input document.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
