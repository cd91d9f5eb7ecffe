package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"navisol/internal/blob"
	"navisol/pkg/domain"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind       string   `json:"kind"`
	Message    string   `json:"message"`
	Op         string   `json:"op,omitempty"`
	Field      string   `json:"field,omitempty"`
	Step       string   `json:"step,omitempty"`
	Violations []string `json:"violations,omitempty"`
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConcurrencyConflict:
		return http.StatusPreconditionFailed
	case domain.KindLocked:
		return http.StatusLocked
	case domain.KindInvalidTransition, domain.KindInvalidState, domain.KindAmendmentChain:
		return http.StatusConflict
	case domain.KindIncompleteMilestonePrecondition, domain.KindUnapprovedLibraryVersion, domain.KindMissingLibraryVersion:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// fail writes err as a JSON error response.
func (h *Handler) fail(c *gin.Context, err error) {
	detail := errorDetail{Message: err.Error()}
	status := http.StatusInternalServerError

	var de *domain.Error
	var wf *domain.WorkflowError
	var rv domain.RuleViolationError
	switch {
	case errors.As(err, &rv):
		status = http.StatusConflict
		detail.Kind = "RuleViolation"
		for _, v := range rv.Result.Violations {
			detail.Violations = append(detail.Violations, v.Rule+": "+v.Message)
		}
	case errors.Is(err, blob.ErrNotFound):
		status = http.StatusNotFound
		detail.Kind = string(domain.KindNotFound)
	case errors.Is(err, blob.ErrInvalidKey):
		status = http.StatusBadRequest
		detail.Kind = string(domain.KindValidation)
	default:
		kind := domain.KindOf(err)
		status = statusFor(kind)
		detail.Kind = string(kind)
	}
	if errors.As(err, &wf) {
		detail.Step = wf.Step
	}
	if errors.As(err, &de) {
		detail.Op = de.Op
		detail.Field = de.Field
	}
	if detail.Kind == "" {
		detail.Kind = "Internal"
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, errorBody{Error: detail})
}
