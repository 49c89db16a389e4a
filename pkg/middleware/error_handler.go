package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/usama216/shipping-market-sub004/pkg/errors"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
)

// APIErrorResponse represents a standardized error response
type APIErrorResponse struct {
	Code      string              `json:"code"`
	Message   string              `json:"message"`
	Details   map[string]string   `json:"details,omitempty"`
	Errors    []errors.FieldError `json:"errors,omitempty"`
	RequestID string              `json:"requestId,omitempty"`
	// CorrelationID lets callers find the failure in their own logs.
	CorrelationID string `json:"correlationId,omitempty"`
	Timestamp     string `json:"timestamp"`
	Path          string `json:"path"`
}

func newAPIErrorResponse(c *gin.Context, appErr *errors.AppError) APIErrorResponse {
	return APIErrorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Details:   appErr.Details,
		Errors:    appErr.Errors,
		RequestID:     GetRequestID(c),
		CorrelationID: GetCorrelationID(c),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Path:          c.Request.URL.Path,
	}
}

// ErrorHandler renders errors attached with c.Error
func ErrorHandler(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		appErr := errors.FromError(c.Errors.Last().Err)
		logError(logger, c, appErr)
		c.JSON(appErr.HTTPStatus, newAPIErrorResponse(c, appErr))
	}
}

// ErrorMapper translates a service error into the HTTP error model.
type ErrorMapper func(error) *errors.AppError

// ErrorResponder provides helper methods for sending error responses
type ErrorResponder struct {
	ctx    *gin.Context
	logger *logging.Logger
	mapper ErrorMapper
}

// NewErrorResponder creates a new ErrorResponder. Errors passed to
// RespondWithError go through errors.FromError unless a mapper is set.
func NewErrorResponder(ctx *gin.Context, logger *logging.Logger) *ErrorResponder {
	return &ErrorResponder{ctx: ctx, logger: logger, mapper: errors.FromError}
}

// WithErrorMapper replaces the mapper used by RespondWithError
func (r *ErrorResponder) WithErrorMapper(mapper ErrorMapper) *ErrorResponder {
	if mapper != nil {
		r.mapper = mapper
	}
	return r
}

// RespondWithError maps err and sends the error response
func (r *ErrorResponder) RespondWithError(err error) {
	r.RespondWithAppError(r.mapper(err))
}

// RespondWithAppError sends an AppError response
func (r *ErrorResponder) RespondWithAppError(appErr *errors.AppError) {
	logError(r.logger, r.ctx, appErr)
	r.ctx.JSON(appErr.HTTPStatus, newAPIErrorResponse(r.ctx, appErr))
}

// RespondWithAppErrorAndBody sends an error status with a custom body, used
// when partial results accompany the error.
func (r *ErrorResponder) RespondWithAppErrorAndBody(appErr *errors.AppError, body any) {
	logError(r.logger, r.ctx, appErr)
	r.ctx.JSON(appErr.HTTPStatus, body)
}

// RespondNotFound sends a 404 response
func (r *ErrorResponder) RespondNotFound(resource string) {
	r.RespondWithAppError(errors.ErrNotFound(resource))
}

func logError(logger *logging.Logger, c *gin.Context, appErr *errors.AppError) {
	level := slog.LevelError
	if appErr.HTTPStatus < http.StatusInternalServerError {
		level = slog.LevelWarn
	}

	attrs := []any{
		"code", appErr.Code,
		"message", appErr.Message,
		"status", appErr.HTTPStatus,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	}
	if appErr.Err != nil {
		attrs = append(attrs, "error", appErr.Err.Error())
	}
	if len(appErr.Details) > 0 {
		attrs = append(attrs, "details", appErr.Details)
	}

	logger.WithContext(c.Request.Context()).Log(c.Request.Context(), level, "API error", attrs...)
}

// AbortWithAppError aborts the request with an AppError
func AbortWithAppError(c *gin.Context, appErr *errors.AppError) {
	c.AbortWithStatusJSON(appErr.HTTPStatus, newAPIErrorResponse(c, appErr))
}
