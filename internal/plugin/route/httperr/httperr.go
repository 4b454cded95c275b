// Package httperr maps the typed store errors onto HTTP responses shared by
// every route package.
package httperr

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/monitoring"
	registrystore "github.com/chirino/movie-service/internal/registry/store"
	"github.com/gin-gonic/gin"
)

// Status returns the HTTP status and error code for err.
func Status(err error) (int, string) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var notActive *registrystore.NotActiveError
	var conflict *registrystore.ConflictError
	var query *registrystore.QueryError
	var unavailable *registrystore.UnavailableError

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &validation):
		return http.StatusBadRequest, "validation_error"
	case errors.As(err, &notActive):
		return http.StatusBadRequest, "chat_not_active"
	case errors.As(err, &conflict):
		return http.StatusConflict, "conflict"
	case errors.As(err, &query):
		return http.StatusBadRequest, "query_error"
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// Handle writes the JSON error body for err and records it under handler.
func Handle(c *gin.Context, handler string, err error) {
	status, code := Status(err)
	monitoring.RecordHTTPError(c.Request.Method, handler, status, code)

	body := gin.H{"code": code, "error": err.Error()}
	var validation *registrystore.ValidationError
	if errors.As(err, &validation) {
		body["field"] = validation.Field
	}
	if status == http.StatusInternalServerError {
		log.Error("Request failed", "handler", handler, "err", err)
		body["error"] = "internal server error"
	} else if status == http.StatusServiceUnavailable {
		log.Warn("Backend unavailable", "handler", handler, "err", err)
	}
	c.JSON(status, body)
}

// BadRequest reports a request body that could not be decoded.
func BadRequest(c *gin.Context, handler string, err error) {
	monitoring.RecordHTTPError(c.Request.Method, handler, http.StatusBadRequest, "validation_error")
	c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
}
