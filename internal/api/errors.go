package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"larder/internal/docstore"
	"larder/internal/photo"
	"larder/internal/records"
	"larder/internal/session"
	"larder/internal/taxonomy"
	"larder/internal/workspace"
)

// statusFor maps core errors to HTTP status codes
func statusFor(err error) int {
	var verr *session.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, docstore.ErrNotFound),
		errors.Is(err, records.ErrNotFound),
		errors.Is(err, workspace.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidAmountFormat),
		errors.Is(err, session.ErrInvalidDateFormat),
		errors.Is(err, session.ErrUnknownOption),
		errors.Is(err, taxonomy.ErrEmptyOption),
		errors.Is(err, taxonomy.ErrSentinelValue),
		errors.Is(err, taxonomy.ErrUnknownKind),
		errors.Is(err, taxonomy.ErrOptionTooLong),
		errors.Is(err, records.ErrMissingIdentifier),
		errors.Is(err, photo.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, photo.ErrUnsupportedContent):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, session.ErrFieldLocked),
		errors.Is(err, session.ErrInvalidState),
		errors.Is(err, session.ErrDeleteNotAllowed),
		errors.Is(err, session.ErrPromptRequired),
		errors.Is(err, records.ErrMutationInFlight),
		errors.Is(err, taxonomy.ErrClosed),
		errors.Is(err, workspace.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, records.ErrPersistence),
		errors.Is(err, records.ErrDecode):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// abortWithError writes the error body; validation errors list their fields
func abortWithError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	var verr *session.ValidationError
	if errors.As(err, &verr) {
		body["fields"] = verr.Fields
	}
	c.AbortWithStatusJSON(statusFor(err), body)
}
