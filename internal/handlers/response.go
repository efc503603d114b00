package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/appdock/apphub-backend/internal/catalog"
	"github.com/appdock/apphub-backend/internal/manifest"
	"github.com/appdock/apphub-backend/internal/platform/apierr"
	"github.com/appdock/apphub-backend/internal/platform/redisx"
	"github.com/appdock/apphub-backend/internal/repos"
	"github.com/appdock/apphub-backend/internal/services"
	"github.com/appdock/apphub-backend/internal/version"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondServiceError maps domain errors onto HTTP statuses.
// Validation failures keep their specific message; remote catalog
// failures surface as a generic bad-gateway so upstream error bodies
// never leak to API consumers.
func RespondServiceError(c *gin.Context, err error) {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		RespondError(c, ae.Status, ae.Code, ae.Err)
		return
	}

	switch {
	case errors.Is(err, repos.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, services.ErrDuplicateProduct):
		RespondError(c, http.StatusConflict, "duplicate_product", err)
	case errors.Is(err, services.ErrIncompleteDescriptor),
		errors.Is(err, manifest.ErrMalformedPackage),
		errors.Is(err, version.ErrProductMismatch),
		errors.Is(err, version.ErrVersionNotGreater):
		RespondError(c, http.StatusUnprocessableEntity, "invalid_package", err)
	case errors.Is(err, services.ErrNoForwardTransition),
		errors.Is(err, services.ErrNotRejectable),
		errors.Is(err, services.ErrNotResubmittable):
		RespondError(c, http.StatusConflict, "invalid_transition", err)
	case errors.Is(err, redisx.ErrLockHeld):
		RespondError(c, http.StatusConflict, "operation_in_progress",
			errors.New("another operation for this product is in progress"))
	default:
		var re *catalog.RemoteError
		var se *services.StepError
		if errors.As(err, &re) || errors.As(err, &se) {
			RespondError(c, http.StatusBadGateway, "catalog_error",
				errors.New("remote catalog operation failed"))
			return
		}
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
