package handler

import (
	"errors"
	"net/http"

	"github.com/teamflow/notification-service/internal/service"
)

var (
	errNoToken       = errors.New("there is no token")
	errInvalidJWT    = errors.New("invalid jwt")
	errInvalidUserID = errors.New("invalid user ID")
	errInvalidID     = errors.New("notification id must be a uuid")
	errInvalidBody   = errors.New("request body is not valid json")

	errNoServiceToken      = errors.New("there is no service token")
	errInvalidServiceToken = errors.New("invalid service token")
)

// respondError renders a service error with its status code. Errors the
// service did not classify are reported as internal.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var external *service.ExternalFailureError
	switch {
	case errors.As(err, &external):
		h.Respond(w, Resp{"error": external.Error(), "retryable": external.Retryable()}, http.StatusServiceUnavailable)
	case errors.Is(err, service.ErrForbidden):
		if h.hideForbidden {
			h.Respond(w, Resp{"error": service.ErrNotFound.Error()}, http.StatusNotFound)
			return
		}
		h.Respond(w, Resp{"error": err.Error()}, http.StatusForbidden)
	case errors.Is(err, service.ErrNotFound):
		h.Respond(w, Resp{"error": err.Error()}, http.StatusNotFound)
	case errors.Is(err, service.ErrInvalidType), errors.Is(err, service.ErrInvalidNotification):
		h.Respond(w, Resp{"error": err.Error()}, http.StatusUnprocessableEntity)
	case errors.Is(err, service.ErrBrokenInvariant):
		h.Respond(w, Resp{"error": err.Error()}, http.StatusConflict)
	default:
		h.Respond(w, Resp{"error": service.ErrInternal.Error()}, http.StatusInternalServerError)
	}
}
