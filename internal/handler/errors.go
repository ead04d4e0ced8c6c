package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"device-hub-server/internal/middleware"
	"device-hub-server/internal/service"
	"device-hub-server/pkg/response"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads the request body into v. An empty body is accepted when
// allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		response.BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// writeError maps service errors to the response envelope. Anything that is
// not a known sentinel is logged and rendered without detail.
func writeError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		response.BadRequest(w, verr.Message)
	case errors.Is(err, service.ErrDeviceNotFound):
		response.NotFound(w, "Device not found")
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(w, "User not found")
	case errors.Is(err, service.ErrUnauthorized):
		response.Unauthorized(w, "Not authorized")
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(w, "Invalid email or password")
	case errors.Is(err, service.ErrEmailTaken):
		response.Conflict(w, "Email already registered")
	default:
		log.WithError(err).WithFields(logrus.Fields{
			"method":  r.Method,
			"path":    r.URL.Path,
			"user_id": middleware.GetUserID(r),
		}).Error("request failed")
		response.InternalError(w, "Server error")
	}
}
