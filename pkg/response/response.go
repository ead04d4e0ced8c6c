package response

import (
	"encoding/json"
	"net/http"
)

// Fields is the payload merged into the envelope next to "success".
type Fields map[string]interface{}

// JSON writes {"success": status < 400, ...fields}.
func JSON(w http.ResponseWriter, statusCode int, fields Fields) {
	body := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["success"] = statusCode < 400

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

func Success(w http.ResponseWriter, fields Fields) {
	JSON(w, http.StatusOK, fields)
}

func Created(w http.ResponseWriter, fields Fields) {
	JSON(w, http.StatusCreated, fields)
}

// Error writes {"success": false, "message": message}.
func Error(w http.ResponseWriter, statusCode int, message string) {
	JSON(w, statusCode, Fields{"message": message})
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, message)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message)
}

func Conflict(w http.ResponseWriter, message string) {
	Error(w, http.StatusConflict, message)
}

func TooManyRequests(w http.ResponseWriter, message string) {
	Error(w, http.StatusTooManyRequests, message)
}

func InternalError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, message)
}
