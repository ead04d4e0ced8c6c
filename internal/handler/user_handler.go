package handler

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"device-hub-server/internal/middleware"
	"device-hub-server/internal/service"
	"device-hub-server/pkg/response"
)

type UserHandler struct {
	userService *service.UserService
	log         logrus.FieldLogger
}

func NewUserHandler(userService *service.UserService, log logrus.FieldLogger) *UserHandler {
	return &UserHandler{
		userService: userService,
		log:         log,
	}
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == "" {
		response.Unauthorized(w, "Not authorized")
		return
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Success(w, response.Fields{"user": user})
}
