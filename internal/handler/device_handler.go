package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"device-hub-server/internal/domain"
	"device-hub-server/internal/middleware"
	"device-hub-server/internal/service"
	"device-hub-server/pkg/response"
)

type DeviceHandler struct {
	deviceService *service.DeviceService
	log           logrus.FieldLogger
}

func NewDeviceHandler(deviceService *service.DeviceService, log logrus.FieldLogger) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
		log:           log,
	}
}

func (h *DeviceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateDeviceRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	device, err := h.deviceService.Create(r.Context(), middleware.GetUserID(r), &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Created(w, response.Fields{"device": device})
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.DeviceFilter{
		Type:   domain.DeviceType(query.Get("type")),
		Status: domain.DeviceStatus(query.Get("status")),
	}

	devices, err := h.deviceService.List(r.Context(), middleware.GetUserID(r), filter)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Success(w, response.Fields{"devices": devices})
}

func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	device, err := h.deviceService.Get(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Success(w, response.Fields{"device": device})
}

func (h *DeviceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateDeviceRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	device, err := h.deviceService.Update(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Success(w, response.Fields{"device": device})
}

func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.deviceService.Delete(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Success(w, response.Fields{"message": "Device deleted successfully"})
}

func (h *DeviceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req domain.HeartbeatRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	device, err := h.deviceService.Heartbeat(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"], req.Status)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Success(w, response.Fields{
		"message":        "Device heartbeat recorded",
		"status":         device.Status,
		"last_active_at": device.LastActiveAt,
	})
}
