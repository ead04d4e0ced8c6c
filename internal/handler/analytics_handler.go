package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"device-hub-server/internal/domain"
	"device-hub-server/internal/middleware"
	"device-hub-server/internal/service"
	"device-hub-server/pkg/response"
)

type AnalyticsHandler struct {
	analyticsService *service.AnalyticsService
	log              logrus.FieldLogger
}

func NewAnalyticsHandler(analyticsService *service.AnalyticsService, log logrus.FieldLogger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
		log:              log,
	}
}

func (h *AnalyticsHandler) CreateLog(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateLogRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	entry, err := h.analyticsService.Append(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Created(w, response.Fields{"log": entry})
}

func (h *AnalyticsHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	// Unparsable limits fall back to the default.
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	logs, err := h.analyticsService.Recent(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"], limit)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Success(w, response.Fields{"logs": logs})
}

func (h *AnalyticsHandler) Usage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.analyticsService.Usage(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"], r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Success(w, response.Fields{
		"device_id":            usage.DeviceID,
		"range":                usage.Range,
		"since":                usage.Since,
		usage.Range.TotalKey(): usage.Total,
	})
}
