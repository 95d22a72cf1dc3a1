package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/0xPuncker/batch-registry/internal/admin"
	"github.com/0xPuncker/batch-registry/internal/registration"
	"github.com/0xPuncker/batch-registry/internal/scheduler"
	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	registrations *registration.Service
	admin         *admin.Service
	schedulers    *scheduler.Registry
	logger        *logrus.Logger
	startedAt     time.Time
}

type SchedulersResponse struct {
	Schedulers []types.SchedulerInfo `json:"schedulers"`
	Running    bool                  `json:"running"`
}

func NewHandler(registrations *registration.Service, adminService *admin.Service, schedulers *scheduler.Registry, logger *logrus.Logger) *Handler {
	return &Handler{
		registrations: registrations,
		admin:         adminService,
		schedulers:    schedulers,
		logger:        logger,
		startedAt:     time.Now(),
	}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

func (h *Handler) RegisterApplication(w http.ResponseWriter, r *http.Request) {
	var app types.ClientApplication
	if err := json.NewDecoder(r.Body).Decode(&app); err != nil {
		h.handleError(w, &registration.ValidationError{Field: "body", Reason: err.Error()})
		return
	}

	stored, err := h.registrations.Register(r.Context(), &app)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.registrations.GetAll(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	app, err := h.registrations.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, err)
		return
	}
	if app == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "application " + id + " not found"})
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) GetApplicationID(w http.ResponseWriter, r *http.Request) {
	id, err := h.registrations.GetIDByName(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// DeleteApplication answers 204 when nothing was registered under the id.
func (h *Handler) DeleteApplication(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.registrations.DeleteRegistration(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.handleError(w, err)
		return
	}
	if deleted == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

func (h *Handler) ClearApplications(w http.ResponseWriter, r *http.Request) {
	if err := h.registrations.Clear(r.Context()); err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListJobConfigurations(w http.ResponseWriter, r *http.Request) {
	configs, err := h.admin.GetJobConfigurations(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configs)
}

func (h *Handler) GetJobConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.admin.GetJobConfiguration(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) CreateJobConfiguration(w http.ResponseWriter, r *http.Request) {
	var cfg types.JobConfiguration
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.handleError(w, &registration.ValidationError{Field: "body", Reason: err.Error()})
		return
	}

	saved, err := h.admin.SaveJobConfiguration(r.Context(), &cfg)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (h *Handler) UpdateJobConfiguration(w http.ResponseWriter, r *http.Request) {
	var cfg types.JobConfiguration
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.handleError(w, &registration.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	cfg.ID = mux.Vars(r)["id"]

	saved, err := h.admin.UpdateJobConfiguration(r.Context(), &cfg)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) DeleteJobConfiguration(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.DeleteJobConfiguration(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": h.schedulers.Catalog().Names(),
	})
}

func (h *Handler) ListSchedulers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SchedulersResponse{
		Schedulers: h.schedulers.ListSchedulers(),
		Running:    h.schedulers.IsRunning(),
	})
}

func (h *Handler) TriggerScheduler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.schedulers.Trigger(id); err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "job triggered for configuration " + id,
	})
}

func (h *Handler) StartScheduler(w http.ResponseWriter, r *http.Request) {
	if err := h.schedulers.Start(); err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "scheduler started successfully",
	})
}

func (h *Handler) StopScheduler(w http.ResponseWriter, r *http.Request) {
	h.schedulers.Stop()
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "scheduler stopped successfully",
	})
}

func (h *Handler) handleError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error(err)
	} else {
		h.logger.Debug(err)
	}
	writeJSON(w, code, map[string]string{
		"error": err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registration.ErrValidation), errors.Is(err, scheduler.ErrInvalidTrigger):
		return http.StatusBadRequest
	case errors.Is(err, registration.ErrLookup),
		errors.Is(err, types.ErrJobConfigurationNotFound),
		errors.Is(err, scheduler.ErrSchedulerNotFound):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrJobNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, scheduler.ErrAlreadyStarted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
