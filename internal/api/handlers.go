// Package api exposes HTTP handlers for the workout sync service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"example.com/fittrack/internal/auth"
	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/observability"
	"example.com/fittrack/pkg/workout"
)

// maxBodyBytes bounds a sync request; 50 strength workouts fit comfortably.
const maxBodyBytes = 2 << 20

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	logger  *log.Entry
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service, logger: log.WithField("component", "api")}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/workouts/sync", h.syncWorkouts)
	mux.HandleFunc("/api/workouts/sync", h.syncWorkouts)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) syncWorkouts(w http.ResponseWriter, r *http.Request) {
	rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() { observability.RecordSyncRequest(rw.status) }()

	if r.Method != http.MethodPost {
		rw.Header().Set("Allow", http.MethodPost)
		writeError(rw, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(rw, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeWorkoutsWrite) {
		writeError(rw, http.StatusForbidden, "forbidden", "scope workouts:write required")
		return
	}

	var req workout.RawSyncRequest
	if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(rw, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
			return
		}
		writeError(rw, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	in := domain.ReconcileInput{TenantID: claims.TenantID, UserID: claims.Subject}
	for _, raw := range req.Workouts {
		rec, err := workout.DecodeRecord(raw)
		if err != nil {
			in.Undecodable = append(in.Undecodable, workout.SyncError{LocalID: rec.LocalID, Error: err.Error()})
			continue
		}
		in.Records = append(in.Records, rec)
	}

	result, err := h.service.Reconcile(r.Context(), in)
	switch {
	case errors.Is(err, domain.ErrEmptyBatch):
		writeError(rw, http.StatusBadRequest, "validation_failed", err.Error())
		return
	case errors.Is(err, domain.ErrBatchTooLarge):
		writeError(rw, http.StatusBadRequest, "batch_too_large", err.Error())
		return
	case err != nil:
		h.logger.WithError(err).WithFields(log.Fields{
			"tenant_id": claims.TenantID,
			"user_id":   claims.Subject,
			"records":   len(req.Workouts),
		}).Error("workout sync failed")
		writeError(rw, http.StatusInternalServerError, "server_error", "failed to sync workouts")
		return
	}

	observability.RecordSyncBatch(len(req.Workouts), result.Synced-result.Replayed, result.Replayed, result.Failed)
	h.logger.WithFields(log.Fields{
		"tenant_id": claims.TenantID,
		"user_id":   claims.Subject,
		"synced":    result.Synced,
		"replayed":  result.Replayed,
		"failed":    result.Failed,
	}).Info("workouts synced")

	writeJSON(rw, http.StatusOK, result.Response())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
