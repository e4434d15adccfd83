package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/healthos/internal/apperror"
	"github.com/sakif/healthos/internal/model"
	"github.com/sakif/healthos/internal/service"
)

// DataService is the part of *service.DataService the handler needs.
type DataService interface {
	Cycles(ctx context.Context, limit, offset int) (*model.Page[model.CycleRow], error)
	Recoveries(ctx context.Context, limit, offset int) (*model.Page[model.RecoveryRow], error)
	Sleeps(ctx context.Context, limit, offset int) (*model.Page[model.SleepRow], error)
	Workouts(ctx context.Context, limit, offset int) (*model.Page[model.WorkoutRow], error)
	Dashboard(ctx context.Context, days int) (*model.Dashboard, error)
	Context(ctx context.Context) (*model.HealthContext, error)
	Profile(ctx context.Context) (*model.ProfileRow, *model.BodyMeasurementsRow, error)
}

// DataHandler serves the read-only views over the local cache.
type DataHandler struct {
	data   DataService
	logger *slog.Logger
}

func NewDataHandler(svc DataService, logger *slog.Logger) *DataHandler {
	return &DataHandler{data: svc, logger: logger}
}

// paging reads limit and offset. Unparseable values fall back to the
// defaults like missing ones.
func paging(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

func (h *DataHandler) HandleCycles(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	respond(w, func() (any, error) { return h.data.Cycles(r.Context(), limit, offset) })
}

func (h *DataHandler) HandleRecovery(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	respond(w, func() (any, error) { return h.data.Recoveries(r.Context(), limit, offset) })
}

func (h *DataHandler) HandleSleep(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	respond(w, func() (any, error) { return h.data.Sleeps(r.Context(), limit, offset) })
}

func (h *DataHandler) HandleWorkouts(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	respond(w, func() (any, error) { return h.data.Workouts(r.Context(), limit, offset) })
}

func (h *DataHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := "max"
	if q.Has("days") {
		raw = q.Get("days")
	}
	days := service.DashboardDays(raw)
	respond(w, func() (any, error) { return h.data.Dashboard(r.Context(), days) })
}

func (h *DataHandler) HandleContext(w http.ResponseWriter, r *http.Request) {
	respond(w, func() (any, error) { return h.data.Context(r.Context()) })
}

func (h *DataHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	p, b, err := h.data.Profile(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile":          p,
		"bodyMeasurements": b,
	})
}

func respond(w http.ResponseWriter, fn func() (any, error)) {
	v, err := fn()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// CredentialReader reports whether a WHOOP account is connected.
type CredentialReader interface {
	GetCredential(ctx context.Context) (*model.Credential, error)
}

// RequireCredential rejects requests with 401 while no WHOOP account is
// connected.
func RequireCredential(creds CredentialReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := creds.GetCredential(r.Context()); err != nil {
				if errors.Is(err, apperror.ErrNotFound) {
					writeJSON(w, http.StatusUnauthorized, ErrorResponse{
						Error:   "unauthorized",
						Message: "Not authenticated",
					})
					return
				}
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
