package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/sakif/healthos/internal/apperror"
	"github.com/sakif/healthos/internal/model"
)

// SyncService is the part of *service.SyncService the handler needs.
type SyncService interface {
	SyncAll(ctx context.Context, events chan<- model.SyncEvent) ([]model.SyncResult, error)
	SyncDataType(ctx context.Context, dt model.DataType, events chan<- model.SyncEvent) (model.SyncResult, error)
	Status(ctx context.Context) ([]model.SyncMetadata, error)
}

// SyncHandler serves /api/sync. Syncs run detached from the request
// context: once started they finish even if the client goes away.
type SyncHandler struct {
	sync   SyncService
	logger *slog.Logger
}

func NewSyncHandler(svc SyncService, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{sync: svc, logger: logger}
}

// syncAllResponse carries the per-type results. Error is set when the
// sequence stopped early.
type syncAllResponse struct {
	Results []model.SyncResult `json:"results"`
	Error   string             `json:"error,omitempty"`
}

func (h *SyncHandler) HandleSyncAll(w http.ResponseWriter, r *http.Request) {
	results, err := h.sync.SyncAll(context.WithoutCancel(r.Context()), nil)
	if err != nil && results == nil {
		writeError(w, err)
		return
	}
	resp := syncAllResponse{Results: results}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SyncHandler) HandleSyncType(w http.ResponseWriter, r *http.Request) {
	dt, err := model.ParseDataType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, apperror.ValidationFailed("type", "Invalid data type: "+chi.URLParam(r, "type")))
		return
	}
	res, err := h.sync.SyncDataType(context.WithoutCancel(r.Context()), dt, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.sync.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

type syncOutcome struct {
	results []model.SyncResult
	err     error
}

// HandleStream starts a sync (all types, or ?type=) and streams its
// progress as server-sent events. The stream ends with a "done" event
// carrying the results, or an "error" event when the sync could not start.
//
// SERVER-SENT EVENTS:
// SSE is a plain HTTP response that never finishes. The server writes
// text frames and flushes after each one:
//
//	event: progress
//	data: {"kind":"started","data_type":"cycles","message":"Starting..."}
//
//	event: done
//	data: {"results":[...]}
//
// The browser's EventSource reads frames as they arrive. The sync itself
// runs on a detached context, so closing the tab stops the stream but not
// the sync; remaining events are drained so SyncAll never blocks on a full
// channel.
func (h *SyncHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errors.New("streaming unsupported"))
		return
	}

	var dt model.DataType
	if raw := r.URL.Query().Get("type"); raw != "" {
		parsed, err := model.ParseDataType(raw)
		if err != nil {
			writeError(w, apperror.ValidationFailed("type", "Invalid data type: "+raw))
			return
		}
		dt = parsed
	}

	ctx := context.WithoutCancel(r.Context())
	events := make(chan model.SyncEvent, 16)
	done := make(chan syncOutcome, 1)
	go func() {
		var out syncOutcome
		if dt == "" {
			out.results, out.err = h.sync.SyncAll(ctx, events)
		} else {
			var res model.SyncResult
			res, out.err = h.sync.SyncDataType(ctx, dt, events)
			if out.err == nil {
				out.results = []model.SyncResult{res}
			}
		}
		close(events)
		done <- out
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Keep draining after the client leaves so the sync never blocks on
	// an unread channel.
	for ev := range events {
		if r.Context().Err() != nil {
			continue
		}
		h.writeEvent(w, flusher, "progress", ev)
	}

	out := <-done
	if r.Context().Err() != nil {
		return
	}
	if out.err != nil && out.results == nil {
		_, kind := errorStatus(out.err)
		h.writeEvent(w, flusher, "error", ErrorResponse{Error: kind, Message: errorMessage(out.err)})
		return
	}
	resp := syncAllResponse{Results: out.results}
	if out.err != nil {
		resp.Error = out.err.Error()
	}
	h.writeEvent(w, flusher, "done", resp)
}

func (h *SyncHandler) writeEvent(w http.ResponseWriter, flusher http.Flusher, name string, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("encoding sync event", slog.String("error", err.Error()))
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, b); err != nil {
		return
	}
	flusher.Flush()
}

// errorMessage returns the client-safe message of err.
func errorMessage(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "An internal error occurred"
}
