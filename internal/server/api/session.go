package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/arstage/internal/compositor"
	"github.com/ayusman/arstage/internal/session"
	"github.com/ayusman/arstage/internal/store"
)

// Session is the part of a session the HTTP API drives.
type Session interface {
	Status(ctx context.Context) (session.Status, error)
	Restart(ctx context.Context) error
	SetGesturesEnabled(enabled bool)
	Tap(ctx context.Context, x, y float64) (session.TapResult, error)
	Capture(ctx context.Context) (*compositor.Snapshot, error)
	Gallery() *compositor.Gallery
	DismissSnapshot(id string) bool
}

// SessionHandler serves session control, scene taps and captures.
type SessionHandler struct {
	session Session
	// store is optional; it serves captures that left the on-screen stack.
	store  *store.Store
	logger *slog.Logger
}

// NewSessionHandler creates a SessionHandler. st may be nil.
func NewSessionHandler(s Session, st *store.Store, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SessionHandler{session: s, store: st, logger: logger}
}

// Routes mounts the handler on r.
func (h *SessionHandler) Routes(r chi.Router) {
	r.Get("/session", h.status)
	r.Post("/session/restart", h.restart)
	r.Post("/session/gestures", h.setGestures)
	r.Post("/scene/tap", h.tap)

	r.Route("/captures", func(r chi.Router) {
		r.Get("/", h.listCaptures)
		r.Post("/", h.capture)
		r.Get("/{id}", h.getCapture)
		r.Delete("/{id}", h.dismissCapture)
	})
}

func (h *SessionHandler) status(w http.ResponseWriter, r *http.Request) {
	st, err := h.session.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *SessionHandler) restart(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Restart(r.Context()); err != nil {
		h.logger.Error("restart session", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to restart session")
		return
	}
	h.status(w, r)
}

type gesturesRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *SessionHandler) setGestures(w http.ResponseWriter, r *http.Request) {
	var req gesturesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	h.session.SetGesturesEnabled(*req.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}

type tapRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

func (h *SessionHandler) tap(w http.ResponseWriter, r *http.Request) {
	var req tapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.X == nil || req.Y == nil {
		writeError(w, http.StatusBadRequest, "x and y are required")
		return
	}

	res, err := h.session.Tap(r.Context(), *req.X, *req.Y)
	if err != nil {
		if errors.Is(err, session.ErrNotRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type listCapturesResponse struct {
	Captures []*compositor.Snapshot `json:"captures"`
}

// listCaptures returns the on-screen stack, newest first.
func (h *SessionHandler) listCaptures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listCapturesResponse{Captures: h.session.Gallery().List()})
}

func (h *SessionHandler) capture(w http.ResponseWriter, r *http.Request) {
	snap, err := h.session.Capture(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, snap)
	case errors.Is(err, compositor.ErrCaptureInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrNotRunning):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// getCapture serves a snapshot PNG from the stack, or from disk when the
// snapshot has been dismissed or pushed off.
func (h *SessionHandler) getCapture(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if snap, ok := h.session.Gallery().Get(id); ok {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(snap.PNG)))
		w.Write(snap.PNG)
		return
	}

	if h.store == nil {
		writeError(w, http.StatusNotFound, "Capture not found")
		return
	}
	rec, err := h.store.Captures().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Capture not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get capture")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, rec.Path)
}

func (h *SessionHandler) dismissCapture(w http.ResponseWriter, r *http.Request) {
	if !h.session.DismissSnapshot(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "Capture not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
