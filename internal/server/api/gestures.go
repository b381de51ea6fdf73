package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/arstage/internal/gesture"
	"github.com/ayusman/arstage/internal/store"
)

// GestureHandler serves the gesture library kept in the store.
type GestureHandler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewGestureHandler creates a new GestureHandler with the given store.
func NewGestureHandler(s *store.Store, logger *slog.Logger) *GestureHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &GestureHandler{store: s, logger: logger}
}

// Routes mounts the handler on r.
func (h *GestureHandler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.delete)
}

type gestureResponse struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Position   int             `json:"position"`
	Definition json.RawMessage `json:"definition"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

type listGesturesResponse struct {
	Gestures []gestureResponse `json:"gestures"`
}

func toResponse(g *store.Gesture) gestureResponse {
	return gestureResponse{
		ID:         g.ID,
		Name:       g.Name,
		Position:   g.Position,
		Definition: g.Definition,
		CreatedAt:  g.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:  g.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// list handles GET /api/gestures in declaration order.
func (h *GestureHandler) list(w http.ResponseWriter, r *http.Request) {
	gestures, err := h.store.Gestures().List()
	if err != nil {
		h.logger.Error("list gestures", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to list gestures")
		return
	}

	response := listGesturesResponse{
		Gestures: make([]gestureResponse, 0, len(gestures)),
	}
	for _, g := range gestures {
		response.Gestures = append(response.Gestures, toResponse(g))
	}
	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/gestures/{id}.
func (h *GestureHandler) get(w http.ResponseWriter, r *http.Request) {
	g, err := h.store.Gestures().GetByID(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Gesture not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get gesture")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(g))
}

// create handles POST /api/gestures. The body is a gesture description;
// the new gesture is declared after every existing one.
func (h *GestureHandler) create(w http.ResponseWriter, r *http.Request) {
	var d gesture.Description
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := d.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.store.Gestures().GetByName(d.Name); err == nil {
		writeError(w, http.StatusConflict, "Gesture already exists")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "Failed to create gesture")
		return
	}

	g, err := h.store.Gestures().Append(&d)
	if err != nil {
		h.logger.Error("create gesture", "gesture", d.Name, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to create gesture")
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(g))
}

// delete handles DELETE /api/gestures/{id}.
func (h *GestureHandler) delete(w http.ResponseWriter, r *http.Request) {
	err := h.store.Gestures().Delete(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Gesture not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete gesture")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
