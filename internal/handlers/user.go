package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"library-circulation/internal/circulation"
	"library-circulation/internal/models"
)

// UserHandler serves reader-facing operations.
type UserHandler struct {
	svc Circulation
}

func NewUserHandler(svc Circulation) *UserHandler {
	return &UserHandler{svc: svc}
}

type cancelReservationRequest struct {
	UserID   string `json:"user_id"`
	BookID   string `json:"book_id"`
	BranchID string `json:"branch_id"`
}

// Reserve handles POST /reservations.
func (h *UserHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req circulation.ReserveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	reservation, err := h.svc.Reserve(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reservation)
}

// CancelReservation handles DELETE /reservations.
func (h *UserHandler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	var req cancelReservationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	cancelled, err := h.svc.CancelReservation(r.Context(), req.UserID, req.BookID, req.BranchID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !cancelled {
		writeServiceError(w, r, fmt.Errorf("%w: user %s, book %s at branch %s",
			models.ErrReservationNotFound, req.UserID, req.BookID, req.BranchID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListActivity handles GET /users/{userID}/activity.
func (h *UserHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	activity, err := h.svc.ListUserActivity(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(activity))
}
