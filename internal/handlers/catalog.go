package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CatalogHandler serves stock management for book/branch entries.
type CatalogHandler struct {
	svc Circulation
}

func NewCatalogHandler(svc Circulation) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

type addBranchRequest struct {
	InitialCopies int `json:"initial_copies"`
}

// AddBranch handles POST /books/{bookID}/branches/{branchID}.
func (h *CatalogHandler) AddBranch(w http.ResponseWriter, r *http.Request) {
	var req addBranchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	bookID, branchID := chi.URLParam(r, "bookID"), chi.URLParam(r, "branchID")
	if err := h.svc.AddBranchEntry(r.Context(), bookID, branchID, req.InitialCopies); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// RemoveBranch handles DELETE /books/{bookID}/branches/{branchID}.
func (h *CatalogHandler) RemoveBranch(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveBranchEntry(r.Context(), chi.URLParam(r, "bookID"), chi.URLParam(r, "branchID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// IncrementCopies handles POST /books/{bookID}/branches/{branchID}/copies/increment.
func (h *CatalogHandler) IncrementCopies(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.IncrementCopies(r.Context(), chi.URLParam(r, "bookID"), chi.URLParam(r, "branchID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DecrementCopies handles POST /books/{bookID}/branches/{branchID}/copies/decrement.
func (h *CatalogHandler) DecrementCopies(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DecrementCopies(r.Context(), chi.URLParam(r, "bookID"), chi.URLParam(r, "branchID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
