package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"library-circulation/internal/models"
)

// StaffHandler serves branch desk operations and outbox maintenance.
type StaffHandler struct {
	svc    Circulation
	outbox Outbox
}

func NewStaffHandler(svc Circulation, outbox Outbox) *StaffHandler {
	return &StaffHandler{svc: svc, outbox: outbox}
}

type loanRequest struct {
	UserID string `json:"user_id"`
	BookID string `json:"book_id"`
}

// MarkAsLoan handles POST /branches/{branchID}/loans.
func (h *StaffHandler) MarkAsLoan(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	loan, err := h.svc.MarkAsLoan(r.Context(), chi.URLParam(r, "branchID"), req.UserID, req.BookID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

// ReturnLoan handles POST /branches/{branchID}/loans/return.
func (h *StaffHandler) ReturnLoan(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.CompleteLoan(r.Context(), chi.URLParam(r, "branchID"), req.UserID, req.BookID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ShowReservations handles GET /branches/{branchID}/reservations.
func (h *StaffHandler) ShowReservations(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListReservations(r.Context(), chi.URLParam(r, "branchID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(list))
}

// ShowLoans handles GET /branches/{branchID}/loans.
func (h *StaffHandler) ShowLoans(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListLoans(r.Context(), chi.URLParam(r, "branchID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(list))
}

// ShowOverdue handles GET /branches/{branchID}/overdue.
func (h *StaffHandler) ShowOverdue(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListOverdue(r.Context(), chi.URLParam(r, "branchID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(list))
}

// ListTasks handles GET /outbox/tasks?status=FAILED&limit=50.
func (h *StaffHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	status := models.TaskStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.TaskFailed
	}
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+string(status))
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	tasks, err := h.outbox.List(r.Context(), status, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(tasks))
}

// RequeueTask handles POST /outbox/tasks/{taskID}/requeue.
func (h *StaffHandler) RequeueTask(w http.ResponseWriter, r *http.Request) {
	requeued, err := h.outbox.Requeue(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !requeued {
		writeError(w, http.StatusConflict, "only FAILED tasks can be requeued")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
