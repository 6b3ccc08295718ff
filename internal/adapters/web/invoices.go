package web

import (
	"net/http"

	"invoice-agent/internal/core"

	"github.com/go-chi/chi/v5"
)

// ── Internal invoices ────────────────────────────────────────────────────────

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	teamID, ok := requireTeam(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 0)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := core.InvoiceFilter{
		Status:   core.InvoiceStatus(q.Get("status")),
		Customer: q.Get("customer"),
		Limit:    limit,
		Offset:   offset,
	}
	invoices, err := h.svc.ListInvoices(r.Context(), userID(r), teamID, f)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, invoices)
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	teamID, ok := requireTeam(w, r)
	if !ok {
		return
	}
	var in core.InvoiceInput
	if !decodeJSON(w, r, &in) {
		return
	}
	inv, err := h.svc.CreateInvoice(r.Context(), userID(r), teamID, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, inv)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	teamID, ok := requireTeam(w, r)
	if !ok {
		return
	}
	inv, err := h.svc.GetInvoice(r.Context(), userID(r), teamID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, inv)
}

func (h *Handler) updateInvoice(w http.ResponseWriter, r *http.Request) {
	teamID, ok := requireTeam(w, r)
	if !ok {
		return
	}
	var upd core.InvoiceUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}
	inv, err := h.svc.UpdateInvoice(r.Context(), userID(r), teamID, chi.URLParam(r, "id"), upd)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, inv)
}

func (h *Handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	teamID, ok := requireTeam(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteInvoice(r.Context(), userID(r), teamID, chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (h *Handler) invoiceStats(w http.ResponseWriter, r *http.Request) {
	teamID, ok := requireTeam(w, r)
	if !ok {
		return
	}
	stats, err := h.svc.InvoiceStats(r.Context(), userID(r), teamID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}
