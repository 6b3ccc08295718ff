package web

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"invoice-agent/internal/quickbooks"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ── OAuth connection ─────────────────────────────────────────────────────────

// quickbooksAuthorize redirects the browser to the Intuit consent page.
func (h *Handler) quickbooksAuthorize(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.svc.StartQuickBooksAuth(r.Context(), userID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// quickbooksCallback completes the authorization and sends the browser back to settings.
func (h *Handler) quickbooksCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		h.settingsRedirect(w, r, "error", e)
		return
	}
	code, state, realmID := q.Get("code"), q.Get("state"), q.Get("realmId")
	if code == "" || state == "" || realmID == "" {
		h.settingsRedirect(w, r, "error", "missing_params")
		return
	}

	uid, err := h.svc.CompleteQuickBooksAuth(r.Context(), state, code, realmID)
	switch {
	case errors.Is(err, quickbooks.ErrStateInvalid):
		h.settingsRedirect(w, r, "error", "invalid_state")
	case err != nil:
		h.log.Warn("quickbooks connect failed", zap.String("user_id", uid), zap.Error(err))
		h.settingsRedirect(w, r, "error", "connection_failed")
	default:
		h.log.Info("quickbooks connected", zap.String("user_id", uid), zap.String("realm_id", realmID))
		h.settingsRedirect(w, r, "quickbooks", "connected")
	}
}

func (h *Handler) settingsRedirect(w http.ResponseWriter, r *http.Request, key, value string) {
	v := url.Values{}
	v.Set(key, value)
	http.Redirect(w, r, h.appURL+"/settings?"+v.Encode(), http.StatusFound)
}

func (h *Handler) quickbooksStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.QuickBooksStatus(r.Context(), userID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, st)
}

func (h *Handler) quickbooksDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DisconnectQuickBooks(r.Context(), userID(r), teamParam(r)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"message": "QuickBooks disconnected"})
}

// ── QuickBooks entities ──────────────────────────────────────────────────────

func (h *Handler) qboCompany(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.QBOCompany(r.Context(), userID(r), teamParam(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeResult(w, r, res)
}

// qboListInvoices lists invoices, or looks one up when doc_number is given.
func (h *Handler) qboListInvoices(w http.ResponseWriter, r *http.Request) {
	if doc := strings.TrimSpace(r.URL.Query().Get("doc_number")); doc != "" {
		res, err := h.svc.QBOFindInvoice(r.Context(), userID(r), teamParam(r), doc)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeResult(w, r, res)
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
	res, err := h.svc.QBOListInvoices(r.Context(), userID(r), teamParam(r), limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeResult(w, r, res)
}

func (h *Handler) qboGetInvoice(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.QBOGetInvoice(r.Context(), userID(r), teamParam(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeResult(w, r, res)
}

func (h *Handler) qboCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var in quickbooks.InvoiceInput
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := h.svc.QBOCreateInvoice(r.Context(), userID(r), teamParam(r), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeResult(w, r, res)
}

func (h *Handler) qboUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var p quickbooks.InvoicePatch
	if !decodeJSON(w, r, &p) {
		return
	}
	res, err := h.svc.QBOUpdateInvoice(r.Context(), userID(r), teamParam(r), chi.URLParam(r, "id"), p)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeResult(w, r, res)
}

func (h *Handler) qboDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.QBODeleteInvoice(r.Context(), userID(r), teamParam(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeResult(w, r, res)
}

// qboSendInvoice emails an invoice. The body is optional; without an email
// QuickBooks uses the address on the invoice.
func (h *Handler) qboSendInvoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.QBOSendInvoice(r.Context(), userID(r), teamParam(r), chi.URLParam(r, "id"), strings.TrimSpace(req.Email))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeResult(w, r, res)
}

func (h *Handler) qboListCustomers(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.QBOListCustomers(r.Context(), userID(r), teamParam(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeResult(w, r, res)
}

func (h *Handler) qboCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var in quickbooks.CustomerInput
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := h.svc.QBOCreateCustomer(r.Context(), userID(r), teamParam(r), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeResult(w, r, res)
}

func (h *Handler) qboListItems(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.QBOListItems(r.Context(), userID(r), teamParam(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeResult(w, r, res)
}

func (h *Handler) qboCreateItem(w http.ResponseWriter, r *http.Request) {
	var in quickbooks.ItemInput
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := h.svc.QBOCreateItem(r.Context(), userID(r), teamParam(r), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeResult(w, r, res)
}
