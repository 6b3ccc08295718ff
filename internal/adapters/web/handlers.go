package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"invoice-agent/internal/app"
	"invoice-agent/internal/metrics"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Options configure NewHandler.
type Options struct {
	AllowedOrigins string
	JWTSecret      string
	// AppURL is the frontend origin the OAuth callback redirects to.
	AppURL  string
	Log     *zap.Logger
	Metrics *metrics.Registry
}

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	router    chi.Router
	jwtSecret string
	appURL    string
	log       *zap.Logger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{
		svc:       svc,
		jwtSecret: opts.JWTSecret,
		appURL:    strings.TrimRight(opts.AppURL, "/"),
		log:       log,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(Metrics(opts.Metrics))
	r.Use(CORS(opts.AllowedOrigins))

	// ── Public ────────────────────────────────────────────────────────────────
	r.Get("/api/health", h.health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}
	// The user comes from the single-use state, not a bearer token.
	r.Get("/api/auth/quickbooks/callback", h.quickbooksCallback)

	// ── Protected API routes (401 JSON if unauthenticated) ───────────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		r.Get("/api/auth/quickbooks", h.quickbooksAuthorize)
		r.Get("/api/quickbooks/status", h.quickbooksStatus)
		r.Post("/api/quickbooks/disconnect", h.quickbooksDisconnect)

		// Teams
		r.Get("/api/teams", h.listTeams)
		r.Post("/api/teams", h.createTeam)
		r.Route("/api/teams/{id}", func(r chi.Router) {
			r.Get("/", h.getTeam)
			r.Put("/", h.updateTeam)
			r.Delete("/", h.deleteTeam)
			r.Get("/members", h.listMembers)
			r.Put("/members/{userId}", h.updateMemberRole)
			r.Delete("/members/{userId}", h.removeMember)
			r.Post("/invite", h.inviteUser)
			r.Get("/invitations", h.listInvitations)
			r.Delete("/invitations/{invitationId}", h.deleteInvitation)
		})
		r.Get("/api/invitations/{token}", h.getInvitation)
		r.Post("/api/invitations/{token}/accept", h.acceptInvitation)

		// Internal invoices
		r.Get("/api/invoices", h.listInvoices)
		r.Post("/api/invoices", h.createInvoice)
		r.Get("/api/invoices/stats", h.invoiceStats)
		r.Get("/api/invoices/{id}", h.getInvoice)
		r.Put("/api/invoices/{id}", h.updateInvoice)
		r.Delete("/api/invoices/{id}", h.deleteInvoice)

		// QuickBooks invoices, customers and items
		r.Get("/api/qbo/company", h.qboCompany)
		r.Get("/api/qbo/invoices", h.qboListInvoices)
		r.Post("/api/qbo/invoices", h.qboCreateInvoice)
		r.Get("/api/qbo/invoices/{id}", h.qboGetInvoice)
		r.Put("/api/qbo/invoices/{id}", h.qboUpdateInvoice)
		r.Delete("/api/qbo/invoices/{id}", h.qboDeleteInvoice)
		r.Post("/api/qbo/invoices/{id}/send", h.qboSendInvoice)
		r.Get("/api/qbo/customers", h.qboListCustomers)
		r.Post("/api/qbo/customers/create", h.qboCreateCustomer)
		r.Get("/api/qbo/items", h.qboListItems)
		r.Post("/api/qbo/items/create", h.qboCreateItem)

		// Assistant
		r.Post("/api/chat", h.chat)
		r.Get("/api/ai/invoices", h.assistantInvoices)
		r.Get("/api/ai/invoices/stats", h.assistantInvoiceStats)
	})

	h.router = r
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// teamParam is the team id given by the `team_id` query parameter or the X-Team-ID header.
func teamParam(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("team_id")); t != "" {
		return t
	}
	return strings.TrimSpace(r.Header.Get("X-Team-ID"))
}

// requireTeam writes a 400 when no team is given.
func requireTeam(w http.ResponseWriter, r *http.Request) (string, bool) {
	t := teamParam(r)
	if t == "" {
		writeError(w, r, "team_id is required", "VALIDATION_ERROR", http.StatusBadRequest)
		return "", false
	}
	return t, true
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, r, name+" must be a non-negative integer", "VALIDATION_ERROR", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
