package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"invoice-agent/internal/core"
	"invoice-agent/internal/quickbooks"

	"github.com/shopspring/decimal"
)

// QuickBooksDirectory is the part of the session manager the customer and item
// tools use. *quickbooks.SessionManager implements it.
type QuickBooksDirectory interface {
	GetCustomers(ctx context.Context, userID string) quickbooks.Result[[]quickbooks.Customer]
	GetItems(ctx context.Context, userID string) quickbooks.Result[[]quickbooks.Item]
}

// ToolDeps binds the invoice tools to one team's invoices and, optionally, the
// calling user's QuickBooks connection.
type ToolDeps struct {
	Invoices   core.InvoiceService
	TeamID     string
	UserID     string
	QuickBooks QuickBooksDirectory

	// Can reports whether the caller holds a permission. Nil allows everything.
	Can func(core.Permission) bool
}

// NewAssistantRegistry registers every assistant tool against deps.
func NewAssistantRegistry(deps ToolDeps) *ToolRegistry {
	r := NewToolRegistry()
	t := &invoiceTools{ToolDeps: deps}

	r.Register(t.guard(core.PermViewInvoices, typedTool("getInvoice", "Look up one invoice by its id or invoice number (e.g. INV-1001).", t.getInvoice)))
	r.Register(t.guard(core.PermViewInvoices, typedTool("listInvoices", "List invoices, optionally filtered by status or customer name.", t.listInvoices)))
	r.Register(t.guard(core.PermEditInvoices, typedTool("createInvoice", "Create an invoice for a customer. Line amounts, tax and totals are computed.", t.createInvoice)))
	r.Register(t.guard(core.PermEditInvoices, typedTool("updateInvoice", "Change fields of an existing invoice. Only the given fields change.", t.updateInvoice)))
	r.Register(t.guard(core.PermEditInvoices, typedTool("voidInvoice", "Void an invoice. Voided invoices keep their number but carry no balance.", t.voidInvoice)))
	r.Register(t.guard(core.PermDeleteInvoices, typedTool("deleteInvoice", "Permanently delete an invoice.", t.deleteInvoice)))
	r.Register(t.guard(core.PermEditInvoices, typedTool("emailInvoice", "Email an invoice to the customer, or to the given address. Draft invoices become pending.", t.emailInvoice)))
	r.Register(t.guard(core.PermViewInvoices, typedTool("getInvoiceStats", "Summarize invoices: totals, outstanding and overdue amounts, counts by status.", t.getInvoiceStats)))
	r.Register(t.guard(core.PermViewInvoices, typedTool("getCustomers", "List customers from QuickBooks when connected, otherwise from invoice history.", t.getCustomers)))
	r.Register(t.guard(core.PermViewInvoices, typedTool("getItems", "List products and services from QuickBooks when connected, otherwise from invoice lines.", t.getItems)))
	registerGeneralTools(r)
	return r
}

type invoiceTools struct {
	ToolDeps
}

// guard fails the tool before it runs unless the caller holds perm.
func (t *invoiceTools) guard(perm core.Permission, def ToolDefinition) ToolDefinition {
	next := def.Handler
	def.Handler = func(ctx context.Context, args json.RawMessage) (any, error) {
		if t.Can != nil && !t.Can(perm) {
			return nil, fmt.Errorf("requires %s permission", perm)
		}
		return next(ctx, args)
	}
	return def
}

// ── Parameters ───────────────────────────────────────────────────────────────

type invoiceRefParams struct {
	Invoice string `json:"invoice" jsonschema_description:"Invoice id or invoice number"`
}

type listInvoicesParams struct {
	Status   string `json:"status,omitempty" jsonschema:"enum=draft,enum=pending,enum=paid,enum=overdue,enum=void"`
	Customer string `json:"customer,omitempty" jsonschema_description:"Case-insensitive substring of the customer name"`
	Limit    int    `json:"limit,omitempty" jsonschema:"minimum=1,maximum=100"`
}

type lineItemParams struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity" jsonschema:"exclusiveMinimum=0"`
	UnitPrice   float64 `json:"unit_price" jsonschema:"minimum=0"`
}

type createInvoiceParams struct {
	CustomerName  string           `json:"customer_name"`
	CustomerEmail string           `json:"customer_email,omitempty"`
	DueDate       string           `json:"due_date,omitempty" jsonschema_description:"YYYY-MM-DD; defaults to 30 days after the invoice date"`
	LineItems     []lineItemParams `json:"line_items"`
	TaxRate       *float64         `json:"tax_rate,omitempty" jsonschema_description:"Fraction, e.g. 0.08 for 8%"`
	Notes         string           `json:"notes,omitempty"`
}

type updateInvoiceParams struct {
	Invoice       string           `json:"invoice" jsonschema_description:"Invoice id or invoice number"`
	CustomerName  *string          `json:"customer_name,omitempty"`
	CustomerEmail *string          `json:"customer_email,omitempty"`
	DueDate       *string          `json:"due_date,omitempty"`
	Status        *string          `json:"status,omitempty" jsonschema:"enum=draft,enum=pending,enum=paid,enum=overdue"`
	Notes         *string          `json:"notes,omitempty"`
	LineItems     []lineItemParams `json:"line_items,omitempty"`
}

type emailInvoiceParams struct {
	Invoice string `json:"invoice" jsonschema_description:"Invoice id or invoice number"`
	Email   string `json:"email,omitempty" jsonschema_description:"Recipient; defaults to the customer's email"`
}

type noParams struct{}

func toLineInputs(in []lineItemParams) []core.LineItemInput {
	out := make([]core.LineItemInput, 0, len(in))
	for _, l := range in {
		out = append(out, core.LineItemInput{
			Description: l.Description,
			Quantity:    decimal.NewFromFloat(l.Quantity),
			UnitPrice:   decimal.NewFromFloat(l.UnitPrice),
		})
	}
	return out
}

// describe turns store errors into messages the model can act on.
func describe(ref string, err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("invoice %s not found", ref)
	}
	return err
}

// ── Invoice tools ────────────────────────────────────────────────────────────

func (t *invoiceTools) getInvoice(ctx context.Context, p invoiceRefParams) (any, error) {
	inv, err := t.Invoices.Find(ctx, t.TeamID, p.Invoice)
	if err != nil {
		return nil, describe(p.Invoice, err)
	}
	return inv, nil
}

func (t *invoiceTools) listInvoices(ctx context.Context, p listInvoicesParams) (any, error) {
	f := core.InvoiceFilter{Customer: p.Customer, Limit: p.Limit}
	if p.Status != "" {
		f.Status = core.InvoiceStatus(p.Status)
		if !f.Status.Valid() {
			return nil, fmt.Errorf("unknown status %q", p.Status)
		}
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	invs, err := t.Invoices.List(ctx, t.TeamID, f)
	if err != nil {
		return nil, err
	}
	return map[string]any{"invoices": invs, "count": len(invs)}, nil
}

func (t *invoiceTools) createInvoice(ctx context.Context, p createInvoiceParams) (any, error) {
	in := core.InvoiceInput{
		CustomerName:  p.CustomerName,
		CustomerEmail: p.CustomerEmail,
		DueDate:       p.DueDate,
		LineItems:     toLineInputs(p.LineItems),
		Notes:         p.Notes,
	}
	if p.TaxRate != nil {
		r := decimal.NewFromFloat(*p.TaxRate)
		in.TaxRate = &r
	}
	return t.Invoices.Create(ctx, t.TeamID, t.UserID, in)
}

func (t *invoiceTools) updateInvoice(ctx context.Context, p updateInvoiceParams) (any, error) {
	inv, err := t.Invoices.Find(ctx, t.TeamID, p.Invoice)
	if err != nil {
		return nil, describe(p.Invoice, err)
	}
	upd := core.InvoiceUpdate{
		CustomerName:  p.CustomerName,
		CustomerEmail: p.CustomerEmail,
		DueDate:       p.DueDate,
		Notes:         p.Notes,
	}
	if p.Status != nil {
		s := core.InvoiceStatus(*p.Status)
		upd.Status = &s
	}
	if p.LineItems != nil {
		upd.LineItems = toLineInputs(p.LineItems)
	}
	updated, err := t.Invoices.Update(ctx, t.TeamID, inv.ID, upd)
	if err != nil {
		return nil, describe(p.Invoice, err)
	}
	return updated, nil
}

func (t *invoiceTools) voidInvoice(ctx context.Context, p invoiceRefParams) (any, error) {
	inv, err := t.Invoices.Find(ctx, t.TeamID, p.Invoice)
	if err != nil {
		return nil, describe(p.Invoice, err)
	}
	return t.Invoices.Void(ctx, t.TeamID, inv.ID)
}

func (t *invoiceTools) deleteInvoice(ctx context.Context, p invoiceRefParams) (any, error) {
	inv, err := t.Invoices.Find(ctx, t.TeamID, p.Invoice)
	if err != nil {
		return nil, describe(p.Invoice, err)
	}
	if err := t.Invoices.Delete(ctx, t.TeamID, inv.ID); err != nil {
		return nil, describe(p.Invoice, err)
	}
	return map[string]any{"id": inv.ID, "invoice_number": inv.InvoiceNumber, "deleted": true}, nil
}

// emailInvoice records the send; delivery belongs to the mail provider.
func (t *invoiceTools) emailInvoice(ctx context.Context, p emailInvoiceParams) (any, error) {
	inv, err := t.Invoices.Find(ctx, t.TeamID, p.Invoice)
	if err != nil {
		return nil, describe(p.Invoice, err)
	}
	if inv.Status == core.InvoiceVoid {
		return nil, fmt.Errorf("invoice %s is void and cannot be sent", inv.InvoiceNumber)
	}
	to := strings.TrimSpace(p.Email)
	if to == "" {
		to = inv.CustomerEmail
	}
	if to == "" {
		return nil, fmt.Errorf("invoice %s has no customer email; provide one", inv.InvoiceNumber)
	}

	if inv.Status == core.InvoiceDraft {
		pending := core.InvoicePending
		if inv, err = t.Invoices.Update(ctx, t.TeamID, inv.ID, core.InvoiceUpdate{Status: &pending}); err != nil {
			return nil, err
		}
	}
	return map[string]any{
		"invoice_number": inv.InvoiceNumber,
		"sent_to":        to,
		"status":         inv.Status,
		"message":        fmt.Sprintf("Invoice %s sent to %s", inv.InvoiceNumber, to),
	}, nil
}

func (t *invoiceTools) getInvoiceStats(ctx context.Context, _ noParams) (any, error) {
	return t.Invoices.Stats(ctx, t.TeamID)
}

// ── Directory tools ──────────────────────────────────────────────────────────

type customerSummary struct {
	ID           string          `json:"id,omitempty"`
	Name         string          `json:"name"`
	Email        string          `json:"email,omitempty"`
	Balance      decimal.Decimal `json:"balance"`
	InvoiceCount int             `json:"invoice_count,omitempty"`
}

type itemSummary struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (t *invoiceTools) connected() bool {
	return t.QuickBooks != nil && t.UserID != ""
}

func (t *invoiceTools) getCustomers(ctx context.Context, _ noParams) (any, error) {
	if t.connected() {
		if res := t.QuickBooks.GetCustomers(ctx, t.UserID); res.Success {
			out := make([]customerSummary, 0, len(res.Data))
			for _, c := range res.Data {
				s := customerSummary{ID: c.ID, Name: c.DisplayName, Balance: decimal.NewFromFloat(c.Balance)}
				if c.PrimaryEmailAddr != nil {
					s.Email = c.PrimaryEmailAddr.Address
				}
				out = append(out, s)
			}
			return map[string]any{"source": "quickbooks", "customers": out}, nil
		}
	}

	invs, err := t.Invoices.List(ctx, t.TeamID, core.InvoiceFilter{})
	if err != nil {
		return nil, err
	}
	byName := map[string]*customerSummary{}
	for _, inv := range invs {
		key := strings.ToLower(inv.CustomerName)
		c, ok := byName[key]
		if !ok {
			c = &customerSummary{Name: inv.CustomerName, Email: inv.CustomerEmail}
			byName[key] = c
		}
		c.InvoiceCount++
		c.Balance = c.Balance.Add(inv.Balance)
	}
	out := make([]customerSummary, 0, len(byName))
	for _, c := range byName {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return map[string]any{"source": "invoices", "customers": out}, nil
}

func (t *invoiceTools) getItems(ctx context.Context, _ noParams) (any, error) {
	if t.connected() {
		if res := t.QuickBooks.GetItems(ctx, t.UserID); res.Success {
			out := make([]itemSummary, 0, len(res.Data))
			for _, it := range res.Data {
				out = append(out, itemSummary{
					ID:          it.ID,
					Name:        it.Name,
					Description: it.Description,
					UnitPrice:   decimal.NewFromFloat(it.UnitPrice),
				})
			}
			return map[string]any{"source": "quickbooks", "items": out}, nil
		}
	}

	invs, err := t.Invoices.List(ctx, t.TeamID, core.InvoiceFilter{})
	if err != nil {
		return nil, err
	}
	// List is newest first, so the first price seen for a line is the latest.
	seen := map[string]bool{}
	out := []itemSummary{}
	for _, inv := range invs {
		for _, l := range inv.LineItems {
			key := strings.ToLower(l.Description)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, itemSummary{Name: l.Description, UnitPrice: l.UnitPrice})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return map[string]any{"source": "invoices", "items": out}, nil
}
