package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of an internal invoice.
type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "draft"
	InvoicePending InvoiceStatus = "pending"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
	InvoiceVoid    InvoiceStatus = "void"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceDraft, InvoicePending, InvoicePaid, InvoiceOverdue, InvoiceVoid:
		return true
	}
	return false
}

// Settled reports whether the invoice carries no open balance.
func (s InvoiceStatus) Settled() bool {
	return s == InvoicePaid || s == InvoiceVoid
}

// DefaultTaxRate applies when an invoice is created without an explicit rate.
var DefaultTaxRate = decimal.RequireFromString("0.08")

// DateLayout is the wire format of invoice and due dates.
const DateLayout = "2006-01-02"

// LineItem is one billed line. Amount is always Quantity × UnitPrice.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// Invoice is a team's internal, database-backed invoice.
//
// Totals invariants:
//
//	Subtotal    = Σ LineItems[i].Amount
//	Tax         = round(Subtotal × TaxRate, 2)
//	TotalAmount = Subtotal + Tax
type Invoice struct {
	ID            string          `json:"id"`
	TeamID        string          `json:"team_id"`
	InvoiceNumber string          `json:"invoice_number"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	InvoiceDate   time.Time       `json:"invoice_date"`
	DueDate       time.Time       `json:"due_date"`
	LineItems     []LineItem      `json:"line_items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	Tax           decimal.Decimal `json:"tax"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Balance       decimal.Decimal `json:"balance"`
	Status        InvoiceStatus   `json:"status"`
	Notes         string          `json:"notes"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// EffectiveStatus reports a pending invoice past its due date as overdue.
func (i *Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	if i.Status == InvoicePending && i.DueDate.Before(truncateDay(now)) {
		return InvoiceOverdue
	}
	return i.Status
}

// LineItemInput is a line as supplied by a caller; the amount is derived.
type LineItemInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// InvoiceInput creates an invoice. Empty InvoiceNumber is generated; empty
// InvoiceDate is today; empty Status is draft; nil TaxRate is DefaultTaxRate.
type InvoiceInput struct {
	InvoiceNumber string           `json:"invoice_number"`
	CustomerName  string           `json:"customer_name"`
	CustomerEmail string           `json:"customer_email"`
	InvoiceDate   string           `json:"invoice_date"`
	DueDate       string           `json:"due_date"`
	LineItems     []LineItemInput  `json:"line_items"`
	TaxRate       *decimal.Decimal `json:"tax_rate,omitempty"`
	Status        InvoiceStatus    `json:"status"`
	Notes         string           `json:"notes"`
}

// InvoiceUpdate changes the non-nil fields. A non-nil LineItems replaces every line.
type InvoiceUpdate struct {
	CustomerName  *string          `json:"customer_name,omitempty"`
	CustomerEmail *string          `json:"customer_email,omitempty"`
	DueDate       *string          `json:"due_date,omitempty"`
	LineItems     []LineItemInput  `json:"line_items,omitempty"`
	TaxRate       *decimal.Decimal `json:"tax_rate,omitempty"`
	Status        *InvoiceStatus   `json:"status,omitempty"`
	Notes         *string          `json:"notes,omitempty"`
}

// InvoiceFilter narrows List. Zero Limit means no limit.
type InvoiceFilter struct {
	Status   InvoiceStatus
	Customer string
	Limit    int
	Offset   int
}

// InvoiceStats summarizes a team's invoices. Void invoices are counted only in ByStatus.
type InvoiceStats struct {
	Count        int                   `json:"count"`
	TotalAmount  decimal.Decimal       `json:"total_amount"`
	Outstanding  decimal.Decimal       `json:"outstanding"`
	PaidAmount   decimal.Decimal       `json:"paid_amount"`
	OverdueCount int                   `json:"overdue_count"`
	OverdueTotal decimal.Decimal       `json:"overdue_amount"`
	ByStatus     map[InvoiceStatus]int `json:"by_status"`
}

// InvoiceStore persists invoices. Implementations return ErrNotFound for unknown ids.
type InvoiceStore interface {
	List(ctx context.Context, teamID string, f InvoiceFilter) ([]Invoice, error)
	Get(ctx context.Context, teamID, id string) (*Invoice, error)
	Create(ctx context.Context, inv *Invoice) error
	Update(ctx context.Context, inv *Invoice) error
	Delete(ctx context.Context, teamID, id string) error
}

// InvoiceService validates input and keeps the totals invariants.
type InvoiceService interface {
	List(ctx context.Context, teamID string, f InvoiceFilter) ([]Invoice, error)
	Get(ctx context.Context, teamID, id string) (*Invoice, error)
	// Find matches ref against the invoice id first, then the invoice number.
	Find(ctx context.Context, teamID, ref string) (*Invoice, error)
	Create(ctx context.Context, teamID, createdBy string, in InvoiceInput) (*Invoice, error)
	Update(ctx context.Context, teamID, id string, upd InvoiceUpdate) (*Invoice, error)
	Void(ctx context.Context, teamID, id string) (*Invoice, error)
	Delete(ctx context.Context, teamID, id string) error
	Stats(ctx context.Context, teamID string) (*InvoiceStats, error)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
