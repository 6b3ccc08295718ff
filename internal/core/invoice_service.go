package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type invoiceService struct {
	store InvoiceStore
	now   func() time.Time
}

// NewInvoiceService wraps store with validation and totals computation.
func NewInvoiceService(store InvoiceStore) InvoiceService {
	return &invoiceService{store: store, now: time.Now}
}

// ComputeLines derives each line amount and the invoice totals.
func ComputeLines(in []LineItemInput, taxRate decimal.Decimal) (lines []LineItem, subtotal, tax, total decimal.Decimal) {
	lines = make([]LineItem, 0, len(in))
	for _, l := range in {
		amount := l.Quantity.Mul(l.UnitPrice).Round(2)
		lines = append(lines, LineItem{
			Description: strings.TrimSpace(l.Description),
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Amount:      amount,
		})
		subtotal = subtotal.Add(amount)
	}
	tax = subtotal.Mul(taxRate).Round(2)
	total = subtotal.Add(tax)
	return lines, subtotal, tax, total
}

func validateLines(in []LineItemInput) error {
	if len(in) == 0 {
		return invalid("line_items", "at least one line item is required")
	}
	for i, l := range in {
		if strings.TrimSpace(l.Description) == "" {
			return invalid(fmt.Sprintf("line_items[%d].description", i), "is required")
		}
		if !l.Quantity.IsPositive() {
			return invalid(fmt.Sprintf("line_items[%d].quantity", i), "must be greater than zero")
		}
		if l.UnitPrice.IsNegative() {
			return invalid(fmt.Sprintf("line_items[%d].unit_price", i), "cannot be negative")
		}
	}
	return nil
}

func validateTaxRate(r decimal.Decimal) error {
	if r.IsNegative() || r.GreaterThan(decimal.NewFromInt(1)) {
		return invalid("tax_rate", "must be between 0 and 1")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return nil
	}
	return checkVar("customer_email", email, "email")
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, invalid(field, "must be a date in YYYY-MM-DD format")
	}
	return t, nil
}

func (s *invoiceService) List(ctx context.Context, teamID string, f InvoiceFilter) ([]Invoice, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid("status", "unknown invoice status")
	}
	return s.store.List(ctx, teamID, f)
}

func (s *invoiceService) Get(ctx context.Context, teamID, id string) (*Invoice, error) {
	if err := lookupID(id); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, teamID, id)
}

func (s *invoiceService) Find(ctx context.Context, teamID, ref string) (*Invoice, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, invalid("invoice", "an invoice id or number is required")
	}
	if lookupID(ref) == nil {
		inv, err := s.store.Get(ctx, teamID, ref)
		if !errors.Is(err, ErrNotFound) {
			return inv, err
		}
	}

	all, err := s.store.List(ctx, teamID, InvoiceFilter{})
	if err != nil {
		return nil, err
	}
	for i := range all {
		if strings.EqualFold(all[i].InvoiceNumber, ref) {
			return &all[i], nil
		}
	}
	return nil, ErrNotFound
}

func (s *invoiceService) Create(ctx context.Context, teamID, createdBy string, in InvoiceInput) (*Invoice, error) {
	name := strings.TrimSpace(in.CustomerName)
	if name == "" {
		return nil, invalid("customer_name", "is required")
	}
	email := strings.TrimSpace(in.CustomerEmail)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validateLines(in.LineItems); err != nil {
		return nil, err
	}

	taxRate := DefaultTaxRate
	if in.TaxRate != nil {
		taxRate = *in.TaxRate
	}
	if err := validateTaxRate(taxRate); err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = InvoiceDraft
	}
	if !status.Valid() || status == InvoiceVoid {
		return nil, invalid("status", "must be draft, pending, paid or overdue")
	}

	now := s.now()
	invoiceDate := truncateDay(now)
	if in.InvoiceDate != "" {
		d, err := parseDate("invoice_date", in.InvoiceDate)
		if err != nil {
			return nil, err
		}
		invoiceDate = d
	}
	dueDate := invoiceDate.AddDate(0, 0, 30)
	if in.DueDate != "" {
		d, err := parseDate("due_date", in.DueDate)
		if err != nil {
			return nil, err
		}
		dueDate = d
	}
	if dueDate.Before(invoiceDate) {
		return nil, invalid("due_date", "cannot be before invoice_date")
	}

	number := strings.TrimSpace(in.InvoiceNumber)
	if number == "" {
		number = "INV-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	}

	lines, subtotal, tax, total := ComputeLines(in.LineItems, taxRate)
	inv := &Invoice{
		ID:            uuid.NewString(),
		TeamID:        teamID,
		InvoiceNumber: number,
		CustomerName:  name,
		CustomerEmail: email,
		InvoiceDate:   invoiceDate,
		DueDate:       dueDate,
		LineItems:     lines,
		Subtotal:      subtotal,
		TaxRate:       taxRate,
		Tax:           tax,
		TotalAmount:   total,
		Balance:       total,
		Status:        status,
		Notes:         strings.TrimSpace(in.Notes),
		CreatedBy:     createdBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if status.Settled() {
		inv.Balance = decimal.Zero
	}

	if err := s.store.Create(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invoiceService) Update(ctx context.Context, teamID, id string, upd InvoiceUpdate) (*Invoice, error) {
	if err := lookupID(id); err != nil {
		return nil, err
	}
	inv, err := s.store.Get(ctx, teamID, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == InvoiceVoid {
		return nil, invalid("status", "void invoices cannot be modified")
	}

	if upd.CustomerName != nil {
		name := strings.TrimSpace(*upd.CustomerName)
		if name == "" {
			return nil, invalid("customer_name", "cannot be empty")
		}
		inv.CustomerName = name
	}
	if upd.CustomerEmail != nil {
		email := strings.TrimSpace(*upd.CustomerEmail)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		inv.CustomerEmail = email
	}
	if upd.DueDate != nil {
		d, err := parseDate("due_date", *upd.DueDate)
		if err != nil {
			return nil, err
		}
		if d.Before(inv.InvoiceDate) {
			return nil, invalid("due_date", "cannot be before invoice_date")
		}
		inv.DueDate = d
	}
	if upd.Notes != nil {
		inv.Notes = strings.TrimSpace(*upd.Notes)
	}

	recompute := false
	lines := make([]LineItemInput, 0, len(inv.LineItems))
	for _, l := range inv.LineItems {
		lines = append(lines, LineItemInput{Description: l.Description, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	if upd.LineItems != nil {
		if err := validateLines(upd.LineItems); err != nil {
			return nil, err
		}
		lines = upd.LineItems
		recompute = true
	}
	if upd.TaxRate != nil {
		if err := validateTaxRate(*upd.TaxRate); err != nil {
			return nil, err
		}
		inv.TaxRate = *upd.TaxRate
		recompute = true
	}
	if recompute && inv.Status == InvoicePaid {
		return nil, invalid("line_items", "paid invoices cannot be re-priced")
	}
	if recompute {
		inv.LineItems, inv.Subtotal, inv.Tax, inv.TotalAmount = ComputeLines(lines, inv.TaxRate)
		inv.Balance = inv.TotalAmount
	}

	if upd.Status != nil && *upd.Status != inv.Status {
		st := *upd.Status
		if !st.Valid() {
			return nil, invalid("status", "unknown invoice status")
		}
		inv.Status = st
		if st.Settled() {
			inv.Balance = decimal.Zero
		} else {
			inv.Balance = inv.TotalAmount
		}
	}

	inv.UpdatedAt = s.now()
	if err := s.store.Update(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invoiceService) Void(ctx context.Context, teamID, id string) (*Invoice, error) {
	if err := lookupID(id); err != nil {
		return nil, err
	}
	inv, err := s.store.Get(ctx, teamID, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == InvoiceVoid {
		return inv, nil
	}
	inv.Status = InvoiceVoid
	inv.Balance = decimal.Zero
	inv.UpdatedAt = s.now()
	if err := s.store.Update(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invoiceService) Delete(ctx context.Context, teamID, id string) error {
	if err := lookupID(id); err != nil {
		return err
	}
	return s.store.Delete(ctx, teamID, id)
}

func (s *invoiceService) Stats(ctx context.Context, teamID string) (*InvoiceStats, error) {
	all, err := s.store.List(ctx, teamID, InvoiceFilter{})
	if err != nil {
		return nil, err
	}
	return ComputeStats(all, s.now()), nil
}

// ComputeStats aggregates invoices as of now.
func ComputeStats(invoices []Invoice, now time.Time) *InvoiceStats {
	st := &InvoiceStats{ByStatus: map[InvoiceStatus]int{}}
	for i := range invoices {
		inv := &invoices[i]
		status := inv.EffectiveStatus(now)
		st.ByStatus[status]++
		if status == InvoiceVoid {
			continue
		}
		st.Count++
		st.TotalAmount = st.TotalAmount.Add(inv.TotalAmount)
		st.Outstanding = st.Outstanding.Add(inv.Balance)
		switch status {
		case InvoicePaid:
			st.PaidAmount = st.PaidAmount.Add(inv.TotalAmount)
		case InvoiceOverdue:
			st.OverdueCount++
			st.OverdueTotal = st.OverdueTotal.Add(inv.Balance)
		}
	}
	return st
}
