package core

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DemoTeamID scopes the seeded demo invoices of the in-memory store.
const DemoTeamID = "demo"

// MemoryInvoiceStore is an InvoiceStore held in process memory.
type MemoryInvoiceStore struct {
	mu    sync.RWMutex
	teams map[string]map[string]*Invoice
}

func NewMemoryInvoiceStore() *MemoryInvoiceStore {
	return &MemoryInvoiceStore{teams: make(map[string]map[string]*Invoice)}
}

func cloneInvoice(inv *Invoice) *Invoice {
	c := *inv
	c.LineItems = append([]LineItem(nil), inv.LineItems...)
	return &c
}

func (m *MemoryInvoiceStore) List(_ context.Context, teamID string, f InvoiceFilter) ([]Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Invoice{}
	for _, inv := range m.teams[teamID] {
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		if f.Customer != "" && !strings.Contains(strings.ToLower(inv.CustomerName), strings.ToLower(f.Customer)) {
			continue
		}
		out = append(out, *cloneInvoice(inv))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InvoiceDate.Equal(out[j].InvoiceDate) {
			return out[i].InvoiceNumber > out[j].InvoiceNumber
		}
		return out[i].InvoiceDate.After(out[j].InvoiceDate)
	})
	return page(out, f.Offset, f.Limit), nil
}

func page(in []Invoice, offset, limit int) []Invoice {
	if offset > 0 {
		if offset >= len(in) {
			return []Invoice{}
		}
		in = in[offset:]
	}
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

func (m *MemoryInvoiceStore) Get(_ context.Context, teamID, id string) (*Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.teams[teamID][id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneInvoice(inv), nil
}

func (m *MemoryInvoiceStore) Create(_ context.Context, inv *Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	team := m.teams[inv.TeamID]
	if team == nil {
		team = make(map[string]*Invoice)
		m.teams[inv.TeamID] = team
	}
	for _, existing := range team {
		if strings.EqualFold(existing.InvoiceNumber, inv.InvoiceNumber) {
			return invalid("invoice_number", "already exists")
		}
	}
	team[inv.ID] = cloneInvoice(inv)
	return nil
}

func (m *MemoryInvoiceStore) Update(_ context.Context, inv *Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.teams[inv.TeamID][inv.ID]; !ok {
		return ErrNotFound
	}
	m.teams[inv.TeamID][inv.ID] = cloneInvoice(inv)
	return nil
}

func (m *MemoryInvoiceStore) Delete(_ context.Context, teamID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.teams[teamID][id]; !ok {
		return ErrNotFound
	}
	delete(m.teams[teamID], id)
	return nil
}

type demoLine struct {
	desc  string
	qty   int64
	price string
}

type demoInvoice struct {
	number, customer, email string
	issuedDaysAgo, termDays int
	status                  InvoiceStatus
	lines                   []demoLine
}

var demoInvoices = []demoInvoice{
	{"INV-1001", "Acme Corporation", "billing@acme.example", 45, 30, InvoicePaid, []demoLine{
		{"Website redesign", 1, "2500.00"},
		{"Hosting (12 months)", 12, "25.00"},
	}},
	{"INV-1002", "Globex Industries", "ap@globex.example", 40, 30, InvoicePending, []demoLine{
		{"Consulting hours", 16, "150.00"},
	}},
	{"INV-1003", "Initech LLC", "accounts@initech.example", 20, 30, InvoicePending, []demoLine{
		{"Software license", 5, "199.00"},
		{"Onboarding session", 2, "300.00"},
	}},
	{"INV-1004", "Umbrella Co", "finance@umbrella.example", 10, 15, InvoiceDraft, []demoLine{
		{"Security audit", 1, "4200.00"},
	}},
	{"INV-1005", "Acme Corporation", "billing@acme.example", 5, 30, InvoicePending, []demoLine{
		{"Maintenance retainer", 1, "800.00"},
		{"Additional support hours", 4, "95.50"},
	}},
}

// SeedDemoInvoices loads the demo data set under DemoTeamID with dates relative to now.
func SeedDemoInvoices(m *MemoryInvoiceStore, now time.Time) {
	today := truncateDay(now)
	for _, d := range demoInvoices {
		in := make([]LineItemInput, 0, len(d.lines))
		for _, l := range d.lines {
			in = append(in, LineItemInput{
				Description: l.desc,
				Quantity:    decimal.NewFromInt(l.qty),
				UnitPrice:   decimal.RequireFromString(l.price),
			})
		}
		lines, subtotal, tax, total := ComputeLines(in, DefaultTaxRate)
		issued := today.AddDate(0, 0, -d.issuedDaysAgo)
		inv := &Invoice{
			ID:            uuid.NewString(),
			TeamID:        DemoTeamID,
			InvoiceNumber: d.number,
			CustomerName:  d.customer,
			CustomerEmail: d.email,
			InvoiceDate:   issued,
			DueDate:       issued.AddDate(0, 0, d.termDays),
			LineItems:     lines,
			Subtotal:      subtotal,
			TaxRate:       DefaultTaxRate,
			Tax:           tax,
			TotalAmount:   total,
			Balance:       total,
			Status:        d.status,
			CreatedBy:     "system",
			CreatedAt:     issued,
			UpdatedAt:     issued,
		}
		if d.status.Settled() {
			inv.Balance = decimal.Zero
		}
		_ = m.Create(context.Background(), inv)
	}
}

// NewDemoInvoiceStore returns a memory store already holding the demo data.
func NewDemoInvoiceStore() *MemoryInvoiceStore {
	m := NewMemoryInvoiceStore()
	SeedDemoInvoices(m, time.Now())
	return m
}
