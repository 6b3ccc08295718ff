package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"invoice-agent/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

func TestComputeLines_TotalInvariant(t *testing.T) {
	lines, subtotal, tax, total := core.ComputeLines([]core.LineItemInput{
		{Description: "Consulting", Quantity: d("10"), UnitPrice: d("150.00")},
		{Description: "Travel", Quantity: d("1"), UnitPrice: d("99.99")},
	}, core.DefaultTaxRate)

	require.Len(t, lines, 2)
	assert.True(t, d("1500.00").Equal(lines[0].Amount))
	assert.True(t, d("1599.99").Equal(subtotal))
	assert.True(t, d("128.00").Equal(tax), "tax = round(1599.99 * 0.08, 2), got %s", tax)
	assert.True(t, subtotal.Add(tax).Equal(total))
}

func TestInvoiceService_Create(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInvoiceService(core.NewMemoryInvoiceStore())

	inv, err := svc.Create(ctx, "team-1", "user-1", core.InvoiceInput{
		CustomerName:  "Acme",
		CustomerEmail: "billing@acme.example",
		InvoiceDate:   "2025-03-01",
		DueDate:       "2025-03-31",
		LineItems: []core.LineItemInput{
			{Description: "Widget", Quantity: d("3"), UnitPrice: d("100")},
		},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, inv.ID)
	assert.NotEmpty(t, inv.InvoiceNumber)
	assert.Equal(t, core.InvoiceDraft, inv.Status)
	assert.True(t, d("300").Equal(inv.Subtotal))
	assert.True(t, d("24").Equal(inv.Tax))
	assert.True(t, d("324").Equal(inv.TotalAmount))
	assert.True(t, inv.TotalAmount.Equal(inv.Balance))
	assert.Equal(t, "2025-03-31", inv.DueDate.Format(core.DateLayout))

	got, err := svc.Get(ctx, "team-1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.InvoiceNumber, got.InvoiceNumber)

	_, err = svc.Get(ctx, "team-2", inv.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestInvoiceService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInvoiceService(core.NewMemoryInvoiceStore())
	line := []core.LineItemInput{{Description: "x", Quantity: d("1"), UnitPrice: d("1")}}

	tests := []struct {
		name  string
		in    core.InvoiceInput
		field string
	}{
		{"missing customer", core.InvoiceInput{LineItems: line}, "customer_name"},
		{"no lines", core.InvoiceInput{CustomerName: "A"}, "line_items"},
		{"zero quantity", core.InvoiceInput{CustomerName: "A", LineItems: []core.LineItemInput{
			{Description: "x", Quantity: d("0"), UnitPrice: d("1")},
		}}, "line_items[0].quantity"},
		{"bad email", core.InvoiceInput{CustomerName: "A", CustomerEmail: "nope", LineItems: line}, "customer_email"},
		{"bad date", core.InvoiceInput{CustomerName: "A", InvoiceDate: "03/01/2025", LineItems: line}, "invoice_date"},
		{"due before issue", core.InvoiceInput{CustomerName: "A", InvoiceDate: "2025-03-10", DueDate: "2025-03-01", LineItems: line}, "due_date"},
		{"tax over 100%", core.InvoiceInput{CustomerName: "A", TaxRate: ptr(d("1.5")), LineItems: line}, "tax_rate"},
		{"void on create", core.InvoiceInput{CustomerName: "A", Status: core.InvoiceVoid, LineItems: line}, "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, "team-1", "user-1", tt.in)
			var ve *core.ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestInvoiceService_UpdateRecomputesTotals(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInvoiceService(core.NewMemoryInvoiceStore())

	inv, err := svc.Create(ctx, "t", "u", core.InvoiceInput{
		CustomerName: "Acme",
		LineItems:    []core.LineItemInput{{Description: "A", Quantity: d("1"), UnitPrice: d("100")}},
	})
	require.NoError(t, err)

	upd, err := svc.Update(ctx, "t", inv.ID, core.InvoiceUpdate{
		LineItems: []core.LineItemInput{
			{Description: "A", Quantity: d("2"), UnitPrice: d("100")},
			{Description: "B", Quantity: d("1"), UnitPrice: d("50")},
		},
		Notes: ptr("net 30"),
	})
	require.NoError(t, err)
	assert.Len(t, upd.LineItems, 2)
	assert.True(t, d("250").Equal(upd.Subtotal))
	assert.True(t, d("20").Equal(upd.Tax))
	assert.True(t, d("270").Equal(upd.TotalAmount))
	assert.True(t, d("270").Equal(upd.Balance))
	assert.Equal(t, "net 30", upd.Notes)

	paid, err := svc.Update(ctx, "t", inv.ID, core.InvoiceUpdate{Status: ptr(core.InvoicePaid)})
	require.NoError(t, err)
	assert.True(t, paid.Balance.IsZero())

	_, err = svc.Update(ctx, "t", inv.ID, core.InvoiceUpdate{TaxRate: ptr(d("0.1"))})
	assert.Error(t, err, "paid invoices cannot be re-priced")
}

func TestInvoiceService_Void(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInvoiceService(core.NewMemoryInvoiceStore())

	inv, err := svc.Create(ctx, "t", "u", core.InvoiceInput{
		CustomerName: "Acme",
		Status:       core.InvoicePending,
		LineItems:    []core.LineItemInput{{Description: "A", Quantity: d("1"), UnitPrice: d("10")}},
	})
	require.NoError(t, err)

	voided, err := svc.Void(ctx, "t", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, core.InvoiceVoid, voided.Status)
	assert.True(t, voided.Balance.IsZero())

	_, err = svc.Update(ctx, "t", inv.ID, core.InvoiceUpdate{Notes: ptr("x")})
	assert.Error(t, err)

	require.NoError(t, svc.Delete(ctx, "t", inv.ID))
	assert.ErrorIs(t, svc.Delete(ctx, "t", inv.ID), core.ErrNotFound)
}

func TestInvoiceService_MalformedIDIsNotFound(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInvoiceService(core.NewMemoryInvoiceStore())

	for _, id := range []string{"", "not-a-uuid", "123", "INV-1001"} {
		_, err := svc.Get(ctx, "t", id)
		assert.ErrorIs(t, err, core.ErrNotFound, id)
		_, err = svc.Update(ctx, "t", id, core.InvoiceUpdate{Notes: ptr("x")})
		assert.ErrorIs(t, err, core.ErrNotFound, id)
		_, err = svc.Void(ctx, "t", id)
		assert.ErrorIs(t, err, core.ErrNotFound, id)
		assert.ErrorIs(t, svc.Delete(ctx, "t", id), core.ErrNotFound, id)
	}
}

func TestInvoiceService_FindByNumber(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInvoiceService(core.NewDemoInvoiceStore())

	inv, err := svc.Find(ctx, core.DemoTeamID, "inv-1002")
	require.NoError(t, err)
	assert.Equal(t, "Globex Industries", inv.CustomerName)

	byID, err := svc.Find(ctx, core.DemoTeamID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.InvoiceNumber, byID.InvoiceNumber)

	_, err = svc.Find(ctx, core.DemoTeamID, "INV-9999")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestComputeStats(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	day := func(s string) time.Time {
		tm, _ := time.Parse(core.DateLayout, s)
		return tm
	}
	invoices := []core.Invoice{
		{Status: core.InvoicePaid, TotalAmount: d("100"), Balance: d("0"), DueDate: day("2025-06-01")},
		{Status: core.InvoicePending, TotalAmount: d("200"), Balance: d("200"), DueDate: day("2025-06-01")},
		{Status: core.InvoicePending, TotalAmount: d("50"), Balance: d("50"), DueDate: day("2025-07-01")},
		{Status: core.InvoiceVoid, TotalAmount: d("999"), Balance: d("0"), DueDate: day("2025-06-01")},
	}

	st := core.ComputeStats(invoices, now)
	assert.Equal(t, 3, st.Count)
	assert.True(t, d("350").Equal(st.TotalAmount))
	assert.True(t, d("250").Equal(st.Outstanding))
	assert.True(t, d("100").Equal(st.PaidAmount))
	assert.Equal(t, 1, st.OverdueCount)
	assert.True(t, d("200").Equal(st.OverdueTotal))
	assert.Equal(t, 1, st.ByStatus[core.InvoiceVoid])
	assert.Equal(t, 1, st.ByStatus[core.InvoiceOverdue])
}

func TestMemoryInvoiceStore_ListFilters(t *testing.T) {
	ctx := context.Background()
	store := core.NewDemoInvoiceStore()

	all, err := store.List(ctx, core.DemoTeamID, core.InvoiceFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, "INV-1005", all[0].InvoiceNumber, "newest first")

	pending, err := store.List(ctx, core.DemoTeamID, core.InvoiceFilter{Status: core.InvoicePending})
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	acme, err := store.List(ctx, core.DemoTeamID, core.InvoiceFilter{Customer: "acme"})
	require.NoError(t, err)
	assert.Len(t, acme, 2)

	paged, err := store.List(ctx, core.DemoTeamID, core.InvoiceFilter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, paged, 1)

	// Mutating a returned invoice must not leak into the store.
	all[0].CustomerName = "changed"
	again, err := store.Get(ctx, core.DemoTeamID, all[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corporation", again.CustomerName)
}
