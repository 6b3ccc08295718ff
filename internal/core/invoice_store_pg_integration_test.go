package core_test

import (
	"context"
	"errors"
	"testing"

	"invoice-agent/internal/core"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgInvoiceStore(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	owner := uuid.NewString()
	team, err := core.NewTeamService(pool).CreateTeam(ctx, "Billing", "", owner)
	require.NoError(t, err)

	svc := core.NewInvoiceService(core.NewPgInvoiceStore(pool))

	inv, err := svc.Create(ctx, team.ID, owner, core.InvoiceInput{
		InvoiceNumber: "INV-2001",
		CustomerName:  "Acme",
		InvoiceDate:   "2025-02-01",
		DueDate:       "2025-03-01",
		Status:        core.InvoicePending,
		LineItems: []core.LineItemInput{
			{Description: "Design", Quantity: d("2"), UnitPrice: d("500")},
			{Description: "Hosting", Quantity: d("1"), UnitPrice: d("20")},
		},
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, team.ID, inv.ID)
	require.NoError(t, err)
	require.Len(t, got.LineItems, 2)
	assert.Equal(t, "Design", got.LineItems[0].Description)
	assert.True(t, d("1020").Equal(got.Subtotal))
	assert.True(t, d("81.60").Equal(got.Tax))
	assert.True(t, d("1101.60").Equal(got.TotalAmount))

	_, err = svc.Create(ctx, team.ID, owner, core.InvoiceInput{
		InvoiceNumber: "INV-2001",
		CustomerName:  "Dup",
		LineItems:     []core.LineItemInput{{Description: "x", Quantity: d("1"), UnitPrice: d("1")}},
	})
	var ve *core.ValidationError
	assert.True(t, errors.As(err, &ve), "duplicate invoice number")

	upd, err := svc.Update(ctx, team.ID, inv.ID, core.InvoiceUpdate{
		LineItems: []core.LineItemInput{{Description: "Design", Quantity: d("1"), UnitPrice: d("500")}},
	})
	require.NoError(t, err)
	assert.True(t, d("540").Equal(upd.TotalAmount))

	list, err := svc.List(ctx, team.ID, core.InvoiceFilter{Status: core.InvoicePending})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].LineItems, 1)

	require.NoError(t, svc.Delete(ctx, team.ID, inv.ID))
	_, err = svc.Get(ctx, team.ID, inv.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
