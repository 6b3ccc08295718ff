package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgInvoiceStore struct {
	pool *pgxpool.Pool
}

// NewPgInvoiceStore constructs an InvoiceStore over the invoices and invoice_lines tables.
func NewPgInvoiceStore(pool *pgxpool.Pool) InvoiceStore {
	return &pgInvoiceStore{pool: pool}
}

const invoiceColumns = `id, team_id, invoice_number, customer_name, customer_email, invoice_date, due_date,
	subtotal, tax_rate, tax, total_amount, balance, status, notes, created_by, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	inv := &Invoice{}
	err := row.Scan(&inv.ID, &inv.TeamID, &inv.InvoiceNumber, &inv.CustomerName, &inv.CustomerEmail,
		&inv.InvoiceDate, &inv.DueDate, &inv.Subtotal, &inv.TaxRate, &inv.Tax, &inv.TotalAmount,
		&inv.Balance, &inv.Status, &inv.Notes, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return inv, nil
}

func (s *pgInvoiceStore) List(ctx context.Context, teamID string, f InvoiceFilter) ([]Invoice, error) {
	limit := any(nil)
	if f.Limit > 0 {
		limit = f.Limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE team_id = $1
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR customer_name ILIKE '%' || $3 || '%')
		ORDER BY invoice_date DESC, invoice_number DESC
		LIMIT $4 OFFSET $5`,
		teamID, string(f.Status), f.Customer, limit, f.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices for team %s: %w", teamID, err)
	}
	defer rows.Close()

	invoices := []Invoice{}
	index := map[string]int{}
	var ids []string
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		inv.LineItems = []LineItem{}
		index[inv.ID] = len(invoices)
		ids = append(ids, inv.ID)
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return invoices, nil
	}

	lineRows, err := s.pool.Query(ctx, `
		SELECT invoice_id, description, quantity, unit_price, amount
		FROM invoice_lines
		WHERE invoice_id::text = ANY($1::text[])
		ORDER BY invoice_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice lines: %w", err)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var (
			invoiceID string
			l         LineItem
		)
		if err := lineRows.Scan(&invoiceID, &l.Description, &l.Quantity, &l.UnitPrice, &l.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan invoice line: %w", err)
		}
		i := index[invoiceID]
		invoices[i].LineItems = append(invoices[i].LineItems, l)
	}
	return invoices, lineRows.Err()
}

func (s *pgInvoiceStore) Get(ctx context.Context, teamID, id string) (*Invoice, error) {
	inv, err := scanInvoice(s.pool.QueryRow(ctx,
		"SELECT "+invoiceColumns+" FROM invoices WHERE team_id = $1 AND id = $2", teamID, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invoice %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT description, quantity, unit_price, amount
		FROM invoice_lines
		WHERE invoice_id = $1
		ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load lines of invoice %s: %w", id, err)
	}
	defer rows.Close()

	inv.LineItems = []LineItem{}
	for rows.Next() {
		var l LineItem
		if err := rows.Scan(&l.Description, &l.Quantity, &l.UnitPrice, &l.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan invoice line: %w", err)
		}
		inv.LineItems = append(inv.LineItems, l)
	}
	return inv, rows.Err()
}

func insertLines(ctx context.Context, tx pgx.Tx, inv *Invoice) error {
	for i, l := range inv.LineItems {
		if _, err := tx.Exec(ctx, `
			INSERT INTO invoice_lines (invoice_id, position, description, quantity, unit_price, amount)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			inv.ID, i+1, l.Description, l.Quantity, l.UnitPrice, l.Amount,
		); err != nil {
			return fmt.Errorf("failed to insert invoice line %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *pgInvoiceStore) Create(ctx context.Context, inv *Invoice) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO invoices (id, team_id, invoice_number, customer_name, customer_email, invoice_date, due_date,
			subtotal, tax_rate, tax, total_amount, balance, status, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		inv.ID, inv.TeamID, inv.InvoiceNumber, inv.CustomerName, inv.CustomerEmail, inv.InvoiceDate, inv.DueDate,
		inv.Subtotal, inv.TaxRate, inv.Tax, inv.TotalAmount, inv.Balance, string(inv.Status), inv.Notes,
		inv.CreatedBy, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return invalid("invoice_number", "already exists")
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	if err := insertLines(ctx, tx, inv); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit invoice: %w", err)
	}
	return nil
}

func (s *pgInvoiceStore) Update(ctx context.Context, inv *Invoice) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE invoices
		SET customer_name = $3, customer_email = $4, due_date = $5, subtotal = $6, tax_rate = $7,
		    tax = $8, total_amount = $9, balance = $10, status = $11, notes = $12, updated_at = $13
		WHERE team_id = $1 AND id = $2`,
		inv.TeamID, inv.ID, inv.CustomerName, inv.CustomerEmail, inv.DueDate, inv.Subtotal, inv.TaxRate,
		inv.Tax, inv.TotalAmount, inv.Balance, string(inv.Status), inv.Notes, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice %s: %w", inv.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx, "DELETE FROM invoice_lines WHERE invoice_id = $1", inv.ID); err != nil {
		return fmt.Errorf("failed to replace lines of invoice %s: %w", inv.ID, err)
	}
	if err := insertLines(ctx, tx, inv); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit invoice update: %w", err)
	}
	return nil
}

func (s *pgInvoiceStore) Delete(ctx context.Context, teamID, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM invoices WHERE team_id = $1 AND id = $2", teamID, id)
	if err != nil {
		return fmt.Errorf("failed to delete invoice %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
