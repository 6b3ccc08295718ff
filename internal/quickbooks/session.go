package quickbooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"invoice-agent/internal/core"
	"invoice-agent/internal/metrics"
	"invoice-agent/internal/tokencrypt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TokenStore is the persistence the session manager needs. core.QuickBooksTokenStore satisfies it.
type TokenStore interface {
	StoreTokens(ctx context.Context, userID, accessToken, refreshToken, realmID string, expiresAt time.Time) error
	GetTokens(ctx context.Context, userID string) (*core.DecryptedTokens, error)
	UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error
	DeleteTokens(ctx context.Context, userID string) error
}

// Session is a user's live connection. It is rebuilt for every operation and
// never cached. Token values are not serialized.
type Session struct {
	UserID       string       `json:"-"`
	AccessToken  string       `json:"-"`
	RefreshToken string       `json:"-"`
	RealmID      string       `json:"realm_id"`
	ExpiresAt    time.Time    `json:"expires_at"`
	CompanyInfo  *CompanyInfo `json:"company_info,omitempty"`
}

func (s *Session) credentials() Credentials {
	return Credentials{AccessToken: s.AccessToken, RealmID: s.RealmID}
}

// CodeNotConnected marks a Result that failed because the user must authorize again.
const CodeNotConnected = "not_connected"

const refreshTimeout = 15 * time.Second

// Result is the outcome of one session operation. Vendor faults and missing
// connections are reported here rather than as Go errors.
type Result[T any] struct {
	Success bool     `json:"success"`
	Data    T        `json:"data,omitempty"`
	Error   string   `json:"error,omitempty"`
	Code    string   `json:"code,omitempty"`
	Session *Session `json:"session,omitempty"`
}

// ConnectionStatus answers "is this user connected to QuickBooks".
type ConnectionStatus struct {
	Connected   bool       `json:"connected"`
	RealmID     string     `json:"realm_id,omitempty"`
	CompanyName string     `json:"company_name,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// SessionManager builds sessions from stored tokens, refreshing them when they are
// about to expire, and runs QuickBooks operations on behalf of a user.
type SessionManager struct {
	tokens  TokenStore
	oauth   *OAuth
	client  *Client
	log     *zap.Logger
	metrics *metrics.Registry
	group   singleflight.Group
	now     func() time.Time
}

func NewSessionManager(tokens TokenStore, oauth *OAuth, client *Client, log *zap.Logger, reg *metrics.Registry) *SessionManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionManager{
		tokens:  tokens,
		oauth:   oauth,
		client:  client,
		log:     log,
		metrics: reg,
		now:     time.Now,
	}
}

// WithClock replaces the manager's time source.
func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	m.now = now
	return m
}

// AuthURL is the Intuit consent page for state.
func (m *SessionManager) AuthURL(state string) string {
	return m.oauth.AuthURL(state)
}

// GetSession returns ErrNotConnected when the user has no tokens or they could not be refreshed.
func (m *SessionManager) GetSession(ctx context.Context, userID string) (*Session, error) {
	toks, err := m.loadTokens(ctx, userID)
	if err != nil {
		return nil, err
	}
	if core.TokenUsable(toks.ExpiresAt, m.now()) {
		return newSession(userID, toks), nil
	}

	// Waiters share the leader's refresh, so it must outlive the leader's request.
	v, err, _ := m.group.Do(userID, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return m.refresh(rctx, userID, toks)
	})
	if err != nil {
		return nil, err
	}
	sess := *v.(*Session)
	return &sess, nil
}

func newSession(userID string, t *core.DecryptedTokens) *Session {
	return &Session{
		UserID:       userID,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		RealmID:      t.RealmID,
		ExpiresAt:    t.ExpiresAt,
	}
}

func (m *SessionManager) loadTokens(ctx context.Context, userID string) (*core.DecryptedTokens, error) {
	toks, err := m.tokens.GetTokens(ctx, userID)
	if errors.Is(err, tokencrypt.ErrDecrypt) {
		m.log.Warn("stored quickbooks tokens are unreadable, dropping them", zap.String("user_id", userID))
		m.dropTokens(ctx, userID)
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, err
	}
	if toks == nil {
		return nil, ErrNotConnected
	}
	return toks, nil
}

func (m *SessionManager) refresh(ctx context.Context, userID string, old *core.DecryptedTokens) (*Session, error) {
	tok, err := m.oauth.Refresh(ctx, old.RefreshToken)
	m.metrics.ObserveRefresh(err)
	if err != nil {
		m.log.Warn("quickbooks token refresh failed, disconnecting", zap.String("user_id", userID), zap.Error(err))
		m.dropTokens(ctx, userID)
		return nil, ErrNotConnected
	}

	if err := m.tokens.UpdateTokens(ctx, userID, tok.AccessToken, tok.RefreshToken, tok.ExpiresAt); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrNotConnected
		}
		return nil, fmt.Errorf("persist refreshed tokens: %w", err)
	}

	toks, err := m.loadTokens(ctx, userID)
	if err != nil {
		return nil, err
	}
	m.log.Debug("quickbooks tokens refreshed", zap.String("user_id", userID), zap.Time("expires_at", toks.ExpiresAt))
	return newSession(userID, toks), nil
}

func (m *SessionManager) dropTokens(ctx context.Context, userID string) {
	if err := m.tokens.DeleteTokens(ctx, userID); err != nil {
		m.log.Error("failed to delete quickbooks tokens", zap.String("user_id", userID), zap.Error(err))
	}
}

// run resolves the session and runs fn, recording the outcome under operation.
func run[T any](ctx context.Context, m *SessionManager, userID, operation string, fn func(context.Context, *Session) (T, error)) Result[T] {
	sess, err := m.GetSession(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			return Result[T]{Error: ErrNotConnected.Error(), Code: CodeNotConnected}
		}
		m.log.Error("quickbooks session unavailable", zap.String("operation", operation), zap.String("user_id", userID), zap.Error(err))
		return Result[T]{Error: "QuickBooks session unavailable"}
	}

	data, err := fn(ctx, sess)
	m.metrics.ObserveQuickBooks(operation, err)
	if err != nil {
		m.log.Info("quickbooks operation failed", zap.String("operation", operation), zap.String("user_id", userID), zap.Error(err))
		return Result[T]{Error: err.Error(), Session: sess}
	}
	return Result[T]{Success: true, Data: data, Session: sess}
}

// ── Connection lifecycle ─────────────────────────────────────────────────────

// Connect exchanges an authorization code and stores the resulting tokens.
func (m *SessionManager) Connect(ctx context.Context, code, realmID, userID string) error {
	if strings.TrimSpace(code) == "" {
		return errors.New("authorization code is required")
	}
	if !ValidID(realmID) {
		return fmt.Errorf("invalid realm id %q", realmID)
	}
	tok, err := m.oauth.ExchangeCode(ctx, code)
	m.metrics.ObserveQuickBooks("exchange_code", err)
	if err != nil {
		return err
	}
	if err := m.tokens.StoreTokens(ctx, userID, tok.AccessToken, tok.RefreshToken, realmID, tok.ExpiresAt); err != nil {
		return err
	}
	m.log.Info("quickbooks connected", zap.String("user_id", userID), zap.String("realm_id", realmID))
	return nil
}

// Disconnect revokes the refresh token at Intuit (best effort) and deletes the stored tokens.
func (m *SessionManager) Disconnect(ctx context.Context, userID string) error {
	toks, err := m.tokens.GetTokens(ctx, userID)
	if err != nil && !errors.Is(err, tokencrypt.ErrDecrypt) {
		return err
	}
	if toks != nil {
		err := m.oauth.Revoke(ctx, toks.RefreshToken)
		m.metrics.ObserveQuickBooks("revoke", err)
		if err != nil {
			m.log.Warn("quickbooks token revocation failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	if err := m.tokens.DeleteTokens(ctx, userID); err != nil {
		return err
	}
	m.log.Info("quickbooks disconnected", zap.String("user_id", userID))
	return nil
}

// Status reports the connection. Company name lookup failures are not errors.
func (m *SessionManager) Status(ctx context.Context, userID string) (ConnectionStatus, error) {
	sess, err := m.GetSession(ctx, userID)
	if errors.Is(err, ErrNotConnected) {
		return ConnectionStatus{}, nil
	}
	if err != nil {
		return ConnectionStatus{}, err
	}

	st := ConnectionStatus{Connected: true, RealmID: sess.RealmID, ExpiresAt: &sess.ExpiresAt}
	info, err := m.client.CompanyInfo(ctx, sess.credentials())
	m.metrics.ObserveQuickBooks("company_info", err)
	if err != nil {
		m.log.Info("quickbooks company info unavailable", zap.String("user_id", userID), zap.Error(err))
		return st, nil
	}
	st.CompanyName = info.CompanyName
	return st, nil
}

// ── Read operations ──────────────────────────────────────────────────────────

func (m *SessionManager) GetCompanyInfo(ctx context.Context, userID string) Result[*CompanyInfo] {
	return run(ctx, m, userID, "company_info", func(ctx context.Context, s *Session) (*CompanyInfo, error) {
		info, err := m.client.CompanyInfo(ctx, s.credentials())
		if err == nil {
			s.CompanyInfo = info
		}
		return info, err
	})
}

// GetInvoices pages through invoices newest first. offset is 0-based.
func (m *SessionManager) GetInvoices(ctx context.Context, userID string, limit, offset int) Result[[]Invoice] {
	if limit <= 0 || limit > 1000 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	q := Select("Invoice").OrderBy("MetaData.CreateTime DESC").Page(offset+1, limit).String()
	return run(ctx, m, userID, "list_invoices", func(ctx context.Context, s *Session) ([]Invoice, error) {
		return m.client.QueryInvoices(ctx, s.credentials(), q)
	})
}

func (m *SessionManager) GetInvoiceByID(ctx context.Context, userID, invoiceID string) Result[*Invoice] {
	return run(ctx, m, userID, "read_invoice", func(ctx context.Context, s *Session) (*Invoice, error) {
		return m.client.ReadInvoice(ctx, s.credentials(), invoiceID)
	})
}

func (m *SessionManager) GetInvoiceByDocNumber(ctx context.Context, userID, docNumber string) Result[*Invoice] {
	q := Select("Invoice").Where("DocNumber", "=", docNumber).String()
	return run(ctx, m, userID, "find_invoice", func(ctx context.Context, s *Session) (*Invoice, error) {
		invs, err := m.client.QueryInvoices(ctx, s.credentials(), q)
		if err != nil {
			return nil, err
		}
		if len(invs) == 0 {
			return nil, fmt.Errorf("invoice %s not found", docNumber)
		}
		return &invs[0], nil
	})
}

func (m *SessionManager) GetCustomers(ctx context.Context, userID string) Result[[]Customer] {
	q := Select("Customer").WhereRaw("Active = true").OrderBy("DisplayName").Page(0, 1000).String()
	return run(ctx, m, userID, "list_customers", func(ctx context.Context, s *Session) ([]Customer, error) {
		return m.client.QueryCustomers(ctx, s.credentials(), q)
	})
}

func (m *SessionManager) GetItems(ctx context.Context, userID string) Result[[]Item] {
	q := Select("Item").WhereRaw("Active = true").OrderBy("Name").Page(0, 1000).String()
	return run(ctx, m, userID, "list_items", func(ctx context.Context, s *Session) ([]Item, error) {
		return m.client.QueryItems(ctx, s.credentials(), q)
	})
}

func (m *SessionManager) GetDefaultIncomeAccount(ctx context.Context, userID string) Result[*Account] {
	return run(ctx, m, userID, "income_account", func(ctx context.Context, s *Session) (*Account, error) {
		return m.defaultIncomeAccount(ctx, s)
	})
}

func (m *SessionManager) defaultIncomeAccount(ctx context.Context, s *Session) (*Account, error) {
	q := Select("Account").Where("AccountType", "=", "Income").Page(0, 1).String()
	accts, err := m.client.QueryAccounts(ctx, s.credentials(), q)
	if err != nil {
		return nil, err
	}
	if len(accts) == 0 {
		return nil, errors.New("no income account found in QuickBooks")
	}
	return &accts[0], nil
}

// ── Write operations ─────────────────────────────────────────────────────────

// CustomerInput creates a QuickBooks customer.
type CustomerInput struct {
	DisplayName string `json:"display_name"`
	CompanyName string `json:"company_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

func (m *SessionManager) CreateCustomer(ctx context.Context, userID string, in CustomerInput) Result[*Customer] {
	if strings.TrimSpace(in.DisplayName) == "" {
		return Result[*Customer]{Error: "display_name is required"}
	}
	cust := &Customer{DisplayName: strings.TrimSpace(in.DisplayName), CompanyName: in.CompanyName}
	if in.Email != "" {
		cust.PrimaryEmailAddr = &EmailAddress{Address: in.Email}
	}
	if in.Phone != "" {
		cust.PrimaryPhone = &PhoneNumber{FreeFormNumber: in.Phone}
	}
	return run(ctx, m, userID, "create_customer", func(ctx context.Context, s *Session) (*Customer, error) {
		return m.client.CreateCustomer(ctx, s.credentials(), cust)
	})
}

// ItemInput creates a service item. An empty IncomeAccountID uses the first Income account.
type ItemInput struct {
	Name            string  `json:"name"`
	Description     string  `json:"description,omitempty"`
	UnitPrice       float64 `json:"unit_price"`
	Type            string  `json:"type,omitempty"`
	IncomeAccountID string  `json:"income_account_id,omitempty"`
}

func (m *SessionManager) CreateItem(ctx context.Context, userID string, in ItemInput) Result[*Item] {
	if strings.TrimSpace(in.Name) == "" {
		return Result[*Item]{Error: "name is required"}
	}
	if in.UnitPrice < 0 {
		return Result[*Item]{Error: "unit_price cannot be negative"}
	}
	typ := in.Type
	if typ == "" {
		typ = "Service"
	}
	return run(ctx, m, userID, "create_item", func(ctx context.Context, s *Session) (*Item, error) {
		accountID := in.IncomeAccountID
		if accountID == "" {
			acct, err := m.defaultIncomeAccount(ctx, s)
			if err != nil {
				return nil, err
			}
			accountID = acct.ID
		}
		return m.client.CreateItem(ctx, s.credentials(), &Item{
			Name:             strings.TrimSpace(in.Name),
			Description:      in.Description,
			Type:             typ,
			UnitPrice:        in.UnitPrice,
			IncomeAccountRef: &Ref{Value: accountID},
		})
	})
}

// InvoiceLineInput is one sales line. Amount is Qty × UnitPrice.
type InvoiceLineInput struct {
	ItemID      string  `json:"item_id"`
	Description string  `json:"description,omitempty"`
	Qty         float64 `json:"qty"`
	UnitPrice   float64 `json:"unit_price"`
}

// InvoiceInput creates a QuickBooks invoice.
type InvoiceInput struct {
	CustomerID   string             `json:"customer_id"`
	DocNumber    string             `json:"doc_number,omitempty"`
	TxnDate      string             `json:"txn_date,omitempty"`
	DueDate      string             `json:"due_date,omitempty"`
	BillEmail    string             `json:"bill_email,omitempty"`
	CustomerMemo string             `json:"customer_memo,omitempty"`
	PrivateNote  string             `json:"private_note,omitempty"`
	Lines        []InvoiceLineInput `json:"lines"`
}

func buildLines(in []InvoiceLineInput) ([]Line, error) {
	lines := make([]Line, 0, len(in))
	for i, l := range in {
		if !ValidID(l.ItemID) {
			return nil, fmt.Errorf("line %d: item_id must be a QuickBooks item id", i+1)
		}
		if l.Qty <= 0 {
			return nil, fmt.Errorf("line %d: qty must be greater than zero", i+1)
		}
		lines = append(lines, Line{
			Description: l.Description,
			Amount:      roundCents(l.Qty * l.UnitPrice),
			DetailType:  "SalesItemLineDetail",
			SalesItemLineDetail: &SalesItemLineDetail{
				ItemRef:   &Ref{Value: l.ItemID},
				Qty:       l.Qty,
				UnitPrice: l.UnitPrice,
			},
		})
	}
	return lines, nil
}

func roundCents(v float64) float64 {
	if v < 0 {
		return -roundCents(-v)
	}
	return float64(int64(v*100+0.5)) / 100
}

func (m *SessionManager) CreateInvoice(ctx context.Context, userID string, in InvoiceInput) Result[*Invoice] {
	if !ValidID(in.CustomerID) {
		return Result[*Invoice]{Error: "customer_id must be a QuickBooks customer id"}
	}
	if len(in.Lines) == 0 {
		return Result[*Invoice]{Error: "at least one line is required"}
	}
	lines, err := buildLines(in.Lines)
	if err != nil {
		return Result[*Invoice]{Error: err.Error()}
	}

	inv := &Invoice{
		CustomerRef: &Ref{Value: in.CustomerID},
		DocNumber:   in.DocNumber,
		TxnDate:     in.TxnDate,
		DueDate:     in.DueDate,
		Line:        lines,
		PrivateNote: in.PrivateNote,
	}
	if in.BillEmail != "" {
		inv.BillEmail = &EmailAddress{Address: in.BillEmail}
	}
	if in.CustomerMemo != "" {
		inv.CustomerMemo = &MemoRef{Value: in.CustomerMemo}
	}
	return run(ctx, m, userID, "create_invoice", func(ctx context.Context, s *Session) (*Invoice, error) {
		return m.client.CreateInvoice(ctx, s.credentials(), inv)
	})
}

// InvoicePatch is a sparse invoice update; nil fields are left unchanged.
type InvoicePatch struct {
	DueDate      *string            `json:"due_date,omitempty"`
	BillEmail    *string            `json:"bill_email,omitempty"`
	CustomerMemo *string            `json:"customer_memo,omitempty"`
	PrivateNote  *string            `json:"private_note,omitempty"`
	Lines        []InvoiceLineInput `json:"lines,omitempty"`
}

func (m *SessionManager) UpdateInvoice(ctx context.Context, userID, invoiceID string, p InvoicePatch) Result[*Invoice] {
	var lines []Line
	if p.Lines != nil {
		var err error
		if lines, err = buildLines(p.Lines); err != nil {
			return Result[*Invoice]{Error: err.Error()}
		}
	}
	return run(ctx, m, userID, "update_invoice", func(ctx context.Context, s *Session) (*Invoice, error) {
		current, err := m.client.ReadInvoice(ctx, s.credentials(), invoiceID)
		if err != nil {
			return nil, err
		}
		upd := &Invoice{ID: current.ID, SyncToken: current.SyncToken, Line: lines}
		if p.DueDate != nil {
			upd.DueDate = *p.DueDate
		}
		if p.BillEmail != nil {
			upd.BillEmail = &EmailAddress{Address: *p.BillEmail}
		}
		if p.CustomerMemo != nil {
			upd.CustomerMemo = &MemoRef{Value: *p.CustomerMemo}
		}
		if p.PrivateNote != nil {
			upd.PrivateNote = *p.PrivateNote
		}
		return m.client.UpdateInvoice(ctx, s.credentials(), upd)
	})
}

// DeletedInvoice identifies the invoice removed by DeleteInvoice.
type DeletedInvoice struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

func (m *SessionManager) DeleteInvoice(ctx context.Context, userID, invoiceID string) Result[*DeletedInvoice] {
	return run(ctx, m, userID, "delete_invoice", func(ctx context.Context, s *Session) (*DeletedInvoice, error) {
		current, err := m.client.ReadInvoice(ctx, s.credentials(), invoiceID)
		if err != nil {
			return nil, err
		}
		if err := m.client.DeleteInvoice(ctx, s.credentials(), current.ID, current.SyncToken); err != nil {
			return nil, err
		}
		return &DeletedInvoice{ID: current.ID, Deleted: true}, nil
	})
}

// SendInvoicePDF emails the invoice; an empty email uses the invoice's billing address.
func (m *SessionManager) SendInvoicePDF(ctx context.Context, userID, invoiceID, email string) Result[*Invoice] {
	return run(ctx, m, userID, "send_invoice", func(ctx context.Context, s *Session) (*Invoice, error) {
		return m.client.SendInvoice(ctx, s.credentials(), invoiceID, email)
	})
}
