package quickbooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Credentials address one company with one access token.
type Credentials struct {
	AccessToken string
	RealmID     string
}

// Client is the QuickBooks Online v3 REST client. It holds no per-user state.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// do sends one request and decodes the body into out. A Fault in the body is an error
// regardless of the HTTP status.
func (c *Client) do(ctx context.Context, creds Credentials, method, path string, params url.Values, body, out any) error {
	if !ValidID(creds.RealmID) {
		return fmt.Errorf("invalid realm id %q", creds.RealmID)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("minorversion", MinorVersion)
	endpoint := fmt.Sprintf("%s/v3/company/%s/%s?%s", c.baseURL, creds.RealmID, path, params.Encode())

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var fault struct {
		Fault *Fault `json:"Fault"`
	}
	if json.Unmarshal(raw, &fault) == nil && fault.Fault != nil && len(fault.Fault.Error) > 0 {
		return &FaultError{StatusCode: resp.StatusCode, Fault: *fault.Fault}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (c *Client) query(ctx context.Context, creds Credentials, q string) (*queryResponse, error) {
	var out queryResponse
	if err := c.do(ctx, creds, http.MethodGet, "query", url.Values{"query": {q}}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) QueryInvoices(ctx context.Context, creds Credentials, q string) ([]Invoice, error) {
	out, err := c.query(ctx, creds, q)
	if err != nil {
		return nil, err
	}
	return nonNil(out.QueryResponse.Invoice), nil
}

func (c *Client) QueryCustomers(ctx context.Context, creds Credentials, q string) ([]Customer, error) {
	out, err := c.query(ctx, creds, q)
	if err != nil {
		return nil, err
	}
	return nonNil(out.QueryResponse.Customer), nil
}

func (c *Client) QueryItems(ctx context.Context, creds Credentials, q string) ([]Item, error) {
	out, err := c.query(ctx, creds, q)
	if err != nil {
		return nil, err
	}
	return nonNil(out.QueryResponse.Item), nil
}

func (c *Client) QueryAccounts(ctx context.Context, creds Credentials, q string) ([]Account, error) {
	out, err := c.query(ctx, creds, q)
	if err != nil {
		return nil, err
	}
	return nonNil(out.QueryResponse.Account), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (c *Client) ReadInvoice(ctx context.Context, creds Credentials, id string) (*Invoice, error) {
	if !ValidID(id) {
		return nil, ErrInvalidID
	}
	var out struct {
		Invoice Invoice `json:"Invoice"`
	}
	if err := c.do(ctx, creds, http.MethodGet, "invoice/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Invoice, nil
}

func (c *Client) CreateInvoice(ctx context.Context, creds Credentials, inv *Invoice) (*Invoice, error) {
	var out struct {
		Invoice Invoice `json:"Invoice"`
	}
	if err := c.do(ctx, creds, http.MethodPost, "invoice", nil, inv, &out); err != nil {
		return nil, err
	}
	return &out.Invoice, nil
}

// UpdateInvoice sends a sparse update; inv must carry Id and SyncToken.
func (c *Client) UpdateInvoice(ctx context.Context, creds Credentials, inv *Invoice) (*Invoice, error) {
	inv.Sparse = true
	return c.CreateInvoice(ctx, creds, inv)
}

// DeleteInvoice deletes the invoice at syncToken.
func (c *Client) DeleteInvoice(ctx context.Context, creds Credentials, id, syncToken string) error {
	if !ValidID(id) {
		return ErrInvalidID
	}
	body := map[string]string{"Id": id, "SyncToken": syncToken}
	return c.do(ctx, creds, http.MethodPost, "invoice", url.Values{"operation": {"delete"}}, body, nil)
}

// SendInvoice emails the invoice PDF. An empty email sends to the invoice's BillEmail.
func (c *Client) SendInvoice(ctx context.Context, creds Credentials, id, email string) (*Invoice, error) {
	if !ValidID(id) {
		return nil, ErrInvalidID
	}
	params := url.Values{}
	if email != "" {
		params.Set("sendTo", email)
	}
	var out struct {
		Invoice Invoice `json:"Invoice"`
	}
	if err := c.do(ctx, creds, http.MethodPost, "invoice/"+id+"/send", params, nil, &out); err != nil {
		return nil, err
	}
	return &out.Invoice, nil
}

func (c *Client) CreateCustomer(ctx context.Context, creds Credentials, cust *Customer) (*Customer, error) {
	var out struct {
		Customer Customer `json:"Customer"`
	}
	if err := c.do(ctx, creds, http.MethodPost, "customer", nil, cust, &out); err != nil {
		return nil, err
	}
	return &out.Customer, nil
}

func (c *Client) CreateItem(ctx context.Context, creds Credentials, item *Item) (*Item, error) {
	var out struct {
		Item Item `json:"Item"`
	}
	if err := c.do(ctx, creds, http.MethodPost, "item", nil, item, &out); err != nil {
		return nil, err
	}
	return &out.Item, nil
}

func (c *Client) CompanyInfo(ctx context.Context, creds Credentials) (*CompanyInfo, error) {
	var out struct {
		CompanyInfo CompanyInfo `json:"CompanyInfo"`
	}
	if err := c.do(ctx, creds, http.MethodGet, "companyinfo/"+creds.RealmID, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.CompanyInfo, nil
}
