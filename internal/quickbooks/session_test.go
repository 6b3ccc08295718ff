package quickbooks_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"invoice-agent/internal/core"
	"invoice-agent/internal/metrics"
	"invoice-agent/internal/quickbooks"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ quickbooks.TokenStore = core.QuickBooksTokenStore(nil)

type fakeTokenStore struct {
	mu      sync.Mutex
	records map[string]core.DecryptedTokens
	updates int
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{records: map[string]core.DecryptedTokens{}}
}

func (f *fakeTokenStore) StoreTokens(_ context.Context, userID, access, refresh, realm string, exp time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[userID] = core.DecryptedTokens{AccessToken: access, RefreshToken: refresh, RealmID: realm, ExpiresAt: exp}
	return nil
}

func (f *fakeTokenStore) GetTokens(_ context.Context, userID string) (*core.DecryptedTokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.records[userID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeTokenStore) UpdateTokens(_ context.Context, userID, access, refresh string, exp time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.records[userID]
	if !ok {
		return core.ErrNotFound
	}
	t.AccessToken, t.RefreshToken, t.ExpiresAt = access, refresh, exp
	f.records[userID] = t
	f.updates++
	return nil
}

func (f *fakeTokenStore) DeleteTokens(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, userID)
	return nil
}

// fakeIntuit serves the token, revoke and v3 API endpoints.
type fakeIntuit struct {
	refreshes  atomic.Int32
	revokes    atomic.Int32
	failToken  bool
	tokenDelay time.Duration
	api        http.HandlerFunc
}

func (f *fakeIntuit) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/token":
		f.refreshes.Add(1)
		time.Sleep(f.tokenDelay)
		if f.failToken {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh-access","refresh_token":"fresh-refresh","token_type":"bearer","expires_in":3600}`))
	case r.URL.Path == "/revoke":
		f.revokes.Add(1)
		w.WriteHeader(http.StatusOK)
	case strings.HasPrefix(r.URL.Path, "/v3/company/"):
		if f.api != nil {
			f.api(w, r)
			return
		}
		w.Write([]byte(`{"CompanyInfo":{"CompanyName":"Sandbox Co"}}`))
	default:
		http.NotFound(w, r)
	}
}

func newManager(t *testing.T, intuit *fakeIntuit, store *fakeTokenStore, reg *metrics.Registry) *quickbooks.SessionManager {
	srv := httptest.NewServer(intuit)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	o, err := quickbooks.NewOAuth(cfg)
	require.NoError(t, err)
	return quickbooks.NewSessionManager(store, o, quickbooks.NewClient(cfg), nil, reg)
}

func TestGetSession_NotConnected(t *testing.T) {
	m := newManager(t, &fakeIntuit{}, newFakeTokenStore(), nil)
	_, err := m.GetSession(context.Background(), "user-1")
	assert.ErrorIs(t, err, quickbooks.ErrNotConnected)

	res := m.GetInvoices(context.Background(), "user-1", 10, 0)
	assert.False(t, res.Success)
	assert.Equal(t, quickbooks.CodeNotConnected, res.Code)
	assert.Equal(t, "QuickBooks not connected", res.Error)
}

func TestGetSession_ValidTokensNoRefresh(t *testing.T) {
	intuit := &fakeIntuit{}
	store := newFakeTokenStore()
	store.StoreTokens(context.Background(), "u", "access", "refresh", "123", time.Now().Add(time.Hour))

	m := newManager(t, intuit, store, nil)
	s, err := m.GetSession(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, "access", s.AccessToken)
	assert.Equal(t, "123", s.RealmID)
	assert.Equal(t, int32(0), intuit.refreshes.Load())
}

func TestGetSession_RefreshesInsideBuffer(t *testing.T) {
	intuit := &fakeIntuit{}
	store := newFakeTokenStore()
	store.StoreTokens(context.Background(), "u", "stale", "refresh", "123", time.Now().Add(4*time.Minute))
	reg := metrics.NewRegistry()

	m := newManager(t, intuit, store, reg)
	s, err := m.GetSession(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", s.AccessToken)
	assert.Equal(t, "fresh-refresh", s.RefreshToken)
	assert.Equal(t, "123", s.RealmID, "realm survives refresh")
	assert.Equal(t, 1, store.updates)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.QuickBooksRefreshes.WithLabelValues("success")))
}

func TestGetSession_RefreshFailureDisconnects(t *testing.T) {
	intuit := &fakeIntuit{failToken: true}
	store := newFakeTokenStore()
	store.StoreTokens(context.Background(), "u", "stale", "revoked", "123", time.Now().Add(-time.Minute))

	m := newManager(t, intuit, store, nil)
	_, err := m.GetSession(context.Background(), "u")
	assert.ErrorIs(t, err, quickbooks.ErrNotConnected)

	toks, _ := store.GetTokens(context.Background(), "u")
	assert.Nil(t, toks, "tokens are deleted after a failed refresh")
}

func TestGetSession_ConcurrentRefreshCollapsed(t *testing.T) {
	intuit := &fakeIntuit{tokenDelay: 200 * time.Millisecond}
	store := newFakeTokenStore()
	store.StoreTokens(context.Background(), "u", "stale", "refresh", "123", time.Now().Add(time.Minute))

	m := newManager(t, intuit, store, nil)

	start := make(chan struct{})
	sessions := make([]*quickbooks.Session, 5)
	var wg sync.WaitGroup
	for i := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			s, err := m.GetSession(context.Background(), "u")
			assert.NoError(t, err)
			if s != nil {
				assert.Equal(t, "fresh-access", s.AccessToken)
				s.CompanyInfo = &quickbooks.CompanyInfo{CompanyName: "caller"}
			}
			sessions[i] = s
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), intuit.refreshes.Load())
	for i := 1; i < len(sessions); i++ {
		assert.NotSame(t, sessions[0], sessions[i], "each caller owns its session")
	}
}

func TestGetSession_RefreshSurvivesLeaderCancel(t *testing.T) {
	intuit := &fakeIntuit{tokenDelay: 200 * time.Millisecond}
	store := newFakeTokenStore()
	store.StoreTokens(context.Background(), "u", "stale", "refresh", "123", time.Now().Add(time.Minute))
	m := newManager(t, intuit, store, nil)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderDone := make(chan error, 1)
	go func() {
		_, err := m.GetSession(leaderCtx, "u")
		leaderDone <- err
	}()
	time.Sleep(50 * time.Millisecond)

	waiterDone := make(chan *quickbooks.Session, 1)
	go func() {
		s, err := m.GetSession(context.Background(), "u")
		assert.NoError(t, err)
		waiterDone <- s
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	assert.NoError(t, <-leaderDone)
	if s := <-waiterDone; assert.NotNil(t, s) {
		assert.Equal(t, "fresh-access", s.AccessToken)
	}
	toks, err := store.GetTokens(context.Background(), "u")
	require.NoError(t, err)
	require.NotNil(t, toks, "a cancelled caller must not disconnect the user")
	assert.Equal(t, "fresh-refresh", toks.RefreshToken)
	assert.Equal(t, int32(1), intuit.refreshes.Load())
}

func TestResult_FaultPropagates(t *testing.T) {
	ctx := context.Background()
	line := []quickbooks.InvoiceLineInput{{ItemID: "1", Qty: 2, UnitPrice: 10}}

	tests := []struct {
		operation string
		call      func(m *quickbooks.SessionManager) (bool, string, *quickbooks.Session)
	}{
		{"company_info", func(m *quickbooks.SessionManager) (bool, string, *quickbooks.Session) {
			r := m.GetCompanyInfo(ctx, "u")
			return r.Success, r.Error, r.Session
		}},
		{"list_invoices", func(m *quickbooks.SessionManager) (bool, string, *quickbooks.Session) {
			r := m.GetInvoices(ctx, "u", 10, 0)
			return r.Success, r.Error, r.Session
		}},
		{"read_invoice", func(m *quickbooks.SessionManager) (bool, string, *quickbooks.Session) {
			r := m.GetInvoiceByID(ctx, "u", "130")
			return r.Success, r.Error, r.Session
		}},
		{"find_invoice", func(m *quickbooks.SessionManager) (bool, string, *quickbooks.Session) {
			r := m.GetInvoiceByDocNumber(ctx, "u", "1001")
			return r.Success, r.Error, r.Session
		}},
		{"list_customers", func(m *quickbooks.SessionManager) (bool, string, *quickbooks.Session) {
			r := m.GetCustomers(ctx, "u")
			return r.Success, r.Error, r.Session
		}},
		{"list_items", func(m *quickbooks.SessionManager) (bool, string, *quickbooks.Session) {
			r := m.GetItems(ctx, "u")
			return r.Success, r.Error, r.Session
		}},
		{"income_account", func(m *quickbooks.SessionManager) (bool, string, *quickbooks.Session) {
			r := m.GetDefaultIncomeAccount(ctx, "u")
			return r.Success, r.Error, r.Session
		}},
		{"create_customer", func(m *quickbooks.SessionManager) (bool, string, *quickbooks.Session) {
			r := m.CreateCustomer(ctx, "u", quickbooks.CustomerInput{DisplayName: "Acme"})
			return r.Success, r.Error, r.Session
		}},
		{"create_item", func(m *quickbooks.SessionManager) (bool, string, *quickbooks.Session) {
			r := m.CreateItem(ctx, "u", quickbooks.ItemInput{Name: "Consulting", UnitPrice: 100})
			return r.Success, r.Error, r.Session
		}},
		{"create_invoice", func(m *quickbooks.SessionManager) (bool, string, *quickbooks.Session) {
			r := m.CreateInvoice(ctx, "u", quickbooks.InvoiceInput{CustomerID: "58", Lines: line})
			return r.Success, r.Error, r.Session
		}},
		{"update_invoice", func(m *quickbooks.SessionManager) (bool, string, *quickbooks.Session) {
			r := m.UpdateInvoice(ctx, "u", "130", quickbooks.InvoicePatch{Lines: line})
			return r.Success, r.Error, r.Session
		}},
		{"delete_invoice", func(m *quickbooks.SessionManager) (bool, string, *quickbooks.Session) {
			r := m.DeleteInvoice(ctx, "u", "130")
			return r.Success, r.Error, r.Session
		}},
		{"send_invoice", func(m *quickbooks.SessionManager) (bool, string, *quickbooks.Session) {
			r := m.SendInvoicePDF(ctx, "u", "130", "ap@acme.example")
			return r.Success, r.Error, r.Session
		}},
	}
	for _, tt := range tests {
		t.Run(tt.operation, func(t *testing.T) {
			intuit := &fakeIntuit{api: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"Fault":{"Error":[{"Message":"Invalid Reference Id","code":"2500"}],"type":"ValidationFault"}}`))
			}}
			store := newFakeTokenStore()
			store.StoreTokens(ctx, "u", "access", "refresh", "123", time.Now().Add(time.Hour))
			reg := metrics.NewRegistry()

			ok, msg, sess := tt.call(newManager(t, intuit, store, reg))
			assert.False(t, ok)
			assert.True(t, strings.HasPrefix(msg, "QuickBooks API Error:"), msg)
			assert.NotNil(t, sess)
			assert.Equal(t, 1.0, testutil.ToFloat64(reg.QuickBooksRequests.WithLabelValues(tt.operation, "error")))
		})
	}
}

func TestCreateInvoice_BuildsSalesLines(t *testing.T) {
	var body map[string]any
	intuit := &fakeIntuit{api: func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"Invoice":{"Id":"130","DocNumber":"1037","TotalAmt":25}}`))
	}}
	store := newFakeTokenStore()
	store.StoreTokens(context.Background(), "u", "access", "refresh", "123", time.Now().Add(time.Hour))

	m := newManager(t, intuit, store, nil)
	res := m.CreateInvoice(context.Background(), "u", quickbooks.InvoiceInput{
		CustomerID: "58",
		BillEmail:  "pay@cust.example",
		Lines:      []quickbooks.InvoiceLineInput{{ItemID: "1", Qty: 2.5, UnitPrice: 10}},
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "130", res.Data.ID)

	lines := body["Line"].([]any)
	line := lines[0].(map[string]any)
	assert.Equal(t, 25.0, line["Amount"])
	assert.Equal(t, "SalesItemLineDetail", line["DetailType"])
	assert.Equal(t, "58", body["CustomerRef"].(map[string]any)["value"])
}

func TestCreateInvoice_ValidatesBeforeCalling(t *testing.T) {
	m := newManager(t, &fakeIntuit{}, newFakeTokenStore(), nil)
	res := m.CreateInvoice(context.Background(), "u", quickbooks.InvoiceInput{CustomerID: "abc"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "customer_id")
}

func TestUpdateInvoice_ReadsSyncToken(t *testing.T) {
	var posted map[string]any
	intuit := &fakeIntuit{api: func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"Invoice":{"Id":"9","SyncToken":"4"}}`))
			return
		}
		json.NewDecoder(r.Body).Decode(&posted)
		w.Write([]byte(`{"Invoice":{"Id":"9","SyncToken":"5","DueDate":"2025-12-31"}}`))
	}}
	store := newFakeTokenStore()
	store.StoreTokens(context.Background(), "u", "access", "refresh", "123", time.Now().Add(time.Hour))

	m := newManager(t, intuit, store, nil)
	due := "2025-12-31"
	res := m.UpdateInvoice(context.Background(), "u", "9", quickbooks.InvoicePatch{DueDate: &due})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "4", posted["SyncToken"])
	assert.Equal(t, true, posted["sparse"])
	assert.Equal(t, "2025-12-31", posted["DueDate"])
}

func TestConnectStatusDisconnect(t *testing.T) {
	intuit := &fakeIntuit{}
	store := newFakeTokenStore()
	m := newManager(t, intuit, store, nil)
	ctx := context.Background()

	st, err := m.Status(ctx, "u")
	require.NoError(t, err)
	assert.False(t, st.Connected)

	// The fake answers the code exchange like a refresh.
	require.NoError(t, m.Connect(ctx, "code", "123", "u"))
	assert.Error(t, m.Connect(ctx, "code", "not-a-realm", "u"))

	st, err = m.Status(ctx, "u")
	require.NoError(t, err)
	assert.True(t, st.Connected)
	assert.Equal(t, "123", st.RealmID)
	assert.Equal(t, "Sandbox Co", st.CompanyName)

	require.NoError(t, m.Disconnect(ctx, "u"))
	assert.Equal(t, int32(1), intuit.revokes.Load())
	st, err = m.Status(ctx, "u")
	require.NoError(t, err)
	assert.False(t, st.Connected)
}
