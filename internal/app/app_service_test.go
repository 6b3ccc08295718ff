package app_test

import (
	"context"
	"testing"
	"time"

	"invoice-agent/internal/ai"
	"invoice-agent/internal/app"
	"invoice-agent/internal/core"
	"invoice-agent/internal/quickbooks"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTeams keeps memberships in memory and answers role checks from the matrix.
type fakeTeams struct {
	core.TeamService
	roles    map[string]core.Role // userID -> role in the single team
	removed  []string
	swept    int64
	invites  []core.TeamInvitation
	teamName string
}

func (f *fakeTeams) CheckUserRole(_ context.Context, userID, _ string, allowed ...core.Role) (core.RoleCheck, error) {
	role, ok := f.roles[userID]
	if !ok {
		return core.RoleCheck{}, nil
	}
	rc := core.RoleCheck{IsMember: true, UserRole: role, HasPermission: len(allowed) == 0}
	for _, r := range allowed {
		if r == role {
			rc.HasPermission = true
		}
	}
	return rc, nil
}

func (f *fakeTeams) GetTeam(_ context.Context, teamID string) (*core.Team, error) {
	return &core.Team{ID: teamID, Name: f.teamName}, nil
}

func (f *fakeTeams) RemoveMember(_ context.Context, _, userID string) error {
	f.removed = append(f.removed, userID)
	return nil
}

func (f *fakeTeams) InviteUser(_ context.Context, teamID, email string, role core.Role, invitedBy string) (*core.TeamInvitation, error) {
	inv := core.TeamInvitation{ID: uuid.NewString(), TeamID: teamID, Email: email, Role: role, InvitedBy: invitedBy, Token: "tok123", ExpiresAt: time.Now().Add(core.InvitationLifetime)}
	f.invites = append(f.invites, inv)
	return &inv, nil
}

func (f *fakeTeams) GetInvitationByToken(_ context.Context, token string) (*core.TeamInvitation, error) {
	for i := range f.invites {
		if f.invites[i].Token == token {
			return &f.invites[i], nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeTeams) CleanupExpiredInvitations(context.Context) (int64, error) {
	return f.swept, nil
}

type fakeSweeper struct{ n int64 }

func (f fakeSweeper) CleanupExpiredTokens(context.Context) (int64, error) { return f.n, nil }

// fakeQuickBooks records calls; only the methods exercised here are implemented.
type fakeQuickBooks struct {
	app.QuickBooksService
	connected map[string]string // userID -> realm
	deletes   int
}

func (f *fakeQuickBooks) AuthURL(state string) string { return "https://intuit.test/auth?state=" + state }

func (f *fakeQuickBooks) Connect(_ context.Context, code, realmID, userID string) error {
	f.connected[userID] = realmID
	return nil
}

func (f *fakeQuickBooks) DeleteInvoice(_ context.Context, userID, invoiceID string) quickbooks.Result[*quickbooks.DeletedInvoice] {
	f.deletes++
	return quickbooks.Result[*quickbooks.DeletedInvoice]{Success: true, Data: &quickbooks.DeletedInvoice{ID: invoiceID, Deleted: true}}
}

func (f *fakeQuickBooks) GetCustomers(context.Context, string) quickbooks.Result[[]quickbooks.Customer] {
	return quickbooks.Result[[]quickbooks.Customer]{Error: "QuickBooks not connected", Code: quickbooks.CodeNotConnected}
}

func (f *fakeQuickBooks) GetItems(context.Context, string) quickbooks.Result[[]quickbooks.Item] {
	return quickbooks.Result[[]quickbooks.Item]{Error: "QuickBooks not connected", Code: quickbooks.CodeNotConnected}
}

type replyResponder struct{ calls int }

func (r *replyResponder) Respond(_ context.Context, req ai.ResponseRequest) (*ai.ResponseTurn, error) {
	r.calls++
	if r.calls == 1 {
		return &ai.ResponseTurn{ID: "r1", Calls: []ai.FunctionCall{{CallID: "c1", Name: "getInvoiceStats", Arguments: "{}"}}}, nil
	}
	return &ai.ResponseTurn{ID: "r2", Text: "done"}, nil
}

var teamID = uuid.NewString()

const (
	admin      = "user-admin"
	accountant = "user-accountant"
	viewer     = "user-viewer"
	assistant  = "user-assistant"
	outsider   = "user-outsider"
)

type fixture struct {
	svc   app.ApplicationService
	teams *fakeTeams
	qb    *fakeQuickBooks
}

func newFixture(t *testing.T, agent *ai.Agent) fixture {
	t.Helper()
	teams := &fakeTeams{
		roles:    map[string]core.Role{admin: core.RoleAdmin, accountant: core.RoleAccountant, viewer: core.RoleViewer, assistant: core.RoleAssistant},
		teamName: "Finance",
		swept:    2,
	}
	qb := &fakeQuickBooks{connected: map[string]string{}}
	svc := app.NewAppService(app.Deps{
		Teams:      teams,
		Invoices:   core.NewInvoiceService(core.NewMemoryInvoiceStore()),
		QuickBooks: qb,
		States:     quickbooks.NewMemoryStateStore(),
		Tokens:     fakeSweeper{n: 3},
		Agent:      agent,
		AppURL:     "http://app.test/",
	})
	return fixture{svc: svc, teams: teams, qb: qb}
}

func lines() []core.LineItemInput {
	return []core.LineItemInput{{Description: "Work", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(50)}}
}

func TestInvoices_PermissionMatrixApplied(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	inv, err := f.svc.CreateInvoice(ctx, accountant, teamID, core.InvoiceInput{CustomerName: "Acme", LineItems: lines()})
	require.NoError(t, err)
	assert.Equal(t, "54", inv.TotalAmount.String())

	_, err = f.svc.CreateInvoice(ctx, viewer, teamID, core.InvoiceInput{CustomerName: "Acme", LineItems: lines()})
	var fe *app.ForbiddenError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, core.PermEditInvoices, fe.Permission)

	got, err := f.svc.ListInvoices(ctx, viewer, teamID, core.InvoiceFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = f.svc.ListInvoices(ctx, outsider, teamID, core.InvoiceFilter{})
	assert.ErrorIs(t, err, app.ErrNotMember)

	_, err = f.svc.ListInvoices(ctx, admin, "not-a-uuid", core.InvoiceFilter{})
	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "team_id", ve.Field)

	void := core.InvoiceVoid
	voided, err := f.svc.UpdateInvoice(ctx, admin, teamID, inv.ID, core.InvoiceUpdate{Status: &void})
	require.NoError(t, err)
	assert.Equal(t, core.InvoiceVoid, voided.Status)
	assert.True(t, voided.Balance.IsZero())
}

func TestRemoveMember_RefusesSelf(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.RemoveMember(ctx, admin, teamID, admin), core.ErrSelfRemoval)
	require.NoError(t, f.svc.RemoveMember(ctx, admin, teamID, viewer))
	assert.Equal(t, []string{viewer}, f.teams.removed)

	var fe *app.ForbiddenError
	assert.ErrorAs(t, f.svc.RemoveMember(ctx, accountant, teamID, viewer), &fe)
}

func TestGetTeam_IncludesPermissions(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.svc.GetTeam(context.Background(), viewer, teamID)
	require.NoError(t, err)
	assert.Equal(t, core.RoleViewer, res.Role)
	assert.True(t, res.Permissions[core.PermViewInvoices])
	assert.False(t, res.Permissions[core.PermEditInvoices])
}

func TestInviteUser(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.InviteUser(ctx, admin, teamID, app.InviteRequest{Email: " new@example.com "})
	require.NoError(t, err)
	assert.Equal(t, core.RoleViewer, res.Invitation.Role)
	assert.Equal(t, "new@example.com", res.Invitation.Email)
	assert.Equal(t, "http://app.test/invitations/tok123", res.AcceptURL)

	_, err = f.svc.InviteUser(ctx, admin, teamID, app.InviteRequest{Email: "x@example.com", Role: "owner"})
	assert.ErrorIs(t, err, core.ErrInvalidRole)

	view, err := f.svc.GetInvitation(ctx, "tok123")
	require.NoError(t, err)
	assert.Equal(t, "Finance", view.TeamName)
	assert.False(t, view.Expired)
}

func TestQuickBooksAuth_StateBoundToUser(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	authURL, err := f.svc.StartQuickBooksAuth(ctx, admin)
	require.NoError(t, err)
	state := authURL[len("https://intuit.test/auth?state="):]
	require.NotEmpty(t, state)

	user, err := f.svc.CompleteQuickBooksAuth(ctx, state, "code", "123")
	require.NoError(t, err)
	assert.Equal(t, admin, user)
	assert.Equal(t, "123", f.qb.connected[admin])

	_, err = f.svc.CompleteQuickBooksAuth(ctx, state, "code", "123")
	assert.ErrorIs(t, err, quickbooks.ErrStateInvalid)
}

func TestQBO_TeamPermissionOnlyWhenTeamGiven(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.QBODeleteInvoice(ctx, viewer, "", "42")
	require.NoError(t, err)
	assert.True(t, res.Success)

	_, err = f.svc.QBODeleteInvoice(ctx, viewer, teamID, "42")
	var fe *app.ForbiddenError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, core.PermDeleteInvoices, fe.Permission)
	assert.Equal(t, 1, f.qb.deletes)
}

func TestChat(t *testing.T) {
	ctx := context.Background()

	_, err := newFixture(t, nil).svc.Chat(ctx, admin, app.ChatRequest{Messages: []ai.Message{{Role: "user", Content: "hi"}}})
	assert.ErrorIs(t, err, app.ErrAssistantUnavailable)

	f := newFixture(t, ai.NewAgentWithResponder(&replyResponder{}, nil))
	res, err := f.svc.Chat(ctx, admin, app.ChatRequest{Messages: []ai.Message{{Role: "user", Content: "stats?"}}})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Reply)
	require.Len(t, res.ToolCalls, 1)
	assert.True(t, res.ToolCalls[0].Success)

	_, err = f.svc.Chat(ctx, viewer, app.ChatRequest{TeamID: teamID, Messages: []ai.Message{{Role: "user", Content: "x"}}})
	var fe *app.ForbiddenError
	assert.ErrorAs(t, err, &fe)

	_, err = f.svc.Chat(ctx, admin, app.ChatRequest{Messages: []ai.Message{{Role: "system", Content: "x"}}})
	var ve *core.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestAssistantInvoicesUseDemoData(t *testing.T) {
	f := newFixture(t, nil)
	invs, err := f.svc.AssistantInvoices(context.Background())
	require.NoError(t, err)
	assert.Len(t, invs, 5)

	stats, err := f.svc.AssistantInvoiceStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Count)
}

func TestCleanup(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.svc.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.ExpiredTokens)
	assert.Equal(t, int64(2), res.ExpiredInvitations)
}

func TestCalculate(t *testing.T) {
	f := newFixture(t, nil)
	v, err := f.svc.Calculate("(1 + 2) * 3")
	require.NoError(t, err)
	assert.Equal(t, 9.0, v)
}

// toolResponder asks for one tool call, then finishes.
type toolResponder struct {
	name, args string
	calls      int
}

func (r *toolResponder) Respond(_ context.Context, _ ai.ResponseRequest) (*ai.ResponseTurn, error) {
	r.calls++
	if r.calls == 1 {
		return &ai.ResponseTurn{ID: "r1", Calls: []ai.FunctionCall{{CallID: "c1", Name: r.name, Arguments: r.args}}}, nil
	}
	return &ai.ResponseTurn{ID: "r2", Text: "done"}, nil
}

func TestChat_TeamToolsUseCallerPermissions(t *testing.T) {
	ctx := context.Background()
	teams := &fakeTeams{roles: map[string]core.Role{admin: core.RoleAdmin, assistant: core.RoleAssistant}}
	invoices := core.NewInvoiceService(core.NewMemoryInvoiceStore())
	newSvc := func(r ai.Responder) app.ApplicationService {
		return app.NewAppService(app.Deps{
			Teams:     teams,
			Invoices:  invoices,
			AIBackend: app.AIBackendDatabase,
			Agent:     ai.NewAgentWithResponder(r, nil),
		})
	}

	inv, err := invoices.Create(ctx, teamID, admin, core.InvoiceInput{CustomerName: "Acme", LineItems: lines()})
	require.NoError(t, err)
	args := `{"invoice":"` + inv.InvoiceNumber + `"}`

	res, err := newSvc(&toolResponder{name: "deleteInvoice", args: args}).Chat(ctx, assistant, app.ChatRequest{
		TeamID:   teamID,
		Messages: []ai.Message{{Role: "user", Content: "delete it"}},
	})
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	assert.False(t, res.ToolCalls[0].Success)
	_, err = invoices.Get(ctx, teamID, inv.ID)
	require.NoError(t, err, "invoice must survive a tool call the role does not allow")

	// Edit is granted to the assistant role.
	res, err = newSvc(&toolResponder{name: "voidInvoice", args: args}).Chat(ctx, assistant, app.ChatRequest{
		TeamID:   teamID,
		Messages: []ai.Message{{Role: "user", Content: "void it"}},
	})
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	assert.True(t, res.ToolCalls[0].Success)

	res, err = newSvc(&toolResponder{name: "deleteInvoice", args: args}).Chat(ctx, admin, app.ChatRequest{
		TeamID:   teamID,
		Messages: []ai.Message{{Role: "user", Content: "delete it"}},
	})
	require.NoError(t, err)
	assert.True(t, res.ToolCalls[0].Success)
	_, err = invoices.Get(ctx, teamID, inv.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
