package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"invoice-agent/internal/ai"
	"invoice-agent/internal/core"
	"invoice-agent/internal/metrics"
	"invoice-agent/internal/quickbooks"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QuickBooksService is the session manager surface the application uses.
// *quickbooks.SessionManager implements it.
type QuickBooksService interface {
	ai.QuickBooksDirectory

	AuthURL(state string) string
	Connect(ctx context.Context, code, realmID, userID string) error
	Disconnect(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (quickbooks.ConnectionStatus, error)

	GetCompanyInfo(ctx context.Context, userID string) quickbooks.Result[*quickbooks.CompanyInfo]
	GetInvoices(ctx context.Context, userID string, limit, offset int) quickbooks.Result[[]quickbooks.Invoice]
	GetInvoiceByID(ctx context.Context, userID, invoiceID string) quickbooks.Result[*quickbooks.Invoice]
	GetInvoiceByDocNumber(ctx context.Context, userID, docNumber string) quickbooks.Result[*quickbooks.Invoice]
	CreateCustomer(ctx context.Context, userID string, in quickbooks.CustomerInput) quickbooks.Result[*quickbooks.Customer]
	CreateItem(ctx context.Context, userID string, in quickbooks.ItemInput) quickbooks.Result[*quickbooks.Item]
	CreateInvoice(ctx context.Context, userID string, in quickbooks.InvoiceInput) quickbooks.Result[*quickbooks.Invoice]
	UpdateInvoice(ctx context.Context, userID, invoiceID string, p quickbooks.InvoicePatch) quickbooks.Result[*quickbooks.Invoice]
	DeleteInvoice(ctx context.Context, userID, invoiceID string) quickbooks.Result[*quickbooks.DeletedInvoice]
	SendInvoicePDF(ctx context.Context, userID, invoiceID, email string) quickbooks.Result[*quickbooks.Invoice]
}

// TokenSweeper deletes expired QuickBooks tokens. core.QuickBooksTokenStore satisfies it.
type TokenSweeper interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// AI invoice backends.
const (
	AIBackendMemory   = "memory"
	AIBackendDatabase = "database"
)

// Deps are the collaborators of the application service. Teams, Invoices and
// Tokens may be nil in CLI modes that do not touch the database.
type Deps struct {
	Teams      core.TeamService
	Invoices   core.InvoiceService
	QuickBooks QuickBooksService
	States     quickbooks.StateStore
	Tokens     TokenSweeper

	// AIInvoices backs the assistant when AIBackend is memory.
	AIInvoices core.InvoiceService
	AIBackend  string
	Agent      *ai.Agent

	Metrics *metrics.Registry
	Log     *zap.Logger
	AppURL  string
}

type appService struct {
	Deps
	now func() time.Time
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(d Deps) ApplicationService {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.AIBackend == "" {
		d.AIBackend = AIBackendMemory
	}
	if d.AIInvoices == nil {
		d.AIInvoices = core.NewInvoiceService(core.NewDemoInvoiceStore())
	}
	d.AppURL = strings.TrimRight(d.AppURL, "/")
	return &appService{Deps: d, now: time.Now}
}

// ── Authorization ────────────────────────────────────────────────────────────

func validTeamID(teamID string) error {
	if _, err := uuid.Parse(teamID); err != nil {
		return &core.ValidationError{Field: "team_id", Message: "must be a valid team id"}
	}
	return nil
}

// requireMember returns the caller's role in teamID.
func (s *appService) requireMember(ctx context.Context, userID, teamID string) (core.Role, error) {
	if err := validTeamID(teamID); err != nil {
		return "", err
	}
	rc, err := s.Teams.CheckUserRole(ctx, userID, teamID)
	if err != nil {
		return "", err
	}
	if !rc.IsMember {
		return "", ErrNotMember
	}
	return rc.UserRole, nil
}

// authorize fails unless the caller's role in teamID grants perm.
func (s *appService) authorize(ctx context.Context, userID, teamID string, perm core.Permission) error {
	if err := validTeamID(teamID); err != nil {
		return err
	}
	rc, err := s.Teams.CheckUserRole(ctx, userID, teamID, core.RolesWithPermission(perm)...)
	if err != nil {
		return err
	}
	if !rc.IsMember {
		return ErrNotMember
	}
	if !rc.HasPermission {
		return &ForbiddenError{Permission: perm}
	}
	return nil
}

// authorizeOptional checks perm only when a team is given.
func (s *appService) authorizeOptional(ctx context.Context, userID, teamID string, perm core.Permission) error {
	if teamID == "" {
		return nil
	}
	return s.authorize(ctx, userID, teamID, perm)
}

// ── Teams ────────────────────────────────────────────────────────────────────

func (s *appService) ListTeams(ctx context.Context, userID string) ([]core.UserTeam, error) {
	return s.Teams.GetUserTeams(ctx, userID)
}

func (s *appService) CreateTeam(ctx context.Context, userID string, req CreateTeamRequest) (*core.Team, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &core.ValidationError{Field: "team_name", Message: "is required"}
	}
	team, err := s.Teams.CreateTeam(ctx, name, strings.TrimSpace(req.Description), userID)
	if err != nil {
		return nil, err
	}
	s.Log.Info("team created", zap.String("team_id", team.ID), zap.String("owner_id", userID))
	return team, nil
}

func (s *appService) GetTeam(ctx context.Context, userID, teamID string) (*TeamResult, error) {
	role, err := s.requireMember(ctx, userID, teamID)
	if err != nil {
		return nil, err
	}
	team, err := s.Teams.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return &TeamResult{Team: team, Role: role, Permissions: core.PermissionsFor(role)}, nil
}

func (s *appService) UpdateTeam(ctx context.Context, userID, teamID string, upd core.TeamUpdate) (*core.Team, error) {
	if err := s.authorize(ctx, userID, teamID, core.PermManageTeam); err != nil {
		return nil, err
	}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return nil, &core.ValidationError{Field: "team_name", Message: "cannot be empty"}
	}
	return s.Teams.UpdateTeam(ctx, teamID, upd)
}

func (s *appService) DeleteTeam(ctx context.Context, userID, teamID string) error {
	if err := s.authorize(ctx, userID, teamID, core.PermDeleteTeam); err != nil {
		return err
	}
	if err := s.Teams.DeleteTeam(ctx, teamID); err != nil {
		return err
	}
	s.Log.Info("team deleted", zap.String("team_id", teamID), zap.String("user_id", userID))
	return nil
}

func (s *appService) ListMembers(ctx context.Context, userID, teamID string) ([]core.TeamMember, error) {
	if _, err := s.requireMember(ctx, userID, teamID); err != nil {
		return nil, err
	}
	return s.Teams.ListMembers(ctx, teamID)
}

func (s *appService) UpdateMemberRole(ctx context.Context, userID, teamID, memberID string, role core.Role) (*core.TeamMember, error) {
	if err := s.authorize(ctx, userID, teamID, core.PermChangeRoles); err != nil {
		return nil, err
	}
	if !core.ValidRole(role) {
		return nil, core.ErrInvalidRole
	}
	m, err := s.Teams.UpdateMemberRole(ctx, teamID, memberID, role)
	if err != nil {
		return nil, err
	}
	s.Log.Info("member role changed", zap.String("team_id", teamID), zap.String("member_id", memberID), zap.String("role", string(role)))
	return m, nil
}

func (s *appService) RemoveMember(ctx context.Context, userID, teamID, memberID string) error {
	if err := s.authorize(ctx, userID, teamID, core.PermRemoveUsers); err != nil {
		return err
	}
	if memberID == userID {
		return core.ErrSelfRemoval
	}
	if err := s.Teams.RemoveMember(ctx, teamID, memberID); err != nil {
		return err
	}
	s.Log.Info("member removed", zap.String("team_id", teamID), zap.String("member_id", memberID))
	return nil
}

// ── Invitations ──────────────────────────────────────────────────────────────

func (s *appService) InviteUser(ctx context.Context, userID, teamID string, req InviteRequest) (*InvitationResult, error) {
	if err := s.authorize(ctx, userID, teamID, core.PermInviteUsers); err != nil {
		return nil, err
	}
	if req.Role == "" {
		req.Role = core.RoleViewer
	}
	if !core.ValidRole(req.Role) {
		return nil, core.ErrInvalidRole
	}
	inv, err := s.Teams.InviteUser(ctx, teamID, strings.TrimSpace(req.Email), req.Role, userID)
	if err != nil {
		return nil, err
	}
	// Delivery of the invitation email belongs to the mail provider.
	s.Log.Info("invitation created", zap.String("team_id", teamID), zap.String("invitation_id", inv.ID), zap.String("role", string(inv.Role)))
	return &InvitationResult{Invitation: inv, AcceptURL: s.AppURL + "/invitations/" + inv.Token}, nil
}

func (s *appService) ListInvitations(ctx context.Context, userID, teamID string) ([]core.TeamInvitation, error) {
	if err := s.authorize(ctx, userID, teamID, core.PermInviteUsers); err != nil {
		return nil, err
	}
	return s.Teams.ListInvitations(ctx, teamID)
}

func (s *appService) DeleteInvitation(ctx context.Context, userID, teamID, invitationID string) error {
	if err := s.authorize(ctx, userID, teamID, core.PermInviteUsers); err != nil {
		return err
	}
	return s.Teams.DeleteInvitation(ctx, teamID, invitationID)
}

func (s *appService) GetInvitation(ctx context.Context, token string) (*InvitationView, error) {
	inv, err := s.Teams.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	view := &InvitationView{
		TeamID:    inv.TeamID,
		Email:     inv.Email,
		Role:      inv.Role,
		ExpiresAt: inv.ExpiresAt,
		Expired:   inv.Expired(s.now()),
	}
	if team, err := s.Teams.GetTeam(ctx, inv.TeamID); err == nil {
		view.TeamName = team.Name
	}
	return view, nil
}

func (s *appService) AcceptInvitation(ctx context.Context, userID, token string) (*core.TeamMember, error) {
	m, err := s.Teams.AcceptInvitation(ctx, token, userID)
	if err != nil {
		return nil, err
	}
	s.Log.Info("invitation accepted", zap.String("team_id", m.TeamID), zap.String("user_id", userID), zap.String("role", string(m.Role)))
	return m, nil
}

// ── Internal invoices ────────────────────────────────────────────────────────

func (s *appService) ListInvoices(ctx context.Context, userID, teamID string, f core.InvoiceFilter) ([]core.Invoice, error) {
	if err := s.authorize(ctx, userID, teamID, core.PermViewInvoices); err != nil {
		return nil, err
	}
	return s.Invoices.List(ctx, teamID, f)
}

func (s *appService) GetInvoice(ctx context.Context, userID, teamID, invoiceID string) (*core.Invoice, error) {
	if err := s.authorize(ctx, userID, teamID, core.PermViewInvoices); err != nil {
		return nil, err
	}
	return s.Invoices.Find(ctx, teamID, invoiceID)
}

func (s *appService) CreateInvoice(ctx context.Context, userID, teamID string, in core.InvoiceInput) (*core.Invoice, error) {
	if err := s.authorize(ctx, userID, teamID, core.PermEditInvoices); err != nil {
		return nil, err
	}
	inv, err := s.Invoices.Create(ctx, teamID, userID, in)
	if err != nil {
		return nil, err
	}
	s.Log.Info("invoice created", zap.String("team_id", teamID), zap.String("invoice_number", inv.InvoiceNumber))
	return inv, nil
}

func (s *appService) UpdateInvoice(ctx context.Context, userID, teamID, invoiceID string, upd core.InvoiceUpdate) (*core.Invoice, error) {
	if err := s.authorize(ctx, userID, teamID, core.PermEditInvoices); err != nil {
		return nil, err
	}
	if upd.Status != nil && *upd.Status == core.InvoiceVoid {
		return s.Invoices.Void(ctx, teamID, invoiceID)
	}
	return s.Invoices.Update(ctx, teamID, invoiceID, upd)
}

func (s *appService) DeleteInvoice(ctx context.Context, userID, teamID, invoiceID string) error {
	if err := s.authorize(ctx, userID, teamID, core.PermDeleteInvoices); err != nil {
		return err
	}
	return s.Invoices.Delete(ctx, teamID, invoiceID)
}

func (s *appService) InvoiceStats(ctx context.Context, userID, teamID string) (*core.InvoiceStats, error) {
	if err := s.authorize(ctx, userID, teamID, core.PermViewInvoices); err != nil {
		return nil, err
	}
	return s.Invoices.Stats(ctx, teamID)
}

// ── QuickBooks connection ────────────────────────────────────────────────────

func (s *appService) StartQuickBooksAuth(ctx context.Context, userID string) (string, error) {
	state, err := quickbooks.NewState()
	if err != nil {
		return "", err
	}
	if err := s.States.Save(ctx, state, userID, quickbooks.StateTTL); err != nil {
		return "", fmt.Errorf("failed to save oauth state: %w", err)
	}
	return s.QuickBooks.AuthURL(state), nil
}

func (s *appService) CompleteQuickBooksAuth(ctx context.Context, state, code, realmID string) (string, error) {
	userID, err := s.States.Consume(ctx, state)
	if err != nil {
		return "", err
	}
	if err := s.QuickBooks.Connect(ctx, code, realmID, userID); err != nil {
		return userID, err
	}
	return userID, nil
}

func (s *appService) QuickBooksStatus(ctx context.Context, userID string) (quickbooks.ConnectionStatus, error) {
	if s.QuickBooks == nil {
		return quickbooks.ConnectionStatus{}, ErrQuickBooksUnavailable
	}
	return s.QuickBooks.Status(ctx, userID)
}

func (s *appService) DisconnectQuickBooks(ctx context.Context, userID, teamID string) error {
	if err := s.authorizeOptional(ctx, userID, teamID, core.PermManageQuickBooks); err != nil {
		return err
	}
	return s.QuickBooks.Disconnect(ctx, userID)
}

// ── QuickBooks operations ────────────────────────────────────────────────────

// qbo checks perm when a team is given, then runs op.
func qbo[T any](ctx context.Context, s *appService, userID, teamID string, perm core.Permission, op func() quickbooks.Result[T]) (quickbooks.Result[T], error) {
	if err := s.authorizeOptional(ctx, userID, teamID, perm); err != nil {
		return quickbooks.Result[T]{}, err
	}
	return op(), nil
}

func (s *appService) QBOCompany(ctx context.Context, userID, teamID string) (quickbooks.Result[*quickbooks.CompanyInfo], error) {
	return qbo(ctx, s, userID, teamID, core.PermViewInvoices, func() quickbooks.Result[*quickbooks.CompanyInfo] {
		return s.QuickBooks.GetCompanyInfo(ctx, userID)
	})
}

func (s *appService) QBOListInvoices(ctx context.Context, userID, teamID string, limit, offset int) (quickbooks.Result[[]quickbooks.Invoice], error) {
	return qbo(ctx, s, userID, teamID, core.PermViewInvoices, func() quickbooks.Result[[]quickbooks.Invoice] {
		return s.QuickBooks.GetInvoices(ctx, userID, limit, offset)
	})
}

func (s *appService) QBOGetInvoice(ctx context.Context, userID, teamID, invoiceID string) (quickbooks.Result[*quickbooks.Invoice], error) {
	return qbo(ctx, s, userID, teamID, core.PermViewInvoices, func() quickbooks.Result[*quickbooks.Invoice] {
		return s.QuickBooks.GetInvoiceByID(ctx, userID, invoiceID)
	})
}

func (s *appService) QBOFindInvoice(ctx context.Context, userID, teamID, docNumber string) (quickbooks.Result[*quickbooks.Invoice], error) {
	return qbo(ctx, s, userID, teamID, core.PermViewInvoices, func() quickbooks.Result[*quickbooks.Invoice] {
		return s.QuickBooks.GetInvoiceByDocNumber(ctx, userID, docNumber)
	})
}

func (s *appService) QBOCreateInvoice(ctx context.Context, userID, teamID string, in quickbooks.InvoiceInput) (quickbooks.Result[*quickbooks.Invoice], error) {
	return qbo(ctx, s, userID, teamID, core.PermEditInvoices, func() quickbooks.Result[*quickbooks.Invoice] {
		return s.QuickBooks.CreateInvoice(ctx, userID, in)
	})
}

func (s *appService) QBOUpdateInvoice(ctx context.Context, userID, teamID, invoiceID string, p quickbooks.InvoicePatch) (quickbooks.Result[*quickbooks.Invoice], error) {
	return qbo(ctx, s, userID, teamID, core.PermEditInvoices, func() quickbooks.Result[*quickbooks.Invoice] {
		return s.QuickBooks.UpdateInvoice(ctx, userID, invoiceID, p)
	})
}

func (s *appService) QBODeleteInvoice(ctx context.Context, userID, teamID, invoiceID string) (quickbooks.Result[*quickbooks.DeletedInvoice], error) {
	return qbo(ctx, s, userID, teamID, core.PermDeleteInvoices, func() quickbooks.Result[*quickbooks.DeletedInvoice] {
		return s.QuickBooks.DeleteInvoice(ctx, userID, invoiceID)
	})
}

func (s *appService) QBOSendInvoice(ctx context.Context, userID, teamID, invoiceID, email string) (quickbooks.Result[*quickbooks.Invoice], error) {
	return qbo(ctx, s, userID, teamID, core.PermEditInvoices, func() quickbooks.Result[*quickbooks.Invoice] {
		return s.QuickBooks.SendInvoicePDF(ctx, userID, invoiceID, email)
	})
}

func (s *appService) QBOListCustomers(ctx context.Context, userID, teamID string) (quickbooks.Result[[]quickbooks.Customer], error) {
	return qbo(ctx, s, userID, teamID, core.PermViewInvoices, func() quickbooks.Result[[]quickbooks.Customer] {
		return s.QuickBooks.GetCustomers(ctx, userID)
	})
}

func (s *appService) QBOCreateCustomer(ctx context.Context, userID, teamID string, in quickbooks.CustomerInput) (quickbooks.Result[*quickbooks.Customer], error) {
	return qbo(ctx, s, userID, teamID, core.PermEditInvoices, func() quickbooks.Result[*quickbooks.Customer] {
		return s.QuickBooks.CreateCustomer(ctx, userID, in)
	})
}

func (s *appService) QBOListItems(ctx context.Context, userID, teamID string) (quickbooks.Result[[]quickbooks.Item], error) {
	return qbo(ctx, s, userID, teamID, core.PermViewInvoices, func() quickbooks.Result[[]quickbooks.Item] {
		return s.QuickBooks.GetItems(ctx, userID)
	})
}

func (s *appService) QBOCreateItem(ctx context.Context, userID, teamID string, in quickbooks.ItemInput) (quickbooks.Result[*quickbooks.Item], error) {
	return qbo(ctx, s, userID, teamID, core.PermEditInvoices, func() quickbooks.Result[*quickbooks.Item] {
		return s.QuickBooks.CreateItem(ctx, userID, in)
	})
}

// ── Assistant ────────────────────────────────────────────────────────────────

func (s *appService) Chat(ctx context.Context, userID string, req ChatRequest) (*ai.ChatResult, error) {
	if s.Agent == nil {
		return nil, ErrAssistantUnavailable
	}
	if len(req.Messages) == 0 {
		return nil, &core.ValidationError{Field: "messages", Message: "at least one message is required"}
	}
	for i, m := range req.Messages {
		if m.Role != "user" && m.Role != "assistant" {
			return nil, &core.ValidationError{Field: fmt.Sprintf("messages[%d].role", i), Message: "must be user or assistant"}
		}
	}
	deps := ai.ToolDeps{Invoices: s.AIInvoices, TeamID: core.DemoTeamID, UserID: userID, QuickBooks: s.QuickBooks}
	if req.TeamID != "" {
		role, err := s.requireMember(ctx, userID, req.TeamID)
		if err != nil {
			return nil, err
		}
		if !core.HasPermission(role, core.PermUseAITools) {
			return nil, &ForbiddenError{Permission: core.PermUseAITools}
		}
		// Tools act with the caller's own invoice permissions.
		deps.Can = func(p core.Permission) bool { return core.HasPermission(role, p) }
	}
	if s.AIBackend == AIBackendDatabase {
		if req.TeamID == "" {
			return nil, &core.ValidationError{Field: "team_id", Message: "is required"}
		}
		deps.Invoices, deps.TeamID = s.Invoices, req.TeamID
	}

	tools := ai.NewAssistantRegistry(deps).WithMetrics(s.Metrics)
	res, err := s.Agent.Chat(ctx, req.Messages, tools)
	if err != nil && !errors.Is(err, ai.ErrTooManyToolRounds) {
		s.Log.Error("assistant chat failed", zap.String("user_id", userID), zap.Error(err))
	}
	return res, err
}

func (s *appService) Calculate(expression string) (float64, error) {
	return ai.Evaluate(expression)
}

func (s *appService) AssistantInvoices(ctx context.Context) ([]core.Invoice, error) {
	return s.AIInvoices.List(ctx, core.DemoTeamID, core.InvoiceFilter{})
}

func (s *appService) AssistantInvoiceStats(ctx context.Context) (*core.InvoiceStats, error) {
	return s.AIInvoices.Stats(ctx, core.DemoTeamID)
}

// ── Maintenance ──────────────────────────────────────────────────────────────

func (s *appService) Cleanup(ctx context.Context) (*CleanupResult, error) {
	res := &CleanupResult{}
	if s.Tokens != nil {
		n, err := s.Tokens.CleanupExpiredTokens(ctx)
		if err != nil {
			return nil, err
		}
		res.ExpiredTokens = n
	}
	if s.Teams != nil {
		n, err := s.Teams.CleanupExpiredInvitations(ctx)
		if err != nil {
			return nil, err
		}
		res.ExpiredInvitations = n
	}
	s.Log.Info("cleanup finished", zap.Int64("expired_tokens", res.ExpiredTokens), zap.Int64("expired_invitations", res.ExpiredInvitations))
	return res, nil
}
