package app

import (
	"context"

	"invoice-agent/internal/ai"
	"invoice-agent/internal/core"
	"invoice-agent/internal/quickbooks"
)

// ApplicationService is the single interface the web and CLI adapters call.
// Every user-facing operation takes the authenticated user id; team-scoped
// operations check the caller's role against the permission matrix first.
type ApplicationService interface {
	// ListTeams returns the teams userID belongs to.
	ListTeams(ctx context.Context, userID string) ([]core.UserTeam, error)
	// CreateTeam creates a team owned by userID, who becomes its first admin.
	CreateTeam(ctx context.Context, userID string, req CreateTeamRequest) (*core.Team, error)
	// GetTeam returns the team with the caller's role and permissions. Members only.
	GetTeam(ctx context.Context, userID, teamID string) (*TeamResult, error)
	UpdateTeam(ctx context.Context, userID, teamID string, upd core.TeamUpdate) (*core.Team, error)
	DeleteTeam(ctx context.Context, userID, teamID string) error

	ListMembers(ctx context.Context, userID, teamID string) ([]core.TeamMember, error)
	UpdateMemberRole(ctx context.Context, userID, teamID, memberID string, role core.Role) (*core.TeamMember, error)
	// RemoveMember refuses to remove the caller and the team's last admin.
	RemoveMember(ctx context.Context, userID, teamID, memberID string) error

	InviteUser(ctx context.Context, userID, teamID string, req InviteRequest) (*InvitationResult, error)
	ListInvitations(ctx context.Context, userID, teamID string) ([]core.TeamInvitation, error)
	DeleteInvitation(ctx context.Context, userID, teamID, invitationID string) error
	// GetInvitation describes a pending invitation to whoever holds its token.
	GetInvitation(ctx context.Context, token string) (*InvitationView, error)
	AcceptInvitation(ctx context.Context, userID, token string) (*core.TeamMember, error)

	// Internal invoices are always team scoped.
	ListInvoices(ctx context.Context, userID, teamID string, f core.InvoiceFilter) ([]core.Invoice, error)
	GetInvoice(ctx context.Context, userID, teamID, invoiceID string) (*core.Invoice, error)
	CreateInvoice(ctx context.Context, userID, teamID string, in core.InvoiceInput) (*core.Invoice, error)
	UpdateInvoice(ctx context.Context, userID, teamID, invoiceID string, upd core.InvoiceUpdate) (*core.Invoice, error)
	DeleteInvoice(ctx context.Context, userID, teamID, invoiceID string) error
	InvoiceStats(ctx context.Context, userID, teamID string) (*core.InvoiceStats, error)

	// StartQuickBooksAuth issues a single-use state bound to userID and returns the consent URL.
	StartQuickBooksAuth(ctx context.Context, userID string) (string, error)
	// CompleteQuickBooksAuth consumes state and stores the tokens for the user it was issued to.
	CompleteQuickBooksAuth(ctx context.Context, state, code, realmID string) (string, error)
	QuickBooksStatus(ctx context.Context, userID string) (quickbooks.ConnectionStatus, error)
	DisconnectQuickBooks(ctx context.Context, userID, teamID string) error

	// QuickBooks operations act on the caller's own connection. teamID is optional;
	// when set, the caller's role in that team must grant the operation.
	QBOCompany(ctx context.Context, userID, teamID string) (quickbooks.Result[*quickbooks.CompanyInfo], error)
	QBOListInvoices(ctx context.Context, userID, teamID string, limit, offset int) (quickbooks.Result[[]quickbooks.Invoice], error)
	QBOGetInvoice(ctx context.Context, userID, teamID, invoiceID string) (quickbooks.Result[*quickbooks.Invoice], error)
	QBOFindInvoice(ctx context.Context, userID, teamID, docNumber string) (quickbooks.Result[*quickbooks.Invoice], error)
	QBOCreateInvoice(ctx context.Context, userID, teamID string, in quickbooks.InvoiceInput) (quickbooks.Result[*quickbooks.Invoice], error)
	QBOUpdateInvoice(ctx context.Context, userID, teamID, invoiceID string, p quickbooks.InvoicePatch) (quickbooks.Result[*quickbooks.Invoice], error)
	QBODeleteInvoice(ctx context.Context, userID, teamID, invoiceID string) (quickbooks.Result[*quickbooks.DeletedInvoice], error)
	QBOSendInvoice(ctx context.Context, userID, teamID, invoiceID, email string) (quickbooks.Result[*quickbooks.Invoice], error)
	QBOListCustomers(ctx context.Context, userID, teamID string) (quickbooks.Result[[]quickbooks.Customer], error)
	QBOCreateCustomer(ctx context.Context, userID, teamID string, in quickbooks.CustomerInput) (quickbooks.Result[*quickbooks.Customer], error)
	QBOListItems(ctx context.Context, userID, teamID string) (quickbooks.Result[[]quickbooks.Item], error)
	QBOCreateItem(ctx context.Context, userID, teamID string, in quickbooks.ItemInput) (quickbooks.Result[*quickbooks.Item], error)

	// Chat runs one assistant turn over the conversation in req.
	Chat(ctx context.Context, userID string, req ChatRequest) (*ai.ChatResult, error)
	// Calculate evaluates an arithmetic expression with the assistant's calculator.
	Calculate(expression string) (float64, error)
	// AssistantInvoices and AssistantInvoiceStats read the invoices the assistant works on
	// when no team is involved.
	AssistantInvoices(ctx context.Context) ([]core.Invoice, error)
	AssistantInvoiceStats(ctx context.Context) (*core.InvoiceStats, error)

	// Cleanup deletes expired QuickBooks tokens and expired invitations.
	Cleanup(ctx context.Context) (*CleanupResult, error)
}
