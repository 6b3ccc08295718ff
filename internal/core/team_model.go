package core

import (
	"context"
	"time"
)

// InvitationLifetime is how long an invitation token stays acceptable.
const InvitationLifetime = 7 * 24 * time.Hour

// Team is a tenant. Invoices, members and invitations hang off it.
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"team_name"`
	Description string    `json:"description"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TeamMember holds exactly one role per (team, user).
type TeamMember struct {
	TeamID    string    `json:"team_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
	InvitedBy *string   `json:"invited_by,omitempty"`
}

// TeamInvitation is consumed on acceptance; Token is the acceptance key.
type TeamInvitation struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	InvitedBy string    `json:"invited_by"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the invitation can no longer be accepted at now.
func (i *TeamInvitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// UserTeam is one row of a user's team list.
type UserTeam struct {
	TeamID      string `json:"team_id"`
	TeamName    string `json:"team_name"`
	Role        Role   `json:"role"`
	IsOwner     bool   `json:"is_owner"`
	MemberCount int64  `json:"member_count"`
}

// RoleCheck is the answer to "is U a member of T with one of these roles".
type RoleCheck struct {
	HasPermission bool `json:"has_permission"`
	UserRole      Role `json:"user_role,omitempty"`
	IsMember      bool `json:"is_member"`
}

// TeamUpdate carries optional team fields; nil leaves the column unchanged.
type TeamUpdate struct {
	Name        *string `json:"team_name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// TeamService manages teams, memberships and invitations and answers
// permission questions against the static role matrix.
type TeamService interface {
	// CheckUserRole looks up membership and, when allowed is non-empty, whether the
	// member's role is in it. With no allowed roles any member has permission.
	CheckUserRole(ctx context.Context, userID, teamID string, allowed ...Role) (RoleCheck, error)
	CheckUserPermission(ctx context.Context, userID, teamID string, perm Permission) (bool, error)
	GetUserTeams(ctx context.Context, userID string) ([]UserTeam, error)

	GetTeam(ctx context.Context, teamID string) (*Team, error)
	CreateTeam(ctx context.Context, name, description, ownerID string) (*Team, error)
	UpdateTeam(ctx context.Context, teamID string, upd TeamUpdate) (*Team, error)
	DeleteTeam(ctx context.Context, teamID string) error

	ListMembers(ctx context.Context, teamID string) ([]TeamMember, error)
	// UpdateMemberRole and RemoveMember return ErrLastAdmin rather than leave the team without an admin.
	UpdateMemberRole(ctx context.Context, teamID, userID string, role Role) (*TeamMember, error)
	RemoveMember(ctx context.Context, teamID, userID string) error

	InviteUser(ctx context.Context, teamID, email string, role Role, invitedBy string) (*TeamInvitation, error)
	ListInvitations(ctx context.Context, teamID string) ([]TeamInvitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*TeamInvitation, error)
	AcceptInvitation(ctx context.Context, token, userID string) (*TeamMember, error)
	DeleteInvitation(ctx context.Context, teamID, invitationID string) error
	CleanupExpiredInvitations(ctx context.Context) (int64, error)
}
