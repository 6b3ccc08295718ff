package app

import (
	"time"

	"invoice-agent/internal/core"
)

// TeamResult is returned by GetTeam.
type TeamResult struct {
	Team        *core.Team               `json:"team"`
	Role        core.Role                `json:"role"`
	Permissions map[core.Permission]bool `json:"permissions"`
}

// InvitationResult is returned by InviteUser. AcceptURL is what the invitee opens.
type InvitationResult struct {
	Invitation *core.TeamInvitation `json:"invitation"`
	AcceptURL  string               `json:"accept_url"`
}

// InvitationView is what an invitee sees before accepting. It never carries the token.
type InvitationView struct {
	TeamID    string    `json:"team_id"`
	TeamName  string    `json:"team_name"`
	Email     string    `json:"email"`
	Role      core.Role `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
	Expired   bool      `json:"expired"`
}

// CleanupResult is returned by Cleanup.
type CleanupResult struct {
	ExpiredTokens      int64 `json:"expired_tokens"`
	ExpiredInvitations int64 `json:"expired_invitations"`
}
