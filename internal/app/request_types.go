package app

import (
	"invoice-agent/internal/ai"
	"invoice-agent/internal/core"
)

// CreateTeamRequest is the input for creating a team.
type CreateTeamRequest struct {
	Name        string `json:"team_name"`
	Description string `json:"description"`
}

// InviteRequest invites an email address into a team with a role.
type InviteRequest struct {
	Email string    `json:"email"`
	Role  core.Role `json:"role"`
}

// ChatRequest is one assistant turn. TeamID is optional; with the database
// backend it selects whose invoices the assistant works on.
type ChatRequest struct {
	TeamID   string       `json:"team_id,omitempty"`
	Messages []ai.Message `json:"messages"`
}
