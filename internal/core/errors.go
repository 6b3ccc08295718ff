package core

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrLastAdmin         = errors.New("team must keep at least one admin")
	ErrAlreadyMember     = errors.New("user is already a member of this team")
	ErrInvitationExpired = errors.New("invitation has expired")
	ErrInvalidRole       = errors.New("invalid role")
	ErrSelfRemoval       = errors.New("cannot remove yourself from the team")
)

// ValidationError reports a single invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
