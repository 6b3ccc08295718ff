package app

import (
	"errors"
	"fmt"

	"invoice-agent/internal/core"
)

var (
	ErrNotMember            = errors.New("not a member of this team")
	ErrAssistantUnavailable = errors.New("AI assistant is not configured")

	// ErrQuickBooksUnavailable is returned when no QuickBooks client credentials are configured.
	ErrQuickBooksUnavailable = errors.New("QuickBooks integration is not configured")
)

// ForbiddenError reports the permission the caller's role lacks.
type ForbiddenError struct {
	Permission core.Permission
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("requires %s permission", e.Permission)
}
