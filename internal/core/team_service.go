package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type teamService struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewTeamService constructs a TeamService backed by PostgreSQL.
func NewTeamService(pool *pgxpool.Pool) TeamService {
	return &teamService{pool: pool, now: time.Now}
}

// ── Permission checks ────────────────────────────────────────────────────────

func (s *teamService) CheckUserRole(ctx context.Context, userID, teamID string, allowed ...Role) (RoleCheck, error) {
	roles := make([]string, 0, len(allowed))
	for _, r := range allowed {
		roles = append(roles, string(r))
	}
	if len(roles) == 0 {
		for _, r := range Roles {
			roles = append(roles, string(r))
		}
	}

	var (
		rc   RoleCheck
		role *string
	)
	err := s.pool.QueryRow(ctx,
		"SELECT has_permission, user_role, is_member FROM check_user_role($1, $2, $3)",
		userID, teamID, roles,
	).Scan(&rc.HasPermission, &role, &rc.IsMember)
	if err != nil {
		return RoleCheck{}, fmt.Errorf("failed to check role of user %s in team %s: %w", userID, teamID, err)
	}
	if role != nil {
		rc.UserRole = Role(*role)
	}
	return rc, nil
}

func (s *teamService) CheckUserPermission(ctx context.Context, userID, teamID string, perm Permission) (bool, error) {
	allowed := RolesWithPermission(perm)
	if len(allowed) == 0 {
		return false, nil
	}
	rc, err := s.CheckUserRole(ctx, userID, teamID, allowed...)
	if err != nil {
		return false, err
	}
	return rc.HasPermission, nil
}

func (s *teamService) GetUserTeams(ctx context.Context, userID string) ([]UserTeam, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT team_id, team_name, role, is_owner, member_count FROM get_user_teams($1)", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams for user %s: %w", userID, err)
	}
	defer rows.Close()

	teams := []UserTeam{}
	for rows.Next() {
		var t UserTeam
		if err := rows.Scan(&t.TeamID, &t.TeamName, &t.Role, &t.IsOwner, &t.MemberCount); err != nil {
			return nil, fmt.Errorf("failed to scan user team: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// ── Teams ────────────────────────────────────────────────────────────────────

const teamColumns = "id, team_name, description, owner_id, created_at, updated_at"

func scanTeam(row pgx.Row) (*Team, error) {
	t := &Team{}
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *teamService) GetTeam(ctx context.Context, teamID string) (*Team, error) {
	if err := lookupID(teamID); err != nil {
		return nil, err
	}
	t, err := scanTeam(s.pool.QueryRow(ctx, "SELECT "+teamColumns+" FROM teams WHERE id = $1", teamID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get team %s: %w", teamID, err)
	}
	return t, err
}

func (s *teamService) CreateTeam(ctx context.Context, name, description, ownerID string) (*Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("team_name", "is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := scanTeam(tx.QueryRow(ctx, `
		INSERT INTO teams (team_name, description, owner_id)
		VALUES ($1, $2, $3)
		RETURNING `+teamColumns,
		name, strings.TrimSpace(description), ownerID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert team: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO team_members (team_id, user_id, role) VALUES ($1, $2, $3)",
		t.ID, ownerID, string(RoleAdmin),
	); err != nil {
		return nil, fmt.Errorf("failed to add owner to team: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit team: %w", err)
	}
	return t, nil
}

func (s *teamService) UpdateTeam(ctx context.Context, teamID string, upd TeamUpdate) (*Team, error) {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return nil, invalid("team_name", "cannot be empty")
	}
	t, err := scanTeam(s.pool.QueryRow(ctx, `
		UPDATE teams
		SET team_name = COALESCE($2, team_name),
		    description = COALESCE($3, description),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+teamColumns,
		teamID, upd.Name, upd.Description,
	))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to update team %s: %w", teamID, err)
	}
	return t, err
}

func (s *teamService) DeleteTeam(ctx context.Context, teamID string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM teams WHERE id = $1", teamID)
	if err != nil {
		return fmt.Errorf("failed to delete team %s: %w", teamID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ── Members ──────────────────────────────────────────────────────────────────

func (s *teamService) ListMembers(ctx context.Context, teamID string) ([]TeamMember, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT team_id, user_id, role, joined_at, invited_by
		FROM team_members
		WHERE team_id = $1
		ORDER BY joined_at`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of team %s: %w", teamID, err)
	}
	defer rows.Close()

	members := []TeamMember{}
	for rows.Next() {
		var m TeamMember
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.Role, &m.JoinedAt, &m.InvitedBy); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// lockAdmins locks the team row and returns the target member's role and the admin count.
// Concurrent role changes on the same team serialize on the lock.
func lockAdmins(ctx context.Context, tx pgx.Tx, teamID, userID string) (Role, int, error) {
	var id string
	if err := tx.QueryRow(ctx, "SELECT id FROM teams WHERE id = $1 FOR UPDATE", teamID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, ErrNotFound
		}
		return "", 0, fmt.Errorf("failed to lock team %s: %w", teamID, err)
	}

	var current Role
	err := tx.QueryRow(ctx,
		"SELECT role FROM team_members WHERE team_id = $1 AND user_id = $2", teamID, userID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, ErrNotFound
		}
		return "", 0, fmt.Errorf("failed to read member role: %w", err)
	}

	var admins int
	if err := tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM team_members WHERE team_id = $1 AND role = $2", teamID, string(RoleAdmin),
	).Scan(&admins); err != nil {
		return "", 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return current, admins, nil
}

func (s *teamService) UpdateMemberRole(ctx context.Context, teamID, userID string, role Role) (*TeamMember, error) {
	if !ValidRole(role) {
		return nil, ErrInvalidRole
	}
	if err := lookupID(userID); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, admins, err := lockAdmins(ctx, tx, teamID, userID)
	if err != nil {
		return nil, err
	}
	if current == RoleAdmin && role != RoleAdmin && admins <= 1 {
		return nil, ErrLastAdmin
	}

	m := &TeamMember{}
	err = tx.QueryRow(ctx, `
		UPDATE team_members SET role = $3
		WHERE team_id = $1 AND user_id = $2
		RETURNING team_id, user_id, role, joined_at, invited_by`,
		teamID, userID, string(role),
	).Scan(&m.TeamID, &m.UserID, &m.Role, &m.JoinedAt, &m.InvitedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to update member role: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit role change: %w", err)
	}
	return m, nil
}

func (s *teamService) RemoveMember(ctx context.Context, teamID, userID string) error {
	if err := lookupID(userID); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, admins, err := lockAdmins(ctx, tx, teamID, userID)
	if err != nil {
		return err
	}
	if current == RoleAdmin && admins <= 1 {
		return ErrLastAdmin
	}

	if _, err := tx.Exec(ctx,
		"DELETE FROM team_members WHERE team_id = $1 AND user_id = $2", teamID, userID,
	); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit member removal: %w", err)
	}
	return nil
}

// ── Invitations ──────────────────────────────────────────────────────────────

const invitationColumns = "id, team_id, email, role, invited_by, token, expires_at, created_at"

func scanInvitation(row pgx.Row) (*TeamInvitation, error) {
	inv := &TeamInvitation{}
	err := row.Scan(&inv.ID, &inv.TeamID, &inv.Email, &inv.Role, &inv.InvitedBy, &inv.Token, &inv.ExpiresAt, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return inv, nil
}

// NewInvitationToken returns 32 random bytes, base64url encoded without padding.
func NewInvitationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate invitation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *teamService) InviteUser(ctx context.Context, teamID, email string, role Role, invitedBy string) (*TeamInvitation, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := checkVar("email", email, "required,email"); err != nil {
		return nil, err
	}
	if !ValidRole(role) {
		return nil, ErrInvalidRole
	}

	token, err := NewInvitationToken()
	if err != nil {
		return nil, err
	}

	inv, err := scanInvitation(s.pool.QueryRow(ctx, `
		INSERT INTO team_invitations (team_id, email, role, invited_by, token, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+invitationColumns,
		teamID, email, string(role), invitedBy, token, s.now().Add(InvitationLifetime),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}
	return inv, nil
}

func (s *teamService) ListInvitations(ctx context.Context, teamID string) ([]TeamInvitation, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+invitationColumns+" FROM team_invitations WHERE team_id = $1 ORDER BY created_at DESC", teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations of team %s: %w", teamID, err)
	}
	defer rows.Close()

	invs := []TeamInvitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invs = append(invs, *inv)
	}
	return invs, rows.Err()
}

func (s *teamService) GetInvitationByToken(ctx context.Context, token string) (*TeamInvitation, error) {
	inv, err := scanInvitation(s.pool.QueryRow(ctx,
		"SELECT "+invitationColumns+" FROM team_invitations WHERE token = $1", token))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, err
}

func (s *teamService) AcceptInvitation(ctx context.Context, token, userID string) (*TeamMember, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := scanInvitation(tx.QueryRow(ctx,
		"SELECT "+invitationColumns+" FROM team_invitations WHERE token = $1 FOR UPDATE", token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock invitation: %w", err)
	}
	if inv.Expired(s.now()) {
		return nil, ErrInvitationExpired
	}

	m := &TeamMember{}
	err = tx.QueryRow(ctx, `
		INSERT INTO team_members (team_id, user_id, role, invited_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (team_id, user_id) DO NOTHING
		RETURNING team_id, user_id, role, joined_at, invited_by`,
		inv.TeamID, userID, string(inv.Role), inv.InvitedBy,
	).Scan(&m.TeamID, &m.UserID, &m.Role, &m.JoinedAt, &m.InvitedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlreadyMember
		}
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM team_invitations WHERE id = $1", inv.ID); err != nil {
		return nil, fmt.Errorf("failed to consume invitation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invitation acceptance: %w", err)
	}
	return m, nil
}

func (s *teamService) DeleteInvitation(ctx context.Context, teamID, invitationID string) error {
	if err := lookupID(invitationID); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM team_invitations WHERE id = $1 AND team_id = $2", invitationID, teamID)
	if err != nil {
		return fmt.Errorf("failed to delete invitation %s: %w", invitationID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *teamService) CleanupExpiredInvitations(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM team_invitations WHERE expires_at < $1", s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired invitations: %w", err)
	}
	return tag.RowsAffected(), nil
}
