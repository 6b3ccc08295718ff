package web

import (
	"errors"
	"net/http"

	"invoice-agent/internal/app"
	"invoice-agent/internal/core"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.svc.ListTeams(r.Context(), userID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, teams)
}

func (h *Handler) createTeam(w http.ResponseWriter, r *http.Request) {
	var req app.CreateTeamRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	team, err := h.svc.CreateTeam(r.Context(), userID(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, team)
}

func (h *Handler) getTeam(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetTeam(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *Handler) updateTeam(w http.ResponseWriter, r *http.Request) {
	var upd core.TeamUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}
	team, err := h.svc.UpdateTeam(r.Context(), userID(r), chi.URLParam(r, "id"), upd)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, team)
}

func (h *Handler) deleteTeam(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTeam(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

// ── Members ──────────────────────────────────────────────────────────────────

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.svc.ListMembers(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, members)
}

func (h *Handler) updateMemberRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role core.Role `json:"role"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.svc.UpdateMemberRole(r.Context(), userID(r), chi.URLParam(r, "id"), chi.URLParam(r, "userId"), req.Role)
	if errors.Is(err, core.ErrLastAdmin) {
		writeError(w, r, "Cannot demote the last admin", "LAST_ADMIN", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, m)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	err := h.svc.RemoveMember(r.Context(), userID(r), chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	if errors.Is(err, core.ErrLastAdmin) {
		writeError(w, r, "Cannot remove the last admin", "LAST_ADMIN", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

// ── Invitations ──────────────────────────────────────────────────────────────

func (h *Handler) inviteUser(w http.ResponseWriter, r *http.Request) {
	var req app.InviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.InviteUser(r.Context(), userID(r), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, res)
}

func (h *Handler) listInvitations(w http.ResponseWriter, r *http.Request) {
	invs, err := h.svc.ListInvitations(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, invs)
}

func (h *Handler) deleteInvitation(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteInvitation(r.Context(), userID(r), chi.URLParam(r, "id"), chi.URLParam(r, "invitationId"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (h *Handler) getInvitation(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetInvitation(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

func (h *Handler) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.AcceptInvitation(r.Context(), userID(r), chi.URLParam(r, "token"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, m)
}
