package api

import (
	"net/http"

	"github.com/teemow/inboxsorter/internal/credential"
	"github.com/teemow/inboxsorter/internal/rules"
)

type toggleResponse struct {
	IsActive bool `json:"is_active"`
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request, session credential.Session) {
	list, err := h.sc.Rules().List(r.Context(), session.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []rules.Rule{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request, session credential.Session) {
	var in rules.Input
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	rule, err := h.sc.Rules().Create(r.Context(), session.UserID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handler) updateRule(w http.ResponseWriter, r *http.Request, session credential.Session) {
	var in rules.Input
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	rule, err := h.sc.Rules().Update(r.Context(), session.UserID, r.PathValue("id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request, session credential.Session) {
	if err := h.sc.Rules().Delete(r.Context(), session.UserID, r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Rule deleted successfully"})
}

func (h *Handler) toggleRule(w http.ResponseWriter, r *http.Request, session credential.Session) {
	active, err := h.sc.Rules().Toggle(r.Context(), session.UserID, r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{IsActive: active})
}
