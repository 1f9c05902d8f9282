package api

import (
	"net/http"
	"strconv"

	"github.com/teemow/inboxsorter/internal/classify"
	"github.com/teemow/inboxsorter/internal/credential"
)

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request, session credential.Session) {
	var req classify.Request
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	outcomes, err := h.sc.Classifier().Analyze(r.Context(), session, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomes)
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request, session credential.Session) {
	var req classify.Request
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	outcomes, err := h.sc.Classifier().Execute(r.Context(), session, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomes)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request, session credential.Session) {
	limit := classify.DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	records, err := h.sc.Classifier().History(r.Context(), session, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request, session credential.Session) {
	stats, err := h.sc.Classifier().Stats(r.Context(), session)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
