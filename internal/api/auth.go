package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/teemow/inboxsorter/internal/apperr"
	"github.com/teemow/inboxsorter/internal/credential"
	"github.com/teemow/inboxsorter/internal/logging"
)

func newState() string {
	return uuid.NewString()
}

type loginResponse struct {
	AuthURL string `json:"auth_url"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.sc.AuthCodeURL(h.newState())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{AuthURL: authURL})
}

// callback completes sign-in and redirects to the frontend with the new
// access token. Provider errors are forwarded to the frontend login page.
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	frontend := strings.TrimRight(h.sc.Config().FrontendURL, "/")

	if providerErr := q.Get("error"); providerErr != "" {
		detail := q.Get("error_description")
		if detail == "" {
			detail = providerErr
		}
		h.logger.WarnContext(r.Context(), "sign-in rejected by identity provider",
			logging.Status(providerErr))
		http.Redirect(w, r, frontend+"/login?error="+url.QueryEscape(detail), http.StatusFound)
		return
	}

	code := q.Get("code")
	if code == "" {
		writeDetail(w, http.StatusBadRequest, "Authorization code missing")
		return
	}

	cred, err := h.sc.Sessions().Complete(r.Context(), code)
	if err != nil {
		if apperr.Is(err, apperr.KindConfigurationMissing) {
			h.writeError(w, r, err)
			return
		}
		h.logger.ErrorContext(r.Context(), "sign-in failed", logging.Err(err))
		writeDetail(w, http.StatusBadRequest, "Failed to exchange code for token")
		return
	}

	target := frontend + "?token=" + url.QueryEscape(cred.AccessToken) + "&user=" + url.QueryEscape(cred.DisplayName)
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) me(w http.ResponseWriter, _ *http.Request, session credential.Session) {
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sc.Sessions().Logout(r.Context(), accessToken(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}
