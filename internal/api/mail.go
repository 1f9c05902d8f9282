package api

import (
	"net/http"
	"strconv"

	"github.com/teemow/inboxsorter/internal/apperr"
	"github.com/teemow/inboxsorter/internal/credential"
	"github.com/teemow/inboxsorter/internal/graph"
)

type folderView struct {
	ID               string  `json:"id"`
	DisplayName      string  `json:"display_name"`
	ParentFolderID   *string `json:"parent_folder_id"`
	ChildFolderCount int     `json:"child_folder_count"`
	UnreadItemCount  int     `json:"unread_item_count"`
	TotalItemCount   int     `json:"total_item_count"`
}

func foldersView(folders []graph.Folder) []folderView {
	out := make([]folderView, len(folders))
	for i, f := range folders {
		out[i] = folderView{
			ID:               f.ID,
			DisplayName:      f.DisplayName,
			ChildFolderCount: f.ChildFolderCount,
			UnreadItemCount:  f.UnreadItemCount,
			TotalItemCount:   f.TotalItemCount,
		}
		if f.ParentFolderID != "" {
			parent := f.ParentFolderID
			out[i].ParentFolderID = &parent
		}
	}
	return out
}

type messagePreview struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	FromAddress string `json:"from_address"`
	FromName    string `json:"from_name"`
	ReceivedAt  string `json:"received_at"`
	BodyPreview string `json:"body_preview"`
	IsRead      bool   `json:"is_read"`
	FolderID    string `json:"folder_id"`
}

func previews(messages []graph.Message) []messagePreview {
	out := make([]messagePreview, len(messages))
	for i, m := range messages {
		subject := m.Subject
		if subject == "" {
			subject = "(No Subject)"
		}
		sender := m.Sender()
		out[i] = messagePreview{
			ID:          m.ID,
			Subject:     subject,
			FromAddress: sender.Address,
			FromName:    sender.Name,
			ReceivedAt:  m.ReceivedDateTime,
			BodyPreview: m.BodyPreview,
			IsRead:      m.IsRead,
			FolderID:    m.ParentFolderID,
		}
	}
	return out
}

func (h *Handler) listFolders(w http.ResponseWriter, r *http.Request, session credential.Session) {
	folders, err := h.sc.Graph().ListFolders(r.Context(), session.AccessToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, foldersView(folders))
}

func (h *Handler) childFolders(w http.ResponseWriter, r *http.Request, session credential.Session) {
	folders, err := h.sc.Graph().ChildFolders(r.Context(), session.AccessToken, r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, foldersView(folders))
}

func listOptions(r *http.Request) (graph.ListOptions, error) {
	q := r.URL.Query()
	opts := graph.DefaultListOptions()

	if v := q.Get("folder_id"); v != "" {
		opts.FolderID = v
	}
	if v := q.Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return opts, apperr.InvalidRequest("top must be a positive integer")
		}
		opts.Top = n
	}
	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, apperr.InvalidRequest("skip must be an integer")
		}
		opts.Skip = n
	}
	if v := q.Get("filter_read"); v != "" {
		switch v {
		case graph.FilterAll, graph.FilterUnread, graph.FilterRead:
			opts.FilterRead = v
		default:
			return opts, apperr.InvalidRequest("filter_read must be one of: all, unread, read")
		}
	}
	if v := q.Get("exclude_flagged"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, apperr.InvalidRequest("exclude_flagged must be a boolean")
		}
		opts.ExcludeFlagged = b
	}
	return opts, nil
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request, session credential.Session) {
	opts, err := listOptions(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	messages, err := h.sc.Graph().ListMessages(r.Context(), session.AccessToken, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, previews(messages))
}

func (h *Handler) getMessage(w http.ResponseWriter, r *http.Request, session credential.Session) {
	msg, err := h.sc.Graph().GetMessageDetail(r.Context(), session.AccessToken, r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) moveMessage(w http.ResponseWriter, r *http.Request, session credential.Session) {
	dest := r.URL.Query().Get("destination_folder_id")
	if dest == "" {
		writeDetail(w, http.StatusBadRequest, "destination_folder_id is required")
		return
	}
	moved, err := h.sc.Graph().MoveMessage(r.Context(), session.AccessToken, r.PathValue("id"), dest)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, moved)
}
