package graph

import (
	"time"

	"github.com/microsoftgraph/msgraph-sdk-go/models"
)

// Folder is a mail folder as returned by /me/mailFolders.
type Folder struct {
	ID               string `json:"id"`
	DisplayName      string `json:"displayName"`
	ParentFolderID   string `json:"parentFolderId,omitempty"`
	ChildFolderCount int    `json:"childFolderCount"`
	UnreadItemCount  int    `json:"unreadItemCount"`
	TotalItemCount   int    `json:"totalItemCount"`
}

// EmailAddress is a named mailbox address.
type EmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Recipient wraps an EmailAddress the way Graph nests it.
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// ItemBody is a message body with its content type ("html" or "text").
type ItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// Flag is the follow-up flag of a message.
type Flag struct {
	FlagStatus string `json:"flagStatus"`
}

// Flagged reports whether the message is pinned for follow-up.
func (f *Flag) Flagged() bool {
	return f != nil && f.FlagStatus == "flagged"
}

// Message is a mail message. Which fields are populated depends on the
// $select used for the request.
type Message struct {
	ID               string      `json:"id"`
	Subject          string      `json:"subject"`
	BodyPreview      string      `json:"bodyPreview,omitempty"`
	Body             *ItemBody   `json:"body,omitempty"`
	From             *Recipient  `json:"from,omitempty"`
	ToRecipients     []Recipient `json:"toRecipients,omitempty"`
	CcRecipients     []Recipient `json:"ccRecipients,omitempty"`
	ReceivedDateTime string      `json:"receivedDateTime,omitempty"`
	IsRead           bool        `json:"isRead"`
	HasAttachments   bool        `json:"hasAttachments"`
	ParentFolderID   string      `json:"parentFolderId,omitempty"`
	Flag             *Flag       `json:"flag,omitempty"`
}

// Sender returns the sender address, or the zero value when absent.
func (m Message) Sender() EmailAddress {
	if m.From == nil {
		return EmailAddress{}
	}
	return m.From.EmailAddress
}

// BodyContent returns the raw body content, or "" when the body was not selected.
func (m Message) BodyContent() string {
	if m.Body == nil {
		return ""
	}
	return m.Body.Content
}

// Profile is the signed-in user as returned by /me.
type Profile struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// EmailAddress returns the primary SMTP address, falling back to the UPN.
func (p Profile) EmailAddress() string {
	if p.Mail != "" {
		return p.Mail
	}
	return p.UserPrincipalName
}

// Name returns the display name, falling back to the email address.
func (p Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.EmailAddress()
}

func folderFromModel(f models.MailFolderable) Folder {
	return Folder{
		ID:               deref(f.GetId()),
		DisplayName:      deref(f.GetDisplayName()),
		ParentFolderID:   deref(f.GetParentFolderId()),
		ChildFolderCount: int(deref(f.GetChildFolderCount())),
		UnreadItemCount:  int(deref(f.GetUnreadItemCount())),
		TotalItemCount:   int(deref(f.GetTotalItemCount())),
	}
}

func messageFromModel(m models.Messageable) Message {
	msg := Message{
		ID:             deref(m.GetId()),
		Subject:        deref(m.GetSubject()),
		BodyPreview:    deref(m.GetBodyPreview()),
		From:           recipientFromModel(m.GetFrom()),
		ToRecipients:   recipientsFromModel(m.GetToRecipients()),
		CcRecipients:   recipientsFromModel(m.GetCcRecipients()),
		IsRead:         deref(m.GetIsRead()),
		HasAttachments: deref(m.GetHasAttachments()),
		ParentFolderID: deref(m.GetParentFolderId()),
	}
	if received := m.GetReceivedDateTime(); received != nil {
		msg.ReceivedDateTime = received.UTC().Format(time.RFC3339)
	}
	if body := m.GetBody(); body != nil {
		msg.Body = &ItemBody{Content: deref(body.GetContent())}
		if ct := body.GetContentType(); ct != nil {
			msg.Body.ContentType = ct.String()
		}
	}
	if flag := m.GetFlag(); flag != nil {
		if fs := flag.GetFlagStatus(); fs != nil {
			msg.Flag = &Flag{FlagStatus: fs.String()}
		}
	}
	return msg
}

func recipientFromModel(r models.Recipientable) *Recipient {
	if r == nil || r.GetEmailAddress() == nil {
		return nil
	}
	addr := r.GetEmailAddress()
	return &Recipient{EmailAddress: EmailAddress{
		Name:    deref(addr.GetName()),
		Address: deref(addr.GetAddress()),
	}}
}

func recipientsFromModel(rs []models.Recipientable) []Recipient {
	var out []Recipient
	for _, r := range rs {
		if rec := recipientFromModel(r); rec != nil {
			out = append(out, *rec)
		}
	}
	return out
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
