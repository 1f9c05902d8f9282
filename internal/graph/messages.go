package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"github.com/teemow/inboxsorter/internal/apperr"
	"github.com/teemow/inboxsorter/internal/instrumentation"
)

const (
	// DefaultMessagePageSize is the number of messages listed when Top is unset.
	DefaultMessagePageSize = 100

	// MaxMessagePageSize is the largest accepted Top.
	MaxMessagePageSize = 500

	// DefaultFolderID is the well-known name of the inbox.
	DefaultFolderID = "inbox"

	// Read filters for ListMessages.
	FilterAll    = "all"
	FilterUnread = "unread"
	FilterRead   = "read"

	previewSelect        = "id,subject,from,receivedDateTime,bodyPreview,isRead,parentFolderId,flag"
	classificationSelect = "id,subject,body,from"
	detailSelect         = "id,subject,from,toRecipients,ccRecipients,receivedDateTime,body,isRead,parentFolderId,hasAttachments"
)

// ListOptions selects a page of messages in one folder.
type ListOptions struct {
	FolderID       string
	Top            int
	Skip           int
	FilterRead     string
	ExcludeFlagged bool
}

// DefaultListOptions returns the options used when a caller passes none:
// the first 100 inbox messages, flagged messages excluded.
func DefaultListOptions() ListOptions {
	return ListOptions{
		FolderID:       DefaultFolderID,
		Top:            DefaultMessagePageSize,
		FilterRead:     FilterAll,
		ExcludeFlagged: true,
	}
}

func (o ListOptions) query() (*users.ItemMailFoldersItemMessagesRequestBuilderGetQueryParameters, error) {
	if o.Top > MaxMessagePageSize {
		return nil, apperr.InvalidRequest(fmt.Sprintf("top must be at most %d", MaxMessagePageSize))
	}
	if o.Skip < 0 {
		return nil, apperr.InvalidRequest("skip must not be negative")
	}
	top := int32(o.Top)
	if top <= 0 {
		top = DefaultMessagePageSize
	}
	skip := int32(o.Skip)

	query := &users.ItemMailFoldersItemMessagesRequestBuilderGetQueryParameters{
		Select:  strings.Split(previewSelect, ","),
		Top:     &top,
		Skip:    &skip,
		Orderby: []string{"receivedDateTime desc"},
	}

	var filter string
	switch strings.ToLower(o.FilterRead) {
	case FilterUnread:
		filter = "isRead eq false"
	case FilterRead:
		filter = "isRead eq true"
	}
	if filter != "" {
		query.Filter = &filter
	}
	return query, nil
}

// ListMessages returns message previews from a folder, newest first.
func (c *Client) ListMessages(ctx context.Context, accessToken string, opts ListOptions) ([]Message, error) {
	query, err := opts.query()
	if err != nil {
		return nil, err
	}
	folderID := opts.FolderID
	if folderID == "" {
		folderID = DefaultFolderID
	}

	var page models.MessageCollectionResponseable
	_, err = c.call(ctx, instrumentation.OperationListMessages, accessToken, func(ctx context.Context) error {
		var err error
		page, err = c.sdk.Me().MailFolders().ByMailFolderId(folderID).Messages().Get(ctx,
			&users.ItemMailFoldersItemMessagesRequestBuilderGetRequestConfiguration{QueryParameters: query})
		return err
	})
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, emptyResponse(instrumentation.OperationListMessages)
	}

	values := page.GetValue()
	messages := make([]Message, 0, len(values))
	for _, m := range values {
		msg := messageFromModel(m)
		if opts.ExcludeFlagged && msg.Flag.Flagged() {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// GetMessage fetches the fields needed to classify a message: id, subject,
// body and sender.
func (c *Client) GetMessage(ctx context.Context, accessToken, messageID string) (Message, error) {
	return c.message(ctx, accessToken, messageID, classificationSelect)
}

// GetMessageDetail fetches a message with recipients, body and metadata.
func (c *Client) GetMessageDetail(ctx context.Context, accessToken, messageID string) (Message, error) {
	return c.message(ctx, accessToken, messageID, detailSelect)
}

func (c *Client) message(ctx context.Context, accessToken, messageID, fields string) (Message, error) {
	if messageID == "" {
		return Message{}, apperr.InvalidRequest("message id is required")
	}

	var msg models.Messageable
	_, err := c.call(ctx, instrumentation.OperationGetMessage, accessToken, func(ctx context.Context) error {
		var err error
		msg, err = c.sdk.Me().Messages().ByMessageId(messageID).Get(ctx, &users.ItemMessagesMessageItemRequestBuilderGetRequestConfiguration{
			QueryParameters: &users.ItemMessagesMessageItemRequestBuilderGetQueryParameters{
				Select: strings.Split(fields, ","),
			},
		})
		return err
	})
	if err != nil {
		return Message{}, err
	}
	if msg == nil {
		return Message{}, emptyResponse(instrumentation.OperationGetMessage)
	}
	return messageFromModel(msg), nil
}

// MoveMessage moves a message into the destination folder and returns the
// moved copy. Only 200 and 201 count as success. A successful move whose
// body cannot be decoded still counts as moved; the returned message then
// carries only the original id and the destination.
func (c *Client) MoveMessage(ctx context.Context, accessToken, messageID, destinationID string) (Message, error) {
	if messageID == "" || destinationID == "" {
		return Message{}, apperr.InvalidRequest("message id and destination folder id are required")
	}

	body := users.NewItemMessagesItemMovePostRequestBody()
	body.SetDestinationId(&destinationID)

	var moved models.Messageable
	status, err := c.call(ctx, instrumentation.OperationMoveMessage, accessToken, func(ctx context.Context) error {
		var err error
		moved, err = c.sdk.Me().Messages().ByMessageId(messageID).Move().Post(ctx, body, nil)
		return err
	})

	succeeded := status == http.StatusOK || status == http.StatusCreated
	switch {
	case err != nil && !(succeeded && apperr.Is(err, apperr.KindMalformedResponse)):
		return Message{}, err
	case !succeeded:
		return Message{}, apperr.Upstream("graph."+instrumentation.OperationMoveMessage, status,
			errors.New("unexpected status "+strconv.Itoa(status)))
	case moved == nil || err != nil:
		c.logger.WarnContext(ctx, "move succeeded without a readable body", "status", status)
		return Message{ID: messageID, ParentFolderID: destinationID}, nil
	}
	return messageFromModel(moved), nil
}
