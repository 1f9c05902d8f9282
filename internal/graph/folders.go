package graph

import (
	"context"
	"strings"

	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"github.com/teemow/inboxsorter/internal/instrumentation"
	"github.com/teemow/inboxsorter/internal/logging"
)

const (
	// MaxFolderDepth bounds how many folder levels ListFolders descends.
	MaxFolderDepth = 10

	folderSelect   = "id,displayName,parentFolderId,childFolderCount,unreadItemCount,totalItemCount"
	folderPageSize = int32(100)
)

// ListFolders returns every mail folder in depth-first order, parents before
// their children. A failure on the top level is returned; failures below it
// are logged and that subtree is skipped.
func (c *Client) ListFolders(ctx context.Context, accessToken string) ([]Folder, error) {
	roots, err := c.folders(ctx, instrumentation.OperationListFolders, accessToken, "")
	if err != nil {
		return nil, err
	}

	type pending struct {
		folder Folder
		depth  int
	}

	stack := make([]pending, 0, len(roots))
	push := func(folders []Folder, depth int) {
		for i := len(folders) - 1; i >= 0; i-- {
			stack = append(stack, pending{folder: folders[i], depth: depth})
		}
	}
	push(roots, 0)

	var all []Folder
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		all = append(all, next.folder)

		if next.folder.ChildFolderCount == 0 || next.depth+1 >= MaxFolderDepth {
			continue
		}
		if err := ctx.Err(); err != nil {
			return all, err
		}

		children, err := c.folders(ctx, instrumentation.OperationChildFolders, accessToken, next.folder.ID)
		if err != nil {
			c.logger.WarnContext(ctx, "skipping child folders",
				logging.Folder(next.folder.DisplayName),
				logging.Err(err))
			continue
		}
		push(children, next.depth+1)
	}

	return all, nil
}

// ChildFolders returns the direct children of a folder.
func (c *Client) ChildFolders(ctx context.Context, accessToken, folderID string) ([]Folder, error) {
	return c.folders(ctx, instrumentation.OperationChildFolders, accessToken, folderID)
}

func (c *Client) folders(ctx context.Context, operation, accessToken, parentID string) ([]Folder, error) {
	top := folderPageSize
	fields := strings.Split(folderSelect, ",")

	var page models.MailFolderCollectionResponseable
	_, err := c.call(ctx, operation, accessToken, func(ctx context.Context) error {
		var err error
		if parentID == "" {
			page, err = c.sdk.Me().MailFolders().Get(ctx, &users.ItemMailFoldersRequestBuilderGetRequestConfiguration{
				QueryParameters: &users.ItemMailFoldersRequestBuilderGetQueryParameters{Select: fields, Top: &top},
			})
			return err
		}
		page, err = c.sdk.Me().MailFolders().ByMailFolderId(parentID).ChildFolders().Get(ctx, &users.ItemMailFoldersItemChildFoldersRequestBuilderGetRequestConfiguration{
			QueryParameters: &users.ItemMailFoldersItemChildFoldersRequestBuilderGetQueryParameters{Select: fields, Top: &top},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, emptyResponse(operation)
	}

	values := page.GetValue()
	folders := make([]Folder, 0, len(values))
	for _, f := range values {
		folders = append(folders, folderFromModel(f))
	}
	return folders, nil
}
