package graph

import (
	"context"

	"github.com/microsoftgraph/msgraph-sdk-go/models"

	"github.com/teemow/inboxsorter/internal/instrumentation"
)

// Me returns the profile of the user owning accessToken.
func (c *Client) Me(ctx context.Context, accessToken string) (Profile, error) {
	var user models.Userable
	_, err := c.call(ctx, instrumentation.OperationGetProfile, accessToken, func(ctx context.Context) error {
		var err error
		user, err = c.sdk.Me().Get(ctx, nil)
		return err
	})
	if err != nil {
		return Profile{}, err
	}
	if user == nil {
		return Profile{}, emptyResponse(instrumentation.OperationGetProfile)
	}
	return Profile{
		ID:                deref(user.GetId()),
		DisplayName:       deref(user.GetDisplayName()),
		Mail:              deref(user.GetMail()),
		UserPrincipalName: deref(user.GetUserPrincipalName()),
	}, nil
}
