package common

import (
	"context"

	"github.com/teemow/inboxsorter/internal/credential"
	"github.com/teemow/inboxsorter/internal/server"
)

// TokenArg is the tool argument carrying the caller's access token.
const TokenArg = "token"

// SessionFromArgs resolves the token argument into a session. A missing or
// unknown token is an Unauthorized error.
func SessionFromArgs(ctx context.Context, sc *server.ServerContext, args map[string]interface{}) (credential.Session, error) {
	token, _ := args[TokenArg].(string)
	return sc.Session(ctx, token)
}
