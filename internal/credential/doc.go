// Package credential owns the mailbox owner's identity-provider grant: the
// sign-in flow against the Microsoft identity platform and the token
// lifecycle that turns a caller's access token into a valid Session.
package credential
