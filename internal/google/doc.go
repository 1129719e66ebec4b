// Package google connects chat users to their Google account.
//
// Authenticator builds the consent URL a user opens from the chat and
// exchanges the returned authorization code for a stored credential.
// Token refresh afterwards is handled by the credentials package.
package google
