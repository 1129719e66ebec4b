// Package gmail sends plain-text mail from a user's Gmail account.
package gmail
