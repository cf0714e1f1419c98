// Package notify delivers outbound messages and manages access-group
// membership. The concrete implementation speaks the Telegram Bot API.
package notify

import "context"

// Sink delivers one text message to a user.
type Sink interface {
	Send(ctx context.Context, userID int64, text string) error
}

// Memberships grants and revokes a user's access to the private
// subscriber group.
type Memberships interface {
	Grant(ctx context.Context, userID int64) error
	Revoke(ctx context.Context, userID int64) error
}
