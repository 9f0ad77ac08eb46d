// Package push delivers best-effort push notifications for triggered
// price alerts through a Telegram bot.
package push

import (
	"context"

	"github.com/dmarian/price-watch/internal/models"
)

// Dispatcher sends a notification to the user's registered device.
// Delivery is best-effort: callers log failures and move on, the stored
// notification is never rolled back. Channels that cannot render the
// structured payload may ignore it.
type Dispatcher interface {
	Send(ctx context.Context, userID, title, body string, data models.NotificationData) error
}

// ChatResolver maps a user identifier to the Telegram chat registered
// for it.
type ChatResolver interface {
	ChatIDForUser(ctx context.Context, userID string) (int64, bool, error)
}
