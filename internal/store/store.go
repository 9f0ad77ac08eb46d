package store

import (
	"context"
	"errors"
	"time"

	"github.com/dmarian/price-watch/internal/models"
)

// ErrNotFound reports that a targeted mutation named a record that does
// not exist. Lookups signal absence with (nil, nil) instead.
var ErrNotFound = errors.New("not found")

// Store is the persistence surface used by the price watch job and the
// HTTP API. Lookups for absent records return (nil, nil); absence is a
// valid state, not an error.
type Store interface {
	Close() error

	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	UpsertProduct(ctx context.Context, p models.Product) error

	AppendPriceHistory(ctx context.Context, e models.PriceHistoryEntry) error
	PriceHistory(ctx context.Context, productID string, limit int) ([]models.PriceHistoryEntry, error)

	CreatePriceAlert(ctx context.Context, a models.PriceAlert) (string, error)
	DeletePriceAlert(ctx context.Context, id, userID string) error
	AlertsForUser(ctx context.Context, userID string) ([]models.PriceAlert, error)
	// MatchingAlerts returns active alerts on the product whose target
	// price is at or above the given price.
	MatchingAlerts(ctx context.Context, productID string, price float64) ([]models.PriceAlert, error)
	// TriggerAlert deactivates the alert and stamps its triggered time,
	// but only if it is still active. It reports whether this call won
	// the transition.
	TriggerAlert(ctx context.Context, id string, at time.Time) (bool, error)

	CreateNotification(ctx context.Context, n models.Notification) (string, error)
	NotificationsForUser(ctx context.Context, userID string) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error

	SetFetchMetadata(ctx context.Context, m models.FetchMetadata) error
	FetchMetadata(ctx context.Context) (*models.FetchMetadata, error)

	RegisterDevice(ctx context.Context, userID string, chatID int64) error
	ChatIDForUser(ctx context.Context, userID string) (int64, bool, error)
}
