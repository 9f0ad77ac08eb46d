package models

import "time"

// NotificationTypePriceDrop tags notifications produced by the price
// watch job when an alert fires.
const NotificationTypePriceDrop = "price_drop"

// NotificationData is the structured payload attached to a price drop
// notification.
type NotificationData struct {
	ProductID    string  `json:"product_id"`
	ProductTitle string  `json:"product_title"`
	ProductImage string  `json:"product_image"`
	OldPrice     float64 `json:"old_price"`
	NewPrice     float64 `json:"new_price"`
	PercentDrop  float64 `json:"percent_drop"`
}

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      string           `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      NotificationData `json:"data"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}
