package models

import "time"

// PriceAlert is a user's standing request to be notified when a product's
// price falls to or below a target. An alert is active until the job
// triggers it; once inactive it never re-arms.
type PriceAlert struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	ProductID    string     `json:"product_id"`
	ProductTitle string     `json:"product_title"`
	TargetPrice  float64    `json:"target_price"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	TriggeredAt  *time.Time `json:"triggered_at,omitempty"`
}
