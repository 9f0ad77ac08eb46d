package models

import "time"

// Product is the locally stored copy of an upstream catalog product.
// It is mutated only by the price watch job; fields missing from an
// upstream payload are preserved across upserts.
type Product struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Price       float64   `json:"price"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Image       string    `json:"image"`
	LastUpdated time.Time `json:"last_updated"`
}

// PriceHistoryEntry is an append-only price observation. One entry is
// written per product per job run.
type PriceHistoryEntry struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	Price      float64   `json:"price"`
	RecordedAt time.Time `json:"recorded_at"`
}

// DropEvent is the outcome of comparing a product's fetched price with
// its previously stored price. It exists only when the new price is
// strictly lower than the old one.
type DropEvent struct {
	ProductID    string
	ProductTitle string
	ProductImage string
	OldPrice     float64
	NewPrice     float64
	Drop         float64
	PercentDrop  float64
}
