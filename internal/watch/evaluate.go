package watch

import (
	"github.com/dmarian/price-watch/internal/catalog"
	"github.com/dmarian/price-watch/internal/models"
)

// Evaluate compares a product's fetched price with its previously
// stored record and returns a DropEvent when the new price is strictly
// lower. It returns nil when there is no previous record or no drop.
// Evaluate has no side effects; the watcher applies the storage and
// notification consequences.
func Evaluate(prev *models.Product, fetched catalog.Product) *models.DropEvent {
	if prev == nil {
		return nil
	}
	if fetched.Price >= prev.Price {
		return nil
	}

	drop := prev.Price - fetched.Price
	return &models.DropEvent{
		ProductID:    fetched.ExternalID(),
		ProductTitle: fetched.Title,
		ProductImage: fetched.Image,
		OldPrice:     prev.Price,
		NewPrice:     fetched.Price,
		Drop:         drop,
		PercentDrop:  drop / prev.Price * 100,
	}
}
