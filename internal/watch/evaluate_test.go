package watch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmarian/price-watch/internal/catalog"
	"github.com/dmarian/price-watch/internal/models"
)

func TestEvaluateNoPreviousRecord(t *testing.T) {
	ev := Evaluate(nil, catalog.Product{ID: 1, Price: 9.99})
	assert.Nil(t, ev)
}

func TestEvaluateNoDrop(t *testing.T) {
	prev := &models.Product{ID: "1", Price: 50}

	assert.Nil(t, Evaluate(prev, catalog.Product{ID: 1, Price: 50}), "identical price is not a drop")
	assert.Nil(t, Evaluate(prev, catalog.Product{ID: 1, Price: 55.10}), "increase is not a drop")
}

func TestEvaluateDrop(t *testing.T) {
	prev := &models.Product{ID: "1", Title: "Backpack", Price: 50}
	fetched := catalog.Product{
		ID:    1,
		Title: "Backpack",
		Image: "https://example.com/backpack.jpg",
		Price: 40,
	}

	ev := Evaluate(prev, fetched)
	if assert.NotNil(t, ev) {
		assert.Equal(t, "1", ev.ProductID)
		assert.Equal(t, "Backpack", ev.ProductTitle)
		assert.Equal(t, "https://example.com/backpack.jpg", ev.ProductImage)
		assert.Equal(t, 50.0, ev.OldPrice)
		assert.Equal(t, 40.0, ev.NewPrice)
		assert.Equal(t, 10.0, ev.Drop)
		assert.InDelta(t, 20.0, ev.PercentDrop, 1e-9)
	}
}

func TestEvaluateTinyDrop(t *testing.T) {
	prev := &models.Product{ID: "7", Price: 100}

	ev := Evaluate(prev, catalog.Product{ID: 7, Price: 99.99})
	if assert.NotNil(t, ev) {
		assert.InDelta(t, 0.01, ev.Drop, 1e-9)
		assert.InDelta(t, 0.01, ev.PercentDrop, 1e-9)
	}
}
