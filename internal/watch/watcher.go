// Package watch implements the price watch job: fetch the upstream
// catalog, reconcile stored prices, and fire matching price alerts.
package watch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmarian/price-watch/internal/catalog"
	"github.com/dmarian/price-watch/internal/models"
	"github.com/dmarian/price-watch/internal/push"
	"github.com/dmarian/price-watch/internal/store"
	"github.com/dmarian/price-watch/pkg/logx"
)

// Fetcher obtains the full current product list from the upstream
// source.
type Fetcher interface {
	FetchProducts(ctx context.Context) ([]catalog.Product, error)
}

const defaultConcurrency = 8

type Watcher struct {
	store       store.Store
	fetcher     Fetcher
	dispatcher  push.Dispatcher // nil disables push delivery
	concurrency int
	now         func() time.Time
}

type Option func(*Watcher)

// WithDispatcher enables best-effort push delivery for created
// notifications.
func WithDispatcher(d push.Dispatcher) Option {
	return func(w *Watcher) { w.dispatcher = d }
}

// WithConcurrency bounds the number of products processed in parallel.
func WithConcurrency(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithClock overrides the time source used for stamps.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) { w.now = now }
}

func New(s store.Store, f Fetcher, opts ...Option) *Watcher {
	w := &Watcher{
		store:       s,
		fetcher:     f,
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run executes one job run. A failed upstream fetch aborts the run and
// records an error FetchMetadata; per-product failures are logged and
// never abort sibling products.
func (w *Watcher) Run(ctx context.Context) error {
	started := w.now()
	logx.Info().Msg("starting price watch run")

	products, err := w.fetcher.FetchProducts(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("upstream fetch failed, aborting run")
		if metaErr := w.store.SetFetchMetadata(ctx, models.FetchMetadata{
			RunAt:  started,
			Status: models.FetchStatusError,
			Error:  err.Error(),
		}); metaErr != nil {
			logx.Error().Err(metaErr).Msg("failed to record fetch error metadata")
		}
		return fmt.Errorf("fetch products: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for _, p := range products {
		p := p
		g.Go(func() error {
			w.processProduct(ctx, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Workers never return errors; per-item failures are logged.
		logx.Error().Err(err).Msg("unexpected worker error")
	}

	if err := w.store.SetFetchMetadata(ctx, models.FetchMetadata{
		RunAt:        w.now(),
		ProductCount: len(products),
		Status:       models.FetchStatusOK,
	}); err != nil {
		logx.Error().Err(err).Msg("failed to record fetch metadata")
	}

	logx.Info().Int("products", len(products)).Dur("took", w.now().Sub(started)).Msg("price watch run completed")
	return nil
}

// processProduct handles one product independently of its siblings:
// read the previous record, upsert the fresh payload, append a history
// entry, and run the alert check on a price drop.
func (w *Watcher) processProduct(ctx context.Context, fetched catalog.Product) {
	id := fetched.ExternalID()

	prev, err := w.store.GetProduct(ctx, id)
	if err != nil {
		logx.Error().Err(err).Str("product", id).Msg("failed to read stored product, skipping")
		return
	}

	now := w.now()
	if err := w.store.UpsertProduct(ctx, models.Product{
		ID:          id,
		Title:       fetched.Title,
		Price:       fetched.Price,
		Description: fetched.Description,
		Category:    fetched.Category,
		Image:       fetched.Image,
		LastUpdated: now,
	}); err != nil {
		logx.Error().Err(err).Str("product", id).Msg("failed to upsert product")
	}

	if err := w.store.AppendPriceHistory(ctx, models.PriceHistoryEntry{
		ProductID:  id,
		Price:      fetched.Price,
		RecordedAt: now,
	}); err != nil {
		logx.Error().Err(err).Str("product", id).Msg("failed to append price history")
	}

	if ev := Evaluate(prev, fetched); ev != nil {
		logx.Info().
			Str("product", id).
			Float64("old_price", ev.OldPrice).
			Float64("new_price", ev.NewPrice).
			Float64("percent_drop", ev.PercentDrop).
			Msg("price drop detected")
		w.checkAlerts(ctx, ev)
	}
}

// checkAlerts fires every active alert whose target the new price has
// reached. The conditional TriggerAlert write runs before the
// notification is created, so an alert is notified at most once even
// across overlapping runs; losing the conditional write means another
// run already consumed the alert.
func (w *Watcher) checkAlerts(ctx context.Context, ev *models.DropEvent) {
	alerts, err := w.store.MatchingAlerts(ctx, ev.ProductID, ev.NewPrice)
	if err != nil {
		// Alert state is untouched, so the next run that sees the same
		// or a lower price retries these alerts.
		logx.Error().Err(err).Str("product", ev.ProductID).Msg("failed to query alerts, will retry next run")
		return
	}

	for _, alert := range alerts {
		won, err := w.store.TriggerAlert(ctx, alert.ID, w.now())
		if err != nil {
			logx.Error().Err(err).Str("alert", alert.ID).Msg("failed to trigger alert")
			continue
		}
		if !won {
			continue
		}

		n := models.Notification{
			UserID:  alert.UserID,
			Type:    models.NotificationTypePriceDrop,
			Title:   "Price Drop Alert!",
			Message: fmt.Sprintf("%s dropped from $%.2f to $%.2f", ev.ProductTitle, ev.OldPrice, ev.NewPrice),
			Data: models.NotificationData{
				ProductID:    ev.ProductID,
				ProductTitle: ev.ProductTitle,
				ProductImage: ev.ProductImage,
				OldPrice:     ev.OldPrice,
				NewPrice:     ev.NewPrice,
				PercentDrop:  ev.PercentDrop,
			},
			CreatedAt: w.now(),
		}
		if _, err := w.store.CreateNotification(ctx, n); err != nil {
			logx.Error().Err(err).Str("alert", alert.ID).Msg("failed to create notification")
			continue
		}
		logx.Info().Str("alert", alert.ID).Str("user", alert.UserID).Str("product", ev.ProductID).Msg("alert triggered")

		if w.dispatcher != nil {
			if err := w.dispatcher.Send(ctx, alert.UserID, n.Title, n.Message, n.Data); err != nil {
				// Best-effort: the stored notification stands.
				logx.Warn().Err(err).Str("user", alert.UserID).Msg("push delivery failed")
			}
		}
	}
}
