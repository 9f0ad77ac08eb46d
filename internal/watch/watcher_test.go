package watch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarian/price-watch/internal/catalog"
	"github.com/dmarian/price-watch/internal/models"
	"github.com/dmarian/price-watch/internal/store/memory"
)

type stubFetcher struct {
	products []catalog.Product
	err      error
}

func (f stubFetcher) FetchProducts(context.Context) ([]catalog.Product, error) {
	return f.products, f.err
}

type recordingDispatcher struct {
	sent []string
	data []models.NotificationData
}

func (d *recordingDispatcher) Send(_ context.Context, userID, title, body string, data models.NotificationData) error {
	d.sent = append(d.sent, fmt.Sprintf("%s: %s / %s", userID, title, body))
	d.data = append(d.data, data)
	return nil
}

type failingDispatcher struct{}

func (failingDispatcher) Send(context.Context, string, string, string, models.NotificationData) error {
	return errors.New("delivery unavailable")
}

// faultyStore injects storage failures around the memory double.
type faultyStore struct {
	*memory.Store
	historyFailFor string
	alertQueryErr  error
}

func (s *faultyStore) AppendPriceHistory(ctx context.Context, e models.PriceHistoryEntry) error {
	if e.ProductID == s.historyFailFor {
		return errors.New("write rejected")
	}
	return s.Store.AppendPriceHistory(ctx, e)
}

func (s *faultyStore) MatchingAlerts(ctx context.Context, productID string, price float64) ([]models.PriceAlert, error) {
	if s.alertQueryErr != nil {
		return nil, s.alertQueryErr
	}
	return s.Store.MatchingAlerts(ctx, productID, price)
}

func seedProduct(t *testing.T, s *memory.Store, id string, price float64) {
	t.Helper()
	require.NoError(t, s.UpsertProduct(context.Background(), models.Product{
		ID:          id,
		Title:       "Backpack",
		Image:       "https://example.com/backpack.jpg",
		Price:       price,
		LastUpdated: time.Now(),
	}))
}

func seedAlert(t *testing.T, s *memory.Store, id, userID, productID string, target float64, active bool) {
	t.Helper()
	_, err := s.CreatePriceAlert(context.Background(), models.PriceAlert{
		ID:          id,
		UserID:      userID,
		ProductID:   productID,
		TargetPrice: target,
		Active:      active,
		CreatedAt:   time.Now(),
	})
	require.NoError(t, err)
}

func TestRunFirstSeenProductCreatesHistoryOnly(t *testing.T) {
	s := memory.New()
	seedAlert(t, s, "a1", "user-1", "1", 45, true)

	w := New(s, stubFetcher{products: []catalog.Product{
		{ID: 1, Title: "Backpack", Price: 40},
	}})
	require.NoError(t, w.Run(context.Background()))

	// No previous price means no drop, no matter how low the price is.
	notifications, err := s.NotificationsForUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, notifications)
	assert.Equal(t, 1, s.HistoryCount())

	p, err := s.GetProduct(context.Background(), "1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 40.0, p.Price)

	meta, err := s.FetchMetadata(context.Background())
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, models.FetchStatusOK, meta.Status)
	assert.Equal(t, 1, meta.ProductCount)
}

func TestRunPriceDropTriggersMatchingAlerts(t *testing.T) {
	s := memory.New()
	seedProduct(t, s, "1", 50)
	seedAlert(t, s, "a-met", "user-1", "1", 45, true)
	seedAlert(t, s, "a-not-met", "user-2", "1", 30, true)
	seedAlert(t, s, "a-inactive", "user-3", "1", 49, false)

	d := &recordingDispatcher{}
	w := New(s, stubFetcher{products: []catalog.Product{
		{ID: 1, Title: "Backpack", Image: "https://example.com/backpack.jpg", Price: 40},
	}}, WithDispatcher(d))
	require.NoError(t, w.Run(context.Background()))

	notifications, err := s.NotificationsForUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, notifications, 1)

	n := notifications[0]
	assert.Equal(t, models.NotificationTypePriceDrop, n.Type)
	assert.Equal(t, "Price Drop Alert!", n.Title)
	assert.Equal(t, "Backpack dropped from $50.00 to $40.00", n.Message)
	assert.False(t, n.Read)
	assert.Equal(t, 50.0, n.Data.OldPrice)
	assert.Equal(t, 40.0, n.Data.NewPrice)
	assert.InDelta(t, 20.0, n.Data.PercentDrop, 1e-9)
	assert.Equal(t, "https://example.com/backpack.jpg", n.Data.ProductImage)

	for _, a := range s.AllAlerts() {
		switch a.ID {
		case "a-met":
			assert.False(t, a.Active)
			require.NotNil(t, a.TriggeredAt)
		case "a-not-met":
			assert.True(t, a.Active, "alert below the new price must stay armed")
			assert.Nil(t, a.TriggeredAt)
		case "a-inactive":
			assert.False(t, a.Active)
			assert.Nil(t, a.TriggeredAt)
		}
	}

	// Inactive and unmet alerts never produce notifications.
	for _, user := range []string{"user-2", "user-3"} {
		notifications, err := s.NotificationsForUser(context.Background(), user)
		require.NoError(t, err)
		assert.Empty(t, notifications)
	}

	require.Len(t, d.sent, 1)
	assert.Contains(t, d.sent[0], "user-1")
	require.Len(t, d.data, 1)
	assert.Equal(t, n.Data, d.data[0], "dispatcher receives the stored payload")
}

func TestRunSamePriceSkipsAlertCheck(t *testing.T) {
	s := memory.New()
	seedProduct(t, s, "1", 50)
	seedAlert(t, s, "a1", "user-1", "1", 55, true)

	w := New(s, stubFetcher{products: []catalog.Product{{ID: 1, Title: "Backpack", Price: 50}}})
	require.NoError(t, w.Run(context.Background()))

	// A history entry is always appended, but no alert fires without a
	// strict drop, even when the target already exceeds the price.
	assert.Equal(t, 1, s.HistoryCount())
	notifications, err := s.NotificationsForUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, notifications)
	assert.True(t, s.AllAlerts()[0].Active)
}

func TestRunRepeatedDoesNotRenotify(t *testing.T) {
	s := memory.New()
	seedProduct(t, s, "1", 50)
	seedAlert(t, s, "a1", "user-1", "1", 45, true)

	w := New(s, stubFetcher{products: []catalog.Product{{ID: 1, Title: "Backpack", Price: 40}}})
	require.NoError(t, w.Run(context.Background()))
	require.NoError(t, w.Run(context.Background()))

	notifications, err := s.NotificationsForUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, notifications, 1, "consumed alert must not fire again")
	assert.Equal(t, 2, s.HistoryCount())
}

func TestRunFetchFailureAbortsWithoutWrites(t *testing.T) {
	s := memory.New()
	seedAlert(t, s, "a1", "user-1", "1", 45, true)

	w := New(s, stubFetcher{err: fmt.Errorf("%w: connection refused", catalog.ErrUpstream)})
	err := w.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrUpstream))

	assert.Equal(t, 0, s.HistoryCount())
	products, err := s.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, products)

	meta, err := s.FetchMetadata(context.Background())
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, models.FetchStatusError, meta.Status)
	assert.Contains(t, meta.Error, "connection refused")
}

func TestRunPushFailureKeepsNotification(t *testing.T) {
	s := memory.New()
	seedProduct(t, s, "1", 50)
	seedAlert(t, s, "a1", "user-1", "1", 45, true)

	w := New(s, stubFetcher{products: []catalog.Product{{ID: 1, Title: "Backpack", Price: 40}}},
		WithDispatcher(failingDispatcher{}))
	require.NoError(t, w.Run(context.Background()))

	notifications, err := s.NotificationsForUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, notifications, 1, "failed push delivery must not roll back the notification")
	assert.False(t, s.AllAlerts()[0].Active)
}

func TestRunManyProductsBoundedConcurrency(t *testing.T) {
	s := memory.New()
	var products []catalog.Product
	for i := 1; i <= 50; i++ {
		products = append(products, catalog.Product{ID: int64(i), Title: "Item", Price: float64(i)})
	}

	w := New(s, stubFetcher{products: products}, WithConcurrency(4))
	require.NoError(t, w.Run(context.Background()))

	assert.Equal(t, 50, s.HistoryCount())
	stored, err := s.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 50)

	meta, err := s.FetchMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, meta.ProductCount)
}

func TestRunPreservesStoredFieldsOnPartialPayload(t *testing.T) {
	s := memory.New()
	require.NoError(t, s.UpsertProduct(context.Background(), models.Product{
		ID:          "1",
		Title:       "Backpack",
		Description: "Fits 15 inch laptops",
		Category:    "bags",
		Image:       "https://example.com/backpack.jpg",
		Price:       50,
		LastUpdated: time.Now(),
	}))

	// Upstream omits description and image this time.
	w := New(s, stubFetcher{products: []catalog.Product{{ID: 1, Title: "Backpack", Price: 45}}})
	require.NoError(t, w.Run(context.Background()))

	p, err := s.GetProduct(context.Background(), "1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 45.0, p.Price)
	assert.Equal(t, "Fits 15 inch laptops", p.Description)
	assert.Equal(t, "https://example.com/backpack.jpg", p.Image)
	assert.Equal(t, "bags", p.Category)
}

func TestRunHistoryWriteFailureDoesNotAbortSiblings(t *testing.T) {
	mem := memory.New()
	seedProduct(t, mem, "1", 50)
	seedProduct(t, mem, "2", 50)
	seedAlert(t, mem, "a2", "user-2", "2", 45, true)
	s := &faultyStore{Store: mem, historyFailFor: "1"}

	w := New(s, stubFetcher{products: []catalog.Product{
		{ID: 1, Title: "Backpack", Price: 40},
		{ID: 2, Title: "T-Shirt", Price: 40},
	}})
	require.NoError(t, w.Run(context.Background()))

	// The rejected write costs product 1 its history entry, nothing more.
	assert.Equal(t, 1, mem.HistoryCount())
	for _, id := range []string{"1", "2"} {
		p, err := mem.GetProduct(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, 40.0, p.Price)
	}

	notifications, err := mem.NotificationsForUser(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Len(t, notifications, 1)

	meta, err := mem.FetchMetadata(context.Background())
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, models.FetchStatusOK, meta.Status)
	assert.Equal(t, 2, meta.ProductCount)
}

func TestRunAlertQueryFailureLeavesAlertsArmed(t *testing.T) {
	mem := memory.New()
	seedProduct(t, mem, "1", 50)
	seedAlert(t, mem, "a1", "user-1", "1", 45, true)
	s := &faultyStore{Store: mem, alertQueryErr: errors.New("query failed")}

	w := New(s, stubFetcher{products: []catalog.Product{{ID: 1, Title: "Backpack", Price: 40}}})
	require.NoError(t, w.Run(context.Background()))

	notifications, err := mem.NotificationsForUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, notifications)
	assert.True(t, mem.AllAlerts()[0].Active, "query failure must not consume the alert")

	// The next run that sees a lower price retries and fires the alert.
	s.alertQueryErr = nil
	w = New(s, stubFetcher{products: []catalog.Product{{ID: 1, Title: "Backpack", Price: 39}}})
	require.NoError(t, w.Run(context.Background()))

	notifications, err = mem.NotificationsForUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, 40.0, notifications[0].Data.OldPrice)
	assert.Equal(t, 39.0, notifications[0].Data.NewPrice)
	assert.False(t, mem.AllAlerts()[0].Active)
}
