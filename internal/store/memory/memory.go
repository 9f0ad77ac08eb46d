// Package memory provides an in-memory Store used by tests and local
// development runs that have no database available.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmarian/price-watch/internal/models"
	"github.com/dmarian/price-watch/internal/store"
	"github.com/google/uuid"
)

type Store struct {
	mu            sync.RWMutex
	products      map[string]models.Product
	history       []models.PriceHistoryEntry
	alerts        map[string]models.PriceAlert
	notifications map[string]models.Notification
	metadata      *models.FetchMetadata
	devices       map[string]int64
}

func New() *Store {
	return &Store{
		products:      make(map[string]models.Product),
		alerts:        make(map[string]models.PriceAlert),
		notifications: make(map[string]models.Notification),
		devices:       make(map[string]int64),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) GetProduct(_ context.Context, id string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) ListProducts(_ context.Context) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	products := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (s *Store) UpsertProduct(_ context.Context, p models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.products[p.ID]; ok {
		if p.Title == "" {
			p.Title = prev.Title
		}
		if p.Description == "" {
			p.Description = prev.Description
		}
		if p.Category == "" {
			p.Category = prev.Category
		}
		if p.Image == "" {
			p.Image = prev.Image
		}
	}
	s.products[p.ID] = p
	return nil
}

func (s *Store) AppendPriceHistory(_ context.Context, e models.PriceHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.history = append(s.history, e)
	return nil
}

func (s *Store) PriceHistory(_ context.Context, productID string, limit int) ([]models.PriceHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []models.PriceHistoryEntry
	for _, e := range s.history {
		if e.ProductID == productID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RecordedAt.After(entries[j].RecordedAt) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) CreatePriceAlert(_ context.Context, a models.PriceAlert) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.alerts[a.ID] = a
	return a.ID, nil
}

func (s *Store) DeletePriceAlert(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.UserID != userID {
		return fmt.Errorf("alert %s: %w", id, store.ErrNotFound)
	}
	delete(s.alerts, id)
	return nil
}

func (s *Store) AlertsForUser(_ context.Context, userID string) ([]models.PriceAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var alerts []models.PriceAlert
	for _, a := range s.alerts {
		if a.UserID == userID {
			alerts = append(alerts, a)
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].CreatedAt.After(alerts[j].CreatedAt) })
	return alerts, nil
}

func (s *Store) MatchingAlerts(_ context.Context, productID string, price float64) ([]models.PriceAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var alerts []models.PriceAlert
	for _, a := range s.alerts {
		if a.ProductID == productID && a.Active && a.TargetPrice >= price {
			alerts = append(alerts, a)
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].ID < alerts[j].ID })
	return alerts, nil
}

func (s *Store) TriggerAlert(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || !a.Active {
		return false, nil
	}
	a.Active = false
	a.TriggeredAt = &at
	s.alerts[id] = a
	return true, nil
}

func (s *Store) CreateNotification(_ context.Context, n models.Notification) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	s.notifications[n.ID] = n
	return n.ID, nil
}

func (s *Store) NotificationsForUser(_ context.Context, userID string) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var notifications []models.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			notifications = append(notifications, n)
		}
	}
	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})
	return notifications, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
	}
	n.Read = true
	s.notifications[id] = n
	return nil
}

func (s *Store) SetFetchMetadata(_ context.Context, m models.FetchMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = &m
	return nil
}

func (s *Store) FetchMetadata(_ context.Context) (*models.FetchMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.metadata == nil {
		return nil, nil
	}
	m := *s.metadata
	return &m, nil
}

func (s *Store) RegisterDevice(_ context.Context, userID string, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[userID] = chatID
	return nil
}

func (s *Store) ChatIDForUser(_ context.Context, userID string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chatID, ok := s.devices[userID]
	return chatID, ok, nil
}

// AllAlerts returns every stored alert, for assertions in tests.
func (s *Store) AllAlerts() []models.PriceAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alerts := make([]models.PriceAlert, 0, len(s.alerts))
	for _, a := range s.alerts {
		alerts = append(alerts, a)
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].ID < alerts[j].ID })
	return alerts
}

// HistoryCount reports the number of stored history entries, for
// assertions in tests.
func (s *Store) HistoryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}
