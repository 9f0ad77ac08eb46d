package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmarian/price-watch/internal/models"
	"github.com/dmarian/price-watch/internal/store"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sql.DB
}

func New(dbURL string) (*Store, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	if err := initDatabase(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	return &Store{db: db}, nil
}

func initDatabase(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			price DOUBLE PRECISION NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			image TEXT NOT NULL DEFAULT '',
			last_updated TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS price_history (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			recorded_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_history_product
			ON price_history(product_id, recorded_at DESC)`,
		`CREATE TABLE IF NOT EXISTS price_alerts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			product_title TEXT NOT NULL DEFAULT '',
			target_price DOUBLE PRECISION NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			triggered_at TIMESTAMP WITH TIME ZONE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_alerts_product_active
			ON price_alerts(product_id, active)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			data JSONB NOT NULL DEFAULT '{}',
			read BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user
			ON notifications(user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS fetch_metadata (
			name TEXT PRIMARY KEY,
			run_at TIMESTAMP WITH TIME ZONE NOT NULL,
			product_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS devices (
			user_id TEXT PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %q: %v", query, err)
		}
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, price, description, category, image, last_updated
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Title, &p.Price, &p.Description, &p.Category, &p.Image, &p.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to query product: %v", err)
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, price, description, category, image, last_updated
		FROM products
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %v", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Price, &p.Description, &p.Category, &p.Image, &p.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan product: %v", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// UpsertProduct merges the product into storage. Text fields the
// upstream payload left empty keep their stored values; price and the
// last updated stamp are always taken from the new payload.
func (s *Store) UpsertProduct(ctx context.Context, p models.Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, title, price, description, category, image, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = COALESCE(NULLIF(EXCLUDED.title, ''), products.title),
			price = EXCLUDED.price,
			description = COALESCE(NULLIF(EXCLUDED.description, ''), products.description),
			category = COALESCE(NULLIF(EXCLUDED.category, ''), products.category),
			image = COALESCE(NULLIF(EXCLUDED.image, ''), products.image),
			last_updated = EXCLUDED.last_updated
	`, p.ID, p.Title, p.Price, p.Description, p.Category, p.Image, p.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %v", err)
	}
	return nil
}

func (s *Store) AppendPriceHistory(ctx context.Context, e models.PriceHistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_history (id, product_id, price, recorded_at)
		VALUES ($1, $2, $3, $4)
	`, e.ID, e.ProductID, e.Price, e.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to append price history: %v", err)
	}
	return nil
}

func (s *Store) PriceHistory(ctx context.Context, productID string, limit int) ([]models.PriceHistoryEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, price, recorded_at
		FROM price_history
		WHERE product_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %v", err)
	}
	defer rows.Close()

	var entries []models.PriceHistoryEntry
	for rows.Next() {
		var e models.PriceHistoryEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Price, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price history entry: %v", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) CreatePriceAlert(ctx context.Context, a models.PriceAlert) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_alerts (id, user_id, product_id, product_title, target_price, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.UserID, a.ProductID, a.ProductTitle, a.TargetPrice, a.Active, a.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to create price alert: %v", err)
	}
	return a.ID, nil
}

func (s *Store) DeletePriceAlert(ctx context.Context, id, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM price_alerts WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete price alert: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if rows == 0 {
		return fmt.Errorf("alert %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) AlertsForUser(ctx context.Context, userID string) ([]models.PriceAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, product_id, product_title, target_price, active, created_at, triggered_at
		FROM price_alerts
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %v", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func (s *Store) MatchingAlerts(ctx context.Context, productID string, price float64) ([]models.PriceAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, product_id, product_title, target_price, active, created_at, triggered_at
		FROM price_alerts
		WHERE product_id = $1 AND active = true AND target_price >= $2
	`, productID, price)
	if err != nil {
		return nil, fmt.Errorf("failed to query matching alerts: %v", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func scanAlerts(rows *sql.Rows) ([]models.PriceAlert, error) {
	var alerts []models.PriceAlert
	for rows.Next() {
		var a models.PriceAlert
		var triggeredAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.UserID, &a.ProductID, &a.ProductTitle, &a.TargetPrice, &a.Active, &a.CreatedAt, &triggeredAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %v", err)
		}
		if triggeredAt.Valid {
			t := triggeredAt.Time
			a.TriggeredAt = &t
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// TriggerAlert is a conditional write: the WHERE active = true clause
// guarantees at most one caller wins the active to inactive transition
// even if job runs overlap.
func (s *Store) TriggerAlert(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE price_alerts
		SET active = false, triggered_at = $2
		WHERE id = $1 AND active = true
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to trigger alert: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %v", err)
	}
	return rows > 0, nil
}

func (s *Store) CreateNotification(ctx context.Context, n models.Notification) (string, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	data, err := json.Marshal(n.Data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal notification data: %v", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, data, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.ID, n.UserID, n.Type, n.Title, n.Message, data, n.Read, n.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to create notification: %v", err)
	}
	return n.ID, nil
}

func (s *Store) NotificationsForUser(ctx context.Context, userID string) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, message, data, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %v", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		var data []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &data, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %v", err)
		}
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification data: %v", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = true WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if rows == 0 {
		return fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) SetFetchMetadata(ctx context.Context, m models.FetchMetadata) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fetch_metadata (name, run_at, product_count, status, error)
		VALUES ('last_fetch', $1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			run_at = EXCLUDED.run_at,
			product_count = EXCLUDED.product_count,
			status = EXCLUDED.status,
			error = EXCLUDED.error
	`, m.RunAt, m.ProductCount, m.Status, m.Error)
	if err != nil {
		return fmt.Errorf("failed to set fetch metadata: %v", err)
	}
	return nil
}

func (s *Store) FetchMetadata(ctx context.Context) (*models.FetchMetadata, error) {
	var m models.FetchMetadata
	err := s.db.QueryRowContext(ctx, `
		SELECT run_at, product_count, status, error
		FROM fetch_metadata
		WHERE name = 'last_fetch'
	`).Scan(&m.RunAt, &m.ProductCount, &m.Status, &m.Error)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to query fetch metadata: %v", err)
	}
	return &m, nil
}

func (s *Store) RegisterDevice(ctx context.Context, userID string, chatID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (user_id, chat_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET chat_id = EXCLUDED.chat_id
	`, userID, chatID)
	if err != nil {
		return fmt.Errorf("failed to register device: %v", err)
	}
	return nil
}

func (s *Store) ChatIDForUser(ctx context.Context, userID string) (int64, bool, error) {
	var chatID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT chat_id FROM devices WHERE user_id = $1
	`, userID).Scan(&chatID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	} else if err != nil {
		return 0, false, fmt.Errorf("failed to query device: %v", err)
	}
	return chatID, true, nil
}
