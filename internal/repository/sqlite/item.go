package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/guildgate/internal/apperror"
	"github.com/sakif/guildgate/internal/model"
	"github.com/sakif/guildgate/internal/repository"
)

var _ repository.ItemRepository = (*DB)(nil)

func (db *DB) GetItem(ctx context.Context, id string) (*model.Item, error) {
	var item model.Item
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, price_usd, active, created_at, updated_at FROM store_items WHERE id = ?`, id,
	).Scan(&item.ID, &item.Name, &item.PriceUSD, &item.Active, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("item", id)
		}
		return nil, fmt.Errorf("sqlite: getting item %s: %w", id, err)
	}
	return &item, nil
}

// UpsertItem creates or replaces a catalog entry by id.
func (db *DB) UpsertItem(ctx context.Context, item *model.Item) error {
	if item.ID == "" {
		return apperror.ValidationFailed("id", "item id is required")
	}
	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO store_items (id, name, price_usd, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			price_usd = excluded.price_usd,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		item.ID, item.Name, item.PriceUSD.String(), item.Active, now, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting item %s: %w", item.ID, err)
	}
	item.UpdatedAt = now
	return nil
}

func (db *DB) ListItems(ctx context.Context) ([]model.Item, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, price_usd, active, created_at, updated_at FROM store_items ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing items: %w", err)
	}
	defer rows.Close()

	items := []model.Item{}
	for rows.Next() {
		var item model.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.PriceUSD, &item.Active, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating items: %w", err)
	}
	return items, nil
}
