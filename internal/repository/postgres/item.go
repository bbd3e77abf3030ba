package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sakif/guildgate/internal/apperror"
	"github.com/sakif/guildgate/internal/model"
)

func (s *Store) GetItem(ctx context.Context, id string) (*model.Item, error) {
	var item model.Item
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, price_usd::text, active, created_at, updated_at FROM store_items WHERE id = $1`, id,
	).Scan(&item.ID, &item.Name, &item.PriceUSD, &item.Active, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("item", id)
		}
		return nil, fmt.Errorf("postgres: getting item %s: %w", id, err)
	}
	return &item, nil
}

func (s *Store) UpsertItem(ctx context.Context, item *model.Item) error {
	if item.ID == "" {
		return apperror.ValidationFailed("id", "item id is required")
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO store_items (id, name, price_usd, active)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price_usd = EXCLUDED.price_usd,
			active = EXCLUDED.active,
			updated_at = NOW()
		 RETURNING created_at, updated_at`,
		item.ID, item.Name, item.PriceUSD.String(), item.Active,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upserting item %s: %w", item.ID, err)
	}
	return nil
}

func (s *Store) ListItems(ctx context.Context) ([]model.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, price_usd::text, active, created_at, updated_at FROM store_items ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing items: %w", err)
	}
	defer rows.Close()

	items := []model.Item{}
	for rows.Next() {
		var item model.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.PriceUSD, &item.Active, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scanning item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating items: %w", err)
	}
	return items, nil
}
