package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-access/internal/database"
)

// CatalogRepository reads the status, role and zone reference tables.
type CatalogRepository struct {
	pool *Pool
}

// NewCatalogRepository creates a new PostgreSQL catalog repository.
func NewCatalogRepository(pool *Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// ListStatuses returns the user status catalog.
func (r *CatalogRepository) ListStatuses(ctx context.Context) ([]database.CatalogItem, error) {
	return r.list(ctx, "SELECT id, name FROM user_statuses_catalog ORDER BY name")
}

// ListRoles returns the role catalog.
func (r *CatalogRepository) ListRoles(ctx context.Context) ([]database.CatalogItem, error) {
	return r.list(ctx, "SELECT id, name FROM roles_catalog ORDER BY name")
}

// ListZones returns every access zone.
func (r *CatalogRepository) ListZones(ctx context.Context) ([]database.CatalogItem, error) {
	return r.list(ctx, "SELECT id, name FROM zones ORDER BY name")
}

func (r *CatalogRepository) list(ctx context.Context, query string) ([]database.CatalogItem, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	var items []database.CatalogItem
	for rows.Next() {
		var item database.CatalogItem
		if err := rows.Scan(&item.ID, &item.Name); err != nil {
			return nil, fmt.Errorf("scan catalog item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog: %w", err)
	}
	return items, nil
}

var _ database.CatalogReader = (*CatalogRepository)(nil)
