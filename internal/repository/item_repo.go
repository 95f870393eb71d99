package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type ItemRepository struct {
	db dbtx
}

func NewItemRepository(db dbtx) *ItemRepository {
	return &ItemRepository{db: db}
}

// CountItems counts live items filed directly under any of the given
// categories. An empty id list counts nothing.
func (r *ItemRepository) CountItems(ctx context.Context, filter ItemFilter) (int, error) {
	if len(filter.CategoryIDs) == 0 {
		return 0, nil
	}

	var total int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM catalog_items
		 WHERE deleted_at IS NULL AND category_id = ANY($1)`, filter.CategoryIDs).Scan(&total)
	if err != nil {
		return 0, mapPgError("count catalog items", err)
	}
	return total, nil
}

func (r *ItemRepository) UpdateItemPaths(ctx context.Context, updates []ItemPathUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, update := range updates {
		batch.Queue(
			`UPDATE catalog_items
			 SET category_path = $2, category_path_ids = $3, category_depth = $4, updated_at = now()
			 WHERE category_id = $1 AND deleted_at IS NULL`,
			update.CategoryID, update.Path, nonNil(update.PathIDs), update.Depth)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	updated := 0
	for _, update := range updates {
		tag, err := br.Exec()
		if err != nil {
			return updated, mapPgError(fmt.Sprintf("update items of category %s", update.CategoryID), err)
		}
		updated += int(tag.RowsAffected())
	}

	return updated, br.Close()
}
