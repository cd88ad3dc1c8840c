package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"catalogsync/internal/models"
)

type SafetyStockRepository struct {
	db *gorm.DB
}

func NewSafetyStockRepository(db *gorm.DB) *SafetyStockRepository {
	return &SafetyStockRepository{db: db}
}

func (r *SafetyStockRepository) Upsert(ctx context.Context, records []models.SafetyStock) error {
	if len(records) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
	}).CreateInBatches(records, insertBatchSize).Error
	if err != nil {
		return fmt.Errorf("upsert safety stock: %w", err)
	}
	return nil
}

// BySKUs returns the safety stock of every known SKU in skus. Unknown SKUs
// are absent from the map.
func (r *SafetyStockRepository) BySKUs(ctx context.Context, skus []string) (map[string]int, error) {
	out := make(map[string]int, len(skus))
	for start := 0; start < len(skus); start += idBatchSize {
		batch := skus[start:min(start+idBatchSize, len(skus))]
		var rows []models.SafetyStock
		if err := r.db.WithContext(ctx).Where("sku IN ?", batch).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("load safety stock: %w", err)
		}
		for _, row := range rows {
			out[row.SKU] = row.Quantity
		}
	}
	return out, nil
}
