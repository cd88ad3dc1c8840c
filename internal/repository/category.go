package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"catalogsync/internal/models"
)

type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) Upsert(ctx context.Context, categories []models.Category) error {
	if len(categories) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).CreateInBatches(categories, insertBatchSize).Error
	if err != nil {
		return fmt.Errorf("upsert categories: %w", err)
	}
	return nil
}

func (r *CategoryRepository) Get(ctx context.Context, id int64) (*models.Category, error) {
	var category models.Category
	err := r.db.WithContext(ctx).First(&category, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category %d: %w", id, err)
	}
	return &category, nil
}

func (r *CategoryRepository) List(ctx context.Context, visibleOnly bool) ([]models.Category, error) {
	query := r.db.WithContext(ctx).Model(&models.Category{})
	if visibleOnly {
		query = query.Where("visible = ?", true)
	}
	var categories []models.Category
	if err := query.Order("sort_order, id").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (r *CategoryRepository) ListVisibleIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).Model(&models.Category{}).
		Where("visible = ?", true).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list visible categories: %w", err)
	}
	return ids, nil
}

// Hide marks categories invisible and drops their product relation rows.
func (r *CategoryRepository) Hide(ctx context.Context, ids []int64) (hidden, relations int64, err error) {
	for start := 0; start < len(ids); start += idBatchSize {
		batch := ids[start:min(start+idBatchSize, len(ids))]
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			q := tx.Model(&models.Category{}).Where("id IN ?", batch).Update("visible", false)
			if q.Error != nil {
				return fmt.Errorf("hide categories: %w", q.Error)
			}
			hidden += q.RowsAffected

			q = tx.Where("category_id IN ?", batch).Delete(&models.ProductCategory{})
			if q.Error != nil {
				return fmt.Errorf("delete category relations: %w", q.Error)
			}
			relations += q.RowsAffected
			return nil
		})
		if err != nil {
			return hidden, relations, err
		}
	}
	return hidden, relations, nil
}
