package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"catalogsync/internal/models"
)

const (
	insertBatchSize = 100
	// keeps IN (...) lists under the SQLite bound-parameter limit
	idBatchSize = 500
)

var ErrNotFound = errors.New("record not found")

// Chunk is everything one persistence unit writes. Relation rows are
// replaced only for the products listed in Products.
type Chunk struct {
	ChannelID      int64
	Products       []models.Product
	Variants       []models.Variant
	Options        []models.Option
	Categories     []models.ProductCategory
	ProductOptions []models.ProductOption
}

func (c Chunk) ProductIDs() []int64 {
	ids := make([]int64, len(c.Products))
	for i, p := range c.Products {
		ids[i] = p.ID
	}
	return ids
}

// CleanupResult counts rows removed while hiding orphaned products.
// HiddenIDs are the products actually soft-hidden; DetachedIDs only lost the
// channel assignment because another channel still sells them.
type CleanupResult struct {
	HiddenIDs                []int64
	DetachedIDs              []int64
	Hidden                   int64
	DeletedVariants          int64
	DeletedCategoryRelations int64
	DeletedOptionRelations   int64
	DeletedChannelRelations  int64
}

func (c *CleanupResult) add(o CleanupResult) {
	c.HiddenIDs = append(c.HiddenIDs, o.HiddenIDs...)
	c.DetachedIDs = append(c.DetachedIDs, o.DetachedIDs...)
	c.Hidden += o.Hidden
	c.DeletedVariants += o.DeletedVariants
	c.DeletedCategoryRelations += o.DeletedCategoryRelations
	c.DeletedOptionRelations += o.DeletedOptionRelations
	c.DeletedChannelRelations += o.DeletedChannelRelations
}

type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// Ping checks that the store answers queries.
func (r *CatalogRepository) Ping(ctx context.Context) error {
	var one int
	if err := r.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		return fmt.Errorf("ping catalog store: %w", err)
	}
	return nil
}

// ReplaceChunk writes one chunk inside a single transaction: products are
// upserted by ID, variants and relation rows of the chunk's products are
// deleted and recreated. Rows of products outside the chunk are never touched.
func (r *CatalogRepository) ReplaceChunk(ctx context.Context, chunk Chunk) error {
	if len(chunk.Products) == 0 {
		return nil
	}
	ids := chunk.ProductIDs()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).CreateInBatches(chunk.Products, insertBatchSize).Error; err != nil {
			return fmt.Errorf("upsert products: %w", err)
		}

		if err := tx.Where("product_id IN ?", ids).Delete(&models.Variant{}).Error; err != nil {
			return fmt.Errorf("delete variants: %w", err)
		}
		if len(chunk.Variants) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).CreateInBatches(chunk.Variants, insertBatchSize).Error; err != nil {
				return fmt.Errorf("insert variants: %w", err)
			}
		}

		if len(chunk.Options) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).CreateInBatches(chunk.Options, insertBatchSize).Error; err != nil {
				return fmt.Errorf("upsert options: %w", err)
			}
		}

		if err := tx.Where("product_id IN ?", ids).Delete(&models.ProductCategory{}).Error; err != nil {
			return fmt.Errorf("delete category relations: %w", err)
		}
		if len(chunk.Categories) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				CreateInBatches(chunk.Categories, insertBatchSize).Error; err != nil {
				return fmt.Errorf("insert category relations: %w", err)
			}
		}

		if err := tx.Where("product_id IN ?", ids).Delete(&models.ProductOption{}).Error; err != nil {
			return fmt.Errorf("delete option relations: %w", err)
		}
		if len(chunk.ProductOptions) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				CreateInBatches(chunk.ProductOptions, insertBatchSize).Error; err != nil {
				return fmt.Errorf("insert option relations: %w", err)
			}
		}

		// Channel rows are per channel: other channels' assignments of the
		// same products stay.
		if err := tx.Where("product_id IN ? AND channel_id = ?", ids, chunk.ChannelID).
			Delete(&models.ProductChannel{}).Error; err != nil {
			return fmt.Errorf("delete channel relations: %w", err)
		}
		channelRows := make([]models.ProductChannel, len(ids))
		for i, id := range ids {
			channelRows[i] = models.ProductChannel{ProductID: id, ChannelID: chunk.ChannelID}
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			CreateInBatches(channelRows, insertBatchSize).Error; err != nil {
			return fmt.Errorf("insert channel relations: %w", err)
		}

		return nil
	})
}

// ListVisibleProductIDs returns the IDs of visible products assigned to the
// channel.
func (r *CatalogRepository) ListVisibleProductIDs(ctx context.Context, channelID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.Product{}).
		Joins("JOIN product_channels ON product_channels.product_id = products.id").
		Where("products.visible = ? AND product_channels.channel_id = ?", true, channelID).
		Order("products.id").
		Pluck("products.id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list visible products: %w", err)
	}
	return ids, nil
}

// HideProducts removes the channel assignment of the given products. Products
// left without any channel are soft-hidden and lose their variants and
// relation rows. Work is split into transactions of idBatchSize products.
func (r *CatalogRepository) HideProducts(ctx context.Context, channelID int64, ids []int64) (CleanupResult, error) {
	var total CleanupResult
	for start := 0; start < len(ids); start += idBatchSize {
		batch := ids[start:min(start+idBatchSize, len(ids))]

		var res CleanupResult
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			q := tx.Where("product_id IN ? AND channel_id = ?", batch, channelID).Delete(&models.ProductChannel{})
			if q.Error != nil {
				return fmt.Errorf("delete channel relations: %w", q.Error)
			}
			res.DeletedChannelRelations = q.RowsAffected

			var stillAssigned []int64
			if err := tx.Model(&models.ProductChannel{}).
				Where("product_id IN ?", batch).
				Distinct().Pluck("product_id", &stillAssigned).Error; err != nil {
				return fmt.Errorf("list remaining channel relations: %w", err)
			}
			orphans := subtract(batch, stillAssigned)
			res.DetachedIDs = subtract(batch, orphans)
			if len(orphans) == 0 {
				return nil
			}

			q = tx.Model(&models.Product{}).Where("id IN ?", orphans).Update("visible", false)
			if q.Error != nil {
				return fmt.Errorf("hide products: %w", q.Error)
			}
			res.Hidden = q.RowsAffected
			res.HiddenIDs = orphans

			q = tx.Where("product_id IN ?", orphans).Delete(&models.Variant{})
			if q.Error != nil {
				return fmt.Errorf("delete variants: %w", q.Error)
			}
			res.DeletedVariants = q.RowsAffected

			q = tx.Where("product_id IN ?", orphans).Delete(&models.ProductCategory{})
			if q.Error != nil {
				return fmt.Errorf("delete category relations: %w", q.Error)
			}
			res.DeletedCategoryRelations = q.RowsAffected

			q = tx.Where("product_id IN ?", orphans).Delete(&models.ProductOption{})
			if q.Error != nil {
				return fmt.Errorf("delete option relations: %w", q.Error)
			}
			res.DeletedOptionRelations = q.RowsAffected
			return nil
		})
		if err != nil {
			return total, err
		}
		total.add(res)
	}
	return total, nil
}

func subtract(ids, remove []int64) []int64 {
	drop := make(map[int64]struct{}, len(remove))
	for _, id := range remove {
		drop[id] = struct{}{}
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// PruneOrphanOptions deletes option values no product references anymore.
func (r *CatalogRepository) PruneOrphanOptions(ctx context.Context) (int64, error) {
	q := r.db.WithContext(ctx).
		Where("id NOT IN (?)", r.db.Model(&models.ProductOption{}).Select("option_id")).
		Delete(&models.Option{})
	if q.Error != nil {
		return 0, fmt.Errorf("prune options: %w", q.Error)
	}
	return q.RowsAffected, nil
}

// ProductFilter drives the storefront listing.
type ProductFilter struct {
	Page       int
	Limit      int
	CategoryID int64
	ChannelID  int64
}

func (r *CatalogRepository) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}

	query := r.db.WithContext(ctx).Model(&models.Product{}).Where("products.visible = ?", true)
	if f.CategoryID != 0 {
		query = query.Where("products.id IN (?)",
			r.db.Model(&models.ProductCategory{}).Select("product_id").Where("category_id = ?", f.CategoryID))
	}
	if f.ChannelID != 0 {
		query = query.Where("products.id IN (?)",
			r.db.Model(&models.ProductChannel{}).Select("product_id").Where("channel_id = ?", f.ChannelID))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	var products []models.Product
	if err := query.Order("products.id").Offset((f.Page - 1) * f.Limit).Limit(f.Limit).Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, total, nil
}

// GetProduct returns a visible product with its variants.
func (r *CatalogRepository) GetProduct(ctx context.Context, id int64) (*models.Product, []models.Variant, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Where("id = ? AND visible = ?", id, true).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get product %d: %w", id, err)
	}

	var variants []models.Variant
	if err := r.db.WithContext(ctx).Where("product_id = ?", id).Order("id").Find(&variants).Error; err != nil {
		return nil, nil, fmt.Errorf("get variants of %d: %w", id, err)
	}
	return &product, variants, nil
}
