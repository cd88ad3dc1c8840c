package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Product is the local copy of an upstream catalog item. Its ID is the
// upstream numeric product ID.
type Product struct {
	ID               int64           `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Name             string          `json:"name" gorm:"not null"`
	Description      string          `json:"description" gorm:"type:text"`
	SKU              string          `json:"sku" gorm:"index"`
	BrandID          int64           `json:"brand_id"`
	CategoryIDs      datatypes.JSON  `json:"category_ids"`
	Price            decimal.Decimal `json:"price" gorm:"type:decimal(12,2)"`
	SalePrice        decimal.Decimal `json:"sale_price" gorm:"type:decimal(12,2)"`
	CashPrice        decimal.Decimal `json:"cash_price" gorm:"type:decimal(12,2)"`
	DiscountPercent  string          `json:"discount_percent"`
	Stock            int             `json:"stock"`
	SafetyStock      int             `json:"safety_stock"`
	AvailableStock   int             `json:"available_stock"`
	Visible          bool            `json:"visible" gorm:"index"`
	UpstreamVisible  bool            `json:"upstream_visible"`
	Weight           float64         `json:"weight"`
	VolumetricWeight float64         `json:"volumetric_weight"`
	ShippingWeight   float64         `json:"shipping_weight"`
	Width            float64         `json:"width"`
	Height           float64         `json:"height"`
	Depth            float64         `json:"depth"`
	Keywords         string          `json:"keywords" gorm:"type:text"`
	Reserve          bool            `json:"reserve"`
	CustomURL        string          `json:"custom_url"`
	ImageURL         string          `json:"image_url"`
	Images           datatypes.JSON  `json:"images"`
	Variants         datatypes.JSON  `json:"variants"`
	SyncedAt         time.Time       `json:"synced_at"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Variant belongs to exactly one product and is recreated on every sync pass.
type Variant struct {
	ID          int64           `json:"id" gorm:"primaryKey;autoIncrement:false"`
	ProductID   int64           `json:"product_id" gorm:"not null;index"`
	SKU         string          `json:"sku" gorm:"index"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(12,2)"`
	SalePrice   decimal.Decimal `json:"sale_price" gorm:"type:decimal(12,2)"`
	CashPrice   decimal.Decimal `json:"cash_price" gorm:"type:decimal(12,2)"`
	Stock       int             `json:"stock"`
	SafetyStock int             `json:"safety_stock"`
	Weight      float64         `json:"weight"`
	Width       float64         `json:"width"`
	Height      float64         `json:"height"`
	Depth       float64         `json:"depth"`
	Purchasable bool            `json:"purchasable"`
	ImageURL    string          `json:"image_url"`
	Options     datatypes.JSON  `json:"options"`
}
