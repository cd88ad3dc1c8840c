package models

import "time"

// SafetyStock is the quantity per SKU held back from the storefront. It is
// refreshed by the inventory feed, independently of the product sync.
type SafetyStock struct {
	SKU       string    `json:"sku" gorm:"primaryKey"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}
