package models

// Join rows between a product and a category, channel or option value.
// They are replaced wholesale per sync chunk, scoped to the chunk's products.

type ProductCategory struct {
	ProductID  int64 `json:"product_id" gorm:"primaryKey;autoIncrement:false"`
	CategoryID int64 `json:"category_id" gorm:"primaryKey;autoIncrement:false;index"`
}

type ProductChannel struct {
	ProductID int64 `json:"product_id" gorm:"primaryKey;autoIncrement:false"`
	ChannelID int64 `json:"channel_id" gorm:"primaryKey;autoIncrement:false;index"`
}

type ProductOption struct {
	ProductID int64 `json:"product_id" gorm:"primaryKey;autoIncrement:false"`
	OptionID  int64 `json:"option_id" gorm:"primaryKey;autoIncrement:false;index"`
}
