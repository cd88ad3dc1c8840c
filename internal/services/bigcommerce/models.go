package bigcommerce

// Pagination is the meta.pagination block of every v3 list response.
type Pagination struct {
	Total       int `json:"total"`
	Count       int `json:"count"`
	PerPage     int `json:"per_page"`
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

type Meta struct {
	Pagination Pagination `json:"pagination"`
}

// ChannelAssignment links a product to a sales channel.
type ChannelAssignment struct {
	ProductID int64 `json:"product_id"`
	ChannelID int64 `json:"channel_id"`
}

type ChannelAssignmentsResponse struct {
	Data []ChannelAssignment `json:"data"`
	Meta Meta                `json:"meta"`
}

// Product is an upstream catalog product with images and variants included.
type Product struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	SKU            string    `json:"sku"`
	Description    string    `json:"description"`
	BrandID        int64     `json:"brand_id"`
	Categories     []int64   `json:"categories"`
	Price          float64   `json:"price"`
	SalePrice      float64   `json:"sale_price"`
	RetailPrice    float64   `json:"retail_price"`
	Weight         float64   `json:"weight"`
	Width          float64   `json:"width"`
	Depth          float64   `json:"depth"`
	Height         float64   `json:"height"`
	InventoryLevel int       `json:"inventory_level"`
	IsVisible      bool      `json:"is_visible"`
	CustomURL      CustomURL `json:"custom_url"`
	Images         []Image   `json:"images"`
	Variants       []Variant `json:"variants"`
}

type CustomURL struct {
	URL          string `json:"url"`
	IsCustomized bool   `json:"is_customized"`
}

type Image struct {
	ID          int64  `json:"id"`
	URLStandard string `json:"url_standard"`
	URLZoom     string `json:"url_zoom"`
	IsThumbnail bool   `json:"is_thumbnail"`
	SortOrder   int    `json:"sort_order"`
}

type Variant struct {
	ID                 int64         `json:"id"`
	ProductID          int64         `json:"product_id"`
	SKU                string        `json:"sku"`
	Price              *float64      `json:"price"`
	SalePrice          *float64      `json:"sale_price"`
	CalculatedPrice    float64       `json:"calculated_price"`
	InventoryLevel     int           `json:"inventory_level"`
	Weight             *float64      `json:"weight"`
	Width              *float64      `json:"width"`
	Height             *float64      `json:"height"`
	Depth              *float64      `json:"depth"`
	PurchasingDisabled bool          `json:"purchasing_disabled"`
	ImageURL           string        `json:"image_url"`
	OptionValues       []OptionValue `json:"option_values"`
}

type OptionValue struct {
	ID                int64  `json:"id"`
	Label             string `json:"label"`
	OptionID          int64  `json:"option_id"`
	OptionDisplayName string `json:"option_display_name"`
}

type ProductsResponse struct {
	Data []Product `json:"data"`
	Meta Meta      `json:"meta"`
}

type Category struct {
	ID        int64     `json:"id"`
	ParentID  int64     `json:"parent_id"`
	Name      string    `json:"name"`
	IsVisible bool      `json:"is_visible"`
	SortOrder int       `json:"sort_order"`
	CustomURL CustomURL `json:"custom_url"`
}

type CategoriesResponse struct {
	Data []Category `json:"data"`
	Meta Meta       `json:"meta"`
}

// InventoryItem is one SKU of the inventory feed with its per-location settings.
type InventoryItem struct {
	Identity  InventoryIdentity   `json:"identity"`
	Locations []InventoryLocation `json:"locations"`
}

type InventoryIdentity struct {
	SKU       string `json:"sku"`
	VariantID int64  `json:"variant_id"`
	ProductID int64  `json:"product_id"`
}

type InventoryLocation struct {
	LocationID      int64             `json:"location_id"`
	AvailableToSell int               `json:"available_to_sell"`
	Settings        InventorySettings `json:"settings"`
}

type InventorySettings struct {
	SafetyStock int `json:"safety_stock"`
}

type InventoryResponse struct {
	Data []InventoryItem `json:"data"`
	Meta Meta            `json:"meta"`
}
