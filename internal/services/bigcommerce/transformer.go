package bigcommerce

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"catalogsync/internal/config"
	"catalogsync/internal/models"
)

const maxCategoryDepth = 16

// Lookup gives the transformer read-only access to local state.
type Lookup interface {
	SafetyStock(sku string) int
	Category(id int64) (*models.Category, bool)
}

// Record is one upstream product in storage shape.
type Record struct {
	Product        models.Product
	Variants       []models.Variant
	Options        []models.Option
	Categories     []models.ProductCategory
	ProductOptions []models.ProductOption
	// Variants dropped from the record, with the reason.
	VariantFailures []TransformError
}

type TransformError struct {
	ProductID int64
	VariantID int64
	Reason    string
}

func (e TransformError) Error() string {
	if e.VariantID != 0 {
		return fmt.Sprintf("product %d variant %d: %s", e.ProductID, e.VariantID, e.Reason)
	}
	return fmt.Sprintf("product %d: %s", e.ProductID, e.Reason)
}

type variantPayload struct {
	ID        int64         `json:"id"`
	SKU       string        `json:"sku"`
	Price     string        `json:"price"`
	SalePrice string        `json:"sale_price"`
	CashPrice string        `json:"cash_price"`
	Stock     int           `json:"stock"`
	Options   []optionLabel `json:"options"`
}

type optionLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Transformer struct {
	lookup Lookup
	now    func() time.Time
}

func NewTransformer(lookup Lookup) *Transformer {
	return &Transformer{lookup: lookup, now: time.Now}
}

// Format converts upstream products into storage records. Products that
// cannot be converted are skipped and returned as errors; they never abort
// the batch.
func (t *Transformer) Format(raw []Product, ch config.ChannelConfig) ([]Record, []TransformError) {
	records := make([]Record, 0, len(raw))
	var failures []TransformError

	for i := range raw {
		rec, err := t.TransformProduct(&raw[i], ch)
		if err != nil {
			var te TransformError
			if e, ok := err.(TransformError); ok {
				te = e
			} else {
				te = TransformError{ProductID: raw[i].ID, Reason: err.Error()}
			}
			failures = append(failures, te)
			continue
		}
		records = append(records, *rec)
	}
	return records, failures
}

// TransformProduct converts a single upstream product.
func (t *Transformer) TransformProduct(p *Product, ch config.ChannelConfig) (*Record, error) {
	if p.ID <= 0 {
		return nil, TransformError{ProductID: p.ID, Reason: "missing product id"}
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, TransformError{ProductID: p.ID, Reason: "missing name"}
	}
	if len(p.Variants) == 0 {
		return nil, TransformError{ProductID: p.ID, Reason: "no variants"}
	}

	price := decimal.NewFromFloat(p.Price)
	sale := decimal.NewFromFloat(p.SalePrice)
	cash := CashPrice(price, sale, ch.TransferDiscountPercent)

	rec := &Record{}
	seenOptions := make(map[int64]struct{})
	payloads := make([]variantPayload, 0, len(p.Variants))
	var stock, safety int

	for _, v := range p.Variants {
		if strings.TrimSpace(v.SKU) == "" {
			rec.VariantFailures = append(rec.VariantFailures, TransformError{ProductID: p.ID, VariantID: v.ID, Reason: "missing sku"})
			continue
		}
		if v.ID <= 0 {
			rec.VariantFailures = append(rec.VariantFailures, TransformError{ProductID: p.ID, Reason: fmt.Sprintf("variant %s has no id", v.SKU)})
			continue
		}

		variant, labels, err := t.transformVariant(p, &v, price, sale, ch)
		if err != nil {
			rec.VariantFailures = append(rec.VariantFailures, TransformError{ProductID: p.ID, VariantID: v.ID, Reason: err.Error()})
			continue
		}
		rec.Variants = append(rec.Variants, variant)
		stock += v.InventoryLevel
		safety += variant.SafetyStock

		for _, ov := range v.OptionValues {
			if _, ok := seenOptions[ov.ID]; ok || ov.ID <= 0 {
				continue
			}
			seenOptions[ov.ID] = struct{}{}
			rec.Options = append(rec.Options, models.Option{
				ID:          ov.ID,
				OptionSetID: ov.OptionID,
				DisplayName: ov.OptionDisplayName,
				Label:       ov.Label,
			})
			rec.ProductOptions = append(rec.ProductOptions, models.ProductOption{ProductID: p.ID, OptionID: ov.ID})
		}

		payloads = append(payloads, variantPayload{
			ID:        variant.ID,
			SKU:       variant.SKU,
			Price:     variant.Price.StringFixed(2),
			SalePrice: variant.SalePrice.StringFixed(2),
			CashPrice: variant.CashPrice.String(),
			Stock:     variant.Stock,
			Options:   labels,
		})
	}

	if len(rec.Variants) == 0 {
		return nil, TransformError{ProductID: p.ID, Reason: "no valid variants"}
	}

	variantsJSON, err := json.Marshal(payloads)
	if err != nil {
		return nil, TransformError{ProductID: p.ID, Reason: fmt.Sprintf("encode variants: %v", err)}
	}
	categoriesJSON, err := json.Marshal(nonNil(p.Categories))
	if err != nil {
		return nil, TransformError{ProductID: p.ID, Reason: fmt.Sprintf("encode categories: %v", err)}
	}
	images := sortedImageURLs(p.Images)
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return nil, TransformError{ProductID: p.ID, Reason: fmt.Sprintf("encode images: %v", err)}
	}

	for _, categoryID := range uniqueIDs(p.Categories) {
		rec.Categories = append(rec.Categories, models.ProductCategory{ProductID: p.ID, CategoryID: categoryID})
	}

	volumetric := VolumetricWeight(p.Width, p.Depth, p.Height)
	keywords, reserve := t.categoryTags(p.Categories, ch)

	rec.Product = models.Product{
		ID:               p.ID,
		Name:             strings.TrimSpace(p.Name),
		Description:      p.Description,
		SKU:              p.SKU,
		BrandID:          p.BrandID,
		CategoryIDs:      datatypes.JSON(categoriesJSON),
		Price:            price,
		SalePrice:        sale,
		CashPrice:        cash,
		DiscountPercent:  DiscountPercent(price, sale),
		Stock:            stock,
		SafetyStock:      safety,
		AvailableStock:   max(0, stock-safety),
		UpstreamVisible:  p.IsVisible,
		Visible:          p.IsVisible && !(price.IsZero() && cash.IsZero()),
		Weight:           p.Weight,
		VolumetricWeight: volumetric,
		ShippingWeight:   ShippingWeight(p.Weight, volumetric, ch.SkipVolumetricWeight),
		Width:            p.Width,
		Height:           p.Height,
		Depth:            p.Depth,
		Keywords:         strings.Join(keywords, ","),
		Reserve:          reserve,
		CustomURL:        p.CustomURL.URL,
		ImageURL:         firstOrEmpty(images),
		Images:           datatypes.JSON(imagesJSON),
		Variants:         datatypes.JSON(variantsJSON),
		SyncedAt:         t.now(),
	}
	return rec, nil
}

func (t *Transformer) transformVariant(p *Product, v *Variant, productPrice, productSale decimal.Decimal, ch config.ChannelConfig) (models.Variant, []optionLabel, error) {
	price := productPrice
	if v.Price != nil {
		price = decimal.NewFromFloat(*v.Price)
	}
	sale := productSale
	if v.SalePrice != nil {
		sale = decimal.NewFromFloat(*v.SalePrice)
	}
	if price.IsNegative() || sale.IsNegative() {
		return models.Variant{}, nil, fmt.Errorf("negative price")
	}

	labels := make([]optionLabel, 0, len(v.OptionValues))
	for _, ov := range v.OptionValues {
		labels = append(labels, optionLabel{Name: ov.OptionDisplayName, Value: ov.Label})
	}
	optionsJSON, err := json.Marshal(labels)
	if err != nil {
		return models.Variant{}, nil, fmt.Errorf("encode options: %w", err)
	}

	safety := 0
	if t.lookup != nil {
		safety = t.lookup.SafetyStock(v.SKU)
	}

	return models.Variant{
		ID:          v.ID,
		ProductID:   p.ID,
		SKU:         strings.TrimSpace(v.SKU),
		Price:       price,
		SalePrice:   sale,
		CashPrice:   CashPrice(price, sale, ch.TransferDiscountPercent),
		Stock:       max(0, v.InventoryLevel-safety),
		SafetyStock: safety,
		Weight:      valueOr(v.Weight, p.Weight),
		Width:       valueOr(v.Width, p.Width),
		Height:      valueOr(v.Height, p.Height),
		Depth:       valueOr(v.Depth, p.Depth),
		Purchasable: !v.PurchasingDisabled,
		ImageURL:    v.ImageURL,
		Options:     datatypes.JSON(optionsJSON),
	}, labels, nil
}

// categoryTags returns the names of the product's categories that descend
// from the benefits or campaigns roots, and whether any category descends
// from the reserve root.
func (t *Transformer) categoryTags(categoryIDs []int64, ch config.ChannelConfig) ([]string, bool) {
	if t.lookup == nil {
		return nil, false
	}
	var keywords []string
	seen := make(map[string]struct{})
	reserve := false

	for _, id := range uniqueIDs(categoryIDs) {
		category, ok := t.lookup.Category(id)
		if !ok {
			continue
		}
		if ch.ReserveCategoryID != 0 && (id == ch.ReserveCategoryID || t.descendsFrom(category, ch.ReserveCategoryID)) {
			reserve = true
		}
		if t.descendsFrom(category, ch.BenefitsCategoryID) || t.descendsFrom(category, ch.CampaignsCategoryID) {
			name := strings.TrimSpace(category.Name)
			if _, dup := seen[name]; name != "" && !dup {
				seen[name] = struct{}{}
				keywords = append(keywords, name)
			}
		}
	}
	return keywords, reserve
}

func (t *Transformer) descendsFrom(category *models.Category, rootID int64) bool {
	if rootID == 0 {
		return false
	}
	current := category
	for depth := 0; depth < maxCategoryDepth && current != nil; depth++ {
		if current.ParentID == rootID {
			return true
		}
		if current.ParentID == 0 {
			return false
		}
		parent, ok := t.lookup.Category(current.ParentID)
		if !ok {
			return false
		}
		current = parent
	}
	return false
}

func sortedImageURLs(images []Image) []string {
	sorted := append([]Image(nil), images...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].IsThumbnail != sorted[j].IsThumbnail {
			return sorted[i].IsThumbnail
		}
		return sorted[i].SortOrder < sorted[j].SortOrder
	})
	urls := make([]string, 0, len(sorted))
	for _, img := range sorted {
		if img.URLStandard != "" {
			urls = append(urls, img.URLStandard)
		}
	}
	return urls
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id <= 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
