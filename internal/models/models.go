package models

// All lists every table owned by the catalog store, in migration order.
func All() []interface{} {
	return []interface{}{
		&Product{},
		&Variant{},
		&Category{},
		&Option{},
		&ProductCategory{},
		&ProductChannel{},
		&ProductOption{},
		&SafetyStock{},
	}
}
