package models

// Option is a single upstream option value (e.g. "Color: Red").
type Option struct {
	ID          int64  `json:"id" gorm:"primaryKey;autoIncrement:false"`
	OptionSetID int64  `json:"option_set_id" gorm:"index"`
	DisplayName string `json:"display_name"`
	Label       string `json:"label"`
}
