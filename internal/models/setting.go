package models

import "time"

// Setting is one row of the settings key/value table. Values are strings;
// the settings package decodes them per a fixed key-to-type map.
type Setting struct {
	Key       string    `gorm:"primarykey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
