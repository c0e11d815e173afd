package models

import "time"

// RetiredUUID remembers the UUID of a deleted field group so it is never
// handed to another record.
type RetiredUUID struct {
	UUID       string    `gorm:"primaryKey;size:36" json:"uuid"`
	ConfigName string    `gorm:"size:255" json:"config_name"`
	RetiredAt  time.Time `gorm:"autoCreateTime" json:"retired_at"`
}
