package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel provides shared columns for document-like tables keyed by opaque string ids.
type BaseModel struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// BeforeCreate ensures ids are generated for new records.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}
