package models

import "time"

// BusinessProfile is keyed 1:1 by the session uid.
type BusinessProfile struct {
	UID                string    `gorm:"type:varchar(64);primaryKey" json:"uid"`
	BusinessName       string    `json:"businessName"`
	Representative     string    `json:"representative"`
	RegistrationNumber string    `gorm:"index" json:"registrationNumber"`
	BusinessType       string    `json:"businessType"`
	BusinessCategory   string    `json:"businessCategory"`
	Address            string    `json:"address"`
	Phone              string    `json:"phone"`
	RegisteredAt       time.Time `json:"registeredAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func (BusinessProfile) TableName() string {
	return "profiles"
}
