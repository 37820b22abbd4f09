package models

// Payment is a deposit recorded by an admin. It is matched to orders only by
// registration number and date range.
type Payment struct {
	BaseModel
	RegistrationNumber string `gorm:"index" json:"registrationNumber"`
	BusinessName       string `json:"businessName"`
	Amount             int64  `json:"amount"`
	Memo               string `json:"memo"`
}
