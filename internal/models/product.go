package models

import "time"

type Product struct {
	ID          string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	Unit        string    `json:"unit"`
	Image       string    `json:"image"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// DefaultProducts is the catalog seeded into an empty products table.
func DefaultProducts() []Product {
	return []Product{
		{ID: "calpis-original", Name: "쿨피스 오리지널", Description: "클래식 쿨피스 유산균 음료 (500ml × 20입)", Price: 12000, Unit: "박스", Image: "https://placehold.co/300x200/E3F2FD/1565C0?text=오리지널", Active: true},
		{ID: "calpis-grape", Name: "쿨피스 포도", Description: "포도맛 쿨피스 유산균 음료 (500ml × 20입)", Price: 13000, Unit: "박스", Image: "https://placehold.co/300x200/F3E5F5/7B1FA2?text=포도", Active: true},
		{ID: "calpis-strawberry", Name: "쿨피스 딸기", Description: "딸기맛 쿨피스 유산균 음료 (500ml × 20입)", Price: 13000, Unit: "박스", Image: "https://placehold.co/300x200/FCE4EC/C62828?text=딸기", Active: true},
		{ID: "calpis-peach", Name: "쿨피스 복숭아", Description: "복숭아맛 쿨피스 유산균 음료 (500ml × 20입)", Price: 13500, Unit: "박스", Image: "https://placehold.co/300x200/FFF3E0/E65100?text=복숭아", Active: true},
		{ID: "calpis-mango", Name: "쿨피스 망고", Description: "망고맛 쿨피스 유산균 음료 (500ml × 20입)", Price: 14000, Unit: "박스", Image: "https://placehold.co/300x200/FFFDE7/F9A825?text=망고", Active: true},
	}
}
