package models

import (
	"errors"
	"fmt"
)

// OrderStatus is the forward-only order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusDelivered OrderStatus = "delivered"
)

// ErrInvalidTransition is returned when a status change would move an order backwards.
var ErrInvalidTransition = errors.New("invalid order status transition")

var statusRank = map[OrderStatus]int{
	OrderStatusPending:   0,
	OrderStatusConfirmed: 1,
	OrderStatusDelivered: 2,
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Forward skips are allowed, backward moves are not.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to >= from
}

// CheckTransition returns ErrInvalidTransition wrapped with both states when the move is rejected.
func (s OrderStatus) CheckTransition(next OrderStatus) error {
	if !next.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}
	if !s.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return nil
}

type Order struct {
	BaseModel
	UID                string      `gorm:"type:varchar(64);index" json:"uid"`
	RegistrationNumber string      `gorm:"index" json:"registrationNumber"`
	BusinessName       string      `json:"businessName"`
	Representative     string      `json:"representative"`
	Address            string      `json:"address"`
	Phone              string      `json:"phone"`
	Items              []OrderItem `gorm:"constraint:OnDelete:CASCADE" json:"items"`
	TotalItems         int         `json:"totalItems"`
	TotalPrice         int64       `json:"totalPrice"`
	Status             OrderStatus `gorm:"type:varchar(16);index" json:"status"`
	DeliveryVehicle    *string     `gorm:"index" json:"deliveryVehicle"`
	DeliverySequence   int         `json:"deliverySequence"`
}

// Assigned reports whether the order currently belongs to a vehicle.
func (o *Order) Assigned() bool {
	return o.DeliveryVehicle != nil && *o.DeliveryVehicle != ""
}

// VehicleLabel returns the assigned vehicle or "".
func (o *Order) VehicleLabel() string {
	if o.DeliveryVehicle == nil {
		return ""
	}
	return *o.DeliveryVehicle
}

type OrderItem struct {
	ID          uint   `gorm:"primaryKey" json:"-"`
	OrderID     string `gorm:"type:varchar(64);index" json:"-"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Price       int64  `json:"price"`
	Unit        string `json:"unit"`
	Quantity    int    `json:"quantity"`
}

// LineTotal is the unit price times quantity.
func (i OrderItem) LineTotal() int64 {
	return i.Price * int64(i.Quantity)
}
