package repository

import (
	"context"
	"errors"
	"time"

	"github.com/example/coolpis/internal/models"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a write would violate a store constraint.
	ErrConflict = errors.New("document conflict")
)

// OrderFilter narrows order listings. Zero values mean "any".
type OrderFilter struct {
	UID                string
	RegistrationNumber string
	Status             models.OrderStatus
	Vehicle            string
	UnassignedOnly     bool
	ExcludeDelivered   bool
	From               time.Time
	To                 time.Time
	Limit              int
	Offset             int
}

// OrderRepository is the orders collection. Lists are newest first unless stated otherwise.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]models.Order, error)
	Count(ctx context.Context, filter OrderFilter) (int64, error)
	// ListByVehicle returns the vehicle's orders sorted by delivery sequence.
	// Inside a transaction the rows are locked until commit.
	ListByVehicle(ctx context.Context, vehicle string) ([]models.Order, error)
	// Vehicles returns the distinct labels in use, sorted.
	Vehicles(ctx context.Context) ([]string, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error
	// SetDispatch writes vehicle and sequence together. A nil vehicle unassigns.
	SetDispatch(ctx context.Context, id string, vehicle *string, sequence int) error
	SetSequence(ctx context.Context, id string, sequence int) error
	Delete(ctx context.Context, id string) error
	// LockVehicles serialises writers of the given vehicles until the surrounding
	// transaction ends. It covers vehicles that have no orders yet. Outside a
	// transaction it does nothing.
	LockVehicles(ctx context.Context, vehicles ...string) error
	// Transaction runs fn atomically. All writes made through the repository passed
	// to fn are committed together or not at all.
	Transaction(ctx context.Context, fn func(tx OrderRepository) error) error
}

// ProfileRepository is the profiles collection keyed by uid.
type ProfileRepository interface {
	Get(ctx context.Context, uid string) (*models.BusinessProfile, error)
	// Save replaces the document at profile.UID.
	Save(ctx context.Context, profile *models.BusinessProfile) error
	// FindByRegistrationNumber returns the first profile whose number equals one of variants.
	FindByRegistrationNumber(ctx context.Context, variants ...string) (*models.BusinessProfile, error)
	List(ctx context.Context) ([]models.BusinessProfile, error)
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	RegistrationNumber string
	From               time.Time
	To                 time.Time
}

// PaymentRepository is the payments collection.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	List(ctx context.Context, filter PaymentFilter) ([]models.Payment, error)
	Delete(ctx context.Context, id string) error
}

// ProductRepository is the catalog.
type ProductRepository interface {
	List(ctx context.Context, activeOnly bool) ([]models.Product, error)
	FindByID(ctx context.Context, id string) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]models.Product, error)
	Save(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id string) error
}

// Store bundles the collections used by the application.
type Store struct {
	Orders   OrderRepository
	Profiles ProfileRepository
	Payments PaymentRepository
	Products ProductRepository
}

// InRange reports whether t falls inside [from, to]. Zero bounds are open.
func InRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}
