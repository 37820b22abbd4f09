package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/coolpis/internal/models"
	"github.com/example/coolpis/internal/repository"
)

type orderRepo struct {
	db   *gorm.DB
	inTx bool
}

// NewOrderRepository returns the gorm-backed orders collection.
func NewOrderRepository(db *gorm.DB) repository.OrderRepository {
	return &orderRepo{db: db}
}

func (r *orderRepo) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *orderRepo) FindByID(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	if err := r.db.WithContext(ctx).Preload("Items").First(&o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) List(ctx context.Context, filter repository.OrderFilter) ([]models.Order, error) {
	query := r.filtered(ctx, filter).Preload("Items").Order("created_at desc, id")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var out []models.Order
	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *orderRepo) Count(ctx context.Context, filter repository.OrderFilter) (int64, error) {
	var total int64
	if err := r.filtered(ctx, filter).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *orderRepo) ListByVehicle(ctx context.Context, vehicle string) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("delivery_vehicle = ?", vehicle).
		Order("delivery_sequence, id")
	if r.inTx {
		// Row locks alone miss a vehicle with no rows yet.
		if err := r.LockVehicles(ctx, vehicle); err != nil {
			return nil, err
		}
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var out []models.Order
	if err := query.Preload("Items").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *orderRepo) Vehicles(ctx context.Context) ([]string, error) {
	var out []string
	err := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("delivery_vehicle IS NOT NULL AND delivery_vehicle <> ''").
		Distinct("delivery_vehicle").
		Order("delivery_vehicle").
		Pluck("delivery_vehicle", &out).Error
	return out, err
}

func (r *orderRepo) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error {
	return r.update(ctx, id, map[string]any{"status": status})
}

func (r *orderRepo) SetDispatch(ctx context.Context, id string, vehicle *string, sequence int) error {
	return r.update(ctx, id, map[string]any{
		"delivery_vehicle":  vehicle,
		"delivery_sequence": sequence,
	})
}

func (r *orderRepo) SetSequence(ctx context.Context, id string, sequence int) error {
	return r.update(ctx, id, map[string]any{"delivery_sequence": sequence})
}

func (r *orderRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&models.OrderItem{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Order{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}

const vehicleLockSQL = "SELECT pg_advisory_xact_lock(hashtext(?))"

// LockVehicles takes a transaction-scoped advisory lock per vehicle label. The
// locks are reentrant and released at commit or rollback.
func (r *orderRepo) LockVehicles(ctx context.Context, vehicles ...string) error {
	if !r.inTx {
		return nil
	}
	for _, v := range lockOrder(vehicles) {
		if err := r.db.WithContext(ctx).Exec(vehicleLockSQL, v).Error; err != nil {
			return fmt.Errorf("lock vehicle %q: %w", v, err)
		}
	}
	return nil
}

// lockOrder returns the distinct non-empty labels sorted, so that transactions
// locking the same pair of vehicles always acquire them in the same order.
func lockOrder(vehicles []string) []string {
	out := make([]string, 0, len(vehicles))
	seen := make(map[string]struct{}, len(vehicles))
	for _, v := range vehicles {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (r *orderRepo) Transaction(ctx context.Context, fn func(tx repository.OrderRepository) error) error {
	if r.inTx {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&orderRepo{db: tx, inTx: true})
	})
}

func (r *orderRepo) update(ctx context.Context, id string, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *orderRepo) filtered(ctx context.Context, f repository.OrderFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if f.UID != "" {
		query = query.Where("uid = ?", f.UID)
	}
	if f.RegistrationNumber != "" {
		query = query.Where("registration_number = ?", f.RegistrationNumber)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Vehicle != "" {
		query = query.Where("delivery_vehicle = ?", f.Vehicle)
	}
	if f.UnassignedOnly {
		query = query.Where("(delivery_vehicle IS NULL OR delivery_vehicle = '')")
	}
	if f.ExcludeDelivered {
		query = query.Where("status <> ?", models.OrderStatusDelivered)
	}
	if !f.From.IsZero() {
		query = query.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		query = query.Where("created_at <= ?", f.To)
	}
	return query
}
