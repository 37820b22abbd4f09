package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/coolpis/internal/models"
	"github.com/example/coolpis/internal/repository"
)

// OrderStore keeps orders in process memory. Transactions hold the store lock
// for their whole duration and work on a copy that replaces the live data on commit.
type OrderStore struct {
	mu     sync.Mutex
	orders map[string]models.Order
	now    func() time.Time
}

// NewOrderStore returns an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]models.Order), now: time.Now}
}

// orderView is the OrderRepository handed out by OrderStore. A non-nil tx means the
// caller already holds the store lock.
type orderView struct {
	store *OrderStore
	tx    map[string]models.Order
}

// Repository returns the non-transactional repository view.
func (s *OrderStore) Repository() repository.OrderRepository {
	return &orderView{store: s}
}

func (v *orderView) with(fn func(data map[string]models.Order) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.orders)
}

func (v *orderView) Create(ctx context.Context, order *models.Order) error {
	return v.with(func(data map[string]models.Order) error {
		if order.ID == "" {
			order.ID = uuid.NewString()
		}
		if _, exists := data[order.ID]; exists {
			return repository.ErrConflict
		}
		if order.CreatedAt.IsZero() {
			order.CreatedAt = v.store.now()
		}
		order.ID = strings.Clone(order.ID)
		data[order.ID] = cloneOrder(*order)
		return nil
	})
}

func (v *orderView) FindByID(ctx context.Context, id string) (*models.Order, error) {
	var out *models.Order
	err := v.with(func(data map[string]models.Order) error {
		o, ok := data[id]
		if !ok {
			return repository.ErrNotFound
		}
		c := cloneOrder(o)
		out = &c
		return nil
	})
	return out, err
}

func (v *orderView) List(ctx context.Context, filter repository.OrderFilter) ([]models.Order, error) {
	var out []models.Order
	err := v.with(func(data map[string]models.Order) error {
		out = filterOrders(data, filter)
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].ID < out[j].ID
			}
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
		out = paginate(out, filter.Offset, filter.Limit)
		return nil
	})
	return out, err
}

func (v *orderView) Count(ctx context.Context, filter repository.OrderFilter) (int64, error) {
	var n int64
	err := v.with(func(data map[string]models.Order) error {
		filter.Limit, filter.Offset = 0, 0
		n = int64(len(filterOrders(data, filter)))
		return nil
	})
	return n, err
}

func (v *orderView) ListByVehicle(ctx context.Context, vehicle string) ([]models.Order, error) {
	var out []models.Order
	err := v.with(func(data map[string]models.Order) error {
		out = filterOrders(data, repository.OrderFilter{Vehicle: vehicle})
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].DeliverySequence == out[j].DeliverySequence {
				return out[i].ID < out[j].ID
			}
			return out[i].DeliverySequence < out[j].DeliverySequence
		})
		return nil
	})
	return out, err
}

func (v *orderView) Vehicles(ctx context.Context) ([]string, error) {
	var out []string
	err := v.with(func(data map[string]models.Order) error {
		seen := make(map[string]struct{})
		for _, o := range data {
			if o.Assigned() {
				seen[*o.DeliveryVehicle] = struct{}{}
			}
		}
		for label := range seen {
			out = append(out, label)
		}
		sort.Strings(out)
		return nil
	})
	return out, err
}

func (v *orderView) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error {
	return v.update(id, func(o *models.Order) { o.Status = status })
}

func (v *orderView) SetDispatch(ctx context.Context, id string, vehicle *string, sequence int) error {
	return v.update(id, func(o *models.Order) {
		if vehicle == nil {
			o.DeliveryVehicle = nil
		} else {
			label := *vehicle
			o.DeliveryVehicle = &label
		}
		o.DeliverySequence = sequence
	})
}

func (v *orderView) SetSequence(ctx context.Context, id string, sequence int) error {
	return v.update(id, func(o *models.Order) { o.DeliverySequence = sequence })
}

func (v *orderView) Delete(ctx context.Context, id string) error {
	return v.with(func(data map[string]models.Order) error {
		if _, ok := data[id]; !ok {
			return repository.ErrNotFound
		}
		delete(data, id)
		return nil
	})
}

// LockVehicles is a no-op: transactions already hold the store lock.
func (v *orderView) LockVehicles(ctx context.Context, vehicles ...string) error {
	return nil
}

func (v *orderView) Transaction(ctx context.Context, fn func(tx repository.OrderRepository) error) error {
	if v.tx != nil {
		return fn(v)
	}

	v.store.mu.Lock()
	defer v.store.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := make(map[string]models.Order, len(v.store.orders))
	for id, o := range v.store.orders {
		working[id] = cloneOrder(o)
	}

	if err := fn(&orderView{store: v.store, tx: working}); err != nil {
		return err
	}

	v.store.orders = working
	return nil
}

func (v *orderView) update(id string, mutate func(o *models.Order)) error {
	return v.with(func(data map[string]models.Order) error {
		o, ok := data[id]
		if !ok {
			return repository.ErrNotFound
		}
		mutate(&o)
		// Keyed by the stored ID: id may alias a request buffer.
		data[o.ID] = o
		return nil
	})
}

func filterOrders(data map[string]models.Order, f repository.OrderFilter) []models.Order {
	out := make([]models.Order, 0, len(data))
	for _, o := range data {
		if f.UID != "" && o.UID != f.UID {
			continue
		}
		if f.RegistrationNumber != "" && o.RegistrationNumber != f.RegistrationNumber {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.Vehicle != "" && o.VehicleLabel() != f.Vehicle {
			continue
		}
		if f.UnassignedOnly && o.Assigned() {
			continue
		}
		if f.ExcludeDelivered && o.Status == models.OrderStatusDelivered {
			continue
		}
		if !repository.InRange(o.CreatedAt, f.From, f.To) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	return out
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneOrder(o models.Order) models.Order {
	if o.DeliveryVehicle != nil {
		label := *o.DeliveryVehicle
		o.DeliveryVehicle = &label
	}
	if o.Items != nil {
		items := make([]models.OrderItem, len(o.Items))
		copy(items, o.Items)
		o.Items = items
	}
	return o
}
