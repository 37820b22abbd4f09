package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/example/coolpis/internal/apperr"
	"github.com/example/coolpis/internal/models"
	"github.com/example/coolpis/internal/repository"
)

var (
	ErrVehicleRequired    = apperr.New(apperr.CodeInvalidArgument, "vehicle is required")
	ErrVehicleLabel       = apperr.New(apperr.CodeInvalidArgument, "vehicle label must not start or end with whitespace")
	ErrSequenceOutOfRange = apperr.New(apperr.CodeOutOfRange, "sequence out of range")
	ErrOrderDelivered     = apperr.New(apperr.CodeFailedPrecondition, "delivered orders cannot be dispatched")
	ErrNotSameVehicle     = apperr.New(apperr.CodeInvalidArgument, "orders are not on the same vehicle")
	ErrNotPending         = apperr.New(apperr.CodeFailedPrecondition, "only pending orders can be cancelled")
	ErrNoOrders           = apperr.New(apperr.CodeInvalidArgument, "no order ids given")
	ErrIncompleteOrder    = apperr.New(apperr.CodeInvalidArgument, "stop order must list every order on the vehicle once")
)

// Dispatcher owns vehicle assignment and per-vehicle stop order. Every operation
// runs in one store transaction and leaves each vehicle's sequences at exactly 1..k.
type Dispatcher struct {
	orders repository.OrderRepository
	audit  AuditRecorder
	fleet  []string
	logger *zap.Logger
}

// NewDispatcher creates a Dispatcher. fleet lists the configured vehicle labels.
func NewDispatcher(orders repository.OrderRepository, audit AuditRecorder, fleet []string, logger *zap.Logger) *Dispatcher {
	if audit == nil {
		audit = NopAudit{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		orders: orders,
		audit:  audit,
		fleet:  fleet,
		logger: logger.Named("dispatch"),
	}
}

// Assign puts the order on vehicle at sequence. Sequence 0 appends. An explicit
// sequence must be within 1..count+1 and shifts the orders at or after it.
func (d *Dispatcher) Assign(ctx context.Context, orderID, vehicle string, sequence int) (*models.Order, error) {
	if err := checkVehicle(vehicle); err != nil {
		return nil, err
	}
	if sequence < 0 {
		return nil, fmt.Errorf("%w: %d", ErrSequenceOutOfRange, sequence)
	}

	var previous string
	err := d.orders.Transaction(ctx, func(tx repository.OrderRepository) error {
		order, err := tx.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := tx.LockVehicles(ctx, order.VehicleLabel(), vehicle); err != nil {
			return err
		}
		// Re-read under the locks: the order may have moved since the first read.
		if order, err = tx.FindByID(ctx, orderID); err != nil {
			return err
		}
		if err := tx.LockVehicles(ctx, order.VehicleLabel()); err != nil {
			return err
		}
		if order.Status == models.OrderStatusDelivered {
			return ErrOrderDelivered
		}

		previous = order.VehicleLabel()
		if order.Assigned() && previous != vehicle {
			if err := d.detach(ctx, tx, order); err != nil {
				return err
			}
		}

		current, err := tx.ListByVehicle(ctx, vehicle)
		if err != nil {
			return err
		}
		others := withoutOrder(current, order.ID)

		pos := sequence
		if pos == 0 {
			pos = len(others) + 1
		}
		if pos > len(others)+1 {
			return fmt.Errorf("%w: %d not in 1..%d", ErrSequenceOutOfRange, pos, len(others)+1)
		}

		ordered := make([]models.Order, 0, len(others)+1)
		ordered = append(ordered, others[:pos-1]...)
		ordered = append(ordered, *order)
		ordered = append(ordered, others[pos-1:]...)
		return writeSequence(ctx, tx, vehicle, ordered)
	})
	if err != nil {
		return nil, err
	}

	d.record(ctx, "assign", []string{orderID}, bson.M{"vehicle": vehicle, "sequence": sequence, "from": previous})
	return d.orders.FindByID(ctx, orderID)
}

// Unassign clears the order's vehicle and re-ranks the orders that followed it.
// Unassigning an unassigned order is a no-op.
func (d *Dispatcher) Unassign(ctx context.Context, orderID string) (*models.Order, error) {
	var vehicle string
	err := d.orders.Transaction(ctx, func(tx repository.OrderRepository) error {
		order, err := tx.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Assigned() {
			return nil
		}
		vehicle = order.VehicleLabel()
		return d.detach(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	if vehicle != "" {
		d.record(ctx, "unassign", []string{orderID}, bson.M{"vehicle": vehicle})
	}
	return d.orders.FindByID(ctx, orderID)
}

// MoveUp swaps the order with the one directly before it. It reports whether anything changed.
func (d *Dispatcher) MoveUp(ctx context.Context, orderID string) (bool, error) {
	return d.move(ctx, orderID, -1)
}

// MoveDown swaps the order with the one directly after it. It reports whether anything changed.
func (d *Dispatcher) MoveDown(ctx context.Context, orderID string) (bool, error) {
	return d.move(ctx, orderID, 1)
}

func (d *Dispatcher) move(ctx context.Context, orderID string, delta int) (bool, error) {
	var moved bool
	var neighbourID string
	err := d.orders.Transaction(ctx, func(tx repository.OrderRepository) error {
		order, err := tx.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Assigned() {
			return nil
		}

		current := order.DeliverySequence
		target := current + delta
		if target < 1 {
			return nil
		}

		peers, err := tx.ListByVehicle(ctx, order.VehicleLabel())
		if err != nil {
			return err
		}
		maxSeq := 0
		var neighbour *models.Order
		for i := range peers {
			if peers[i].DeliverySequence > maxSeq {
				maxSeq = peers[i].DeliverySequence
			}
			if peers[i].ID != order.ID && peers[i].DeliverySequence == target && neighbour == nil {
				neighbour = &peers[i]
			}
		}
		if target > maxSeq || neighbour == nil {
			return nil
		}

		if err := tx.SetSequence(ctx, order.ID, target); err != nil {
			return err
		}
		if err := tx.SetSequence(ctx, neighbour.ID, current); err != nil {
			return err
		}
		moved = true
		neighbourID = neighbour.ID
		return nil
	})
	if err != nil || !moved {
		return false, err
	}

	action := "move_down"
	if delta < 0 {
		action = "move_up"
	}
	d.record(ctx, action, []string{orderID, neighbourID}, nil)
	return true, nil
}

// Swap exchanges the sequences of two orders on the same vehicle.
func (d *Dispatcher) Swap(ctx context.Context, orderA, orderB string) error {
	if orderA == orderB {
		return nil
	}
	err := d.orders.Transaction(ctx, func(tx repository.OrderRepository) error {
		a, err := tx.FindByID(ctx, orderA)
		if err != nil {
			return err
		}
		b, err := tx.FindByID(ctx, orderB)
		if err != nil {
			return err
		}
		if !a.Assigned() || a.VehicleLabel() != b.VehicleLabel() {
			return ErrNotSameVehicle
		}
		if err := tx.SetSequence(ctx, a.ID, b.DeliverySequence); err != nil {
			return err
		}
		return tx.SetSequence(ctx, b.ID, a.DeliverySequence)
	})
	if err != nil {
		return err
	}

	d.record(ctx, "swap", []string{orderA, orderB}, nil)
	return nil
}

// Reorder sets the vehicle's stop order to orderIDs, which must list every order
// on the vehicle exactly once.
func (d *Dispatcher) Reorder(ctx context.Context, vehicle string, orderIDs []string) error {
	if err := checkVehicle(vehicle); err != nil {
		return err
	}

	err := d.orders.Transaction(ctx, func(tx repository.OrderRepository) error {
		current, err := tx.ListByVehicle(ctx, vehicle)
		if err != nil {
			return err
		}
		byID := make(map[string]models.Order, len(current))
		for _, o := range current {
			byID[o.ID] = o
		}

		ids := uniqueIDs(orderIDs)
		if len(ids) != len(orderIDs) || len(ids) != len(current) {
			return fmt.Errorf("%w: expected %d distinct orders", ErrIncompleteOrder, len(current))
		}
		ordered := make([]models.Order, 0, len(ids))
		for _, id := range ids {
			o, ok := byID[id]
			if !ok {
				return fmt.Errorf("%w: order %s is not on %s", ErrIncompleteOrder, id, vehicle)
			}
			ordered = append(ordered, o)
		}
		return writeSequence(ctx, tx, vehicle, ordered)
	})
	if err != nil {
		return err
	}

	d.record(ctx, "reorder", orderIDs, bson.M{"vehicle": vehicle})
	return nil
}

// BulkUpdateStatus validates every transition before writing any of them.
func (d *Dispatcher) BulkUpdateStatus(ctx context.Context, ids []string, status models.OrderStatus) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return ErrNoOrders
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", models.ErrInvalidTransition, status)
	}

	err := d.orders.Transaction(ctx, func(tx repository.OrderRepository) error {
		pending := make([]string, 0, len(ids))
		for _, id := range ids {
			order, err := tx.FindByID(ctx, id)
			if err != nil {
				return fmt.Errorf("order %s: %w", id, err)
			}
			if err := order.Status.CheckTransition(status); err != nil {
				return fmt.Errorf("order %s: %w", id, err)
			}
			if order.Status != status {
				pending = append(pending, id)
			}
		}
		for _, id := range pending {
			if err := tx.UpdateStatus(ctx, id, status); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.record(ctx, "status", ids, bson.M{"status": status})
	return nil
}

// UpdateStatus changes one order's status.
func (d *Dispatcher) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	if err := d.BulkUpdateStatus(ctx, []string{id}, status); err != nil {
		return nil, err
	}
	return d.orders.FindByID(ctx, id)
}

// MarkDelivered is the driver's delivery confirmation.
func (d *Dispatcher) MarkDelivered(ctx context.Context, id string) (*models.Order, error) {
	return d.UpdateStatus(ctx, id, models.OrderStatusDelivered)
}

// BulkResetDispatch unassigns every listed order and re-ranks the vehicles they left.
func (d *Dispatcher) BulkResetDispatch(ctx context.Context, ids []string) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return ErrNoOrders
	}

	var affected []string
	err := d.orders.Transaction(ctx, func(tx repository.OrderRepository) error {
		vehicles := make(map[string]struct{})
		for _, id := range ids {
			order, err := tx.FindByID(ctx, id)
			if err != nil {
				return fmt.Errorf("order %s: %w", id, err)
			}
			if order.Assigned() {
				vehicles[order.VehicleLabel()] = struct{}{}
			}
			if order.Assigned() || order.DeliverySequence != 0 {
				if err := tx.SetDispatch(ctx, id, nil, 0); err != nil {
					return err
				}
			}
		}

		affected = make([]string, 0, len(vehicles))
		for v := range vehicles {
			affected = append(affected, v)
		}
		sort.Strings(affected)
		if err := tx.LockVehicles(ctx, affected...); err != nil {
			return err
		}
		for _, v := range affected {
			if err := rerank(ctx, tx, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.record(ctx, "reset", ids, bson.M{"vehicles": affected})
	return nil
}

// Delete removes an order permanently and closes the gap it leaves on its vehicle.
func (d *Dispatcher) Delete(ctx context.Context, id string) error {
	err := d.orders.Transaction(ctx, func(tx repository.OrderRepository) error {
		order, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		return deleteOrder(ctx, tx, order)
	})
	if err != nil {
		return err
	}

	d.record(ctx, "delete", []string{id}, nil)
	return nil
}

// CancelPending deletes a customer's own pending order. Orders of other customers
// are reported as not found.
func (d *Dispatcher) CancelPending(ctx context.Context, uid, id string) error {
	return d.orders.Transaction(ctx, func(tx repository.OrderRepository) error {
		order, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if order.UID != uid {
			return repository.ErrNotFound
		}
		if order.Status != models.OrderStatusPending {
			return ErrNotPending
		}
		return deleteOrder(ctx, tx, order)
	})
}

// Vehicles returns the labels currently carrying orders.
func (d *Dispatcher) Vehicles(ctx context.Context) ([]string, error) {
	return d.orders.Vehicles(ctx)
}

// Fleet returns the configured labels followed by any other label in use.
func (d *Dispatcher) Fleet(ctx context.Context) ([]string, error) {
	used, err := d.orders.Vehicles(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(d.fleet)+len(used))
	seen := make(map[string]struct{}, cap(out))
	for _, label := range append(append([]string{}, d.fleet...), used...) {
		if _, ok := seen[label]; ok || label == "" {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	return out, nil
}

// OrdersByVehicle returns the vehicle's orders in stop order.
func (d *Dispatcher) OrdersByVehicle(ctx context.Context, vehicle string) ([]models.Order, error) {
	if err := checkVehicle(vehicle); err != nil {
		return nil, err
	}
	return d.orders.ListByVehicle(ctx, vehicle)
}

// StopsOf returns the stops of the vehicle carrying orderID. An unassigned order
// yields an empty label and no stops.
func (d *Dispatcher) StopsOf(ctx context.Context, orderID string) (string, []models.Order, error) {
	order, err := d.orders.FindByID(ctx, orderID)
	if err != nil {
		return "", nil, err
	}
	if !order.Assigned() {
		return "", []models.Order{}, nil
	}
	stops, err := d.orders.ListByVehicle(ctx, order.VehicleLabel())
	if err != nil {
		return "", nil, err
	}
	return order.VehicleLabel(), stops, nil
}

// ApplyPlan writes a validated plan in one transaction. Each vehicle's planned
// stops are placed after the orders it already carries. Every planned order must
// still be unassigned and undelivered.
func (d *Dispatcher) ApplyPlan(ctx context.Context, plan []Assignment) error {
	if len(plan) == 0 {
		return nil
	}

	byVehicle := make(map[string][]Assignment)
	var vehicles []string
	for _, a := range plan {
		if _, ok := byVehicle[a.Vehicle]; !ok {
			vehicles = append(vehicles, a.Vehicle)
		}
		byVehicle[a.Vehicle] = append(byVehicle[a.Vehicle], a)
	}
	sort.Strings(vehicles)

	err := d.orders.Transaction(ctx, func(tx repository.OrderRepository) error {
		if err := tx.LockVehicles(ctx, vehicles...); err != nil {
			return err
		}
		for _, v := range vehicles {
			stops := byVehicle[v]
			sort.SliceStable(stops, func(i, j int) bool { return stops[i].Sequence < stops[j].Sequence })

			existing, err := tx.ListByVehicle(ctx, v)
			if err != nil {
				return err
			}
			if err := writeSequence(ctx, tx, v, existing); err != nil {
				return err
			}

			label := v
			for i, stop := range stops {
				order, err := tx.FindByID(ctx, stop.OrderID)
				if err != nil {
					return fmt.Errorf("order %s: %w", stop.OrderID, err)
				}
				if order.Assigned() || order.Status == models.OrderStatusDelivered {
					return fmt.Errorf("%w: order %s", ErrStalePlan, stop.OrderID)
				}
				if err := tx.SetDispatch(ctx, order.ID, &label, len(existing)+i+1); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(plan))
	for _, a := range plan {
		ids = append(ids, a.OrderID)
	}
	d.record(ctx, "ai_apply", ids, bson.M{"vehicles": vehicles})
	return nil
}

func (d *Dispatcher) record(ctx context.Context, action string, ids []string, data bson.M) {
	entry := &repository.AuditLog{
		Actor:     actorFromContext(ctx),
		Action:    action,
		EntityIDs: ids,
		Data:      data,
	}
	if err := d.audit.Record(context.WithoutCancel(ctx), entry); err != nil {
		d.logger.Warn("audit record failed", zap.String("action", action), zap.Error(err))
	}
	d.logger.Debug("dispatch change", zap.String("action", action), zap.Strings("orders", ids))
}

// checkVehicle rejects empty labels and labels padded with whitespace. Labels are
// stored verbatim, so " A" and "A" would otherwise name different vehicles.
func checkVehicle(vehicle string) error {
	trimmed := strings.TrimSpace(vehicle)
	if trimmed == "" {
		return ErrVehicleRequired
	}
	if trimmed != vehicle {
		return fmt.Errorf("%w: %q", ErrVehicleLabel, vehicle)
	}
	return nil
}

// detach unassigns order and closes the gap it leaves on its vehicle.
func (d *Dispatcher) detach(ctx context.Context, tx repository.OrderRepository, order *models.Order) error {
	vehicle, removed := order.VehicleLabel(), order.DeliverySequence
	if err := tx.SetDispatch(ctx, order.ID, nil, 0); err != nil {
		return err
	}
	return closeGap(ctx, tx, vehicle, removed)
}

func deleteOrder(ctx context.Context, tx repository.OrderRepository, order *models.Order) error {
	if err := tx.Delete(ctx, order.ID); err != nil {
		return err
	}
	if order.Assigned() {
		return closeGap(ctx, tx, order.VehicleLabel(), order.DeliverySequence)
	}
	return nil
}

// closeGap renumbers the stops after removed to removed, removed+1, ... in their
// current order. Stops before removed keep their numbers.
func closeGap(ctx context.Context, tx repository.OrderRepository, vehicle string, removed int) error {
	if removed < 1 {
		return rerank(ctx, tx, vehicle)
	}
	orders, err := tx.ListByVehicle(ctx, vehicle)
	if err != nil {
		return err
	}
	next := removed
	for _, o := range orders {
		if o.DeliverySequence <= removed {
			continue
		}
		if o.DeliverySequence != next {
			if err := tx.SetSequence(ctx, o.ID, next); err != nil {
				return err
			}
		}
		next++
	}
	return nil
}

// rerank renumbers the vehicle's orders 1..k keeping their current order.
func rerank(ctx context.Context, tx repository.OrderRepository, vehicle string) error {
	orders, err := tx.ListByVehicle(ctx, vehicle)
	if err != nil {
		return err
	}
	return writeSequence(ctx, tx, vehicle, orders)
}

// writeSequence stores ordered as stops 1..k of vehicle, writing only what changed.
func writeSequence(ctx context.Context, tx repository.OrderRepository, vehicle string, ordered []models.Order) error {
	label := vehicle
	for i := range ordered {
		want := i + 1
		o := &ordered[i]
		switch {
		case o.VehicleLabel() != vehicle:
			if err := tx.SetDispatch(ctx, o.ID, &label, want); err != nil {
				return err
			}
		case o.DeliverySequence != want:
			if err := tx.SetSequence(ctx, o.ID, want); err != nil {
				return err
			}
		}
	}
	return nil
}

func withoutOrder(orders []models.Order, id string) []models.Order {
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if o.ID != id {
			out = append(out, o)
		}
	}
	return out
}

func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
