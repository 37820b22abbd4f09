package handlers

import (
	"context"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/coolpis/internal/models"
	"github.com/example/coolpis/internal/repository"
	"github.com/example/coolpis/internal/services"
)

// DispatchHandler assigns orders to vehicles and orders their stops.
type DispatchHandler struct {
	orders     repository.OrderRepository
	dispatcher *services.Dispatcher
	planner    *services.DispatchPlanner
	notifier   services.Notifier
	logger     *zap.Logger
}

// NewDispatchHandler constructs DispatchHandler. notifier may be nil.
func NewDispatchHandler(orders repository.OrderRepository, dispatcher *services.Dispatcher, planner *services.DispatchPlanner, notifier services.Notifier, logger *zap.Logger) *DispatchHandler {
	return &DispatchHandler{
		orders:     orders,
		dispatcher: dispatcher,
		planner:    planner,
		notifier:   notifier,
		logger:     logger.Named("dispatch_handler"),
	}
}

type assignRequest struct {
	OrderID  string `json:"orderId"`
	Vehicle  string `json:"vehicle"`
	Sequence int    `json:"sequence"`
}

type orderRef struct {
	OrderID string `json:"orderId"`
}

type reorderRequest struct {
	Vehicle  string   `json:"vehicle"`
	OrderIDs []string `json:"orderIds"`
}

type resetRequest struct {
	OrderIDs []string `json:"orderIds"`
}

type vehicleStops struct {
	Vehicle string         `json:"vehicle"`
	Orders  []models.Order `json:"orders"`
}

// ListVehicles returns the fleet with each vehicle's current stops.
func (h *DispatchHandler) ListVehicles(c *fiber.Ctx) error {
	ctx := c.UserContext()
	fleet, err := h.dispatcher.Fleet(ctx)
	if err != nil {
		return err
	}

	out := make([]vehicleStops, 0, len(fleet))
	for _, vehicle := range fleet {
		orders, err := h.dispatcher.OrdersByVehicle(ctx, vehicle)
		if err != nil {
			return err
		}
		out = append(out, vehicleStops{Vehicle: vehicle, Orders: orders})
	}
	return c.JSON(fiber.Map{"success": true, "data": out})
}

// VehicleOrders returns one vehicle's stops.
func (h *DispatchHandler) VehicleOrders(c *fiber.Ctx) error {
	stops, err := h.stops(c.UserContext(), vehicleParam(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": stops})
}

// Assign puts an order on a vehicle. Sequence 0 appends it.
func (h *DispatchHandler) Assign(c *fiber.Ctx) error {
	var req assignRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.OrderID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "orderId is required")
	}

	ctx := c.UserContext()
	before, err := h.orders.FindByID(ctx, req.OrderID)
	if err != nil {
		return err
	}
	order, err := h.dispatcher.Assign(ctx, req.OrderID, req.Vehicle, req.Sequence)
	if err != nil {
		return err
	}

	affected := []string{order.VehicleLabel()}
	if prev := before.VehicleLabel(); prev != "" && prev != order.VehicleLabel() {
		affected = append(affected, prev)
	}
	return h.respondVehicles(c, order, affected...)
}

// Unassign takes an order off its vehicle.
func (h *DispatchHandler) Unassign(c *fiber.Ctx) error {
	var req orderRef
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.OrderID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "orderId is required")
	}

	ctx := c.UserContext()
	before, err := h.orders.FindByID(ctx, req.OrderID)
	if err != nil {
		return err
	}
	order, err := h.dispatcher.Unassign(ctx, req.OrderID)
	if err != nil {
		return err
	}
	return h.respondVehicles(c, order, before.VehicleLabel())
}

// MoveUp swaps an order with the stop before it.
func (h *DispatchHandler) MoveUp(c *fiber.Ctx) error {
	return h.move(c, h.dispatcher.MoveUp)
}

// MoveDown swaps an order with the stop after it.
func (h *DispatchHandler) MoveDown(c *fiber.Ctx) error {
	return h.move(c, h.dispatcher.MoveDown)
}

func (h *DispatchHandler) move(c *fiber.Ctx, fn func(context.Context, string) (bool, error)) error {
	var req orderRef
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.OrderID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "orderId is required")
	}

	ctx := c.UserContext()
	moved, err := fn(ctx, req.OrderID)
	if err != nil {
		return err
	}
	order, err := h.orders.FindByID(ctx, req.OrderID)
	if err != nil {
		return err
	}

	var stops *vehicleStops
	if order.Assigned() {
		if stops, err = h.stops(ctx, order.VehicleLabel()); err != nil {
			return err
		}
	}
	return c.JSON(fiber.Map{"success": true, "moved": moved, "data": stops})
}

// Reorder replaces a vehicle's stop order.
func (h *DispatchHandler) Reorder(c *fiber.Ctx) error {
	var req reorderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx := c.UserContext()
	if err := h.dispatcher.Reorder(ctx, req.Vehicle, req.OrderIDs); err != nil {
		return err
	}
	stops, err := h.stops(ctx, req.Vehicle)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": stops})
}

// Reset unassigns the listed orders.
func (h *DispatchHandler) Reset(c *fiber.Ctx) error {
	var req resetRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx := c.UserContext()
	if err := h.dispatcher.BulkResetDispatch(ctx, req.OrderIDs); err != nil {
		return err
	}
	orders, err := reloadOrders(ctx, h.orders, req.OrderIDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": orders})
}

// AutoDispatch asks the model for a plan over the unassigned orders. With
// dry_run the validated plan is returned without being written.
func (h *DispatchHandler) AutoDispatch(c *fiber.Ctx) error {
	var req services.PlanRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	if c.QueryBool("dry_run", false) {
		req.DryRun = true
	}

	result, err := h.planner.Plan(c.UserContext(), req)
	if err != nil {
		return err
	}

	if result.Applied && h.notifier != nil {
		planned := *result
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := h.notifier.NotifyDispatchPlan(ctx, &planned); err != nil {
				h.logger.Warn("dispatch notification failed", zap.Error(err))
			}
		}()
	}
	return c.JSON(fiber.Map{"success": true, "data": result})
}

func (h *DispatchHandler) stops(ctx context.Context, vehicle string) (*vehicleStops, error) {
	orders, err := h.dispatcher.OrdersByVehicle(ctx, vehicle)
	if err != nil {
		return nil, err
	}
	return &vehicleStops{Vehicle: vehicle, Orders: orders}, nil
}

func (h *DispatchHandler) respondVehicles(c *fiber.Ctx, order *models.Order, vehicles ...string) error {
	out := make([]vehicleStops, 0, len(vehicles))
	for _, v := range vehicles {
		if v == "" {
			continue
		}
		stops, err := h.stops(c.UserContext(), v)
		if err != nil {
			return err
		}
		out = append(out, *stops)
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"order": order, "vehicles": out}})
}

// vehicleParam returns the decoded :vehicle segment. Labels are usually Hangul
// and arrive percent-encoded.
func vehicleParam(c *fiber.Ctx) string {
	raw := c.Params("vehicle")
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
