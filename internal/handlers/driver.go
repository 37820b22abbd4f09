package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/coolpis/internal/services"
)

// DriverHandler serves the delivery-side view of the dispatch board.
type DriverHandler struct {
	dispatcher *services.Dispatcher
}

// NewDriverHandler constructs DriverHandler.
func NewDriverHandler(dispatcher *services.Dispatcher) *DriverHandler {
	return &DriverHandler{dispatcher: dispatcher}
}

type swapRequest struct {
	OrderA string `json:"orderA"`
	OrderB string `json:"orderB"`
}

// ListVehicles returns the labels that currently carry orders.
func (h *DriverHandler) ListVehicles(c *fiber.Ctx) error {
	vehicles, err := h.dispatcher.Vehicles(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": vehicles})
}

// VehicleOrders returns a vehicle's stops in delivery order.
func (h *DriverHandler) VehicleOrders(c *fiber.Ctx) error {
	orders, err := h.dispatcher.OrdersByVehicle(c.UserContext(), vehicleParam(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": orders})
}

// MarkDelivered confirms a delivery. The order keeps its stop position.
func (h *DriverHandler) MarkDelivered(c *fiber.Ctx) error {
	order, err := h.dispatcher.MarkDelivered(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

// Swap exchanges two stops of the same vehicle.
func (h *DriverHandler) Swap(c *fiber.Ctx) error {
	var req swapRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.OrderA == "" || req.OrderB == "" {
		return fiber.NewError(fiber.StatusBadRequest, "orderA and orderB are required")
	}

	ctx := c.UserContext()
	if err := h.dispatcher.Swap(ctx, req.OrderA, req.OrderB); err != nil {
		return err
	}
	vehicle, stops, err := h.dispatcher.StopsOf(ctx, req.OrderA)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"vehicle": vehicle, "orders": stops}})
}
