package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/coolpis/internal/middleware"
	"github.com/example/coolpis/internal/services"
)

// OrderHandler manages customer order endpoints.
type OrderHandler struct {
	orders     *services.OrderService
	dispatcher *services.Dispatcher
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(orders *services.OrderService, dispatcher *services.Dispatcher) *OrderHandler {
	return &OrderHandler{orders: orders, dispatcher: dispatcher}
}

type createOrderRequest struct {
	Items []services.CartLine `json:"items"`
}

// CreateOrder places an order for the session's business.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	order, err := h.orders.Place(c.UserContext(), id.UID, req.Items)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": order})
}

// ListMyOrders returns the caller's orders, newest first.
func (h *OrderHandler) ListMyOrders(c *fiber.Ctx) error {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	orders, err := h.orders.ListMine(c.UserContext(), id.UID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": orders})
}

// CancelOrder deletes one of the caller's pending orders.
func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	if err := h.dispatcher.CancelPending(c.UserContext(), id.UID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
