package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/coolpis/internal/services"
)

// PaymentHandler records deposits and builds statements.
type PaymentHandler struct {
	statements *services.StatementService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(statements *services.StatementService) *PaymentHandler {
	return &PaymentHandler{statements: statements}
}

// CreatePayment records a deposit.
func (h *PaymentHandler) CreatePayment(c *fiber.Ctx) error {
	var req services.PaymentInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	payment, err := h.statements.RecordPayment(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": payment})
}

// ListPayments returns deposits, optionally for one registration number.
func (h *PaymentHandler) ListPayments(c *fiber.Ctx) error {
	payments, err := h.statements.Payments(c.UserContext(), c.Query("registrationNumber"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": payments})
}

// DeletePayment removes a deposit recorded by mistake.
func (h *PaymentHandler) DeletePayment(c *fiber.Ctx) error {
	if err := h.statements.DeletePayment(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Statement compares ordered and paid totals of one business between from and to.
func (h *PaymentHandler) Statement(c *fiber.Ctx) error {
	from, err := parseDay(c.Query("from"), false)
	if err != nil {
		return err
	}
	to, err := parseDay(c.Query("to"), true)
	if err != nil {
		return err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return fiber.NewError(fiber.StatusBadRequest, "from must not be after to")
	}

	statement, err := h.statements.ForBusiness(c.UserContext(), c.Query("registrationNumber"), from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": statement})
}
