package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/coolpis/internal/models"
	"github.com/example/coolpis/internal/repository"
	"github.com/example/coolpis/internal/services"
	"github.com/example/coolpis/internal/utils"
)

// seoul is the business calendar used for month and day boundaries.
var seoul = loadLocation("Asia/Seoul", 9*60*60)

func loadLocation(name string, offset int) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone(name, offset)
	}
	return loc
}

// AdminHandler exposes order management for the admin dashboard.
type AdminHandler struct {
	orders     repository.OrderRepository
	dispatcher *services.Dispatcher
	statements *services.StatementService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(orders repository.OrderRepository, dispatcher *services.Dispatcher, statements *services.StatementService) *AdminHandler {
	return &AdminHandler{orders: orders, dispatcher: dispatcher, statements: statements}
}

type statusRequest struct {
	Status models.OrderStatus `json:"status"`
}

type bulkStatusRequest struct {
	OrderIDs []string           `json:"orderIds"`
	Status   models.OrderStatus `json:"status"`
}

// ListOrders returns orders filtered by status, vehicle and business.
func (h *AdminHandler) ListOrders(c *fiber.Ctx) error {
	filter := repository.OrderFilter{
		Vehicle:        strings.TrimSpace(c.Query("vehicle")),
		UnassignedOnly: c.QueryBool("unassigned", false),
	}
	if status := models.OrderStatus(c.Query("status")); status != "" {
		if !status.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "invalid status")
		}
		filter.Status = status
	}
	if regNumber := strings.TrimSpace(c.Query("registrationNumber")); regNumber != "" {
		filter.RegistrationNumber = utils.FormatRegistrationNumber(regNumber)
	}

	ctx := c.UserContext()
	total, err := h.orders.Count(ctx, filter)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	filter.Limit = pg.Limit
	filter.Offset = pg.Offset
	orders, err := h.orders.List(ctx, filter)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       orders,
		"pagination": pg.Meta(total),
	})
}

// GetOrder returns one order.
func (h *AdminHandler) GetOrder(c *fiber.Ctx) error {
	order, err := h.orders.FindByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

// OrdersByBusiness groups a month's orders by registration number.
func (h *AdminHandler) OrdersByBusiness(c *fiber.Ctx) error {
	from, to, err := parseMonth(c.Query("month"), time.Now())
	if err != nil {
		return err
	}

	groups, err := h.statements.ByBusiness(c.UserContext(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    groups,
		"month":   from.Format("2006-01"),
	})
}

// DashboardStats returns the order counters shown on the admin dashboard.
func (h *AdminHandler) DashboardStats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	now := time.Now().In(seoul)

	totalOrders, err := h.orders.Count(ctx, repository.OrderFilter{})
	if err != nil {
		return err
	}

	ordersByStatus := make(map[models.OrderStatus]int64, 3)
	for _, status := range []models.OrderStatus{models.OrderStatusPending, models.OrderStatusConfirmed, models.OrderStatusDelivered} {
		n, err := h.orders.Count(ctx, repository.OrderFilter{Status: status})
		if err != nil {
			return err
		}
		ordersByStatus[status] = n
	}

	unassigned, err := h.orders.Count(ctx, repository.OrderFilter{UnassignedOnly: true, ExcludeDelivered: true})
	if err != nil {
		return err
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, seoul)
	todayOrders, err := h.orders.Count(ctx, repository.OrderFilter{From: today})
	if err != nil {
		return err
	}

	monthStart, monthEnd := services.MonthRange(now.Year(), now.Month(), seoul)
	businesses, err := h.statements.ByBusiness(ctx, monthStart, monthEnd)
	if err != nil {
		return err
	}
	var monthRevenue int64
	var monthOrders int
	for _, b := range businesses {
		monthRevenue += b.TotalPrice
		monthOrders += b.OrderCount
	}

	vehicles, err := h.dispatcher.Vehicles(ctx)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"total_orders":     totalOrders,
			"orders_by_status": ordersByStatus,
			"unassigned":       unassigned,
			"today_orders":     todayOrders,
			"month_orders":     monthOrders,
			"month_revenue":    monthRevenue,
			"month_businesses": len(businesses),
			"active_vehicles":  len(vehicles),
		},
	})
}

// UpdateOrderStatus moves one order forward in its lifecycle.
func (h *AdminHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	order, err := h.dispatcher.UpdateStatus(c.UserContext(), c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

// BulkUpdateStatus applies one status to several orders atomically.
func (h *AdminHandler) BulkUpdateStatus(c *fiber.Ctx) error {
	var req bulkStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx := c.UserContext()
	if err := h.dispatcher.BulkUpdateStatus(ctx, req.OrderIDs, req.Status); err != nil {
		return err
	}

	orders, err := reloadOrders(ctx, h.orders, req.OrderIDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": orders})
}

// DeleteOrder removes an order permanently.
func (h *AdminHandler) DeleteOrder(c *fiber.Ctx) error {
	if err := h.dispatcher.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// parseMonth reads YYYY-MM in the business calendar. An empty value means the
// month containing now.
func parseMonth(value string, now time.Time) (time.Time, time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		now = now.In(seoul)
		from, to := services.MonthRange(now.Year(), now.Month(), seoul)
		return from, to, nil
	}
	t, err := time.ParseInLocation("2006-01", value, seoul)
	if err != nil {
		return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "month must be YYYY-MM")
	}
	from, to := services.MonthRange(t.Year(), t.Month(), seoul)
	return from, to, nil
}

// parseDay reads YYYY-MM-DD in the business calendar. endOfDay moves the result
// to the last instant of that day.
func parseDay(value string, endOfDay bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", value, seoul)
	if err != nil {
		return time.Time{}, fiber.NewError(fiber.StatusBadRequest, "dates must be YYYY-MM-DD")
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}

// reloadOrders re-reads ids after a mutation. Orders deleted meanwhile are skipped.
func reloadOrders(ctx context.Context, repo repository.OrderRepository, ids []string) ([]models.Order, error) {
	out := make([]models.Order, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		order, err := repo.FindByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *order)
	}
	return out, nil
}
