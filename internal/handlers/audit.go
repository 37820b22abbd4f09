package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/example/coolpis/internal/repository"
)

// AuditReader lists recorded dispatch actions for one order.
type AuditReader interface {
	ListByEntity(ctx context.Context, entityID string, limit int64) ([]*repository.AuditLog, error)
}

// AuditHandler exposes the dispatch audit trail.
type AuditHandler struct {
	audit AuditReader
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(audit AuditReader) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// OrderHistory returns the latest actions recorded for an order.
func (h *AuditHandler) OrderHistory(c *fiber.Ctx) error {
	limit := int64(c.QueryInt("limit", 50))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	entries, err := h.audit.ListByEntity(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": entries})
}
