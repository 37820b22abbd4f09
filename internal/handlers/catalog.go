package handlers

import (
	"errors"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/coolpis/internal/models"
	"github.com/example/coolpis/internal/repository"
)

var productIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// CatalogHandler manages the beverage catalog.
type CatalogHandler struct {
	products repository.ProductRepository
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(products repository.ProductRepository) *CatalogHandler {
	return &CatalogHandler{products: products}
}

type productRequest struct {
	ID          string  `json:"id"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Price       *int64  `json:"price"`
	Unit        *string `json:"unit"`
	Image       *string `json:"image"`
	Active      *bool   `json:"active"`
}

func (r productRequest) apply(p *models.Product) error {
	if r.Name != nil {
		p.Name = strings.TrimSpace(*r.Name)
	}
	if r.Description != nil {
		p.Description = strings.TrimSpace(*r.Description)
	}
	if r.Price != nil {
		p.Price = *r.Price
	}
	if r.Unit != nil {
		p.Unit = strings.TrimSpace(*r.Unit)
	}
	if r.Image != nil {
		p.Image = strings.TrimSpace(*r.Image)
	}
	if r.Active != nil {
		p.Active = *r.Active
	}

	if p.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name is required")
	}
	if p.Price <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "price must be positive")
	}
	if p.Unit == "" {
		p.Unit = "박스"
	}
	return nil
}

// ListProducts returns the active products.
func (h *CatalogHandler) ListProducts(c *fiber.Ctx) error {
	products, err := h.products.List(c.UserContext(), true)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": products})
}

// ListAllProducts returns every product, active or not.
func (h *CatalogHandler) ListAllProducts(c *fiber.Ctx) error {
	products, err := h.products.List(c.UserContext(), false)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": products})
}

// GetProduct returns one product.
func (h *CatalogHandler) GetProduct(c *fiber.Ctx) error {
	product, err := h.products.FindByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": product})
}

// CreateProduct adds a product under a new slug id.
func (h *CatalogHandler) CreateProduct(c *fiber.Ctx) error {
	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	req.ID = strings.ToLower(strings.TrimSpace(req.ID))
	if !productIDPattern.MatchString(req.ID) {
		return fiber.NewError(fiber.StatusBadRequest, "id must be a lowercase slug")
	}

	ctx := c.UserContext()
	if _, err := h.products.FindByID(ctx, req.ID); err == nil {
		return fiber.NewError(fiber.StatusConflict, "product already exists")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	product := models.Product{ID: req.ID, Active: true}
	if err := req.apply(&product); err != nil {
		return err
	}
	if err := h.products.Save(ctx, &product); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": product})
}

// UpdateProduct changes the fields present in the body. Existing orders keep
// the name and price they were placed with.
func (h *CatalogHandler) UpdateProduct(c *fiber.Ctx) error {
	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx := c.UserContext()
	product, err := h.products.FindByID(ctx, c.Params("id"))
	if err != nil {
		return err
	}
	if err := req.apply(product); err != nil {
		return err
	}
	if err := h.products.Save(ctx, product); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": product})
}

// DeleteProduct removes a product from the catalog.
func (h *CatalogHandler) DeleteProduct(c *fiber.Ctx) error {
	if err := h.products.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
