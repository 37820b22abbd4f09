package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/coolpis/internal/middleware"
	"github.com/example/coolpis/internal/services"
)

// ProfileHandler serves the caller's business profile.
type ProfileHandler struct {
	profiles *services.ProfileService
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(profiles *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

type lookupRequest struct {
	RegistrationNumber string `json:"registrationNumber"`
}

// GetProfile returns the profile saved for the session uid.
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	profile, err := h.profiles.Get(c.UserContext(), id.UID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": profile})
}

// SaveProfile replaces the profile of the session uid.
func (h *ProfileHandler) SaveProfile(c *fiber.Ctx) error {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req services.ProfileInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	profile, err := h.profiles.Save(c.UserContext(), id.UID, req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": profile})
}

// Lookup links a returning business to the session by registration number.
func (h *ProfileHandler) Lookup(c *fiber.Ctx) error {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req lookupRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.RegistrationNumber) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "registrationNumber is required")
	}

	profile, err := h.profiles.Lookup(c.UserContext(), id.UID, req.RegistrationNumber)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": profile})
}

// ListProfiles returns every registered business.
func (h *ProfileHandler) ListProfiles(c *fiber.Ctx) error {
	profiles, err := h.profiles.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": profiles})
}
