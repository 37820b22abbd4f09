package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/coolpis/internal/middleware"
	"github.com/example/coolpis/internal/services"
)

// AuthHandler issues and ends sessions.
type AuthHandler struct {
	sessions *services.SessionService
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(sessions *services.SessionService) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

type adminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type driverLoginRequest struct {
	Code string `json:"code"`
}

// StartSession resumes the caller's session or creates an anonymous one.
func (h *AuthHandler) StartSession(c *fiber.Ctx) error {
	token, _ := middleware.BearerToken(c)
	session, err := h.sessions.Start(c.UserContext(), token)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": session})
}

// Me returns the identity of the current session.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	return c.JSON(fiber.Map{"success": true, "data": id})
}

// Logout revokes the current token and hands back a fresh anonymous session.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	token, _ := middleware.BearerToken(c)
	session, err := h.sessions.Logout(c.UserContext(), token)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": session})
}

// AdminLogin exchanges the admin email and password for an admin session.
func (h *AuthHandler) AdminLogin(c *fiber.Ctx) error {
	var req adminLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "email and password are required")
	}

	session, err := h.sessions.AdminLogin(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": session})
}

// DriverLogin exchanges the shared driver code for a driver session.
func (h *AuthHandler) DriverLogin(c *fiber.Ctx) error {
	var req driverLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "code is required")
	}

	session, err := h.sessions.DriverLogin(c.UserContext(), req.Code)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": session})
}
