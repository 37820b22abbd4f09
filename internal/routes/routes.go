package routes

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"

	"github.com/example/coolpis/internal/config"
	"github.com/example/coolpis/internal/handlers"
	"github.com/example/coolpis/internal/middleware"
	"github.com/example/coolpis/internal/repository"
	"github.com/example/coolpis/internal/services"
)

// AuditStore records dispatch actions and reads them back.
type AuditStore interface {
	services.AuditRecorder
	handlers.AuditReader
}

// Deps are the backing stores and outbound clients. Nil optional fields fall
// back to in-process or configuration-built defaults.
type Deps struct {
	Store repository.Store

	Revoker   services.Revoker
	Cache     services.JSONCache
	Audit     AuditStore
	Notifier  services.Notifier
	Completer services.Completer
	Runner    services.PredictionRunner
}

var proxyPrefixes = []string{"/api/anthropic", "/api/replicate"}

// Register wires up all HTTP routes.
func Register(app *fiber.App, cfg *config.Config, deps Deps, logger *zap.Logger) {
	completer := deps.Completer
	if completer == nil {
		completer = services.NewAnthropicClient(services.AnthropicConfig{
			BaseURL: cfg.AnthropicBaseURL,
			APIKey:  cfg.AnthropicAPIKey,
			Version: cfg.AnthropicVersion,
			Model:   cfg.AnthropicModel,
		}, logger)
	}
	runner := deps.Runner
	if runner == nil {
		runner = services.NewReplicateClient(cfg.ReplicateBaseURL, cfg.ReplicateAPIToken, cfg.ReplicateOCRVersion, logger)
	}
	var audit services.AuditRecorder
	if deps.Audit != nil {
		audit = deps.Audit
	}

	sessionService := services.NewSessionService(services.SessionConfig{
		Secret:            cfg.JWTSecret,
		TTL:               cfg.TokenExpires,
		AdminEmail:        cfg.AdminEmail,
		AdminPasswordHash: cfg.AdminPasswordHash,
		DriverCodeHash:    cfg.DriverCodeHash,
	}, deps.Revoker, logger)
	dispatcher := services.NewDispatcher(deps.Store.Orders, audit, cfg.FleetVehicles, logger)
	planner := services.NewDispatchPlanner(deps.Store.Orders, dispatcher, completer, cfg.DispatchTimeout, logger)
	orderService := services.NewOrderService(deps.Store, deps.Notifier, logger)
	profileService := services.NewProfileService(deps.Store.Profiles, logger)
	statementService := services.NewStatementService(deps.Store, deps.Notifier, logger)
	ocrService := services.NewOCRService(cfg.OCRProvider, completer, runner, deps.Cache, logger)
	proxyService := services.NewProxyService(0, logger)

	authHandler := handlers.NewAuthHandler(sessionService)
	catalogHandler := handlers.NewCatalogHandler(deps.Store.Products)
	profileHandler := handlers.NewProfileHandler(profileService)
	orderHandler := handlers.NewOrderHandler(orderService, dispatcher)
	adminHandler := handlers.NewAdminHandler(deps.Store.Orders, dispatcher, statementService)
	dispatchHandler := handlers.NewDispatchHandler(deps.Store.Orders, dispatcher, planner, deps.Notifier, logger)
	driverHandler := handlers.NewDriverHandler(dispatcher)
	paymentHandler := handlers.NewPaymentHandler(statementService)
	ocrHandler := handlers.NewOCRHandler(ocrService)
	anthropicProxy := handlers.NewProxyHandler(proxyService, services.ProxyTarget{
		Name:    "anthropic",
		BaseURL: cfg.AnthropicBaseURL,
		Headers: services.AnthropicHeaders(cfg.AnthropicAPIKey, cfg.AnthropicVersion),
	})
	replicateProxy := handlers.NewProxyHandler(proxyService, services.ProxyTarget{
		Name:         "replicate",
		BaseURL:      cfg.ReplicateBaseURL,
		Headers:      services.ReplicateHeaders(cfg.ReplicateAPIToken),
		AllowHeaders: "Content-Type, Authorization, Prefer",
	})

	// The proxies answer their own preflights.
	app.Use(cors.New(cors.Config{
		Next: func(c *fiber.Ctx) bool {
			for _, prefix := range proxyPrefixes {
				if strings.HasPrefix(c.Path(), prefix) {
					return true
				}
			}
			return false
		},
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "status": "ok"})
	})

	api := app.Group("/api")

	// Proxy functions
	api.All("/anthropic/*", anthropicProxy.Proxy)
	api.All("/replicate/*", replicateProxy.Proxy)

	authed := middleware.AuthMiddleware(sessionService)

	// Sessions
	api.Post("/session", authHandler.StartSession)
	api.Post("/session/logout", authHandler.Logout)
	api.Get("/session", authed, authHandler.Me)
	auth := api.Group("/auth")
	auth.Post("/admin/login", authHandler.AdminLogin)
	auth.Post("/driver/login", authHandler.DriverLogin)

	// Catalog
	api.Get("/products", catalogHandler.ListProducts)
	api.Get("/products/:id", catalogHandler.GetProduct)

	// Customer
	api.Get("/profile", authed, profileHandler.GetProfile)
	api.Put("/profile", authed, profileHandler.SaveProfile)
	api.Post("/profile/lookup", authed, profileHandler.Lookup)
	api.Post("/orders", authed, orderHandler.CreateOrder)
	api.Get("/orders", authed, orderHandler.ListMyOrders)
	api.Delete("/orders/:id", authed, orderHandler.CancelOrder)
	api.Post("/ocr/business-registration", authed, ocrHandler.BusinessRegistration)

	// Admin
	admin := api.Group("/admin", authed, middleware.RequireRole(services.RoleAdmin))
	admin.Get("/stats", adminHandler.DashboardStats)
	admin.Get("/orders", adminHandler.ListOrders)
	admin.Get("/orders/by-business", adminHandler.OrdersByBusiness)
	admin.Post("/orders/bulk-status", adminHandler.BulkUpdateStatus)
	admin.Get("/orders/:id", adminHandler.GetOrder)
	admin.Patch("/orders/:id/status", adminHandler.UpdateOrderStatus)
	admin.Delete("/orders/:id", adminHandler.DeleteOrder)
	admin.Get("/profiles", profileHandler.ListProfiles)

	dispatch := admin.Group("/dispatch")
	dispatch.Get("/vehicles", dispatchHandler.ListVehicles)
	dispatch.Get("/vehicles/:vehicle/orders", dispatchHandler.VehicleOrders)
	dispatch.Post("/assign", dispatchHandler.Assign)
	dispatch.Post("/unassign", dispatchHandler.Unassign)
	dispatch.Post("/move-up", dispatchHandler.MoveUp)
	dispatch.Post("/move-down", dispatchHandler.MoveDown)
	dispatch.Post("/reorder", dispatchHandler.Reorder)
	dispatch.Post("/reset", dispatchHandler.Reset)
	dispatch.Post("/ai", dispatchHandler.AutoDispatch)

	admin.Post("/payments", paymentHandler.CreatePayment)
	admin.Get("/payments", paymentHandler.ListPayments)
	admin.Delete("/payments/:id", paymentHandler.DeletePayment)
	admin.Get("/statements", paymentHandler.Statement)

	admin.Get("/products", catalogHandler.ListAllProducts)
	admin.Post("/products", catalogHandler.CreateProduct)
	admin.Put("/products/:id", catalogHandler.UpdateProduct)
	admin.Delete("/products/:id", catalogHandler.DeleteProduct)

	if deps.Audit != nil {
		auditHandler := handlers.NewAuditHandler(deps.Audit)
		admin.Get("/orders/:id/audit", auditHandler.OrderHistory)
	}

	// Driver
	driver := api.Group("/driver", authed, middleware.RequireRole(services.RoleDriver, services.RoleAdmin))
	driver.Get("/vehicles", driverHandler.ListVehicles)
	driver.Get("/vehicles/:vehicle/orders", driverHandler.VehicleOrders)
	driver.Post("/orders/swap", driverHandler.Swap)
	driver.Post("/orders/:id/delivered", driverHandler.MarkDelivered)
}
