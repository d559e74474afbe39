package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/realtime"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	StaffTickets   *handlers.StaffTicketsHandler
	Notifications  *handlers.NotificationsHandler
	Counters       *handlers.CountersHandler
	Devices        *handlers.CredentialsHandler
	RemoteAccess   *handlers.CredentialsHandler
	Staff          *handlers.StaffHandler
	Realtime       *realtime.Handler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	if cfg.Realtime != nil {
		app.Get("/ws", cfg.Realtime.Upgrade, cfg.Realtime.Serve())
	}

	api := app.Group("/api")
	authed := cfg.AuthMiddleware.Handle

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Get("/me", authed, auth.RequireUser(), cfg.Auth.Me)
	authGroup.Post("/password", authed, auth.RequireAnyRole(), cfg.Auth.ChangePassword)

	tickets := api.Group("/tickets", authed, auth.RequireUser())
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Put("/:id", cfg.Tickets.UpdateTicket)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Post("/:id/cancel", cfg.Tickets.CancelTicket)

	notifications := api.Group("/notifications", authed, auth.RequireAnyRole())
	notifications.Get("/", cfg.Notifications.List)
	notifications.Post("/", auth.RequireStaffRole(), cfg.Notifications.Create)
	notifications.Post("/mark-read", cfg.Notifications.MarkRead)
	notifications.Post("/mark-all-read", cfg.Notifications.MarkAllRead)

	// /api/admin/login must stay outside the authenticated group.
	api.Post("/admin/login", cfg.Auth.AdminLogin)

	staff := api.Group("/admin", authed, auth.RequireStaffRole())
	adminOnly := auth.RequireStaffRole(domain.StaffRoleAdmin)

	staff.Get("/profile", cfg.Auth.AdminProfile)

	staff.Get("/tickets", cfg.StaffTickets.ListTickets)
	staff.Post("/tickets", cfg.StaffTickets.CreateTicket)
	staff.Get("/tickets/:id", cfg.StaffTickets.GetTicket)
	staff.Put("/tickets/:id", cfg.StaffTickets.UpdateTicket)
	staff.Post("/tickets/:id/progress", cfg.StaffTickets.AppendProgress)
	staff.Post("/tickets/:id/assign", cfg.StaffTickets.AssignTechnician)
	staff.Post("/tickets/:id/close", cfg.StaffTickets.CloseTicket)
	staff.Post("/tickets/:id/cancel", cfg.Tickets.CancelTicket)
	staff.Post("/tickets/:id/comments", cfg.Tickets.AddComment)

	staff.Get("/staff", cfg.Staff.ListStaff)
	staff.Post("/staff", adminOnly, cfg.Staff.CreateStaff)
	staff.Put("/staff/:id", adminOnly, cfg.Staff.UpdateStaff)
	staff.Get("/clients", cfg.Staff.ListClients)

	staff.Get("/counters/:type", adminOnly, cfg.Counters.Get)
	staff.Put("/counters/:type", adminOnly, cfg.Counters.Update)

	registerCredentialRoutes(staff.Group("/companies/:name/credentials", adminOnly), cfg.Devices)
	registerCredentialRoutes(staff.Group("/companies/:name/remote-access", adminOnly), cfg.RemoteAccess)
}

func registerCredentialRoutes(group fiber.Router, h *handlers.CredentialsHandler) {
	group.Get("/", h.List)
	group.Post("/", h.Create)
	group.Put("/:id", h.Update)
	group.Delete("/:id", h.Delete)
	group.Get("/:id/secret", h.Reveal)
}
