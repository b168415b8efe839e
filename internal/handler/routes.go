// Package handler exposes the services over HTTP with echo.
package handler

import (
	"github.com/labstack/echo/v4"

	"obligation-service/internal/obligation"
)

// Routes bundles the handlers and the middleware guarding them.
type Routes struct {
	Parties     *PartyHandler
	Obligations *ObligationHandler
	Activity    *ActivityHandler
	Accounts    *AccountHandler

	// Auth authenticates the /api routes other than login and registration.
	Auth echo.MiddlewareFunc
	// Bootstrap guards tenant registration.
	Bootstrap echo.MiddlewareFunc
	// LoginLimit throttles login attempts; nil disables it.
	LoginLimit echo.MiddlewareFunc
}

// Register mounts the API routes on e.
func (r *Routes) Register(e *echo.Echo) {
	api := e.Group("/api")

	// Public routes
	login := []echo.MiddlewareFunc{}
	if r.LoginLimit != nil {
		login = append(login, r.LoginLimit)
	}
	api.POST("/auth/login", r.Accounts.Login, login...)
	api.POST("/tenants/register", r.Accounts.RegisterTenant, r.Bootstrap)

	// Authenticated routes
	authed := api.Group("", r.Auth)
	authed.GET("/auth/me", r.Accounts.Me)
	authed.GET("/tenants/current", r.Accounts.CurrentTenant)
	authed.POST("/users", r.Accounts.CreateUser)

	parties := authed.Group("/parties")
	parties.GET("", r.Parties.ListParties)
	parties.POST("", r.Parties.CreateParty)
	parties.GET("/:id", r.Parties.GetParty)
	parties.PATCH("/:id", r.Parties.UpdateParty)
	parties.DELETE("/:id", r.Parties.DeleteParty)

	obligations := authed.Group("/obligations")
	obligations.GET("", r.Obligations.ListObligations)
	obligations.POST("", r.Obligations.CreateObligation)
	obligations.GET("/:id", r.Obligations.GetObligation)
	obligations.PATCH("/:id", r.Obligations.UpdateObligation)
	obligations.POST("/:id/submit", r.Obligations.Transition(obligation.Submit))
	obligations.POST("/:id/approve", r.Obligations.Transition(obligation.Approve))
	obligations.POST("/:id/request-changes", r.Obligations.Transition(obligation.RequestChanges))
	obligations.POST("/:id/reset", r.Obligations.Transition(obligation.Reset))
	obligations.GET("/:id/comments", r.Obligations.ListComments)
	obligations.POST("/:id/comments", r.Obligations.AddComment)
	obligations.GET("/:id/attachments", r.Obligations.ListAttachments)
	obligations.POST("/:id/attachments", r.Obligations.AddAttachment)

	authed.GET("/attachments/:id/download", r.Obligations.DownloadAttachment)
	authed.GET("/activity", r.Activity.ListActivity)
}
