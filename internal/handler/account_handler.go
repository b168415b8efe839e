package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"obligation-service/internal/account"
	"obligation-service/internal/model"
	"obligation-service/internal/reqctx"
	"obligation-service/pkg/logger"
)

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token and the signed-in actor.
type LoginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// RegisterRequest is the body of POST /api/tenants/register.
type RegisterRequest struct {
	TenantName string         `json:"tenant_name"`
	PlanTier   model.PlanTier `json:"plan_tier"`
	Name       string         `json:"name"`
	Email      string         `json:"email"`
	Password   string         `json:"password"`
}

// RegisterResponse carries the new tenant and its first actor.
type RegisterResponse struct {
	Tenant *model.Tenant `json:"tenant"`
	User   *model.User   `json:"user"`
}

// UserRequest is the body of POST /api/users.
type UserRequest struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     reqctx.Role `json:"role"`
	PartyID  string      `json:"party_id"`
}

// AccountHandler serves login, tenant registration and actor management.
type AccountHandler struct {
	accounts *account.Service
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts *account.Service) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// Login handles POST /api/auth/login
func (h *AccountHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	token, user, err := h.accounts.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LoginResponse{Token: token, User: user})
}

// Me handles GET /api/auth/me
func (h *AccountHandler) Me(c echo.Context) error {
	user, err := h.accounts.Me(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// RegisterTenant handles POST /api/tenants/register
func (h *AccountHandler) RegisterTenant(c echo.Context) error {
	var req RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	tenant, user, err := h.accounts.RegisterTenant(c.Request().Context(), account.RegisterInput(req))
	if err != nil {
		return err
	}
	logger.FromEcho(c).Info("Tenant registration completed", zap.String("tenant_id", tenant.ID))
	return c.JSON(http.StatusCreated, RegisterResponse{Tenant: tenant, User: user})
}

// CurrentTenant handles GET /api/tenants/current
func (h *AccountHandler) CurrentTenant(c echo.Context) error {
	tenant, err := h.accounts.CurrentTenant(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tenant)
}

// CreateUser handles POST /api/users
func (h *AccountHandler) CreateUser(c echo.Context) error {
	var req UserRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	user, err := h.accounts.CreateUser(c.Request().Context(), account.UserInput(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, user)
}
