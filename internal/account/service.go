// Package account registers tenants, manages their actors and signs them in.
package account

import (
	"context"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"obligation-service/internal/access"
	"obligation-service/internal/apperr"
	"obligation-service/internal/audit"
	"obligation-service/internal/model"
	"obligation-service/internal/reqctx"
	"obligation-service/internal/tenantdb"
	"obligation-service/pkg/jwtutil"
	"obligation-service/pkg/logger"
	"obligation-service/prometheus"
)

const minPasswordLength = 8

// dummyHash is compared against when the email is unknown so both login
// failures take the same time.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)

// Service handles tenants, actors and login.
type Service struct {
	store    *tenantdb.Store
	recorder *audit.Recorder
	tokens   *jwtutil.JWTUtil
	cost     int
}

// NewService creates an account service signing tokens with tokens.
func NewService(store *tenantdb.Store, recorder *audit.Recorder, tokens *jwtutil.JWTUtil) *Service {
	return &Service{store: store, recorder: recorder, tokens: tokens, cost: bcrypt.DefaultCost}
}

// RegisterInput holds a new tenant and its first privileged actor.
type RegisterInput struct {
	TenantName string
	PlanTier   model.PlanTier
	Name       string
	Email      string
	Password   string
}

// UserInput holds a new actor of the caller's tenant.
type UserInput struct {
	Name     string
	Email    string
	Password string
	Role     reqctx.Role
	PartyID  string
}

func cleanCredentials(name, email, password string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", apperr.Validation("name is required")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return "", "", apperr.Validation("email is invalid")
	}
	if len(password) < minPasswordLength {
		return "", "", apperr.Validation("password must be at least 8 characters")
	}
	return name, strings.ToLower(addr.Address), nil
}

// RegisterTenant creates a tenant together with its first privileged actor.
func (s *Service) RegisterTenant(ctx context.Context, in RegisterInput) (*model.Tenant, *model.User, error) {
	tenantName := strings.TrimSpace(in.TenantName)
	if tenantName == "" {
		return nil, nil, apperr.Validation("tenant name is required")
	}
	if in.PlanTier == "" {
		in.PlanTier = model.PlanFree
	}
	if !in.PlanTier.Valid() {
		return nil, nil, apperr.Validation("unknown plan tier")
	}
	name, email, err := cleanCredentials(in.Name, in.Email, in.Password)
	if err != nil {
		return nil, nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.CodeStorageFailure, "storage failure", err)
	}

	tenant := &model.Tenant{
		ID:       uuid.NewString(),
		Name:     tenantName,
		PlanTier: in.PlanTier,
		Status:   model.TenantActive,
	}
	user := &model.User{
		ID:    uuid.NewString(),
		Name:  name,
		Email: email,
		Role:  reqctx.RolePrivileged,
	}
	// The new admin is the actor of its own registration.
	scoped := reqctx.WithIdentity(ctx, reqctx.Identity{
		ActorID:  user.ID,
		TenantID: tenant.ID,
		Role:     reqctx.RolePrivileged,
	})

	err = s.store.Tx(ctx, func(tx *gorm.DB) error {
		if err := tenantdb.Create(tx, tenant); err != nil {
			return err
		}
		if err := tenantdb.Create(tx, &model.Credential{
			Email:        email,
			UserID:       user.ID,
			TenantID:     tenant.ID,
			PasswordHash: string(hash),
		}); err != nil {
			return err
		}
		stx := tx.WithContext(scoped)
		if err := tenantdb.Create(stx, user); err != nil {
			return err
		}
		return s.recorder.Record(scoped, stx, audit.Entry{
			EntityType: model.EntityUser,
			EntityID:   user.ID,
			Action:     model.ActionCreated,
			Metadata:   map[string]interface{}{"email": email, "role": string(user.Role)},
		})
	})
	if err != nil {
		return nil, nil, err
	}

	logger.FromContext(ctx).Info("Tenant registered successfully",
		zap.String("tenant_id", tenant.ID),
		zap.String("user_id", user.ID))
	return tenant, user, nil
}

// Login checks email and password and returns a signed token. Unknown
// emails, wrong passwords and suspended tenants all fail as Unauthorized.
func (s *Service) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	token, user, err := s.login(ctx, strings.ToLower(strings.TrimSpace(email)), password)
	prometheus.AuthAttemptsCounter.WithLabelValues(prometheus.Outcome(err)).Inc()
	return token, user, err
}

func (s *Service) login(ctx context.Context, email, password string) (string, *model.User, error) {
	log := logger.FromContext(ctx)

	cred, err := tenantdb.First[model.Credential](s.store.Conn(ctx), "email = ?", email)
	if err != nil {
		if apperr.CodeOf(err) != apperr.CodeNotFound {
			return "", nil, err
		}
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		log.Warn("Login failed: unknown email")
		return "", nil, apperr.New(apperr.CodeUnauthorized, "invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		log.Warn("Login failed: wrong password", zap.String("user_id", cred.UserID))
		return "", nil, apperr.New(apperr.CodeUnauthorized, "invalid email or password")
	}

	tenant, err := tenantdb.Get[model.Tenant](s.store.Conn(ctx), cred.TenantID)
	if err != nil {
		return "", nil, err
	}
	if !tenant.Active() {
		log.Warn("Login refused for suspended tenant", zap.String("tenant_id", tenant.ID))
		return "", nil, apperr.New(apperr.CodeUnauthorized, "tenant is suspended")
	}

	var user *model.User
	err = s.store.WithTenant(ctx, cred.TenantID, func(ctx context.Context) error {
		var err error
		user, err = tenantdb.Get[model.User](s.store.Conn(ctx), cred.UserID)
		return err
	})
	if err != nil {
		return "", nil, err
	}

	token, err := s.tokens.GenerateToken(cred.Email, user.Identity())
	if err != nil {
		return "", nil, apperr.Wrap(apperr.CodeStorageFailure, "could not sign token", err)
	}
	log.Info("Login successful", zap.String("user_id", user.ID), zap.String("tenant_id", user.TenantID))
	return token, user, nil
}

// Me returns the calling actor.
func (s *Service) Me(ctx context.Context) (*model.User, error) {
	who, err := access.Authorize(ctx, access.ReadSelf)
	if err != nil {
		return nil, err
	}
	user, err := tenantdb.Get[model.User](s.store.Conn(ctx), who.ActorID)
	if err != nil {
		return nil, tenantdb.NotFoundAs(err, "user")
	}
	return user, nil
}

// CurrentTenant returns the caller's tenant.
func (s *Service) CurrentTenant(ctx context.Context) (*model.Tenant, error) {
	who, err := access.Authorize(ctx, access.ReadSelf)
	if err != nil {
		return nil, err
	}
	tenant, err := tenantdb.Get[model.Tenant](s.store.Conn(ctx), who.TenantID)
	if err != nil {
		return nil, tenantdb.NotFoundAs(err, "tenant")
	}
	return tenant, nil
}

// CreateUser adds an actor to the caller's tenant. Restricted actors must
// name an existing party; privileged actors must not.
func (s *Service) CreateUser(ctx context.Context, in UserInput) (_ *model.User, err error) {
	defer func() { prometheus.RecordOperation("user", "create", err) }()

	who, err := access.Authorize(ctx, access.CreateActor)
	if err != nil {
		return nil, err
	}
	if !in.Role.Valid() {
		return nil, apperr.Validation("role must be PRIVILEGED or RESTRICTED")
	}
	switch {
	case in.Role == reqctx.RoleRestricted && in.PartyID == "":
		return nil, apperr.Validation("restricted users need a party_id")
	case in.Role == reqctx.RolePrivileged && in.PartyID != "":
		return nil, apperr.Validation("privileged users cannot have a party_id")
	}
	name, email, err := cleanCredentials(in.Name, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailure, "storage failure", err)
	}

	user := &model.User{
		ID:    uuid.NewString(),
		Name:  name,
		Email: email,
		Role:  in.Role,
	}
	if in.PartyID != "" {
		partyID := in.PartyID
		user.PartyID = &partyID
	}

	err = s.store.Tx(ctx, func(tx *gorm.DB) error {
		if in.PartyID != "" {
			exists, err := tenantdb.Exists[model.Party](tx, in.PartyID)
			if err != nil {
				return err
			}
			if !exists {
				return apperr.Validation("party does not exist")
			}
		}
		if err := tenantdb.Create(tx, &model.Credential{
			Email:        email,
			UserID:       user.ID,
			TenantID:     who.TenantID,
			PasswordHash: string(hash),
		}); err != nil {
			return err
		}
		if err := tenantdb.Create(tx, user); err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, audit.Entry{
			EntityType: model.EntityUser,
			EntityID:   user.ID,
			Action:     model.ActionCreated,
			Metadata:   map[string]interface{}{"email": email, "role": string(user.Role)},
		})
	})
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("User created successfully",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)))
	return user, nil
}
