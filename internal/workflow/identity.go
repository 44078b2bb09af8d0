package workflow

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/Elizabethomito/gatepass/internal/apperror"
	"github.com/Elizabethomito/gatepass/internal/auth"
	"github.com/Elizabethomito/gatepass/internal/authz"
	"github.com/Elizabethomito/gatepass/internal/models"
	"github.com/Elizabethomito/gatepass/internal/store"
)

// Login checks credentials and issues a session token.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if strings.TrimSpace(req.Login) == "" || req.Password == "" {
		return nil, apperror.BadRequest("login and password are required")
	}

	u, err := s.store.GetUserByLogin(ctx, req.Login)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperror.Unauthorized("invalid credentials")
	}
	if err != nil {
		return nil, storeErr(err, "user")
	}
	// Unknown user and wrong password share one message.
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		return nil, apperror.Unauthorized("invalid credentials")
	}
	if !u.Active {
		return nil, apperror.Unauthorized("account is deactivated")
	}

	now := s.now()
	token, claims, err := s.tokens.Issue(u.ID, string(u.Role), now)
	if err != nil {
		return nil, apperror.Internal("could not issue token", err)
	}
	if err := s.store.TouchLastLogin(ctx, u.ID, now); err != nil {
		return nil, storeErr(err, "user")
	}
	u.LastLogin = &now

	s.audit(ctx, principalOf(u), auditEntry{action: models.AuditLogin})
	return &models.LoginResponse{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: *u}, nil
}

// Logout revokes the caller's token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, p *authz.Principal) error {
	if p == nil {
		return apperror.Unauthorized("authentication required")
	}
	if err := s.revoker.Revoke(ctx, p.TokenID, p.TokenExpiresAt); err != nil {
		return apperror.Internal("could not revoke token", err)
	}
	s.audit(ctx, p, auditEntry{action: models.AuditLogout})
	return nil
}

// ResolveIdentity turns a bearer token into the calling principal. Every
// authenticated request passes through here.
func (s *Service) ResolveIdentity(ctx context.Context, token string) (*authz.Principal, error) {
	claims, err := s.tokens.ParseAt(token, s.now())
	if err != nil {
		return nil, apperror.Unauthorized("invalid or expired token")
	}
	revoked, err := s.revoker.IsRevoked(ctx, claims.TokenID())
	if err != nil {
		return nil, apperror.Internal("could not check token revocation", err)
	}
	if revoked {
		return nil, apperror.Unauthorized("token has been revoked")
	}

	u, err := s.store.GetUser(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperror.Unauthorized("user no longer exists")
	}
	if err != nil {
		return nil, storeErr(err, "user")
	}
	if !u.Active {
		return nil, apperror.Unauthorized("account is deactivated")
	}

	p := principalOf(u)
	p.TokenID = claims.TokenID()
	p.TokenExpiresAt = claims.ExpiresAt.Time
	now := s.now()
	if u.IsDelegated && u.DelegatedPermissions != nil && u.DelegationStart != nil && u.DelegationEnd != nil &&
		!now.Before(*u.DelegationStart) && !now.After(*u.DelegationEnd) {
		p.Grant = &authz.Grant{DelegatedBy: u.DelegatedBy, Permissions: *u.DelegatedPermissions}
	}
	return p, nil
}

func principalOf(u *models.User) *authz.Principal {
	return &authz.Principal{
		UserID:            u.ID,
		Username:          u.Username,
		EmployeeID:        u.EmployeeID,
		Role:              u.Role,
		Department:        u.Department,
		DepartmentType:    u.DepartmentType,
		BulkUploadEnabled: u.BulkUploadEnabled,
	}
}

// Me returns the caller's own record.
func (s *Service) Me(ctx context.Context, p *authz.Principal) (*models.User, error) {
	if p == nil {
		return nil, apperror.Unauthorized("authentication required")
	}
	u, err := s.store.GetUser(ctx, p.UserID)
	return u, storeErr(err, "user")
}

func validateRegistration(req *models.RegisterRequest) error {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	req.Department = strings.TrimSpace(req.Department)

	var v apperror.Validator
	v.Check(req.Username != "", "username is required")
	v.Check(req.Email != "", "email is required")
	if req.Email != "" {
		_, err := mail.ParseAddress(req.Email)
		v.Check(err == nil, "email is not a valid address")
	}
	v.Check(len(req.Password) >= auth.MinPasswordLength, "password must be at least 6 characters")
	v.Check(req.FullName != "", "full name is required")
	v.Check(req.Role.Valid(), "role must be one of admin, department, security, gate")
	if req.Role == models.RoleDepartment {
		v.Check(req.Department != "", "department is required for department users")
	} else {
		v.Check(req.Department == "" && req.DepartmentType == "", "department only applies to department users")
	}
	if req.DepartmentType != "" {
		v.Check(req.DepartmentType.Valid(), "department type must be one of wing, division, director")
	}
	return v.Err()
}

// Register creates a user account. Only administrators may call it.
func (s *Service) Register(ctx context.Context, p *authz.Principal, req models.RegisterRequest) (*models.User, error) {
	if err := authorize(p, authz.OpRegisterUser); err != nil {
		return nil, err
	}
	if err := validateRegistration(&req); err != nil {
		return nil, err
	}
	u, err := s.createUser(ctx, req, p.UserID)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, p, auditEntry{
		action:    models.AuditUserCreate,
		target:    u.ID,
		targetEmp: u.EmployeeID,
		details:   map[string]any{"username": u.Username, "role": u.Role},
	})
	return u, nil
}

func (s *Service) createUser(ctx context.Context, req models.RegisterRequest, createdBy string) (*models.User, error) {
	hash, err := auth.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, apperror.Internal("could not hash password", err)
	}
	now := s.now()
	u := &models.User{
		ID:             uuid.NewString(),
		Username:       req.Username,
		Email:          req.Email,
		PasswordHash:   hash,
		FullName:       req.FullName,
		EmployeeID:     strings.TrimSpace(req.EmployeeID),
		Role:           req.Role,
		Department:     req.Department,
		DepartmentType: req.DepartmentType,
		Active:         true,
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperror.Conflict("username or email already exists")
		}
		return nil, storeErr(err, "user")
	}
	return u, nil
}

// EnsureAdmin creates an administrator from email/password when no admin
// account exists yet. It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	n, err := s.store.CountUsersByRole(ctx, models.RoleAdmin)
	if err != nil {
		return false, storeErr(err, "user")
	}
	if n > 0 {
		return false, nil
	}
	username, _, _ := strings.Cut(email, "@")
	req := models.RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
		FullName: "Administrator",
		Role:     models.RoleAdmin,
	}
	if err := validateRegistration(&req); err != nil {
		return false, err
	}
	if _, err := s.createUser(ctx, req, ""); err != nil {
		return false, err
	}
	s.log.Info("bootstrap administrator created", "username", req.Username)
	return true, nil
}

// ListUsers returns one page of users.
func (s *Service) ListUsers(ctx context.Context, p *authz.Principal, f models.UserFilter) (*models.Page[models.User], error) {
	if err := authorize(p, authz.OpListUsers); err != nil {
		return nil, err
	}
	if f.Role != "" && !f.Role.Valid() {
		return nil, apperror.BadRequest("unknown role filter")
	}
	users, total, err := s.store.ListUsers(ctx, f)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	page, limit := store.PageBounds(f.Page, f.Limit)
	out := models.NewPage(users, total, page, limit)
	return &out, nil
}

// SetUserStatus activates or deactivates an account. Administrators cannot
// deactivate themselves.
func (s *Service) SetUserStatus(ctx context.Context, p *authz.Principal, id string, active bool) (*models.User, error) {
	if err := authorize(p, authz.OpSetUserStatus); err != nil {
		return nil, err
	}
	if id == p.UserID && !active {
		return nil, apperror.BadRequest("you cannot deactivate your own account")
	}
	if err := s.store.SetUserActive(ctx, id, active, s.now()); err != nil {
		return nil, storeErr(err, "user")
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	s.audit(ctx, p, auditEntry{
		action:    models.AuditUserStatus,
		target:    u.ID,
		targetEmp: u.EmployeeID,
		details:   map[string]any{"active": active},
	})
	return u, nil
}

// ListBulkPermissions lists department users with their bulk upload flag.
func (s *Service) ListBulkPermissions(ctx context.Context, p *authz.Principal) ([]models.User, error) {
	if err := authorize(p, authz.OpManageBulkPermissions); err != nil {
		return nil, err
	}
	users, _, err := s.store.ListUsers(ctx, models.UserFilter{Role: models.RoleDepartment, Limit: 100})
	if err != nil {
		return nil, storeErr(err, "user")
	}
	return users, nil
}

// SetBulkPermission grants or revokes bulk upload for a department user.
func (s *Service) SetBulkPermission(ctx context.Context, p *authz.Principal, userID string, enabled bool) (*models.User, error) {
	if err := authorize(p, authz.OpManageBulkPermissions); err != nil {
		return nil, err
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	if u.Role != models.RoleDepartment {
		return nil, apperror.BadRequest("bulk upload permission only applies to department users")
	}
	if err := s.store.SetBulkUpload(ctx, userID, enabled, s.now()); err != nil {
		return nil, storeErr(err, "user")
	}
	u.BulkUploadEnabled = enabled
	s.audit(ctx, p, auditEntry{
		action:    models.AuditBulkPermissionChange,
		target:    u.ID,
		targetEmp: u.EmployeeID,
		details:   map[string]any{"enabled": enabled},
	})
	return u, nil
}
