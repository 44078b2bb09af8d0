package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Elizabethomito/gatepass/internal/models"
)

func TestLoginAndResolve(t *testing.T) {
	f := newFixture(t)
	gate := f.addUser(t, "gate", models.RoleGate, "")

	resp, err := f.svc.Login(f.ctx, models.LoginRequest{Login: "GATE@example.com", Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, gate.UserID, resp.User.ID)
	assert.Equal(t, t0.Add(time.Hour), resp.ExpiresAt.UTC())
	require.NotNil(t, resp.User.LastLogin)

	p, err := f.svc.ResolveIdentity(f.ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleGate, p.Role)
	assert.NotEmpty(t, p.TokenID)
	assert.Nil(t, p.Grant)

	f.clock.Advance(2 * time.Hour)
	_, err = f.svc.ResolveIdentity(f.ctx, resp.Token)
	requireStatus(t, err, 401, "invalid or expired token")
}

func TestLoginFailures(t *testing.T) {
	f := newFixture(t)
	admin := f.addUser(t, "admin", models.RoleAdmin, "")
	gate := f.addUser(t, "gate", models.RoleGate, "")

	_, err := f.svc.Login(f.ctx, models.LoginRequest{Login: "gate", Password: "wrong-password"})
	requireStatus(t, err, 401, "invalid credentials")
	_, err = f.svc.Login(f.ctx, models.LoginRequest{Login: "nobody", Password: testPassword})
	requireStatus(t, err, 401, "invalid credentials")
	_, err = f.svc.Login(f.ctx, models.LoginRequest{})
	requireStatus(t, err, 400, "login and password are required")

	token := f.tokenFor(t, gate)
	_, err = f.svc.SetUserStatus(f.ctx, admin, gate.UserID, false)
	require.NoError(t, err)

	_, err = f.svc.Login(f.ctx, models.LoginRequest{Login: "gate", Password: testPassword})
	requireStatus(t, err, 401, "account is deactivated")
	_, err = f.svc.ResolveIdentity(f.ctx, token)
	requireStatus(t, err, 401, "account is deactivated")

	_, err = f.svc.SetUserStatus(f.ctx, admin, admin.UserID, false)
	requireStatus(t, err, 400, "cannot deactivate your own account")
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newFixture(t)
	gate := f.addUser(t, "gate", models.RoleGate, "")

	token := f.tokenFor(t, gate)
	p, err := f.svc.ResolveIdentity(f.ctx, token)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(f.ctx, p))
	_, err = f.svc.ResolveIdentity(f.ctx, token)
	requireStatus(t, err, 401, "token has been revoked")

	// A fresh login is unaffected.
	_, err = f.svc.ResolveIdentity(f.ctx, f.tokenFor(t, gate))
	require.NoError(t, err)

	actions := f.auditActions(t)
	assert.Contains(t, actions, models.AuditLogin)
	assert.Contains(t, actions, models.AuditLogout)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	admin := f.addUser(t, "admin", models.RoleAdmin, "")
	sec := f.addUser(t, "sec", models.RoleSecurity, "")

	req := models.RegisterRequest{
		Username:       "newdept",
		Email:          " NewDept@Example.com ",
		Password:       "password1",
		FullName:       "New Department",
		Role:           models.RoleDepartment,
		Department:     "Logistics",
		DepartmentType: models.DeptWing,
	}
	u, err := f.svc.Register(f.ctx, admin, req)
	require.NoError(t, err)
	assert.Equal(t, "newdept@example.com", u.Email)
	assert.Equal(t, admin.UserID, u.CreatedBy)
	assert.True(t, u.Active)

	_, err = f.svc.Register(f.ctx, admin, req)
	requireStatus(t, err, 409, "already exists")

	_, err = f.svc.Register(f.ctx, sec, req)
	requireStatus(t, err, 403, "")

	bad := req
	bad.Username = "other"
	bad.Email = "not-an-address"
	bad.Password = "123"
	bad.Department = ""
	_, err = f.svc.Register(f.ctx, admin, bad)
	requireStatus(t, err, 400, "email is not a valid address")
	requireStatus(t, err, 400, "password must be at least 6 characters")
	requireStatus(t, err, 400, "department is required")

	guard := req
	guard.Username, guard.Email = "guard", "guard@example.com"
	guard.Role = models.RoleGate
	_, err = f.svc.Register(f.ctx, admin, guard)
	requireStatus(t, err, 400, "department only applies to department users")

	resp, err := f.svc.Login(f.ctx, models.LoginRequest{Login: "newdept", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, resp.User.ID)
}

func TestEnsureAdmin(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.EnsureAdmin(f.ctx, "root@example.com", "bootstrap-pw")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.svc.EnsureAdmin(f.ctx, "root@example.com", "bootstrap-pw")
	require.NoError(t, err)
	assert.False(t, created)

	resp, err := f.svc.Login(f.ctx, models.LoginRequest{Login: "root", Password: "bootstrap-pw"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, resp.User.Role)
}

func TestBulkPermissions(t *testing.T) {
	f := newFixture(t)
	admin := f.addUser(t, "admin", models.RoleAdmin, "")
	dept := f.addUser(t, "dept", models.RoleDepartment, models.DeptDivision)
	gate := f.addUser(t, "gate", models.RoleGate, "")

	users, err := f.svc.ListBulkPermissions(f.ctx, admin)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, users[0].BulkUploadEnabled)

	u, err := f.svc.SetBulkPermission(f.ctx, admin, dept.UserID, false)
	require.NoError(t, err)
	assert.False(t, u.BulkUploadEnabled)

	_, err = f.svc.SetBulkPermission(f.ctx, admin, gate.UserID, true)
	requireStatus(t, err, 400, "only applies to department users")

	p, err := f.svc.ResolveIdentity(f.ctx, f.tokenFor(t, dept))
	require.NoError(t, err)
	_, err = f.svc.ListUploads(f.ctx, p)
	requireStatus(t, err, 403, "")
}

func TestListUsers(t *testing.T) {
	f := newFixture(t)
	admin := f.addUser(t, "admin", models.RoleAdmin, "")
	f.addUser(t, "gate", models.RoleGate, "")
	f.addUser(t, "sec", models.RoleSecurity, "")

	page, err := f.svc.ListUsers(f.ctx, admin, models.UserFilter{Role: models.RoleGate})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "gate", page.Items[0].Username)

	_, err = f.svc.ListUsers(f.ctx, admin, models.UserFilter{Role: "wizard"})
	requireStatus(t, err, 400, "unknown role filter")
}
