package authz

import (
	"testing"

	"github.com/Elizabethomito/gatepass/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCanRoleTable(t *testing.T) {
	cases := []struct {
		role models.UserRole
		op   Operation
		want bool
	}{
		{models.RoleDepartment, OpSubmitVisitor, true},
		{models.RoleDepartment, OpReviewVisitor, false},
		{models.RoleSecurity, OpReviewVisitor, true},
		{models.RoleSecurity, OpCheckIn, false},
		{models.RoleGate, OpCheckIn, true},
		{models.RoleGate, OpCheckOut, true},
		{models.RoleGate, OpSubmitVisitor, false},
		{models.RoleAdmin, OpViewAuditLogs, true},
		{models.RoleAdmin, OpSubmitVisitor, false},
		{models.RoleSecurity, OpViewAuditLogs, false},
		{models.RoleGate, OpRequestDelegation, false},
	}
	for _, tc := range cases {
		p := &Principal{UserID: "u", Role: tc.role}
		assert.Equal(t, tc.want, Can(p, tc.op), "%s %s", tc.role, tc.op)
	}
}

func TestCanNilPrincipal(t *testing.T) {
	assert.False(t, Can(nil, OpListVisitors))
}

func TestBulkUploadNeedsFlag(t *testing.T) {
	p := &Principal{UserID: "u", Role: models.RoleDepartment}
	assert.False(t, Can(p, OpBulkUpload))

	p.BulkUploadEnabled = true
	assert.True(t, Can(p, OpBulkUpload))

	admin := &Principal{UserID: "a", Role: models.RoleAdmin}
	assert.True(t, Can(admin, OpBulkUpload))
}

func TestGrantExtendsTable(t *testing.T) {
	p := &Principal{UserID: "g", Role: models.RoleGate}
	assert.False(t, Can(p, OpReviewVisitor))

	p.Grant = &Grant{DelegatedBy: "s", Permissions: models.DelegationPermissions{CanApproveRequests: true}}
	assert.True(t, Can(p, OpReviewVisitor))
	assert.False(t, Can(p, OpSubmitVisitor))

	p.Grant.Permissions.CanBulkUpload = true
	assert.True(t, Can(p, OpBulkUpload))
}

func TestVisitorScope(t *testing.T) {
	dept := VisitorScope(&Principal{UserID: "d1", Role: models.RoleDepartment})
	assert.Equal(t, "d1", dept.OwnerID)
	assert.True(t, dept.Allows(&models.VisitorRequest{SubmittedBy: "d1", Status: models.VisitorDeclined}))
	assert.False(t, dept.Allows(&models.VisitorRequest{SubmittedBy: "d2", Status: models.VisitorPending}))

	gate := VisitorScope(&Principal{UserID: "g1", Role: models.RoleGate})
	assert.True(t, gate.Allows(&models.VisitorRequest{Status: models.VisitorApproved}))
	assert.True(t, gate.Allows(&models.VisitorRequest{Status: models.VisitorCheckedIn}))
	assert.False(t, gate.Allows(&models.VisitorRequest{Status: models.VisitorPending}))
	assert.False(t, gate.Allows(&models.VisitorRequest{Status: models.VisitorDeclined}))

	sec := VisitorScope(&Principal{UserID: "s1", Role: models.RoleSecurity})
	assert.True(t, sec.Allows(&models.VisitorRequest{Status: models.VisitorPending}))
	assert.False(t, sec.Allows(&models.VisitorRequest{Status: models.VisitorCheckedOut}))

	admin := VisitorScope(&Principal{UserID: "a1", Role: models.RoleAdmin})
	assert.True(t, admin.All)
	assert.False(t, admin.Empty())
	assert.True(t, VisitorScope(nil).Empty())
}

func TestVisitorScopeDelegatedApprover(t *testing.T) {
	p := &Principal{
		UserID: "d1",
		Role:   models.RoleDepartment,
		Grant:  &Grant{Permissions: models.DelegationPermissions{CanApproveRequests: true}},
	}
	s := VisitorScope(p)
	assert.True(t, s.Allows(&models.VisitorRequest{SubmittedBy: "other", Status: models.VisitorPending}))
	assert.True(t, s.Allows(&models.VisitorRequest{SubmittedBy: "d1", Status: models.VisitorCheckedOut}))
	assert.False(t, s.Allows(&models.VisitorRequest{SubmittedBy: "other", Status: models.VisitorCheckedIn}))
}

func TestVisitorScopeGateWithApproveGrant(t *testing.T) {
	p := &Principal{
		UserID: "g1",
		Role:   models.RoleGate,
		Grant:  &Grant{Permissions: models.DelegationPermissions{CanApproveRequests: true}},
	}
	s := VisitorScope(p)
	assert.False(t, s.Allows(&models.VisitorRequest{SubmittedBy: "d1", Status: models.VisitorPending}))
	assert.False(t, s.Allows(&models.VisitorRequest{SubmittedBy: "d1", Status: models.VisitorDeclined}))
	assert.True(t, s.Allows(&models.VisitorRequest{SubmittedBy: "d1", Status: models.VisitorApproved}))
	assert.True(t, Can(p, OpReviewVisitor))
}
