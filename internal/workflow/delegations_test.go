package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Elizabethomito/gatepass/internal/authz"
	"github.com/Elizabethomito/gatepass/internal/models"
)

func delegationInput(delegateID string) models.DelegationRequestInput {
	return models.DelegationRequestInput{
		DelegateID: delegateID,
		Reason:     "annual leave",
		StartDate:  t0,
		EndDate:    t0.Add(48 * time.Hour),
		Permissions: models.DelegationPermissions{
			CanApproveRequests: true,
		},
	}
}

// tokenFor logs u in and returns its bearer token.
func (f *fixture) tokenFor(t *testing.T, p *authz.Principal) string {
	t.Helper()
	resp, err := f.svc.Login(f.ctx, models.LoginRequest{Login: p.Username, Password: testPassword})
	require.NoError(t, err)
	return resp.Token
}

func TestRequestDelegationValidation(t *testing.T) {
	f := newFixture(t)
	sec := f.addUser(t, "sec", models.RoleSecurity, "")
	wing := f.addUser(t, "wing", models.RoleDepartment, models.DeptWing)
	gate := f.addUser(t, "gate", models.RoleGate, "")
	admin := f.addUser(t, "admin", models.RoleAdmin, "")

	in := delegationInput(gate.UserID)
	in.EndDate = in.StartDate
	_, err := f.svc.RequestDelegation(f.ctx, sec, in)
	requireStatus(t, err, 400, "end date must be after start date")

	_, err = f.svc.RequestDelegation(f.ctx, sec, delegationInput(sec.UserID))
	requireStatus(t, err, 400, "cannot delegate to yourself")

	_, err = f.svc.RequestDelegation(f.ctx, sec, delegationInput("u-nobody"))
	requireStatus(t, err, 404, "delegate not found")

	_, err = f.svc.RequestDelegation(f.ctx, wing, delegationInput(gate.UserID))
	requireStatus(t, err, 403, "wing users can only delegate")

	_, err = f.svc.RequestDelegation(f.ctx, gate, delegationInput(sec.UserID))
	requireStatus(t, err, 403, "")

	_, err = f.svc.RequestDelegation(f.ctx, admin, delegationInput(sec.UserID))
	requireStatus(t, err, 403, "")
}

func TestRequestDelegationOnePerRequester(t *testing.T) {
	f := newFixture(t)
	sec := f.addUser(t, "sec", models.RoleSecurity, "")
	gate := f.addUser(t, "gate", models.RoleGate, "")

	d, err := f.svc.RequestDelegation(f.ctx, sec, delegationInput(gate.UserID))
	require.NoError(t, err)
	assert.Equal(t, models.DelegationPending, d.Status)

	_, err = f.svc.RequestDelegation(f.ctx, sec, delegationInput(gate.UserID))
	requireStatus(t, err, 400, "already have an open delegation request")
}

func TestDelegationLifecycle(t *testing.T) {
	f := newFixture(t)
	sec := f.addUser(t, "sec", models.RoleSecurity, "")
	gate := f.addUser(t, "gate", models.RoleGate, "")
	admin := f.addUser(t, "admin", models.RoleAdmin, "")

	d, err := f.svc.RequestDelegation(f.ctx, sec, delegationInput(gate.UserID))
	require.NoError(t, err)

	_, err = f.svc.ActivateDelegation(f.ctx, sec, d.ID)
	requireStatus(t, err, 400, "only approved delegations can be activated")

	_, err = f.svc.ReviewDelegation(f.ctx, admin, d.ID, models.DelegationReviewInput{Status: models.DelegationRejected})
	requireStatus(t, err, 400, "a reason is required when rejecting")

	approved, err := f.svc.ReviewDelegation(f.ctx, admin, d.ID, models.DelegationReviewInput{Status: models.DelegationApproved})
	require.NoError(t, err)
	assert.Equal(t, models.DelegationApproved, approved.Status)
	assert.Equal(t, admin.UserID, approved.ApprovedBy)

	other := f.addUser(t, "other", models.RoleSecurity, "")
	_, err = f.svc.ActivateDelegation(f.ctx, other, d.ID)
	requireStatus(t, err, 403, "only the requester or an administrator")

	active, err := f.svc.ActivateDelegation(f.ctx, sec, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DelegationActive, active.Status)

	u, err := f.store.GetUser(f.ctx, gate.UserID)
	require.NoError(t, err)
	assert.True(t, u.IsDelegated)
	assert.Equal(t, sec.UserID, u.DelegatedBy)
	require.NotNil(t, u.DelegatedPermissions)
	assert.True(t, u.DelegatedPermissions.CanApproveRequests)

	p, err := f.svc.ResolveIdentity(f.ctx, f.tokenFor(t, gate))
	require.NoError(t, err)
	require.NotNil(t, p.Grant)
	assert.True(t, authz.Can(p, authz.OpReviewVisitor))

	list, err := f.svc.ActiveDelegations(f.ctx, gate)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, d.ID, list[0].ID)

	sent, err := f.svc.ListDelegations(f.ctx, sec, ViewSent, "")
	require.NoError(t, err)
	assert.Len(t, sent, 1)
	received, err := f.svc.ListDelegations(f.ctx, sec, ViewReceived, "")
	require.NoError(t, err)
	assert.Empty(t, received)
	_, err = f.svc.ListDelegations(f.ctx, sec, "bogus", "")
	requireStatus(t, err, 400, "type must be sent or received")

	f.svc.Close()
	msgs := f.mail.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "sec@example.com", msgs[0].To)
}

func TestCancelActiveDelegationClearsProjection(t *testing.T) {
	f := newFixture(t)
	sec := f.addUser(t, "sec", models.RoleSecurity, "")
	gate := f.addUser(t, "gate", models.RoleGate, "")
	admin := f.addUser(t, "admin", models.RoleAdmin, "")

	d, err := f.svc.RequestDelegation(f.ctx, sec, delegationInput(gate.UserID))
	require.NoError(t, err)
	_, err = f.svc.ReviewDelegation(f.ctx, admin, d.ID, models.DelegationReviewInput{Status: models.DelegationApproved})
	require.NoError(t, err)
	_, err = f.svc.ActivateDelegation(f.ctx, sec, d.ID)
	require.NoError(t, err)

	cancelled, err := f.svc.CancelDelegation(f.ctx, sec, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DelegationCancelled, cancelled.Status)

	u, err := f.store.GetUser(f.ctx, gate.UserID)
	require.NoError(t, err)
	assert.False(t, u.IsDelegated)
	assert.Nil(t, u.DelegatedPermissions)

	p, err := f.svc.ResolveIdentity(f.ctx, f.tokenFor(t, gate))
	require.NoError(t, err)
	assert.Nil(t, p.Grant)
	assert.False(t, authz.Can(p, authz.OpReviewVisitor))

	_, err = f.svc.CancelDelegation(f.ctx, sec, d.ID)
	requireStatus(t, err, 400, "cannot be cancelled")

	// The requester may ask again once nothing is open.
	_, err = f.svc.RequestDelegation(f.ctx, sec, delegationInput(gate.UserID))
	require.NoError(t, err)
}

func TestActivateAfterWindowCompletes(t *testing.T) {
	f := newFixture(t)
	sec := f.addUser(t, "sec", models.RoleSecurity, "")
	gate := f.addUser(t, "gate", models.RoleGate, "")
	admin := f.addUser(t, "admin", models.RoleAdmin, "")

	in := delegationInput(gate.UserID)
	in.StartDate = t0.Add(time.Hour)
	d, err := f.svc.RequestDelegation(f.ctx, sec, in)
	require.NoError(t, err)
	_, err = f.svc.ReviewDelegation(f.ctx, admin, d.ID, models.DelegationReviewInput{Status: models.DelegationApproved})
	require.NoError(t, err)

	_, err = f.svc.ActivateDelegation(f.ctx, sec, d.ID)
	requireStatus(t, err, 400, "has not started yet")

	f.clock.Advance(72 * time.Hour)
	_, err = f.svc.ActivateDelegation(f.ctx, sec, d.ID)
	requireStatus(t, err, 400, "delegation period has ended")

	stored, err := f.store.GetDelegation(f.ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DelegationCompleted, stored.Status)
}

func TestActiveDelegationsCompletesEnded(t *testing.T) {
	f := newFixture(t)
	sec := f.addUser(t, "sec", models.RoleSecurity, "")
	gate := f.addUser(t, "gate", models.RoleGate, "")
	admin := f.addUser(t, "admin", models.RoleAdmin, "")

	d, err := f.svc.RequestDelegation(f.ctx, sec, delegationInput(gate.UserID))
	require.NoError(t, err)
	_, err = f.svc.ReviewDelegation(f.ctx, admin, d.ID, models.DelegationReviewInput{Status: models.DelegationApproved})
	require.NoError(t, err)
	_, err = f.svc.ActivateDelegation(f.ctx, sec, d.ID)
	require.NoError(t, err)

	f.clock.Advance(49 * time.Hour)
	list, err := f.svc.ActiveDelegations(f.ctx, admin)
	require.NoError(t, err)
	assert.Empty(t, list)

	stored, err := f.store.GetDelegation(f.ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DelegationCompleted, stored.Status)

	u, err := f.store.GetUser(f.ctx, gate.UserID)
	require.NoError(t, err)
	assert.False(t, u.IsDelegated)
	assert.Contains(t, f.auditActions(t), models.AuditDelegationComplete)
}

func TestRequestDelegationOnlyHeldPermissions(t *testing.T) {
	f := newFixture(t)
	dept := f.addUser(t, "dept", models.RoleDepartment, models.DeptDivision)
	friend := f.addUser(t, "friend", models.RoleDepartment, models.DeptDivision)
	sec := f.addUser(t, "sec", models.RoleSecurity, "")
	gate := f.addUser(t, "gate", models.RoleGate, "")

	// A submitter cannot hand out review rights it never had.
	_, err := f.svc.RequestDelegation(f.ctx, dept, delegationInput(friend.UserID))
	requireStatus(t, err, 403, "approve requests")

	in := delegationInput(gate.UserID)
	in.Permissions = models.DelegationPermissions{CanCreateRequests: true, CanBulkUpload: true}
	_, err = f.svc.RequestDelegation(f.ctx, sec, in)
	requireStatus(t, err, 403, "create requests, bulk upload")

	noBulk := *dept
	noBulk.BulkUploadEnabled = false
	in = delegationInput(friend.UserID)
	in.Permissions = models.DelegationPermissions{CanCreateRequests: true, CanBulkUpload: true}
	_, err = f.svc.RequestDelegation(f.ctx, &noBulk, in)
	requireStatus(t, err, 403, "bulk upload")

	d, err := f.svc.RequestDelegation(f.ctx, dept, in)
	require.NoError(t, err)
	assert.True(t, d.Permissions.CanBulkUpload)
}

func TestDelegatedReviewLimitedToGrantedGates(t *testing.T) {
	f := newFixture(t)
	sec := f.addUser(t, "sec", models.RoleSecurity, "")
	wing := f.addUser(t, "wing", models.RoleDepartment, models.DeptWing)
	deputy := f.addUser(t, "deputy", models.RoleDepartment, models.DeptDivision)
	admin := f.addUser(t, "admin", models.RoleAdmin, "")

	in := delegationInput(deputy.UserID)
	in.Permissions.GateAccess = []string{"North"}
	d, err := f.svc.RequestDelegation(f.ctx, sec, in)
	require.NoError(t, err)
	_, err = f.svc.ReviewDelegation(f.ctx, admin, d.ID, models.DelegationReviewInput{Status: models.DelegationApproved})
	require.NoError(t, err)
	_, err = f.svc.ActivateDelegation(f.ctx, sec, d.ID)
	require.NoError(t, err)

	p, err := f.svc.ResolveIdentity(f.ctx, f.tokenFor(t, deputy))
	require.NoError(t, err)
	require.NotNil(t, p.Grant)

	submit := func(gate string) *models.VisitorRequest {
		req := validSubmission()
		req.DepartmentType = models.DeptWing
		req.Gate = gate
		req.AccessType = "escorted"
		v, err := f.svc.SubmitVisitor(f.ctx, wing, req)
		require.NoError(t, err)
		return v
	}
	approve := models.ReviewVisitorRequest{Status: models.VisitorApproved}

	south := submit("South")
	_, err = f.svc.ReviewVisitor(f.ctx, p, south.ID, approve)
	requireStatus(t, err, 403, "does not cover this gate")

	north := submit("north")
	v, err := f.svc.ReviewVisitor(f.ctx, p, north.ID, approve)
	require.NoError(t, err)
	assert.Equal(t, models.VisitorApproved, v.Status)

	// The security officer's own rights are not narrowed by the list.
	_, err = f.svc.ReviewVisitor(f.ctx, sec, south.ID, approve)
	require.NoError(t, err)
}

func TestDelegatedGateListingKeepsGateStatuses(t *testing.T) {
	f := newFixture(t)
	sec := f.addUser(t, "sec", models.RoleSecurity, "")
	gate := f.addUser(t, "gate", models.RoleGate, "")
	dept := f.addUser(t, "dept", models.RoleDepartment, models.DeptDivision)
	admin := f.addUser(t, "admin", models.RoleAdmin, "")

	d, err := f.svc.RequestDelegation(f.ctx, sec, delegationInput(gate.UserID))
	require.NoError(t, err)
	_, err = f.svc.ReviewDelegation(f.ctx, admin, d.ID, models.DelegationReviewInput{Status: models.DelegationApproved})
	require.NoError(t, err)
	_, err = f.svc.ActivateDelegation(f.ctx, sec, d.ID)
	require.NoError(t, err)

	pending, err := f.svc.SubmitVisitor(f.ctx, dept, validSubmission())
	require.NoError(t, err)
	approved := f.approvedVisitor(t, dept, sec)

	p, err := f.svc.ResolveIdentity(f.ctx, f.tokenFor(t, gate))
	require.NoError(t, err)
	require.NotNil(t, p.Grant)

	page, err := f.svc.ListVisitors(f.ctx, p, models.VisitorFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, approved.ID, page.Items[0].ID)

	// The grant still lets the officer review a request it was given by id.
	v, err := f.svc.ReviewVisitor(f.ctx, p, pending.ID, models.ReviewVisitorRequest{Status: models.VisitorDeclined, Comments: "no escort"})
	require.NoError(t, err)
	assert.Equal(t, models.VisitorDeclined, v.Status)
}
