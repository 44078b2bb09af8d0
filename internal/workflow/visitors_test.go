package workflow

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Elizabethomito/gatepass/internal/authz"
	"github.com/Elizabethomito/gatepass/internal/models"
)

var approvalCodePattern = regexp.MustCompile(`^VIS\d{6}[A-Z0-9]{3}$`)

func TestNewApprovalCodeFormat(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := newApprovalCode()
		require.NoError(t, err)
		assert.Regexp(t, approvalCodePattern, code)
	}
}

func TestSubmitVisitor(t *testing.T) {
	f := newFixture(t)
	dept := f.addUser(t, "dept", models.RoleDepartment, models.DeptDivision)

	v, err := f.svc.SubmitVisitor(f.ctx, dept, validSubmission())
	require.NoError(t, err)
	assert.Equal(t, models.VisitorPending, v.Status)
	assert.Equal(t, models.PriorityNormal, v.Priority)
	assert.Equal(t, "Finance", v.Department)
	assert.Equal(t, "Finance", v.Location)
	assert.Equal(t, dept.UserID, v.SubmittedBy)
	assert.Empty(t, v.ApprovalCode)

	stored, err := f.store.GetVisitor(f.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.VisitorName, stored.VisitorName)
	assert.Contains(t, f.auditActions(t), models.AuditVisitorCreate)
}

func TestSubmitVisitorValidation(t *testing.T) {
	f := newFixture(t)
	dept := f.addUser(t, "dept", models.RoleDepartment, models.DeptWing)

	cases := []struct {
		name   string
		mutate func(*models.SubmitVisitorRequest)
		msg    string
	}{
		{"missing name", func(r *models.SubmitVisitorRequest) { r.VisitorName = "  " }, "visitor name is required"},
		{"bad date", func(r *models.SubmitVisitorRequest) { r.ScheduledDate = "02/03/2026" }, "scheduled date must be YYYY-MM-DD"},
		{"bad time", func(r *models.SubmitVisitorRequest) { r.ScheduledTime = "25:99" }, "scheduled time must be HH:MM"},
		{"zero duration", func(r *models.SubmitVisitorRequest) { r.Duration = 0 }, "duration must be a positive"},
		{"wing without gate", func(r *models.SubmitVisitorRequest) { r.DepartmentType = models.DeptWing }, "gate is required for wing visits"},
		{"group without company", func(r *models.SubmitVisitorRequest) { r.IsGroupVisit = true; r.GroupSize = 3 }, "company name is required"},
		{"group too small", func(r *models.SubmitVisitorRequest) {
			r.IsGroupVisit = true
			r.CompanyName = "Acme"
			r.GroupSize = 1
		}, "group size must be at least 2"},
		{"bad priority", func(r *models.SubmitVisitorRequest) { r.Priority = "asap" }, "priority must be one of"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validSubmission()
			tc.mutate(&req)
			_, err := f.svc.SubmitVisitor(f.ctx, dept, req)
			requireStatus(t, err, 400, tc.msg)
		})
	}
}

func TestSubmitVisitorDefaultsDepartmentType(t *testing.T) {
	f := newFixture(t)
	dept := f.addUser(t, "dept", models.RoleDepartment, models.DeptWing)

	req := validSubmission()
	req.DepartmentType = ""
	_, err := f.svc.SubmitVisitor(f.ctx, dept, req)
	requireStatus(t, err, 400, "gate is required")

	req.Gate = "North"
	req.AccessType = "escorted"
	v, err := f.svc.SubmitVisitor(f.ctx, dept, req)
	require.NoError(t, err)
	assert.Equal(t, models.DeptWing, v.DepartmentType)
}

func TestSubmitVisitorPastDateIsExpired(t *testing.T) {
	f := newFixture(t)
	dept := f.addUser(t, "dept", models.RoleDepartment, models.DeptDivision)

	req := validSubmission()
	req.ScheduledDate = "2026-03-01"
	v, err := f.svc.SubmitVisitor(f.ctx, dept, req)
	require.NoError(t, err)
	assert.Equal(t, models.VisitorExpired, v.Status)
}

func TestSubmitVisitorForbiddenRoles(t *testing.T) {
	f := newFixture(t)
	gate := f.addUser(t, "gate", models.RoleGate, "")
	_, err := f.svc.SubmitVisitor(f.ctx, gate, validSubmission())
	requireStatus(t, err, 403, "")

	_, err = f.svc.SubmitVisitor(f.ctx, nil, validSubmission())
	requireStatus(t, err, 401, "")
}

func TestReviewVisitor(t *testing.T) {
	f := newFixture(t)
	dept := f.addUser(t, "dept", models.RoleDepartment, models.DeptDivision)
	sec := f.addUser(t, "sec", models.RoleSecurity, "")

	v, err := f.svc.SubmitVisitor(f.ctx, dept, validSubmission())
	require.NoError(t, err)

	_, err = f.svc.ReviewVisitor(f.ctx, sec, v.ID, models.ReviewVisitorRequest{Status: models.VisitorCheckedIn})
	requireStatus(t, err, 400, "status must be approved or declined")

	approved, err := f.svc.ReviewVisitor(f.ctx, sec, v.ID, models.ReviewVisitorRequest{Status: models.VisitorApproved, Comments: " ok "})
	require.NoError(t, err)
	assert.Equal(t, models.VisitorApproved, approved.Status)
	assert.Regexp(t, approvalCodePattern, approved.ApprovalCode)
	assert.Equal(t, sec.UserID, approved.ReviewedBy)
	assert.Equal(t, "ok", approved.ReviewComments)
	assert.Equal(t, 2, approved.Version)

	_, err = f.svc.ReviewVisitor(f.ctx, sec, v.ID, models.ReviewVisitorRequest{Status: models.VisitorDeclined})
	requireStatus(t, err, 400, "only pending requests can be reviewed")

	f.svc.Close()
	msgs := f.mail.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "dept@example.com", msgs[0].To)
	assert.Contains(t, msgs[0].Body, approved.ApprovalCode)
}

func TestReviewVisitorDecline(t *testing.T) {
	f := newFixture(t)
	dept := f.addUser(t, "dept", models.RoleDepartment, models.DeptDivision)
	sec := f.addUser(t, "sec", models.RoleSecurity, "")
	v, err := f.svc.SubmitVisitor(f.ctx, dept, validSubmission())
	require.NoError(t, err)

	declined, err := f.svc.ReviewVisitor(f.ctx, sec, v.ID, models.ReviewVisitorRequest{Status: models.VisitorDeclined, Comments: "no escort"})
	require.NoError(t, err)
	assert.Equal(t, models.VisitorDeclined, declined.Status)
	assert.Empty(t, declined.ApprovalCode)
	assert.Contains(t, f.auditActions(t), models.AuditVisitorDecline)
}

func TestReviewVisitorExpiresStaleRequest(t *testing.T) {
	f := newFixture(t)
	dept := f.addUser(t, "dept", models.RoleDepartment, models.DeptDivision)
	sec := f.addUser(t, "sec", models.RoleSecurity, "")
	v, err := f.svc.SubmitVisitor(f.ctx, dept, validSubmission())
	require.NoError(t, err)

	f.clock.Advance(48 * time.Hour)
	_, err = f.svc.ReviewVisitor(f.ctx, sec, v.ID, models.ReviewVisitorRequest{Status: models.VisitorApproved})
	requireStatus(t, err, 400, "request has expired")

	stored, err := f.store.GetVisitor(f.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VisitorExpired, stored.Status)
}

func TestReviewVisitorUnknown(t *testing.T) {
	f := newFixture(t)
	sec := f.addUser(t, "sec", models.RoleSecurity, "")
	_, err := f.svc.ReviewVisitor(f.ctx, sec, "missing", models.ReviewVisitorRequest{Status: models.VisitorApproved})
	requireStatus(t, err, 404, "visitor request not found")
}

// approvedVisitor submits and approves one request.
func (f *fixture) approvedVisitor(t *testing.T, dept, sec *authz.Principal) *models.VisitorRequest {
	t.Helper()
	v, err := f.svc.SubmitVisitor(f.ctx, dept, validSubmission())
	require.NoError(t, err)
	v, err = f.svc.ReviewVisitor(f.ctx, sec, v.ID, models.ReviewVisitorRequest{Status: models.VisitorApproved})
	require.NoError(t, err)
	return v
}

func TestCheckInCheckOut(t *testing.T) {
	f := newFixture(t)
	dept := f.addUser(t, "dept", models.RoleDepartment, models.DeptDivision)
	sec := f.addUser(t, "sec", models.RoleSecurity, "")
	gate := f.addUser(t, "gate", models.RoleGate, "")
	v := f.approvedVisitor(t, dept, sec)

	_, err := f.svc.CheckOut(f.ctx, gate, v.ID)
	requireStatus(t, err, 400, "visitor is not checked in")

	in, err := f.svc.CheckIn(f.ctx, gate, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VisitorCheckedIn, in.Request.Status)
	assert.Equal(t, t0, in.Record.CheckInTime)
	assert.Nil(t, in.Record.CheckOutTime)

	_, err = f.svc.CheckIn(f.ctx, gate, v.ID)
	requireStatus(t, err, 400, "visitor is already checked in")

	_, err = f.svc.CheckOut(f.ctx, gate, v.ID)
	requireStatus(t, err, 400, "check-out time must be after check-in time")

	f.clock.Advance(95 * time.Minute)
	out, err := f.svc.CheckOut(f.ctx, gate, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VisitorCheckedOut, out.Request.Status)
	require.NotNil(t, out.Record.DurationMinutes)
	assert.Equal(t, 95, *out.Record.DurationMinutes)
	assert.Equal(t, gate.UserID, out.Record.CheckOutBy)

	_, err = f.svc.CheckIn(f.ctx, gate, v.ID)
	requireStatus(t, err, 400, "only approved requests can be checked in")

	admin := f.addUser(t, "admin", models.RoleAdmin, "")
	stats, err := f.svc.Analytics(f.ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CompletedVisits)
	assert.InDelta(t, 95, stats.AvgVisitMinutes, 0.01)
	assert.Equal(t, 0, stats.CurrentlyInside)

	actions := f.auditActions(t)
	assert.Contains(t, actions, models.AuditCheckIn)
	assert.Contains(t, actions, models.AuditCheckOut)
}

func TestCheckInPendingRejected(t *testing.T) {
	f := newFixture(t)
	dept := f.addUser(t, "dept", models.RoleDepartment, models.DeptDivision)
	gate := f.addUser(t, "gate", models.RoleGate, "")
	v, err := f.svc.SubmitVisitor(f.ctx, dept, validSubmission())
	require.NoError(t, err)

	_, err = f.svc.CheckIn(f.ctx, gate, v.ID)
	requireStatus(t, err, 400, "only approved requests can be checked in")

	_, err = f.svc.CheckIn(f.ctx, dept, v.ID)
	requireStatus(t, err, 403, "")
}

func TestVisitorScopes(t *testing.T) {
	f := newFixture(t)
	deptA := f.addUser(t, "depta", models.RoleDepartment, models.DeptDivision)
	deptB := f.addUser(t, "deptb", models.RoleDepartment, models.DeptDivision)
	sec := f.addUser(t, "sec", models.RoleSecurity, "")
	gate := f.addUser(t, "gate", models.RoleGate, "")
	admin := f.addUser(t, "admin", models.RoleAdmin, "")

	pending, err := f.svc.SubmitVisitor(f.ctx, deptA, validSubmission())
	require.NoError(t, err)
	approved := f.approvedVisitor(t, deptB, sec)

	cases := []struct {
		name string
		p    *authz.Principal
		want []string
	}{
		{"admin sees all", admin, []string{pending.ID, approved.ID}},
		{"department sees own", deptA, []string{pending.ID}},
		{"security sees review statuses", sec, []string{pending.ID, approved.ID}},
		{"gate sees approved", gate, []string{approved.ID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := f.svc.ListVisitors(f.ctx, tc.p, models.VisitorFilter{})
			require.NoError(t, err)
			got := make([]string, 0, len(page.Items))
			for _, v := range page.Items {
				got = append(got, v.ID)
			}
			assert.ElementsMatch(t, tc.want, got)
			assert.Equal(t, len(tc.want), page.Total)
		})
	}

	_, err = f.svc.GetVisitor(f.ctx, gate, pending.ID)
	requireStatus(t, err, 404, "visitor request not found")
	v, err := f.svc.GetVisitor(f.ctx, deptB, approved.ID)
	require.NoError(t, err)
	assert.Equal(t, approved.ApprovalCode, v.ApprovalCode)

	_, err = f.svc.ListVisitors(f.ctx, admin, models.VisitorFilter{Status: "bogus"})
	requireStatus(t, err, 400, "unknown status filter")

	page, err := f.svc.ListVisitors(f.ctx, admin, models.VisitorFilter{Search: approved.ApprovalCode})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, approved.ID, page.Items[0].ID)
}
