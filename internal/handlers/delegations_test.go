package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/Elizabethomito/gatepass/internal/models"
)

func TestDelegationRoutes(t *testing.T) {
	env := newTestServer(t)
	env.addUser(t, "sec", models.RoleSecurity, "")
	env.addUser(t, "dept", models.RoleDepartment, models.DeptDivision)
	env.addUser(t, "root", models.RoleAdmin, "")
	sec, dept, admin := env.login(t, "sec"), env.login(t, "dept"), env.login(t, "root")

	// A department user submits a request they cannot review yet.
	rec := env.do(t, http.MethodPost, "/api/visitors/request", dept, visitorSubmission())
	expectStatus(t, rec, http.StatusCreated)
	var v models.VisitorRequest
	decodeBody(t, rec, &v)
	review := models.ReviewVisitorRequest{Status: models.VisitorApproved}
	rec = env.do(t, http.MethodPatch, "/api/visitors/requests/"+v.ID+"/review", dept, review)
	expectStatus(t, rec, http.StatusForbidden)

	in := models.DelegationRequestInput{
		DelegateID:  "u-dept",
		Reason:      "annual leave",
		StartDate:   t0,
		EndDate:     t0.Add(24 * time.Hour),
		Permissions: models.DelegationPermissions{CanApproveRequests: true},
	}
	rec = env.do(t, http.MethodPost, "/api/delegations/request", sec, in)
	expectStatus(t, rec, http.StatusCreated)
	var d models.Delegation
	decodeBody(t, rec, &d)
	if d.Status != models.DelegationPending {
		t.Fatalf("new delegation status: %s", d.Status)
	}

	rec = env.do(t, http.MethodPost, "/api/delegations/request", sec, in)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = env.do(t, http.MethodPatch, "/api/delegations/"+d.ID+"/review", sec,
		models.DelegationReviewInput{Status: models.DelegationApproved})
	expectStatus(t, rec, http.StatusForbidden)

	rec = env.do(t, http.MethodPatch, "/api/delegations/"+d.ID+"/review", admin,
		models.DelegationReviewInput{Status: models.DelegationApproved})
	expectStatus(t, rec, http.StatusOK)

	rec = env.do(t, http.MethodPatch, "/api/delegations/"+d.ID+"/activate", sec, nil)
	expectStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &d)
	if d.Status != models.DelegationActive {
		t.Fatalf("activated delegation status: %s", d.Status)
	}

	// The delegate's next request picks up the grant.
	rec = env.do(t, http.MethodPatch, "/api/visitors/requests/"+v.ID+"/review", dept, review)
	expectStatus(t, rec, http.StatusOK)

	var list []models.Delegation
	rec = env.do(t, http.MethodGet, "/api/delegations?type=received", dept, nil)
	expectStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &list)
	if len(list) != 1 || list[0].ID != d.ID {
		t.Errorf("received delegations: %+v", list)
	}

	rec = env.do(t, http.MethodGet, "/api/delegations?type=sent", dept, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := rec.Body.String(); got != "[]\n" {
		t.Errorf("sent delegations: got %q, want an empty array", got)
	}

	rec = env.do(t, http.MethodGet, "/api/delegations?type=everything", dept, nil)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = env.do(t, http.MethodGet, "/api/delegations/active", admin, nil)
	expectStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &list)
	if len(list) != 1 {
		t.Errorf("active delegations: %d", len(list))
	}

	rec = env.do(t, http.MethodPatch, "/api/delegations/"+d.ID+"/cancel", dept, nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = env.do(t, http.MethodPatch, "/api/delegations/"+d.ID+"/cancel", sec, nil)
	expectStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &d)
	if d.Status != models.DelegationCancelled {
		t.Errorf("cancelled delegation status: %s", d.Status)
	}

	rec = env.do(t, http.MethodGet, "/api/auth/me", dept, nil)
	expectStatus(t, rec, http.StatusOK)
	var me models.User
	decodeBody(t, rec, &me)
	if me.IsDelegated {
		t.Error("delegate projection should be cleared after cancel")
	}
}
