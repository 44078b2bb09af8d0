// Package authz holds the single role x operation authorization table and
// the visitor listing scope derived from it.
//
// Handlers never switch on a role themselves. They ask Can(principal, op),
// and the listing queries ask VisitorScope(principal).
package authz

import (
	"strings"
	"time"

	"github.com/Elizabethomito/gatepass/internal/models"
)

// Operation names one gated action of the API.
type Operation string

const (
	OpRegisterUser  Operation = "user.register"
	OpListUsers     Operation = "user.list"
	OpSetUserStatus Operation = "user.status"

	OpSubmitVisitor  Operation = "visitor.submit"
	OpReviewVisitor  Operation = "visitor.review"
	OpCheckIn        Operation = "visitor.checkin"
	OpCheckOut       Operation = "visitor.checkout"
	OpListVisitors   Operation = "visitor.list"
	OpViewAnalytics  Operation = "visitor.analytics"
	OpExportVisitors Operation = "visitor.export"

	OpBulkUpload            Operation = "bulk.upload"
	OpManageBulkPermissions Operation = "bulk.permissions"

	OpRequestDelegation Operation = "delegation.request"
	OpReviewDelegation  Operation = "delegation.review"
	OpViewDelegations   Operation = "delegation.view"
	OpManageDelegation  Operation = "delegation.manage" // activate / cancel, ownership checked by the workflow

	OpViewAuditLogs Operation = "audit.view"
	OpLiveFeed      Operation = "live.feed"
)

// table is the authorization matrix. A missing entry means denied.
var table = map[models.UserRole]map[Operation]bool{
	models.RoleAdmin: {
		OpRegisterUser:          true,
		OpListUsers:             true,
		OpSetUserStatus:         true,
		OpListVisitors:          true,
		OpViewAnalytics:         true,
		OpExportVisitors:        true,
		OpBulkUpload:            true,
		OpManageBulkPermissions: true,
		OpReviewDelegation:      true,
		OpViewDelegations:       true,
		OpManageDelegation:      true,
		OpViewAuditLogs:         true,
		OpLiveFeed:              true,
	},
	models.RoleDepartment: {
		OpSubmitVisitor:     true,
		OpListVisitors:      true,
		OpViewAnalytics:     true,
		OpBulkUpload:        true,
		OpRequestDelegation: true,
		OpViewDelegations:   true,
		OpManageDelegation:  true,
		OpLiveFeed:          true,
	},
	models.RoleSecurity: {
		OpReviewVisitor:     true,
		OpListVisitors:      true,
		OpViewAnalytics:     true,
		OpExportVisitors:    true,
		OpRequestDelegation: true,
		OpViewDelegations:   true,
		OpManageDelegation:  true,
		OpLiveFeed:          true,
	},
	models.RoleGate: {
		OpCheckIn:         true,
		OpCheckOut:        true,
		OpListVisitors:    true,
		OpViewAnalytics:   true,
		OpViewDelegations: true,
		OpLiveFeed:        true,
	},
}

// Grant is an active received delegation. The identity resolver only sets
// it when the current time lies inside the delegation window.
type Grant struct {
	DelegatedBy string
	Permissions models.DelegationPermissions
}

// CoversVisit reports whether the grant's gate and access type lists admit
// a request at gate with accessType. An empty list admits everything, as
// does an empty value on the request.
func (g *Grant) CoversVisit(gate, accessType string) bool {
	return listAdmits(g.Permissions.GateAccess, gate) && listAdmits(g.Permissions.AccessTypes, accessType)
}

func listAdmits(list []string, v string) bool {
	if len(list) == 0 || v == "" {
		return true
	}
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}

// Principal is the authenticated caller.
type Principal struct {
	UserID            string
	Username          string
	EmployeeID        string
	Role              models.UserRole
	Department        string
	DepartmentType    models.DepartmentType
	BulkUploadEnabled bool
	Grant             *Grant
	TokenID           string
	TokenExpiresAt    time.Time
}

// Can reports whether p may perform op.
func Can(p *Principal, op Operation) bool {
	if p == nil {
		return false
	}
	if table[p.Role][op] {
		if op == OpBulkUpload && p.Role != models.RoleAdmin {
			return p.BulkUploadEnabled || (p.Grant != nil && p.Grant.Permissions.CanBulkUpload)
		}
		return true
	}
	if p.Grant == nil {
		return false
	}
	perms := p.Grant.Permissions
	switch op {
	case OpSubmitVisitor:
		return perms.CanCreateRequests
	case OpReviewVisitor:
		return perms.CanApproveRequests
	case OpBulkUpload:
		return perms.CanBulkUpload
	case OpListVisitors, OpViewAnalytics:
		return perms.CanCreateRequests || perms.CanApproveRequests
	}
	return false
}

// Delegated reports whether p may perform op only through its grant.
func Delegated(p *Principal, op Operation) bool {
	return p != nil && p.Grant != nil && !table[p.Role][op] && Can(p, op)
}

// Scope restricts which visitor requests a principal can read. A request
// is visible when All is set, when it was submitted by OwnerID, or when
// its status is in Statuses.
type Scope struct {
	All      bool
	OwnerID  string
	Statuses []models.VisitorStatus
}

var (
	reviewStatuses = []models.VisitorStatus{models.VisitorPending, models.VisitorApproved, models.VisitorDeclined}
	gateStatuses   = []models.VisitorStatus{models.VisitorApproved, models.VisitorCheckedIn}
)

// VisitorScope returns the read scope for p.
func VisitorScope(p *Principal) Scope {
	var s Scope
	if p == nil {
		return s
	}
	switch p.Role {
	case models.RoleAdmin:
		s.All = true
		return s
	case models.RoleDepartment:
		s.OwnerID = p.UserID
	case models.RoleSecurity:
		s.Statuses = append(s.Statuses, reviewStatuses...)
	case models.RoleGate:
		s.Statuses = append(s.Statuses, gateStatuses...)
	}
	if p.Grant != nil {
		if p.Grant.Permissions.CanCreateRequests {
			s.OwnerID = p.UserID
		}
		// Gate officers keep the gate listing; a delegated review loads
		// the request by id.
		if p.Grant.Permissions.CanApproveRequests && p.Role == models.RoleDepartment {
			s.Statuses = append(s.Statuses, reviewStatuses...)
		}
	}
	return s
}

// Allows reports whether v is inside the scope.
func (s Scope) Allows(v *models.VisitorRequest) bool {
	if s.All {
		return true
	}
	if s.OwnerID != "" && v.SubmittedBy == s.OwnerID {
		return true
	}
	for _, st := range s.Statuses {
		if v.Status == st {
			return true
		}
	}
	return false
}

// Empty reports whether the scope can match nothing.
func (s Scope) Empty() bool {
	return !s.All && s.OwnerID == "" && len(s.Statuses) == 0
}
