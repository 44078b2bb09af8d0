package models

import "time"

// DelegationStatus is the lifecycle state of a delegation.
//
//	pending -> approved | rejected
//	approved -> active -> completed
//	pending | approved | active -> cancelled
type DelegationStatus string

const (
	DelegationPending   DelegationStatus = "pending"
	DelegationApproved  DelegationStatus = "approved"
	DelegationRejected  DelegationStatus = "rejected"
	DelegationActive    DelegationStatus = "active"
	DelegationCompleted DelegationStatus = "completed"
	DelegationCancelled DelegationStatus = "cancelled"
)

// NonTerminal reports whether s still allows a transition. A requester may
// hold at most one delegation in a non-terminal state.
func (s DelegationStatus) NonTerminal() bool {
	return s == DelegationPending || s == DelegationApproved || s == DelegationActive
}

// DelegationPermissions is the bundle of grants a delegation carries.
type DelegationPermissions struct {
	CanCreateRequests  bool     `json:"can_create_requests"`
	CanApproveRequests bool     `json:"can_approve_requests"`
	CanBulkUpload      bool     `json:"can_bulk_upload"`
	GateAccess         []string `json:"gate_access,omitempty"`
	AccessTypes        []string `json:"access_types,omitempty"`
}

// Delegation is a time-boxed grant from RequesterID to DelegateID.
type Delegation struct {
	ID              string                `json:"id"`
	RequesterID     string                `json:"requester_id"`
	DelegateID      string                `json:"delegate_id"`
	Reason          string                `json:"reason"`
	StartDate       time.Time             `json:"start_date"`
	EndDate         time.Time             `json:"end_date"`
	Status          DelegationStatus      `json:"status"`
	ApprovedBy      string                `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time            `json:"approved_at,omitempty"`
	RejectionReason string                `json:"rejection_reason,omitempty"`
	Permissions     DelegationPermissions `json:"permissions"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}
