package models

import "time"

// AuditAction tags an audit record.
type AuditAction string

const (
	AuditLogin                AuditAction = "login"
	AuditLogout               AuditAction = "logout"
	AuditUserCreate           AuditAction = "user_create"
	AuditUserStatus           AuditAction = "user_status_change"
	AuditVisitorCreate        AuditAction = "visitor_request_create"
	AuditVisitorApprove       AuditAction = "visitor_request_approve"
	AuditVisitorDecline       AuditAction = "visitor_request_decline"
	AuditCheckIn              AuditAction = "visitor_check_in"
	AuditCheckOut             AuditAction = "visitor_check_out"
	AuditDelegationRequest    AuditAction = "delegation_request"
	AuditDelegationApprove    AuditAction = "delegation_approve"
	AuditDelegationReject     AuditAction = "delegation_reject"
	AuditDelegationActivate   AuditAction = "delegation_activate"
	AuditDelegationCancel     AuditAction = "delegation_cancel"
	AuditDelegationComplete   AuditAction = "delegation_complete"
	AuditBulkUpload           AuditAction = "bulk_upload"
	AuditBulkProcess          AuditAction = "bulk_process"
	AuditBulkImport           AuditAction = "bulk_import"
	AuditBulkPermissionChange AuditAction = "bulk_permission_change"
)

// AuditLog is an append-only record. EmployeeID and TargetEmployeeID are
// copied at write time and are not refreshed if the user record changes.
type AuditLog struct {
	ID               string         `json:"id"`
	Action           AuditAction    `json:"action"`
	UserID           string         `json:"user_id"`
	EmployeeID       string         `json:"employee_id,omitempty"`
	TargetUserID     string         `json:"target_user_id,omitempty"`
	TargetEmployeeID string         `json:"target_employee_id,omitempty"`
	Details          map[string]any `json:"details,omitempty"`
	Context          string         `json:"context,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}
