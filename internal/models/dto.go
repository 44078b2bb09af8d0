package models

import "time"

// ---- Request / Response DTOs ----

type RegisterRequest struct {
	Username       string         `json:"username"`
	Email          string         `json:"email"`
	Password       string         `json:"password"`
	FullName       string         `json:"full_name"`
	EmployeeID     string         `json:"employee_id"`
	Role           UserRole       `json:"role"`
	Department     string         `json:"department"`
	DepartmentType DepartmentType `json:"department_type"`
}

type LoginRequest struct {
	// Login is a username or an email address.
	Login    string `json:"login"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

type SubmitVisitorRequest struct {
	VisitorName    string         `json:"visitor_name"`
	VisitorID      string         `json:"visitor_id"`
	NationalID     string         `json:"national_id"`
	Phone          string         `json:"phone"`
	Email          string         `json:"email"`
	Photo          string         `json:"photo"`
	Purpose        string         `json:"purpose"`
	BroughtItems   []string       `json:"brought_items"`
	DepartmentType DepartmentType `json:"department_type"`
	Gate           string         `json:"gate"`
	AccessType     string         `json:"access_type"`
	IsGroupVisit   bool           `json:"is_group_visit"`
	CompanyName    string         `json:"company_name"`
	GroupSize      int            `json:"group_size"`
	ScheduledDate  string         `json:"scheduled_date"`
	ScheduledTime  string         `json:"scheduled_time"`
	Duration       int            `json:"duration"`
	Priority       Priority       `json:"priority"`
}

type ReviewVisitorRequest struct {
	Status   VisitorStatus `json:"status"` // approved | declined
	Comments string        `json:"comments"`
}

// VisitorFilter carries the query-string filters of GET /visitors/requests.
type VisitorFilter struct {
	Status     VisitorStatus
	Department string
	Date       string
	Search     string
	Page       int
	Limit      int
}

// Page is a generic paginated response.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// NewPage fills the derived page count.
func NewPage[T any](items []T, total, page, limit int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Page[T]{Items: items, Total: total, Page: page, Limit: limit, Pages: pages}
}

type VisitorAnalytics struct {
	Total           int                   `json:"total"`
	ByStatus        map[VisitorStatus]int `json:"by_status"`
	ByDepartment    map[string]int        `json:"by_department"`
	ScheduledToday  int                   `json:"scheduled_today"`
	CurrentlyInside int                   `json:"currently_inside"`
	AvgVisitMinutes float64               `json:"avg_visit_minutes"`
	CompletedVisits int                   `json:"completed_visits"`
}

type CheckInResponse struct {
	Request VisitorRequest `json:"request"`
	Record  CheckInOut     `json:"record"`
}

type DelegationRequestInput struct {
	DelegateID  string                `json:"delegate_id"`
	Reason      string                `json:"reason"`
	StartDate   time.Time             `json:"start_date"`
	EndDate     time.Time             `json:"end_date"`
	Permissions DelegationPermissions `json:"permissions"`
}

type DelegationReviewInput struct {
	Status DelegationStatus `json:"status"` // approved | rejected
	Reason string           `json:"reason"`
}

type UserStatusUpdate struct {
	Active bool `json:"active"`
}

type BulkPermissionUpdate struct {
	Enabled bool `json:"enabled"`
}

// UserFilter carries the query-string filters of GET /users.
type UserFilter struct {
	Role   UserRole
	Active *bool
	Search string
	Page   int
	Limit  int
}

// AuditFilter carries the query-string filters of GET /audit-logs.
type AuditFilter struct {
	Action AuditAction
	UserID string
	From   time.Time
	To     time.Time
	Page   int
	Limit  int
}

type ImportRequest struct {
	Rows           []int          `json:"rows"`
	ScheduledDate  string         `json:"scheduled_date"`
	ScheduledTime  string         `json:"scheduled_time"`
	Duration       int            `json:"duration"`
	DepartmentType DepartmentType `json:"department_type"`
	Gate           string         `json:"gate"`
	AccessType     string         `json:"access_type"`
}

type ImportRowResult struct {
	Index            int       `json:"index"`
	Status           RowStatus `json:"status"`
	Message          string    `json:"message,omitempty"`
	VisitorRequestID string    `json:"visitor_request_id,omitempty"`
}

type ImportResponse struct {
	Results  []ImportRowResult `json:"results"`
	Imported int               `json:"imported"`
	Failed   int               `json:"failed"`
}
