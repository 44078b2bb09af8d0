package models

import "time"

// VisitorStatus is the lifecycle state of a visitor request.
//
//	pending -> approved | declined | expired
//	approved -> checked_in -> checked_out
type VisitorStatus string

const (
	VisitorPending    VisitorStatus = "pending"
	VisitorApproved   VisitorStatus = "approved"
	VisitorDeclined   VisitorStatus = "declined"
	VisitorCheckedIn  VisitorStatus = "checked_in"
	VisitorCheckedOut VisitorStatus = "checked_out"
	VisitorExpired    VisitorStatus = "expired"
)

// Terminal reports whether no further transition is possible from s.
func (s VisitorStatus) Terminal() bool {
	return s == VisitorDeclined || s == VisitorCheckedOut || s == VisitorExpired
}

// Valid reports whether s is a known status.
func (s VisitorStatus) Valid() bool {
	switch s {
	case VisitorPending, VisitorApproved, VisitorDeclined,
		VisitorCheckedIn, VisitorCheckedOut, VisitorExpired:
		return true
	}
	return false
}

// Priority of a visitor request.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// DateLayout is the layout of ScheduledDate. Dates are compared as strings.
const DateLayout = "2006-01-02"

// VisitorRequest is a single planned visit.
type VisitorRequest struct {
	ID           string   `json:"id"`
	VisitorName  string   `json:"visitor_name"`
	VisitorID    string   `json:"visitor_id"`
	NationalID   string   `json:"national_id"`
	Phone        string   `json:"phone"`
	Email        string   `json:"email,omitempty"`
	Photo        string   `json:"photo,omitempty"`
	Purpose      string   `json:"purpose"`
	BroughtItems []string `json:"brought_items"`

	Department     string         `json:"department"`
	DepartmentType DepartmentType `json:"department_type"`
	Gate           string         `json:"gate,omitempty"`
	AccessType     string         `json:"access_type,omitempty"`

	IsGroupVisit bool   `json:"is_group_visit"`
	CompanyName  string `json:"company_name,omitempty"`
	GroupSize    int    `json:"group_size,omitempty"`

	ScheduledDate string `json:"scheduled_date"` // YYYY-MM-DD
	ScheduledTime string `json:"scheduled_time"` // HH:MM
	Duration      int    `json:"duration"`       // hours

	Status         VisitorStatus `json:"status"`
	ReviewedBy     string        `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time    `json:"reviewed_at,omitempty"`
	ReviewComments string        `json:"review_comments,omitempty"`
	ApprovalCode   string        `json:"approval_code,omitempty"`
	Priority       Priority      `json:"priority"`
	Location       string        `json:"location,omitempty"`

	SubmittedBy string    `json:"submitted_by"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ExpireIfStale flips a pending request whose scheduled day lies before
// today to expired. It reports whether the status changed.
func (v *VisitorRequest) ExpireIfStale(now time.Time) bool {
	if v.Status != VisitorPending {
		return false
	}
	if v.ScheduledDate >= now.Format(DateLayout) {
		return false
	}
	v.Status = VisitorExpired
	return true
}

// CheckInOut is one physical visit. CheckOutTime is nil while the
// visitor is still inside ("open" record).
type CheckInOut struct {
	ID               string     `json:"id"`
	VisitorRequestID string     `json:"visitor_request_id"`
	CheckInTime      time.Time  `json:"check_in_time"`
	CheckInBy        string     `json:"check_in_by"`
	CheckOutTime     *time.Time `json:"check_out_time,omitempty"`
	CheckOutBy       string     `json:"check_out_by,omitempty"`
	DurationMinutes  *int       `json:"duration_minutes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// VisitDuration returns whole minutes between in and out, never negative.
func VisitDuration(in, out time.Time) int {
	d := out.Sub(in)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}
