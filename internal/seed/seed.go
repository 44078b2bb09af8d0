// Package seed loads demo data from an embedded YAML fixture.
//
// Seeding is idempotent: rows are inserted with fixed ids and a row that
// already exists is left untouched, so running the seed on every start
// is safe.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Elizabethomito/gatepass/internal/auth"
	"github.com/Elizabethomito/gatepass/internal/models"
	"github.com/Elizabethomito/gatepass/internal/store"
)

//go:embed demo.yaml
var demoYAML []byte

// Fixture is the parsed seed file.
type Fixture struct {
	Password string    `yaml:"password"`
	Users    []User    `yaml:"users"`
	Visitors []Visitor `yaml:"visitors"`
}

type User struct {
	ID             string                `yaml:"id"`
	Username       string                `yaml:"username"`
	Email          string                `yaml:"email"`
	FullName       string                `yaml:"full_name"`
	EmployeeID     string                `yaml:"employee_id"`
	Role           models.UserRole       `yaml:"role"`
	Department     string                `yaml:"department"`
	DepartmentType models.DepartmentType `yaml:"department_type"`
	BulkUpload     bool                  `yaml:"bulk_upload"`
}

type Visitor struct {
	ID             string                `yaml:"id"`
	SubmittedBy    string                `yaml:"submitted_by"`
	VisitorName    string                `yaml:"visitor_name"`
	VisitorID      string                `yaml:"visitor_id"`
	NationalID     string                `yaml:"national_id"`
	Phone          string                `yaml:"phone"`
	Purpose        string                `yaml:"purpose"`
	DepartmentType models.DepartmentType `yaml:"department_type"`
	Gate           string                `yaml:"gate"`
	AccessType     string                `yaml:"access_type"`
	Group          bool                  `yaml:"group"`
	Company        string                `yaml:"company"`
	GroupSize      int                   `yaml:"group_size"`
	Day            int                   `yaml:"day"` // offset from today
	Time           string                `yaml:"time"`
	Duration       int                   `yaml:"duration"`
	Priority       models.Priority       `yaml:"priority"`
}

// Parse decodes a fixture and checks the references inside it.
func Parse(data []byte) (*Fixture, error) {
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse seed fixture: %w", err)
	}
	if len(fx.Password) < auth.MinPasswordLength {
		return nil, fmt.Errorf("seed fixture: password must be at least %d characters", auth.MinPasswordLength)
	}
	users := make(map[string]bool, len(fx.Users))
	for _, u := range fx.Users {
		if u.ID == "" || u.Username == "" || u.Email == "" {
			return nil, fmt.Errorf("seed fixture: user %q needs id, username and email", u.ID)
		}
		if !u.Role.Valid() {
			return nil, fmt.Errorf("seed fixture: user %s has unknown role %q", u.ID, u.Role)
		}
		if (u.Role == models.RoleDepartment) != (u.Department != "") {
			return nil, fmt.Errorf("seed fixture: user %s: department is required for department users and only allowed for them", u.ID)
		}
		users[u.ID] = true
	}
	for _, v := range fx.Visitors {
		if !users[v.SubmittedBy] {
			return nil, fmt.Errorf("seed fixture: visitor %s submitted by unknown user %q", v.ID, v.SubmittedBy)
		}
	}
	return &fx, nil
}

// Demo returns the embedded demo fixture.
func Demo() (*Fixture, error) { return Parse(demoYAML) }

// Result counts the rows a seed run inserted.
type Result struct {
	Users    int `json:"users"`
	Visitors int `json:"visitors"`
}

// Apply inserts the fixture. now anchors the visitor days; bcryptCost is
// used for the shared password hash.
func Apply(ctx context.Context, st *store.Store, fx *Fixture, now time.Time, bcryptCost int) (Result, error) {
	var res Result
	hash, err := auth.HashPassword(fx.Password, bcryptCost)
	if err != nil {
		return res, err
	}
	now = now.UTC()

	departments := make(map[string]string, len(fx.Users))
	for _, fu := range fx.Users {
		departments[fu.ID] = fu.Department
		u := &models.User{
			ID:                fu.ID,
			Username:          fu.Username,
			Email:             fu.Email,
			PasswordHash:      hash,
			FullName:          fu.FullName,
			EmployeeID:        fu.EmployeeID,
			Role:              fu.Role,
			Department:        fu.Department,
			DepartmentType:    fu.DepartmentType,
			Active:            true,
			BulkUploadEnabled: fu.BulkUpload,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		switch err := st.CreateUser(ctx, u); {
		case err == nil:
			res.Users++
		case errors.Is(err, store.ErrDuplicate):
		default:
			return res, fmt.Errorf("seed user %s: %w", fu.ID, err)
		}
	}

	for _, fv := range fx.Visitors {
		priority := fv.Priority
		if priority == "" {
			priority = models.PriorityNormal
		}
		v := &models.VisitorRequest{
			ID:             fv.ID,
			VisitorName:    fv.VisitorName,
			VisitorID:      fv.VisitorID,
			NationalID:     fv.NationalID,
			Phone:          fv.Phone,
			Purpose:        fv.Purpose,
			BroughtItems:   []string{},
			Department:     departments[fv.SubmittedBy],
			DepartmentType: fv.DepartmentType,
			Gate:           fv.Gate,
			AccessType:     fv.AccessType,
			IsGroupVisit:   fv.Group,
			CompanyName:    fv.Company,
			GroupSize:      fv.GroupSize,
			ScheduledDate:  now.AddDate(0, 0, fv.Day).Format(models.DateLayout),
			ScheduledTime:  fv.Time,
			Duration:       fv.Duration,
			Status:         models.VisitorPending,
			Priority:       priority,
			Location:       departments[fv.SubmittedBy],
			SubmittedBy:    fv.SubmittedBy,
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		switch err := st.CreateVisitor(ctx, v); {
		case err == nil:
			res.Visitors++
		case errors.Is(err, store.ErrDuplicate):
		default:
			return res, fmt.Errorf("seed visitor %s: %w", fv.ID, err)
		}
	}
	return res, nil
}
