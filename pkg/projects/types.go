package projects

import (
	"errors"
	"time"
)

// ErrProjectNotFound covers both a project that does not exist and a
// project that belongs to another tenant. The two cases are deliberately
// indistinguishable so existence never leaks across the tenant boundary.
var ErrProjectNotFound = errors.New("project not found")

// Status values for a project
const (
	StatusPlanning  = "planning"
	StatusActive    = "active"
	StatusOnHold    = "on_hold"
	StatusCompleted = "completed"
)

// Project is a construction project owned by exactly one tenant.
type Project struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Status    string    `json:"status"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
