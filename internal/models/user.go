package models

import "time"

// Role of a staff or system account
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleUser       Role = "user"
	RoleSpecialist Role = "specialist"
)

// User represents a staff or system account
type User struct {
	ID                 int64      `db:"id" json:"id"`
	Name               string     `db:"name" json:"name"`
	Email              *string    `db:"email" json:"email,omitempty"`
	Role               Role       `db:"role" json:"role"`
	DepartmentID       *int64     `db:"department_id" json:"department_id,omitempty"`
	DepartmentAdmin    bool       `db:"department_admin" json:"department_admin"`
	IsActive           bool       `db:"is_active" json:"is_active"`
	LastTaskAssignedAt *time.Time `db:"last_task_assigned_at" json:"last_task_assigned_at,omitempty"`
}

// Department groups users; Code is the stable lookup key
type Department struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Code     string `db:"code" json:"code"`
	IsActive bool   `db:"is_active" json:"is_active"`
}
