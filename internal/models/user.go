package models

import "time"

const (
	RoleRider  = "rider"
	RoleDriver = "driver"
	RoleAdmin  = "admin"
)

type User struct {
	ID        string     `json:"id" db:"user_id"`
	Email     string     `json:"email" db:"email"`
	Name      string     `json:"name" db:"name"`
	Phone     string     `json:"phone,omitempty" db:"phone"`
	Role      string     `json:"role" db:"role"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}
