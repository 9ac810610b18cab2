package domain

import "time"

type AdminRole string

const (
	RoleAdmin  AdminRole = "admin"
	RoleWriter AdminRole = "writer"
	RoleDoctor AdminRole = "doctor"
)

// AdminUser is the authorization record gating dashboard access. Rows share
// their primary key with the auth provider's user id; a missing row means
// the identity is authenticated but not yet approved for the back office.
type AdminUser struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Role      AdminRole `gorm:"size:32;not null;index" json:"role"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	DoctorID  *uint     `gorm:"index" json:"doctor_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
