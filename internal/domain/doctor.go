package domain

import "time"

// Doctor is the profile an AdminUser with role "doctor" links to.
type Doctor struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Specialty string    `gorm:"size:255" json:"specialty"`
	Hospital  string    `gorm:"size:255" json:"hospital"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
