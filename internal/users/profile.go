package users

import (
	"strings"
	"time"
)

// Profile is the read model of one user account. The relay only consults it
// for display names; account rows are owned by the primary application.
type Profile struct {
	ID        string    `gorm:"column:user_id;primaryKey;size:190;not null" json:"id"`
	FirstName string    `gorm:"column:first_name;size:190" json:"firstName"`
	LastName  string    `gorm:"column:last_name;size:190" json:"lastName"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"-"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

// TableName exposes the table backing user profiles.
func (Profile) TableName() string {
	return "user_profiles"
}

// DisplayName composes the human-readable name from whichever name parts are
// present. An empty string means the profile carries no usable name.
func (p Profile) DisplayName() string {
	first := strings.TrimSpace(p.FirstName)
	last := strings.TrimSpace(p.LastName)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	default:
		return last
	}
}
