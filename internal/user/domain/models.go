package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// User is the identity collaborator's record. Only the fields the property
// core touches are modelled here; credential handling lives elsewhere.
type User struct {
	ID                 snowflake.ID                `gorm:"primaryKey" json:"id"`
	Email              string                      `gorm:"not null;uniqueIndex" json:"email"`
	FullName           string                      `gorm:"not null" json:"full_name"`
	Phone              string                      `json:"phone,omitempty"`
	IsActive           bool                        `gorm:"not null;default:true" json:"is_active"`
	UploadedProperties datatypes.JSONSlice[string] `gorm:"not null;default:'[]'" json:"uploaded_properties"`
	CreatedAt          time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// HasUploaded reports whether the property id is already in the owner's list.
func (u *User) HasUploaded(propertyID snowflake.ID) bool {
	id := propertyID.String()
	for _, p := range u.UploadedProperties {
		if p == id {
			return true
		}
	}
	return false
}
