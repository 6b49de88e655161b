// Package users holds the minimal identity record keyed by normalized phone
// number (spec §3) — there is no account recovery or auth in this system.
package users

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Phone       string    `json:"phone" gorm:"uniqueIndex;not null"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
