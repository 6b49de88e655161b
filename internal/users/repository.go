package users

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository stores the one User-per-phone record.
type Repository interface {
	GetByPhone(phone string) (*User, error)
	// GetOrCreate returns the existing user for phone, or creates one. If
	// displayName is non-empty and differs from the stored value, it updates
	// the record (spec §3: "name updated if a newer non-empty value arrives").
	GetOrCreate(phone, displayName string) (*User, error)
	// GetByID resolves the chat phone for a booking's owning user, used by
	// the Webhook Ingress to address a delivery after payment confirmation.
	GetByID(id uuid.UUID) (*User, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByPhone(phone string) (*User, error) {
	var u User
	err := r.db.Where("phone = ?", phone).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *repository) GetByID(id uuid.UUID) (*User, error) {
	var u User
	if err := r.db.Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *repository) GetOrCreate(phone, displayName string) (*User, error) {
	var u User
	err := r.db.Where("phone = ?", phone).First(&u).Error
	switch {
	case err == nil:
		if displayName != "" && displayName != u.DisplayName {
			u.DisplayName = displayName
			if err := r.db.Model(&u).Update("display_name", displayName).Error; err != nil {
				return nil, err
			}
		}
		return &u, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		u = User{Phone: phone, DisplayName: displayName}
		if err := r.db.Create(&u).Error; err != nil {
			return nil, err
		}
		return &u, nil
	default:
		return nil, err
	}
}
