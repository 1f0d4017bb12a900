package domain

import "time"

// TokenRecord is the locally persisted credential set for one login profile.
type TokenRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Profile      string    `gorm:"size:64;uniqueIndex;not null" json:"profile"`
	AccessToken  string    `gorm:"size:4096;not null" json:"-"`
	RefreshToken string    `gorm:"size:4096" json:"-"`
	ExpiresAt    time.Time `gorm:"index" json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
