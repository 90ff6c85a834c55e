package models

import "time"

// User is the directory record for an identity-provider account. ID is the
// provider's uid.
type User struct {
	ID          string    `gorm:"column:id;primaryKey"`
	Username    string    `gorm:"column:username;not null"`
	Email       string    `gorm:"column:email;not null;uniqueIndex"`
	DisplayName *string   `gorm:"column:display_name"`
	PhotoURL    *string   `gorm:"column:photo_url"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string { return "users" }
