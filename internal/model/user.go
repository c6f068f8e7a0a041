package model

import (
	"time"
)

// swagger:model User
type User struct {
	UUIDBase
	Name     string    `gorm:"size:100;not null" json:"name"`
	Email    string    `gorm:"size:100;unique;not null" json:"email"`
	Headline string    `gorm:"size:255" json:"headline"`
	Avatar   string    `gorm:"size:255" json:"avatar"`
	Disabled bool      `gorm:"default:false" json:"disabled"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// UserSummary 对外暴露的最小用户资料
type UserSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Headline string `json:"headline"`
	Avatar   string `json:"avatar"`
}
