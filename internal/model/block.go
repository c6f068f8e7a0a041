package model

import "time"

type Block struct {
	BlockerID string    `gorm:"primaryKey;type:varchar(36)" json:"blockerId"`
	BlockedID string    `gorm:"primaryKey;type:varchar(36);index" json:"blockedId"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
}

func (Block) TableName() string {
	return "blocks"
}
