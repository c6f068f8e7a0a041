package model

import "time"

// Follow 单向关注，行存在即表示关注关系
type Follow struct {
	FollowerID  string    `gorm:"primaryKey;type:varchar(36)" json:"followerId"`
	FollowingID string    `gorm:"primaryKey;type:varchar(36);index" json:"followingId"`
	CreatedAt   time.Time `gorm:"not null" json:"createdAt"`
}

func (Follow) TableName() string {
	return "follows"
}
