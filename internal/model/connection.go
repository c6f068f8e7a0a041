package model

import "time"

type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "PENDING"
	ConnectionAccepted ConnectionStatus = "ACCEPTED"
	ConnectionRejected ConnectionStatus = "REJECTED"
)

// Connection 双向关系申请。PENDING 是唯一的非终态。
type Connection struct {
	ID            string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SenderID      string           `gorm:"type:varchar(36);not null;index:idx_conn_sender_status,priority:1" json:"senderId"`
	ReceiverID    string           `gorm:"type:varchar(36);not null;index:idx_conn_receiver_status,priority:1" json:"receiverId"`
	Status        ConnectionStatus `gorm:"type:varchar(16);not null;default:'PENDING';index:idx_conn_sender_status,priority:2;index:idx_conn_receiver_status,priority:2" json:"status"`
	Message       *string          `gorm:"size:500" json:"message,omitempty"`
	CreatedAt     time.Time        `gorm:"not null;index" json:"createdAt"`
	RespondedAt   *time.Time       `gorm:"index" json:"respondedAt,omitempty"`
	CooldownUntil *time.Time       `json:"cooldownUntil,omitempty"`
	ExpiresAt     time.Time        `gorm:"not null" json:"expiresAt"`
}

func (Connection) TableName() string {
	return "connections"
}

// ConnectionPeer 已建立的关系，投影为对方的资料
type ConnectionPeer struct {
	ConnectionID string      `json:"connectionId"`
	ConnectedAt  time.Time   `json:"connectedAt"`
	User         UserSummary `json:"user"`
}

// PendingRequest 待处理的申请，投影为对方的资料
type PendingRequest struct {
	ConnectionID string      `json:"connectionId"`
	Message      *string     `json:"message,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	User         UserSummary `json:"user"`
}
