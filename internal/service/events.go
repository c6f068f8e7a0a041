package service

import (
	"context"
	"strings"

	"relgraph_backend/internal/util"
	"relgraph_backend/pkg/logger"
	"relgraph_backend/pkg/monitoring"

	"go.uber.org/zap"
)

const (
	EventConnectionRequested = "connection.requested"
	EventConnectionAccepted  = "connection.accepted"
	EventConnectionRejected  = "connection.rejected"
	EventFollowCreated       = "follow.created"
	EventFollowDeleted       = "follow.deleted"
	EventBlockCreated        = "block.created"
	EventBlockDeleted        = "block.deleted"
)

type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }

type ConnectionEvent struct {
	ConnectionID string `json:"connection_id"`
	SenderID     string `json:"sender_id"`
	ReceiverID   string `json:"receiver_id"`
	Status       string `json:"status"`
}

type FollowEvent struct {
	FollowerID  string `json:"follower_id"`
	FollowingID string `json:"following_id"`
}

type BlockEvent struct {
	BlockerID          string `json:"blocker_id"`
	BlockedID          string `json:"blocked_id"`
	ConnectionsRemoved int64  `json:"connections_removed"`
}

// publish 在提交之后调用，失败只记日志，不影响已完成的操作
func publish(ctx context.Context, pub EventPublisher, eventType string, payload any) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, eventType, payload); err != nil {
		logger.Log.Error("Failed to publish relationship event",
			zap.String("event", eventType), zap.Error(err))
	}
}

func observe(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(util.KindOf(err)))
	}
	monitoring.ObserveOperation(operation, outcome)
}
