package service

import (
	"context"
	"time"

	"relgraph_backend/internal/model"
	"relgraph_backend/internal/util"
)

// ConnectionUpdate 状态迁移时一并写入的字段
type ConnectionUpdate struct {
	RespondedAt   time.Time
	CooldownUntil *time.Time
}

// RelationshipStore 关系图的存储端口，不包含业务逻辑。
//
// 幂等写入（UpsertFollow/UpsertBlock）必须是存储层的单条原子 "insert or ignore"，
// 返回值表示本次是否真正插入。状态迁移必须是条件更新，返回受影响行数。
type RelationshipStore interface {
	// WithinTx 在一个事务内执行 fn，fn 返回错误时全部回滚
	WithinTx(ctx context.Context, fn func(tx RelationshipStore) error) error
	// LockUserPair 在当前事务内对两个用户加排他锁直到事务结束，加锁顺序与参数顺序无关
	LockUserPair(ctx context.Context, userA, userB string) error

	GetConnection(ctx context.Context, id string) (*model.Connection, error)
	FindActiveConnection(ctx context.Context, userA, userB string) (*model.Connection, error)
	FindRejectedWithinCooldown(ctx context.Context, senderID, receiverID string, now time.Time) (*model.Connection, error)
	CountPendingOutgoing(ctx context.Context, senderID string) (int64, error)
	CreateConnection(ctx context.Context, conn *model.Connection) error
	ConditionalUpdateConnectionStatus(ctx context.Context, id string, expected, next model.ConnectionStatus, update ConnectionUpdate) (int64, error)
	DeleteConnectionsBetween(ctx context.Context, userA, userB string) (int64, error)
	// ListAcceptedConnections 按 (respondedAt desc, id desc) 返回游标之后最多 limit 行
	ListAcceptedConnections(ctx context.Context, userID string, after *util.Cursor, limit int) ([]model.ConnectionPeer, error)
	ListPendingIncoming(ctx context.Context, userID string) ([]model.PendingRequest, error)
	ListPendingOutgoing(ctx context.Context, userID string) ([]model.PendingRequest, error)

	UpsertFollow(ctx context.Context, followerID, followingID string, at time.Time) (bool, error)
	DeleteFollow(ctx context.Context, followerID, followingID string) (bool, error)
	FollowExists(ctx context.Context, followerID, followingID string) (bool, error)
	CountFollowers(ctx context.Context, userID string) (int64, error)
	CountFollowing(ctx context.Context, userID string) (int64, error)
	ListFollowers(ctx context.Context, userID string, limit, offset int) ([]model.UserSummary, int64, error)
	ListFollowing(ctx context.Context, userID string, limit, offset int) ([]model.UserSummary, int64, error)

	UpsertBlock(ctx context.Context, blockerID, blockedID string, at time.Time) (bool, error)
	DeleteBlock(ctx context.Context, blockerID, blockedID string) (bool, error)
	// BlockExistsEither 任一方向存在屏蔽即为 true
	BlockExistsEither(ctx context.Context, userA, userB string) (bool, error)
	ListBlocked(ctx context.Context, blockerID string, limit, offset int) ([]model.UserSummary, int64, error)
}

type UserLookup interface {
	UserExists(ctx context.Context, id string) (bool, error)
}

type ReportStore interface {
	CreateReport(ctx context.Context, report *model.Report) error
}
