package service

import (
	"context"
	"fmt"

	"relgraph_backend/internal/model"
	"relgraph_backend/internal/util"
	"relgraph_backend/pkg/logger"
	"relgraph_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// BlockService 屏蔽会同时拆除双方之间的所有 connection 记录。
// 关注关系不受影响。
type BlockService struct {
	store  RelationshipStore
	users  UserLookup
	events EventPublisher
	policy Policy
}

func NewBlockService(store RelationshipStore, users UserLookup, events EventPublisher, policy Policy) *BlockService {
	if events == nil {
		events = NoopPublisher{}
	}
	return &BlockService{store: store, users: users, events: events, policy: policy}
}

type BlockResult struct {
	BlockerID          string `json:"blockerId"`
	BlockedID          string `json:"blockedId"`
	Blocked            bool   `json:"blocked"`
	ConnectionsRemoved int64  `json:"connectionsRemoved"`
}

func (s *BlockService) Block(ctx context.Context, blockerID, blockedID string) (result *BlockResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "BlockService.Block",
		attribute.String("blocker_id", blockerID), attribute.String("blocked_id", blockedID))
	defer func() {
		tracing.EndSpan(span, err)
		observe("block.create", err)
	}()

	if blockerID == blockedID {
		return nil, util.ErrSelfBlock
	}

	exists, err := s.users.UserExists(ctx, blockedID)
	if err != nil {
		return nil, fmt.Errorf("lookup blocked user: %w", err)
	}
	if !exists {
		return nil, util.ErrUserNotFound
	}

	var inserted bool
	var removed int64
	now := s.policy.clock()

	// 屏蔽记录和 connection 清理必须同时成功或同时回滚
	err = s.store.WithinTx(ctx, func(tx RelationshipStore) error {
		if txErr := tx.LockUserPair(ctx, blockerID, blockedID); txErr != nil {
			return fmt.Errorf("lock user pair: %w", txErr)
		}
		var txErr error
		inserted, txErr = tx.UpsertBlock(ctx, blockerID, blockedID, now)
		if txErr != nil {
			return fmt.Errorf("upsert block: %w", txErr)
		}
		removed, txErr = tx.DeleteConnectionsBetween(ctx, blockerID, blockedID)
		if txErr != nil {
			return fmt.Errorf("delete connections: %w", txErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("user blocked",
		zap.String("blocker_id", blockerID),
		zap.String("blocked_id", blockedID),
		zap.Bool("new_block", inserted),
		zap.Int64("connections_removed", removed))

	if inserted || removed > 0 {
		publish(ctx, s.events, EventBlockCreated, BlockEvent{
			BlockerID: blockerID, BlockedID: blockedID, ConnectionsRemoved: removed,
		})
	}

	return &BlockResult{
		BlockerID:          blockerID,
		BlockedID:          blockedID,
		Blocked:            true,
		ConnectionsRemoved: removed,
	}, nil
}

// Unblock 只删除屏蔽记录，被拆除的 connection 不会恢复
func (s *BlockService) Unblock(ctx context.Context, blockerID, blockedID string) (result *BlockResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "BlockService.Unblock",
		attribute.String("blocker_id", blockerID), attribute.String("blocked_id", blockedID))
	defer func() {
		tracing.EndSpan(span, err)
		observe("block.delete", err)
	}()

	removed, err := s.store.DeleteBlock(ctx, blockerID, blockedID)
	if err != nil {
		return nil, fmt.Errorf("delete block: %w", err)
	}
	if removed {
		publish(ctx, s.events, EventBlockDeleted, BlockEvent{BlockerID: blockerID, BlockedID: blockedID})
	}
	return &BlockResult{BlockerID: blockerID, BlockedID: blockedID, Blocked: false}, nil
}

func (s *BlockService) GetBlockedUsers(ctx context.Context, userID string, page, limit int) ([]model.UserSummary, int64, error) {
	limit = util.ClampLimit(limit)
	items, total, err := s.store.ListBlocked(ctx, userID, limit, util.Offset(page, limit))
	if err != nil {
		return nil, 0, fmt.Errorf("list blocked users: %w", err)
	}
	if items == nil {
		items = []model.UserSummary{}
	}
	return items, total, nil
}

// IsBlocked 任一方向存在屏蔽
func (s *BlockService) IsBlocked(ctx context.Context, userA, userB string) (bool, error) {
	blocked, err := s.store.BlockExistsEither(ctx, userA, userB)
	if err != nil {
		return false, fmt.Errorf("check block: %w", err)
	}
	return blocked, nil
}
