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

// FollowService 单向关注，不需要对方确认
type FollowService struct {
	store  RelationshipStore
	users  UserLookup
	events EventPublisher
	policy Policy
}

func NewFollowService(store RelationshipStore, users UserLookup, events EventPublisher, policy Policy) *FollowService {
	if events == nil {
		events = NoopPublisher{}
	}
	return &FollowService{store: store, users: users, events: events, policy: policy}
}

type FollowResult struct {
	FollowerID  string `json:"followerId"`
	FollowingID string `json:"followingId"`
	Following   bool   `json:"following"`
}

type FollowStatus struct {
	IsFollowing  bool `json:"isFollowing"`
	IsFollowedBy bool `json:"isFollowedBy"`
}

type FollowCounts struct {
	Followers int64 `json:"followers"`
	Following int64 `json:"following"`
}

// Follow 重复关注视为成功
func (s *FollowService) Follow(ctx context.Context, followerID, followingID string) (result *FollowResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "FollowService.Follow",
		attribute.String("follower_id", followerID), attribute.String("following_id", followingID))
	defer func() {
		tracing.EndSpan(span, err)
		observe("follow.create", err)
	}()

	if followerID == followingID {
		return nil, util.ErrSelfFollow
	}

	exists, err := s.users.UserExists(ctx, followingID)
	if err != nil {
		return nil, fmt.Errorf("lookup followed user: %w", err)
	}
	if !exists {
		return nil, util.ErrUserNotFound
	}

	blocked, err := s.store.BlockExistsEither(ctx, followerID, followingID)
	if err != nil {
		return nil, fmt.Errorf("check block: %w", err)
	}
	if blocked {
		return nil, util.ErrBlocked
	}

	inserted, err := s.store.UpsertFollow(ctx, followerID, followingID, s.policy.clock())
	if err != nil {
		return nil, fmt.Errorf("upsert follow: %w", err)
	}

	if inserted {
		logger.Log.Debug("follow created",
			zap.String("follower_id", followerID), zap.String("following_id", followingID))
		publish(ctx, s.events, EventFollowCreated, FollowEvent{FollowerID: followerID, FollowingID: followingID})
	}

	return &FollowResult{FollowerID: followerID, FollowingID: followingID, Following: true}, nil
}

// Unfollow 本来就没有关注时同样返回成功
func (s *FollowService) Unfollow(ctx context.Context, followerID, followingID string) (result *FollowResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "FollowService.Unfollow",
		attribute.String("follower_id", followerID), attribute.String("following_id", followingID))
	defer func() {
		tracing.EndSpan(span, err)
		observe("follow.delete", err)
	}()

	removed, err := s.store.DeleteFollow(ctx, followerID, followingID)
	if err != nil {
		return nil, fmt.Errorf("delete follow: %w", err)
	}
	if removed {
		publish(ctx, s.events, EventFollowDeleted, FollowEvent{FollowerID: followerID, FollowingID: followingID})
	}

	return &FollowResult{FollowerID: followerID, FollowingID: followingID, Following: false}, nil
}

func (s *FollowService) GetFollowers(ctx context.Context, userID string, page, limit int) ([]model.UserSummary, int64, error) {
	limit = util.ClampLimit(limit)
	items, total, err := s.store.ListFollowers(ctx, userID, limit, util.Offset(page, limit))
	if err != nil {
		return nil, 0, fmt.Errorf("list followers: %w", err)
	}
	if items == nil {
		items = []model.UserSummary{}
	}
	return items, total, nil
}

func (s *FollowService) GetFollowing(ctx context.Context, userID string, page, limit int) ([]model.UserSummary, int64, error) {
	limit = util.ClampLimit(limit)
	items, total, err := s.store.ListFollowing(ctx, userID, limit, util.Offset(page, limit))
	if err != nil {
		return nil, 0, fmt.Errorf("list following: %w", err)
	}
	if items == nil {
		items = []model.UserSummary{}
	}
	return items, total, nil
}

func (s *FollowService) GetFollowStatus(ctx context.Context, viewerID, targetID string) (*FollowStatus, error) {
	if viewerID == targetID {
		return &FollowStatus{}, nil
	}
	following, err := s.store.FollowExists(ctx, viewerID, targetID)
	if err != nil {
		return nil, fmt.Errorf("check following: %w", err)
	}
	followedBy, err := s.store.FollowExists(ctx, targetID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("check followed by: %w", err)
	}
	return &FollowStatus{IsFollowing: following, IsFollowedBy: followedBy}, nil
}

func (s *FollowService) GetFollowCounts(ctx context.Context, userID string) (*FollowCounts, error) {
	followers, err := s.store.CountFollowers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count followers: %w", err)
	}
	following, err := s.store.CountFollowing(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count following: %w", err)
	}
	return &FollowCounts{Followers: followers, Following: following}, nil
}
