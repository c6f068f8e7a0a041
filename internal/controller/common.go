package controller

import (
	"context"

	"relgraph_backend/internal/model"
	"relgraph_backend/internal/service"
	"relgraph_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// 控制器依赖的服务能力，便于替换为测试实现

type ConnectionAPI interface {
	SendRequest(ctx context.Context, senderID, receiverID string, message *string) (*service.SendRequestResult, error)
	AcceptRequest(ctx context.Context, connectionID, actorID string) (*model.Connection, error)
	RejectRequest(ctx context.Context, connectionID, actorID string) (*model.Connection, error)
	ListConnections(ctx context.Context, userID, cursor string, limit int) (util.CursorPage[model.ConnectionPeer], error)
	ListPending(ctx context.Context, userID string) (*service.PendingLists, error)
}

type FollowAPI interface {
	Follow(ctx context.Context, followerID, followingID string) (*service.FollowResult, error)
	Unfollow(ctx context.Context, followerID, followingID string) (*service.FollowResult, error)
	GetFollowers(ctx context.Context, userID string, page, limit int) ([]model.UserSummary, int64, error)
	GetFollowing(ctx context.Context, userID string, page, limit int) ([]model.UserSummary, int64, error)
	GetFollowStatus(ctx context.Context, viewerID, targetID string) (*service.FollowStatus, error)
	GetFollowCounts(ctx context.Context, userID string) (*service.FollowCounts, error)
}

type BlockAPI interface {
	Block(ctx context.Context, blockerID, blockedID string) (*service.BlockResult, error)
	Unblock(ctx context.Context, blockerID, blockedID string) (*service.BlockResult, error)
	GetBlockedUsers(ctx context.Context, userID string, page, limit int) ([]model.UserSummary, int64, error)
	IsBlocked(ctx context.Context, userA, userB string) (bool, error)
}

type ReportAPI interface {
	ReportUser(ctx context.Context, reporterID, targetID, reason string) (*model.Report, error)
}

// currentUserID 取登录用户，未登录时已写回 401
func currentUserID(ctx *gin.Context) (string, bool) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return "", false
	}
	return claims.UserID, true
}

// pathID 读取并校验路径中的 uuid 参数
func pathID(ctx *gin.Context, name string) (string, bool) {
	id := ctx.Param(name)
	if !util.IsUUID(id) {
		util.BadRequest(ctx, "invalid "+name)
		return "", false
	}
	return id, true
}
