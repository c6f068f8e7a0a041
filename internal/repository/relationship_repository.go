package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"relgraph_backend/internal/model"
	"relgraph_backend/internal/service"
	"relgraph_backend/internal/util"
	"relgraph_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const followCountTTL = 10 * time.Minute

// RelationshipRepository connections/follows/blocks 三张表的 gorm 实现。
// Redis 可为 nil，此时关注计数直接回源数据库。
type RelationshipRepository struct {
	DB    *gorm.DB
	Redis *redis.Client
}

var _ service.RelationshipStore = (*RelationshipRepository)(nil)

func NewRelationshipRepository(db *gorm.DB, rdb *redis.Client) *RelationshipRepository {
	return &RelationshipRepository{DB: db, Redis: rdb}
}

func (r *RelationshipRepository) db(ctx context.Context) *gorm.DB {
	return r.DB.WithContext(ctx)
}

func (r *RelationshipRepository) WithinTx(ctx context.Context, fn func(tx service.RelationshipStore) error) error {
	return r.db(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&RelationshipRepository{DB: tx, Redis: r.Redis})
	})
}

// LockUserPair 按 id 升序对两个 users 行 SELECT ... FOR UPDATE，避免交叉加锁死锁。
// 只在 WithinTx 内有意义，自动提交模式下锁随语句释放。
func (r *RelationshipRepository) LockUserPair(ctx context.Context, userA, userB string) error {
	first, second := userA, userB
	if second < first {
		first, second = second, first
	}
	for _, id := range []string{first, second} {
		var locked []model.User
		err := r.db(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", id).
			Find(&locked).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// pairCondition 匹配 a、b 之间任一方向的记录
func pairCondition(leftCol, rightCol string) string {
	return fmt.Sprintf("((%s = ? AND %s = ?) OR (%s = ? AND %s = ?))", leftCol, rightCol, leftCol, rightCol)
}

// ---------- connections ----------

func (r *RelationshipRepository) GetConnection(ctx context.Context, id string) (*model.Connection, error) {
	var conn model.Connection
	err := r.db(ctx).Where("id = ?", id).First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *RelationshipRepository) FindActiveConnection(ctx context.Context, userA, userB string) (*model.Connection, error) {
	var conn model.Connection
	err := r.db(ctx).
		Where(pairCondition("sender_id", "receiver_id"), userA, userB, userB, userA).
		Where("status IN ?", []string{string(model.ConnectionPending), string(model.ConnectionAccepted)}).
		Order("created_at DESC").
		First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *RelationshipRepository) FindRejectedWithinCooldown(ctx context.Context, senderID, receiverID string, now time.Time) (*model.Connection, error) {
	var conn model.Connection
	err := r.db(ctx).
		Where("sender_id = ? AND receiver_id = ? AND status = ?", senderID, receiverID, model.ConnectionRejected).
		Where("cooldown_until > ?", now).
		Order("cooldown_until DESC").
		First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *RelationshipRepository) CountPendingOutgoing(ctx context.Context, senderID string) (int64, error) {
	var count int64
	err := r.db(ctx).Model(&model.Connection{}).
		Where("sender_id = ? AND status = ?", senderID, model.ConnectionPending).
		Count(&count).Error
	return count, err
}

func (r *RelationshipRepository) CreateConnection(ctx context.Context, conn *model.Connection) error {
	return r.db(ctx).Create(conn).Error
}

// ConditionalUpdateConnectionStatus 只有当前状态等于 expected 时才更新，返回受影响行数
func (r *RelationshipRepository) ConditionalUpdateConnectionStatus(ctx context.Context, id string, expected, next model.ConnectionStatus, update service.ConnectionUpdate) (int64, error) {
	res := r.db(ctx).Model(&model.Connection{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(map[string]interface{}{
			"status":         next,
			"responded_at":   update.RespondedAt,
			"cooldown_until": update.CooldownUntil,
		})
	return res.RowsAffected, res.Error
}

func (r *RelationshipRepository) DeleteConnectionsBetween(ctx context.Context, userA, userB string) (int64, error) {
	res := r.db(ctx).
		Where(pairCondition("sender_id", "receiver_id"), userA, userB, userB, userA).
		Delete(&model.Connection{})
	return res.RowsAffected, res.Error
}

type peerRow struct {
	ConnectionID string
	ConnectedAt  time.Time
	UserID       string
	Name         string
	Headline     string
	Avatar       string
}

func (r *RelationshipRepository) ListAcceptedConnections(ctx context.Context, userID string, after *util.Cursor, limit int) ([]model.ConnectionPeer, error) {
	q := r.db(ctx).Table("connections AS c").
		Joins("JOIN users AS u ON u.id = CASE WHEN c.sender_id = ? THEN c.receiver_id ELSE c.sender_id END", userID).
		Where("c.status = ?", model.ConnectionAccepted).
		Where("c.responded_at IS NOT NULL").
		Where("(c.sender_id = ? OR c.receiver_id = ?)", userID, userID)
	q = keysetAfter(q, "c.responded_at", "c.id", after)

	var rows []peerRow
	err := q.Select("c.id AS connection_id, c.responded_at AS connected_at, u.id AS user_id, u.name, u.headline, u.avatar").
		Order(keysetOrder("c.responded_at", "c.id")).
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	peers := make([]model.ConnectionPeer, 0, len(rows))
	for _, row := range rows {
		peers = append(peers, model.ConnectionPeer{
			ConnectionID: row.ConnectionID,
			ConnectedAt:  row.ConnectedAt.UTC(),
			User:         model.UserSummary{ID: row.UserID, Name: row.Name, Headline: row.Headline, Avatar: row.Avatar},
		})
	}
	return peers, nil
}

type pendingRow struct {
	ConnectionID string
	Message      *string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	UserID       string
	Name         string
	Headline     string
	Avatar       string
}

// listPending ownCol 是当前用户所在的列，otherCol 是对方所在的列
func (r *RelationshipRepository) listPending(ctx context.Context, userID, ownCol, otherCol string) ([]model.PendingRequest, error) {
	var rows []pendingRow
	err := r.db(ctx).Table("connections AS c").
		Joins(fmt.Sprintf("JOIN users AS u ON u.id = c.%s", otherCol)).
		Where(fmt.Sprintf("c.%s = ? AND c.status = ?", ownCol), userID, model.ConnectionPending).
		Select("c.id AS connection_id, c.message, c.created_at, c.expires_at, u.id AS user_id, u.name, u.headline, u.avatar").
		Order("c.created_at DESC, c.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]model.PendingRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.PendingRequest{
			ConnectionID: row.ConnectionID,
			Message:      row.Message,
			CreatedAt:    row.CreatedAt.UTC(),
			ExpiresAt:    row.ExpiresAt.UTC(),
			User:         model.UserSummary{ID: row.UserID, Name: row.Name, Headline: row.Headline, Avatar: row.Avatar},
		})
	}
	return out, nil
}

func (r *RelationshipRepository) ListPendingIncoming(ctx context.Context, userID string) ([]model.PendingRequest, error) {
	return r.listPending(ctx, userID, "receiver_id", "sender_id")
}

func (r *RelationshipRepository) ListPendingOutgoing(ctx context.Context, userID string) ([]model.PendingRequest, error) {
	return r.listPending(ctx, userID, "sender_id", "receiver_id")
}

// ---------- follows ----------

// UpsertFollow 单条 insert-or-ignore，返回是否新插入
func (r *RelationshipRepository) UpsertFollow(ctx context.Context, followerID, followingID string, at time.Time) (bool, error) {
	res := r.db(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model.Follow{
		FollowerID:  followerID,
		FollowingID: followingID,
		CreatedAt:   at,
	})
	if res.Error != nil {
		return false, res.Error
	}
	inserted := res.RowsAffected > 0
	if inserted {
		r.invalidateFollowCounts(ctx, followerID, followingID)
	}
	return inserted, nil
}

func (r *RelationshipRepository) DeleteFollow(ctx context.Context, followerID, followingID string) (bool, error) {
	res := r.db(ctx).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Delete(&model.Follow{})
	if res.Error != nil {
		return false, res.Error
	}
	removed := res.RowsAffected > 0
	if removed {
		r.invalidateFollowCounts(ctx, followerID, followingID)
	}
	return removed, nil
}

func (r *RelationshipRepository) FollowExists(ctx context.Context, followerID, followingID string) (bool, error) {
	var count int64
	err := r.db(ctx).Model(&model.Follow{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Count(&count).Error
	return count > 0, err
}

func (r *RelationshipRepository) CountFollowers(ctx context.Context, userID string) (int64, error) {
	return r.cachedCount(ctx, followersKey(userID), func() (int64, error) {
		var count int64
		err := r.db(ctx).Model(&model.Follow{}).Where("following_id = ?", userID).Count(&count).Error
		return count, err
	})
}

func (r *RelationshipRepository) CountFollowing(ctx context.Context, userID string) (int64, error) {
	return r.cachedCount(ctx, followingKey(userID), func() (int64, error) {
		var count int64
		err := r.db(ctx).Model(&model.Follow{}).Where("follower_id = ?", userID).Count(&count).Error
		return count, err
	})
}

const summaryColumns = "u.id, u.name, u.headline, u.avatar"

func (r *RelationshipRepository) ListFollowers(ctx context.Context, userID string, limit, offset int) ([]model.UserSummary, int64, error) {
	q := r.db(ctx).Table("follows AS f").
		Joins("JOIN users AS u ON u.id = f.follower_id").
		Where("f.following_id = ?", userID)
	return paginate[model.UserSummary](q, summaryColumns, keysetOrder("f.created_at", "u.id"), limit, offset)
}

func (r *RelationshipRepository) ListFollowing(ctx context.Context, userID string, limit, offset int) ([]model.UserSummary, int64, error) {
	q := r.db(ctx).Table("follows AS f").
		Joins("JOIN users AS u ON u.id = f.following_id").
		Where("f.follower_id = ?", userID)
	return paginate[model.UserSummary](q, summaryColumns, keysetOrder("f.created_at", "u.id"), limit, offset)
}

// ---------- blocks ----------

func (r *RelationshipRepository) UpsertBlock(ctx context.Context, blockerID, blockedID string, at time.Time) (bool, error) {
	res := r.db(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model.Block{
		BlockerID: blockerID,
		BlockedID: blockedID,
		CreatedAt: at,
	})
	return res.RowsAffected > 0, res.Error
}

func (r *RelationshipRepository) DeleteBlock(ctx context.Context, blockerID, blockedID string) (bool, error) {
	res := r.db(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&model.Block{})
	return res.RowsAffected > 0, res.Error
}

func (r *RelationshipRepository) BlockExistsEither(ctx context.Context, userA, userB string) (bool, error) {
	var count int64
	err := r.db(ctx).Model(&model.Block{}).
		Where(pairCondition("blocker_id", "blocked_id"), userA, userB, userB, userA).
		Count(&count).Error
	return count > 0, err
}

func (r *RelationshipRepository) ListBlocked(ctx context.Context, blockerID string, limit, offset int) ([]model.UserSummary, int64, error) {
	q := r.db(ctx).Table("blocks AS b").
		Joins("JOIN users AS u ON u.id = b.blocked_id").
		Where("b.blocker_id = ?", blockerID)
	return paginate[model.UserSummary](q, summaryColumns, keysetOrder("b.created_at", "u.id"), limit, offset)
}

// ---------- follow count cache ----------

func followersKey(userID string) string { return "relgraph:follow:followers:" + userID }
func followingKey(userID string) string { return "relgraph:follow:following:" + userID }

func (r *RelationshipRepository) cachedCount(ctx context.Context, key string, load func() (int64, error)) (int64, error) {
	if r.Redis == nil {
		return load()
	}

	cached, err := r.Redis.Get(ctx, key).Result()
	if err == nil {
		if n, convErr := strconv.ParseInt(cached, 10, 64); convErr == nil {
			return n, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logger.Log.Warn("Follow count cache read failed", zap.String("key", key), zap.Error(err))
	}

	// 缓存未命中，回源数据库
	n, err := load()
	if err != nil {
		return 0, err
	}
	if err := r.Redis.Set(ctx, key, n, followCountTTL).Err(); err != nil {
		logger.Log.Warn("Follow count cache write failed", zap.String("key", key), zap.Error(err))
	}
	return n, nil
}

func (r *RelationshipRepository) invalidateFollowCounts(ctx context.Context, followerID, followingID string) {
	if r.Redis == nil {
		return
	}
	if err := r.Redis.Del(ctx, followingKey(followerID), followersKey(followingID)).Err(); err != nil {
		logger.Log.Warn("Follow count cache invalidation failed",
			zap.String("follower_id", followerID), zap.String("following_id", followingID), zap.Error(err))
	}
}
