package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"relgraph_backend/internal/model"
	"relgraph_backend/internal/util"
	"relgraph_backend/pkg/logger"
	"relgraph_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxRequestMessageLength = 500

type ConnectionService struct {
	store  RelationshipStore
	users  UserLookup
	events EventPublisher
	policy atomic.Pointer[Policy]
}

func NewConnectionService(store RelationshipStore, users UserLookup, events EventPublisher, policy Policy) *ConnectionService {
	if events == nil {
		events = NoopPublisher{}
	}
	s := &ConnectionService{store: store, users: users, events: events}
	s.policy.Store(&policy)
	return s
}

// UpdatePolicy 热更新策略参数，已在执行的请求继续使用旧值
func (s *ConnectionService) UpdatePolicy(p Policy) {
	if p.Now == nil {
		p.Now = s.Policy().Now
	}
	s.policy.Store(&p)
}

func (s *ConnectionService) Policy() Policy {
	return *s.policy.Load()
}

type SendRequestResult struct {
	ConnectionID string                 `json:"connectionId"`
	Status       model.ConnectionStatus `json:"status"`
	CreatedAt    time.Time              `json:"createdAt"`
	ExpiresAt    time.Time              `json:"expiresAt"`
}

type PendingLists struct {
	Incoming []model.PendingRequest `json:"incoming"`
	Outgoing []model.PendingRequest `json:"outgoing"`
}

func normalizeMessage(message *string) (*string, error) {
	if message == nil {
		return nil, nil
	}
	m := strings.TrimSpace(*message)
	if m == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(m) > maxRequestMessageLength {
		return nil, util.ValidationError(fmt.Sprintf("message must be at most %d characters", maxRequestMessageLength))
	}
	return &m, nil
}

func (s *ConnectionService) SendRequest(ctx context.Context, senderID, receiverID string, message *string) (result *SendRequestResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectionService.SendRequest",
		attribute.String("sender_id", senderID), attribute.String("receiver_id", receiverID))
	defer func() {
		tracing.EndSpan(span, err)
		observe("connection.send", err)
	}()

	if senderID == receiverID {
		return nil, util.ErrSelfConnection
	}
	msg, err := normalizeMessage(message)
	if err != nil {
		return nil, err
	}

	exists, err := s.users.UserExists(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("lookup receiver: %w", err)
	}
	if !exists {
		return nil, util.ErrUserNotFound
	}

	p := s.Policy()
	now := p.clock()
	conn := &model.Connection{
		ID:         model.GenerateUUID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     model.ConnectionPending,
		Message:    msg,
		CreatedAt:  now,
		ExpiresAt:  now.Add(p.RequestTTL),
	}

	// 锁住双方用户行后再检查和写入，同一对用户的 send/block 串行执行
	err = s.store.WithinTx(ctx, func(tx RelationshipStore) error {
		if err := tx.LockUserPair(ctx, senderID, receiverID); err != nil {
			return fmt.Errorf("lock user pair: %w", err)
		}
		return s.checkAndCreate(ctx, tx, conn, p)
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("connection requested",
		zap.String("connection_id", conn.ID),
		zap.String("sender_id", senderID),
		zap.String("receiver_id", receiverID))
	publish(ctx, s.events, EventConnectionRequested, ConnectionEvent{
		ConnectionID: conn.ID, SenderID: senderID, ReceiverID: receiverID, Status: string(conn.Status),
	})

	return &SendRequestResult{
		ConnectionID: conn.ID,
		Status:       conn.Status,
		CreatedAt:    conn.CreatedAt,
		ExpiresAt:    conn.ExpiresAt,
	}, nil
}

// checkAndCreate 需在持有双方用户锁的事务内调用
func (s *ConnectionService) checkAndCreate(ctx context.Context, tx RelationshipStore, conn *model.Connection, p Policy) error {
	senderID, receiverID := conn.SenderID, conn.ReceiverID

	blocked, err := tx.BlockExistsEither(ctx, senderID, receiverID)
	if err != nil {
		return fmt.Errorf("check block: %w", err)
	}
	if blocked {
		return util.ErrBlocked
	}

	active, err := tx.FindActiveConnection(ctx, senderID, receiverID)
	if err != nil {
		return fmt.Errorf("find active connection: %w", err)
	}
	if active != nil {
		return util.ErrConnectionExists
	}

	rejected, err := tx.FindRejectedWithinCooldown(ctx, senderID, receiverID, conn.CreatedAt)
	if err != nil {
		return fmt.Errorf("find rejected connection: %w", err)
	}
	if rejected != nil {
		return util.ErrCooldownActive
	}

	// 配额是软限制，不同接收方的并发请求可能略微超出
	pending, err := tx.CountPendingOutgoing(ctx, senderID)
	if err != nil {
		return fmt.Errorf("count pending requests: %w", err)
	}
	if pending >= int64(p.PendingQuota) {
		return util.ErrPendingQuotaExceeded
	}

	if err := tx.CreateConnection(ctx, conn); err != nil {
		return fmt.Errorf("create connection: %w", err)
	}
	return nil
}

func (s *ConnectionService) AcceptRequest(ctx context.Context, connectionID, actorID string) (*model.Connection, error) {
	return s.respond(ctx, connectionID, actorID, model.ConnectionAccepted)
}

func (s *ConnectionService) RejectRequest(ctx context.Context, connectionID, actorID string) (*model.Connection, error) {
	return s.respond(ctx, connectionID, actorID, model.ConnectionRejected)
}

func (s *ConnectionService) respond(ctx context.Context, connectionID, actorID string, next model.ConnectionStatus) (conn *model.Connection, err error) {
	op := "connection.accept"
	if next == model.ConnectionRejected {
		op = "connection.reject"
	}
	ctx, span := tracing.StartSpan(ctx, "ConnectionService.Respond",
		attribute.String("connection_id", connectionID), attribute.String("status", string(next)))
	defer func() {
		tracing.EndSpan(span, err)
		observe(op, err)
	}()

	conn, err = s.store.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	if conn == nil {
		return nil, util.ErrConnectionNotFound
	}
	if conn.ReceiverID != actorID {
		return nil, util.ErrNotRecipient
	}
	if conn.Status != model.ConnectionPending {
		return nil, util.ErrConnectionNotPending
	}

	p := s.Policy()
	now := p.clock()

	if next == model.ConnectionAccepted && p.RejectExpired && !now.Before(conn.ExpiresAt) {
		return nil, util.ErrConnectionExpired
	}

	update := ConnectionUpdate{RespondedAt: now}
	if next == model.ConnectionRejected {
		cooldown := now.Add(p.Cooldown)
		update.CooldownUntil = &cooldown
	}

	// 条件更新：并发的另一次响应已经迁移了状态时受影响行数为 0
	affected, err := s.store.ConditionalUpdateConnectionStatus(ctx, connectionID, model.ConnectionPending, next, update)
	if err != nil {
		return nil, fmt.Errorf("update connection status: %w", err)
	}
	if affected == 0 {
		return nil, util.ErrConnectionNotPending
	}

	conn.Status = next
	conn.RespondedAt = &update.RespondedAt
	conn.CooldownUntil = update.CooldownUntil

	logger.Log.Info("connection request answered",
		zap.String("connection_id", conn.ID),
		zap.String("status", string(next)),
		zap.String("actor_id", actorID))

	eventType := EventConnectionAccepted
	if next == model.ConnectionRejected {
		eventType = EventConnectionRejected
	}
	publish(ctx, s.events, eventType, ConnectionEvent{
		ConnectionID: conn.ID, SenderID: conn.SenderID, ReceiverID: conn.ReceiverID, Status: string(next),
	})

	return conn, nil
}

// ListConnections 已建立的关系，按 respondedAt 倒序游标分页
func (s *ConnectionService) ListConnections(ctx context.Context, userID, cursor string, limit int) (util.CursorPage[model.ConnectionPeer], error) {
	after, err := util.DecodeCursor(cursor)
	if err != nil {
		return util.CursorPage[model.ConnectionPeer]{}, err
	}
	limit = util.ClampLimit(limit)

	rows, err := s.store.ListAcceptedConnections(ctx, userID, after, limit+1)
	if err != nil {
		return util.CursorPage[model.ConnectionPeer]{}, fmt.Errorf("list connections: %w", err)
	}

	return util.BuildCursorPage(rows, limit, func(p model.ConnectionPeer) (time.Time, string) {
		return p.ConnectedAt, p.ConnectionID
	}), nil
}

func (s *ConnectionService) ListPending(ctx context.Context, userID string) (*PendingLists, error) {
	incoming, err := s.store.ListPendingIncoming(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list incoming requests: %w", err)
	}
	outgoing, err := s.store.ListPendingOutgoing(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list outgoing requests: %w", err)
	}
	if incoming == nil {
		incoming = []model.PendingRequest{}
	}
	if outgoing == nil {
		outgoing = []model.PendingRequest{}
	}
	return &PendingLists{Incoming: incoming, Outgoing: outgoing}, nil
}
