package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"relgraph_backend/internal/model"
	"relgraph_backend/internal/util"
)

// memStore 测试用的内存实现，行为与 gorm 仓库保持一致
type memStore struct {
	mu          sync.Mutex
	users       map[string]model.User
	connections map[string]model.Connection
	follows     map[[2]string]time.Time
	blocks      map[[2]string]time.Time
	reports     []model.Report

	// failOn 非空时，对应方法返回 errInjected
	failOn string
	// activeDelay 模拟查询延迟，放大并发窗口
	activeDelay time.Duration

	// txMu 让事务串行执行，等价于数据库里对用户行加锁
	txMu        sync.Mutex
	lockedPairs [][2]string
}

var errInjected = errors.New("injected failure")

func newMemStore(userIDs ...string) *memStore {
	s := &memStore{
		users:       map[string]model.User{},
		connections: map[string]model.Connection{},
		follows:     map[[2]string]time.Time{},
		blocks:      map[[2]string]time.Time{},
	}
	for _, id := range userIDs {
		s.addUser(id)
	}
	return s
}

func (s *memStore) addUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = model.User{UUIDBase: model.UUIDBase{ID: id}, Name: "user-" + id}
}

func (s *memStore) fail(op string) error {
	if s.failOn == op {
		return errInjected
	}
	return nil
}

func (s *memStore) summary(id string) model.UserSummary {
	u := s.users[id]
	return model.UserSummary{ID: u.ID, Name: u.Name, Headline: u.Headline, Avatar: u.Avatar}
}

func otherParty(c model.Connection, userID string) string {
	if c.SenderID == userID {
		return c.ReceiverID
	}
	return c.SenderID
}

// afterCursor 与仓库的键集谓词一致：(t < cursor.t) OR (t = cursor.t AND id < cursor.id)
func afterCursor(after *util.Cursor, t time.Time, id string) bool {
	if after == nil {
		return true
	}
	if t.Before(after.CreatedAt) {
		return true
	}
	return t.Equal(after.CreatedAt) && id < after.ID
}

func (s *memStore) WithinTx(ctx context.Context, fn func(tx RelationshipStore) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	connections := make(map[string]model.Connection, len(s.connections))
	for k, v := range s.connections {
		connections[k] = v
	}
	blocks := make(map[[2]string]time.Time, len(s.blocks))
	for k, v := range s.blocks {
		blocks[k] = v
	}
	follows := make(map[[2]string]time.Time, len(s.follows))
	for k, v := range s.follows {
		follows[k] = v
	}
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.connections, s.blocks, s.follows = connections, blocks, follows
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) LockUserPair(ctx context.Context, a, b string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("LockUserPair"); err != nil {
		return err
	}
	s.lockedPairs = append(s.lockedPairs, [2]string{a, b})
	return nil
}

func (s *memStore) UserExists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UserExists"); err != nil {
		return false, err
	}
	_, ok := s.users[id]
	return ok, nil
}

func (s *memStore) CreateReport(ctx context.Context, report *model.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if report.ID == "" {
		report.ID = model.GenerateUUID()
	}
	s.reports = append(s.reports, *report)
	return nil
}

func (s *memStore) GetConnection(ctx context.Context, id string) (*model.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func between(c model.Connection, a, b string) bool {
	return (c.SenderID == a && c.ReceiverID == b) || (c.SenderID == b && c.ReceiverID == a)
}

func (s *memStore) FindActiveConnection(ctx context.Context, a, b string) (*model.Connection, error) {
	if s.activeDelay > 0 {
		time.Sleep(s.activeDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.connections {
		if between(c, a, b) && (c.Status == model.ConnectionPending || c.Status == model.ConnectionAccepted) {
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindRejectedWithinCooldown(ctx context.Context, senderID, receiverID string, now time.Time) (*model.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.connections {
		if c.SenderID == senderID && c.ReceiverID == receiverID && c.Status == model.ConnectionRejected &&
			c.CooldownUntil != nil && c.CooldownUntil.After(now) {
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memStore) CountPendingOutgoing(ctx context.Context, senderID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.connections {
		if c.SenderID == senderID && c.Status == model.ConnectionPending {
			n++
		}
	}
	return n, nil
}

func (s *memStore) CreateConnection(ctx context.Context, conn *model.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateConnection"); err != nil {
		return err
	}
	s.connections[conn.ID] = *conn
	return nil
}

func (s *memStore) ConditionalUpdateConnectionStatus(ctx context.Context, id string, expected, next model.ConnectionStatus, update ConnectionUpdate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok || c.Status != expected {
		return 0, nil
	}
	respondedAt := update.RespondedAt
	c.Status = next
	c.RespondedAt = &respondedAt
	c.CooldownUntil = update.CooldownUntil
	s.connections[id] = c
	return 1, nil
}

func (s *memStore) DeleteConnectionsBetween(ctx context.Context, a, b string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteConnectionsBetween"); err != nil {
		return 0, err
	}
	var n int64
	for id, c := range s.connections {
		if between(c, a, b) {
			delete(s.connections, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) ListAcceptedConnections(ctx context.Context, userID string, after *util.Cursor, limit int) ([]model.ConnectionPeer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []model.ConnectionPeer
	for _, c := range s.connections {
		if c.Status != model.ConnectionAccepted || (c.SenderID != userID && c.ReceiverID != userID) {
			continue
		}
		if !afterCursor(after, *c.RespondedAt, c.ID) {
			continue
		}
		rows = append(rows, model.ConnectionPeer{
			ConnectionID: c.ID,
			ConnectedAt:  *c.RespondedAt,
			User:         s.summary(otherParty(c, userID)),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].ConnectedAt.Equal(rows[j].ConnectedAt) {
			return rows[i].ConnectedAt.After(rows[j].ConnectedAt)
		}
		return rows[i].ConnectionID > rows[j].ConnectionID
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *memStore) listPending(match func(model.Connection) bool, other func(model.Connection) string) []model.PendingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []model.PendingRequest
	for _, c := range s.connections {
		if c.Status != model.ConnectionPending || !match(c) {
			continue
		}
		rows = append(rows, model.PendingRequest{
			ConnectionID: c.ID,
			Message:      c.Message,
			CreatedAt:    c.CreatedAt,
			ExpiresAt:    c.ExpiresAt,
			User:         s.summary(other(c)),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return rows
}

func (s *memStore) ListPendingIncoming(ctx context.Context, userID string) ([]model.PendingRequest, error) {
	return s.listPending(
		func(c model.Connection) bool { return c.ReceiverID == userID },
		func(c model.Connection) string { return c.SenderID },
	), nil
}

func (s *memStore) ListPendingOutgoing(ctx context.Context, userID string) ([]model.PendingRequest, error) {
	return s.listPending(
		func(c model.Connection) bool { return c.SenderID == userID },
		func(c model.Connection) string { return c.ReceiverID },
	), nil
}

func (s *memStore) UpsertFollow(ctx context.Context, followerID, followingID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{followerID, followingID}
	if _, ok := s.follows[key]; ok {
		return false, nil
	}
	s.follows[key] = at
	return true, nil
}

func (s *memStore) DeleteFollow(ctx context.Context, followerID, followingID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{followerID, followingID}
	_, ok := s.follows[key]
	delete(s.follows, key)
	return ok, nil
}

func (s *memStore) FollowExists(ctx context.Context, followerID, followingID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.follows[[2]string{followerID, followingID}]
	return ok, nil
}

func (s *memStore) CountFollowers(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.follows {
		if k[1] == userID {
			n++
		}
	}
	return n, nil
}

func (s *memStore) CountFollowing(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.follows {
		if k[0] == userID {
			n++
		}
	}
	return n, nil
}

// pageEdges 按创建时间倒序做 offset 分页
func (s *memStore) pageEdges(edges map[[2]string]time.Time, match func([2]string) (string, bool), limit, offset int) ([]model.UserSummary, int64) {
	type edge struct {
		id string
		at time.Time
	}
	var all []edge
	for k, at := range edges {
		if id, ok := match(k); ok {
			all = append(all, edge{id, at})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].at.Equal(all[j].at) {
			return all[i].at.After(all[j].at)
		}
		return all[i].id > all[j].id
	})
	total := int64(len(all))
	if offset >= len(all) {
		return []model.UserSummary{}, total
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]model.UserSummary, 0, len(all))
	for _, e := range all {
		out = append(out, s.summary(e.id))
	}
	return out, total
}

func (s *memStore) ListFollowers(ctx context.Context, userID string, limit, offset int) ([]model.UserSummary, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, total := s.pageEdges(s.follows, func(k [2]string) (string, bool) { return k[0], k[1] == userID }, limit, offset)
	return items, total, nil
}

func (s *memStore) ListFollowing(ctx context.Context, userID string, limit, offset int) ([]model.UserSummary, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, total := s.pageEdges(s.follows, func(k [2]string) (string, bool) { return k[1], k[0] == userID }, limit, offset)
	return items, total, nil
}

func (s *memStore) UpsertBlock(ctx context.Context, blockerID, blockedID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{blockerID, blockedID}
	if _, ok := s.blocks[key]; ok {
		return false, nil
	}
	s.blocks[key] = at
	return true, nil
}

func (s *memStore) DeleteBlock(ctx context.Context, blockerID, blockedID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{blockerID, blockedID}
	_, ok := s.blocks[key]
	delete(s.blocks, key)
	return ok, nil
}

func (s *memStore) BlockExistsEither(ctx context.Context, a, b string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ab := s.blocks[[2]string{a, b}]
	_, ba := s.blocks[[2]string{b, a}]
	return ab || ba, nil
}

func (s *memStore) ListBlocked(ctx context.Context, blockerID string, limit, offset int) ([]model.UserSummary, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, total := s.pageEdges(s.blocks, func(k [2]string) (string, bool) { return k[1], k[0] == blockerID }, limit, offset)
	return items, total, nil
}

// recordingPublisher 记录已发布的事件类型
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// fakeClock 可前进的测试时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
