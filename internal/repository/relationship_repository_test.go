package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"relgraph_backend/internal/model"
	"relgraph_backend/internal/service"
	"relgraph_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	dbOnce   sync.Once
	sharedDB *gorm.DB
	dbErr    error
)

// testDB 懒启动一个 MySQL 容器，整个包共享
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	dbOnce.Do(func() {
		ctx := context.Background()
		ctr, err := tcmysql.Run(ctx, "mysql:8.0.36",
			tcmysql.WithDatabase("relgraph"),
			tcmysql.WithUsername("relgraph"),
			tcmysql.WithPassword("relgraph"),
		)
		if err != nil {
			dbErr = err
			return
		}
		dsn, err := ctr.ConnectionString(ctx, "parseTime=true", "loc=UTC", "charset=utf8mb4")
		if err != nil {
			dbErr = err
			return
		}
		db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
			Logger:  logger.Default.LogMode(logger.Silent),
			NowFunc: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		})
		if err != nil {
			dbErr = err
			return
		}
		dbErr = db.AutoMigrate(&model.User{}, &model.Connection{}, &model.Follow{}, &model.Block{}, &model.Report{})
		sharedDB = db
	})
	require.NoError(t, dbErr)

	for _, table := range []string{"connections", "follows", "blocks", "reports", "users"} {
		require.NoError(t, sharedDB.Exec("DELETE FROM "+table).Error)
	}
	return sharedDB
}

func seedUsers(t *testing.T, db *gorm.DB, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		u := &model.User{Name: fmt.Sprintf("user %d", i), Email: fmt.Sprintf("user%d@example.com", i)}
		require.NoError(t, NewUserRepository(db).Create(context.Background(), u))
		ids = append(ids, u.ID)
	}
	return ids
}

func ms(t time.Time) time.Time { return t.UTC().Truncate(time.Millisecond) }

func newPending(sender, receiver string, at time.Time) *model.Connection {
	return &model.Connection{
		ID:         model.GenerateUUID(),
		SenderID:   sender,
		ReceiverID: receiver,
		Status:     model.ConnectionPending,
		CreatedAt:  at,
		ExpiresAt:  at.Add(90 * 24 * time.Hour),
	}
}

func TestRelationshipRepository_ConditionalUpdate(t *testing.T) {
	db := testDB(t)
	repo := NewRelationshipRepository(db, nil)
	ctx := context.Background()
	users := seedUsers(t, db, 2)
	now := ms(time.Now())

	conn := newPending(users[0], users[1], now)
	require.NoError(t, repo.CreateConnection(ctx, conn))

	affected, err := repo.ConditionalUpdateConnectionStatus(ctx, conn.ID, model.ConnectionPending, model.ConnectionAccepted,
		service.ConnectionUpdate{RespondedAt: now})
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	affected, err = repo.ConditionalUpdateConnectionStatus(ctx, conn.ID, model.ConnectionPending, model.ConnectionRejected,
		service.ConnectionUpdate{RespondedAt: now})
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)

	got, err := repo.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionAccepted, got.Status)
	require.NotNil(t, got.RespondedAt)
	assert.True(t, got.RespondedAt.Equal(now))

	missing, err := repo.GetConnection(ctx, model.GenerateUUID())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRelationshipRepository_ConcurrentSendsSerializeOnUserLocks(t *testing.T) {
	db := testDB(t)
	repo := NewRelationshipRepository(db, nil)
	svc := service.NewConnectionService(repo, NewUserRepository(db), nil, service.DefaultPolicy())
	ctx := context.Background()
	users := seedUsers(t, db, 2)

	const workers = 6
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := users[0], users[1]
			if i%2 == 1 {
				from, to = to, from
			}
			_, errs[i] = svc.SendRequest(ctx, from, to, nil)
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, util.ErrConnectionExists)
	}
	assert.Equal(t, 1, created)

	var rows int64
	require.NoError(t, db.Model(&model.Connection{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestRelationshipRepository_ActiveAndCooldown(t *testing.T) {
	db := testDB(t)
	repo := NewRelationshipRepository(db, nil)
	ctx := context.Background()
	users := seedUsers(t, db, 2)
	now := ms(time.Now())

	conn := newPending(users[0], users[1], now)
	require.NoError(t, repo.CreateConnection(ctx, conn))

	active, err := repo.FindActiveConnection(ctx, users[1], users[0])
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, conn.ID, active.ID)

	cooldown := now.Add(time.Hour)
	_, err = repo.ConditionalUpdateConnectionStatus(ctx, conn.ID, model.ConnectionPending, model.ConnectionRejected,
		service.ConnectionUpdate{RespondedAt: now, CooldownUntil: &cooldown})
	require.NoError(t, err)

	active, err = repo.FindActiveConnection(ctx, users[0], users[1])
	require.NoError(t, err)
	assert.Nil(t, active)

	rejected, err := repo.FindRejectedWithinCooldown(ctx, users[0], users[1], now)
	require.NoError(t, err)
	assert.NotNil(t, rejected)

	rejected, err = repo.FindRejectedWithinCooldown(ctx, users[0], users[1], cooldown)
	require.NoError(t, err)
	assert.Nil(t, rejected)

	rejected, err = repo.FindRejectedWithinCooldown(ctx, users[1], users[0], now)
	require.NoError(t, err)
	assert.Nil(t, rejected)
}

func TestRelationshipRepository_KeysetPaging(t *testing.T) {
	db := testDB(t)
	repo := NewRelationshipRepository(db, nil)
	ctx := context.Background()
	users := seedUsers(t, db, 6)
	me := users[0]
	same := ms(time.Now())

	for _, peer := range users[1:] {
		conn := newPending(me, peer, same)
		require.NoError(t, repo.CreateConnection(ctx, conn))
		_, err := repo.ConditionalUpdateConnectionStatus(ctx, conn.ID, model.ConnectionPending, model.ConnectionAccepted,
			service.ConnectionUpdate{RespondedAt: same})
		require.NoError(t, err)
	}

	var after *util.Cursor
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		rows, err := repo.ListAcceptedConnections(ctx, me, after, 2)
		require.NoError(t, err)
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			assert.False(t, seen[row.ConnectionID])
			seen[row.ConnectionID] = true
			assert.NotEqual(t, me, row.User.ID)
			assert.True(t, row.ConnectedAt.Equal(same))
		}
		last := rows[len(rows)-1]
		after, err = util.DecodeCursor(util.EncodeCursor(last.ConnectedAt, last.ConnectionID))
		require.NoError(t, err)
	}
	assert.Len(t, seen, 5)
}

func TestRelationshipRepository_PendingLists(t *testing.T) {
	db := testDB(t)
	repo := NewRelationshipRepository(db, nil)
	ctx := context.Background()
	users := seedUsers(t, db, 3)
	now := ms(time.Now())

	msg := "hello"
	in := newPending(users[1], users[0], now)
	in.Message = &msg
	require.NoError(t, repo.CreateConnection(ctx, in))
	require.NoError(t, repo.CreateConnection(ctx, newPending(users[0], users[2], now)))

	incoming, err := repo.ListPendingIncoming(ctx, users[0])
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, users[1], incoming[0].User.ID)
	require.NotNil(t, incoming[0].Message)
	assert.Equal(t, "hello", *incoming[0].Message)

	outgoing, err := repo.ListPendingOutgoing(ctx, users[0])
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, users[2], outgoing[0].User.ID)

	count, err := repo.CountPendingOutgoing(ctx, users[0])
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRelationshipRepository_UpsertFollowIsAtomic(t *testing.T) {
	db := testDB(t)
	repo := NewRelationshipRepository(db, nil)
	ctx := context.Background()
	users := seedUsers(t, db, 2)

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.UpsertFollow(ctx, users[0], users[1], ms(time.Now()))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, inserted)

	followers, err := repo.CountFollowers(ctx, users[1])
	require.NoError(t, err)
	assert.Equal(t, int64(1), followers)

	list, total, err := repo.ListFollowing(ctx, users[0], 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, users[1], list[0].ID)

	removed, err := repo.DeleteFollow(ctx, users[0], users[1])
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.DeleteFollow(ctx, users[0], users[1])
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRelationshipRepository_BlockTeardownInTx(t *testing.T) {
	db := testDB(t)
	repo := NewRelationshipRepository(db, nil)
	ctx := context.Background()
	users := seedUsers(t, db, 3)
	now := ms(time.Now())

	require.NoError(t, repo.CreateConnection(ctx, newPending(users[0], users[1], now)))
	require.NoError(t, repo.CreateConnection(ctx, newPending(users[0], users[2], now)))

	err := repo.WithinTx(ctx, func(tx service.RelationshipStore) error {
		if _, err := tx.UpsertBlock(ctx, users[1], users[0], now); err != nil {
			return err
		}
		if _, err := tx.DeleteConnectionsBetween(ctx, users[0], users[1]); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.Error(t, err)

	blocked, err := repo.BlockExistsEither(ctx, users[0], users[1])
	require.NoError(t, err)
	assert.False(t, blocked)
	count, err := repo.CountPendingOutgoing(ctx, users[0])
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	err = repo.WithinTx(ctx, func(tx service.RelationshipStore) error {
		ok, err := tx.UpsertBlock(ctx, users[1], users[0], now)
		if err != nil {
			return err
		}
		assert.True(t, ok)
		n, err := tx.DeleteConnectionsBetween(ctx, users[0], users[1])
		assert.Equal(t, int64(1), n)
		return err
	})
	require.NoError(t, err)

	blocked, err = repo.BlockExistsEither(ctx, users[0], users[1])
	require.NoError(t, err)
	assert.True(t, blocked)

	again, err := repo.UpsertBlock(ctx, users[1], users[0], now)
	require.NoError(t, err)
	assert.False(t, again)

	list, total, err := repo.ListBlocked(ctx, users[1], 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, users[0], list[0].ID)
}

func TestUserAndReportRepositories(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	users := seedUsers(t, db, 2)
	userRepo := NewUserRepository(db)

	ok, err := userRepo.UserExists(ctx, users[0])
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, db.Model(&model.User{}).Where("id = ?", users[1]).Update("disabled", true).Error)
	ok, err = userRepo.UserExists(ctx, users[1])
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, userRepo.UpdateLastSeen(users[0]))
	u, err := userRepo.FindByID(ctx, users[0])
	require.NoError(t, err)
	require.NotNil(t, u.LastSeen)

	reports := NewReportRepository(db)
	require.NoError(t, reports.CreateReport(ctx, &model.Report{
		ReporterID: users[0], TargetID: users[1], Reason: "spam", Status: model.ReportOpen,
	}))
	open, total, err := reports.ListByStatus(ctx, model.ReportOpen, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, open, 1)
	assert.Equal(t, "spam", open[0].Reason)
}
