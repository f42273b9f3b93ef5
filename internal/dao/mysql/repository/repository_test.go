package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"kama_realtime/internal/dao/mysql/mysqltest"
	"kama_realtime/internal/dao/mysql/repository"
	"kama_realtime/internal/model"
	"kama_realtime/pkg/errorx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceSessionUpsertCAS(t *testing.T) {
	ctx := context.Background()
	repos := mysqltest.NewRepositories(t)
	now := time.Now()

	s := &model.DeviceSession{
		UserId: "U1", DeviceId: "phone", RefreshTokenId: "t1",
		RefreshExpiresAt: now.Add(time.Hour), LastAccessAt: now,
	}
	require.NoError(t, repos.DeviceSession.Upsert(ctx, s, 0))
	assert.EqualValues(t, 1, s.Version)

	// 两个写入者基于同一版本，只有一个成功
	a, err := repos.DeviceSession.FindByUserAndDevice(ctx, "U1", "phone")
	require.NoError(t, err)
	b := *a

	a.RefreshTokenId = "t2"
	require.NoError(t, repos.DeviceSession.Upsert(ctx, a, a.Version))
	assert.EqualValues(t, 2, a.Version)

	b.LastHeartbeatAt = now
	err = repos.DeviceSession.Upsert(ctx, &b, b.Version)
	assert.True(t, errorx.HasCode(err, errorx.CodeVersionConflict))

	got, err := repos.DeviceSession.FindByUserAndDevice(ctx, "U1", "phone")
	require.NoError(t, err)
	assert.Equal(t, "t2", got.RefreshTokenId)
	assert.EqualValues(t, 2, got.Version)
}

func TestDeviceSessionDuplicateInsertConflicts(t *testing.T) {
	ctx := context.Background()
	repos := mysqltest.NewRepositories(t)
	now := time.Now()
	mk := func() *model.DeviceSession {
		return &model.DeviceSession{UserId: "U1", DeviceId: "pad", RefreshTokenId: "x", RefreshExpiresAt: now.Add(time.Hour), LastAccessAt: now}
	}
	require.NoError(t, repos.DeviceSession.Upsert(ctx, mk(), 0))
	err := repos.DeviceSession.Upsert(ctx, mk(), 0)
	assert.True(t, errorx.HasCode(err, errorx.CodeVersionConflict))
}

func TestFindActiveByUserOrdersOldestFirst(t *testing.T) {
	ctx := context.Background()
	repos := mysqltest.NewRepositories(t)
	now := time.Now()
	for i, dev := range []string{"c", "a", "b"} {
		require.NoError(t, repos.DeviceSession.Upsert(ctx, &model.DeviceSession{
			UserId: "U1", DeviceId: dev, RefreshTokenId: dev,
			RefreshExpiresAt: now.Add(time.Hour),
			LastAccessAt:     now.Add(-time.Duration(i) * time.Minute),
		}, 0))
	}
	require.NoError(t, repos.DeviceSession.Upsert(ctx, &model.DeviceSession{
		UserId: "U1", DeviceId: "expired", RefreshTokenId: "e",
		RefreshExpiresAt: now.Add(-time.Hour), LastAccessAt: now.Add(-time.Hour),
	}, 0))

	active, err := repos.DeviceSession.FindActiveByUser(ctx, "U1", now)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{active[0].DeviceId, active[1].DeviceId, active[2].DeviceId})
}

func TestContactUnreadCounters(t *testing.T) {
	ctx := context.Background()
	repos := mysqltest.NewRepositories(t)

	for _, uid := range []string{"U1", "U2", "U3"} {
		require.NoError(t, repos.Contact.EnsureExists(ctx, &model.Contact{UserId: uid, ConversationMark: "G1", PeerId: "G1"}))
	}
	// 重复 ensure 不覆盖已有行
	require.NoError(t, repos.Contact.EnsureExists(ctx, &model.Contact{UserId: "U1", ConversationMark: "G1", PeerId: "G1", Pinned: true}))

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repos.Contact.IncrementUnreadExcept(ctx, "G1", "U1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	u1, err := repos.Contact.FindByUserAndMark(ctx, "U1", "G1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, u1.LastUnreadCount)
	assert.False(t, u1.Pinned)

	u2, err := repos.Contact.FindByUserAndMark(ctx, "U2", "G1")
	require.NoError(t, err)
	assert.EqualValues(t, 10, u2.LastUnreadCount)

	require.NoError(t, repos.Contact.EnsureExists(ctx, &model.Contact{UserId: "U2", ConversationMark: "P1", PeerId: "U1"}))
	_, err = repos.Contact.IncrementUnreadExcept(ctx, "P1", "U1")
	require.NoError(t, err)
	total, err := repos.Contact.SumUnread(ctx, "U2")
	require.NoError(t, err)
	assert.EqualValues(t, 11, total)

	require.NoError(t, repos.Contact.ResetUnread(ctx, "U2", "G1"))
	total, err = repos.Contact.SumUnread(ctx, "U2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	total, err = repos.Contact.SumUnread(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestMessageCancelAndEdit(t *testing.T) {
	ctx := context.Background()
	repos := mysqltest.NewRepositories(t)
	cid := "c-1"
	msg := &model.Message{Uuid: 42, ConversationMark: "P1", SenderId: "U1", ClientMsgId: &cid, Content: "hi", CapturedAt: time.Now()}
	require.NoError(t, repos.Message.Create(ctx, msg))

	found, err := repos.Message.FindByClientMsgId(ctx, "U1", "P1", "c-1")
	require.NoError(t, err)
	assert.EqualValues(t, 42, found.Uuid)

	dup := &model.Message{Uuid: 43, ConversationMark: "P1", SenderId: "U1", ClientMsgId: &cid, CapturedAt: time.Now()}
	assert.True(t, errorx.HasCode(repos.Message.Create(ctx, dup), errorx.CodeVersionConflict))

	// 同一幂等键用在其他会话是另一条消息
	other := &model.Message{Uuid: 44, ConversationMark: "G1", SenderId: "U1", ClientMsgId: &cid, CapturedAt: time.Now()}
	require.NoError(t, repos.Message.Create(ctx, other))
	found, err = repos.Message.FindByClientMsgId(ctx, "U1", "G1", "c-1")
	require.NoError(t, err)
	assert.EqualValues(t, 44, found.Uuid)

	require.NoError(t, repos.Message.UpdateContent(ctx, 42, "hello"))
	require.NoError(t, repos.Message.MarkCancelled(ctx, 42))
	require.NoError(t, repos.Message.MarkCancelled(ctx, 42))

	err = repos.Message.UpdateContent(ctx, 42, "again")
	assert.True(t, errorx.HasCode(err, errorx.CodeForbidden))

	got, err := repos.Message.FindByUuid(ctx, 42)
	require.NoError(t, err)
	assert.True(t, got.Cancelled)
	assert.Equal(t, "hello", got.Content)

	assert.True(t, errorx.IsNotFound(repos.Message.MarkCancelled(ctx, 999)))
}

func TestMessageHistoryPaging(t *testing.T) {
	ctx := context.Background()
	repos := mysqltest.NewRepositories(t)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, repos.Message.Create(ctx, &model.Message{Uuid: i, ConversationMark: "G1", SenderId: "U1", Content: "m", CapturedAt: time.Now()}))
	}
	page, err := repos.Message.FindByConversation(ctx, "G1", 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.EqualValues(t, 5, page[0].Uuid)

	page, err = repos.Message.FindByConversation(ctx, "G1", 4, 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.EqualValues(t, 3, page[0].Uuid)
}

func TestMessageHistoryFollowsCaptureTime(t *testing.T) {
	ctx := context.Background()
	repos := mysqltest.NewRepositories(t)
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	// uuid 与接收时间顺序不一致（多实例时钟偏差）
	captured := map[int64]time.Duration{10: 3 * time.Second, 20: time.Second, 30: 2 * time.Second, 40: 2 * time.Second}
	for uuid, offset := range captured {
		require.NoError(t, repos.Message.Create(ctx, &model.Message{Uuid: uuid, ConversationMark: "G1", SenderId: "U1", Content: "m", CapturedAt: base.Add(offset)}))
	}

	page, err := repos.Message.FindByConversation(ctx, "G1", 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.EqualValues(t, 10, page[0].Uuid)
	assert.EqualValues(t, 40, page[1].Uuid)

	page, err = repos.Message.FindByConversation(ctx, "G1", 40, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.EqualValues(t, 30, page[0].Uuid)
	assert.EqualValues(t, 20, page[1].Uuid)

	page, err = repos.Message.FindByConversation(ctx, "G1", 999, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestContactRefreshPreview(t *testing.T) {
	ctx := context.Background()
	repos := mysqltest.NewRepositories(t)
	for _, uid := range []string{"U1", "U2"} {
		require.NoError(t, repos.Contact.EnsureExists(ctx, &model.Contact{UserId: uid, ConversationMark: "G1", PeerId: "G1"}))
	}
	require.NoError(t, repos.Contact.TouchByMark(ctx, "G1", "secret", 7, time.Now()))

	n, err := repos.Contact.RefreshPreview(ctx, "G1", 7, "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	c, err := repos.Contact.FindByUserAndMark(ctx, "U2", "G1")
	require.NoError(t, err)
	assert.Empty(t, c.LastMessagePreview)

	// 已有更新的消息时不改写
	require.NoError(t, repos.Contact.TouchByMark(ctx, "G1", "newer", 8, time.Now()))
	n, err = repos.Contact.RefreshPreview(ctx, "G1", 7, "stale")
	require.NoError(t, err)
	assert.Zero(t, n)
	c, err = repos.Contact.FindByUserAndMark(ctx, "U2", "G1")
	require.NoError(t, err)
	assert.Equal(t, "newer", c.LastMessagePreview)
}

func TestConversationAndMembers(t *testing.T) {
	ctx := context.Background()
	repos := mysqltest.NewRepositories(t)

	require.NoError(t, repos.Conversation.Create(ctx, model.NewPrivateConversation("P1", "U1", "U2", false)))
	conv, err := repos.Conversation.FindPrivateBetween(ctx, "U2", "U1")
	require.NoError(t, err)
	assert.Equal(t, "P1", conv.Mark)
	_, err = repos.Conversation.FindPrivateBetween(ctx, "U1", "U3")
	assert.True(t, errorx.IsNotFound(err))

	require.NoError(t, repos.Conversation.Create(ctx, model.NewGroupConversation("G1", "U1", "team")))
	require.NoError(t, repos.Conversation.UpdateGroupSettings(ctx, "G1", true, false, true))
	g, err := repos.Conversation.FindByMark(ctx, "G1")
	require.NoError(t, err)
	assert.True(t, g.AllSilent)
	assert.True(t, g.ForbidPrivateChat)
	assert.True(t, errorx.IsNotFound(repos.Conversation.UpdateGroupSettings(ctx, "P1", true, true, true)))

	require.NoError(t, repos.GroupMember.Create(ctx, &model.GroupMember{GroupMark: "G1", UserId: "U1", Role: model.RoleOwner}))
	require.NoError(t, repos.GroupMember.Create(ctx, &model.GroupMember{GroupMark: "G1", UserId: "U2"}))
	ids, err := repos.GroupMember.FindMemberIds(ctx, "G1")
	require.NoError(t, err)
	assert.Equal(t, []string{"U1", "U2"}, ids)

	until := time.Now().Add(time.Hour)
	require.NoError(t, repos.GroupMember.UpdateMute(ctx, "G1", "U2", &until))
	m, err := repos.GroupMember.FindByGroupAndUser(ctx, "G1", "U2")
	require.NoError(t, err)
	assert.True(t, m.IsMutedAt(time.Now()))

	require.NoError(t, repos.GroupMember.Delete(ctx, "G1", "U2"))
	_, err = repos.GroupMember.FindByGroupAndUser(ctx, "G1", "U2")
	assert.True(t, errorx.IsNotFound(err))
	require.NoError(t, repos.GroupMember.Create(ctx, &model.GroupMember{GroupMark: "G1", UserId: "U2"}))
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	repos := mysqltest.NewRepositories(t)
	err := repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Contact.EnsureExists(ctx, &model.Contact{UserId: "U1", ConversationMark: "P1"}); err != nil {
			return err
		}
		return errorx.ErrServerBusy
	})
	assert.ErrorIs(t, err, errorx.ErrServerBusy)
	_, err = repos.Contact.FindByUserAndMark(ctx, "U1", "P1")
	assert.True(t, errorx.IsNotFound(err))
}

func TestPrivacyUpsert(t *testing.T) {
	ctx := context.Background()
	repos := mysqltest.NewRepositories(t)
	_, err := repos.Privacy.FindByUserId(ctx, "U1")
	assert.True(t, errorx.IsNotFound(err))

	settings := model.DefaultPrivacySettings("U1")
	require.NoError(t, repos.Privacy.Upsert(ctx, settings))
	settings2 := model.DefaultPrivacySettings("U1")
	settings2.IsAddableByAnyone = false
	require.NoError(t, repos.Privacy.Upsert(ctx, settings2))

	got, err := repos.Privacy.FindByUserId(ctx, "U1")
	require.NoError(t, err)
	assert.False(t, got.IsAddableByAnyone)
	assert.True(t, got.IsSearchable)
}
