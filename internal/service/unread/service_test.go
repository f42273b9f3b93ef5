package unread

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"kama_realtime/internal/dao/mysql/mysqltest"
	"kama_realtime/internal/dao/mysql/repository"
	"kama_realtime/internal/dto/respond"
	"kama_realtime/internal/gateway/websocket"
	"kama_realtime/internal/model"
	"kama_realtime/pkg/errorx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type push struct {
	userId  string
	event   string
	payload any
}

type fakePusher struct {
	mu     sync.Mutex
	pushes []push
}

func (f *fakePusher) PushToUser(_ context.Context, userId, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, push{userId, event, payload})
}

func (f *fakePusher) byUser() map[string]push {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]push)
	for _, p := range f.pushes {
		out[p.userId] = p
	}
	return out
}

func persist(t *testing.T, svc *unreadService, repos *repository.Repositories, conv *model.Conversation, sender string, uuid int64) []string {
	t.Helper()
	var participants []string
	msg := &model.Message{Uuid: uuid, ConversationMark: conv.Mark, SenderId: sender, Content: "hello", CapturedAt: time.Now()}
	err := repos.Transaction(context.Background(), func(tx *repository.Repositories) error {
		if err := tx.Message.Create(context.Background(), msg); err != nil {
			return err
		}
		var err error
		participants, err = svc.OnMessagePersisted(context.Background(), tx, conv, msg)
		return err
	})
	require.NoError(t, err)
	return participants
}

func unreadOf(t *testing.T, repos *repository.Repositories, userId, mark string) int64 {
	t.Helper()
	c, err := repos.Contact.FindByUserAndMark(context.Background(), userId, mark)
	require.NoError(t, err)
	return c.LastUnreadCount
}

func TestGroupMessageIncrementsEveryoneButSender(t *testing.T) {
	repos := mysqltest.NewRepositories(t)
	conv := mysqltest.SeedGroup(t, repos, "G1", "A", "B", "C")
	svc := NewUnreadService(repos, &fakePusher{}, 2)

	participants := persist(t, svc, repos, conv, "A", 1)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, participants)
	assert.EqualValues(t, 0, unreadOf(t, repos, "A", "G1"))
	assert.EqualValues(t, 1, unreadOf(t, repos, "B", "G1"))
	assert.EqualValues(t, 1, unreadOf(t, repos, "C", "G1"))

	c, err := repos.Contact.FindByUserAndMark(context.Background(), "B", "G1")
	require.NoError(t, err)
	assert.Equal(t, "hello", c.LastMessagePreview)
	assert.EqualValues(t, 1, c.LastMessageUuid)
}

func TestPrivateMessageCreatesMissingContacts(t *testing.T) {
	ctx := context.Background()
	repos := mysqltest.NewRepositories(t)
	conv := model.NewPrivateConversation("P1", "A", "B", true)
	require.NoError(t, repos.Conversation.Create(ctx, conv))
	svc := NewUnreadService(repos, &fakePusher{}, 2)

	persist(t, svc, repos, conv, "A", 1)
	persist(t, svc, repos, conv, "A", 2)

	b, err := repos.Contact.FindByUserAndMark(ctx, "B", "P1")
	require.NoError(t, err)
	assert.Equal(t, "A", b.PeerId)
	assert.EqualValues(t, 2, b.LastUnreadCount)
	assert.EqualValues(t, 0, unreadOf(t, repos, "A", "P1"))
}

func TestMarkAsReadResetsAndPushesTotal(t *testing.T) {
	ctx := context.Background()
	repos := mysqltest.NewRepositories(t)
	g1 := mysqltest.SeedGroup(t, repos, "G1", "A", "B")
	g2 := mysqltest.SeedGroup(t, repos, "G2", "A", "B")
	pusher := &fakePusher{}
	svc := NewUnreadService(repos, pusher, 2)

	persist(t, svc, repos, g1, "A", 1)
	persist(t, svc, repos, g1, "A", 2)
	persist(t, svc, repos, g2, "A", 3)

	update, err := svc.MarkAsRead(ctx, "B", "G1")
	require.NoError(t, err)
	assert.Equal(t, &respond.UnreadCountUpdate{Mark: "G1", Count: 0, Total: 1}, update)
	assert.EqualValues(t, 0, unreadOf(t, repos, "B", "G1"))

	p := pusher.byUser()["B"]
	assert.Equal(t, websocket.EventUnreadCountUpdate, p.event)
	assert.Equal(t, update, p.payload)

	// 重复清零结果不变
	update, err = svc.MarkAsRead(ctx, "B", "G1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, update.Total)

	_, err = svc.MarkAsRead(ctx, "Z", "G1")
	assert.True(t, errorx.IsNotFound(err))
}

func TestConcurrentIncrementsAreNotLost(t *testing.T) {
	repos := mysqltest.NewRepositories(t)
	conv := mysqltest.SeedGroup(t, repos, "G1", "A", "B")
	svc := NewUnreadService(repos, &fakePusher{}, 2)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			persist(t, svc, repos, conv, "A", id)
		}(int64(i))
	}
	wg.Wait()
	assert.EqualValues(t, 20, unreadOf(t, repos, "B", "G1"))
}

func TestPublishUpdatesAndSnapshot(t *testing.T) {
	ctx := context.Background()
	repos := mysqltest.NewRepositories(t)
	conv := mysqltest.SeedGroup(t, repos, "G1", "A", "B")
	mysqltest.SeedPrivate(t, repos, "P1", "B", "C")
	pusher := &fakePusher{}
	svc := NewUnreadService(repos, pusher, 2)

	participants := persist(t, svc, repos, conv, "A", 7)
	persist(t, svc, repos, &model.Conversation{Mark: "P1", Kind: model.KindPrivate, InitiatorId: "B", ReceiverId: "C"}, "C", 8)

	msg := &model.Message{Uuid: 7, ConversationMark: "G1", SenderId: "A", Content: "hello"}
	svc.PublishUpdates(ctx, participants, msg)

	pushes := pusher.byUser()
	require.Contains(t, pushes, "A")
	require.Contains(t, pushes, "B")
	forB := pushes["B"].payload.(*respond.ContactAndMessageUpdate)
	assert.Equal(t, websocket.EventContactAndMessageUpdate, pushes["B"].event)
	assert.EqualValues(t, 1, forB.Contact.UnreadCount)
	assert.EqualValues(t, 2, forB.Total)
	assert.EqualValues(t, 7, forB.Message.Uuid)
	forA := pushes["A"].payload.(*respond.ContactAndMessageUpdate)
	assert.EqualValues(t, 0, forA.Contact.UnreadCount)

	snap, err := svc.Snapshot(ctx, "B")
	require.NoError(t, err)
	assert.EqualValues(t, 2, snap.Total)
	assert.Len(t, snap.Contacts, 2)
}

func TestPreviewTruncatesAndHidesCancelled(t *testing.T) {
	long := &model.Message{Content: strings.Repeat("好", 100)}
	assert.Equal(t, previewMaxRunes, len([]rune(Preview(long))))

	cancelled := &model.Message{Content: "secret", Cancelled: true}
	assert.Empty(t, Preview(cancelled))
}
