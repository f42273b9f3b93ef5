package mysqltest

import (
	"context"
	"testing"

	"kama_realtime/internal/dao/mysql/repository"
	"kama_realtime/internal/model"
)

// SeedUser 创建一个可登录用户
func SeedUser(t testing.TB, repos *repository.Repositories, uuid, telephone, password string) *model.UserInfo {
	t.Helper()
	u := &model.UserInfo{
		Uuid:        uuid,
		Nickname:    uuid,
		Telephone:   telephone,
		RawPassword: password,
		Status:      model.UserStatusOffline,
	}
	if err := repos.User.Create(context.Background(), u); err != nil {
		t.Fatalf("seed user %s: %v", uuid, err)
	}
	return u
}

// SeedPrivate 创建私聊及双方的 Contact
func SeedPrivate(t testing.TB, repos *repository.Repositories, mark, a, b string) *model.Conversation {
	t.Helper()
	ctx := context.Background()
	conv := model.NewPrivateConversation(mark, a, b, false)
	if err := repos.Conversation.Create(ctx, conv); err != nil {
		t.Fatalf("seed private %s: %v", mark, err)
	}
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		if err := repos.Contact.EnsureExists(ctx, &model.Contact{UserId: pair[0], ConversationMark: mark, PeerId: pair[1]}); err != nil {
			t.Fatalf("seed contact: %v", err)
		}
	}
	return conv
}

// SeedGroup 创建群聊，owner 为群主，members 为普通成员，并为所有人建立 Contact
func SeedGroup(t testing.TB, repos *repository.Repositories, mark, owner string, members ...string) *model.Conversation {
	t.Helper()
	ctx := context.Background()
	conv := model.NewGroupConversation(mark, owner, mark)
	if err := repos.Conversation.Create(ctx, conv); err != nil {
		t.Fatalf("seed group %s: %v", mark, err)
	}
	add := func(uid string, role model.MemberRole) {
		if err := repos.GroupMember.Create(ctx, &model.GroupMember{GroupMark: mark, UserId: uid, Role: role}); err != nil {
			t.Fatalf("seed member %s: %v", uid, err)
		}
		if err := repos.Contact.EnsureExists(ctx, &model.Contact{UserId: uid, ConversationMark: mark, PeerId: mark}); err != nil {
			t.Fatalf("seed contact: %v", err)
		}
	}
	add(owner, model.RoleOwner)
	for _, m := range members {
		add(m, model.RoleMember)
	}
	return conv
}
