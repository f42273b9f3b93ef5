// Package privacy 关系与隐私判定，只读不写
package privacy

import (
	"context"

	"kama_realtime/internal/dao/mysql/repository"
	"kama_realtime/internal/model"
	"kama_realtime/pkg/errorx"
)

// Reason 拒绝原因，允许时为空
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonBlocked             Reason = "blocked"
	ReasonNotInvitableToGroup Reason = "not_invitable_to_group"
	ReasonNotAddableFromGroup Reason = "not_addable_from_group"
)

// privacyGate 隐私判定实现
type privacyGate struct {
	repos *repository.Repositories
}

// NewPrivacyGate 构造函数
func NewPrivacyGate(repos *repository.Repositories) *privacyGate {
	return &privacyGate{repos: repos}
}

// IsBlocked 双方任一方在共同私聊的 Contact 上拉黑对方即为 true
// 两人之间没有私聊时不存在拉黑关系
func (g *privacyGate) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	if a == "" || b == "" || a == b {
		return false, nil
	}
	conv, err := g.repos.Conversation.FindPrivateBetween(ctx, a, b)
	if err != nil {
		if errorx.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return g.blockedOn(ctx, conv.Mark, a, b)
}

// IsBlockedIn 已知私聊 mark 时直接检查，省一次会话查询
func (g *privacyGate) IsBlockedIn(ctx context.Context, mark, a, b string) (bool, error) {
	return g.blockedOn(ctx, mark, a, b)
}

func (g *privacyGate) blockedOn(ctx context.Context, mark string, users ...string) (bool, error) {
	for _, uid := range users {
		contact, err := g.repos.Contact.FindByUserAndMark(ctx, uid, mark)
		if err != nil {
			if errorx.IsNotFound(err) {
				continue
			}
			return false, err
		}
		if contact.Blocked {
			return true, nil
		}
	}
	return false, nil
}

// CanRequest 判断 requester 能否向 target 发起请求
// isGroupInvite 为 true 表示拉 target 入群，否则表示从群内发起添加/私聊
func (g *privacyGate) CanRequest(ctx context.Context, target, requester string, isGroupInvite bool) (bool, Reason, error) {
	blocked, err := g.IsBlocked(ctx, target, requester)
	if err != nil {
		return false, ReasonNone, err
	}
	if blocked {
		return false, ReasonBlocked, nil
	}

	settings, err := g.repos.Privacy.FindByUserId(ctx, target)
	if err != nil {
		if !errorx.IsNotFound(err) {
			return false, ReasonNone, err
		}
		settings = model.DefaultPrivacySettings(target)
	}
	if isGroupInvite {
		if !settings.IsInvitableToGroup {
			return false, ReasonNotInvitableToGroup, nil
		}
		return true, ReasonNone, nil
	}
	if !settings.IsAddableFromGroup {
		return false, ReasonNotAddableFromGroup, nil
	}
	return true, ReasonNone, nil
}
