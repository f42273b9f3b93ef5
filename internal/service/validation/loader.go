package validation

import (
	"context"
	"time"

	"kama_realtime/internal/dao/mysql/repository"
	"kama_realtime/internal/model"
	"kama_realtime/pkg/errorx"
)

// BlockChecker 私聊拉黑判定
type BlockChecker interface {
	IsBlockedIn(ctx context.Context, mark, a, b string) (bool, error)
}

// Loader 从存储加载校验状态
// NotFound 体现为 State 中的 nil 字段，其他错误原样返回
type Loader struct {
	repos *repository.Repositories
	gate  BlockChecker
	now   func() time.Time
}

// NewLoader 构造函数
func NewLoader(repos *repository.Repositories, gate BlockChecker) *Loader {
	return &Loader{repos: repos, gate: gate, now: time.Now}
}

// WithClock 测试用
func (l *Loader) WithClock(now func() time.Time) *Loader {
	l.now = now
	return l
}

// Load 按校验顺序加载，前一步缺失时后续不再查询
func (l *Loader) Load(ctx context.Context, req SendRequest) (State, error) {
	st := State{Now: l.now()}
	if req.SenderId == "" {
		return st, nil
	}

	sender, err := l.repos.User.FindByUuid(ctx, req.SenderId)
	if err != nil {
		if errorx.IsNotFound(err) {
			return st, nil
		}
		return st, err
	}
	st.Sender = sender

	conv, err := l.repos.Conversation.FindByMark(ctx, req.ConversationMark)
	if err != nil {
		if errorx.IsNotFound(err) {
			return st, nil
		}
		return st, err
	}
	st.Conversation = conv

	switch conv.Kind {
	case model.KindPrivate:
		p, _ := conv.AsPrivate()
		if !p.Involves(req.SenderId) {
			return st, nil
		}
		peer := p.Peer(req.SenderId)
		if st.Blocked, err = l.gate.IsBlockedIn(ctx, conv.Mark, req.SenderId, peer); err != nil {
			return st, err
		}
		if req.ViaGroupMark != "" {
			if err := l.loadViaGroup(ctx, &st, req.ViaGroupMark, req.SenderId, peer); err != nil {
				return st, err
			}
		}
	case model.KindGroup:
		if st.Membership, err = l.member(ctx, conv.Mark, req.SenderId); err != nil {
			return st, err
		}
	}
	return st, nil
}

func (l *Loader) loadViaGroup(ctx context.Context, st *State, mark, sender, peer string) error {
	vg, err := l.repos.Conversation.FindByMark(ctx, mark)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil
		}
		return err
	}
	st.ViaGroup = vg
	if !vg.IsGroup() {
		return nil
	}
	m, err := l.member(ctx, mark, sender)
	if err != nil {
		return err
	}
	st.ViaSenderIn = m != nil
	if m, err = l.member(ctx, mark, peer); err != nil {
		return err
	}
	st.ViaPeerIn = m != nil
	return nil
}

func (l *Loader) member(ctx context.Context, mark, userId string) (*model.GroupMember, error) {
	m, err := l.repos.GroupMember.FindByGroupAndUser(ctx, mark, userId)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// Evaluate 加载并校验，加载失败统一为 InternalError
func (l *Loader) Evaluate(ctx context.Context, req SendRequest) (Result, error) {
	st, err := l.Load(ctx, req)
	if err != nil {
		return reject(InternalError), err
	}
	return Validate(req, st), nil
}
