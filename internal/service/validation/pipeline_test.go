package validation

import (
	"database/sql"
	"testing"
	"time"

	"kama_realtime/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sender(id string) *model.UserInfo {
	return &model.UserInfo{Uuid: id, Status: model.UserStatusOnline}
}

func groupState(member *model.GroupMember) State {
	return State{
		Now:          now,
		Sender:       sender("U1"),
		Conversation: model.NewGroupConversation("G1", "U0", "team"),
		Membership:   member,
	}
}

func privateState() State {
	return State{
		Now:          now,
		Sender:       sender("U1"),
		Conversation: model.NewPrivateConversation("P1", "U1", "U2", false),
	}
}

func TestValidateOrder(t *testing.T) {
	member := &model.GroupMember{GroupMark: "G1", UserId: "U1", Role: model.RoleMember}
	groupReq := SendRequest{SenderId: "U1", ConversationMark: "G1", Content: " hello "}
	privReq := SendRequest{SenderId: "U1", ConversationMark: "P1", Content: "hi"}

	cases := []struct {
		name   string
		req    SendRequest
		state  func() State
		expect Outcome
	}{
		{"unauthenticated", SendRequest{ConversationMark: "G1", Content: "x"}, func() State { return groupState(member) }, Unauthorized},
		{"sender missing", groupReq, func() State { s := groupState(member); s.Sender = nil; return s }, SenderNotFound},
		{"sender disabled", groupReq, func() State {
			s := groupState(member)
			s.Sender.Status = model.UserStatusDisabled
			return s
		}, Unauthorized},
		{"chat missing", groupReq, func() State { s := groupState(member); s.Conversation = nil; return s }, ChatNotFound},
		{"chat unreachable", groupReq, func() State {
			s := groupState(member)
			s.Conversation.Status = model.ConversationUnreachable
			return s
		}, ChatNotFound},
		{"content blank", SendRequest{SenderId: "U1", ConversationMark: "G1", Content: " \n\t"}, func() State { return groupState(member) }, ContentEmpty},
		{"blank content beats missing membership", SendRequest{SenderId: "U1", ConversationMark: "G1"}, func() State { return groupState(nil) }, ContentEmpty},
		{"not member", groupReq, func() State { return groupState(nil) }, NotInGroup},
		{"individually muted", groupReq, func() State {
			m := *member
			m.MutedUntil = sql.NullTime{Time: now.Add(time.Hour), Valid: true}
			return groupState(&m)
		}, UserMuted},
		{"mute expired", groupReq, func() State {
			m := *member
			m.MutedUntil = sql.NullTime{Time: now.Add(-time.Hour), Valid: true}
			return groupState(&m)
		}, Success},
		{"all silent", groupReq, func() State {
			s := groupState(member)
			s.Conversation.AllSilent = true
			return s
		}, UserMuted},
		{"all silent admin", groupReq, func() State {
			m := *member
			m.Role = model.RoleAdmin
			s := groupState(&m)
			s.Conversation.AllSilent = true
			return s
		}, Success},
		{"group disabled", groupReq, func() State {
			s := groupState(member)
			s.Conversation.Status = model.ConversationGroupDisabled
			return s
		}, GroupChatDisabled},
		{"muted in disabled group", groupReq, func() State {
			s := groupState(member)
			s.Conversation.Status = model.ConversationGroupDisabled
			s.Conversation.AllSilent = true
			return s
		}, GroupChatDisabled},
		{"outsider in disabled group", groupReq, func() State {
			s := groupState(nil)
			s.Conversation.Status = model.ConversationGroupDisabled
			return s
		}, GroupChatDisabled},
		{"blank content in disabled group", SendRequest{SenderId: "U1", ConversationMark: "G1"}, func() State {
			s := groupState(member)
			s.Conversation.Status = model.ConversationGroupDisabled
			return s
		}, GroupChatDisabled},
		{"group with via", SendRequest{SenderId: "U1", ConversationMark: "G1", Content: "x", ViaGroupMark: "G2"}, func() State { return groupState(member) }, ViaGroupChatValidationFailed},
		{"private ok", privReq, privateState, Success},
		{"private outsider", SendRequest{SenderId: "U3", ConversationMark: "P1", Content: "x"}, func() State {
			s := privateState()
			s.Sender = sender("U3")
			return s
		}, ChatNotFound},
		{"private blocked", privReq, func() State { s := privateState(); s.Blocked = true; return s }, PrivateChatBlocked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Validate(tc.req, tc.state())
			assert.Equal(t, tc.expect, res.Outcome)
			if tc.expect == Success {
				require.NotNil(t, res.Intent)
			} else {
				assert.Nil(t, res.Intent)
			}
		})
	}
}

func TestValidateViaGroup(t *testing.T) {
	req := SendRequest{SenderId: "U1", ConversationMark: "P1", Content: "hi", ViaGroupMark: "G9"}
	via := func(forbid bool) *model.Conversation {
		g := model.NewGroupConversation("G9", "U0", "origin")
		g.ForbidPrivateChat = forbid
		return g
	}

	s := privateState()
	assert.Equal(t, ViaGroupChatValidationFailed, Validate(req, s).Outcome, "group missing")

	s.ViaGroup = via(false)
	s.ViaSenderIn = true
	assert.Equal(t, ViaGroupChatValidationFailed, Validate(req, s).Outcome, "peer not in group")

	s.ViaPeerIn = true
	res := Validate(req, s)
	require.Equal(t, Success, res.Outcome)
	assert.Equal(t, "G9", res.Intent.ViaGroupMark)

	s.ViaGroup = via(true)
	assert.Equal(t, PrivateChatNotAllowed, Validate(req, s).Outcome)

	s.Blocked = true
	assert.Equal(t, PrivateChatBlocked, Validate(req, s).Outcome, "block is checked before origin group")
}

func TestValidateIntent(t *testing.T) {
	sendAt := now.Add(-time.Minute)
	req := SendRequest{
		SenderId: "U1", ConversationMark: "P1", Content: "  hello  ",
		Type: model.MessageFile, ClientMsgId: "c-1", SendAt: sendAt,
	}
	res := Validate(req, privateState())
	require.Equal(t, Success, res.Outcome)
	msg := res.Intent
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "P1", msg.ConversationMark)
	assert.Equal(t, "U1", msg.SenderId)
	assert.Equal(t, model.MessageFile, msg.Type)
	assert.Equal(t, "c-1", msg.ClientMsgIdValue())
	assert.Equal(t, sendAt, msg.SendAt)
	assert.Equal(t, now, msg.CapturedAt)
	assert.Zero(t, msg.Uuid)

	req.ClientMsgId = ""
	assert.Nil(t, Validate(req, privateState()).Intent.ClientMsgId)
}

// 任意组合下只产生一个结果，且 Success 满足全部前置条件
func TestValidateSuccessImpliesPreconditions(t *testing.T) {
	contents := []string{"", " ", "x"}
	statuses := []model.ConversationStatus{model.ConversationNormal, model.ConversationGroupDisabled, model.ConversationUnreachable}
	roles := []*model.GroupMember{
		nil,
		{GroupMark: "G1", UserId: "U1", Role: model.RoleMember},
		{GroupMark: "G1", UserId: "U1", Role: model.RoleOwner},
		{GroupMark: "G1", UserId: "U1", MutedUntil: sql.NullTime{Time: now.Add(time.Minute), Valid: true}},
	}
	for _, content := range contents {
		for _, status := range statuses {
			for _, m := range roles {
				for _, silent := range []bool{false, true} {
					st := groupState(m)
					st.Conversation.Status = status
					st.Conversation.AllSilent = silent
					res := Validate(SendRequest{SenderId: "U1", ConversationMark: "G1", Content: content}, st)
					assert.True(t, res.Outcome.valid())
					if res.Outcome != Success {
						continue
					}
					assert.NotEmpty(t, res.Intent.Content)
					require.NotNil(t, m)
					assert.False(t, m.IsMutedAt(now))
					assert.Equal(t, model.ConversationNormal, status)
					if silent {
						assert.True(t, m.IsManager())
					}
				}
			}
		}
	}
}

func TestOutcomeDescriptions(t *testing.T) {
	assert.Equal(t, 0, Success.Code())
	seen := map[int]bool{}
	for o := Success; o <= InternalError; o++ {
		assert.NotEqual(t, "Unknown", o.String())
		assert.NotEmpty(t, o.Message())
		assert.False(t, seen[o.Code()])
		seen[o.Code()] = true
	}
	assert.Equal(t, "Unknown", Outcome(99).String())
	assert.True(t, InternalError.Retryable())
	assert.False(t, NotInGroup.Retryable())
}
