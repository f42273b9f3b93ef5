package https_server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kama_realtime/internal/config"
	"kama_realtime/internal/dao/mysql/mysqltest"
	myredis "kama_realtime/internal/dao/redis"
	"kama_realtime/internal/dto/request"
	"kama_realtime/internal/dto/respond"
	"kama_realtime/internal/gateway/websocket"
	"kama_realtime/internal/handler"
	"kama_realtime/internal/infrastructure/mq"
	"kama_realtime/internal/infrastructure/sms"
	"kama_realtime/internal/service"
	"kama_realtime/internal/service/chat"
	"kama_realtime/pkg/errorx"
	"kama_realtime/pkg/util/jwt"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code int             `json:"code"`
	Msg  json.RawMessage `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type testServer struct {
	*httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, handler.InitTrans("zh"))

	conf := config.Default()
	repos := mysqltest.NewRepositories(t)
	mysqltest.SeedUser(t, repos, "UA", "13800000001", "secret1")
	mysqltest.SeedUser(t, repos, "UB", "13800000002", "secret2")
	mysqltest.SeedGroup(t, repos, "G1", "UA", "UB")

	cache := myredis.NewLocalCache()
	hub := websocket.NewHub(conf.FanoutConfig, mq.NewChannelBus(256), websocket.WithPresence(cache, "test"))
	t.Cleanup(hub.Close)

	tokens := jwt.NewManager("test-secret", time.Hour, 24*time.Hour)
	services := service.NewServices(conf, repos, tokens, sms.NewWithMock(cache), hub)
	engine := Init(conf, handler.NewHandlers(services, hub), services.Auth)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) envelope {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	if resp.StatusCode == http.StatusUnauthorized {
		require.NotEqual(t, errorx.CodeSuccess, env.Code)
	}
	return env
}

func (s *testServer) login(t *testing.T, telephone, password, deviceId string) respond.LoginRespond {
	t.Helper()
	env := s.do(t, http.MethodPost, "/auth/login", "", request.LoginRequest{
		Telephone: telephone, Password: password, DeviceId: deviceId,
	})
	require.Equal(t, errorx.CodeSuccess, env.Code, string(env.Msg))
	var out respond.LoginRespond
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func (s *testServer) dial(t *testing.T, token string) *gorillaws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?token=" + token
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil 读取下行帧直到出现 event，期间的其他帧忽略
func readUntil(t *testing.T, conn *gorillaws.Conn, event string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read %s: %v", event, err)
		}
		if frame["event"] == event {
			return frame
		}
	}
	t.Fatalf("no %s frame", event)
	return nil
}

func TestLoginSendAndReceive(t *testing.T) {
	s := newTestServer(t)
	a := s.login(t, "13800000001", "secret1", "a-phone")
	b := s.login(t, "13800000002", "secret2", "b-web")

	conn := s.dial(t, b.AccessToken)
	require.NoError(t, conn.WriteJSON(map[string]any{
		"op": chat.OpJoinChat, "seq": "1", "data": request.ChatMarkRequest{ConversationMark: "G1"},
	}))
	ack := readUntil(t, conn, chat.EventAck)
	assert.EqualValues(t, errorx.CodeSuccess, ack["code"])

	env := s.do(t, http.MethodGet, "/ws/online", b.AccessToken, nil)
	require.Equal(t, errorx.CodeSuccess, env.Code)
	var online struct {
		Connections []string `json:"connections"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &online))
	assert.Len(t, online.Connections, 1)

	env = s.do(t, http.MethodPost, "/message/send", a.AccessToken, request.SendMessageRequest{
		ConversationMark: "G1", Content: "hello", ClientMsgId: "m-1",
	})
	require.Equal(t, errorx.CodeSuccess, env.Code, string(env.Msg))

	incoming := readUntil(t, conn, websocket.EventIncomingMessage)
	assert.Equal(t, "hello", incoming["data"].(map[string]any)["content"])

	env = s.do(t, http.MethodGet, "/contact/unread", b.AccessToken, nil)
	require.Equal(t, errorx.CodeSuccess, env.Code)
	var snap respond.UnreadSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.EqualValues(t, 1, snap.Total)

	env = s.do(t, http.MethodGet, "/message/history?conversation_mark=G1", b.AccessToken, nil)
	require.Equal(t, errorx.CodeSuccess, env.Code)
	var hist respond.HistoryRespond
	require.NoError(t, json.Unmarshal(env.Data, &hist))
	require.Len(t, hist.Messages, 1)
	assert.Equal(t, "hello", hist.Messages[0].Content)
}

func TestRejectedSendReturnsOutcomeCode(t *testing.T) {
	s := newTestServer(t)
	a := s.login(t, "13800000001", "secret1", "a-phone")

	env := s.do(t, http.MethodPost, "/message/send", a.AccessToken, request.SendMessageRequest{ConversationMark: "G404", Content: "x"})
	assert.NotEqual(t, errorx.CodeSuccess, env.Code)
	var rsp respond.SendMessageRespond
	require.NoError(t, json.Unmarshal(env.Data, &rsp))
	assert.Equal(t, "ChatNotFound", rsp.Outcome)
	assert.Equal(t, rsp.Code, env.Code)
}

func TestAuthBoundary(t *testing.T) {
	s := newTestServer(t)

	env := s.do(t, http.MethodGet, "/contact/unread", "", nil)
	assert.Equal(t, errorx.CodeUnauthorized, env.Code)

	env = s.do(t, http.MethodGet, "/contact/unread", "garbage", nil)
	assert.Equal(t, errorx.CodeTokenInvalid, env.Code)

	env = s.do(t, http.MethodPost, "/auth/login", "", request.LoginRequest{Telephone: "138", Password: "x"})
	assert.Equal(t, errorx.CodeInvalidParam, env.Code)

	a := s.login(t, "13800000001", "secret1", "a-phone")
	env = s.do(t, http.MethodPost, "/auth/logout", a.AccessToken, request.LogoutRequest{})
	require.Equal(t, errorx.CodeSuccess, env.Code)

	// 吊销后 Refresh Token 不能再用，WebSocket 也无法接入
	env = s.do(t, http.MethodPost, "/auth/refresh", "", request.RefreshRequest{RefreshToken: a.RefreshToken, DeviceId: "a-phone"})
	assert.Equal(t, errorx.CodeTokenInvalid, env.Code)

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?token=" + a.AccessToken
	_, resp, err := gorillaws.DefaultDialer.DialContext(context.Background(), url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	resp, err := http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
