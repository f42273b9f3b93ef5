package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"kama_realtime/internal/config"
	"kama_realtime/internal/dao/mysql/mysqltest"
	"kama_realtime/internal/dao/mysql/repository"
	myredis "kama_realtime/internal/dao/redis"
	"kama_realtime/internal/dto/request"
	"kama_realtime/internal/infrastructure/sms"
	"kama_realtime/internal/model"
	"kama_realtime/pkg/constants"
	"kama_realtime/pkg/errorx"
	"kama_realtime/pkg/util/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tel = "13800000001"
	pwd = "secret123"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type kick struct{ userId, deviceId string }

type fakeKicker struct {
	mu    sync.Mutex
	kicks []kick
}

func (f *fakeKicker) KickDevice(_ context.Context, userId, deviceId, _ string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicks = append(f.kicks, kick{userId, deviceId})
}

func (f *fakeKicker) devices() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.kicks))
	for _, k := range f.kicks {
		out = append(out, k.deviceId)
	}
	return out
}

type fixture struct {
	svc    *authService
	repos  *repository.Repositories
	clock  *clock
	kicker *fakeKicker
	cache  *myredis.LocalCache
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	repos := mysqltest.NewRepositories(t)
	mysqltest.SeedUser(t, repos, "U1", tel, pwd)
	c := &clock{t: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	tokens := jwt.NewManager("test-secret", time.Hour, 24*time.Hour).WithClock(c.now)
	cache := myredis.NewLocalCache()
	k := &fakeKicker{}
	svc := NewAuthService(repos, tokens, sms.NewWithMock(cache), k, opts).WithClock(c.now)
	return &fixture{svc: svc, repos: repos, clock: c, kicker: k, cache: cache}
}

func defaultOpts() Options {
	return Options{MaxDevices: 3, Policy: EvictOldest, DeviceIdMaxLen: 16}
}

func (f *fixture) login(t *testing.T, device string) string {
	t.Helper()
	rsp, err := f.svc.Login(context.Background(), request.LoginRequest{Telephone: tel, Password: pwd, DeviceId: device})
	require.NoError(t, err)
	return rsp.RefreshToken
}

func TestLoginAndValidate(t *testing.T) {
	f := newFixture(t, defaultOpts())
	ctx := context.Background()

	rsp, err := f.svc.Login(ctx, request.LoginRequest{Telephone: tel, Password: pwd, DeviceId: "phone"})
	require.NoError(t, err)
	assert.Equal(t, "U1", rsp.UserId)

	claims, err := f.svc.Validate(rsp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "U1", claims.UserID)
	assert.Equal(t, "phone", claims.DeviceID)

	_, err = f.svc.Validate(rsp.RefreshToken)
	assert.True(t, errorx.HasCode(err, errorx.CodeTokenInvalid), "refresh token is not an access token")

	f.clock.advance(2 * time.Hour)
	_, err = f.svc.Validate(rsp.AccessToken)
	assert.True(t, errorx.HasCode(err, errorx.CodeTokenInvalid))

	user, err := f.repos.User.FindByUuid(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusOnline, user.Status)
}

func TestLoginRejections(t *testing.T) {
	f := newFixture(t, defaultOpts())
	ctx := context.Background()

	_, err := f.svc.Login(ctx, request.LoginRequest{Telephone: tel, Password: "wrong-pass", DeviceId: "phone"})
	assert.True(t, errorx.HasCode(err, errorx.CodeInvalidPassword))

	_, err = f.svc.Login(ctx, request.LoginRequest{Telephone: "13900000000", Password: pwd, DeviceId: "phone"})
	assert.True(t, errorx.HasCode(err, errorx.CodeUserNotExist))

	_, err = f.svc.Login(ctx, request.LoginRequest{Telephone: tel, Password: pwd, DeviceId: strings.Repeat("x", 17)})
	assert.True(t, errorx.HasCode(err, errorx.CodeInvalidParam))

	_, err = f.svc.Login(ctx, request.LoginRequest{Telephone: tel, Password: pwd, DeviceId: ""})
	assert.True(t, errorx.HasCode(err, errorx.CodeInvalidParam))

	require.NoError(t, f.repos.User.UpdateStatus(ctx, "U1", model.UserStatusDisabled, time.Now()))
	_, err = f.svc.Login(ctx, request.LoginRequest{Telephone: tel, Password: pwd, DeviceId: "phone"})
	assert.True(t, errorx.HasCode(err, errorx.CodeForbidden))
}

func TestRefreshTokenIsSingleUse(t *testing.T) {
	f := newFixture(t, defaultOpts())
	ctx := context.Background()
	old := f.login(t, "phone")

	f.clock.advance(time.Minute)
	rsp, err := f.svc.Refresh(ctx, old, "phone")
	require.NoError(t, err)
	assert.NotEqual(t, old, rsp.RefreshToken)

	_, err = f.svc.Refresh(ctx, old, "phone")
	assert.True(t, errorx.HasCode(err, errorx.CodeTokenInvalid))

	_, err = f.svc.Refresh(ctx, rsp.RefreshToken, "other-device")
	assert.True(t, errorx.HasCode(err, errorx.CodeTokenInvalid))

	_, err = f.svc.Refresh(ctx, rsp.AccessToken, "phone")
	assert.True(t, errorx.HasCode(err, errorx.CodeTokenInvalid))

	_, err = f.svc.Refresh(ctx, rsp.RefreshToken, "phone")
	assert.NoError(t, err)
}

func TestRefreshSurvivesInterleavedHeartbeat(t *testing.T) {
	f := newFixture(t, defaultOpts())
	ctx := context.Background()
	token := f.login(t, "phone")

	require.NoError(t, f.svc.Heartbeat(ctx, "U1", "phone"))
	require.NoError(t, f.svc.Heartbeat(ctx, "U1", "phone"))

	_, err := f.svc.Refresh(ctx, token, "phone")
	require.NoError(t, err)

	s, err := f.repos.DeviceSession.FindByUserAndDevice(ctx, "U1", "phone")
	require.NoError(t, err)
	assert.True(t, s.Online)
	assert.EqualValues(t, 4, s.Version)
}

func TestConcurrentRefreshOnlyOneWins(t *testing.T) {
	f := newFixture(t, defaultOpts())
	token := f.login(t, "phone")

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, losses := 0, 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Refresh(context.Background(), token, "phone")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errorx.HasCode(err, errorx.CodeTokenInvalid) {
				losses++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, 4, losses)
}

func TestDeviceCapEvictsLeastRecentlyUsed(t *testing.T) {
	f := newFixture(t, defaultOpts())
	ctx := context.Background()

	tokens := map[string]string{}
	for _, dev := range []string{"d1", "d2", "d3"} {
		tokens[dev] = f.login(t, dev)
		f.clock.advance(time.Minute)
	}
	// d1 刷新后成为最近使用，最久未使用的变为 d2
	rsp, err := f.svc.Refresh(ctx, tokens["d1"], "d1")
	require.NoError(t, err)
	tokens["d1"] = rsp.RefreshToken
	f.clock.advance(time.Minute)

	login, err := f.svc.Login(ctx, request.LoginRequest{Telephone: tel, Password: pwd, DeviceId: "d4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d2"}, login.EvictedDeviceIds)
	assert.Equal(t, []string{"d2"}, f.kicker.devices())

	_, err = f.svc.Refresh(ctx, tokens["d2"], "d2")
	assert.True(t, errorx.HasCode(err, errorx.CodeTokenInvalid))

	active, err := f.repos.DeviceSession.FindActiveByUser(ctx, "U1", f.clock.now())
	require.NoError(t, err)
	assert.Len(t, active, 3)

	// 已有设备重新登录不触发淘汰
	f.login(t, "d3")
	assert.Len(t, f.kicker.devices(), 1)
}

func TestDeviceCapRejectNew(t *testing.T) {
	opts := defaultOpts()
	opts.Policy = RejectNew
	f := newFixture(t, opts)
	ctx := context.Background()
	for _, dev := range []string{"d1", "d2", "d3"} {
		f.login(t, dev)
	}
	_, err := f.svc.Login(ctx, request.LoginRequest{Telephone: tel, Password: pwd, DeviceId: "d4"})
	assert.ErrorIs(t, err, errorx.ErrDeviceLimit)
	assert.Empty(t, f.kicker.devices())

	require.NoError(t, f.svc.Logout(ctx, "U1", "d1"))
	f.login(t, "d4")
}

func TestLogoutRevokesAndIsIdempotent(t *testing.T) {
	f := newFixture(t, defaultOpts())
	ctx := context.Background()
	token := f.login(t, "phone")
	require.NoError(t, f.svc.Heartbeat(ctx, "U1", "phone"))

	require.NoError(t, f.svc.Logout(ctx, "U1", "phone"))
	require.NoError(t, f.svc.Logout(ctx, "U1", "phone"))
	require.NoError(t, f.svc.Logout(ctx, "U1", "never-logged-in"))

	_, err := f.svc.Refresh(ctx, token, "phone")
	assert.True(t, errorx.HasCode(err, errorx.CodeTokenInvalid))
	assert.True(t, errorx.HasCode(f.svc.Heartbeat(ctx, "U1", "phone"), errorx.CodeTokenInvalid))

	user, err := f.repos.User.FindByUuid(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusOffline, user.Status)

	devices, err := f.svc.ListDevices(ctx, "U1", "phone")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.True(t, devices[0].Revoked)
	assert.True(t, devices[0].Current)
}

func TestSetOfflineKeepsSessionValid(t *testing.T) {
	f := newFixture(t, defaultOpts())
	ctx := context.Background()
	token := f.login(t, "phone")
	require.NoError(t, f.svc.Heartbeat(ctx, "U1", "phone"))

	f.svc.SetOffline(ctx, "U1", "phone")
	s, err := f.repos.DeviceSession.FindByUserAndDevice(ctx, "U1", "phone")
	require.NoError(t, err)
	assert.False(t, s.Online)
	assert.False(t, s.Revoked)

	_, err = f.svc.Refresh(ctx, token, "phone")
	assert.NoError(t, err)
}

func TestSmsLogin(t *testing.T) {
	f := newFixture(t, defaultOpts())
	ctx := context.Background()
	require.NoError(t, f.svc.SendSmsCode(ctx, tel))

	code, err := f.cache.Get(ctx, constants.AUTH_CODE_KEY_PREFIX+tel)
	require.NoError(t, err)
	require.Len(t, code, 6)

	_, err = f.svc.SmsLogin(ctx, request.SmsLoginRequest{Telephone: tel, SmsCode: "000000x", DeviceId: "pad"})
	assert.True(t, errorx.HasCode(err, errorx.CodeInvalidParam))

	rsp, err := f.svc.SmsLogin(ctx, request.SmsLoginRequest{Telephone: tel, SmsCode: code, DeviceId: "pad"})
	require.NoError(t, err)
	assert.Equal(t, "pad", rsp.DeviceId)

	_, err = f.svc.SmsLogin(ctx, request.SmsLoginRequest{Telephone: tel, SmsCode: code, DeviceId: "pad"})
	assert.Error(t, err, "code is single use")
}

func TestOptionsFromDefaults(t *testing.T) {
	opts := OptionsFrom(config.DeviceConfig{})
	assert.Equal(t, constants.MAX_DEVICES_DEFAULT, opts.MaxDevices)
	assert.Equal(t, EvictOldest, opts.Policy)
	assert.Equal(t, constants.DEVICE_ID_MAX_LEN, opts.DeviceIdMaxLen)

	opts = OptionsFrom(config.DeviceConfig{MaxDevicesPerUser: 2, EvictionPolicy: "reject_new", DeviceIdMaxLen: 64})
	assert.Equal(t, Options{MaxDevices: 2, Policy: RejectNew, DeviceIdMaxLen: 64}, opts)
}
