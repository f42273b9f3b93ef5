// Package auth 设备会话与令牌管理
// 登录时按设备建立会话并限制每个用户的有效设备数，刷新令牌单次有效，
// 所有会话写入都带版本号做乐观锁比较
package auth

import (
	"context"
	"time"

	"kama_realtime/internal/config"
	"kama_realtime/internal/dao/mysql/repository"
	"kama_realtime/internal/dto/request"
	"kama_realtime/internal/dto/respond"
	"kama_realtime/internal/gateway/websocket"
	"kama_realtime/internal/infrastructure/metrics"
	"kama_realtime/internal/infrastructure/sms"
	"kama_realtime/internal/model"
	"kama_realtime/pkg/constants"
	"kama_realtime/pkg/errorx"
	"kama_realtime/pkg/util/jwt"

	"go.uber.org/zap"
)

// EvictionPolicy 设备数达到上限时的处理方式
type EvictionPolicy string

const (
	EvictOldest EvictionPolicy = "evict_oldest" // 吊销最久未使用的会话
	RejectNew   EvictionPolicy = "reject_new"   // 拒绝新设备登录
)

// 强制下线原因
const (
	ReasonDeviceLimit = "device_limit"
	ReasonLogout      = "logout"
)

// Kicker 强制下线推送
type Kicker interface {
	KickDevice(ctx context.Context, userId, deviceId, event string, payload any)
}

// Options 设备策略
type Options struct {
	MaxDevices     int
	Policy         EvictionPolicy
	DeviceIdMaxLen int
}

// OptionsFrom 从配置读取设备策略
func OptionsFrom(cfg config.DeviceConfig) Options {
	opts := Options{
		MaxDevices:     cfg.MaxDevicesPerUser,
		Policy:         EvictionPolicy(cfg.EvictionPolicy),
		DeviceIdMaxLen: cfg.DeviceIdMaxLen,
	}
	if opts.MaxDevices <= 0 {
		opts.MaxDevices = constants.MAX_DEVICES_DEFAULT
	}
	if opts.Policy != RejectNew {
		opts.Policy = EvictOldest
	}
	if opts.DeviceIdMaxLen <= 0 {
		opts.DeviceIdMaxLen = constants.DEVICE_ID_MAX_LEN
	}
	return opts
}

// authService 认证服务实现
type authService struct {
	repos  *repository.Repositories
	tokens *jwt.Manager
	sms    sms.SmsService
	kicker Kicker
	opts   Options
	locks  *userLock
	now    func() time.Time
}

// NewAuthService 构造函数
func NewAuthService(repos *repository.Repositories, tokens *jwt.Manager, smsSvc sms.SmsService, kicker Kicker, opts Options) *authService {
	return &authService{
		repos:  repos,
		tokens: tokens,
		sms:    smsSvc,
		kicker: kicker,
		opts:   opts,
		locks:  newUserLock(),
		now:    time.Now,
	}
}

// WithClock 测试用，需与 jwt.Manager 使用同一时钟
func (s *authService) WithClock(now func() time.Time) *authService {
	s.now = now
	return s
}

// Login 密码登录
func (s *authService) Login(ctx context.Context, req request.LoginRequest) (*respond.LoginRespond, error) {
	user, err := s.findLoginUser(ctx, req.Telephone)
	if err != nil {
		return nil, err
	}
	if !user.CheckPassword(req.Password) {
		metrics.TokenEvents.WithLabelValues("login", "bad_password").Inc()
		return nil, errorx.New(errorx.CodeInvalidPassword, "密码不正确，请重试")
	}
	return s.establish(ctx, user, req.DeviceId)
}

// SmsLogin 验证码登录
func (s *authService) SmsLogin(ctx context.Context, req request.SmsLoginRequest) (*respond.LoginRespond, error) {
	user, err := s.findLoginUser(ctx, req.Telephone)
	if err != nil {
		return nil, err
	}
	ok, err := s.sms.VerifyCode(ctx, req.Telephone, req.SmsCode)
	if err != nil {
		zap.L().Error("校验验证码失败", zap.String("telephone", req.Telephone), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	if !ok {
		return nil, errorx.New(errorx.CodeInvalidParam, "验证码错误或已过期")
	}
	return s.establish(ctx, user, req.DeviceId)
}

// SendSmsCode 发送登录验证码
func (s *authService) SendSmsCode(ctx context.Context, telephone string) error {
	return s.sms.SendVerificationCode(ctx, telephone)
}

func (s *authService) findLoginUser(ctx context.Context, telephone string) (*model.UserInfo, error) {
	user, err := s.repos.User.FindByTelephone(ctx, telephone)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.New(errorx.CodeUserNotExist, "用户不存在，请注册")
		}
		zap.L().Error("查询用户失败", zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	if !user.Status.CanLogin() {
		return nil, errorx.New(errorx.CodeForbidden, "账号已被禁用或注销")
	}
	return user, nil
}

func (s *authService) checkDeviceId(deviceId string) error {
	if deviceId == "" || len(deviceId) > s.opts.DeviceIdMaxLen {
		return errorx.Newf(errorx.CodeInvalidParam, "设备标识不能为空且不超过 %d 个字符", s.opts.DeviceIdMaxLen)
	}
	return nil
}

// establish 建立或续用设备会话，按策略处理设备上限后签发令牌
func (s *authService) establish(ctx context.Context, user *model.UserInfo, deviceId string) (*respond.LoginRespond, error) {
	if err := s.checkDeviceId(deviceId); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(user.Uuid)
	defer unlock()

	now := s.now()
	existing, err := s.repos.DeviceSession.FindByUserAndDevice(ctx, user.Uuid, deviceId)
	if err != nil && !errorx.IsNotFound(err) {
		zap.L().Error("查询设备会话失败", zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	if err != nil {
		existing = nil
	}

	active, err := s.repos.DeviceSession.FindActiveByUser(ctx, user.Uuid, now)
	if err != nil {
		zap.L().Error("查询有效会话失败", zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	others := excludeDevice(active, deviceId)

	var evicted []string
	// 已有且仍有效的设备重新登录不占用新名额
	isNewDevice := existing == nil || !existing.ActiveAt(now)
	if isNewDevice && len(others) >= s.opts.MaxDevices {
		if s.opts.Policy == RejectNew {
			metrics.TokenEvents.WithLabelValues("login", "device_limit").Inc()
			return nil, errorx.ErrDeviceLimit
		}
		for _, victim := range others[:len(others)-s.opts.MaxDevices+1] {
			if err := s.revoke(ctx, user.Uuid, victim.DeviceId); err != nil {
				zap.L().Error("吊销旧设备失败", zap.String("device_id", victim.DeviceId), zap.Error(err))
				return nil, errorx.ErrServerBusy
			}
			evicted = append(evicted, victim.DeviceId)
		}
	}

	rsp, err := s.issue(ctx, user.Uuid, deviceId, existing, now)
	if err != nil {
		return nil, err
	}

	// 多实例并发登录时本地锁不生效，写入后复查一次，超出部分按最久未使用吊销
	if s.opts.Policy == EvictOldest {
		evicted = append(evicted, s.trimExcess(ctx, user.Uuid, deviceId, now)...)
	}
	rsp.EvictedDeviceIds = evicted
	for _, dev := range evicted {
		s.kicker.KickDevice(ctx, user.Uuid, dev, websocket.EventForceLogout,
			respond.ForceLogoutPush{DeviceId: dev, Reason: ReasonDeviceLimit})
	}

	if err := s.repos.User.UpdateStatus(ctx, user.Uuid, model.UserStatusOnline, now); err != nil {
		zap.L().Warn("更新用户在线状态失败", zap.String("user_id", user.Uuid), zap.Error(err))
	}
	metrics.TokenEvents.WithLabelValues("login", "ok").Inc()
	zap.L().Info("用户登录", zap.String("user_id", user.Uuid), zap.String("device_id", deviceId), zap.Strings("evicted", evicted))
	return rsp, nil
}

// issue 签发双令牌并写入会话，版本冲突时重读后重试
func (s *authService) issue(ctx context.Context, userId, deviceId string, session *model.DeviceSession, now time.Time) (*respond.LoginRespond, error) {
	for attempt := 0; attempt < constants.CAS_MAX_RETRIES; attempt++ {
		access, accessExp, err := s.tokens.GenerateAccessToken(userId, deviceId)
		if err != nil {
			zap.L().Error("生成 Access Token 失败", zap.Error(err))
			return nil, errorx.ErrServerBusy
		}
		refresh, tokenId, refreshExp, err := s.tokens.GenerateRefreshToken(userId, deviceId)
		if err != nil {
			zap.L().Error("生成 Refresh Token 失败", zap.Error(err))
			return nil, errorx.ErrServerBusy
		}

		var expected int64
		if session == nil {
			session = &model.DeviceSession{UserId: userId, DeviceId: deviceId}
		} else {
			expected = session.Version
		}
		session.RefreshTokenId = tokenId
		session.RefreshExpiresAt = refreshExp
		session.LastAccessAt = now
		session.Revoked = false

		err = s.repos.DeviceSession.Upsert(ctx, session, expected)
		if err == nil {
			return &respond.LoginRespond{
				UserId:           userId,
				DeviceId:         deviceId,
				AccessToken:      access,
				AccessExpiresAt:  accessExp,
				RefreshToken:     refresh,
				RefreshExpiresAt: refreshExp,
			}, nil
		}
		if !errorx.HasCode(err, errorx.CodeVersionConflict) {
			zap.L().Error("写入设备会话失败", zap.Error(err))
			return nil, errorx.ErrServerBusy
		}
		if session, err = s.reload(ctx, userId, deviceId); err != nil {
			return nil, err
		}
	}
	return nil, errorx.ErrServerBusy
}

func (s *authService) trimExcess(ctx context.Context, userId, keepDevice string, now time.Time) []string {
	active, err := s.repos.DeviceSession.FindActiveByUser(ctx, userId, now)
	if err != nil {
		zap.L().Warn("复查设备数失败", zap.Error(err))
		return nil
	}
	others := excludeDevice(active, keepDevice)
	excess := len(others) + 1 - s.opts.MaxDevices
	var evicted []string
	for i := 0; i < excess && i < len(others); i++ {
		if err := s.revoke(ctx, userId, others[i].DeviceId); err != nil {
			zap.L().Warn("吊销超额设备失败", zap.String("device_id", others[i].DeviceId), zap.Error(err))
			continue
		}
		evicted = append(evicted, others[i].DeviceId)
	}
	return evicted
}

func (s *authService) reload(ctx context.Context, userId, deviceId string) (*model.DeviceSession, error) {
	session, err := s.repos.DeviceSession.FindByUserAndDevice(ctx, userId, deviceId)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, nil
		}
		zap.L().Error("重读设备会话失败", zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	return session, nil
}

func excludeDevice(sessions []model.DeviceSession, deviceId string) []model.DeviceSession {
	out := make([]model.DeviceSession, 0, len(sessions))
	for _, s := range sessions {
		if s.DeviceId != deviceId {
			out = append(out, s)
		}
	}
	return out
}

// Refresh 校验刷新令牌并轮换
// 令牌必须与会话中记录的最新一次轮换一致，旧令牌在新令牌签发的同时失效
func (s *authService) Refresh(ctx context.Context, refreshToken, deviceId string) (*respond.LoginRespond, error) {
	claims, err := s.tokens.ParseAs(refreshToken, jwt.SubjectRefreshToken)
	if err != nil || claims.DeviceID != deviceId || claims.TokenID == "" {
		metrics.TokenEvents.WithLabelValues("refresh", "invalid").Inc()
		return nil, errorx.ErrTokenInvalid
	}
	user, err := s.repos.User.FindByUuid(ctx, claims.UserID)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.ErrTokenInvalid
		}
		zap.L().Error("查询用户失败", zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	if !user.Status.CanLogin() {
		return nil, errorx.ErrTokenInvalid
	}

	session, err := s.reload(ctx, claims.UserID, deviceId)
	if err != nil {
		return nil, err
	}
	for attempt := 0; attempt < constants.CAS_MAX_RETRIES; attempt++ {
		now := s.now()
		if session == nil || !session.ActiveAt(now) || session.RefreshTokenId != claims.TokenID {
			metrics.TokenEvents.WithLabelValues("refresh", "invalid").Inc()
			return nil, errorx.ErrTokenInvalid
		}
		access, accessExp, err := s.tokens.GenerateAccessToken(claims.UserID, deviceId)
		if err != nil {
			return nil, errorx.ErrServerBusy
		}
		refresh, tokenId, refreshExp, err := s.tokens.GenerateRefreshToken(claims.UserID, deviceId)
		if err != nil {
			return nil, errorx.ErrServerBusy
		}
		session.RefreshTokenId = tokenId
		session.RefreshExpiresAt = refreshExp
		session.LastAccessAt = now

		err = s.repos.DeviceSession.Upsert(ctx, session, session.Version)
		if err == nil {
			metrics.TokenEvents.WithLabelValues("refresh", "ok").Inc()
			return &respond.LoginRespond{
				UserId:           claims.UserID,
				DeviceId:         deviceId,
				AccessToken:      access,
				AccessExpiresAt:  accessExp,
				RefreshToken:     refresh,
				RefreshExpiresAt: refreshExp,
			}, nil
		}
		if !errorx.HasCode(err, errorx.CodeVersionConflict) {
			zap.L().Error("轮换刷新令牌失败", zap.Error(err))
			return nil, errorx.ErrServerBusy
		}
		// 输给了心跳等写入时令牌号不变，可以重试；输给另一次刷新时令牌号已变，下一轮判为失效
		if session, err = s.reload(ctx, claims.UserID, deviceId); err != nil {
			return nil, err
		}
	}
	return nil, errorx.ErrTokenInvalid
}

// Logout 吊销设备会话并通知该设备下线，重复登出无副作用
func (s *authService) Logout(ctx context.Context, userId, deviceId string) error {
	if err := s.revoke(ctx, userId, deviceId); err != nil {
		return err
	}
	s.kicker.KickDevice(ctx, userId, deviceId, websocket.EventForceLogout,
		respond.ForceLogoutPush{DeviceId: deviceId, Reason: ReasonLogout})
	s.markOfflineIfIdle(ctx, userId)
	metrics.TokenEvents.WithLabelValues("logout", "ok").Inc()
	return nil
}

func (s *authService) revoke(ctx context.Context, userId, deviceId string) error {
	return s.mutate(ctx, userId, deviceId, constants.CAS_MAX_RETRIES, func(session *model.DeviceSession) bool {
		if session.Revoked {
			return false
		}
		session.Revoked = true
		session.Online = false
		return true
	})
}

// mutate 读取-修改-CAS 写入，fn 返回 false 表示无需写入；会话不存在时直接返回
func (s *authService) mutate(ctx context.Context, userId, deviceId string, attempts int, fn func(*model.DeviceSession) bool) error {
	for attempt := 0; attempt < attempts; attempt++ {
		session, err := s.reload(ctx, userId, deviceId)
		if err != nil {
			return err
		}
		if session == nil || !fn(session) {
			return nil
		}
		err = s.repos.DeviceSession.Upsert(ctx, session, session.Version)
		if err == nil {
			return nil
		}
		if !errorx.HasCode(err, errorx.CodeVersionConflict) {
			zap.L().Error("更新设备会话失败", zap.Error(err))
			return errorx.ErrServerBusy
		}
	}
	return errorx.ErrVersionConflict
}

// Validate 只校验签名、过期与类型，不访问存储
func (s *authService) Validate(accessToken string) (*jwt.Claims, error) {
	claims, err := s.tokens.ParseAs(accessToken, jwt.SubjectAccessToken)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeTokenInvalid, "登录状态已失效，请重新登录")
	}
	return claims, nil
}

// Heartbeat 记录心跳，版本冲突时重试一次
func (s *authService) Heartbeat(ctx context.Context, userId, deviceId string) error {
	revoked := false
	err := s.mutate(ctx, userId, deviceId, 2, func(session *model.DeviceSession) bool {
		if !session.ActiveAt(s.now()) {
			revoked = true
			return false
		}
		session.LastHeartbeatAt = s.now()
		session.Online = true
		return true
	})
	if err != nil {
		return err
	}
	if revoked {
		return errorx.ErrTokenInvalid
	}
	return nil
}

// SetOffline 连接断开时调用，尽力而为
func (s *authService) SetOffline(ctx context.Context, userId, deviceId string) {
	err := s.mutate(ctx, userId, deviceId, constants.CAS_MAX_RETRIES, func(session *model.DeviceSession) bool {
		if !session.Online {
			return false
		}
		session.Online = false
		return true
	})
	if err != nil {
		zap.L().Warn("标记设备离线失败", zap.String("user_id", userId), zap.String("device_id", deviceId), zap.Error(err))
		return
	}
	s.markOfflineIfIdle(ctx, userId)
}

func (s *authService) markOfflineIfIdle(ctx context.Context, userId string) {
	sessions, err := s.repos.DeviceSession.FindByUser(ctx, userId)
	if err != nil {
		return
	}
	for _, session := range sessions {
		if session.Online && !session.Revoked {
			return
		}
	}
	if err := s.repos.User.UpdateStatus(ctx, userId, model.UserStatusOffline, s.now()); err != nil {
		zap.L().Warn("更新用户离线状态失败", zap.String("user_id", userId), zap.Error(err))
	}
}

// ListDevices 用户的全部设备会话
func (s *authService) ListDevices(ctx context.Context, userId, currentDevice string) ([]respond.DeviceRespond, error) {
	sessions, err := s.repos.DeviceSession.FindByUser(ctx, userId)
	if err != nil {
		zap.L().Error("查询设备列表失败", zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	now := s.now()
	out := make([]respond.DeviceRespond, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, respond.DeviceRespond{
			DeviceId:        session.DeviceId,
			Online:          session.Online,
			Revoked:         !session.ActiveAt(now),
			Current:         session.DeviceId == currentDevice,
			LastAccessAt:    session.LastAccessAt,
			LastHeartbeatAt: session.LastHeartbeatAt,
		})
	}
	return out, nil
}
