package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer              = "kama_realtime"
	SubjectAccessToken  = "access_token"
	SubjectRefreshToken = "refresh_token"
)

var ErrWrongSubject = errors.New("token subject mismatch")

// Claims 自定义 JWT 声明
// Access / Refresh 两种令牌共用，DeviceID 把令牌绑定到设备会话
type Claims struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
	TokenID  string `json:"token_id,omitempty"` // 仅 Refresh Token 使用，与设备会话中记录的当前令牌比对
	jwt.RegisteredClaims
}

// Manager 负责令牌签发与校验
// 由 main 按配置构造后注入 auth 服务，不持有全局状态
type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewManager 创建令牌管理器
func NewManager(secret string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock 替换时钟，测试中用于模拟过期
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

// GenerateAccessToken 生成 Access Token (短期，用于接口认证)
func (m *Manager) GenerateAccessToken(userID, deviceID string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.accessTTL)
	claims := Claims{
		UserID:   userID,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   SubjectAccessToken,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	return token, expiresAt, err
}

// GenerateRefreshToken 生成 Refresh Token (长期，用于刷新 Access Token)
// 返回的 tokenID 需写入设备会话，刷新时比对实现单次使用
func (m *Manager) GenerateRefreshToken(userID, deviceID string) (token, tokenID string, expiresAt time.Time, err error) {
	now := m.now()
	tokenID = uuid.NewString()
	expiresAt = now.Add(m.refreshTTL)
	claims := Claims{
		UserID:   userID,
		DeviceID: deviceID,
		TokenID:  tokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   SubjectRefreshToken,
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	return
}

// ParseToken 解析并验证 Token（签名、过期、签发方）
func (m *Manager) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

// ParseAs 解析 Token 并要求 subject 匹配
func (m *Manager) ParseAs(tokenString, subject string) (*Claims, error) {
	claims, err := m.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Subject != subject {
		return nil, ErrWrongSubject
	}
	return claims, nil
}
