package sms

import (
	"context"
	"crypto/subtle"
	"fmt"
	"os"
	"strings"
	"time"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	dysmsapi20170525 "github.com/alibabacloud-go/dysmsapi-20170525/v4/client"
	util "github.com/alibabacloud-go/tea-utils/v2/service"
	"github.com/alibabacloud-go/tea/tea"
	"go.uber.org/zap"

	"kama_realtime/internal/config"
	myredis "kama_realtime/internal/dao/redis"
	"kama_realtime/pkg/constants"
	"kama_realtime/pkg/errorx"
	"kama_realtime/pkg/util/random"
)

type smsService struct {
	cache  myredis.CacheService
	sender codeSender
	ttl    time.Duration
}

// New 根据配置选择阿里云或本地 mock 通道
func New(authCfg config.AuthCodeConfig, cache myredis.CacheService) (SmsService, error) {
	svc := &smsService{cache: cache, ttl: constants.AUTH_CODE_TTL_SEC * time.Second}
	if shouldUseMock(authCfg) {
		zap.L().Warn("SMS Service 使用本地 Mock 模式（仅写入缓存，不调用第三方短信）")
		svc.sender = &mockSender{}
		return svc, nil
	}

	conf := &openapi.Config{
		AccessKeyId:     tea.String(authCfg.AccessKeyID),
		AccessKeySecret: tea.String(authCfg.AccessKeySecret),
		Endpoint:        tea.String("dysmsapi.aliyuncs.com"),
	}
	client, err := dysmsapi20170525.NewClient(conf)
	if err != nil {
		zap.L().Error("Aliyun SMS Client Init Failed", zap.Error(err))
		return nil, err
	}
	svc.sender = newAliyunSender(client, authCfg)
	return svc, nil
}

// NewWithMock 始终使用本地 mock 通道
func NewWithMock(cache myredis.CacheService) SmsService {
	return &smsService{cache: cache, sender: &mockSender{}, ttl: constants.AUTH_CODE_TTL_SEC * time.Second}
}

func shouldUseMock(auth config.AuthCodeConfig) bool {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv("KAMA_REALTIME_SMS_MODE")))
	if mode == "mock" || mode == "local" || mode == "test" {
		return true
	}
	// 配置文件默认是占位字符串，没配真实 AK 时走 mock
	ak := strings.ToLower(strings.TrimSpace(auth.AccessKeyID))
	ask := strings.ToLower(strings.TrimSpace(auth.AccessKeySecret))
	if ak == "" || ask == "" {
		return true
	}
	return strings.Contains(ak, "your accesskey") || strings.Contains(ask, "your accesskey")
}

func codeKey(telephone string) string {
	return constants.AUTH_CODE_KEY_PREFIX + telephone
}

// SendVerificationCode 频率限制检查、验证码生成、缓存预存、下发以及失败回滚
func (s *smsService) SendVerificationCode(ctx context.Context, telephone string) error {
	key := codeKey(telephone)
	code, err := s.cache.Get(ctx, key)
	if err != nil {
		zap.L().Error("缓存频率检查异常", zap.Error(err), zap.String("phone", telephone))
		return errorx.ErrServerBusy
	}
	// 有效期内已发送过，拦截请求防止短信资源被刷
	if code != "" {
		return errorx.New(errorx.CodeTooFrequent, "目前还不能发送验证码，请稍后重试或输入已发送的验证码")
	}

	code = random.GetCode(6)
	// 先占位，后发送；先发送后占位在高并发下可能被绕过频率限制
	if err := s.cache.Set(ctx, key, code, s.ttl); err != nil {
		zap.L().Error("缓存写入验证码失败", zap.Error(err))
		return errorx.ErrServerBusy
	}

	if err := s.sender.send(telephone, code); err != nil {
		zap.L().Error("短信下发失败", zap.Error(err), zap.String("phone", telephone))
		// 回滚占位，否则用户在有效期内无法重新获取
		_ = s.cache.Delete(ctx, key)
		return errorx.ErrServerBusy
	}
	return nil
}

func (s *smsService) VerifyCode(ctx context.Context, telephone, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	key := codeKey(telephone)
	stored, err := s.cache.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return false, nil
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		zap.L().Warn("验证码作废失败", zap.Error(err), zap.String("phone", telephone))
	}
	return true, nil
}

type mockSender struct{}

func (mockSender) send(telephone, code string) error {
	fmt.Printf("【MockSMS】手机号: %s, 验证码: %s\n", telephone, code)
	return nil
}

// aliyunSender 阿里云短信通道
type aliyunSender struct {
	client       *dysmsapi20170525.Client
	signName     string
	templateCode string
}

func newAliyunSender(client *dysmsapi20170525.Client, cfg config.AuthCodeConfig) *aliyunSender {
	// 未配置签名和模板时使用阿里云提供的测试模板
	signName := cfg.SignName
	if signName == "" {
		signName = "阿里云短信测试"
	}
	templateCode := cfg.TemplateCode
	if templateCode == "" {
		templateCode = "SMS_154950909"
	}
	return &aliyunSender{client: client, signName: signName, templateCode: templateCode}
}

func (a *aliyunSender) send(telephone, code string) error {
	req := &dysmsapi20170525.SendSmsRequest{
		SignName:      tea.String(a.signName),
		TemplateCode:  tea.String(a.templateCode),
		PhoneNumbers:  tea.String(telephone),
		TemplateParam: tea.String(`{"code":"` + code + `"}`),
	}
	rsp, err := a.client.SendSmsWithOptions(req, &util.RuntimeOptions{})
	if err != nil {
		return err
	}
	// err 为 nil 时仍需检查 Body.Code 是否为 "OK"
	zap.L().Info("短信发送接口响应", zap.String("response", *util.ToJSONString(rsp)))
	if rsp.Body != nil && rsp.Body.Code != nil && *rsp.Body.Code != "OK" {
		return fmt.Errorf("aliyun sms rejected: %s", tea.StringValue(rsp.Body.Message))
	}
	return nil
}
