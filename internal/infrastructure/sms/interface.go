// Package sms 提供短信验证码服务
// 本文件定义短信服务接口，遵循依赖倒置原则
package sms

import "context"

// SmsService 短信验证码服务接口
// 验证码存放在缓存中，有效期内不可重复发送
type SmsService interface {
	// SendVerificationCode 生成并发送验证码
	SendVerificationCode(ctx context.Context, telephone string) error
	// VerifyCode 校验验证码，成功后验证码立即失效
	VerifyCode(ctx context.Context, telephone, code string) (bool, error)
}

// codeSender 实际下发短信的通道（阿里云或本地 mock）
type codeSender interface {
	send(telephone, code string) error
}

var (
	_ SmsService = (*smsService)(nil)
	_ codeSender = (*aliyunSender)(nil)
	_ codeSender = (*mockSender)(nil)
)
