package request

// SmsLoginRequest 短信验证码登录请求
// 使用位置:
//   - internal/handler/auth_handler.go: SmsLogin
type SmsLoginRequest struct {
	Telephone string `json:"telephone" binding:"required,len=11"`
	SmsCode   string `json:"sms_code" binding:"required,len=6"`
	DeviceId  string `json:"device_id" binding:"required,max=128"`
}
