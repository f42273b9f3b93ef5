// Package errorx 定义带业务错误码的错误类型
// Repository 层产生 CodeNotFound / CodeDBError，Service 层补充业务语义，Handler 层统一转换为响应
package errorx

import (
	"errors"
	"fmt"
)

// CodeError 带业务错误码的自定义错误
// 支持 %w 语义的底层错误包装，可被 errors.Is/errors.As 识别
type CodeError struct {
	Code  int    // 业务错误码
	Msg   string // 面向调用方的错误消息
	cause error  // 被包装的底层错误
}

func (e *CodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.cause)
	}
	return e.Msg
}

// Unwrap 支持 errors.Is/errors.As 向下追溯
func (e *CodeError) Unwrap() error {
	return e.cause
}

// Is 同码即相等，使预定义错误实例可以直接用于 errors.Is 比较
func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if !errors.As(target, &t) {
		return false
	}
	return t.cause == nil && t.Code == e.Code
}

// New 创建一个新的 CodeError
func New(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

// Newf 创建一个带格式化消息的 CodeError
func Newf(code int, format string, args ...any) *CodeError {
	return &CodeError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap 包装底层错误，添加业务错误码和消息
// 用法: errorx.Wrap(err, CodeNotFound, "会话不存在")
func Wrap(err error, code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg, cause: err}
}

// Wrapf 包装底层错误，支持格式化消息
func Wrapf(err error, code int, format string, args ...any) *CodeError {
	return &CodeError{Code: code, Msg: fmt.Sprintf(format, args...), cause: err}
}

// GetCode 从错误中提取业务错误码，非 CodeError 时返回 CodeServerBusy
func GetCode(err error) int {
	if err == nil {
		return CodeSuccess
	}
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	return CodeServerBusy
}

// HasCode 判断错误链上是否带有指定业务错误码
func HasCode(err error, code int) bool {
	var codeErr *CodeError
	return errors.As(err, &codeErr) && codeErr.Code == code
}

// 业务状态码常量定义
const (
	CodeSuccess         = 1000 // 成功
	CodeInvalidParam    = 1001 // 请求参数错误
	CodeUserExist       = 1002 // 用户已存在
	CodeUserNotExist    = 1003 // 用户不存在
	CodeInvalidPassword = 1004 // 密码或验证码错误
	CodeServerBusy      = 1005 // 服务繁忙
	CodeUnauthorized    = 1006 // 未授权/认证失败
	CodeTooFrequent     = 1007 // 请求过于频繁
	CodeNotFound        = 1008 // 资源不存在
	CodeForbidden       = 1009 // 无权操作
	CodeDBError         = 1010 // 数据库错误
	CodeCacheError      = 1011 // 缓存错误
	CodeTokenInvalid    = 1012 // 令牌无效（过期、被吊销、已轮换）
	CodeDeviceLimit     = 1013 // 设备数达到上限
	CodeVersionConflict = 1014 // 乐观锁版本冲突
)

// 预定义常用错误实例
var (
	ErrInvalidParam    = New(CodeInvalidParam, "请求参数错误")
	ErrServerBusy      = New(CodeServerBusy, "服务繁忙")
	ErrUnauthorized    = New(CodeUnauthorized, "请先登录")
	ErrTokenInvalid    = New(CodeTokenInvalid, "登录状态已失效，请重新登录")
	ErrDeviceLimit     = New(CodeDeviceLimit, "登录设备数已达上限")
	ErrVersionConflict = New(CodeVersionConflict, "数据已被并发修改")
	ErrForbidden       = New(CodeForbidden, "无权操作")
	ErrTooFrequent     = New(CodeTooFrequent, "操作过于频繁，请稍后重试")
)

// IsNotFound 检查错误是否为"未找到"类型（包括未包装的 gorm.ErrRecordNotFound）
func IsNotFound(err error) bool {
	if HasCode(err, CodeNotFound) {
		return true
	}
	return err != nil && err.Error() == "record not found"
}
