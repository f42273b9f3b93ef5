package handler

import (
	"errors"
	"net/http"

	"kama_realtime/pkg/errorx"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ResponseData 统一响应结构体
type ResponseData struct {
	Code int `json:"code"`
	Msg  any `json:"msg"`
	Data any `json:"data,omitempty"`
}

func reply(c *gin.Context, code int, msg, data any) {
	c.JSON(http.StatusOK, ResponseData{Code: code, Msg: msg, Data: data})
}

// HandleSuccess 返回成功响应
func HandleSuccess(c *gin.Context, data any) {
	reply(c, errorx.CodeSuccess, "success", data)
}

// HandleOutcome 发送结果：outcomeCode 为 0 表示成功，否则原样作为业务码返回
func HandleOutcome(c *gin.Context, outcomeCode int, msg string, data any) {
	if outcomeCode == 0 {
		HandleSuccess(c, data)
		return
	}
	reply(c, outcomeCode, msg, data)
}

// HandleError 业务错误原样返回错误码和消息，其他错误记录日志后返回服务繁忙
//
//	if err := svc.DoSomething(ctx); err != nil {
//	    HandleError(c, err)
//	    return
//	}
func HandleError(c *gin.Context, err error) {
	var codeErr *errorx.CodeError
	if errors.As(err, &codeErr) {
		// 存储层错误不向客户端暴露细节
		if codeErr.Code == errorx.CodeDBError || codeErr.Code == errorx.CodeCacheError {
			zap.L().Error("storage error", zap.String("path", c.Request.URL.Path), zap.Error(err))
			reply(c, errorx.ErrServerBusy.Code, errorx.ErrServerBusy.Msg, nil)
			return
		}
		reply(c, codeErr.Code, codeErr.Msg, nil)
		return
	}

	zap.L().Error("system error",
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
		zap.Error(err),
	)
	reply(c, errorx.ErrServerBusy.Code, errorx.ErrServerBusy.Msg, nil)
}

// HandleParamError 参数绑定错误，validator 错误按 Trans 翻译为字段 -> 提示
func HandleParamError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && Trans != nil {
		reply(c, errorx.ErrInvalidParam.Code, RemoveTopStruct(validationErrs.Translate(Trans)), nil)
		return
	}

	// JSON 格式错误等
	zap.L().Debug("param bind error", zap.String("path", c.Request.URL.Path), zap.Error(err))
	reply(c, errorx.ErrInvalidParam.Code, errorx.ErrInvalidParam.Msg, nil)
}
